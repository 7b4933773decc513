package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/segun/mcp-inspector/mcp"
)

// DefaultRequestTimeout is the window a request has to complete before its
// in-flight call is aborted.
const DefaultRequestTimeout = 300 * time.Second

// RequestOption configures a single MakeRequest call.
type RequestOption func(*requestConfig)

type requestConfig struct {
	timeout time.Duration
}

// WithTimeout overrides the default per-request timeout.
func WithTimeout(d time.Duration) RequestOption {
	return func(cfg *requestConfig) {
		cfg.timeout = d
	}
}

// JSON-RPC 2.0 envelope used on the wire.
type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int64       `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcNotification struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *mcp.RPCError   `json:"error,omitempty"`
}

// handshake performs the initialize exchange on a fresh transport and
// returns the server's declared surface.
func (c *Connection) handshake(ctx context.Context, t Transport) (*mcp.InitializeResult, error) {
	id := c.requestID.Add(1)
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  "initialize",
		Params: map[string]interface{}{
			"protocolVersion": mcp.ProtocolVersion,
			"capabilities": mcp.ClientCapabilities{
				Roots:    &mcp.RootsCapability{ListChanged: true},
				Sampling: map[string]interface{}{},
			},
			"clientInfo": c.clientInfo,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal initialize request: %w", err)
	}

	respBytes, err := t.SendRequest(ctx, id, payload)
	if err != nil {
		return nil, err
	}

	var resp rpcResponse
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse initialize response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("initialize rejected: %s (code %d)", resp.Error.Message, resp.Error.Code)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(resp.Result, &raw); err != nil {
		return nil, fmt.Errorf("invalid initialize result: %w", err)
	}
	var result mcp.InitializeResult
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{Result: &result})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("invalid initialize result: %w", err)
	}

	// The server may declare no capabilities at all; the session then
	// carries a nil capability set.

	ack, err := json.Marshal(rpcNotification{JSONRPC: "2.0", Method: "notifications/initialized"})
	if err != nil {
		return nil, err
	}
	if err := t.SendMessage(ack); err != nil {
		return nil, fmt.Errorf("failed to acknowledge initialization: %w", err)
	}
	return &result, nil
}

// MakeRequest issues one outbound request and decodes the schema-validated
// response into result (which may be nil to discard it). The exchange is
// recorded in history regardless of outcome; failures are surfaced on the
// user-facing notification channel and returned to the caller.
func (c *Connection) MakeRequest(ctx context.Context, req *mcp.Request, result interface{}, opts ...RequestOption) error {
	session := c.Session()
	if session == nil {
		err := ErrNotConnected
		c.toast(err.Error())
		return err
	}

	cfg := requestConfig{timeout: DefaultRequestTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	id := c.requestID.Add(1)
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  req.Method,
		Params:  req.Params,
	})
	if err != nil {
		wrapped := fmt.Errorf("failed to marshal request: %w", err)
		c.toast(wrapped.Error())
		return wrapped
	}

	entry := c.history.append(id, req.Method, payload)
	_ = publishHistoryAppended(c, entry)

	// The timer backing this context is always released, success or failure.
	callCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	respBytes, err := session.transport.SendRequest(callCtx, id, payload)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s: %s", ErrRequestTimeout, cfg.timeout, req.Method)
		}
		c.history.settleError(entry, err)
		return c.fail(req.Method, err)
	}

	var resp rpcResponse
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		err = fmt.Errorf("failed to parse response: %w", err)
		c.history.settleError(entry, err)
		return c.fail(req.Method, err)
	}
	if resp.Error != nil {
		err = fmt.Errorf("server returned error: %s (code %d)", resp.Error.Message, resp.Error.Code)
		c.history.settleError(entry, err)
		return c.fail(req.Method, err)
	}

	if result != nil {
		if err := decodeResult(resp.Result, result); err != nil {
			c.history.settleError(entry, err)
			return c.fail(req.Method, err)
		}
	}

	c.history.settleResponse(entry, resp.Result)
	return nil
}

// decodeResult validates a raw result against the caller's expected shape.
func decodeResult(raw json.RawMessage, result interface{}) error {
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

// SendNotification issues one outbound notification. The entry is recorded
// in history with no response; failures are surfaced and returned the same
// way as for requests.
func (c *Connection) SendNotification(ctx context.Context, n *mcp.Notification) error {
	session := c.Session()
	if session == nil {
		err := ErrNotConnected
		c.toast(err.Error())
		return err
	}

	payload, err := json.Marshal(rpcNotification{
		JSONRPC: "2.0",
		Method:  n.Method,
		Params:  n.Params,
	})
	if err != nil {
		wrapped := fmt.Errorf("failed to marshal notification: %w", err)
		c.toast(wrapped.Error())
		return wrapped
	}

	// Notifications carry no wire ID; the counter still numbers the entry
	// so history IDs stay unique.
	entry := c.history.append(c.requestID.Add(1), n.Method, payload)
	_ = publishHistoryAppended(c, entry)

	if err := session.transport.SendMessage(payload); err != nil {
		c.history.settleError(entry, err)
		return c.fail(n.Method, err)
	}

	c.history.settle(entry)
	return nil
}
