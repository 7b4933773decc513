package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/segun/mcp-inspector/mcp"
	"github.com/segun/mcp-inspector/transport"
	"github.com/segun/mcp-inspector/transport/sse"
)

// Transport is the session-level channel the connection manager speaks over.
// Implementations correlate responses to requests and route server-initiated
// traffic to the registered handlers.
type Transport interface {
	// Connect opens the channel.
	Connect(ctx context.Context) error

	// Disconnect closes the channel and rejects any waiting calls.
	Disconnect() error

	// SendRequest sends a request message and blocks until the response with
	// the same ID arrives or ctx is done.
	SendRequest(ctx context.Context, id int64, message []byte) ([]byte, error)

	// SendMessage sends a message that expects no response: notifications and
	// replies to server-initiated requests.
	SendMessage(message []byte) error

	// SetNotificationHandler registers the sink for server notifications.
	SetNotificationHandler(handler func(n mcp.ServerNotification))

	// SetRequestHandler registers the sink for server-initiated requests.
	SetRequestHandler(handler func(r mcp.ServerRequest))
}

// TransportFactory builds the session transport for one connection attempt.
// The header provider must be consulted per request so a token refreshed
// between attempts is picked up without rebuilding anything.
type TransportFactory func(proxyAddr string, target Target, headers transport.HeaderProvider) (Transport, error)

// NewSSESessionTransport is the default TransportFactory: an SSE subscription
// to the backend proxy carrying the transport selection in its query string.
func NewSSESessionTransport(logger *slog.Logger) TransportFactory {
	return func(proxyAddr string, target Target, headers transport.HeaderProvider) (Transport, error) {
		endpoint, err := sse.Endpoint(proxyAddr, sse.Params{
			TransportType: string(target.Kind),
			Command:       target.Command,
			Args:          target.Args,
			Env:           target.Env,
			URL:           target.URL,
		})
		if err != nil {
			return nil, err
		}
		inner := sse.NewTransport(endpoint, sse.WithHeaderProvider(headers))
		inner.SetLogger(logger)
		return newSSESession(inner, logger), nil
	}
}

// BearerHeaderProvider returns a header provider that attaches
// "Authorization: Bearer <token>" whenever lookup yields a token.
func BearerHeaderProvider(lookup func() (string, bool)) transport.HeaderProvider {
	return func() http.Header {
		h := http.Header{}
		if token, ok := lookup(); ok && token != "" {
			h.Set("Authorization", "Bearer "+token)
		}
		return h
	}
}

// sseSession adapts the low-level SSE transport to the session surface:
// it correlates responses by request ID and classifies inbound messages as
// responses, server requests or notifications.
type sseSession struct {
	inner  *sse.Transport
	logger *slog.Logger

	mu      sync.Mutex
	pending map[int64]chan []byte

	notificationHandler func(n mcp.ServerNotification)
	requestHandler      func(r mcp.ServerRequest)

	endpointWait time.Duration
}

func newSSESession(inner *sse.Transport, logger *slog.Logger) *sseSession {
	s := &sseSession{
		inner:        inner,
		logger:       logger,
		pending:      make(map[int64]chan []byte),
		endpointWait: 10 * time.Second,
	}
	inner.SetMessageHandler(s.handleMessage)
	return s
}

func (s *sseSession) Connect(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		done <- s.inner.Start()
	}()
	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		_ = s.inner.Stop()
		return ctx.Err()
	}
	if err := s.inner.WaitForEndpoint(s.endpointWait); err != nil {
		_ = s.inner.Stop()
		return err
	}
	return nil
}

func (s *sseSession) Disconnect() error {
	err := s.inner.Stop()

	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[int64]chan []byte)
	s.mu.Unlock()
	for _, ch := range pending {
		close(ch)
	}
	return err
}

// inboundEnvelope is the minimal shape needed to classify a message.
type inboundEnvelope struct {
	ID     *int64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func (s *sseSession) handleMessage(message []byte) {
	var env inboundEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		s.logger.Debug("discarding unparseable inbound message", "error", err)
		return
	}

	switch {
	case env.ID != nil && env.Method != "":
		// Server-initiated request.
		if s.requestHandler != nil {
			s.requestHandler(mcp.ServerRequest{ID: *env.ID, Method: env.Method, Params: env.Params})
		} else {
			s.logger.Debug("no handler for server request", "method", env.Method)
		}
	case env.ID == nil && env.Method != "":
		if s.notificationHandler != nil {
			s.notificationHandler(mcp.ServerNotification{Method: env.Method, Params: env.Params})
		}
	case env.ID != nil:
		s.resolvePending(*env.ID, message)
	default:
		s.logger.Debug("discarding message with neither id nor method")
	}
}

func (s *sseSession) resolvePending(id int64, message []byte) {
	s.mu.Lock()
	ch, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()
	if !ok {
		s.logger.Debug("response for unknown request", "id", id)
		return
	}
	ch <- message
}

func (s *sseSession) SendRequest(ctx context.Context, id int64, message []byte) ([]byte, error) {
	ch := make(chan []byte, 1)
	s.mu.Lock()
	s.pending[id] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	body, err := s.inner.SendWithContext(ctx, message)
	if err != nil {
		return nil, err
	}

	// Some proxies answer on the POST itself rather than the stream.
	if len(body) > 0 {
		var env inboundEnvelope
		if jsonErr := json.Unmarshal(body, &env); jsonErr == nil && env.ID != nil && *env.ID == id {
			return body, nil
		}
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("connection closed while awaiting response %d", id)
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *sseSession) SendMessage(message []byte) error {
	_, err := s.inner.Send(message)
	return err
}

func (s *sseSession) SetNotificationHandler(handler func(n mcp.ServerNotification)) {
	s.notificationHandler = handler
}

func (s *sseSession) SetRequestHandler(handler func(r mcp.ServerRequest)) {
	s.requestHandler = handler
}

var _ Transport = (*sseSession)(nil)
