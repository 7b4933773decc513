package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/segun/mcp-inspector/mcp"
)

// MethodSamplingCreateMessage is the server-initiated sampling request.
const MethodSamplingCreateMessage = "sampling/createMessage"

// MethodRootsList is the server-initiated roots listing request.
const MethodRootsList = "roots/list"

// SamplingHandler receives an inbound sampling request together with the
// reply handle that resolves or rejects it. The handler may answer
// asynchronously; the handle stays valid until the session is replaced.
type SamplingHandler func(req mcp.ServerRequest, reply *PendingReply)

// PendingReply is the pending-request table entry for one server-initiated
// request. Exactly one of Resolve and Reject takes effect; later calls
// return an error.
type PendingReply struct {
	id      int64
	conn    *Connection
	session *Session

	once sync.Once
}

// ErrAlreadySettled is returned when a reply handle is resolved or rejected
// twice, or after its session has been replaced.
var ErrAlreadySettled = errors.New("request already settled")

// Resolve answers the server's request with result.
func (r *PendingReply) Resolve(result interface{}) error {
	return r.settle(func() error {
		return r.conn.sendRPCResult(r.session, r.id, result)
	})
}

// Reject answers the server's request with a JSON-RPC error.
func (r *PendingReply) Reject(code int, message string) error {
	return r.settle(func() error {
		return r.conn.sendRPCError(r.session, r.id, code, message)
	})
}

func (r *PendingReply) settle(send func() error) error {
	err := ErrAlreadySettled
	r.once.Do(func() {
		r.conn.removePending(r.id)
		err = send()
	})
	return err
}

// abandon invalidates the handle without sending anything, used when the
// session it belongs to is torn down.
func (r *PendingReply) abandon() {
	r.once.Do(func() {})
}

func (c *Connection) addPending(reply *PendingReply) {
	c.pendingMu.Lock()
	c.pending[reply.id] = reply
	c.pendingMu.Unlock()
}

func (c *Connection) removePending(id int64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

// abandonPending invalidates every outstanding reply handle. Called when a
// session is replaced or torn down.
func (c *Connection) abandonPending() {
	c.pendingMu.Lock()
	outstanding := make([]*PendingReply, 0, len(c.pending))
	for _, reply := range c.pending {
		outstanding = append(outstanding, reply)
	}
	c.pending = make(map[int64]*PendingReply)
	c.pendingMu.Unlock()

	for _, reply := range outstanding {
		reply.abandon()
	}
}

// handleServerRequest dispatches one server-initiated request to the
// registered handler for its method.
func (c *Connection) handleServerRequest(req mcp.ServerRequest) {
	session := c.Session()
	if session == nil {
		return
	}

	switch req.Method {
	case MethodSamplingCreateMessage:
		if c.samplingHandler == nil {
			_ = c.sendRPCError(session, req.ID, mcp.ErrCodeMethodNotFound, "no sampling handler registered")
			return
		}
		reply := &PendingReply{id: req.ID, conn: c, session: session}
		c.addPending(reply)
		// Handlers may block on user interaction; keep the stream reader
		// free.
		go c.samplingHandler(req, reply)

	case MethodRootsList:
		c.handleRootsList(session, req)

	default:
		c.logger.Debug("unsupported server request", "method", req.Method)
		_ = c.sendRPCError(session, req.ID, mcp.ErrCodeMethodNotFound, fmt.Sprintf("unsupported method %q", req.Method))
	}
}

// handleServerNotification forwards a server notification verbatim to the
// registered callback for its class.
func (c *Connection) handleServerNotification(n mcp.ServerNotification) {
	if n.Method == mcp.MethodStderr {
		if c.stderrHandler != nil {
			c.stderrHandler(n)
		}
		return
	}
	if c.notificationHandler != nil {
		c.notificationHandler(n)
	}
}

// sendRPCResult answers a server-initiated request with a success envelope.
func (c *Connection) sendRPCResult(session *Session, id int64, result interface{}) error {
	payload, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  result,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	return session.transport.SendMessage(payload)
}

// sendRPCError answers a server-initiated request with an error envelope.
func (c *Connection) sendRPCError(session *Session, id int64, code int, message string) error {
	payload, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"error": mcp.RPCError{
			Code:    code,
			Message: message,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal error response: %w", err)
	}
	return session.transport.SendMessage(payload)
}
