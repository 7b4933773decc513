// Package transport provides the streaming transport layer used by the
// inspector's connection core.
//
// Transports are opaque byte pipes: they deliver inbound protocol messages to
// a registered handler and POST outbound messages to the backend proxy. The
// connection core never sees framing, only complete messages.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
)

// MessageHandler receives a complete inbound message from the transport.
type MessageHandler func(message []byte)

// DebugHandler receives debug messages from the transport.
type DebugHandler func(message string)

// HeaderProvider supplies HTTP headers for every outbound request the
// transport performs, including the stream subscription itself. It is
// consulted at request time so that a refreshed bearer token takes effect
// without rebuilding the transport.
type HeaderProvider func() http.Header

// Transport is a bidirectional streaming channel to the backend proxy.
type Transport interface {
	// Start opens the stream and begins delivering inbound messages to the
	// registered handler. It blocks until the stream is established or fails.
	Start() error

	// Stop closes the stream and releases its resources.
	Stop() error

	// Send posts one outbound message. The returned bytes are the immediate
	// HTTP response body, which may be empty when the reply arrives over the
	// stream instead.
	Send(message []byte) ([]byte, error)

	// SendWithContext is Send bounded by ctx: when ctx is done, the
	// underlying network operation for this message is aborted.
	SendWithContext(ctx context.Context, message []byte) ([]byte, error)

	// SetMessageHandler sets the handler for inbound messages.
	SetMessageHandler(handler MessageHandler)

	// SetDebugHandler sets a handler for debug messages.
	SetDebugHandler(handler DebugHandler)

	// SetLogger sets the structured logger.
	SetLogger(logger *slog.Logger)

	// GetLogger returns the current logger.
	GetLogger() *slog.Logger
}

// BaseTransport provides common handler and logger plumbing for Transport
// implementations.
type BaseTransport struct {
	handler      MessageHandler
	debugHandler DebugHandler
	logger       *slog.Logger
}

// SetMessageHandler sets the message handler.
func (t *BaseTransport) SetMessageHandler(handler MessageHandler) {
	t.handler = handler
}

// SetDebugHandler sets the debug handler.
func (t *BaseTransport) SetDebugHandler(handler DebugHandler) {
	t.debugHandler = handler
}

// GetDebugHandler returns the current debug handler.
func (t *BaseTransport) GetDebugHandler() DebugHandler {
	return t.debugHandler
}

// SetLogger sets the structured logger.
func (t *BaseTransport) SetLogger(logger *slog.Logger) {
	t.logger = logger
}

// GetLogger returns the current logger, creating a default one if none is set.
func (t *BaseTransport) GetLogger() *slog.Logger {
	if t.logger == nil {
		t.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	return t.logger
}

// HandleMessage delivers an inbound message to the registered handler.
func (t *BaseTransport) HandleMessage(message []byte) error {
	if t.handler == nil {
		return errors.New("no message handler set")
	}
	t.handler(message)
	return nil
}

// Debug forwards a debug message to the registered debug handler, if any.
func (t *BaseTransport) Debug(message string) {
	if t.debugHandler != nil {
		t.debugHandler(message)
	}
}

// StatusError reports a non-2xx HTTP status from the proxy or server.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected HTTP status %d", e.Code)
	}
	return fmt.Sprintf("unexpected HTTP status %d: %s", e.Code, e.Body)
}

// IsAuthError reports whether err is an authentication-class rejection
// (HTTP 401 or 403).
func IsAuthError(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden
	}
	return false
}
