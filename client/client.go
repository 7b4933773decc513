// Package client implements the inspector's client-side connection manager:
// one logical MCP session over a streaming transport, with bearer-token
// authentication, transparent refresh-and-retry on auth failures, an
// append-only traffic history and observable connection state.
//
// # Basic Usage
//
//	conn := client.NewConnection("http://localhost:6277",
//		client.Target{Kind: client.TransportStdio, Command: "my-server"},
//		client.WithAuthFlow(flow),
//	)
//	conn.Connect(ctx)
//	if conn.Status() == client.StatusConnected {
//		var result map[string]interface{}
//		err := conn.MakeRequest(ctx, &mcp.Request{Method: "tools/list"}, &result)
//		...
//	}
//
// # Thread Safety
//
// All Connection methods are safe for concurrent use. Overlapping Connect
// calls are collapsed into a single attempt; concurrent requests are
// independent except for the shared append-only history.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/segun/mcp-inspector/auth"
	"github.com/segun/mcp-inspector/events"
	"github.com/segun/mcp-inspector/mcp"
	"github.com/segun/mcp-inspector/transport"
)

// maxAuthRetries bounds refresh-driven reconnect attempts within one Connect
// call. A server that keeps rejecting freshly refreshed tokens fails closed
// instead of recursing.
const maxAuthRetries = 1

// DefaultConnectTimeout bounds one connection attempt including handshake.
const DefaultConnectTimeout = 30 * time.Second

// Toaster is the user-facing notification channel failures are surfaced to.
type Toaster interface {
	Toast(level, message string)
}

// ToasterFunc adapts a function to the Toaster interface.
type ToasterFunc func(level, message string)

// Toast implements Toaster.
func (f ToasterFunc) Toast(level, message string) {
	f(level, message)
}

// Connection manages exactly one logical MCP session. Reconnecting replaces
// the session wholesale; the previous transport is torn down best-effort.
type Connection struct {
	id         string
	proxyAddr  string
	target     Target
	clientInfo mcp.ClientInfo

	logger  *slog.Logger
	events  *events.Subject
	flow    *auth.Flow
	toaster Toaster

	newTransport   TransportFactory
	connectTimeout time.Duration

	notificationHandler NotificationHandler
	stderrHandler       NotificationHandler
	samplingHandler     SamplingHandler
	rootsProvider       RootsProvider

	mu      sync.RWMutex
	status  Status
	session *Session
	caps    *mcp.ServerCapabilities

	history   history
	requestID atomic.Int64

	pendingMu sync.Mutex
	pending   map[int64]*PendingReply

	connectGroup singleflight.Group
}

// Option configures a Connection.
type Option func(*Connection)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Connection) {
		c.logger = logger
	}
}

// WithEvents sets the subject connection events are published to.
func WithEvents(subject *events.Subject) Option {
	return func(c *Connection) {
		c.events = subject
	}
}

// WithAuthFlow sets the auth flow controller used for bearer tokens and
// 401 recovery.
func WithAuthFlow(flow *auth.Flow) Option {
	return func(c *Connection) {
		c.flow = flow
	}
}

// WithToaster sets the user-facing notification channel.
func WithToaster(t Toaster) Option {
	return func(c *Connection) {
		c.toaster = t
	}
}

// WithClientInfo overrides the identity declared during the handshake.
func WithClientInfo(info mcp.ClientInfo) Option {
	return func(c *Connection) {
		c.clientInfo = info
	}
}

// WithNotificationHandler registers the callback progress-style server
// notifications are forwarded to, verbatim.
func WithNotificationHandler(h NotificationHandler) Option {
	return func(c *Connection) {
		c.notificationHandler = h
	}
}

// WithStderrNotificationHandler registers the callback diagnostic (stderr)
// notifications are forwarded to, verbatim.
func WithStderrNotificationHandler(h NotificationHandler) Option {
	return func(c *Connection) {
		c.stderrHandler = h
	}
}

// WithSamplingHandler registers the handler for inbound sampling requests.
// The handler receives the request together with a reply handle to resolve
// or reject it.
func WithSamplingHandler(h SamplingHandler) Option {
	return func(c *Connection) {
		c.samplingHandler = h
	}
}

// WithRootsProvider registers the provider answering roots/list requests.
func WithRootsProvider(p RootsProvider) Option {
	return func(c *Connection) {
		c.rootsProvider = p
	}
}

// WithTransportFactory replaces the default SSE transport, mainly for tests
// and embedding.
func WithTransportFactory(f TransportFactory) Option {
	return func(c *Connection) {
		c.newTransport = f
	}
}

// WithConnectTimeout bounds each connection attempt.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Connection) {
		c.connectTimeout = d
	}
}

// NewConnection creates a connection manager for one target behind the given
// backend proxy. No network activity happens until Connect.
func NewConnection(proxyAddr string, target Target, opts ...Option) *Connection {
	c := &Connection{
		id:        uuid.NewString(),
		proxyAddr: proxyAddr,
		target:    target,
		clientInfo: mcp.ClientInfo{
			Name:    "mcp-inspector",
			Version: "0.1.0",
		},
		logger:         slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})),
		events:         events.NewSubject(),
		connectTimeout: DefaultConnectTimeout,
		status:         StatusDisconnected,
		pending:        make(map[int64]*PendingReply),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.flow == nil {
		c.flow = auth.NewFlow(auth.NewSessionStore(), auth.Config{ClientID: c.clientInfo.Name},
			auth.WithLogger(c.logger))
	}
	if c.newTransport == nil {
		c.newTransport = NewSSESessionTransport(c.logger)
	}
	return c
}

// Events returns the subject connection events are published on.
func (c *Connection) Events() *events.Subject {
	return c.events
}

// Status returns the current lifecycle status.
func (c *Connection) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Capabilities returns the server's declared capability set, or nil before a
// handshake has completed.
func (c *Connection) Capabilities() *mcp.ServerCapabilities {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.caps
}

// Session returns the live session handle, or nil when not connected.
func (c *Connection) Session() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// History returns a copy of the traffic history in issuance order.
func (c *Connection) History() []HistoryEntry {
	return c.history.snapshot()
}

func (c *Connection) setStatus(status Status) {
	c.mu.Lock()
	prev := c.status
	c.status = status
	c.mu.Unlock()
	if prev != status {
		c.logger.Debug("connection status changed", "from", string(prev), "to", string(status))
		_ = events.Publish(c.events, events.TopicStatusChanged, events.StatusChangedEvent{
			From: string(prev), To: string(status),
		})
	}
}

// authServerURL is the address 401 recovery authorizes against: the remote
// server for SSE targets, the proxy itself for stdio targets.
func (c *Connection) authServerURL() string {
	if c.target.Kind == TransportSSE && c.target.URL != "" {
		return c.target.URL
	}
	return c.proxyAddr
}

// Connect establishes (or re-establishes) the session. Failures never
// propagate to the caller: they surface as an error status, or silently as
// disconnected when an authorization redirect is already in flight.
// Overlapping calls share a single attempt.
func (c *Connection) Connect(ctx context.Context) {
	_, _, _ = c.connectGroup.Do("connect", func() (interface{}, error) {
		c.connect(ctx, 0)
		return nil, nil
	})
}

func (c *Connection) connect(ctx context.Context, attempt int) {
	c.setStatus(StatusConnecting)

	err := c.tryConnect(ctx)
	if err == nil {
		return
	}

	// Once the refresh budget is spent, no further refresh runs.
	if transport.IsAuthError(err) && attempt >= maxAuthRetries {
		c.logger.Error("connection failed", "error", ErrAuthRetryExceeded)
		c.setStatus(StatusError)
		return
	}

	if c.flow.HandleAuthError(ctx, c.authServerURL(), err) {
		c.logger.Info("access token refreshed, retrying connection", "attempt", attempt+1)
		_ = events.Publish(c.events, events.TopicTokenRefreshed, events.TokenRefreshedEvent{
			ServerURL: c.authServerURL(),
		})
		c.connect(ctx, attempt+1)
		return
	}

	if transport.IsAuthError(err) {
		// A redirect to the authorization endpoint was issued; the
		// navigation is already in flight, so no error state.
		c.logger.Info("authorization redirect in flight", "server", c.authServerURL())
		_ = events.Publish(c.events, events.TopicAuthRedirect, events.AuthRedirectEvent{
			ServerURL: c.authServerURL(),
		})
		c.setStatus(StatusDisconnected)
		return
	}

	c.logger.Error("connection failed", "error", err)
	c.setStatus(StatusError)
}

// tryConnect performs one connection attempt: open the transport, perform
// the initialize handshake, then publish the new session wholesale.
func (c *Connection) tryConnect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	creds := c.flow.Credentials()
	headers := BearerHeaderProvider(creds.AccessToken)

	t, err := c.newTransport(c.proxyAddr, c.target, headers)
	if err != nil {
		return fmt.Errorf("failed to build transport: %w", err)
	}

	// Handlers are registered before the transport opens; a stdio server's
	// launch diagnostics can arrive while the handshake is still in flight.
	t.SetNotificationHandler(c.handleServerNotification)
	t.SetRequestHandler(c.handleServerRequest)

	if err := t.Connect(ctx); err != nil {
		if stopErr := t.Disconnect(); stopErr != nil {
			c.logger.Debug("error closing transport after failed connect", "error", stopErr)
		}
		return err
	}

	result, err := c.handshake(ctx, t)
	if err != nil {
		if stopErr := t.Disconnect(); stopErr != nil {
			c.logger.Debug("error closing transport after failed handshake", "error", stopErr)
		}
		return err
	}

	session := &Session{
		Target:          c.target,
		ServerInfo:      result.ServerInfo,
		Capabilities:    result.Capabilities,
		ProtocolVersion: result.ProtocolVersion,
		CreatedAt:       time.Now(),
		transport:       t,
	}

	c.mu.Lock()
	previous := c.session
	c.session = session
	c.caps = result.Capabilities
	c.mu.Unlock()

	if previous != nil {
		c.abandonPending()
		if stopErr := previous.transport.Disconnect(); stopErr != nil {
			c.logger.Debug("error closing previous session transport", "error", stopErr)
		}
	}

	c.setStatus(StatusConnected)
	c.logger.Info("connected to MCP server",
		"connection", c.id,
		"server", result.ServerInfo.Name,
		"version", result.ServerInfo.Version,
		"protocol", result.ProtocolVersion)
	_ = events.Publish(c.events, events.TopicConnected, events.ConnectedEvent{
		ServerName:      result.ServerInfo.Name,
		ServerVersion:   result.ServerInfo.Version,
		ProtocolVersion: result.ProtocolVersion,
		ConnectedAt:     session.CreatedAt,
	})
	return nil
}

// Disconnect tears down the current session, if any. The connection can be
// re-established with Connect.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.caps = nil
	c.mu.Unlock()

	c.abandonPending()
	c.setStatus(StatusDisconnected)
	if session == nil {
		return nil
	}
	return session.transport.Disconnect()
}

// toast surfaces an error on the user-facing notification channel.
func (c *Connection) toast(message string) {
	if c.toaster != nil {
		c.toaster.Toast(events.ToastError, message)
	}
	_ = events.Publish(c.events, events.TopicToast, events.ToastEvent{
		Level:   events.ToastError,
		Message: message,
	})
}

func publishHistoryAppended(c *Connection, entry *HistoryEntry) error {
	return events.Publish(c.events, events.TopicHistoryAppended, events.HistoryAppendedEvent{
		ID:     entry.ID,
		Method: entry.Method,
	})
}

// fail records and surfaces a request failure, then hands the error back so
// the caller can also react.
func (c *Connection) fail(method string, err error) error {
	c.toast(err.Error())
	_ = events.Publish(c.events, events.TopicRequestFailed, events.RequestFailedEvent{
		Method: method,
		Error:  err.Error(),
	})
	return err
}
