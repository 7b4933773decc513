package client

import (
	"time"

	"github.com/segun/mcp-inspector/mcp"
)

// Status is the observable lifecycle state of the connection.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// TransportKind selects how the backend proxy reaches the server.
type TransportKind string

const (
	// TransportStdio bridges to a local process spawned by the proxy.
	TransportStdio TransportKind = "stdio"
	// TransportSSE bridges to a remote SSE server.
	TransportSSE TransportKind = "sse"
)

// Target is the address of the server being inspected: either a local
// command triple or a remote URL, depending on Kind.
type Target struct {
	Kind TransportKind

	// stdio
	Command string
	Args    []string
	Env     map[string]string

	// sse
	URL string
}

// Session is one established logical connection. It is immutable once
// published: a reconnect replaces the session wholesale rather than mutating
// it in place.
type Session struct {
	Target          Target
	ServerInfo      mcp.ServerInfo
	Capabilities    *mcp.ServerCapabilities
	ProtocolVersion string
	CreatedAt       time.Time

	transport Transport
}

// NotificationHandler receives server-initiated notifications forwarded
// verbatim from the stream.
type NotificationHandler func(n mcp.ServerNotification)

// RootsProvider answers roots/list requests synchronously.
type RootsProvider func() []mcp.Root
