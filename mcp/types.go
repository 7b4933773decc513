// Package mcp contains the shared protocol value types exchanged between the
// inspector core and an MCP server.
//
// The package deliberately stops short of the full protocol schema: requests
// and notifications carry opaque params, and the caller decides what shape the
// result should decode into. Only the handful of payloads the connection core
// must understand (initialization, progress, sampling) are typed here.
package mcp

import "encoding/json"

// ProtocolVersion is the MCP revision this client speaks.
const ProtocolVersion = "2025-03-26"

// Request is an outbound protocol request. Params may be any JSON-serializable
// value, or nil for parameterless methods.
type Request struct {
	Method string      `json:"method"`
	Params interface{} `json:"params,omitempty"`
}

// Notification is an outbound protocol notification. Unlike a Request it
// expects no response.
type Notification struct {
	Method string      `json:"method"`
	Params interface{} `json:"params,omitempty"`
}

// Standard JSON-RPC 2.0 error codes used when answering server-initiated
// requests.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// RPCError is the error member of a JSON-RPC response.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return e.Message
}

// ClientInfo identifies this client during initialization.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ServerInfo identifies the server, as declared in its initialize result.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Implementation-declared capability surfaces. Capability objects are sparse:
// a nil pointer means the feature was not declared at all.

// ClientCapabilities is what this client declares during the handshake.
type ClientCapabilities struct {
	Roots    *RootsCapability       `json:"roots,omitempty"`
	Sampling map[string]interface{} `json:"sampling,omitempty"`
}

// RootsCapability declares root-listing support, optionally with change
// notifications.
type RootsCapability struct {
	ListChanged bool `json:"listChanged"`
}

// ServerCapabilities is the feature surface a server declares during the
// handshake. It is received exactly once per connection and treated as
// immutable afterwards.
type ServerCapabilities struct {
	Logging      map[string]interface{} `json:"logging,omitempty" mapstructure:"logging"`
	Prompts      *PromptsCapability     `json:"prompts,omitempty" mapstructure:"prompts"`
	Resources    *ResourcesCapability   `json:"resources,omitempty" mapstructure:"resources"`
	Tools        *ToolsCapability       `json:"tools,omitempty" mapstructure:"tools"`
	Completions  map[string]interface{} `json:"completions,omitempty" mapstructure:"completions"`
	Experimental map[string]interface{} `json:"experimental,omitempty" mapstructure:"experimental"`
}

// PromptsCapability is the server's prompt template capability.
type PromptsCapability struct {
	ListChanged bool `json:"listChanged,omitempty" mapstructure:"listChanged"`
}

// ResourcesCapability is the server's resource capability.
type ResourcesCapability struct {
	Subscribe   bool `json:"subscribe,omitempty" mapstructure:"subscribe"`
	ListChanged bool `json:"listChanged,omitempty" mapstructure:"listChanged"`
}

// ToolsCapability is the server's tool capability.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty" mapstructure:"listChanged"`
}

// InitializeResult is the server's answer to the initialize request.
type InitializeResult struct {
	ProtocolVersion string              `json:"protocolVersion" mapstructure:"protocolVersion"`
	Capabilities    *ServerCapabilities `json:"capabilities,omitempty" mapstructure:"capabilities"`
	ServerInfo      ServerInfo          `json:"serverInfo" mapstructure:"serverInfo"`
	Instructions    string              `json:"instructions,omitempty" mapstructure:"instructions"`
}

// Root is one entry answered to a roots/list request.
type Root struct {
	URI  string `json:"uri"`
	Name string `json:"name,omitempty"`
}

// ServerRequest is a server-initiated request delivered over the stream, such
// as sampling/createMessage or roots/list. Params remain raw so the registered
// handler can decode them against whatever shape it expects.
type ServerRequest struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ServerNotification is a server-initiated notification (no ID, no response).
type ServerNotification struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}
