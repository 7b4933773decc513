package events

import "time"

// Topic constants published by the connection core. These are the public
// contract a UI layer subscribes to.
const (
	// Connection lifecycle
	TopicStatusChanged = "connection.status"
	TopicConnected     = "connection.connected"

	// Traffic audit
	TopicHistoryAppended = "history.appended"
	TopicRequestFailed   = "request.failed"

	// User-facing notifications
	TopicToast = "ui.toast"

	// Authentication
	TopicAuthRedirect   = "auth.redirect"
	TopicTokenRefreshed = "auth.token_refreshed"
)

// StatusChangedEvent is emitted on every connection status transition.
type StatusChangedEvent struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ConnectedEvent is emitted when a handshake completes.
type ConnectedEvent struct {
	ServerName      string    `json:"serverName"`
	ServerVersion   string    `json:"serverVersion"`
	ProtocolVersion string    `json:"protocolVersion"`
	ConnectedAt     time.Time `json:"connectedAt"`
}

// HistoryAppendedEvent is emitted when an exchange is recorded.
type HistoryAppendedEvent struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
}

// RequestFailedEvent is emitted when an outbound call fails.
type RequestFailedEvent struct {
	Method string `json:"method"`
	Error  string `json:"error"`
}

// Toast severity levels.
const (
	ToastError = "error"
	ToastInfo  = "info"
)

// ToastEvent is a user-visible notification.
type ToastEvent struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// AuthRedirectEvent is emitted just before the browser navigates to the
// authorization endpoint.
type AuthRedirectEvent struct {
	ServerURL string `json:"serverUrl"`
}

// TokenRefreshedEvent is emitted after a successful token refresh.
type TokenRefreshedEvent struct {
	ServerURL string `json:"serverUrl"`
}
