// Package auth manages the inspector's bearer-token credentials: a
// session-scoped token store and the OAuth flow controller that keeps the
// access token usable across reconnects.
package auth

import "sync"

// Fixed logical keys the connection core reads and writes. The state key
// holds PKCE/state artifacts for the in-flight authorization and is opaque
// to everything but the flow controller.
const (
	KeyAccessToken  = "mcp_access_token"
	KeyRefreshToken = "mcp_refresh_token"
	KeyServerURL    = "mcp_server_url"
	KeyOAuthState   = "mcp_oauth_state"
)

// TokenStore is a session-scoped key-value store. Values are plain strings;
// writes are immediately visible to subsequent reads and the backing store is
// cleared when the browsing session ends. No validation happens here.
type TokenStore interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Remove(key string)
}

// SessionStore is the in-memory TokenStore used when no external store is
// supplied. Safe for concurrent use.
type SessionStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{values: make(map[string]string)}
}

// Get returns the value for key if present.
func (s *SessionStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores value under key, overwriting any previous value.
func (s *SessionStore) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Remove deletes key from the store.
func (s *SessionStore) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// Credentials provides typed access over a TokenStore's fixed keys.
type Credentials struct {
	Store TokenStore
}

// AccessToken returns the stored access token, if any.
func (c Credentials) AccessToken() (string, bool) {
	return c.Store.Get(KeyAccessToken)
}

// SetAccessToken overwrites the stored access token.
func (c Credentials) SetAccessToken(token string) {
	c.Store.Set(KeyAccessToken, token)
}

// RefreshToken returns the stored refresh token, if any.
func (c Credentials) RefreshToken() (string, bool) {
	return c.Store.Get(KeyRefreshToken)
}

// SetRefreshToken overwrites the stored refresh token.
func (c Credentials) SetRefreshToken(token string) {
	c.Store.Set(KeyRefreshToken, token)
}

// ServerURL returns the remembered server URL, if any.
func (c Credentials) ServerURL() (string, bool) {
	return c.Store.Get(KeyServerURL)
}

// RememberServerURL stores the server URL an authorization was started for.
func (c Credentials) RememberServerURL(serverURL string) {
	c.Store.Set(KeyServerURL, serverURL)
}

// ClearTokens removes the access token, refresh token and any in-flight
// authorization state. The remembered server URL survives so the callback
// half of the flow can find its way back.
func (c Credentials) ClearTokens() {
	c.Store.Remove(KeyAccessToken)
	c.Store.Remove(KeyRefreshToken)
	c.Store.Remove(KeyOAuthState)
}
