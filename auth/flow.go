package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/segun/mcp-inspector/transport"
)

// ErrNoRefreshToken is returned when a refresh is attempted without a stored
// refresh token.
var ErrNoRefreshToken = errors.New("no refresh token stored")

// ErrNoNavigator is returned when an authorization flow is initiated but no
// Navigator was configured to perform the redirect.
var ErrNoNavigator = errors.New("no navigator configured")

// Navigator performs the "full-page redirect" half of the authorization flow.
// A successful redirect is terminal from the connection core's perspective:
// the user agent navigates away and control does not return.
type Navigator interface {
	Redirect(url string) error
}

// NavigatorFunc adapts a function to the Navigator interface.
type NavigatorFunc func(url string) error

// Redirect implements Navigator.
func (f NavigatorFunc) Redirect(url string) error {
	return f(url)
}

// Config configures the OAuth flow against an MCP server's authorization
// endpoints.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// Endpoints derives the authorization and token endpoints for a server.
	// When nil, <serverURL>/authorize and <serverURL>/token are used.
	Endpoints func(serverURL string) oauth2.Endpoint
}

func (c Config) endpoint(serverURL string) oauth2.Endpoint {
	if c.Endpoints != nil {
		return c.Endpoints(serverURL)
	}
	base, err := url.Parse(serverURL)
	if err != nil {
		// An unparseable server URL still yields endpoints; the token
		// request will fail with a useful error instead.
		return oauth2.Endpoint{AuthURL: serverURL + "/authorize", TokenURL: serverURL + "/token"}
	}
	return oauth2.Endpoint{
		AuthURL:  base.JoinPath("authorize").String(),
		TokenURL: base.JoinPath("token").String(),
	}
}

// pendingAuth is the PKCE/state artifact persisted under KeyOAuthState for
// the duration of one authorization round trip.
type pendingAuth struct {
	State    string `json:"state"`
	Verifier string `json:"verifier"`
}

// Flow decides, on an auth-class failure, whether the connection can be
// retried after a token refresh or the user must re-authorize from scratch.
type Flow struct {
	creds      Credentials
	config     Config
	nav        Navigator
	logger     *slog.Logger
	httpClient *http.Client
}

// FlowOption configures a Flow.
type FlowOption func(*Flow)

// WithNavigator sets the redirect collaborator.
func WithNavigator(nav Navigator) FlowOption {
	return func(f *Flow) {
		f.nav = nav
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) FlowOption {
	return func(f *Flow) {
		f.logger = logger
	}
}

// WithHTTPClient sets the HTTP client used for token-endpoint calls.
func WithHTTPClient(c *http.Client) FlowOption {
	return func(f *Flow) {
		f.httpClient = c
	}
}

// NewFlow creates a flow controller over a token store.
func NewFlow(store TokenStore, config Config, opts ...FlowOption) *Flow {
	f := &Flow{
		creds:  Credentials{Store: store},
		config: config,
		logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Credentials exposes the typed token accessors backed by the flow's store.
func (f *Flow) Credentials() Credentials {
	return f.creds
}

func (f *Flow) oauthContext(ctx context.Context) context.Context {
	if f.httpClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
	}
	return ctx
}

func (f *Flow) oauthConfig(serverURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     f.config.ClientID,
		ClientSecret: f.config.ClientSecret,
		RedirectURL:  f.config.RedirectURL,
		Scopes:       f.config.Scopes,
		Endpoint:     f.config.endpoint(serverURL),
	}
}

// InitiateAuthFlow starts a fresh authorization: stored tokens are cleared,
// the server URL is remembered, and the browser is redirected to the
// authorization URL. Errors computing or performing the redirect propagate
// to the caller.
func (f *Flow) InitiateAuthFlow(ctx context.Context, serverURL string) error {
	f.creds.ClearTokens()
	f.creds.RememberServerURL(serverURL)

	if f.nav == nil {
		return ErrNoNavigator
	}

	pending := pendingAuth{
		State:    uuid.NewString(),
		Verifier: oauth2.GenerateVerifier(),
	}
	raw, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("failed to persist authorization state: %w", err)
	}
	f.creds.Store.Set(KeyOAuthState, string(raw))

	authURL := f.oauthConfig(serverURL).AuthCodeURL(pending.State,
		oauth2.S256ChallengeOption(pending.Verifier))

	f.logger.Info("redirecting to authorization endpoint", "server", serverURL)
	return f.nav.Redirect(authURL)
}

// CompleteAuthFlow exchanges an authorization code for tokens after the
// redirect returns. The state parameter must match the persisted state nonce.
func (f *Flow) CompleteAuthFlow(ctx context.Context, code, state string) error {
	raw, ok := f.creds.Store.Get(KeyOAuthState)
	if !ok {
		return errors.New("no authorization in progress")
	}
	var pending pendingAuth
	if err := json.Unmarshal([]byte(raw), &pending); err != nil {
		return fmt.Errorf("corrupt authorization state: %w", err)
	}
	if state != pending.State {
		return errors.New("authorization state mismatch")
	}

	serverURL, ok := f.creds.ServerURL()
	if !ok {
		return errors.New("no server URL remembered for authorization")
	}

	tok, err := f.oauthConfig(serverURL).Exchange(f.oauthContext(ctx), code,
		oauth2.VerifierOption(pending.Verifier))
	if err != nil {
		return fmt.Errorf("code exchange failed: %w", err)
	}

	f.creds.SetAccessToken(tok.AccessToken)
	if tok.RefreshToken != "" {
		f.creds.SetRefreshToken(tok.RefreshToken)
	}
	f.creds.Store.Remove(KeyOAuthState)
	f.logger.Info("authorization complete", "server", serverURL)
	return nil
}

// RefreshAccessToken exchanges the stored refresh token for a new access
// token and persists the result. On failure it falls back to a fresh
// authorization flow and returns the original refresh error, so callers do
// not retry as if the refresh had succeeded.
func (f *Flow) RefreshAccessToken(ctx context.Context, serverURL string) error {
	refreshToken, ok := f.creds.RefreshToken()
	if !ok {
		return ErrNoRefreshToken
	}

	src := f.oauthConfig(serverURL).TokenSource(f.oauthContext(ctx),
		&oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		f.logger.Error("token refresh failed, falling back to authorization", "error", err)
		if initErr := f.InitiateAuthFlow(ctx, serverURL); initErr != nil {
			f.logger.Error("fallback authorization failed", "error", initErr)
		}
		return fmt.Errorf("token refresh failed: %w", err)
	}

	f.creds.SetAccessToken(tok.AccessToken)
	if tok.RefreshToken != "" {
		f.creds.SetRefreshToken(tok.RefreshToken)
	}
	f.logger.Info("access token refreshed", "server", serverURL)
	return nil
}

// HandleAuthError inspects a connection failure and reports whether the
// caller should retry the connect sequence now. Only auth-class failures are
// acted on: with a stored refresh token a refresh is attempted and success
// means retry; without one a fresh authorization flow is started (which
// navigates away) and the answer is no. Any other error returns false with
// no side effects.
func (f *Flow) HandleAuthError(ctx context.Context, serverURL string, err error) bool {
	if !transport.IsAuthError(err) {
		return false
	}

	if _, ok := f.creds.RefreshToken(); ok {
		if refreshErr := f.RefreshAccessToken(ctx, serverURL); refreshErr != nil {
			return false
		}
		return true
	}

	if initErr := f.InitiateAuthFlow(ctx, serverURL); initErr != nil {
		f.logger.Error("failed to initiate authorization flow", "error", initErr)
	}
	return false
}
