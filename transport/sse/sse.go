// Package sse implements the client side of the inspector's Server-Sent
// Events transport.
//
// The transport subscribes to the backend proxy's /sse endpoint, which relays
// a single MCP server session. Transport selection (a local stdio process or a
// remote SSE server) is carried in the subscription URL's query parameters;
// the proxy owns the far side of the wire. Outbound messages are POSTed to
// the endpoint the proxy announces on the stream.
package sse

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/segun/mcp-inspector/transport"
)

// DefaultEventsPath is the proxy path the stream subscription is sent to.
const DefaultEventsPath = "/sse"

// Transport kinds accepted by the proxy.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// Params selects the server the proxy should bridge to.
type Params struct {
	// TransportType is one of TransportStdio or TransportSSE.
	TransportType string

	// Command, Args and Env describe the local process for stdio transports.
	Command string
	Args    []string
	Env     map[string]string

	// URL is the remote server address for sse transports.
	URL string
}

// Endpoint builds the proxy-facing subscription URL for the given transport
// selection. Query parameters are emitted in a fixed order: transportType,
// then command/args/env for stdio, or url for sse.
func Endpoint(proxyAddr string, params Params) (string, error) {
	base := strings.TrimSuffix(proxyAddr, "/")
	if !strings.HasSuffix(base, DefaultEventsPath) {
		base += DefaultEventsPath
	}

	var q strings.Builder
	q.WriteString("transportType=")
	q.WriteString(url.QueryEscape(params.TransportType))

	switch params.TransportType {
	case TransportStdio:
		env := params.Env
		if env == nil {
			env = map[string]string{}
		}
		envJSON, err := json.Marshal(env)
		if err != nil {
			return "", fmt.Errorf("failed to encode environment: %w", err)
		}
		q.WriteString("&command=")
		q.WriteString(url.QueryEscape(params.Command))
		q.WriteString("&args=")
		q.WriteString(url.QueryEscape(strings.Join(params.Args, " ")))
		q.WriteString("&env=")
		q.WriteString(url.QueryEscape(string(envJSON)))
	case TransportSSE:
		q.WriteString("&url=")
		q.WriteString(url.QueryEscape(params.URL))
	default:
		return "", fmt.Errorf("unsupported transport type: %q", params.TransportType)
	}

	return base + "?" + q.String(), nil
}

// Transport implements transport.Transport over an SSE subscription plus
// HTTP POSTs for outbound messages.
type Transport struct {
	transport.BaseTransport

	url     string
	headers transport.HeaderProvider
	client  *http.Client

	connected atomic.Bool
	postURL   atomic.Pointer[string]

	ctx    context.Context
	cancel context.CancelFunc
	doneCh chan struct{}
}

// Option configures a Transport.
type Option func(*Transport)

// WithHeaderProvider sets the header provider consulted on every outbound
// request, including the stream subscription.
func WithHeaderProvider(p transport.HeaderProvider) Option {
	return func(t *Transport) {
		t.headers = p
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) {
		t.client = c
	}
}

// NewTransport creates a client SSE transport subscribed to the given URL.
func NewTransport(url string, opts ...Option) *Transport {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		url:    url,
		client: &http.Client{},
		ctx:    ctx,
		cancel: cancel,
		doneCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// URL returns the subscription URL the transport was built with.
func (t *Transport) URL() string {
	return t.url
}

func (t *Transport) applyHeaders(req *http.Request) {
	if t.headers == nil {
		return
	}
	for key, values := range t.headers() {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
}

// Start opens the event stream. It blocks until the subscription is accepted
// or rejected, then keeps reading events in the background.
func (t *Transport) Start() error {
	req, err := http.NewRequestWithContext(t.ctx, http.MethodGet, t.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	t.applyHeaders(req)

	t.GetLogger().Debug("subscribing to event stream", "url", t.url)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("stream subscription failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return &transport.StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		resp.Body.Close()
		return fmt.Errorf("server did not return an event stream (Content-Type %q)", ct)
	}

	t.connected.Store(true)
	go t.readLoop(resp.Body)
	return nil
}

// readLoop parses SSE events until the stream closes or Stop is called.
func (t *Transport) readLoop(body io.ReadCloser) {
	defer body.Close()
	defer t.connected.Store(false)

	reader := bufio.NewReader(body)
	var buf bytes.Buffer
	var eventType string

	for {
		select {
		case <-t.doneCh:
			return
		default:
		}

		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err != io.EOF {
				t.GetLogger().Debug("error reading event stream", "error", err)
			}
			return
		}

		line = bytes.TrimSpace(line)

		// Comment lines keep the connection alive.
		if bytes.HasPrefix(line, []byte(":")) {
			continue
		}

		if bytes.HasPrefix(line, []byte("event:")) {
			eventType = string(bytes.TrimSpace(bytes.TrimPrefix(line, []byte("event:"))))
			continue
		}

		if bytes.HasPrefix(line, []byte("data:")) {
			buf.Write(bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:"))))
			continue
		}

		if len(line) == 0 && buf.Len() > 0 {
			msg := make([]byte, buf.Len())
			copy(msg, buf.Bytes())
			buf.Reset()

			switch eventType {
			case "endpoint":
				t.handleEndpointEvent(msg)
			case "message", "":
				if err := t.HandleMessage(msg); err != nil {
					t.GetLogger().Debug("dropping inbound message", "error", err)
				}
			default:
				t.GetLogger().Debug("ignoring event", "type", eventType)
			}
			eventType = ""
		}
	}
}

// handleEndpointEvent records the POST endpoint announced by the proxy,
// resolving relative endpoints against the subscription URL.
func (t *Transport) handleEndpointEvent(msg []byte) {
	endpoint := string(msg)

	base, err := url.Parse(t.url)
	if err == nil {
		if ref, err := url.Parse(endpoint); err == nil {
			endpoint = base.ResolveReference(ref).String()
		}
	}

	t.postURL.Store(&endpoint)
	t.GetLogger().Debug("received message endpoint", "endpoint", endpoint)
	t.Debug("endpoint: " + endpoint)
}

// WaitForEndpoint blocks until the proxy has announced the POST endpoint or
// the timeout elapses.
func (t *Transport) WaitForEndpoint(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if t.postURL.Load() != nil {
			return nil
		}
		select {
		case <-t.doneCh:
			return errors.New("transport stopped")
		case <-time.After(50 * time.Millisecond):
		}
	}
	return errors.New("timed out waiting for message endpoint")
}

// Send posts one outbound message to the announced endpoint.
func (t *Transport) Send(message []byte) ([]byte, error) {
	return t.SendWithContext(t.ctx, message)
}

// SendWithContext posts one outbound message to the announced endpoint,
// aborting the in-flight request when ctx is done.
func (t *Transport) SendWithContext(ctx context.Context, message []byte) ([]byte, error) {
	if !t.connected.Load() {
		return nil, errors.New("not connected to event stream")
	}

	endpointPtr := t.postURL.Load()
	if endpointPtr == nil {
		return nil, errors.New("no message endpoint announced yet")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, *endpointPtr, bytes.NewReader(message))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	t.applyHeaders(req)

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &transport.StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// Stop closes the stream and releases the transport's resources.
func (t *Transport) Stop() error {
	if !t.connected.Load() {
		t.cancel()
		return nil
	}
	t.connected.Store(false)
	select {
	case <-t.doneCh:
	default:
		close(t.doneCh)
	}
	t.cancel()
	return nil
}

// Connected reports whether the event stream is currently open.
func (t *Transport) Connected() bool {
	return t.connected.Load()
}
