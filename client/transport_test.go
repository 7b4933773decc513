package client

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segun/mcp-inspector/mcp"
	"github.com/segun/mcp-inspector/transport/sse"
)

func TestBearerHeaderProvider(t *testing.T) {
	provider := BearerHeaderProvider(func() (string, bool) {
		return "token-abc", true
	})
	assert.Equal(t, "Bearer token-abc", provider().Get("Authorization"))

	empty := BearerHeaderProvider(func() (string, bool) {
		return "", false
	})
	assert.Empty(t, empty().Get("Authorization"))
}

// newMessageSession builds an sseSession whose handleMessage can be driven
// directly, without a live stream.
func newMessageSession() *sseSession {
	return newSSESession(sse.NewTransport("http://localhost:0/sse"),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSessionClassifiesServerRequest(t *testing.T) {
	s := newMessageSession()

	var mu sync.Mutex
	var requests []mcp.ServerRequest
	var notifications []mcp.ServerNotification
	s.SetRequestHandler(func(r mcp.ServerRequest) {
		mu.Lock()
		requests = append(requests, r)
		mu.Unlock()
	})
	s.SetNotificationHandler(func(n mcp.ServerNotification) {
		mu.Lock()
		notifications = append(notifications, n)
		mu.Unlock()
	})

	// ID plus method is a server-initiated request.
	s.handleMessage([]byte(`{"jsonrpc":"2.0","id":4,"method":"sampling/createMessage","params":{"maxTokens":10}}`))
	// Method alone is a notification.
	s.handleMessage([]byte(`{"jsonrpc":"2.0","method":"notifications/progress","params":{"progressToken":"t","progress":1}}`))
	// Garbage is dropped without reaching either handler.
	s.handleMessage([]byte(`not json`))
	s.handleMessage([]byte(`{"jsonrpc":"2.0"}`))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, requests, 1)
	assert.Equal(t, int64(4), requests[0].ID)
	assert.Equal(t, MethodSamplingCreateMessage, requests[0].Method)
	require.Len(t, notifications, 1)
	assert.Equal(t, mcp.MethodProgress, notifications[0].Method)
}

func TestSessionResolvesPendingByID(t *testing.T) {
	s := newMessageSession()

	first := make(chan []byte, 1)
	second := make(chan []byte, 1)
	s.mu.Lock()
	s.pending[1] = first
	s.pending[2] = second
	s.mu.Unlock()

	// Responses arrive out of order; each reaches its own waiter.
	s.handleMessage([]byte(`{"jsonrpc":"2.0","id":2,"result":{"n":2}}`))
	s.handleMessage([]byte(`{"jsonrpc":"2.0","id":1,"result":{"n":1}}`))

	select {
	case msg := <-first:
		var env inboundEnvelope
		require.NoError(t, json.Unmarshal(msg, &env))
		require.NotNil(t, env.ID)
		assert.Equal(t, int64(1), *env.ID)
	case <-time.After(time.Second):
		t.Fatal("first waiter never resolved")
	}
	select {
	case msg := <-second:
		var env inboundEnvelope
		require.NoError(t, json.Unmarshal(msg, &env))
		assert.Equal(t, int64(2), *env.ID)
	case <-time.After(time.Second):
		t.Fatal("second waiter never resolved")
	}

	// A response for an unknown ID is dropped, not delivered to anyone.
	s.handleMessage([]byte(`{"jsonrpc":"2.0","id":99,"result":{}}`))
}

func TestDisconnectRejectsWaiters(t *testing.T) {
	s := newMessageSession()

	waiting := make(chan []byte, 1)
	s.mu.Lock()
	s.pending[7] = waiting
	s.mu.Unlock()

	require.NoError(t, s.Disconnect())

	select {
	case _, open := <-waiting:
		assert.False(t, open, "pending channels must be closed on disconnect")
	case <-time.After(time.Second):
		t.Fatal("waiter never released")
	}
}

func TestSessionConnectFailureStopsStream(t *testing.T) {
	streamClosed := make(chan struct{})
	// The proxy accepts the subscription but never announces an endpoint, so
	// Connect fails after the stream has already opened.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
		close(streamClosed)
	}))
	defer srv.Close()

	s := newSSESession(sse.NewTransport(srv.URL),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.endpointWait = 100 * time.Millisecond

	err := s.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "message endpoint")

	select {
	case <-streamClosed:
	case <-time.After(2 * time.Second):
		t.Fatal("failed connect left the event stream subscription open")
	}
	assert.False(t, s.inner.Connected())
}

func TestSessionConnectHonorsContext(t *testing.T) {
	// Nothing listens on the subscription URL, so Start blocks in the HTTP
	// client until the context expires.
	s := newMessageSession()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := s.Connect(ctx)
	require.Error(t, err)
}

func TestSSESessionTransportFactoryBuildsEndpoint(t *testing.T) {
	factory := NewSSESessionTransport(slog.New(slog.NewTextHandler(io.Discard, nil)))

	built, err := factory("http://localhost:6277",
		Target{Kind: TransportStdio, Command: "echo", Args: []string{"hello"}},
		func() http.Header { return http.Header{} })
	require.NoError(t, err)

	session, ok := built.(*sseSession)
	require.True(t, ok)
	assert.Equal(t,
		"http://localhost:6277/sse?transportType=stdio&command=echo&args=hello&env=%7B%7D",
		session.inner.URL())
}

func TestSSESessionTransportFactoryRejectsUnknownKind(t *testing.T) {
	factory := NewSSESessionTransport(slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := factory("http://localhost:6277",
		Target{Kind: TransportKind("carrier-pigeon")},
		func() http.Header { return http.Header{} })
	require.Error(t, err)
}
