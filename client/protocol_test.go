package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segun/mcp-inspector/mcp"
)

// connectedConn returns a connection with an established mock session.
func connectedConn(t *testing.T, mt *mockTransport) *Connection {
	t.Helper()
	factory := &mockFactory{transport: []*mockTransport{mt}}
	conn := NewConnection("http://localhost:6277",
		Target{Kind: TransportStdio, Command: "srv"},
		WithTransportFactory(factory.factory),
	)
	conn.Connect(context.Background())
	require.Equal(t, StatusConnected, conn.Status())
	return conn
}

// recordingToaster captures user-facing failure notifications.
type recordingToaster struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingToaster) Toast(_, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
}

func (r *recordingToaster) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

func TestMakeRequestNotConnected(t *testing.T) {
	toaster := &recordingToaster{}
	factory := &mockFactory{}
	conn := NewConnection("http://localhost:6277",
		Target{Kind: TransportStdio, Command: "srv"},
		WithTransportFactory(factory.factory),
		WithToaster(toaster),
	)

	var result map[string]interface{}
	err := conn.MakeRequest(context.Background(), &mcp.Request{Method: "tools/list"}, &result)

	require.ErrorIs(t, err, ErrNotConnected)
	assert.Empty(t, factory.builtTransports(), "no network call may happen")
	assert.Empty(t, conn.History(), "unissued calls are not recorded")
	require.Len(t, toaster.all(), 1)
	assert.Contains(t, toaster.all()[0], "not connected")
}

func TestMakeRequestRecordsResponseInHistory(t *testing.T) {
	mt := &mockTransport{}
	conn := connectedConn(t, mt)
	mt.respond = func(id int64, _ []byte) ([]byte, error) {
		return []byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":{"tools":[]}}`, id)), nil
	}

	var result map[string]interface{}
	err := conn.MakeRequest(context.Background(), &mcp.Request{Method: "tools/list"}, &result)
	require.NoError(t, err)
	assert.Contains(t, result, "tools")

	entries := conn.History()
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, "tools/list", entry.Method)
	assert.True(t, entry.Settled())
	assert.JSONEq(t, `{"tools":[]}`, string(entry.Response))
	assert.Empty(t, entry.Error)

	var recorded map[string]interface{}
	require.NoError(t, json.Unmarshal(entry.Request, &recorded))
	assert.Equal(t, "tools/list", recorded["method"])
}

func TestMakeRequestTimeout(t *testing.T) {
	mt := &mockTransport{}
	toaster := &recordingToaster{}
	conn := connectedConn(t, mt)
	// Block only the request under test; the handshake inside connectedConn
	// must complete normally.
	mt.blockOnCtx = true
	conn.toaster = toaster

	start := time.Now()
	err := conn.MakeRequest(context.Background(), &mcp.Request{Method: "tools/call"}, nil,
		WithTimeout(50*time.Millisecond))
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrRequestTimeout)
	assert.Less(t, elapsed, 5*time.Second, "call must abort at its deadline")

	entries := conn.History()
	require.Len(t, entries, 1, "exactly one history entry for the timed-out call")
	assert.True(t, entries[0].Settled())
	assert.Empty(t, entries[0].Response, "a timed-out call never settles with a response")
	assert.Contains(t, string(entries[0].Error), "timed out")
	require.Len(t, toaster.all(), 1)
}

func TestMakeRequestServerError(t *testing.T) {
	mt := &mockTransport{}
	conn := connectedConn(t, mt)
	mt.respond = func(id int64, _ []byte) ([]byte, error) {
		return []byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"error":{"code":-32601,"message":"no such method"}}`, id)), nil
	}

	err := conn.MakeRequest(context.Background(), &mcp.Request{Method: "nope"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such method")

	entries := conn.History()
	require.Len(t, entries, 1)
	assert.Contains(t, string(entries[0].Error), "no such method")
}

func TestMakeRequestValidationFailure(t *testing.T) {
	mt := &mockTransport{}
	conn := connectedConn(t, mt)
	mt.respond = func(id int64, _ []byte) ([]byte, error) {
		return []byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":{"count":"not-a-number"}}`, id)), nil
	}

	var result struct {
		Count int `json:"count"`
	}
	err := conn.MakeRequest(context.Background(), &mcp.Request{Method: "stats"}, &result)
	require.ErrorIs(t, err, ErrInvalidResponse)

	entries := conn.History()
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].Error)
}

func TestSendNotificationRecordsHistoryWithoutResponse(t *testing.T) {
	mt := &mockTransport{}
	conn := connectedConn(t, mt)

	err := conn.SendNotification(context.Background(), &mcp.Notification{
		Method: MethodRootsListChanged,
	})
	require.NoError(t, err)

	entries := conn.History()
	require.Len(t, entries, 1)
	assert.Equal(t, MethodRootsListChanged, entries[0].Method)
	assert.True(t, entries[0].Settled())
	assert.Empty(t, entries[0].Response)
	assert.Empty(t, entries[0].Error)
}

func TestSendNotificationNotConnected(t *testing.T) {
	conn := NewConnection("http://localhost:6277",
		Target{Kind: TransportStdio, Command: "srv"},
		WithTransportFactory((&mockFactory{}).factory),
	)

	err := conn.SendNotification(context.Background(), &mcp.Notification{Method: "x"})
	require.ErrorIs(t, err, ErrNotConnected)
	assert.Empty(t, conn.History())
}

func TestHistoryPreservesIssuanceOrderAcrossConcurrentCalls(t *testing.T) {
	mt := &mockTransport{}
	conn := connectedConn(t, mt)

	// Responses resolve in reverse: the first request settles last.
	gates := map[string]chan struct{}{
		"first":  make(chan struct{}),
		"second": make(chan struct{}),
	}
	mt.respond = func(id int64, message []byte) ([]byte, error) {
		var req struct {
			Method string `json:"method"`
		}
		if err := json.Unmarshal(message, &req); err != nil {
			return nil, err
		}
		<-gates[req.Method]
		return []byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":{"method":%q}}`, id, req.Method)), nil
	}

	issued := make(chan string, 2)
	var wg sync.WaitGroup
	call := func(method string) {
		defer wg.Done()
		_ = conn.MakeRequest(context.Background(), &mcp.Request{Method: method}, nil)
	}

	wg.Add(2)
	go func() {
		issued <- "first"
		call("first")
	}()
	// Make issuance order deterministic.
	<-issued
	for {
		if conn.history.size() == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	go call("second")
	for {
		if conn.history.size() == 2 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	close(gates["second"])
	close(gates["first"])
	wg.Wait()

	entries := conn.History()
	require.Len(t, entries, 2, "one entry per issued call")
	assert.Equal(t, "first", entries[0].Method, "entries stay in issuance order")
	assert.Equal(t, "second", entries[1].Method)
	assert.True(t, entries[0].Settled())
	assert.True(t, entries[1].Settled())
	assert.JSONEq(t, `{"method":"first"}`, string(entries[0].Response))
	assert.JSONEq(t, `{"method":"second"}`, string(entries[1].Response))
}
