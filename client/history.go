package client

import (
	"encoding/json"
	"sync"
	"time"
)

// HistoryEntry records one outbound request or notification and its eventual
// outcome. Request and Response hold serialized snapshots taken at call time,
// so later mutation of the original payloads cannot rewrite history.
type HistoryEntry struct {
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Request json.RawMessage `json:"request"`

	// Exactly one of Response and Error is set once a request entry
	// settles; both stay empty for notifications.
	Response json.RawMessage `json:"response,omitempty"`
	Error    json.RawMessage `json:"error,omitempty"`

	IssuedAt  time.Time `json:"issuedAt"`
	SettledAt time.Time `json:"settledAt,omitempty"`
}

// Settled reports whether the entry's call has completed. Notification
// entries settle immediately with no response.
func (e *HistoryEntry) Settled() bool {
	return !e.SettledAt.IsZero()
}

// errorBody is the serialized error object recorded for failed exchanges.
type errorBody struct {
	Message string `json:"message"`
}

// history is the append-only exchange log. Entries are appended in call
// order and never reordered or deleted; each entry settles independently
// when its own call completes, so completion order may differ.
type history struct {
	mu      sync.Mutex
	entries []*HistoryEntry
}

// append records a new entry at issuance and returns it for later settling.
func (h *history) append(id int64, method string, request json.RawMessage) *HistoryEntry {
	entry := &HistoryEntry{
		ID:       id,
		Method:   method,
		Request:  request,
		IssuedAt: time.Now(),
	}
	h.mu.Lock()
	h.entries = append(h.entries, entry)
	h.mu.Unlock()
	return entry
}

// settleResponse fills in the serialized response for a completed call.
func (h *history) settleResponse(entry *HistoryEntry, response json.RawMessage) {
	h.mu.Lock()
	entry.Response = response
	entry.SettledAt = time.Now()
	h.mu.Unlock()
}

// settleError records a serialized error object carrying the error's message.
func (h *history) settleError(entry *HistoryEntry, err error) {
	body, _ := json.Marshal(errorBody{Message: err.Error()})
	h.mu.Lock()
	entry.Error = body
	entry.SettledAt = time.Now()
	h.mu.Unlock()
}

// settle marks a notification entry complete with no response.
func (h *history) settle(entry *HistoryEntry) {
	h.mu.Lock()
	entry.SettledAt = time.Now()
	h.mu.Unlock()
}

// snapshot returns a copy of the entries in issuance order.
func (h *history) snapshot() []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]HistoryEntry, len(h.entries))
	for i, e := range h.entries {
		out[i] = *e
	}
	return out
}

// size returns the number of recorded entries.
func (h *history) size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
