package mcp

import (
	"encoding/json"
	"fmt"
)

// MethodProgress is the method name of progress notifications.
const MethodProgress = "notifications/progress"

// MethodStderr is the method name of diagnostic output forwarded from a
// proxied stdio server's standard error stream.
const MethodStderr = "notifications/stderr"

// ProgressParams is the payload of a notifications/progress message.
type ProgressParams struct {
	ProgressToken string   `json:"progressToken"`
	Progress      float64  `json:"progress"`
	Total         *float64 `json:"total,omitempty"`
	Message       string   `json:"message,omitempty"`
}

// ParseProgress decodes progress params from a raw notification payload.
func ParseProgress(params json.RawMessage) (*ProgressParams, error) {
	var p ProgressParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid progress params: %w", err)
	}
	return &p, nil
}

// Percentage returns the completion percentage when a total is known.
func (p *ProgressParams) Percentage() *float64 {
	if p.Total == nil || *p.Total == 0 {
		return nil
	}
	pct := (p.Progress / *p.Total) * 100
	if pct > 100 {
		pct = 100
	}
	return &pct
}

// Complete reports whether progress has reached its total.
func (p *ProgressParams) Complete() bool {
	return p.Total != nil && p.Progress >= *p.Total
}

// StderrParams is the payload of a notifications/stderr message.
type StderrParams struct {
	Content string `json:"content"`
}

// ParseStderr decodes stderr params from a raw notification payload.
func ParseStderr(params json.RawMessage) (*StderrParams, error) {
	var p StderrParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid stderr params: %w", err)
	}
	return &p, nil
}
