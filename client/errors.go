package client

import "errors"

var (
	// ErrNotConnected is returned when a request or notification is issued
	// before a session is established. No network call is made.
	ErrNotConnected = errors.New("not connected to an MCP server")

	// ErrRequestTimeout is returned when no response arrives within the
	// configured window. The in-flight call is aborted.
	ErrRequestTimeout = errors.New("request timed out")

	// ErrInvalidResponse is returned when a response does not match the
	// shape the caller expects.
	ErrInvalidResponse = errors.New("response failed validation")

	// ErrAuthRetryExceeded is returned internally when a refreshed token
	// still cannot establish a connection within the retry budget.
	ErrAuthRetryExceeded = errors.New("authentication retry limit reached")
)
