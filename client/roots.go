package client

import (
	"context"

	"github.com/segun/mcp-inspector/mcp"
)

// MethodRootsListChanged is the notification announcing a change in the
// client's root set.
const MethodRootsListChanged = "notifications/roots/list_changed"

// handleRootsList answers a roots/list request synchronously from the
// caller-supplied provider. Without a provider the answer is an empty list,
// matching the declared listChanged capability with nothing to list yet.
func (c *Connection) handleRootsList(session *Session, req mcp.ServerRequest) {
	roots := []mcp.Root{}
	if c.rootsProvider != nil {
		if provided := c.rootsProvider(); provided != nil {
			roots = provided
		}
	}

	if err := c.sendRPCResult(session, req.ID, map[string]interface{}{"roots": roots}); err != nil {
		c.logger.Debug("failed to answer roots/list", "error", err)
	}
}

// NotifyRootsListChanged tells the server the provider's root set changed.
// The notification is recorded in history like any other outbound call.
func (c *Connection) NotifyRootsListChanged(ctx context.Context) error {
	return c.SendNotification(ctx, &mcp.Notification{Method: MethodRootsListChanged})
}
