// Package broadcast defines the port for pushing real-time supervision
// events to connected clients.
package broadcast

import "context"

// Broadcaster sends a typed event to all connected clients.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}
