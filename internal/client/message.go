// Package client routes typed messages between the agent and connected
// client processes over WebSocket.
package client

import "time"

// Inbound message kinds.
const (
	// MsgTriggerSync asks the agent to drain the sync queue now.
	MsgTriggerSync = "trigger-sync"
	// MsgGetVersion asks for the active cache generation.
	MsgGetVersion = "get-version"
	// MsgPinAssets asks the agent to fetch and store a list of asset URLs.
	MsgPinAssets = "pin-assets"
	// MsgPage lets a client report the page URL it currently displays,
	// which click routing matches against.
	MsgPage = "page"
	// MsgPing is a liveness probe answered with pong.
	MsgPing = "ping"
)

// Outbound message kinds.
const (
	MsgSyncResult          = "sync-result"
	MsgVersionInfo         = "version-info"
	MsgAgentUpdated        = "agent-updated"
	MsgSyncCompleted       = "sync-completed"
	MsgNotificationClicked = "notification-clicked"
	MsgFocusWindow         = "focus-window"
	MsgOpenWindow          = "open-window"
	MsgPong                = "pong"
)

// Message is the wire envelope for both directions. The kind determines
// whether a reply is expected and the shape of Data.
type Message struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewMessage creates a message stamped with the current time.
func NewMessage(kind string, data map[string]any) *Message {
	return &Message{Type: kind, Data: data, Timestamp: time.Now()}
}
