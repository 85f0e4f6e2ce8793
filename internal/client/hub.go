package client

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/lifecycle"
	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/logging"
	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/notification"
)

// AgentAPI is what the hub needs from the agent to answer client requests.
// Defined here so the agent package can depend on the hub without a cycle.
type AgentAPI interface {
	// TriggerSync drains the pending sync queue, reporting success.
	TriggerSync(ctx context.Context) bool
	// Version returns the active cache generation identifier.
	Version() string
	// PinAssets fetches each URL and stores it into the runtime namespace.
	// Per-asset failures must not abort the remaining assets.
	PinAssets(ctx context.Context, assets []string)
}

// Hub manages connected client processes and routes the typed message
// protocol between them and the agent.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	// done is closed when Run exits; pumps racing a shutdown select on it
	// instead of parking on an undrained unregister channel.
	done chan struct{}

	agent   AgentAPI
	tracker *lifecycle.Tracker

	// settleDelay is how long a freshly opened window gets before it is
	// assumed ready to receive a message.
	settleDelay time.Duration
}

// NewHub creates an empty hub. agent may be set later with SetAgent.
func NewHub(tracker *lifecycle.Tracker) *Hub {
	return &Hub{
		clients:     make(map[string]*Client),
		register:    make(chan *Client, 1),
		unregister:  make(chan *Client, 1),
		done:        make(chan struct{}),
		tracker:     tracker,
		settleDelay: 3 * time.Second,
	}
}

// SetAgent wires the agent after construction (hub and agent reference each
// other; the hub is built first).
func (h *Hub) SetAgent(a AgentAPI) {
	h.mu.Lock()
	h.agent = a
	h.mu.Unlock()
}

func (h *Hub) getAgent() AgentAPI {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.agent
}

// Run processes registrations until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.ID] = c
			h.mu.Unlock()
			logging.Infof("client %s connected (page %s)", c.ID, c.PageURL())
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c.ID]; ok {
				delete(h.clients, c.ID)
				c.Close()
			}
			h.mu.Unlock()
			logging.Infof("client %s disconnected", c.ID)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.Close()
		delete(h.clients, id)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) snapshot() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	return out
}

// Broadcast sends a message to every connected client.
func (h *Hub) Broadcast(msg *Message) {
	for _, c := range h.snapshot() {
		if err := c.Send(msg); err != nil {
			logging.Warnf("broadcast to %s: %v", c.ID, err)
		}
	}
}

// SyncCompleted implements syncq.Notifier: tell clients a drain finished.
func (h *Hub) SyncCompleted(ts time.Time) {
	h.Broadcast(NewMessage(MsgSyncCompleted, map[string]any{
		"timestamp": ts.UnixMilli(),
	}))
}

// AgentUpdated tells clients a new cache generation took over.
func (h *Hub) AgentUpdated(version string) {
	h.Broadcast(NewMessage(MsgAgentUpdated, map[string]any{
		"version": version,
	}))
}

// handleMessage dispatches one inbound message. Kinds with replies answer on
// the same connection; fire-and-forget kinds produce none.
func (h *Hub) handleMessage(c *Client, msg *Message) {
	switch msg.Type {
	case MsgPing:
		h.reply(c, NewMessage(MsgPong, nil))

	case MsgPage:
		if u, ok := msg.Data["url"].(string); ok {
			c.setPageURL(u)
		}

	case MsgGetVersion:
		version := ""
		if a := h.getAgent(); a != nil {
			version = a.Version()
		}
		h.reply(c, NewMessage(MsgVersionInfo, map[string]any{
			"version":   version,
			"timestamp": time.Now().UnixMilli(),
		}))

	case MsgTriggerSync:
		a := h.getAgent()
		if a == nil {
			h.reply(c, NewMessage(MsgSyncResult, map[string]any{
				"success":   false,
				"timestamp": time.Now().UnixMilli(),
			}))
			return
		}
		// The drain can block on backoff; keep it off the read pump.
		h.tracker.Go("client sync", func() {
			ok := a.TriggerSync(context.Background())
			h.reply(c, NewMessage(MsgSyncResult, map[string]any{
				"success":   ok,
				"timestamp": time.Now().UnixMilli(),
			}))
		})

	case MsgPinAssets:
		assets := stringList(msg.Data["assets"])
		if len(assets) == 0 {
			return
		}
		a := h.getAgent()
		if a == nil {
			return
		}
		h.tracker.Go("pin assets", func() {
			a.PinAssets(context.Background(), assets)
		})

	default:
		logging.Infof("client %s sent unknown message type %q", c.ID, msg.Type)
	}
}

func (h *Hub) reply(c *Client, msg *Message) {
	if err := c.Send(msg); err != nil {
		logging.Warnf("reply %s to %s: %v", msg.Type, c.ID, err)
	}
}

// RouteClick delivers a resolved notification click: focus the client window
// already showing the target URL, or open a new one and notify it after a
// settle delay (a fresh window is not guaranteed ready immediately).
func (h *Hub) RouteClick(action string, data notification.Data, targetURL string) {
	notice := NewMessage(MsgNotificationClicked, map[string]any{
		"action": action,
		"data":   data,
	})

	if c := h.findByURL(targetURL); c != nil {
		h.reply(c, NewMessage(MsgFocusWindow, map[string]any{"url": targetURL}))
		h.reply(c, notice)
		return
	}

	clients := h.snapshot()
	if len(clients) == 0 {
		logging.Warnf("click routing: no connected clients for %s", targetURL)
		return
	}
	h.reply(clients[0], NewMessage(MsgOpenWindow, map[string]any{"url": targetURL}))
	h.tracker.Go("click notice", func() {
		time.Sleep(h.settleDelay)
		h.Broadcast(notice)
	})
}

// findByURL returns a client whose page matches the target exactly, or one
// sharing the same path ignoring query.
func (h *Hub) findByURL(target string) *Client {
	targetU, err := url.Parse(target)
	if err != nil {
		return nil
	}
	var pathMatch *Client
	for _, c := range h.snapshot() {
		page := c.PageURL()
		if page == "" {
			continue
		}
		if page == target {
			return c
		}
		if pageU, err := url.Parse(page); err == nil && pageU.Path == targetU.Path {
			if pathMatch == nil {
				pathMatch = c
			}
		}
	}
	return pathMatch
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
