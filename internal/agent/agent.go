// Package agent owns the explicit state of the offline agent and dispatches
// lifecycle events to the components that handle them.
package agent

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/cache"
	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/classify"
	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/lifecycle"
	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/logging"
	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/notification"
	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/strategy"
	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/syncq"
)

// Displayer surfaces a built notification to the user. The production
// implementation shells out to the native notification system; tests stub it.
type Displayer interface {
	Display(p notification.Payload)
}

// DisplayFunc adapts a function to Displayer.
type DisplayFunc func(p notification.Payload)

func (f DisplayFunc) Display(p notification.Payload) { f(p) }

// ClickRouter delivers a resolved click to connected client windows.
// Implemented by the client hub.
type ClickRouter interface {
	RouteClick(action string, data notification.Data, targetURL string)
	AgentUpdated(version string)
}

// Agent holds all mutable agent state explicitly: the live cache generation,
// the sync queue, and the collaborators each event handler needs. One Agent
// instance is the single owner; handlers receive it, never ambient globals.
type Agent struct {
	Cache      *cache.Manager
	Classifier *classify.Classifier
	Strategies *strategy.Engine
	Sync       *syncq.Coordinator
	Tracker    *lifecycle.Tracker

	display Displayer
	router  ClickRouter

	precacheManifest []string
	maxRuntime       int
}

// Options configures a new Agent.
type Options struct {
	Cache            *cache.Manager
	Classifier       *classify.Classifier
	Strategies       *strategy.Engine
	Sync             *syncq.Coordinator
	Tracker          *lifecycle.Tracker
	Display          Displayer
	Router           ClickRouter
	PrecacheManifest []string
	MaxRuntime       int
}

// New assembles an agent from its components.
func New(opts Options) *Agent {
	return &Agent{
		Cache:            opts.Cache,
		Classifier:       opts.Classifier,
		Strategies:       opts.Strategies,
		Sync:             opts.Sync,
		Tracker:          opts.Tracker,
		display:          opts.Display,
		router:           opts.Router,
		precacheManifest: opts.PrecacheManifest,
		maxRuntime:       opts.MaxRuntime,
	}
}

// EventKind enumerates the lifecycle events the agent consumes.
type EventKind int

const (
	EventInstall EventKind = iota
	EventActivate
	EventPush
	EventNotificationClick
	EventSync
)

// Event is the typed union of lifecycle events. Exactly the fields for the
// given kind are set.
type Event struct {
	Kind EventKind

	// Push payload (EventPush).
	Push []byte

	// Click action and data bag (EventNotificationClick).
	ClickAction string
	ClickData   notification.Data
}

// Dispatch routes an event to its handler by explicit match.
func (a *Agent) Dispatch(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case EventInstall:
		return a.Install(ctx)
	case EventActivate:
		return a.Activate(ctx)
	case EventPush:
		a.HandlePush(ev.Push)
		return nil
	case EventNotificationClick:
		a.HandleClick(ev.ClickAction, ev.ClickData)
		return nil
	case EventSync:
		if !a.TriggerSync(ctx) {
			return fmt.Errorf("sync drain did not complete")
		}
		return nil
	default:
		return fmt.Errorf("unknown event kind %d", ev.Kind)
	}
}

// Install seeds the precache namespace from the fixed manifest. Individual
// asset failures are logged and do not abort the rest of the seed.
func (a *Agent) Install(ctx context.Context) error {
	logging.Infof("install: seeding %d precache assets", len(a.precacheManifest))
	var failed int
	for _, asset := range a.precacheManifest {
		req := strategy.Request{Method: http.MethodGet, URL: asset}
		res, err := a.Strategies.Fetcher.Fetch(ctx, req)
		if err != nil {
			logging.Warnf("install: fetch %s: %v", asset, err)
			failed++
			continue
		}
		if res.Snap.Status != http.StatusOK || !res.SameOrigin {
			logging.Warnf("install: skip %s (status %d, same-origin %v)", asset, res.Snap.Status, res.SameOrigin)
			failed++
			continue
		}
		key := cache.Key(http.MethodGet, asset)
		if err := a.Cache.PutPrecache(ctx, key, res.Snap); err != nil {
			failed++
		}
	}
	if failed == len(a.precacheManifest) && failed > 0 {
		return fmt.Errorf("install: all %d precache assets failed", failed)
	}
	return nil
}

// Activate retires every cache namespace except the live generation's two
// and announces the new generation to clients.
func (a *Agent) Activate(ctx context.Context) error {
	dropped, err := a.Cache.Activate(ctx)
	if err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	if len(dropped) > 0 {
		logging.Infof("activate: dropped stale namespaces %v", dropped)
	}
	if a.router != nil {
		a.router.AgentUpdated(a.Version())
	}
	return nil
}

// HandleFetch classifies a request and answers it with the matching
// strategy. When nothing can answer, it degrades to the synthetic offline
// response rather than surfacing the raw failure.
func (a *Agent) HandleFetch(ctx context.Context, req strategy.Request, navigation bool) (*cache.Snapshot, classify.Category) {
	u, err := urlOf(req.URL)
	if err != nil {
		logging.Warnf("fetch: bad url %q: %v", req.URL, err)
		return strategy.OfflineSnapshot(), classify.Other
	}
	cat := a.Classifier.Classify(classify.Request{
		Method:     req.Method,
		URL:        u,
		Navigation: navigation,
	})

	snap, err := a.Strategies.Do(ctx, req, cat)
	if err != nil || snap == nil {
		if err != nil {
			logging.Infof("fetch %s %s (%s): %v", req.Method, req.URL, cat, err)
		}
		return strategy.OfflineSnapshot(), cat
	}
	return snap, cat
}

// HandlePush builds a notification from the raw push payload and displays
// it. Build degrades internally; display errors are the displayer's own
// concern. A push always yields some visible notification.
func (a *Agent) HandlePush(raw []byte) {
	p := notification.Build(raw)
	a.Tracker.Go("notification display", func() {
		if a.display != nil {
			a.display.Display(p)
		}
	})
}

// HandleClick resolves a notification click and routes it to client windows.
// A dismiss is terminal: no navigation and no notice.
func (a *Agent) HandleClick(action string, data notification.Data) {
	outcome := notification.ResolveClick(action, data)
	if !outcome.Navigate {
		return
	}
	if a.router != nil {
		a.router.RouteClick(action, data, outcome.URL)
	}
}

// TriggerSync drains the pending queue. Implements client.AgentAPI.
func (a *Agent) TriggerSync(ctx context.Context) bool {
	return a.Sync.Drain(ctx)
}

// Version returns the active cache generation identifier.
// Implements client.AgentAPI.
func (a *Agent) Version() string {
	return a.Cache.Version()
}

// PinAssets fetches each URL and stores it into the runtime namespace.
// Per-asset failures are logged and never abort the remaining assets.
// Implements client.AgentAPI.
func (a *Agent) PinAssets(ctx context.Context, assets []string) {
	for _, asset := range assets {
		req := strategy.Request{Method: http.MethodGet, URL: asset}
		res, err := a.Strategies.Fetcher.Fetch(ctx, req)
		if err != nil {
			logging.Warnf("pin-assets: fetch %s: %v", asset, err)
			continue
		}
		if res.Snap.Status != http.StatusOK {
			logging.Warnf("pin-assets: skip %s (status %d)", asset, res.Snap.Status)
			continue
		}
		key := cache.Key(http.MethodGet, asset)
		if a.Cache.PutRuntime(ctx, key, res.Snap) == nil {
			cache.Trim(ctx, a.Cache.Store(), a.Cache.RuntimeNamespace(), a.maxRuntime)
		}
	}
}

// EnqueueWrite adds a pending write item for the next sync drain.
func (a *Agent) EnqueueWrite(ctx context.Context, item syncq.Item) error {
	return a.Sync.Enqueue(ctx, item)
}

// Shutdown waits for outstanding detached work: the processing lifetime of
// every event extends until its asynchronous side effects complete.
func (a *Agent) Shutdown(timeout time.Duration) bool {
	return a.Tracker.WaitTimeout(timeout)
}
