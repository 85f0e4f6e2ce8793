package agent

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/cache"
	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/classify"
	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/lifecycle"
	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/notification"
	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/retry"
	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/strategy"
	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/syncq"
)

type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]*strategy.Response
	errs      map[string]error
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		responses: make(map[string]*strategy.Response),
		errs:      make(map[string]error),
	}
}

func (f *fakeFetcher) serve(url, body string, status int) {
	h := make(http.Header)
	h.Set("Content-Type", "text/plain")
	f.responses[url] = &strategy.Response{
		Snap:       &cache.Snapshot{Status: status, Header: h, Body: []byte(body)},
		SameOrigin: true,
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, req strategy.Request) (*strategy.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[req.URL]; ok {
		return nil, err
	}
	if res, ok := f.responses[req.URL]; ok {
		return &strategy.Response{Snap: res.Snap.Clone(), SameOrigin: res.SameOrigin}, nil
	}
	return nil, errors.New("no route for " + req.URL)
}

type recordingRouter struct {
	mu       sync.Mutex
	clicks   []string
	versions []string
}

func (r *recordingRouter) RouteClick(action string, data notification.Data, targetURL string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clicks = append(r.clicks, targetURL)
}

func (r *recordingRouter) AgentUpdated(version string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.versions = append(r.versions, version)
}

func newTestAgent(t *testing.T, f strategy.Fetcher, manifest []string) (*Agent, *cache.Manager, *recordingRouter, chan notification.Payload) {
	t.Helper()
	mgr := cache.NewManager(cache.NewMemoryStore(), "v1")
	tracker := lifecycle.NewTracker()
	engine := strategy.NewEngine(mgr, f, tracker, 10, 200*time.Millisecond)
	noSleep := retry.NewWithSleep(func(context.Context, time.Duration) error { return nil })
	coord := syncq.NewCoordinator(syncq.NewMemoryQueue(), "http://unreachable.invalid/api/sync", noSleep, 1, nil)
	router := &recordingRouter{}
	displayed := make(chan notification.Payload, 4)

	ag := New(Options{
		Cache:      mgr,
		Classifier: &classify.Classifier{StaticExts: []string{".css", ".js"}},
		Strategies: engine,
		Sync:       coord,
		Tracker:    tracker,
		Display: DisplayFunc(func(p notification.Payload) {
			displayed <- p
		}),
		Router:           router,
		PrecacheManifest: manifest,
		MaxRuntime:       10,
	})
	return ag, mgr, router, displayed
}

func TestInstallSeedsPrecache(t *testing.T) {
	ctx := context.Background()
	f := newFakeFetcher()
	f.serve("/", "shell", 200)
	f.serve("/app.css", "body{}", 200)
	f.errs["/broken.js"] = errors.New("offline")

	ag, mgr, _, _ := newTestAgent(t, f, []string{"/", "/app.css", "/broken.js"})

	if err := ag.Dispatch(ctx, Event{Kind: EventInstall}); err != nil {
		t.Fatalf("install: %v", err)
	}
	for _, asset := range []string{"/", "/app.css"} {
		if _, ok := mgr.Match(ctx, cache.Key("GET", asset)); !ok {
			t.Errorf("asset %s not precached", asset)
		}
	}
	// Individual fetch failures must not abort the rest.
	if _, ok := mgr.Match(ctx, cache.Key("GET", "/broken.js")); ok {
		t.Error("failed asset ended up precached")
	}
}

func TestInstallAllFailedReturnsError(t *testing.T) {
	f := newFakeFetcher()
	f.errs["/a"] = errors.New("offline")
	ag, _, _, _ := newTestAgent(t, f, []string{"/a"})

	if err := ag.Install(context.Background()); err == nil {
		t.Error("install with zero seeded assets reported success")
	}
}

func TestActivateDropsStaleAndAnnounces(t *testing.T) {
	ctx := context.Background()
	f := newFakeFetcher()
	ag, mgr, router, _ := newTestAgent(t, f, nil)

	mgr.Store().Put(ctx, "precache-v0", "GET /", &cache.Snapshot{Status: 200, Header: make(http.Header), Body: []byte("old")})

	if err := ag.Dispatch(ctx, Event{Kind: EventActivate}); err != nil {
		t.Fatalf("activate: %v", err)
	}
	names, _ := mgr.Store().Namespaces(ctx)
	for _, n := range names {
		if n == "precache-v0" {
			t.Error("stale namespace survived activation")
		}
	}
	router.mu.Lock()
	defer router.mu.Unlock()
	if len(router.versions) != 1 || router.versions[0] != "v1" {
		t.Errorf("announced versions = %v, want [v1]", router.versions)
	}
}

func TestHandleFetchOfflineDegrades(t *testing.T) {
	f := newFakeFetcher()
	f.errs["/page"] = errors.New("offline")
	ag, _, _, _ := newTestAgent(t, f, nil)

	req := strategy.Request{Method: http.MethodGet, URL: "/page", Header: make(http.Header)}
	snap, cat := ag.HandleFetch(context.Background(), req, true)

	if cat != classify.Navigation {
		t.Errorf("category = %s", cat)
	}
	if snap.Status != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want the synthetic 503", snap.Status)
	}
}

func TestHandleFetchBadURLDegrades(t *testing.T) {
	ag, _, _, _ := newTestAgent(t, newFakeFetcher(), nil)

	req := strategy.Request{Method: http.MethodGet, URL: "://bad", Header: make(http.Header)}
	snap, _ := ag.HandleFetch(context.Background(), req, false)
	if snap.Status != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", snap.Status)
	}
}

func TestHandlePushDisplays(t *testing.T) {
	ag, _, _, displayed := newTestAgent(t, newFakeFetcher(), nil)

	ag.HandlePush([]byte(`{"title":"到期提醒"}`))
	ag.Tracker.Wait()

	select {
	case p := <-displayed:
		if p.Title != "到期提醒" {
			t.Errorf("title = %q", p.Title)
		}
	default:
		t.Fatal("push displayed nothing")
	}
}

func TestHandleClickRoutes(t *testing.T) {
	ag, _, router, _ := newTestAgent(t, newFakeFetcher(), nil)

	ag.HandleClick(notification.ActionExtend, notification.Data{ID: "n-1"})

	router.mu.Lock()
	defer router.mu.Unlock()
	if len(router.clicks) != 1 || router.clicks[0] != "/extend?id=n-1" {
		t.Errorf("routed clicks = %v", router.clicks)
	}
}

func TestHandleClickDismissIsTerminal(t *testing.T) {
	ag, _, router, _ := newTestAgent(t, newFakeFetcher(), nil)

	ag.HandleClick(notification.ActionDismiss, notification.Data{ID: "n-1"})

	router.mu.Lock()
	defer router.mu.Unlock()
	if len(router.clicks) != 0 {
		t.Errorf("dismiss routed %v, want nothing", router.clicks)
	}
}

func TestPinAssetsContinuesPastFailure(t *testing.T) {
	ctx := context.Background()
	f := newFakeFetcher()
	f.errs["/a.css"] = errors.New("offline")
	f.serve("/b.css", "ok", 200)
	ag, mgr, _, _ := newTestAgent(t, f, nil)

	ag.PinAssets(ctx, []string{"/a.css", "/b.css"})

	if _, ok := mgr.MatchRuntime(ctx, cache.Key("GET", "/b.css")); !ok {
		t.Error("pin stopped at the first failure")
	}
	if _, ok := mgr.MatchRuntime(ctx, cache.Key("GET", "/a.css")); ok {
		t.Error("failed asset was pinned")
	}
}

func TestDispatchUnknownKind(t *testing.T) {
	ag, _, _, _ := newTestAgent(t, newFakeFetcher(), nil)
	if err := ag.Dispatch(context.Background(), Event{Kind: EventKind(99)}); err == nil {
		t.Error("unknown event kind dispatched without error")
	}
}
