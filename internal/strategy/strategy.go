// Package strategy implements the per-category fetch strategies:
// cache-first with background refresh, network-first with timeout, and
// passthrough with opportunistic caching.
package strategy

import (
	"context"
	"net/http"
	"time"

	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/cache"
	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/classify"
	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/lifecycle"
	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/logging"
)

const offlineBody = "网络不可用，请稍后重试"

// OfflineSnapshot is the synthetic 503 response returned when neither the
// network nor any store can answer.
func OfflineSnapshot() *cache.Snapshot {
	h := make(http.Header)
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	return &cache.Snapshot{
		Status: http.StatusServiceUnavailable,
		Header: h,
		Body:   []byte(offlineBody),
	}
}

// Engine dispatches a classified request to its strategy.
type Engine struct {
	Cache             *cache.Manager
	Fetcher           Fetcher
	Tracker           *lifecycle.Tracker
	MaxRuntimeEntries int
	NavigationTimeout time.Duration
	// RootKey is the cache key of the root page used as last-resort fallback.
	RootKey string

	// refreshTimeout bounds detached refresh and mirror fetches.
	refreshTimeout time.Duration
}

// NewEngine wires a strategy engine. navigationTimeout <= 0 falls back to 3s.
func NewEngine(mgr *cache.Manager, fetcher Fetcher, tracker *lifecycle.Tracker, maxEntries int, navigationTimeout time.Duration) *Engine {
	if navigationTimeout <= 0 {
		navigationTimeout = 3 * time.Second
	}
	return &Engine{
		Cache:             mgr,
		Fetcher:           fetcher,
		Tracker:           tracker,
		MaxRuntimeEntries: maxEntries,
		NavigationTimeout: navigationTimeout,
		RootKey:           cache.Key(http.MethodGet, "/"),
		refreshTimeout:    30 * time.Second,
	}
}

// Do answers the request per its category. A nil snapshot with an error means
// nothing could answer; callers surface the synthetic offline response.
func (e *Engine) Do(ctx context.Context, req Request, cat classify.Category) (*cache.Snapshot, error) {
	switch cat {
	case classify.StaticAsset:
		return e.cacheFirst(ctx, req)
	case classify.Navigation:
		return e.networkFirst(ctx, req)
	case classify.Sensitive:
		return e.passthrough(ctx, req, true)
	default:
		return e.passthrough(ctx, req, false)
	}
}

// cacheFirst serves static assets from the store when possible. A hit returns
// immediately and spawns a detached refresh whose outcome can never affect
// the already-returned response.
func (e *Engine) cacheFirst(ctx context.Context, req Request) (*cache.Snapshot, error) {
	key := cache.Key(req.Method, req.URL)

	if snap, ok := e.Cache.Match(ctx, key); ok {
		e.refreshInBackground(key, req)
		return snap, nil
	}

	res, err := e.Fetcher.Fetch(ctx, req)
	if err != nil {
		if root, ok := e.Cache.Match(ctx, e.RootKey); ok {
			return root, nil
		}
		return nil, err
	}
	if e.cacheable(res) {
		e.persist(ctx, key, res.Snap)
	}
	return res.Snap, nil
}

// networkFirst races a navigation fetch against the timeout; on timeout or
// failure it falls back to the cached entry for the same request, then the
// cached root page.
func (e *Engine) networkFirst(ctx context.Context, req Request) (*cache.Snapshot, error) {
	key := cache.Key(req.Method, req.URL)

	fetchCtx, cancel := context.WithTimeout(ctx, e.NavigationTimeout)
	res, err := e.Fetcher.Fetch(fetchCtx, req)
	cancel()
	if err == nil {
		if e.cacheable(res) {
			e.persist(ctx, key, res.Snap)
		}
		return res.Snap, nil
	}

	if snap, ok := e.Cache.Match(ctx, key); ok {
		return snap, nil
	}
	if root, ok := e.Cache.Match(ctx, e.RootKey); ok {
		return root, nil
	}
	return nil, err
}

// passthrough always tries the network. Successful non-sensitive retrieval
// responses are mirrored into the runtime store without blocking the return;
// on failure the cache may still answer, except for sensitive requests which
// never touch a store in either direction.
func (e *Engine) passthrough(ctx context.Context, req Request, sensitive bool) (*cache.Snapshot, error) {
	key := cache.Key(req.Method, req.URL)
	retrieval := req.Method == http.MethodGet

	res, err := e.Fetcher.Fetch(ctx, req)
	if err == nil {
		if !sensitive && retrieval && e.cacheable(res) {
			snap := res.Snap.Clone()
			e.Tracker.Go("cache mirror", func() {
				mctx, mcancel := context.WithTimeout(context.Background(), e.refreshTimeout)
				defer mcancel()
				if e.Cache.PutRuntime(mctx, key, snap) == nil {
					cache.Trim(mctx, e.Cache.Store(), e.Cache.RuntimeNamespace(), e.MaxRuntimeEntries)
				}
			})
		}
		return res.Snap, nil
	}

	if !sensitive && retrieval {
		if snap, ok := e.Cache.Match(ctx, key); ok {
			return snap, nil
		}
	}
	return nil, err
}

// persist stores a clone in the runtime namespace and trims afterward.
func (e *Engine) persist(ctx context.Context, key string, snap *cache.Snapshot) {
	if e.Cache.PutRuntime(ctx, key, snap.Clone()) == nil {
		cache.Trim(ctx, e.Cache.Store(), e.Cache.RuntimeNamespace(), e.MaxRuntimeEntries)
	}
}

// refreshInBackground re-fetches an already-served asset to keep the store
// current. Fire-and-forget: failures are swallowed here, at the terminal
// boundary of the detached task.
func (e *Engine) refreshInBackground(key string, req Request) {
	e.Tracker.Go("cache refresh", func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.refreshTimeout)
		defer cancel()

		res, err := e.Fetcher.Fetch(ctx, req)
		if err != nil {
			logging.Debugf("background refresh %s: %v", key, err)
			return
		}
		if !e.cacheable(res) {
			return
		}
		if e.Cache.PutRuntime(ctx, key, res.Snap) == nil {
			cache.Trim(ctx, e.Cache.Store(), e.Cache.RuntimeNamespace(), e.MaxRuntimeEntries)
		}
	})
}

// cacheable applies the shared eligibility rule: exactly HTTP 200 and a
// same-origin response. Sensitive requests never reach this check.
func (e *Engine) cacheable(res *Response) bool {
	return res != nil && res.Snap != nil && res.Snap.Status == http.StatusOK && res.SameOrigin
}
