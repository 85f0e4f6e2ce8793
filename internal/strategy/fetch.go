package strategy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/cache"
)

// Request describes one outbound data request on behalf of the client.
type Request struct {
	Method string
	// URL is either a path resolved against the upstream base or an
	// absolute URL (CDN assets).
	URL    string
	Header http.Header
	Body   []byte
}

// Response is a fetched snapshot plus the origin facts cacheability depends on.
type Response struct {
	Snap *cache.Snapshot
	// SameOrigin is true when the response came from the upstream origin
	// itself; cross-origin (opaque) responses are never cached.
	SameOrigin bool
}

// Fetcher performs the actual network call.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*Response, error)
}

// Upstream is the production Fetcher against the configured origin.
type Upstream struct {
	client *http.Client
	base   *url.URL
}

// NewUpstream creates a fetcher for the given origin base URL.
func NewUpstream(baseURL string) (*Upstream, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("upstream base url %q must be absolute", baseURL)
	}
	return &Upstream{
		client: &http.Client{Timeout: 30 * time.Second},
		base:   base,
	}, nil
}

// Resolve turns a request URL into an absolute target against the base.
func (u *Upstream) Resolve(raw string) (string, error) {
	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse request url: %w", err)
	}
	return u.base.ResolveReference(ref).String(), nil
}

// Fetch performs the request and snapshots the response body. The body is
// read exactly once here; every later consumer works on snapshot clones.
func (u *Upstream) Fetch(ctx context.Context, req Request) (*Response, error) {
	target, err := u.Resolve(req.URL)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = strings.NewReader(string(req.Body))
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := u.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	final := resp.Request.URL
	return &Response{
		Snap: &cache.Snapshot{
			Status:   resp.StatusCode,
			Header:   resp.Header.Clone(),
			Body:     data,
			StoredAt: time.Now(),
		},
		SameOrigin: final.Host == u.base.Host && final.Scheme == u.base.Scheme,
	}, nil
}
