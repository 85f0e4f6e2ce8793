// Package classify maps request descriptors to fetch categories.
package classify

import (
	"net/http"
	"net/url"
	"path"
	"strings"
)

// Category is the fetch handling class of a request.
type Category int

const (
	// Other requests are passed through and never strategy-cached eagerly.
	Other Category = iota
	// Navigation requests load pages and get network-first handling.
	Navigation
	// StaticAsset requests get cache-first handling.
	StaticAsset
	// Sensitive requests bypass every store in both directions.
	Sensitive
)

func (c Category) String() string {
	switch c {
	case Navigation:
		return "navigation"
	case StaticAsset:
		return "static-asset"
	case Sensitive:
		return "sensitive"
	default:
		return "other"
	}
}

// Request is the descriptor a classification decision is made from.
type Request struct {
	Method     string
	URL        *url.URL
	Navigation bool
}

// Classifier holds the deny/allow lists classification is driven by.
// The zero value classifies everything non-GET as Other and everything else
// by the navigation flag alone.
type Classifier struct {
	SensitivePaths  []string
	SensitiveParams []string
	StaticExts      []string
	CDNHosts        []string
}

// Classify applies the rules in priority order. It is pure: no side effects,
// no state.
func (c *Classifier) Classify(req Request) Category {
	if !strings.EqualFold(req.Method, http.MethodGet) {
		return Other
	}
	if req.URL == nil {
		return Other
	}
	if c.isSensitive(req.URL) {
		return Sensitive
	}
	if req.Navigation {
		return Navigation
	}
	if c.isStaticAsset(req.URL) {
		return StaticAsset
	}
	return Other
}

func (c *Classifier) isSensitive(u *url.URL) bool {
	p := strings.ToLower(u.Path)
	for _, deny := range c.SensitivePaths {
		if deny != "" && strings.Contains(p, strings.ToLower(deny)) {
			return true
		}
	}
	if len(c.SensitiveParams) == 0 {
		return false
	}
	q := u.Query()
	for _, param := range c.SensitiveParams {
		if q.Has(param) {
			return true
		}
	}
	return false
}

func (c *Classifier) isStaticAsset(u *url.URL) bool {
	ext := strings.ToLower(path.Ext(u.Path))
	if ext != "" {
		for _, e := range c.StaticExts {
			if ext == e {
				return true
			}
		}
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range c.CDNHosts {
		if host == strings.ToLower(h) {
			return true
		}
	}
	return false
}
