package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/quillpress/tabAuth/bridge"
)

// GuardConfig selects protected paths and the redirect target.
type GuardConfig struct {
	// ProtectedPrefixes are matched on path segment boundaries: "/blog/create"
	// covers "/blog/create" and "/blog/create/draft" but not "/blog/createx".
	// A prefix ending in "/" covers only paths below it, so "/blog/edit/"
	// matches "/blog/edit/42" but not "/blog/edit".
	ProtectedPrefixes []string
	LoginPath         string
	CookieName        string
	// NextParam names the query parameter carrying the original request URI.
	// Empty disables it.
	NextParam string
}

// DefaultGuardConfig protects post creation and editing.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		ProtectedPrefixes: []string{"/blog/create", "/blog/edit/"},
		LoginPath:         "/login",
		CookieName:        bridge.DefaultCookieName,
		NextParam:         "next",
	}
}

func (c GuardConfig) normalize() GuardConfig {
	if c.LoginPath == "" {
		c.LoginPath = "/login"
	}
	if c.CookieName == "" {
		c.CookieName = bridge.DefaultCookieName
	}
	prefixes := make([]string, 0, len(c.ProtectedPrefixes))
	for _, p := range c.ProtectedPrefixes {
		p = strings.TrimSpace(p)
		if p == "" || p == "/" {
			continue
		}
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		prefixes = append(prefixes, p)
	}
	c.ProtectedPrefixes = prefixes
	return c
}

// Protected reports whether path falls under one of the configured prefixes.
// The login path is never protected.
func (c GuardConfig) Protected(path string) bool {
	if path == c.LoginPath {
		return false
	}
	for _, p := range c.ProtectedPrefixes {
		if strings.HasSuffix(p, "/") {
			if len(path) > len(p) && strings.HasPrefix(path, p) {
				return true
			}
			continue
		}
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// Guard redirects requests for protected paths that carry no marker cookie to
// the login path with 302 Found. All other requests pass through.
func Guard(cfg GuardConfig) func(http.Handler) http.Handler {
	cfg = cfg.normalize()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Protected(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := bridge.Marker(r, cfg.CookieName); ok {
				next.ServeHTTP(w, r)
				return
			}

			http.Redirect(w, r, cfg.loginURL(r), http.StatusFound)
		})
	}
}

func (c GuardConfig) loginURL(r *http.Request) string {
	if c.NextParam == "" {
		return c.LoginPath
	}
	q := url.Values{}
	q.Set(c.NextParam, r.URL.RequestURI())
	return c.LoginPath + "?" + q.Encode()
}
