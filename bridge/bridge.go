package bridge

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"
)

// ErrNoResponseWriter is returned by [ResponseBridge] when ctx carries no writer.
var ErrNoResponseWriter = errors.New("bridge: no response writer in context")

// Bridge is the edge-visible replica of the access token. Both operations are
// idempotent.
type Bridge interface {
	Set(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// Nop discards every update. Used when no edge guard is deployed.
type Nop struct{}

func (Nop) Set(context.Context, string) error { return nil }
func (Nop) Clear(context.Context) error        { return nil }

// JarBridge stores the marker in an http.CookieJar for one origin, so every
// request the owning client sends to that origin carries it.
type JarBridge struct {
	jar    http.CookieJar
	origin *url.URL
	opts   CookieOptions
	now    func() time.Time
}

// NewJarBridge creates a [JarBridge]. Secure is forced on for https origins.
func NewJarBridge(jar http.CookieJar, origin string, opts CookieOptions) (*JarBridge, error) {
	if jar == nil {
		return nil, errors.New("bridge: cookie jar required")
	}
	u, err := url.Parse(origin)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.New("bridge: origin must be an absolute url")
	}
	opts = opts.normalize()
	if u.Scheme == "https" {
		opts.Secure = true
	}

	return &JarBridge{
		jar:    jar,
		origin: &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"},
		opts:   opts,
		now:    time.Now,
	}, nil
}

func (b *JarBridge) Set(_ context.Context, token string) error {
	if token == "" {
		return b.Clear(context.Background())
	}
	b.jar.SetCookies(b.origin, []*http.Cookie{b.opts.marker(token, b.now())})
	return nil
}

func (b *JarBridge) Clear(context.Context) error {
	b.jar.SetCookies(b.origin, []*http.Cookie{b.opts.expired()})
	return nil
}

type responseWriterKey struct{}

// WithResponseWriter attaches w to ctx so a [ResponseBridge] can emit
// Set-Cookie headers on it.
func WithResponseWriter(ctx context.Context, w http.ResponseWriter) context.Context {
	return context.WithValue(ctx, responseWriterKey{}, w)
}

func responseWriterFromContext(ctx context.Context) (http.ResponseWriter, bool) {
	if ctx == nil {
		return nil, false
	}
	w, ok := ctx.Value(responseWriterKey{}).(http.ResponseWriter)
	return w, ok && w != nil
}

// ResponseBridge relays the marker to a browser through Set-Cookie on the
// response carried by ctx. Updates made outside a request (background refresh)
// return [ErrNoResponseWriter] and are caught up on the next request.
type ResponseBridge struct {
	opts CookieOptions
	now  func() time.Time
}

// NewResponseBridge creates a [ResponseBridge].
func NewResponseBridge(opts CookieOptions) *ResponseBridge {
	return &ResponseBridge{opts: opts.normalize(), now: time.Now}
}

func (b *ResponseBridge) Set(ctx context.Context, token string) error {
	if token == "" {
		return b.Clear(ctx)
	}
	w, ok := responseWriterFromContext(ctx)
	if !ok {
		return ErrNoResponseWriter
	}
	http.SetCookie(w, b.opts.marker(token, b.now()))
	return nil
}

func (b *ResponseBridge) Clear(ctx context.Context) error {
	w, ok := responseWriterFromContext(ctx)
	if !ok {
		return ErrNoResponseWriter
	}
	http.SetCookie(w, b.opts.expired())
	return nil
}
