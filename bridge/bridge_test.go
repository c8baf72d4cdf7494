package bridge

import (
	"context"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"
)

func newJar(t *testing.T) *cookiejar.Jar {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return jar
}

func markerFromJar(t *testing.T, jar http.CookieJar, rawURL string) (string, bool) {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	for _, c := range jar.Cookies(u) {
		if c.Name == DefaultCookieName {
			return c.Value, true
		}
	}
	return "", false
}

func TestJarBridgeSetAndClear(t *testing.T) {
	jar := newJar(t)
	b, err := NewJarBridge(jar, "http://blog.local:3000/app", CookieOptions{})
	if err != nil {
		t.Fatalf("new bridge: %v", err)
	}
	ctx := context.Background()

	if err := b.Set(ctx, "tok1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, ok := markerFromJar(t, jar, "http://blog.local:3000/blog/create"); !ok || v != "tok1" {
		t.Fatalf("expected marker tok1 on every path, got %q ok=%v", v, ok)
	}

	if err := b.Set(ctx, "tok2"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, _ := markerFromJar(t, jar, "http://blog.local:3000/"); v != "tok2" {
		t.Fatalf("expected marker replaced by tok2, got %q", v)
	}

	if err := b.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := b.Clear(ctx); err != nil {
		t.Fatalf("second clear: %v", err)
	}
	if _, ok := markerFromJar(t, jar, "http://blog.local:3000/"); ok {
		t.Fatal("expected marker removed")
	}
}

func TestJarBridgeEmptyTokenClears(t *testing.T) {
	jar := newJar(t)
	b, _ := NewJarBridge(jar, "http://blog.local", CookieOptions{})
	_ = b.Set(context.Background(), "tok")
	_ = b.Set(context.Background(), "")

	if _, ok := markerFromJar(t, jar, "http://blog.local/"); ok {
		t.Fatal("expected empty token to clear the marker")
	}
}

func TestJarBridgeSecureOnHTTPS(t *testing.T) {
	jar := newJar(t)
	b, err := NewJarBridge(jar, "https://blog.example", CookieOptions{})
	if err != nil {
		t.Fatalf("new bridge: %v", err)
	}
	if !b.opts.Secure {
		t.Fatal("expected Secure for https origin")
	}
	_ = b.Set(context.Background(), "tok")

	if _, ok := markerFromJar(t, jar, "http://blog.example/"); ok {
		t.Fatal("expected secure marker to be withheld from plain http")
	}
	if v, ok := markerFromJar(t, jar, "https://blog.example/"); !ok || v != "tok" {
		t.Fatalf("expected marker over https, got %q ok=%v", v, ok)
	}
}

func TestNewJarBridgeValidation(t *testing.T) {
	if _, err := NewJarBridge(nil, "http://x", CookieOptions{}); err == nil {
		t.Fatal("expected nil jar to be rejected")
	}
	if _, err := NewJarBridge(newJar(t), "/relative", CookieOptions{}); err == nil {
		t.Fatal("expected relative origin to be rejected")
	}
}

func TestResponseBridgeWritesSetCookie(t *testing.T) {
	b := NewResponseBridge(CookieOptions{})
	rec := httptest.NewRecorder()
	ctx := WithResponseWriter(context.Background(), rec)

	if err := b.Set(ctx, "tok1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Name != DefaultCookieName || c.Value != "tok1" || c.Path != "/" {
		t.Fatalf("unexpected cookie %+v", c)
	}
	if c.SameSite != http.SameSiteLaxMode {
		t.Fatalf("expected SameSite=Lax, got %v", c.SameSite)
	}
	if c.MaxAge != int(DefaultMaxAge.Seconds()) {
		t.Fatalf("expected max age %d, got %d", int(DefaultMaxAge.Seconds()), c.MaxAge)
	}
}

func TestResponseBridgeClearExpiresCookie(t *testing.T) {
	b := NewResponseBridge(CookieOptions{Name: "marker"})
	rec := httptest.NewRecorder()

	if err := b.Clear(WithResponseWriter(context.Background(), rec)); err != nil {
		t.Fatalf("clear: %v", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "marker" || cookies[0].MaxAge >= 0 {
		t.Fatalf("expected expiring marker cookie, got %+v", cookies)
	}
}

func TestResponseBridgeWithoutWriter(t *testing.T) {
	b := NewResponseBridge(CookieOptions{})
	if err := b.Set(context.Background(), "tok"); !errors.Is(err, ErrNoResponseWriter) {
		t.Fatalf("expected ErrNoResponseWriter, got %v", err)
	}
	if err := b.Clear(context.Background()); !errors.Is(err, ErrNoResponseWriter) {
		t.Fatalf("expected ErrNoResponseWriter, got %v", err)
	}
}

func TestMarker(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/blog/create", nil)
	if _, ok := Marker(r, ""); ok {
		t.Fatal("expected no marker")
	}

	r.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: ""})
	if _, ok := Marker(r, ""); ok {
		t.Fatal("expected empty marker to count as absent")
	}

	r = httptest.NewRequest(http.MethodGet, "/blog/create", nil)
	r.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "tok"})
	if v, ok := Marker(r, ""); !ok || v != "tok" {
		t.Fatalf("expected marker tok, got %q ok=%v", v, ok)
	}
}
