//go:build integration
// +build integration

package test

import (
	"crypto/ed25519"
	"crypto/rand"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	tabAuth "github.com/quillpress/tabAuth"
	"github.com/quillpress/tabAuth/issuer"
	"github.com/quillpress/tabAuth/jwt"
	"github.com/quillpress/tabAuth/password"
	"github.com/quillpress/tabAuth/tokenapi"
	"github.com/redis/go-redis/v9"
)

type env struct {
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	issuer *httptest.Server
	tokens *jwt.Manager
}

// newEnv starts miniredis and an issuer whose denylist and login throttle
// live in it. Users: alice (admin) and bob.
func newEnv(t *testing.T) *env {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:  5 * time.Minute,
		RenewalTTL: time.Hour,
		PrivateKey: priv,
		PublicKey:  pub,
		Issuer:     "blog-it",
	})
	if err != nil {
		t.Fatalf("jwt manager: %v", err)
	}

	hasher, err := password.New(password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	users := issuer.NewUserTable()
	for _, u := range []struct {
		name, pw string
		admin    bool
	}{{"alice", "correct-horse", true}, {"bob", "battery-staple", false}} {
		hash, err := hasher.Hash(u.pw)
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		if err := users.Put(issuer.User{Username: u.name, PasswordHash: hash, IsAdmin: u.admin}); err != nil {
			t.Fatalf("put user: %v", err)
		}
	}

	deny, err := issuer.NewRedisDenylist(rdb, "blog-it")
	if err != nil {
		t.Fatalf("denylist: %v", err)
	}
	limiter, err := issuer.NewRedisLoginLimiter(rdb, "blog-it", issuer.DefaultThrottleConfig())
	if err != nil {
		t.Fatalf("login limiter: %v", err)
	}
	srv, err := issuer.New(tokens, hasher, users, deny, issuer.WithLoginLimiter(limiter))
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	hs := httptest.NewServer(srv.Routes())

	t.Cleanup(func() {
		hs.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return &env{mr: mr, rdb: rdb, issuer: hs, tokens: tokens}
}

// browser is one cookie jar shared by every tab it opens, the way tabs share
// the issuer's HttpOnly renewal cookie.
type browser struct {
	jar *cookiejar.Jar
	api *tokenapi.Client
}

func (e *env) newBrowser(t *testing.T) *browser {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("jar: %v", err)
	}
	api, err := tokenapi.New(e.issuer.URL, &http.Client{Jar: jar, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("token api: %v", err)
	}
	return &browser{jar: jar, api: api}
}

func testConfig() tabAuth.Config {
	cfg := tabAuth.DefaultConfig()
	cfg.Token.RequestTimeout = 5 * time.Second
	return cfg
}

// openTab builds a Manager persisting to e's Redis. tabID may be empty.
func (e *env) openTab(t *testing.T, b *browser, tabID string, opts ...func(*tabAuth.Builder)) *tabAuth.Manager {
	t.Helper()
	builder := tabAuth.New().
		WithConfig(testConfig()).
		WithRedis(e.rdb).
		WithTokenAPI(b.api).
		WithCookieJar(b.jar, e.issuer.URL).
		WithTabID(tabID)
	for _, opt := range opts {
		opt(builder)
	}
	m, err := builder.Build()
	if err != nil {
		t.Fatalf("build manager: %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

// waitFor reads snapshots from m until ok accepts one.
func waitFor(t *testing.T, m *tabAuth.Manager, what string, ok func(tabAuth.Session) bool) tabAuth.Session {
	t.Helper()
	ch, stop := m.Watch()
	defer stop()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case s, open := <-ch:
			if !open {
				t.Fatalf("watch closed waiting for %s", what)
			}
			if ok(s) {
				return s
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s, last session %+v", what, m.GetSession())
		}
	}
}
