//go:build integration
// +build integration

package test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	tabAuth "github.com/quillpress/tabAuth"
	"github.com/quillpress/tabAuth/bridge"
	"github.com/quillpress/tabAuth/issuer"
	"github.com/quillpress/tabAuth/refresh"
	"github.com/quillpress/tabAuth/tokenapi"
	"github.com/quillpress/tabAuth/transport"
)

type manualTicker struct{ ch chan time.Time }

func (t *manualTicker) C() <-chan time.Time { return t.ch }
func (t *manualTicker) Stop()               {}

type manualClock struct {
	mu      sync.Mutex
	tickers []*manualTicker
}

func (c *manualClock) NewTicker(time.Duration) refresh.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTicker{ch: make(chan time.Time, 1)}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *manualClock) tick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.tickers) == 0 {
		return
	}
	select {
	case c.tickers[len(c.tickers)-1].ch <- time.Now():
	default:
	}
}

func cookieValue(jar http.CookieJar, rawURL, name string) string {
	u, _ := url.Parse(rawURL)
	for _, c := range jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func TestPasswordLoginPersistsAndRenews(t *testing.T) {
	e := newEnv(t)
	b := e.newBrowser(t)
	m := e.openTab(t, b, "")
	ctx := context.Background()

	s, err := m.LoginWithPassword(ctx, "alice", "correct-horse")
	if err != nil {
		t.Fatalf("LoginWithPassword failed: %v", err)
	}
	if !s.Authenticated || s.Username() != "alice" || !s.IsAdmin() {
		t.Fatalf("unexpected session %+v", s)
	}

	// Renewal starts as soon as the session exists.
	renewed := waitFor(t, m, "first renewal", func(cur tabAuth.Session) bool {
		return cur.Authenticated && cur.AccessToken != s.AccessToken
	})
	if renewed.Epoch != s.Epoch {
		t.Fatalf("renewal must keep the epoch, got %d want %d", renewed.Epoch, s.Epoch)
	}

	claims, err := e.tokens.ParseAccess(renewed.AccessToken)
	if err != nil {
		t.Fatalf("renewed token does not verify: %v", err)
	}
	if claims.Username() != "alice" || !claims.IsAdmin {
		t.Fatalf("unexpected claims %+v", claims)
	}

	key := "tabauth:tab:" + m.TabID()
	if got := e.mr.HGet(key, "accessToken"); got != renewed.AccessToken {
		t.Fatalf("store holds %q, want the renewed token", got)
	}
	if got := e.mr.HGet(key, "username"); got != "alice" {
		t.Fatalf("store username %q", got)
	}
	if got := cookieValue(b.jar, e.issuer.URL, bridge.DefaultCookieName); got != renewed.AccessToken {
		t.Fatalf("marker cookie %q, want the renewed token", got)
	}
}

func TestHydrateResumesTabAfterRestart(t *testing.T) {
	e := newEnv(t)
	b := e.newBrowser(t)
	ctx := context.Background()

	first := e.openTab(t, b, "")
	login, err := first.LoginWithPassword(ctx, "bob", "battery-staple")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	before := waitFor(t, first, "renewal", func(s tabAuth.Session) bool {
		return s.Authenticated && s.AccessToken != login.AccessToken
	})
	tabID := first.TabID()
	first.Close()

	second := e.openTab(t, b, tabID)
	s := second.Hydrate(ctx)
	if !s.Authenticated || s.Username() != "bob" || s.IsAdmin() {
		t.Fatalf("expected hydrated bob session, got %+v", s)
	}

	// The shared renewal cookie lets the resumed tab keep renewing.
	waitFor(t, second, "renewal after hydrate", func(cur tabAuth.Session) bool {
		return cur.Authenticated && cur.AccessToken != s.AccessToken && cur.AccessToken != before.AccessToken
	})
}

func TestTabsAreIndependent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	a := e.openTab(t, e.newBrowser(t), "")
	bob := e.openTab(t, e.newBrowser(t), "")
	if _, err := a.LoginWithPassword(ctx, "alice", "correct-horse"); err != nil {
		t.Fatalf("login alice: %v", err)
	}
	if _, err := bob.LoginWithPassword(ctx, "bob", "battery-staple"); err != nil {
		t.Fatalf("login bob: %v", err)
	}

	a.Logout(ctx)
	if a.GetSession().Authenticated {
		t.Fatal("expected first tab logged out")
	}
	if e.mr.Exists("tabauth:tab:" + a.TabID()) {
		t.Fatal("expected first tab record cleared")
	}

	s := bob.GetSession()
	if !s.Authenticated || s.Username() != "bob" {
		t.Fatalf("expected second tab untouched, got %+v", s)
	}
	if !e.mr.Exists("tabauth:tab:" + bob.TabID()) {
		t.Fatal("expected second tab record kept")
	}
}

func TestLogoutRevokesRenewalCredential(t *testing.T) {
	e := newEnv(t)
	b := e.newBrowser(t)
	m := e.openTab(t, b, "")
	ctx := context.Background()

	s, err := m.LoginWithPassword(ctx, "alice", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	waitFor(t, m, "renewal", func(cur tabAuth.Session) bool { return cur.AccessToken != s.AccessToken })

	stolen := cookieValue(b.jar, e.issuer.URL, issuer.DefaultRenewalCookie)
	if stolen == "" {
		t.Fatal("expected renewal cookie before logout")
	}

	m.Logout(ctx)
	if m.GetSession().Authenticated {
		t.Fatal("expected logged out")
	}
	if got := cookieValue(b.jar, e.issuer.URL, bridge.DefaultCookieName); got != "" {
		t.Fatalf("expected marker cleared, got %q", got)
	}
	if got := cookieValue(b.jar, e.issuer.URL, issuer.DefaultRenewalCookie); got != "" {
		t.Fatal("expected issuer to expire the renewal cookie")
	}

	req, _ := http.NewRequest(http.MethodPost, e.issuer.URL+"/token/refresh/", nil)
	req.AddCookie(&http.Cookie{Name: issuer.DefaultRenewalCookie, Value: stolen})
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected revoked credential to be refused, got %d", resp.StatusCode)
	}
}

func TestStolenRenewalForcesLogout(t *testing.T) {
	e := newEnv(t)
	b := e.newBrowser(t)
	clock := &manualClock{}

	causes := make(chan error, 4)
	m := e.openTab(t, b, "", func(bl *tabAuth.Builder) {
		bl.WithClock(clock).WithForcedLogoutHook(func(_ tabAuth.Session, cause error) {
			causes <- cause
		})
	})
	ctx := context.Background()

	s, err := m.LoginWithPassword(ctx, "alice", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	waitFor(t, m, "renewal", func(cur tabAuth.Session) bool { return cur.AccessToken != s.AccessToken })

	// Someone else spends the tab's renewal cookie first.
	req, _ := http.NewRequest(http.MethodPost, e.issuer.URL+"/token/refresh/", nil)
	req.AddCookie(&http.Cookie{Name: issuer.DefaultRenewalCookie, Value: cookieValue(b.jar, e.issuer.URL, issuer.DefaultRenewalCookie)})
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("steal: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected thief to rotate once, got %d", resp.StatusCode)
	}

	clock.tick()
	select {
	case cause := <-causes:
		if !errors.Is(cause, tabAuth.ErrRefreshFailed) {
			t.Fatalf("expected refresh failure cause, got %v", cause)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for forced logout")
	}
	if m.GetSession().Authenticated {
		t.Fatal("expected session ended")
	}
	if e.mr.Exists("tabauth:tab:" + m.TabID()) {
		t.Fatal("expected record cleared after forced logout")
	}
}

func TestBearerTransportCarriesCurrentToken(t *testing.T) {
	e := newEnv(t)
	m := e.openTab(t, e.newBrowser(t), "")
	ctx := context.Background()

	client := transport.Client(m, &http.Client{Timeout: 5 * time.Second})

	resp, err := client.Get(e.issuer.URL + "/me/")
	if err != nil {
		t.Fatalf("anonymous get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 while logged out, got %d", resp.StatusCode)
	}

	if _, err := m.LoginWithPassword(ctx, "bob", "battery-staple"); err != nil {
		t.Fatalf("login: %v", err)
	}
	resp, err = client.Get(e.issuer.URL + "/me/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, raw)
	}
	var me struct {
		Username string `json:"username"`
		IsAdmin  bool   `json:"is_admin"`
	}
	if err := json.Unmarshal(raw, &me); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if me.Username != "bob" || me.IsAdmin {
		t.Fatalf("unexpected profile %+v", me)
	}
}

func TestWrongPasswordIsThrottled(t *testing.T) {
	e := newEnv(t)
	m := e.openTab(t, e.newBrowser(t), "")
	ctx := context.Background()

	limit := issuer.DefaultThrottleConfig().MaxFailures
	for i := 0; i < limit; i++ {
		if _, err := m.LoginWithPassword(ctx, "alice", "wrong-password"); !errors.Is(err, tabAuth.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i+1, err)
		}
	}

	// Throttled logins are not credential rejections.
	_, err := m.LoginWithPassword(ctx, "alice", "correct-horse")
	if !errors.Is(err, tabAuth.ErrCredentialExchangeUnavailable) {
		t.Fatalf("expected throttled login to be unavailable, got %v", err)
	}
	var se *tokenapi.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 from issuer, got %v", err)
	}
	if m.GetSession().Authenticated {
		t.Fatal("expected no session while throttled")
	}
}
