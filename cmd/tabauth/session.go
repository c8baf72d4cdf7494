package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"os/signal"
	"strings"
	"syscall"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	tabAuth "github.com/quillpress/tabAuth"
	promexport "github.com/quillpress/tabAuth/metrics/export/prometheus"
	"github.com/quillpress/tabAuth/middleware"
	"github.com/quillpress/tabAuth/tokenapi"
	"github.com/quillpress/tabAuth/transport"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Hold one tab's session open and keep it renewed",
		Long: `Restores the tab's session from the token store, or logs in with the
given credentials, then renews the access token until interrupted. On exit the
session is logged out unless --keep is set.

The password is best passed as TABAUTH_SESSION_PASSWORD.`,
		Args: cobra.NoArgs,
		RunE: runSession,
	}

	f := cmd.Flags()
	f.String("issuer-url", "http://127.0.0.1:8000", "token issuer base URL")
	f.String("username", "", "login username")
	f.String("password", "", "login password")
	f.String("tab-id", "", "resume this tab ID instead of starting a new tab")
	f.String("store", "memory", `token store: "memory", "miniredis" or a redis address`)
	f.String("edge-origin", "http://127.0.0.1:3000", "origin the session marker cookie is mirrored for")
	f.String("listen", ":9100", "address for /metrics and /session; empty disables")
	f.Duration("probe-interval", 0, "call the issuer's /me/ with the current token at this interval; 0 disables")
	f.Bool("keep", false, "leave the session in place on exit")

	for _, name := range []string{"issuer-url", "username", "password", "tab-id", "store", "edge-origin", "listen", "probe-interval", "keep"} {
		_ = viper.BindPFlag("session."+strings.ReplaceAll(name, "-", "_"), f.Lookup(name))
	}
	return cmd
}

func runSession(cmd *cobra.Command, _ []string) error {
	log := newLogger("session")
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := tabAuth.DefaultConfig()
	if err := viper.UnmarshalKey("session.manager", &cfg); err != nil {
		return fmt.Errorf("session: decode manager config: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}
	httpClient := &http.Client{Jar: jar, Timeout: cfg.Token.RequestTimeout}
	api, err := tokenapi.New(viper.GetString("session.issuer_url"), httpClient, tokenapi.WithUserAgent("tabauth/"+version))
	if err != nil {
		return err
	}

	b := tabAuth.New().
		WithConfig(cfg).
		WithTokenAPI(api).
		WithCookieJar(jar, viper.GetString("session.edge_origin")).
		WithLogger(log).
		WithForcedLogoutHook(func(prev tabAuth.Session, cause error) {
			log.Warn().Err(cause).Str("username", prev.Username()).Msg("tabAuth: session ended by failed renewal")
		})
	if id := viper.GetString("session.tab_id"); id != "" {
		b.WithTabID(id)
	}
	if store := viper.GetString("session.store"); store != "" && store != "memory" {
		client, cleanup, err := openRedis(ctx, store, log)
		if err != nil {
			return err
		}
		defer cleanup()
		b.WithRedis(client)
	}

	m, err := b.Build()
	if err != nil {
		return err
	}
	defer m.Close()
	log.Info().Str("tab_id", m.TabID()).Dur("renew_every", cfg.RefreshPeriod()).Msg("tabAuth: tab started")

	go watchSession(m, log)

	if s := m.Hydrate(ctx); s.Authenticated {
		// The renewal cookie from the previous process is gone, so the first
		// renewal will likely fail and end this session.
		log.Info().Str("username", s.Username()).Msg("tabAuth: resumed stored session")
	} else if err := login(ctx, m, log); err != nil {
		return err
	}

	if addr := viper.GetString("session.listen"); addr != "" {
		h, err := sessionRoutes(m, log)
		if err != nil {
			return err
		}
		go func() {
			if err := serve(ctx, addr, h, log); err != nil {
				log.Error().Err(err).Msg("tabAuth: status server failed")
				stop()
			}
		}()
	}

	if every := viper.GetDuration("session.probe_interval"); every > 0 {
		go probe(ctx, m, api.BaseURL(), every, cfg.Token.RequestTimeout, log)
	}

	<-ctx.Done()

	if !viper.GetBool("session.keep") {
		m.Logout(context.Background())
		log.Info().Msg("tabAuth: logged out")
	}
	return nil
}

func login(ctx context.Context, m *tabAuth.Manager, log zerolog.Logger) error {
	username := viper.GetString("session.username")
	password := viper.GetString("session.password")
	if username == "" || password == "" {
		return errors.New("session: no stored session to resume, --username and a password are required")
	}
	s, err := m.LoginWithPassword(ctx, username, password)
	if err != nil {
		return fmt.Errorf("session: login: %w", err)
	}
	log.Info().Str("username", s.Username()).Bool("is_admin", s.IsAdmin()).Msg("tabAuth: logged in")
	return nil
}

func watchSession(m *tabAuth.Manager, log zerolog.Logger) {
	ch, cancel := m.Watch()
	defer cancel()
	for s := range ch {
		log.Info().
			Bool("authenticated", s.Authenticated).
			Str("username", s.Username()).
			Uint64("epoch", s.Epoch).
			Msg("tabAuth: session changed")
	}
}

type sessionView struct {
	TabID         string `json:"tab_id"`
	Authenticated bool   `json:"authenticated"`
	Username      string `json:"username,omitempty"`
	IsAdmin       bool   `json:"is_admin"`
	Epoch         uint64 `json:"epoch"`
	Renewing      bool   `json:"renewing"`
}

func sessionRoutes(m *tabAuth.Manager, log zerolog.Logger) (http.Handler, error) {
	metrics, err := promexport.NewCollector(m, prom.Labels{"tab": m.TabID()}).Handler()
	if err != nil {
		return nil, err
	}

	r := newRouter(log)
	r.Handle("/metrics", metrics)
	r.With(middleware.AttachSession(m)).Get("/session", func(w http.ResponseWriter, r *http.Request) {
		mgr, ok := tabAuth.ManagerFromContext(r.Context())
		if !ok {
			http.Error(w, "no session manager", http.StatusInternalServerError)
			return
		}
		s := mgr.GetSession()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(sessionView{
			TabID:         mgr.TabID(),
			Authenticated: s.Authenticated,
			Username:      s.Username(),
			IsAdmin:       s.IsAdmin(),
			Epoch:         s.Epoch,
			Renewing:      mgr.RefreshRunning(),
		})
	})
	return r, nil
}

// probe calls the issuer's /me/ with the tab's current access token, showing
// that renewed tokens are picked up by outgoing requests.
func probe(ctx context.Context, m *tabAuth.Manager, issuerURL string, every, timeout time.Duration, log zerolog.Logger) {
	client := transport.Client(m, &http.Client{Timeout: timeout})
	target := strings.TrimSuffix(issuerURL, "/") + "/me/"

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			log.Error().Err(err).Msg("tabAuth: probe request")
			return
		}
		resp, err := client.Do(req)
		if err != nil {
			log.Warn().Err(err).Msg("tabAuth: probe failed")
			continue
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()
		log.Info().Int("status", resp.StatusCode).Str("body", strings.TrimSpace(string(body))).Msg("tabAuth: probe")
	}
}
