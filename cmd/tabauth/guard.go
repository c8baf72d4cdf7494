package main

import (
	"fmt"
	"net/http/httputil"
	"net/url"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/quillpress/tabAuth/middleware"
)

func newGuardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "guard",
		Short: "Run the edge guard in front of an upstream site",
		Long: `Proxies every request to --upstream. Requests for protected paths that
arrive without the session marker cookie are redirected to the login page
instead.`,
		Args: cobra.NoArgs,
		RunE: runGuard,
	}

	def := middleware.DefaultGuardConfig()
	f := cmd.Flags()
	f.String("listen", ":3000", "listen address")
	f.String("upstream", "http://127.0.0.1:8080", "site to proxy to")
	f.StringSlice("protect", def.ProtectedPrefixes, "protected path prefixes")
	f.String("login-path", def.LoginPath, "redirect target for unauthenticated requests")
	f.String("cookie-name", def.CookieName, "session marker cookie name")
	f.String("next-param", def.NextParam, "query parameter carrying the original URI; empty disables it")

	_ = viper.BindPFlag("guard.listen", f.Lookup("listen"))
	_ = viper.BindPFlag("guard.upstream", f.Lookup("upstream"))
	_ = viper.BindPFlag("guard.protect", f.Lookup("protect"))
	_ = viper.BindPFlag("guard.login_path", f.Lookup("login-path"))
	_ = viper.BindPFlag("guard.cookie_name", f.Lookup("cookie-name"))
	_ = viper.BindPFlag("guard.next_param", f.Lookup("next-param"))
	return cmd
}

func runGuard(cmd *cobra.Command, _ []string) error {
	log := newLogger("guard")
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	upstream, err := url.Parse(viper.GetString("guard.upstream"))
	if err != nil || upstream.Host == "" {
		return fmt.Errorf("guard: bad upstream %q", viper.GetString("guard.upstream"))
	}

	cfg := middleware.GuardConfig{
		ProtectedPrefixes: viper.GetStringSlice("guard.protect"),
		LoginPath:         viper.GetString("guard.login_path"),
		CookieName:        viper.GetString("guard.cookie_name"),
		NextParam:         viper.GetString("guard.next_param"),
	}

	r := newRouter(log)
	r.Use(middleware.Guard(cfg))
	r.Handle("/*", httputil.NewSingleHostReverseProxy(upstream))

	log.Info().Str("upstream", upstream.String()).Strs("protect", cfg.ProtectedPrefixes).Msg("tabAuth: guard ready")
	return serve(ctx, viper.GetString("guard.listen"), r, log)
}
