package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/quillpress/tabAuth/issuer"
	"github.com/quillpress/tabAuth/jwt"
	"github.com/quillpress/tabAuth/password"
)

// issuerUser is one seeded account. Exactly one of Password or PasswordHash
// should be set.
type issuerUser struct {
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	PasswordHash string `mapstructure:"password_hash"`
	Admin        bool   `mapstructure:"admin"`
}

func newIssuerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issuer",
		Short: "Run a local token issuer",
		Long: `Serves /token/, /token/refresh/ and /token/blacklist/ the way the blog
backend does, with users seeded from flags or the config file.

Users given with --user take the form name:password or name:password:admin.`,
		Args: cobra.NoArgs,
		RunE: runIssuer,
	}

	f := cmd.Flags()
	f.String("listen", ":8000", "listen address")
	f.StringSlice("user", nil, "seed user as name:password[:admin] (repeatable)")
	f.Duration("access-ttl", 5*time.Minute, "access token lifetime")
	f.Duration("renewal-ttl", 24*time.Hour, "renewal cookie lifetime")
	f.String("signing-secret", "", "HS256 secret (at least 32 bytes); an ephemeral Ed25519 key is used when empty")
	f.String("token-issuer", "tabauth-dev", "iss claim")
	f.String("redis", "miniredis", `redis address for the denylist and login throttle, or "miniredis" for in-process`)
	f.String("denylist", "redis", `renewal denylist backend: "redis" or "memory"`)
	f.Int("max-login-failures", issuer.DefaultThrottleConfig().MaxFailures, "failed logins allowed per username per window; 0 disables throttling")
	f.Duration("login-window", issuer.DefaultThrottleConfig().Window, "failed login counting window")
	f.Bool("throttle-per-ip", false, "also count failed logins per client IP")
	f.Bool("secure-cookie", false, "always set Secure on the renewal cookie")

	for _, name := range []string{"listen", "user", "access-ttl", "renewal-ttl", "signing-secret", "token-issuer", "redis", "denylist", "max-login-failures", "login-window", "throttle-per-ip", "secure-cookie"} {
		_ = viper.BindPFlag("issuer."+strings.ReplaceAll(name, "-", "_"), f.Lookup(name))
	}
	return cmd
}

func runIssuer(cmd *cobra.Command, _ []string) error {
	log := newLogger("issuer")
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tokens, err := newTokenManager()
	if err != nil {
		return err
	}
	if viper.GetString("issuer.signing_secret") == "" {
		log.Warn().Msg("tabAuth: no signing secret configured, tokens will not survive a restart")
	}

	hasher, err := password.New(password.DefaultConfig())
	if err != nil {
		return err
	}
	users, err := seedUsers(hasher)
	if err != nil {
		return err
	}
	if users.Len() == 0 {
		return fmt.Errorf("issuer: no users configured, pass --user name:password")
	}

	rdb, cleanup, err := openRedis(ctx, viper.GetString("issuer.redis"), log)
	if err != nil {
		return err
	}
	defer cleanup()

	deny, err := newDenylist(rdb)
	if err != nil {
		return err
	}
	opts := []issuer.Option{
		issuer.WithLogger(log),
		issuer.WithSecureCookie(viper.GetBool("issuer.secure_cookie")),
	}
	if limit := viper.GetInt("issuer.max_login_failures"); limit > 0 {
		limiter, err := issuer.NewRedisLoginLimiter(rdb, "tabauth-issuer", issuer.ThrottleConfig{
			MaxFailures: limit,
			Window:      viper.GetDuration("issuer.login_window"),
			PerIP:       viper.GetBool("issuer.throttle_per_ip"),
		})
		if err != nil {
			return err
		}
		opts = append(opts, issuer.WithLoginLimiter(limiter))
	}

	srv, err := issuer.New(tokens, hasher, users, deny, opts...)
	if err != nil {
		return err
	}

	r := newRouter(log)
	r.Mount("/", srv.Routes())

	log.Info().Int("users", users.Len()).Msg("tabAuth: issuer ready")
	return serve(ctx, viper.GetString("issuer.listen"), r, log)
}

func newTokenManager() (*jwt.Manager, error) {
	cfg := jwt.Config{
		AccessTTL:  viper.GetDuration("issuer.access_ttl"),
		RenewalTTL: viper.GetDuration("issuer.renewal_ttl"),
		Issuer:     viper.GetString("issuer.token_issuer"),
		Leeway:     5 * time.Second,
	}

	if secret := viper.GetString("issuer.signing_secret"); secret != "" {
		cfg.SigningMethod = jwt.MethodHS256
		cfg.PrivateKey = []byte(secret)
	} else {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
		cfg.SigningMethod = jwt.MethodEd25519
		cfg.PrivateKey = priv
		cfg.PublicKey = pub
	}
	return jwt.NewManager(cfg)
}

func seedUsers(hasher *password.Hasher) (*issuer.UserTable, error) {
	var seeds []issuerUser
	if err := viper.UnmarshalKey("issuer.users", &seeds); err != nil {
		return nil, fmt.Errorf("issuer: decode users: %w", err)
	}
	for _, entry := range viper.GetStringSlice("issuer.user") {
		u, err := parseUserFlag(entry)
		if err != nil {
			return nil, err
		}
		seeds = append(seeds, u)
	}

	users := issuer.NewUserTable()
	for _, s := range seeds {
		hash := s.PasswordHash
		if hash == "" {
			var err error
			if hash, err = hasher.Hash(s.Password); err != nil {
				return nil, fmt.Errorf("issuer: user %q: %w", s.Username, err)
			}
		}
		if err := users.Put(issuer.User{Username: s.Username, PasswordHash: hash, IsAdmin: s.Admin}); err != nil {
			return nil, err
		}
	}
	return users, nil
}

func parseUserFlag(entry string) (issuerUser, error) {
	parts := strings.Split(entry, ":")
	switch {
	case len(parts) == 2:
		return issuerUser{Username: parts[0], Password: parts[1]}, nil
	case len(parts) == 3 && parts[2] == "admin":
		return issuerUser{Username: parts[0], Password: parts[1], Admin: true}, nil
	default:
		return issuerUser{}, fmt.Errorf("issuer: bad --user %q, want name:password[:admin]", entry)
	}
}

func newDenylist(rdb redis.UniversalClient) (issuer.Denylist, error) {
	switch backend := viper.GetString("issuer.denylist"); backend {
	case "memory":
		return issuer.NewMemoryDenylist(nil), nil
	case "", "redis":
		return issuer.NewRedisDenylist(rdb, "tabauth-issuer")
	default:
		return nil, fmt.Errorf("issuer: unknown denylist backend %q", backend)
	}
}
