package tabAuth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/quillpress/tabAuth/bridge"
	"github.com/quillpress/tabAuth/internal/audit"
	"github.com/quillpress/tabAuth/internal/flows"
	"github.com/quillpress/tabAuth/refresh"
	"github.com/quillpress/tabAuth/tokenapi"
	"github.com/quillpress/tabAuth/tokenstore"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Refresher exchanges the renewal credential for a new access token.
type Refresher = flows.Refresher

// Invalidator revokes the renewal credential on logout.
type Invalidator = flows.Invalidator

// CredentialExchanger trades a username and password for an access grant.
type CredentialExchanger = flows.CredentialExchanger

// TokenAPI is the full issuer client; *tokenapi.Client implements it.
type TokenAPI interface {
	Refresher
	Invalidator
	CredentialExchanger
}

var _ TokenAPI = (*tokenapi.Client)(nil)

// Builder assembles a [Manager]. It can be used once.
type Builder struct {
	config Config

	store  tokenstore.Store
	redis  redis.UniversalClient
	bridge bridge.Bridge
	jar    http.CookieJar
	origin string

	refresher   Refresher
	invalidator Invalidator
	exchanger   CredentialExchanger

	logger         *zerolog.Logger
	auditSink      AuditSink
	clock          refresh.Clock
	onForcedLogout func(Session, error)
	tabID          string

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithTokenStore sets the store directly. It takes precedence over WithRedis.
func (b *Builder) WithTokenStore(store tokenstore.Store) *Builder {
	b.store = store
	return b
}

// WithRedis persists the session in Redis under Config.Store settings, keyed
// by tab ID.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithBridge sets the bridge directly. It takes precedence over WithCookieJar.
func (b *Builder) WithBridge(br bridge.Bridge) *Builder {
	b.bridge = br
	return b
}

// WithCookieJar mirrors the marker into jar for origin using Config.Bridge
// settings.
func (b *Builder) WithCookieJar(jar http.CookieJar, origin string) *Builder {
	b.jar = jar
	b.origin = origin
	return b
}

// WithTokenAPI uses api for renewal, invalidation and password login.
// Individual With* setters called later override it.
func (b *Builder) WithTokenAPI(api TokenAPI) *Builder {
	b.refresher = api
	b.invalidator = api
	b.exchanger = api
	return b
}

func (b *Builder) WithRefresher(r Refresher) *Builder {
	b.refresher = r
	return b
}

func (b *Builder) WithInvalidator(i Invalidator) *Builder {
	b.invalidator = i
	return b
}

func (b *Builder) WithCredentialExchanger(e CredentialExchanger) *Builder {
	b.exchanger = e
	return b
}

// WithLogger sets the logger. The default discards everything.
func (b *Builder) WithLogger(log zerolog.Logger) *Builder {
	b.logger = &log
	return b
}

// WithAuditSink sets the event sink. The default logs events.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock replaces the renewal ticker source.
func (b *Builder) WithClock(c refresh.Clock) *Builder {
	b.clock = c
	return b
}

// WithForcedLogoutHook registers fn, called once each time a failed renewal
// ends the session. fn runs on the renewal goroutine and must not call Logout.
func (b *Builder) WithForcedLogoutHook(fn func(prev Session, cause error)) *Builder {
	b.onForcedLogout = fn
	return b
}

// WithTabID pins the tab ID, for resuming a tab across process restarts. A new
// UUID is generated otherwise.
func (b *Builder) WithTabID(id string) *Builder {
	b.tabID = id
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a Manager in the
// unauthenticated state. Call [Manager.Hydrate] to restore a persisted session.
func (b *Builder) Build() (*Manager, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.refresher == nil {
		return nil, ErrRefresherRequired
	}

	tabID := b.tabID
	if tabID == "" {
		tabID = tokenstore.NewTabID()
	}

	log := zerolog.Nop()
	if b.logger != nil {
		log = *b.logger
	}
	log = log.With().Str("tab_id", tabID).Logger()

	// -------- TOKEN STORE --------
	store := b.store
	if store == nil && b.redis != nil {
		rs, err := tokenstore.NewRedisStore(b.redis, cfg.Store.RedisPrefix, tabID, cfg.Store.TabTTL)
		if err != nil {
			return nil, err
		}
		store = rs
	}
	if store == nil {
		store = tokenstore.NewMemoryStore()
	}

	// -------- BRIDGE --------
	br := b.bridge
	if br == nil && b.jar != nil {
		jb, err := bridge.NewJarBridge(b.jar, b.origin, bridge.CookieOptions{
			Name:   cfg.Bridge.CookieName,
			Path:   cfg.Bridge.CookiePath,
			MaxAge: cfg.Bridge.MaxAge,
		})
		if err != nil {
			return nil, err
		}
		br = jb
	}
	if br == nil {
		br = bridge.Nop{}
	}

	metrics := NewMetrics(cfg.Metrics)

	// -------- AUDIT --------
	sink := b.auditSink
	if sink == nil {
		sink = audit.NewLogSink(log)
	}
	dispatcher := audit.NewDispatcher(audit.Config{
		Enabled:      cfg.Audit.Enabled,
		BufferSize:   cfg.Audit.BufferSize,
		DropIfFull:   cfg.Audit.DropIfFull,
		FlushTimeout: cfg.Audit.FlushTimeout,
	}, sink)

	clock := b.clock
	if clock == nil {
		clock = refresh.SystemClock()
	}

	baseCtx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		cfg:            cfg,
		tabID:          tabID,
		store:          store,
		bridge:         br,
		clock:          clock,
		log:            log,
		metrics:        metrics,
		audit:          dispatcher,
		onForcedLogout: b.onForcedLogout,
		baseCtx:        baseCtx,
		cancelBase:     cancel,
		watchers:       make(map[uint64]chan Session),
	}
	m.current.Store(newSession("", nil, 0))

	m.flows = flows.Deps{
		Refresh: flows.RefreshDeps{
			Refresher: b.refresher,
			Policy: flows.RefreshPolicy{
				MaxRetries:      cfg.Refresh.MaxRetries,
				InitialInterval: cfg.Refresh.InitialBackoff,
				MaxInterval:     cfg.Refresh.MaxBackoff,
				MaxElapsed:      cfg.Token.SafetyMargin,
			},
			AttemptTimeout: cfg.Token.RequestTimeout,
			IsMalformed:    isMalformedResponse,
			IsRejected:     tokenapi.IsRejected,
			OnRetry: func(err error, wait time.Duration) {
				metrics.Inc(MetricRefreshRetried)
				log.Debug().Err(err).Dur("wait", wait).Msg("tabAuth: retrying session refresh")
			},
		},
		Logout: flows.LogoutDeps{
			Invalidator: b.invalidator,
			Timeout:     cfg.Token.RequestTimeout,
		},
		Login: flows.LoginDeps{
			Exchanger:   b.exchanger,
			IsMalformed: isMalformedResponse,
			IsRejected:  tokenapi.IsRejected,
		},
	}

	b.built = true
	return m, nil
}

func isMalformedResponse(err error) bool {
	return errors.Is(err, tokenapi.ErrMalformedResponse)
}
