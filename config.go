package tabAuth

import (
	"errors"
	"time"
)

// Config is the Manager configuration. Start from [DefaultConfig] and adjust.
type Config struct {
	Token   TokenConfig   `mapstructure:"token"`
	Refresh RefreshConfig `mapstructure:"refresh"`
	Store   StoreConfig   `mapstructure:"store"`
	Bridge  BridgeConfig  `mapstructure:"bridge"`
	Audit   AuditConfig   `mapstructure:"audit"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

/*
====================================
TOKEN TIMING
====================================
*/

// TokenConfig describes the issuer's access token lifetime and the timing
// budget for renewing it.
//
// Renewal fires every AccessLifetime - SafetyMargin. The margin must cover at
// least ten expected round trips so a renewal lands before the old token
// expires even on a slow link.
type TokenConfig struct {
	AccessLifetime time.Duration `mapstructure:"access_lifetime"`
	SafetyMargin   time.Duration `mapstructure:"safety_margin"`
	ExpectedRTT    time.Duration `mapstructure:"expected_rtt"`
	// RequestTimeout bounds each renewal, invalidation and credential exchange call.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// RefreshConfig is the renewal failure policy. MaxRetries 0 forces logout on
// the first failed renewal.
type RefreshConfig struct {
	MaxRetries     int           `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

// StoreConfig applies to the Redis token store created by [Builder.WithRedis].
type StoreConfig struct {
	RedisPrefix string `mapstructure:"redis_prefix"`
	// TabTTL bounds how long an abandoned tab's record survives. 0 keeps it
	// until logout.
	TabTTL time.Duration `mapstructure:"tab_ttl"`
}

// BridgeConfig applies to the cookie bridge created by [Builder.WithCookieJar].
type BridgeConfig struct {
	CookieName string        `mapstructure:"cookie_name"`
	CookiePath string        `mapstructure:"cookie_path"`
	MaxAge     time.Duration `mapstructure:"max_age"`
}

type AuditConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	BufferSize int  `mapstructure:"buffer_size"`
	DropIfFull bool `mapstructure:"drop_if_full"`

	// FlushTimeout bounds how long Close waits for the audit sink.
	FlushTimeout time.Duration `mapstructure:"flush_timeout"`
}

type MetricsConfig struct {
	Enabled                 bool `mapstructure:"enabled"`
	EnableLatencyHistograms bool `mapstructure:"enable_latency_histograms"`
}

// DefaultConfig returns the defaults: a five minute access token renewed one
// minute before expiry, no retries, audit and metrics on.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessLifetime: 5 * time.Minute,
			SafetyMargin:   time.Minute,
			ExpectedRTT:    2 * time.Second,
			RequestTimeout: 10 * time.Second,
		},
		Refresh: RefreshConfig{
			MaxRetries:     0,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
		},
		Store: StoreConfig{
			RedisPrefix: "tabauth",
			TabTTL:      12 * time.Hour,
		},
		Bridge: BridgeConfig{
			CookieName: "accessToken",
			CookiePath: "/",
			MaxAge:     7 * 24 * time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize:   64,
			DropIfFull:   true,
			FlushTimeout: 2 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	return cfg
}

// RefreshPeriod returns the renewal interval.
func (c *Config) RefreshPeriod() time.Duration {
	return c.Token.AccessLifetime - c.Token.SafetyMargin
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Token timing
	if c.Token.AccessLifetime <= 0 {
		return errors.New("Token AccessLifetime must be > 0")
	}
	if c.Token.SafetyMargin <= 0 {
		return errors.New("Token SafetyMargin must be > 0")
	}
	if c.Token.SafetyMargin >= c.Token.AccessLifetime {
		return errors.New("Token SafetyMargin must be < AccessLifetime")
	}
	if c.Token.ExpectedRTT <= 0 {
		return errors.New("Token ExpectedRTT must be > 0")
	}
	if c.Token.SafetyMargin < 10*c.Token.ExpectedRTT {
		return errors.New("Token SafetyMargin must be >= 10x ExpectedRTT")
	}
	if c.Token.RequestTimeout <= 0 {
		return errors.New("Token RequestTimeout must be > 0")
	}
	if c.Token.RequestTimeout > c.Token.SafetyMargin {
		return errors.New("Token RequestTimeout must be <= SafetyMargin")
	}

	// Refresh policy
	if c.Refresh.MaxRetries < 0 {
		return errors.New("Refresh MaxRetries must be >= 0")
	}
	if c.Refresh.MaxRetries > 0 {
		if c.Refresh.InitialBackoff <= 0 {
			return errors.New("Refresh InitialBackoff must be > 0 when retries are enabled")
		}
		if c.Refresh.MaxBackoff < c.Refresh.InitialBackoff {
			return errors.New("Refresh MaxBackoff must be >= InitialBackoff")
		}
	}

	// Store
	if c.Store.TabTTL < 0 {
		return errors.New("Store TabTTL must be >= 0")
	}
	if c.Store.TabTTL > 0 && c.Store.TabTTL <= c.RefreshPeriod() {
		return errors.New("Store TabTTL must exceed the refresh period")
	}

	// Bridge
	if c.Bridge.MaxAge < 0 {
		return errors.New("Bridge MaxAge must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	if c.Audit.FlushTimeout < 0 {
		return errors.New("Audit FlushTimeout must be >= 0")
	}

	return nil
}
