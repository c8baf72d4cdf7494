package tabAuth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
	if got := cfg.RefreshPeriod(); got != 4*time.Minute {
		t.Fatalf("expected 4m refresh period, got %v", got)
	}
}

func TestConfigValidateRejects(t *testing.T) {
	cases := map[string]struct {
		mutate func(*Config)
		want   string
	}{
		"zero lifetime":       {func(c *Config) { c.Token.AccessLifetime = 0 }, "AccessLifetime"},
		"zero margin":         {func(c *Config) { c.Token.SafetyMargin = 0 }, "SafetyMargin must be > 0"},
		"margin >= lifetime":  {func(c *Config) { c.Token.SafetyMargin = c.Token.AccessLifetime }, "SafetyMargin must be < AccessLifetime"},
		"margin under 10 rtt": {func(c *Config) { c.Token.ExpectedRTT = 7 * time.Second }, "10x ExpectedRTT"},
		"zero rtt":            {func(c *Config) { c.Token.ExpectedRTT = 0 }, "ExpectedRTT"},
		"timeout > margin":    {func(c *Config) { c.Token.RequestTimeout = 2 * time.Minute }, "RequestTimeout must be <= SafetyMargin"},
		"negative retries":    {func(c *Config) { c.Refresh.MaxRetries = -1 }, "MaxRetries"},
		"retries no backoff": {func(c *Config) {
			c.Refresh.MaxRetries = 2
			c.Refresh.InitialBackoff = 0
		}, "InitialBackoff"},
		"ttl under period": {func(c *Config) { c.Store.TabTTL = time.Minute }, "TabTTL must exceed"},
		"audit buffer":     {func(c *Config) { c.Audit.BufferSize = 0 }, "Audit BufferSize"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Token.SafetyMargin = 10 * time.Minute
	if _, err := New().WithConfig(cfg).WithRefresher(newFakeRefresher()).Build(); err == nil {
		t.Fatal("expected Build to reject invalid config")
	}
}

func TestBuildRequiresRefresher(t *testing.T) {
	if _, err := New().Build(); !errors.Is(err, ErrRefresherRequired) {
		t.Fatalf("expected ErrRefresherRequired, got %v", err)
	}
}

func TestBuilderSingleUse(t *testing.T) {
	b := New().WithRefresher(newFakeRefresher())
	m, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer m.Close()

	if _, err := b.Build(); !errors.Is(err, ErrBuilderUsed) {
		t.Fatalf("expected ErrBuilderUsed, got %v", err)
	}
}

func TestBuilderTabID(t *testing.T) {
	m, err := New().WithRefresher(newFakeRefresher()).WithTabID("tab-7").Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer m.Close()
	if m.TabID() != "tab-7" {
		t.Fatalf("expected pinned tab id, got %q", m.TabID())
	}

	other, _ := New().WithRefresher(newFakeRefresher()).Build()
	defer other.Close()
	if other.TabID() == "" || other.TabID() == m.TabID() {
		t.Fatalf("expected generated tab id, got %q", other.TabID())
	}
}
