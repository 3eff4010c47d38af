package emailauth

import (
	"errors"
	"testing"
	"time"
)

func TestParseAttributesDefaults(t *testing.T) {
	cfg, err := ParseAttributes(map[string]string{
		AttrKeyUseDefaultMailer: "true",
	})
	if err != nil {
		t.Fatalf("ParseAttributes failed: %v", err)
	}

	if len(cfg.SupportedDomains) != 0 {
		t.Fatalf("expected open domain policy, got %v", cfg.SupportedDomains)
	}
	if cfg.AllowNewAccounts {
		t.Fatal("account creation must default to disabled")
	}
	if len(cfg.DefaultRoles) != 1 || cfg.DefaultRoles[0] != DefaultRole {
		t.Fatalf("expected default role fallback, got %v", cfg.DefaultRoles)
	}
	if cfg.LinkTTL != 30*time.Minute {
		t.Fatalf("expected 30m link TTL, got %v", cfg.LinkTTL)
	}
}

func TestParseAttributesDomains(t *testing.T) {
	cfg, err := ParseAttributes(map[string]string{
		AttrKeySupportedDomains: " KristaSoft.COM , example.org, kristasoft.com ",
		AttrKeyUseDefaultMailer: "true",
	})
	if err != nil {
		t.Fatalf("ParseAttributes failed: %v", err)
	}

	want := []string{"kristasoft.com", "example.org"}
	if len(cfg.SupportedDomains) != len(want) {
		t.Fatalf("expected %v, got %v", want, cfg.SupportedDomains)
	}
	for i, domain := range want {
		if cfg.SupportedDomains[i] != domain {
			t.Fatalf("expected %v, got %v", want, cfg.SupportedDomains)
		}
	}
}

func TestParseAttributesInvalidDomainFailsFast(t *testing.T) {
	_, err := ParseAttributes(map[string]string{
		AttrKeySupportedDomains: "kristasoft.com, not a domain",
		AttrKeyUseDefaultMailer: "true",
	})
	if !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
}

func TestParseAttributesBooleans(t *testing.T) {
	for raw, want := range map[string]bool{
		"true":  true,
		"TRUE":  true,
		" True": true,
		"false": false,
		"yes":   false,
		"1":     false,
		"":      false,
	} {
		cfg, err := ParseAttributes(map[string]string{
			AttrKeyAllowNewAccounts: raw,
			AttrKeyUseDefaultMailer: "true",
		})
		if err != nil {
			t.Fatalf("ParseAttributes(%q) failed: %v", raw, err)
		}
		if cfg.AllowNewAccounts != want {
			t.Fatalf("AllowNewAccounts for %q = %v, want %v", raw, cfg.AllowNewAccounts, want)
		}
	}
}

func TestParseAttributesSMTP(t *testing.T) {
	cfg, err := ParseAttributes(map[string]string{
		AttrKeySenderEmail: "noreply@kristasoft.com",
		AttrKeySMTPHost:    "smtp.kristasoft.com",
		AttrKeySMTPPort:    "587",
	})
	if err != nil {
		t.Fatalf("ParseAttributes failed: %v", err)
	}

	if cfg.SMTP.Host != "smtp.kristasoft.com" || cfg.SMTP.Port != 587 {
		t.Fatalf("unexpected SMTP config %+v", cfg.SMTP)
	}
	// A blank sender account falls back to the sender address.
	if cfg.SMTP.Account != "noreply@kristasoft.com" {
		t.Fatalf("expected account fallback, got %q", cfg.SMTP.Account)
	}
}

func TestParseAttributesSMTPAccountOverride(t *testing.T) {
	cfg, err := ParseAttributes(map[string]string{
		AttrKeySenderEmail:   "noreply@kristasoft.com",
		AttrKeySenderAccount: "mailer-svc",
		AttrKeySMTPHost:      "smtp.kristasoft.com",
		AttrKeySMTPPort:      "465",
	})
	if err != nil {
		t.Fatalf("ParseAttributes failed: %v", err)
	}
	if cfg.SMTP.Account != "mailer-svc" {
		t.Fatalf("expected explicit account, got %q", cfg.SMTP.Account)
	}
}

func TestParseAttributesPortErrors(t *testing.T) {
	if _, err := ParseAttributes(map[string]string{
		AttrKeySMTPPort: "not-a-port",
	}); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid for bad port, got %v", err)
	}

	// A port is required unless the platform's default mail server is used.
	if _, err := ParseAttributes(map[string]string{
		AttrKeySMTPHost: "smtp.kristasoft.com",
	}); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid for missing port, got %v", err)
	}
	if _, err := ParseAttributes(map[string]string{
		AttrKeyUseDefaultMailer: "true",
	}); err != nil {
		t.Fatalf("port must be optional with the default mail server: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	base := func() Config {
		cfg := defaultConfig()
		cfg.ServerURL = "https://login.example.com"
		cfg.SMTP.UseDefaultMailServer = true
		return cfg
	}

	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "defaults valid",
			mutate:    func(*Config) {},
			wantValid: true,
		},
		{
			name:      "missing server url",
			mutate:    func(c *Config) { c.ServerURL = "" },
			wantValid: false,
		},
		{
			name:      "zero link ttl",
			mutate:    func(c *Config) { c.LinkTTL = 0 },
			wantValid: false,
		},
		{
			name:      "no default roles",
			mutate:    func(c *Config) { c.DefaultRoles = nil },
			wantValid: false,
		},
		{
			name:      "zero mail queue",
			mutate:    func(c *Config) { c.Mail.QueueSize = 0 },
			wantValid: false,
		},
		{
			name: "explicit smtp valid",
			mutate: func(c *Config) {
				c.SMTP.UseDefaultMailServer = false
				c.SMTP.Host = "smtp.example.com"
				c.SMTP.Port = 587
				c.SMTP.Sender = "noreply@example.com"
			},
			wantValid: true,
		},
		{
			name: "explicit smtp missing host",
			mutate: func(c *Config) {
				c.SMTP.UseDefaultMailServer = false
				c.SMTP.Port = 587
				c.SMTP.Sender = "noreply@example.com"
			},
			wantValid: false,
		},
		{
			name: "explicit smtp port out of range",
			mutate: func(c *Config) {
				c.SMTP.UseDefaultMailServer = false
				c.SMTP.Host = "smtp.example.com"
				c.SMTP.Port = 70000
				c.SMTP.Sender = "noreply@example.com"
			},
			wantValid: false,
		},
		{
			name: "rate limit window required",
			mutate: func(c *Config) {
				c.RequestLimit = RequestLimitConfig{Enabled: true, MaxRequests: 5}
			},
			wantValid: false,
		},
		{
			name: "audit buffer required",
			mutate: func(c *Config) {
				c.Audit = AuditConfig{Enabled: true}
			},
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCloneConfigIsolation(t *testing.T) {
	cfg := defaultConfig()
	cfg.SupportedDomains = []string{"kristasoft.com"}

	clone := cloneConfig(cfg)
	clone.SupportedDomains[0] = "mutated.com"
	clone.DefaultRoles[0] = "mutated"

	if cfg.SupportedDomains[0] != "kristasoft.com" {
		t.Fatal("clone must not alias the domain slice")
	}
	if cfg.DefaultRoles[0] != DefaultRole {
		t.Fatal("clone must not alias the role slice")
	}
}

func TestConfigProviderSwapOnUpdate(t *testing.T) {
	provider, err := NewConfigProvider(map[string]string{
		AttrKeySupportedDomains: "kristasoft.com",
		AttrKeyUseDefaultMailer: "true",
	})
	if err != nil {
		t.Fatalf("NewConfigProvider failed: %v", err)
	}

	before := provider.Config()
	if len(before.SupportedDomains) != 1 {
		t.Fatalf("unexpected initial domains %v", before.SupportedDomains)
	}

	if err := provider.Update(map[string]string{
		AttrKeySupportedDomains: "kristasoft.com, example.org",
		AttrKeyUseDefaultMailer: "true",
	}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	after := provider.Config()
	if len(after.SupportedDomains) != 2 {
		t.Fatalf("expected updated domains, got %v", after.SupportedDomains)
	}
	// The snapshot handed out before the update is unchanged.
	if len(before.SupportedDomains) != 1 {
		t.Fatal("update must not mutate previously returned snapshots")
	}
}

func TestConfigProviderKeepsSnapshotOnParseFailure(t *testing.T) {
	provider, err := NewConfigProvider(map[string]string{
		AttrKeyUseDefaultMailer: "true",
	})
	if err != nil {
		t.Fatalf("NewConfigProvider failed: %v", err)
	}

	if err := provider.Update(map[string]string{
		AttrKeySMTPPort: "not-a-port",
	}); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}

	cfg := provider.Config()
	if !cfg.SMTP.UseDefaultMailServer {
		t.Fatal("failed update must leave the previous snapshot in place")
	}
}

func TestConfigProviderRejectsInvalidInitialAttributes(t *testing.T) {
	if _, err := NewConfigProvider(map[string]string{
		AttrKeySupportedDomains: "%%bad",
		AttrKeyUseDefaultMailer: "true",
	}); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
}
