package emailauth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/krista-software/krista-email-authentication/address"
	"github.com/krista-software/krista-email-authentication/mailer"
)

// Invoker attribute keys, as supplied by the workspace administrator.
const (
	AttrKeySupportedDomains = "Supported Domains"
	AttrKeyAllowNewAccounts = "Allow New Account Creation"
	AttrKeyDefaultRoles     = "Default Roles for New Accounts"
	AttrKeyUseDefaultMailer = "Use Default Mail Server"
	AttrKeySenderEmail      = "Email Address of Sender"
	AttrKeySenderAccount    = "Sender Account"
	AttrKeySenderPassword   = "Sender Password"
	AttrKeySMTPHost         = "SMTP Host"
	AttrKeySMTPPort         = "SMTP Port"
)

// DefaultRole is assigned to accounts provisioned without any configured role names.
const DefaultRole = "Krista Client User"

const defaultLinkTTL = 30 * time.Minute

// RequestLimitConfig defines a public type used by emailauth APIs.
//
// RequestLimitConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type RequestLimitConfig struct {
	Enabled     bool
	MaxRequests int
	Window      time.Duration
}

// AuditConfig defines a public type used by emailauth APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by emailauth APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// MailConfig defines a public type used by emailauth APIs.
//
// MailConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MailConfig struct {
	QueueSize int
	Subject   string
}

// Config defines a public type used by emailauth APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	// ServerURL is the externally reachable base URL embedded in
	// verification links, without a trailing slash.
	ServerURL string

	// SupportedDomains restricts logins to the listed email domains.
	// Empty means every domain is allowed.
	SupportedDomains []string

	AllowNewAccounts bool
	DefaultRoles     []string
	LinkTTL          time.Duration

	SMTP mailer.SMTPConfig
	Mail MailConfig

	RequestLimit RequestLimitConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

func defaultConfig() Config {
	return Config{
		DefaultRoles: []string{DefaultRole},
		LinkTTL:      defaultLinkTTL,
		Mail: MailConfig{
			QueueSize: 256,
			Subject:   "Login verification",
		},
		RequestLimit: RequestLimitConfig{
			Enabled:     true,
			MaxRequests: 10,
			Window:      5 * time.Minute,
		},
		Audit: AuditConfig{
			BufferSize: 1024,
			DropIfFull: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.SupportedDomains = append([]string(nil), cfg.SupportedDomains...)
	out.DefaultRoles = append([]string(nil), cfg.DefaultRoles...)
	return out
}

// ParseAttributes builds a Config from the invoker's flat attribute map.
//
// Parsing is fail-fast: an invalid domain list or an unparsable SMTP port is a
// hard ErrConfigInvalid, never a silent default. Comma-separated multi-valued
// attributes are split and trimmed; domains are additionally validated and
// de-duplicated case-insensitively preserving first-seen order. A blank sender
// account falls back to the sender email address.
func ParseAttributes(attributes map[string]string) (Config, error) {
	cfg := defaultConfig()

	domains, err := address.NormalizeDomains(splitList(attributes[AttrKeySupportedDomains]))
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s: %v", ErrConfigInvalid, AttrKeySupportedDomains, err)
	}
	cfg.SupportedDomains = domains

	cfg.AllowNewAccounts = strings.EqualFold(strings.TrimSpace(attributes[AttrKeyAllowNewAccounts]), "true")

	if roles := splitList(attributes[AttrKeyDefaultRoles]); len(roles) > 0 {
		cfg.DefaultRoles = roles
	}

	cfg.SMTP.UseDefaultMailServer = strings.EqualFold(strings.TrimSpace(attributes[AttrKeyUseDefaultMailer]), "true")
	cfg.SMTP.Sender = strings.TrimSpace(attributes[AttrKeySenderEmail])
	cfg.SMTP.Account = strings.TrimSpace(attributes[AttrKeySenderAccount])
	cfg.SMTP.Password = attributes[AttrKeySenderPassword]
	cfg.SMTP.Host = strings.TrimSpace(attributes[AttrKeySMTPHost])

	if cfg.SMTP.Account == "" {
		cfg.SMTP.Account = cfg.SMTP.Sender
	}

	if raw, ok := attributes[AttrKeySMTPPort]; ok && strings.TrimSpace(raw) != "" {
		port, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s: %v", ErrConfigInvalid, AttrKeySMTPPort, err)
		}
		cfg.SMTP.Port = port
	} else if !cfg.SMTP.UseDefaultMailServer {
		return Config{}, fmt.Errorf("%w: %s required", ErrConfigInvalid, AttrKeySMTPPort)
	}

	return cfg, nil
}

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return errors.New("Config.ServerURL required")
	}
	if c.LinkTTL <= 0 {
		return errors.New("Config.LinkTTL must be positive")
	}
	if len(c.DefaultRoles) == 0 {
		return errors.New("Config.DefaultRoles must not be empty")
	}
	if c.Mail.QueueSize <= 0 {
		return errors.New("Config.Mail.QueueSize must be positive")
	}
	if !c.SMTP.UseDefaultMailServer {
		if c.SMTP.Host == "" {
			return errors.New("Config.SMTP.Host required")
		}
		if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
			return errors.New("Config.SMTP.Port out of range")
		}
		if c.SMTP.Sender == "" {
			return errors.New("Config.SMTP.Sender required")
		}
	}
	if c.RequestLimit.Enabled {
		if c.RequestLimit.MaxRequests <= 0 {
			return errors.New("Config.RequestLimit.MaxRequests must be positive")
		}
		if c.RequestLimit.Window <= 0 {
			return errors.New("Config.RequestLimit.Window must be positive")
		}
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Config.Audit.BufferSize must be positive")
	}
	return nil
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
