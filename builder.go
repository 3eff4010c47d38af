package emailauth

import (
	"errors"
	"html/template"

	"github.com/krista-software/krista-email-authentication/mailer"
	"github.com/krista-software/krista-email-authentication/session"
	"github.com/redis/go-redis/v9"
)

// Builder defines a public type used by emailauth APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  *redis.Client

	accounts  Accounts
	roles     Roles
	workspace Workspace

	mailFactory  mailer.TransportFactory
	mailTemplate *template.Template
	auditSink    AuditSink

	built bool
}

// New describes the new operation and its observable behavior.
//
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// WithRedis does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithAccounts describes the withaccounts operation and its observable behavior.
//
// WithAccounts does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAccounts(accounts Accounts) *Builder {
	b.accounts = accounts
	return b
}

// WithRoles describes the withroles operation and its observable behavior.
//
// WithRoles does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRoles(roles Roles) *Builder {
	b.roles = roles
	return b
}

// WithWorkspace describes the withworkspace operation and its observable behavior.
//
// WithWorkspace does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithWorkspace(workspace Workspace) *Builder {
	b.workspace = workspace
	return b
}

// WithMailTransport overrides the SMTP transport derived from Config.SMTP.
// Use it to plug in the host platform's default mail server or a test double.
func (b *Builder) WithMailTransport(factory mailer.TransportFactory) *Builder {
	b.mailFactory = factory
	return b
}

// WithMailTemplate overrides the default verification mail body template.
func (b *Builder) WithMailTemplate(tmpl *template.Template) *Builder {
	b.mailTemplate = tmpl
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = sink != nil
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
//
// WithLatencyHistograms does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.accounts == nil {
		return nil, errors.New("account directory required")
	}
	if b.roles == nil {
		return nil, errors.New("role directory required")
	}
	if b.mailFactory == nil && cfg.SMTP.UseDefaultMailServer {
		return nil, errors.New("default mail server requires WithMailTransport")
	}

	// An injected transport supersedes the SMTP settings, so they are not
	// required to be present.
	check := cfg
	if b.mailFactory != nil {
		check.SMTP.UseDefaultMailServer = true
	}
	if err := check.Validate(); err != nil {
		return nil, err
	}

	metrics := NewMetrics(cfg.Metrics)

	engine := &Engine{
		config:    cfg,
		links:     newLinkStore(b.redis),
		sessions:  session.NewStore(b.redis),
		limiter:   newRequestLimiter(b.redis, cfg.RequestLimit),
		mailTmpl:  b.mailTemplate,
		workspace: b.workspace,
		audit:     newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:   metrics,
	}
	engine.provisioner = newProvisioner(b.accounts, b.roles, metrics)

	factory := b.mailFactory
	if factory == nil {
		factory = mailer.NewSMTPFactory(cfg.SMTP)
	}

	engine.mail = mailer.NewDispatcher(factory, mailer.DispatcherConfig{
		QueueSize: cfg.Mail.QueueSize,
		OnResult:  engine.onMailResult,
	})

	b.built = true
	return engine, nil
}
