package emailauth

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/krista-software/krista-email-authentication/address"
	"github.com/krista-software/krista-email-authentication/internal"
	"github.com/krista-software/krista-email-authentication/mailer"
	"github.com/krista-software/krista-email-authentication/session"
)

// Engine defines a public type used by emailauth APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config      Config
	links       *linkStore
	sessions    *session.Store
	provisioner *provisioner
	limiter     *requestLimiter
	mail        *mailer.Dispatcher
	mailTmpl    *template.Template
	workspace   Workspace
	audit       *auditDispatcher
	metrics     *Metrics
}

// Close describes the close operation and its observable behavior.
//
// Close drains the mail queue and the audit buffer before returning.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.mail != nil {
		_ = e.mail.Close()
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

// RequestLogin starts a login attempt for email: it validates input, enforces
// the domain allow-list, provisions the account when permitted, stores a
// fresh single-use verification link expiring after Config.LinkTTL, and
// queues the verification mail. originalURL is carried into the link so the
// user lands back where they started after verification.
//
// Policy denials surface as ErrDomainNotSupported and ErrNewAccountsDisabled
// with no link stored, no mail queued, and no account created.
func (e *Engine) RequestLogin(ctx context.Context, originalURL, email string) (*LoginResult, error) {
	if strings.TrimSpace(originalURL) == "" {
		e.metricInc(MetricLoginInvalidInput)
		e.emitAudit(ctx, auditEventLoginRejected, false, email, "", "", ErrOriginalURLRequired, nil)
		return nil, ErrOriginalURLRequired
	}

	normalized, err := address.NormalizeEmail(email)
	if err != nil {
		e.metricInc(MetricLoginInvalidInput)
		e.emitAudit(ctx, auditEventLoginRejected, false, email, "", "", ErrInvalidEmail, nil)
		return nil, ErrInvalidEmail
	}

	e.metricInc(MetricLoginRequested)

	if err := e.limiter.Check(ctx, normalized, clientIPFromContext(ctx)); err != nil {
		if errors.Is(err, errRequestRateLimited) {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventRateLimited, false, normalized, "", "", ErrLoginRateLimited, nil)
			return nil, ErrLoginRateLimited
		}
		e.metricInc(MetricStoreUnavailable)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	domain := address.DomainOf(normalized)
	if len(e.config.SupportedDomains) > 0 && !containsDomain(e.config.SupportedDomains, domain) {
		e.metricInc(MetricLoginDomainRejected)
		e.emitAudit(ctx, auditEventLoginRejected, false, normalized, "", "", ErrDomainNotSupported, func() map[string]string {
			return map[string]string{"domain": domain}
		})
		return nil, ErrDomainNotSupported
	}

	existing, err := e.provisioner.lookup(ctx, normalized)
	if err != nil {
		e.metricInc(MetricStoreUnavailable)
		e.emitAudit(ctx, auditEventLoginRejected, false, normalized, "", "", err, nil)
		return nil, err
	}
	if existing == nil && !e.config.AllowNewAccounts {
		e.metricInc(MetricLoginDenied)
		e.emitAudit(ctx, auditEventLoginRejected, false, normalized, "", "", ErrNewAccountsDisabled, nil)
		return nil, ErrNewAccountsDisabled
	}

	account, created, err := e.provisioner.Provision(ctx, normalized, e.config.DefaultRoles)
	if err != nil {
		e.emitAudit(ctx, auditEventLoginRejected, false, normalized, "", "", err, nil)
		return nil, err
	}
	if created {
		e.emitAudit(ctx, auditEventAccountProvision, true, normalized, account.ID, "", nil, nil)
	}

	secret, err := internal.NewLinkSecret()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	pendingSessionID := uuid.NewString()
	expiresAt := time.Now().Add(e.config.LinkTTL)

	record := &verificationLinkRecord{
		Email:            normalized,
		Secret:           secret,
		ExpiresAt:        expiresAt.Unix(),
		State:            linkStateGenerated,
		PendingSessionID: pendingSessionID,
		PendingAccountID: account.ID,
	}
	if err := e.links.Save(ctx, record); err != nil {
		e.metricInc(MetricStoreUnavailable)
		e.emitAudit(ctx, auditEventLoginRejected, false, normalized, account.ID, "", ErrStoreUnavailable, nil)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	body, err := mailer.RenderVerification(e.mailTmpl, mailer.VerificationEmail{
		Email:            normalized,
		VerifyURL:        e.verifyURL(secret, originalURL),
		ExpiresInMinutes: int(e.config.LinkTTL.Minutes()),
	})
	if err != nil {
		return nil, fmt.Errorf("render verification mail: %w", err)
	}

	if err := e.mail.Enqueue(mailer.Message{
		To:      normalized,
		Subject: e.config.Mail.Subject,
		Body:    body,
	}); err != nil {
		e.emitAudit(ctx, auditEventLoginRejected, false, normalized, account.ID, "", ErrMailQueueFull, nil)
		switch {
		case errors.Is(err, mailer.ErrQueueFull):
			return nil, ErrMailQueueFull
		case errors.Is(err, mailer.ErrDispatcherClosed):
			return nil, ErrEngineClosed
		default:
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	e.metricInc(MetricLinkIssued)
	e.metricInc(MetricEmailEnqueued)
	e.emitAudit(ctx, auditEventLoginRequested, true, normalized, account.ID, "", nil, func() map[string]string {
		return map[string]string{"pending_session_id": pendingSessionID}
	})

	return &LoginResult{
		Email:            normalized,
		PendingSessionID: pendingSessionID,
	}, nil
}

// VerifyLink consumes a verification code: the link must exist, be unexpired,
// still be in its generated state, and carry a secret matching the code, in
// that order. Domain policy is re-checked at verification time so a
// configuration change between request and click is honored. On success the
// link is atomically marked used and a fresh session is minted for the
// account the link was issued to.
//
// The session id written into the link at request time is never activated;
// every verified login gets a newly minted session.
func (e *Engine) VerifyLink(ctx context.Context, code, originalURL string) (*VerifyResult, error) {
	start := time.Now()
	defer func() {
		e.metrics.Observe(MetricVerifyLatency, time.Since(start))
	}()

	if code == "" || internal.ValidateLinkSecret(code) != nil {
		e.metricInc(MetricLinkNotFound)
		e.emitAudit(ctx, auditEventLinkRejected, false, "", "", "", ErrLinkNotFound, nil)
		return nil, ErrLinkNotFound
	}

	policy, err := e.verifyPolicy(ctx)
	if err != nil {
		e.metricInc(MetricStoreUnavailable)
		return nil, err
	}

	record, err := e.links.Consume(ctx, code, policy)
	if err != nil {
		mapped := mapLinkError(err)
		switch {
		case errors.Is(mapped, ErrLinkNotFound):
			e.metricInc(MetricLinkNotFound)
		case errors.Is(mapped, ErrLinkExpired):
			e.metricInc(MetricLinkExpired)
		case errors.Is(mapped, ErrLinkAlreadyUsed):
			e.metricInc(MetricLinkReplayed)
		case errors.Is(mapped, ErrLinkSecretMismatch):
			e.metricInc(MetricLinkSecretMismatch)
		case errors.Is(mapped, ErrDomainNotSupported):
			e.metricInc(MetricVerifyDomainRejected)
		default:
			e.metricInc(MetricStoreUnavailable)
		}
		e.emitAudit(ctx, auditEventLinkRejected, false, "", "", "", mapped, nil)
		return nil, mapped
	}

	sessionID, err := e.sessions.Create(ctx, record.PendingAccountID)
	if err != nil {
		e.metricInc(MetricStoreUnavailable)
		e.emitAudit(ctx, auditEventLinkRejected, false, record.Email, record.PendingAccountID, "", ErrStoreUnavailable, nil)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricLinkVerified)
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventLinkVerified, true, record.Email, record.PendingAccountID, sessionID, nil, nil)

	return &VerifyResult{
		SessionID:   sessionID,
		AccountID:   record.PendingAccountID,
		RedirectURL: originalURL,
	}, nil
}

// ResolveSession maps a session id to its account id. An empty id, an unknown
// id, and a store failure all resolve to anonymous; a store outage never
// fails open into an authenticated state.
func (e *Engine) ResolveSession(ctx context.Context, sessionID string) (string, bool) {
	if sessionID == "" {
		e.metricInc(MetricSessionAnonymous)
		return "", false
	}

	accountID, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrRedisUnavailable) {
			e.metricInc(MetricStoreUnavailable)
			log.Print("emailauth: session resolve failed, treating as anonymous: ", err)
		}
		e.metricInc(MetricSessionAnonymous)
		return "", false
	}

	e.metricInc(MetricSessionResolved)
	e.emitAudit(ctx, auditEventSessionResolved, true, "", accountID, sessionID, nil, nil)
	return accountID, true
}

// Logout removes a session. An empty session id is an input error; removing
// an absent session succeeds.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if err := e.sessions.Remove(ctx, sessionID); err != nil {
		if errors.Is(err, session.ErrEmptySessionID) {
			return err
		}
		e.metricInc(MetricStoreUnavailable)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, "", "", sessionID, nil, nil)
	return nil
}

// verifyPolicy captures the domain rules to evaluate inside the link consume:
// the invoker-level allow-list always applies, and when new account creation
// is disabled the workspace-level supported-domain list applies as well. The
// workspace list is fetched up front so the consume path stays free of I/O.
func (e *Engine) verifyPolicy(ctx context.Context) (func(email string) error, error) {
	var workspaceDomains []string
	if !e.config.AllowNewAccounts && e.workspace != nil {
		raw, err := e.workspace.SupportedDomains(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		workspaceDomains = make([]string, 0, len(raw))
		for _, d := range raw {
			workspaceDomains = append(workspaceDomains, strings.ToLower(strings.TrimSpace(d)))
		}
	}

	allowList := e.config.SupportedDomains
	checkWorkspace := !e.config.AllowNewAccounts && e.workspace != nil

	return func(email string) error {
		domain := address.DomainOf(email)
		if len(allowList) > 0 && !containsDomain(allowList, domain) {
			return ErrDomainNotSupported
		}
		if checkWorkspace && !containsDomain(workspaceDomains, domain) {
			return ErrDomainNotSupported
		}
		return nil
	}, nil
}

func (e *Engine) verifyURL(secret, originalURL string) string {
	return e.config.ServerURL + "/?code=" + url.QueryEscape(secret) +
		"&originalUrl=" + url.QueryEscape(originalURL)
}

func (e *Engine) onMailResult(msg mailer.Message, err error) {
	ctx := context.Background()
	if err != nil {
		e.metricInc(MetricEmailSendFailed)
		e.emitAudit(ctx, auditEventEmailFailed, false, msg.To, "", "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err), nil)
		return
	}
	e.metricInc(MetricEmailSent)
	e.emitAudit(ctx, auditEventEmailSent, true, msg.To, "", "", nil, nil)
}

func mapLinkError(err error) error {
	switch {
	case errors.Is(err, errLinkNotFound):
		return ErrLinkNotFound
	case errors.Is(err, errLinkExpired):
		return ErrLinkExpired
	case errors.Is(err, errLinkUsed):
		return ErrLinkAlreadyUsed
	case errors.Is(err, errLinkSecretMismatch):
		return ErrLinkSecretMismatch
	case errors.Is(err, ErrDomainNotSupported):
		return ErrDomainNotSupported
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

func containsDomain(domains []string, domain string) bool {
	for _, d := range domains {
		if d == domain {
			return true
		}
	}
	return false
}
