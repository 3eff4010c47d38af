package emailauth

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginRequested   = "login_requested"
	auditEventLoginRejected    = "login_rejected"
	auditEventLinkVerified     = "link_verified"
	auditEventLinkRejected     = "link_rejected"
	auditEventSessionResolved  = "session_resolved"
	auditEventLogout           = "logout"
	auditEventAccountProvision = "account_provisioned"
	auditEventEmailSent        = "email_sent"
	auditEventEmailFailed      = "email_send_failed"
	auditEventRateLimited      = "rate_limit_triggered"
)

// AuditErrorCode defines a public type used by emailauth APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrInvalidInput       AuditErrorCode = "invalid_input"
	auditErrDomainNotSupported AuditErrorCode = "domain_not_supported"
	auditErrNewAccountDisabled AuditErrorCode = "new_account_creation_disabled"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrLinkNotFound       AuditErrorCode = "link_not_found"
	auditErrLinkExpired        AuditErrorCode = "link_expired"
	auditErrLinkUsed           AuditErrorCode = "link_already_used"
	auditErrSecretMismatch     AuditErrorCode = "secret_mismatch"
	auditErrProvisioning       AuditErrorCode = "provisioning_failed"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrMailQueueFull      AuditErrorCode = "mail_queue_full"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrOriginalURLRequired), errors.Is(err, ErrInvalidEmail):
		return auditErrInvalidInput
	case errors.Is(err, ErrDomainNotSupported):
		return auditErrDomainNotSupported
	case errors.Is(err, ErrNewAccountsDisabled):
		return auditErrNewAccountDisabled
	case errors.Is(err, ErrLoginRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrLinkNotFound):
		return auditErrLinkNotFound
	case errors.Is(err, ErrLinkExpired):
		return auditErrLinkExpired
	case errors.Is(err, ErrLinkAlreadyUsed):
		return auditErrLinkUsed
	case errors.Is(err, ErrLinkSecretMismatch):
		return auditErrSecretMismatch
	case errors.Is(err, ErrProvisioningFailed):
		return auditErrProvisioning
	case errors.Is(err, ErrMailQueueFull):
		return auditErrMailQueueFull
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	email string,
	accountID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp:   time.Now().UTC(),
		EventType:   eventType,
		Email:       email,
		AccountID:   accountID,
		WorkspaceID: workspaceIDFromContext(ctx),
		SessionID:   sessionID,
		IP:          clientIPFromContext(ctx),
		Success:     success,
		Metadata:    metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}
