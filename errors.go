package emailauth

import "errors"

var (
	// ErrOriginalURLRequired is an exported constant or variable used by the email authentication engine.
	ErrOriginalURLRequired = errors.New("original url required")
	// ErrInvalidEmail is an exported constant or variable used by the email authentication engine.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrDomainNotSupported is an exported constant or variable used by the email authentication engine.
	ErrDomainNotSupported = errors.New("email domain not supported")
	// ErrNewAccountsDisabled is an exported constant or variable used by the email authentication engine.
	ErrNewAccountsDisabled = errors.New("new account creation disabled")
	// ErrLoginRateLimited is an exported constant or variable used by the email authentication engine.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrLinkNotFound is an exported constant or variable used by the email authentication engine.
	ErrLinkNotFound = errors.New("verification link not found")
	// ErrLinkExpired is an exported constant or variable used by the email authentication engine.
	ErrLinkExpired = errors.New("verification link expired")
	// ErrLinkAlreadyUsed is an exported constant or variable used by the email authentication engine.
	ErrLinkAlreadyUsed = errors.New("verification link already used")
	// ErrLinkSecretMismatch is an exported constant or variable used by the email authentication engine.
	ErrLinkSecretMismatch = errors.New("verification link secret mismatch")
	// ErrAccountNotFound is an exported constant or variable used by the email authentication engine.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountExists is an exported constant or variable used by the email authentication engine.
	ErrAccountExists = errors.New("account already exists")
	// ErrRoleExists is an exported constant or variable used by the email authentication engine.
	ErrRoleExists = errors.New("role already exists")
	// ErrProvisioningFailed is an exported constant or variable used by the email authentication engine.
	ErrProvisioningFailed = errors.New("account provisioning failed")
	// ErrStoreUnavailable is an exported constant or variable used by the email authentication engine.
	ErrStoreUnavailable = errors.New("backing store unavailable")
	// ErrMailQueueFull is an exported constant or variable used by the email authentication engine.
	ErrMailQueueFull = errors.New("mail queue full")
	// ErrConfigInvalid is an exported constant or variable used by the email authentication engine.
	ErrConfigInvalid = errors.New("invalid configuration")
	// ErrEngineClosed is an exported constant or variable used by the email authentication engine.
	ErrEngineClosed = errors.New("engine closed")
)
