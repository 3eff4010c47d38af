package emailauth

import "context"

// SchemeName identifies this authentication scheme to the host platform.
const SchemeName = "Email Authentication"

const (
	// AttrOrg is an exported constant or variable used by the email authentication engine.
	AttrOrg = "ORG"
	// AttrSource is an exported constant or variable used by the email authentication engine.
	AttrSource = "KRISTA_SOURCE"
	// AttrLastLogin is an exported constant or variable used by the email authentication engine.
	AttrLastLogin = "KRISTA_LAST_LOGIN"

	// ProvisioningSource is an exported constant or variable used by the email authentication engine.
	ProvisioningSource = "EXTENSION_EMAIL_AUTHENTICATION"
)

// Account defines a public type used by emailauth APIs.
//
// Account instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Account struct {
	ID          string
	Email       string
	DisplayName string
	RoleIDs     []string
	Attributes  map[string]string
}

// Role defines a public type used by emailauth APIs.
//
// Role instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Role struct {
	ID   string
	Name string
}

// NewAccount defines a public type used by emailauth APIs.
//
// NewAccount instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type NewAccount struct {
	DisplayName string
	Email       string
	RoleIDs     []string
	Attributes  map[string]string
}

// Accounts is the workspace account directory consumed by the provisioner.
//
// Lookup returns ErrAccountNotFound when no account exists for the normalized
// email. Create returns ErrAccountExists on a duplicate identity; the engine
// treats that as an existing-account case, never as a failure.
type Accounts interface {
	Lookup(ctx context.Context, email string) (*Account, error)
	Create(ctx context.Context, account NewAccount) (*Account, error)
	AssignRoles(ctx context.Context, accountID string, roleIDs []string) error
}

// Roles is the workspace role directory consumed by the provisioner.
//
// Create returns ErrRoleExists on a duplicate name; the provisioner re-resolves
// the role by name in that case.
type Roles interface {
	List(ctx context.Context) ([]Role, error)
	Create(ctx context.Context, name string) (Role, error)
}

// Workspace exposes workspace-level settings that are independent of this
// invoker's own attribute configuration.
type Workspace interface {
	SupportedDomains(ctx context.Context) ([]string, error)
}

// LoginResult defines a public type used by emailauth APIs.
//
// LoginResult instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type LoginResult struct {
	Email            string
	PendingSessionID string
}

// VerifyResult defines a public type used by emailauth APIs.
//
// VerifyResult instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type VerifyResult struct {
	SessionID   string
	AccountID   string
	RedirectURL string
}
