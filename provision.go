package emailauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/krista-software/krista-email-authentication/address"
)

// provisioner reconciles requested role names against the workspace's role
// directory and looks up or creates the workspace account for an email.
type provisioner struct {
	accounts Accounts
	roles    Roles
	metrics  *Metrics
}

func newProvisioner(accounts Accounts, roles Roles, metrics *Metrics) *provisioner {
	return &provisioner{
		accounts: accounts,
		roles:    roles,
		metrics:  metrics,
	}
}

// Provision resolves or creates the account for a normalized email, ensuring
// it carries every role named in roleNames. The returned bool reports whether
// a new account was created.
//
// Provisioning is idempotent with respect to role membership: repeated calls
// never duplicate a role assignment. A duplicate-create surfaced by the
// directory is treated as an existing account, so concurrent provisioning of
// the same email converges on one account.
func (p *provisioner) Provision(ctx context.Context, email string, roleNames []string) (*Account, bool, error) {
	account, err := p.lookup(ctx, email)
	if err != nil {
		return nil, false, err
	}

	roleIDs, err := p.resolveRoles(ctx, roleNames)
	if err != nil {
		return nil, false, err
	}

	if account != nil {
		merged, err := p.mergeRoles(ctx, account, roleIDs)
		if err != nil {
			return nil, false, err
		}
		return merged, false, nil
	}

	created, err := p.accounts.Create(ctx, NewAccount{
		DisplayName: address.LocalPart(email),
		Email:       email,
		RoleIDs:     roleIDs,
		Attributes: map[string]string{
			AttrOrg:       address.DomainOf(email),
			AttrSource:    ProvisioningSource,
			AttrLastLogin: time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		if errors.Is(err, ErrAccountExists) {
			// Lost a creation race; converge on the winner's account.
			existing, lookupErr := p.lookup(ctx, email)
			if lookupErr != nil {
				return nil, false, lookupErr
			}
			if existing == nil {
				return nil, false, fmt.Errorf("%w: account vanished after duplicate create", ErrProvisioningFailed)
			}
			merged, mergeErr := p.mergeRoles(ctx, existing, roleIDs)
			if mergeErr != nil {
				return nil, false, mergeErr
			}
			p.metrics.Inc(MetricAccountDuplicateMerged)
			return merged, false, nil
		}
		return nil, false, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}

	p.metrics.Inc(MetricAccountProvisioned)
	return created, true, nil
}

func (p *provisioner) lookup(ctx context.Context, email string) (*Account, error) {
	account, err := p.accounts.Lookup(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}
	return account, nil
}

// resolveRoles maps each requested role name to a role id. Lookup is a linear
// scan over the workspace role set; role sets are bounded by admin
// configuration, not user input volume. Missing roles are created on demand.
func (p *provisioner) resolveRoles(ctx context.Context, roleNames []string) ([]string, error) {
	if len(roleNames) == 0 {
		return nil, nil
	}

	workspaceRoles, err := p.roles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}

	byName := make(map[string]string, len(workspaceRoles))
	for _, role := range workspaceRoles {
		byName[role.Name] = role.ID
	}

	ids := make([]string, 0, len(roleNames))
	seen := make(map[string]struct{}, len(roleNames))

	for _, name := range roleNames {
		id, ok := byName[name]
		if !ok {
			created, err := p.roles.Create(ctx, name)
			if err != nil {
				if !errors.Is(err, ErrRoleExists) {
					return nil, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
				}
				created, err = p.findRole(ctx, name)
				if err != nil {
					return nil, err
				}
			} else {
				p.metrics.Inc(MetricRoleProvisioned)
			}
			id = created.ID
			byName[name] = id
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	return ids, nil
}

func (p *provisioner) findRole(ctx context.Context, name string) (Role, error) {
	workspaceRoles, err := p.roles.List(ctx)
	if err != nil {
		return Role{}, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}
	for _, role := range workspaceRoles {
		if role.Name == name {
			return role, nil
		}
	}
	return Role{}, fmt.Errorf("%w: role %q vanished after duplicate create", ErrProvisioningFailed, name)
}

// mergeRoles unions the resolved role ids into the account's existing role
// set and returns an updated account view. No directory write happens when
// the account already carries every role.
func (p *provisioner) mergeRoles(ctx context.Context, account *Account, roleIDs []string) (*Account, error) {
	existing := make(map[string]struct{}, len(account.RoleIDs))
	for _, id := range account.RoleIDs {
		existing[id] = struct{}{}
	}

	var missing []string
	for _, id := range roleIDs {
		if _, ok := existing[id]; !ok {
			missing = append(missing, id)
		}
	}

	if len(missing) == 0 {
		return account, nil
	}

	if err := p.accounts.AssignRoles(ctx, account.ID, missing); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvisioningFailed, err)
	}

	merged := *account
	merged.RoleIDs = append(append([]string(nil), account.RoleIDs...), missing...)
	return &merged, nil
}
