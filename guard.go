package authcore

import (
	"github.com/MrEthical07/authcore/permission"
)

// Guard makes authorization decisions against a static role→permission table.
// It never loads accounts; callers pass the account they already resolved.
type Guard struct {
	table   *permission.Table
	metrics *Metrics
}

// NewGuard returns a Guard over table. A nil table selects
// [permission.DefaultTable].
func NewGuard(table *permission.Table) *Guard {
	if table == nil {
		table = permission.DefaultTable()
	}
	return &Guard{table: table}
}

// Table returns the permission table the guard consults.
func (g *Guard) Table() *permission.Table {
	return g.table
}

// Requirement is one authorization condition for [Guard.Check].
type Requirement struct {
	name  string
	allow func(g *Guard, a *Account) bool
}

// String names the requirement, as reported by [ForbiddenError].
func (r Requirement) String() string {
	return r.name
}

// Role requires account.Role == role. Superusers always pass.
func Role(role string) Requirement {
	return Requirement{
		name: "role:" + role,
		allow: func(_ *Guard, a *Account) bool {
			return a.Superuser() || a.Role == role
		},
	}
}

// Permission requires the account's role to grant perm. Superusers always pass.
func Permission(perm string) Requirement {
	return Requirement{
		name: "permission:" + perm,
		allow: func(g *Guard, a *Account) bool {
			return a.Superuser() || g.table.Has(a.Role, perm)
		},
	}
}

// Active requires IsActive, regardless of role.
func Active() Requirement {
	return Requirement{
		name: "active",
		allow: func(_ *Guard, a *Account) bool {
			return a.IsActive
		},
	}
}

// Verified requires IsVerified, regardless of role.
func Verified() Requirement {
	return Requirement{
		name: "verified",
		allow: func(_ *Guard, a *Account) bool {
			return a.IsVerified
		},
	}
}

// Check evaluates reqs in order and returns account when all pass. The first
// failing requirement is reported as a *[ForbiddenError]. A nil account fails
// every check.
func (g *Guard) Check(account *Account, reqs ...Requirement) (*Account, error) {
	if account == nil {
		return nil, g.deny("account")
	}
	for _, req := range reqs {
		if req.allow == nil || !req.allow(g, account) {
			return nil, g.deny(req.name)
		}
	}
	return account, nil
}

func (g *Guard) RequireRole(account *Account, role string) (*Account, error) {
	return g.Check(account, Role(role))
}

func (g *Guard) RequirePermission(account *Account, perm string) (*Account, error) {
	return g.Check(account, Permission(perm))
}

func (g *Guard) RequireActive(account *Account) (*Account, error) {
	return g.Check(account, Active())
}

func (g *Guard) RequireVerified(account *Account) (*Account, error) {
	return g.Check(account, Verified())
}

// HasPermission reports whether account holds perm, without recording a denial.
func (g *Guard) HasPermission(account *Account, perm string) bool {
	return account != nil && (account.Superuser() || g.table.Has(account.Role, perm))
}

func (g *Guard) deny(requirement string) error {
	if g.metrics != nil {
		g.metrics.Inc(MetricForbidden)
	}
	return &ForbiddenError{Requirement: requirement}
}
