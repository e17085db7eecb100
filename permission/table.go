package permission

import (
	"fmt"
	"sort"
)

// Built-in permission names.
const (
	Read        = "read"
	Write       = "write"
	WriteOwn    = "write_own"
	Delete      = "delete"
	Moderate    = "moderate"
	ManageUsers = "manage_users"
)

// DefaultRoles is the capability mapping used by [DefaultTable].
var DefaultRoles = map[string][]string{
	"admin":     {Read, Write, Delete, ManageUsers},
	"moderator": {Read, Write, Moderate},
	"user":      {Read, WriteOwn},
}

// Table resolves role names to capability masks. It is immutable once built.
type Table struct {
	registry *Registry
	roles    map[string]Mask64
}

// NewTable registers every permission named in roles, composes one mask per role
// and freezes the registry. Permission names are registered in sorted order so bit
// assignment is deterministic.
func NewTable(roles map[string][]string) (*Table, error) {
	registry := NewRegistry()

	seen := make(map[string]struct{})
	var names []string
	for role, perms := range roles {
		if role == "" {
			return nil, fmt.Errorf("role name cannot be empty")
		}
		for _, p := range perms {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			names = append(names, p)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := registry.Register(name); err != nil {
			return nil, fmt.Errorf("register %q: %w", name, err)
		}
	}
	registry.Freeze()

	t := &Table{registry: registry, roles: make(map[string]Mask64, len(roles))}
	for role, perms := range roles {
		var mask Mask64
		for _, p := range perms {
			bit, _ := registry.Bit(p)
			mask.Set(bit)
		}
		t.roles[role] = mask
	}

	return t, nil
}

// DefaultTable returns the table for [DefaultRoles].
func DefaultTable() *Table {
	t, err := NewTable(DefaultRoles)
	if err != nil {
		panic(err)
	}
	return t
}

// Has reports whether role grants perm. Unknown roles and unknown permissions
// grant nothing.
func (t *Table) Has(role, perm string) bool {
	mask, ok := t.roles[role]
	if !ok {
		return false
	}
	bit, ok := t.registry.Bit(perm)
	if !ok {
		return false
	}
	return mask.Has(bit)
}

// HasRole reports whether role is defined in the table.
func (t *Table) HasRole(role string) bool {
	_, ok := t.roles[role]
	return ok
}

// Mask returns the capability mask for role.
func (t *Table) Mask(role string) (Mask64, bool) {
	m, ok := t.roles[role]
	return m, ok
}

// Permissions lists the permissions granted to role in bit order.
func (t *Table) Permissions(role string) []string {
	mask, ok := t.roles[role]
	if !ok {
		return nil
	}
	var out []string
	for bit := 0; bit < MaxPermissions; bit++ {
		if !mask.Has(bit) {
			continue
		}
		if name, ok := t.registry.Name(bit); ok {
			out = append(out, name)
		}
	}
	return out
}

// Roles lists the defined roles in sorted order.
func (t *Table) Roles() []string {
	out := make([]string, 0, len(t.roles))
	for role := range t.roles {
		out = append(out, role)
	}
	sort.Strings(out)
	return out
}
