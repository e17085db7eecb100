package permission

import (
	"errors"
	"reflect"
	"testing"
)

func TestDefaultTableCapabilities(t *testing.T) {
	table := DefaultTable()

	cases := []struct {
		role string
		perm string
		want bool
	}{
		{"admin", ManageUsers, true},
		{"admin", Delete, true},
		{"admin", Moderate, false},
		{"moderator", Moderate, true},
		{"moderator", Delete, false},
		{"user", Read, true},
		{"user", WriteOwn, true},
		{"user", Write, false},
		{"ghost", Read, false},
		{"admin", "launch_missiles", false},
	}
	for _, tc := range cases {
		if got := table.Has(tc.role, tc.perm); got != tc.want {
			t.Fatalf("Has(%q, %q) = %v, want %v", tc.role, tc.perm, got, tc.want)
		}
	}
}

func TestTablePermissionsAndRoles(t *testing.T) {
	table := DefaultTable()

	if got, want := table.Roles(), []string{"admin", "moderator", "user"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Roles() = %v, want %v", got, want)
	}
	// Bits are assigned in sorted name order: delete, manage_users, moderate, read, write, write_own.
	if got, want := table.Permissions("admin"), []string{Delete, ManageUsers, Read, Write}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Permissions(admin) = %v, want %v", got, want)
	}
	if table.Permissions("ghost") != nil {
		t.Fatal("expected nil permissions for unknown role")
	}
	if !table.HasRole("user") || table.HasRole("root") {
		t.Fatal("unexpected HasRole result")
	}
}

func TestNewTableRejectsEmptyRole(t *testing.T) {
	if _, err := NewTable(map[string][]string{"": {Read}}); err == nil {
		t.Fatal("expected empty role name to be rejected")
	}
	if _, err := NewTable(map[string][]string{"x": {""}}); !errors.Is(err, ErrEmptyPermissionName) {
		t.Fatalf("expected ErrEmptyPermissionName, got %v", err)
	}
}

func TestRegistryLimitsAndFreeze(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < MaxPermissions; i++ {
		if _, err := r.Register(string(rune('A'+i%26)) + string(rune('a'+i/26))); err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
	}
	if _, err := r.Register("overflow"); !errors.Is(err, ErrPermissionLimit) {
		t.Fatalf("expected ErrPermissionLimit, got %v", err)
	}

	r = NewRegistry()
	if _, err := r.Register("read"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := r.Register("read"); !errors.Is(err, ErrPermissionExists) {
		t.Fatalf("expected ErrPermissionExists, got %v", err)
	}
	r.Freeze()
	if _, err := r.Register("write"); !errors.Is(err, ErrRegistryFrozen) {
		t.Fatalf("expected ErrRegistryFrozen, got %v", err)
	}
	if name, ok := r.Name(0); !ok || name != "read" {
		t.Fatalf("Name(0) = %q, %v", name, ok)
	}
}

func TestMask64Bounds(t *testing.T) {
	var m Mask64
	m.Set(3)
	m.Set(63)
	m.Set(64)
	m.Set(-1)

	if !m.Has(3) || !m.Has(63) {
		t.Fatal("expected set bits to be present")
	}
	if m.Has(64) || m.Has(-1) {
		t.Fatal("out-of-range bits must never be set")
	}
	m.Clear(3)
	if m.Has(3) {
		t.Fatal("expected bit 3 to be cleared")
	}
	if m.Raw() != 1<<63 {
		t.Fatalf("unexpected raw value %x", m.Raw())
	}
}
