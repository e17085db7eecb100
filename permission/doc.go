// Package permission maps roles to capability sets.
//
// Permission names are assigned stable bit positions by a [Registry]; each role's
// capabilities are stored as a [Mask64]. A [Table] is built once from a role to
// permission-name mapping and is read-only afterwards, so lookups need no locking.
//
// The package is a pure in-memory data structure. It knows nothing about accounts,
// superusers, or tokens; those rules live in the authcore Guard.
package permission
