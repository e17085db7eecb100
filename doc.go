// Package authcore is an authentication and authorization core: credential
// verification with account lockout, JWT issuance, validation, refresh and
// revocation, and role/permission guards.
//
// # Architecture
//
// An [Engine] is assembled once by a [Builder] and is safe for concurrent use.
// It depends on collaborators behind small interfaces:
//
//   - [CredentialStore] for account lookups and persistence (see store/memstore
//     and store/postgres). Stores may implement [AtomicUpdater] so failed-attempt
//     counting is serialised per account.
//   - [RevocationSet] for revoked token ids (see package revocation).
//   - password.Hasher for password hashing (bcrypt by default).
//   - permission.Table for the role to capability mapping used by [Guard].
//
// The engine never speaks HTTP. Adapters (package middleware, internal/httpapi)
// map its typed failures to transport responses.
//
// # Failure signalling
//
// Authentication failures are returned as *[AuthError]. Callers see a uniform
// [ErrInvalidCredentials] for not_found, inactive, bad_password and storage
// failures; only lockout is surfaced distinctly through [ErrAccountLocked]. Token
// failures are always [ErrInvalidToken], whether the token was expired, forged,
// malformed or revoked. Authorization failures are [ErrForbidden].
package authcore
