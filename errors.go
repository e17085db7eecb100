package authcore

import (
	"errors"
	"fmt"

	"github.com/MrEthical07/authcore/jwt"
)

var (
	// ErrInvalidCredentials is the uniform caller-visible authentication failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is surfaced distinctly so locked-out users know to wait.
	ErrAccountLocked = errors.New("account locked")
	// ErrInvalidToken covers expired, forged, malformed and revoked tokens alike.
	ErrInvalidToken = jwt.ErrInvalidToken
	ErrForbidden    = errors.New("forbidden")
	// ErrStorage wraps failures reported by the credential store.
	ErrStorage = errors.New("storage error")
	// ErrAccountNotFound is returned by stores for lookups that miss.
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
	ErrAccountInactive = errors.New("account inactive")
	ErrRoleInvalid     = errors.New("invalid account role")
	// ErrAccountInvalid is returned by CreateAccount for malformed input.
	ErrAccountInvalid = errors.New("invalid account request")
	ErrPasswordPolicy = errors.New("password policy violation")
	ErrPasswordReuse  = errors.New("new password must differ from the current one")
	// ErrReservedClaim is returned when extra claims collide with registered names.
	ErrReservedClaim          = errors.New("reserved claim name")
	ErrRevocationUnavailable  = errors.New("revocation set not configured")
	ErrEngineNotReady         = errors.New("engine not initialized")
	errAccountLockedOnPersist = errors.New("account locked during update")
)

// AuthFailureReason is the internal reason behind an authentication failure. It is
// meant for logs and audit, never for callers.
type AuthFailureReason string

const (
	ReasonNotFound    AuthFailureReason = "not_found"
	ReasonInactive    AuthFailureReason = "inactive"
	ReasonLocked      AuthFailureReason = "locked"
	ReasonBadPassword AuthFailureReason = "bad_password"
	ReasonStorage     AuthFailureReason = "storage_error"
)

// AuthError is returned by [Engine.Authenticate]. It matches [ErrAccountLocked]
// for ReasonLocked and [ErrInvalidCredentials] otherwise. Storage failures also
// match [ErrStorage] and carry the store error in the chain.
type AuthError struct {
	Reason AuthFailureReason
	Err    error
}

func (e *AuthError) Error() string {
	if e.Reason == ReasonLocked {
		return ErrAccountLocked.Error()
	}
	return ErrInvalidCredentials.Error()
}

func (e *AuthError) Is(target error) bool {
	switch target {
	case ErrAccountLocked:
		return e.Reason == ReasonLocked
	case ErrInvalidCredentials:
		return e.Reason != ReasonLocked
	case ErrStorage:
		return e.Reason == ReasonStorage
	}
	return false
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func authFailure(reason AuthFailureReason, cause error) error {
	return &AuthError{Reason: reason, Err: cause}
}

// ForbiddenError names the requirement an account failed.
type ForbiddenError struct {
	Requirement string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("%s: requires %s", ErrForbidden, e.Requirement)
}

func (e *ForbiddenError) Is(target error) bool {
	return target == ErrForbidden
}

func storageError(err error) error {
	return fmt.Errorf("%w: %v", ErrStorage, err)
}

func invalidToken(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidToken, reason)
}
