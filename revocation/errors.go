package revocation

import "errors"

var (
	// ErrEmptyTokenID is returned when revoking a token without a jti.
	ErrEmptyTokenID = errors.New("token id is empty")
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("revocation backend unavailable")
)
