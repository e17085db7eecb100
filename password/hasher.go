package password

import "errors"

// Hasher hashes plaintext passwords and verifies them against stored encodings.
// Implementations are safe for concurrent use.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, encoded string) bool
	NeedsRehash(encoded string) bool
}

// DefaultMaxPasswordBytes caps the input accepted by [Argon2]. bcrypt has its own
// 72 byte ceiling.
const DefaultMaxPasswordBytes = 1024

var (
	// ErrEmptyPassword is returned by Hash for an empty plaintext.
	ErrEmptyPassword = errors.New("password must not be empty")
	// ErrPasswordTooLong is returned by Hash when the plaintext exceeds the
	// hasher's input limit.
	ErrPasswordTooLong = errors.New("password exceeds maximum length")
)
