// Package password implements password hashing and verification.
//
// Two implementations of [Hasher] are provided. [Bcrypt] is the default and
// produces standard "$2a$" strings. [Argon2] produces PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Both support transparent parameter upgrades: when a stored hash was produced
// with weaker parameters, NeedsRehash returns true so the caller can re-hash on
// the next successful login.
//
// Verify never returns an error. Malformed or foreign hashes simply fail to
// verify, so a corrupt row in the credential store looks like a wrong password.
//
// Password policy (length, character classes, reuse) is enforced by the engine,
// not here. This package never stores, logs, or returns plaintext.
package password
