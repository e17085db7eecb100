// Package jwt signs and verifies compact JWS tokens for the authentication core.
//
// A [Codec] is bound to one algorithm and one key set at construction time. It treats
// claims as an opaque map: Encode signs whatever it is given (exp is mandatory) and Decode
// returns the payload verbatim once signature, algorithm and time checks pass. Token
// semantics (access vs refresh, subjects, revocation) belong to the caller.
//
// # What this package must NOT do
//
//   - Interpret business claims such as "type" or "role".
//   - Distinguish expired from forged tokens in the error it returns; both wrap
//     [ErrInvalidToken]. The underlying golang-jwt error stays in the chain for logs.
//   - Import any other authcore package.
package jwt
