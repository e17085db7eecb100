// Package middleware adapts authcore.Engine to net/http.
//
// # Handlers
//
//   - [ClientInfo] copies the client address and user agent into the request
//     context so audit events carry them.
//   - [Authenticate] reads the bearer token, validates it as an access token,
//     resolves the account and stores both in the request context.
//   - [Require], [RequireRole], [RequirePermission] and [RequireVerified] run
//     Guard checks against the account placed by Authenticate. They never reload
//     the account.
//
// [StatusFor] maps engine errors onto HTTP status codes: authentication failures
// and token errors to 401, lockout to 423, authorization failures to 403.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Make authorization decisions of its own (delegates to Guard).
package middleware
