// Package security derives the security posture summary exposed by
// Engine.SecurityReport. It holds no state and has no dependencies on the
// engine.
package security
