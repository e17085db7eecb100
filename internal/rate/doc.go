// Package rate throttles login attempts ahead of the authenticator. It is a
// transport concern used by internal/httpapi and complements, not replaces, the
// account lockout applied by the engine.
//
// # Implementations
//
//   - Redis: fixed-window counters (INCR + EXPIRE on first hit) shared by every
//     process. Key prefixes: authcore:rl:login: per identifier and
//     authcore:rl:ip: per client address.
//   - Local: golang.org/x/time/rate token buckets held in process memory.
package rate
