// Package revocation provides backends for the set of revoked token ids.
//
// Entries only need to outlive the token they revoke, so every backend stores an
// id together with the token's own expiry and forgets it afterwards. [Memory] is
// process-local; [Redis] shares the set across instances using key TTLs.
package revocation
