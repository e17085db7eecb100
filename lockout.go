package authcore

import "time"

// LockoutPolicy decides lock transitions from attempt counters and timestamps.
// It performs no I/O.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// IsLocked reports whether account is locked at now. An elapsed lock is not
// locked, even though its fields are left in place until the next attempt.
func (p LockoutPolicy) IsLocked(account *Account, now time.Time) bool {
	return account.Locked(now)
}

// RegisterFailure records one failed password check. It reports whether this
// failure moved the account into the locked state. Once the counter has reached
// the threshold, every further failure re-locks immediately.
func (p LockoutPolicy) RegisterFailure(account *Account, now time.Time) bool {
	account.FailedLoginAttempts++
	if account.FailedLoginAttempts < p.Threshold {
		return false
	}
	until := now.Add(p.Duration)
	account.LockedUntil = &until
	return true
}

// RegisterSuccess resets the counter, clears the lock and stamps the login time.
func (p LockoutPolicy) RegisterSuccess(account *Account, now time.Time) {
	account.FailedLoginAttempts = 0
	account.LockedUntil = nil
	t := now
	account.LastLoginAt = &t
}

// Unlock clears lock state without recording a login.
func (p LockoutPolicy) Unlock(account *Account) {
	account.FailedLoginAttempts = 0
	account.LockedUntil = nil
}
