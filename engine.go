package authcore

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
)

// Engine authenticates accounts, issues and validates tokens and authorizes
// access. Build one with [New]; it is safe for concurrent use.
type Engine struct {
	config      Config
	store       CredentialStore
	updater     AtomicUpdater
	creator     AccountCreator
	lister      AccountLister
	searcher    AccountSearcher
	revocations RevocationSet
	codec       *jwt.Codec
	hasher      password.Hasher
	dummyHash   string
	lockout     LockoutPolicy
	guard       *Guard
	audit       *internalaudit.Dispatcher
	metrics     *Metrics
	logger      *slog.Logger
	now         func() time.Time
	validator   *validator.Validate
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped reports audit events discarded under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns the current counter and histogram values.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Guard returns the authorization guard bound to the engine's permission table.
func (e *Engine) Guard() *Guard {
	return e.guard
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observeSince(id MetricID, start time.Time) {
	if e == nil || !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(id, time.Since(start))
}

// Authenticate verifies identifier (username, then email) and password.
//
// Lookups run before any lock or password check; a locked account is rejected
// without verifying the password. A wrong password increments the failed-attempt
// counter and applies the lockout policy, and that change is persisted before the
// call returns. If persisting fails the failure is logged and audited and the
// caller still receives the authentication failure.
//
// All failures are *AuthError; see the package documentation for matching.
func (e *Engine) Authenticate(ctx context.Context, identifier, plaintext string) (*Account, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer e.observeSince(MetricAuthenticateLatency, start)

	account, err := e.lookup(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.hasher.Verify(plaintext, e.dummyHash)
			return nil, e.failLogin(ctx, identifier, nil, ReasonNotFound, nil)
		}
		return nil, e.failLogin(ctx, identifier, nil, ReasonStorage, err)
	}

	if e.lockout.IsLocked(account, e.now()) {
		e.metricInc(MetricLoginLocked)
		return nil, e.failLogin(ctx, identifier, account, ReasonLocked, nil)
	}
	if !account.IsActive {
		return nil, e.failLogin(ctx, identifier, account, ReasonInactive, nil)
	}

	if !e.hasher.Verify(plaintext, account.PasswordHash) {
		e.recordFailedAttempt(ctx, account)
		return nil, e.failLogin(ctx, identifier, account, ReasonBadPassword, nil)
	}

	updated, err := e.recordSuccessfulLogin(ctx, account, plaintext)
	if err != nil {
		switch {
		case errors.Is(err, errAccountLockedOnPersist):
			e.metricInc(MetricLoginLocked)
			return nil, e.failLogin(ctx, identifier, account, ReasonLocked, nil)
		case errors.Is(err, ErrAccountInactive):
			return nil, e.failLogin(ctx, identifier, account, ReasonInactive, nil)
		default:
			return nil, e.failLogin(ctx, identifier, account, ReasonStorage, err)
		}
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, updated.ID, identifier, "", nil)
	return updated, nil
}

func (e *Engine) lookup(ctx context.Context, identifier string) (*Account, error) {
	if identifier == "" {
		return nil, ErrAccountNotFound
	}
	account, err := e.store.FindByUsername(ctx, identifier)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}
	return e.store.FindByEmail(ctx, identifier)
}

func (e *Engine) failLogin(ctx context.Context, identifier string, account *Account, reason AuthFailureReason, cause error) error {
	e.metricInc(MetricLoginFailure)

	var accountID string
	if account != nil {
		accountID = account.ID
	}
	if reason == ReasonStorage {
		e.logger.ErrorContext(ctx, "credential store failure during authentication",
			"identifier", identifier, "account_id", accountID, "error", cause)
		cause = storageError(cause)
	} else {
		e.logger.WarnContext(ctx, "authentication failed",
			"identifier", identifier, "account_id", accountID, "reason", string(reason))
	}

	e.emitAudit(ctx, auditEventLoginFailure, false, accountID, identifier, string(reason), nil)
	return authFailure(reason, cause)
}

func (e *Engine) recordFailedAttempt(ctx context.Context, account *Account) {
	var (
		locked   bool
		attempts int
		until    time.Time
	)
	_, err := e.mutate(ctx, account, func(a *Account) error {
		locked = e.lockout.RegisterFailure(a, e.now())
		attempts = a.FailedLoginAttempts
		if a.LockedUntil != nil {
			until = *a.LockedUntil
		}
		return nil
	})
	if err != nil {
		e.metricInc(MetricLockoutPersistFailure)
		e.logger.ErrorContext(ctx, "failed to persist failed login attempt",
			"account_id", account.ID, "error", err)
		e.emitAudit(ctx, auditEventLockoutPersistFailed, false, account.ID, "", string(ReasonStorage), nil)
		return
	}
	if !locked {
		return
	}

	e.metricInc(MetricAccountLocked)
	e.logger.WarnContext(ctx, "account locked",
		"account_id", account.ID, "failed_attempts", attempts, "locked_until", until)
	e.emitAudit(ctx, auditEventAccountLocked, false, account.ID, "", string(ReasonLocked), func() map[string]string {
		return map[string]string{
			"failed_attempts": strconv.Itoa(attempts),
			"locked_until":    until.UTC().Format(time.RFC3339),
		}
	})
}

func (e *Engine) recordSuccessfulLogin(ctx context.Context, account *Account, plaintext string) (*Account, error) {
	oldHash := account.PasswordHash
	var newHash string
	if e.config.Password.UpgradeOnLogin && e.hasher.NeedsRehash(oldHash) {
		h, err := e.hasher.Hash(plaintext)
		if err != nil {
			e.logger.WarnContext(ctx, "password rehash failed", "account_id", account.ID, "error", err)
		} else {
			newHash = h
		}
	}

	rehashed := false
	updated, err := e.mutate(ctx, account, func(a *Account) error {
		now := e.now()
		if a.Locked(now) {
			return errAccountLockedOnPersist
		}
		if !a.IsActive {
			return ErrAccountInactive
		}
		e.lockout.RegisterSuccess(a, now)
		// Only upgrade the hash we verified against.
		if newHash != "" && a.PasswordHash == oldHash {
			a.PasswordHash = newHash
			rehashed = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if rehashed {
		e.metricInc(MetricPasswordRehashed)
	}
	return updated, nil
}

// mutate applies fn to the latest stored version of account. With an
// AtomicUpdater the read-modify-write is serialised by the store; otherwise fn
// runs on a copy of account and the result is saved.
func (e *Engine) mutate(ctx context.Context, account *Account, fn func(*Account) error) (*Account, error) {
	apply := func(a *Account) error {
		if err := fn(a); err != nil {
			return err
		}
		a.UpdatedAt = e.now()
		return nil
	}

	if e.updater != nil {
		return e.updater.Update(ctx, account.ID, apply)
	}

	next := account.Clone()
	if err := apply(next); err != nil {
		return nil, err
	}
	if err := e.store.Save(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

// mutateByID loads the account and applies fn through mutate.
func (e *Engine) mutateByID(ctx context.Context, id string, fn func(*Account) error) (*Account, error) {
	if e.updater != nil {
		return e.updater.Update(ctx, id, func(a *Account) error {
			if err := fn(a); err != nil {
				return err
			}
			a.UpdatedAt = e.now()
			return nil
		})
	}
	account, err := e.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.mutate(ctx, account, fn)
}
