package authcore

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// CreateAccount validates req, hashes the password and inserts a new account.
// New accounts are active and, unless req says otherwise, unverified. The store
// must implement [AccountCreator].
func (e *Engine) CreateAccount(ctx context.Context, req CreateAccountRequest) (*Account, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if e.creator == nil {
		return nil, errors.New("credential store does not support account creation")
	}

	fail := func(reason string, err error) (*Account, error) {
		e.emitAudit(ctx, auditEventAccountCreateFailure, false, "", req.Username, reason, nil)
		return nil, err
	}

	if err := e.validator.StructCtx(ctx, req); err != nil {
		return fail("invalid_request", invalidRequest(err))
	}

	role := req.Role
	if role == "" {
		role = RoleUser
	}
	if !e.guard.table.HasRole(role) {
		return fail("role_invalid", ErrRoleInvalid)
	}
	if err := validatePassword(e.config.Password, req.Password); err != nil {
		return fail("password_policy", err)
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return fail("hash_failed", ErrPasswordPolicy)
	}

	now := e.now()
	account := &Account{
		ID:                uuid.NewString(),
		Username:          req.Username,
		Email:             req.Email,
		PasswordHash:      hash,
		Role:              role,
		IsSuperuser:       req.IsSuperuser,
		IsActive:          true,
		IsVerified:        req.IsVerified,
		PasswordChangedAt: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := e.creator.Create(ctx, account); err != nil {
		if errors.Is(err, ErrAccountExists) {
			e.metricInc(MetricAccountCreationDuplicate)
			return fail("duplicate", ErrAccountExists)
		}
		e.logger.ErrorContext(ctx, "credential store failure creating account", "username", req.Username, "error", err)
		return fail("storage_error", storageError(err))
	}

	e.metricInc(MetricAccountCreated)
	e.emitAudit(ctx, auditEventAccountCreated, true, account.ID, account.Username, "", func() map[string]string {
		return map[string]string{"role": role}
	})
	return account.Clone(), nil
}

// ChangePassword replaces the password of accountID after verifying current.
// The new password must satisfy the policy and differ from current. A wrong
// current password counts toward lockout like a failed login, and a locked
// account yields [ErrAccountLocked].
func (e *Engine) ChangePassword(ctx context.Context, accountID, current, next string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	fail := func(reason string, err error) error {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, auditEventPasswordChangeFailed, false, accountID, "", reason, nil)
		return err
	}

	account, err := e.store.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return fail("not_found", ErrAccountNotFound)
		}
		e.logger.ErrorContext(ctx, "credential store failure loading account", "account_id", accountID, "error", err)
		return fail("storage_error", storageError(err))
	}
	if account.Locked(e.now()) {
		return fail("locked", ErrAccountLocked)
	}
	if !e.hasher.Verify(current, account.PasswordHash) {
		e.recordFailedAttempt(ctx, account)
		return fail("bad_password", ErrInvalidCredentials)
	}
	if current == next {
		return fail("reuse", ErrPasswordReuse)
	}
	if err := validatePassword(e.config.Password, next); err != nil {
		return fail("password_policy", err)
	}

	hash, err := e.hasher.Hash(next)
	if err != nil {
		return fail("hash_failed", ErrPasswordPolicy)
	}

	verifiedHash := account.PasswordHash
	_, err = e.mutate(ctx, account, func(a *Account) error {
		// A concurrent change wins; the caller must retry with the new password.
		if a.PasswordHash != verifiedHash {
			return ErrInvalidCredentials
		}
		a.PasswordHash = hash
		a.PasswordChangedAt = e.now()
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return fail("concurrent_change", err)
		}
		e.logger.ErrorContext(ctx, "credential store failure saving password", "account_id", accountID, "error", err)
		return fail("storage_error", storageError(err))
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChanged, true, accountID, "", "", nil)
	return nil
}

// SetActive activates or deactivates an account. Inactive accounts cannot log in
// or refresh tokens.
func (e *Engine) SetActive(ctx context.Context, accountID string, active bool) (*Account, error) {
	account, err := e.updateAccount(ctx, accountID, func(a *Account) error {
		a.IsActive = active
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.emitAudit(ctx, auditEventAccountStatusChanged, true, accountID, "", "", func() map[string]string {
		return map[string]string{"active": strconv.FormatBool(active)}
	})
	return account, nil
}

// MarkVerified flags the account as verified.
func (e *Engine) MarkVerified(ctx context.Context, accountID string) (*Account, error) {
	account, err := e.updateAccount(ctx, accountID, func(a *Account) error {
		a.IsVerified = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.emitAudit(ctx, auditEventAccountStatusChanged, true, accountID, "", "", func() map[string]string {
		return map[string]string{"verified": "true"}
	})
	return account, nil
}

// UpdateAccount changes the username or email of accountID. A value already used
// by another account yields [ErrAccountExists].
func (e *Engine) UpdateAccount(ctx context.Context, accountID string, req UpdateAccountRequest) (*Account, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if err := e.validator.StructCtx(ctx, req); err != nil {
		return nil, invalidRequest(err)
	}

	var changed []string
	account, err := e.updateAccount(ctx, accountID, func(a *Account) error {
		changed = changed[:0]
		if req.Username != nil && *req.Username != a.Username {
			a.Username = *req.Username
			changed = append(changed, "username")
		}
		if req.Email != nil && *req.Email != a.Email {
			a.Email = *req.Email
			changed = append(changed, "email")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(changed) > 0 {
		e.emitAudit(ctx, auditEventAccountUpdated, true, accountID, account.Username, "", func() map[string]string {
			return map[string]string{"fields": strings.Join(changed, ",")}
		})
	}
	return account, nil
}

// SetRole assigns role to accountID. Roles missing from the permission table
// yield [ErrRoleInvalid] and leave the account untouched.
func (e *Engine) SetRole(ctx context.Context, accountID, role string) (*Account, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if !e.guard.table.HasRole(role) {
		return nil, ErrRoleInvalid
	}

	var previous string
	account, err := e.updateAccount(ctx, accountID, func(a *Account) error {
		previous = a.Role
		a.Role = role
		return nil
	})
	if err != nil {
		return nil, err
	}
	if previous != role {
		e.emitAudit(ctx, auditEventRoleChanged, true, accountID, account.Username, "", func() map[string]string {
			return map[string]string{"from": previous, "to": role}
		})
	}
	return account, nil
}

// Unlock clears the failed-attempt counter and any lock on the account.
func (e *Engine) Unlock(ctx context.Context, accountID string) (*Account, error) {
	account, err := e.updateAccount(ctx, accountID, func(a *Account) error {
		e.lockout.Unlock(a)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.emitAudit(ctx, auditEventAccountUnlocked, true, accountID, "", "", nil)
	return account, nil
}

// GetAccount loads an account by id.
func (e *Engine) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	account, err := e.store.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, storageError(err)
	}
	return account, nil
}

// ListAccounts pages through accounts. The store must implement [AccountLister].
func (e *Engine) ListAccounts(ctx context.Context, offset, limit int) ([]*Account, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if e.lister == nil {
		return nil, errors.New("credential store does not support listing accounts")
	}
	accounts, err := e.lister.List(ctx, offset, limit)
	if err != nil {
		return nil, storageError(err)
	}
	return accounts, nil
}

// SearchAccounts pages through accounts whose username or email contains query,
// ignoring case. A blank query behaves like [Engine.ListAccounts]. The store must
// implement [AccountSearcher].
func (e *Engine) SearchAccounts(ctx context.Context, query string, offset, limit int) ([]*Account, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return e.ListAccounts(ctx, offset, limit)
	}
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if e.searcher == nil {
		return nil, errors.New("credential store does not support searching accounts")
	}
	accounts, err := e.searcher.Search(ctx, query, offset, limit)
	if err != nil {
		return nil, storageError(err)
	}
	return accounts, nil
}

const statsPageSize = 500

// AccountStats walks every account through [AccountLister] and counts them.
// NewThisWeek and NewThisMonth reach back 7 and 30 days from the start of today
// (UTC).
func (e *Engine) AccountStats(ctx context.Context) (*AccountStats, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if e.lister == nil {
		return nil, errors.New("credential store does not support listing accounts")
	}

	now := e.now()
	today := now.UTC().Truncate(24 * time.Hour)
	week := today.AddDate(0, 0, -7)
	month := today.AddDate(0, 0, -30)

	stats := &AccountStats{}
	for offset := 0; ; offset += statsPageSize {
		page, err := e.lister.List(ctx, offset, statsPageSize)
		if err != nil {
			return nil, storageError(err)
		}
		for _, a := range page {
			stats.Total++
			if a.IsActive {
				stats.Active++
			}
			if a.IsVerified {
				stats.Verified++
			}
			if a.Locked(now) {
				stats.Locked++
			}
			if !a.CreatedAt.Before(today) {
				stats.NewToday++
			}
			if !a.CreatedAt.Before(week) {
				stats.NewThisWeek++
			}
			if !a.CreatedAt.Before(month) {
				stats.NewThisMonth++
			}
		}
		if len(page) < statsPageSize {
			return stats, nil
		}
	}
}

func (e *Engine) updateAccount(ctx context.Context, accountID string, fn func(*Account) error) (*Account, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	account, err := e.mutateByID(ctx, accountID, fn)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		if errors.Is(err, ErrAccountExists) {
			return nil, ErrAccountExists
		}
		e.logger.ErrorContext(ctx, "credential store failure updating account", "account_id", accountID, "error", err)
		return nil, storageError(err)
	}
	return account, nil
}

func invalidRequest(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{Field: fe.Field(), Rule: fe.Tag()}
	}
	return ErrAccountInvalid
}
