package authcore

import (
	"context"
)

const (
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventAccountLocked        = "account_locked"
	auditEventLockoutPersistFailed = "lockout_persist_failed"
	auditEventTokenRefreshed       = "token_refreshed"
	auditEventRefreshFailure       = "refresh_failure"
	auditEventTokenRevoked         = "token_revoked"
	auditEventAccountCreated       = "account_created"
	auditEventAccountCreateFailure = "account_creation_failure"
	auditEventPasswordChanged      = "password_changed"
	auditEventPasswordChangeFailed = "password_change_failure"
	auditEventAccountStatusChanged = "account_status_changed"
	auditEventAccountUnlocked      = "account_unlocked"
	auditEventAccountUpdated       = "account_updated"
	auditEventRoleChanged          = "role_changed"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	identifier string,
	reason string,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	e.audit.Emit(ctx, AuditEvent{
		Timestamp:  e.now().UTC(),
		Type:       eventType,
		AccountID:  accountID,
		Identifier: identifier,
		IP:         ClientIPFromContext(ctx),
		UserAgent:  UserAgentFromContext(ctx),
		Success:    success,
		Reason:     reason,
		Metadata:   metadata,
	})
}
