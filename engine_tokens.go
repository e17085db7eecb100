package authcore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

const (
	claimSubject  = "sub"
	claimIssuedAt = "iat"
	claimExpires  = "exp"
	claimTokenID  = "jti"
	claimType     = "type"
	claimRole     = "role"
	claimUsername = "username"
)

// Extra claims may not use these names.
var reservedClaims = map[string]struct{}{
	claimSubject:  {},
	claimIssuedAt: {},
	claimExpires:  {},
	claimTokenID:  {},
	claimType:     {},
	"iss":         {},
	"nbf":         {},
	"aud":         {},
}

// IssueAccessToken signs an access token for account. The token carries sub, iat,
// exp, a fresh jti, the account's role and username, and extra. Extra entries
// override role and username; registered claim names yield [ErrReservedClaim].
// Extra values travel as JSON, so after validation numbers are float64, structs
// are map[string]any and slices are []any.
func (e *Engine) IssueAccessToken(account *Account, extra map[string]any) (string, error) {
	if account == nil || account.ID == "" {
		return "", errors.New("account id is required to issue a token")
	}
	for k := range extra {
		if _, ok := reservedClaims[k]; ok {
			return "", fmt.Errorf("%w: %q", ErrReservedClaim, k)
		}
	}

	claims := e.baseClaims(account.ID, e.config.JWT.AccessTTL)
	claims[claimRole] = account.Role
	claims[claimUsername] = account.Username
	for k, v := range extra {
		claims[k] = v
	}

	return e.sign(claims)
}

// IssueRefreshToken signs a refresh token (type=refresh) for account.
func (e *Engine) IssueRefreshToken(account *Account) (string, error) {
	if account == nil || account.ID == "" {
		return "", errors.New("account id is required to issue a token")
	}
	claims := e.baseClaims(account.ID, e.config.JWT.RefreshTTL)
	claims[claimType] = string(TokenRefresh)
	return e.sign(claims)
}

// IssueTokenPair issues an access and a refresh token for account.
func (e *Engine) IssueTokenPair(account *Account) (*TokenPair, error) {
	access, err := e.IssueAccessToken(account, nil)
	if err != nil {
		return nil, err
	}
	refresh, err := e.IssueRefreshToken(account)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(e.config.JWT.AccessTTL / time.Second),
	}, nil
}

func (e *Engine) baseClaims(subject string, ttl time.Duration) map[string]any {
	now := e.now()
	return map[string]any{
		claimSubject:  subject,
		claimIssuedAt: now.Unix(),
		claimExpires:  now.Add(ttl).Unix(),
		claimTokenID:  uuid.NewString(),
	}
}

func (e *Engine) sign(claims map[string]any) (string, error) {
	token, err := e.codec.Encode(claims)
	if err != nil {
		return "", err
	}
	e.metricInc(MetricTokenIssued)
	return token, nil
}

// Validate verifies signature and expiry and checks the revocation set. When the
// revocation backend fails the token is rejected. Validate has no side effects;
// repeated calls on the same token return equal claims.
func (e *Engine) Validate(ctx context.Context, token string) (*Claims, error) {
	start := time.Now()
	defer e.observeSince(MetricValidateLatency, start)

	claims, err := e.decode(token)
	if err != nil {
		e.metricInc(MetricValidateFailure)
		e.logger.DebugContext(ctx, "token rejected", "error", err)
		return nil, err
	}

	if e.revocations != nil {
		revoked, err := e.revocations.IsRevoked(ctx, claims.TokenID)
		if err != nil {
			e.metricInc(MetricRevocationCheckFailure)
			e.metricInc(MetricValidateFailure)
			e.logger.ErrorContext(ctx, "revocation check failed", "token_id", claims.TokenID, "error", err)
			return nil, fmt.Errorf("%w: revocation check failed: %v", ErrInvalidToken, err)
		}
		if revoked {
			e.metricInc(MetricValidateFailure)
			e.logger.DebugContext(ctx, "token rejected", "token_id", claims.TokenID, "reason", "revoked")
			return nil, invalidToken("revoked")
		}
	}

	return claims, nil
}

// ValidateAccess is Validate for bearer credentials: refresh tokens are rejected.
func (e *Engine) ValidateAccess(ctx context.Context, token string) (*Claims, error) {
	claims, err := e.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	if claims.Type == TokenRefresh {
		e.metricInc(MetricValidateFailure)
		return nil, invalidToken("refresh token presented as access token")
	}
	return claims, nil
}

// Refresh exchanges a refresh token for a new access token. The token must be of
// type refresh and its subject must resolve to an active account. With
// RotateRefreshTokens the presented token is revoked and a new refresh token is
// returned, and of several concurrent calls with one token only the first
// succeeds. Otherwise the returned pair carries the presented refresh token.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	pair, accountID, err := e.refresh(ctx, refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshFailure, false, accountID, "", refreshFailureReason(err), nil)
		return nil, err
	}
	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventTokenRefreshed, true, accountID, "", "", nil)
	return pair, nil
}

func (e *Engine) refresh(ctx context.Context, refreshToken string) (*TokenPair, string, error) {
	claims, err := e.Validate(ctx, refreshToken)
	if err != nil {
		return nil, "", err
	}
	if claims.Type != TokenRefresh {
		return nil, claims.Subject, invalidToken("not a refresh token")
	}

	account, err := e.CurrentAccount(ctx, claims)
	if err != nil {
		return nil, claims.Subject, err
	}
	if !account.IsActive {
		return nil, account.ID, invalidToken("account inactive")
	}

	access, err := e.IssueAccessToken(account, nil)
	if err != nil {
		return nil, account.ID, err
	}
	pair := &TokenPair{
		AccessToken:  access,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(e.config.JWT.AccessTTL / time.Second),
	}

	if e.config.JWT.RotateRefreshTokens {
		first, err := e.consumeRefreshToken(ctx, claims)
		if err != nil {
			e.logger.ErrorContext(ctx, "refresh rotation failed", "account_id", account.ID, "error", err)
			return nil, account.ID, fmt.Errorf("revoke refresh token: %w", err)
		}
		if !first {
			e.metricInc(MetricRefreshReuse)
			e.logger.WarnContext(ctx, "rotated refresh token presented again", "account_id", account.ID)
			return nil, account.ID, invalidToken("refresh token already used")
		}
		next, err := e.IssueRefreshToken(account)
		if err != nil {
			return nil, account.ID, err
		}
		pair.RefreshToken = next
	}

	return pair, account.ID, nil
}

// consumeRefreshToken revokes the presented refresh token and reports whether
// this call was the one that revoked it. Sets without [RevocationConsumer] fall
// back to Revoke, where the earlier IsRevoked check is the only guard.
func (e *Engine) consumeRefreshToken(ctx context.Context, claims *Claims) (bool, error) {
	if c, ok := e.revocations.(RevocationConsumer); ok {
		return c.Consume(ctx, claims.TokenID, claims.ExpiresAt)
	}
	if err := e.revocations.Revoke(ctx, claims.TokenID, claims.ExpiresAt); err != nil {
		return false, err
	}
	return true, nil
}

func refreshFailureReason(err error) string {
	switch {
	case errors.Is(err, ErrStorage):
		return "storage_error"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	default:
		return "internal_error"
	}
}

// Revoke adds token's id to the revocation set until the token expires. Revoking
// an already revoked token succeeds.
func (e *Engine) Revoke(ctx context.Context, token string) error {
	if e.revocations == nil {
		return ErrRevocationUnavailable
	}
	claims, err := e.decode(token)
	if err != nil {
		return err
	}
	return e.revoke(ctx, claims)
}

// Logout revokes an access token and, when given, the refresh token issued
// alongside it. Both must belong to the same subject.
func (e *Engine) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if e.revocations == nil {
		return ErrRevocationUnavailable
	}
	access, err := e.decode(accessToken)
	if err != nil {
		return err
	}

	var refresh *Claims
	if refreshToken != "" {
		refresh, err = e.decode(refreshToken)
		if err != nil {
			return err
		}
		if refresh.Type != TokenRefresh || refresh.Subject != access.Subject {
			return invalidToken("refresh token does not match access token")
		}
	}

	if err := e.revoke(ctx, access); err != nil {
		return err
	}
	if refresh != nil {
		return e.revoke(ctx, refresh)
	}
	return nil
}

func (e *Engine) revoke(ctx context.Context, claims *Claims) error {
	if err := e.revocations.Revoke(ctx, claims.TokenID, claims.ExpiresAt); err != nil {
		e.logger.ErrorContext(ctx, "token revocation failed", "token_id", claims.TokenID, "error", err)
		return fmt.Errorf("revoke token: %w", err)
	}
	e.metricInc(MetricTokenRevoked)
	e.emitAudit(ctx, auditEventTokenRevoked, true, claims.Subject, "", "", func() map[string]string {
		return map[string]string{"token_type": string(claims.Type), "token_id": claims.TokenID}
	})
	return nil
}

// CurrentAccount resolves claims.Subject through the credential store. A subject
// that no longer exists is an invalid token.
func (e *Engine) CurrentAccount(ctx context.Context, claims *Claims) (*Account, error) {
	if claims == nil || claims.Subject == "" {
		return nil, invalidToken("missing subject")
	}
	account, err := e.store.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, invalidToken("subject not found")
		}
		e.logger.ErrorContext(ctx, "credential store failure resolving subject", "account_id", claims.Subject, "error", err)
		return nil, storageError(err)
	}
	return account, nil
}

// decode verifies the token and maps its payload without consulting the
// revocation set.
func (e *Engine) decode(token string) (*Claims, error) {
	raw, err := e.codec.Decode(token)
	if err != nil {
		return nil, err
	}
	return claimsFromMap(raw)
}

func claimsFromMap(raw map[string]any) (*Claims, error) {
	sub, _ := raw[claimSubject].(string)
	if sub == "" {
		return nil, invalidToken("missing subject")
	}
	jti, _ := raw[claimTokenID].(string)
	if jti == "" {
		return nil, invalidToken("missing token id")
	}

	c := &Claims{
		Subject: sub,
		TokenID: jti,
		Type:    TokenAccess,
		Extra:   make(map[string]any),
	}

	if v, ok := raw[claimType]; ok {
		s, _ := v.(string)
		switch TokenType(s) {
		case TokenAccess, TokenRefresh:
			c.Type = TokenType(s)
		default:
			return nil, invalidToken("unknown token type")
		}
	}

	exp, ok := numericDate(raw[claimExpires])
	if !ok {
		return nil, invalidToken("malformed exp")
	}
	c.ExpiresAt = exp
	if iat, ok := numericDate(raw[claimIssuedAt]); ok {
		c.IssuedAt = iat
	}

	for k, v := range raw {
		if _, reserved := reservedClaims[k]; reserved {
			continue
		}
		c.Extra[k] = v
	}
	c.Role, _ = raw[claimRole].(string)
	c.Username, _ = raw[claimUsername].(string)

	return c, nil
}

func numericDate(v any) (time.Time, bool) {
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, false
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)), true
}
