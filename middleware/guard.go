package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	authcore "github.com/MrEthical07/authcore"
)

type claimsContextKey struct{}

type accountContextKey struct{}

// ClaimsFromContext returns the claims stored by [Authenticate].
func ClaimsFromContext(ctx context.Context) (*authcore.Claims, bool) {
	c, ok := ctx.Value(claimsContextKey{}).(*authcore.Claims)
	return c, ok
}

// AccountFromContext returns the account stored by [Authenticate].
func AccountFromContext(ctx context.Context) (*authcore.Account, bool) {
	a, ok := ctx.Value(accountContextKey{}).(*authcore.Account)
	return a, ok
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, bool) {
	return bearerToken(r.Header.Get("Authorization"))
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

// ClientInfo records the client address and user agent for audit. Run it after
// any proxy header handling such as chi's RealIP.
func ClientInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		ctx := authcore.WithClientIP(r.Context(), ip)
		ctx = authcore.WithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Authenticate rejects requests without a valid access token with 401. Storage
// failures while resolving the account yield 503.
func Authenticate(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := BearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := engine.ValidateAccess(r.Context(), token)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			account, err := engine.CurrentAccount(r.Context(), claims)
			if err != nil {
				status := StatusFor(err)
				http.Error(w, http.StatusText(status), status)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			ctx = context.WithValue(ctx, accountContextKey{}, account)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Require checks every requirement against the authenticated account.
func Require(engine *authcore.Engine, reqs ...authcore.Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account, ok := AccountFromContext(r.Context())
			if !ok || engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if _, err := engine.Guard().Check(account, reqs...); err != nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func RequireRole(engine *authcore.Engine, role string) func(http.Handler) http.Handler {
	return Require(engine, authcore.Role(role))
}

func RequirePermission(engine *authcore.Engine, perm string) func(http.Handler) http.Handler {
	return Require(engine, authcore.Permission(perm))
}

func RequireVerified(engine *authcore.Engine) func(http.Handler) http.Handler {
	return Require(engine, authcore.Verified())
}

// StatusFor maps an engine error to an HTTP status code. Unknown errors map to
// 500.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, authcore.ErrAccountLocked):
		return http.StatusLocked
	case errors.Is(err, authcore.ErrStorage):
		return http.StatusServiceUnavailable
	case errors.Is(err, authcore.ErrInvalidCredentials), errors.Is(err, authcore.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, authcore.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, authcore.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, authcore.ErrAccountExists):
		return http.StatusConflict
	case errors.Is(err, authcore.ErrAccountInvalid),
		errors.Is(err, authcore.ErrPasswordPolicy),
		errors.Is(err, authcore.ErrPasswordReuse),
		errors.Is(err, authcore.ErrRoleInvalid),
		errors.Is(err, authcore.ErrReservedClaim):
		return http.StatusBadRequest
	case errors.Is(err, authcore.ErrRevocationUnavailable):
		return http.StatusNotImplemented
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
