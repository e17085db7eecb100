package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	authcore "github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/middleware"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type registerRequest struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginRequest struct {
	// Identifier is a username or an email address.
	Identifier string `json:"identifier" validate:"required,max=254"`
	Password   string `json:"password" validate:"required,max=1024"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

type setActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

type updateMeRequest struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
}

type adminUpdateRequest struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Role     *string `json:"role" validate:"omitnil,min=1"`
}

type statsResponse struct {
	TotalUsers        int `json:"total_users"`
	ActiveUsers       int `json:"active_users"`
	VerifiedUsers     int `json:"verified_users"`
	LockedUsers       int `json:"locked_users"`
	NewUsersToday     int `json:"new_users_today"`
	NewUsersThisWeek  int `json:"new_users_this_week"`
	NewUsersThisMonth int `json:"new_users_this_month"`
}

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	if a.health != nil {
		if err := a.health(r.Context()); err != nil {
			a.logger.WarnContext(r.Context(), "health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRegister creates a plain user account. Roles and superuser status are
// granted out of band.
func (a *api) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !a.decode(w, r, &req) {
		return
	}

	account, err := a.engine.CreateAccount(r.Context(), authcore.CreateAccountRequest{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     authcore.RoleUser,
	})
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, newUserResponse(account))
}

func (a *api) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !a.decode(w, r, &req) {
		return
	}

	ctx := r.Context()
	ip := authcore.ClientIPFromContext(ctx)
	if a.limiter != nil {
		if err := a.limiter.Allow(ctx, req.Identifier, ip); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				w.Header().Set("Retry-After", "60")
				writeError(w, http.StatusTooManyRequests, "too many login attempts")
				return
			}
			// Lockout still applies while the limiter backend is down.
			a.logger.WarnContext(ctx, "login limiter unavailable", "error", err)
		}
	}

	account, err := a.engine.Authenticate(ctx, req.Identifier, req.Password)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}

	if a.limiter != nil {
		if err := a.limiter.Reset(ctx, req.Identifier, ip); err != nil {
			a.logger.WarnContext(ctx, "login limiter reset failed", "error", err)
		}
	}

	pair, err := a.engine.IssueTokenPair(account)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newTokenResponse(pair))
}

func (a *api) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !a.decode(w, r, &req) {
		return
	}

	pair, err := a.engine.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newTokenResponse(pair))
}

func (a *api) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if r.ContentLength != 0 {
		if !a.decode(w, r, &req) {
			return
		}
	}

	access, _ := middleware.BearerToken(r)
	if err := a.engine.Logout(r.Context(), access, req.RefreshToken); err != nil {
		a.writeEngineError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleMe(w http.ResponseWriter, r *http.Request) {
	account, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(account))
}

func (a *api) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	account, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req changePasswordRequest
	if !a.decode(w, r, &req) {
		return
	}

	if err := a.engine.ChangePassword(r.Context(), account.ID, req.CurrentPassword, req.NewPassword); err != nil {
		a.writeEngineError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	account, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req updateMeRequest
	if !a.decode(w, r, &req) {
		return
	}

	updated, err := a.engine.UpdateAccount(r.Context(), account.ID, authcore.UpdateAccountRequest{
		Username: req.Username,
		Email:    req.Email,
	})
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(updated))
}

// handleDeactivateMe deactivates the caller and revokes the presented access
// token when a revocation set is configured.
func (a *api) handleDeactivateMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, ok := middleware.AccountFromContext(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if _, err := a.engine.SetActive(ctx, account.ID, false); err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	if access, ok := middleware.BearerToken(r); ok {
		if err := a.engine.Revoke(ctx, access); err != nil && !errors.Is(err, authcore.ErrRevocationUnavailable) {
			a.logger.WarnContext(ctx, "revoke on deactivation failed", "account_id", account.ID, "error", err)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleListUsers(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil || limit <= 0 || limit > maxPageSize {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	search := r.URL.Query().Get("search")
	accounts, err := a.engine.SearchAccounts(r.Context(), search, offset, limit)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}

	users := make([]userResponse, 0, len(accounts))
	for _, account := range accounts {
		users = append(users, newUserResponse(account))
	}
	body := map[string]any{"users": users, "offset": offset, "limit": limit}
	if search != "" {
		body["search"] = search
	}
	writeJSON(w, http.StatusOK, body)
}

func (a *api) handleGetUser(w http.ResponseWriter, r *http.Request) {
	account, err := a.engine.GetAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(account))
}

// handleUpdateUser changes username, email and role of another account. Field
// updates are applied before the role.
func (a *api) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req adminUpdateRequest
	if !a.decode(w, r, &req) {
		return
	}

	ctx := r.Context()
	id := chi.URLParam(r, "id")
	var (
		account *authcore.Account
		err     error
	)
	if req.Username != nil || req.Email != nil {
		account, err = a.engine.UpdateAccount(ctx, id, authcore.UpdateAccountRequest{
			Username: req.Username,
			Email:    req.Email,
		})
		if err != nil {
			a.writeEngineError(w, r, err)
			return
		}
	}
	if req.Role != nil {
		account, err = a.engine.SetRole(ctx, id, *req.Role)
		if err != nil {
			a.writeEngineError(w, r, err)
			return
		}
	}
	if account == nil {
		if account, err = a.engine.GetAccount(ctx, id); err != nil {
			a.writeEngineError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, newUserResponse(account))
}

func (a *api) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.engine.AccountStats(r.Context())
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		TotalUsers:        stats.Total,
		ActiveUsers:       stats.Active,
		VerifiedUsers:     stats.Verified,
		LockedUsers:       stats.Locked,
		NewUsersToday:     stats.NewToday,
		NewUsersThisWeek:  stats.NewThisWeek,
		NewUsersThisMonth: stats.NewThisMonth,
	})
}

func (a *api) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	if !a.decode(w, r, &req) {
		return
	}

	id := chi.URLParam(r, "id")
	if caller, ok := middleware.AccountFromContext(r.Context()); ok && caller.ID == id && !*req.Active {
		writeError(w, http.StatusBadRequest, "cannot deactivate your own account")
		return
	}

	account, err := a.engine.SetActive(r.Context(), id, *req.Active)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(account))
}

func (a *api) handleVerify(w http.ResponseWriter, r *http.Request) {
	account, err := a.engine.MarkVerified(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(account))
}

func (a *api) handleUnlock(w http.ResponseWriter, r *http.Request) {
	account, err := a.engine.Unlock(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(account))
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
