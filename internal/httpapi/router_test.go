package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authcore "github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/revocation"
	"github.com/MrEthical07/authcore/store/memstore"
)

const testPassword = "SecurePass123!"

type harness struct {
	engine  *authcore.Engine
	store   *memstore.Store
	handler http.Handler
}

func newHarness(t *testing.T, limiter rate.Limiter) *harness {
	t.Helper()
	cfg := authcore.DefaultConfig()
	cfg.JWT.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.BcryptCost = 4

	store := memstore.New()
	engine, err := authcore.New().
		WithConfig(cfg).
		WithStore(store).
		WithRevocationSet(revocation.NewMemory(nil)).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	return &harness{
		engine: engine,
		store:  store,
		handler: NewRouter(Deps{
			Engine:  engine,
			Limiter: limiter,
			Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("# metrics"))
			}),
		}),
	}
}

func (h *harness) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		var buf bytes.Buffer
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
		reader = &buf
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) createAccount(t *testing.T, username, role string) *authcore.Account {
	t.Helper()
	a, err := h.engine.CreateAccount(context.Background(), authcore.CreateAccountRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: testPassword,
		Role:     role,
	})
	require.NoError(t, err)
	return a
}

func (h *harness) login(t *testing.T, identifier string) tokenResponse {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{Identifier: identifier, Password: testPassword})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestRegisterAndLogin(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodPost, "/api/v1/auth/register", "", registerRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: testPassword,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var user userResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, authcore.RoleUser, user.Role)
	assert.True(t, user.IsActive)
	assert.False(t, user.IsVerified)

	tokens := h.login(t, "alice@example.com")
	assert.Equal(t, "bearer", tokens.TokenType)
	assert.Equal(t, int64(1800), tokens.ExpiresIn)
	assert.NotEmpty(t, tokens.RefreshToken)

	rec = h.do(t, http.MethodGet, "/api/v1/users/me", tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.Equal(t, "alice", user.Username)
	assert.NotNil(t, user.LastLoginAt)
}

func TestRegisterRejectsBadInput(t *testing.T) {
	h := newHarness(t, nil)
	h.createAccount(t, "taken", "")

	tests := []struct {
		name string
		body any
		code int
	}{
		{"malformed", "not an object", http.StatusBadRequest},
		{"missing password", registerRequest{Username: "bob", Email: "bob@example.com"}, http.StatusBadRequest},
		{"bad email", registerRequest{Username: "bob", Email: "nope", Password: testPassword}, http.StatusBadRequest},
		{"weak password", registerRequest{Username: "bob", Email: "bob@example.com", Password: "short"}, http.StatusBadRequest},
		{"duplicate", registerRequest{Username: "taken", Email: "other@example.com", Password: testPassword}, http.StatusConflict},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := h.do(t, http.MethodPost, "/api/v1/auth/register", "", tc.body)
			assert.Equal(t, tc.code, rec.Code, rec.Body.String())
		})
	}
}

func TestLoginFailures(t *testing.T) {
	h := newHarness(t, nil)
	h.createAccount(t, "alice", "")

	rec := h.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{Identifier: "alice", Password: "Wrong-pass1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{Identifier: "ghost", Password: testPassword})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, authcore.ErrInvalidCredentials.Error(), body.Error)
}

func TestLoginLocksAccount(t *testing.T) {
	h := newHarness(t, nil)
	h.createAccount(t, "alice", "")

	for i := 0; i < 5; i++ {
		rec := h.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{Identifier: "alice", Password: "Wrong-pass1"})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := h.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{Identifier: "alice", Password: testPassword})
	assert.Equal(t, http.StatusLocked, rec.Code)
}

func TestLoginRateLimited(t *testing.T) {
	h := newHarness(t, rate.NewLocal(rate.Config{MaxAttempts: 2, Window: time.Minute, EnableIPThrottle: true}))
	h.createAccount(t, "alice", "")

	for i := 0; i < 2; i++ {
		rec := h.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{Identifier: "alice", Password: "Wrong-pass1"})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := h.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{Identifier: "alice", Password: testPassword})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, string) error {
	return errors.Join(rate.ErrRedisUnavailable, errors.New("dial tcp: refused"))
}

func (failingLimiter) Reset(context.Context, string, string) error { return rate.ErrRedisUnavailable }

func TestLoginLimiterOutageFailsOpen(t *testing.T) {
	h := newHarness(t, failingLimiter{})
	h.createAccount(t, "alice", "")

	h.login(t, "alice")
}

func TestRefreshAndLogout(t *testing.T) {
	h := newHarness(t, nil)
	h.createAccount(t, "alice", "")
	tokens := h.login(t, "alice")

	rec := h.do(t, http.MethodPost, "/api/v1/auth/refresh", "", refreshRequest{RefreshToken: tokens.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "access token must not refresh")

	rec = h.do(t, http.MethodPost, "/api/v1/auth/refresh", "", refreshRequest{RefreshToken: tokens.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var refreshed tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &refreshed))
	assert.NotEqual(t, tokens.AccessToken, refreshed.AccessToken)

	rec = h.do(t, http.MethodPost, "/api/v1/auth/logout", refreshed.AccessToken, logoutRequest{RefreshToken: tokens.RefreshToken})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodGet, "/api/v1/users/me", refreshed.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/auth/refresh", "", refreshRequest{RefreshToken: tokens.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutWithoutBody(t *testing.T) {
	h := newHarness(t, nil)
	h.createAccount(t, "alice", "")
	tokens := h.login(t, "alice")

	rec := h.do(t, http.MethodPost, "/api/v1/auth/logout", tokens.AccessToken, nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/api/v1/auth/logout", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChangePassword(t *testing.T) {
	h := newHarness(t, nil)
	h.createAccount(t, "alice", "")
	tokens := h.login(t, "alice")

	rec := h.do(t, http.MethodPut, "/api/v1/users/me/password", tokens.AccessToken, changePasswordRequest{
		CurrentPassword: "Wrong-pass1",
		NewPassword:     "Another-pass2",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodPut, "/api/v1/users/me/password", tokens.AccessToken, changePasswordRequest{
		CurrentPassword: testPassword,
		NewPassword:     testPassword,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPut, "/api/v1/users/me/password", tokens.AccessToken, changePasswordRequest{
		CurrentPassword: testPassword,
		NewPassword:     "Another-pass2",
	})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{Identifier: "alice", Password: "Another-pass2"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminRoutes(t *testing.T) {
	h := newHarness(t, nil)
	h.createAccount(t, "root", authcore.RoleAdmin)
	h.createAccount(t, "mod", "moderator")
	alice := h.createAccount(t, "alice", "")

	admin := h.login(t, "root")
	user := h.login(t, "alice")

	rec := h.do(t, http.MethodGet, "/api/v1/admin/users", user.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/admin/users?limit=2", admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var page struct {
		Users []userResponse `json:"users"`
		Limit int            `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page.Users, 2)
	assert.Equal(t, 2, page.Limit)

	rec = h.do(t, http.MethodGet, "/api/v1/admin/users?limit=0", admin.AccessToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/admin/users/"+alice.ID, admin.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/admin/users/missing", admin.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/admin/users/"+alice.ID+"/verify", admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var verified userResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verified))
	assert.True(t, verified.IsVerified)

	inactive := false
	rec = h.do(t, http.MethodPut, "/api/v1/admin/users/"+alice.ID+"/active", admin.AccessToken, setActiveRequest{Active: &inactive})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodGet, "/api/v1/users/me", user.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code, "token stays valid; activity is checked at login")

	rec = h.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{Identifier: "alice", Password: testPassword})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminUnlockRequiresAdminRole(t *testing.T) {
	h := newHarness(t, nil)
	h.createAccount(t, "root", authcore.RoleAdmin)
	h.createAccount(t, "mod", "moderator")
	alice := h.createAccount(t, "alice", "")

	for i := 0; i < 5; i++ {
		h.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{Identifier: "alice", Password: "Wrong-pass1"})
	}
	rec := h.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{Identifier: "alice", Password: testPassword})
	require.Equal(t, http.StatusLocked, rec.Code)

	mod := h.login(t, "mod")
	rec = h.do(t, http.MethodPost, "/api/v1/admin/users/"+alice.ID+"/unlock", mod.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin := h.login(t, "root")
	rec = h.do(t, http.MethodPost, "/api/v1/admin/users/"+alice.ID+"/unlock", admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	h.login(t, "alice")
}

func TestUpdateMe(t *testing.T) {
	h := newHarness(t, nil)
	h.createAccount(t, "alice", "")
	h.createAccount(t, "bob", "")
	tokens := h.login(t, "alice")

	newName := "alice_w"
	rec := h.do(t, http.MethodPut, "/api/v1/users/me", tokens.AccessToken, updateMeRequest{Username: &newName})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var user userResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.Equal(t, "alice_w", user.Username)
	assert.Equal(t, "alice@example.com", user.Email)

	taken := "bob@example.com"
	rec = h.do(t, http.MethodPut, "/api/v1/users/me", tokens.AccessToken, updateMeRequest{Email: &taken})
	assert.Equal(t, http.StatusConflict, rec.Code)

	bad := "x"
	rec = h.do(t, http.MethodPut, "/api/v1/users/me", tokens.AccessToken, updateMeRequest{Username: &bad})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPut, "/api/v1/users/me", tokens.AccessToken, map[string]string{"role": "admin"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "role is not a self-service field")

	h.login(t, "alice_w")
}

func TestDeactivateMe(t *testing.T) {
	h := newHarness(t, nil)
	h.createAccount(t, "alice", "")
	tokens := h.login(t, "alice")

	rec := h.do(t, http.MethodDelete, "/api/v1/users/me", tokens.AccessToken, nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodGet, "/api/v1/users/me", tokens.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{Identifier: "alice", Password: testPassword})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/auth/refresh", "", refreshRequest{RefreshToken: tokens.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminUpdateUser(t *testing.T) {
	h := newHarness(t, nil)
	h.createAccount(t, "root", authcore.RoleAdmin)
	h.createAccount(t, "mod", "moderator")
	alice := h.createAccount(t, "alice", "")

	admin := h.login(t, "root")
	mod := h.login(t, "mod")

	role := "moderator"
	rec := h.do(t, http.MethodPut, "/api/v1/admin/users/"+alice.ID, mod.AccessToken, adminUpdateRequest{Role: &role})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	email := "alice.new@example.com"
	rec = h.do(t, http.MethodPut, "/api/v1/admin/users/"+alice.ID, admin.AccessToken, adminUpdateRequest{Email: &email, Role: &role})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var user userResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.Equal(t, "moderator", user.Role)
	assert.Equal(t, email, user.Email)

	unknown := "overlord"
	rec = h.do(t, http.MethodPut, "/api/v1/admin/users/"+alice.ID, admin.AccessToken, adminUpdateRequest{Role: &unknown})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	stored, err := h.engine.GetAccount(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "moderator", stored.Role)

	rec = h.do(t, http.MethodPut, "/api/v1/admin/users/missing", admin.AccessToken, adminUpdateRequest{Role: &role})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodPut, "/api/v1/admin/users/"+alice.ID, admin.AccessToken, adminUpdateRequest{})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminCannotDeactivateSelf(t *testing.T) {
	h := newHarness(t, nil)
	root := h.createAccount(t, "root", authcore.RoleAdmin)
	admin := h.login(t, "root")

	inactive := false
	rec := h.do(t, http.MethodPut, "/api/v1/admin/users/"+root.ID+"/active", admin.AccessToken, setActiveRequest{Active: &inactive})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	stored, err := h.engine.GetAccount(context.Background(), root.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsActive)
}

func TestAdminSearchAndStats(t *testing.T) {
	h := newHarness(t, nil)
	h.createAccount(t, "root", authcore.RoleAdmin)
	h.createAccount(t, "alice", "")
	h.createAccount(t, "malik", "")
	bob := h.createAccount(t, "bob", "")
	_, err := h.engine.SetActive(context.Background(), bob.ID, false)
	require.NoError(t, err)

	admin := h.login(t, "root")
	user := h.login(t, "alice")

	rec := h.do(t, http.MethodGet, "/api/v1/admin/users?search=LI", admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var page struct {
		Users  []userResponse `json:"users"`
		Search string         `json:"search"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Users, 2)
	assert.Equal(t, "LI", page.Search)
	for _, u := range page.Users {
		assert.Contains(t, []string{"alice", "malik"}, u.Username)
	}

	rec = h.do(t, http.MethodGet, "/api/v1/admin/stats", user.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/admin/stats", admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var stats statsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 4, stats.TotalUsers)
	assert.Equal(t, 3, stats.ActiveUsers)
	assert.Equal(t, 0, stats.VerifiedUsers)
	assert.Equal(t, 4, stats.NewUsersToday)
	assert.Equal(t, 4, stats.NewUsersThisMonth)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# metrics", rec.Body.String())

	down := NewRouter(Deps{
		Engine: h.engine,
		Health: func(context.Context) error { return errors.New("db down") },
	})
	rec = httptest.NewRecorder()
	down.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRecovererReturns500(t *testing.T) {
	h := recoverer(slog.New(slog.DiscardHandler))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
