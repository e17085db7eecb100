package authcore

import (
	"io"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
)

// Built-in roles.
const (
	RoleUser      = "user"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// Account is the credential record the engine reads and mutates. Stores own it;
// the engine only touches the fields it needs.
type Account struct {
	ID                  string
	Username            string
	Email               string
	PasswordHash        string
	Role                string
	IsSuperuser         bool
	IsActive            bool
	IsVerified          bool
	FailedLoginAttempts int
	LockedUntil         *time.Time
	LastLoginAt         *time.Time
	PasswordChangedAt   time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Superuser reports whether the account bypasses every role and permission check.
func (a *Account) Superuser() bool {
	return a != nil && (a.IsSuperuser || a.Role == RoleAdmin)
}

// Locked reports whether the account is locked at now.
func (a *Account) Locked(now time.Time) bool {
	return a != nil && a.LockedUntil != nil && a.LockedUntil.After(now)
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	if a.LockedUntil != nil {
		t := *a.LockedUntil
		out.LockedUntil = &t
	}
	if a.LastLoginAt != nil {
		t := *a.LastLoginAt
		out.LastLoginAt = &t
	}
	return &out
}

// TokenType distinguishes access from refresh tokens.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// Claims is the decoded form of a token issued by the engine.
type Claims struct {
	Subject   string
	TokenID   string
	Type      TokenType
	IssuedAt  time.Time
	ExpiresAt time.Time
	Role      string
	Username  string
	// Extra holds every non-registered claim verbatim, including role and username.
	Extra map[string]any
}

// TokenPair is returned on login and refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64
}

// CreateAccountRequest is the input for [Engine.CreateAccount]. Role defaults to
// [RoleUser] when empty.
type CreateAccountRequest struct {
	Username    string `validate:"required,min=3,max=50,username"`
	Email       string `validate:"required,email,max=254"`
	Password    string `validate:"required"`
	Role        string `validate:"omitempty,max=64"`
	IsSuperuser bool
	IsVerified  bool
}

// UpdateAccountRequest is the input for [Engine.UpdateAccount]. Nil fields are
// left unchanged.
type UpdateAccountRequest struct {
	Username *string `validate:"omitnil,min=3,max=50,username"`
	Email    *string `validate:"omitnil,email,max=254"`
}

// AccountStats summarises the account population. The New* counts are measured
// from the start of the current UTC day.
type AccountStats struct {
	Total        int
	Active       int
	Verified     int
	Locked       int
	NewToday     int
	NewThisWeek  int
	NewThisMonth int
}

// AuditEvent is the audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events.
type AuditSink = internalaudit.Sink

// NoOpSink discards audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink forwards audit events into a buffered channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per audit event.
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink writes audit events through a structured logger.
type SlogSink = internalaudit.SlogSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}
