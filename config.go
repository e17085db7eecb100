package authcore

import (
	"errors"
	"time"

	"github.com/MrEthical07/authcore/jwt"
	"golang.org/x/crypto/bcrypt"
)

// Config holds every tunable of the engine. Obtain defaults with [DefaultConfig],
// adjust, and pass to [Builder.WithConfig]. The engine keeps a private copy.
type Config struct {
	JWT      JWTConfig
	Lockout  LockoutConfig
	Password PasswordConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures token signing and lifetimes.
type JWTConfig struct {
	Algorithm  jwt.Algorithm
	Secret     []byte
	PrivateKey []byte
	PublicKey  []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Leeway     time.Duration
	// RotateRefreshTokens revokes a refresh token when it is used and returns a
	// new one. Requires a revocation set.
	RotateRefreshTokens bool
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig configures the failed-attempt lockout policy.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig configures the default bcrypt hasher and the password policy
// applied on account creation and password change.
type PasswordConfig struct {
	BcryptCost     int
	UpgradeOnLogin bool
	MinLength      int
	MaxLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireDigit   bool
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters and latency histograms.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns production defaults: HS256, 30 minute access tokens,
// 7 day refresh tokens, lockout after 5 failures for 30 minutes. A signing secret
// must still be supplied.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			Algorithm:  jwt.HS256,
			AccessTTL:  30 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Duration:  30 * time.Minute,
		},
		Password: PasswordConfig{
			BcryptCost:     12,
			UpgradeOnLogin: true,
			MinLength:      8,
			MaxLength:      72,
			RequireUpper:   true,
			RequireLower:   true,
			RequireDigit:   true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks cross-field constraints. Key material is checked by
// [Builder.Build] when the codec is constructed.
func (c *Config) Validate() error {
	// JWT
	switch c.JWT.Algorithm {
	case jwt.HS256, jwt.HS384, jwt.HS512:
		if len(c.JWT.Secret) == 0 {
			return errors.New("JWT Secret is required for HMAC algorithms")
		}
	case jwt.EdDSA:
		if len(c.JWT.PrivateKey) == 0 && len(c.JWT.PublicKey) == 0 {
			return errors.New("JWT EdDSA requires PrivateKey or PublicKey")
		}
	default:
		return errors.New("unsupported JWT algorithm")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be >= AccessTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be within 0..2m")
	}

	// Lockout
	if c.Lockout.Threshold < 1 {
		return errors.New("Lockout Threshold must be >= 1")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}

	// Password
	if c.Password.BcryptCost < bcrypt.MinCost || c.Password.BcryptCost > bcrypt.MaxCost {
		return errors.New("Password BcryptCost must be within 4..31")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}
	if c.Password.MaxLength > 72 {
		return errors.New("Password MaxLength must be <= 72 bytes")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
