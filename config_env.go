package authcore

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/jwt"
)

// Environment variables read by [ConfigFromEnv].
const (
	EnvJWTAlgorithm     = "AUTH_JWT_ALGORITHM"
	EnvJWTSecret        = "AUTH_JWT_SECRET"
	EnvJWTPrivateKey    = "AUTH_JWT_PRIVATE_KEY"
	EnvJWTPublicKey     = "AUTH_JWT_PUBLIC_KEY"
	EnvJWTIssuer        = "AUTH_JWT_ISSUER"
	EnvJWTLeeway        = "AUTH_JWT_LEEWAY"
	EnvAccessTTL        = "AUTH_ACCESS_TTL"
	EnvRefreshTTL       = "AUTH_REFRESH_TTL"
	EnvRotateRefresh    = "AUTH_ROTATE_REFRESH_TOKENS"
	EnvLockoutThreshold = "AUTH_LOCKOUT_THRESHOLD"
	EnvLockoutDuration  = "AUTH_LOCKOUT_DURATION"
	EnvBcryptCost       = "AUTH_BCRYPT_COST"
	EnvAuditEnabled     = "AUTH_AUDIT_ENABLED"
	EnvMetricsEnabled   = "AUTH_METRICS_ENABLED"
)

// ConfigFromEnv overlays environment values on [DefaultConfig]. getenv is usually
// os.Getenv; unset variables keep their defaults. Durations use time.ParseDuration
// syntax ("30m", "168h"). All parse errors are reported together.
func ConfigFromEnv(getenv func(string) string) (Config, error) {
	cfg := DefaultConfig()
	var errs []error

	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	bytesVar := func(key string, dst *[]byte) {
		if v := getenv(key); v != "" {
			*dst = []byte(v)
		}
	}
	duration := func(key string, dst *time.Duration) {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}
	integer := func(key string, dst *int) {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
	boolean := func(key string, dst *bool) {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = b
	}

	var alg string
	str(EnvJWTAlgorithm, &alg)
	if alg != "" {
		cfg.JWT.Algorithm = jwt.Algorithm(alg)
	}
	bytesVar(EnvJWTSecret, &cfg.JWT.Secret)
	bytesVar(EnvJWTPrivateKey, &cfg.JWT.PrivateKey)
	bytesVar(EnvJWTPublicKey, &cfg.JWT.PublicKey)
	str(EnvJWTIssuer, &cfg.JWT.Issuer)
	duration(EnvJWTLeeway, &cfg.JWT.Leeway)
	duration(EnvAccessTTL, &cfg.JWT.AccessTTL)
	duration(EnvRefreshTTL, &cfg.JWT.RefreshTTL)
	boolean(EnvRotateRefresh, &cfg.JWT.RotateRefreshTokens)
	integer(EnvLockoutThreshold, &cfg.Lockout.Threshold)
	duration(EnvLockoutDuration, &cfg.Lockout.Duration)
	integer(EnvBcryptCost, &cfg.Password.BcryptCost)
	boolean(EnvAuditEnabled, &cfg.Audit.Enabled)
	boolean(EnvMetricsEnabled, &cfg.Metrics.Enabled)

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}
