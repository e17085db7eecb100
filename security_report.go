package authcore

import (
	"github.com/MrEthical07/authcore/internal/security"
	"github.com/MrEthical07/authcore/jwt"
)

// SecurityReport is a read-only summary of the engine's effective security
// settings, suitable for startup logs and health endpoints. It never contains
// key material.
type SecurityReport = security.Report

// SecurityReport returns the posture of the built engine.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	alg := e.config.JWT.Algorithm
	if alg == "" {
		alg = jwt.HS256
	}

	return security.BuildReport(security.ReportInput{
		SigningAlgorithm:       string(alg),
		AccessTTL:              e.config.JWT.AccessTTL,
		RefreshTTL:             e.config.JWT.RefreshTTL,
		Leeway:                 e.config.JWT.Leeway,
		BcryptCost:             e.config.Password.BcryptCost,
		UpgradeOnLogin:         e.config.Password.UpgradeOnLogin,
		MinPasswordLength:      e.config.Password.MinLength,
		RequireUpper:           e.config.Password.RequireUpper,
		RequireLower:           e.config.Password.RequireLower,
		RequireDigit:           e.config.Password.RequireDigit,
		LockoutThreshold:       e.config.Lockout.Threshold,
		LockoutDuration:        e.config.Lockout.Duration,
		HasRevocationSet:       e.revocations != nil,
		RefreshRotationEnabled: e.config.JWT.RotateRefreshTokens,
		AuditEnabled:           e.config.Audit.Enabled,
		MetricsEnabled:         e.config.Metrics.Enabled,
	})
}
