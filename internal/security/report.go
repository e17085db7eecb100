package security

import "time"

// Report summarises the security-relevant settings of an engine.
type Report struct {
	SigningAlgorithm       string
	AsymmetricSigning      bool
	AccessTTL              time.Duration
	RefreshTTL             time.Duration
	Leeway                 time.Duration
	BcryptCost             int
	HashUpgradeOnLogin     bool
	MinPasswordLength      int
	PasswordComplexity     bool
	LockoutActive          bool
	LockoutThreshold       int
	LockoutDuration        time.Duration
	RevocationActive       bool
	RefreshRotationEnabled bool
	AuditEnabled           bool
	MetricsEnabled         bool
}

type ReportInput struct {
	SigningAlgorithm       string
	AccessTTL              time.Duration
	RefreshTTL             time.Duration
	Leeway                 time.Duration
	BcryptCost             int
	UpgradeOnLogin         bool
	MinPasswordLength      int
	RequireUpper           bool
	RequireLower           bool
	RequireDigit           bool
	LockoutThreshold       int
	LockoutDuration        time.Duration
	HasRevocationSet       bool
	RefreshRotationEnabled bool
	AuditEnabled           bool
	MetricsEnabled         bool
}

func BuildReport(input ReportInput) Report {
	return Report{
		SigningAlgorithm:       input.SigningAlgorithm,
		AsymmetricSigning:      input.SigningAlgorithm == "EdDSA",
		AccessTTL:              input.AccessTTL,
		RefreshTTL:             input.RefreshTTL,
		Leeway:                 input.Leeway,
		BcryptCost:             input.BcryptCost,
		HashUpgradeOnLogin:     input.UpgradeOnLogin,
		MinPasswordLength:      input.MinPasswordLength,
		PasswordComplexity:     input.RequireUpper && input.RequireLower && input.RequireDigit,
		LockoutActive:          input.LockoutThreshold > 0 && input.LockoutDuration > 0,
		LockoutThreshold:       input.LockoutThreshold,
		LockoutDuration:        input.LockoutDuration,
		RevocationActive:       input.HasRevocationSet,
		RefreshRotationEnabled: input.RefreshRotationEnabled && input.HasRevocationSet,
		AuditEnabled:           input.AuditEnabled,
		MetricsEnabled:         input.MetricsEnabled,
	}
}
