package authcore

import (
	"fmt"
	"regexp"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidationError reports the first field of a request that failed validation.
// It matches [ErrAccountInvalid].
type ValidationError struct {
	Field string
	Rule  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: field %s failed %s", ErrAccountInvalid, e.Field, e.Rule)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrAccountInvalid
}

// PolicyError names the password rule that was violated. It matches
// [ErrPasswordPolicy].
type PolicyError struct {
	Rule string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("%s: %s", ErrPasswordPolicy, e.Rule)
}

func (e *PolicyError) Is(target error) bool {
	return target == ErrPasswordPolicy
}

func newRequestValidator() (*validator.Validate, error) {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	}); err != nil {
		return nil, fmt.Errorf("register username validation: %w", err)
	}
	return v, nil
}

// validatePassword applies cfg's policy. Lengths are counted in bytes, matching
// what bcrypt consumes.
func validatePassword(cfg PasswordConfig, pw string) error {
	if len(pw) < cfg.MinLength {
		return &PolicyError{Rule: fmt.Sprintf("at least %d bytes", cfg.MinLength)}
	}
	if cfg.MaxLength > 0 && len(pw) > cfg.MaxLength {
		return &PolicyError{Rule: fmt.Sprintf("at most %d bytes", cfg.MaxLength)}
	}

	var upper, lower, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	switch {
	case cfg.RequireUpper && !upper:
		return &PolicyError{Rule: "an uppercase letter"}
	case cfg.RequireLower && !lower:
		return &PolicyError{Rule: "a lowercase letter"}
	case cfg.RequireDigit && !digit:
		return &PolicyError{Rule: "a digit"}
	}
	return nil
}
