package model

import (
	"regexp"
	"unicode/utf8"

	"github.com/blnkfinance/custody/internal/apierror"
)

const MaxIdentityLength = 64

var identityPattern = regexp.MustCompile(`^[A-Za-z0-9_.:@-]+$`)

// ValidateIdentity rejects identities that are empty, too long or carry characters
// outside the address alphabet.
func ValidateIdentity(field, identity string) error {
	if identity == "" {
		return apierror.Validation("%s is required", field)
	}
	if len(identity) > MaxIdentityLength {
		return apierror.Validation("%s must be at most %d characters", field, MaxIdentityLength)
	}
	if !identityPattern.MatchString(identity) {
		return apierror.Validation("%s %q is not a valid identity", field, identity)
	}
	return nil
}

// ValidateText enforces the stored length bound of a free-text field.
func ValidateText(field, value string, max int, required bool) error {
	if required && value == "" {
		return apierror.Validation("%s is required", field)
	}
	if utf8.RuneCountInString(value) > max {
		return apierror.Validation("%s too long (max %d chars)", field, max)
	}
	return nil
}

// ValidateAmount checks value against the configured bounds. A zero max means unbounded.
func ValidateAmount(field string, value, min, max uint64) error {
	if value == 0 {
		return apierror.Validation("%s must be greater than zero", field)
	}
	if value < min {
		return apierror.Validation("%s %d is below the minimum of %d", field, value, min)
	}
	if max != 0 && value > max {
		return apierror.Validation("%s %d is above the maximum of %d", field, value, max)
	}
	return nil
}
