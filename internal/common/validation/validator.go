// Package validation provides argument and request validation for the cache
// service. Validator is a small fluent accumulator used on hot paths such as
// lock arguments; CentralizedValidator wraps go-playground/validator for
// struct tags on configuration and REST request bodies.
package validation

import (
	"fmt"
	"strings"
	"time"

	"cache-service/internal/common/errors"
)

// Validator accumulates validation errors
type Validator struct {
	errors []string
	prefix string
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// NewValidatorWithPrefix creates a new validator with a prefix for error messages
func NewValidatorWithPrefix(prefix string) *Validator {
	return &Validator{prefix: prefix}
}

// RequireString validates that a string is not blank
func (v *Validator) RequireString(value, name string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.addError("%s is required", name)
	}
	return v
}

// RequirePositive validates that an integer is positive
func (v *Validator) RequirePositive(value int, name string) *Validator {
	if value <= 0 {
		v.addError("%s must be positive", name)
	}
	return v
}

// RequireNonNegative validates that an integer is non-negative
func (v *Validator) RequireNonNegative(value int, name string) *Validator {
	if value < 0 {
		v.addError("%s must be non-negative", name)
	}
	return v
}

// RequirePositiveDuration validates that a duration is greater than zero
func (v *Validator) RequirePositiveDuration(value time.Duration, name string) *Validator {
	if value <= 0 {
		v.addError("%s must be positive", name)
	}
	return v
}

// RequireNonNegativeDuration validates that a duration is not negative
func (v *Validator) RequireNonNegativeDuration(value time.Duration, name string) *Validator {
	if value < 0 {
		v.addError("%s must be non-negative", name)
	}
	return v
}

// RequireOneOf validates that a value is one of the allowed values
func (v *Validator) RequireOneOf(value string, allowed []string, name string) *Validator {
	for _, a := range allowed {
		if value == a {
			return v
		}
	}
	v.addError("%s must be one of: %s", name, strings.Join(allowed, ", "))
	return v
}

// Validate runs a custom validation function
func (v *Validator) Validate(fn func() error) *Validator {
	if err := fn(); err != nil {
		v.addError("%s", err.Error())
	}
	return v
}

// ValidateIf runs a validation function if a condition is true
func (v *Validator) ValidateIf(condition bool, fn func() error) *Validator {
	if condition {
		return v.Validate(fn)
	}
	return v
}

func (v *Validator) addError(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if v.prefix != "" {
		msg = fmt.Sprintf("%s: %s", v.prefix, msg)
	}
	v.errors = append(v.errors, msg)
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Error returns the accumulated validation failures as a single validation
// AppError, or nil when there are none.
func (v *Validator) Error() error {
	switch len(v.errors) {
	case 0:
		return nil
	case 1:
		return errors.ValidationError(v.errors[0])
	default:
		return errors.ValidationError("validation failed: " + strings.Join(v.errors, "; "))
	}
}
