package policy

import (
	"fmt"
	"regexp"
	"time"
)

var profileNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

var authLevels = map[string]bool{"": true, "AAL1": true, "AAL2": true, "AAL3": true}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
	Value   interface{}
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s (value: %v)", ve.Field, ve.Message, ve.Value)
}

// ValidationResult represents the result of configuration validation
type ValidationResult struct {
	Errors []*ValidationError
}

// IsValid returns true if the validation result is valid
func (vr *ValidationResult) IsValid() bool {
	return len(vr.Errors) == 0
}

// AddError adds a validation error
func (vr *ValidationResult) AddError(field, message string, value interface{}) {
	vr.Errors = append(vr.Errors, &ValidationError{Field: field, Message: message, Value: value})
}

// Err returns the first error, or nil when valid
func (vr *ValidationResult) Err() error {
	if vr.IsValid() {
		return nil
	}
	return vr.Errors[0]
}

// ValidateProfiles checks every profile of a catalog.
func ValidateProfiles(profiles map[string]*PolicyDecision) *ValidationResult {
	result := &ValidationResult{}

	if len(profiles) == 0 {
		result.AddError("profiles", "at least one profile is required", len(profiles))
	}

	for _, name := range sortedNames(profiles) {
		decision := profiles[name]
		field := "profiles." + name

		if !profileNamePattern.MatchString(name) {
			result.AddError(field, "profile names must be lower-case letters, digits and dashes", name)
		}
		if decision == nil {
			result.AddError(field, "profile cannot be null", nil)
			continue
		}
		if decision.Subject == "" {
			result.AddError(field+".subject", "subject cannot be empty", decision.Subject)
		}
		if !authLevels[decision.AuthLevel] {
			result.AddError(field+".auth_level", "must be AAL1, AAL2 or AAL3", decision.AuthLevel)
		}
		if lt := decision.TokenLifetime; lt != nil && (*lt < time.Second || *lt%time.Second != 0) {
			result.AddError(field+".token_lifetime", "must be a whole number of seconds, at least one", lt.String())
		}
	}

	return result
}
