package engine

import "strings"

// ValidationResult accumulates blocking errors and advisory warnings from
// input or output validation.
type ValidationResult struct {
	Errors   []string
	Warnings []string
}

func NewValidationResult() *ValidationResult {
	return &ValidationResult{}
}

// Valid is true iff no blocking errors were recorded. Warnings never block.
func (v *ValidationResult) Valid() bool {
	return len(v.Errors) == 0
}

func (v *ValidationResult) AddError(message string) *ValidationResult {
	v.Errors = append(v.Errors, message)
	return v
}

func (v *ValidationResult) AddWarning(message string) *ValidationResult {
	v.Warnings = append(v.Warnings, message)
	return v
}

func (v *ValidationResult) Merge(other *ValidationResult) *ValidationResult {
	if other != nil {
		v.Errors = append(v.Errors, other.Errors...)
		v.Warnings = append(v.Warnings, other.Warnings...)
	}
	return v
}

// ErrorMessage joins all blocking errors into one message.
func (v *ValidationResult) ErrorMessage() string {
	return strings.Join(v.Errors, "; ")
}
