// Package validator provides struct validation utilities with custom validators.
package validator

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/vulntrack/api/pkg/domain/exception"
	"github.com/vulntrack/api/pkg/domain/vulnconfig"
	"github.com/vulntrack/api/pkg/domain/vulnerability"
)

// Validator wraps the go-playground validator with custom validations.
type Validator struct {
	validate *validator.Validate
}

// ValidationError represents a single field validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, e := range v {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return sb.String()
}

// New creates a new Validator with custom validators registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Register custom validators for the vulnerability domain
	_ = v.RegisterValidation("severity", validateSeverity)
	_ = v.RegisterValidation("cve_id", validateCVEID)
	_ = v.RegisterValidation("vuln_status", validateVulnStatus)

	// Register custom validators for the exception domain
	_ = v.RegisterValidation("exception_scope", validateExceptionScope)
	_ = v.RegisterValidation("request_status", validateRequestStatus)

	// Register custom validators for the config domain
	_ = v.RegisterValidation("import_mode", validateImportMode)

	return &Validator{validate: v}
}

// Validate validates a struct and returns ValidationErrors if validation fails.
func (v *Validator) Validate(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !stderrors.As(err, &validationErrors) {
		return err
	}

	result := make(ValidationErrors, 0, len(validationErrors))
	for _, e := range validationErrors {
		result = append(result, ValidationError{
			Field:   toSnakeCase(e.Field()),
			Message: formatErrorMessage(e),
		})
	}

	return result
}

// validateSeverity validates that a string is a valid vulnerability Severity.
func validateSeverity(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // Let 'required' handle empty values
	}
	_, err := vulnerability.ParseSeverity(value)
	return err == nil
}

// validateCVEID validates that a string is a valid CVE ID (CVE-YYYY-NNNNN).
func validateCVEID(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // Let 'required' handle empty values
	}
	return vulnerability.IsValidCVEID(vulnerability.NormalizeCVEID(value))
}

// validateVulnStatus validates that a string is a valid evaluated Status.
func validateVulnStatus(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // Let 'required' handle empty values
	}
	switch vulnerability.Status(strings.ToUpper(strings.TrimSpace(value))) {
	case vulnerability.StatusOK, vulnerability.StatusOverdue, vulnerability.StatusExcepted:
		return true
	default:
		return false
	}
}

// validateExceptionScope validates that a string is a valid exception Scope.
func validateExceptionScope(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // Let 'required' handle empty values
	}
	return exception.Scope(value).IsValid()
}

// validateRequestStatus validates that a string is a valid RequestStatus.
func validateRequestStatus(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // Let 'required' handle empty values
	}
	return exception.RequestStatus(strings.ToLower(strings.TrimSpace(value))).IsValid()
}

// validateImportMode validates that a string is a valid ImportMode.
func validateImportMode(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // Let 'required' handle empty values
	}
	_, ok := vulnconfig.ParseImportMode(value)
	return ok
}

// formatErrorMessage converts validation errors to human-readable messages.
func formatErrorMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", e.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", e.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", e.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", e.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", e.Param())
	case "email":
		return "must be a valid email address"
	case "severity":
		return "must be one of: low, medium, high, critical"
	case "cve_id":
		return "must be a valid CVE ID (e.g., CVE-2024-12345)"
	case "vuln_status":
		return "must be one of: OK, OVERDUE, EXCEPTED"
	case "exception_scope":
		return "must be one of: single_vulnerability, cve_pattern"
	case "request_status":
		return "must be one of: pending, approved, rejected, expired, cancelled"
	case "import_mode":
		return "must be one of: days_open, patch_publication_date"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	case "uuid":
		return "must be a valid UUID"
	default:
		return fmt.Sprintf("failed on '%s' validation", e.Tag())
	}
}

// toSnakeCase converts PascalCase/camelCase to snake_case. Acronym runs
// stay together, so CVEID becomes cveid and VulnerabilityID becomes
// vulnerability_id, matching the wire field names.
func toSnakeCase(s string) string {
	runes := []rune(s)
	var result strings.Builder
	for i, r := range runes {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prevLower := runes[i-1] >= 'a' && runes[i-1] <= 'z'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if prevLower || nextLower {
				result.WriteByte('_')
			}
		}
		result.WriteRune(r)
	}
	return strings.ToLower(result.String())
}
