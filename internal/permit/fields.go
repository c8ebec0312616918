// Package permit holds the field-level validation rules, tracking id
// generation, and batch schema for food permit applications. Everything in
// this package is pure: no I/O, no clock dependencies beyond time.Now for
// the opening-date and tracking-id rules.
package permit

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// FieldValidator normalizes a raw string value or returns a field-specific
// error. Adding a field is a data change to the registry below, not a
// control-flow change.
type FieldValidator func(raw string) (string, error)

// EstablishmentTypes is the canonical enumerated set for establishmentType.
var EstablishmentTypes = []string{
	"Restaurant",
	"Food Truck",
	"Catering",
	"Bakery",
	"Cafe",
	"Bar",
	"Food Cart",
	"Other",
}

// RequiredFields lists the nine domain fields every application must carry.
var RequiredFields = []string{
	"establishmentName",
	"streetAddress",
	"establishmentPhone",
	"establishmentEmail",
	"ownerName",
	"ownerPhone",
	"ownerEmail",
	"establishmentType",
	"plannedOpeningDate",
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

var fieldValidators = map[string]FieldValidator{
	"establishmentName":  validateName("Establishment name"),
	"streetAddress":      validateName("Street address"),
	"ownerName":          validateName("Owner name"),
	"establishmentPhone": validatePhone,
	"ownerPhone":         validatePhone,
	"establishmentEmail": validateEmail,
	"ownerEmail":         validateEmail,
	"establishmentType":  validateEstablishmentType,
	"plannedOpeningDate": validateOpeningDate,
}

// ValidateField normalizes a single field value or returns a field-specific
// error. It is total over the recognized field set; unrecognized names get
// an "Unknown field" error.
func ValidateField(field, raw string) (string, error) {
	validator, ok := fieldValidators[field]
	if !ok {
		return "", fmt.Errorf("Unknown field: %s", field)
	}
	return validator(raw)
}

// KnownField reports whether field has a registered validator.
func KnownField(field string) bool {
	_, ok := fieldValidators[field]
	return ok
}

func validateName(label string) FieldValidator {
	return func(raw string) (string, error) {
		trimmed := strings.TrimSpace(raw)
		if len([]rune(trimmed)) < 2 {
			return "", fmt.Errorf("%s must be at least 2 characters", label)
		}
		return trimmed, nil
	}
}

func validatePhone(raw string) (string, error) {
	var digits strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}
	if digits.Len() != 10 {
		return "", fmt.Errorf("Phone number must contain exactly 10 digits")
	}
	return digits.String(), nil
}

func validateEmail(raw string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if !emailPattern.MatchString(normalized) {
		return "", fmt.Errorf("Invalid email address: %s", strings.TrimSpace(raw))
	}
	return normalized, nil
}

func validateEstablishmentType(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	for _, canonical := range EstablishmentTypes {
		if strings.EqualFold(trimmed, canonical) {
			return canonical, nil
		}
	}
	return "", fmt.Errorf("Invalid establishment type %q, must be one of: %s",
		trimmed, strings.Join(EstablishmentTypes, ", "))
}

func validateOpeningDate(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	parsed, err := time.Parse("2006-01-02", trimmed)
	if err != nil {
		return "", fmt.Errorf("Planned opening date must be a valid date in YYYY-MM-DD format")
	}
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if parsed.Before(today) {
		return "", fmt.Errorf("Planned opening date must be today or a future date")
	}
	return parsed.Format("2006-01-02"), nil
}

// FormatPhoneNumber renders 10 normalized digits as (XXX) XXX-XXXX for
// display. Anything else is returned unchanged.
func FormatPhoneNumber(digits string) string {
	if len(digits) != 10 {
		return digits
	}
	return fmt.Sprintf("(%s) %s-%s", digits[0:3], digits[3:6], digits[6:10])
}
