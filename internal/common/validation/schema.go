// internal/common/validation/schema.go
package validation

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// ValidationError is a single field-level schema violation.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult aggregates the outcome of validating one document.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// FieldErrors groups error messages by field name, the shape surfaced to
// HTTP callers under details.fieldErrors.
func (vr *ValidationResult) FieldErrors() map[string][]string {
	if len(vr.Errors) == 0 {
		return nil
	}
	grouped := make(map[string][]string, len(vr.Errors))
	for _, e := range vr.Errors {
		grouped[e.Field] = append(grouped[e.Field], e.Message)
	}
	return grouped
}

// ValidateDocument checks a decoded JSON document against a JSON schema
// expressed as a Go map. The returned error reports schema compilation or
// evaluation failure, not document invalidity.
func ValidateDocument(schema, document map[string]interface{}) (*ValidationResult, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(document),
	)
	if err != nil {
		return nil, fmt.Errorf("schema validation failed to run: %w", err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "(root)" {
			// Required-property violations are reported against the root;
			// pull the property name out of the error details.
			if prop, ok := desc.Details()["property"].(string); ok {
				field = prop
			}
		}
		out.Errors = append(out.Errors, ValidationError{
			Field:   field,
			Message: desc.Description(),
		})
	}
	return out, nil
}
