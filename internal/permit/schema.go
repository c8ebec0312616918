// internal/permit/schema.go
package permit

import (
	"permit-intake/internal/common/validation"
)

// applicationSchema is the JSON-schema shape check applied to whole
// application payloads before per-field normalization. Additional
// properties are allowed so provenance extras (externalId, sourceSystem,
// submissionNotes) pass through untouched.
func applicationSchema() map[string]interface{} {
	properties := make(map[string]interface{}, len(RequiredFields))
	for _, field := range RequiredFields {
		properties[field] = map[string]interface{}{"type": "string"}
	}
	return map[string]interface{}{
		"type":                 "object",
		"required":             RequiredFields,
		"properties":           properties,
		"additionalProperties": true,
	}
}

// ValidateApplication validates a whole application payload: first a
// JSON-schema shape check (all nine fields present as strings), then the
// same per-field normalization used on the live-edit path, so the
// today-or-future opening date rule holds on both. On success it returns
// the normalized field map; otherwise a non-empty map of per-field error
// lists.
func ValidateApplication(payload map[string]interface{}) (map[string]string, map[string][]string, error) {
	shape, err := validation.ValidateDocument(applicationSchema(), payload)
	if err != nil {
		return nil, nil, err
	}

	fieldErrors := shape.FieldErrors()
	if fieldErrors == nil {
		fieldErrors = make(map[string][]string)
	}

	normalized := make(map[string]string, len(RequiredFields))
	for _, field := range RequiredFields {
		if len(fieldErrors[field]) > 0 {
			continue
		}
		raw, ok := payload[field].(string)
		if !ok {
			// Shape check already recorded the type error.
			continue
		}
		value, err := ValidateField(field, raw)
		if err != nil {
			fieldErrors[field] = append(fieldErrors[field], err.Error())
			continue
		}
		normalized[field] = value
	}

	if len(fieldErrors) > 0 {
		return nil, fieldErrors, nil
	}
	return normalized, nil, nil
}
