package validation

import (
	_ "embed"
	"fmt"
	"sort"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed form_data.schema.json
var formDataSchema string

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// SchemaValidator checks raw payloads against a compiled JSON schema before
// they are decoded into typed structs.
type SchemaValidator struct {
	schema *gojsonschema.Schema
}

// NewFormDataValidator compiles the application form schema.
func NewFormDataValidator() (*SchemaValidator, error) {
	return NewSchemaValidator(formDataSchema)
}

func NewSchemaValidator(schemaJSON string) (*SchemaValidator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &SchemaValidator{schema: schema}, nil
}

// ValidateJSON validates a raw JSON document.
func (v *SchemaValidator) ValidateJSON(raw []byte) *ValidationResult {
	return v.validate(gojsonschema.NewBytesLoader(raw))
}

// Validate validates a decoded Go value (maps, slices, structs).
func (v *SchemaValidator) Validate(doc interface{}) *ValidationResult {
	return v.validate(gojsonschema.NewGoLoader(doc))
}

func (v *SchemaValidator) validate(doc gojsonschema.JSONLoader) *ValidationResult {
	result, err := v.schema.Validate(doc)
	if err != nil {
		return &ValidationResult{Errors: []ValidationError{{
			Field:   "(root)",
			Message: err.Error(),
			Code:    "MALFORMED_DOCUMENT",
		}}}
	}

	errs := make([]ValidationError, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		errs = append(errs, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    codeFor(desc.Type()),
		})
	}
	sort.Slice(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })

	return &ValidationResult{Valid: result.Valid(), Errors: errs}
}

func codeFor(errType string) string {
	switch errType {
	case "required":
		return "REQUIRED_FIELD_MISSING"
	case "invalid_type":
		return "INVALID_TYPE"
	case "number_gte", "number_gt":
		return "MIN_VALUE_VIOLATION"
	case "enum":
		return "INVALID_ENUM_VALUE"
	case "additional_property_not_allowed":
		return "EXTRA_FIELD"
	case "string_gte", "string_lte":
		return "LENGTH_VIOLATION"
	default:
		return "SCHEMA_VIOLATION"
	}
}

// Messages flattens errors into "field: message" strings.
func (r *ValidationResult) Messages() []string {
	out := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		out[i] = e.Field + ": " + e.Message
	}
	return out
}
