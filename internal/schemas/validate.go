// Package schemas provides JSON Schema validation for structured pipeline
// artifacts before they are persisted.
package schemas

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed script_draft.schema.json
var scriptDraftSchema []byte

// FieldError represents a single validation error at a specific field
type FieldError struct {
	Field   string
	Message string
}

// ValidationError represents a schema validation failure with field paths
type ValidationError struct {
	Schema string
	Errors []FieldError
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s validation failed:", ve.Schema))
	for _, fe := range ve.Errors {
		sb.WriteString(fmt.Sprintf("\n  %s: %s", fe.Field, fe.Message))
	}
	return sb.String()
}

// ValidateScriptDraft checks a drafted script against the embedded schema.
// v may be a struct, a map, or raw JSON bytes.
func ValidateScriptDraft(v any) error {
	var docLoader gojsonschema.JSONLoader
	switch doc := v.(type) {
	case []byte:
		docLoader = gojsonschema.NewBytesLoader(doc)
	case string:
		docLoader = gojsonschema.NewStringLoader(doc)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal document for validation: %w", err)
		}
		docLoader = gojsonschema.NewBytesLoader(raw)
	}

	schemaLoader := gojsonschema.NewBytesLoader(scriptDraftSchema)
	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if result.Valid() {
		return nil
	}

	ve := &ValidationError{Schema: "ScriptDraft"}
	for _, resultErr := range result.Errors() {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   resultErr.Field(),
			Message: resultErr.Description(),
		})
	}
	return ve
}
