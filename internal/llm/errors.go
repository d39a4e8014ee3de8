package llm

import (
	"fmt"
	"time"
)

// maxDiagnosticLen caps the raw-output excerpt carried by MalformedOutputError.
const maxDiagnosticLen = 400

// TimeoutError indicates a single model call exceeded its deadline. It is
// distinct from MalformedOutputError so the orchestrator can apply a
// different retry policy to each.
type TimeoutError struct {
	Model   string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("model call timed out after %s (model %s)", e.Timeout, e.Model)
}

// MalformedOutputError indicates no valid structured result could be located
// in the model's free-form output. Diagnostic holds a truncated excerpt of
// the raw text.
type MalformedOutputError struct {
	Diagnostic string
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("no valid JSON object found in model output: %q", e.Diagnostic)
}

// truncateDiagnostic shortens raw model output to a reportable excerpt.
func truncateDiagnostic(raw string) string {
	if len(raw) <= maxDiagnosticLen {
		return raw
	}
	return raw[:maxDiagnosticLen] + "..."
}
