// Package ingestion resolves source references (article URLs, transcript
// blobs) into clean SourceContent for the pipeline's fetch stage.
package ingestion

import (
	"context"
	"fmt"

	"github.com/natalia/scriptforge/internal/types"
)

// Fetcher resolves a source reference into raw content.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) (*types.SourceContent, error)
}

// Error represents a fetch failure with retryability information.
type Error struct {
	Ref       string
	Message   string
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.Ref, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch %s: %s", e.Ref, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
