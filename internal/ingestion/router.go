package ingestion

import (
	"context"
	"strings"

	"github.com/natalia/scriptforge/internal/types"
)

// transcriptPrefix marks a source ref whose payload is an inline transcript
// of a short-form video (delivered by an upstream transcription adapter).
const transcriptPrefix = "transcript:"

// Router dispatches a source ref to the fetcher that understands it:
// http(s) refs go to the article fetcher, transcript refs are unwrapped
// inline.
type Router struct {
	articles Fetcher
}

// NewRouter creates a Router around the given article fetcher.
func NewRouter(articles Fetcher) *Router {
	return &Router{articles: articles}
}

// Fetch resolves ref according to its scheme.
func (r *Router) Fetch(ctx context.Context, ref string) (*types.SourceContent, error) {
	switch {
	case strings.HasPrefix(ref, transcriptPrefix):
		return fetchTranscript(ref)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return r.articles.Fetch(ctx, ref)
	default:
		return nil, &Error{Ref: ref, Message: "unsupported source ref scheme", Retryable: false}
	}
}

// fetchTranscript unwraps an inline transcript ref. The payload after the
// prefix is the transcript text itself.
func fetchTranscript(ref string) (*types.SourceContent, error) {
	text := CleanText(strings.TrimPrefix(ref, transcriptPrefix))
	if text == "" {
		return nil, &Error{Ref: ref, Message: "empty transcript", Retryable: false}
	}
	return &types.SourceContent{
		Ref:  ref,
		Type: types.ContentTypeReel,
		Text: text,
	}, nil
}
