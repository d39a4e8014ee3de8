package ingestion

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/natalia/scriptforge/internal/cache"
	"github.com/natalia/scriptforge/internal/types"
)

// countingFetcher records how many times it was invoked.
type countingFetcher struct {
	calls int
	err   error
}

func (f *countingFetcher) Fetch(_ context.Context, ref string) (*types.SourceContent, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &types.SourceContent{Ref: ref, Type: types.ContentTypeNews, Text: "body"}, nil
}

func TestCachedFetcher_SecondFetchHitsCache(t *testing.T) {
	inner := &countingFetcher{}
	f := NewCachedFetcher(inner, cache.New(8, time.Hour, nil))

	first, err := f.Fetch(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	second, err := f.Fetch(context.Background(), "https://example.com/a")
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls)
	assert.Same(t, first, second)
}

func TestCachedFetcher_FailuresNotCached(t *testing.T) {
	inner := &countingFetcher{err: &Error{Ref: "x", Message: "boom", Retryable: true}}
	f := NewCachedFetcher(inner, cache.New(8, time.Hour, nil))

	_, err := f.Fetch(context.Background(), "https://example.com/a")
	require.Error(t, err)

	inner.err = nil
	_, err = f.Fetch(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestRouter_TranscriptRef(t *testing.T) {
	r := NewRouter(&countingFetcher{})

	content, err := r.Fetch(context.Background(), "transcript:so here is the thing nobody tells you")
	require.NoError(t, err)
	assert.Equal(t, types.ContentTypeReel, content.Type)
	assert.Equal(t, "so here is the thing nobody tells you", content.Text)
}

func TestRouter_HTTPRefDelegates(t *testing.T) {
	inner := &countingFetcher{}
	r := NewRouter(inner)

	_, err := r.Fetch(context.Background(), "https://example.com/story")
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestRouter_UnknownScheme(t *testing.T) {
	r := NewRouter(&countingFetcher{})

	_, err := r.Fetch(context.Background(), "ftp://example.com")
	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	assert.False(t, fetchErr.Retryable)

	_, err = r.Fetch(context.Background(), "transcript:   ")
	assert.Error(t, err)
}
