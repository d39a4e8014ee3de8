package llm

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONObject_Plain(t *testing.T) {
	obj, err := ExtractJSONObject(`{"score": 88, "notes": "tight hook"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"score": 88, "notes": "tight hook"}`, obj)
}

func TestExtractJSONObject_EmbeddedInProse(t *testing.T) {
	raw := "Sure! Here is the analysis you asked for:\n" +
		`{"score": 72, "strengths": ["clear angle"]}` +
		"\nLet me know if you need anything else."

	obj, err := ExtractJSONObject(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `{"score": 72, "strengths": ["clear angle"]}`, obj)
}

func TestExtractJSONObject_PrefersLongestValidCandidate(t *testing.T) {
	// The outer object is valid and should win over the inner one.
	raw := `{"outer": {"inner": 1}, "score": 50}`

	obj, err := ExtractJSONObject(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `{"outer": {"inner": 1}, "score": 50}`, obj)
}

func TestExtractJSONObject_FallsBackToInnerWhenOuterBroken(t *testing.T) {
	// Outer span never closes cleanly; the balanced inner object still parses.
	raw := `intro {"score": 64, "notes": "ok"} trailing { broken`

	obj, err := ExtractJSONObject(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `{"score": 64, "notes": "ok"}`, obj)
}

func TestExtractJSONObject_BracesInsideStrings(t *testing.T) {
	raw := `{"notes": "use {curly} phrasing", "score": 81}`

	obj, err := ExtractJSONObject(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `{"notes": "use {curly} phrasing", "score": 81}`, obj)
}

func TestExtractJSONObject_MarkdownFence(t *testing.T) {
	raw := "```json\n{\"score\": 90}\n```"

	obj, err := ExtractJSONObject(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `{"score": 90}`, obj)
}

func TestExtractJSONObject_NoCandidates(t *testing.T) {
	_, err := ExtractJSONObject("the model rambled and produced nothing structured")

	var malformed *MalformedOutputError
	require.True(t, errors.As(err, &malformed))
	assert.Contains(t, malformed.Diagnostic, "rambled")
}

func TestExtractJSONObject_DiagnosticTruncated(t *testing.T) {
	raw := strings.Repeat("x", 2000)

	_, err := ExtractJSONObject(raw)

	var malformed *MalformedOutputError
	require.True(t, errors.As(err, &malformed))
	assert.LessOrEqual(t, len(malformed.Diagnostic), maxDiagnosticLen+3)
	assert.True(t, strings.HasSuffix(malformed.Diagnostic, "..."))
}

func TestExtractInto(t *testing.T) {
	var out struct {
		Score int `json:"score"`
	}
	err := ExtractInto(`noise {"score": 77} noise`, &out)
	require.NoError(t, err)
	assert.Equal(t, 77, out.Score)
}

func TestExtractInto_TypeMismatchIsMalformed(t *testing.T) {
	var out struct {
		Score int `json:"score"`
	}
	err := ExtractInto(`{"score": "not a number"}`, &out)

	var malformed *MalformedOutputError
	assert.True(t, errors.As(err, &malformed))
}
