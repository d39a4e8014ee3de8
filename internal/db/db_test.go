package db

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/natalia/scriptforge/internal/types"
)

func TestMarshalRevision(t *testing.T) {
	t.Run("nil context stores NULL", func(t *testing.T) {
		raw, err := marshalRevision(nil)
		require.NoError(t, err)
		assert.Nil(t, raw)
	})

	t.Run("context survives the column round trip", func(t *testing.T) {
		revision := &types.RevisionContext{
			Feedback:       "punch up the hook",
			TargetSceneIDs: []string{"s1", "s3"},
			Attempt:        2,
			History: []types.VersionSummary{
				{Version: 1, OverallScore: 62, Verdict: types.VerdictFair},
			},
		}
		raw, err := marshalRevision(revision)
		require.NoError(t, err)

		var got types.RevisionContext
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, *revision, got)
	})
}

func TestVersionColumnsRoundTrip(t *testing.T) {
	// AppendVersion and scanVersion speak JSONB for the structured columns;
	// this pins the encoding they agree on.
	version := types.ScriptVersion{
		Version: 3,
		Draft: types.ScriptDraft{
			Title: "t",
			Hook:  "h",
			Scenes: []types.Scene{
				{ID: "s1", DurationSecs: 5, VoiceOver: "vo", Visual: "v"},
			},
			CallToAction: "cta",
		},
		Synthesis: types.SynthesisReport{
			Breakdown: types.ScoreBreakdown{Hook: 90, Pacing: 80, Emotion: 70, CTA: 60, Overall: 76, Verdict: types.VerdictStrong},
		},
		Gate: types.GateResult{Decision: types.GateAccept, Reason: "overall score 76 (strong)"},
	}

	for _, column := range []any{version.Draft, version.Synthesis, version.Gate} {
		raw, err := json.Marshal(column)
		require.NoError(t, err)
		assert.True(t, json.Valid(raw))
	}

	raw, err := json.Marshal(version.Draft)
	require.NoError(t, err)
	var draft types.ScriptDraft
	require.NoError(t, json.Unmarshal(raw, &draft))
	assert.Equal(t, version.Draft, draft)
}
