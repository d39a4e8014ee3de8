package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/natalia/scriptforge/internal/llm"
	"github.com/natalia/scriptforge/internal/types"
)

// fakeClient scripts model responses per prompt for stage tests.
type fakeClient struct {
	mu      sync.Mutex
	calls   int
	respond func(prompt string, tier llm.ModelTier) (string, error)
}

func (f *fakeClient) GenerateContent(_ context.Context, prompt string, tier llm.ModelTier) (string, error) {
	return f.record(prompt, tier)
}

func (f *fakeClient) GenerateJSON(_ context.Context, prompt string, tier llm.ModelTier) (string, error) {
	return f.record(prompt, tier)
}

func (f *fakeClient) record(prompt string, tier llm.ModelTier) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.respond(prompt, tier)
}

func (f *fakeClient) GetModel(llm.ModelTier) string { return "fake-model" }
func (f *fakeClient) Close() error                  { return nil }

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func sampleDraft() *types.ScriptDraft {
	return &types.ScriptDraft{
		Title: "The Bridge Nobody Wanted",
		Hook:  "This bridge cost a billion dollars and nobody uses it.",
		Scenes: []types.Scene{
			{ID: "s1", Index: 0, DurationSecs: 6, VoiceOver: "In 2019 the city broke ground.", Visual: "archival footage"},
			{ID: "s2", Index: 1, DurationSecs: 8, VoiceOver: "Today it carries forty cars a day.", Visual: "drone shot"},
		},
		CallToAction: "Follow for part two.",
	}
}

func TestRegistryOrderAndNames(t *testing.T) {
	require.Len(t, Registry, Count)

	wantNames := []string{"fetch_source", "analyze_source", "draft_script", "analyze_script", "synthesize", "gate"}
	for i, def := range Registry {
		assert.Equal(t, i, def.Index)
		assert.Equal(t, wantNames[i], def.Name)
		assert.NotNil(t, def.Run)
		assert.NotNil(t, def.Hydrate)
		assert.Greater(t, def.EstimatedDuration.Nanoseconds(), int64(0))
	}
}

func TestByIndex(t *testing.T) {
	def, err := ByIndex(StageDraftScript)
	require.NoError(t, err)
	assert.Equal(t, "draft_script", def.Name)

	_, err = ByIndex(-1)
	assert.Error(t, err)
	_, err = ByIndex(Count)
	assert.Error(t, err)
}

func TestRevisionResumeStageInheritsIngestion(t *testing.T) {
	// Everything before the resume point is wording-independent and safe to
	// copy into a fork.
	for _, def := range Registry[:RevisionResumeStage] {
		assert.Equal(t, CategoryIngestion, def.Category, "stage %s", def.Name)
	}
	assert.Equal(t, CategoryDrafting, Registry[RevisionResumeStage].Category)
}

func TestTotalEstimatedDuration(t *testing.T) {
	assert.Equal(t, TotalEstimatedDuration(0), TotalEstimatedDuration(0))
	assert.Greater(t, TotalEstimatedDuration(0), TotalEstimatedDuration(StageDraftScript))
	assert.Equal(t, Registry[StageGate].EstimatedDuration, TotalEstimatedDuration(StageGate))
	assert.Zero(t, TotalEstimatedDuration(Count))
}

func TestHydrateStateRoundTrip(t *testing.T) {
	source := &types.SourceContent{Ref: "https://example.com/a", Type: types.ContentTypeNews, Text: "body"}
	analysis := &types.SourceAnalysis{Angle: "the cost overrun", KeyFacts: []string{"a billion dollars"}, Audience: "commuters", Tone: "wry"}
	draft := sampleDraft()
	reports := reportsWithScores(90, 90, 40, 40)

	payloads := map[int]json.RawMessage{}
	for i, v := range []any{source, analysis, draft, reports} {
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		payloads[i] = raw
	}

	st := &State{}
	require.NoError(t, HydrateState(payloads, StageSynthesize, st))

	assert.Equal(t, source.Ref, st.Source.Ref)
	assert.Equal(t, analysis.Angle, st.Analysis.Angle)
	require.NotNil(t, st.Draft)
	assert.Equal(t, draft.SceneIDs(), st.Draft.SceneIDs())
	require.Len(t, st.Reports, 4)
	assert.Equal(t, types.DimensionHook, st.Reports[0].Dimension)
	assert.Nil(t, st.Synthesis)
}

func TestHydrateStateMissingPayload(t *testing.T) {
	raw, err := json.Marshal(&types.SourceContent{Ref: "r", Text: "t"})
	require.NoError(t, err)

	st := &State{}
	err = HydrateState(map[int]json.RawMessage{0: raw}, StageDraftScript, st)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analyze_source")
}

func TestRunAnalyzeSource(t *testing.T) {
	client := &fakeClient{respond: func(prompt string, tier llm.ModelTier) (string, error) {
		assert.Equal(t, llm.TierStandard, tier)
		assert.Contains(t, prompt, "the source text")
		return `{"angle":"ghost bridge","key_facts":["cost one billion"],"audience":"commuters","tone":"wry"}`, nil
	}}

	st := &State{Source: &types.SourceContent{Ref: "r", Type: types.ContentTypeNews, Text: "the source text"}}
	out, err := runAnalyzeSource(context.Background(), &Env{Client: client}, st)
	require.NoError(t, err)

	analysis, ok := out.(*types.SourceAnalysis)
	require.True(t, ok)
	assert.Equal(t, "ghost bridge", analysis.Angle)
	assert.Same(t, analysis, st.Analysis)
}

func TestRunAnalyzeSourceRejectsEmptyAnalysis(t *testing.T) {
	client := &fakeClient{respond: func(string, llm.ModelTier) (string, error) {
		return `{"angle":"","key_facts":[]}`, nil
	}}

	st := &State{Source: &types.SourceContent{Ref: "r", Text: "t"}}
	_, err := runAnalyzeSource(context.Background(), &Env{Client: client}, st)

	var malformed *llm.MalformedOutputError
	require.ErrorAs(t, err, &malformed)
}

func TestRunDraftScript(t *testing.T) {
	client := &fakeClient{respond: func(prompt string, tier llm.ModelTier) (string, error) {
		assert.Equal(t, llm.TierAdvanced, tier)
		return "Here is your script:\n```json\n" + `{
			"title": "The Bridge Nobody Wanted",
			"hook": "This bridge cost a billion dollars.",
			"scenes": [
				{"id": "s1", "duration_secs": 6, "voice_over": "In 2019 the city broke ground.", "visual": "archival"},
				{"duration_secs": 8, "voice_over": "Today it carries forty cars a day.", "visual": "drone"}
			],
			"call_to_action": "Follow for part two."
		}` + "\n```", nil
	}}

	st := &State{
		Source:   &types.SourceContent{Ref: "r", Type: types.ContentTypeNews, Text: "body"},
		Analysis: &types.SourceAnalysis{Angle: "cost", KeyFacts: []string{"a billion"}, Audience: "commuters", Tone: "wry"},
	}
	out, err := runDraftScript(context.Background(), &Env{Client: client}, st)
	require.NoError(t, err)

	draft, ok := out.(*types.ScriptDraft)
	require.True(t, ok)
	require.Len(t, draft.Scenes, 2)
	assert.Equal(t, "s1", draft.Scenes[0].ID)
	assert.Equal(t, "s2", draft.Scenes[1].ID, "unnamed scenes get positional ids")
	assert.Equal(t, 1, draft.Scenes[1].Index)
}

func TestRunDraftScriptMalformedOutput(t *testing.T) {
	client := &fakeClient{respond: func(string, llm.ModelTier) (string, error) {
		return "I could not produce a script for this content.", nil
	}}

	st := &State{
		Source:   &types.SourceContent{Ref: "r", Text: "body"},
		Analysis: &types.SourceAnalysis{Angle: "a", KeyFacts: []string{"f"}},
	}
	_, err := runDraftScript(context.Background(), &Env{Client: client}, st)

	var malformed *llm.MalformedOutputError
	require.ErrorAs(t, err, &malformed)
}

func TestRunDraftScriptRevisionPrompt(t *testing.T) {
	var seen string
	client := &fakeClient{respond: func(prompt string, _ llm.ModelTier) (string, error) {
		seen = prompt
		return `{"title":"t","hook":"h","scenes":[{"id":"s1","voice_over":"vo"}],"call_to_action":"cta"}`, nil
	}}

	st := &State{
		Source:   &types.SourceContent{Ref: "r", Text: "body"},
		Analysis: &types.SourceAnalysis{Angle: "a", KeyFacts: []string{"f"}},
		Draft:    sampleDraft(),
	}
	env := &Env{
		Client: client,
		Revision: &types.RevisionContext{
			Feedback:       "punch up the second scene",
			TargetSceneIDs: []string{"s2"},
			Attempt:        2,
			History:        []types.VersionSummary{{Version: 1, OverallScore: 62, Verdict: types.VerdictFair}},
		},
	}
	_, err := runDraftScript(context.Background(), env, st)
	require.NoError(t, err)

	assert.Contains(t, seen, "punch up the second scene")
	assert.Contains(t, seen, "s2")
	assert.Contains(t, seen, "revision attempt 2")
	assert.Contains(t, seen, "Prior version 1 scored 62")
	assert.Contains(t, seen, "Today it carries forty cars a day.")
}

func TestRunAnalyzeScriptFanOut(t *testing.T) {
	client := &fakeClient{respond: func(prompt string, _ llm.ModelTier) (string, error) {
		score := map[string]int{
			"hook": 90, "pacing": 80, "emotion": 70, "cta": 60,
		}
		for dim, s := range score {
			if strings.Contains(prompt, analystBriefs[dim]) {
				return fmt.Sprintf(`{"score":%d,"strengths":["good"],"weaknesses":["bad"],"notes":"n"}`, s), nil
			}
		}
		return "", fmt.Errorf("unrecognized analyst prompt")
	}}

	st := &State{Draft: sampleDraft()}
	out, err := runAnalyzeScript(context.Background(), &Env{Client: client, ContentType: types.ContentTypeNews}, st)
	require.NoError(t, err)
	assert.Equal(t, 4, client.callCount())

	reports, ok := out.([]types.AnalystReport)
	require.True(t, ok)
	require.Len(t, reports, 4)

	// Slots are fixed by analystOrder regardless of completion order.
	assert.Equal(t, types.DimensionHook, reports[0].Dimension)
	assert.Equal(t, 90, reports[0].Score)
	assert.Equal(t, types.DimensionCTA, reports[3].Dimension)
	assert.Equal(t, 60, reports[3].Score)
}

func TestRunAnalyzeScriptOneFailureFailsAll(t *testing.T) {
	client := &fakeClient{respond: func(prompt string, _ llm.ModelTier) (string, error) {
		if strings.Contains(prompt, analystBriefs[types.DimensionEmotion]) {
			return "", fmt.Errorf("model unavailable")
		}
		return `{"score":80,"strengths":[],"weaknesses":[],"notes":""}`, nil
	}}

	st := &State{Draft: sampleDraft()}
	_, err := runAnalyzeScript(context.Background(), &Env{Client: client}, st)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "emotion analyst failed")
	assert.Nil(t, st.Reports)
}

func TestRunAnalystClampsScore(t *testing.T) {
	client := &fakeClient{respond: func(string, llm.ModelTier) (string, error) {
		return `{"score":140,"strengths":[],"weaknesses":[],"notes":""}`, nil
	}}

	report, err := runAnalyst(context.Background(), &Env{Client: client}, types.DimensionHook, &State{Draft: sampleDraft()})
	require.NoError(t, err)
	assert.Equal(t, 100, report.Score)
	assert.Equal(t, types.DimensionHook, report.Dimension)
}

func TestSimplifiedPromptsDropProse(t *testing.T) {
	st := &State{
		Source:   &types.SourceContent{Ref: "r", Type: types.ContentTypeNews, Text: "body"},
		Analysis: &types.SourceAnalysis{Angle: "a", KeyFacts: []string{"f"}},
		Draft:    sampleDraft(),
	}

	full := buildDraftPrompt(&Env{}, st)
	simplified := buildDraftPrompt(&Env{Simplified: true}, st)
	assert.Less(t, len(simplified), len(full))
	assert.NotContains(t, simplified, "scriptwriter")
	assert.Contains(t, simplified, "ONLY the JSON object")

	assert.NotContains(t, buildAnalystPrompt(&Env{Simplified: true}, types.DimensionHook, st), analystBriefs[types.DimensionHook])
}

func TestRunFetchSourcePropagatesContentType(t *testing.T) {
	fetcher := fetcherFunc(func(_ context.Context, ref string) (*types.SourceContent, error) {
		return &types.SourceContent{Ref: ref, Type: types.ContentTypeReel, Text: "transcript body"}, nil
	})

	env := &Env{Fetcher: fetcher, SourceRef: "transcript:abc"}
	st := &State{}
	_, err := runFetchSource(context.Background(), env, st)
	require.NoError(t, err)
	assert.Equal(t, types.ContentTypeReel, env.ContentType)
	assert.Equal(t, "transcript body", st.Source.Text)
}

func TestRunFetchSourceRequiresRef(t *testing.T) {
	_, err := runFetchSource(context.Background(), &Env{}, &State{})
	assert.Error(t, err)
}

type fetcherFunc func(ctx context.Context, ref string) (*types.SourceContent, error)

func (f fetcherFunc) Fetch(ctx context.Context, ref string) (*types.SourceContent, error) {
	return f(ctx, ref)
}
