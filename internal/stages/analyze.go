package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/natalia/scriptforge/internal/llm"
	"github.com/natalia/scriptforge/internal/scenes"
	"github.com/natalia/scriptforge/internal/schemas"
	"github.com/natalia/scriptforge/internal/types"
)

// analystOrder fixes the report ordering in the persisted payload.
var analystOrder = []string{
	types.DimensionHook,
	types.DimensionPacing,
	types.DimensionEmotion,
	types.DimensionCTA,
}

func runAnalyzeSource(ctx context.Context, env *Env, st *State) (any, error) {
	if st.Source == nil {
		return nil, fmt.Errorf("analyze_source requires fetched source content")
	}

	raw, err := env.Client.GenerateJSON(ctx, buildAnalyzeSourcePrompt(env, st.Source), llm.TierStandard)
	if err != nil {
		return nil, err
	}

	var analysis types.SourceAnalysis
	if err := llm.ExtractInto(raw, &analysis); err != nil {
		return nil, err
	}
	if analysis.Angle == "" || len(analysis.KeyFacts) == 0 {
		return nil, &llm.MalformedOutputError{Diagnostic: shorten(raw)}
	}

	st.Analysis = &analysis
	return &analysis, nil
}

func runDraftScript(ctx context.Context, env *Env, st *State) (any, error) {
	if st.Source == nil || st.Analysis == nil {
		return nil, fmt.Errorf("draft_script requires source and analysis")
	}

	raw, err := env.Client.GenerateJSON(ctx, buildDraftPrompt(env, st), llm.TierAdvanced)
	if err != nil {
		return nil, err
	}

	obj, err := llm.ExtractJSONObject(raw)
	if err != nil {
		return nil, err
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &doc); err != nil {
		return nil, &llm.MalformedOutputError{Diagnostic: shorten(obj)}
	}

	// Models disagree about where the scene list lives; the strategies make
	// the fallback order explicit.
	sceneList, _, err := scenes.Extract(doc, scenes.DefaultStrategies())
	if err != nil {
		return nil, &llm.MalformedOutputError{Diagnostic: shorten(obj)}
	}

	draft := &types.ScriptDraft{
		Title:        decodeString(doc, "title"),
		Hook:         decodeString(doc, "hook"),
		Scenes:       sceneList,
		CallToAction: decodeString(doc, "call_to_action"),
	}
	if err := schemas.ValidateScriptDraft(draft); err != nil {
		return nil, &llm.MalformedOutputError{Diagnostic: err.Error()}
	}

	st.Draft = draft
	return draft, nil
}

// runAnalyzeScript fans out the four analysts concurrently and joins on all
// of them; one failure fails the whole fan-out so the synthesizer never sees
// a partial set.
func runAnalyzeScript(ctx context.Context, env *Env, st *State) (any, error) {
	if st.Draft == nil {
		return nil, fmt.Errorf("analyze_script requires a drafted script")
	}

	g, gCtx := errgroup.WithContext(ctx)
	reports := make([]types.AnalystReport, len(analystOrder))

	for i, dimension := range analystOrder {
		g.Go(func() error {
			report, err := runAnalyst(gCtx, env, dimension, st)
			if err != nil {
				return fmt.Errorf("%s analyst failed: %w", dimension, err)
			}
			reports[i] = *report
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	st.Reports = reports
	return reports, nil
}

func runAnalyst(ctx context.Context, env *Env, dimension string, st *State) (*types.AnalystReport, error) {
	raw, err := env.Client.GenerateJSON(ctx, buildAnalystPrompt(env, dimension, st), llm.TierStandard)
	if err != nil {
		return nil, err
	}

	var report types.AnalystReport
	if err := llm.ExtractInto(raw, &report); err != nil {
		return nil, err
	}
	report.Dimension = dimension
	report.Score = clampScore(report.Score)
	return &report, nil
}

// ReportByDimension finds an analyst report in a slice.
func ReportByDimension(reports []types.AnalystReport, dimension string) (*types.AnalystReport, bool) {
	for i := range reports {
		if reports[i].Dimension == dimension {
			return &reports[i], true
		}
	}
	return nil, false
}

// rankedDeficits returns dimensions ordered by weighted shortfall, worst
// first. Used to prioritize weaknesses and recommendations.
func rankedDeficits(reports []types.AnalystReport, weights Weights) []string {
	type deficit struct {
		dimension string
		amount    float64
	}
	deficits := make([]deficit, 0, len(reports))
	for _, report := range reports {
		deficits = append(deficits, deficit{
			dimension: report.Dimension,
			amount:    weights.For(report.Dimension) * float64(100-report.Score),
		})
	}
	sort.SliceStable(deficits, func(i, j int) bool {
		return deficits[i].amount > deficits[j].amount
	})
	out := make([]string, len(deficits))
	for i, d := range deficits {
		out[i] = d.dimension
	}
	return out
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func decodeString(doc map[string]json.RawMessage, key string) string {
	raw, ok := doc[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func shorten(raw string) string {
	if len(raw) > 400 {
		return raw[:400] + "..."
	}
	return raw
}
