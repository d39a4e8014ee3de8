package stages

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/natalia/scriptforge/internal/types"
)

// Weights are the fixed per-content-type combination weights for the four
// analyst dimensions. They sum to 1.
type Weights struct {
	Hook    float64
	Pacing  float64
	Emotion float64
	CTA     float64
}

// For returns the weight for a dimension.
func (w Weights) For(dimension string) float64 {
	switch dimension {
	case types.DimensionHook:
		return w.Hook
	case types.DimensionPacing:
		return w.Pacing
	case types.DimensionEmotion:
		return w.Emotion
	case types.DimensionCTA:
		return w.CTA
	}
	return 0
}

// weightsByContentType fixes the combination per content type. Reels live or
// die on the hook; news scripts lean more on pacing and the closing action.
var weightsByContentType = map[types.ContentType]Weights{
	types.ContentTypeNews: {Hook: 0.30, Pacing: 0.25, Emotion: 0.20, CTA: 0.25},
	types.ContentTypeReel: {Hook: 0.40, Pacing: 0.25, Emotion: 0.20, CTA: 0.15},
}

// WeightsFor returns the weights for a content type, defaulting to news.
func WeightsFor(contentType types.ContentType) Weights {
	if w, ok := weightsByContentType[contentType]; ok {
		return w
	}
	return weightsByContentType[types.ContentTypeNews]
}

// Verdict thresholds on the overall score.
const (
	thresholdExcellent = 85
	thresholdStrong    = 70
	thresholdFair      = 55
)

// VerdictFor maps an overall score to its categorical verdict.
func VerdictFor(overall int) types.Verdict {
	switch {
	case overall >= thresholdExcellent:
		return types.VerdictExcellent
	case overall >= thresholdStrong:
		return types.VerdictStrong
	case overall >= thresholdFair:
		return types.VerdictFair
	default:
		return types.VerdictWeak
	}
}

// runSynthesize combines the four analyst reports into an overall score,
// verdict, ranked findings, and prioritized recommendations. It is fully
// deterministic: the judgment already happened in the analysts.
func runSynthesize(_ context.Context, env *Env, st *State) (any, error) {
	if len(st.Reports) != len(analystOrder) {
		return nil, fmt.Errorf("synthesize requires %d analyst reports, got %d", len(analystOrder), len(st.Reports))
	}

	weights := WeightsFor(env.ContentType)
	report, err := Synthesize(st.Reports, weights)
	if err != nil {
		return nil, err
	}

	st.Synthesis = report
	return report, nil
}

// Synthesize builds the synthesis report from analyst reports and weights.
func Synthesize(reports []types.AnalystReport, weights Weights) (*types.SynthesisReport, error) {
	breakdown := types.ScoreBreakdown{}
	var overall float64
	for _, r := range reports {
		switch r.Dimension {
		case types.DimensionHook:
			breakdown.Hook = r.Score
		case types.DimensionPacing:
			breakdown.Pacing = r.Score
		case types.DimensionEmotion:
			breakdown.Emotion = r.Score
		case types.DimensionCTA:
			breakdown.CTA = r.Score
		default:
			return nil, fmt.Errorf("unknown analyst dimension %q", r.Dimension)
		}
		overall += weights.For(r.Dimension) * float64(r.Score)
	}

	breakdown.Overall = clampScore(int(math.Round(overall)))
	breakdown.Verdict = VerdictFor(breakdown.Overall)

	return &types.SynthesisReport{
		Breakdown:       breakdown,
		Strengths:       rankedStrengths(reports),
		Weaknesses:      rankedWeaknesses(reports, weights),
		Recommendations: buildRecommendations(reports, weights),
	}, nil
}

// rankedStrengths lists strengths from the highest-scoring dimensions first.
func rankedStrengths(reports []types.AnalystReport) []string {
	ordered := make([]types.AnalystReport, len(reports))
	copy(ordered, reports)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Score > ordered[j].Score
	})

	var out []string
	for _, r := range ordered {
		for _, s := range r.Strengths {
			out = append(out, fmt.Sprintf("%s: %s", r.Dimension, s))
		}
	}
	return out
}

// rankedWeaknesses lists weaknesses by weighted shortfall, worst first.
func rankedWeaknesses(reports []types.AnalystReport, weights Weights) []string {
	var out []string
	for _, dimension := range rankedDeficits(reports, weights) {
		report, ok := ReportByDimension(reports, dimension)
		if !ok {
			continue
		}
		for _, w := range report.Weaknesses {
			out = append(out, fmt.Sprintf("%s: %s", dimension, w))
		}
	}
	return out
}

// maxRecommendations caps the prioritized recommendation list.
const maxRecommendations = 5

// buildRecommendations turns the worst weighted deficits into an ordered
// action list.
func buildRecommendations(reports []types.AnalystReport, weights Weights) []string {
	var out []string
	for _, dimension := range rankedDeficits(reports, weights) {
		report, ok := ReportByDimension(reports, dimension)
		if !ok || report.Score >= thresholdExcellent {
			continue
		}
		for _, w := range report.Weaknesses {
			out = append(out, fmt.Sprintf("Address %s: %s", dimension, w))
			if len(out) >= maxRecommendations {
				return out
			}
		}
	}
	return out
}
