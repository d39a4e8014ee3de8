package types

// Analyst dimension constants. The four analysts run concurrently on the same
// draft and score independent qualities of it.
const (
	DimensionHook    = "hook"
	DimensionPacing  = "pacing"
	DimensionEmotion = "emotion"
	DimensionCTA     = "cta"
)

// Verdict is the categorical quality level derived from the overall score.
type Verdict string

const (
	VerdictExcellent Verdict = "excellent"
	VerdictStrong    Verdict = "strong"
	VerdictFair      Verdict = "fair"
	VerdictWeak      Verdict = "weak"
)

// AnalystReport is the output of a single analyst executor: a 0-100 score
// for one dimension plus a qualitative breakdown.
type AnalystReport struct {
	Dimension  string   `json:"dimension"`
	Score      int      `json:"score"`
	Strengths  []string `json:"strengths,omitempty"`
	Weaknesses []string `json:"weaknesses,omitempty"`
	Notes      string   `json:"notes,omitempty"`
}

// ScoreBreakdown holds the per-dimension scores and the synthesized overall
// score with its verdict.
type ScoreBreakdown struct {
	Hook    int     `json:"hook"`
	Pacing  int     `json:"pacing"`
	Emotion int     `json:"emotion"`
	CTA     int     `json:"cta"`
	Overall int     `json:"overall"`
	Verdict Verdict `json:"verdict"`
}

// SynthesisReport is the output of the synthesizer executor: the combined
// score breakdown plus ranked findings and prioritized recommendations.
type SynthesisReport struct {
	Breakdown       ScoreBreakdown `json:"breakdown"`
	Strengths       []string       `json:"strengths"`
	Weaknesses      []string       `json:"weaknesses"`
	Recommendations []string       `json:"recommendations"`
}

// GateDecision is the branch the delivery step takes after the gate stage.
type GateDecision string

const (
	GateAccept GateDecision = "accept"
	GateReject GateDecision = "reject"
	GateRevise GateDecision = "needs_revision"
)

// GateResult is the gate stage output.
type GateResult struct {
	Decision GateDecision `json:"decision"`
	Reason   string       `json:"reason"`
}
