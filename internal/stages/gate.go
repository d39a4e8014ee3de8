package stages

import (
	"context"
	"fmt"

	"github.com/natalia/scriptforge/internal/types"
)

// runGate decides the delivery branch from the synthesized verdict. It is
// just another stage: its persisted output tells delivery which way to go,
// it introduces no separate orchestrator state.
func runGate(_ context.Context, _ *Env, st *State) (any, error) {
	if st.Synthesis == nil {
		return nil, fmt.Errorf("gate requires a synthesis report")
	}

	result := Decide(st.Synthesis)
	st.Gate = result
	return result, nil
}

// Decide maps a synthesis report to the gate decision.
func Decide(synthesis *types.SynthesisReport) *types.GateResult {
	breakdown := synthesis.Breakdown
	switch breakdown.Verdict {
	case types.VerdictExcellent, types.VerdictStrong:
		return &types.GateResult{
			Decision: types.GateAccept,
			Reason:   fmt.Sprintf("overall score %d (%s)", breakdown.Overall, breakdown.Verdict),
		}
	case types.VerdictFair:
		return &types.GateResult{
			Decision: types.GateRevise,
			Reason:   fmt.Sprintf("overall score %d (%s): close, but the weak spots are fixable", breakdown.Overall, breakdown.Verdict),
		}
	default:
		return &types.GateResult{
			Decision: types.GateReject,
			Reason:   fmt.Sprintf("overall score %d (%s): below the revisable floor", breakdown.Overall, breakdown.Verdict),
		}
	}
}
