// Package stages defines the ordered stage executors of the script pipeline
// and the registry describing them. Each executor is pure with respect to its
// explicit input so stages can be unit-tested independently and replayed from
// a stored payload.
package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/natalia/scriptforge/internal/ingestion"
	"github.com/natalia/scriptforge/internal/llm"
	"github.com/natalia/scriptforge/internal/types"
)

// Stage indexes, in execution order.
const (
	StageFetchSource   = 0
	StageAnalyzeSource = 1
	StageDraftScript   = 2
	StageAnalyzeScript = 3
	StageSynthesize    = 4
	StageGate          = 5

	// Count is the number of pipeline stages.
	Count = 6

	// RevisionResumeStage is where forked revision items resume: drafting is
	// the first stage that depends on script wording, so source fetch and
	// structural analysis are inherited from the parent.
	RevisionResumeStage = StageDraftScript
)

// Category constants group stages for reporting.
const (
	CategoryIngestion = "ingestion"
	CategoryDrafting  = "drafting"
	CategoryScoring   = "scoring"
	CategoryDecision  = "decision"
)

// Env carries the collaborators and run-scoped settings a stage may use.
type Env struct {
	Client      llm.Client
	Fetcher     ingestion.Fetcher
	SourceRef   string
	ContentType types.ContentType
	Revision    *types.RevisionContext
	// Simplified is set on repair re-attempts after malformed model output;
	// prompts drop their prose and restate only the output contract.
	Simplified bool
}

// State accumulates the typed outputs of completed stages. The orchestrator
// hydrates it from persisted payloads before resuming an item.
type State struct {
	Source    *types.SourceContent
	Analysis  *types.SourceAnalysis
	Draft     *types.ScriptDraft
	Reports   []types.AnalystReport
	Synthesis *types.SynthesisReport
	Gate      *types.GateResult
}

// Definition describes one stage: how to run it and how to rehydrate its
// persisted payload.
type Definition struct {
	Index    int
	Name     string
	Category string
	// EstimatedDuration feeds the progress controller's remaining-time figure.
	EstimatedDuration time.Duration
	// AutoRetryOnTimeout lets the orchestrator retry this stage once within
	// the same run when a model call times out.
	AutoRetryOnTimeout bool
	Run                func(ctx context.Context, env *Env, st *State) (any, error)
	Hydrate            func(raw []byte, st *State) error
}

// Registry lists the stages in execution order.
var Registry = []Definition{
	{
		Index:             StageFetchSource,
		Name:              "fetch_source",
		Category:          CategoryIngestion,
		EstimatedDuration: 5 * time.Second,
		Run:               runFetchSource,
		Hydrate:           hydrateJSON(func(st *State) any { st.Source = &types.SourceContent{}; return st.Source }),
	},
	{
		Index:              StageAnalyzeSource,
		Name:               "analyze_source",
		Category:           CategoryIngestion,
		EstimatedDuration:  20 * time.Second,
		AutoRetryOnTimeout: true,
		Run:                runAnalyzeSource,
		Hydrate:            hydrateJSON(func(st *State) any { st.Analysis = &types.SourceAnalysis{}; return st.Analysis }),
	},
	{
		Index:              StageDraftScript,
		Name:               "draft_script",
		Category:           CategoryDrafting,
		EstimatedDuration:  45 * time.Second,
		AutoRetryOnTimeout: true,
		Run:                runDraftScript,
		Hydrate:            hydrateJSON(func(st *State) any { st.Draft = &types.ScriptDraft{}; return st.Draft }),
	},
	{
		Index:              StageAnalyzeScript,
		Name:               "analyze_script",
		Category:           CategoryScoring,
		EstimatedDuration:  30 * time.Second,
		AutoRetryOnTimeout: true,
		Run:                runAnalyzeScript,
		Hydrate: func(raw []byte, st *State) error {
			return json.Unmarshal(raw, &st.Reports)
		},
	},
	{
		Index:             StageSynthesize,
		Name:              "synthesize",
		Category:          CategoryScoring,
		EstimatedDuration: 5 * time.Second,
		Run:               runSynthesize,
		Hydrate:           hydrateJSON(func(st *State) any { st.Synthesis = &types.SynthesisReport{}; return st.Synthesis }),
	},
	{
		Index:             StageGate,
		Name:              "gate",
		Category:          CategoryDecision,
		EstimatedDuration: time.Second,
		Run:               runGate,
		Hydrate:           hydrateJSON(func(st *State) any { st.Gate = &types.GateResult{}; return st.Gate }),
	},
}

// ByIndex returns the stage definition for an index.
func ByIndex(index int) (*Definition, error) {
	if index < 0 || index >= len(Registry) {
		return nil, fmt.Errorf("unknown stage index %d", index)
	}
	return &Registry[index], nil
}

// TotalEstimatedDuration sums the duration estimates for stages in [from, Count).
func TotalEstimatedDuration(from int) time.Duration {
	var total time.Duration
	for _, def := range Registry {
		if def.Index >= from {
			total += def.EstimatedDuration
		}
	}
	return total
}

// HydrateState rebuilds a State from persisted stage payloads, stopping at
// upTo (exclusive). Missing payloads for earlier stages are an error: the
// orchestrator never advances past a stage without persisting its output.
func HydrateState(payloads map[int]json.RawMessage, upTo int, st *State) error {
	for i := 0; i < upTo && i < len(Registry); i++ {
		raw, ok := payloads[i]
		if !ok {
			return fmt.Errorf("missing payload for completed stage %d (%s)", i, Registry[i].Name)
		}
		if err := Registry[i].Hydrate(raw, st); err != nil {
			return fmt.Errorf("failed to hydrate stage %d (%s): %w", i, Registry[i].Name, err)
		}
	}
	return nil
}

func hydrateJSON(target func(st *State) any) func(raw []byte, st *State) error {
	return func(raw []byte, st *State) error {
		return json.Unmarshal(raw, target(st))
	}
}

func runFetchSource(ctx context.Context, env *Env, st *State) (any, error) {
	if env.SourceRef == "" {
		return nil, fmt.Errorf("fetch_source requires a source ref")
	}
	content, err := env.Fetcher.Fetch(ctx, env.SourceRef)
	if err != nil {
		return nil, err
	}
	st.Source = content
	if content.Type != "" {
		env.ContentType = content.Type
	}
	return content, nil
}
