package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/natalia/scriptforge/internal/stages"
	"github.com/natalia/scriptforge/internal/types"
)

// deliver turns a finished run into a script version. Every gate decision
// delivers: accepted and revisable versions go to the owner for review,
// rejected ones are kept for the audit trail. Only the script status differs.
func (o *Orchestrator) deliver(ctx context.Context, logger *slog.Logger, item *types.PipelineItem, st *stages.State) (uuid.UUID, error) {
	if st.Gate == nil || st.Draft == nil || st.Synthesis == nil {
		return uuid.Nil, fmt.Errorf("delivery requires draft, synthesis, and gate outputs")
	}

	status := scriptStatusFor(st.Gate.Decision)

	var scriptID uuid.UUID
	if item.ScriptID != nil {
		scriptID = *item.ScriptID
		if err := o.store.SetScriptStatus(ctx, scriptID, status); err != nil {
			return uuid.Nil, fmt.Errorf("failed to update script status: %w", err)
		}
	} else {
		script := &types.Script{
			ID:          uuid.New(),
			OwnerID:     item.OwnerID,
			Title:       scriptTitle(item, st.Draft),
			ContentType: item.ContentType,
			SourceRef:   item.SourceRef,
			Status:      status,
			CreatedAt:   o.now(),
			UpdatedAt:   o.now(),
		}
		if err := o.store.CreateScript(ctx, script); err != nil {
			return uuid.Nil, fmt.Errorf("failed to create script: %w", err)
		}
		scriptID = script.ID
		// Link before appending the version. If the append fails, the retry
		// finds the script through the item instead of creating a second one.
		if err := o.store.LinkScript(ctx, item.ID, scriptID); err != nil {
			return uuid.Nil, fmt.Errorf("failed to link script to item: %w", err)
		}
		item.ScriptID = &scriptID
	}

	version := &types.ScriptVersion{
		ID:        uuid.New(),
		ScriptID:  scriptID,
		ItemID:    item.ID,
		Draft:     *st.Draft,
		Synthesis: *st.Synthesis,
		Gate:      *st.Gate,
		IsCurrent: true,
		CreatedAt: o.now(),
	}
	if item.Revision != nil {
		version.Feedback = item.Revision.Feedback
		version.TargetSceneIDs = item.Revision.TargetSceneIDs
	}
	if err := o.store.AppendVersion(ctx, version); err != nil {
		return uuid.Nil, fmt.Errorf("failed to append script version: %w", err)
	}

	logger.Info("script version delivered",
		"script_id", scriptID,
		"version", version.Version,
		"overall", st.Synthesis.Breakdown.Overall,
		"verdict", st.Synthesis.Breakdown.Verdict)
	return scriptID, nil
}

func scriptStatusFor(decision types.GateDecision) types.ScriptStatus {
	switch decision {
	case types.GateAccept:
		return types.ScriptReady
	case types.GateRevise:
		return types.ScriptNeedsRevision
	default:
		return types.ScriptRejected
	}
}

func scriptTitle(item *types.PipelineItem, draft *types.ScriptDraft) string {
	if draft.Title != "" {
		return draft.Title
	}
	return item.SourceRef
}
