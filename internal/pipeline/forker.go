package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/natalia/scriptforge/internal/stages"
	"github.com/natalia/scriptforge/internal/types"
)

// SubmitRevision forks a new pipeline item from the script's current version.
// The fork inherits the parent's source fetch and analysis payloads as they
// are at this moment and resumes at the drafting stage with the reviewer's
// feedback in context. The revision budget is checked before anything is
// created.
func (c *Controller) SubmitRevision(ctx context.Context, ownerID, scriptID uuid.UUID, feedback string, targetSceneIDs []string) (*types.PipelineItem, error) {
	if feedback == "" {
		return nil, fmt.Errorf("revision feedback is required")
	}

	script, err := c.ownedScript(ctx, ownerID, scriptID)
	if err != nil {
		return nil, err
	}
	switch script.Status {
	case types.ScriptProcessing:
		return nil, &ConflictError{Message: fmt.Sprintf("script %s already has a revision in flight", scriptID)}
	case types.ScriptReady, types.ScriptNeedsRevision:
	default:
		return nil, &ConflictError{Message: fmt.Sprintf("script %s is %s and is no longer revisable", scriptID, script.Status)}
	}
	if script.RevisionCount >= c.limits.MaxRevisions {
		return nil, &RevisionLimitExceededError{ScriptID: scriptID, Limit: c.limits.MaxRevisions}
	}

	current, err := c.store.GetCurrentVersion(ctx, scriptID)
	if err != nil {
		return nil, fmt.Errorf("failed to load current version: %w", err)
	}
	if current == nil {
		return nil, &NotFoundError{Kind: "script version", ID: scriptID}
	}

	parent, err := c.store.GetItem(ctx, current.ItemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load parent item: %w", err)
	}
	if parent == nil {
		return nil, &NotFoundError{Kind: "item", ID: current.ItemID}
	}

	if len(targetSceneIDs) > 0 {
		if err := validateTargetScenes(targetSceneIDs, &current.Draft); err != nil {
			return nil, err
		}
	}

	versions, err := c.store.ListVersions(ctx, scriptID)
	if err != nil {
		return nil, fmt.Errorf("failed to load version history: %w", err)
	}
	history := make([]types.VersionSummary, 0, len(versions))
	for _, v := range versions {
		history = append(history, v.Summary())
	}

	fork := &types.PipelineItem{
		ID:           uuid.New(),
		OwnerID:      ownerID,
		ParentID:     &parent.ID,
		ScriptID:     &scriptID,
		SourceRef:    parent.SourceRef,
		ContentType:  parent.ContentType,
		Status:       types.ItemQueued,
		CurrentStage: stages.RevisionResumeStage,
		Revision: &types.RevisionContext{
			Feedback:       feedback,
			TargetSceneIDs: targetSceneIDs,
			PreviousDraft:  &current.Draft,
			Attempt:        script.RevisionCount + 1,
			History:        history,
		},
		CreatedAt: c.now(),
	}

	if err := c.store.ForkItem(ctx, fork, stages.RevisionResumeStage); err != nil {
		return nil, fmt.Errorf("failed to fork item: %w", err)
	}
	if err := c.queue.Enqueue(fork.ID); err != nil {
		return nil, err
	}

	c.logger.Info("revision submitted",
		"script_id", scriptID,
		"item_id", fork.ID,
		"parent_id", parent.ID,
		"attempt", fork.Revision.Attempt)
	return fork, nil
}

// validateTargetScenes rejects feedback aimed at scenes the current draft
// does not have.
func validateTargetScenes(targetSceneIDs []string, draft *types.ScriptDraft) error {
	known := make(map[string]bool, len(draft.Scenes))
	for _, id := range draft.SceneIDs() {
		known[id] = true
	}
	for _, id := range targetSceneIDs {
		if !known[id] {
			return fmt.Errorf("unknown target scene %q", id)
		}
	}
	return nil
}
