package pipeline

import (
	"context"

	"github.com/google/uuid"

	"github.com/natalia/scriptforge/internal/types"
)

// ItemStore persists pipeline items and their stage payloads. A nil item with
// a nil error means not found.
type ItemStore interface {
	CreateItem(ctx context.Context, item *types.PipelineItem) error
	GetItem(ctx context.Context, id uuid.UUID) (*types.PipelineItem, error)
	ListItemsByOwner(ctx context.Context, ownerID uuid.UUID) ([]*types.PipelineItem, error)

	// MarkProcessing transitions a queued item to processing and records the
	// start time.
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	// SaveStagePayload persists one stage's output. The orchestrator always
	// saves the payload before advancing. Payloads of stages the item has
	// already advanced past are immutable; overwriting one is an error.
	SaveStagePayload(ctx context.Context, id uuid.UUID, stage int, payload []byte) error
	AdvanceStage(ctx context.Context, id uuid.UUID, nextStage int) error
	// LinkScript records the script an item delivers to. Set before the first
	// version is appended so a failed delivery retries against the same
	// script instead of creating another.
	LinkScript(ctx context.Context, id uuid.UUID, scriptID uuid.UUID) error
	MarkCompleted(ctx context.Context, id uuid.UUID, scriptID uuid.UUID) error
	// MarkFailed records the failure message and stage without advancing, so
	// a retry resumes at the failed stage.
	MarkFailed(ctx context.Context, id uuid.UUID, stage int, message string) error
	MarkCancelled(ctx context.Context, id uuid.UUID) error

	// RequestCancel sets the cooperative cancellation flag; the orchestrator
	// honors it between stages.
	RequestCancel(ctx context.Context, id uuid.UUID) error
	IsCancelRequested(ctx context.Context, id uuid.UUID) (bool, error)

	// IncrementRetry requeues a failed item, bumps its retry count, and
	// clears the recorded failure.
	IncrementRetry(ctx context.Context, id uuid.UUID) (int, error)
	// ResetItem is the administrative escape hatch: a failed or stuck
	// processing item back to queued with a fresh retry budget, current
	// stage unchanged.
	ResetItem(ctx context.Context, id uuid.UUID) error
	// ResetOrphanedProcessing requeues items stuck in processing, typically
	// after an unclean shutdown. Returns the number of items requeued.
	ResetOrphanedProcessing(ctx context.Context) (int, error)

	// ForkItem creates a revision item atomically: it copies the parent's
	// stage payloads below resumeStage as they are at this moment, bumps the
	// script's revision count, and puts the script back into processing.
	ForkItem(ctx context.Context, fork *types.PipelineItem, resumeStage int) error
}

// ScriptStore persists delivered scripts and their versions.
type ScriptStore interface {
	CreateScript(ctx context.Context, script *types.Script) error
	GetScript(ctx context.Context, id uuid.UUID) (*types.Script, error)
	ListScriptsByOwner(ctx context.Context, ownerID uuid.UUID) ([]*types.Script, error)
	SetScriptStatus(ctx context.Context, id uuid.UUID, status types.ScriptStatus) error
	// RecordRejection sets the script to rejected and stores the owner's
	// reason in the same update.
	RecordRejection(ctx context.Context, id uuid.UUID, reasonCategory, reasonText string) error

	// AppendVersion assigns the next version number, clears the previous
	// current flag, and inserts the new version as current, atomically.
	AppendVersion(ctx context.Context, version *types.ScriptVersion) error
	GetCurrentVersion(ctx context.Context, scriptID uuid.UUID) (*types.ScriptVersion, error)
	// ListVersions returns all versions in ascending version order.
	ListVersions(ctx context.Context, scriptID uuid.UUID) ([]*types.ScriptVersion, error)
}

// UsageStore tracks per-owner daily run counts.
type UsageStore interface {
	// IncrementUsage bumps the owner's count for the current day and returns
	// the new count.
	IncrementUsage(ctx context.Context, ownerID uuid.UUID) (int, error)
	// ResetAllUsage zeroes every owner's daily count. Called by the scheduler
	// at the configured reset time.
	ResetAllUsage(ctx context.Context) (int64, error)
}

// Store is the full persistence surface the pipeline needs.
type Store interface {
	ItemStore
	ScriptStore
	UsageStore
}
