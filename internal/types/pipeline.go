package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ItemStatus is the lifecycle state of a pipeline item.
type ItemStatus string

const (
	ItemQueued     ItemStatus = "queued"
	ItemProcessing ItemStatus = "processing"
	ItemCompleted  ItemStatus = "completed"
	ItemFailed     ItemStatus = "failed"
	ItemCancelled  ItemStatus = "cancelled"
)

// PipelineItem is one run of the stage pipeline. Forked revision items carry
// a ParentID and a RevisionContext and start past the inherited stages.
type PipelineItem struct {
	ID          uuid.UUID   `json:"id"`
	OwnerID     uuid.UUID   `json:"owner_id"`
	ParentID    *uuid.UUID  `json:"parent_id,omitempty"`
	ScriptID    *uuid.UUID  `json:"script_id,omitempty"`
	SourceRef   string      `json:"source_ref"`
	ContentType ContentType `json:"content_type"`
	Status      ItemStatus  `json:"status"`
	// CurrentStage is the next stage to run. An item at stage N has persisted
	// payloads for stages [0, N).
	CurrentStage int `json:"current_stage"`
	// StagePayloads holds the serialized output of each completed stage,
	// keyed by stage index.
	StagePayloads   map[int]json.RawMessage `json:"stage_payloads,omitempty"`
	RetryCount      int                     `json:"retry_count"`
	Revision        *RevisionContext        `json:"revision,omitempty"`
	CancelRequested bool                    `json:"cancel_requested"`
	ErrorMessage    string                  `json:"error_message,omitempty"`
	// ErrorStage is the stage the last failure happened at; the item's
	// CurrentStage stays there so a retry resumes at the failed stage.
	ErrorStage  *int       `json:"error_stage,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ScriptStatus tracks where a delivered script sits in the review loop.
type ScriptStatus string

const (
	// ScriptProcessing means a pipeline item is currently producing the next
	// version. At most one item per script is in flight.
	ScriptProcessing ScriptStatus = "processing"
	// ScriptReady means the current version passed the gate and awaits the
	// owner's decision.
	ScriptReady ScriptStatus = "ready"
	// ScriptNeedsRevision means the gate recommended a revision pass.
	ScriptNeedsRevision ScriptStatus = "needs_revision"
	ScriptApproved      ScriptStatus = "approved"
	ScriptRejected      ScriptStatus = "rejected"
)

// Script is the delivered artifact a pipeline run produces. Versions hang off
// it; exactly one version is current at any time.
type Script struct {
	ID            uuid.UUID    `json:"id"`
	OwnerID       uuid.UUID    `json:"owner_id"`
	Title         string       `json:"title"`
	ContentType   ContentType  `json:"content_type"`
	SourceRef     string       `json:"source_ref"`
	Status        ScriptStatus `json:"status"`
	RevisionCount int          `json:"revision_count"`
	// ReasonCategory and ReasonText record why the owner rejected the script.
	// Both are empty until a rejection happens.
	ReasonCategory string    `json:"reason_category,omitempty"`
	ReasonText     string    `json:"reason_text,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ScriptVersion is one delivered draft of a script together with the scoring
// that accompanied it.
type ScriptVersion struct {
	ID        uuid.UUID       `json:"id"`
	ScriptID  uuid.UUID       `json:"script_id"`
	ItemID    uuid.UUID       `json:"item_id"`
	Version   int             `json:"version"`
	Draft     ScriptDraft     `json:"draft"`
	Synthesis SynthesisReport `json:"synthesis"`
	Gate      GateResult      `json:"gate"`
	// Feedback and TargetSceneIDs are the reviewer input that produced this
	// version, empty for the initial version.
	Feedback       string    `json:"feedback,omitempty"`
	TargetSceneIDs []string  `json:"target_scene_ids,omitempty"`
	IsCurrent      bool      `json:"is_current"`
	CreatedAt      time.Time `json:"created_at"`
}

// Summary reduces a version to the compact record carried in revision
// contexts.
func (v *ScriptVersion) Summary() VersionSummary {
	return VersionSummary{
		Version:      v.Version,
		OverallScore: v.Synthesis.Breakdown.Overall,
		Verdict:      v.Synthesis.Breakdown.Verdict,
		Feedback:     v.Feedback,
	}
}
