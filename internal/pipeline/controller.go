package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/natalia/scriptforge/internal/stages"
	"github.com/natalia/scriptforge/internal/types"
)

// Enqueuer hands accepted items to the worker pool.
type Enqueuer interface {
	Enqueue(id uuid.UUID) error
}

// Limits are the user-facing budgets the controller enforces.
type Limits struct {
	// MaxRetries bounds manual retries of a failed item.
	MaxRetries int
	// MaxRevisions bounds revision forks per script.
	MaxRevisions int
	// DailyQuota bounds pipeline triggers per owner per day. Zero disables
	// the quota.
	DailyQuota int
}

// Controller is the user-facing surface of the pipeline: triggering runs,
// retrying and cancelling items, reporting progress, and managing delivered
// scripts. The orchestrator does the running; the controller enforces
// ownership and budgets.
type Controller struct {
	store  Store
	queue  Enqueuer
	limits Limits
	logger *slog.Logger
	now    func() time.Time
}

// NewController creates a controller over the given store and work queue.
func NewController(store Store, queue Enqueuer, limits Limits, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		store:  store,
		queue:  queue,
		limits: limits,
		logger: logger,
		now:    time.Now,
	}
}

// Trigger creates and enqueues a new pipeline item for the given source.
func (c *Controller) Trigger(ctx context.Context, ownerID uuid.UUID, sourceRef string, contentType types.ContentType) (*types.PipelineItem, error) {
	if sourceRef == "" {
		return nil, fmt.Errorf("source ref is required")
	}

	if c.limits.DailyQuota > 0 {
		count, err := c.store.IncrementUsage(ctx, ownerID)
		if err != nil {
			return nil, fmt.Errorf("failed to record usage: %w", err)
		}
		if count > c.limits.DailyQuota {
			return nil, &QuotaExceededError{Limit: c.limits.DailyQuota}
		}
	}

	item := &types.PipelineItem{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		SourceRef:   sourceRef,
		ContentType: contentType,
		Status:      types.ItemQueued,
		CreatedAt:   c.now(),
	}
	if err := c.store.CreateItem(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to create item: %w", err)
	}
	if err := c.queue.Enqueue(item.ID); err != nil {
		return nil, err
	}

	c.logger.Info("pipeline triggered", "item_id", item.ID, "owner_id", ownerID, "content_type", contentType)
	return item, nil
}

// Retry requeues a failed item at its failed stage. It consumes one unit of
// the item's retry budget.
func (c *Controller) Retry(ctx context.Context, ownerID, itemID uuid.UUID) (*types.PipelineItem, error) {
	item, err := c.ownedItem(ctx, ownerID, itemID)
	if err != nil {
		return nil, err
	}
	if item.Status != types.ItemFailed {
		return nil, &NotFailedError{ID: itemID, Status: item.Status}
	}
	if item.RetryCount >= c.limits.MaxRetries {
		return nil, &RetryLimitExceededError{ID: itemID, Limit: c.limits.MaxRetries}
	}

	count, err := c.store.IncrementRetry(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to increment retry count: %w", err)
	}
	if err := c.queue.Enqueue(itemID); err != nil {
		return nil, err
	}

	c.logger.Info("item retry queued", "item_id", itemID, "retry_count", count, "stage", item.CurrentStage)
	item.Status = types.ItemQueued
	item.RetryCount = count
	return item, nil
}

// Reset is the administrative escape hatch: a failed item, or one stuck in
// processing after its worker died, goes back to queued with a fresh retry
// budget, resuming at its current stage. It does not enqueue; the caller
// decides when the item runs again.
func (c *Controller) Reset(ctx context.Context, ownerID, itemID uuid.UUID) error {
	item, err := c.ownedItem(ctx, ownerID, itemID)
	if err != nil {
		return err
	}
	switch item.Status {
	case types.ItemFailed, types.ItemProcessing:
	default:
		return &ConflictError{Message: fmt.Sprintf("item %s is %s and cannot be reset", itemID, item.Status)}
	}
	if err := c.store.ResetItem(ctx, itemID); err != nil {
		return fmt.Errorf("failed to reset item: %w", err)
	}
	c.logger.Info("item reset", "item_id", itemID, "status", item.Status, "stage", item.CurrentStage)
	return nil
}

// Cancel stops an item. Queued items are cancelled immediately; processing
// items get the cooperative flag and stop at the next stage boundary.
func (c *Controller) Cancel(ctx context.Context, ownerID, itemID uuid.UUID) error {
	item, err := c.ownedItem(ctx, ownerID, itemID)
	if err != nil {
		return err
	}

	switch item.Status {
	case types.ItemQueued:
		if err := c.store.RequestCancel(ctx, itemID); err != nil {
			return fmt.Errorf("failed to request cancellation: %w", err)
		}
		if err := c.store.MarkCancelled(ctx, itemID); err != nil {
			return fmt.Errorf("failed to cancel item: %w", err)
		}
	case types.ItemProcessing:
		if err := c.store.RequestCancel(ctx, itemID); err != nil {
			return fmt.Errorf("failed to request cancellation: %w", err)
		}
	default:
		return &ConflictError{Message: fmt.Sprintf("item %s is %s and cannot be cancelled", itemID, item.Status)}
	}

	c.logger.Info("item cancellation requested", "item_id", itemID, "status", item.Status)
	return nil
}

// ResetOrphans requeues items left in processing by an unclean shutdown.
// Called once at startup before the worker pool starts.
func (c *Controller) ResetOrphans(ctx context.Context) (int, error) {
	count, err := c.store.ResetOrphanedProcessing(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to reset orphaned items: %w", err)
	}
	if count > 0 {
		c.logger.Warn("requeued orphaned processing items", "count", count)
	}
	return count, nil
}

// Progress reports where an item is in the pipeline.
type Progress struct {
	ItemID             uuid.UUID        `json:"item_id"`
	Status             types.ItemStatus `json:"status"`
	CurrentStage       int              `json:"current_stage"`
	StageName          string           `json:"stage_name,omitempty"`
	StageCategory      string           `json:"stage_category,omitempty"`
	Percent            float64          `json:"percent"`
	Elapsed            time.Duration    `json:"elapsed"`
	EstimatedRemaining time.Duration    `json:"estimated_remaining"`
	RetryCount         int              `json:"retry_count"`
	ErrorMessage       string           `json:"error_message,omitempty"`
}

// GetProgress computes the item's progress figure. Percent counts completed
// stages plus partial credit for the in-flight stage based on its duration
// estimate; the in-flight stage never reports as finished before it is.
func (c *Controller) GetProgress(ctx context.Context, ownerID, itemID uuid.UUID) (*Progress, error) {
	item, err := c.ownedItem(ctx, ownerID, itemID)
	if err != nil {
		return nil, err
	}

	progress := &Progress{
		ItemID:       item.ID,
		Status:       item.Status,
		CurrentStage: item.CurrentStage,
		RetryCount:   item.RetryCount,
		ErrorMessage: item.ErrorMessage,
	}

	switch item.Status {
	case types.ItemCompleted:
		progress.Percent = 100
		if item.StartedAt != nil && item.CompletedAt != nil {
			progress.Elapsed = item.CompletedAt.Sub(*item.StartedAt)
		}
		return progress, nil
	case types.ItemCancelled:
		progress.Percent = stageFraction(item.CurrentStage, 0) * 100
		return progress, nil
	}

	if item.CurrentStage < stages.Count {
		def := stages.Registry[item.CurrentStage]
		progress.StageName = def.Name
		progress.StageCategory = def.Category
	}

	var elapsed, inStage time.Duration
	if item.StartedAt != nil {
		elapsed = c.now().Sub(*item.StartedAt)
		progress.Elapsed = elapsed
	}

	inStageFraction := 0.0
	if item.Status == types.ItemProcessing && item.CurrentStage < stages.Count {
		est := stages.Registry[item.CurrentStage].EstimatedDuration
		consumed := stages.TotalEstimatedDuration(0) - stages.TotalEstimatedDuration(item.CurrentStage)
		inStage = elapsed - consumed
		if inStage < 0 {
			inStage = 0
		}
		inStageFraction = float64(inStage) / float64(est)
		if inStageFraction > 0.95 {
			inStageFraction = 0.95
		}
	}

	progress.Percent = stageFraction(item.CurrentStage, inStageFraction) * 100

	remaining := stages.TotalEstimatedDuration(item.CurrentStage) - inStage
	if remaining < 0 {
		remaining = 0
	}
	progress.EstimatedRemaining = remaining
	return progress, nil
}

// GetItem returns an item the owner may see.
func (c *Controller) GetItem(ctx context.Context, ownerID, itemID uuid.UUID) (*types.PipelineItem, error) {
	return c.ownedItem(ctx, ownerID, itemID)
}

// ListItems returns the owner's pipeline items.
func (c *Controller) ListItems(ctx context.Context, ownerID uuid.UUID) ([]*types.PipelineItem, error) {
	return c.store.ListItemsByOwner(ctx, ownerID)
}

// GetScript returns a script the owner may see.
func (c *Controller) GetScript(ctx context.Context, ownerID, scriptID uuid.UUID) (*types.Script, error) {
	return c.ownedScript(ctx, ownerID, scriptID)
}

// ListScripts returns the owner's delivered scripts.
func (c *Controller) ListScripts(ctx context.Context, ownerID uuid.UUID) ([]*types.Script, error) {
	return c.store.ListScriptsByOwner(ctx, ownerID)
}

// VersionHistory returns a script's versions in ascending order.
func (c *Controller) VersionHistory(ctx context.Context, ownerID, scriptID uuid.UUID) ([]*types.ScriptVersion, error) {
	if _, err := c.ownedScript(ctx, ownerID, scriptID); err != nil {
		return nil, err
	}
	return c.store.ListVersions(ctx, scriptID)
}

// CurrentVersion returns a script's current version.
func (c *Controller) CurrentVersion(ctx context.Context, ownerID, scriptID uuid.UUID) (*types.ScriptVersion, error) {
	if _, err := c.ownedScript(ctx, ownerID, scriptID); err != nil {
		return nil, err
	}
	version, err := c.store.GetCurrentVersion(ctx, scriptID)
	if err != nil {
		return nil, err
	}
	if version == nil {
		return nil, &NotFoundError{Kind: "script version", ID: scriptID}
	}
	return version, nil
}

// Approve accepts the current version; the script leaves the review loop.
func (c *Controller) Approve(ctx context.Context, ownerID, scriptID uuid.UUID) error {
	return c.decide(ctx, ownerID, scriptID, types.ScriptApproved)
}

// RejectScript declines the current version without requesting a revision,
// recording why. The category is required; the free-form text is optional.
func (c *Controller) RejectScript(ctx context.Context, ownerID, scriptID uuid.UUID, reasonCategory, reasonText string) error {
	if reasonCategory == "" {
		return fmt.Errorf("rejection reason category is required")
	}
	script, err := c.ownedScript(ctx, ownerID, scriptID)
	if err != nil {
		return err
	}
	if err := reviewable(script); err != nil {
		return err
	}
	if err := c.store.RecordRejection(ctx, scriptID, reasonCategory, reasonText); err != nil {
		return fmt.Errorf("failed to record rejection: %w", err)
	}
	c.logger.Info("script rejected", "script_id", scriptID, "reason_category", reasonCategory)
	return nil
}

func (c *Controller) decide(ctx context.Context, ownerID, scriptID uuid.UUID, decision types.ScriptStatus) error {
	script, err := c.ownedScript(ctx, ownerID, scriptID)
	if err != nil {
		return err
	}
	if err := reviewable(script); err != nil {
		return err
	}
	if err := c.store.SetScriptStatus(ctx, scriptID, decision); err != nil {
		return fmt.Errorf("failed to set script status: %w", err)
	}
	c.logger.Info("script reviewed", "script_id", scriptID, "decision", decision)
	return nil
}

func reviewable(script *types.Script) error {
	switch script.Status {
	case types.ScriptReady, types.ScriptNeedsRevision:
		return nil
	default:
		return &ConflictError{Message: fmt.Sprintf("script %s is %s and cannot be reviewed", script.ID, script.Status)}
	}
}

func (c *Controller) ownedItem(ctx context.Context, ownerID, itemID uuid.UUID) (*types.PipelineItem, error) {
	item, err := c.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load item: %w", err)
	}
	if item == nil {
		return nil, &NotFoundError{Kind: "item", ID: itemID}
	}
	if item.OwnerID != ownerID {
		return nil, &ForbiddenError{Kind: "item", ID: itemID}
	}
	return item, nil
}

func (c *Controller) ownedScript(ctx context.Context, ownerID, scriptID uuid.UUID) (*types.Script, error) {
	script, err := c.store.GetScript(ctx, scriptID)
	if err != nil {
		return nil, fmt.Errorf("failed to load script: %w", err)
	}
	if script == nil {
		return nil, &NotFoundError{Kind: "script", ID: scriptID}
	}
	if script.OwnerID != ownerID {
		return nil, &ForbiddenError{Kind: "script", ID: scriptID}
	}
	return script, nil
}

func stageFraction(completedStages int, inStageFraction float64) float64 {
	f := (float64(completedStages) + inStageFraction) / float64(stages.Count)
	if f > 1 {
		return 1
	}
	return f
}
