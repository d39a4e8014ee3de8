package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/natalia/scriptforge/internal/types"
)

// CreateItem inserts a new pipeline item.
func (db *DB) CreateItem(ctx context.Context, item *types.PipelineItem) error {
	revision, err := marshalRevision(item.Revision)
	if err != nil {
		return err
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO pipeline_items
			 (id, owner_id, parent_id, script_id, source_ref, content_type, status,
			  current_stage, retry_count, revision_context, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		item.ID, item.OwnerID, item.ParentID, item.ScriptID, item.SourceRef,
		item.ContentType, item.Status, item.CurrentStage, item.RetryCount,
		revision, item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}
	return nil
}

// GetItem loads an item and its stage payloads. Returns nil when the item
// does not exist.
func (db *DB) GetItem(ctx context.Context, id uuid.UUID) (*types.PipelineItem, error) {
	item, err := db.scanItem(db.pool.QueryRow(ctx, itemSelect+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}

	rows, err := db.pool.Query(ctx,
		`SELECT stage, payload FROM stage_payloads WHERE item_id = $1 ORDER BY stage`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load stage payloads: %w", err)
	}
	defer rows.Close()

	item.StagePayloads = make(map[int]json.RawMessage)
	for rows.Next() {
		var stage int
		var payload []byte
		if err := rows.Scan(&stage, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan stage payload: %w", err)
		}
		item.StagePayloads[stage] = payload
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stage payloads: %w", err)
	}
	return item, nil
}

// ListItemsByOwner returns the owner's items, oldest first, without payloads.
func (db *DB) ListItemsByOwner(ctx context.Context, ownerID uuid.UUID) ([]*types.PipelineItem, error) {
	rows, err := db.pool.Query(ctx, itemSelect+` WHERE owner_id = $1 ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []*types.PipelineItem
	for rows.Next() {
		item, err := db.scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read items: %w", err)
	}
	return items, nil
}

const itemSelect = `SELECT id, owner_id, parent_id, script_id, source_ref, content_type, status,
	current_stage, retry_count, revision_context, cancel_requested,
	error_message, error_stage, created_at, started_at, completed_at
	FROM pipeline_items`

func (db *DB) scanItem(row pgx.Row) (*types.PipelineItem, error) {
	var item types.PipelineItem
	var revision []byte
	err := row.Scan(
		&item.ID, &item.OwnerID, &item.ParentID, &item.ScriptID, &item.SourceRef,
		&item.ContentType, &item.Status, &item.CurrentStage, &item.RetryCount,
		&revision, &item.CancelRequested, &item.ErrorMessage, &item.ErrorStage,
		&item.CreatedAt, &item.StartedAt, &item.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(revision) > 0 {
		item.Revision = &types.RevisionContext{}
		if err := json.Unmarshal(revision, item.Revision); err != nil {
			return nil, fmt.Errorf("failed to unmarshal revision context: %w", err)
		}
	}
	return &item, nil
}

// MarkProcessing transitions a queued item to processing.
func (db *DB) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE pipeline_items SET status = 'processing', started_at = NOW()
		 WHERE id = $1 AND status = 'queued'`, id)
	if err != nil {
		return fmt.Errorf("failed to mark item processing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("item %s is not queued", id)
	}
	return nil
}

// SaveStagePayload upserts one stage's output for an item. Payloads of stages
// the item has already advanced past are immutable; the guard makes an
// attempted overwrite fail instead of silently rewriting history.
func (db *DB) SaveStagePayload(ctx context.Context, id uuid.UUID, stage int, payload []byte) error {
	tag, err := db.pool.Exec(ctx,
		`WITH item AS (SELECT current_stage FROM pipeline_items WHERE id = $1)
		 INSERT INTO stage_payloads (item_id, stage, payload)
		 SELECT $1, $2, $3 FROM item WHERE item.current_stage <= $2
		 ON CONFLICT (item_id, stage) DO UPDATE SET payload = $3, created_at = NOW()`,
		id, stage, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to save stage %d payload: %w", stage, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("stage %d payload of item %s is immutable, item already advanced past it", stage, id)
	}
	return nil
}

// AdvanceStage moves the item's resume position forward.
func (db *DB) AdvanceStage(ctx context.Context, id uuid.UUID, nextStage int) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE pipeline_items SET current_stage = $1 WHERE id = $2`, nextStage, id)
	if err != nil {
		return fmt.Errorf("failed to advance stage: %w", err)
	}
	return nil
}

// LinkScript records the script an item delivers to, ahead of completion.
func (db *DB) LinkScript(ctx context.Context, id uuid.UUID, scriptID uuid.UUID) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE pipeline_items SET script_id = $1 WHERE id = $2`, scriptID, id)
	if err != nil {
		return fmt.Errorf("failed to link script to item: %w", err)
	}
	return nil
}

// MarkCompleted finishes an item and links it to its delivered script.
func (db *DB) MarkCompleted(ctx context.Context, id uuid.UUID, scriptID uuid.UUID) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE pipeline_items
		 SET status = 'completed', script_id = $1, completed_at = NOW(),
		     error_message = '', error_stage = NULL
		 WHERE id = $2`, scriptID, id)
	if err != nil {
		return fmt.Errorf("failed to mark item completed: %w", err)
	}
	return nil
}

// MarkFailed records the failure without moving current_stage, so a retry
// resumes at the failed stage.
func (db *DB) MarkFailed(ctx context.Context, id uuid.UUID, stage int, message string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE pipeline_items SET status = 'failed', error_message = $1, error_stage = $2
		 WHERE id = $3`, message, stage, id)
	if err != nil {
		return fmt.Errorf("failed to mark item failed: %w", err)
	}
	return nil
}

// MarkCancelled finishes an item in the cancelled state.
func (db *DB) MarkCancelled(ctx context.Context, id uuid.UUID) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE pipeline_items SET status = 'cancelled', completed_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark item cancelled: %w", err)
	}
	return nil
}

// RequestCancel sets the cooperative cancellation flag.
func (db *DB) RequestCancel(ctx context.Context, id uuid.UUID) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE pipeline_items SET cancel_requested = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to request cancellation: %w", err)
	}
	return nil
}

// IsCancelRequested reads the cooperative cancellation flag.
func (db *DB) IsCancelRequested(ctx context.Context, id uuid.UUID) (bool, error) {
	var cancelled bool
	err := db.pool.QueryRow(ctx,
		`SELECT cancel_requested FROM pipeline_items WHERE id = $1`, id).Scan(&cancelled)
	if err != nil {
		return false, fmt.Errorf("failed to read cancellation flag: %w", err)
	}
	return cancelled, nil
}

// IncrementRetry bumps the retry count, requeues the item, clears the
// recorded failure, and returns the new count.
func (db *DB) IncrementRetry(ctx context.Context, id uuid.UUID) (int, error) {
	var count int
	err := db.pool.QueryRow(ctx,
		`UPDATE pipeline_items
		 SET retry_count = retry_count + 1, status = 'queued',
		     error_message = '', error_stage = NULL
		 WHERE id = $1 RETURNING retry_count`, id).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to increment retry count: %w", err)
	}
	return count, nil
}

// ResetItem requeues a failed or stuck processing item with a fresh retry
// budget.
func (db *DB) ResetItem(ctx context.Context, id uuid.UUID) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE pipeline_items
		 SET status = 'queued', retry_count = 0, error_message = '', error_stage = NULL
		 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to reset item: %w", err)
	}
	return nil
}

// ResetOrphanedProcessing requeues items left in processing by an unclean
// shutdown.
func (db *DB) ResetOrphanedProcessing(ctx context.Context) (int, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE pipeline_items SET status = 'queued' WHERE status = 'processing'`)
	if err != nil {
		return 0, fmt.Errorf("failed to reset orphaned items: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ForkItem creates a revision item in one transaction: the fork row, a
// point-in-time copy of the parent's pre-resume payloads, and the script's
// revision bookkeeping.
func (db *DB) ForkItem(ctx context.Context, fork *types.PipelineItem, resumeStage int) error {
	if fork.ParentID == nil || fork.ScriptID == nil {
		return fmt.Errorf("fork requires parent and script ids")
	}
	revision, err := marshalRevision(fork.Revision)
	if err != nil {
		return err
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin fork transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO pipeline_items
			 (id, owner_id, parent_id, script_id, source_ref, content_type, status,
			  current_stage, retry_count, revision_context, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		fork.ID, fork.OwnerID, fork.ParentID, fork.ScriptID, fork.SourceRef,
		fork.ContentType, fork.Status, fork.CurrentStage, fork.RetryCount,
		revision, fork.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert fork: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO stage_payloads (item_id, stage, payload)
		 SELECT $1, stage, payload FROM stage_payloads
		 WHERE item_id = $2 AND stage < $3`,
		fork.ID, fork.ParentID, resumeStage,
	)
	if err != nil {
		return fmt.Errorf("failed to copy parent payloads: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE scripts
		 SET revision_count = revision_count + 1, status = 'processing', updated_at = NOW()
		 WHERE id = $1`, fork.ScriptID)
	if err != nil {
		return fmt.Errorf("failed to update script for fork: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit fork: %w", err)
	}
	return nil
}

func marshalRevision(revision *types.RevisionContext) ([]byte, error) {
	if revision == nil {
		return nil, nil
	}
	raw, err := json.Marshal(revision)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal revision context: %w", err)
	}
	return raw, nil
}
