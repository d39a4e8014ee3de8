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

// CreateScript inserts a delivered script.
func (db *DB) CreateScript(ctx context.Context, script *types.Script) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO scripts (id, owner_id, title, content_type, source_ref, status, revision_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		script.ID, script.OwnerID, script.Title, script.ContentType, script.SourceRef,
		script.Status, script.RevisionCount, script.CreatedAt, script.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create script: %w", err)
	}
	return nil
}

const scriptSelect = `SELECT id, owner_id, title, content_type, source_ref, status, revision_count,
	reason_category, reason_text, created_at, updated_at
	FROM scripts`

// GetScript loads a script by id. Returns nil when it does not exist.
func (db *DB) GetScript(ctx context.Context, id uuid.UUID) (*types.Script, error) {
	script, err := scanScript(db.pool.QueryRow(ctx, scriptSelect+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get script: %w", err)
	}
	return script, nil
}

// ListScriptsByOwner returns the owner's scripts, oldest first.
func (db *DB) ListScriptsByOwner(ctx context.Context, ownerID uuid.UUID) ([]*types.Script, error) {
	rows, err := db.pool.Query(ctx, scriptSelect+` WHERE owner_id = $1 ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list scripts: %w", err)
	}
	defer rows.Close()

	var scripts []*types.Script
	for rows.Next() {
		script, err := scanScript(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan script: %w", err)
		}
		scripts = append(scripts, script)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read scripts: %w", err)
	}
	return scripts, nil
}

func scanScript(row pgx.Row) (*types.Script, error) {
	var script types.Script
	err := row.Scan(
		&script.ID, &script.OwnerID, &script.Title, &script.ContentType, &script.SourceRef,
		&script.Status, &script.RevisionCount, &script.ReasonCategory, &script.ReasonText,
		&script.CreatedAt, &script.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &script, nil
}

// SetScriptStatus updates a script's review state.
func (db *DB) SetScriptStatus(ctx context.Context, id uuid.UUID, status types.ScriptStatus) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE scripts SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("failed to set script status: %w", err)
	}
	return nil
}

// RecordRejection sets the script to rejected and stores the owner's reason.
func (db *DB) RecordRejection(ctx context.Context, id uuid.UUID, reasonCategory, reasonText string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE scripts
		 SET status = 'rejected', reason_category = $1, reason_text = $2, updated_at = NOW()
		 WHERE id = $3`, reasonCategory, reasonText, id)
	if err != nil {
		return fmt.Errorf("failed to record rejection: %w", err)
	}
	return nil
}

// AppendVersion adds the next version as current in one transaction: the
// previous current flag is cleared, the version number is assigned from the
// existing maximum, and the partial unique index keeps exactly one current
// version per script.
func (db *DB) AppendVersion(ctx context.Context, version *types.ScriptVersion) error {
	draft, err := json.Marshal(version.Draft)
	if err != nil {
		return fmt.Errorf("failed to marshal draft: %w", err)
	}
	synthesis, err := json.Marshal(version.Synthesis)
	if err != nil {
		return fmt.Errorf("failed to marshal synthesis: %w", err)
	}
	gate, err := json.Marshal(version.Gate)
	if err != nil {
		return fmt.Errorf("failed to marshal gate result: %w", err)
	}
	targets, err := json.Marshal(version.TargetSceneIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal target scene ids: %w", err)
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin version transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE script_versions SET is_current = FALSE WHERE script_id = $1 AND is_current`,
		version.ScriptID); err != nil {
		return fmt.Errorf("failed to clear current version: %w", err)
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO script_versions (id, script_id, item_id, version, draft, synthesis, gate, feedback, target_scene_ids, is_current, created_at)
		 SELECT $1, $2, $3, COALESCE(MAX(version), 0) + 1, $4, $5, $6, $7, $8, TRUE, $9
		 FROM script_versions WHERE script_id = $2
		 RETURNING version`,
		version.ID, version.ScriptID, version.ItemID, draft, synthesis, gate,
		version.Feedback, targets, version.CreatedAt,
	).Scan(&version.Version)
	if err != nil {
		return fmt.Errorf("failed to insert version: %w", err)
	}
	version.IsCurrent = true

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit version: %w", err)
	}
	return nil
}

const versionSelect = `SELECT id, script_id, item_id, version, draft, synthesis, gate, feedback, target_scene_ids, is_current, created_at
	FROM script_versions`

// GetCurrentVersion loads the script's current version. Returns nil when the
// script has no versions.
func (db *DB) GetCurrentVersion(ctx context.Context, scriptID uuid.UUID) (*types.ScriptVersion, error) {
	version, err := scanVersion(db.pool.QueryRow(ctx,
		versionSelect+` WHERE script_id = $1 AND is_current`, scriptID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}

// ListVersions returns a script's versions in ascending version order.
func (db *DB) ListVersions(ctx context.Context, scriptID uuid.UUID) ([]*types.ScriptVersion, error) {
	rows, err := db.pool.Query(ctx,
		versionSelect+` WHERE script_id = $1 ORDER BY version`, scriptID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var versions []*types.ScriptVersion
	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read versions: %w", err)
	}
	return versions, nil
}

func scanVersion(row pgx.Row) (*types.ScriptVersion, error) {
	var version types.ScriptVersion
	var draft, synthesis, gate, targets []byte
	err := row.Scan(
		&version.ID, &version.ScriptID, &version.ItemID, &version.Version,
		&draft, &synthesis, &gate, &version.Feedback, &targets, &version.IsCurrent, &version.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(draft, &version.Draft); err != nil {
		return nil, fmt.Errorf("failed to unmarshal draft: %w", err)
	}
	if len(targets) > 0 {
		if err := json.Unmarshal(targets, &version.TargetSceneIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal target scene ids: %w", err)
		}
	}
	if err := json.Unmarshal(synthesis, &version.Synthesis); err != nil {
		return nil, fmt.Errorf("failed to unmarshal synthesis: %w", err)
	}
	if err := json.Unmarshal(gate, &version.Gate); err != nil {
		return nil, fmt.Errorf("failed to unmarshal gate result: %w", err)
	}
	return &version, nil
}
