package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// IncrementUsage bumps the owner's daily run count and returns the new count.
func (db *DB) IncrementUsage(ctx context.Context, ownerID uuid.UUID) (int, error) {
	var count int
	err := db.pool.QueryRow(ctx,
		`INSERT INTO owner_usage (owner_id, runs_today)
		 VALUES ($1, 1)
		 ON CONFLICT (owner_id) DO UPDATE
		 SET runs_today = owner_usage.runs_today + 1, updated_at = NOW()
		 RETURNING runs_today`,
		ownerID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to increment usage: %w", err)
	}
	return count, nil
}

// ResetAllUsage zeroes every owner's daily count and returns how many rows
// changed.
func (db *DB) ResetAllUsage(ctx context.Context) (int64, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE owner_usage SET runs_today = 0, updated_at = NOW() WHERE runs_today > 0`)
	if err != nil {
		return 0, fmt.Errorf("failed to reset usage: %w", err)
	}
	return tag.RowsAffected(), nil
}
