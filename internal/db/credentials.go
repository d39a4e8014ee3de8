package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// GetSealedCredential returns the sealed blob for an owner/provider pair, or
// nil when none is stored.
func (db *DB) GetSealedCredential(ctx context.Context, ownerID uuid.UUID, provider string) ([]byte, error) {
	var sealed []byte
	err := db.pool.QueryRow(ctx,
		`SELECT sealed FROM owner_credentials WHERE owner_id = $1 AND provider = $2`,
		ownerID, provider,
	).Scan(&sealed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get %s credential: %w", provider, err)
	}
	return sealed, nil
}

// PutSealedCredential upserts the sealed blob for an owner/provider pair.
func (db *DB) PutSealedCredential(ctx context.Context, ownerID uuid.UUID, provider string, sealed []byte) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO owner_credentials (owner_id, provider, sealed)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (owner_id, provider) DO UPDATE SET sealed = $3, updated_at = NOW()`,
		ownerID, provider, sealed,
	)
	if err != nil {
		return fmt.Errorf("failed to store %s credential: %w", provider, err)
	}
	return nil
}
