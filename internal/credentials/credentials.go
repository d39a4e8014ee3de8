// Package credentials provides read access to per-owner provider secrets,
// sealed at rest. The pipeline fetches a credential once per item run.
package credentials

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// NotFoundError indicates no credential exists for the owner/provider pair.
type NotFoundError struct {
	OwnerID  uuid.UUID
	Provider string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no %s credential for owner %s", e.Provider, e.OwnerID)
}

// Source supplies sealed credential material. Implemented by the database
// layer.
type Source interface {
	GetSealedCredential(ctx context.Context, ownerID uuid.UUID, provider string) ([]byte, error)
	PutSealedCredential(ctx context.Context, ownerID uuid.UUID, provider string, sealed []byte) error
}

// Store resolves plaintext credentials for pipeline runs.
type Store struct {
	source Source
	sealer *Sealer
}

// NewStore creates a credential store over the given source and sealing key.
func NewStore(source Source, sealer *Sealer) *Store {
	return &Store{source: source, sealer: sealer}
}

// Get returns the plaintext secret for the owner/provider pair.
func (s *Store) Get(ctx context.Context, ownerID uuid.UUID, provider string) (string, error) {
	sealed, err := s.source.GetSealedCredential(ctx, ownerID, provider)
	if err != nil {
		return "", err
	}
	if sealed == nil {
		return "", &NotFoundError{OwnerID: ownerID, Provider: provider}
	}

	plaintext, err := s.sealer.Open(sealed)
	if err != nil {
		return "", fmt.Errorf("failed to unseal %s credential: %w", provider, err)
	}
	return string(plaintext), nil
}

// Put seals and stores a secret for the owner/provider pair.
func (s *Store) Put(ctx context.Context, ownerID uuid.UUID, provider, secret string) error {
	sealed, err := s.sealer.Seal([]byte(secret))
	if err != nil {
		return fmt.Errorf("failed to seal %s credential: %w", provider, err)
	}
	return s.source.PutSealedCredential(ctx, ownerID, provider, sealed)
}
