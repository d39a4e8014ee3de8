package credentials

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memSource stores sealed blobs in memory.
type memSource struct {
	blobs map[string][]byte
}

func newMemSource() *memSource {
	return &memSource{blobs: make(map[string][]byte)}
}

func (m *memSource) GetSealedCredential(_ context.Context, ownerID uuid.UUID, provider string) ([]byte, error) {
	return m.blobs[ownerID.String()+"/"+provider], nil
}

func (m *memSource) PutSealedCredential(_ context.Context, ownerID uuid.UUID, provider string, sealed []byte) error {
	m.blobs[ownerID.String()+"/"+provider] = sealed
	return nil
}

func testKey() []byte {
	return bytes.Repeat([]byte{0x42}, 32)
}

func TestSealer_RoundTrip(t *testing.T) {
	sealer, err := NewSealer(testKey())
	require.NoError(t, err)

	sealed, err := sealer.Seal([]byte("gemini-api-key-123"))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "gemini-api-key-123")

	opened, err := sealer.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "gemini-api-key-123", string(opened))
}

func TestSealer_RejectsBadKeySize(t *testing.T) {
	_, err := NewSealer([]byte("short"))
	assert.Error(t, err)
}

func TestSealer_RejectsTampering(t *testing.T) {
	sealer, err := NewSealer(testKey())
	require.NoError(t, err)

	sealed, err := sealer.Seal([]byte("secret"))
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xff

	_, err = sealer.Open(sealed)
	assert.Error(t, err)
}

func TestStore_PutGet(t *testing.T) {
	sealer, err := NewSealer(testKey())
	require.NoError(t, err)
	store := NewStore(newMemSource(), sealer)
	owner := uuid.New()

	require.NoError(t, store.Put(context.Background(), owner, "gemini", "sk-123"))

	secret, err := store.Get(context.Background(), owner, "gemini")
	require.NoError(t, err)
	assert.Equal(t, "sk-123", secret)
}

func TestStore_Missing(t *testing.T) {
	sealer, err := NewSealer(testKey())
	require.NoError(t, err)
	store := NewStore(newMemSource(), sealer)

	_, err = store.Get(context.Background(), uuid.New(), "gemini")

	var notFound *NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "gemini", notFound.Provider)
}
