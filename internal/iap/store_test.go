package iap

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iap-coordinator/internal/repository"
)

func TestPurchaseStore_LoadWithoutPriorData(t *testing.T) {
	s := NewPurchaseStore(newMemBackend(), "")

	ids, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Equal(t, DefaultLocation, s.Location())
}

func TestPurchaseStore_RoundTrip(t *testing.T) {
	backend := newMemBackend()
	ctx := context.Background()

	s := NewPurchaseStore(backend, DefaultLocation)
	require.NoError(t, s.MarkPurchased(ctx, "com.app.pro"))
	require.NoError(t, s.MarkPurchased(ctx, "com.app.coins"))

	reloaded := NewPurchaseStore(backend, DefaultLocation)
	ids, err := reloaded.Load(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"com.app.pro", "com.app.coins"}, ids)
	assert.True(t, reloaded.IsPurchased("com.app.pro"))
	assert.True(t, reloaded.IsPurchased("com.app.coins"))
}

func TestPurchaseStore_RoundTripFileBackend(t *testing.T) {
	backend, err := repository.NewFileBackend(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	s := NewPurchaseStore(backend, DefaultLocation)
	require.NoError(t, s.MarkPurchased(ctx, "com.app.pro"))

	reloaded := NewPurchaseStore(backend, DefaultLocation)
	ids, err := reloaded.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"com.app.pro"}, ids)
}

func TestPurchaseStore_MarkPurchasedIsIdempotent(t *testing.T) {
	backend := newMemBackend()
	ctx := context.Background()

	s := NewPurchaseStore(backend, DefaultLocation)
	require.NoError(t, s.MarkPurchased(ctx, "p1"))
	require.NoError(t, s.MarkPurchased(ctx, "p1"))
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 2, backend.writeCount())

	reloaded := NewPurchaseStore(backend, DefaultLocation)
	ids, err := reloaded.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, ids)
}

func TestPurchaseStore_RevokePersists(t *testing.T) {
	backend := newMemBackend()
	ctx := context.Background()

	s := NewPurchaseStore(backend, DefaultLocation)
	require.NoError(t, s.MarkPurchased(ctx, "A"))
	require.NoError(t, s.MarkPurchased(ctx, "B"))
	writes := backend.writeCount()

	require.NoError(t, s.Revoke(ctx, []string{"A"}))
	assert.Equal(t, writes+1, backend.writeCount())
	assert.Equal(t, []string{"B"}, s.Snapshot())

	reloaded := NewPurchaseStore(backend, DefaultLocation)
	ids, err := reloaded.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, ids)
}

func TestPurchaseStore_MalformedEntries(t *testing.T) {
	backend := newMemBackend()
	valid := "com.app.10"
	require.Len(t, valid, 10)
	backend.data[DefaultLocation] = []byte(`["` + valid + `","` + strings.Repeat("a", 200) + `"]`)

	s := NewPurchaseStore(backend, DefaultLocation)
	ids, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{valid}, ids)
}

func TestPurchaseStore_CorruptRecordStartsEmpty(t *testing.T) {
	backend := newMemBackend()
	backend.data[DefaultLocation] = []byte("not json at all")

	s := NewPurchaseStore(backend, DefaultLocation)
	ids, err := s.Load(context.Background())
	assert.ErrorIs(t, err, ErrLoadCorrupted)
	assert.Empty(t, ids)
	assert.Equal(t, 0, s.Len())
}

func TestPurchaseStore_PersistFailureKeepsMemoryState(t *testing.T) {
	backend := newMemBackend()
	backend.writeErr = errors.New("disk full")

	s := NewPurchaseStore(backend, DefaultLocation)
	err := s.MarkPurchased(context.Background(), "p1")

	assert.ErrorIs(t, err, ErrPersistFailed)
	assert.True(t, s.IsPurchased("p1"))
}
