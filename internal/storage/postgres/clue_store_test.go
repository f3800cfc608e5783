package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treasure-monitor/internal/domain"
	"treasure-monitor/internal/storage"
	pgstore "treasure-monitor/internal/storage/postgres"
)

func TestClueStore_Lifecycle(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := pgstore.NewClueStore(pool)
	ctx := context.Background()

	c := &domain.ClueRequest{
		Signature:  "SIGc1",
		Wallet:     "WALLET1",
		ClueTarget: "quadrant_hint",
		AmountPaid: 50,
	}
	require.NoError(t, store.Upsert(ctx, c))

	got, err := store.Get(ctx, "SIGc1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, got.Status)
	assert.Equal(t, "quadrant_hint", got.ClueTarget)
	assert.Equal(t, uint64(50), got.AmountPaid)

	require.NoError(t, store.UpdateStatus(ctx, "SIGc1", domain.StatusFulfilled))
	assert.ErrorIs(t, store.UpdateStatus(ctx, "SIGc1", domain.StatusExpired), storage.ErrInvalidTransition)

	fulfilled, err := store.Query(ctx, storage.ClueFilter{Status: domain.StatusFulfilled})
	require.NoError(t, err)
	require.Len(t, fulfilled, 1)
	assert.Equal(t, "SIGc1", fulfilled[0].Signature)
}
