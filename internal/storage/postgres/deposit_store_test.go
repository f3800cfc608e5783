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

func TestDepositStore_UpsertMerge(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := pgstore.NewDepositStore(pool)
	ctx := context.Background()

	d := &domain.TreasureDeposit{
		Signature: "SIGabc",
		Wallet:    "WALLET1",
		Amount:    500,
		TokenMint: "MINTxyz",
	}
	d.Slot = 1000
	require.NoError(t, store.Upsert(ctx, d))

	got, err := store.Get(ctx, "SIGabc")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, got.Status)
	assert.Equal(t, uint64(500), got.Amount)
	assert.False(t, got.CreatedAt.IsZero())

	// Move to a terminal state, then re-deliver the same signature.
	require.NoError(t, store.UpdateStatus(ctx, "SIGabc", domain.StatusClaimed))

	redelivery := &domain.TreasureDeposit{Signature: "SIGabc", Amount: 500}
	redelivery.Fee = 5000
	require.NoError(t, store.Upsert(ctx, redelivery))

	got, err = store.Get(ctx, "SIGabc")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClaimed, got.Status, "upsert must not overwrite status")
	assert.Equal(t, "WALLET1", got.Wallet, "zero incoming field must not clear stored value")
	assert.Equal(t, uint64(5000), got.Fee, "non-zero incoming field must merge")

	all, err := store.Query(ctx, storage.DepositFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1, "re-delivery must not create a second row")
}

func TestDepositStore_UpdateStatusTransitions(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := pgstore.NewDepositStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, &domain.TreasureDeposit{Signature: "SIGabc", Wallet: "WALLET1"}))

	require.NoError(t, store.UpdateStatus(ctx, "SIGabc", domain.StatusClaimed))
	assert.NoError(t, store.UpdateStatus(ctx, "SIGabc", domain.StatusClaimed), "idempotent repeat")
	assert.ErrorIs(t, store.UpdateStatus(ctx, "SIGabc", domain.StatusActive), storage.ErrInvalidTransition)
	assert.ErrorIs(t, store.UpdateStatus(ctx, "SIGabc", domain.StatusExpired), storage.ErrInvalidTransition)
	assert.ErrorIs(t, store.UpdateStatus(ctx, "SIGabc", domain.StatusFound), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.UpdateStatus(ctx, "SIGmissing", domain.StatusClaimed), storage.ErrNotFound)
}

func TestDepositStore_QueryFilters(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := pgstore.NewDepositStore(pool)
	ctx := context.Background()

	seed := []*domain.TreasureDeposit{
		{Signature: "SIG1", Wallet: "WALLET1", Amount: 100},
		{Signature: "SIG2", Wallet: "WALLET1", Amount: 200},
		{Signature: "SIG3", Wallet: "WALLET2", Amount: 300},
	}
	for _, d := range seed {
		require.NoError(t, store.Upsert(ctx, d))
	}
	require.NoError(t, store.UpdateStatus(ctx, "SIG2", domain.StatusExpired))

	byWallet, err := store.Query(ctx, storage.DepositFilter{Wallet: "WALLET1"})
	require.NoError(t, err)
	assert.Len(t, byWallet, 2)

	active, err := store.Query(ctx, storage.DepositFilter{Status: domain.StatusActive})
	require.NoError(t, err)
	assert.Len(t, active, 2)

	limited, err := store.Query(ctx, storage.DepositFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	_, err = store.Get(ctx, "SIGmissing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
