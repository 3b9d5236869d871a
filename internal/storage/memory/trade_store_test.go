package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treasurycontrol/internal/models"
	"treasurycontrol/internal/storage"
)

func sol(v float64) *float64 { return &v }

func TestTradeStore_DuplicateSignature(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	trade := &models.Trade{AssetID: "mint1", Signature: "sig1", Side: models.TradeSideBuy, SolAmount: sol(1)}
	require.NoError(t, store.Insert(ctx, trade))

	dup := &models.Trade{AssetID: "mint1", Signature: "sig1", Side: models.TradeSideBuy, SolAmount: sol(2)}
	assert.ErrorIs(t, store.Insert(ctx, dup), storage.ErrDuplicateKey)
}

func TestTradeStore_ExactlyOneDenomination(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	neither := &models.Trade{AssetID: "mint1", Signature: "a", Side: models.TradeSideBuy}
	assert.ErrorIs(t, store.Insert(ctx, neither), storage.ErrInvalidInput)

	both := &models.Trade{AssetID: "mint1", Signature: "b", Side: models.TradeSideBuy, SolAmount: sol(1), TokenAmount: sol(10)}
	assert.ErrorIs(t, store.Insert(ctx, both), storage.ErrInvalidInput)
}

func TestTradeStore_MostRecentQualifying(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()
	base := time.Now()
	cycleID := uint(7)

	trades := []*models.Trade{
		{AssetID: "mint1", Signature: "s1", Side: models.TradeSideBuy, SolAmount: sol(0.5), TraderAddress: "alice", CreatedAt: base},
		{AssetID: "mint1", Signature: "s2", Side: models.TradeSideBuy, SolAmount: sol(0.01), TraderAddress: "bob", CreatedAt: base.Add(time.Second)},
		{AssetID: "mint1", Signature: "s3", Side: models.TradeSideSell, SolAmount: sol(3), TraderAddress: "carol", CreatedAt: base.Add(2 * time.Second)},
		{AssetID: "mint1", Signature: "s4", Side: models.TradeSideBuy, SolAmount: sol(2), IsSystemBuy: true, CycleID: &cycleID, CreatedAt: base.Add(3 * time.Second)},
		{AssetID: "mint1", Signature: "s5", Side: models.TradeSideBuy, SolAmount: sol(1), TraderAddress: "treasury", CreatedAt: base.Add(4 * time.Second)},
		{AssetID: "mint2", Signature: "s6", Side: models.TradeSideBuy, SolAmount: sol(9), TraderAddress: "dave", CreatedAt: base.Add(5 * time.Second)},
	}
	for _, tr := range trades {
		require.NoError(t, store.Insert(ctx, tr))
	}

	winner, err := store.MostRecentQualifying(ctx, "mint1", 0.1, []string{"treasury"})
	require.NoError(t, err)
	assert.Equal(t, "alice", winner.TraderAddress)

	winner, err = store.MostRecentQualifying(ctx, "mint1", 0.1, nil)
	require.NoError(t, err)
	assert.Equal(t, "treasury", winner.TraderAddress)

	_, err = store.MostRecentQualifying(ctx, "mint1", 5, nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	count, total, err := store.SumSystemBuys(ctx, "mint1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.InDelta(t, 2.0, total, 1e-9)

	linked, err := store.ListByCycle(ctx, cycleID)
	require.NoError(t, err)
	require.Len(t, linked, 1)
	assert.Equal(t, "s4", linked[0].Signature)

	recent, err := store.ListRecent(ctx, "mint1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "s5", recent[0].Signature)
}
