package listener

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treasurycontrol/internal/models"
	"treasurycontrol/internal/storage"
	"treasurycontrol/internal/storage/memory"
)

const testAsset = "Mint1111111111111111111111111111111111111111"

// fixedRandom always draws v, capped to the range.
type fixedRandom struct{ v int64 }

func (r fixedRandom) Int64N(n int64) int64 {
	if r.v >= n {
		return n - 1
	}
	return r.v
}

func newTestListener(t *testing.T, rnd Random) (*Listener, storage.Stores, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	stores := memory.NewStores()
	l, err := New(Config{
		AssetID:       testAsset,
		ThresholdMin:  2,
		ThresholdMax:  4,
		MinTradeSOL:   0.1,
		SystemWallets: []string{"treasury", "reward"},
	}, stores.Listener, stores.Trades, logrus.NewEntry(logger), WithRandom(rnd))
	require.NoError(t, err)
	return l, stores, hook
}

func TestNew_Validation(t *testing.T) {
	stores := memory.NewStores()
	_, err := New(Config{ThresholdMin: 1, ThresholdMax: 2}, stores.Listener, stores.Trades, nil)
	assert.Error(t, err)
	_, err = New(Config{AssetID: testAsset, ThresholdMin: 0, ThresholdMax: 2}, stores.Listener, stores.Trades, nil)
	assert.Error(t, err)
	_, err = New(Config{AssetID: testAsset, ThresholdMin: 5, ThresholdMax: 2}, stores.Listener, stores.Trades, nil)
	assert.Error(t, err)
}

func TestDrawThreshold_Inclusive(t *testing.T) {
	low, _, _ := newTestListener(t, fixedRandom{v: 0})
	high, _, _ := newTestListener(t, fixedRandom{v: 100})
	assert.Equal(t, int64(2), low.DrawThreshold())
	assert.Equal(t, int64(4), high.DrawThreshold())

	uniform, _, _ := newTestListener(t, globalRandom{})
	for i := 0; i < 200; i++ {
		v := uniform.DrawThreshold()
		assert.GreaterOrEqual(t, v, int64(2))
		assert.LessOrEqual(t, v, int64(4))
	}
}

func TestObserve_CountsOnlyQualifyingBuys(t *testing.T) {
	l, stores, _ := newTestListener(t, fixedRandom{v: 0})
	ctx := context.Background()

	obs, err := l.Observe(ctx, ObservedTrade{Signature: "sig-1", Trader: "alice", Side: models.TradeSideBuy, SolAmount: 0.5})
	require.NoError(t, err)
	assert.True(t, obs.Qualified)
	assert.Equal(t, int64(1), obs.State.CurrentCount)
	assert.Equal(t, int64(2), obs.State.CurrentThreshold)

	obs, err = l.Observe(ctx, ObservedTrade{Signature: "sig-2", Trader: "bob", Side: models.TradeSideBuy, SolAmount: 0.05})
	require.NoError(t, err)
	assert.False(t, obs.Qualified)

	obs, err = l.Observe(ctx, ObservedTrade{Signature: "sig-3", Trader: "treasury", Side: models.TradeSideBuy, SolAmount: 1})
	require.NoError(t, err)
	assert.True(t, obs.System)
	assert.False(t, obs.Qualified)

	obs, err = l.Observe(ctx, ObservedTrade{Signature: "sig-4", Trader: "carol", Side: models.TradeSideSell, SolAmount: 2})
	require.NoError(t, err)
	assert.False(t, obs.Qualified)
	assert.Equal(t, int64(1), obs.State.CurrentCount)
	assert.Equal(t, int64(4), obs.State.TotalTradesObserved)

	trades, err := stores.Trades.ListRecent(ctx, testAsset, 10)
	require.NoError(t, err)
	assert.Len(t, trades, 4)

	var sawSystem bool
	for _, tr := range trades {
		if tr.Signature == "sig-3" {
			sawSystem = tr.IsSystemBuy
		}
	}
	assert.True(t, sawSystem)
}

func TestObserve_DuplicateSignatureIsIgnored(t *testing.T) {
	l, _, _ := newTestListener(t, fixedRandom{v: 0})
	ctx := context.Background()
	trade := ObservedTrade{Signature: "sig-1", Trader: "alice", SolAmount: 0.5}

	_, err := l.Observe(ctx, trade)
	require.NoError(t, err)
	obs, err := l.Observe(ctx, trade)
	require.NoError(t, err)
	assert.True(t, obs.Duplicate)

	st, err := l.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.CurrentCount)
	assert.Equal(t, int64(1), st.TotalTradesObserved)
}

func TestObserve_OtherAssetAndMissingSignature(t *testing.T) {
	l, _, _ := newTestListener(t, fixedRandom{v: 0})
	ctx := context.Background()

	obs, err := l.Observe(ctx, ObservedTrade{AssetID: "other", Signature: "sig-1", SolAmount: 1})
	require.NoError(t, err)
	assert.True(t, obs.Ignored)

	_, err = l.Observe(ctx, ObservedTrade{SolAmount: 1})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestObserve_LogsThresholdMet(t *testing.T) {
	l, _, hook := newTestListener(t, fixedRandom{v: 0})
	ctx := context.Background()

	for _, sig := range []string{"a", "b"} {
		_, err := l.Observe(ctx, ObservedTrade{Signature: sig, Trader: "alice", SolAmount: 0.2})
		require.NoError(t, err)
	}

	last := hook.LastEntry()
	require.NotNil(t, last)
	assert.Equal(t, logrus.InfoLevel, last.Level)
	assert.Equal(t, "reward threshold met", last.Message)
}

func TestReset_RedrawsAndRecordsWinner(t *testing.T) {
	l, _, _ := newTestListener(t, fixedRandom{v: 1})
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	l.now = func() time.Time { return now }

	_, err := l.Init(ctx)
	require.NoError(t, err)
	_, err = l.Observe(ctx, ObservedTrade{Signature: "a", Trader: "alice", SolAmount: 0.2})
	require.NoError(t, err)

	prev, err := l.State(ctx)
	require.NoError(t, err)
	threshold, err := l.Reset(ctx, "alice", prev.CurrentCount)
	require.NoError(t, err)
	assert.Equal(t, int64(3), threshold)

	st, err := l.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.CurrentCount)
	assert.Equal(t, int64(3), st.CurrentThreshold)
	assert.Equal(t, "alice", st.LastWinnerAddress)
	require.NotNil(t, st.LastWinnerAt)
	assert.True(t, st.LastWinnerAt.Equal(now))

	require.NoError(t, l.Restore(ctx, prev))
	st, err = l.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, prev.CurrentCount, st.CurrentCount)
	assert.Equal(t, prev.CurrentThreshold, st.CurrentThreshold)
	assert.Empty(t, st.LastWinnerAddress)
	assert.Nil(t, st.LastWinnerAt)
}
