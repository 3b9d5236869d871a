package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treasurycontrol/internal/listener"
	"treasurycontrol/internal/models"
	"treasurycontrol/internal/storage"
	"treasurycontrol/internal/storage/memory"
	"treasurycontrol/internal/venue"
	"treasurycontrol/pkg/solana"
)

const eventsQueue = "treasury_cycle_events"

type harness struct {
	orch           *Orchestrator
	ledger         *fakeLedger
	stores         storage.Stores
	listener       *listener.Listener
	events         *fakePublisher
	recorder       *fakeRecorder
	hook           *test.Hook
	ctx            context.Context
	prices         *fakePrices
	thresholdRange [2]int64
}

func testConfig() Config {
	return Config{
		AssetID:             testAsset,
		TreasuryAddress:     treasuryAddr,
		RewardAddress:       rewardAddr,
		PlatformAddress:     platformAddr,
		TxFeeBufferSOL:      0.005,
		PlatformFeeBps:      1200,
		RewardFeeBps:        1000,
		MinBuySOL:           0.01,
		Retry:               venue.RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond},
		LiquidityEnabled:    true,
		LiquidityMinSOL:     0.01,
		RewardEnabled:       true,
		RewardFeeReserveSOL: 0.001,
		RewardMinTradeSOL:   0.1,
		EventsQueue:         eventsQueue,
	}
}

type harnessSetup struct {
	wrapStores    func(storage.Stores) storage.Stores
	wrapThreshold func(*listener.Listener) ThresholdTracker
}

type harnessOption func(*harnessSetup)

// withStores hands the orchestrator wrapped stores. The harness keeps the unwrapped ones.
func withStores(wrap func(storage.Stores) storage.Stores) harnessOption {
	return func(s *harnessSetup) { s.wrapStores = wrap }
}

func withThreshold(wrap func(*listener.Listener) ThresholdTracker) harnessOption {
	return func(s *harnessSetup) { s.wrapThreshold = wrap }
}

func newHarness(t *testing.T, mutate func(*Config, *fakeLedger), opts ...harnessOption) *harness {
	t.Helper()

	var setup harnessSetup
	for _, opt := range opts {
		opt(&setup)
	}

	cfg := testConfig()
	ledger := newFakeLedger()
	if mutate != nil {
		mutate(&cfg, ledger)
	}

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	log := logrus.NewEntry(logger)

	stores := memory.NewStores()
	lst, err := listener.New(listener.Config{
		AssetID:       testAsset,
		ThresholdMin:  2,
		ThresholdMax:  5,
		MinTradeSOL:   cfg.RewardMinTradeSOL,
		SystemWallets: []string{treasuryAddr, rewardAddr, platformAddr},
	}, stores.Listener, stores.Trades, log, listener.WithRandom(rand.New(rand.NewPCG(1, 2))))
	require.NoError(t, err)

	orchStores := stores
	if setup.wrapStores != nil {
		orchStores = setup.wrapStores(stores)
	}
	var threshold ThresholdTracker = lst
	if setup.wrapThreshold != nil {
		threshold = setup.wrapThreshold(lst)
	}

	prices := &fakePrices{price: 0.000042}
	events := &fakePublisher{}
	recorder := &fakeRecorder{}
	orch, err := New(cfg, Deps{
		Stores:    orchStores,
		Ledger:    ledger,
		Buyer:     venue.NewRouter(ledger, orchStores.Venues, orchStores.Trades, 0.001, log),
		Prices:    prices,
		Threshold: threshold,
		Events:    events,
		Recorder:  recorder,
		Logger:    log,
	})
	require.NoError(t, err)

	return &harness{
		orch:           orch,
		ledger:         ledger,
		stores:         stores,
		listener:       lst,
		events:         events,
		recorder:       recorder,
		hook:           hook,
		ctx:            context.Background(),
		prices:         prices,
		thresholdRange: [2]int64{2, 5},
	}
}

func (h *harness) cycle(t *testing.T, id uint) *models.Cycle {
	t.Helper()
	c, err := h.stores.Cycles.GetByID(h.ctx, id)
	require.NoError(t, err)
	return c
}

func (h *harness) metrics(t *testing.T) *models.Metrics {
	t.Helper()
	m, err := h.stores.Metrics.Get(h.ctx)
	require.NoError(t, err)
	return m
}

func (h *harness) graduate(t *testing.T) {
	t.Helper()
	require.NoError(t, h.stores.Venues.SetVenue(h.ctx, testAsset, models.VenueAMM, true, time.Now()))
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{RewardEnabled: true}, Deps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ledger is required")
	assert.Contains(t, err.Error(), "buyer is required")
	assert.Contains(t, err.Error(), "all stores are required")
	assert.Contains(t, err.Error(), "threshold tracker is required")
	assert.Contains(t, err.Error(), "treasury address is required")
}

func TestExecuteCycle_ExampleSplit(t *testing.T) {
	h := newHarness(t, nil)

	res, err := h.orch.ExecuteCycle(h.ctx, "")
	require.NoError(t, err)
	assert.Equal(t, models.CycleStatusCompleted, res.Status)

	assert.InDelta(t, 1.0, res.Split.Balance, 1e-9)
	assert.InDelta(t, 0.995, res.Split.Available, 1e-9)
	assert.InDelta(t, 0.1194, res.Split.PlatformFee, 1e-9)
	assert.InDelta(t, 0.0995, res.Split.RewardFee, 1e-9)
	assert.InDelta(t, 0.776, res.Split.Buy, 1e-9)
	assert.Zero(t, res.Split.Liquidity)
	assert.Nil(t, res.Liquidity)
	assert.Empty(t, res.StepErrors)

	c := h.cycle(t, res.CycleID)
	assert.Equal(t, models.CycleStatusCompleted, c.Status)
	require.NotNil(t, c.ExecutedAt)
	assert.InDelta(t, 1.0, c.FeeCollectionAmount, 1e-9)
	assert.InDelta(t, 0.776, c.BuyAmount, 1e-9)
	assert.Equal(t, models.VenueBondingCurve, c.BuyVenue)
	assert.NotEmpty(t, c.FeeCollectionSignature)
	assert.NotEmpty(t, c.BuySignature)
	assert.NotEmpty(t, c.PlatformFeeSignature)
	assert.NotEmpty(t, c.RewardFeeSignature)
	assert.NotEmpty(t, c.TokenSweepSignature)
	assert.InDelta(t, 1000, c.TokensBought, 1e-9)

	trades, err := h.stores.Trades.ListByCycle(h.ctx, res.CycleID)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.True(t, trades[0].IsSystemBuy)
	assert.Equal(t, c.BuySignature, trades[0].Signature)
	require.NotNil(t, trades[0].SolAmount)
	assert.InDelta(t, 0.776, *trades[0].SolAmount, 1e-9)

	assert.InDelta(t, 0.1194, h.ledger.balances[platformAddr], 1e-9)
	assert.InDelta(t, 0.0995, h.ledger.balances[rewardAddr], 1e-9)
	assert.InDelta(t, 1000, h.ledger.tokens[platformAddr], 1e-9)
	assert.Zero(t, h.ledger.tokens[treasuryAddr])

	m := h.metrics(t)
	assert.InDelta(t, 1.0, m.TotalFeesCollected, 1e-9)
	assert.Equal(t, int64(1), m.TotalCycles)
	assert.Equal(t, int64(1), m.TotalTrades)
	assert.InDelta(t, 0.776, m.TotalSolSpent, 1e-9)
	assert.InDelta(t, 1000, m.TotalTokensBought, 1e-9)
	assert.InDelta(t, 0.000042, m.LastPrice, 1e-12)
	assert.NotNil(t, m.LastCycleAt)

	// The listener has not seen any trade yet, so the reward step is a no-op.
	require.NotNil(t, res.Reward)
	assert.True(t, res.Reward.Skipped)
}

func TestExecuteCycle_NoAsset(t *testing.T) {
	h := newHarness(t, func(cfg *Config, _ *fakeLedger) { cfg.AssetID = "" })

	res, err := h.orch.ExecuteCycle(h.ctx, "")
	assert.ErrorIs(t, err, ErrNoAsset)
	assert.Nil(t, res)

	cycles, err := h.stores.Cycles.ListRecent(h.ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, cycles)
	assert.Zero(t, h.ledger.called("collect"))
	assert.Equal(t, int64(0), h.metrics(t).TotalCycles)
}

func TestExecuteCycle_ExplicitAssetOverridesConfig(t *testing.T) {
	h := newHarness(t, func(cfg *Config, _ *fakeLedger) { cfg.AssetID = "" })

	res, err := h.orch.ExecuteCycle(h.ctx, testAsset)
	require.NoError(t, err)
	assert.Equal(t, testAsset, h.cycle(t, res.CycleID).AssetID)
}

func TestExecuteCycle_BalanceFailureSkipsCollection(t *testing.T) {
	h := newHarness(t, func(_ *Config, l *fakeLedger) { l.failBalanceCall = 1 })

	res, err := h.orch.ExecuteCycle(h.ctx, "")
	require.Error(t, err)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepBalance, stepErr.Step)
	assert.Zero(t, h.ledger.called("collect"))

	c := h.cycle(t, res.CycleID)
	assert.Equal(t, models.CycleStatusFailed, c.Status)
	assert.Contains(t, c.ErrorMessage, "rpc unavailable")
	assert.Nil(t, c.ExecutedAt)
}

func TestExecuteCycle_FeeCollectionFailure(t *testing.T) {
	h := newHarness(t, func(_ *Config, l *fakeLedger) { l.collectErr = errors.New("claim rejected") })

	res, err := h.orch.ExecuteCycle(h.ctx, "")
	require.Error(t, err)
	assert.Equal(t, models.CycleStatusFailed, res.Status)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepCollectFees, stepErr.Step)

	trades, err := h.stores.Trades.ListByCycle(h.ctx, res.CycleID)
	require.NoError(t, err)
	assert.Empty(t, trades)
	events, err := h.stores.Liquidity.ListByCycle(h.ctx, res.CycleID)
	require.NoError(t, err)
	assert.Empty(t, events)
	rewards, err := h.stores.Rewards.ListByCycle(h.ctx, res.CycleID)
	require.NoError(t, err)
	assert.Empty(t, rewards)

	m := h.metrics(t)
	assert.Zero(t, m.TotalFeesCollected)
	assert.Zero(t, m.TotalTrades)
	assert.Equal(t, int64(1), m.TotalCycles)

	c := h.cycle(t, res.CycleID)
	assert.Equal(t, models.CycleStatusFailed, c.Status)
	assert.Contains(t, c.ErrorMessage, "claim rejected")
	assert.Zero(t, h.ledger.called("buy"))
}

func TestExecuteCycle_BuyBelowMinimumStillCreditsFees(t *testing.T) {
	h := newHarness(t, func(cfg *Config, l *fakeLedger) {
		l.balances[treasuryAddr] = 0
		l.collectAmount = 0.01
	})

	res, err := h.orch.ExecuteCycle(h.ctx, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBuyBelowMinimum)
	assert.Zero(t, h.ledger.called("buy"))

	c := h.cycle(t, res.CycleID)
	assert.Equal(t, models.CycleStatusFailed, c.Status)
	assert.Contains(t, c.ErrorMessage, ErrBuyBelowMinimum.Error())
	assert.InDelta(t, 0.01, c.FeeCollectionAmount, 1e-9)

	m := h.metrics(t)
	assert.InDelta(t, 0.01, m.TotalFeesCollected, 1e-9)
	assert.Zero(t, m.TotalTrades)
	assert.Zero(t, m.TotalSolSpent)

	// Fees are not distributed when the buy fails.
	assert.Zero(t, h.ledger.called("transfer"))
}

func TestExecuteCycle_AllVenuesFailStillCreditsFees(t *testing.T) {
	h := newHarness(t, func(_ *Config, l *fakeLedger) {
		l.buyErr[models.VenueBondingCurve] = solana.ErrTransactionFailed
		l.buyErr[models.VenueAMM] = solana.ErrTransactionFailed
	})

	res, err := h.orch.ExecuteCycle(h.ctx, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, venue.ErrAllVenuesFailed)

	// Confirmed on-chain failures are not retried: one attempt per venue.
	assert.Equal(t, []string{models.VenueBondingCurve, models.VenueAMM}, h.ledger.buys)

	assert.Equal(t, models.CycleStatusFailed, h.cycle(t, res.CycleID).Status)
	trades, err := h.stores.Trades.ListByCycle(h.ctx, res.CycleID)
	require.NoError(t, err)
	assert.Empty(t, trades)

	m := h.metrics(t)
	assert.InDelta(t, 1.0, m.TotalFeesCollected, 1e-9)
	assert.Zero(t, m.TotalTrades)
}

func TestExecuteCycle_GraduatedFallsBackExactlyOnce(t *testing.T) {
	h := newHarness(t, func(_ *Config, l *fakeLedger) {
		l.buyErr[models.VenueAMM] = solana.ErrTransactionFailed
	})
	h.graduate(t)

	res, err := h.orch.ExecuteCycle(h.ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{models.VenueAMM, models.VenueBondingCurve}, h.ledger.buys)
	assert.Equal(t, models.VenueBondingCurve, res.BuyVenue)
	assert.True(t, res.Graduated)

	// The working venue reclassifies the asset for the next cycle.
	state, err := h.stores.Venues.Get(h.ctx, testAsset)
	require.NoError(t, err)
	assert.False(t, state.Graduated)
	assert.Equal(t, models.VenueBondingCurve, state.LastVenue)
}

func TestExecuteCycle_GraduatedBothVenuesFail(t *testing.T) {
	h := newHarness(t, func(_ *Config, l *fakeLedger) {
		l.buyErr[models.VenueAMM] = solana.ErrTransactionFailed
		l.buyErr[models.VenueBondingCurve] = errors.New("curve closed")
	})
	h.graduate(t)

	_, err := h.orch.ExecuteCycle(h.ctx, "")
	require.Error(t, err)

	var attempts *venue.AttemptsError
	require.ErrorAs(t, err, &attempts)
	require.Len(t, attempts.Attempts, 2)
	assert.Equal(t, models.VenueAMM, attempts.Attempts[0].Venue)
	assert.Equal(t, models.VenueBondingCurve, attempts.Attempts[1].Venue)
	assert.Len(t, h.ledger.buys, 2)
	assert.Zero(t, h.ledger.called("deposit"))
}

func TestExecuteCycle_UnconfirmedBuyIsNotBoughtTwice(t *testing.T) {
	h := newHarness(t, func(_ *Config, l *fakeLedger) {
		l.buyErr[models.VenueBondingCurve] = fmt.Errorf("confirm: %w", solana.ErrUnconfirmed)
	})

	res, err := h.orch.ExecuteCycle(h.ctx, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, venue.ErrBuyUnsettled)
	assert.Equal(t, []string{models.VenueBondingCurve}, h.ledger.buys)

	c := h.cycle(t, res.CycleID)
	assert.Equal(t, models.CycleStatusFailed, c.Status)
	assert.NotEmpty(t, c.BuySignature)
	assert.Equal(t, models.VenueBondingCurve, c.BuyVenue)
	assert.Contains(t, c.ErrorMessage, c.BuySignature)

	trades, err := h.stores.Trades.ListByCycle(h.ctx, res.CycleID)
	require.NoError(t, err)
	assert.Empty(t, trades)
	assert.Zero(t, h.metrics(t).TotalTrades)
	assert.Zero(t, h.ledger.called("transfer"))
}

func TestExecuteCycle_TransientBuyFailuresAreRetried(t *testing.T) {
	h := newHarness(t, func(_ *Config, l *fakeLedger) {
		l.buyFailures = 2
		l.buyFailErr = solana.ErrTransient
	})

	res, err := h.orch.ExecuteCycle(h.ctx, "")
	require.NoError(t, err)
	assert.Equal(t, models.CycleStatusCompleted, res.Status)
	assert.Equal(t, []string{models.VenueBondingCurve, models.VenueAMM, models.VenueBondingCurve}, h.ledger.buys)

	var retried bool
	for _, e := range h.hook.AllEntries() {
		if e.Message == "buy failed, retrying" {
			retried = true
			assert.Equal(t, 1, e.Data["attempt"])
		}
	}
	assert.True(t, retried)
}

func TestExecuteCycle_RetriesAreBounded(t *testing.T) {
	h := newHarness(t, func(_ *Config, l *fakeLedger) {
		l.buyFailures = 100
		l.buyFailErr = solana.ErrTransient
	})

	_, err := h.orch.ExecuteCycle(h.ctx, "")
	require.Error(t, err)
	assert.True(t, solana.IsTransient(err))
	// Three routed attempts of two venues each.
	assert.Len(t, h.ledger.buys, 6)
}

func TestExecuteCycle_DistributionFailuresAreSwallowed(t *testing.T) {
	h := newHarness(t, func(_ *Config, l *fakeLedger) {
		l.transferErr[platformAddr] = errors.New("platform transfer failed")
		l.sweepErr = errors.New("sweep failed")
	})

	res, err := h.orch.ExecuteCycle(h.ctx, "")
	require.NoError(t, err)
	assert.Equal(t, models.CycleStatusCompleted, res.Status)

	require.NotNil(t, res.PlatformFee)
	assert.Equal(t, "platform transfer failed", res.PlatformFee.Error)
	assert.Empty(t, res.PlatformFee.Signature)
	require.NotNil(t, res.RewardFee)
	assert.NotEmpty(t, res.RewardFee.Signature)

	c := h.cycle(t, res.CycleID)
	assert.Equal(t, "platform transfer failed", c.StepErrors[StepPlatformFee])
	assert.Equal(t, "sweep failed", c.StepErrors[StepTokenSweep])
	assert.Empty(t, c.PlatformFeeSignature)
	assert.Empty(t, c.TokenSweepSignature)
	assert.ElementsMatch(t, []string{StepPlatformFee, StepTokenSweep}, h.recorder.failed)
}

func TestExecuteCycle_GraduatedAddsLiquidity(t *testing.T) {
	h := newHarness(t, nil)
	h.graduate(t)

	res, err := h.orch.ExecuteCycle(h.ctx, "")
	require.NoError(t, err)

	assert.InDelta(t, 0.388, res.Split.Buy, 1e-9)
	assert.InDelta(t, 0.388, res.Split.Liquidity, 1e-9)
	assert.InDelta(t, res.Split.Balance, res.Split.PlatformFee+res.Split.RewardFee+res.Split.Buy+res.Split.Liquidity+res.Split.Buffer, 1e-9)

	require.NotNil(t, res.Liquidity)
	assert.False(t, res.Liquidity.Skipped)
	assert.NotEmpty(t, res.Liquidity.Signature)
	assert.NotEmpty(t, res.Liquidity.BurnSignature)

	events, err := h.stores.Liquidity.ListByCycle(h.ctx, res.CycleID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, models.LiquidityStatusCompleted, ev.Status)
	assert.Equal(t, "pool-1", ev.PoolKey)
	assert.InDelta(t, 0.388, ev.SolDeposited, 1e-9)
	assert.InDelta(t, 5, ev.LPTokensBurned, 1e-9)
	assert.NotEmpty(t, ev.BurnSignature)

	// Graduated assets keep their tokens in the treasury.
	assert.Zero(t, h.ledger.called("sweep"))
	c := h.cycle(t, res.CycleID)
	assert.Equal(t, ev.DepositSignature, c.LiquiditySignature)
	assert.InDelta(t, 0.388, c.LiquidityAmount, 1e-9)
}

func TestExecuteCycle_LiquidityFailureIsRecorded(t *testing.T) {
	h := newHarness(t, func(_ *Config, l *fakeLedger) { l.burnErr = errors.New("burn rejected") })
	h.graduate(t)

	res, err := h.orch.ExecuteCycle(h.ctx, "")
	require.NoError(t, err)
	assert.Equal(t, models.CycleStatusCompleted, res.Status)
	require.NotNil(t, res.Liquidity)
	assert.Contains(t, res.Liquidity.Error, "burn rejected")

	events, err := h.stores.Liquidity.ListByCycle(h.ctx, res.CycleID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.LiquidityStatusFailed, events[0].Status)
	assert.Contains(t, events[0].ErrorMessage, "burn rejected")
	assert.NotEmpty(t, events[0].DepositSignature)
	assert.Empty(t, events[0].BurnSignature)

	assert.Contains(t, h.cycle(t, res.CycleID).StepErrors[StepLiquidity], "burn rejected")
}

func TestExecuteCycle_LiquiditySkips(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config, *fakeLedger)
		reason string
	}{
		{"disabled", func(cfg *Config, _ *fakeLedger) { cfg.LiquidityEnabled = false }, "liquidity disabled"},
		{"below minimum", func(cfg *Config, _ *fakeLedger) { cfg.LiquidityMinSOL = 1 }, "below minimum"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, tc.mutate)
			h.graduate(t)

			res, err := h.orch.ExecuteCycle(h.ctx, "")
			require.NoError(t, err)
			require.NotNil(t, res.Liquidity)
			assert.True(t, res.Liquidity.Skipped)
			assert.Contains(t, res.Liquidity.Reason, tc.reason)
			assert.Zero(t, h.ledger.called("deposit"))

			events, err := h.stores.Liquidity.ListByCycle(h.ctx, res.CycleID)
			require.NoError(t, err)
			assert.Empty(t, events)
		})
	}
}

func observe(t *testing.T, h *harness, sig, trader string, sol float64) {
	t.Helper()
	_, err := h.listener.Observe(h.ctx, listener.ObservedTrade{
		Signature: sig,
		Trader:    trader,
		Side:      models.TradeSideBuy,
		SolAmount: sol,
		Timestamp: time.Now(),
	})
	require.NoError(t, err)
}

func TestExecuteCycle_RewardWaitsForThreshold(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.listener.Init(h.ctx)
	require.NoError(t, err)
	observe(t, h, "user-1", "alice", 0.5)

	st, err := h.listener.State(h.ctx)
	require.NoError(t, err)
	require.Less(t, st.CurrentCount, st.CurrentThreshold)

	res, err := h.orch.ExecuteCycle(h.ctx, "")
	require.NoError(t, err)
	require.NotNil(t, res.Reward)
	assert.True(t, res.Reward.Skipped)
	assert.Contains(t, res.Reward.Reason, "threshold not met")

	rewards, err := h.stores.Rewards.ListRecent(h.ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, rewards)
	assert.Zero(t, h.ledger.balances["alice"])
}

func TestExecuteCycle_RewardPaysLastQualifyingTrader(t *testing.T) {
	h := newHarness(t, func(_ *Config, l *fakeLedger) { l.balances[rewardAddr] = 0.5 })
	_, err := h.listener.Init(h.ctx)
	require.NoError(t, err)

	for i, trader := range []string{"alice", "bob", "carol", "dave", "erin"} {
		observe(t, h, "user-"+trader, trader, 0.2+float64(i)*0.1)
	}
	// Too small to qualify, and newer than every qualifying trade.
	observe(t, h, "user-frank", "frank", 0.01)

	res, err := h.orch.ExecuteCycle(h.ctx, "")
	require.NoError(t, err)
	require.NotNil(t, res.Reward)
	require.False(t, res.Reward.Skipped, res.Reward.Reason)

	// The reward wallet received this cycle's reward fee before the payout.
	expected := 0.5 + 0.0995 - 0.001
	assert.Equal(t, "erin", res.Reward.Recipient)
	assert.InDelta(t, expected, res.Reward.Amount, 1e-9)
	assert.InDelta(t, expected, h.ledger.balances["erin"], 1e-9)
	assert.InDelta(t, 0.001, h.ledger.balances[rewardAddr], 1e-9)

	rewards, err := h.stores.Rewards.ListByCycle(h.ctx, res.CycleID)
	require.NoError(t, err)
	require.Len(t, rewards, 1)
	assert.Equal(t, "erin", rewards[0].RecipientAddress)
	assert.Equal(t, models.RewardModeLastQualifyingTrader, rewards[0].SelectionMode)

	st, err := h.listener.State(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.CurrentCount)
	assert.Equal(t, res.Reward.NewThreshold, st.CurrentThreshold)
	assert.GreaterOrEqual(t, st.CurrentThreshold, h.thresholdRange[0])
	assert.LessOrEqual(t, st.CurrentThreshold, h.thresholdRange[1])
	assert.Equal(t, "erin", st.LastWinnerAddress)

	m := h.metrics(t)
	assert.InDelta(t, expected, m.TotalRewardsSent, 1e-9)
	assert.Equal(t, res.Reward.Signature, h.cycle(t, res.CycleID).RewardSignature)
}

func TestExecuteCycle_RewardSkips(t *testing.T) {
	t.Run("reward wallet empty", func(t *testing.T) {
		h := newHarness(t, func(cfg *Config, _ *fakeLedger) { cfg.RewardFeeBps = 0 })
		res, err := h.orch.ExecuteCycle(h.ctx, "")
		require.NoError(t, err)
		assert.True(t, res.Reward.Skipped)
		assert.Equal(t, "reward wallet empty", res.Reward.Reason)
	})

	t.Run("no qualifying trader", func(t *testing.T) {
		h := newHarness(t, nil)
		st, err := h.listener.Init(h.ctx)
		require.NoError(t, err)
		for i := int64(0); i < st.CurrentThreshold; i++ {
			_, err := h.stores.Listener.RecordTrade(h.ctx, true, time.Now())
			require.NoError(t, err)
		}

		res, err := h.orch.ExecuteCycle(h.ctx, "")
		require.NoError(t, err)
		assert.True(t, res.Reward.Skipped)
		assert.Equal(t, "no qualifying trader", res.Reward.Reason)
		assert.Empty(t, res.StepErrors)
	})

	t.Run("balance within fee reserve", func(t *testing.T) {
		h := newHarness(t, func(cfg *Config, _ *fakeLedger) { cfg.RewardFeeReserveSOL = 1 })
		_, err := h.listener.Init(h.ctx)
		require.NoError(t, err)
		for _, trader := range []string{"alice", "bob", "carol", "dave", "erin"} {
			observe(t, h, "user-"+trader, trader, 0.5)
		}

		res, err := h.orch.ExecuteCycle(h.ctx, "")
		require.NoError(t, err)
		assert.True(t, res.Reward.Skipped)
		assert.Contains(t, res.Reward.Reason, "fee reserve")
	})

	t.Run("disabled", func(t *testing.T) {
		h := newHarness(t, func(cfg *Config, _ *fakeLedger) { cfg.RewardEnabled = false })
		res, err := h.orch.ExecuteCycle(h.ctx, "")
		require.NoError(t, err)
		assert.Nil(t, res.Reward)
	})
}

func TestExecuteCycle_RewardTransferFailureKeepsState(t *testing.T) {
	h := newHarness(t, func(_ *Config, l *fakeLedger) { l.transferErr["alice"] = errors.New("reward transfer rejected") })
	_, err := h.listener.Init(h.ctx)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		observe(t, h, "user-"+string(rune('a'+i)), "alice", 0.5)
	}
	before, err := h.listener.State(h.ctx)
	require.NoError(t, err)

	res, err := h.orch.ExecuteCycle(h.ctx, "")
	require.NoError(t, err)
	assert.Equal(t, models.CycleStatusCompleted, res.Status)
	assert.Contains(t, res.Reward.Error, "reward transfer rejected")

	after, err := h.listener.State(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, before.CurrentCount, after.CurrentCount)
	assert.Equal(t, before.CurrentThreshold, after.CurrentThreshold)

	rewards, err := h.stores.Rewards.ListRecent(h.ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, rewards)
}

func TestExecuteCycle_RewardResetFailurePaysNothing(t *testing.T) {
	tracker := &flakyThreshold{failResets: 1}
	h := newHarness(t, nil, withThreshold(func(l *listener.Listener) ThresholdTracker {
		tracker.Listener = l
		return tracker
	}))
	_, err := h.listener.Init(h.ctx)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		observe(t, h, "user-"+string(rune('a'+i)), "alice", 0.5)
	}

	first, err := h.orch.ExecuteCycle(h.ctx, "")
	require.NoError(t, err)
	assert.Equal(t, models.CycleStatusCompleted, first.Status)
	assert.Contains(t, first.Reward.Error, "listener state unavailable")
	assert.Zero(t, h.ledger.balances["alice"])

	second, err := h.orch.ExecuteCycle(h.ctx, "")
	require.NoError(t, err)
	require.NotNil(t, second.Reward)
	assert.Empty(t, second.Reward.Error)
	assert.Equal(t, "alice", second.Reward.Recipient)

	third, err := h.orch.ExecuteCycle(h.ctx, "")
	require.NoError(t, err)
	assert.True(t, third.Reward.Skipped)

	rewards, err := h.stores.Rewards.ListRecent(h.ctx, 10)
	require.NoError(t, err)
	require.Len(t, rewards, 1)
	assert.Equal(t, second.CycleID, rewards[0].CycleID)
	assert.InDelta(t, second.Reward.Amount, h.ledger.balances["alice"], 1e-9)
	assert.Equal(t, 2, tracker.resets)
}

func TestExecuteCycle_RewardNeverPaysWhileResetFails(t *testing.T) {
	tracker := &flakyThreshold{failResets: -1}
	h := newHarness(t, nil, withThreshold(func(l *listener.Listener) ThresholdTracker {
		tracker.Listener = l
		return tracker
	}))
	_, err := h.listener.Init(h.ctx)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		observe(t, h, "user-"+string(rune('a'+i)), "alice", 0.5)
	}

	for i := 0; i < 2; i++ {
		res, err := h.orch.ExecuteCycle(h.ctx, "")
		require.NoError(t, err)
		assert.Contains(t, res.Reward.Error, "listener state unavailable")
	}

	rewards, err := h.stores.Rewards.ListRecent(h.ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, rewards)
	assert.Zero(t, h.ledger.balances["alice"])
}

func TestExecuteCycle_UnconfirmedRewardKeepsThresholdConsumed(t *testing.T) {
	h := newHarness(t, func(_ *Config, l *fakeLedger) {
		l.transferErr["alice"] = fmt.Errorf("confirm reward: %w", solana.ErrUnconfirmed)
	})
	_, err := h.listener.Init(h.ctx)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		observe(t, h, "user-"+string(rune('a'+i)), "alice", 0.5)
	}

	res, err := h.orch.ExecuteCycle(h.ctx, "")
	require.NoError(t, err)
	assert.Contains(t, res.StepErrors[StepReward], solana.ErrUnconfirmed.Error())
	assert.Equal(t, "alice", res.Reward.Recipient)

	st, err := h.listener.State(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.CurrentCount)
	assert.Equal(t, "alice", st.LastWinnerAddress)

	again, err := h.orch.ExecuteCycle(h.ctx, "")
	require.NoError(t, err)
	assert.True(t, again.Reward.Skipped)
}

func TestExecuteCycle_CancelledDuringBuyStillFinalizes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(t, func(_ *Config, l *fakeLedger) {
		l.onBuy = func(ctx context.Context) error {
			cancel()
			return ctx.Err()
		}
	}, withStores(ctxStores))

	res, err := h.orch.ExecuteCycle(ctx, "")
	require.Error(t, err)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepBuy, stepErr.Step)
	assert.Equal(t, []string{models.VenueBondingCurve}, h.ledger.buys)

	c := h.cycle(t, res.CycleID)
	assert.Equal(t, models.CycleStatusFailed, c.Status)
	assert.NotEmpty(t, c.ErrorMessage)
	assert.Equal(t, models.CycleStatusFailed, res.Status)

	m := h.metrics(t)
	assert.Equal(t, int64(1), m.TotalCycles)
	require.Len(t, h.events.events, 1)
	assert.Equal(t, models.CycleStatusFailed, h.events.events[0].event.Status)
	assert.Equal(t, []string{models.CycleStatusFailed}, h.recorder.finished)
}

func TestExecuteCycle_TwoRunsTwoCycles(t *testing.T) {
	h := newHarness(t, nil)

	first, err := h.orch.ExecuteCycle(h.ctx, "")
	require.NoError(t, err)
	afterFirst := h.metrics(t)

	second, err := h.orch.ExecuteCycle(h.ctx, "")
	require.NoError(t, err)
	assert.NotEqual(t, first.CycleID, second.CycleID)

	cycles, err := h.stores.Cycles.ListRecent(h.ctx, 10)
	require.NoError(t, err)
	assert.Len(t, cycles, 2)

	m := h.metrics(t)
	assert.Equal(t, int64(2), m.TotalCycles)
	assert.Equal(t, int64(2), m.TotalTrades)
	assert.InDelta(t, afterFirst.TotalFeesCollected+second.Split.Balance, m.TotalFeesCollected, 1e-9)
	assert.InDelta(t, first.Split.Buy+second.Split.Buy, m.TotalSolSpent, 1e-9)
	assert.InDelta(t, 2000, m.TotalTokensBought, 1e-9)
}

func TestExecuteCycle_TerminalStatusIsFinal(t *testing.T) {
	h := newHarness(t, nil)

	res, err := h.orch.ExecuteCycle(h.ctx, "")
	require.NoError(t, err)

	err = h.stores.Cycles.Fail(h.ctx, res.CycleID, models.CycleOutcome{ErrorMessage: "late failure"})
	assert.ErrorIs(t, err, storage.ErrTerminalStatus)
	assert.Equal(t, models.CycleStatusCompleted, h.cycle(t, res.CycleID).Status)
}

func TestExecuteCycle_PriceUnavailableKeepsLastPrice(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.orch.ExecuteCycle(h.ctx, "")
	require.NoError(t, err)

	h.prices.err = errors.New("quote unavailable")
	_, err = h.orch.ExecuteCycle(h.ctx, "")
	require.NoError(t, err)

	assert.InDelta(t, 0.000042, h.metrics(t).LastPrice, 1e-12)
}

func TestExecuteCycle_PublishesAndRecords(t *testing.T) {
	h := newHarness(t, func(_ *Config, l *fakeLedger) { l.collectErr = errors.New("claim rejected") })

	_, err := h.orch.ExecuteCycle(h.ctx, "")
	require.Error(t, err)

	h.ledger.collectErr = nil
	res, err := h.orch.ExecuteCycle(h.ctx, "")
	require.NoError(t, err)

	require.Len(t, h.events.events, 2)
	assert.Equal(t, eventsQueue, h.events.events[0].queue)
	assert.Equal(t, models.CycleStatusFailed, h.events.events[0].event.Status)
	assert.Contains(t, h.events.events[0].event.Error, "claim rejected")
	last := h.events.events[1].event
	assert.Equal(t, res.CycleID, last.CycleID)
	assert.Equal(t, models.CycleStatusCompleted, last.Status)
	assert.InDelta(t, 0.776, last.BuyAmount, 1e-9)

	assert.Equal(t, []string{models.CycleStatusFailed, models.CycleStatusCompleted}, h.recorder.finished)
	require.Len(t, h.recorder.balances, 1)
	assert.InDelta(t, 1.0, h.recorder.balances[0], 1e-9)
}

func TestExecuteCycle_LogsOutcome(t *testing.T) {
	h := newHarness(t, nil)

	res, err := h.orch.ExecuteCycle(h.ctx, "")
	require.NoError(t, err)

	var found bool
	for _, e := range h.hook.AllEntries() {
		if e.Message != "cycle completed" {
			continue
		}
		found = true
		assert.Equal(t, logrus.InfoLevel, e.Level)
		assert.Equal(t, res.CycleID, e.Data["cycle_id"])
		assert.Equal(t, models.CycleStatusCompleted, e.Data["status"])
	}
	assert.True(t, found)
}
