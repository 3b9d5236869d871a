package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"treasurycontrol/internal/listener"
	"treasurycontrol/internal/models"
	"treasurycontrol/internal/storage"
	"treasurycontrol/pkg/solana"
)

const (
	testAsset    = "Asset1111111111111111111111111111111111111"
	treasuryAddr = "treasury-wallet"
	rewardAddr   = "reward-wallet"
	platformAddr = "platform-wallet"
)

// fakeLedger moves balances around in memory and records every call.
// It serves both as the orchestrator Ledger and as the venue Executor.
type fakeLedger struct {
	mu sync.Mutex

	balances map[string]float64
	tokens   map[string]float64
	calls    []string
	buys     []string
	seq      int

	collectAmount float64
	collectErr    error
	buyTokens     float64

	// failBalanceCall fails the nth GetBalance call on the treasury, 1-based.
	failBalanceCall int
	balanceCalls    int

	buyErr      map[string]error
	buyFailures int
	buyFailErr  error
	// onBuy runs before every buy; a non-nil error fails the buy.
	onBuy func(ctx context.Context) error

	transferErr map[string]error
	sweepErr    error
	poolErr     error
	depositErr  error
	burnErr     error
	lpTokens    float64
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		balances:      map[string]float64{treasuryAddr: 0.4},
		tokens:        map[string]float64{},
		collectAmount: 0.6,
		buyTokens:     1000,
		buyErr:        map[string]error{},
		transferErr:   map[string]error{},
		lpTokens:      5,
	}
}

func (f *fakeLedger) sig(kind string) string {
	f.seq++
	return fmt.Sprintf("%s-sig-%d", kind, f.seq)
}

func (f *fakeLedger) called(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeLedger) CollectFees(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "collect")
	if f.collectErr != nil {
		return "", f.collectErr
	}
	f.balances[treasuryAddr] += f.collectAmount
	return f.sig("collect"), nil
}

func (f *fakeLedger) Buy(ctx context.Context, _ string, sol float64, venue string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "buy")
	f.buys = append(f.buys, venue)
	if f.onBuy != nil {
		if err := f.onBuy(ctx); err != nil {
			return "", err
		}
	}
	if f.buyFailures > 0 {
		f.buyFailures--
		return "", f.buyFailErr
	}
	if err := f.buyErr[venue]; err != nil {
		// Unconfirmed buys were submitted and come back with their signature.
		if errors.Is(err, solana.ErrUnconfirmed) {
			return f.sig("buy"), err
		}
		return "", err
	}
	f.balances[treasuryAddr] -= sol
	f.tokens[treasuryAddr] += f.buyTokens
	return f.sig("buy"), nil
}

func (f *fakeLedger) Transfer(_ context.Context, from, to string, sol float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "transfer")
	if err := f.transferErr[to]; err != nil {
		return "", err
	}
	f.balances[from] -= sol
	f.balances[to] += sol
	return f.sig("transfer"), nil
}

func (f *fakeLedger) TransferToken(_ context.Context, _, from, to string, amount float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "sweep")
	if f.sweepErr != nil {
		return "", f.sweepErr
	}
	f.tokens[from] -= amount
	f.tokens[to] += amount
	return f.sig("sweep"), nil
}

func (f *fakeLedger) PoolAddress(context.Context, string) (string, error) {
	if f.poolErr != nil {
		return "", f.poolErr
	}
	return "pool-1", nil
}

func (f *fakeLedger) DepositLiquidity(_ context.Context, _ string, sol float64) (solana.LiquidityDeposit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "deposit")
	if f.depositErr != nil {
		return solana.LiquidityDeposit{}, f.depositErr
	}
	f.balances[treasuryAddr] -= sol
	return solana.LiquidityDeposit{Signature: f.sig("deposit"), TokensDeposited: 10, LPTokens: f.lpTokens}, nil
}

func (f *fakeLedger) Burn(context.Context, string, float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "burn")
	if f.burnErr != nil {
		return "", f.burnErr
	}
	return f.sig("burn"), nil
}

func (f *fakeLedger) GetBalance(_ context.Context, address string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if address == treasuryAddr {
		f.balanceCalls++
		if f.balanceCalls == f.failBalanceCall {
			return 0, fmt.Errorf("rpc unavailable: %w", solana.ErrTransient)
		}
	}
	return f.balances[address], nil
}

func (f *fakeLedger) GetTokenBalance(_ context.Context, _, owner string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokens[owner], nil
}

type fakePrices struct {
	price float64
	err   error
}

func (p fakePrices) GetSpotPrice(context.Context, string) (float64, error) {
	return p.price, p.err
}

type publishedEvent struct {
	queue string
	event CycleEvent
}

type fakePublisher struct {
	events []publishedEvent
}

func (p *fakePublisher) Publish(_ context.Context, queue string, message interface{}) error {
	p.events = append(p.events, publishedEvent{queue: queue, event: message.(CycleEvent)})
	return nil
}

type fakeRecorder struct {
	finished []string
	failed   []string
	balances []float64
}

func (r *fakeRecorder) CycleFinished(status string, _ time.Duration) {
	r.finished = append(r.finished, status)
}

func (r *fakeRecorder) StepFailed(step string) {
	r.failed = append(r.failed, step)
}

func (r *fakeRecorder) TreasuryBalance(sol float64) {
	r.balances = append(r.balances, sol)
}

// ctxStores makes the terminal writes fail once their context is done, the way a database driver does.
func ctxStores(s storage.Stores) storage.Stores {
	s.Cycles = ctxCycleStore{s.Cycles}
	s.Metrics = ctxMetricsStore{s.Metrics}
	return s
}

type ctxCycleStore struct {
	storage.CycleStore
}

func (s ctxCycleStore) Complete(ctx context.Context, id uint, outcome models.CycleOutcome, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.CycleStore.Complete(ctx, id, outcome, at)
}

func (s ctxCycleStore) Fail(ctx context.Context, id uint, outcome models.CycleOutcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.CycleStore.Fail(ctx, id, outcome)
}

type ctxMetricsStore struct {
	storage.MetricsStore
}

func (s ctxMetricsStore) AddFeesCollected(ctx context.Context, amount float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MetricsStore.AddFeesCollected(ctx, amount)
}

func (s ctxMetricsStore) Apply(ctx context.Context, delta models.MetricsDelta) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MetricsStore.Apply(ctx, delta)
}

// flakyThreshold fails the first failResets resets, or every reset when negative.
type flakyThreshold struct {
	*listener.Listener
	failResets int
	resets     int
}

func (f *flakyThreshold) Reset(ctx context.Context, winner string, consumed int64) (int64, error) {
	f.resets++
	if f.failResets != 0 {
		if f.failResets > 0 {
			f.failResets--
		}
		return 0, errors.New("listener state unavailable")
	}
	return f.Listener.Reset(ctx, winner, consumed)
}
