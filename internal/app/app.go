// Package app wires configuration, storage and the Solana ledger into the
// components shared by the binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"treasurycontrol/internal/leader"
	"treasurycontrol/internal/listener"
	"treasurycontrol/internal/orchestrator"
	"treasurycontrol/internal/storage"
	"treasurycontrol/internal/storage/postgres"
	"treasurycontrol/internal/venue"
	"treasurycontrol/pkg/config"
	"treasurycontrol/pkg/solana"
	"treasurycontrol/pkg/utils"
)

// App holds the long-lived resources of one process.
type App struct {
	Config *config.Config
	Logger *logrus.Logger
	DB     *gorm.DB
	Stores storage.Stores

	rabbit *amqp.Connection
	closed []func() error
}

// Bootstrap loads the configuration, sets up logging and opens the database.
func Bootstrap(configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	db, err := config.OpenDB(cfg.Database)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Logger: logger, DB: db, Stores: postgres.NewStores(db)}
	a.closed = append(a.closed, func() error { return config.CloseDB(db) })
	return a, nil
}

func (a *App) Log(component string) *logrus.Entry {
	return a.Logger.WithField("component", component)
}

// Close releases every resource in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closed) - 1; i >= 0; i-- {
		if err := a.closed[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Rabbit dials RabbitMQ once and reuses the connection.
func (a *App) Rabbit() (*amqp.Connection, error) {
	if a.rabbit != nil {
		return a.rabbit, nil
	}
	conn, err := config.DialRabbitMQ(a.Config.RabbitMQ, a.Log("rabbitmq"))
	if err != nil {
		return nil, err
	}
	a.rabbit = conn
	a.closed = append(a.closed, conn.Close)
	return conn, nil
}

// Listener builds the threshold tracker for the configured asset.
func (a *App) Listener() (*listener.Listener, error) {
	cfg := a.Config
	return listener.New(listener.Config{
		AssetID:       cfg.Cycle.AssetID,
		ThresholdMin:  cfg.Reward.ThresholdMin,
		ThresholdMax:  cfg.Reward.ThresholdMax,
		MinTradeSOL:   cfg.Reward.MinTradeSOL,
		SystemWallets: a.systemWallets(),
	}, a.Stores.Listener, a.Stores.Trades, a.Log("listener"))
}

func (a *App) systemWallets() []string {
	w := a.Config.Wallets
	var out []string
	for _, secret := range []struct{ secret, keystore string }{
		{w.TreasurySecret, w.TreasuryKeystore},
		{w.RewardSecret, w.RewardKeystore},
	} {
		key, err := solana.LoadSigner(secret.secret, secret.keystore, w.KeystorePassword)
		if err == nil {
			out = append(out, key.PublicKey().String())
		}
	}
	if w.PlatformAddress != "" {
		out = append(out, w.PlatformAddress)
	}
	return out
}

// Orchestrator wires the ledger, venue router, price feed and listener into a
// cycle orchestrator. rec and events may be nil.
func (a *App) Orchestrator(rec orchestrator.Recorder, events orchestrator.Publisher) (*orchestrator.Orchestrator, error) {
	cfg := a.Config
	log := a.Logger.WithField("asset", cfg.Cycle.AssetID)

	treasury, err := solana.LoadSigner(cfg.Wallets.TreasurySecret, cfg.Wallets.TreasuryKeystore, cfg.Wallets.KeystorePassword)
	if err != nil {
		return nil, fmt.Errorf("load treasury signer: %w", err)
	}

	var (
		signers       []solanago.PrivateKey
		rewardAddress string
	)
	if cfg.Reward.Enabled {
		reward, err := solana.LoadSigner(cfg.Wallets.RewardSecret, cfg.Wallets.RewardKeystore, cfg.Wallets.KeystorePassword)
		if err != nil {
			return nil, fmt.Errorf("load reward signer: %w", err)
		}
		signers = append(signers, reward)
		rewardAddress = reward.PublicKey().String()
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	ledger, err := solana.NewLedger(
		rpc.New(cfg.Solana.RPCURL),
		solana.NewTradeAPIClient(cfg.Solana.TradeAPIURL, cfg.Solana.TradeAPIRPS, httpClient),
		solana.Options{
			Treasury:             treasury,
			Signers:              signers,
			Commitment:           rpc.CommitmentType(cfg.Solana.Commitment),
			SlippagePct:          cfg.Solana.SlippagePct,
			PriorityFeeSOL:       cfg.Solana.PriorityFeeSOL,
			ConfirmTimeout:       cfg.Solana.ConfirmTimeout,
			PollInterval:         cfg.Solana.ConfirmInterval,
			PoolAddress:          cfg.Liquidity.PoolAddress,
			LiquiditySlippageBps: cfg.Liquidity.SlippageBps,
			Logger:               log,
		},
	)
	if err != nil {
		return nil, err
	}

	var threshold orchestrator.ThresholdTracker
	if cfg.Reward.Enabled {
		l, err := a.Listener()
		if err != nil {
			return nil, err
		}
		threshold = l
	}

	router := venue.NewRouter(ledger, a.Stores.Venues, a.Stores.Trades, cfg.Cycle.MinBuySOL, log)
	retry := venue.RetryPolicy{
		MaxAttempts: cfg.Cycle.RetryAttempts,
		Delay:       cfg.Cycle.RetryDelay,
		OnRetry: func(attempt int, err error) {
			log.WithError(err).WithField("attempt", attempt).Warn("transient failure, retrying")
		},
	}

	return orchestrator.New(orchestrator.Config{
		AssetID:             cfg.Cycle.AssetID,
		TreasuryAddress:     ledger.TreasuryAddress(),
		RewardAddress:       rewardAddress,
		PlatformAddress:     cfg.Wallets.PlatformAddress,
		TxFeeBufferSOL:      cfg.Cycle.TxFeeBufferSOL,
		PlatformFeeBps:      cfg.Cycle.PlatformFeeBps,
		RewardFeeBps:        cfg.Cycle.RewardFeeBps,
		MinBuySOL:           cfg.Cycle.MinBuySOL,
		Retry:               retry,
		LiquidityEnabled:    cfg.Liquidity.Enabled,
		LiquidityMinSOL:     cfg.Liquidity.MinSOL,
		RewardEnabled:       cfg.Reward.Enabled,
		RewardFeeReserveSOL: cfg.Reward.FeeReserveSOL,
		RewardMinTradeSOL:   cfg.Reward.MinTradeSOL,
		EventsQueue:         cfg.RabbitMQ.EventsQueue,
	}, orchestrator.Deps{
		Stores:    a.Stores,
		Ledger:    ledger,
		Buyer:     router,
		Prices:    utils.NewJupiterPriceFeed(cfg.Solana.PriceAPIURL, httpClient),
		Threshold: threshold,
		Events:    events,
		Recorder:  rec,
		Logger:    log,
	})
}

// Publisher returns the cycle event publisher, or nil when RabbitMQ is disabled.
func (a *App) Publisher() (*config.Publisher, error) {
	if !a.Config.RabbitMQ.Enabled {
		return nil, nil
	}
	conn, err := a.Rabbit()
	if err != nil {
		return nil, err
	}
	p, err := config.NewPublisher(conn)
	if err != nil {
		return nil, err
	}
	a.closed = append(a.closed, p.Close)
	return p, nil
}

// LeaderGate returns the per-asset lease gate, or nil when leader election is disabled.
func (a *App) LeaderGate() (*leader.Gate, error) {
	if !a.Config.Leader.Enabled {
		return nil, nil
	}
	return leader.NewGate(a.DB, leader.LeaseName(a.Config.Cycle.AssetID), a.Config.Leader.LeaseTTL, a.Log("leader"))
}

// Serve runs srv until ctx is done, then shuts it down gracefully.
func Serve(ctx context.Context, srv *http.Server, log *logrus.Entry) error {
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
