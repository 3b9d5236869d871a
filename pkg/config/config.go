package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config is the complete runtime configuration shared by every binary.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Solana    SolanaConfig    `yaml:"solana"`
	Wallets   WalletsConfig   `yaml:"wallets"`
	Cycle     CycleConfig     `yaml:"cycle"`
	Liquidity LiquidityConfig `yaml:"liquidity"`
	Reward    RewardConfig    `yaml:"reward"`
	Listener  ListenerConfig  `yaml:"listener"`
	Leader    LeaderConfig    `yaml:"leader"`
	API       APIConfig       `yaml:"api"`
	Log       LogConfig       `yaml:"log"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Name            string        `yaml:"name"`
	SSLMode         string        `yaml:"sslmode"`
	TimeZone        string        `yaml:"timezone"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	MigrationsDir   string        `yaml:"migrations_dir"`
}

// DSN builds the libpq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode, d.TimeZone)
}

type RabbitMQConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Host        string        `yaml:"host"`
	Port        string        `yaml:"port"`
	User        string        `yaml:"user"`
	Password    string        `yaml:"password"`
	EventsQueue string        `yaml:"events_queue"`
	TradesQueue string        `yaml:"trades_queue"`
	MaxRetries  int           `yaml:"max_retries"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
}

// URL returns the AMQP connection URL.
func (r RabbitMQConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", r.User, r.Password, r.Host, r.Port)
}

type SolanaConfig struct {
	RPCURL          string        `yaml:"rpc_url"`
	WSURL           string        `yaml:"ws_url"`
	TradeAPIURL     string        `yaml:"trade_api_url"`
	TradeAPIRPS     float64       `yaml:"trade_api_rps"`
	PriceAPIURL     string        `yaml:"price_api_url"`
	Commitment      string        `yaml:"commitment"`
	SlippagePct     float64       `yaml:"slippage_pct"`
	PriorityFeeSOL  float64       `yaml:"priority_fee_sol"`
	ConfirmTimeout  time.Duration `yaml:"confirm_timeout"`
	ConfirmInterval time.Duration `yaml:"confirm_interval"`
}

// WalletsConfig names where the signers come from. A raw base58 secret wins over a keystore file.
type WalletsConfig struct {
	TreasurySecret   string `yaml:"treasury_secret"`
	TreasuryKeystore string `yaml:"treasury_keystore"`
	RewardSecret     string `yaml:"reward_secret"`
	RewardKeystore   string `yaml:"reward_keystore"`
	KeystorePassword string `yaml:"keystore_password"`
	PlatformAddress  string `yaml:"platform_address"`
}

type CycleConfig struct {
	AssetID        string        `yaml:"asset_id"`
	Schedule       string        `yaml:"schedule"`
	Timeout        time.Duration `yaml:"timeout"`
	TxFeeBufferSOL float64       `yaml:"tx_fee_buffer_sol"`
	PlatformFeeBps int           `yaml:"platform_fee_bps"`
	RewardFeeBps   int           `yaml:"reward_fee_bps"`
	MinBuySOL      float64       `yaml:"min_buy_sol"`
	RetryAttempts  int           `yaml:"retry_attempts"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
}

type LiquidityConfig struct {
	Enabled     bool    `yaml:"enabled"`
	MinSOL      float64 `yaml:"min_sol"`
	PoolAddress string  `yaml:"pool_address"`
	SlippageBps int     `yaml:"slippage_bps"`
}

type RewardConfig struct {
	Enabled       bool    `yaml:"enabled"`
	FeeReserveSOL float64 `yaml:"fee_reserve_sol"`
	ThresholdMin  int64   `yaml:"threshold_min"`
	ThresholdMax  int64   `yaml:"threshold_max"`
	MinTradeSOL   float64 `yaml:"min_trade_sol"`
}

type ListenerConfig struct {
	EnableWebsocket bool          `yaml:"enable_websocket"`
	EnableQueue     bool          `yaml:"enable_queue"`
	ReconnectDelay  time.Duration `yaml:"reconnect_delay"`
}

type LeaderConfig struct {
	Enabled  bool          `yaml:"enabled"`
	LeaseTTL time.Duration `yaml:"lease_ttl"`
}

type APIConfig struct {
	Addr           string   `yaml:"addr"`
	MetricsAddr    string   `yaml:"metrics_addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Load reads the YAML file at path (optional), the .env file if present, and
// applies environment overrides and defaults. The result is validated.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// defaultConfig holds the defaults for settings where zero is a meaningful value.
// YAML only overwrites the keys it sets, so an explicit 0 survives.
func defaultConfig() Config {
	return Config{
		Solana: SolanaConfig{PriorityFeeSOL: 0.00005},
		Cycle: CycleConfig{
			TxFeeBufferSOL: 0.005,
			PlatformFeeBps: 1200,
			RewardFeeBps:   1000,
		},
		Reward: RewardConfig{FeeReserveSOL: 0.001},
	}
}

func applyEnvOverrides(cfg *Config) {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	str("DB_HOST", &cfg.Database.Host)
	str("DB_PORT", &cfg.Database.Port)
	str("DB_USER", &cfg.Database.User)
	str("DB_PASSWORD", &cfg.Database.Password)
	str("DB_NAME", &cfg.Database.Name)
	str("DB_SSLMODE", &cfg.Database.SSLMode)

	str("RABBITMQ_HOST", &cfg.RabbitMQ.Host)
	str("RABBITMQ_PORT", &cfg.RabbitMQ.Port)
	str("RABBITMQ_USER", &cfg.RabbitMQ.User)
	str("RABBITMQ_PASSWORD", &cfg.RabbitMQ.Password)
	if v := os.Getenv("RABBITMQ_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.RabbitMQ.Enabled = b
		}
	}

	str("SOLANA_RPC", &cfg.Solana.RPCURL)
	str("SOLANA_WS", &cfg.Solana.WSURL)
	str("TRADE_API_URL", &cfg.Solana.TradeAPIURL)
	str("PRICE_API_URL", &cfg.Solana.PriceAPIURL)

	str("TREASURY_SECRET", &cfg.Wallets.TreasurySecret)
	str("REWARD_SECRET", &cfg.Wallets.RewardSecret)
	str("KEYSTORE_PASSWORD", &cfg.Wallets.KeystorePassword)
	str("PLATFORM_WALLET", &cfg.Wallets.PlatformAddress)

	str("MONITORED_ASSET", &cfg.Cycle.AssetID)
	str("CYCLE_SCHEDULE", &cfg.Cycle.Schedule)

	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.API.AllowedOrigins = nil
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.API.AllowedOrigins = append(cfg.API.AllowedOrigins, origin)
			}
		}
	}
	str("API_ADDR", &cfg.API.Addr)

	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	str("LOG_FILE", &cfg.Log.File)
}

func setDefaults(cfg *Config) {
	d := &cfg.Database
	if d.Host == "" {
		d.Host = "localhost"
	}
	if d.Port == "" {
		d.Port = "5432"
	}
	if d.SSLMode == "" {
		d.SSLMode = "disable"
	}
	if d.TimeZone == "" {
		d.TimeZone = "UTC"
	}
	if d.MaxIdleConns <= 0 {
		d.MaxIdleConns = 10
	}
	if d.MaxOpenConns <= 0 {
		d.MaxOpenConns = 50
	}
	if d.ConnMaxLifetime <= 0 {
		d.ConnMaxLifetime = time.Hour
	}
	if d.MigrationsDir == "" {
		d.MigrationsDir = "migrations"
	}

	r := &cfg.RabbitMQ
	if r.Port == "" {
		r.Port = "5672"
	}
	if r.EventsQueue == "" {
		r.EventsQueue = "treasury_cycle_events"
	}
	if r.TradesQueue == "" {
		r.TradesQueue = "treasury_observed_trades"
	}
	if r.MaxRetries <= 0 {
		r.MaxRetries = 10
	}
	if r.RetryDelay <= 0 {
		r.RetryDelay = 3 * time.Second
	}

	s := &cfg.Solana
	if s.RPCURL == "" {
		s.RPCURL = "https://api.mainnet-beta.solana.com"
	}
	if s.WSURL == "" {
		s.WSURL = "wss://api.mainnet-beta.solana.com"
	}
	if s.TradeAPIURL == "" {
		s.TradeAPIURL = "https://pumpportal.fun/api/trade-local"
	}
	if s.TradeAPIRPS <= 0 {
		s.TradeAPIRPS = 2
	}
	if s.PriceAPIURL == "" {
		s.PriceAPIURL = "https://lite-api.jup.ag/swap/v1/quote"
	}
	if s.Commitment == "" {
		s.Commitment = "confirmed"
	}
	if s.SlippagePct <= 0 {
		s.SlippagePct = 10
	}
	if s.ConfirmTimeout <= 0 {
		s.ConfirmTimeout = 60 * time.Second
	}
	if s.ConfirmInterval <= 0 {
		s.ConfirmInterval = 2 * time.Second
	}

	c := &cfg.Cycle
	if c.Schedule == "" {
		c.Schedule = "0 */10 * * * *"
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Minute
	}
	if c.MinBuySOL <= 0 {
		c.MinBuySOL = 0.01
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}

	if cfg.Liquidity.MinSOL <= 0 {
		cfg.Liquidity.MinSOL = 0.05
	}
	if cfg.Liquidity.SlippageBps <= 0 {
		cfg.Liquidity.SlippageBps = 500
	}

	rw := &cfg.Reward
	if rw.ThresholdMin <= 0 {
		rw.ThresholdMin = 5
	}
	if rw.ThresholdMax <= 0 {
		rw.ThresholdMax = 20
	}
	if rw.MinTradeSOL <= 0 {
		rw.MinTradeSOL = 0.05
	}

	if cfg.Listener.ReconnectDelay <= 0 {
		cfg.Listener.ReconnectDelay = 5 * time.Second
	}
	if cfg.Leader.LeaseTTL <= 0 {
		cfg.Leader.LeaseTTL = 2 * cfg.Cycle.Timeout
	}

	a := &cfg.API
	if a.Addr == "" {
		a.Addr = ":8080"
	}
	if a.MetricsAddr == "" {
		a.MetricsAddr = ":9090"
	}
	if a.RateLimitRPS <= 0 {
		a.RateLimitRPS = 10
	}
	if a.RateLimitBurst <= 0 {
		a.RateLimitBurst = 20
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// Validate rejects configurations the orchestrator cannot run with.
// The monitored asset is not required here; a cycle without one fails on its own.
func (c *Config) Validate() error {
	var errs []error

	if c.Cycle.PlatformFeeBps < 0 || c.Cycle.RewardFeeBps < 0 {
		errs = append(errs, errors.New("cycle: fee basis points must not be negative"))
	}
	if c.Cycle.PlatformFeeBps+c.Cycle.RewardFeeBps > 10000 {
		errs = append(errs, fmt.Errorf("cycle: platform_fee_bps + reward_fee_bps = %d exceeds 10000",
			c.Cycle.PlatformFeeBps+c.Cycle.RewardFeeBps))
	}
	if c.Cycle.TxFeeBufferSOL < 0 || c.Reward.FeeReserveSOL < 0 || c.Solana.PriorityFeeSOL < 0 {
		errs = append(errs, errors.New("tx_fee_buffer_sol, fee_reserve_sol and priority_fee_sol must not be negative"))
	}
	if c.Reward.ThresholdMin < 1 || c.Reward.ThresholdMin > c.Reward.ThresholdMax {
		errs = append(errs, fmt.Errorf("reward: threshold range [%d, %d] is invalid",
			c.Reward.ThresholdMin, c.Reward.ThresholdMax))
	}
	if c.Leader.Enabled && c.Leader.LeaseTTL <= c.Cycle.Timeout {
		errs = append(errs, fmt.Errorf("leader: lease_ttl %s must exceed cycle timeout %s",
			c.Leader.LeaseTTL, c.Cycle.Timeout))
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log: unknown format %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config.Validate: %w", errors.Join(errs...))
	}
	return nil
}
