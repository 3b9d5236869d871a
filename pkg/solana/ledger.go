package solana

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/sirupsen/logrus"

	"treasurycontrol/internal/models"
	"treasurycontrol/pkg/utils"
)

// Options configures a Ledger.
type Options struct {
	Treasury solana.PrivateKey
	// Extra signers, e.g. the reward wallet, usable as Transfer sources.
	Signers []solana.PrivateKey

	Commitment     rpc.CommitmentType
	SlippagePct    float64
	PriorityFeeSOL float64
	ConfirmTimeout time.Duration
	PollInterval   time.Duration

	// PoolAddress overrides the canonical PumpSwap pool of the monitored asset.
	PoolAddress          string
	LiquiditySlippageBps int

	Logger *logrus.Entry
}

// LiquidityDeposit is the result of a PumpSwap deposit.
type LiquidityDeposit struct {
	Signature string
	// TokensDeposited is the upper bound the deposit was allowed to take.
	TokensDeposited float64
	LPTokens        float64
}

// Ledger signs and submits treasury operations on Solana.
type Ledger struct {
	client         *rpc.Client
	tradeAPI       *TradeAPIClient
	wallets        *Wallets
	treasury       solana.PublicKey
	commitment     rpc.CommitmentType
	slippagePct    float64
	priorityFee    float64
	confirmTimeout time.Duration
	pollInterval   time.Duration
	poolAddress    string
	depositBps     int
	log            *logrus.Entry
}

func NewLedger(client *rpc.Client, tradeAPI *TradeAPIClient, opts Options) (*Ledger, error) {
	if len(opts.Treasury) == 0 {
		return nil, errors.New("treasury signer is required")
	}
	if opts.Commitment == "" {
		opts.Commitment = rpc.CommitmentConfirmed
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = 60 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Ledger{
		client:         client,
		tradeAPI:       tradeAPI,
		wallets:        NewWallets(append([]solana.PrivateKey{opts.Treasury}, opts.Signers...)...),
		treasury:       opts.Treasury.PublicKey(),
		commitment:     opts.Commitment,
		slippagePct:    opts.SlippagePct,
		priorityFee:    opts.PriorityFeeSOL,
		confirmTimeout: opts.ConfirmTimeout,
		pollInterval:   opts.PollInterval,
		poolAddress:    opts.PoolAddress,
		depositBps:     opts.LiquiditySlippageBps,
		log:            opts.Logger.WithField("component", "ledger"),
	}, nil
}

// TreasuryAddress is the base58 address of the treasury signer.
func (l *Ledger) TreasuryAddress() string {
	return l.treasury.String()
}

// CollectFees claims the creator fees accrued to the treasury.
func (l *Ledger) CollectFees(ctx context.Context) (string, error) {
	tx, err := l.tradeAPI.BuildTransaction(ctx, TradeRequest{
		PublicKey:   l.treasury.String(),
		Action:      ActionCollectCreatorFee,
		PriorityFee: l.priorityFee,
		Pool:        PoolPump,
	})
	if err != nil {
		return "", err
	}
	return l.signAndSend(ctx, tx)
}

// Buy spends sol from the treasury on asset through the given venue.
func (l *Ledger) Buy(ctx context.Context, asset string, sol float64, venue string) (string, error) {
	var pool string
	switch venue {
	case models.VenueBondingCurve:
		pool = PoolPump
	case models.VenueAMM:
		pool = PoolPumpAmm
	default:
		return "", fmt.Errorf("unknown venue %q", venue)
	}
	if sol <= 0 {
		return "", fmt.Errorf("%w: buy of %v SOL", ErrInvalidAmount, sol)
	}

	tx, err := l.tradeAPI.BuildTransaction(ctx, TradeRequest{
		PublicKey:        l.treasury.String(),
		Action:           ActionBuy,
		Mint:             asset,
		Amount:           sol,
		DenominatedInSol: "true",
		Slippage:         l.slippagePct,
		PriorityFee:      l.priorityFee,
		Pool:             pool,
	})
	if err != nil {
		return "", err
	}
	return l.signAndSend(ctx, tx)
}

// Transfer sends sol from a loaded wallet to any address.
func (l *Ledger) Transfer(ctx context.Context, from, to string, sol float64) (string, error) {
	signer, err := l.wallets.signer(from)
	if err != nil {
		return "", err
	}
	dest, err := solana.PublicKeyFromBase58(to)
	if err != nil {
		return "", fmt.Errorf("invalid destination %s: %w", to, err)
	}
	lamports, err := SolToLamports(sol)
	if err != nil {
		return "", err
	}
	if lamports == 0 {
		return "", fmt.Errorf("%w: transfer of 0 lamports", ErrInvalidAmount)
	}

	ix := system.NewTransferInstruction(lamports, signer.PublicKey(), dest).Build()
	return l.sendInstructions(ctx, signer.PublicKey(), ix)
}

// TransferToken moves amount of asset from a loaded wallet to the owner to, creating its token account if needed.
func (l *Ledger) TransferToken(ctx context.Context, asset, from, to string, amount float64) (string, error) {
	signer, err := l.wallets.signer(from)
	if err != nil {
		return "", err
	}
	mint, err := solana.PublicKeyFromBase58(asset)
	if err != nil {
		return "", fmt.Errorf("invalid mint %s: %w", asset, err)
	}
	dest, err := solana.PublicKeyFromBase58(to)
	if err != nil {
		return "", fmt.Errorf("invalid destination %s: %w", to, err)
	}

	program, decimals, err := l.mintInfo(ctx, mint)
	if err != nil {
		return "", err
	}
	raw, err := UiToRaw(amount, decimals)
	if err != nil {
		return "", err
	}
	if raw == 0 {
		return "", fmt.Errorf("%w: transfer of 0 tokens", ErrInvalidAmount)
	}

	source, err := GetAssociatedTokenAddress(signer.PublicKey(), mint, program)
	if err != nil {
		return "", err
	}
	createIx, destATA, err := createATAIdempotentInstruction(signer.PublicKey(), dest, mint, program)
	if err != nil {
		return "", err
	}
	transferIx := transferCheckedInstruction(program, source, mint, destATA, signer.PublicKey(), raw, decimals)
	return l.sendInstructions(ctx, signer.PublicKey(), createIx, transferIx)
}

// GetBalance returns the SOL balance of address.
func (l *Ledger) GetBalance(ctx context.Context, address string) (float64, error) {
	pub, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return 0, fmt.Errorf("invalid address %s: %w", address, err)
	}
	res, err := l.client.GetBalance(ctx, pub, l.commitment)
	if err != nil {
		return 0, fmt.Errorf("get balance of %s: %w", address, err)
	}
	return LamportsToSol(res.Value), nil
}

// GetTokenBalance returns owner's balance of asset in its associated token account.
// A missing token account is a zero balance.
func (l *Ledger) GetTokenBalance(ctx context.Context, asset, owner string) (float64, error) {
	mint, err := solana.PublicKeyFromBase58(asset)
	if err != nil {
		return 0, fmt.Errorf("invalid mint %s: %w", asset, err)
	}
	ownerKey, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return 0, fmt.Errorf("invalid owner %s: %w", owner, err)
	}

	program, decimals, err := l.mintInfo(ctx, mint)
	if err != nil {
		return 0, err
	}
	ata, err := GetAssociatedTokenAddress(ownerKey, mint, program)
	if err != nil {
		return 0, err
	}
	raw, err := l.tokenAccountAmount(ctx, ata)
	if err != nil {
		return 0, err
	}
	return RawToUi(raw, decimals), nil
}

// PoolAddress returns the PumpSwap pool that receives liquidity for asset.
func (l *Ledger) PoolAddress(ctx context.Context, asset string) (string, error) {
	if l.poolAddress != "" {
		return l.poolAddress, nil
	}
	mint, err := solana.PublicKeyFromBase58(asset)
	if err != nil {
		return "", fmt.Errorf("invalid mint %s: %w", asset, err)
	}
	pool, err := CanonicalPoolAddress(mint)
	if err != nil {
		return "", err
	}
	return pool.String(), nil
}

// DepositLiquidity wraps sol into WSOL and deposits it with the matching token amount into pool.
func (l *Ledger) DepositLiquidity(ctx context.Context, pool string, sol float64) (LiquidityDeposit, error) {
	poolKey, state, err := l.poolState(ctx, pool)
	if err != nil {
		return LiquidityDeposit{}, err
	}
	if !state.QuoteMint.Equals(WSolMint) {
		return LiquidityDeposit{}, fmt.Errorf("pool %s is not quoted in SOL", pool)
	}

	lamports, err := SolToLamports(sol)
	if err != nil {
		return LiquidityDeposit{}, err
	}
	baseReserve, err := l.tokenAccountAmount(ctx, state.PoolBaseTokenAccount)
	if err != nil {
		return LiquidityDeposit{}, err
	}
	quoteReserve, err := l.tokenAccountAmount(ctx, state.PoolQuoteTokenAccount)
	if err != nil {
		return LiquidityDeposit{}, err
	}
	quote, err := utils.QuoteDepositByQuote(lamports, baseReserve, quoteReserve, state.LpSupply, l.depositBps)
	if err != nil {
		return LiquidityDeposit{}, fmt.Errorf("size deposit: %w", err)
	}

	baseProgram, baseDecimals, err := l.mintInfo(ctx, state.BaseMint)
	if err != nil {
		return LiquidityDeposit{}, err
	}
	_, lpDecimals, err := l.mintInfo(ctx, state.LpMint)
	if err != nil {
		return LiquidityDeposit{}, err
	}
	userBase, err := GetAssociatedTokenAddress(l.treasury, state.BaseMint, baseProgram)
	if err != nil {
		return LiquidityDeposit{}, err
	}
	held, err := l.tokenAccountAmount(ctx, userBase)
	if err != nil {
		return LiquidityDeposit{}, err
	}
	if held < quote.MaxBaseIn {
		return LiquidityDeposit{}, fmt.Errorf("treasury holds %d base units, deposit needs up to %d", held, quote.MaxBaseIn)
	}

	createWsol, userQuote, err := createATAIdempotentInstruction(l.treasury, l.treasury, WSolMint, solana.TokenProgramID)
	if err != nil {
		return LiquidityDeposit{}, err
	}
	createLp, userPool, err := createATAIdempotentInstruction(l.treasury, l.treasury, state.LpMint, Token2022ProgramID)
	if err != nil {
		return LiquidityDeposit{}, err
	}
	depositIx, err := NewDepositInstruction(DepositAccounts{
		Pool:                  poolKey,
		User:                  l.treasury,
		BaseMint:              state.BaseMint,
		QuoteMint:             state.QuoteMint,
		LpMint:                state.LpMint,
		UserBaseTokenAccount:  userBase,
		UserQuoteTokenAccount: userQuote,
		UserPoolTokenAccount:  userPool,
		PoolBaseTokenAccount:  state.PoolBaseTokenAccount,
		PoolQuoteTokenAccount: state.PoolQuoteTokenAccount,
		TokenProgram:          baseProgram,
	}, quote.LPOut, quote.MaxBaseIn, quote.MaxQuoteIn)
	if err != nil {
		return LiquidityDeposit{}, err
	}

	sig, err := l.sendInstructions(ctx, l.treasury,
		createWsol,
		system.NewTransferInstruction(quote.MaxQuoteIn, l.treasury, userQuote).Build(),
		syncNativeInstruction(userQuote),
		createLp,
		depositIx,
		closeAccountInstruction(solana.TokenProgramID, userQuote, l.treasury, l.treasury),
	)
	if err != nil {
		return LiquidityDeposit{Signature: sig}, err
	}

	l.log.WithFields(logrus.Fields{
		"pool":        pool,
		"lamports":    lamports,
		"lp_out":      quote.LPOut,
		"max_base_in": quote.MaxBaseIn,
		"signature":   sig,
	}).Info("liquidity deposited")

	return LiquidityDeposit{
		Signature:       sig,
		TokensDeposited: RawToUi(quote.MaxBaseIn, baseDecimals),
		LPTokens:        RawToUi(quote.LPOut, lpDecimals),
	}, nil
}

// Burn destroys lpTokens of pool's LP mint held by the treasury.
func (l *Ledger) Burn(ctx context.Context, pool string, lpTokens float64) (string, error) {
	_, state, err := l.poolState(ctx, pool)
	if err != nil {
		return "", err
	}
	program, decimals, err := l.mintInfo(ctx, state.LpMint)
	if err != nil {
		return "", err
	}
	raw, err := UiToRaw(lpTokens, decimals)
	if err != nil {
		return "", err
	}
	if raw == 0 {
		return "", fmt.Errorf("%w: burn of 0 LP tokens", ErrInvalidAmount)
	}
	account, err := GetAssociatedTokenAddress(l.treasury, state.LpMint, program)
	if err != nil {
		return "", err
	}
	return l.sendInstructions(ctx, l.treasury, burnInstruction(program, account, state.LpMint, l.treasury, raw))
}

func (l *Ledger) accountData(ctx context.Context, address solana.PublicKey) (*rpc.Account, error) {
	res, err := l.client.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: l.commitment,
	})
	if err != nil {
		return nil, err
	}
	if res == nil || res.Value == nil {
		return nil, rpc.ErrNotFound
	}
	return res.Value, nil
}

// mintInfo returns the token program that owns mint and the mint's decimals.
func (l *Ledger) mintInfo(ctx context.Context, mint solana.PublicKey) (solana.PublicKey, uint8, error) {
	account, err := l.accountData(ctx, mint)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("get mint %s: %w", mint, err)
	}
	data := account.Data.GetBinary()
	if len(data) < mintDecimalsOffset+1 {
		return solana.PublicKey{}, 0, fmt.Errorf("mint %s: account too short", mint)
	}
	return account.Owner, data[mintDecimalsOffset], nil
}

// tokenAccountAmount returns the raw amount held by a token account, 0 if it does not exist.
func (l *Ledger) tokenAccountAmount(ctx context.Context, address solana.PublicKey) (uint64, error) {
	account, err := l.accountData(ctx, address)
	if errors.Is(err, rpc.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get token account %s: %w", address, err)
	}
	return decodeTokenAmount(account.Data.GetBinary())
}

func (l *Ledger) poolState(ctx context.Context, pool string) (solana.PublicKey, *PoolState, error) {
	poolKey, err := solana.PublicKeyFromBase58(pool)
	if err != nil {
		return solana.PublicKey{}, nil, fmt.Errorf("invalid pool %s: %w", pool, err)
	}
	account, err := l.accountData(ctx, poolKey)
	if err != nil {
		return solana.PublicKey{}, nil, fmt.Errorf("get pool %s: %w", pool, err)
	}
	state, err := DecodePoolState(account.Data.GetBinary())
	if err != nil {
		return solana.PublicKey{}, nil, fmt.Errorf("decode pool %s: %w", pool, err)
	}
	return poolKey, state, nil
}

// Offsets into SPL mint and token account data. Token-2022 extensions follow these fields.
const (
	mintDecimalsOffset       = 44
	tokenAccountAmountOffset = 64
)

func decodeTokenAmount(data []byte) (uint64, error) {
	if len(data) < tokenAccountAmountOffset+8 {
		return 0, errors.New("token account too short")
	}
	return binary.LittleEndian.Uint64(data[tokenAccountAmountOffset : tokenAccountAmountOffset+8]), nil
}
