package utils

import (
	"errors"
	"math/big"
)

// ErrEmptyPool is returned when a pool has no reserves or no LP supply to price a deposit against.
var ErrEmptyPool = errors.New("pool has no reserves")

// DepositQuote sizes a two-sided constant-product deposit. All amounts are raw base units.
type DepositQuote struct {
	LPOut      uint64
	MaxBaseIn  uint64
	MaxQuoteIn uint64
}

// QuoteDepositByQuote sizes a deposit of quoteIn against reserves (base, quote) and lpSupply.
// The LP amount requested is shaved by slippageBps and the base side is padded by it,
// so the deposit lands even if the pool moves by up to that much.
func QuoteDepositByQuote(quoteIn, baseReserve, quoteReserve, lpSupply uint64, slippageBps int) (DepositQuote, error) {
	if baseReserve == 0 || quoteReserve == 0 || lpSupply == 0 {
		return DepositQuote{}, ErrEmptyPool
	}
	if slippageBps < 0 || slippageBps >= 10000 {
		return DepositQuote{}, errors.New("slippage bps out of range")
	}

	bps := big.NewInt(10000)
	q := new(big.Int).SetUint64(quoteIn)
	b := new(big.Int).SetUint64(baseReserve)
	qr := new(big.Int).SetUint64(quoteReserve)
	s := new(big.Int).SetUint64(lpSupply)

	// lp = quoteIn * supply / quoteReserve * (1 - slippage)
	lp := new(big.Int).Mul(q, s)
	lp.Quo(lp, qr)
	lp.Mul(lp, big.NewInt(int64(10000-slippageBps)))
	lp.Quo(lp, bps)
	if lp.Sign() == 0 {
		return DepositQuote{}, errors.New("deposit too small for one LP unit")
	}

	// base = ceil(lp * baseReserve / supply) * (1 + slippage)
	base := new(big.Int).Mul(lp, b)
	base.Add(base, new(big.Int).Sub(s, big.NewInt(1)))
	base.Quo(base, s)
	base.Mul(base, big.NewInt(int64(10000+slippageBps)))
	base.Quo(base, bps)

	if !lp.IsUint64() || !base.IsUint64() {
		return DepositQuote{}, errors.New("deposit quote overflows u64")
	}
	return DepositQuote{LPOut: lp.Uint64(), MaxBaseIn: base.Uint64(), MaxQuoteIn: quoteIn}, nil
}
