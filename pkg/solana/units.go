package solana

import (
	"fmt"
	"math"

	"github.com/gagliardetto/solana-go"
)

// SolToLamports converts a SOL amount to lamports, rounding to the nearest lamport.
func SolToLamports(sol float64) (uint64, error) {
	if sol < 0 || math.IsNaN(sol) || math.IsInf(sol, 0) {
		return 0, fmt.Errorf("%w: %v SOL", ErrInvalidAmount, sol)
	}
	return uint64(math.Round(sol * float64(solana.LAMPORTS_PER_SOL))), nil
}

func LamportsToSol(lamports uint64) float64 {
	return float64(lamports) / float64(solana.LAMPORTS_PER_SOL)
}

// RawToUi converts a raw token amount to its decimal representation.
func RawToUi(raw uint64, decimals uint8) float64 {
	return float64(raw) / math.Pow10(int(decimals))
}

// UiToRaw converts a decimal token amount to raw units, rounding down so the
// result never exceeds the balance it was derived from.
func UiToRaw(ui float64, decimals uint8) (uint64, error) {
	if ui < 0 || math.IsNaN(ui) || math.IsInf(ui, 0) {
		return 0, fmt.Errorf("%w: %v tokens", ErrInvalidAmount, ui)
	}
	return uint64(math.Floor(ui * math.Pow10(int(decimals)))), nil
}
