package solana

import "errors"

var (
	// ErrTransient marks failures that happened before anything was submitted
	// (trade API throttling, 5xx, network errors). Only these are safe to retry.
	ErrTransient = errors.New("transient ledger error")

	// ErrNoSignature means an operation reported success without a signature.
	ErrNoSignature = errors.New("operation returned no signature")

	// ErrTransactionFailed means the transaction landed and failed on chain.
	ErrTransactionFailed = errors.New("transaction failed on chain")

	// ErrUnconfirmed means a submitted transaction was not confirmed in time.
	// It may still land, so it is never retried.
	ErrUnconfirmed = errors.New("transaction not confirmed")

	ErrUnknownSigner = errors.New("no signer loaded for address")
	ErrInvalidAmount = errors.New("invalid amount")
)

// IsTransient reports whether err is safe to retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
