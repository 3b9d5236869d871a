package venue

import (
	"errors"
	"fmt"
	"strings"

	"treasurycontrol/pkg/solana"
)

var (
	// ErrAllVenuesFailed is returned when both the preferred and the fallback venue failed.
	ErrAllVenuesFailed = errors.New("all venues failed")

	// ErrVenueSelection is returned when the persisted venue state could not be read.
	// It is never retried.
	ErrVenueSelection = errors.New("venue selection failed")

	// ErrBuyUnsettled is returned when a buy was submitted but its outcome is unknown.
	// It may still land, so neither the fallback venue nor a retry is attempted.
	ErrBuyUnsettled = errors.New("buy submitted but not settled")
)

// AttemptsError carries every failed attempt of a routed buy.
type AttemptsError struct {
	Attempts []Attempt
}

func (e *AttemptsError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Venue, a.Err))
	}
	return fmt.Sprintf("%s (%s)", ErrAllVenuesFailed, strings.Join(parts, "; "))
}

func (e *AttemptsError) Unwrap() []error {
	errs := []error{ErrAllVenuesFailed}
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}

// IsTransient reports whether a buy may be retried. A routed failure is only
// transient when every attempt failed before anything was submitted.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrVenueSelection) || errors.Is(err, ErrBuyUnsettled) {
		return false
	}
	var attempts *AttemptsError
	if errors.As(err, &attempts) {
		if len(attempts.Attempts) == 0 {
			return false
		}
		for _, a := range attempts.Attempts {
			if !solana.IsTransient(a.Err) {
				return false
			}
		}
		return true
	}
	return solana.IsTransient(err)
}

// unsettled reports whether a failed attempt may have landed on chain. A
// transaction that landed and failed spent nothing but fees.
func unsettled(a Attempt) bool {
	if a.Err == nil || errors.Is(a.Err, solana.ErrTransactionFailed) {
		return false
	}
	return a.Signature != "" || errors.Is(a.Err, solana.ErrUnconfirmed)
}
