package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Signature statuses reported by SignatureStatus.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusFinalized = "finalized"
	StatusError     = "error"
)

// SignatureStatus checks a Solana transaction status.
func SignatureStatus(ctx context.Context, client *rpc.Client, signature solana.Signature) (string, error) {
	res, err := client.GetSignatureStatuses(ctx, true, signature)
	if err != nil {
		return "", fmt.Errorf("failed to get signature status: %w", err)
	}

	if res == nil || len(res.Value) == 0 || res.Value[0] == nil {
		return StatusPending, nil
	}

	status := res.Value[0]
	if status.Err != nil {
		errJSON, _ := json.Marshal(status.Err)
		return StatusError, fmt.Errorf("%w: %s", ErrTransactionFailed, string(errJSON))
	}

	switch status.ConfirmationStatus {
	case rpc.ConfirmationStatusFinalized:
		return StatusFinalized, nil
	case rpc.ConfirmationStatusConfirmed:
		return StatusConfirmed, nil
	}
	return StatusPending, nil
}

// sendInstructions wraps ixs in a fresh transaction paid by payer, then signs, sends and confirms it.
func (l *Ledger) sendInstructions(ctx context.Context, payer solana.PublicKey, ixs ...solana.Instruction) (string, error) {
	bh, err := l.client.GetLatestBlockhash(ctx, l.commitment)
	if err != nil {
		return "", fmt.Errorf("%w: latest blockhash: %v", ErrTransient, err)
	}
	tx, err := solana.NewTransaction(ixs, bh.Value.Blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return "", fmt.Errorf("build transaction: %w", err)
	}
	return l.signAndSend(ctx, tx)
}

// signAndSend signs tx with the loaded wallets, submits it and waits for confirmation.
// Anything after submission is non-transient: the transaction may already have landed.
func (l *Ledger) signAndSend(ctx context.Context, tx *solana.Transaction) (string, error) {
	tx.Signatures = nil
	if _, err := tx.Sign(l.wallets.Get); err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}

	sig, err := l.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: l.commitment,
	})
	if err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}
	if sig == (solana.Signature{}) {
		return "", ErrNoSignature
	}

	if err := l.confirm(ctx, sig); err != nil {
		return sig.String(), err
	}
	return sig.String(), nil
}

// confirm polls the signature status until it is confirmed, fails on chain, or the
// confirmation timeout passes.
func (l *Ledger) confirm(ctx context.Context, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, l.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		status, err := SignatureStatus(ctx, l.client, sig)
		switch {
		case status == StatusError:
			return err
		case status == StatusConfirmed || status == StatusFinalized:
			return nil
		case err != nil:
			l.log.WithError(err).WithField("signature", sig.String()).Debug("signature status lookup failed")
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s", ErrUnconfirmed, sig)
		case <-ticker.C:
		}
	}
}
