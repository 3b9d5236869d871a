package solana

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Wallets holds the signing keys the ledger may use, indexed by public key.
type Wallets struct {
	keys map[solana.PublicKey]solana.PrivateKey
}

func NewWallets(keys ...solana.PrivateKey) *Wallets {
	w := &Wallets{keys: make(map[solana.PublicKey]solana.PrivateKey, len(keys))}
	for _, k := range keys {
		w.keys[k.PublicKey()] = k
	}
	return w
}

// Get is a private-key getter for solana.Transaction.Sign.
func (w *Wallets) Get(key solana.PublicKey) *solana.PrivateKey {
	if k, ok := w.keys[key]; ok {
		return &k
	}
	return nil
}

func (w *Wallets) signer(address string) (solana.PrivateKey, error) {
	pub, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("invalid address %s: %w", address, err)
	}
	k, ok := w.keys[pub]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSigner, address)
	}
	return k, nil
}
