package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gagliardetto/solana-go"
)

var ErrNotConnected = errors.New("wallet not connected")

// KeypairWallet signs with a keypair loaded from disk on Connect.
type KeypairWallet struct {
	path   string
	logger *slog.Logger

	mu  sync.RWMutex
	key solana.PrivateKey
}

// NewKeypairWallet creates a disconnected wallet for the keypair at path.
func NewKeypairWallet(path string, logger *slog.Logger) *KeypairWallet {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &KeypairWallet{path: path, logger: logger}
}

// Connect loads the keypair.
func (w *KeypairWallet) Connect(ctx context.Context) error {
	key, err := LoadKeypair(w.path)
	if err != nil {
		return fmt.Errorf("failed to connect wallet: %w", err)
	}
	w.mu.Lock()
	w.key = key
	w.mu.Unlock()

	w.logger.InfoContext(ctx, "wallet connected", "address", key.PublicKey().String())
	return nil
}

// Disconnect forgets the key.
func (w *KeypairWallet) Disconnect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.key == nil {
		return nil
	}
	clear(w.key)
	w.key = nil
	w.logger.InfoContext(ctx, "wallet disconnected")
	return nil
}

// Connected reports whether a key is loaded.
func (w *KeypairWallet) Connected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.key != nil
}

// PublicKey returns the wallet address, or the zero key while disconnected.
func (w *KeypairWallet) PublicKey() solana.PublicKey {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.key == nil {
		return solana.PublicKey{}
	}
	return w.key.PublicKey()
}

// SignTransaction signs tx. The wallet must be the only required signer.
func (w *KeypairWallet) SignTransaction(ctx context.Context, tx *solana.Transaction) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.key == nil {
		return ErrNotConnected
	}

	pub := w.key.PublicKey()
	_, err := tx.Sign(func(k solana.PublicKey) *solana.PrivateKey {
		if k.Equals(pub) {
			return &w.key
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to sign transaction: %w", err)
	}
	return nil
}
