// Package wallet is the sending wallet: a local keypair exposed through the
// connect, disconnect and sign operations of a browser wallet extension.
package wallet

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gagliardetto/solana-go"
)

var ErrInvalidKeypairFile = errors.New("invalid keypair file")

// DefaultKeypairPath is the solana-cli default, ~/.config/solana/id.json.
func DefaultKeypairPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, ".config", "solana", "id.json")
}

// LoadKeypair reads a solana-cli JSON byte array keypair, or a file holding a
// base58 encoded secret key.
func LoadKeypair(path string) (solana.PrivateKey, error) {
	if path == "" {
		return nil, fmt.Errorf("keypair path required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keypair: %w", err)
	}
	return ParseKeypair(raw)
}

// ParseKeypair decodes the contents of a keypair file.
func ParseKeypair(raw []byte) (solana.PrivateKey, error) {
	text := strings.TrimSpace(string(raw))

	var (
		key solana.PrivateKey
		err error
	)
	if strings.HasPrefix(text, "[") {
		key, err = solana.PrivateKeyFromSolanaKeygenFileBytes([]byte(text))
	} else {
		key, err = solana.PrivateKeyFromBase58(text)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeypairFile, err)
	}
	if err := checkKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

var keyCheckMessage = []byte("soldrop keypair check")

// checkKey verifies that the public half stored in the key belongs to its
// seed. Validate only checks that the public half is a curve point.
func checkKey(key solana.PrivateKey) error {
	if err := key.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKeypairFile, err)
	}
	sig, err := key.Sign(keyCheckMessage)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKeypairFile, err)
	}
	if !key.PublicKey().Verify(keyCheckMessage, sig) {
		return fmt.Errorf("%w: public key does not match secret key", ErrInvalidKeypairFile)
	}
	return nil
}
