package solana

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brojonat/soldrop/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error)

	// GetAccountInfo returns ErrAccountNotFound when the address holds nothing.
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.Account, error)

	// GetTokenAccountsByOwner lists SPL token accounts of owner, restricted
	// to mint when it is non-nil.
	GetTokenAccountsByOwner(
		ctx context.Context,
		owner solana.PublicKey,
		mint *solana.PublicKey,
	) ([]*rpc.TokenAccount, error)

	GetLatestBlockhash(ctx context.Context) (solana.Hash, error)
	GetFeeForMessage(ctx context.Context, message string) (*uint64, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, signatures ...solana.Signature) ([]*rpc.SignatureStatusesResult, error)
	GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64) (uint64, error)
}

// MintCache stores mint decimals, which never change once a mint exists.
type MintCache interface {
	GetDecimals(ctx context.Context, mint solana.PublicKey) (decimals uint8, ok bool, err error)
	SetDecimals(ctx context.Context, mint solana.PublicKey, decimals uint8) error
}

// DefaultConfirmTimeout bounds ConfirmTransaction when no timeout is configured.
const DefaultConfirmTimeout = 90 * time.Second

// Client is the ledger connection used by the distribution engine.
// It wraps the RPC client with domain-specific operations.
type Client struct {
	rpc            RPCClient
	logger         *slog.Logger
	metrics        *metrics.Metrics
	endpoint       string // RPC endpoint identifier for metrics (e.g., "mainnet-beta", "devnet", rpc host)
	mintCache      MintCache
	confirmTimeout time.Duration
	pollInterval   time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithMintCache caches mint decimals lookups.
func WithMintCache(c MintCache) Option {
	return func(cl *Client) { cl.mintCache = c }
}

// WithConfirmTimeout sets how long ConfirmTransaction waits.
func WithConfirmTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.confirmTimeout = d
		}
	}
}

// WithPollInterval sets the signature status polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.pollInterval = d
		}
	}
}

// NewClient creates a new Solana client.
// The endpoint parameter is used for metrics labeling (e.g., "mainnet-beta", "devnet", or RPC hostname).
// If metrics is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, endpoint string, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := &Client{
		rpc:            rpcClient,
		logger:         logger,
		metrics:        m,
		endpoint:       endpoint,
		confirmTimeout: DefaultConfirmTimeout,
		pollInterval:   500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// observe records the outcome of one RPC call.
func (c *Client) observe(method string, start time.Time, err error) {
	status := "success"
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		status = "error"
		if strings.Contains(err.Error(), "429") {
			c.metrics.RecordRateLimitHit(c.endpoint)
		}
	}
	c.metrics.RecordRPCCall(method, status, c.endpoint, time.Since(start).Seconds())
}

// GetBalance returns the native balance of address in lamports.
func (c *Client) GetBalance(ctx context.Context, address solana.PublicKey) (uint64, error) {
	start := time.Now()
	balance, err := c.rpc.GetBalance(ctx, address)
	c.observe("GetBalance", start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance of %s: %w", address, err)
	}
	return balance, nil
}

// GetAccountInfo looks up an account. It returns ErrAccountNotFound when the
// address does not exist on the ledger at all.
func (c *Client) GetAccountInfo(ctx context.Context, address solana.PublicKey) (*AccountInfo, error) {
	start := time.Now()
	acct, err := c.rpc.GetAccountInfo(ctx, address)
	c.observe("GetAccountInfo", start, err)
	if errors.Is(err, ErrAccountNotFound) {
		return nil, fmt.Errorf("%s: %w", address, ErrAccountNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account info of %s: %w", address, err)
	}

	info := &AccountInfo{
		Address:  address,
		Owner:    acct.Owner,
		Lamports: acct.Lamports,
	}
	if acct.Data != nil {
		info.Data = acct.Data.GetBinary()
	}
	return info, nil
}

// GetTokenAccountsOwnedBy lists the token accounts of owner for mint.
func (c *Client) GetTokenAccountsOwnedBy(ctx context.Context, owner, mint solana.PublicKey) ([]TokenAccount, error) {
	return c.tokenAccounts(ctx, owner, &mint)
}

func (c *Client) tokenAccounts(ctx context.Context, owner solana.PublicKey, mint *solana.PublicKey) ([]TokenAccount, error) {
	start := time.Now()
	raw, err := c.rpc.GetTokenAccountsByOwner(ctx, owner, mint)
	c.observe("GetTokenAccountsByOwner", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get token accounts of %s: %w", owner, err)
	}

	accounts := make([]TokenAccount, 0, len(raw))
	for _, ta := range raw {
		if ta == nil || ta.Account == nil || ta.Account.Data == nil {
			continue
		}
		acct, err := decodeTokenAccount(ta.Pubkey, ta.Account.Data.GetBinary())
		if err != nil {
			c.logger.WarnContext(ctx, "skipping undecodable token account",
				"account", ta.Pubkey.String(),
				"error", err,
			)
			continue
		}
		accounts = append(accounts, acct)
	}
	return accounts, nil
}

// MintDecimals returns the decimal precision of mint, consulting the cache first.
func (c *Client) MintDecimals(ctx context.Context, mint solana.PublicKey) (uint8, error) {
	if c.mintCache != nil {
		decimals, ok, err := c.mintCache.GetDecimals(ctx, mint)
		switch {
		case err != nil:
			c.metrics.RecordMintCacheLookup("error")
			c.logger.WarnContext(ctx, "mint cache lookup failed", "mint", mint.String(), "error", err)
		case ok:
			c.metrics.RecordMintCacheLookup("hit")
			return decimals, nil
		default:
			c.metrics.RecordMintCacheLookup("miss")
		}
	}

	info, err := c.GetAccountInfo(ctx, mint)
	if err != nil {
		return 0, err
	}
	decimals, err := decodeMintDecimals(info.Data)
	if err != nil {
		return 0, fmt.Errorf("failed to read mint %s: %w", mint, err)
	}

	if c.mintCache != nil {
		if err := c.mintCache.SetDecimals(ctx, mint, decimals); err != nil {
			c.logger.WarnContext(ctx, "failed to cache mint decimals", "mint", mint.String(), "error", err)
		}
	}
	return decimals, nil
}

// ListOwnedTokens returns every token account of owner with its mint's decimals.
func (c *Client) ListOwnedTokens(ctx context.Context, owner solana.PublicKey) ([]TokenHolding, error) {
	accounts, err := c.tokenAccounts(ctx, owner, nil)
	if err != nil {
		return nil, err
	}

	holdings := make([]TokenHolding, 0, len(accounts))
	decimalsByMint := make(map[solana.PublicKey]uint8)
	for _, acct := range accounts {
		decimals, ok := decimalsByMint[acct.Mint]
		if !ok {
			decimals, err = c.MintDecimals(ctx, acct.Mint)
			if err != nil {
				return nil, err
			}
			decimalsByMint[acct.Mint] = decimals
		}
		holdings = append(holdings, TokenHolding{TokenAccount: acct, Decimals: decimals})
	}
	return holdings, nil
}

// SelectToken picks the owner's largest token account for mint.
func (c *Client) SelectToken(ctx context.Context, owner, mint solana.PublicKey) (*TokenHolding, error) {
	accounts, err := c.GetTokenAccountsOwnedBy(ctx, owner, mint)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("%s holds no account for mint %s: %w", owner, mint, ErrAccountNotFound)
	}

	best := accounts[0]
	for _, acct := range accounts[1:] {
		if acct.Amount > best.Amount {
			best = acct
		}
	}

	decimals, err := c.MintDecimals(ctx, mint)
	if err != nil {
		return nil, err
	}
	return &TokenHolding{TokenAccount: best, Decimals: decimals}, nil
}

// RecentBlockhash returns a recent blockhash for signing a transaction.
func (c *Client) RecentBlockhash(ctx context.Context) (solana.Hash, error) {
	start := time.Now()
	blockhash, err := c.rpc.GetLatestBlockhash(ctx)
	c.observe("GetLatestBlockhash", start, err)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("failed to get latest blockhash: %w", err)
	}
	return blockhash, nil
}

// RecentBlockhashAndFee returns a recent blockhash and the fee the cluster
// charges per signature, priced on a one-signature transfer paid by payer.
func (c *Client) RecentBlockhashAndFee(ctx context.Context, payer solana.PublicKey) (solana.Hash, uint64, error) {
	blockhash, err := c.RecentBlockhash(ctx)
	if err != nil {
		return solana.Hash{}, 0, err
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(0, payer, payer).Build()},
		blockhash,
		solana.TransactionPayer(payer),
	)
	if err != nil {
		return solana.Hash{}, 0, fmt.Errorf("failed to build fee message: %w", err)
	}
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return solana.Hash{}, 0, fmt.Errorf("failed to encode fee message: %w", err)
	}

	start = time.Now()
	fee, err := c.rpc.GetFeeForMessage(ctx, base64.StdEncoding.EncodeToString(msg))
	c.observe("GetFeeForMessage", start, err)
	if err != nil {
		return solana.Hash{}, 0, fmt.Errorf("failed to get fee for message: %w", err)
	}
	if fee == nil {
		c.logger.DebugContext(ctx, "node returned no fee, using default", "fee", DefaultFeePerSignature)
		return blockhash, DefaultFeePerSignature, nil
	}
	return blockhash, *fee, nil
}

// SendTransaction submits a signed transaction.
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	start := time.Now()
	sig, err := c.rpc.SendTransaction(ctx, tx)
	c.observe("SendTransaction", start, err)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	return sig, nil
}

// ConfirmTransaction waits until sig reaches confirmed commitment. It fails
// when the transaction errored on chain or the confirm timeout elapses.
func (c *Client) ConfirmTransaction(ctx context.Context, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		start := time.Now()
		statuses, err := c.rpc.GetSignatureStatuses(ctx, sig)
		c.observe("GetSignatureStatuses", start, err)
		if err != nil {
			c.logger.DebugContext(ctx, "signature status poll failed", "signature", sig.String(), "error", err)
		} else if len(statuses) > 0 && statuses[0] != nil {
			st := statuses[0]
			if st.Err != nil {
				return fmt.Errorf("transaction %s failed: %v", sig, st.Err)
			}
			if st.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				st.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("failed to confirm transaction %s: %w", sig, ctx.Err())
		case <-ticker.C:
		}
	}
}

// MinimumRentExemptBalance returns the rent-exempt minimum of a token account.
func (c *Client) MinimumRentExemptBalance(ctx context.Context) (uint64, error) {
	start := time.Now()
	lamports, err := c.rpc.GetMinimumBalanceForRentExemption(ctx, TokenAccountSize)
	c.observe("GetMinimumBalanceForRentExemption", start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to get rent exemption minimum: %w", err)
	}
	return lamports, nil
}
