package solana

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Commitment used for every read and for preflight on submission.
const Commitment = rpc.CommitmentConfirmed

// realRPCClient adapts the actual solana-go RPC client to our RPCClient interface.
// This adapter allows us to control the interface and makes testing easier.
type realRPCClient struct {
	client *rpc.Client
}

// NewRPCClient creates a new RPCClient that wraps the solana-go RPC client.
// For premium RPC endpoints that require API keys, include the key in the URL:
// - Helius: https://mainnet.helius-rpc.com/?api-key=YOUR-KEY
// - QuickNode: https://YOUR-ENDPOINT.quiknode.pro/YOUR-KEY/
func NewRPCClient(rpcURL string) RPCClient {
	return &realRPCClient{
		client: rpc.New(rpcURL),
	}
}

// SelectRandomEndpoint picks one endpoint so that several processes spread
// their load across the configured RPC providers.
func SelectRandomEndpoint(endpoints []string) (string, error) {
	if len(endpoints) == 0 {
		return "", fmt.Errorf("no RPC endpoints configured")
	}
	return endpoints[rand.IntN(len(endpoints))], nil
}

func (r *realRPCClient) GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	out, err := r.client.GetBalance(ctx, account, Commitment)
	if err != nil {
		return 0, err
	}
	return out.Value, nil
}

func (r *realRPCClient) GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.Account, error) {
	out, err := r.client.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: Commitment,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	if out == nil || out.Value == nil {
		return nil, ErrAccountNotFound
	}
	return out.Value, nil
}

func (r *realRPCClient) GetTokenAccountsByOwner(
	ctx context.Context,
	owner solana.PublicKey,
	mint *solana.PublicKey,
) ([]*rpc.TokenAccount, error) {
	conf := &rpc.GetTokenAccountsConfig{}
	if mint != nil {
		conf.Mint = mint
	} else {
		programID := solana.TokenProgramID
		conf.ProgramId = &programID
	}
	out, err := r.client.GetTokenAccountsByOwner(ctx, owner, conf, &rpc.GetTokenAccountsOpts{
		Commitment: Commitment,
		Encoding:   solana.EncodingBase64,
	})
	if err != nil {
		return nil, err
	}
	return out.Value, nil
}

func (r *realRPCClient) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	out, err := r.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Hash{}, err
	}
	return out.Value.Blockhash, nil
}

func (r *realRPCClient) GetFeeForMessage(ctx context.Context, message string) (*uint64, error) {
	out, err := r.client.GetFeeForMessage(ctx, message, Commitment)
	if err != nil {
		return nil, err
	}
	return out.Value, nil
}

func (r *realRPCClient) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	return r.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: Commitment,
	})
}

func (r *realRPCClient) GetSignatureStatuses(
	ctx context.Context,
	signatures ...solana.Signature,
) ([]*rpc.SignatureStatusesResult, error) {
	out, err := r.client.GetSignatureStatuses(ctx, false, signatures...)
	if err != nil {
		return nil, err
	}
	return out.Value, nil
}

func (r *realRPCClient) GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64) (uint64, error) {
	return r.client.GetMinimumBalanceForRentExemption(ctx, dataSize, Commitment)
}
