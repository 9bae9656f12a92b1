package airdrop

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	ledger "github.com/brojonat/soldrop/service/solana"
)

const (
	testRent = uint64(2_039_280)
	testFee  = uint64(5_000)
)

// fakeLedger is an in-memory ledger. Transfers are keyed by the token
// account they deliver to.
type fakeLedger struct {
	mu sync.Mutex

	balances map[solana.PublicKey]uint64
	accounts map[solana.PublicKey]*ledger.AccountInfo
	owned    map[solana.PublicKey][]ledger.TokenAccount
	rent     uint64
	fee      uint64

	lookupErr  map[solana.PublicKey]error
	sendErr    map[solana.PublicKey]error
	confirmErr map[solana.PublicKey]error
	fundingErr error

	sent    []*solana.Transaction
	pending map[solana.Signature]error

	blockhashCalls int
	feeCalls       int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		balances:   make(map[solana.PublicKey]uint64),
		accounts:   make(map[solana.PublicKey]*ledger.AccountInfo),
		owned:      make(map[solana.PublicKey][]ledger.TokenAccount),
		rent:       testRent,
		fee:        testFee,
		lookupErr:  make(map[solana.PublicKey]error),
		sendErr:    make(map[solana.PublicKey]error),
		confirmErr: make(map[solana.PublicKey]error),
		pending:    make(map[solana.Signature]error),
	}
}

func newKey() solana.PublicKey {
	return solana.NewWallet().PublicKey()
}

func tokenAccountData(mint, owner solana.PublicKey, amount uint64) []byte {
	data := make([]byte, ledger.TokenAccountSize)
	copy(data[0:32], mint[:])
	copy(data[32:64], owner[:])
	binary.LittleEndian.PutUint64(data[64:72], amount)
	return data
}

// addWallet registers a plain system account.
func (f *fakeLedger) addWallet(addr solana.PublicKey) {
	f.accounts[addr] = &ledger.AccountInfo{Address: addr, Owner: solana.SystemProgramID, Lamports: 1_000_000}
}

// addHolder registers a system account that already owns a token account
// of mint and returns that token account.
func (f *fakeLedger) addHolder(owner, mint solana.PublicKey) solana.PublicKey {
	f.addWallet(owner)
	ata := newKey()
	f.accounts[ata] = &ledger.AccountInfo{
		Address: ata,
		Owner:   solana.TokenProgramID,
		Data:    tokenAccountData(mint, owner, 0),
	}
	f.owned[owner] = append(f.owned[owner], ledger.TokenAccount{Address: ata, Mint: mint, Owner: owner})
	return ata
}

func (f *fakeLedger) GetBalance(ctx context.Context, address solana.PublicKey) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[address], nil
}

func (f *fakeLedger) GetTokenAccountsOwnedBy(ctx context.Context, owner, mint solana.PublicKey) ([]ledger.TokenAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ledger.TokenAccount
	for _, ta := range f.owned[owner] {
		if ta.Mint.Equals(mint) {
			out = append(out, ta)
		}
	}
	return out, nil
}

func (f *fakeLedger) GetAccountInfo(ctx context.Context, address solana.PublicKey) (*ledger.AccountInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.lookupErr[address]; err != nil {
		return nil, err
	}
	info, ok := f.accounts[address]
	if !ok {
		return nil, fmt.Errorf("%s: %w", address, ledger.ErrAccountNotFound)
	}
	return info, nil
}

func (f *fakeLedger) RecentBlockhash(ctx context.Context) (solana.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blockhashCalls++
	return solana.Hash{1, 2, 3}, nil
}

func (f *fakeLedger) RecentBlockhashAndFee(ctx context.Context, payer solana.PublicKey) (solana.Hash, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feeCalls++
	return solana.Hash{1, 2, 3}, f.fee, nil
}

func (f *fakeLedger) MinimumRentExemptBalance(ctx context.Context) (uint64, error) {
	return f.rent, nil
}

func (f *fakeLedger) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	summaries, err := ledger.InspectInstructions(tx)
	if err != nil {
		return solana.Signature{}, err
	}
	if len(tx.Signatures) == 0 || tx.Signatures[0] == (solana.Signature{}) {
		return solana.Signature{}, errors.New("transaction is not signed")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var dest solana.PublicKey
	funding := false
	for _, s := range summaries {
		switch s.Kind {
		case ledger.KindSystemTransfer:
			funding = true
		case ledger.KindTokenTransferChecked:
			dest = solana.MustPublicKeyFromBase58(s.Destination)
		}
	}
	if funding && f.fundingErr != nil {
		return solana.Signature{}, f.fundingErr
	}
	if err := f.sendErr[dest]; err != nil {
		return solana.Signature{}, err
	}
	created, err := f.createdAccounts(tx)
	if err != nil {
		return solana.Signature{}, err
	}

	sig := tx.Signatures[0]
	f.sent = append(f.sent, tx)
	f.pending[sig] = f.confirmErr[dest]
	if f.confirmErr[dest] == nil {
		for _, ta := range created {
			f.accounts[ta.Address] = &ledger.AccountInfo{
				Address: ta.Address,
				Owner:   solana.TokenProgramID,
				Data:    tokenAccountData(ta.Mint, ta.Owner, 0),
			}
			f.owned[ta.Owner] = append(f.owned[ta.Owner], ta)
		}
	}
	return sig, nil
}

// createdAccounts returns the associated accounts tx creates. A plain
// create of an existing account fails the way the cluster does; the
// idempotent variant passes. Callers hold f.mu.
func (f *fakeLedger) createdAccounts(tx *solana.Transaction) ([]ledger.TokenAccount, error) {
	keys := tx.Message.AccountKeys
	var out []ledger.TokenAccount
	for _, ci := range tx.Message.Instructions {
		if !keys[ci.ProgramIDIndex].Equals(solana.SPLAssociatedTokenAccountProgramID) {
			continue
		}
		ta := ledger.TokenAccount{
			Address: keys[ci.Accounts[1]],
			Owner:   keys[ci.Accounts[2]],
			Mint:    keys[ci.Accounts[3]],
		}
		idempotent := len(ci.Data) > 0 && ci.Data[0] == ledger.AssociatedTokenCreateIdempotentInstruction
		if _, exists := f.accounts[ta.Address]; exists && !idempotent {
			return nil, fmt.Errorf("create account %s: already in use", ta.Address)
		}
		out = append(out, ta)
	}
	return out, nil
}

func (f *fakeLedger) ConfirmTransaction(ctx context.Context, sig solana.Signature) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err, ok := f.pending[sig]
	if !ok {
		return errors.New("unknown signature")
	}
	return err
}

// sentTransfers returns the per-recipient transactions, keyed by the
// token account they deliver to.
func (f *fakeLedger) sentTransfers(t *testing.T) map[solana.PublicKey][]ledger.InstructionSummary {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[solana.PublicKey][]ledger.InstructionSummary)
	for _, tx := range f.sent {
		summaries, err := ledger.InspectInstructions(tx)
		require.NoError(t, err)
		if summaries[0].Kind == ledger.KindSystemTransfer {
			continue
		}
		last := summaries[len(summaries)-1]
		out[solana.MustPublicKeyFromBase58(last.Destination)] = summaries
	}
	return out
}

func (f *fakeLedger) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// fakeWallet signs with an in-memory key.
type fakeWallet struct {
	key solana.PrivateKey
	err error
}

func newFakeWallet() *fakeWallet {
	return &fakeWallet{key: solana.NewWallet().PrivateKey}
}

func (w *fakeWallet) PublicKey() solana.PublicKey { return w.key.PublicKey() }

func (w *fakeWallet) SignTransaction(ctx context.Context, tx *solana.Transaction) error {
	if w.err != nil {
		return w.err
	}
	_, err := tx.Sign(func(k solana.PublicKey) *solana.PrivateKey {
		if k.Equals(w.key.PublicKey()) {
			return &w.key
		}
		return nil
	})
	return err
}

// testToken returns a 6-decimal token with 1000 whole tokens in source.
func testToken() SelectedToken {
	return SelectedToken{
		Mint:          newKey(),
		SourceAccount: newKey(),
		Decimals:      6,
		Balance:       1_000_000_000,
	}
}
