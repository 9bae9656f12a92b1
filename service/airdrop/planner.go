package airdrop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/bits"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/brojonat/soldrop/service/batch"
	"github.com/brojonat/soldrop/service/metrics"
	"github.com/brojonat/soldrop/service/recipients"
)

var (
	ErrInsufficientTokens = errors.New("insufficient token balance")
	ErrInsufficientNative = errors.New("insufficient native balance")
	ErrNoRecipients       = errors.New("no recipients with a valid address")
	errOverflow           = errors.New("lamport requirement overflows")
)

// PlanError is a run-fatal planning failure. Nothing has moved when it is
// returned, so the run can be retried.
type PlanError struct {
	Reason string
	Err    error
}

func (e *PlanError) Error() string { return "plan rejected: " + e.Reason }
func (e *PlanError) Unwrap() error { return e.Err }

// SamplePolicy decides how many recipients are checked when counting the
// associated accounts a run will create.
type SamplePolicy string

const (
	// SamplePrefix checks the first SampleLimit recipients and counts only those.
	SamplePrefix SamplePolicy = "prefix"
	// SampleExtrapolate checks the first SampleLimit recipients and scales
	// the count to the full list, rounding up.
	SampleExtrapolate SamplePolicy = "extrapolate"
	// SampleAll checks every recipient.
	SampleAll SamplePolicy = "all"
)

// ParseSamplePolicy validates a policy name.
func ParseSamplePolicy(s string) (SamplePolicy, error) {
	switch p := SamplePolicy(s); p {
	case SamplePrefix, SampleExtrapolate, SampleAll:
		return p, nil
	default:
		return "", fmt.Errorf("unknown sample policy %q (want prefix, extrapolate or all)", s)
	}
}

// PlanOptions configures the Planner.
type PlanOptions struct {
	SampleLimit   int
	SamplePolicy  SamplePolicy
	FeeMultiplier uint64
	Batch         batch.Options
}

// Recipient is an actionable row with its parsed amount.
type Recipient struct {
	RowID     uuid.UUID        `json:"row_id"`
	Address   solana.PublicKey `json:"address"`
	Amount    decimal.Decimal  `json:"amount"`
	BaseUnits uint64           `json:"base_units"`
}

// Plan is what a run needs before any value moves.
type Plan struct {
	Recipients        []Recipient     `json:"recipients"`
	TotalTokens       decimal.Decimal `json:"total_tokens"`
	TotalBaseUnits    uint64          `json:"total_base_units"`
	NewAccounts       int             `json:"new_accounts"`
	SampledRecipients int             `json:"sampled_recipients"`
	SamplePolicy      SamplePolicy    `json:"sample_policy"`
	RentExemptMinimum uint64          `json:"rent_exempt_minimum"`
	FeePerSignature   uint64          `json:"fee_per_signature"`
	RequiredLamports  uint64          `json:"required_lamports"`
	WalletBalance     uint64          `json:"wallet_balance"`
}

// Planner computes token and native-currency sufficiency.
type Planner struct {
	ledger  Ledger
	opts    PlanOptions
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewPlanner creates a Planner. Zero options fall back to a sample limit of
// 20, the extrapolate policy and a fee multiplier of 1.
func NewPlanner(l Ledger, opts PlanOptions, m *metrics.Metrics, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.SampleLimit <= 0 {
		opts.SampleLimit = 20
	}
	if opts.SamplePolicy == "" {
		opts.SamplePolicy = SampleExtrapolate
	}
	if opts.FeeMultiplier == 0 {
		opts.FeeMultiplier = 1
	}
	if opts.Batch.Logger == nil {
		opts.Batch.Logger = logger
	}
	return &Planner{ledger: l, opts: opts, metrics: m, logger: logger}
}

// Recipients returns the actionable rows of rows with parsed amounts.
func Recipients(rows []recipients.Row, decimals uint8) ([]Recipient, error) {
	var out []Recipient
	for _, row := range rows {
		addr, ok := row.Address()
		if !ok {
			continue
		}
		amount, err := ParseAmount(row.Amount, decimals)
		if err != nil {
			return nil, fmt.Errorf("row %s (%s): %w", row.ID, addr, err)
		}
		units, err := ToBaseUnits(amount, decimals)
		if err != nil {
			return nil, fmt.Errorf("row %s (%s): %w", row.ID, addr, err)
		}
		out = append(out, Recipient{RowID: row.ID, Address: addr, Amount: amount, BaseUnits: units})
	}
	return out, nil
}

// Plan checks that wallet can fund a run over rows. Only rows with a Valid
// destination take part. It reads chain state but changes nothing.
func (p *Planner) Plan(ctx context.Context, wallet solana.PublicKey, token SelectedToken, rows []recipients.Row) (*Plan, error) {
	rcpts, err := Recipients(rows, token.Decimals)
	if err != nil {
		return nil, p.reject("invalid_amount", &PlanError{Reason: err.Error(), Err: ErrInvalidAmount})
	}
	if len(rcpts) == 0 {
		return nil, p.reject("no_recipients", &PlanError{Reason: ErrNoRecipients.Error(), Err: ErrNoRecipients})
	}

	amounts := make([]decimal.Decimal, len(rcpts))
	for i, r := range rcpts {
		amounts[i] = r.Amount
	}
	total := SumAmounts(amounts, token.Decimals)
	totalUnits, err := ToBaseUnits(total, token.Decimals)
	if err != nil {
		return nil, p.reject("invalid_amount", &PlanError{Reason: err.Error(), Err: ErrInvalidAmount})
	}

	plan := &Plan{
		Recipients:     rcpts,
		TotalTokens:    total,
		TotalBaseUnits: totalUnits,
		SamplePolicy:   p.opts.SamplePolicy,
	}

	// Equal is insufficient.
	if totalUnits >= token.Balance {
		return nil, p.reject("insufficient_tokens", &PlanError{
			Reason: fmt.Sprintf("distribution needs %s tokens but only %s are available", total, token.AvailableBalance()),
			Err:    ErrInsufficientTokens,
		})
	}

	if plan.RentExemptMinimum, err = p.ledger.MinimumRentExemptBalance(ctx); err != nil {
		return nil, fmt.Errorf("failed to plan: %w", err)
	}
	if _, plan.FeePerSignature, err = p.ledger.RecentBlockhashAndFee(ctx, wallet); err != nil {
		return nil, fmt.Errorf("failed to plan: %w", err)
	}

	created, sampled := p.countNewAccounts(ctx, wallet, token.Mint, rcpts)
	plan.NewAccounts = 1 + created // the temporary signer's own account
	plan.SampledRecipients = sampled

	plan.RequiredLamports, err = requiredLamports(
		uint64(plan.NewAccounts), plan.RentExemptMinimum,
		uint64(len(rcpts))+1, plan.FeePerSignature,
		p.opts.FeeMultiplier,
	)
	if err != nil {
		return nil, p.reject("overflow", &PlanError{Reason: err.Error(), Err: ErrInsufficientNative})
	}

	if plan.WalletBalance, err = p.ledger.GetBalance(ctx, wallet); err != nil {
		return nil, fmt.Errorf("failed to plan: %w", err)
	}
	if plan.RequiredLamports >= plan.WalletBalance {
		return nil, p.reject("insufficient_native", &PlanError{
			Reason: fmt.Sprintf("distribution needs %d lamports but the wallet holds %d", plan.RequiredLamports, plan.WalletBalance),
			Err:    ErrInsufficientNative,
		})
	}

	p.metrics.RecordPlan(plan.RequiredLamports, plan.NewAccounts)
	p.logger.InfoContext(ctx, "plan accepted",
		"recipients", len(rcpts),
		"total_tokens", total.String(),
		"new_accounts", plan.NewAccounts,
		"sampled", plan.SampledRecipients,
		"required_lamports", plan.RequiredLamports,
		"wallet_balance", plan.WalletBalance,
	)
	return plan, nil
}

func (p *Planner) reject(reason string, err *PlanError) error {
	p.metrics.RecordPlanRejected(reason)
	p.logger.Warn("plan rejected", "reason", reason, "error", err.Reason)
	return err
}

// countNewAccounts resolves a sample of distinct recipient addresses and
// returns how many new associated accounts the run is estimated to create,
// plus the sample size. An address listed on several rows needs at most one
// account. A recipient whose check fails is counted as needing an account.
func (p *Planner) countNewAccounts(ctx context.Context, payer, mint solana.PublicKey, rcpts []Recipient) (created, sampled int) {
	seen := make(map[solana.PublicKey]struct{}, len(rcpts))
	owners := make([]solana.PublicKey, 0, len(rcpts))
	for _, r := range rcpts {
		if _, dup := seen[r.Address]; dup {
			continue
		}
		seen[r.Address] = struct{}{}
		owners = append(owners, r.Address)
	}

	sample := owners
	if p.opts.SamplePolicy != SampleAll && len(sample) > p.opts.SampleLimit {
		sample = sample[:p.opts.SampleLimit]
	}

	opts := p.opts.Batch
	opts.OnBatch = func(_, size int, elapsed time.Duration) {
		p.metrics.RecordBatch("plan", size, elapsed.Seconds())
	}
	results := batch.Run(ctx, sample, opts, func(ctx context.Context, owner solana.PublicKey, _ int) (bool, error) {
		res, err := Resolve(ctx, p.ledger, owner, mint, payer)
		if _, skip := skipReason(err); skip {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return res.NeedsAccount(), nil
	})

	for _, res := range results {
		if !res.OK || res.Value {
			created++
		}
	}

	if p.opts.SamplePolicy == SampleExtrapolate && len(sample) > 0 && len(sample) < len(owners) {
		// ceil(created * total / sampled)
		created = (created*len(owners) + len(sample) - 1) / len(sample)
	}
	return created, len(sample)
}

// requiredLamports is (accounts*rent + signatures*fee) * multiplier.
func requiredLamports(accounts, rent, signatures, fee, multiplier uint64) (uint64, error) {
	hi, rentTotal := bits.Mul64(accounts, rent)
	if hi != 0 {
		return 0, errOverflow
	}
	hi, feeTotal := bits.Mul64(signatures, fee)
	if hi != 0 {
		return 0, errOverflow
	}
	sum, carry := bits.Add64(rentTotal, feeTotal, 0)
	if carry != 0 {
		return 0, errOverflow
	}
	hi, total := bits.Mul64(sum, multiplier)
	if hi != 0 {
		return 0, errOverflow
	}
	return total, nil
}
