package airdrop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/google/uuid"

	"github.com/brojonat/soldrop/service/batch"
	"github.com/brojonat/soldrop/service/metrics"
	natspkg "github.com/brojonat/soldrop/service/nats"
	"github.com/brojonat/soldrop/service/recipients"
)

var (
	ErrCancelled        = errors.New("run cancelled at acknowledgement")
	ErrRunInProgress    = errors.New("a run is already in progress")
	ErrNoTokenSelected  = errors.New("no token selected")
	ErrReportNotWritten = errors.New("report export failed")
)

// Phase is a state of the distribution state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePlanning
	PhaseAwaitingAcknowledgement
	PhaseFunding
	PhaseDistributing
	PhaseReporting
	PhaseDone
	PhaseAborted
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePlanning:
		return "planning"
	case PhaseAwaitingAcknowledgement:
		return "awaiting_acknowledgement"
	case PhaseFunding:
		return "funding"
	case PhaseDistributing:
		return "distributing"
	case PhaseReporting:
		return "reporting"
	case PhaseDone:
		return "done"
	case PhaseAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// busy reports whether a run currently owns the distributor.
func (p Phase) busy() bool {
	switch p {
	case PhaseIdle, PhaseDone, PhaseAborted:
		return false
	default:
		return true
	}
}

// Acknowledger is the manual checkpoint before funding. It receives the
// temporary signer backup and returns nil only once the user has saved it.
// Any error cancels the run.
type Acknowledger interface {
	Acknowledge(ctx context.Context, backup SignerBackup) error
}

// AcknowledgerFunc adapts a function to Acknowledger.
type AcknowledgerFunc func(ctx context.Context, backup SignerBackup) error

func (f AcknowledgerFunc) Acknowledge(ctx context.Context, backup SignerBackup) error {
	return f(ctx, backup)
}

// ProgressPublisher receives every row transition of a run.
type ProgressPublisher interface {
	PublishRowEvent(ctx context.Context, event *natspkg.RowEvent) error
}

// Options configures a Distributor.
type Options struct {
	Batch batch.Options
	Plan  PlanOptions
}

// Deps are the collaborators of a Distributor. Sink, Publisher, Metrics and
// Logger are optional.
type Deps struct {
	Ledger       Ledger
	Wallet       Wallet
	Acknowledger Acknowledger
	Sink         ReportSink
	Publisher    ProgressPublisher
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

// Snapshot is a point-in-time view of a distributor.
type Snapshot struct {
	RunID  string           `json:"run_id,omitempty"`
	Phase  Phase            `json:"phase"`
	Token  *SelectedToken   `json:"token,omitempty"`
	Plan   *Plan            `json:"plan,omitempty"`
	Signer string           `json:"signer,omitempty"`
	Error  string           `json:"error,omitempty"`
	Rows   []recipients.Row `json:"rows"`
	Report *Report          `json:"report,omitempty"`
}

// Distributor owns the application state of one session: the recipient
// rows, the selected token and the current run. All state changes go
// through its methods.
type Distributor struct {
	deps    Deps
	opts    Options
	store   *recipients.Store
	planner *Planner
	logger  *slog.Logger

	mu     sync.RWMutex
	phase  Phase
	runID  uuid.UUID
	token  *SelectedToken
	plan   *Plan
	signer solana.PublicKey
	err    error
	report *Report
}

// NewDistributor creates a distributor over store.
func NewDistributor(store *recipients.Store, deps Deps, opts Options) *Distributor {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Batch.Logger == nil {
		opts.Batch.Logger = deps.Logger
	}
	opts.Plan.Batch = opts.Batch

	d := &Distributor{
		deps:    deps,
		opts:    opts,
		store:   store,
		planner: NewPlanner(deps.Ledger, opts.Plan, deps.Metrics, deps.Logger),
		logger:  deps.Logger,
	}
	store.Subscribe(d.onRowChange)
	return d
}

// Store returns the recipient rows.
func (d *Distributor) Store() *recipients.Store { return d.store }

// SelectToken sets the token for the next run.
func (d *Distributor) SelectToken(t SelectedToken) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.phase.busy() {
		return ErrRunInProgress
	}
	d.token = &t
	return nil
}

// Phase returns the current phase.
func (d *Distributor) Phase() Phase {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.phase
}

// Snapshot returns the current phase, run data and rows.
func (d *Distributor) Snapshot() Snapshot {
	d.mu.RLock()
	s := Snapshot{
		Phase:  d.phase,
		Token:  d.token,
		Plan:   d.plan,
		Report: d.report,
	}
	if d.runID != uuid.Nil {
		s.RunID = d.runID.String()
	}
	if !d.signer.IsZero() {
		s.Signer = d.signer.String()
	}
	if d.err != nil {
		s.Error = d.err.Error()
	}
	d.mu.RUnlock()

	s.Rows = d.store.Snapshot()
	return s
}

func (d *Distributor) setPhase(ctx context.Context, p Phase) {
	d.mu.Lock()
	prev := d.phase
	d.phase = p
	d.mu.Unlock()
	d.logger.InfoContext(ctx, "phase changed", "from", prev.String(), "to", p.String())
}

func (d *Distributor) fail(ctx context.Context, p Phase, err error) error {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
	d.setPhase(ctx, p)
	return err
}

// begin claims the distributor for a run.
func (d *Distributor) begin() (SelectedToken, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.phase.busy() {
		return SelectedToken{}, ErrRunInProgress
	}
	if d.token == nil {
		return SelectedToken{}, ErrNoTokenSelected
	}
	d.phase = PhasePlanning
	d.runID = uuid.New()
	d.plan = nil
	d.signer = solana.PublicKey{}
	d.err = nil
	d.report = nil
	return *d.token, nil
}

// runRows returns the rows taking part in a run: every non-blank row.
func runRows(rows []recipients.Row) []recipients.Row {
	out := make([]recipients.Row, 0, len(rows))
	for _, r := range rows {
		if !r.IsBlank() {
			out = append(out, r)
		}
	}
	return out
}

// Plan runs planning alone and returns to Idle. Nothing is sent.
func (d *Distributor) Plan(ctx context.Context) (*Plan, error) {
	selected, err := d.begin()
	if err != nil {
		return nil, err
	}
	d.store.ResetStates()

	plan, err := d.planner.Plan(ctx, d.deps.Wallet.PublicKey(), selected, runRows(d.store.Snapshot()))
	if err != nil {
		return nil, d.fail(ctx, PhaseIdle, err)
	}

	d.mu.Lock()
	d.plan = plan
	d.mu.Unlock()
	d.setPhase(ctx, PhaseIdle)
	return plan, nil
}

// Run executes a full distribution: plan, acknowledge, fund, distribute and
// report. Planning failures and a declined acknowledgement return to Idle
// with nothing moved. A funding failure aborts the run before any transfer.
// Once distributing starts the run always completes; ctx cancellation no
// longer applies and per-row failures only show up in row states and the
// report.
func (d *Distributor) Run(ctx context.Context) (*Report, error) {
	selected, err := d.begin()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	finish := func(phase Phase) {
		d.deps.Metrics.RecordRun(phase.String(), time.Since(start).Seconds())
	}

	d.store.ResetStates()
	rows := runRows(d.store.Snapshot())
	wallet := d.deps.Wallet.PublicKey()

	d.logger.InfoContext(ctx, "run started",
		"run_id", d.runID.String(),
		"rows", len(rows),
		"mint", selected.Mint.String(),
	)

	// Planning
	plan, err := d.planner.Plan(ctx, wallet, selected, rows)
	if err != nil {
		finish(PhaseIdle)
		return nil, d.fail(ctx, PhaseIdle, err)
	}
	d.mu.Lock()
	d.plan = plan
	d.mu.Unlock()

	// Acknowledgement
	signer, err := NewTemporarySigner()
	if err != nil {
		finish(PhaseIdle)
		return nil, d.fail(ctx, PhaseIdle, err)
	}
	defer signer.Discard()

	d.mu.Lock()
	d.signer = signer.PublicKey()
	d.mu.Unlock()

	backup, err := signer.BeginAcknowledgement()
	if err != nil {
		finish(PhaseIdle)
		return nil, d.fail(ctx, PhaseIdle, err)
	}
	d.setPhase(ctx, PhaseAwaitingAcknowledgement)
	if err := d.deps.Acknowledger.Acknowledge(ctx, backup); err != nil {
		if !errors.Is(err, ErrCancelled) {
			err = fmt.Errorf("%w: %w", ErrCancelled, err)
		}
		finish(PhaseIdle)
		return nil, d.fail(ctx, PhaseIdle, err)
	}
	if err := signer.Acknowledge(); err != nil {
		finish(PhaseIdle)
		return nil, d.fail(ctx, PhaseIdle, err)
	}

	// Funding
	d.setPhase(ctx, PhaseFunding)
	fundStart := time.Now()
	fundSig, err := signer.Fund(ctx, d.deps.Ledger, d.deps.Wallet, selected, plan)
	if err != nil {
		d.deps.Metrics.RecordFunding("error", time.Since(fundStart).Seconds())
		d.logger.ErrorContext(ctx, "funding failed", "signer", signer.PublicKey().String(), "error", err)
		finish(PhaseAborted)
		return nil, d.fail(ctx, PhaseAborted, err)
	}
	d.deps.Metrics.RecordFunding("success", time.Since(fundStart).Seconds())
	d.logger.InfoContext(ctx, "temporary signer funded",
		"signer", signer.PublicKey().String(),
		"signature", fundSig.String(),
		"lamports", plan.RequiredLamports,
		"tokens", plan.TotalTokens.String(),
	)

	// Distributing
	d.setPhase(ctx, PhaseDistributing)
	dctx := context.WithoutCancel(ctx)
	d.distribute(dctx, signer, selected, plan, rows)
	signer.Discard()

	// Reporting
	d.setPhase(ctx, PhaseReporting)
	report := BuildReport(d.rowsByID(rows))
	d.mu.Lock()
	d.report = report
	d.mu.Unlock()

	succeeded, failed, skipped := report.Counts()
	d.logger.InfoContext(ctx, "run finished",
		"run_id", d.runID.String(),
		"succeeded", succeeded,
		"failed", failed,
		"skipped", skipped,
	)

	if d.deps.Sink == nil {
		finish(PhaseDone)
		d.setPhase(ctx, PhaseDone)
		return report, nil
	}
	if err := d.deps.Sink.WriteReport(dctx, report); err != nil {
		d.logger.ErrorContext(ctx, "failed to export report", "error", err)
		finish(PhaseDone)
		return report, d.fail(ctx, PhaseDone, fmt.Errorf("%w: %w", ErrReportNotWritten, err))
	}

	finish(PhaseDone)
	d.setPhase(ctx, PhaseDone)
	return report, nil
}

// rowsByID returns the current state of rows, in their order.
func (d *Distributor) rowsByID(rows []recipients.Row) []recipients.Row {
	out := make([]recipients.Row, 0, len(rows))
	for _, r := range rows {
		cur, err := d.store.Get(r.ID)
		if err != nil {
			cur = r
		}
		out = append(out, cur)
	}
	return out
}

// distribute marks non-actionable rows skipped and transfers to every
// planned recipient through the batch executor.
func (d *Distributor) distribute(ctx context.Context, signer *TemporarySigner, selected SelectedToken, plan *Plan, rows []recipients.Row) {
	for _, r := range rows {
		if _, ok := r.Address(); ok {
			continue
		}
		if _, err := d.store.Transition(r.ID, recipients.Skipped{Reason: ReasonInvalidAddress}); err != nil {
			d.logger.WarnContext(ctx, "failed to mark row skipped", "row_id", r.ID.String(), "error", err)
		}
	}

	opts := d.opts.Batch
	opts.OnBatch = func(index, size int, elapsed time.Duration) {
		d.deps.Metrics.RecordBatch("distribute", size, elapsed.Seconds())
		d.logger.InfoContext(ctx, "batch settled", "batch", index, "size", size, "elapsed", elapsed)
	}
	batch.Run(ctx, plan.Recipients, opts, func(ctx context.Context, r Recipient, _ int) (recipients.TransferState, error) {
		return d.transfer(ctx, signer, selected, r)
	})
}

// transfer delivers one recipient's tokens and records the outcome on its
// row. The returned error only tells the batch executor that the row failed.
func (d *Distributor) transfer(ctx context.Context, signer *TemporarySigner, selected SelectedToken, r Recipient) (recipients.TransferState, error) {
	logger := d.logger.With("row_id", r.RowID.String(), "address", r.Address.String())

	settle := func(state recipients.TransferState) recipients.TransferState {
		if _, err := d.store.Transition(r.RowID, state); err != nil {
			logger.ErrorContext(ctx, "failed to record row state", "state", state.Name(), "error", err)
		}
		return state
	}
	failBefore := func(err error) (recipients.TransferState, error) {
		logger.WarnContext(ctx, "transfer failed before submission", "error", err)
		return settle(recipients.Failed{Reason: err.Error()}), err
	}

	res, err := Resolve(ctx, d.deps.Ledger, r.Address, selected.Mint, signer.PublicKey())
	if reason, skip := skipReason(err); skip {
		logger.InfoContext(ctx, "destination cannot receive tokens, skipping", "reason", reason)
		return settle(recipients.Skipped{Reason: reason}), nil
	}
	if err != nil {
		return failBefore(err)
	}

	tx, err := d.buildTransfer(ctx, signer, selected, r, res)
	if err != nil {
		return failBefore(err)
	}

	sig, err := d.deps.Ledger.SendTransaction(ctx, tx)
	if err != nil {
		return failBefore(err)
	}
	settle(recipients.InProgress{Signature: sig})

	if err := d.deps.Ledger.ConfirmTransaction(ctx, sig); err != nil {
		logger.WarnContext(ctx, "transfer failed", "signature", sig.String(), "error", err)
		return settle(recipients.Failed{Signature: &sig, Reason: err.Error()}), err
	}
	logger.DebugContext(ctx, "transfer confirmed", "signature", sig.String())
	return settle(recipients.Succeeded{Signature: sig}), nil
}

// buildTransfer builds and signs the transfer from the signer's token
// account, prefixed by the account creation when the resolution needs one.
func (d *Distributor) buildTransfer(ctx context.Context, signer *TemporarySigner, selected SelectedToken, r Recipient, res Resolution) (*solana.Transaction, error) {
	blockhash, err := d.deps.Ledger.RecentBlockhash(ctx)
	if err != nil {
		return nil, err
	}

	instructions := make([]solana.Instruction, 0, 2)
	if res.Create != nil {
		instructions = append(instructions, res.Create)
	}
	instructions = append(instructions, token.NewTransferCheckedInstruction(
		r.BaseUnits, selected.Decimals,
		signer.TokenAccount(), selected.Mint, res.TokenAccount, signer.PublicKey(), nil,
	).Build())

	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(signer.PublicKey()))
	if err != nil {
		return nil, fmt.Errorf("failed to build transfer: %w", err)
	}
	if err := signer.Sign(tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// onRowChange publishes row transitions of the current run.
func (d *Distributor) onRowChange(row recipients.Row) {
	d.mu.RLock()
	runID, phase := d.runID, d.phase
	d.mu.RUnlock()
	if runID == uuid.Nil || phase != PhaseDistributing {
		return
	}

	d.deps.Metrics.RecordRowTransition(row.State.Name())
	if d.deps.Publisher == nil {
		return
	}

	view := row.View()
	event := &natspkg.RowEvent{
		RunID:       runID.String(),
		RowID:       view.ID,
		Address:     view.Address,
		Amount:      view.Amount,
		State:       view.State,
		Signature:   view.Signature,
		Reason:      view.Reason,
		PublishedAt: time.Now().UTC(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.deps.Publisher.PublishRowEvent(ctx, event); err != nil {
		d.logger.Warn("failed to publish row event", "row_id", view.ID, "error", err)
	}
}
