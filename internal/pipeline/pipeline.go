// Package pipeline signs, submits and follows a state-changing contract call
// to finality, resolving it to exactly one receipt.
//
// A submission moves through
//
//	Built -> Signing -> Submitted -> (InBlock) -> Finalized | DispatchError | SubmissionError
//
// Intermediate states are published to an optional Publisher; only the
// terminal one reaches the caller.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samuelarogbonlo/dot-escrow/internal/chain"
	"github.com/samuelarogbonlo/dot-escrow/internal/events"
	"github.com/samuelarogbonlo/dot-escrow/internal/logging"
	"github.com/samuelarogbonlo/dot-escrow/internal/metrics"
	"github.com/samuelarogbonlo/dot-escrow/internal/traces"
)

// User-facing failure texts.
const (
	MsgUnavailable      = "API or account not available"
	MsgSubmissionFailed = "Transaction submission failed"
	MsgDispatchPrefix   = "Transaction failed: "
)

// State of a submission.
type State string

const (
	StateBuilt           State = "built"
	StateSigning         State = "signing"
	StateSubmitted       State = "submitted"
	StateInBlock         State = "in_block"
	StateFinalized       State = "finalized"
	StateDispatchError   State = "dispatch_error"
	StateSubmissionError State = "submission_error"
)

// Terminal reports whether no further transition can follow.
func (s State) Terminal() bool {
	return s == StateFinalized || s == StateDispatchError || s == StateSubmissionError
}

// Outcome labels for metrics and the receipts journal.
const (
	OutcomeFinalized     = "finalized"
	OutcomeDispatchError = "dispatch_error"
	OutcomeSubmission    = "submission_error"
	OutcomeUnavailable   = "unavailable"
	OutcomeEncodeError   = "encode_error"
	OutcomeCanceled      = "canceled"
)

// Request describes one state-changing call.
type Request struct {
	Caller  string
	Message string
	Args    []any
	Value   string // base units; empty is zero

	// Pattern selects the identifier recovered from emitted events. Nil
	// means events.EscrowPattern.
	Pattern *regexp.Regexp
}

// Transition is published on every state change.
type Transition struct {
	Caller    string         `json:"caller"`
	Message   string         `json:"message"`
	State     State          `json:"state"`
	TxHash    string         `json:"txHash,omitempty"`
	BlockHash string         `json:"blockHash,omitempty"`
	Receipt   *chain.Receipt `json:"receipt,omitempty"`
	At        time.Time      `json:"at"`
}

// Outcome is handed to the Recorder once per submission.
type Outcome struct {
	Caller   string
	Message  string
	State    State
	Label    string
	Receipt  chain.Receipt
	Duration time.Duration
}

// Recorder persists terminal outcomes.
type Recorder interface {
	Record(ctx context.Context, o Outcome) error
}

// Publisher receives every transition.
type Publisher interface {
	Publish(t Transition)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Transition)

func (f PublisherFunc) Publish(t Transition) { f(t) }

// CallEncoder turns a message and its arguments into call data.
type CallEncoder interface {
	EncodeCall(label string, args ...any) ([]byte, error)
}

// WeightEstimator supplies the gas limit for encoded call data.
type WeightEstimator interface {
	EstimateInput(ctx context.Context, caller, message, value string, input []byte) chain.GasWeight
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRecorder stores every terminal outcome.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithPublisher streams transitions.
func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithStorageDepositLimit caps the storage deposit of every call. The default
// leaves it unlimited.
func WithStorageDepositLimit(limit string) Option {
	return func(p *Pipeline) { p.storageDepositLimit = &limit }
}

// Pipeline submits calls to one contract.
type Pipeline struct {
	contract            string
	abi                 CallEncoder
	gas                 WeightEstimator
	ext                 chain.Extension
	recorder            Recorder
	publisher           Publisher
	storageDepositLimit *string
}

// New creates a pipeline. ext may be nil when no wallet is connected, in
// which case every submission fails fast.
func New(contract string, abi CallEncoder, gas WeightEstimator, ext chain.Extension, opts ...Option) *Pipeline {
	p := &Pipeline{
		contract: contract,
		abi:      abi,
		gas:      gas,
		ext:      ext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Contract returns the target contract address.
func (p *Pipeline) Contract() string { return p.contract }

type resolution struct {
	state   State
	label   string
	receipt chain.Receipt
}

// Submit runs req to a terminal state. It never returns a Go error: every
// failure is a receipt with Success false. Cancelling ctx stops the wait
// but does not withdraw a submitted transaction.
func (p *Pipeline) Submit(ctx context.Context, req Request) chain.Receipt {
	ctx, span := traces.StartSpan(ctx, "pipeline.Submit",
		traces.Message(req.Message),
		traces.Caller(req.Caller),
	)
	defer span.End()

	start := time.Now()
	ctx = logging.WithCall(ctx, req.Caller, req.Message)
	log := logging.L(ctx)
	p.publish(req, StateBuilt, "", "", nil)

	res := p.run(ctx, req, log)

	receipt := res.receipt
	if res.state != StateFinalized {
		traces.Fail(span, receipt.Error)
	}
	span.SetAttributes(traces.State(string(res.state)), traces.TxHash(receipt.TransactionHash))

	elapsed := time.Since(start)
	metrics.TransactionsTotal.WithLabelValues(req.Message, res.label).Inc()
	metrics.TransactionDuration.WithLabelValues(req.Message).Observe(elapsed.Seconds())

	if p.recorder != nil {
		err := p.recorder.Record(context.WithoutCancel(ctx), Outcome{
			Caller:   req.Caller,
			Message:  req.Message,
			State:    res.state,
			Label:    res.label,
			Receipt:  receipt,
			Duration: elapsed,
		})
		if err != nil {
			log.Warn("failed to record receipt", "error", err)
		}
	}

	p.publish(req, res.state, receipt.TransactionHash, receipt.BlockHash, &receipt)

	if receipt.Success {
		log.Info("transaction finalized",
			"txHash", receipt.TransactionHash,
			"blockHash", receipt.BlockHash,
			"id", receipt.EscrowID,
			"duration", elapsed,
		)
	} else {
		log.Warn("transaction failed", "outcome", res.label, "error", receipt.Error)
	}
	return receipt
}

func (p *Pipeline) run(ctx context.Context, req Request, log *slog.Logger) resolution {
	if p.ext == nil || req.Caller == "" {
		return resolution{StateSubmissionError, OutcomeUnavailable, chain.Failed(MsgUnavailable)}
	}

	p.publish(req, StateSigning, "", "", nil)
	signer, err := p.ext.Signer(ctx, req.Caller)
	if err != nil || signer == nil {
		log.Debug("no signer for caller", "error", err)
		return resolution{StateSubmissionError, OutcomeUnavailable, chain.Failed(MsgUnavailable)}
	}

	input, err := p.abi.EncodeCall(req.Message, req.Args...)
	if err != nil {
		return resolution{StateSubmissionError, OutcomeEncodeError, chain.Failed(err.Error())}
	}

	weight := p.gas.EstimateInput(ctx, req.Caller, req.Message, req.Value, input)
	tx := chain.Transaction{
		Contract:            p.contract,
		Message:             req.Message,
		Value:               req.Value,
		GasLimit:            weight,
		StorageDepositLimit: p.storageDepositLimit,
		Input:               input,
	}

	decoder := events.NewDecoder(p.contract, req.Pattern)
	done := make(chan resolution, 1)
	var once sync.Once
	var settled atomic.Bool
	resolve := func(r resolution) {
		once.Do(func() {
			settled.Store(true)
			done <- r
		})
	}

	onStatus := func(u chain.StatusUpdate) {
		if settled.Load() {
			return
		}
		log.Debug("status update", "status", u.Status, "txHash", u.TxHash, "blockHash", u.BlockHash)
		p.handle(req, u, decoder, resolve)
	}

	if err := signer.SignAndSend(ctx, tx, onStatus); err != nil {
		resolve(resolution{StateSubmissionError, OutcomeSubmission, chain.Failed(errorText(err))})
	} else {
		p.publish(req, StateSubmitted, "", "", nil)
	}

	select {
	case r := <-done:
		return r
	case <-ctx.Done():
		r := resolution{StateSubmissionError, OutcomeCanceled, chain.Failed(ctx.Err().Error())}
		resolve(r)
		select {
		case won := <-done:
			return won
		default:
			return r
		}
	}
}

func (p *Pipeline) handle(req Request, u chain.StatusUpdate, decoder *events.Decoder, resolve func(resolution)) {
	switch {
	case u.Err != nil:
		resolve(resolution{StateSubmissionError, OutcomeSubmission, chain.Failed(errorText(u.Err))})

	case u.DispatchError != nil && (u.Status == chain.StatusInBlock || u.Status == chain.StatusFinalized):
		resolve(resolution{StateDispatchError, OutcomeDispatchError, chain.Failed(MsgDispatchPrefix + u.DispatchError.String())})

	case u.Status.IsTerminalFailure():
		resolve(resolution{StateSubmissionError, OutcomeSubmission, chain.Failed(MsgSubmissionFailed + ": " + string(u.Status))})

	case u.Status == chain.StatusFinalized:
		id := decoder.Decode(chain.TxResult{
			TxHash:    u.TxHash,
			BlockHash: u.BlockHash,
			Finalized: true,
			Events:    u.Events,
		})
		resolve(resolution{StateFinalized, OutcomeFinalized, chain.Receipt{
			Success:         true,
			TransactionHash: u.TxHash,
			BlockHash:       u.BlockHash,
			EscrowID:        id.ID,
		}})

	case u.Status == chain.StatusInBlock:
		p.publish(req, StateInBlock, u.TxHash, u.BlockHash, nil)
	}
}

func (p *Pipeline) publish(req Request, state State, txHash, blockHash string, receipt *chain.Receipt) {
	if p.publisher == nil {
		return
	}
	p.publisher.Publish(Transition{
		Caller:    req.Caller,
		Message:   req.Message,
		State:     state,
		TxHash:    txHash,
		BlockHash: blockHash,
		Receipt:   receipt,
		At:        time.Now().UTC(),
	})
}

func errorText(err error) string {
	if err == nil {
		return MsgSubmissionFailed
	}
	if errors.Is(err, context.Canceled) {
		return context.Canceled.Error()
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return MsgSubmissionFailed
}

// Classify maps the error text of a failed receipt back to its outcome
// label. Texts this package did not produce classify as OutcomeSubmission.
func Classify(msg string) string {
	switch {
	case msg == MsgUnavailable:
		return OutcomeUnavailable
	case strings.HasPrefix(msg, MsgDispatchPrefix):
		return OutcomeDispatchError
	case msg == context.Canceled.Error(), msg == context.DeadlineExceeded.Error():
		return OutcomeCanceled
	}
	return OutcomeSubmission
}
