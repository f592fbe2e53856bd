// Package watcher confirms that an externally obtained transaction hash
// landed on chain.
//
// A transfer made outside the escrow contract (a stablecoin payment, say) is
// only trusted once its extrinsic is found in a recent block. The tracker
// walks back from the best block over a bounded window of ancestors.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/crypto/blake2b"

	"github.com/samuelarogbonlo/dot-escrow/internal/chain"
	"github.com/samuelarogbonlo/dot-escrow/internal/logging"
	"github.com/samuelarogbonlo/dot-escrow/internal/metrics"
	"github.com/samuelarogbonlo/dot-escrow/internal/traces"
)

// MsgNotFound is the error of a check that scanned the whole window.
const MsgNotFound = "Transaction not found in recent blocks"

// StatusIncluded is the receipt status of a found transaction.
const StatusIncluded = 1

// Check outcome labels.
const (
	OutcomeFound    = "found"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Config for the tracker
type Config struct {
	// Window is how many blocks, the best one included, are scanned.
	Window int
	// PollInterval spaces the checks made by Wait.
	PollInterval time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Window:       10,
		PollInterval: 6 * time.Second,
	}
}

// Receipt locates a found transaction.
type Receipt struct {
	Status      int    `json:"status"`
	BlockHash   string `json:"blockHash"`
	BlockNumber uint64 `json:"blockNumber"`
	Finalized   bool   `json:"finalized"`
}

// CheckResult is the outcome of a check. Receipt is set only on success.
type CheckResult struct {
	Success bool     `json:"success"`
	Receipt *Receipt `json:"receipt,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Tracker looks up transactions in recent blocks.
type Tracker struct {
	node   chain.Node
	config Config
}

// New creates a tracker. A non-positive window scans only the best block.
func New(node chain.Node, cfg Config) *Tracker {
	if cfg.Window < 1 {
		cfg.Window = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	return &Tracker{node: node, config: cfg}
}

// Window returns the number of blocks scanned per check.
func (t *Tracker) Window() int { return t.config.Window }

// Check scans the window for txHash. RPC failures are reported with their
// own text as the error.
func (t *Tracker) Check(ctx context.Context, txHash string) CheckResult {
	txHash = normalizeHash(txHash)
	ctx, span := traces.StartSpan(ctx, "watcher.Check", traces.TxHash(txHash))
	defer span.End()

	res := t.check(ctx, txHash)

	outcome := OutcomeFound
	switch {
	case res.Success:
	case res.Error == MsgNotFound:
		outcome = OutcomeNotFound
	default:
		outcome = OutcomeError
		traces.Fail(span, res.Error)
	}
	metrics.TrackerChecksTotal.WithLabelValues(outcome).Inc()
	logging.L(ctx).Debug("transaction check",
		"tx_hash", txHash,
		"outcome", outcome,
		"window", t.config.Window,
	)
	return res
}

func (t *Tracker) check(ctx context.Context, txHash string) CheckResult {
	best, err := t.node.BlockHash(ctx, nil)
	if err != nil {
		return CheckResult{Error: err.Error()}
	}
	finalizedHash, err := t.node.FinalizedHead(ctx)
	if err != nil {
		return CheckResult{Error: err.Error()}
	}
	finalized, err := t.node.Block(ctx, finalizedHash)
	if err != nil {
		return CheckResult{Error: err.Error()}
	}

	hash := best
	for i := 0; i < t.config.Window && hash != ""; i++ {
		b, err := t.node.Block(ctx, hash)
		if err != nil {
			// An unknown ancestor ends the chain.
			if i > 0 && errors.Is(err, chain.ErrBlockNotFound) {
				break
			}
			return CheckResult{Error: err.Error()}
		}
		if contains(b.Extrinsics, txHash) {
			return CheckResult{Success: true, Receipt: &Receipt{
				Status:      StatusIncluded,
				BlockHash:   b.Hash,
				BlockNumber: b.Number,
				Finalized:   b.Number <= finalized.Number,
			}}
		}
		if b.Number == 0 {
			break
		}
		hash = b.ParentHash
	}
	return CheckResult{Error: MsgNotFound}
}

// Wait checks txHash every PollInterval until it is found or ctx ends, and
// returns the last result. RPC failures do not stop the polling.
func (t *Tracker) Wait(ctx context.Context, txHash string) CheckResult {
	res := t.Check(ctx, txHash)
	if res.Success {
		return res
	}

	ticker := time.NewTicker(t.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return res
		case <-ticker.C:
			res = t.Check(ctx, txHash)
			if res.Success {
				return res
			}
			if res.Error != MsgNotFound {
				logging.L(ctx).Warn("transaction check failed", "tx_hash", txHash, "error", res.Error)
			}
		}
	}
}

// ExtrinsicHash returns the 0x-prefixed blake2b-256 hash of a hex-encoded
// extrinsic.
func ExtrinsicHash(extrinsic string) (string, error) {
	raw, err := hexutil.Decode(extrinsic)
	if err != nil {
		return "", fmt.Errorf("watcher: extrinsic: %w", err)
	}
	sum := blake2b.Sum256(raw)
	return hexutil.Encode(sum[:]), nil
}

func contains(extrinsics []string, txHash string) bool {
	for _, ext := range extrinsics {
		h, err := ExtrinsicHash(ext)
		if err != nil {
			continue
		}
		if h == txHash {
			return true
		}
	}
	return false
}

func normalizeHash(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	if !strings.HasPrefix(h, "0x") {
		h = "0x" + h
	}
	return h
}
