// Package chain defines the seams between the contract-interaction layer and
// the ledger: the node used for dry-runs and block reads, and the wallet
// extension that signs and submits transactions.
//
// Everything above this package talks to these interfaces only, so the
// escrow and governance clients can be exercised against fakes.
package chain

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrSignerUnavailable = errors.New("chain: signer not available")
	ErrBlockNotFound     = errors.New("chain: block not found")
)

// GasWeight is the two-dimensional execution budget attached to every
// state-changing call.
type GasWeight struct {
	RefTime   uint64 `json:"refTime"`
	ProofSize uint64 `json:"proofSize"`
}

// IsZero reports whether either dimension is missing.
func (w GasWeight) IsZero() bool {
	return w.RefTime == 0 || w.ProofSize == 0
}

// CallRequest is a contract call as the node sees it: origin, destination
// and already-encoded input data.
type CallRequest struct {
	Origin              string
	Contract            string
	Value               string     // base units, decimal; empty means zero
	GasLimit            *GasWeight // nil lets the node use the block maximum
	StorageDepositLimit *string    // nil means unlimited
	Input               []byte
}

// CallResult is the outcome of a dry-run.
type CallResult struct {
	GasConsumed  GasWeight
	GasRequired  *GasWeight
	Success      bool   // dispatch succeeded and the contract did not revert
	Reverted     bool   // contract returned with the revert flag
	Data         []byte // raw return data, valid when Success or Reverted
	DebugMessage string
	Err          string // dispatch error text when !Success && !Reverted
}

// Node is the read side of the ledger.
type Node interface {
	// Call dry-runs a contract message without submitting it.
	Call(ctx context.Context, req CallRequest) (*CallResult, error)
	// BlockHash returns the hash of the best block, or of a given height.
	BlockHash(ctx context.Context, number *uint64) (string, error)
	// FinalizedHead returns the hash of the last finalized block.
	FinalizedHead(ctx context.Context) (string, error)
	// Block returns the header fields and encoded extrinsics of a block.
	Block(ctx context.Context, hash string) (*Block, error)
}

// Block is the subset of a block the status tracker needs.
type Block struct {
	Hash       string   `json:"hash"`
	ParentHash string   `json:"parentHash"`
	Number     uint64   `json:"number"`
	Extrinsics []string `json:"extrinsics"` // hex-encoded
}

// Transaction is a signed-call request handed to the wallet extension.
type Transaction struct {
	Contract            string    `json:"contract"`
	Message             string    `json:"message"`
	Value               string    `json:"value"`
	GasLimit            GasWeight `json:"gasLimit"`
	StorageDepositLimit *string   `json:"storageDepositLimit"`
	Input               []byte    `json:"-"`
}

// Extension supplies signers for accounts it controls.
type Extension interface {
	// Signer returns a signer for address, or ErrSignerUnavailable.
	Signer(ctx context.Context, address string) (Signer, error)
}

// Signer signs a transaction, submits it and reports status updates.
//
// SignAndSend returns an error if the transaction could not be signed or
// sent (wallet rejection, disconnect). After a nil return, onStatus is called
// for every status the node reports, possibly from another goroutine and
// possibly after a terminal status.
type Signer interface {
	Address() string
	SignAndSend(ctx context.Context, tx Transaction, onStatus func(StatusUpdate)) error
}

// TxStatus mirrors the transaction pool's status stream.
type TxStatus string

const (
	StatusReady           TxStatus = "ready"
	StatusBroadcast       TxStatus = "broadcast"
	StatusInBlock         TxStatus = "inBlock"
	StatusFinalized       TxStatus = "finalized"
	StatusInvalid         TxStatus = "invalid"
	StatusDropped         TxStatus = "dropped"
	StatusUsurped         TxStatus = "usurped"
	StatusFinalityTimeout TxStatus = "finalityTimeout"
	StatusRetracted       TxStatus = "retracted"
)

// IsTerminalFailure reports whether the pool gave up on the transaction.
func (s TxStatus) IsTerminalFailure() bool {
	switch s {
	case StatusInvalid, StatusDropped, StatusUsurped, StatusFinalityTimeout:
		return true
	}
	return false
}

// StatusUpdate is one notification from a submitted transaction.
type StatusUpdate struct {
	Status        TxStatus       `json:"status"`
	TxHash        string         `json:"txHash,omitempty"`
	BlockHash     string         `json:"blockHash,omitempty"`
	Events        []Event        `json:"events,omitempty"`
	DispatchError *DispatchError `json:"dispatchError,omitempty"`
	Err           error          `json:"-"` // transport failure after submission
}

// DispatchError is the chain's rejection of an accepted call.
type DispatchError struct {
	Module string `json:"module,omitempty"` // pallet name for module errors
	Name   string `json:"name,omitempty"`
	Docs   string `json:"docs,omitempty"`
	Text   string `json:"text,omitempty"` // literal text as reported by the chain
}

func (e *DispatchError) String() string {
	if e == nil {
		return ""
	}
	if e.Text != "" {
		return e.Text
	}
	if e.Module != "" && e.Name != "" {
		return fmt.Sprintf("%s.%s", e.Module, e.Name)
	}
	if e.Name != "" {
		return e.Name
	}
	return "unknown dispatch error"
}

// Event is a runtime event emitted while applying the transaction.
type Event struct {
	Section  string   `json:"section"` // pallet, e.g. "contracts"
	Method   string   `json:"method"`  // e.g. "ContractEmitted"
	Contract string   `json:"contract,omitempty"`
	Topics   []string `json:"topics,omitempty"` // hex-encoded
	Data     string   `json:"data,omitempty"`   // hex-encoded
}

// TxResult is everything known about a transaction when it reached a
// terminal status.
type TxResult struct {
	TxHash    string
	BlockHash string
	Finalized bool
	Events    []Event
}

// Receipt is the normalized result of every submission. Error and the
// success fields are mutually exclusive.
type Receipt struct {
	Success         bool   `json:"success"`
	TransactionHash string `json:"transactionHash,omitempty"`
	EscrowID        string `json:"escrowId,omitempty"`
	BlockHash       string `json:"blockHash,omitempty"`
	Error           string `json:"error,omitempty"`
}

// Failed builds an unsuccessful receipt.
func Failed(msg string) Receipt {
	return Receipt{Error: msg}
}
