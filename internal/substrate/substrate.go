// Package substrate talks JSON-RPC to a Substrate node: contract dry-runs
// through the ContractsApi runtime API and the block reads the status
// tracker needs.
package substrate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"

	"github.com/samuelarogbonlo/dot-escrow/internal/chain"
	"github.com/samuelarogbonlo/dot-escrow/internal/scale"
	"github.com/samuelarogbonlo/dot-escrow/internal/ss58"
)

var (
	ErrInvalidResponse = errors.New("substrate: invalid response")
	ErrInvalidRequest  = errors.New("substrate: invalid request")
)

// RPCError wraps a failed node call with the method name.
type RPCError struct {
	Method string
	Err    error
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("substrate: %s: %v", e.Method, e.Err)
}

func (e *RPCError) Unwrap() error { return e.Err }

// Caller is the subset of *rpc.Client used here.
type Caller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
	Close()
}

// returnFlagRevert is bit 0 of ink!'s ReturnFlags.
const returnFlagRevert = 1

// Client implements chain.Node against a live node.
type Client struct {
	rpc Caller
}

// Compile-time interface check
var _ chain.Node = (*Client)(nil)

// Dial connects to a node over ws(s):// or http(s)://.
func Dial(ctx context.Context, url string) (*Client, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, &RPCError{Method: "dial", Err: err}
	}
	return New(c), nil
}

// New wraps an existing RPC client.
func New(c Caller) *Client {
	return &Client{rpc: c}
}

// Close releases the connection.
func (c *Client) Close() {
	c.rpc.Close()
}

func (c *Client) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	if err := c.rpc.CallContext(ctx, result, method, args...); err != nil {
		return &RPCError{Method: method, Err: err}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Contract dry-run
// -----------------------------------------------------------------------------

// Call dry-runs a contract message via state_call("ContractsApi_call").
func (c *Client) Call(ctx context.Context, req chain.CallRequest) (*chain.CallResult, error) {
	params, err := encodeCallParams(req)
	if err != nil {
		return nil, err
	}

	var out string
	if err := c.call(ctx, &out, "state_call", "ContractsApi_call", hexutil.Encode(params)); err != nil {
		return nil, err
	}
	raw, err := hexutil.Decode(out)
	if err != nil {
		return nil, fmt.Errorf("%w: state_call returned %q", ErrInvalidResponse, out)
	}
	return decodeContractResult(raw)
}

func encodeCallParams(req chain.CallRequest) ([]byte, error) {
	origin, _, err := ss58.Decode(req.Origin)
	if err != nil {
		return nil, fmt.Errorf("%w: origin: %v", ErrInvalidRequest, err)
	}
	dest, _, err := ss58.Decode(req.Contract)
	if err != nil {
		return nil, fmt.Errorf("%w: contract: %v", ErrInvalidRequest, err)
	}
	value, err := parseBalance(req.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: value: %v", ErrInvalidRequest, err)
	}

	e := scale.NewEncoder()
	e.WriteRaw(origin[:])
	e.WriteRaw(dest[:])
	if err := e.WriteU128(value); err != nil {
		return nil, fmt.Errorf("%w: value: %v", ErrInvalidRequest, err)
	}

	e.WriteOptionTag(req.GasLimit != nil)
	if req.GasLimit != nil {
		writeWeight(e, *req.GasLimit)
	}

	e.WriteOptionTag(req.StorageDepositLimit != nil)
	if req.StorageDepositLimit != nil {
		limit, err := parseBalance(*req.StorageDepositLimit)
		if err != nil {
			return nil, fmt.Errorf("%w: storage deposit limit: %v", ErrInvalidRequest, err)
		}
		if err := e.WriteU128(limit); err != nil {
			return nil, fmt.Errorf("%w: storage deposit limit: %v", ErrInvalidRequest, err)
		}
	}

	e.WriteBytes(req.Input)
	return e.Bytes(), nil
}

func parseBalance(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(uint256.Int), nil
	}
	return uint256.FromDecimal(s)
}

func writeWeight(e *scale.Encoder, w chain.GasWeight) {
	e.WriteCompact(w.RefTime)
	e.WriteCompact(w.ProofSize)
}

func readWeight(d *scale.Decoder) (chain.GasWeight, error) {
	ref, err := d.ReadCompact()
	if err != nil {
		return chain.GasWeight{}, err
	}
	proof, err := d.ReadCompact()
	if err != nil {
		return chain.GasWeight{}, err
	}
	return chain.GasWeight{RefTime: ref, ProofSize: proof}, nil
}

// decodeContractResult reads ContractResult<Result<ExecReturnValue,
// DispatchError>, Balance>. Trailing fields (events on newer runtimes) are
// ignored.
func decodeContractResult(raw []byte) (*chain.CallResult, error) {
	d := scale.NewDecoder(raw)
	res := &chain.CallResult{}

	consumed, err := readWeight(d)
	if err != nil {
		return nil, fmt.Errorf("%w: gas consumed: %v", ErrInvalidResponse, err)
	}
	res.GasConsumed = consumed

	required, err := readWeight(d)
	if err != nil {
		return nil, fmt.Errorf("%w: gas required: %v", ErrInvalidResponse, err)
	}
	res.GasRequired = &required

	// StorageDeposit::{Refund, Charge}(Balance)
	if _, err := d.ReadU8(); err != nil {
		return nil, fmt.Errorf("%w: storage deposit: %v", ErrInvalidResponse, err)
	}
	if _, err := d.ReadU128(); err != nil {
		return nil, fmt.Errorf("%w: storage deposit: %v", ErrInvalidResponse, err)
	}

	debug, err := d.ReadBytes()
	if err != nil {
		return nil, fmt.Errorf("%w: debug message: %v", ErrInvalidResponse, err)
	}
	res.DebugMessage = string(debug)

	tag, err := d.ReadU8()
	if err != nil {
		return nil, fmt.Errorf("%w: result: %v", ErrInvalidResponse, err)
	}
	switch tag {
	case 0:
		flags, err := d.ReadU32()
		if err != nil {
			return nil, fmt.Errorf("%w: return flags: %v", ErrInvalidResponse, err)
		}
		data, err := d.ReadBytes()
		if err != nil {
			return nil, fmt.Errorf("%w: return data: %v", ErrInvalidResponse, err)
		}
		res.Data = data
		res.Reverted = flags&returnFlagRevert != 0
		res.Success = !res.Reverted
	case 1:
		res.Err = decodeDispatchError(d).String()
	default:
		return nil, fmt.Errorf("%w: result tag %d", ErrInvalidResponse, tag)
	}
	return res, nil
}

var dispatchErrorNames = []string{
	"Other", "CannotLookup", "BadOrigin", "Module", "ConsumerRemaining",
	"NoProviders", "TooManyConsumers", "Token", "Arithmetic", "Transactional",
	"Exhausted", "Corruption", "Unavailable", "RootNotAllowed",
}

var tokenErrorNames = []string{
	"FundsUnavailable", "OnlyProvider", "BelowMinimum", "CannotCreate",
	"UnknownAsset", "Frozen", "Unsupported", "CannotCreateHold",
	"NotExpendable", "Blocked",
}

var arithmeticErrorNames = []string{"Underflow", "Overflow", "DivisionByZero"}

var transactionalErrorNames = []string{"LimitReached", "NoLayer"}

func decodeDispatchError(d *scale.Decoder) *chain.DispatchError {
	tag, err := d.ReadU8()
	if err != nil || int(tag) >= len(dispatchErrorNames) {
		return &chain.DispatchError{}
	}
	name := dispatchErrorNames[tag]

	subName := func(names []string) *chain.DispatchError {
		sub, err := d.ReadU8()
		if err != nil || int(sub) >= len(names) {
			return &chain.DispatchError{Name: name}
		}
		return &chain.DispatchError{Module: name, Name: names[sub]}
	}

	switch name {
	case "Module":
		index, err := d.ReadU8()
		if err != nil {
			return &chain.DispatchError{Name: name}
		}
		code, err := d.ReadRaw(4)
		if err != nil {
			return &chain.DispatchError{Name: name}
		}
		return &chain.DispatchError{
			Name: name,
			Text: fmt.Sprintf("Module(index: %d, error: %s)", index, hexutil.Encode(code)),
		}
	case "Token":
		return subName(tokenErrorNames)
	case "Arithmetic":
		return subName(arithmeticErrorNames)
	case "Transactional":
		return subName(transactionalErrorNames)
	}
	return &chain.DispatchError{Name: name}
}

// -----------------------------------------------------------------------------
// Blocks
// -----------------------------------------------------------------------------

type header struct {
	ParentHash string         `json:"parentHash"`
	Number     hexutil.Uint64 `json:"number"`
}

type signedBlock struct {
	Block struct {
		Header     header   `json:"header"`
		Extrinsics []string `json:"extrinsics"`
	} `json:"block"`
}

// BlockHash returns the best block hash, or the hash at number.
func (c *Client) BlockHash(ctx context.Context, number *uint64) (string, error) {
	var hash *string
	var err error
	if number == nil {
		err = c.call(ctx, &hash, "chain_getBlockHash")
	} else {
		err = c.call(ctx, &hash, "chain_getBlockHash", *number)
	}
	if err != nil {
		return "", err
	}
	if hash == nil || *hash == "" {
		return "", chain.ErrBlockNotFound
	}
	return *hash, nil
}

// FinalizedHead returns the hash of the last finalized block.
func (c *Client) FinalizedHead(ctx context.Context) (string, error) {
	var hash string
	if err := c.call(ctx, &hash, "chain_getFinalizedHead"); err != nil {
		return "", err
	}
	if hash == "" {
		return "", fmt.Errorf("%w: empty finalized head", ErrInvalidResponse)
	}
	return hash, nil
}

// Block fetches a block by hash.
func (c *Client) Block(ctx context.Context, hash string) (*chain.Block, error) {
	var sb *signedBlock
	if err := c.call(ctx, &sb, "chain_getBlock", hash); err != nil {
		return nil, err
	}
	if sb == nil {
		return nil, fmt.Errorf("%w: %s", chain.ErrBlockNotFound, hash)
	}
	return &chain.Block{
		Hash:       hash,
		ParentHash: sb.Block.Header.ParentHash,
		Number:     uint64(sb.Block.Header.Number),
		Extrinsics: sb.Block.Extrinsics,
	}, nil
}

// -----------------------------------------------------------------------------
// Node health
// -----------------------------------------------------------------------------

// Health mirrors system_health.
type Health struct {
	Peers           int  `json:"peers"`
	IsSyncing       bool `json:"isSyncing"`
	ShouldHavePeers bool `json:"shouldHavePeers"`
}

// Health returns the node's sync and peer status.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.call(ctx, &h, "system_health"); err != nil {
		return nil, err
	}
	return &h, nil
}

// Ping fails if the node is unreachable or has no peers when it should.
func (c *Client) Ping(ctx context.Context) error {
	h, err := c.Health(ctx)
	if err != nil {
		return err
	}
	if h.ShouldHavePeers && h.Peers == 0 {
		return errors.New("substrate: node has no peers")
	}
	return nil
}
