// Package chaintest provides in-memory chain.Node and chain.Extension
// implementations for tests.
package chaintest

import (
	"context"
	"fmt"
	"sync"

	"github.com/samuelarogbonlo/dot-escrow/internal/abi"
	"github.com/samuelarogbonlo/dot-escrow/internal/chain"
)

// -----------------------------------------------------------------------------
// Node
// -----------------------------------------------------------------------------

type reply struct {
	res *chain.CallResult
	err error
}

// Node answers dry-runs from canned replies keyed by message selector and
// serves blocks from a map.
type Node struct {
	mu       sync.Mutex
	contract *abi.Contract
	replies  map[[4]byte]reply
	labels   map[[4]byte]string
	calls    []chain.CallRequest
	labelLog []string

	// GasRequired is reported by successful replies unless overridden.
	GasRequired *chain.GasWeight

	Best      string
	Finalized string
	Blocks    map[string]*chain.Block
	BlockErr  error
}

var _ chain.Node = (*Node)(nil)

// NewNode creates a node that decodes selectors with contract.
func NewNode(contract *abi.Contract) *Node {
	n := &Node{
		contract:    contract,
		replies:     make(map[[4]byte]reply),
		labels:      make(map[[4]byte]string),
		Blocks:      make(map[string]*chain.Block),
		GasRequired: &chain.GasWeight{RefTime: 1_000_000, ProofSize: 50_000},
	}
	return n
}

func (n *Node) selector(label string) [4]byte {
	m, err := n.contract.Message(label)
	if err != nil {
		panic(fmt.Sprintf("chaintest: %v", err))
	}
	n.labels[m.Selector] = label
	return m.Selector
}

// Reply makes label succeed with value encoded as its return type.
func (n *Node) Reply(label string, value any) *Node {
	data, err := n.contract.EncodeReturn(label, value)
	if err != nil {
		panic(fmt.Sprintf("chaintest: %v", err))
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.replies[n.selector(label)] = reply{res: &chain.CallResult{Success: true, Data: data}}
	return n
}

// ReplyRaw makes label return res as is.
func (n *Node) ReplyRaw(label string, res *chain.CallResult) *Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.replies[n.selector(label)] = reply{res: res}
	return n
}

// Fail makes calls to label return a transport error.
func (n *Node) Fail(label string, err error) *Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.replies[n.selector(label)] = reply{err: err}
	return n
}

// Call implements chain.Node.
func (n *Node) Call(_ context.Context, req chain.CallRequest) (*chain.CallResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.calls = append(n.calls, req)
	var sel [4]byte
	if len(req.Input) >= 4 {
		copy(sel[:], req.Input[:4])
	}
	n.labelLog = append(n.labelLog, n.labels[sel])

	r, ok := n.replies[sel]
	if !ok {
		return nil, fmt.Errorf("chaintest: no reply for selector %x", sel)
	}
	if r.err != nil {
		return nil, r.err
	}
	res := *r.res
	if res.Success && res.GasRequired == nil && n.GasRequired != nil {
		g := *n.GasRequired
		res.GasRequired = &g
	}
	return &res, nil
}

// Calls returns every dry-run request received.
func (n *Node) Calls() []chain.CallRequest {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]chain.CallRequest(nil), n.calls...)
}

// CalledLabels returns the message label of every dry-run, in order.
func (n *Node) CalledLabels() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.labelLog...)
}

// AddBlock stores a block and makes it the best block.
func (n *Node) AddBlock(b chain.Block) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Blocks[b.Hash] = &b
	n.Best = b.Hash
}

// BlockHash implements chain.Node. Only the best block is addressable.
func (n *Node) BlockHash(_ context.Context, number *uint64) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.BlockErr != nil {
		return "", n.BlockErr
	}
	if number == nil {
		if n.Best == "" {
			return "", chain.ErrBlockNotFound
		}
		return n.Best, nil
	}
	for h, b := range n.Blocks {
		if b.Number == *number {
			return h, nil
		}
	}
	return "", chain.ErrBlockNotFound
}

// FinalizedHead implements chain.Node.
func (n *Node) FinalizedHead(_ context.Context) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.BlockErr != nil {
		return "", n.BlockErr
	}
	if n.Finalized == "" {
		return n.Best, nil
	}
	return n.Finalized, nil
}

// Block implements chain.Node.
func (n *Node) Block(_ context.Context, hash string) (*chain.Block, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.BlockErr != nil {
		return nil, n.BlockErr
	}
	b, ok := n.Blocks[hash]
	if !ok {
		return nil, fmt.Errorf("%w: %s", chain.ErrBlockNotFound, hash)
	}
	cp := *b
	return &cp, nil
}

// -----------------------------------------------------------------------------
// Extension
// -----------------------------------------------------------------------------

// SendFunc drives a submitted transaction. It runs on its own goroutine
// after SignAndSend returned nil.
type SendFunc func(tx chain.Transaction, emit func(chain.StatusUpdate))

// Extension exposes a fixed set of accounts.
type Extension struct {
	mu       sync.Mutex
	accounts map[string]bool
	sent     []chain.Transaction

	// SendErr, when set, is returned by SignAndSend.
	SendErr error
	// OnSend drives status updates; nil finalizes immediately.
	OnSend SendFunc

	done chan struct{}
}

var _ chain.Extension = (*Extension)(nil)

// NewExtension creates an extension that can sign for accounts.
func NewExtension(accounts ...string) *Extension {
	e := &Extension{accounts: make(map[string]bool), done: make(chan struct{}, 64)}
	for _, a := range accounts {
		e.accounts[a] = true
	}
	return e
}

// Signer implements chain.Extension.
func (e *Extension) Signer(_ context.Context, address string) (chain.Signer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.accounts[address] {
		return nil, chain.ErrSignerUnavailable
	}
	return &signer{ext: e, address: address}, nil
}

// Sent returns every transaction handed to a signer.
func (e *Extension) Sent() []chain.Transaction {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]chain.Transaction(nil), e.sent...)
}

// Wait blocks until n OnSend scripts have returned.
func (e *Extension) Wait(n int) {
	for i := 0; i < n; i++ {
		<-e.done
	}
}

type signer struct {
	ext     *Extension
	address string
}

func (s *signer) Address() string { return s.address }

func (s *signer) SignAndSend(_ context.Context, tx chain.Transaction, onStatus func(chain.StatusUpdate)) error {
	e := s.ext
	e.mu.Lock()
	e.sent = append(e.sent, tx)
	sendErr, script := e.SendErr, e.OnSend
	e.mu.Unlock()

	if sendErr != nil {
		return sendErr
	}
	if script == nil {
		script = Finalize("0xfeedbeefcafe0001", "0xb10c0000000000aa")
	}
	go func() {
		defer func() { e.done <- struct{}{} }()
		script(tx, onStatus)
	}()
	return nil
}

// Finalize returns a script that reports inBlock then finalized with the
// given hashes and events.
func Finalize(txHash, blockHash string, events ...chain.Event) SendFunc {
	return func(_ chain.Transaction, emit func(chain.StatusUpdate)) {
		emit(chain.StatusUpdate{Status: chain.StatusReady, TxHash: txHash})
		emit(chain.StatusUpdate{Status: chain.StatusInBlock, TxHash: txHash, BlockHash: blockHash, Events: events})
		emit(chain.StatusUpdate{Status: chain.StatusFinalized, TxHash: txHash, BlockHash: blockHash, Events: events})
	}
}

// DispatchFailure returns a script whose transaction is included but
// rejected with text.
func DispatchFailure(txHash, blockHash, text string) SendFunc {
	return func(_ chain.Transaction, emit func(chain.StatusUpdate)) {
		emit(chain.StatusUpdate{
			Status:        chain.StatusInBlock,
			TxHash:        txHash,
			BlockHash:     blockHash,
			DispatchError: &chain.DispatchError{Text: text},
		})
		emit(chain.StatusUpdate{Status: chain.StatusFinalized, TxHash: txHash, BlockHash: blockHash})
	}
}
