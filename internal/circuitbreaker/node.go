package circuitbreaker

import (
	"context"
	"errors"

	"github.com/samuelarogbonlo/dot-escrow/internal/chain"
)

// RPC keys, one circuit each.
const (
	RPCCall      = "contracts_call"
	RPCBlockHash = "block_hash"
	RPCFinalized = "finalized_head"
	RPCBlock     = "block"
)

// Node guards a chain.Node. Missing blocks and canceled requests are answers,
// not outages, and leave the circuit alone.
type Node struct {
	next    chain.Node
	breaker *Breaker
}

var _ chain.Node = (*Node)(nil)

// WrapNode guards next with b.
func WrapNode(next chain.Node, b *Breaker) *Node {
	return &Node{next: next, breaker: b}
}

func outage(err error) bool {
	return !errors.Is(err, chain.ErrBlockNotFound) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

func (n *Node) Call(ctx context.Context, req chain.CallRequest) (*chain.CallResult, error) {
	var res *chain.CallResult
	err := n.breaker.Do(RPCCall, func() (err error) {
		res, err = n.next.Call(ctx, req)
		return err
	}, outage)
	return res, err
}

func (n *Node) BlockHash(ctx context.Context, number *uint64) (string, error) {
	var hash string
	err := n.breaker.Do(RPCBlockHash, func() (err error) {
		hash, err = n.next.BlockHash(ctx, number)
		return err
	}, outage)
	return hash, err
}

func (n *Node) FinalizedHead(ctx context.Context) (string, error) {
	var hash string
	err := n.breaker.Do(RPCFinalized, func() (err error) {
		hash, err = n.next.FinalizedHead(ctx)
		return err
	}, outage)
	return hash, err
}

func (n *Node) Block(ctx context.Context, hash string) (*chain.Block, error) {
	var b *chain.Block
	err := n.breaker.Do(RPCBlock, func() (err error) {
		b, err = n.next.Block(ctx, hash)
		return err
	}, outage)
	return b, err
}

// Ping bypasses the breaker so health checks see the real node.
func (n *Node) Ping(ctx context.Context) error {
	if p, ok := n.next.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	_, err := n.next.FinalizedHead(ctx)
	return err
}
