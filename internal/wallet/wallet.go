// Package wallet connects to the signing bridge that fronts the user's
// browser wallet extension. The bridge lists the accounts the extension
// exposes and signs, submits and tracks contract calls on their behalf.
//
// Wire protocol, one JSON object per websocket message:
//
//	-> {"id":1,"method":"accounts"}
//	<- {"id":1,"accounts":[{"address":"5G...","name":"alice"}]}
//
//	-> {"id":2,"method":"signAndSend","params":{...}}
//	<- {"id":2,"accepted":true,"txHash":"0x..."}   or {"id":2,"error":"Rejected by user"}
//	<- {"id":2,"status":"inBlock","blockHash":"0x...","events":[...]}
//	<- {"id":2,"status":"finalized","blockHash":"0x...","events":[...]}
package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"

	"github.com/samuelarogbonlo/dot-escrow/internal/chain"
	"github.com/samuelarogbonlo/dot-escrow/internal/ss58"
)

// -----------------------------------------------------------------------------
// Errors - typed errors for programmatic handling
// -----------------------------------------------------------------------------

var (
	ErrBridgeURL        = errors.New("wallet: bridge URL is required")
	ErrBridgeConnection = errors.New("wallet: bridge connection failed")
	ErrProtocol         = errors.New("wallet: unexpected bridge message")
	ErrStreamClosed     = errors.New("wallet: status stream closed")
)

// BridgeError wraps transport failures with the operation that failed.
type BridgeError struct {
	Op  string
	Err error
}

func (e *BridgeError) Error() string {
	return fmt.Sprintf("wallet: %s failed: %v", e.Op, e.Err)
}

func (e *BridgeError) Unwrap() error { return e.Err }

// RemoteError is a refusal reported by the extension itself, for example
// the user rejecting the signature prompt. Its text is shown verbatim.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return e.Message }

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

const (
	// DefaultDialTimeout bounds the websocket handshake.
	DefaultDialTimeout = 10 * time.Second

	// DefaultAckTimeout bounds the wait for the extension to accept or reject
	// a signing request. The user has to click through a prompt.
	DefaultAckTimeout = 5 * time.Minute

	maxMessageSize = 1 << 20
)

// -----------------------------------------------------------------------------
// Types
// -----------------------------------------------------------------------------

// Config for connecting to the bridge
type Config struct {
	URL         string
	DialTimeout time.Duration
	AckTimeout  time.Duration
}

// Option configures the bridge client
type Option func(*Bridge)

// WithDialer sets a custom websocket dialer (useful for testing)
func WithDialer(d *websocket.Dialer) Option {
	return func(b *Bridge) {
		b.dialer = d
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = l
	}
}

// Account is an address the extension can sign for.
type Account struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
	Source  string `json:"source,omitempty"`
}

type request struct {
	ID     uint64      `json:"id"`
	Method string      `json:"method"`
	Params interface{} `json:"params,omitempty"`
}

type signParams struct {
	Address             string          `json:"address"`
	Dest                string          `json:"dest"`
	Message             string          `json:"message"`
	Value               string          `json:"value"`
	GasLimit            chain.GasWeight `json:"gasLimit"`
	StorageDepositLimit *string         `json:"storageDepositLimit"`
	Data                string          `json:"data"`
}

type message struct {
	ID            uint64               `json:"id"`
	Accounts      []Account            `json:"accounts,omitempty"`
	Accepted      bool                 `json:"accepted,omitempty"`
	TxHash        string               `json:"txHash,omitempty"`
	Error         string               `json:"error,omitempty"`
	Status        chain.TxStatus       `json:"status,omitempty"`
	BlockHash     string               `json:"blockHash,omitempty"`
	Events        []chain.Event        `json:"events,omitempty"`
	DispatchError *chain.DispatchError `json:"dispatchError,omitempty"`
}

// Bridge is a client for the signing bridge.
type Bridge struct {
	url        string
	dialer     *websocket.Dialer
	ackTimeout time.Duration
	logger     *slog.Logger
	nextID     atomic.Uint64
}

// Compile-time interface check
var _ chain.Extension = (*Bridge)(nil)

// New creates a bridge client. No connection is made until first use.
func New(cfg Config, opts ...Option) (*Bridge, error) {
	if cfg.URL == "" {
		return nil, ErrBridgeURL
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = DefaultAckTimeout
	}

	b := &Bridge{
		url:        cfg.URL,
		dialer:     &websocket.Dialer{HandshakeTimeout: cfg.DialTimeout},
		ackTimeout: cfg.AckTimeout,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

func (b *Bridge) dial(ctx context.Context, op string) (*websocket.Conn, error) {
	conn, _, err := b.dialer.DialContext(ctx, b.url, nil)
	if err != nil {
		return nil, &BridgeError{Op: op, Err: fmt.Errorf("%w: %v", ErrBridgeConnection, err)}
	}
	conn.SetReadLimit(maxMessageSize)
	return conn, nil
}

// Accounts lists the accounts the extension exposes.
func (b *Bridge) Accounts(ctx context.Context) ([]Account, error) {
	conn, err := b.dial(ctx, "accounts")
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	id := b.nextID.Add(1)
	if err := conn.WriteJSON(request{ID: id, Method: "accounts"}); err != nil {
		return nil, &BridgeError{Op: "accounts", Err: err}
	}

	msg, err := readMessage(ctx, conn, id)
	if err != nil {
		return nil, &BridgeError{Op: "accounts", Err: err}
	}
	if msg.Error != "" {
		return nil, &RemoteError{Message: msg.Error}
	}
	return msg.Accounts, nil
}

// Ping checks that the bridge answers.
func (b *Bridge) Ping(ctx context.Context) error {
	_, err := b.Accounts(ctx)
	return err
}

// Signer returns a signer for address if the extension exposes it. The
// comparison ignores SS58 network prefixes.
func (b *Bridge) Signer(ctx context.Context, address string) (chain.Signer, error) {
	if address == "" {
		return nil, chain.ErrSignerUnavailable
	}
	accounts, err := b.Accounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chain.ErrSignerUnavailable, err)
	}
	for _, a := range accounts {
		if a.Address == address || ss58.Equal(a.Address, address) {
			return &signer{bridge: b, address: address}, nil
		}
	}
	return nil, chain.ErrSignerUnavailable
}

// -----------------------------------------------------------------------------
// Signer
// -----------------------------------------------------------------------------

type signer struct {
	bridge  *Bridge
	address string
}

func (s *signer) Address() string { return s.address }

// SignAndSend asks the extension to sign and submit tx. It returns once the
// extension accepted or refused; status updates then arrive on onStatus from
// a background reader until the stream ends.
func (s *signer) SignAndSend(ctx context.Context, tx chain.Transaction, onStatus func(chain.StatusUpdate)) error {
	b := s.bridge
	conn, err := b.dial(ctx, "signAndSend")
	if err != nil {
		return err
	}

	id := b.nextID.Add(1)
	req := request{
		ID:     id,
		Method: "signAndSend",
		Params: signParams{
			Address:             s.address,
			Dest:                tx.Contract,
			Message:             tx.Message,
			Value:               tx.Value,
			GasLimit:            tx.GasLimit,
			StorageDepositLimit: tx.StorageDepositLimit,
			Data:                hexutil.Encode(tx.Input),
		},
	}
	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return &BridgeError{Op: "signAndSend", Err: err}
	}

	ackCtx, cancel := context.WithTimeout(ctx, b.ackTimeout)
	ack, err := readMessage(ackCtx, conn, id)
	cancel()
	if err != nil {
		conn.Close()
		return &BridgeError{Op: "signAndSend", Err: err}
	}
	if ack.Error != "" {
		conn.Close()
		return &RemoteError{Message: ack.Error}
	}
	if !ack.Accepted {
		conn.Close()
		return &BridgeError{Op: "signAndSend", Err: fmt.Errorf("%w: missing acknowledgement", ErrProtocol)}
	}

	b.logger.Debug("transaction accepted by extension",
		"address", s.address,
		"message", tx.Message,
		"txHash", ack.TxHash,
	)

	go s.stream(ctx, conn, id, ack.TxHash, onStatus)
	return nil
}

// stream relays status messages until a final status, a read failure or
// cancellation.
func (s *signer) stream(ctx context.Context, conn *websocket.Conn, id uint64, txHash string, onStatus func(chain.StatusUpdate)) {
	defer conn.Close()

	for {
		msg, err := readMessage(ctx, conn, id)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			onStatus(chain.StatusUpdate{TxHash: txHash, Err: &BridgeError{Op: "status", Err: err}})
			return
		}
		if msg.Error != "" {
			onStatus(chain.StatusUpdate{TxHash: txHash, Err: &RemoteError{Message: msg.Error}})
			return
		}
		if msg.Status == "" {
			continue
		}

		update := chain.StatusUpdate{
			Status:        msg.Status,
			TxHash:        msg.TxHash,
			BlockHash:     msg.BlockHash,
			Events:        msg.Events,
			DispatchError: msg.DispatchError,
		}
		if update.TxHash == "" {
			update.TxHash = txHash
		}
		onStatus(update)

		if msg.Status == chain.StatusFinalized || msg.Status.IsTerminalFailure() {
			return
		}
	}
}

// readMessage reads the next message for id, honoring ctx by closing the
// read side when it is done.
func readMessage(ctx context.Context, conn *websocket.Conn, id uint64) (*message, error) {
	// a deadline left behind by the previous call's watcher must not fire
	_ = conn.SetReadDeadline(time.Time{})

	done := make(chan struct{})
	exited := make(chan struct{})
	defer func() {
		close(done)
		<-exited
	}()
	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			_ = conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil, ErrStreamClosed
			}
			return nil, err
		}
		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
		}
		if msg.ID != id {
			continue
		}
		return &msg, nil
	}
}
