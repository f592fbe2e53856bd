// Package events recovers domain identifiers (escrow, dispute and
// notification ids) from the events a finalized transaction emitted.
//
// Event layouts are controlled by the contract, so decoding is a heuristic
// with an ordered fallback chain. The decoder never fails: when nothing can
// be recovered it says so through Identifier.Source.
package events

import (
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/samuelarogbonlo/dot-escrow/internal/chain"
	"github.com/samuelarogbonlo/dot-escrow/internal/metrics"
	"github.com/samuelarogbonlo/dot-escrow/internal/ss58"
)

// Expected identifier shapes.
var (
	EscrowPattern       = regexp.MustCompile(`^escrow_\d+$`)
	DisputePattern      = regexp.MustCompile(`^dispute_\d+$`)
	NotificationPattern = regexp.MustCompile(`^notification_\d+$`)
)

// MethodContractEmitted is the runtime event carrying contract events.
const MethodContractEmitted = "ContractEmitted"

// topicIndex is the topic holding the identifier; topic 0 is the event
// signature.
const topicIndex = 1

const fallbackHashChars = 8

// Source says where an identifier came from.
type Source string

const (
	SourceTopic     Source = "topic"
	SourceTxHash    Source = "tx_hash"
	SourceBlockHash Source = "block_hash"
	SourceNone      Source = "none"
)

// Identifier is a recovered id. ID is empty when Source is SourceNone.
type Identifier struct {
	ID     string `json:"id,omitempty"`
	Source Source `json:"source"`
}

// Found reports whether an id was recovered by any means.
func (i Identifier) Found() bool {
	return i.Source != SourceNone && i.ID != ""
}

// Decoder extracts ids emitted by one contract.
type Decoder struct {
	Contract string
	Pattern  *regexp.Regexp
}

// NewDecoder returns a decoder for contract. A nil pattern means
// EscrowPattern.
func NewDecoder(contract string, pattern *regexp.Regexp) *Decoder {
	if pattern == nil {
		pattern = EscrowPattern
	}
	return &Decoder{Contract: contract, Pattern: pattern}
}

// Decode runs the fallback chain: an emitted topic matching the pattern,
// then a tx-hash derived id, then, once finalized, a block-hash derived id.
func (d *Decoder) Decode(res chain.TxResult) Identifier {
	id := d.decode(res)
	metrics.EventIDSourceTotal.WithLabelValues(string(id.Source)).Inc()
	return id
}

func (d *Decoder) decode(res chain.TxResult) Identifier {
	if id := safe(func() string { return d.fromEvents(res.Events) }); id != "" {
		return Identifier{ID: id, Source: SourceTopic}
	}
	if id := safe(func() string { return derived("tx_", res.TxHash) }); id != "" {
		return Identifier{ID: id, Source: SourceTxHash}
	}
	if res.Finalized {
		if id := safe(func() string { return derived("block_", res.BlockHash) }); id != "" {
			return Identifier{ID: id, Source: SourceBlockHash}
		}
	}
	return Identifier{Source: SourceNone}
}

func (d *Decoder) fromEvents(evs []chain.Event) string {
	pattern := d.Pattern
	if pattern == nil {
		pattern = EscrowPattern
	}
	for _, ev := range evs {
		if ev.Method != MethodContractEmitted || !d.fromContract(ev.Contract) {
			continue
		}
		if len(ev.Topics) <= topicIndex {
			continue
		}
		if id := safe(func() string { return topicID(ev.Topics[topicIndex], pattern) }); id != "" {
			return id
		}
	}
	return ""
}

func (d *Decoder) fromContract(addr string) bool {
	if addr == "" || d.Contract == "" {
		return false
	}
	return addr == d.Contract || ss58.Equal(addr, d.Contract)
}

// topicID reads a topic as ASCII. Topics may carry the SCALE length prefix
// of an encoded string, so the text is tried with and without its first
// byte.
func topicID(topic string, pattern *regexp.Regexp) string {
	raw, err := hexutil.Decode(topic)
	if err != nil || len(raw) == 0 {
		return ""
	}
	if s, ok := ascii(raw); ok && pattern.MatchString(s) {
		return s
	}
	if n := int(raw[0] >> 2); raw[0]&0b11 == 0 && n > 0 && n < len(raw) {
		if s, ok := ascii(raw[1:]); ok && len(s) == n && pattern.MatchString(s) {
			return s
		}
	}
	return ""
}

// ascii decodes b up to the first NUL, rejecting non-printable bytes.
func ascii(b []byte) (string, bool) {
	var sb strings.Builder
	for _, c := range b {
		if c == 0 {
			break
		}
		if c < 0x20 || c > 0x7e {
			return "", false
		}
		sb.WriteByte(c)
	}
	return sb.String(), sb.Len() > 0
}

func derived(prefix, hash string) string {
	h := strings.TrimPrefix(strings.TrimSpace(hash), "0x")
	if h == "" {
		return ""
	}
	if len(h) > fallbackHashChars {
		h = h[:fallbackHashChars]
	}
	return prefix + h
}

// safe runs fn, turning a panic into an empty result.
func safe(fn func() string) (out string) {
	defer func() {
		if recover() != nil {
			out = ""
		}
	}()
	return fn()
}
