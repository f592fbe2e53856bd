// Package abi loads ink! contract metadata and uses its type registry to
// encode message calls and decode message return values.
package abi

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

//go:embed escrow_contract.json
var escrowMetadata []byte

var (
	ErrUnknownMessage  = errors.New("abi: unknown message")
	ErrArgumentCount   = errors.New("abi: wrong number of arguments")
	ErrUnknownType     = errors.New("abi: unknown type id")
	ErrUnsupportedType = errors.New("abi: unsupported type")
	ErrInvalidValue    = errors.New("abi: invalid value")
	ErrTrailingBytes   = errors.New("abi: trailing bytes after value")
)

// ArgError reports which argument of a message failed to encode.
type ArgError struct {
	Message string
	Arg     string
	Err     error
}

func (e *ArgError) Error() string {
	return fmt.Sprintf("abi: %s(%s): %v", e.Message, e.Arg, e.Err)
}

func (e *ArgError) Unwrap() error { return e.Err }

// -----------------------------------------------------------------------------
// Metadata document
// -----------------------------------------------------------------------------

type metadata struct {
	Version  json.Number `json:"version"`
	Contract struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"contract"`
	Spec struct {
		Messages []messageSpec `json:"messages"`
		Events   []eventSpec   `json:"events"`
	} `json:"spec"`
	Types []typeEntry `json:"types"`
}

type typeRef struct {
	Type        int      `json:"type"`
	DisplayName []string `json:"displayName"`
}

type messageSpec struct {
	Label      string    `json:"label"`
	Selector   string    `json:"selector"`
	Mutates    bool      `json:"mutates"`
	Payable    bool      `json:"payable"`
	Args       []argSpec `json:"args"`
	ReturnType *typeRef  `json:"returnType"`
	Docs       []string  `json:"docs"`
}

type argSpec struct {
	Label string  `json:"label"`
	Type  typeRef `json:"type"`
}

type eventSpec struct {
	Label          string `json:"label"`
	SignatureTopic string `json:"signature_topic"`
	Args           []struct {
		Label   string  `json:"label"`
		Indexed bool    `json:"indexed"`
		Type    typeRef `json:"type"`
	} `json:"args"`
}

type typeEntry struct {
	ID   int `json:"id"`
	Type struct {
		Path []string `json:"path"`
		Def  typeDef  `json:"def"`
	} `json:"type"`
}

type typeDef struct {
	Composite *struct {
		Fields []fieldDef `json:"fields"`
	} `json:"composite"`
	Variant *struct {
		Variants []variantDef `json:"variants"`
	} `json:"variant"`
	Sequence *struct {
		Type int `json:"type"`
	} `json:"sequence"`
	Array *struct {
		Len  int `json:"len"`
		Type int `json:"type"`
	} `json:"array"`
	Tuple     []int  `json:"tuple"`
	Primitive string `json:"primitive"`
	Compact   *struct {
		Type int `json:"type"`
	} `json:"compact"`
}

type fieldDef struct {
	Name     string `json:"name"`
	Type     int    `json:"type"`
	TypeName string `json:"typeName"`
}

type variantDef struct {
	Name   string     `json:"name"`
	Index  int        `json:"index"`
	Fields []fieldDef `json:"fields"`
}

// -----------------------------------------------------------------------------
// Contract
// -----------------------------------------------------------------------------

// Message describes one callable contract message.
type Message struct {
	Label      string
	Selector   [4]byte
	Mutates    bool
	Payable    bool
	Args       []Arg
	ReturnType int // -1 when the message returns nothing
}

// Arg is a named, typed message argument.
type Arg struct {
	Label string
	Type  int
}

// Event describes a contract event and its signature topic.
type Event struct {
	Label          string
	SignatureTopic string
	Topics         []string // labels of indexed fields, in topic order after the signature
}

// Contract is a parsed metadata document.
type Contract struct {
	Name    string
	Version string

	// AddressPrefix is the SS58 network prefix used when decoding account ids.
	AddressPrefix uint16

	messages map[string]*Message
	events   []Event
	types    map[int]*typeEntry
}

// Load parses ink! metadata JSON.
func Load(data []byte) (*Contract, error) {
	var doc metadata
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("abi: parse metadata: %w", err)
	}
	if len(doc.Spec.Messages) == 0 {
		return nil, errors.New("abi: metadata declares no messages")
	}

	c := &Contract{
		Name:     doc.Contract.Name,
		Version:  doc.Contract.Version,
		messages: make(map[string]*Message, len(doc.Spec.Messages)),
		types:    make(map[int]*typeEntry, len(doc.Types)),
	}
	for i := range doc.Types {
		c.types[doc.Types[i].ID] = &doc.Types[i]
	}

	for _, m := range doc.Spec.Messages {
		sel, err := hexutil.Decode(m.Selector)
		if err != nil || len(sel) != 4 {
			return nil, fmt.Errorf("abi: message %s has invalid selector %q", m.Label, m.Selector)
		}
		msg := &Message{
			Label:      m.Label,
			Mutates:    m.Mutates,
			Payable:    m.Payable,
			ReturnType: -1,
		}
		copy(msg.Selector[:], sel)
		for _, a := range m.Args {
			if _, ok := c.types[a.Type.Type]; !ok {
				return nil, fmt.Errorf("%w: %d in %s(%s)", ErrUnknownType, a.Type.Type, m.Label, a.Label)
			}
			msg.Args = append(msg.Args, Arg{Label: a.Label, Type: a.Type.Type})
		}
		if m.ReturnType != nil {
			if _, ok := c.types[m.ReturnType.Type]; !ok {
				return nil, fmt.Errorf("%w: %d returned by %s", ErrUnknownType, m.ReturnType.Type, m.Label)
			}
			msg.ReturnType = m.ReturnType.Type
		}
		c.messages[m.Label] = msg
	}

	for _, e := range doc.Spec.Events {
		ev := Event{Label: e.Label, SignatureTopic: e.SignatureTopic}
		for _, a := range e.Args {
			if a.Indexed {
				ev.Topics = append(ev.Topics, a.Label)
			}
		}
		c.events = append(c.events, ev)
	}

	return c, nil
}

// LoadFile reads and parses a metadata file.
func LoadFile(path string) (*Contract, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("abi: read metadata: %w", err)
	}
	return Load(data)
}

// Escrow returns the bundled escrow contract metadata.
func Escrow() (*Contract, error) {
	return Load(escrowMetadata)
}

// Message looks up a message by label.
func (c *Contract) Message(label string) (*Message, error) {
	m, ok := c.messages[label]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessage, label)
	}
	return m, nil
}

// Events returns the declared events.
func (c *Contract) Events() []Event {
	return c.events
}

// EventBySignature finds the event whose signature topic matches topic0.
func (c *Contract) EventBySignature(topic string) (Event, bool) {
	for _, e := range c.events {
		if strings.EqualFold(e.SignatureTopic, topic) {
			return e, true
		}
	}
	return Event{}, false
}

// EncodeCall returns the selector followed by the SCALE encoding of args.
func (c *Contract) EncodeCall(label string, args ...any) ([]byte, error) {
	m, err := c.Message(label)
	if err != nil {
		return nil, err
	}
	if len(args) != len(m.Args) {
		return nil, fmt.Errorf("%w: %s takes %d, got %d", ErrArgumentCount, label, len(m.Args), len(args))
	}

	enc := newValueEncoder(c)
	enc.out.WriteRaw(m.Selector[:])
	for i, a := range m.Args {
		if err := enc.encode(a.Type, args[i], 0); err != nil {
			return nil, &ArgError{Message: label, Arg: a.Label, Err: err}
		}
	}
	return enc.out.Bytes(), nil
}

// DecodeReturn decodes raw return data of a message into plain Go values:
// maps for structs, []any for sequences, {"Ok": v} / {"Err": v} for results
// and nil for an empty option.
func (c *Contract) DecodeReturn(label string, data []byte) (any, error) {
	m, err := c.Message(label)
	if err != nil {
		return nil, err
	}
	if m.ReturnType < 0 {
		return nil, nil
	}
	return c.Decode(m.ReturnType, data)
}

// EncodeReturn encodes v as the return type of a message. Fake nodes use it
// to produce contract output.
func (c *Contract) EncodeReturn(label string, v any) ([]byte, error) {
	m, err := c.Message(label)
	if err != nil {
		return nil, err
	}
	if m.ReturnType < 0 {
		return nil, nil
	}
	enc := newValueEncoder(c)
	if err := enc.encode(m.ReturnType, v, 0); err != nil {
		return nil, fmt.Errorf("abi: %s return: %w", label, err)
	}
	return enc.out.Bytes(), nil
}

// Decode decodes data as the registry type id.
func (c *Contract) Decode(typeID int, data []byte) (any, error) {
	dec := newValueDecoder(c, data)
	v, err := dec.decode(typeID, 0)
	if err != nil {
		return nil, err
	}
	if n := dec.in.Remaining(); n > 0 {
		return nil, fmt.Errorf("%w: %d left", ErrTrailingBytes, n)
	}
	return v, nil
}

func (c *Contract) lookup(id int) (*typeEntry, error) {
	t, ok := c.types[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, id)
	}
	return t, nil
}
