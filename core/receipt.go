package core

import (
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"lukechampine.com/blake3"

	"remitlend/core/types"
	"remitlend/crypto"
)

// EventTypeReceipt is the bus type of committed receipts.
const EventTypeReceipt = "protocol.receipt"

// Hash is a blake3 receipt digest.
type Hash [32]byte

// Hex returns the lowercase hex form.
func (h Hash) Hex() string { return hex.EncodeToString(h[:]) }

func (h Hash) String() string { return h.Hex() }

// MarshalText renders the hash as hex.
func (h Hash) MarshalText() ([]byte, error) { return []byte(h.Hex()), nil }

// UnmarshalText parses a hex hash.
func (h *Hash) UnmarshalText(text []byte) error {
	raw, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("receipt hash: %w", err)
	}
	if len(raw) != len(h) {
		return fmt.Errorf("receipt hash: want %d bytes, got %d", len(h), len(raw))
	}
	copy(h[:], raw)
	return nil
}

// Receipt describes one committed call.
type Receipt struct {
	Sequence  uint64         `json:"sequence"`
	Operation string         `json:"operation"`
	Caller    crypto.Address `json:"caller"`
	Timestamp uint64         `json:"timestamp"`
	Events    []*types.Event `json:"events"`
	Hash      Hash           `json:"hash"`
}

// EventType implements events.Event so receipts travel on the event bus.
func (r *Receipt) EventType() string { return EventTypeReceipt }

type receiptEvent struct {
	Type       string
	Attributes []types.Attribute
}

type receiptBody struct {
	Sequence  uint64
	Operation string
	Caller    crypto.Address
	Timestamp uint64
	Events    []receiptEvent
}

// ComputeHash returns the blake3 digest of the RLP encoded receipt body.
// Attributes are hashed in key order.
func (r *Receipt) ComputeHash() (Hash, error) {
	body := receiptBody{
		Sequence:  r.Sequence,
		Operation: r.Operation,
		Caller:    r.Caller,
		Timestamp: r.Timestamp,
		Events:    make([]receiptEvent, 0, len(r.Events)),
	}
	for _, evt := range r.Events {
		body.Events = append(body.Events, receiptEvent{Type: evt.Type, Attributes: evt.Pairs()})
	}
	encoded, err := rlp.EncodeToBytes(&body)
	if err != nil {
		return Hash{}, err
	}
	return Hash(blake3.Sum256(encoded)), nil
}

// Verify recomputes the hash and compares it to the stored one.
func (r *Receipt) Verify() bool {
	h, err := r.ComputeHash()
	return err == nil && h == r.Hash
}
