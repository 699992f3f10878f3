// Package wire implements the election's network framing and the typed
// tagged union that replaces the original protocol's ad-hoc JSON dicts.
//
// Every message on the wire is length-prefixed: a 4-byte big-endian
// length header followed by exactly that many payload bytes. This
// replaces the original implementation's single `recv(1024)` /
// `recv(131072)` call, which truncates silently once a Bloom filter or
// large puzzle payload exceeds the read buffer.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
)

// MaxFrameSize bounds a single frame to guard against a misbehaving peer
// declaring an unbounded length prefix.
const MaxFrameSize = 16 * 1024 * 1024 // 16 MiB, generous for any Bloom filter this protocol builds

// WriteFrame writes a length-prefixed frame containing payload.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("wire: payload of %d bytes exceeds max frame size", len(payload))
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("wire: write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("wire: write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("wire: read frame header: %w", err)
	}
	n := binary.BigEndian.Uint32(header[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("wire: declared frame size %d exceeds max", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("wire: read frame payload: %w", err)
	}
	return payload, nil
}

// MessageType tags the variant of an Envelope.
type MessageType string

const (
	// TypeVote is an original-protocol (non-time-locked) masked vote.
	TypeVote MessageType = "vote"
	// TypeNotTimeLocked is a dropout-resilient non-time-locked masked vote
	// (used only by the final voter, whose contribution is never locked).
	TypeNotTimeLocked MessageType = "not_time_locked"
	// TypeTimeLocked is a dropout-resilient time-locked masked vote.
	TypeTimeLocked MessageType = "time_locked"
	// TypeVoteBF is the generic-variant final voter's vote plus Bloom filter.
	TypeVoteBF MessageType = "vote_bf"
)

// Envelope is the typed tagged union carried over the tallier and final
// voter's intake sockets. Only the optional fields that belong to Type
// are populated (see the per-field comments below).
type Envelope struct {
	Type MessageType `json:"type"`

	// Vote carries the masked vote for Type in {not_time_locked, vote_bf}.
	Vote *BigInt `json:"vote,omitempty"`

	// Content carries the masked vote for Type == vote (original-generic
	// non-final voter messages use this field name, not "vote").
	Content *BigInt `json:"content,omitempty"`

	// BF carries the Bloom filter for Type == vote_bf.
	BF *BloomWire `json:"bf,omitempty"`

	// Time-lock puzzle fields for Type == time_locked.
	N      *BigInt `json:"n,omitempty"`
	A      *BigInt `json:"a,omitempty"`
	T      *uint64 `json:"t,omitempty"`
	CK     *BigInt `json:"CK,omitempty"`
	CM     *BigInt `json:"CM,omitempty"`
	Nonce  *BigInt `json:"nonce,omitempty"`
}

// BloomWire mirrors bloom.Wire without importing the bloom package here,
// so wire stays a leaf dependency; tallier/finalvoter convert between them.
type BloomWire struct {
	Size      uint64 `json:"size"`
	HashCount uint64 `json:"hash_count"`
	BitArray  string `json:"bit_array"`
}

// BigInt adapts *big.Int to unbounded-decimal JSON encoding, matching the
// wire format's "all integers in JSON are unbounded decimal" rule.
type BigInt big.Int

// MarshalJSON renders the integer as a bare JSON number (no quotes),
// matching the original protocol's `json.dumps({'CK': <python int>, ...})`.
func (b BigInt) MarshalJSON() ([]byte, error) {
	return []byte((*big.Int)(&b).String()), nil
}

// UnmarshalJSON parses a bare JSON number into the big integer.
func (b *BigInt) UnmarshalJSON(data []byte) error {
	z := (*big.Int)(b)
	if _, ok := z.SetString(string(data), 10); !ok {
		return fmt.Errorf("wire: invalid big integer literal %q", string(data))
	}
	return nil
}

// Int converts to *big.Int.
func (b *BigInt) Int() *big.Int {
	if b == nil {
		return nil
	}
	return (*big.Int)(b)
}

// NewBigInt wraps v as a *BigInt for envelope construction.
func NewBigInt(v *big.Int) *BigInt {
	if v == nil {
		return nil
	}
	b := BigInt(*v)
	return &b
}

// EncodeEnvelope marshals e to its JSON wire form.
func EncodeEnvelope(e Envelope) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("wire: encode envelope: %w", err)
	}
	return data, nil
}

// DecodeEnvelope parses a JSON envelope, rejecting malformed or
// unrecognized messages (ProtocolFormatError in spec terms: the caller
// must drop the message and must not advance its intake counter).
func DecodeEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("wire: decode envelope: %w", err)
	}
	switch e.Type {
	case TypeVote, TypeNotTimeLocked, TypeTimeLocked, TypeVoteBF:
	default:
		return Envelope{}, fmt.Errorf("wire: unknown message type %q", e.Type)
	}
	return e, nil
}
