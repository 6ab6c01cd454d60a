// Package tx defines transaction types and structural validation.
package tx

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/Klingon-tech/klingnet-stake/pkg/crypto"
	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

// Transaction represents a blockchain transaction.
//
// Time is the transaction timestamp in unix seconds. Stake age is measured
// from the time of the transaction that created an output.
type Transaction struct {
	Version  uint32   `json:"version"`
	Time     uint64   `json:"time"`
	Inputs   []Input  `json:"inputs"`
	Outputs  []Output `json:"outputs"`
	LockTime uint64   `json:"locktime"`
}

// Script is opaque locking/unlocking data. Script evaluation happens
// outside the consensus core; here it is only carried and hashed.
type Script []byte

// MarshalText encodes the script as hex.
func (s Script) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(s)), nil
}

// UnmarshalText decodes a hex-encoded script.
func (s *Script) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("invalid script hex: %w", err)
	}
	*s = b
	return nil
}

// Input references an output being spent.
type Input struct {
	PrevOut types.Outpoint `json:"prevout"`
	Script  Script         `json:"script,omitempty"`
}

// Output defines a new spendable output.
type Output struct {
	Value  uint64 `json:"value"`
	Script Script `json:"script,omitempty"`
}

// IsEmpty reports whether the output carries neither value nor script.
// A coinstake marks itself with an empty first output.
func (o Output) IsEmpty() bool {
	return o.Value == 0 && len(o.Script) == 0
}

// IsCoinBase reports whether the transaction is the block reward
// transaction of a proof-of-work block (single zero-outpoint input).
func (tx *Transaction) IsCoinBase() bool {
	return len(tx.Inputs) == 1 && tx.Inputs[0].PrevOut.IsZero()
}

// IsCoinStake reports whether the transaction claims a stake: it spends a
// real output and its first output is empty.
func (tx *Transaction) IsCoinStake() bool {
	return len(tx.Inputs) > 0 &&
		!tx.Inputs[0].PrevOut.IsZero() &&
		len(tx.Outputs) >= 2 &&
		tx.Outputs[0].IsEmpty()
}

// Hash computes the transaction ID (BLAKE3 hash of the serialized signing data).
// Unlocking scripts are excluded, except for coinbase data.
func (tx *Transaction) Hash() types.Hash {
	return crypto.Hash(tx.SigningBytes())
}

// SigningBytes returns the canonical byte representation.
// Format: version(4) | time(8) | input_count(4) | [prevout(36)]... | output_count(4) | [value(8) + script_len(4) + script]... | locktime(8)
func (tx *Transaction) SigningBytes() []byte {
	var buf []byte

	buf = binary.LittleEndian.AppendUint32(buf, tx.Version)
	buf = binary.LittleEndian.AppendUint64(buf, tx.Time)

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		buf = append(buf, in.PrevOut.Bytes()...)
		// Coinbase data (height, extra nonce) makes each coinbase id unique.
		if in.PrevOut.IsZero() && len(in.Script) > 0 {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(len(in.Script)))
			buf = append(buf, in.Script...)
		}
	}

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		buf = binary.LittleEndian.AppendUint64(buf, out.Value)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(out.Script)))
		buf = append(buf, out.Script...)
	}

	buf = binary.LittleEndian.AppendUint64(buf, tx.LockTime)

	return buf
}

// TotalOutputValue returns the sum of all output values.
// Returns an error if the sum overflows uint64.
func (tx *Transaction) TotalOutputValue() (uint64, error) {
	var total uint64
	for _, out := range tx.Outputs {
		if total > math.MaxUint64-out.Value {
			return 0, fmt.Errorf("output value overflow")
		}
		total += out.Value
	}
	return total, nil
}
