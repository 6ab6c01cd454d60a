package types

import (
	"encoding/binary"
	"fmt"
)

// OutpointSize is the serialized length of an outpoint: txid(32) | index(4).
const OutpointSize = HashSize + 4

// Outpoint references a specific output in a transaction.
type Outpoint struct {
	TxID  Hash   `json:"txid"`
	Index uint32 `json:"index"`
}

// IsZero returns true if the outpoint has a zero TxID and zero index.
func (o Outpoint) IsZero() bool {
	return o.TxID.IsZero() && o.Index == 0
}

// Bytes returns the canonical serialization of the outpoint.
func (o Outpoint) Bytes() []byte {
	buf := make([]byte, 0, OutpointSize)
	buf = append(buf, o.TxID[:]...)
	return binary.LittleEndian.AppendUint32(buf, o.Index)
}

// String returns "txid:index" in hex.
func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxID.String(), o.Index)
}
