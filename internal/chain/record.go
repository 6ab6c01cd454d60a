// Package chain holds the committed block history: an append-only arena of
// block records indexed by hash and height, and its persistent store.
package chain

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

// ProofType is the proof a committed block was accepted under.
type ProofType uint8

const (
	ProofOfWork ProofType = iota
	ProofOfStake
)

func (p ProofType) String() string {
	switch p {
	case ProofOfWork:
		return "pow"
	case ProofOfStake:
		return "pos"
	default:
		return fmt.Sprintf("proof(%d)", uint8(p))
	}
}

// Record flag bits, as folded into the stake modifier checksum.
const (
	FlagProofOfStake      uint32 = 1 << 0
	FlagModifierGenerated uint32 = 1 << 1
)

// BlockRecord is the consensus metadata of an accepted block.
//
// A record is fully populated before Commit and never modified after it,
// so a record obtained from an Index may be read without locking. The
// parent is referenced by arena position, not by pointer.
type BlockRecord struct {
	Height   uint64     `json:"height"`
	Hash     types.Hash `json:"hash"`
	PrevHash types.Hash `json:"prev_hash"`
	Time     int64      `json:"time"`
	Bits     uint32     `json:"bits"`

	Proof ProofType `json:"proof"`
	// ProofHash is the kernel hash for stake blocks and the block hash for
	// work blocks. It drives stake modifier selection.
	ProofHash types.Hash `json:"proof_hash"`

	StakeModifier     uint64 `json:"stake_modifier"`
	ModifierChecksum  uint32 `json:"modifier_checksum"`
	ModifierGenerated bool   `json:"modifier_generated"`

	// ChainTx is the number of transactions from genesis up to and
	// including this block.
	ChainTx uint64 `json:"chain_tx"`

	index  int
	parent int
}

// IsProofOfStake reports whether the block was accepted with a stake kernel.
func (r *BlockRecord) IsProofOfStake() bool {
	return r.Proof == ProofOfStake
}

// IsGenesis reports whether the record is the root of the chain.
func (r *BlockRecord) IsGenesis() bool {
	return r.Height == 0 && r.PrevHash.IsZero()
}

// Flags returns the record's flag word.
func (r *BlockRecord) Flags() uint32 {
	var f uint32
	if r.IsProofOfStake() {
		f |= FlagProofOfStake
	}
	if r.ModifierGenerated {
		f |= FlagModifierGenerated
	}
	return f
}

func (r *BlockRecord) String() string {
	return fmt.Sprintf("%s@%d", r.Hash, r.Height)
}
