// Package consensus implements the hybrid proof-of-work / proof-of-stake
// block validation rules: coin-age weight, the stake kernel, the stake
// modifier and block-type arbitration.
package consensus

import (
	"time"

	"github.com/Klingon-tech/klingnet-stake/internal/chain"
	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	// TxLookup resolves outputs referenced by stake and coin-age inputs,
	// as created on the branch ending at branch. Implementations return a
	// *LookupError wrapping ErrNotFound for outpoints unknown to that
	// branch.
	TxLookup interface {
		LookupPriorTx(op types.Outpoint, branch *chain.BlockRecord) (*PriorTx, error)
	}

	// Checkpointer is the hardened checkpoint gate.
	Checkpointer interface {
		CheckHardened(height uint64, hash types.Hash) bool
		VerifyModifierChecksum(height uint64, checksum uint32) bool
	}

	// Metrics receives validation outcomes. reason is empty on accept.
	Metrics interface {
		ObserveValidation(blockType string, reason string, started time.Time)
		ObserveModifierCache(hit bool)
	}
)

// PriorTx is the indexed view of an output spent by a stake or coin-age
// input.
type PriorTx struct {
	TxID      types.Hash
	Value     uint64 // value of the referenced output
	Time      int64  // transaction time
	BlockHash types.Hash
	BlockTime int64
	Offset    uint32 // byte offset of the transaction within its block
	Height    uint64
}

type nopMetrics struct{}

func (nopMetrics) ObserveValidation(string, string, time.Time) {}
func (nopMetrics) ObserveModifierCache(bool)                   {}

// openCheckpoints hardens nothing.
type openCheckpoints struct{}

func (openCheckpoints) CheckHardened(uint64, types.Hash) bool      { return true }
func (openCheckpoints) VerifyModifierChecksum(uint64, uint32) bool { return true }
