// Package miner produces proof-of-work blocks on the hybrid chain.
package miner

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-stake/internal/chain"
	"github.com/Klingon-tech/klingnet-stake/internal/consensus"
	"github.com/Klingon-tech/klingnet-stake/pkg/block"
	"github.com/Klingon-tech/klingnet-stake/pkg/tx"
)

// ErrStakeRequired is returned when the next block must carry a stake.
var ErrStakeRequired = errors.New("next block must be proof-of-stake")

// ChainState provides read-only access to the current chain tip.
type ChainState interface {
	Tip() *chain.BlockRecord
}

// Miner produces new work blocks.
type Miner struct {
	chain   ChainState
	sel     *consensus.Selector
	script  tx.Script
	threads int
}

// New creates a new block producer paying rewards to script.
func New(chain ChainState, sel *consensus.Selector, script tx.Script, threads int) *Miner {
	return &Miner{
		chain:   chain,
		sel:     sel,
		script:  script,
		threads: threads,
	}
}

// ProduceBlock builds and seals a block on the current tip using the
// selector's adjusted time. The block is NOT applied to the chain; the
// caller must process it.
func (m *Miner) ProduceBlock(ctx context.Context) (*block.Block, error) {
	return m.ProduceBlockAt(ctx, m.sel.Now().Unix())
}

// ProduceBlockAt builds and seals a block with the given timestamp. The
// timestamp is bumped to at least the parent's time plus one second.
func (m *Miner) ProduceBlockAt(ctx context.Context, timestamp int64) (*block.Block, error) {
	parent := m.chain.Tip()
	if parent == nil {
		return nil, fmt.Errorf("chain has no genesis block")
	}
	if timestamp <= parent.Time {
		timestamp = parent.Time + 1
	}

	tmpl := m.sel.Template(parent)
	if tmpl.Type == consensus.BlockPoS {
		return nil, fmt.Errorf("height %d: %w", tmpl.Height, ErrStakeRequired)
	}

	coinbase := BuildCoinbase(m.script, m.sel.Reward(tmpl.Height, consensus.BlockPoW), tmpl.Height, timestamp)
	blk := block.NewBlock(&block.Header{
		Version:   block.CurrentVersion,
		PrevHash:  parent.Hash,
		Timestamp: uint64(timestamp),
		Bits:      m.sel.Difficulty(parent, consensus.BlockPoW),
	}, []*tx.Transaction{coinbase})
	blk.Header.MerkleRoot = blk.ComputeMerkleRoot()

	if err := consensus.Seal(ctx, blk.Header, m.threads); err != nil {
		return nil, fmt.Errorf("seal block: %w", err)
	}
	return blk, nil
}

// BuildCoinbase creates a coinbase transaction with the given reward.
// The block height is encoded in the coinbase input script to ensure each
// coinbase tx has a unique hash (similar to Bitcoin's BIP34).
func BuildCoinbase(script tx.Script, reward, height uint64, timestamp int64) *tx.Transaction {
	heightBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(heightBytes, height)

	return &tx.Transaction{
		Version: 1,
		Time:    uint64(timestamp),
		Inputs: []tx.Input{{
			Script: heightBytes, // Zero outpoint marks coinbase.
		}},
		Outputs: []tx.Output{{
			Value:  reward,
			Script: script,
		}},
	}
}
