package chain

import (
	"github.com/Klingon-tech/klingnet-stake/config"
	"github.com/Klingon-tech/klingnet-stake/pkg/block"
	"github.com/Klingon-tech/klingnet-stake/pkg/tx"
	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

// GenesisBlock builds the network's genesis block. It has a zero PrevHash
// and a single coinbase carrying the genesis message and no value.
func GenesisBlock(p *config.ConsensusParams) *block.Block {
	coinbase := &tx.Transaction{
		Version: 1,
		Time:    uint64(p.GenesisTime),
		Inputs: []tx.Input{{
			PrevOut: types.Outpoint{}, // Zero outpoint marks a coinbase.
			Script:  tx.Script(p.GenesisMessage),
		}},
		Outputs: []tx.Output{{Value: 0}},
	}

	txs := []*tx.Transaction{coinbase}
	header := &block.Header{
		Version:    block.CurrentVersion,
		MerkleRoot: block.ComputeMerkleRoot([]types.Hash{coinbase.Hash()}),
		Timestamp:  uint64(p.GenesisTime),
		Bits:       p.PowLimitBits,
	}
	return block.NewBlock(header, txs)
}

// GenesisRecord returns the index record of the genesis block. Genesis
// always generates the zero stake modifier and has a zero checksum.
func GenesisRecord(p *config.ConsensusParams) *BlockRecord {
	blk := GenesisBlock(p)
	hash := blk.Hash()
	return &BlockRecord{
		Height:            0,
		Hash:              hash,
		Time:              p.GenesisTime,
		Bits:              blk.Header.Bits,
		Proof:             ProofOfWork,
		ProofHash:         hash,
		StakeModifier:     0,
		ModifierChecksum:  0,
		ModifierGenerated: true,
		ChainTx:           uint64(len(blk.Transactions)),
	}
}
