// Package block defines block types and structural validation.
package block

import (
	"github.com/Klingon-tech/klingnet-stake/pkg/tx"
	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

// Block represents a block in the chain.
type Block struct {
	Header       *Header           `json:"header"`
	Transactions []*tx.Transaction `json:"transactions"`
}

// NewBlock creates a new block with the given header and transactions.
func NewBlock(header *Header, txs []*tx.Transaction) *Block {
	return &Block{
		Header:       header,
		Transactions: txs,
	}
}

// Hash returns the block header hash.
func (b *Block) Hash() types.Hash {
	if b.Header == nil {
		return types.Hash{}
	}
	return b.Header.Hash()
}

// CoinStake returns the stake-claim transaction, which must sit at index 1,
// or nil when the block carries none.
func (b *Block) CoinStake() *tx.Transaction {
	if len(b.Transactions) < 2 || !b.Transactions[1].IsCoinStake() {
		return nil
	}
	return b.Transactions[1]
}

// TxOffset returns the byte offset of transaction i within the serialized
// block (header followed by each transaction's canonical bytes).
func (b *Block) TxOffset(i int) uint32 {
	offset := HeaderSize
	for _, t := range b.Transactions[:i] {
		offset += len(t.SigningBytes())
	}
	return uint32(offset)
}

// ComputeMerkleRoot returns the merkle root of the block's transactions.
func (b *Block) ComputeMerkleRoot() types.Hash {
	hashes := make([]types.Hash, len(b.Transactions))
	for i, t := range b.Transactions {
		hashes[i] = t.Hash()
	}
	return ComputeMerkleRoot(hashes)
}
