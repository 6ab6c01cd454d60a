// Package txindex indexes the outputs of accepted blocks so stake kernels
// and coin age can resolve the transactions they spend.
package txindex

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-stake/internal/chain"
	"github.com/Klingon-tech/klingnet-stake/internal/consensus"
	"github.com/Klingon-tech/klingnet-stake/internal/storage"
	"github.com/Klingon-tech/klingnet-stake/pkg/block"
	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

var prefixOutput = []byte("o/") // o/<outpoint><block hash> -> entry JSON

// errFound stops an entry scan early.
var errFound = errors.New("found")

// entry is the stored form of consensus.PriorTx.
type entry struct {
	TxID      types.Hash `json:"txid"`
	Value     uint64     `json:"value"`
	Time      int64      `json:"time"`
	BlockHash types.Hash `json:"block_hash"`
	BlockTime int64      `json:"block_time"`
	Offset    uint32     `json:"offset"`
	Height    uint64     `json:"height"`
}

// Index maps outpoints to the transaction that created them. Outputs of
// every indexed branch are kept, one entry per containing block, and
// lookups resolve them against the branch being extended.
type Index struct {
	db   storage.DB
	view chain.View
}

// New creates a tx index backed by db. view resolves the blocks entries
// were indexed under.
func New(db storage.DB, view chain.View) *Index {
	return &Index{db: db, view: view}
}

// IndexBlock records every output of blk, committed as rec, in one batch.
func (x *Index) IndexBlock(blk *block.Block, rec *chain.BlockRecord) error {
	b := storage.NewBatch(x.db)
	for i, t := range blk.Transactions {
		txid := t.Hash()
		offset := blk.TxOffset(i)
		for n, out := range t.Outputs {
			data, err := json.Marshal(entry{
				TxID:      txid,
				Value:     out.Value,
				Time:      int64(t.Time),
				BlockHash: rec.Hash,
				BlockTime: rec.Time,
				Offset:    offset,
				Height:    rec.Height,
			})
			if err != nil {
				return fmt.Errorf("marshal output %s:%d: %w", txid, n, err)
			}
			op := types.Outpoint{TxID: txid, Index: uint32(n)}
			if err := b.Put(outputKey(op, rec.Hash), data); err != nil {
				return err
			}
		}
	}
	return b.Commit()
}

// LookupPriorTx returns the indexed view of the output op refers to, as
// created in a block on the branch ending at branch. A nil branch accepts
// any block known to the view. Outputs indexed only on other branches are
// reported as not found.
func (x *Index) LookupPriorTx(op types.Outpoint, branch *chain.BlockRecord) (*consensus.PriorTx, error) {
	var found *entry
	err := x.db.ForEach(outpointPrefix(op), func(_, value []byte) error {
		var e entry
		if err := json.Unmarshal(value, &e); err != nil {
			return fmt.Errorf("unmarshal output %s: %w", op, err)
		}
		rec, ok := x.view.ByHash(e.BlockHash)
		if !ok {
			return nil
		}
		if branch != nil && !x.view.IsAncestor(rec, branch) {
			return nil
		}
		found = &e
		return errFound
	})
	if err != nil && !errors.Is(err, errFound) {
		return nil, fmt.Errorf("scan output %s: %w", op, err)
	}
	if found == nil {
		return nil, &consensus.LookupError{Kind: "outpoint", Key: op.String(), Err: consensus.ErrNotFound}
	}
	return &consensus.PriorTx{
		TxID:      found.TxID,
		Value:     found.Value,
		Time:      found.Time,
		BlockHash: found.BlockHash,
		BlockTime: found.BlockTime,
		Offset:    found.Offset,
		Height:    found.Height,
	}, nil
}

func outpointPrefix(op types.Outpoint) []byte {
	key := make([]byte, 0, len(prefixOutput)+types.OutpointSize+types.HashSize)
	key = append(key, prefixOutput...)
	return append(key, op.Bytes()...)
}

func outputKey(op types.Outpoint, blockHash types.Hash) []byte {
	return append(outpointPrefix(op), blockHash[:]...)
}
