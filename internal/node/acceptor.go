package node

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Klingon-tech/klingnet-stake/internal/chain"
	"github.com/Klingon-tech/klingnet-stake/internal/consensus"
	klog "github.com/Klingon-tech/klingnet-stake/internal/log"
	"github.com/Klingon-tech/klingnet-stake/pkg/block"
	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

// Block processing errors.
var (
	ErrBlockKnown   = errors.New("block already known")
	ErrPrevNotFound = errors.New("previous block not found")
)

// TxIndexer records the outputs of accepted blocks.
type TxIndexer interface {
	IndexBlock(blk *block.Block, rec *chain.BlockRecord) error
}

// TipObserver is notified of the best-chain height after each commit.
type TipObserver interface {
	SetTipHeight(height uint64)
}

// Acceptor runs blocks through consensus validation and commits the
// accepted ones to the index, the record store and the tx index.
//
// Validation runs concurrently; commits are serialized.
type Acceptor struct {
	sel   *consensus.Selector
	idx   *chain.Index
	store *chain.Store
	txs   TxIndexer
	tip   TipObserver
	log   zerolog.Logger

	workers int

	mu sync.Mutex // serializes commits
}

// NewAcceptor wires an acceptor. tip may be nil.
func NewAcceptor(sel *consensus.Selector, idx *chain.Index, store *chain.Store, txs TxIndexer, tip TipObserver) *Acceptor {
	return &Acceptor{
		sel:   sel,
		idx:   idx,
		store: store,
		txs:   txs,
		tip:   tip,
		log:   klog.Chain,

		workers: DefaultWorkers,
	}
}

// DefaultWorkers bounds concurrent candidate validation.
const DefaultWorkers = 4

// SetWorkers sets how many candidates ValidateCandidates checks at once.
func (a *Acceptor) SetWorkers(n int) {
	if n < 1 {
		n = 1
	}
	a.workers = n
}

// ProcessBlock validates blk against its parent and, when accepted,
// commits it. A rejection is a *consensus.RuleError; an unknown parent
// wraps ErrPrevNotFound.
func (a *Acceptor) ProcessBlock(blk *block.Block) (*chain.BlockRecord, error) {
	if blk.Header == nil {
		return nil, fmt.Errorf("block has nil header")
	}
	hash := blk.Hash()
	if _, ok := a.idx.ByHash(hash); ok {
		return nil, fmt.Errorf("%w: %s", ErrBlockKnown, hash)
	}

	parent, err := a.parentOf(blk)
	if err != nil {
		return nil, err
	}
	rec, err := a.sel.ValidateBlock(blk, parent)
	if err != nil {
		return nil, err
	}
	return a.commit(blk, rec)
}

// parentOf returns the committed parent of blk, or nil for the genesis
// block of an empty index.
func (a *Acceptor) parentOf(blk *block.Block) (*chain.BlockRecord, error) {
	prev := blk.Header.PrevHash
	if prev.IsZero() && a.idx.Len() == 0 {
		return nil, nil
	}
	parent, ok := a.idx.ByHash(prev)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPrevNotFound, prev)
	}
	return parent, nil
}

// commit persists rec and the outputs of blk, then publishes rec to the
// index. Nothing is published when persisting fails, so the block can be
// processed again.
func (a *Acceptor) commit(blk *block.Block, rec *chain.BlockRecord) (*chain.BlockRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.idx.ByHash(rec.Hash); ok {
		return nil, fmt.Errorf("%w: %s", ErrBlockKnown, rec.Hash)
	}
	tip := a.idx.Tip()
	isTip := tip == nil || rec.Height > tip.Height

	if err := a.txs.IndexBlock(blk, rec); err != nil {
		return nil, fmt.Errorf("index txs of %s: %w", rec, err)
	}
	if err := a.store.PutRecord(rec, isTip); err != nil {
		return nil, fmt.Errorf("persist %s: %w", rec, err)
	}
	stored, err := a.idx.Commit(rec)
	if err != nil {
		return nil, fmt.Errorf("commit %s: %w", rec, err)
	}
	if isTip {
		tip = stored
	}
	if a.tip != nil {
		a.tip.SetTipHeight(tip.Height)
	}

	a.log.Info().
		Uint64("height", stored.Height).
		Str("hash", stored.Hash.String()[:16]+"...").
		Str("proof", stored.Proof.String()).
		Int("txs", len(blk.Transactions)).
		Bool("tip", isTip).
		Msg("Block accepted")
	return stored, nil
}

// Candidate is the outcome of validating one competing block.
type Candidate struct {
	Block  *block.Block
	Record *chain.BlockRecord // nil when rejected
	Err    error
}

// ValidateCandidates validates blocks concurrently, at most SetWorkers at
// a time, without committing any of them. Each block's parent must already
// be committed. Rejections are reported per candidate; the returned error
// is only set when ctx ends before every block was checked.
func (a *Acceptor) ValidateCandidates(ctx context.Context, blocks []*block.Block) ([]Candidate, error) {
	results := make([]Candidate, len(blocks))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, blk := range blocks {
		i, blk := i, blk
		results[i].Block = blk
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			parent, err := a.parentOf(blk)
			if err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Record, results[i].Err = a.sel.ValidateBlock(blk, parent)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Template returns the next block template on parent, or on the tip when
// parent is nil.
func (a *Acceptor) Template(parent *chain.BlockRecord) consensus.Template {
	if parent == nil {
		parent = a.idx.Tip()
	}
	return a.sel.Template(parent)
}

// Lookup returns the committed record of hash.
func (a *Acceptor) Lookup(hash types.Hash) (*chain.BlockRecord, bool) {
	return a.idx.ByHash(hash)
}
