package chain

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

// Index errors.
var (
	ErrDuplicateBlock = errors.New("block already indexed")
	ErrOrphanBlock    = errors.New("parent block not indexed")
	ErrBadHeight      = errors.New("record height does not follow parent")
	ErrGenesisExists  = errors.New("genesis already indexed")
	ErrUnknownBlock   = errors.New("block not indexed")
)

// View is read access to committed history. A record passed in that was
// not obtained from the view is resolved by its hash, or failing that by
// its parent hash.
type View interface {
	// ByHash returns the record with the given hash.
	ByHash(hash types.Hash) (*BlockRecord, bool)
	// Parent returns the parent of rec, or nil for genesis.
	Parent(rec *BlockRecord) *BlockRecord
	// Ancestor returns the ancestor of rec at height, or nil if height is
	// above rec.
	Ancestor(rec *BlockRecord, height uint64) *BlockRecord
	// IsAncestor reports whether anc lies on the path from rec to genesis.
	IsAncestor(anc, rec *BlockRecord) bool
}

// Index is an append-only arena of block records. Records of every branch
// are retained; the best chain is the highest one seen first.
//
// Commit must be called from a single goroutine at a time; all read
// methods are safe for concurrent use.
type Index struct {
	mu      sync.RWMutex
	records []*BlockRecord
	byHash  map[types.Hash]int
	main    []int // arena position of the best-chain record at each height
	tip     int
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		byHash: make(map[types.Hash]int),
		tip:    -1,
	}
}

// Len returns the number of indexed records over all branches.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.records)
}

// ByHash returns the record with the given hash.
func (idx *Index) ByHash(hash types.Hash) (*BlockRecord, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	i, ok := idx.byHash[hash]
	if !ok {
		return nil, false
	}
	return idx.records[i], true
}

// Parent returns the parent of rec, or nil for genesis and for records
// whose parent is not indexed.
func (idx *Index) Parent(rec *BlockRecord) *BlockRecord {
	if rec == nil || rec.IsGenesis() {
		return nil
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	i, ok := idx.parentPos(rec)
	if !ok {
		return nil
	}
	return idx.records[i]
}

// Ancestor returns the ancestor of rec at the given height. rec itself is
// returned when height equals its height.
func (idx *Index) Ancestor(rec *BlockRecord, height uint64) *BlockRecord {
	if rec == nil || height > rec.Height {
		return nil
	}
	if height == rec.Height {
		return rec
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	i, ok := idx.parentPos(rec)
	if !ok {
		return nil
	}
	for {
		r := idx.records[i]
		if idx.onMain(r) {
			return idx.records[idx.main[height]]
		}
		if r.Height == height {
			return r
		}
		i = r.parent
	}
}

// position returns the arena position of rec. Records that did not come
// from this index are looked up by hash. Caller holds a lock.
func (idx *Index) position(rec *BlockRecord) (int, bool) {
	if rec.index >= 0 && rec.index < len(idx.records) && idx.records[rec.index] == rec {
		return rec.index, true
	}
	i, ok := idx.byHash[rec.Hash]
	return i, ok
}

// parentPos returns the arena position of rec's parent. Caller holds a
// lock.
func (idx *Index) parentPos(rec *BlockRecord) (int, bool) {
	if i, ok := idx.position(rec); ok {
		p := idx.records[i].parent
		return p, p >= 0
	}
	i, ok := idx.byHash[rec.PrevHash]
	return i, ok
}

// AtHeight returns the best-chain record at height.
func (idx *Index) AtHeight(height uint64) (*BlockRecord, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if height >= uint64(len(idx.main)) {
		return nil, false
	}
	return idx.records[idx.main[height]], true
}

// Tip returns the best-chain tip, or nil when the index is empty.
func (idx *Index) Tip() *BlockRecord {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.tip < 0 {
		return nil
	}
	return idx.records[idx.tip]
}

// Genesis returns the root record, or nil when the index is empty.
func (idx *Index) Genesis() *BlockRecord {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if len(idx.records) == 0 {
		return nil
	}
	return idx.records[0]
}

// IsAncestor reports whether anc lies on the path from rec to genesis.
// A record is its own ancestor.
func (idx *Index) IsAncestor(anc, rec *BlockRecord) bool {
	if anc == nil || rec == nil {
		return false
	}
	a := idx.Ancestor(rec, anc.Height)
	return a != nil && a.Hash == anc.Hash
}

// SetTip makes the indexed record with the given hash the best-chain tip.
func (idx *Index) SetTip(hash types.Hash) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	i, ok := idx.byHash[hash]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBlock, hash)
	}
	idx.setTip(i)
	return nil
}

// Commit publishes a fully prepared record. The record is copied; the
// returned pointer is the indexed, immutable instance. The first record
// committed must be a genesis record.
func (idx *Index) Commit(rec *BlockRecord) (*BlockRecord, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.byHash[rec.Hash]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateBlock, rec.Hash)
	}

	stored := *rec
	stored.index = len(idx.records)
	stored.parent = -1

	if rec.IsGenesis() {
		if len(idx.records) > 0 {
			return nil, ErrGenesisExists
		}
	} else {
		pi, ok := idx.byHash[rec.PrevHash]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrOrphanBlock, rec.PrevHash)
		}
		if want := idx.records[pi].Height + 1; rec.Height != want {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrBadHeight, rec.Height, want)
		}
		stored.parent = pi
	}

	idx.records = append(idx.records, &stored)
	idx.byHash[stored.Hash] = stored.index
	if idx.tip < 0 || stored.Height > idx.records[idx.tip].Height {
		idx.setTip(stored.index)
	}
	return &stored, nil
}

// setTip rewrites the best-chain height table down to the fork point.
// Caller holds the write lock.
func (idx *Index) setTip(i int) {
	n := int(idx.records[i].Height) + 1
	for len(idx.main) < n {
		idx.main = append(idx.main, -1)
	}
	idx.main = idx.main[:n]
	for j := i; j >= 0; j = idx.records[j].parent {
		h := idx.records[j].Height
		if idx.main[h] == j {
			break
		}
		idx.main[h] = j
	}
	idx.tip = i
}

// onMain reports whether rec is on the best chain. Caller holds a lock.
func (idx *Index) onMain(rec *BlockRecord) bool {
	return rec.Height < uint64(len(idx.main)) && idx.main[rec.Height] == rec.index
}

// MedianTimePast returns the median time of rec and up to span-1 of its
// ancestors.
func MedianTimePast(v View, rec *BlockRecord, span int) int64 {
	times := make([]int64, 0, span)
	for r := rec; r != nil && len(times) < span; r = v.Parent(r) {
		times = append(times, r.Time)
	}
	if len(times) == 0 {
		return 0
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
	return times[len(times)/2]
}
