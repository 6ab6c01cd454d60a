package consensus

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Klingon-tech/klingnet-stake/config"
	"github.com/Klingon-tech/klingnet-stake/internal/chain"
	"github.com/Klingon-tech/klingnet-stake/pkg/crypto"
	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

// DefaultModifierCacheSize is the number of effective-modifier lookups kept.
const DefaultModifierCacheSize = 4096

// ModifierEngine computes stake modifiers and their checksums from block
// ancestry. It holds no chain state of its own and is safe for concurrent
// use.
type ModifierEngine struct {
	params      *config.ConsensusParams
	view        chain.View
	checkpoints Checkpointer
	metrics     Metrics

	// Effective modifier by block hash. Committed records never change, so
	// entries never go stale.
	cache *lru.Cache[types.Hash, uint64]
}

// NewModifierEngine creates a modifier engine over view. checkpoints may be
// nil, in which case every checksum verifies.
func NewModifierEngine(p *config.ConsensusParams, view chain.View, checkpoints Checkpointer, m Metrics) (*ModifierEngine, error) {
	cache, err := lru.New[types.Hash, uint64](DefaultModifierCacheSize)
	if err != nil {
		return nil, fmt.Errorf("modifier cache: %w", err)
	}
	if m == nil {
		m = nopMetrics{}
	}
	return &ModifierEngine{
		params:      p,
		view:        view,
		checkpoints: checkpoints,
		metrics:     m,
		cache:       cache,
	}, nil
}

// ComputeNextModifier returns the stake modifier of a block at candidateTime
// on top of parent, and whether the block generates it. parent is nil for
// genesis.
func (e *ModifierEngine) ComputeNextModifier(parent *chain.BlockRecord, candidateTime int64) (uint64, bool) {
	if parent == nil {
		return 0, true
	}
	if candidateTime < e.params.ModifierActivationTime {
		return parent.StakeModifier, false
	}

	prior := parent.StakeModifier
	interval := e.params.ModifierInterval
	selection := e.params.SelectionInterval()
	start := (candidateTime/interval)*interval - selection

	var pool []*chain.BlockRecord
	for r := parent; r != nil && r.Time >= start; r = e.view.Parent(r) {
		pool = append(pool, r)
	}
	sort.Slice(pool, func(i, j int) bool {
		if pool[i].Time != pool[j].Time {
			return pool[i].Time < pool[j].Time
		}
		return bytes.Compare(pool[i].Hash[:], pool[j].Hash[:]) < 0
	})

	sections := e.params.ModifierSections
	sectionLen := selection / sections
	selected := make(map[types.Hash]bool, sections)
	var acc uint64
	for i := int64(0); i < sections; i++ {
		stop := start + (i+1)*sectionLen
		rec := selectBlock(pool, selected, stop, prior, uint32(i))
		if rec == nil {
			continue
		}
		selected[rec.Hash] = true

		bit := uint64(rec.Hash[types.HashSize-1] & 1)
		if rec.IsProofOfStake() {
			bit ^= 1
		}
		acc = acc<<1 | bit
	}

	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], prior)
	binary.LittleEndian.PutUint64(buf[8:], acc)
	h := crypto.Hash(buf[:])
	return binary.BigEndian.Uint64(h[24:]), true
}

// selectBlock picks the section winner among pool members before stop that
// no earlier section took and whose proof hash passes the filter: the one
// XOR-closest to the section's selection hash. It returns nil when no
// candidate qualifies.
func selectBlock(pool []*chain.BlockRecord, selected map[types.Hash]bool, stop int64, prior uint64, section uint32) *chain.BlockRecord {
	var sel [12]byte
	binary.LittleEndian.PutUint64(sel[:8], prior)
	binary.LittleEndian.PutUint32(sel[8:], section)
	target := crypto.Hash(sel[:])

	var best *chain.BlockRecord
	var bestDist types.Hash
	for _, r := range pool {
		if r.Time >= stop {
			break
		}
		if selected[r.Hash] || !passesFilter(r.ProofHash, prior) {
			continue
		}
		dist := r.ProofHash.Xor(target)
		if best == nil || bytes.Compare(dist[:], bestDist[:]) < 0 {
			best, bestDist = r, dist
		}
	}
	return best
}

// passesFilter reports whether the top bit of H(proofHash | prior) is set.
func passesFilter(proofHash types.Hash, prior uint64) bool {
	var buf [types.HashSize + 8]byte
	copy(buf[:], proofHash[:])
	binary.LittleEndian.PutUint64(buf[types.HashSize:], prior)
	h := crypto.Hash(buf[:])
	return h[0]&0x80 != 0
}

// Checksum returns the modifier checksum of rec, chained from its parent's.
// Genesis (nil parent) has checksum 0.
func Checksum(rec, parent *chain.BlockRecord) uint32 {
	if parent == nil {
		return 0
	}
	var buf [16]byte
	binary.LittleEndian.PutUint32(buf[:4], parent.ModifierChecksum)
	binary.LittleEndian.PutUint32(buf[4:8], rec.Flags())
	binary.LittleEndian.PutUint64(buf[8:], rec.StakeModifier)
	h := crypto.Hash(buf[:])
	return binary.BigEndian.Uint32(h[:4])
}

// VerifyChecksum reports whether checksum agrees with the modifier
// checkpoint at height, if any.
func (e *ModifierEngine) VerifyChecksum(height uint64, checksum uint32) bool {
	if e.checkpoints == nil {
		return true
	}
	return e.checkpoints.VerifyModifierChecksum(height, checksum)
}

// LookupEffectiveModifier returns the modifier in force at the block with
// the given hash: that of the nearest ancestor, itself included, which
// generated one.
func (e *ModifierEngine) LookupEffectiveModifier(hash types.Hash) (uint64, error) {
	if m, ok := e.cache.Get(hash); ok {
		e.metrics.ObserveModifierCache(true)
		return m, nil
	}
	e.metrics.ObserveModifierCache(false)

	rec, ok := e.view.ByHash(hash)
	if !ok {
		return 0, lookupError("block", hash.String())
	}
	for r := rec; r != nil; r = e.view.Parent(r) {
		if r.ModifierGenerated {
			e.cache.Add(hash, r.StakeModifier)
			return r.StakeModifier, nil
		}
	}
	return 0, lookupError("generated modifier", hash.String())
}
