// Package checkpoint holds the hardened block hashes and stake modifier
// checksums a network ships with, and checks chains against them.
package checkpoint

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Klingon-tech/klingnet-stake/config"
	"github.com/Klingon-tech/klingnet-stake/internal/chain"
	klog "github.com/Klingon-tech/klingnet-stake/internal/log"
	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

// ErrMismatch is wrapped by VerifyChain failures.
var ErrMismatch = errors.New("checkpoint mismatch")

// MismatchError reports a chain record that contradicts a checkpoint.
type MismatchError struct {
	Height uint64
	Got    types.Hash
	Want   types.Hash
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("checkpoint mismatch at height %d: got %s, want %s", e.Height, e.Got, e.Want)
}

func (e *MismatchError) Unwrap() error { return ErrMismatch }

// Store is an immutable checkpoint set. It is safe for concurrent use
// without locking.
type Store struct {
	data    config.CheckpointData
	heights []uint64 // hash checkpoint heights, ascending
}

// New builds a store from checkpoint data. The data is copied.
func New(data config.CheckpointData) *Store {
	s := &Store{data: data.Clone()}
	for h := range s.data.Hashes {
		s.heights = append(s.heights, h)
	}
	sort.Slice(s.heights, func(i, j int) bool { return s.heights[i] < s.heights[j] })
	return s
}

// ForParams builds the store of a network, pinning the hash of its compiled
// genesis block at height 0 unless the tables already do.
func ForParams(p *config.ConsensusParams) *Store {
	data := p.Checkpoints.Clone()
	if _, ok := data.Hashes[0]; !ok {
		data.Hashes[0] = chain.GenesisBlock(p).Hash()
	}
	return New(data)
}

// CheckHardened reports whether hash may occupy height: true when no
// checkpoint is registered there, else equality with the checkpoint.
func (s *Store) CheckHardened(height uint64, hash types.Hash) bool {
	want, ok := s.data.Hashes[height]
	return !ok || want == hash
}

// CheckpointHash returns the hash registered at height.
func (s *Store) CheckpointHash(height uint64) (types.Hash, bool) {
	h, ok := s.data.Hashes[height]
	return h, ok
}

// ModifierChecksum returns the stake modifier checksum registered at height.
func (s *Store) ModifierChecksum(height uint64) (uint32, bool) {
	c, ok := s.data.ModifierChecksums[height]
	return c, ok
}

// VerifyModifierChecksum reports whether checksum agrees with the modifier
// checkpoint at height, if any.
func (s *Store) VerifyModifierChecksum(height uint64, checksum uint32) bool {
	want, ok := s.data.ModifierChecksums[height]
	return !ok || want == checksum
}

// VerifyChain walks from start to genesis and fails on the first record
// that contradicts a checkpoint.
func (s *Store) VerifyChain(view chain.View, start *chain.BlockRecord) error {
	for r := start; r != nil; r = view.Parent(r) {
		if want, ok := s.data.Hashes[r.Height]; ok && want != r.Hash {
			klog.Checkpoint.Warn().
				Uint64("height", r.Height).
				Str("got", r.Hash.String()).
				Str("want", want.String()).
				Msg("Chain contradicts checkpoint")
			return &MismatchError{Height: r.Height, Got: r.Hash, Want: want}
		}
	}
	return nil
}

// LastCheckpointHeight returns the highest registered checkpoint height.
func (s *Store) LastCheckpointHeight() uint64 {
	if len(s.heights) == 0 {
		return 0
	}
	return s.heights[len(s.heights)-1]
}

// LastCheckpointIn returns the record of the highest checkpoint present in
// view, or nil when none is.
func (s *Store) LastCheckpointIn(view chain.View) *chain.BlockRecord {
	for i := len(s.heights) - 1; i >= 0; i-- {
		if rec, ok := view.ByHash(s.data.Hashes[s.heights[i]]); ok {
			return rec
		}
	}
	return nil
}

// AutoCheckpointsEnabled reports whether checkpoints proposed at runtime are
// honoured. They never are.
func (s *Store) AutoCheckpointsEnabled() bool {
	return false
}

// VerificationProgress estimates the fraction of the chain verified when
// tip is the best known record at now, from the checkpointed transaction
// counts and the expected transaction rate.
func (s *Store) VerificationProgress(now time.Time, tip *chain.BlockRecord) float64 {
	if tip == nil {
		return 0
	}
	d := s.data
	perDay := d.TxPerDay / float64(config.SecondsPerDay)

	var total float64
	if tip.ChainTx <= d.TxLastCheckpoint {
		total = float64(d.TxLastCheckpoint) + float64(now.Unix()-d.TimeLastCheckpoint)*perDay
	} else {
		total = float64(tip.ChainTx) + float64(now.Unix()-tip.Time)*perDay
	}
	if total <= 0 {
		return 1
	}
	progress := float64(tip.ChainTx) / total
	if progress > 1 {
		return 1
	}
	return progress
}
