package consensus

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"

	"github.com/btcsuite/btcd/blockchain"

	"github.com/Klingon-tech/klingnet-stake/internal/chain"
	"github.com/Klingon-tech/klingnet-stake/pkg/block"
	"github.com/Klingon-tech/klingnet-stake/pkg/crypto"
	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

// CheckProofOfWork verifies that hash meets the compact target bits and
// that the target does not exceed limit.
func CheckProofOfWork(hash types.Hash, bits uint32, limit *big.Int) error {
	target := blockchain.CompactToBig(bits)
	if target.Sign() <= 0 || target.Cmp(limit) > 0 {
		return ruleError(ErrBadDiffBits, "target of bits %#08x outside (0, limit]", bits)
	}
	if hash.Big().Cmp(target) > 0 {
		return ruleError(ErrHighHash, "hash %s above target %064x", hash, target)
	}
	return nil
}

// Difficulty returns the compact target a block of type bt must carry on
// top of parent. The first two blocks use the type's ceiling. Otherwise the
// parent's target is scaled by the parent's spacing over the target
// spacing, with the spacing clamped to [TargetSpacing, 10*TargetSpacing]
// and the result capped at the ceiling. Hybrid blocks take the easier of
// the work and stake targets.
func (s *Selector) Difficulty(parent *chain.BlockRecord, bt BlockType) uint32 {
	p := s.params
	if parent == nil || parent.IsGenesis() {
		return s.limitBits(bt)
	}
	grand := s.view.Parent(parent)
	if grand == nil {
		return s.limitBits(bt)
	}

	spacing := parent.Time - grand.Time
	switch {
	case spacing < p.TargetSpacing: // includes negative spacing
		spacing = p.TargetSpacing
	case spacing > 10*p.TargetSpacing:
		spacing = 10 * p.TargetSpacing
	}

	prev := blockchain.CompactToBig(parent.Bits)
	switch bt {
	case BlockPoW:
		_, bits := retarget(prev, spacing, p.TargetSpacing, p.PowLimit(), p.PowLimitBits)
		return bits
	case BlockPoS:
		_, bits := retarget(prev, spacing, p.TargetSpacing, p.PosLimit(), p.PosLimitBits)
		return bits
	default:
		powTarget, powBits := retarget(prev, spacing, p.TargetSpacing, p.PowLimit(), p.PowLimitBits)
		posTarget, posBits := retarget(prev, spacing, p.TargetSpacing, p.PosLimit(), p.PosLimitBits)
		if posTarget.Cmp(powTarget) > 0 {
			return posBits
		}
		return powBits
	}
}

func retarget(prev *big.Int, spacing, targetSpacing int64, limit *big.Int, limitBits uint32) (*big.Int, uint32) {
	next := new(big.Int).Mul(prev, big.NewInt(spacing))
	next.Div(next, big.NewInt(targetSpacing))
	if next.Sign() <= 0 || next.Cmp(limit) >= 0 {
		return limit, limitBits
	}
	bits := blockchain.BigToCompact(next)
	return blockchain.CompactToBig(bits), bits
}

func (s *Selector) limitBits(bt BlockType) uint32 {
	p := s.params
	switch bt {
	case BlockPoW:
		return p.PowLimitBits
	case BlockPoS:
		return p.PosLimitBits
	default:
		if p.PosLimit().Cmp(p.PowLimit()) > 0 {
			return p.PosLimitBits
		}
		return p.PowLimitBits
	}
}

// Seal searches the nonce space until the header hash meets its bits.
// With threads > 1 the search runs in parallel goroutines over strided
// nonce partitions. Cancelling ctx stops the search.
func Seal(ctx context.Context, header *block.Header, threads int) error {
	target := blockchain.CompactToBig(header.Bits)
	if target.Sign() <= 0 {
		return fmt.Errorf("bits %#08x decode to a non-positive target", header.Bits)
	}
	if threads <= 1 {
		threads = 1
	}

	// The nonce is the last field of the signing bytes.
	raw := header.SigningBytes()
	prefix := raw[:len(raw)-8]

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	found := make(chan uint64, 1)
	var wg sync.WaitGroup
	for i := 0; i < threads; i++ {
		wg.Add(1)
		start, stride := uint64(i), uint64(threads)
		go func() {
			defer wg.Done()
			buf := make([]byte, len(prefix)+8)
			copy(buf, prefix)
			hashInt := new(big.Int)

			for nonce := start; ; nonce += stride {
				if (nonce/stride)&0xFFFF == 0 {
					select {
					case <-ctx.Done():
						return
					default:
					}
				}

				binary.LittleEndian.PutUint64(buf[len(prefix):], nonce)
				hash := crypto.Hash(buf)
				hashInt.SetBytes(hash[:])
				if hashInt.Cmp(target) <= 0 {
					select {
					case found <- nonce:
					default:
					}
					cancel()
					return
				}
				if nonce > ^uint64(0)-stride {
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(found)
	}()

	select {
	case nonce, ok := <-found:
		if !ok {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fmt.Errorf("nonce space exhausted")
		}
		header.Nonce = nonce
		return nil
	case <-ctx.Done():
		// A winner may have cancelled the context just before we selected.
		if nonce, ok := <-found; ok {
			header.Nonce = nonce
			return nil
		}
		return ctx.Err()
	}
}
