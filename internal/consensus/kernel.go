package consensus

import (
	"encoding/binary"
	"math/big"

	"github.com/btcsuite/btcd/blockchain"

	"github.com/Klingon-tech/klingnet-stake/config"
	"github.com/Klingon-tech/klingnet-stake/pkg/crypto"
	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

// kernelSize is modifier(8) | block time(8) | tx offset(4) | tx time(8) |
// output index(4) | candidate time(8).
const kernelSize = 8 + 8 + 4 + 8 + 4 + 8

// KernelHash hashes the stake kernel of prevOut for a block at
// candidateTime. Integers are little-endian.
func KernelHash(modifier uint64, prior *PriorTx, prevOut types.Outpoint, candidateTime int64) types.Hash {
	buf := make([]byte, 0, kernelSize)
	buf = binary.LittleEndian.AppendUint64(buf, modifier)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(prior.BlockTime))
	buf = binary.LittleEndian.AppendUint32(buf, prior.Offset)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(prior.Time))
	buf = binary.LittleEndian.AppendUint32(buf, prevOut.Index)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(candidateTime))
	return crypto.Hash(buf)
}

// CoinDayWeight returns value * Weight / Coin / SecondsPerDay, the factor
// the base target is scaled by.
func CoinDayWeight(p *config.ConsensusParams, value uint64, weight int64) *big.Int {
	w := new(big.Int).SetUint64(value)
	w.Mul(w, big.NewInt(weight))
	w.Div(w, big.NewInt(config.Coin))
	return w.Div(w, big.NewInt(config.SecondsPerDay))
}

// CheckKernel verifies the stake kernel of a block at candidateTime spending
// prevOut, whose indexed view is prior. bits is the block's compact target
// and modifier the effective stake modifier of prior's block. It returns the
// kernel hash on success.
func CheckKernel(p *config.ConsensusParams, candidateTime, medianTimePast int64, bits uint32,
	prevOut types.Outpoint, prior *PriorTx, modifier uint64) (types.Hash, error) {

	if candidateTime < medianTimePast {
		return types.Hash{}, ruleError(ErrTimestampViolation,
			"block time %d before median time past %d", candidateTime, medianTimePast)
	}
	if candidateTime < prior.Time {
		return types.Hash{}, ruleError(ErrTimestampViolation,
			"block time %d before staked tx time %d", candidateTime, prior.Time)
	}

	base := blockchain.CompactToBig(bits)
	if base.Sign() <= 0 {
		return types.Hash{}, ruleError(ErrBadDiffBits, "bits %#08x decode to a non-positive target", bits)
	}

	weight := CoinDayWeight(p, prior.Value, Weight(p, prior.Time, candidateTime))
	hash := KernelHash(modifier, prior, prevOut, candidateTime)
	if !hashMeetsStakeTarget(hash.Big(), base, weight) {
		return hash, ruleError(ErrKernelTooHard, "kernel %s above target %s x %s", hash, base, weight)
	}
	return hash, nil
}

// hashMeetsStakeTarget reports hash <= baseTarget * coinDayWeight.
func hashMeetsStakeTarget(hash, baseTarget, coinDayWeight *big.Int) bool {
	target := new(big.Int).Mul(baseTarget, coinDayWeight)
	return hash.Cmp(target) <= 0
}
