package consensus

import (
	"fmt"
	"math/big"
	"time"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/raulk/clock"
	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-stake/config"
	"github.com/Klingon-tech/klingnet-stake/internal/chain"
	klog "github.com/Klingon-tech/klingnet-stake/internal/log"
	"github.com/Klingon-tech/klingnet-stake/pkg/block"
	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

// BlockType is the proof a block presents.
type BlockType uint8

const (
	BlockPoW BlockType = iota
	BlockPoS
	BlockHybrid
)

func (t BlockType) String() string {
	switch t {
	case BlockPoW:
		return "pow"
	case BlockPoS:
		return "pos"
	case BlockHybrid:
		return "hybrid"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Selector validates blocks under the hybrid schedule and answers the
// block-template questions (type, difficulty, reward) for producers.
//
// A Selector is safe for concurrent use. ValidateBlock reads only committed
// records through its view.
type Selector struct {
	params      *config.ConsensusParams
	view        chain.View
	txs         TxLookup
	checkpoints Checkpointer
	modifiers   *ModifierEngine
	clock       clock.Clock
	metrics     Metrics
	log         zerolog.Logger
}

// Option configures a Selector.
type Option func(*Selector)

// WithClock sets the adjusted-time source used for the future-drift rule.
func WithClock(c clock.Clock) Option {
	return func(s *Selector) { s.clock = c }
}

// WithMetrics sets the validation metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *Selector) { s.metrics = m }
}

// WithLogger overrides the consensus component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Selector) { s.log = l }
}

// NewSelector creates a selector over the committed history in view. A nil
// checkpointer hardens nothing.
func NewSelector(p *config.ConsensusParams, view chain.View, txs TxLookup, checkpoints Checkpointer, opts ...Option) (*Selector, error) {
	s := &Selector{
		params:      p,
		view:        view,
		txs:         txs,
		checkpoints: checkpoints,
		clock:       clock.New(),
		metrics:     nopMetrics{},
		log:         klog.Consensus,
	}
	if s.checkpoints == nil {
		s.checkpoints = openCheckpoints{}
	}
	for _, opt := range opts {
		opt(s)
	}

	mods, err := NewModifierEngine(p, view, checkpoints, s.metrics)
	if err != nil {
		return nil, err
	}
	s.modifiers = mods

	s.log.Info().
		Str("network", string(p.Network)).
		Uint64("pos_start_height", p.PoSStartHeight).
		Uint64("pure_pow_end_height", p.PurePoWEndHeight).
		Uint64("target_pos_ratio_percent", p.TargetPoSRatioPercent).
		Uint64("hybrid_reward_permille", p.HybridRewardPermille).
		Uint64("stake_min_confirmations", p.StakeMinConfirmations).
		Msg("Hybrid consensus configured")
	return s, nil
}

// Modifiers returns the selector's stake modifier engine.
func (s *Selector) Modifiers() *ModifierEngine {
	return s.modifiers
}

// Classify returns the block's type. A block whose second transaction is a
// coinstake is a stake block; it is Hybrid if its hash also meets the
// header target, else PoS. Any other block is PoW.
func (s *Selector) Classify(blk *block.Block) BlockType {
	if blk.CoinStake() == nil {
		return BlockPoW
	}
	if blk.Hash().Big().Cmp(blockchain.CompactToBig(blk.Header.Bits)) <= 0 {
		return BlockHybrid
	}
	return BlockPoS
}

// IsPoWMandatory reports whether blocks at height must carry work.
func (s *Selector) IsPoWMandatory(height uint64) bool {
	return height < s.params.PoSStartHeight
}

// IsPoSMandatory reports whether blocks at height must carry a stake.
func (s *Selector) IsPoSMandatory(height uint64) bool {
	return height > s.params.PurePoWEndHeight
}

// ValidateBlock checks blk against every consensus rule on top of parent
// (nil for genesis). On success it returns the block's record, with proof
// type, stake modifier and checksum set, ready to be committed. A rejection
// is a *RuleError; missing prior data is a *LookupError.
func (s *Selector) ValidateBlock(blk *block.Block, parent *chain.BlockRecord) (rec *chain.BlockRecord, err error) {
	started := s.clock.Now()
	bt := BlockPoW
	hash := blk.Hash()
	var height uint64
	if parent != nil {
		height = parent.Height + 1
	}
	defer func() {
		reason := Reason(err)
		if err != nil && reason == "" {
			reason = "lookup"
		}
		s.metrics.ObserveValidation(bt.String(), reason, started)
		if err != nil {
			s.log.Warn().
				Uint64("height", height).
				Str("hash", hash.String()).
				Str("type", bt.String()).
				Str("reason", reason).
				Int("severity", Severity(err)).
				Err(err).
				Msg("Block rejected")
		}
	}()

	if err := blk.Validate(); err != nil {
		return nil, ruleError(ErrBadBlock, "%v", err)
	}
	if parent == nil {
		return s.validateGenesis(blk)
	}
	if blk.Header.PrevHash != parent.Hash {
		return nil, ruleError(ErrBadPrevBlock, "prev hash %s, parent %s", blk.Header.PrevHash, parent.Hash)
	}

	bt = s.Classify(blk)
	blockTime := int64(blk.Header.Timestamp)

	if s.IsPoWMandatory(height) && bt == BlockPoS {
		return nil, ruleError(ErrPoWRequired, "stake block at height %d before %d", height, s.params.PoSStartHeight)
	}
	if s.IsPoSMandatory(height) && bt == BlockPoW {
		return nil, ruleError(ErrPoSRequired, "work block at height %d after %d", height, s.params.PurePoWEndHeight)
	}

	mtp := chain.MedianTimePast(s.view, parent, s.params.MedianTimeSpan)
	if blockTime < mtp {
		return nil, ruleError(ErrTimestampViolation, "block time %d before median time past %d", blockTime, mtp)
	}
	if limit := s.clock.Now().Unix() + s.params.MaxFutureBlockTime; blockTime > limit {
		return nil, ruleError(ErrTimeTooNew, "block time %d beyond adjusted time limit %d", blockTime, limit)
	}

	if err := s.checkBits(blk.Header.Bits, parent, bt); err != nil {
		return nil, err
	}

	if s.IsPoWMandatory(height) || bt == BlockPoW {
		limit := s.params.PowLimit()
		if bt == BlockHybrid {
			limit = s.maxLimit()
		}
		if err := CheckProofOfWork(hash, blk.Header.Bits, limit); err != nil {
			return nil, err
		}
	}

	proofHash := hash
	if bt != BlockPoW {
		proofHash, err = s.checkStake(blk, parent, mtp)
		if err != nil {
			return nil, err
		}
	}

	if !s.checkpoints.CheckHardened(height, hash) {
		return nil, ruleError(ErrCheckpointMismatch, "height %d hash %s", height, hash)
	}

	rec = &chain.BlockRecord{
		Height:    height,
		Hash:      hash,
		PrevHash:  parent.Hash,
		Time:      blockTime,
		Bits:      blk.Header.Bits,
		Proof:     chain.ProofOfWork,
		ProofHash: proofHash,
		ChainTx:   parent.ChainTx + uint64(len(blk.Transactions)),
	}
	if bt != BlockPoW {
		rec.Proof = chain.ProofOfStake
	}
	rec.StakeModifier, rec.ModifierGenerated = s.modifiers.ComputeNextModifier(parent, blockTime)
	rec.ModifierChecksum = Checksum(rec, parent)
	if !s.modifiers.VerifyChecksum(height, rec.ModifierChecksum) {
		return nil, ruleError(ErrModifierCheckpointMismatch, "height %d checksum %#08x", height, rec.ModifierChecksum)
	}

	s.log.Debug().
		Uint64("height", height).
		Str("hash", hash.String()).
		Str("type", bt.String()).
		Uint64("modifier", rec.StakeModifier).
		Bool("generated", rec.ModifierGenerated).
		Msg("Block accepted")
	return rec, nil
}

func (s *Selector) validateGenesis(blk *block.Block) (*chain.BlockRecord, error) {
	hash := blk.Hash()
	if !blk.Header.PrevHash.IsZero() {
		return nil, ruleError(ErrBadPrevBlock, "genesis with prev hash %s", blk.Header.PrevHash)
	}
	if !s.checkpoints.CheckHardened(0, hash) {
		return nil, ruleError(ErrCheckpointMismatch, "genesis hash %s", hash)
	}
	return &chain.BlockRecord{
		Height:            0,
		Hash:              hash,
		Time:              int64(blk.Header.Timestamp),
		Bits:              blk.Header.Bits,
		Proof:             chain.ProofOfWork,
		ProofHash:         hash,
		ModifierGenerated: true,
		ChainTx:           uint64(len(blk.Transactions)),
	}, nil
}

// checkBits requires the header target to be the one Difficulty prescribes.
// A hybrid block may carry either the hybrid or the stake target, since it
// satisfies both.
func (s *Selector) checkBits(bits uint32, parent *chain.BlockRecord, bt BlockType) error {
	want := s.Difficulty(parent, bt)
	if bits == want {
		return nil
	}
	if bt == BlockHybrid && bits == s.Difficulty(parent, BlockPoS) {
		return nil
	}
	return ruleError(ErrBadDiffBits, "bits %#08x, want %#08x for %s", bits, want, bt)
}

// checkStake validates the coinstake's kernel and returns the kernel hash.
func (s *Selector) checkStake(blk *block.Block, parent *chain.BlockRecord, mtp int64) (types.Hash, error) {
	cs := blk.CoinStake()
	blockTime := int64(blk.Header.Timestamp)
	if int64(cs.Time) != blockTime {
		return types.Hash{}, ruleError(ErrBadCoinStake, "coinstake time %d, block time %d", cs.Time, blockTime)
	}

	prevOut := cs.Inputs[0].PrevOut
	prior, err := s.txs.LookupPriorTx(prevOut, parent)
	if err != nil {
		return types.Hash{}, fmt.Errorf("stake input %s: %w", prevOut, err)
	}
	priorBlock, ok := s.view.ByHash(prior.BlockHash)
	if !ok || !s.view.IsAncestor(priorBlock, parent) {
		return types.Hash{}, lookupError("outpoint on branch", prevOut.String())
	}
	if depth := parent.Height - priorBlock.Height + 1; depth < s.params.StakeMinConfirmations {
		return types.Hash{}, ruleError(ErrStakeTooNew, "staked output has %d confirmations, need %d",
			depth, s.params.StakeMinConfirmations)
	}

	modifier, err := s.modifiers.LookupEffectiveModifier(priorBlock.Hash)
	if err != nil {
		return types.Hash{}, err
	}
	kernel, err := CheckKernel(s.params, blockTime, mtp, blk.Header.Bits, prevOut, prior, modifier)
	if err != nil {
		return types.Hash{}, err
	}

	if age, err := s.StakeCoinAge(blk, parent); err == nil {
		klog.Stake.Debug().
			Str("kernel", kernel.String()).
			Uint64("coin_age_days", age).
			Uint64("value", prior.Value).
			Msg("Stake kernel accepted")
	}
	return kernel, nil
}

func (s *Selector) maxLimit() *big.Int {
	pow, pos := s.params.PowLimit(), s.params.PosLimit()
	if pos.Cmp(pow) > 0 {
		return pos
	}
	return pow
}

// SelectNextType advises producers which block type to build on parent.
// Before PoSStartHeight it is PoW. After PurePoWEndHeight it is PoS while
// the stake share of the last TypeSelectionWindow blocks is below the
// target ratio, and Hybrid otherwise. In between it is Hybrid.
func (s *Selector) SelectNextType(parent *chain.BlockRecord) BlockType {
	var height uint64
	if parent != nil {
		height = parent.Height + 1
	}
	if s.IsPoWMandatory(height) {
		return BlockPoW
	}
	if !s.IsPoSMandatory(height) {
		return BlockHybrid
	}

	var total, pos uint64
	for r := parent; r != nil && total < uint64(s.params.TypeSelectionWindow); r = s.view.Parent(r) {
		total++
		if r.IsProofOfStake() {
			pos++
		}
	}
	if pos*100 < s.params.TargetPoSRatioPercent*total {
		return BlockPoS
	}
	return BlockHybrid
}

// Template describes the next block a producer should build.
type Template struct {
	Height uint64
	Type   BlockType
	Bits   uint32
	Reward uint64
}

// Template returns the type, difficulty and subsidy of the next block on
// parent (nil for genesis).
func (s *Selector) Template(parent *chain.BlockRecord) Template {
	t := Template{Type: s.SelectNextType(parent)}
	if parent != nil {
		t.Height = parent.Height + 1
	}
	t.Bits = s.Difficulty(parent, t.Type)
	t.Reward = s.Reward(t.Height, t.Type)
	return t
}

// Reward returns the subsidy of a block of type bt at height.
func (s *Selector) Reward(height uint64, bt BlockType) uint64 {
	p := s.params
	halvings := height / p.SubsidyHalvingInterval
	if halvings >= 64 {
		return 0
	}
	base := p.BaseSubsidy >> halvings
	switch bt {
	case BlockPoS:
		return mulDiv(base, p.PoSRewardPercent, 100)
	case BlockHybrid:
		return mulDiv(base, p.HybridRewardPermille, 1000)
	default:
		return base
	}
}

// mulDiv returns a*b/c without intermediate overflow.
func mulDiv(a, b, c uint64) uint64 {
	r := new(big.Int).SetUint64(a)
	r.Mul(r, new(big.Int).SetUint64(b))
	r.Div(r, new(big.Int).SetUint64(c))
	if !r.IsUint64() {
		return ^uint64(0)
	}
	return r.Uint64()
}

// StakeCoinAge returns the coin-days spent by the coinstake of a block
// built on parent, or 0 for blocks without one.
func (s *Selector) StakeCoinAge(blk *block.Block, parent *chain.BlockRecord) (uint64, error) {
	cs := blk.CoinStake()
	if cs == nil {
		return 0, nil
	}
	return CoinAge(s.params, cs, s.txs, parent)
}

// Now returns the selector's adjusted time.
func (s *Selector) Now() time.Time {
	return s.clock.Now()
}
