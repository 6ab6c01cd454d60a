package consensus

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/golang/mock/gomock"
	"github.com/raulk/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Klingon-tech/klingnet-stake/config"
	"github.com/Klingon-tech/klingnet-stake/internal/chain"
	"github.com/Klingon-tech/klingnet-stake/internal/checkpoint"
	"github.com/Klingon-tech/klingnet-stake/pkg/block"
	"github.com/Klingon-tech/klingnet-stake/pkg/crypto"
	"github.com/Klingon-tech/klingnet-stake/pkg/tx"
	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

// fakeLookup serves prior transactions from a map, whatever the branch.
type fakeLookup map[types.Outpoint]*PriorTx

func (f fakeLookup) LookupPriorTx(op types.Outpoint, _ *chain.BlockRecord) (*PriorTx, error) {
	p, ok := f[op]
	if !ok {
		return nil, lookupError("outpoint", op.String())
	}
	return p, nil
}

type harness struct {
	t      *testing.T
	params *config.ConsensusParams
	idx    *chain.Index
	txs    fakeLookup
	clock  *clock.Mock
	sel    *Selector
	recs   []*chain.BlockRecord // best chain by height
	funded int
}

func newHarness(t *testing.T, cps Checkpointer, opts ...Option) *harness {
	t.Helper()
	p := config.RegtestParams()
	h := &harness{
		t:      t,
		params: p,
		idx:    chain.NewIndex(),
		txs:    fakeLookup{},
		clock:  clock.NewMock(),
	}
	h.clock.Set(time.Unix(p.GenesisTime+1_000_000, 0))
	if cps == nil {
		cps = checkpoint.ForParams(p)
	}

	base := []Option{WithClock(h.clock), WithLogger(zerolog.Nop())}
	sel, err := NewSelector(p, h.idx, h.txs, cps, append(base, opts...)...)
	require.NoError(t, err)
	h.sel = sel

	gen, err := sel.ValidateBlock(chain.GenesisBlock(p), nil)
	require.NoError(t, err)
	h.commit(gen)
	return h
}

func (h *harness) tip() *chain.BlockRecord { return h.recs[len(h.recs)-1] }

func (h *harness) commit(rec *chain.BlockRecord) *chain.BlockRecord {
	h.t.Helper()
	stored, err := h.idx.Commit(rec)
	require.NoError(h.t, err)
	h.recs = append(h.recs, stored)
	return stored
}

func coinbase(height uint64, blockTime int64, value uint64) *tx.Transaction {
	out := tx.Output{Value: value}
	if value > 0 {
		out.Script = tx.Script{0x51}
	}
	return &tx.Transaction{
		Version: 1,
		Time:    uint64(blockTime),
		Inputs:  []tx.Input{{Script: tx.Script(fmt.Sprintf("height %d", height))}},
		Outputs: []tx.Output{out},
	}
}

// grind searches nonces until the header hash meets (or misses) its target.
func grind(hdr *block.Header, meet bool) {
	target := blockchain.CompactToBig(hdr.Bits)
	for n := uint64(0); ; n++ {
		hdr.Nonce = n
		if (hdr.Hash().Big().Cmp(target) <= 0) == meet {
			return
		}
	}
}

func newBlock(parent *chain.BlockRecord, blockTime int64, bits uint32, txs ...*tx.Transaction) *block.Block {
	hdr := &block.Header{
		Version:   block.CurrentVersion,
		PrevHash:  parent.Hash,
		Timestamp: uint64(blockTime),
		Bits:      bits,
	}
	blk := block.NewBlock(hdr, txs)
	blk.Header.MerkleRoot = blk.ComputeMerkleRoot()
	return blk
}

// powBlock builds a mined work block on parent.
func (h *harness) powBlock(parent *chain.BlockRecord, blockTime int64) *block.Block {
	height := parent.Height + 1
	blk := newBlock(parent, blockTime, h.sel.Difficulty(parent, BlockPoW),
		coinbase(height, blockTime, h.sel.Reward(height, BlockPoW)))
	grind(blk.Header, true)
	return blk
}

// stakeBlock builds a block on parent staking prevOut. hybrid selects
// whether the header hash also meets the target.
func (h *harness) stakeBlock(parent *chain.BlockRecord, blockTime int64, prevOut types.Outpoint, hybrid bool) *block.Block {
	height := parent.Height + 1
	bt := BlockPoS
	if hybrid {
		bt = BlockHybrid
	}
	cs := &tx.Transaction{
		Version: 1,
		Time:    uint64(blockTime),
		Inputs:  []tx.Input{{PrevOut: prevOut}},
		Outputs: []tx.Output{{}, {Value: h.sel.Reward(height, bt) + h.txs[prevOut].Value, Script: tx.Script{0x51}}},
	}
	blk := newBlock(parent, blockTime, h.sel.Difficulty(parent, bt), coinbase(height, blockTime, 0), cs)
	grind(blk.Header, hybrid)
	return blk
}

// extendPoW validates and commits n work blocks on the tip.
func (h *harness) extendPoW(n int) {
	h.t.Helper()
	for i := 0; i < n; i++ {
		parent := h.tip()
		rec, err := h.sel.ValidateBlock(h.powBlock(parent, parent.Time+h.params.TargetSpacing), parent)
		require.NoError(h.t, err)
		h.commit(rec)
	}
}

// fund registers a stakeable output of value created in rec's block.
func (h *harness) fund(rec *chain.BlockRecord, value uint64) types.Outpoint {
	h.funded++
	txid := crypto.Hash([]byte(fmt.Sprintf("stake %d", h.funded)))
	op := types.Outpoint{TxID: txid, Index: 0}
	h.txs[op] = &PriorTx{
		TxID:      txid,
		Value:     value,
		Time:      rec.Time,
		BlockHash: rec.Hash,
		BlockTime: rec.Time,
		Offset:    block.HeaderSize,
		Height:    rec.Height,
	}
	return op
}

func requireReason(t *testing.T, err error, reason error) {
	t.Helper()
	require.Error(t, err)
	require.True(t, errors.Is(err, reason), "got %v, want %v", err, reason)
	require.Equal(t, reason.Error(), Reason(err))
}

func TestSelector_Reward(t *testing.T) {
	sel, err := NewSelector(config.MainnetParams(), chain.NewIndex(), fakeLookup{}, nil, WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	require.Equal(t, uint64(5_000_000_000), sel.Reward(0, BlockPoW))
	require.Equal(t, uint64(5_000_000_000), sel.Reward(209_999, BlockPoW))
	require.Equal(t, uint64(2_500_000_000), sel.Reward(210_000, BlockPoW))
	require.Zero(t, sel.Reward(64*210_000, BlockPoW))
	require.Zero(t, sel.Reward(64*210_000, BlockHybrid))

	for _, height := range []uint64{0, 210_000, 420_000, 13_000_000} {
		pow := sel.Reward(height, BlockPoW)
		require.Equal(t, pow*8/10, sel.Reward(height, BlockPoS), "height %d", height)
		require.Equal(t, pow*11/10, sel.Reward(height, BlockHybrid), "height %d", height)
	}
	// 50 coins >> 25 halvings = 149 base units; 1.1x floors to 163.
	require.Equal(t, uint64(149), sel.Reward(25*210_000, BlockPoW))
	require.Equal(t, uint64(163), sel.Reward(25*210_000, BlockHybrid))
	require.Equal(t, uint64(119), sel.Reward(25*210_000, BlockPoS))
}

func TestSelector_MandatoryHeights(t *testing.T) {
	p := config.MainnetParams()
	sel, err := NewSelector(p, chain.NewIndex(), fakeLookup{}, nil, WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	for h := uint64(0); h < p.PoSStartHeight; h += 37 {
		require.True(t, sel.IsPoWMandatory(h), "height %d", h)
	}
	require.True(t, sel.IsPoWMandatory(p.PoSStartHeight-1))
	require.False(t, sel.IsPoWMandatory(p.PoSStartHeight))

	require.False(t, sel.IsPoSMandatory(p.PurePoWEndHeight))
	require.True(t, sel.IsPoSMandatory(p.PurePoWEndHeight+1))
}

func TestSelector_Classify(t *testing.T) {
	h := newHarness(t, nil)
	gen := h.tip()
	blockTime := gen.Time + 150

	require.Equal(t, BlockPoW, h.sel.Classify(h.powBlock(gen, blockTime)))

	op := h.fund(gen, 10*config.Coin)
	require.Equal(t, BlockPoS, h.sel.Classify(h.stakeBlock(gen, blockTime, op, false)))
	require.Equal(t, BlockHybrid, h.sel.Classify(h.stakeBlock(gen, blockTime, op, true)))
}

func TestSelector_ValidateBlock_PoWChain(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := NewMockMetrics(ctrl)
	m.EXPECT().ObserveValidation("pow", "", gomock.Any()).Times(16)

	h := newHarness(t, nil, WithMetrics(m))
	h.extendPoW(15)

	tip := h.tip()
	require.Equal(t, uint64(15), tip.Height)
	for _, r := range h.recs[1:] {
		require.Equal(t, chain.ProofOfWork, r.Proof)
		require.Equal(t, r.Hash, r.ProofHash)
		require.True(t, r.ModifierGenerated)
		require.Equal(t, Checksum(r, h.idx.Parent(r)), r.ModifierChecksum)
	}
	require.Equal(t, uint64(16), tip.ChainTx)
}

func TestSelector_ValidateBlock_StakeBeforePoSStart(t *testing.T) {
	h := newHarness(t, nil)
	h.extendPoW(4)
	parent := h.tip()
	op := h.fund(h.recs[1], 1000*config.Coin)

	_, err := h.sel.ValidateBlock(h.stakeBlock(parent, parent.Time+150, op, false), parent)
	requireReason(t, err, ErrPoWRequired)
	require.Equal(t, 100, Severity(err))
}

func TestSelector_ValidateBlock_WorkAfterPurePoWEnd(t *testing.T) {
	h := newHarness(t, nil)
	h.extendPoW(int(h.params.PurePoWEndHeight))
	parent := h.tip()

	_, err := h.sel.ValidateBlock(h.powBlock(parent, parent.Time+150), parent)
	requireReason(t, err, ErrPoSRequired)
}

func TestSelector_ValidateBlock_Stake(t *testing.T) {
	for _, hybrid := range []bool{false, true} {
		t.Run(fmt.Sprintf("hybrid=%v", hybrid), func(t *testing.T) {
			h := newHarness(t, nil)
			h.extendPoW(24)
			parent := h.tip()
			op := h.fund(h.recs[1], 10_000*config.Coin)

			blk := h.stakeBlock(parent, parent.Time+150, op, hybrid)
			rec, err := h.sel.ValidateBlock(blk, parent)
			require.NoError(t, err)

			require.Equal(t, uint64(25), rec.Height)
			require.Equal(t, chain.ProofOfStake, rec.Proof)
			require.NotEqual(t, rec.Hash, rec.ProofHash, "stake records carry the kernel hash")
			require.True(t, rec.ModifierGenerated)
			require.Equal(t, Checksum(rec, parent), rec.ModifierChecksum)

			modifier, err := h.sel.Modifiers().LookupEffectiveModifier(h.recs[1].Hash)
			require.NoError(t, err)
			require.Equal(t, KernelHash(modifier, h.txs[op], op, rec.Time), rec.ProofHash)

			stored := h.commit(rec)
			age, err := h.sel.StakeCoinAge(blk, parent)
			require.NoError(t, err)
			require.Positive(t, age)
			require.Equal(t, BlockHybrid, h.sel.SelectNextType(stored))
		})
	}
}

func TestSelector_ValidateBlock_KernelTooHard(t *testing.T) {
	h := newHarness(t, nil)
	h.extendPoW(24)
	parent := h.tip()
	// One coin held about an hour has no coin-day weight.
	op := h.fund(h.recs[1], config.Coin)

	_, err := h.sel.ValidateBlock(h.stakeBlock(parent, parent.Time+150, op, false), parent)
	requireReason(t, err, ErrKernelTooHard)
}

func TestSelector_ValidateBlock_StakeTooNew(t *testing.T) {
	h := newHarness(t, nil)
	h.extendPoW(24)
	parent := h.tip()
	op := h.fund(h.recs[20], 10_000*config.Coin) // 5 confirmations

	_, err := h.sel.ValidateBlock(h.stakeBlock(parent, parent.Time+150, op, false), parent)
	requireReason(t, err, ErrStakeTooNew)
}

func TestSelector_ValidateBlock_StakeFromOtherBranch(t *testing.T) {
	h := newHarness(t, nil)
	h.extendPoW(24)

	// A side block at height 2 holds the staked output.
	side := h.powBlock(h.recs[1], h.recs[1].Time+151)
	sideRec, err := h.sel.ValidateBlock(side, h.recs[1])
	require.NoError(t, err)
	sideRec, err = h.idx.Commit(sideRec)
	require.NoError(t, err)
	op := h.fund(sideRec, 10_000*config.Coin)

	// An output resolved on the wrong branch is a lookup failure of this
	// branch, not a rejection of the block.
	parent := h.recs[24]
	_, err = h.sel.ValidateBlock(h.stakeBlock(parent, parent.Time+150, op, false), parent)
	require.Error(t, err)
	require.True(t, IsLookupFailure(err))
	require.Empty(t, Reason(err))
	require.Zero(t, Severity(err))
}

func TestSelector_ValidateBlock_CoinStakeTime(t *testing.T) {
	h := newHarness(t, nil)
	h.extendPoW(24)
	parent := h.tip()
	op := h.fund(h.recs[1], 10_000*config.Coin)

	blk := h.stakeBlock(parent, parent.Time+150, op, false)
	blk.Transactions[1].Time++
	blk.Header.MerkleRoot = blk.ComputeMerkleRoot()
	grind(blk.Header, false)

	_, err := h.sel.ValidateBlock(blk, parent)
	requireReason(t, err, ErrBadCoinStake)
}

func TestSelector_ValidateBlock_LookupFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	lookup := NewMockTxLookup(ctrl)

	h := newHarness(t, nil)
	h.extendPoW(24)
	parent := h.tip()
	op := h.fund(h.recs[1], 10_000*config.Coin)
	blk := h.stakeBlock(parent, parent.Time+150, op, false)

	lookup.EXPECT().LookupPriorTx(op, parent).Return(nil, lookupError("outpoint", op.String()))
	sel, err := NewSelector(h.params, h.idx, lookup, checkpoint.ForParams(h.params),
		WithClock(h.clock), WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	_, err = sel.ValidateBlock(blk, parent)
	require.True(t, IsLookupFailure(err))
	require.Empty(t, Reason(err))
	require.Zero(t, Severity(err))
}

func TestSelector_ValidateBlock_CheckpointMismatch(t *testing.T) {
	p := config.RegtestParams()
	cps := checkpoint.New(config.CheckpointData{Hashes: map[uint64]types.Hash{3: {0x01}}})
	h := newHarness(t, cps)
	h.extendPoW(2)
	parent := h.tip()

	_, err := h.sel.ValidateBlock(h.powBlock(parent, parent.Time+p.TargetSpacing), parent)
	requireReason(t, err, ErrCheckpointMismatch)
}

func TestSelector_ValidateBlock_GenesisCheckpoint(t *testing.T) {
	ctrl := gomock.NewController(t)
	cps := NewMockCheckpointer(ctrl)
	p := config.RegtestParams()
	gen := chain.GenesisBlock(p)
	cps.EXPECT().CheckHardened(uint64(0), gen.Hash()).Return(false)

	sel, err := NewSelector(p, chain.NewIndex(), fakeLookup{}, cps, WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	_, err = sel.ValidateBlock(gen, nil)
	requireReason(t, err, ErrCheckpointMismatch)
}

func TestSelector_ValidateBlock_ModifierCheckpointMismatch(t *testing.T) {
	p := config.RegtestParams()
	h := newHarness(t, nil)
	h.extendPoW(1)

	// Learn the honest checksum at height 2 and pin a different one.
	parent := h.tip()
	blk := h.powBlock(parent, parent.Time+p.TargetSpacing)
	rec, err := h.sel.ValidateBlock(blk, parent)
	require.NoError(t, err)

	data := p.Checkpoints.Clone()
	data.ModifierChecksums[2] = rec.ModifierChecksum + 1
	strict, err := NewSelector(p, h.idx, h.txs, checkpoint.New(data), WithClock(h.clock), WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	_, err = strict.ValidateBlock(blk, parent)
	requireReason(t, err, ErrModifierCheckpointMismatch)

	data.ModifierChecksums[2] = rec.ModifierChecksum
	exact, err := NewSelector(p, h.idx, h.txs, checkpoint.New(data), WithClock(h.clock), WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	_, err = exact.ValidateBlock(blk, parent)
	require.NoError(t, err)
}

func TestSelector_ValidateBlock_Timestamps(t *testing.T) {
	h := newHarness(t, nil)
	h.extendPoW(12)
	parent := h.tip()

	_, err := h.sel.ValidateBlock(h.powBlock(parent, h.recs[1].Time), parent)
	requireReason(t, err, ErrTimestampViolation)

	future := h.clock.Now().Unix() + h.params.MaxFutureBlockTime + 1
	_, err = h.sel.ValidateBlock(h.powBlock(parent, future), parent)
	requireReason(t, err, ErrTimeTooNew)
	require.Equal(t, 10, Severity(err))

	atLimit := h.clock.Now().Unix() + h.params.MaxFutureBlockTime
	_, err = h.sel.ValidateBlock(h.powBlock(parent, atLimit), parent)
	require.NoError(t, err)
}

func TestSelector_ValidateBlock_Work(t *testing.T) {
	h := newHarness(t, nil)
	h.extendPoW(3)
	parent := h.tip()
	blockTime := parent.Time + 150

	blk := h.powBlock(parent, blockTime)
	grind(blk.Header, false)
	_, err := h.sel.ValidateBlock(blk, parent)
	requireReason(t, err, ErrHighHash)
	require.Equal(t, 50, Severity(err))

	blk = h.powBlock(parent, blockTime)
	blk.Header.Bits = 0x1d00ffff
	_, err = h.sel.ValidateBlock(blk, parent)
	requireReason(t, err, ErrBadDiffBits)
}

func TestSelector_ValidateBlock_Structure(t *testing.T) {
	h := newHarness(t, nil)
	h.extendPoW(2)
	parent := h.tip()

	blk := h.powBlock(parent, parent.Time+150)
	blk.Header.PrevHash = h.recs[1].Hash
	_, err := h.sel.ValidateBlock(blk, parent)
	requireReason(t, err, ErrBadPrevBlock)

	blk = h.powBlock(parent, parent.Time+150)
	blk.Header.MerkleRoot = types.Hash{0x01}
	_, err = h.sel.ValidateBlock(blk, parent)
	requireReason(t, err, ErrBadBlock)
}

// commitSynthetic commits a record without validation.
func commitSynthetic(t *testing.T, idx *chain.Index, parent *chain.BlockRecord, blockTime int64, bits uint32, proof chain.ProofType) *chain.BlockRecord {
	t.Helper()
	hash := crypto.HashParts(parent.Hash[:], []byte(fmt.Sprintf("%d/%d", blockTime, proof)))
	rec, err := idx.Commit(&chain.BlockRecord{
		Height:   parent.Height + 1,
		Hash:     hash,
		PrevHash: parent.Hash,
		Time:     blockTime,
		Bits:     bits,
		Proof:    proof,
	})
	require.NoError(t, err)
	return rec
}

func TestSelector_SelectNextType(t *testing.T) {
	p := config.RegtestParams()
	idx := chain.NewIndex()
	sel, err := NewSelector(p, idx, fakeLookup{}, nil, WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	require.Equal(t, BlockPoW, sel.SelectNextType(nil))

	gen, err := idx.Commit(chain.GenesisRecord(p))
	require.NoError(t, err)
	recs := []*chain.BlockRecord{gen}
	for h := uint64(1); h <= p.PurePoWEndHeight; h++ {
		prev := recs[len(recs)-1]
		recs = append(recs, commitSynthetic(t, idx, prev, prev.Time+150, p.PowLimitBits, chain.ProofOfWork))
	}

	require.Equal(t, BlockPoW, sel.SelectNextType(recs[p.PoSStartHeight-2]))
	require.Equal(t, BlockHybrid, sel.SelectNextType(recs[p.PoSStartHeight-1]))
	require.Equal(t, BlockHybrid, sel.SelectNextType(recs[p.PurePoWEndHeight-1]))
	// Height 41, the last 10 blocks are all work: stake is preferred.
	require.Equal(t, BlockPoS, sel.SelectNextType(recs[p.PurePoWEndHeight]))

	// 9 stake blocks out of the last 10 meet the 90% target.
	tip := recs[p.PurePoWEndHeight]
	for i := 0; i < 9; i++ {
		tip = commitSynthetic(t, idx, tip, tip.Time+150, p.PosLimitBits, chain.ProofOfStake)
	}
	require.Equal(t, BlockHybrid, sel.SelectNextType(tip))

	tip = commitSynthetic(t, idx, tip, tip.Time+150, p.PowLimitBits, chain.ProofOfWork)
	tip = commitSynthetic(t, idx, tip, tip.Time+150, p.PowLimitBits, chain.ProofOfWork)
	require.Equal(t, BlockPoS, sel.SelectNextType(tip))
}

func TestSelector_Template(t *testing.T) {
	h := newHarness(t, nil)

	tmpl := h.sel.Template(h.tip())
	require.Equal(t, Template{Height: 1, Type: BlockPoW, Bits: h.params.PowLimitBits, Reward: 50 * config.Coin}, tmpl)

	h.extendPoW(int(h.params.PoSStartHeight) - 1)
	tmpl = h.sel.Template(h.tip())
	require.Equal(t, h.params.PoSStartHeight, tmpl.Height)
	require.Equal(t, BlockHybrid, tmpl.Type)
	require.Equal(t, uint64(55*config.Coin), tmpl.Reward)

	require.Equal(t, BlockPoW, h.sel.Template(nil).Type)
	require.Zero(t, h.sel.Template(nil).Height)
}
