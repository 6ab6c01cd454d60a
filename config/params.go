package config

import (
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/blockchain"
)

// =============================================================================
// Consensus Parameters (immutable, per network)
// These MUST match across all nodes or consensus breaks.
// =============================================================================

// Denomination constants. All on-chain values are in base units.
const (
	Coin          = 100_000_000 // 10^8 base units per coin
	Cent          = 1_000_000   // 10^6
	SecondsPerDay = 24 * 60 * 60
)

// Block and transaction size limits (consensus-critical).
const (
	MaxBlockSize  = 1_000_000 // 1 MB max block size (header + all tx bytes)
	MaxBlockTxs   = 500       // Max transactions per block (including coinbase)
	MaxTxInputs   = 2500      // Max inputs per transaction
	MaxTxOutputs  = 2500      // Max outputs per transaction
	MaxScriptData = 10_000    // Max script bytes per output
)

// ConsensusParams holds the network-scoped consensus constants. A value is
// built once at startup (ParamsFor, optionally LoadParamsFile) and shared
// read-only by every validation.
//
// Times and durations are unix seconds. Ratios are integers to keep reward
// and type-selection arithmetic exact.
type ConsensusParams struct {
	Network NetworkType `toml:"-"`

	// Genesis block.
	GenesisTime    int64  `toml:"genesis_time"`
	GenesisMessage string `toml:"genesis_message"`

	// Target ceilings, compact encoded.
	PowLimitBits uint32 `toml:"pow_limit_bits"`
	PosLimitBits uint32 `toml:"pos_limit_bits"`

	TargetSpacing int64 `toml:"target_spacing"`

	// Stake eligibility.
	MinStakeAge           int64  `toml:"min_stake_age"`
	MaxStakeAge           int64  `toml:"max_stake_age"`
	StakeMinConfirmations uint64 `toml:"stake_min_confirmations"`

	// Stake modifier.
	ModifierInterval       int64 `toml:"modifier_interval"`
	ModifierSections       int64 `toml:"modifier_sections"`
	ModifierActivationTime int64 `toml:"modifier_activation_time"`

	// Hybrid schedule.
	PoSStartHeight        uint64 `toml:"pos_start_height"`
	PurePoWEndHeight      uint64 `toml:"pure_pow_end_height"`
	TargetPoSRatioPercent uint64 `toml:"target_pos_ratio_percent"`
	TypeSelectionWindow   int    `toml:"type_selection_window"`

	// Rewards.
	BaseSubsidy            uint64 `toml:"base_subsidy"`
	SubsidyHalvingInterval uint64 `toml:"subsidy_halving_interval"`
	PoSRewardPercent       uint64 `toml:"pos_reward_percent"`
	HybridRewardPermille   uint64 `toml:"hybrid_reward_permille"`

	// Timestamps.
	MedianTimeSpan     int   `toml:"median_time_span"`
	MaxFutureBlockTime int64 `toml:"max_future_block_time"`

	Checkpoints CheckpointData `toml:"-"`
}

// PowLimit returns the proof-of-work target ceiling.
func (p *ConsensusParams) PowLimit() *big.Int {
	return blockchain.CompactToBig(p.PowLimitBits)
}

// PosLimit returns the proof-of-stake target ceiling.
func (p *ConsensusParams) PosLimit() *big.Int {
	return blockchain.CompactToBig(p.PosLimitBits)
}

// SelectionInterval returns the span of time from which stake modifier
// entropy is collected: ModifierInterval * ModifierSections / 4.
func (p *ConsensusParams) SelectionInterval() int64 {
	return p.ModifierInterval * p.ModifierSections / 4
}

// Clone returns a deep copy, including the checkpoint tables.
func (p *ConsensusParams) Clone() *ConsensusParams {
	c := *p
	c.Checkpoints = p.Checkpoints.Clone()
	return &c
}

// Validate checks internal consistency of the parameters.
func (p *ConsensusParams) Validate() error {
	switch {
	case p.PowLimit().Sign() <= 0:
		return fmt.Errorf("pow_limit_bits %#08x decodes to a non-positive target", p.PowLimitBits)
	case p.PosLimit().Sign() <= 0:
		return fmt.Errorf("pos_limit_bits %#08x decodes to a non-positive target", p.PosLimitBits)
	case p.TargetSpacing <= 0:
		return fmt.Errorf("target_spacing must be positive")
	case p.MinStakeAge < 0 || p.MaxStakeAge < p.MinStakeAge:
		return fmt.Errorf("stake ages must satisfy 0 <= min_stake_age <= max_stake_age")
	case p.ModifierInterval <= 0:
		return fmt.Errorf("modifier_interval must be positive")
	case p.ModifierSections <= 0 || p.ModifierSections > 64:
		return fmt.Errorf("modifier_sections must be in [1, 64]")
	case p.SelectionInterval() < p.ModifierSections:
		return fmt.Errorf("selection interval shorter than one second per section")
	case p.PurePoWEndHeight < p.PoSStartHeight:
		return fmt.Errorf("pure_pow_end_height must not precede pos_start_height")
	case p.TargetPoSRatioPercent > 100:
		return fmt.Errorf("target_pos_ratio_percent must be at most 100")
	case p.TypeSelectionWindow <= 0:
		return fmt.Errorf("type_selection_window must be positive")
	case p.SubsidyHalvingInterval == 0:
		return fmt.Errorf("subsidy_halving_interval must be positive")
	case p.PoSRewardPercent > 100:
		return fmt.Errorf("pos_reward_percent must be at most 100")
	case p.HybridRewardPermille < 1000:
		return fmt.Errorf("hybrid_reward_permille must be at least 1000")
	case p.MedianTimeSpan <= 0:
		return fmt.Errorf("median_time_span must be positive")
	case p.MaxFutureBlockTime < 0:
		return fmt.Errorf("max_future_block_time must not be negative")
	}
	return nil
}

// MainnetParams returns the mainnet consensus parameters.
func MainnetParams() *ConsensusParams {
	return &ConsensusParams{
		Network:        Mainnet,
		GenesisTime:    1760000000,
		GenesisMessage: "klingnet-stake mainnet genesis",

		PowLimitBits: 0x1e0fffff,
		PosLimitBits: 0x1d00ffff,

		TargetSpacing: 150,

		MinStakeAge:           30 * SecondsPerDay,
		MaxStakeAge:           90 * SecondsPerDay,
		StakeMinConfirmations: 500,

		ModifierInterval:       6 * 60 * 60,
		ModifierSections:       64,
		ModifierActivationTime: 0,

		PoSStartHeight:        1000,
		PurePoWEndHeight:      10000,
		TargetPoSRatioPercent: 90,
		TypeSelectionWindow:   100,

		BaseSubsidy:            50 * Coin,
		SubsidyHalvingInterval: 210000,
		PoSRewardPercent:       80,
		HybridRewardPermille:   1100,

		MedianTimeSpan:     11,
		MaxFutureBlockTime: 2 * 60 * 60,

		Checkpoints: mainnetCheckpoints(),
	}
}

// TestnetParams returns the testnet consensus parameters. Stake ages are
// shortened; everything else follows mainnet.
func TestnetParams() *ConsensusParams {
	p := MainnetParams()
	p.Network = Testnet
	p.GenesisTime = 1760100000
	p.GenesisMessage = "klingnet-stake testnet genesis"
	p.MinStakeAge = 1 * SecondsPerDay
	p.MaxStakeAge = 30 * SecondsPerDay
	p.StakeMinConfirmations = 100
	p.Checkpoints = testnetCheckpoints()
	return p
}

// RegtestParams returns parameters for local testing: trivial targets,
// short stake ages and an early hybrid schedule.
func RegtestParams() *ConsensusParams {
	p := MainnetParams()
	p.Network = Regtest
	p.GenesisTime = 1700000000
	p.GenesisMessage = "klingnet-stake regtest genesis"
	p.PowLimitBits = 0x207fffff
	p.PosLimitBits = 0x207fffff
	p.MinStakeAge = 60
	p.MaxStakeAge = 90 * SecondsPerDay
	p.StakeMinConfirmations = 10
	p.ModifierInterval = 10 * 60
	p.PoSStartHeight = 20
	p.PurePoWEndHeight = 40
	p.TypeSelectionWindow = 10
	p.SubsidyHalvingInterval = 150
	p.Checkpoints = CheckpointData{}
	return p
}

// ParamsFor returns the built-in parameters for a network.
func ParamsFor(network NetworkType) (*ConsensusParams, error) {
	switch network {
	case Mainnet:
		return MainnetParams(), nil
	case Testnet:
		return TestnetParams(), nil
	case Regtest:
		return RegtestParams(), nil
	default:
		return nil, fmt.Errorf("unknown network %q", network)
	}
}
