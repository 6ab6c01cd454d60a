package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

// paramsFile is the on-disk layout of a parameter override file:
//
//	[consensus]
//	pos_start_height = 50
//	min_stake_age = 3600
//
//	[[checkpoint]]
//	height = 100
//	hash = "00ab..."
//
//	[[modifier_checkpoint]]
//	height = 100
//	checksum = 0x1f2e3d4c
type paramsFile struct {
	Consensus           *ConsensusParams     `toml:"consensus"`
	Checkpoint          []checkpointEntry    `toml:"checkpoint"`
	ModifierCheckpoint  []modifierCheckpoint `toml:"modifier_checkpoint"`
	CheckpointTime      int64                `toml:"checkpoint_time"`
	CheckpointTxCount   uint64               `toml:"checkpoint_tx_count"`
	CheckpointTxsPerDay float64              `toml:"checkpoint_txs_per_day"`
}

type checkpointEntry struct {
	Height uint64     `toml:"height"`
	Hash   types.Hash `toml:"hash"`
}

type modifierCheckpoint struct {
	Height   uint64 `toml:"height"`
	Checksum uint32 `toml:"checksum"`
}

// LoadParamsFile overlays the TOML file at path onto a copy of base.
// Keys absent from the file keep their base value; checkpoint entries are
// added to (or replace) the base tables. Unknown keys are an error.
func LoadParamsFile(path string, base *ConsensusParams) (*ConsensusParams, error) {
	p := base.Clone()
	f := paramsFile{Consensus: p}

	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("read params file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("params file %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	for _, cp := range f.Checkpoint {
		p.Checkpoints.Hashes[cp.Height] = cp.Hash
	}
	for _, mc := range f.ModifierCheckpoint {
		p.Checkpoints.ModifierChecksums[mc.Height] = mc.Checksum
	}
	if md.IsDefined("checkpoint_time") {
		p.Checkpoints.TimeLastCheckpoint = f.CheckpointTime
	}
	if md.IsDefined("checkpoint_tx_count") {
		p.Checkpoints.TxLastCheckpoint = f.CheckpointTxCount
	}
	if md.IsDefined("checkpoint_txs_per_day") {
		p.Checkpoints.TxPerDay = f.CheckpointTxsPerDay
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("params file %s: %w", path, err)
	}
	return p, nil
}
