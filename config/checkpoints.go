package config

import "github.com/Klingon-tech/klingnet-stake/pkg/types"

// CheckpointData is the release-distributed trust anchor of a network:
// hardened block hashes, stake modifier checksums and the statistics used
// to estimate sync progress past the last checkpoint.
type CheckpointData struct {
	Hashes            map[uint64]types.Hash
	ModifierChecksums map[uint64]uint32

	// Unix time of the last checkpoint block.
	TimeLastCheckpoint int64
	// Total number of transactions between genesis and the last checkpoint.
	TxLastCheckpoint uint64
	// Estimated transactions per day after the last checkpoint.
	TxPerDay float64
}

// Clone returns a deep copy of the checkpoint tables.
func (d CheckpointData) Clone() CheckpointData {
	c := d
	c.Hashes = make(map[uint64]types.Hash, len(d.Hashes))
	for h, v := range d.Hashes {
		c.Hashes[h] = v
	}
	c.ModifierChecksums = make(map[uint64]uint32, len(d.ModifierChecksums))
	for h, v := range d.ModifierChecksums {
		c.ModifierChecksums[h] = v
	}
	return c
}

// The genesis block hash is pinned at startup from the compiled genesis
// (chain.GenesisBlock); the tables below list post-genesis anchors only.

func mainnetCheckpoints() CheckpointData {
	return CheckpointData{
		Hashes: map[uint64]types.Hash{},
		ModifierChecksums: map[uint64]uint32{
			0: 0,
		},
		TimeLastCheckpoint: 1760000000,
		TxLastCheckpoint:   1,
		TxPerDay:           2000,
	}
}

func testnetCheckpoints() CheckpointData {
	return CheckpointData{
		Hashes: map[uint64]types.Hash{},
		ModifierChecksums: map[uint64]uint32{
			0: 0,
		},
		TimeLastCheckpoint: 1760100000,
		TxLastCheckpoint:   1,
		TxPerDay:           300,
	}
}
