package block

import (
	"github.com/Klingon-tech/klingnet-stake/pkg/crypto"
	"github.com/Klingon-tech/klingnet-stake/pkg/types"
)

// ComputeMerkleRoot calculates the merkle root of transaction hashes.
// An empty list yields the zero hash and a single hash is its own root.
// Odd levels duplicate their last element.
func ComputeMerkleRoot(txHashes []types.Hash) types.Hash {
	if len(txHashes) == 0 {
		return types.Hash{}
	}

	level := make([]types.Hash, len(txHashes), len(txHashes)+1)
	copy(level, txHashes)

	for n := len(level); n > 1; {
		if n%2 != 0 {
			level = append(level[:n], level[n-1])
			n++
		}
		for i := 0; i < n; i += 2 {
			level[i/2] = crypto.HashConcat(level[i], level[i+1])
		}
		n /= 2
		level = level[:n]
	}

	return level[0]
}
