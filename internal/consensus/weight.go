package consensus

import (
	"math/big"

	"github.com/Klingon-tech/klingnet-stake/config"
	"github.com/Klingon-tech/klingnet-stake/internal/chain"
	"github.com/Klingon-tech/klingnet-stake/pkg/tx"
)

// Weight returns the stake weight in seconds of a coin held from begin to
// end: the holding time beyond MinStakeAge, capped at
// MaxStakeAge - MinStakeAge.
func Weight(p *config.ConsensusParams, begin, end int64) int64 {
	w := end - begin - p.MinStakeAge
	if w < 0 {
		return 0
	}
	if limit := p.MaxStakeAge - p.MinStakeAge; w > limit {
		return limit
	}
	return w
}

// CoinAge returns the coin-days destroyed by t, summed over its inputs,
// resolving them on the branch ending at branch. Coinbase transactions
// have no coin age. A referenced transaction newer than t violates
// timestamp ordering and is an error.
func CoinAge(p *config.ConsensusParams, t *tx.Transaction, lookup TxLookup, branch *chain.BlockRecord) (uint64, error) {
	if t.IsCoinBase() {
		return 0, nil
	}

	txTime := int64(t.Time)
	centSeconds := new(big.Int)
	tmp := new(big.Int)
	for i, in := range t.Inputs {
		prior, err := lookup.LookupPriorTx(in.PrevOut, branch)
		if err != nil {
			return 0, err
		}
		if txTime < prior.Time {
			return 0, ruleError(ErrTimestampViolation,
				"input %d: prior tx time %d after tx time %d", i, prior.Time, txTime)
		}
		w := Weight(p, prior.Time, txTime)
		tmp.SetUint64(prior.Value)
		tmp.Mul(tmp, big.NewInt(w))
		tmp.Div(tmp, big.NewInt(config.Cent))
		centSeconds.Add(centSeconds, tmp)
	}

	coinDays := centSeconds.Mul(centSeconds, big.NewInt(config.Cent))
	coinDays.Div(coinDays, big.NewInt(config.Coin))
	coinDays.Div(coinDays, big.NewInt(config.SecondsPerDay))
	if !coinDays.IsUint64() {
		return ^uint64(0), nil
	}
	return coinDays.Uint64(), nil
}
