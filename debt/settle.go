package debt

import (
	"math/bits"

	"github.com/google/uuid"

	"github.com/rachaio/racha/money"
)

// Past this many open debts between a pair the exact subset search is
// skipped and the full set is settled instead.
const settleNetSearchLimit = 16

// SettleNet squares a pair up in one currency: it settles whole debts whose
// signed sum equals the current net balance, bringing NetBalance(a, b) for
// that scale to zero. Debts are atomic units and are never split; the
// operation prefers the smallest set of records that works, leaving
// mutually-cancelling debts open when the net can be zeroed without them.
// It returns the settled ids and the remaining net balance.
func (l *Ledger) SettleNet(a, b string, scale uint8) ([]uuid.UUID, money.Money, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var open []*Debt
	for _, d := range l.debts {
		if d.Settled || d.Amount.Scale() != scale {
			continue
		}
		if (d.Creditor == a && d.Debtor == b) || (d.Creditor == b && d.Debtor == a) {
			open = append(open, d)
		}
	}
	if len(open) == 0 {
		return nil, money.Zero(scale), nil
	}

	signed := make([]int64, len(open))
	var net int64
	for i, d := range open {
		amt := d.Amount.Amount()
		if d.Creditor == b {
			amt = -amt
		}
		signed[i] = amt
		net += amt
	}

	chosen := pickSettleSet(signed, net)

	ids := make([]uuid.UUID, 0, len(chosen))
	for _, i := range chosen {
		if err := l.settleLocked(open[i].ID); err != nil {
			return nil, money.Money{}, err
		}
		ids = append(ids, open[i].ID)
	}

	residual, err := l.netBalanceLocked(a, b, scale)
	if err != nil {
		return nil, money.Money{}, err
	}
	return ids, residual, nil
}

// pickSettleSet returns indexes of a minimum-cardinality subset of signed
// amounts summing to target. The full set always qualifies (its sum is the
// target by construction), so a result is guaranteed; past the search limit
// the full set is returned directly.
func pickSettleSet(signed []int64, target int64) []int {
	n := len(signed)
	all := make([]int, n)
	for i := range all {
		all[i] = i
	}
	if n > settleNetSearchLimit {
		return all
	}

	best := all
	for mask := 1; mask < 1<<n; mask++ {
		if bits.OnesCount(uint(mask)) >= len(best) {
			continue
		}
		var sum int64
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				sum += signed[i]
			}
		}
		if sum != target {
			continue
		}
		subset := make([]int, 0, bits.OnesCount(uint(mask)))
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				subset = append(subset, i)
			}
		}
		best = subset
	}
	return best
}
