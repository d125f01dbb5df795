package split

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rachaio/racha/money"
)

type Mode string

const (
	ModeEqual      Mode = "equal"
	ModePercentage Mode = "percentage"
	ModeExact      Mode = "exact"
)

// BasisPointTotal is the full allocation in basis points (100%).
const BasisPointTotal int64 = 10000

var (
	ErrEmptyParticipants = errors.New("no participants to split among")
	ErrCountMismatch     = errors.New("input count does not match participant count")
	ErrInvalidShareSum   = errors.New("shares do not sum to the total")
	ErrUnknownMode       = errors.New("unknown split mode")
	ErrInvalidBasisPoint = errors.New("basis points must be between 0 and 10000")
)

// Request describes one split to compute. Participants are opaque,
// equality-comparable identities (account addresses in practice); their
// order matters because remainder placement is deterministic on it.
//
// BasisPoints is read only in percentage mode, Amounts only in exact mode.
type Request struct {
	Total        money.Money
	Mode         Mode
	Participants []string
	BasisPoints  []int64
	Amounts      []money.Money
}

// Share is one participant's slice of the total.
type Share struct {
	Participant string
	Amount      money.Money
}

// Compute divides the request's total among its participants. In every
// mode the returned shares sum to the total exactly; a request that
// cannot satisfy that is rejected, never rounded.
func Compute(req Request) ([]Share, error) {
	if len(req.Participants) == 0 {
		return nil, ErrEmptyParticipants
	}

	switch req.Mode {
	case ModeEqual:
		return computeEqual(req)
	case ModePercentage:
		return computePercentage(req)
	case ModeExact:
		return computeExact(req)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, req.Mode)
	}
}

func computeEqual(req Request) ([]Share, error) {
	base, remainder, err := req.Total.DivMod(int64(len(req.Participants)))
	if err != nil {
		return nil, err
	}

	shares := make([]Share, 0, len(req.Participants))
	for i, p := range req.Participants {
		amount := base
		if i == 0 {
			// The whole remainder lands on the first participant so the
			// shares always reassemble into the total.
			amount, err = base.Add(remainder)
			if err != nil {
				return nil, err
			}
		}
		shares = append(shares, Share{Participant: p, Amount: amount})
	}
	return shares, nil
}

func computePercentage(req Request) ([]Share, error) {
	if len(req.BasisPoints) != len(req.Participants) {
		return nil, fmt.Errorf("%w: %d basis point entries for %d participants",
			ErrCountMismatch, len(req.BasisPoints), len(req.Participants))
	}

	var bpsSum int64
	for _, bps := range req.BasisPoints {
		if bps < 0 || bps > BasisPointTotal {
			return nil, fmt.Errorf("%w: %d", ErrInvalidBasisPoint, bps)
		}
		bpsSum += bps
	}
	if bpsSum != BasisPointTotal {
		return nil, fmt.Errorf("%w: basis points sum to %d, want %d",
			ErrInvalidShareSum, bpsSum, BasisPointTotal)
	}

	total := req.Total.Amount()
	// Split total into high and low parts so total*bps never overflows:
	// floor(total*bps/10000) == q*bps + (r*bps)/10000 with q*bps <= total.
	q, r := total/BasisPointTotal, total%BasisPointTotal
	if r < 0 {
		q--
		r += BasisPointTotal
	}

	floors := make([]int64, len(req.Participants))
	fracs := make([]int64, len(req.Participants))
	var allocated int64
	for i, bps := range req.BasisPoints {
		floors[i] = q*bps + (r*bps)/BasisPointTotal
		fracs[i] = (r * bps) % BasisPointTotal
		allocated += floors[i]
	}

	// Largest-remainder correction: hand the leftover units out one at a
	// time, biggest fractional remainder first, request order on ties.
	residual := total - allocated
	order := make([]int, len(fracs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return fracs[order[a]] > fracs[order[b]]
	})
	for i := int64(0); i < residual; i++ {
		floors[order[i]]++
	}

	shares := make([]Share, 0, len(req.Participants))
	for i, p := range req.Participants {
		shares = append(shares, Share{
			Participant: p,
			Amount:      money.New(floors[i], req.Total.Scale()),
		})
	}
	return shares, nil
}

func computeExact(req Request) ([]Share, error) {
	if len(req.Amounts) != len(req.Participants) {
		return nil, fmt.Errorf("%w: %d amounts for %d participants",
			ErrCountMismatch, len(req.Amounts), len(req.Participants))
	}

	sum := money.Zero(req.Total.Scale())
	for _, amount := range req.Amounts {
		var err error
		sum, err = sum.Add(amount)
		if err != nil {
			return nil, err
		}
	}
	if cmp, err := sum.Cmp(req.Total); err != nil {
		return nil, err
	} else if cmp != 0 {
		return nil, fmt.Errorf("%w: amounts sum to %s, want %s",
			ErrInvalidShareSum, sum, req.Total)
	}

	shares := make([]Share, 0, len(req.Participants))
	for i, p := range req.Participants {
		shares = append(shares, Share{Participant: p, Amount: req.Amounts[i]})
	}
	return shares, nil
}
