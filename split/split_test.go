package split_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rachaio/racha/money"
	"github.com/rachaio/racha/split"
)

func shareAmounts(shares []split.Share) []int64 {
	out := make([]int64, 0, len(shares))
	for _, s := range shares {
		out = append(out, s.Amount.Amount())
	}
	return out
}

func sumShares(t *testing.T, shares []split.Share, scale uint8) int64 {
	t.Helper()
	sum := money.Zero(scale)
	for _, s := range shares {
		var err error
		sum, err = sum.Add(s.Amount)
		require.NoError(t, err)
	}
	return sum.Amount()
}

func TestComputeEqual(t *testing.T) {
	tests := []struct {
		name         string
		total        int64
		participants []string
		want         []int64
	}{
		{
			name:         "divides exactly",
			total:        90,
			participants: []string{"alice", "bob", "carol"},
			want:         []int64{30, 30, 30},
		},
		{
			name:         "remainder goes to the first participant",
			total:        10,
			participants: []string{"alice", "bob", "carol"},
			want:         []int64{4, 3, 3},
		},
		{
			name:         "two-unit remainder stays on the first participant",
			total:        11,
			participants: []string{"alice", "bob", "carol"},
			want:         []int64{5, 3, 3},
		},
		{
			name:         "single participant takes everything",
			total:        7,
			participants: []string{"alice"},
			want:         []int64{7},
		},
		{
			name:         "total smaller than group",
			total:        2,
			participants: []string{"alice", "bob", "carol"},
			want:         []int64{2, 0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shares, err := split.Compute(split.Request{
				Total:        money.New(tt.total, 2),
				Mode:         split.ModeEqual,
				Participants: tt.participants,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, shareAmounts(shares))
			assert.Equal(t, tt.total, sumShares(t, shares, 2))
		})
	}
}

func TestComputePercentage(t *testing.T) {
	participants := []string{"alice", "bob", "carol"}

	tests := []struct {
		name        string
		total       int64
		basisPoints []int64
		want        []int64
		wantErr     error
	}{
		{
			name:        "even thirds with largest-remainder correction",
			total:       100,
			basisPoints: []int64{3333, 3333, 3334},
			want:        []int64{33, 33, 34},
		},
		{
			name:        "uneven shares reassemble exactly",
			total:       1000,
			basisPoints: []int64{1, 4999, 5000},
			want:        []int64{0, 500, 500},
		},
		{
			name:        "residual ties broken by participant order",
			total:       100,
			basisPoints: []int64{2500, 2500, 5000},
			want:        []int64{25, 25, 50},
		},
		{
			name:        "one basis point short",
			total:       100,
			basisPoints: []int64{3333, 3333, 3333},
			wantErr:     split.ErrInvalidShareSum,
		},
		{
			name:        "one basis point over",
			total:       100,
			basisPoints: []int64{3334, 3334, 3333},
			wantErr:     split.ErrInvalidShareSum,
		},
		{
			name:        "negative basis points rejected",
			total:       100,
			basisPoints: []int64{-1, 5001, 5000},
			wantErr:     split.ErrInvalidBasisPoint,
		},
		{
			name:        "count mismatch",
			total:       100,
			basisPoints: []int64{5000, 5000},
			wantErr:     split.ErrCountMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shares, err := split.Compute(split.Request{
				Total:        money.New(tt.total, 2),
				Mode:         split.ModePercentage,
				Participants: participants,
				BasisPoints:  tt.basisPoints,
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, shareAmounts(shares))
			assert.Equal(t, tt.total, sumShares(t, shares, 2))
		})
	}
}

func TestComputePercentageLargeTotal(t *testing.T) {
	// A native-asset sized total must not overflow the basis point math.
	total := int64(7_000_000_000_000_000_003)
	shares, err := split.Compute(split.Request{
		Total:        money.New(total, 18),
		Mode:         split.ModePercentage,
		Participants: []string{"alice", "bob"},
		BasisPoints:  []int64{5000, 5000},
	})
	require.NoError(t, err)
	assert.Equal(t, total, sumShares(t, shares, 18))
}

func TestComputeExact(t *testing.T) {
	participants := []string{"alice", "bob"}

	tests := []struct {
		name    string
		total   int64
		amounts []int64
		wantErr error
	}{
		{name: "sums to total", total: 100, amounts: []int64{60, 40}},
		{name: "sum below total", total: 100, amounts: []int64{60, 39}, wantErr: split.ErrInvalidShareSum},
		{name: "sum above total", total: 100, amounts: []int64{60, 41}, wantErr: split.ErrInvalidShareSum},
		{name: "count mismatch", total: 100, amounts: []int64{100}, wantErr: split.ErrCountMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amounts := make([]money.Money, 0, len(tt.amounts))
			for _, a := range tt.amounts {
				amounts = append(amounts, money.New(a, 2))
			}
			shares, err := split.Compute(split.Request{
				Total:        money.New(tt.total, 2),
				Mode:         split.ModeExact,
				Participants: participants,
				Amounts:      amounts,
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.amounts, shareAmounts(shares))
		})
	}
}

func TestComputeExactScaleMismatch(t *testing.T) {
	_, err := split.Compute(split.Request{
		Total:        money.New(100, 2),
		Mode:         split.ModeExact,
		Participants: []string{"alice", "bob"},
		Amounts:      []money.Money{money.New(60, 2), money.New(40, 6)},
	})
	assert.ErrorIs(t, err, money.ErrScaleMismatch)
}

func TestComputeEmptyParticipants(t *testing.T) {
	for _, mode := range []split.Mode{split.ModeEqual, split.ModePercentage, split.ModeExact} {
		_, err := split.Compute(split.Request{
			Total: money.New(100, 2),
			Mode:  mode,
		})
		assert.ErrorIs(t, err, split.ErrEmptyParticipants, "mode %s", mode)
	}
}

func TestComputeUnknownMode(t *testing.T) {
	_, err := split.Compute(split.Request{
		Total:        money.New(100, 2),
		Mode:         split.Mode("weighted"),
		Participants: []string{"alice"},
	})
	assert.ErrorIs(t, err, split.ErrUnknownMode)
}

func TestComputeIsPure(t *testing.T) {
	req := split.Request{
		Total:        money.New(1003, 2),
		Mode:         split.ModePercentage,
		Participants: []string{"alice", "bob", "carol"},
		BasisPoints:  []int64{3333, 3333, 3334},
	}

	first, err := split.Compute(req)
	require.NoError(t, err)
	second, err := split.Compute(req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
