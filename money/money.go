package money

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

var (
	ErrScaleMismatch  = errors.New("amounts have different scales")
	ErrOverflow       = errors.New("amount overflows int64")
	ErrInvalidDecimal = errors.New("malformed decimal amount")
	ErrExcessDigits   = errors.New("fractional digits exceed currency scale")
	ErrInvalidDivisor = errors.New("divisor must be positive")
	ErrNegativeFactor = errors.New("factor must be non-negative")
)

// Money is an exact amount in a currency's minor units: an integer
// magnitude plus the number of fractional digits the currency carries
// (2 for BRL cents, 6 for a stablecoin, 18 for a native asset).
// The zero value is zero at scale 0.
type Money struct {
	amount int64
	scale  uint8
}

func New(amount int64, scale uint8) Money {
	return Money{amount: amount, scale: scale}
}

func Zero(scale uint8) Money {
	return Money{scale: scale}
}

// Parse converts a decimal string like "12.34" into minor units at the
// given scale. A fractional part longer than the scale is rejected rather
// than truncated.
func Parse(s string, scale uint8) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidDecimal, s)
	}
	if d.Exponent() < -int32(scale) {
		shifted := d.Shift(int32(scale))
		if !shifted.IsInteger() {
			return Money{}, fmt.Errorf("%w: %q at scale %d", ErrExcessDigits, s, scale)
		}
		d = shifted
	} else {
		d = d.Shift(int32(scale))
	}
	if !d.BigInt().IsInt64() {
		return Money{}, fmt.Errorf("%w: %q at scale %d", ErrOverflow, s, scale)
	}
	return Money{amount: d.IntPart(), scale: scale}, nil
}

func (m Money) Amount() int64 { return m.amount }
func (m Money) Scale() uint8  { return m.scale }
func (m Money) IsZero() bool  { return m.amount == 0 }

func (m Money) IsPositive() bool { return m.amount > 0 }
func (m Money) IsNegative() bool { return m.amount < 0 }

func (m Money) Neg() Money {
	return Money{amount: -m.amount, scale: m.scale}
}

func (m Money) Add(other Money) (Money, error) {
	if m.scale != other.scale {
		return Money{}, fmt.Errorf("%w: %d vs %d", ErrScaleMismatch, m.scale, other.scale)
	}
	sum := m.amount + other.amount
	if (m.amount > 0 && other.amount > 0 && sum < 0) ||
		(m.amount < 0 && other.amount < 0 && sum > 0) {
		return Money{}, ErrOverflow
	}
	return Money{amount: sum, scale: m.scale}, nil
}

func (m Money) Sub(other Money) (Money, error) {
	if m.scale != other.scale {
		return Money{}, fmt.Errorf("%w: %d vs %d", ErrScaleMismatch, m.scale, other.scale)
	}
	return m.Add(other.Neg())
}

// Cmp returns -1, 0 or 1 as m is less than, equal to or greater than other.
func (m Money) Cmp(other Money) (int, error) {
	if m.scale != other.scale {
		return 0, fmt.Errorf("%w: %d vs %d", ErrScaleMismatch, m.scale, other.scale)
	}
	switch {
	case m.amount < other.amount:
		return -1, nil
	case m.amount > other.amount:
		return 1, nil
	}
	return 0, nil
}

// Mul scales m by a non-negative integer factor, failing on overflow.
func (m Money) Mul(n int64) (Money, error) {
	if n < 0 {
		return Money{}, fmt.Errorf("%w: %d", ErrNegativeFactor, n)
	}
	if n != 0 && (m.amount > math.MaxInt64/n || m.amount < math.MinInt64/n) {
		return Money{}, ErrOverflow
	}
	return Money{amount: m.amount * n, scale: m.scale}, nil
}

// DivMod divides m by n, returning the floor quotient and the remainder
// such that quotient*n + remainder == m. The remainder is handed back so
// the caller decides where it lands; nothing is ever silently dropped.
func (m Money) DivMod(n int64) (quotient, remainder Money, err error) {
	if n <= 0 {
		return Money{}, Money{}, fmt.Errorf("%w: %d", ErrInvalidDivisor, n)
	}
	q := m.amount / n
	r := m.amount % n
	if r < 0 {
		// Floor semantics for negative amounts.
		q--
		r += n
	}
	return Money{amount: q, scale: m.scale}, Money{amount: r, scale: m.scale}, nil
}

// String renders the amount as a plain decimal, e.g. 1234 at scale 2 is
// "12.34".
func (m Money) String() string {
	return decimal.New(m.amount, -int32(m.scale)).StringFixed(int32(m.scale))
}
