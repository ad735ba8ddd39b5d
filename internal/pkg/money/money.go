package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultScale is the number of decimal places currency amounts are stored with.
const DefaultScale int32 = 2

var hundred = decimal.NewFromInt(100)

// Money represents a currency amount in fixed-point decimal
type Money struct {
	decimal.Decimal
}

// New wraps a decimal.Decimal
func New(d decimal.Decimal) Money {
	return Money{d}
}

// FromInt creates Money from a whole amount
func FromInt(v int64) Money {
	return Money{decimal.NewFromInt(v)}
}

// FromString parses a decimal string such as "18000.50"
func FromString(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("invalid money amount %q: %w", s, err)
	}
	return Money{d}, nil
}

// MustParse is FromString for constants and fixtures; it panics on bad input.
func MustParse(s string) Money {
	m, err := FromString(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero returns a zero amount
func Zero() Money {
	return Money{decimal.Zero}
}

func (m Money) Add(other Money) Money {
	return Money{m.Decimal.Add(other.Decimal)}
}

func (m Money) Sub(other Money) Money {
	return Money{m.Decimal.Sub(other.Decimal)}
}

// Mul multiplies by a plain decimal factor
func (m Money) Mul(factor decimal.Decimal) Money {
	return Money{m.Decimal.Mul(factor)}
}

// Div divides by a plain decimal factor
func (m Money) Div(factor decimal.Decimal) Money {
	return Money{m.Decimal.Div(factor)}
}

// Percent returns m * pct / 100 without rounding.
func (m Money) Percent(pct decimal.Decimal) Money {
	return Money{m.Decimal.Mul(pct).Div(hundred)}
}

// RoundHalfUp rounds to the given number of places, halves away from zero.
func (m Money) RoundHalfUp(places int32) Money {
	return Money{m.Decimal.Round(places)}
}

// Neg returns the negated amount
func (m Money) Neg() Money {
	return Money{m.Decimal.Neg()}
}

func (m Money) Equal(other Money) bool {
	return m.Decimal.Equal(other.Decimal)
}

func (m Money) GreaterThan(other Money) bool {
	return m.Decimal.GreaterThan(other.Decimal)
}

func (m Money) LessThan(other Money) bool {
	return m.Decimal.LessThan(other.Decimal)
}

// Min returns the smaller of two amounts
func Min(a, b Money) Money {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Max returns the larger of two amounts
func Max(a, b Money) Money {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Sum adds all amounts
func Sum(amounts ...Money) Money {
	total := Zero()
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// Apportion splits total across weights proportionally, rounding each part to
// places. The last part absorbs the rounding residue so the parts always sum
// to total exactly. A zero weight sum yields an equal split.
func Apportion(total Money, weights []Money, places int32) []Money {
	parts := make([]Money, len(weights))
	if len(weights) == 0 {
		return parts
	}

	weightSum := Sum(weights...)
	allocated := Zero()
	for i := range weights {
		if i == len(weights)-1 {
			parts[i] = total.Sub(allocated)
			break
		}
		var part Money
		if weightSum.IsZero() {
			part = total.Div(decimal.NewFromInt(int64(len(weights)))).RoundHalfUp(places)
		} else {
			part = Money{total.Decimal.Mul(weights[i].Decimal).Div(weightSum.Decimal)}.RoundHalfUp(places)
		}
		parts[i] = part
		allocated = allocated.Add(part)
	}
	return parts
}

// String returns the amount with two decimal places
func (m Money) String() string {
	return m.Decimal.StringFixed(DefaultScale)
}
