// Package money provides an exact two-digit decimal amount type.
//
// Every constructor and arithmetic result is rounded to two fractional digits
// (half away from zero). Values never pass through float64.
package money

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits kept at rest.
const Scale = 2

var (
	ErrDivisionByZero = errors.New("division by zero")
	ErrInvalidAmount  = errors.New("invalid monetary amount")
)

var hundred = decimal.NewFromInt(100)

// Money is an exact decimal amount with two fractional digits.
// The zero value is 0.00.
type Money struct {
	d decimal.Decimal
}

// Zero is 0.00.
var Zero = Money{}

func round(d decimal.Decimal) Money {
	return Money{d: d.Round(Scale)}
}

// FromDecimal wraps d, rounding it to two digits.
func FromDecimal(d decimal.Decimal) Money {
	return round(d)
}

// NewFromInt returns a whole amount.
func NewFromInt(v int64) Money {
	return Money{d: decimal.NewFromInt(v)}
}

// FromCents returns the amount for a number of minor units.
func FromCents(cents int64) Money {
	return Money{d: decimal.New(cents, -Scale)}
}

// MustParse is Parse for literals known to be valid. It panics otherwise.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Parse reads plain or locale-formatted amounts such as "150.75",
// "1,234.56", "R$ 1.234,56" or "-10,5". Currency symbols and spaces are
// ignored. A single minus sign may lead the number or trail it
// accounting-style ("10.50-"). When both '.' and ',' appear the right-most one is the decimal
// separator. A separator that repeats, or a single one followed by exactly
// three digits after a non-zero integer part, groups thousands.
func Parse(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, ErrInvalidAmount
	}

	var b strings.Builder
	negative, trailing := false, false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',':
			if trailing {
				return Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
			}
			b.WriteRune(r)
		case r == '-':
			if negative {
				return Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
			}
			negative = true
			trailing = b.Len() > 0
		}
	}

	normalized, err := normalizeSeparators(b.String())
	if err != nil {
		return Zero, fmt.Errorf("%w: %q", err, s)
	}

	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if negative {
		d = d.Neg()
	}
	return round(d), nil
}

func normalizeSeparators(s string) (string, error) {
	if s == "" || strings.Trim(s, ".,") == "" {
		return "", ErrInvalidAmount
	}

	lastDot := strings.LastIndexByte(s, '.')
	lastComma := strings.LastIndexByte(s, ',')

	switch {
	case lastDot >= 0 && lastComma >= 0:
		decimalSep, groupSep := byte('.'), ","
		if lastComma > lastDot {
			decimalSep, groupSep = ',', "."
		}
		s = strings.ReplaceAll(s, groupSep, "")
		if strings.Count(s, string(decimalSep)) > 1 {
			return "", ErrInvalidAmount
		}
		return strings.Replace(s, string(decimalSep), ".", 1), nil

	case lastDot >= 0 || lastComma >= 0:
		sep := "."
		idx := lastDot
		if lastComma >= 0 {
			sep, idx = ",", lastComma
		}
		if strings.Count(s, sep) > 1 {
			return strings.ReplaceAll(s, sep, ""), nil
		}
		intPart, fracPart := s[:idx], s[idx+1:]
		if len(fracPart) == 3 && intPart != "" && strings.Trim(intPart, "0") != "" {
			return intPart + fracPart, nil
		}
		return intPart + "." + fracPart, nil
	}

	return s, nil
}

// Decimal exposes the underlying value.
func (m Money) Decimal() decimal.Decimal { return m.d }

// Add returns m plus every value in others.
func (m Money) Add(others ...Money) Money {
	d := m.d
	for _, o := range others {
		d = d.Add(o.d)
	}
	return round(d)
}

// Sub returns m minus every value in others.
func (m Money) Sub(others ...Money) Money {
	d := m.d
	for _, o := range others {
		d = d.Sub(o.d)
	}
	return round(d)
}

// Mul returns m times factor.
func (m Money) Mul(factor Money) Money {
	return round(m.d.Mul(factor.d))
}

// MulDecimal returns m times an arbitrary-precision factor.
func (m Money) MulDecimal(factor decimal.Decimal) Money {
	return round(m.d.Mul(factor))
}

// Div returns m divided by divisor.
func (m Money) Div(divisor Money) (Money, error) {
	if divisor.d.IsZero() {
		return Zero, ErrDivisionByZero
	}
	return round(m.d.DivRound(divisor.d, Scale+8)), nil
}

// Percent returns p percent of m, so Percent(10) of 1000.00 is 100.00.
func (m Money) Percent(p Money) Money {
	return round(m.d.Mul(p.d).DivRound(hundred, Scale+8))
}

// Ratio returns m × num / den without intermediate rounding.
func (m Money) Ratio(num, den Money) (Money, error) {
	if den.d.IsZero() {
		return Zero, ErrDivisionByZero
	}
	return round(m.d.Mul(num.d).DivRound(den.d, Scale+8)), nil
}

// Split divides m into n shares of round(m/n). The final share absorbs the
// rounding remainder so the shares always sum to m exactly.
func (m Money) Split(n int) ([]Money, error) {
	if n <= 0 {
		return nil, ErrDivisionByZero
	}
	share := round(m.d.DivRound(decimal.NewFromInt(int64(n)), Scale+8))
	shares := make([]Money, n)
	allocated := Zero
	for i := 0; i < n-1; i++ {
		shares[i] = share
		allocated = allocated.Add(share)
	}
	shares[n-1] = m.Sub(allocated)
	return shares, nil
}

// Sum adds all values.
func Sum(values ...Money) Money {
	return Zero.Add(values...)
}

// Min returns the smaller of a and b.
func Min(a, b Money) Money {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b Money) Money {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

func (m Money) Neg() Money { return Money{d: m.d.Neg()} }
func (m Money) Abs() Money { return Money{d: m.d.Abs()} }

func (m Money) IsZero() bool { return m.d.IsZero() }
func (m Money) IsPositive() bool { return m.d.IsPositive() }
func (m Money) IsNegative() bool { return m.d.IsNegative() }

func (m Money) Cmp(o Money) int { return m.d.Cmp(o.d) }
func (m Money) Equal(o Money) bool { return m.d.Equal(o.d) }
func (m Money) GreaterThan(o Money) bool { return m.d.GreaterThan(o.d) }
func (m Money) GreaterThanOrEqual(o Money) bool { return m.d.GreaterThanOrEqual(o.d) }
func (m Money) LessThan(o Money) bool { return m.d.LessThan(o.d) }
func (m Money) LessThanOrEqual(o Money) bool { return m.d.LessThanOrEqual(o.d) }

// String formats the amount with exactly two fractional digits.
func (m Money) String() string {
	return m.d.StringFixed(Scale)
}

// MarshalJSON encodes the amount as a string, e.g. "150.75".
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON accepts a string (plain or locale-formatted) or a bare JSON
// number. Numbers are read from their literal text.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*m = Zero
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		parsed, err := Parse(s[1 : len(s)-1])
		if err != nil {
			return err
		}
		*m = parsed
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, s)
	}
	*m = round(d)
	return nil
}

// Value implements driver.Valuer for NUMERIC columns.
func (m Money) Value() (driver.Value, error) {
	return m.String(), nil
}

// Scan implements sql.Scanner for NUMERIC columns.
func (m *Money) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*m = Zero
		return nil
	case []byte:
		return m.scanString(string(v))
	case string:
		return m.scanString(v)
	case int64:
		*m = NewFromInt(v)
		return nil
	case float64:
		*m = round(decimal.NewFromFloat(v))
		return nil
	default:
		return fmt.Errorf("money: cannot scan %T", value)
	}
}

func (m *Money) scanString(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("money: %w", err)
	}
	*m = round(d)
	return nil
}
