// Package money implements the fixed-point decimal used everywhere on the
// transfer engine's money path. Nothing here may touch float64.
package money

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the fixed scale (digits after the decimal point) used for every
// stored and computed monetary value: precision 20, scale 6.
const Scale = 6

// Decimal wraps shopspring/decimal.Decimal so every value that flows through
// the engine is rounded to Scale: on construction, on Scan, and after every
// Add, Sub, and Mul.
type Decimal struct {
	d decimal.Decimal
}

// Zero is the additive identity.
var Zero = Decimal{d: decimal.Zero}

// Half is 0.5, used by the rebalancer's donor-balance cap.
var Half = Decimal{d: decimal.New(5, -1)}

// New builds a Decimal from a string, rejecting malformed input.
func New(s string) (Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Decimal{}, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return Decimal{d: d.RoundBank(Scale)}, nil
}

// FromInt builds a Decimal from a whole number of units.
func FromInt(i int64) Decimal {
	return Decimal{d: decimal.NewFromInt(i).RoundBank(Scale)}
}

// FromDecimal wraps an already-computed shopspring decimal, rounding to Scale.
func FromDecimal(d decimal.Decimal) Decimal {
	return Decimal{d: d.RoundBank(Scale)}
}

// Raw exposes the underlying shopspring decimal for callers that need to
// hand it to a pgx driver value or another decimal-aware library.
func (m Decimal) Raw() decimal.Decimal { return m.d }

// IsPositive reports whether m > 0.
func (m Decimal) IsPositive() bool { return m.d.IsPositive() }

// IsNegative reports whether m < 0.
func (m Decimal) IsNegative() bool { return m.d.IsNegative() }

// IsZero reports whether m == 0.
func (m Decimal) IsZero() bool { return m.d.IsZero() }

// GreaterThanOrEqual reports whether m >= other.
func (m Decimal) GreaterThanOrEqual(other Decimal) bool { return m.d.Cmp(other.d) >= 0 }

// LessThan reports whether m < other.
func (m Decimal) LessThan(other Decimal) bool { return m.d.Cmp(other.d) < 0 }

// Cmp compares m to other: -1, 0, or 1.
func (m Decimal) Cmp(other Decimal) int { return m.d.Cmp(other.d) }

// Add returns m + other, rounded to Scale.
func (m Decimal) Add(other Decimal) Decimal {
	return Decimal{d: m.d.Add(other.d).RoundBank(Scale)}
}

// Sub returns m - other, rounded to Scale.
func (m Decimal) Sub(other Decimal) Decimal {
	return Decimal{d: m.d.Sub(other.d).RoundBank(Scale)}
}

// Neg returns -m.
func (m Decimal) Neg() Decimal {
	return Decimal{d: m.d.Neg()}
}

// Abs returns |m|.
func (m Decimal) Abs() Decimal {
	return Decimal{d: m.d.Abs()}
}

// Mul returns m * other, half-even rounded to Scale. Every multiplication on
// the money path goes through this so intermediate precision never silently
// drifts.
func (m Decimal) Mul(other Decimal) Decimal {
	return Decimal{d: m.d.Mul(other.d).RoundBank(Scale)}
}

// MulRate multiplies by a plain fraction (e.g. a margin rate) and rounds to
// Scale, same rounding rule as Mul.
func (m Decimal) MulRate(rate Decimal) Decimal {
	return m.Mul(rate)
}

// DivRate divides m by other and rounds to Scale (half away from zero, as
// DivRound does). Used by utilization_rate and by the FX store's
// reciprocal-rate fallback. Dividing by zero returns Zero.
func (m Decimal) DivRate(other Decimal) Decimal {
	if other.IsZero() {
		return Zero
	}
	return Decimal{d: m.d.DivRound(other.d, Scale)}
}

// String renders the canonical wire form: fixed Scale decimal places.
func (m Decimal) String() string {
	return m.d.StringFixed(Scale)
}

// MarshalJSON renders the decimal as a JSON string: amounts are carried as
// strings on the wire to preserve precision.
func (m Decimal) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON parses a JSON string into a Decimal.
func (m *Decimal) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := New(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Value implements driver.Valuer so a Decimal can be passed directly as a
// pgx query argument.
func (m Decimal) Value() (driver.Value, error) {
	return m.d.Value()
}

// Scan implements sql.Scanner so a Decimal can be the destination of a
// pgx.Rows.Scan call against a NUMERIC column.
func (m *Decimal) Scan(src interface{}) error {
	var d decimal.Decimal
	if err := d.Scan(src); err != nil {
		return err
	}
	m.d = d.RoundBank(Scale)
	return nil
}
