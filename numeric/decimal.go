package numeric

import "github.com/shopspring/decimal"

// Decimal is the arbitrary-precision policy backed by shopspring/decimal.
// It never loses fractional experience regardless of magnitude.
type Decimal struct{}

var _ Operator[decimal.Decimal] = Decimal{}

func (Decimal) Zero() decimal.Decimal { return decimal.Zero }

func (Decimal) Add(a, b decimal.Decimal) decimal.Decimal { return a.Add(b) }
func (Decimal) Sub(a, b decimal.Decimal) decimal.Decimal { return a.Sub(b) }
func (Decimal) Mul(a, b decimal.Decimal) decimal.Decimal { return a.Mul(b) }

func (Decimal) Div(a, b decimal.Decimal, scale int, mode RoundingMode) decimal.Decimal {
	// Resolve a few guard digits past the requested scale before rounding.
	q := a.DivRound(b, int32(scale)+4)
	switch mode {
	case RoundUp:
		return q.RoundUp(int32(scale))
	case RoundHalfUp:
		return q.Round(int32(scale))
	default:
		return q.Truncate(int32(scale))
	}
}

func (Decimal) Pow(a, b decimal.Decimal) decimal.Decimal { return a.Pow(b) }

func (Decimal) Cmp(a, b decimal.Decimal) int { return a.Cmp(b) }

func (Decimal) Abs(a decimal.Decimal) decimal.Decimal { return a.Abs() }
func (Decimal) Neg(a decimal.Decimal) decimal.Decimal { return a.Neg() }

func (Decimal) Parse(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

func (Decimal) FromInt(v int64) decimal.Decimal     { return decimal.NewFromInt(v) }
func (Decimal) FromFloat(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }
func (Decimal) ToInt(a decimal.Decimal) int64       { return a.IntPart() }

func (Decimal) Format(a decimal.Decimal) string { return a.String() }

func (Decimal) FormatRounded(a decimal.Decimal, digits int) string {
	return a.RoundCeil(int32(digits)).String()
}

func (Decimal) Name() string { return "decimal" }
