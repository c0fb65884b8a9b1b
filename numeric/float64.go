package numeric

import (
	"errors"
	"math"
	"strconv"
)

// Float64 is the fast, low-precision policy backed by native floats.
type Float64 struct{}

var _ Operator[float64] = Float64{}

func (Float64) Zero() float64       { return 0 }
func (Float64) Add(a, b float64) float64 { return a + b }
func (Float64) Sub(a, b float64) float64 { return a - b }
func (Float64) Mul(a, b float64) float64 { return a * b }

func (Float64) Div(a, b float64, scale int, mode RoundingMode) float64 {
	q := a / b
	p := math.Pow10(scale)
	switch mode {
	case RoundUp:
		return sign(q) * math.Ceil(math.Abs(q)*p) / p
	case RoundHalfUp:
		return math.Round(q*p) / p
	default:
		return math.Trunc(q*p) / p
	}
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

func (Float64) Pow(a, b float64) float64 { return math.Pow(a, b) }

func (Float64) Cmp(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (Float64) Abs(a float64) float64 { return math.Abs(a) }
func (Float64) Neg(a float64) float64 { return -a }

func (Float64) Parse(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("not a finite number")
	}
	return v, nil
}

func (Float64) FromInt(v int64) float64     { return float64(v) }
func (Float64) FromFloat(v float64) float64 { return v }
func (Float64) ToInt(a float64) int64       { return int64(math.Trunc(a)) }

func (Float64) Format(a float64) string {
	return strconv.FormatFloat(a, 'f', -1, 64)
}

func (Float64) FormatRounded(a float64, digits int) string {
	p := math.Pow10(digits)
	return strconv.FormatFloat(math.Ceil(a*p)/p, 'f', -1, 64)
}

func (Float64) Name() string { return "float64" }
