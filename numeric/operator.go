// Package numeric defines the arithmetic policy used by the leveling core.
//
// Every arithmetic or comparison primitive in the core routes through an
// Operator; no component touches the underlying representation directly. A
// deployment commits to exactly one policy at startup and all user records
// share that numeric type for the lifetime of the configuration.
package numeric

// RoundingMode selects how Div resolves inexact quotients.
type RoundingMode int

const (
	// RoundDown truncates toward zero. Progress and percent math uses this
	// so a bar never reports 100% before the threshold is actually met.
	RoundDown RoundingMode = iota
	RoundUp
	RoundHalfUp
)

// Operator is the pluggable arithmetic policy over an opaque numeric type.
type Operator[N any] interface {
	Zero() N
	Add(a, b N) N
	Sub(a, b N) N
	Mul(a, b N) N
	// Div divides a by b, keeping scale fractional digits resolved by mode.
	Div(a, b N, scale int, mode RoundingMode) N
	// Pow raises a to the power b. Fractional exponents are only supported
	// by policies whose representation can express the result.
	Pow(a, b N) N
	// Cmp returns -1, 0 or +1 as a is less than, equal to, or greater than b.
	Cmp(a, b N) int
	Abs(a N) N
	Neg(a N) N
	// Parse converts a decimal numeral. The error is raw; callers that
	// accept free-form input wrap it in a core.FormatError.
	Parse(s string) (N, error)
	FromInt(v int64) N
	FromFloat(v float64) N
	// ToInt truncates toward zero.
	ToInt(a N) int64
	// Format renders the full-precision value, round-trippable via Parse.
	Format(a N) string
	// FormatRounded renders with exactly digits fractional digits, rounding
	// toward positive infinity (display only, storage keeps full precision).
	FormatRounded(a N, digits int) string
	// Name identifies the policy in configuration and logs.
	Name() string
}
