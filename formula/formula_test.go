package formula

import (
	"errors"
	"testing"

	"cyberlevels/core"
	"cyberlevels/numeric"
)

func evalF(t *testing.T, expr string, vars map[string]string) float64 {
	t.Helper()
	v, err := New[float64](numeric.Float64{}, expr).Evaluate(vars)
	if err != nil {
		t.Fatalf("evaluate %q: %v", expr, err)
	}
	return v
}

func TestEvaluateArithmetic(t *testing.T) {
	cases := []struct {
		expr string
		want float64
	}{
		{"100", 100},
		{"25 * 4", 100},
		{"2 + 3 * 4", 14},
		{"(2 + 3) * 4", 20},
		{"10 - 2 - 3", 5},
		{"2 ^ 3 ^ 2", 512}, // right associative
		{"-5 + 10", 5},
		{"100 / 8", 12.5},
		{"-(2 + 3)", -5},
	}
	for _, c := range cases {
		if got := evalF(t, c.expr, nil); got != c.want {
			t.Fatalf("%q = %v, want %v", c.expr, got, c.want)
		}
	}
}

func TestEvaluatePlaceholders(t *testing.T) {
	vars := map[string]string{"level": "3", "playerEXP": "50"}
	if got := evalF(t, "25 * {level}", vars); got != 75 {
		t.Fatalf("got %v", got)
	}
	if got := evalF(t, "100 + 5 ^ ({level} - 1)", vars); got != 125 {
		t.Fatalf("got %v", got)
	}
}

func TestEvaluateIsPureGivenSameVars(t *testing.T) {
	f := New[float64](numeric.Float64{}, "{level} * 10 + {playerEXP}")
	vars := map[string]string{"level": "2", "playerEXP": "5"}
	a, err := f.Evaluate(vars)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := f.Evaluate(vars)
	if a != b || a != 25 {
		t.Fatalf("expected stable 25, got %v and %v", a, b)
	}
}

func TestEvaluateErrors(t *testing.T) {
	bad := []string{
		"25 * {level}", // no vars supplied
		"1 +",
		"(1 + 2",
		"1 2",
		"",
		"2 & 2",
		"1 / 0",
		"abc",
	}
	for _, expr := range bad {
		_, err := New[float64](numeric.Float64{}, expr).Evaluate(nil)
		if err == nil {
			t.Fatalf("expected error for %q", expr)
		}
		var ee *core.EvaluationError
		if !errors.As(err, &ee) {
			t.Fatalf("expected EvaluationError for %q, got %T", expr, err)
		}
	}
}

func TestEvaluateDecimalPolicy(t *testing.T) {
	f := New(numeric.Decimal{}, "0.1 + 0.2")
	v, err := f.Evaluate(nil)
	if err != nil {
		t.Fatal(err)
	}
	if (numeric.Decimal{}).Format(v) != "0.3" {
		t.Fatalf("decimal evaluation must be exact, got %s", (numeric.Decimal{}).Format(v))
	}
}
