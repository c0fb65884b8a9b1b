package levels

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"cyberlevels/core"
	"cyberlevels/formula"
	"cyberlevels/numeric"
)

// DefaultComboWindow is how long consecutive experience changes keep being
// summed for display purposes.
const DefaultComboWindow = 650 * time.Millisecond

// ProgressStyle controls progress-bar rendering.
type ProgressStyle struct {
	Bar        string // the glyph run that gets split at the completion point
	Complete   string // prefix before the completed part
	Incomplete string // prefix before the remaining part
	End        string // suffix after the bar
}

// Options configure a registry. The zero value is not valid; use
// DefaultOptions as a base.
type Options struct {
	StartLevel int64
	StartExp   int64
	MaxLevel   int64

	// Formula is the default required-experience expression shared by every
	// level; CustomFormulas overrides it for specific level numbers.
	Formula        string
	CustomFormulas map[int64]string

	RoundingEnabled bool
	RoundingDigits  int

	// PreventDuplicateRewards suppresses re-granting rewards for levels the
	// player has already been rewarded for across non-monotonic changes.
	PreventDuplicateRewards bool
	// AddLevelRewards makes level-grant operations walk one level at a time
	// so each crossed level can dispatch its rewards.
	AddLevelRewards bool

	// StackComboExp sums consecutive changes within ComboWindow for display.
	StackComboExp bool
	ComboWindow   time.Duration

	Progress ProgressStyle

	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// DefaultOptions mirrors the stock plugin configuration.
func DefaultOptions() Options {
	return Options{
		StartLevel:              1,
		StartExp:                0,
		MaxLevel:                100,
		Formula:                 "100 + (10 * {level})",
		RoundingEnabled:         true,
		RoundingDigits:          2,
		PreventDuplicateRewards: true,
		AddLevelRewards:         true,
		StackComboExp:           true,
		ComboWindow:             DefaultComboWindow,
		Progress: ProgressStyle{
			Bar:        "||||||||||",
			Complete:   "&a",
			Incomplete: "&7",
			End:        "&r",
		},
	}
}

// System is the level registry: it owns the closed range of valid levels
// [StartLevel, MaxLevel], one Level per integer, and the global policy knobs.
// It is read-only after construction (a reload builds a new System); no
// locking is required around it.
type System[N any] struct {
	op     numeric.Operator[N]
	opts   Options
	levels map[int64]*Level[N]
	def    formula.Formula[N]
	custom map[int64]formula.Formula[N]
	now    func() time.Time
}

// NewSystem builds the registry, creating a Level for every integer in
// [StartLevel, MaxLevel]. Formulas are compiled lazily (placeholder
// substitution happens per evaluation) but validated for presence here.
func NewSystem[N any](op numeric.Operator[N], opts Options) (*System[N], error) {
	if op == nil {
		return nil, fmt.Errorf("levels: nil operator")
	}
	if opts.StartLevel > opts.MaxLevel {
		return nil, fmt.Errorf("levels: start level %d above max level %d", opts.StartLevel, opts.MaxLevel)
	}
	if strings.TrimSpace(opts.Formula) == "" {
		return nil, fmt.Errorf("levels: empty default formula")
	}
	if opts.ComboWindow <= 0 {
		opts.ComboWindow = DefaultComboWindow
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	s := &System[N]{
		op:     op,
		opts:   opts,
		levels: make(map[int64]*Level[N], opts.MaxLevel-opts.StartLevel+1),
		def:    formula.New(op, opts.Formula),
		custom: make(map[int64]formula.Formula[N], len(opts.CustomFormulas)),
		now:    now,
	}
	for n, expr := range opts.CustomFormulas {
		if n < opts.StartLevel || n > opts.MaxLevel {
			return nil, fmt.Errorf("levels: custom formula for out-of-range level %d", n)
		}
		if strings.TrimSpace(expr) == "" {
			return nil, fmt.Errorf("levels: empty custom formula for level %d", n)
		}
		s.custom[n] = formula.New(op, expr)
	}
	for n := opts.StartLevel; n <= opts.MaxLevel; n++ {
		f, custom := s.custom[n]
		if !custom {
			f = s.def
		}
		s.levels[n] = &Level[N]{number: n, formula: f, custom: custom}
	}
	return s, nil
}

// Operator returns the numeric policy every component of this system uses.
func (s *System[N]) Operator() numeric.Operator[N] { return s.op }

func (s *System[N]) StartLevel() int64 { return s.opts.StartLevel }
func (s *System[N]) StartExp() int64   { return s.opts.StartExp }
func (s *System[N]) MaxLevel() int64   { return s.opts.MaxLevel }

// Options returns a copy of the policy knobs.
func (s *System[N]) Options() Options { return s.opts }

// Level returns the descriptor for the given number, or nil outside
// [StartLevel, MaxLevel].
func (s *System[N]) Level(n int64) *Level[N] { return s.levels[n] }

// Levels returns every level in ascending order.
func (s *System[N]) Levels() []*Level[N] {
	out := make([]*Level[N], 0, len(s.levels))
	for n := s.opts.StartLevel; n <= s.opts.MaxLevel; n++ {
		out = append(out, s.levels[n])
	}
	return out
}

// CustomFormula returns the override for the given level, if any.
func (s *System[N]) CustomFormula(n int64) (formula.Formula[N], bool) {
	f, ok := s.custom[n]
	return f, ok
}

// DefaultFormula returns the shared default formula.
func (s *System[N]) DefaultFormula() formula.Formula[N] { return s.def }

// requiredExp resolves the threshold leading out of the given level for the
// supplied placeholder values. The registry clamps nothing; that is the
// progression state's job.
func (s *System[N]) requiredExp(level int64, vars map[string]string) (N, error) {
	lvl := s.levels[level]
	if lvl == nil {
		var zero N
		return zero, core.NewEvaluationError("", fmt.Sprintf("no formula for level %d", level))
	}
	return lvl.formula.Evaluate(vars)
}

// RequiredExp computes the experience needed, while at the given level, to
// advance to the next one, in the requesting user's context.
func (s *System[N]) RequiredExp(level int64, u *User[N]) (N, error) {
	return s.requiredExp(level, u.FormulaVars())
}

// RoundedString renders an amount for display, honoring the rounding policy.
func (s *System[N]) RoundedString(v N) string {
	if s.opts.RoundingEnabled {
		return s.op.FormatRounded(v, s.opts.RoundingDigits)
	}
	return s.op.Format(v)
}

// Percent renders the whole-number percentage of exp toward requiredExp.
// Division truncates so 100 is only ever reported once the threshold is met.
func (s *System[N]) Percent(exp, requiredExp N) string {
	op := s.op
	if op.Cmp(requiredExp, op.Zero()) == 0 {
		return "0"
	}
	if op.Cmp(exp, requiredExp) >= 0 {
		return "100"
	}
	scaled := op.Mul(exp, op.FromInt(100))
	return strconv.FormatInt(op.ToInt(op.Div(scaled, requiredExp, 0, numeric.RoundDown)), 10)
}

// ProgressBar renders the configured bar split at the completion point.
func (s *System[N]) ProgressBar(exp, requiredExp N) string {
	op := s.op
	st := s.opts.Progress

	def := st.Complete + st.Incomplete + st.Bar + st.End
	if op.Cmp(requiredExp, op.Zero()) == 0 {
		return def
	}

	length := int64(len([]rune(st.Bar)))
	scaled := op.Mul(exp, op.FromInt(length))
	completion := op.ToInt(op.Div(scaled, requiredExp, 0, numeric.RoundDown))
	if completion > length {
		completion = length
	}
	if completion <= 0 {
		return def
	}

	runes := []rune(st.Bar)
	return st.Complete + string(runes[:completion]) + st.Incomplete + string(runes[completion:]) + st.End
}

// ReplacePlaceholders substitutes the fixed token set into a string using the
// user's current state. With safeForFormula set, only tokens that expand to
// plain numerals are substituted, so the result can feed a formula.
func (s *System[N]) ReplacePlaceholders(str string, u *User[N], safeForFormula bool) (string, error) {
	if safeForFormula {
		for k, v := range u.FormulaVars() {
			str = strings.ReplaceAll(str, "{"+k+"}", v)
		}
		return str, nil
	}

	required, err := u.RequiredExp()
	if err != nil {
		return "", err
	}
	exp := u.Exp()
	pairs := []string{
		"{playerEXP}", s.RoundedString(exp),
		"{requiredEXP}", s.RoundedString(required),
		"{percent}", s.Percent(exp, required),
		"{progressBar}", s.ProgressBar(exp, required),
		"{player}", u.Name(),
		"{playerDisplayName}", u.DisplayName(),
		"{playerUUID}", string(u.ID()),
	}
	for k, v := range u.FormulaVars() {
		if k == "playerEXP" {
			continue
		}
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(str), nil
}

// NewUser creates a fresh progression state at the configured start values.
func (s *System[N]) NewUser(id core.UserID, name string) *User[N] {
	return &User[N]{
		system:          s,
		op:              s.op,
		id:              id,
		name:            name,
		level:           s.opts.StartLevel,
		exp:             s.op.FromInt(s.opts.StartExp),
		highestRewarded: s.opts.StartLevel,
		lastAmount:      s.op.Zero(),
	}
}
