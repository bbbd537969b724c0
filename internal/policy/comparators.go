package policy

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Comparator evaluates (actual, expected) and reports whether the
// constraint holds. A non-nil error means the comparator itself could not
// run against these operand types (emitted as "comparison error for
// <path>: <err>" by the caller, never a panic).
type Comparator func(actual, expected any) (bool, error)

// compareEnv is the expr-lang evaluation environment for the generic
// relational comparators: the rule evaluator compiles a tiny expression per
// comparator kind once, at registry-build time, and runs it per fact.
type compareEnv struct {
	Actual   any `expr:"actual"`
	Expected any `expr:"expected"`
}

var exprPrograms = map[string]*vm.Program{}

func init() {
	exprs := map[string]string{
		"eq":  "actual == expected",
		"ne":  "actual != expected",
		"gt":  "actual > expected",
		"gte": "actual >= expected",
		"min": "actual >= expected",
		"lt":  "actual < expected",
		"lte": "actual <= expected",
		"max": "actual <= expected",
		"in":  "actual in expected",
	}
	for name, src := range exprs {
		prog, err := expr.Compile(src, expr.Env(compareEnv{}), expr.AllowUndefinedVariables())
		if err != nil {
			panic(fmt.Sprintf("policy: failed to compile built-in comparator %q: %v", name, err))
		}
		exprPrograms[name] = prog
	}
}

func runExpr(name string, actual, expected any) (bool, error) {
	prog, ok := exprPrograms[name]
	if !ok {
		return false, fmt.Errorf("unknown comparator: %s", name)
	}
	out, err := expr.Run(prog, compareEnv{Actual: actual, Expected: expected})
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("comparator %q did not yield a boolean", name)
	}
	return b, nil
}

// Comparators is the pluggable comparator table, keyed by op name, adapted
// from the original comparator-registry shape: regex/before/after need
// type-specific handling the generic expr path can't give them, so they're
// implemented directly while the relational family shares one expr runner.
var Comparators = map[string]Comparator{
	"eq":  func(a, e any) (bool, error) { return runExpr("eq", a, e) },
	"ne":  func(a, e any) (bool, error) { return runExpr("ne", a, e) },
	"gt":  func(a, e any) (bool, error) { return runExpr("gt", a, e) },
	"gte": func(a, e any) (bool, error) { return runExpr("gte", a, e) },
	"min": func(a, e any) (bool, error) { return runExpr("min", a, e) },
	"lt":  func(a, e any) (bool, error) { return runExpr("lt", a, e) },
	"lte": func(a, e any) (bool, error) { return runExpr("lte", a, e) },
	"max": func(a, e any) (bool, error) { return runExpr("max", a, e) },
	"in":  func(a, e any) (bool, error) { return runExpr("in", a, e) },
	"not_in": func(a, e any) (bool, error) {
		ok, err := runExpr("in", a, e)
		if err != nil {
			return false, err
		}
		return !ok, nil
	},
	"contains":  comparatorContains,
	"regex":     comparatorRegex,
	"before":    comparatorBefore,
	"after":     comparatorAfter,
}

func comparatorContains(actual, expected any) (bool, error) {
	switch av := actual.(type) {
	case string:
		es, ok := expected.(string)
		if !ok {
			return false, fmt.Errorf("contains expects a string operand, got %T", expected)
		}
		return strings.Contains(av, es), nil
	case []any:
		for _, v := range av {
			if v == expected {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("contains not supported for %T", actual)
	}
}

func comparatorRegex(actual, expected any) (bool, error) {
	as, ok := actual.(string)
	if !ok {
		return false, fmt.Errorf("regex comparator requires a string actual value, got %T", actual)
	}
	pattern, ok := expected.(string)
	if !ok {
		return false, fmt.Errorf("regex comparator requires a string pattern, got %T", expected)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(as), nil
}

func comparatorBefore(actual, expected any) (bool, error) {
	at, et, err := parseTimePair(actual, expected)
	if err != nil {
		return false, err
	}
	return at.Before(et), nil
}

func comparatorAfter(actual, expected any) (bool, error) {
	at, et, err := parseTimePair(actual, expected)
	if err != nil {
		return false, err
	}
	return at.After(et), nil
}

func parseTimePair(actual, expected any) (time.Time, time.Time, error) {
	as, ok := actual.(string)
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("expected an ISO-8601 string actual value, got %T", actual)
	}
	es, ok := expected.(string)
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("expected an ISO-8601 string operand, got %T", expected)
	}
	at, err := time.Parse(time.RFC3339, as)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid timestamp %q: %w", as, err)
	}
	et, err := time.Parse(time.RFC3339, es)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid timestamp %q: %w", es, err)
	}
	return at, et, nil
}
