package workflow

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/HendryAvila/substrate/internal/value"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Matcher decides whether a transition condition holds for a signal, the
// caller-supplied mapping describing how a step went.
type Matcher interface {
	Match(condition string, signal map[string]any) bool
}

// Predicate is a named condition implemented in code.
type Predicate func(signal map[string]any) bool

// ConditionMatcher is the default Matcher. It understands:
//
//	always, default, else, *   match unconditionally
//	success                    no error indicator in the signal
//	failure, error, failed     an error indicator is present
//	!label                     negation
//	label                      signal[label] is truthy, signal["condition"]
//	                           equals label, or label is listed in
//	                           signal["conditions"] or signal["flags"]
//
// Anything that is not a bare label is an expr-lang boolean expression over
// the signal, e.g. `score > 0.8` or `status == "resolved"`. Evaluation
// errors, such as comparing a missing key, count as no match.
//
// Registered predicates take precedence over the built-in vocabulary.
type ConditionMatcher struct {
	mu     sync.RWMutex
	custom map[string]Predicate
}

// NewConditionMatcher returns a matcher with only the built-in vocabulary.
func NewConditionMatcher() *ConditionMatcher {
	return &ConditionMatcher{custom: map[string]Predicate{}}
}

// Register adds or replaces a named predicate.
func (m *ConditionMatcher) Register(name string, p Predicate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.custom[name] = p
}

// Match implements Matcher.
func (m *ConditionMatcher) Match(condition string, signal map[string]any) bool {
	label := strings.TrimSpace(condition)
	if label == "" {
		return false
	}

	m.mu.RLock()
	p, ok := m.custom[label]
	m.mu.RUnlock()
	if ok {
		return p(signal)
	}
	if rest, ok := strings.CutPrefix(label, "!"); ok && IsLabel(rest) {
		return !m.Match(rest, signal)
	}
	if !IsLabel(label) {
		return matchExpression(label, signal)
	}

	switch label {
	case "always", "default", "else", "*":
		return true
	case "success":
		return !HasError(signal)
	case "failure", "error", "failed":
		return HasError(signal)
	}

	if Truthy(signal[label]) {
		return true
	}
	if c, ok := signal["condition"].(string); ok && c == label {
		return true
	}
	return listContains(signal["conditions"], label) || listContains(signal["flags"], label)
}

var labelPattern = regexp.MustCompile(`^(\*|[A-Za-z_][A-Za-z0-9_]*)$`)

// IsLabel reports whether condition is a bare label rather than an
// expression.
func IsLabel(condition string) bool {
	return labelPattern.MatchString(condition)
}

// compiled caches expression programs by source text.
var compiled sync.Map

// CompileCondition checks that condition is a valid label or boolean
// expression and caches the compiled program.
func CompileCondition(condition string) (*vm.Program, error) {
	c := strings.TrimSpace(condition)
	if rest, ok := strings.CutPrefix(c, "!"); ok && IsLabel(rest) {
		return nil, nil
	}
	if IsLabel(c) {
		return nil, nil
	}
	if p, ok := compiled.Load(c); ok {
		return p.(*vm.Program), nil
	}
	program, err := expr.Compile(c, expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("compile condition %q: %w", c, err)
	}
	compiled.Store(c, program)
	return program, nil
}

func matchExpression(condition string, signal map[string]any) bool {
	program, err := CompileCondition(condition)
	if err != nil || program == nil {
		return false
	}
	env := make(map[string]any, len(signal))
	for k, v := range signal {
		if vv, ok := v.(value.Value); ok {
			v = value.ToAny(vv)
		}
		env[k] = v
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false
	}
	result, ok := out.(bool)
	return ok && result
}

// HasError reports whether the signal carries an error indicator.
func HasError(signal map[string]any) bool {
	if Truthy(signal["error"]) || Truthy(signal["errors"]) || Truthy(signal["failed"]) {
		return true
	}
	if b, ok := signal["success"].(bool); ok && !b {
		return true
	}
	if s, ok := signal["status"].(string); ok {
		switch strings.ToLower(s) {
		case "error", "failed", "failure":
			return true
		}
	}
	return false
}

// Truthy applies loose truthiness: nil, false, zero numbers, empty strings,
// "false", "no", "0" and empty collections are false.
func Truthy(v any) bool {
	if vv, ok := v.(value.Value); ok {
		v = value.ToAny(vv)
	}
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "", "false", "no", "0", "off":
			return false
		}
		return true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	default:
		return true
	}
}

func listContains(list any, label string) bool {
	if vv, ok := list.(value.Value); ok {
		list = value.ToAny(vv)
	}
	switch l := list.(type) {
	case string:
		for _, part := range strings.Split(l, ",") {
			if strings.TrimSpace(part) == label {
				return true
			}
		}
	case []string:
		for _, s := range l {
			if s == label {
				return true
			}
		}
	case []any:
		for _, s := range l {
			if fmt.Sprint(s) == label {
				return true
			}
		}
	case map[string]any:
		return Truthy(l[label])
	}
	return false
}
