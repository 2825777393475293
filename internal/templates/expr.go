package templates

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/HendryAvila/substrate/internal/value"
)

// Expr is a parsed reference expression. The grammar is:
//
//	expr    = operand { "||" operand }
//	operand = "$inputs." name
//	        | "$outputs." step "." name
//	        | literal
//
// Expr is sealed: InputRef, OutputRef, Fallback and Literal implement it.
type Expr interface {
	fmt.Stringer
	expr()
}

// InputRef reads a value supplied to the workflow invocation.
type InputRef struct {
	Name string
}

// OutputRef reads an output produced by an earlier step.
type OutputRef struct {
	Step string
	Name string
}

// Fallback evaluates Left and, if it is unresolved or empty, Right.
type Fallback struct {
	Left  Expr
	Right Expr
}

// Literal is a constant operand.
type Literal struct {
	Value any
}

func (InputRef) expr()  {}
func (OutputRef) expr() {}
func (Fallback) expr()  {}
func (Literal) expr()   {}

func (e InputRef) String() string  { return "$inputs." + e.Name }
func (e OutputRef) String() string { return "$outputs." + e.Step + "." + e.Name }
func (e Fallback) String() string  { return e.Left.String() + " || " + e.Right.String() }
func (e Literal) String() string {
	if s, ok := e.Value.(string); ok {
		return strconv.Quote(s)
	}
	return fmt.Sprint(e.Value)
}

const (
	inputsPrefix  = "$inputs."
	outputsPrefix = "$outputs."
)

// IsExpression reports whether s uses the reference-expression grammar
// rather than being a plain literal.
func IsExpression(s string) bool {
	t := strings.TrimSpace(s)
	return strings.HasPrefix(t, "$") || strings.Contains(t, "||")
}

// ParseExpression parses src into an Expr. Fallback chains associate to
// the right: "a || b || c" is Fallback{a, Fallback{b, c}}.
func ParseExpression(src string) (Expr, error) {
	parts, err := splitFallback(src)
	if err != nil {
		return nil, err
	}

	operands := make([]Expr, len(parts))
	for i, p := range parts {
		op, err := parseOperand(p)
		if err != nil {
			return nil, fmt.Errorf("expression %q: %w", src, err)
		}
		operands[i] = op
	}

	out := operands[len(operands)-1]
	for i := len(operands) - 2; i >= 0; i-- {
		out = Fallback{Left: operands[i], Right: out}
	}
	return out, nil
}

// splitFallback splits on "||" outside of quoted literals.
func splitFallback(src string) ([]string, error) {
	var parts []string
	var quote byte
	start := 0
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case quote != 0:
			if c == '\\' && quote == '"' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '|' && i+1 < len(src) && src[i+1] == '|':
			parts = append(parts, src[start:i])
			i++
			start = i + 1
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("expression %q: unterminated quote", src)
	}
	return append(parts, src[start:]), nil
}

func parseOperand(raw string) (Expr, error) {
	s := strings.TrimSpace(raw)
	switch {
	case s == "":
		return nil, fmt.Errorf("empty operand")

	case strings.HasPrefix(s, inputsPrefix):
		name := strings.TrimPrefix(s, inputsPrefix)
		if !validPath(name) {
			return nil, fmt.Errorf("invalid input name %q", name)
		}
		return InputRef{Name: name}, nil

	case strings.HasPrefix(s, outputsPrefix):
		rest := strings.TrimPrefix(s, outputsPrefix)
		step, name, ok := strings.Cut(rest, ".")
		if !ok || !validPath(step) || !validPath(name) {
			return nil, fmt.Errorf("output reference %q must be $outputs.<step>.<name>", s)
		}
		return OutputRef{Step: step, Name: name}, nil

	case strings.HasPrefix(s, "$"):
		return nil, fmt.Errorf("unknown reference %q: use $inputs. or $outputs.", s)

	case strings.HasPrefix(s, `"`):
		unq, err := strconv.Unquote(s)
		if err != nil {
			return nil, fmt.Errorf("invalid string literal %s: %w", s, err)
		}
		return Literal{Value: unq}, nil

	case strings.HasPrefix(s, "'"):
		if len(s) < 2 || !strings.HasSuffix(s, "'") {
			return nil, fmt.Errorf("invalid string literal %s", s)
		}
		return Literal{Value: s[1 : len(s)-1]}, nil
	}

	switch s {
	case "true":
		return Literal{Value: true}, nil
	case "false":
		return Literal{Value: false}, nil
	case "null":
		return Literal{Value: nil}, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Literal{Value: n}, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return Literal{Value: f}, nil
	}
	return Literal{Value: s}, nil
}

func validPath(s string) bool {
	if s == "" || strings.HasPrefix(s, ".") || strings.HasSuffix(s, ".") {
		return false
	}
	for _, r := range s {
		ok := r == '_' || r == '-' || r == '.' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			return false
		}
	}
	return true
}

// Evaluate resolves e against the outputs produced so far and the workflow
// inputs. The bool result is false when the expression is unresolved: its
// source data does not exist yet (or is empty). That is not an error.
// Values are returned as stored, without coercion.
func Evaluate(e Expr, outputs map[string]map[string]any, inputs map[string]any) (any, bool) {
	switch x := e.(type) {
	case InputRef:
		v, ok := lookup(inputs, x.Name)
		if !ok || isEmpty(v) {
			return nil, false
		}
		return v, true

	case OutputRef:
		stepOut, ok := outputs[x.Step]
		if !ok {
			return nil, false
		}
		v, ok := lookup(stepOut, x.Name)
		if !ok || isEmpty(v) {
			return nil, false
		}
		return v, true

	case Fallback:
		if v, ok := Evaluate(x.Left, outputs, inputs); ok {
			return v, true
		}
		return Evaluate(x.Right, outputs, inputs)

	case Literal:
		if isEmpty(x.Value) {
			return nil, false
		}
		return x.Value, true

	default:
		return nil, false
	}
}

// OutputSteps lists the step ids an expression reads from.
func OutputSteps(e Expr) []string {
	switch x := e.(type) {
	case OutputRef:
		return []string{x.Step}
	case Fallback:
		return append(OutputSteps(x.Left), OutputSteps(x.Right)...)
	default:
		return nil
	}
}

// isEmpty treats nil, "", and empty collections as absent. Zero numbers and
// false are real values.
func isEmpty(v any) bool {
	if vv, ok := v.(value.Value); ok {
		v = value.ToAny(vv)
	}
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []any:
		return len(x) == 0
	case []string:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	default:
		return isNull(v)
	}
}
