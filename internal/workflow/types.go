// Package workflow loads and validates workflow definitions: named graphs of
// steps, each optionally bound to a tool, with declared inputs and outputs and
// transitions to the next step.
//
// Definitions are immutable once loaded. A Registry is built in one shot and
// replaced wholesale on reload (see Holder).
package workflow

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/HendryAvila/substrate/internal/templates"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when a workflow name is not in the registry.
var ErrNotFound = errors.New("workflow not found")

// Definition is a validated workflow graph.
type Definition struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Category    string   `yaml:"category,omitempty" json:"category,omitempty"`
	Tags        []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	Version     string   `yaml:"version,omitempty" json:"version,omitempty"`
	Steps       []Step   `yaml:"steps" json:"steps"`

	// Source names where the definition came from (file name or builtin).
	Source string `yaml:"-" json:"source,omitempty"`

	entry string
	index map[string]int
}

// Entry returns the id of the step a new run starts at.
func (d *Definition) Entry() string {
	return d.entry
}

// Step looks up a step by id.
func (d *Definition) Step(id string) (*Step, bool) {
	i, ok := d.index[id]
	if !ok {
		return nil, false
	}
	return &d.Steps[i], true
}

// StepIndex returns the declaration position of a step, or -1.
func (d *Definition) StepIndex(id string) int {
	if i, ok := d.index[id]; ok {
		return i
	}
	return -1
}

// Tools returns the distinct tools used by the workflow in step order.
func (d *Definition) Tools() []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range d.Steps {
		if s.Tool != "" && !seen[s.Tool] {
			seen[s.Tool] = true
			out = append(out, s.Tool)
		}
	}
	return out
}

// UsesTool reports whether any step is bound to tool.
func (d *Definition) UsesTool(tool string) bool {
	for _, s := range d.Steps {
		if s.Tool == tool {
			return true
		}
	}
	return false
}

// Summary is the listing form of a Definition.
type Summary struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Version     string   `json:"version,omitempty"`
	Steps       int      `json:"steps"`
	Tools       []string `json:"tools,omitempty"`
}

// Summarize returns the listing form of d.
func (d *Definition) Summarize() Summary {
	return Summary{
		Name:        d.Name,
		Description: d.Description,
		Category:    d.Category,
		Tags:        append([]string(nil), d.Tags...),
		Version:     d.Version,
		Steps:       len(d.Steps),
		Tools:       d.Tools(),
	}
}

// --- Steps ---

// Step is one node of a workflow graph. A step without a tool is a pure
// decision or gather point.
type Step struct {
	ID          string           `yaml:"id" json:"id"`
	Tool        string           `yaml:"tool,omitempty" json:"tool,omitempty"`
	Description string           `yaml:"description,omitempty" json:"description,omitempty"`
	Entry       bool             `yaml:"entry,omitempty" json:"entry,omitempty"`
	Inputs      map[string]Input `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Outputs     []Output         `yaml:"outputs,omitempty" json:"outputs,omitempty"`
	Next        Next             `yaml:"next,omitempty" json:"next,omitzero"`
}

// IsTerminal reports whether the step ends the workflow.
func (s *Step) IsTerminal() bool {
	return s.Next.IsTerminal()
}

// Output declares a named value a step produces.
type Output struct {
	Name        string `yaml:"name" json:"name"`
	Type        string `yaml:"type,omitempty" json:"type,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// UnmarshalYAML accepts either a bare output name or a mapping.
func (o *Output) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		o.Name = node.Value
		return nil
	}
	type plain Output
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*o = Output(p)
	return nil
}

// --- Inputs ---

// InputKind classifies a step input declaration.
type InputKind string

const (
	InputRequired   InputKind = "required"
	InputOptional   InputKind = "optional"
	InputExpression InputKind = "expression"
	InputLiteral    InputKind = "literal"
)

// Input is one parameter declaration. Required and optional inputs name a
// parameter the caller supplies; expressions pull from workflow inputs or
// earlier step outputs; anything else is a literal value.
type Input struct {
	Kind  InputKind
	Raw   any
	Expr  templates.Expr
	Value any
}

// UnmarshalYAML captures the raw declaration. Expressions are parsed during
// validation so errors can name the step.
func (in *Input) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	in.Raw = raw
	return nil
}

// MarshalJSON renders the declaration as written.
func (in Input) MarshalJSON() ([]byte, error) {
	return json.Marshal(in.Raw)
}

// MarshalYAML renders the declaration as written.
func (in Input) MarshalYAML() (interface{}, error) {
	return in.Raw, nil
}

// compile classifies the raw declaration.
func (in *Input) compile() error {
	s, ok := in.Raw.(string)
	switch {
	case in.Raw == nil:
		in.Kind = InputOptional
	case !ok:
		in.Kind, in.Value = InputLiteral, in.Raw
	case s == string(InputRequired):
		in.Kind = InputRequired
	case s == string(InputOptional):
		in.Kind = InputOptional
	case templates.IsExpression(s):
		expr, err := templates.ParseExpression(s)
		if err != nil {
			return err
		}
		in.Kind, in.Expr = InputExpression, expr
	default:
		in.Kind, in.Value = InputLiteral, s
	}
	return nil
}

// --- Transitions ---

// Transition is one conditional edge. Conditions are evaluated in declared
// order and the first match wins.
type Transition struct {
	Condition string `yaml:"condition" json:"condition"`
	Goto      string `yaml:"goto" json:"goto"`
}

// Next holds either a single unconditional target or an ordered list of
// conditional transitions. The zero value is terminal.
type Next struct {
	Step     string
	Branches []Transition
}

// IsTerminal reports whether there is no outgoing edge.
func (n Next) IsTerminal() bool {
	return n.Step == "" && len(n.Branches) == 0
}

// IsConditional reports whether the edge depends on a condition.
func (n Next) IsConditional() bool {
	return len(n.Branches) > 0
}

// Targets returns every step id the edge can lead to, in declared order.
func (n Next) Targets() []string {
	if n.Step != "" {
		return []string{n.Step}
	}
	out := make([]string, 0, len(n.Branches))
	for _, b := range n.Branches {
		out = append(out, b.Goto)
	}
	return out
}

// Resolve picks the target for the given signal. ok is false when no
// condition matches or the edge is terminal.
func (n Next) Resolve(m Matcher, signal map[string]any) (string, bool) {
	if n.Step != "" {
		return n.Step, true
	}
	for _, b := range n.Branches {
		if m.Match(b.Condition, signal) {
			return b.Goto, true
		}
	}
	return "", false
}

// IsZero lets omitempty drop terminal edges.
func (n Next) IsZero() bool {
	return n.IsTerminal()
}

// UnmarshalYAML accepts a step id or a list of {condition, goto} pairs.
func (n *Next) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			*n = Next{}
			return nil
		}
		n.Step = node.Value
		return nil
	case yaml.SequenceNode:
		var branches []Transition
		if err := node.Decode(&branches); err != nil {
			return err
		}
		n.Branches = branches
		return nil
	default:
		return fmt.Errorf("line %d: next must be a step id or a list of {condition, goto}", node.Line)
	}
}

// MarshalYAML renders the edge in the same shape it is read.
func (n Next) MarshalYAML() (interface{}, error) {
	if n.Step != "" {
		return n.Step, nil
	}
	if len(n.Branches) > 0 {
		return n.Branches, nil
	}
	return nil, nil
}

// MarshalJSON renders the edge as a string, a list, or null.
func (n Next) MarshalJSON() ([]byte, error) {
	v, _ := n.MarshalYAML()
	return json.Marshal(v)
}

// --- Step references ---

// StepRef points at one step inside one workflow.
type StepRef struct {
	Workflow string `json:"workflow"`
	Step     string `json:"step"`
	Index    int    `json:"index"`
}

// --- Input resolution ---

// Resolve evaluates the declaration for parameter param. Required and
// optional inputs read inputs[param]; expressions are evaluated against
// outputs and inputs; literals resolve to themselves. ok is false when the
// value is unresolved.
func (in Input) Resolve(param string, outputs map[string]map[string]any, inputs map[string]any) (any, bool) {
	switch in.Kind {
	case InputExpression:
		return templates.Evaluate(in.Expr, outputs, inputs)
	case InputRequired, InputOptional:
		return templates.Evaluate(templates.InputRef{Name: param}, outputs, inputs)
	case InputLiteral:
		return templates.Evaluate(templates.Literal{Value: in.Value}, outputs, inputs)
	default:
		return nil, false
	}
}

// ResolveInputs resolves every input of the step. Unresolved parameters are
// omitted from params and returned, sorted, in missing.
func (s *Step) ResolveInputs(outputs map[string]map[string]any, inputs map[string]any) (params map[string]any, missing []string) {
	params = make(map[string]any, len(s.Inputs))
	for _, name := range sortedInputNames(s.Inputs) {
		v, ok := s.Inputs[name].Resolve(name, outputs, inputs)
		if !ok {
			missing = append(missing, name)
			continue
		}
		params[name] = v
	}
	return params, missing
}
