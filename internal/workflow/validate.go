package workflow

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/HendryAvila/substrate/internal/templates"
)

// Violation names for DefinitionError.
const (
	ViolationMissingName     = "missing name"
	ViolationNoSteps         = "workflow has no steps"
	ViolationMissingStepID   = "step has no id"
	ViolationDuplicateStep   = "duplicate step id"
	ViolationDanglingGoto    = "dangling goto"
	ViolationEmptyCondition  = "empty condition"
	ViolationBadCondition    = "invalid condition"
	ViolationNoEntry         = "no entry step"
	ViolationAmbiguousEntry  = "ambiguous entry"
	ViolationBadInput        = "invalid input expression"
	ViolationUnknownOutput   = "output reference to unknown step"
	ViolationDuplicateName   = "duplicate workflow name"
	ViolationMalformedSource = "malformed definition"
)

// DefinitionError reports why one workflow definition was rejected.
type DefinitionError struct {
	Workflow  string
	Step      string
	Violation string
	Detail    string
	Source    string
}

func (e *DefinitionError) Error() string {
	msg := "workflow"
	if e.Workflow != "" {
		msg += fmt.Sprintf(" %q", e.Workflow)
	} else if e.Source != "" {
		msg += fmt.Sprintf(" (%s)", e.Source)
	}
	if e.Step != "" {
		msg += fmt.Sprintf(" step %q", e.Step)
	}
	msg += ": " + e.Violation
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// compile validates def in place and fills in the derived lookup fields.
// Every violation found is reported; a definition with more than one yields
// a joined error, see Violations.
func compile(def *Definition) error {
	var errs []error
	fail := func(step, violation, detail string) {
		errs = append(errs, &DefinitionError{Workflow: def.Name, Step: step, Violation: violation, Detail: detail, Source: def.Source})
	}

	if def.Name == "" {
		fail("", ViolationMissingName, "")
	}
	if len(def.Steps) == 0 {
		fail("", ViolationNoSteps, "")
		return errors.Join(errs...)
	}

	index := make(map[string]int, len(def.Steps))
	badIDs := false
	for i, s := range def.Steps {
		if s.ID == "" {
			fail("", ViolationMissingStepID, fmt.Sprintf("steps[%d]", i))
			badIDs = true
			continue
		}
		if _, dup := index[s.ID]; dup {
			fail(s.ID, ViolationDuplicateStep, "")
			badIDs = true
			continue
		}
		index[s.ID] = i
	}

	incoming := map[string]bool{}
	for _, s := range def.Steps {
		for _, b := range s.Next.Branches {
			if strings.TrimSpace(b.Condition) == "" {
				fail(s.ID, ViolationEmptyCondition, fmt.Sprintf("goto %q", b.Goto))
				continue
			}
			if _, err := CompileCondition(b.Condition); err != nil {
				fail(s.ID, ViolationBadCondition, err.Error())
			}
		}
		for _, target := range s.Next.Targets() {
			if _, ok := index[target]; !ok {
				fail(s.ID, ViolationDanglingGoto, fmt.Sprintf("no step %q", target))
				continue
			}
			if target != s.ID {
				incoming[target] = true
			}
		}
	}

	for i := range def.Steps {
		s := &def.Steps[i]
		for _, name := range sortedInputNames(s.Inputs) {
			in := s.Inputs[name]
			if err := in.compile(); err != nil {
				fail(s.ID, ViolationBadInput, fmt.Sprintf("%s: %v", name, err))
				continue
			}
			if in.Kind == InputExpression {
				for _, ref := range templates.OutputSteps(in.Expr) {
					if _, ok := index[ref]; !ok {
						fail(s.ID, ViolationUnknownOutput, fmt.Sprintf("%s reads $outputs.%s", name, ref))
					}
				}
			}
			s.Inputs[name] = in
		}
	}

	// Entry resolution is meaningless until step ids are sound.
	if !badIDs {
		entry, violation := findEntry(def.Steps, incoming)
		if violation != "" {
			fail("", violation, "")
		}
		def.entry = entry
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	def.index = index
	return nil
}

// Violations flattens an error returned while loading a definition into
// its individual violations.
func Violations(err error) []*DefinitionError {
	switch e := err.(type) {
	case nil:
		return nil
	case *DefinitionError:
		return []*DefinitionError{e}
	case interface{ Unwrap() []error }:
		var out []*DefinitionError
		for _, inner := range e.Unwrap() {
			out = append(out, Violations(inner)...)
		}
		return out
	}
	var defErr *DefinitionError
	if errors.As(err, &defErr) {
		return []*DefinitionError{defErr}
	}
	return nil
}

// findEntry picks the step a run starts at: the one marked entry, or else
// the only step no other step transitions to.
func findEntry(steps []Step, incoming map[string]bool) (string, string) {
	var marked []string
	for _, s := range steps {
		if s.Entry {
			marked = append(marked, s.ID)
		}
	}
	switch len(marked) {
	case 1:
		return marked[0], ""
	case 0:
	default:
		return "", ViolationAmbiguousEntry
	}

	var roots []string
	for _, s := range steps {
		if !incoming[s.ID] {
			roots = append(roots, s.ID)
		}
	}
	switch len(roots) {
	case 1:
		return roots[0], ""
	case 0:
		return "", ViolationNoEntry
	default:
		return "", ViolationAmbiguousEntry
	}
}

func sortedInputNames(inputs map[string]Input) []string {
	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
