// Package execution tracks the live state of workflow runs.
//
// A Context is a plain value. The Tracker turns (context, event) into a new
// context and never mutates its input, so callers can persist and restore
// contexts freely.
package execution

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/HendryAvila/substrate/internal/workflow"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned by Begin for an unknown workflow.
	ErrNotFound = workflow.ErrNotFound

	// ErrUnknownStep is returned when a step id is not part of the workflow.
	ErrUnknownStep = errors.New("unknown step")

	// ErrNoMatchingTransition is returned when no condition of a
	// conditional step matches the signal.
	ErrNoMatchingTransition = errors.New("no matching transition")

	// ErrCompleted is returned when recording a step on a finished run.
	ErrCompleted = errors.New("workflow run already completed")
)

// timeNow is a package-level variable for testability.
var timeNow = time.Now

// newID is a package-level variable for testability.
var newID = func() string { return uuid.NewString() }

// Status of a run.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Context is the state of one workflow run.
type Context struct {
	ID          string                    `json:"id"`
	Workflow    string                    `json:"workflow"`
	CurrentStep string                    `json:"current_step,omitempty"`
	Status      Status                    `json:"status"`
	Inputs      map[string]any            `json:"inputs"`
	Outputs     map[string]map[string]any `json:"outputs"`
	History     []string                  `json:"history"`
	CreatedAt   time.Time                 `json:"created_at"`
	UpdatedAt   time.Time                 `json:"updated_at"`
}

// Clone returns a copy that shares no maps or slices with c. Values inside
// the maps are copied shallowly.
func (c Context) Clone() Context {
	out := c
	out.Inputs = maps.Clone(c.Inputs)
	if out.Inputs == nil {
		out.Inputs = map[string]any{}
	}
	out.Outputs = make(map[string]map[string]any, len(c.Outputs))
	for step, vals := range c.Outputs {
		out.Outputs[step] = maps.Clone(vals)
	}
	out.History = append([]string(nil), c.History...)
	return out
}

// IsDone reports whether the run reached a terminal step.
func (c Context) IsDone() bool {
	return c.Status == StatusCompleted
}

// Tracker starts and advances workflow runs against a catalog.
type Tracker struct {
	catalog workflow.Catalog
	matcher workflow.Matcher
}

// NewTracker creates a Tracker. A nil matcher uses the default condition
// vocabulary.
func NewTracker(catalog workflow.Catalog, matcher workflow.Matcher) *Tracker {
	if matcher == nil {
		matcher = workflow.NewConditionMatcher()
	}
	return &Tracker{catalog: catalog, matcher: matcher}
}

// Begin starts a run of the named workflow at its entry step.
func (t *Tracker) Begin(name string, inputs map[string]any) (Context, error) {
	def, err := t.catalog.Get(name)
	if err != nil {
		return Context{}, err
	}
	now := timeNow().UTC()
	in := maps.Clone(inputs)
	if in == nil {
		in = map[string]any{}
	}
	return Context{
		ID:          newID(),
		Workflow:    def.Name,
		CurrentStep: def.Entry(),
		Status:      StatusActive,
		Inputs:      in,
		Outputs:     map[string]map[string]any{},
		History:     []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// RecordStepCompletion records that stepID finished with outputs and
// advances the run. The step's transitions are evaluated against signal;
// a nil signal means the outputs are the signal. A terminal step completes
// the run.
func (t *Tracker) RecordStepCompletion(c Context, stepID string, outputs, signal map[string]any) (Context, error) {
	if c.IsDone() {
		return c, fmt.Errorf("%w: %s", ErrCompleted, c.ID)
	}
	def, err := t.catalog.Get(c.Workflow)
	if err != nil {
		return c, err
	}
	step, ok := def.Step(stepID)
	if !ok {
		return c, fmt.Errorf("%w: %q is not a step of workflow %q", ErrUnknownStep, stepID, def.Name)
	}

	if signal == nil {
		signal = outputs
	}
	next := ""
	if !step.IsTerminal() {
		target, ok := step.Next.Resolve(t.matcher, signal)
		if !ok {
			return c, fmt.Errorf("%w: step %q of workflow %q (conditions: %v)",
				ErrNoMatchingTransition, stepID, def.Name, conditions(step.Next))
		}
		next = target
	}

	out := c.Clone()
	merged := out.Outputs[stepID]
	if merged == nil {
		merged = make(map[string]any, len(outputs))
	}
	maps.Copy(merged, outputs)
	out.Outputs[stepID] = merged
	out.History = append(out.History, stepID)
	out.UpdatedAt = timeNow().UTC()

	if next == "" {
		out.CurrentStep = ""
		out.Status = StatusCompleted
	} else {
		out.CurrentStep = next
		out.Status = StatusActive
	}
	return out, nil
}

// Params resolves the inputs of step against the run. Unresolved inputs
// are left out and listed in missing.
func (c Context) Params(step *workflow.Step) (params map[string]any, missing []string) {
	return step.ResolveInputs(c.Outputs, c.Inputs)
}

func conditions(n workflow.Next) []string {
	out := make([]string, 0, len(n.Branches))
	for _, b := range n.Branches {
		out = append(out, b.Condition)
	}
	return out
}
