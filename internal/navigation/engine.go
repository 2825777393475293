// Package navigation turns "this tool was just called, with this context"
// into ranked suggestions for the next tool call.
//
// Suggestions are advisory. Nothing here returns an error: an unresolvable
// parameter is omitted and a transition that matches nothing yields no
// suggestion.
package navigation

import (
	"fmt"
	"sort"

	"github.com/HendryAvila/substrate/internal/execution"
	"github.com/HendryAvila/substrate/internal/workflow"
)

// Suggestion recommends one next tool call.
type Suggestion struct {
	Tool     string         `json:"tool"`
	Reason   string         `json:"reason"`
	Params   map[string]any `json:"params"`
	Workflow string         `json:"workflow,omitempty"`
	Step     string         `json:"step,omitempty"`
	// Missing lists inputs of the suggested step that could not be
	// resolved yet.
	Missing []string `json:"missing,omitempty"`
}

// Engine computes suggestions from the workflows in a catalog.
type Engine struct {
	catalog   workflow.Catalog
	matcher   workflow.Matcher
	followUps map[string][]followUp
}

// NewEngine creates an Engine. A nil matcher uses the default condition
// vocabulary.
func NewEngine(catalog workflow.Catalog, matcher workflow.Matcher) *Engine {
	if matcher == nil {
		matcher = workflow.NewConditionMatcher()
	}
	return &Engine{catalog: catalog, matcher: matcher, followUps: map[string][]followUp{}}
}

type ranked struct {
	s         Suggestion
	contIndex int
	candIndex int
}

// Suggest returns suggestions after currentTool was called. Every workflow
// step bound to currentTool is a candidate; its transition is evaluated
// against context and the continuation step, when it has a tool, becomes a
// suggestion with its inputs resolved against context.
//
// Ordering: position of the continuation step in its workflow, then
// workflow name, then position of the candidate step.
func (e *Engine) Suggest(currentTool string, context map[string]any) []Suggestion {
	if currentTool == "" {
		return nil
	}

	var out []ranked
	seen := map[string]bool{}
	for _, ref := range e.catalog.StepsUsingTool(currentTool) {
		def, err := e.catalog.Get(ref.Workflow)
		if err != nil {
			continue
		}
		cand, ok := def.Step(ref.Step)
		if !ok {
			continue
		}
		target, ok := cand.Next.Resolve(e.matcher, context)
		if !ok {
			continue
		}
		cont, ok := def.Step(target)
		if !ok || cont.Tool == "" {
			continue
		}
		key := def.Name + "\x00" + cont.ID
		if seen[key] {
			continue
		}
		seen[key] = true

		outputs, inputs := splitContext(context, cand.ID)
		params, missing := cont.ResolveInputs(outputs, inputs)
		out = append(out, ranked{
			s: Suggestion{
				Tool:     cont.Tool,
				Reason:   reason(def, cont),
				Params:   params,
				Workflow: def.Name,
				Step:     cont.ID,
				Missing:  missing,
			},
			contIndex: def.StepIndex(cont.ID),
			candIndex: ref.Index,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.contIndex != b.contIndex {
			return a.contIndex < b.contIndex
		}
		if a.s.Workflow != b.s.Workflow {
			return a.s.Workflow < b.s.Workflow
		}
		return a.candIndex < b.candIndex
	})

	result := make([]Suggestion, len(out))
	for i, r := range out {
		result[i] = r.s
	}
	return result
}

// EntryWorkflows names the workflows whose entry step calls tool, in
// catalog order.
func (e *Engine) EntryWorkflows(tool string) []string {
	var out []string
	for _, ref := range e.catalog.StepsUsingTool(tool) {
		def, err := e.catalog.Get(ref.Workflow)
		if err != nil || def.Entry() != ref.Step {
			continue
		}
		out = append(out, ref.Workflow)
	}
	return out
}

// SuggestFor returns what to do next in a run: the current step's tool with
// its inputs resolved, or, at a decision point, every branch target that
// has a tool. A completed run has no suggestions.
func (e *Engine) SuggestFor(c execution.Context) []Suggestion {
	if c.IsDone() || c.CurrentStep == "" {
		return nil
	}
	def, err := e.catalog.Get(c.Workflow)
	if err != nil {
		return nil
	}
	step, ok := def.Step(c.CurrentStep)
	if !ok {
		return nil
	}

	if step.Tool != "" {
		params, missing := c.Params(step)
		return []Suggestion{{
			Tool:     step.Tool,
			Reason:   reason(def, step),
			Params:   params,
			Workflow: def.Name,
			Step:     step.ID,
			Missing:  missing,
		}}
	}

	var out []Suggestion
	for _, b := range branches(step.Next) {
		target, ok := def.Step(b.Goto)
		if !ok || target.Tool == "" {
			continue
		}
		params, missing := c.Params(target)
		why := reason(def, target)
		if b.Condition != "" {
			why = fmt.Sprintf("if %s: %s", b.Condition, why)
		}
		out = append(out, Suggestion{
			Tool:     target.Tool,
			Reason:   why,
			Params:   params,
			Workflow: def.Name,
			Step:     target.ID,
			Missing:  missing,
		})
	}
	return out
}

func branches(n workflow.Next) []workflow.Transition {
	if n.Step != "" {
		return []workflow.Transition{{Goto: n.Step}}
	}
	return n.Branches
}

func reason(def *workflow.Definition, step *workflow.Step) string {
	if step.Description != "" {
		return fmt.Sprintf("%s (%s: %s)", step.Description, def.Name, step.ID)
	}
	return fmt.Sprintf("Continue %s with step %s", def.Name, step.ID)
}

// splitContext maps a caller context onto expression sources. The
// "inputs" key supplies workflow inputs and "outputs" supplies step
// outputs; every other top-level key is visible as an input too and, for
// the step just completed, as one of its outputs.
func splitContext(context map[string]any, justRan string) (map[string]map[string]any, map[string]any) {
	inputs := map[string]any{}
	outputs := map[string]map[string]any{}

	for k, v := range context {
		if k == "inputs" || k == "outputs" {
			continue
		}
		inputs[k] = v
	}
	if in, ok := context["inputs"].(map[string]any); ok {
		for k, v := range in {
			inputs[k] = v
		}
	}
	if outs, ok := context["outputs"].(map[string]any); ok {
		for step, vals := range outs {
			if m, ok := vals.(map[string]any); ok {
				outputs[step] = m
			}
		}
	}
	if outs, ok := context["outputs"].(map[string]map[string]any); ok {
		for step, vals := range outs {
			outputs[step] = vals
		}
	}

	current := map[string]any{}
	for k, v := range context {
		if k == "inputs" || k == "outputs" {
			continue
		}
		current[k] = v
	}
	for k, v := range outputs[justRan] {
		current[k] = v
	}
	outputs[justRan] = current
	return outputs, inputs
}
