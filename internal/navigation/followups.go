package navigation

import (
	"fmt"

	"github.com/HendryAvila/substrate/internal/templates"
)

// FollowUp is a fixed next-step hint for a tool, used when no workflow
// has an opinion. Param values are reference expressions evaluated against
// the call context, e.g. "$inputs.ref".
type FollowUp struct {
	Tool   string
	Reason string
	Params map[string]string
}

type followUp struct {
	tool   string
	reason string
	params map[string]templates.Expr
}

// AddFollowUps registers hints shown after tool. It is meant to be called
// while wiring the server, before the engine is shared.
func (e *Engine) AddFollowUps(tool string, hints ...FollowUp) error {
	for _, h := range hints {
		f := followUp{tool: h.Tool, reason: h.Reason, params: map[string]templates.Expr{}}
		for name, src := range h.Params {
			expr, err := templates.ParseExpression(src)
			if err != nil {
				return fmt.Errorf("follow-up %s -> %s param %s: %w", tool, h.Tool, name, err)
			}
			f.params[name] = expr
		}
		e.followUps[tool] = append(e.followUps[tool], f)
	}
	return nil
}

// Annotate returns workflow suggestions for currentTool, or its registered
// follow-ups when no workflow suggests anything.
func (e *Engine) Annotate(currentTool string, context map[string]any) []Suggestion {
	if s := e.Suggest(currentTool, context); len(s) > 0 {
		return s
	}

	hints := e.followUps[currentTool]
	if len(hints) == 0 {
		return nil
	}
	outputs, inputs := splitContext(context, "")
	out := make([]Suggestion, 0, len(hints))
	for _, h := range hints {
		params := map[string]any{}
		for name, expr := range h.params {
			if v, ok := templates.Evaluate(expr, outputs, inputs); ok {
				params[name] = v
			}
		}
		out = append(out, Suggestion{Tool: h.tool, Reason: h.reason, Params: params})
	}
	return out
}
