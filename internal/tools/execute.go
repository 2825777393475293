package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/HendryAvila/substrate/internal/refs"
	"github.com/HendryAvila/substrate/internal/templates"
	"github.com/HendryAvila/substrate/internal/value"
	"github.com/mark3labs/mcp-go/mcp"
)

// previewLength is how much of the produced text is echoed back.
const previewLength = 400

// ExecuteTool handles the execute MCP tool: it composes input text from
// references or a direct prompt, fills in placeholders, optionally applies
// a template reference and optionally saves the result as a new reference.
type ExecuteTool struct {
	store refs.Store
}

// NewExecuteTool creates an ExecuteTool with the given reference store.
func NewExecuteTool(store refs.Store) *ExecuteTool {
	return &ExecuteTool{store: store}
}

// Definition returns the MCP tool definition for execute.
func (t *ExecuteTool) Definition() mcp.Tool {
	return mcp.NewTool("execute",
		mcp.WithDescription(
			"Compose text from references and apply a template. Input priority: "+
				"ref > refs > prompt_ref > prompt. When prompt_ref is given alongside ref or refs "+
				"it is used as the template and receives the input as {{input}}.",
		),
		mcp.WithString("prompt",
			mcp.Description("Direct prompt text"),
		),
		mcp.WithString("ref",
			mcp.Description("Reference whose content is the input"),
		),
		mcp.WithArray("refs",
			mcp.Description("References to combine as the input, joined with a separator"),
			mcp.WithStringItems(),
		),
		mcp.WithString("prompt_ref",
			mcp.Description("Reference holding the prompt or template"),
		),
		mcp.WithObject("variables",
			mcp.Description("Values for {{placeholders}} (JSON object)"),
		),
		mcp.WithString("save_as",
			mcp.Description("Save the result under this reference name"),
		),
	)
}

// Handle processes the execute tool call.
func (t *ExecuteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := stringListArg(req, "refs")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	vars, err := objectArg(req, "variables")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in := refs.Input{
		Prompt:    req.GetString("prompt", ""),
		Ref:       req.GetString("ref", ""),
		Refs:      list,
		PromptRef: req.GetString("prompt_ref", ""),
	}
	saveAs := req.GetString("save_as", "")
	if saveAs != "" {
		if err := refs.ValidateName(saveAs); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("save_as: %v", err)), nil
		}
	}

	input, err := refs.Compose(t.store, in)
	if err != nil {
		if isCallerError(err) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return nil, fmt.Errorf("composing input: %w", err)
	}

	result := input
	templated := false
	if in.PromptRef != "" && in.Kind() != "prompt_reference" {
		tmpl, err := t.store.Get(in.PromptRef)
		if err != nil {
			if isCallerError(err) {
				return mcp.NewToolResultError(fmt.Sprintf("prompt_ref: %v", err)), nil
			}
			return nil, fmt.Errorf("loading template %q: %w", in.PromptRef, err)
		}
		result = applyTemplate(tmpl.Content, input)
		templated = true
	}
	result = templates.Resolve(result, vars)

	var sb strings.Builder
	sb.WriteString("## Executed\n\n")
	fmt.Fprintf(&sb, "- **Input**: %s\n", in.Kind())
	if templated {
		fmt.Fprintf(&sb, "- **Template**: %s\n", in.PromptRef)
	}

	if saveAs != "" {
		meta := value.Map{"source": value.String(in.Kind())}
		if templated {
			meta["template"] = value.String(in.PromptRef)
		}
		if _, err := t.store.Put(saveAs, result, meta); err != nil {
			return nil, fmt.Errorf("saving result as %q: %w", saveAs, err)
		}
		fmt.Fprintf(&sb, "- **Saved as**: %s\n", saveAs)
	}
	if ph := templates.Placeholders(result); len(ph) > 0 {
		fmt.Fprintf(&sb, "- **Unresolved placeholders**: %s\n", strings.Join(ph, ", "))
	}

	sb.WriteString("\n")
	if saveAs != "" {
		sb.WriteString(truncate(result, previewLength))
	} else {
		sb.WriteString(result)
	}
	sb.WriteString("\n")
	return mcp.NewToolResultText(sb.String()), nil
}

// applyTemplate places input at {{input}}, or after the template when it
// has no such placeholder.
func applyTemplate(tmpl, input string) string {
	for _, key := range templates.Placeholders(tmpl) {
		if key == "input" {
			return templates.Resolve(tmpl, map[string]any{"input": input})
		}
	}
	return tmpl + refs.Separator + input
}

func isCallerError(err error) bool {
	return errors.Is(err, refs.ErrNotFound) ||
		errors.Is(err, refs.ErrInvalidName) ||
		errors.Is(err, refs.ErrNoInput)
}
