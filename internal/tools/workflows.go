package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/HendryAvila/substrate/internal/navigation"
	"github.com/HendryAvila/substrate/internal/workflow"
	"github.com/mark3labs/mcp-go/mcp"
)

// --- show_workflows ---

// ShowWorkflowsTool handles the show_workflows MCP tool.
type ShowWorkflowsTool struct {
	catalog workflow.Catalog
}

// NewShowWorkflowsTool creates a ShowWorkflowsTool over the given catalog.
func NewShowWorkflowsTool(catalog workflow.Catalog) *ShowWorkflowsTool {
	return &ShowWorkflowsTool{catalog: catalog}
}

// Definition returns the MCP tool definition for show_workflows.
func (t *ShowWorkflowsTool) Definition() mcp.Tool {
	return mcp.NewTool("show_workflows",
		mcp.WithDescription(
			"List the available multi-step workflows. Filter by category, or by a tool "+
				"to see which workflows use it.",
		),
		mcp.WithString("category",
			mcp.Description("Only workflows in this category"),
		),
		mcp.WithString("tool",
			mcp.Description("Only workflows with a step that calls this tool"),
		),
	)
}

// Handle processes the show_workflows tool call.
func (t *ShowWorkflowsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category := req.GetString("category", "")
	tool := req.GetString("tool", "")

	list := t.catalog.List(category)
	if tool != "" {
		filtered := list[:0:0]
		for _, s := range list {
			def, err := t.catalog.Get(s.Name)
			if err == nil && def.UsesTool(tool) {
				filtered = append(filtered, s)
			}
		}
		list = filtered
	}

	if len(list) == 0 {
		return mcp.NewToolResultText("No workflows match."), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Workflows (%d)\n\n", len(list))
	for _, s := range list {
		fmt.Fprintf(&sb, "### %s\n", s.Name)
		if s.Description != "" {
			fmt.Fprintf(&sb, "%s\n", s.Description)
		}
		if s.Category != "" {
			fmt.Fprintf(&sb, "- **Category**: %s\n", s.Category)
		}
		if len(s.Tags) > 0 {
			fmt.Fprintf(&sb, "- **Tags**: %s\n", strings.Join(s.Tags, ", "))
		}
		fmt.Fprintf(&sb, "- **Steps**: %d\n", s.Steps)
		if len(s.Tools) > 0 {
			fmt.Fprintf(&sb, "- **Tools**: %s\n", strings.Join(s.Tools, ", "))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Use workflow_guide for the steps of one workflow, or workflow_begin to start a run.\n")
	return mcp.NewToolResultText(sb.String()), nil
}

// --- workflow_guide ---

// WorkflowGuideTool handles the workflow_guide MCP tool.
type WorkflowGuideTool struct {
	catalog workflow.Catalog
}

// NewWorkflowGuideTool creates a WorkflowGuideTool over the given catalog.
func NewWorkflowGuideTool(catalog workflow.Catalog) *WorkflowGuideTool {
	return &WorkflowGuideTool{catalog: catalog}
}

// Definition returns the MCP tool definition for workflow_guide.
func (t *WorkflowGuideTool) Definition() mcp.Tool {
	return mcp.NewTool("workflow_guide",
		mcp.WithDescription("Show the steps of a workflow: tools, inputs, outputs and transitions."),
		mcp.WithString("workflow_name",
			mcp.Required(),
			mcp.Description("Name of the workflow"),
		),
	)
}

// Handle processes the workflow_guide tool call.
func (t *WorkflowGuideTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("workflow_name", "")
	if name == "" {
		return mcp.NewToolResultError("'workflow_name' is required"), nil
	}
	def, err := t.catalog.Get(name)
	if err != nil {
		if errors.Is(err, workflow.ErrNotFound) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return nil, err
	}
	return mcp.NewToolResultText(renderGuide(def)), nil
}

func renderGuide(def *workflow.Definition) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", def.Name)
	if def.Description != "" {
		fmt.Fprintf(&sb, "%s\n\n", def.Description)
	}
	fmt.Fprintf(&sb, "Entry step: **%s**\n\n", def.Entry())

	for i, step := range def.Steps {
		fmt.Fprintf(&sb, "## %d. %s\n", i+1, step.ID)
		if step.Description != "" {
			fmt.Fprintf(&sb, "%s\n", step.Description)
		}
		if step.Tool != "" {
			fmt.Fprintf(&sb, "- **Tool**: `%s`\n", step.Tool)
		} else {
			sb.WriteString("- **Decision point** (no tool)\n")
		}
		if len(step.Inputs) > 0 {
			names := make([]string, 0, len(step.Inputs))
			for n := range step.Inputs {
				names = append(names, n)
			}
			sort.Strings(names)
			sb.WriteString("- **Inputs**:\n")
			for _, n := range names {
				fmt.Fprintf(&sb, "  - `%s`: %s\n", n, describeInput(step.Inputs[n]))
			}
		}
		if len(step.Outputs) > 0 {
			outs := make([]string, len(step.Outputs))
			for j, o := range step.Outputs {
				outs[j] = o.Name
			}
			fmt.Fprintf(&sb, "- **Outputs**: %s\n", strings.Join(outs, ", "))
		}
		switch {
		case step.IsTerminal():
			sb.WriteString("- **Next**: (end)\n")
		case step.Next.IsConditional():
			sb.WriteString("- **Next**:\n")
			for _, b := range step.Next.Branches {
				fmt.Fprintf(&sb, "  - if `%s` → %s\n", b.Condition, b.Goto)
			}
		default:
			fmt.Fprintf(&sb, "- **Next**: %s\n", step.Next.Step)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func describeInput(in workflow.Input) string {
	switch in.Kind {
	case workflow.InputRequired:
		return "required"
	case workflow.InputOptional:
		return "optional"
	case workflow.InputExpression:
		return "`" + in.Expr.String() + "`"
	default:
		return fmt.Sprintf("%v", in.Value)
	}
}

// --- suggest_next ---

// SuggestNextTool handles the suggest_next MCP tool.
type SuggestNextTool struct {
	engine   *navigation.Engine
	runHints bool
}

// NewSuggestNextTool creates a SuggestNextTool backed by engine.
func NewSuggestNextTool(engine *navigation.Engine) *SuggestNextTool {
	return &SuggestNextTool{engine: engine}
}

// WithRunHints makes the tool point at workflow_begin when the current tool
// starts a workflow. Only enable it when the run tools are registered.
func (t *SuggestNextTool) WithRunHints() *SuggestNextTool {
	t.runHints = true
	return t
}

// Definition returns the MCP tool definition for suggest_next.
func (t *SuggestNextTool) Definition() mcp.Tool {
	return mcp.NewTool("suggest_next",
		mcp.WithDescription(
			"Suggest the next tool calls after a tool was used, based on the workflows "+
				"that include it. Pass what you know (inputs, outputs, flags) as context so "+
				"parameters can be filled in and conditions evaluated.",
		),
		mcp.WithString("current_tool",
			mcp.Required(),
			mcp.Description("The tool that was just called, e.g. 'synapse:enhance_prompt'"),
		),
		mcp.WithObject("context",
			mcp.Description("Known values (JSON object). May hold 'inputs' and 'outputs' maps; other keys act as inputs and condition flags."),
		),
	)
}

// Handle processes the suggest_next tool call.
func (t *SuggestNextTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	current := req.GetString("current_tool", "")
	if current == "" {
		return mcp.NewToolResultError("'current_tool' is required"), nil
	}
	callCtx, err := objectArg(req, "context")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	suggestions := t.engine.Annotate(current, callCtx)
	var sb strings.Builder
	if len(suggestions) == 0 {
		fmt.Fprintf(&sb, "No suggestions after %s.", current)
	} else {
		fmt.Fprintf(&sb, "## Suggestions after %s\n\n", current)
		writeSuggestions(&sb, suggestions)
	}

	if t.runHints {
		if starts := t.engine.EntryWorkflows(current); len(starts) > 0 {
			fmt.Fprintf(&sb, "\n\n`%s` starts %s. Call `workflow_begin` with one of these as workflow_name to track the run.",
				current, quoteList(starts))
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = "`" + s + "`"
	}
	return strings.Join(quoted, ", ")
}
