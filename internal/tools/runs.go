package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/HendryAvila/substrate/internal/execution"
	"github.com/HendryAvila/substrate/internal/navigation"
	"github.com/HendryAvila/substrate/internal/sessions"
	"github.com/HendryAvila/substrate/internal/workflow"
	"github.com/mark3labs/mcp-go/mcp"
)

// RunStore persists workflow runs between tool calls.
type RunStore interface {
	Save(c execution.Context) error
	Load(id string) (execution.Context, error)
	List(workflow string) ([]sessions.Summary, error)
}

// --- workflow_begin ---

// BeginTool handles the workflow_begin MCP tool.
type BeginTool struct {
	tracker *execution.Tracker
	engine  *navigation.Engine
	runs    RunStore
}

// NewBeginTool creates a BeginTool.
func NewBeginTool(tracker *execution.Tracker, engine *navigation.Engine, runs RunStore) *BeginTool {
	return &BeginTool{tracker: tracker, engine: engine, runs: runs}
}

// Definition returns the MCP tool definition for workflow_begin.
func (t *BeginTool) Definition() mcp.Tool {
	return mcp.NewTool("workflow_begin",
		mcp.WithDescription(
			"Start a run of a workflow. Returns a context_id to pass to workflow_complete_step "+
				"and the first tool to call.",
		),
		mcp.WithString("workflow_name",
			mcp.Required(),
			mcp.Description("Name of the workflow to run"),
		),
		mcp.WithObject("inputs",
			mcp.Description("Workflow inputs (JSON object), referenced by steps as $inputs.<name>"),
		),
	)
}

// Handle processes the workflow_begin tool call.
func (t *BeginTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("workflow_name", "")
	if name == "" {
		return mcp.NewToolResultError("'workflow_name' is required"), nil
	}
	inputs, err := objectArg(req, "inputs")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	run, err := t.tracker.Begin(name, inputs)
	if err != nil {
		if errors.Is(err, workflow.ErrNotFound) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return nil, fmt.Errorf("beginning workflow %q: %w", name, err)
	}
	if err := t.runs.Save(run); err != nil {
		return nil, fmt.Errorf("saving run: %w", err)
	}
	return mcp.NewToolResultText(renderRun("Workflow started", run, t.engine.SuggestFor(run))), nil
}

// --- workflow_complete_step ---

// CompleteStepTool handles the workflow_complete_step MCP tool.
type CompleteStepTool struct {
	tracker *execution.Tracker
	engine  *navigation.Engine
	runs    RunStore
}

// NewCompleteStepTool creates a CompleteStepTool.
func NewCompleteStepTool(tracker *execution.Tracker, engine *navigation.Engine, runs RunStore) *CompleteStepTool {
	return &CompleteStepTool{tracker: tracker, engine: engine, runs: runs}
}

// Definition returns the MCP tool definition for workflow_complete_step.
func (t *CompleteStepTool) Definition() mcp.Tool {
	return mcp.NewTool("workflow_complete_step",
		mcp.WithDescription(
			"Record that a step of a running workflow finished, with its outputs, and advance "+
				"to the next step. Conditional transitions are evaluated against signal, or "+
				"against the outputs when no signal is given.",
		),
		mcp.WithString("context_id",
			mcp.Required(),
			mcp.Description("The context_id returned by workflow_begin"),
		),
		mcp.WithString("step_id",
			mcp.Required(),
			mcp.Description("The step that finished"),
		),
		mcp.WithObject("outputs",
			mcp.Description("Outputs of the step (JSON object)"),
		),
		mcp.WithObject("signal",
			mcp.Description("Flags for choosing the next step, e.g. {\"clear_winner\": true}"),
		),
	)
}

// Handle processes the workflow_complete_step tool call.
func (t *CompleteStepTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("context_id", "")
	stepID := req.GetString("step_id", "")
	if id == "" {
		return mcp.NewToolResultError("'context_id' is required"), nil
	}
	if stepID == "" {
		return mcp.NewToolResultError("'step_id' is required"), nil
	}
	outputs, err := objectArg(req, "outputs")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	signal, err := objectArg(req, "signal")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	run, err := t.runs.Load(id)
	if err != nil {
		if errors.Is(err, sessions.ErrNotFound) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return nil, fmt.Errorf("loading run %s: %w", id, err)
	}

	next, err := t.tracker.RecordStepCompletion(run, stepID, outputs, signal)
	if err != nil {
		if errors.Is(err, execution.ErrUnknownStep) ||
			errors.Is(err, execution.ErrNoMatchingTransition) ||
			errors.Is(err, execution.ErrCompleted) ||
			errors.Is(err, workflow.ErrNotFound) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return nil, fmt.Errorf("recording step %q: %w", stepID, err)
	}
	if err := t.runs.Save(next); err != nil {
		return nil, fmt.Errorf("saving run: %w", err)
	}

	title := fmt.Sprintf("Step %s recorded", stepID)
	if next.IsDone() {
		title = "Workflow completed"
	}
	return mcp.NewToolResultText(renderRun(title, next, t.engine.SuggestFor(next))), nil
}

// --- workflow_status ---

// StatusTool handles the workflow_status MCP tool.
type StatusTool struct {
	engine *navigation.Engine
	runs   RunStore
}

// NewStatusTool creates a StatusTool.
func NewStatusTool(engine *navigation.Engine, runs RunStore) *StatusTool {
	return &StatusTool{engine: engine, runs: runs}
}

// Definition returns the MCP tool definition for workflow_status.
func (t *StatusTool) Definition() mcp.Tool {
	return mcp.NewTool("workflow_status",
		mcp.WithDescription(
			"Show the state of a workflow run. Without context_id, lists recent runs.",
		),
		mcp.WithString("context_id",
			mcp.Description("The run to show"),
		),
		mcp.WithString("workflow_name",
			mcp.Description("When listing, only runs of this workflow"),
		),
	)
}

// Handle processes the workflow_status tool call.
func (t *StatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("context_id", "")
	if id == "" {
		return t.list(req.GetString("workflow_name", ""))
	}

	run, err := t.runs.Load(id)
	if err != nil {
		if errors.Is(err, sessions.ErrNotFound) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return nil, fmt.Errorf("loading run %s: %w", id, err)
	}
	return mcp.NewToolResultText(renderRun("Workflow run", run, t.engine.SuggestFor(run))), nil
}

func (t *StatusTool) list(name string) (*mcp.CallToolResult, error) {
	list, err := t.runs.List(name)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	if len(list) == 0 {
		return mcp.NewToolResultText("No workflow runs yet. Use workflow_begin to start one."), nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Workflow runs (%d)\n\n", len(list))
	for _, s := range list {
		fmt.Fprintf(&sb, "- `%s` **%s** %s", s.ID, s.Workflow, s.Status)
		if s.CurrentStep != "" {
			fmt.Fprintf(&sb, " at %s", s.CurrentStep)
		}
		fmt.Fprintf(&sb, " (%d steps, updated %s)\n", s.Steps, s.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func renderRun(title string, run execution.Context, next []navigation.Suggestion) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n\n", title)
	fmt.Fprintf(&sb, "- **Context ID**: %s\n", run.ID)
	fmt.Fprintf(&sb, "- **Workflow**: %s\n", run.Workflow)
	fmt.Fprintf(&sb, "- **Status**: %s\n", run.Status)
	if run.CurrentStep != "" {
		fmt.Fprintf(&sb, "- **Current step**: %s\n", run.CurrentStep)
	}
	if len(run.History) > 0 {
		fmt.Fprintf(&sb, "- **Completed**: %s\n", strings.Join(run.History, " → "))
	}
	if len(run.Outputs) > 0 {
		fmt.Fprintf(&sb, "\n### Outputs\n```json\n%s\n```\n", toJSON(run.Outputs))
	}
	if len(next) > 0 {
		sb.WriteString("\n### Next\n\n")
		writeSuggestions(&sb, next)
	} else if !run.IsDone() {
		sb.WriteString("\nThe current step has no tool; call workflow_complete_step with a signal to choose a branch.\n")
	}
	return sb.String()
}
