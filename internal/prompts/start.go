// Package prompts implements MCP prompt handlers.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// StartPrompt handles the substrate-start MCP prompt.
// It guides the AI to pick a workflow and follow its suggestions.
type StartPrompt struct{}

// NewStartPrompt creates a StartPrompt.
func NewStartPrompt() *StartPrompt {
	return &StartPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StartPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("substrate-start",
		mcp.WithPromptDescription(
			"Start a guided workflow. Finds a workflow that fits your goal, "+
				"starts a run and follows the suggested next steps.",
		),
		mcp.WithArgument("goal",
			mcp.ArgumentDescription("What you want to produce, e.g. 'optimize my onboarding prompt'"),
		),
		mcp.WithArgument("workflow",
			mcp.ArgumentDescription("Workflow to run, if you already know it"),
		),
	)
}

// Handle processes the substrate-start prompt request.
func (p *StartPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	goal := ""
	name := ""
	if args := req.Params.Arguments; args != nil {
		goal = strings.TrimSpace(args["goal"])
		name = strings.TrimSpace(args["workflow"])
	}

	var sb strings.Builder
	if goal != "" {
		fmt.Fprintf(&sb, "My goal: %s\n\n", goal)
	}
	sb.WriteString("Please:\n")
	if name != "" {
		fmt.Fprintf(&sb, "1. Run `workflow_guide` with workflow_name='%s' and summarize the steps for me\n", name)
		fmt.Fprintf(&sb, "2. Ask me for any required inputs, then run `workflow_begin` with workflow_name='%s'\n", name)
	} else {
		sb.WriteString("1. Run `show_workflows` and pick the workflow that best fits my goal (ask me if unsure)\n")
		sb.WriteString("2. Run `workflow_guide` for it, ask me for required inputs, then run `workflow_begin`\n")
	}
	sb.WriteString("3. Call the tool the run suggests, then report it with `workflow_complete_step` " +
		"(pass the step's outputs, and a signal when the step branches)\n")
	sb.WriteString("4. Keep following the suggested next steps until the run is completed\n\n")
	sb.WriteString("Store reusable text with `create_ref` so later steps can refer to it by name.")

	description := "Start a workflow"
	if name != "" {
		description = fmt.Sprintf("Start workflow: %s", name)
	}
	return &mcp.GetPromptResult{
		Description: description,
		Messages: []mcp.PromptMessage{
			{
				Role:    mcp.RoleUser,
				Content: mcp.NewTextContent(sb.String()),
			},
		},
	}, nil
}
