package prompts

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func promptText(t *testing.T, result *mcp.GetPromptResult) string {
	t.Helper()
	if len(result.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(result.Messages))
	}
	tc, ok := result.Messages[0].Content.(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Messages[0].Content)
	}
	return tc.Text
}

func TestStartPrompt_NoArguments(t *testing.T) {
	result, err := NewStartPrompt().Handle(context.Background(), mcp.GetPromptRequest{})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	text := promptText(t, result)
	if !strings.Contains(text, "show_workflows") {
		t.Errorf("should point at show_workflows: %s", text)
	}
	if strings.Contains(text, "My goal") {
		t.Errorf("no goal was given: %s", text)
	}
}

func TestStartPrompt_WithWorkflow(t *testing.T) {
	req := mcp.GetPromptRequest{}
	req.Params.Arguments = map[string]string{"goal": "ship a post", "workflow": "content_pipeline"}

	result, err := NewStartPrompt().Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	text := promptText(t, result)
	if !strings.Contains(text, "My goal: ship a post") {
		t.Errorf("goal missing: %s", text)
	}
	if !strings.Contains(text, "workflow_name='content_pipeline'") {
		t.Errorf("workflow missing: %s", text)
	}
	if result.Description != "Start workflow: content_pipeline" {
		t.Errorf("description = %q", result.Description)
	}
}
