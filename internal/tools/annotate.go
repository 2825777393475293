package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/HendryAvila/substrate/internal/navigation"
	"github.com/mark3labs/mcp-go/mcp"
)

// HandlerFunc is the mcp-go tool handler signature.
type HandlerFunc func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)

// Annotated wraps handler so that successful results of tool end with a
// "Suggested next steps" section computed from the call arguments.
// Error results are returned untouched.
func Annotated(engine *navigation.Engine, tool string, handler HandlerFunc) HandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := handler(ctx, req)
		if err != nil || result == nil || result.IsError {
			return result, err
		}
		suggestions := engine.Annotate(tool, req.GetArguments())
		if len(suggestions) == 0 {
			return result, nil
		}
		var sb strings.Builder
		sb.WriteString("\n\n## Suggested next steps\n\n")
		writeSuggestions(&sb, suggestions)
		appendText(result, sb.String())
		return result, nil
	}
}

// appendText extends the first text block of result, or adds one.
func appendText(result *mcp.CallToolResult, text string) {
	for i, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			tc.Text += text
			result.Content[i] = tc
			return
		}
	}
	result.Content = append(result.Content, mcp.NewTextContent(strings.TrimLeft(text, "\n")))
}

func writeSuggestions(sb *strings.Builder, suggestions []navigation.Suggestion) {
	for i, s := range suggestions {
		fmt.Fprintf(sb, "%d. `%s`: %s\n", i+1, s.Tool, s.Reason)
		if len(s.Params) > 0 {
			keys := make([]string, 0, len(s.Params))
			for k := range s.Params {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(sb, "   - `%s` = %s\n", k, truncate(inline(s.Params[k]), 120))
			}
		}
		if len(s.Missing) > 0 {
			fmt.Fprintf(sb, "   - still needed: %s\n", strings.Join(s.Missing, ", "))
		}
	}
}

func inline(v any) string {
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return strings.Join(strings.Fields(toJSON(v)), " ")
}
