// Package tools provides the MCP tool handlers for references, template
// execution and workflow navigation.
//
// Each tool handler follows the same pattern:
// - A struct with its dependencies injected via constructor
// - Definition() returns the mcp.Tool schema
// - Handle() processes the request and returns a result
//
// Caller mistakes come back as tool errors (mcp.NewToolResultError); a Go
// error is returned only for internal faults.
package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// objectArg extracts a JSON object argument. Clients send either a real
// object or a JSON-encoded string; both are accepted. A missing or empty
// argument yields nil.
func objectArg(req mcp.CallToolRequest, key string) (map[string]any, error) {
	raw, ok := req.GetArguments()[key]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case map[string]any:
		return v, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, fmt.Errorf("'%s' must be a JSON object: %w", key, err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("'%s' must be a JSON object, got %T", key, raw)
	}
}

// stringListArg extracts a list of strings. Arrays, JSON array strings and
// comma-separated strings are accepted.
func stringListArg(req mcp.CallToolRequest, key string) ([]string, error) {
	raw, ok := req.GetArguments()[key]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("'%s' must contain only strings, got %T", key, item)
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out, nil
	case []string:
		return v, nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return nil, nil
		}
		if strings.HasPrefix(v, "[") {
			var out []string
			if err := json.Unmarshal([]byte(v), &out); err != nil {
				return nil, fmt.Errorf("'%s' must be a JSON array of strings: %w", key, err)
			}
			return out, nil
		}
		var out []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("'%s' must be a list of strings, got %T", key, raw)
	}
}

// toJSON renders v for inclusion in a markdown response.
func toJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// truncate shortens s to max runes for previews.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
