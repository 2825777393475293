package templates

import (
	"testing"

	"github.com/HendryAvila/substrate/internal/value"
	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		content string
		vars    map[string]any
		want    string
	}{
		{"simple", "Hello {{name}}!", map[string]any{"name": "Ada"}, "Hello Ada!"},
		{"whitespace inside braces", "Hello {{ name }}!", map[string]any{"name": "Ada"}, "Hello Ada!"},
		{"repeated key", "{{x}}-{{x}}", map[string]any{"x": "1"}, "1-1"},
		{"unknown left verbatim", "Hello {{who}}", map[string]any{"name": "Ada"}, "Hello {{who}}"},
		{"no vars", "Hello {{name}}", nil, "Hello {{name}}"},
		{"nil value left verbatim", "{{a}}", map[string]any{"a": nil}, "{{a}}"},
		{"null value left verbatim", "{{a}}", map[string]any{"a": value.Null{}}, "{{a}}"},
		{"integer", "n={{n}}", map[string]any{"n": 42}, "n=42"},
		{"float", "f={{f}}", map[string]any{"f": 1.5}, "f=1.5"},
		{"bool", "b={{b}}", map[string]any{"b": true}, "b=true"},
		{"list renders as JSON", "{{l}}", map[string]any{"l": []any{"a", 1}}, `["a",1]`},
		{"dotted literal key", "{{site.name}}", map[string]any{"site.name": "literal"}, "literal"},
		{"dotted path", "{{site.name}}", map[string]any{"site": map[string]any{"name": "nested"}}, "nested"},
		{"value types", "{{v}}", map[string]any{"v": value.Int(7)}, "7"},
		{"value map path", "{{m.k}}", map[string]any{"m": value.Map{"k": value.String("deep")}}, "deep"},
		{"no placeholders", "plain text", map[string]any{"a": "b"}, "plain text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.content, tt.vars))
		})
	}
}

func TestResolve_Scenario(t *testing.T) {
	got := Resolve("Title: {{title}}\nBody: {{body}}", map[string]any{"title": "Hi"})
	assert.Equal(t, "Title: Hi\nBody: {{body}}", got)
}

func TestResolve_SubstitutedTextIsNotRescanned(t *testing.T) {
	got := Resolve("{{a}}", map[string]any{"a": "{{b}}", "b": "nope"})
	assert.Equal(t, "{{b}}", got)
}

func TestResolve_Idempotent(t *testing.T) {
	vars := map[string]any{"title": "Hi", "n": 3}
	contents := []string{
		"Title: {{title}}\nBody: {{body}}",
		"{{n}} and {{ n }} and {{missing}}",
		"no markers",
		"{{title}}{{title}}",
	}
	for _, c := range contents {
		once := Resolve(c, vars)
		assert.Equal(t, once, Resolve(once, vars), c)
	}
}

func TestPlaceholders(t *testing.T) {
	got := Placeholders("{{b}} {{a}} {{ b }} {{c.d}}")
	assert.Equal(t, []string{"b", "a", "c.d"}, got)
	assert.Empty(t, Placeholders("nothing here"))
}

func TestHasUnresolved(t *testing.T) {
	assert.True(t, HasUnresolved("x {{y}}"))
	assert.False(t, HasUnresolved("x y"))
}
