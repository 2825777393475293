package workflow

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/HendryAvila/substrate/internal/templates"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const linearYAML = `
name: linear
description: Three steps in a row.
category: demo
tags: [a, b]
version: 2
steps:
  - id: one
    tool: first
    inputs:
      prompt: required
    next: two
  - id: two
    tool: second
    inputs:
      text: $outputs.one.text || $inputs.prompt
      mode: optional
      limit: 300
    outputs:
      - name: result
        type: string
      - summary
    next: three
  - id: three
    tool: first
`

const branchingYAML = `
name: branching
category: demo
steps:
  - id: start
    entry: true
    tool: analyze
    next:
      - condition: needs_enhancement
        goto: enhance
      - condition: success
        goto: done
  - id: enhance
    tool: enhance
    next: start
  - id: done
`

func raw(source, data string) RawDefinition {
	return RawDefinition{Source: source, Data: []byte(data)}
}

func mustLoad(t *testing.T, docs ...string) *Registry {
	t.Helper()
	var in []RawDefinition
	for i, d := range docs {
		in = append(in, raw(filepath.Join("test", string(rune('a'+i))+".yaml"), d))
	}
	reg, errs := Load(in)
	require.Empty(t, errs)
	return reg
}

// --- Load ---

func TestLoad_ParsesDefinition(t *testing.T) {
	reg := mustLoad(t, linearYAML)

	def, err := reg.Get("linear")
	require.NoError(t, err)
	assert.Equal(t, "Three steps in a row.", def.Description)
	assert.Equal(t, "2", def.Version)
	assert.Equal(t, []string{"a", "b"}, def.Tags)
	assert.Equal(t, "one", def.Entry())
	assert.Equal(t, []string{"first", "second"}, def.Tools())

	two, ok := def.Step("two")
	require.True(t, ok)
	assert.Equal(t, 1, def.StepIndex("two"))
	assert.Equal(t, "three", two.Next.Step)
	assert.Equal(t, []Output{{Name: "result", Type: "string"}, {Name: "summary"}}, two.Outputs)

	assert.Equal(t, InputExpression, two.Inputs["text"].Kind)
	assert.Equal(t, templates.Fallback{
		Left:  templates.OutputRef{Step: "one", Name: "text"},
		Right: templates.InputRef{Name: "prompt"},
	}, two.Inputs["text"].Expr)
	assert.Equal(t, InputOptional, two.Inputs["mode"].Kind)
	assert.Equal(t, InputLiteral, two.Inputs["limit"].Kind)
	assert.Equal(t, 300, two.Inputs["limit"].Value)

	one, _ := def.Step("one")
	assert.Equal(t, InputRequired, one.Inputs["prompt"].Kind)

	three, _ := def.Step("three")
	assert.True(t, three.IsTerminal())
}

func TestLoad_ConditionalNext(t *testing.T) {
	reg := mustLoad(t, branchingYAML)
	def, err := reg.Get("branching")
	require.NoError(t, err)

	start, _ := def.Step("start")
	require.True(t, start.Next.IsConditional())
	assert.Equal(t, []Transition{
		{Condition: "needs_enhancement", Goto: "enhance"},
		{Condition: "success", Goto: "done"},
	}, start.Next.Branches)
	assert.Equal(t, []string{"enhance", "done"}, start.Next.Targets())

	m := NewConditionMatcher()
	target, ok := start.Next.Resolve(m, map[string]any{"needs_enhancement": true})
	assert.True(t, ok)
	assert.Equal(t, "enhance", target)

	target, ok = start.Next.Resolve(m, map[string]any{})
	assert.True(t, ok)
	assert.Equal(t, "done", target, "first match wins, success matches without an error")

	_, ok = start.Next.Resolve(m, map[string]any{"error": "boom"})
	assert.False(t, ok)
}

func TestLoad_DanglingGotoRejectedSiblingsLoad(t *testing.T) {
	bad := `
name: broken
steps:
  - id: a
    next:
      - condition: success
        goto: nowhere
`
	reg, errs := Load([]RawDefinition{raw("good.yaml", linearYAML), raw("bad.yaml", bad), raw("also.yaml", branchingYAML)})
	require.Len(t, errs, 1)

	var defErr *DefinitionError
	require.True(t, errors.As(errs[0], &defErr))
	assert.Equal(t, "broken", defErr.Workflow)
	assert.Equal(t, "a", defErr.Step)
	assert.Equal(t, ViolationDanglingGoto, defErr.Violation)
	assert.Contains(t, defErr.Error(), "nowhere")

	_, err := reg.Get("broken")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = reg.Get("linear")
	assert.NoError(t, err)
	_, err = reg.Get("branching")
	assert.NoError(t, err)
}

func TestLoad_Violations(t *testing.T) {
	tests := []struct {
		name      string
		doc       string
		violation string
	}{
		{"missing name", "steps:\n  - id: a\n", ViolationMissingName},
		{"no steps", "name: x\nsteps: []\n", ViolationNoSteps},
		{"no steps key", "name: x\n", ViolationNoSteps},
		{"step without id", "name: x\nsteps:\n  - tool: t\n", ViolationMissingStepID},
		{"duplicate step", "name: x\nsteps:\n  - id: a\n  - id: a\n", ViolationDuplicateStep},
		{"dangling plain next", "name: x\nsteps:\n  - id: a\n    next: b\n", ViolationDanglingGoto},
		{"empty condition", "name: x\nsteps:\n  - id: a\n    next:\n      - goto: b\n  - id: b\n", ViolationEmptyCondition},
		{"two roots", "name: x\nsteps:\n  - id: a\n  - id: b\n", ViolationAmbiguousEntry},
		{"cycle without entry", "name: x\nsteps:\n  - id: a\n    next: b\n  - id: b\n    next: a\n", ViolationNoEntry},
		{"two marked entries", "name: x\nsteps:\n  - id: a\n    entry: true\n  - id: b\n    entry: true\n", ViolationAmbiguousEntry},
		{"bad condition", "name: x\nsteps:\n  - id: a\n    next:\n      - condition: score >\n        goto: b\n  - id: b\n", ViolationBadCondition},
		{"bad expression", "name: x\nsteps:\n  - id: a\n    inputs:\n      p: $env.HOME\n", ViolationBadInput},
		{"unknown output step", "name: x\nsteps:\n  - id: a\n    inputs:\n      p: $outputs.ghost.value\n", ViolationUnknownOutput},
		{"empty document", "   \n", ViolationMalformedSource},
		{"not yaml mapping", "- just\n- a list\n", ViolationMalformedSource},
		{"bad next shape", "name: x\nsteps:\n  - id: a\n    next: {goto: a}\n", ViolationMalformedSource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, errs := Load([]RawDefinition{raw("doc.yaml", tt.doc)})
			require.Len(t, errs, 1)
			var defErr *DefinitionError
			require.True(t, errors.As(errs[0], &defErr), "got %T", errs[0])
			assert.Equal(t, tt.violation, defErr.Violation, defErr.Error())
			assert.Equal(t, "doc.yaml", defErr.Source)
			assert.Equal(t, 0, reg.Len())
		})
	}
}

func TestLoad_ReportsEveryViolation(t *testing.T) {
	doc := `
name: many
steps:
  - id: a
    next:
      - condition: score >
        goto: b
      - condition: else
        goto: nowhere
  - id: b
    inputs:
      p: $outputs.ghost.value
`
	_, errs := Load([]RawDefinition{raw("many.yaml", doc)})
	require.Len(t, errs, 1, "one rejected definition")

	var got []string
	for _, v := range Violations(errs[0]) {
		assert.Equal(t, "many", v.Workflow)
		got = append(got, v.Violation)
	}
	assert.Equal(t, []string{ViolationBadCondition, ViolationDanglingGoto, ViolationUnknownOutput}, got)
}

func TestLoad_ExpressionCondition(t *testing.T) {
	doc := `
name: scored
steps:
  - id: grade
    tool: grade
    next:
      - condition: score >= 0.8
        goto: publish
      - condition: else
        goto: revise
  - id: publish
  - id: revise
`
	reg := mustLoad(t, doc)
	def, err := reg.Get("scored")
	require.NoError(t, err)
	start, _ := def.Step("grade")

	m := NewConditionMatcher()
	next, ok := start.Next.Resolve(m, map[string]any{"score": 0.92})
	require.True(t, ok)
	assert.Equal(t, "publish", next)
	next, ok = start.Next.Resolve(m, map[string]any{"score": 0.4})
	require.True(t, ok)
	assert.Equal(t, "revise", next)
}

func TestParseDefinitionYAML(t *testing.T) {
	def, err := ParseDefinitionYAML([]byte(linearYAML))
	require.NoError(t, err)
	assert.Equal(t, "linear", def.Name)
	assert.NotEmpty(t, def.Entry())

	_, err = ParseDefinitionYAML([]byte("name: x\n"))
	require.Error(t, err)
	require.Len(t, Violations(err), 1)
	assert.Equal(t, ViolationNoSteps, Violations(err)[0].Violation)
}

func TestDefinition_UsesTool(t *testing.T) {
	def, err := ParseDefinitionYAML([]byte(branchingYAML))
	require.NoError(t, err)
	for _, tool := range def.Tools() {
		assert.True(t, def.UsesTool(tool), tool)
	}
	assert.False(t, def.UsesTool("never_used"))
}

func TestLoad_EntryResolution(t *testing.T) {
	marked := `
name: marked
steps:
  - id: loop
    next: check
  - id: check
    entry: true
    next:
      - condition: again
        goto: loop
`
	selfLoop := `
name: self_loop
steps:
  - id: poll
    next:
      - condition: pending
        goto: poll
      - condition: else
        goto: done
  - id: done
`
	reg := mustLoad(t, marked, selfLoop)

	def, _ := reg.Get("marked")
	assert.Equal(t, "check", def.Entry())

	def, _ = reg.Get("self_loop")
	assert.Equal(t, "poll", def.Entry(), "a self reference does not count as incoming")
}

func TestLoad_DuplicateNameKeepsFirst(t *testing.T) {
	other := "name: linear\ndescription: second\nsteps:\n  - id: only\n"
	reg, errs := Load([]RawDefinition{raw("first.yaml", linearYAML), raw("second.yaml", other)})
	require.Len(t, errs, 1)

	var defErr *DefinitionError
	require.True(t, errors.As(errs[0], &defErr))
	assert.Equal(t, ViolationDuplicateName, defErr.Violation)
	assert.Equal(t, "second.yaml", defErr.Source)

	def, err := reg.Get("linear")
	require.NoError(t, err)
	assert.Equal(t, "Three steps in a row.", def.Description)
}

// --- Queries ---

func TestRegistry_ListAndCategories(t *testing.T) {
	other := "name: alpha\ncategory: other\nsteps:\n  - id: s\n    tool: first\n"
	reg := mustLoad(t, linearYAML, branchingYAML, other)

	all := reg.List("")
	require.Len(t, all, 3)
	assert.Equal(t, "alpha", all[0].Name)
	assert.Equal(t, "branching", all[1].Name)
	assert.Equal(t, "linear", all[2].Name)
	assert.Equal(t, 3, all[2].Steps)

	demo := reg.List("demo")
	require.Len(t, demo, 2)
	assert.Empty(t, reg.List("missing"))

	assert.Equal(t, []string{"demo", "other"}, reg.Categories())
}

func TestRegistry_StepsUsingTool(t *testing.T) {
	other := "name: alpha\nsteps:\n  - id: s\n    tool: first\n"
	reg := mustLoad(t, linearYAML, other)

	got := reg.StepsUsingTool("first")
	assert.Equal(t, []StepRef{
		{Workflow: "alpha", Step: "s", Index: 0},
		{Workflow: "linear", Step: "one", Index: 0},
		{Workflow: "linear", Step: "three", Index: 2},
	}, got)

	got[0].Step = "mutated"
	assert.Equal(t, "s", reg.StepsUsingTool("first")[0].Step)

	assert.Empty(t, reg.StepsUsingTool("unknown"))
}

func TestGet_NotFound(t *testing.T) {
	_, err := Empty().Get("nope")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "nope")
}

// --- Built-ins and directories ---

func TestBuiltinDefinitionsAreValid(t *testing.T) {
	builtin := Builtin()
	require.NotEmpty(t, builtin)

	reg, errs := Load(builtin)
	require.Empty(t, errs)
	assert.Equal(t, len(builtin), reg.Len())

	for _, name := range []string{"prompt_optimization", "content_pipeline", "quick_testing", "reference_library"} {
		def, err := reg.Get(name)
		require.NoError(t, err, name)
		assert.True(t, IsBuiltin(def), name)
		assert.NotEmpty(t, def.Entry(), name)
	}
}

func TestLoadDir_OverridesBuiltinAndSkipsIndex(t *testing.T) {
	dir := t.TempDir()
	override := "name: quick_testing\ndescription: local copy\nsteps:\n  - id: only\n    tool: local_tool\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "quick.yaml"), []byte(override), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "linear.yml"), []byte(linearYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.yaml"), []byte("workflows: [quick]\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	reg, rejected, err := LoadDir(dir)
	require.NoError(t, err)
	require.Empty(t, rejected)

	def, err := reg.Get("quick_testing")
	require.NoError(t, err)
	assert.Equal(t, "local copy", def.Description)
	assert.False(t, IsBuiltin(def))

	_, err = reg.Get("linear")
	assert.NoError(t, err)
	_, err = reg.Get("prompt_optimization")
	assert.NoError(t, err, "other built-ins still load")
}

func TestLoadDir_MissingDirectoryUsesBuiltins(t *testing.T) {
	reg, rejected, err := LoadDir(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Empty(t, rejected)
	assert.Equal(t, len(Builtin()), reg.Len())
}

func TestLoadDir_ReportsBadFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("name: bad\nsteps: []\n"), 0o644))

	reg, rejected, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.Contains(t, rejected[0].Error(), "bad")
	_, err = reg.Get("bad")
	assert.ErrorIs(t, err, ErrNotFound)
}

// --- Holder ---

func TestHolderSwap(t *testing.T) {
	first := mustLoad(t, linearYAML)
	h := NewHolder(first)

	_, err := h.Get("linear")
	require.NoError(t, err)

	prev := h.Swap(mustLoad(t, branchingYAML))
	assert.Same(t, first, prev)

	_, err = h.Get("linear")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, h.StepsUsingTool("analyze"), 1)
	assert.Len(t, h.List(""), 1)

	h.Swap(nil)
	assert.Equal(t, 0, h.Registry().Len())
}

func TestNilHolderRegistryIsEmpty(t *testing.T) {
	h := NewHolder(nil)
	assert.Empty(t, h.List(""))
}
