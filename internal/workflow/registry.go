package workflow

import (
	"fmt"
	"sort"
	"sync/atomic"
)

// Catalog is the read side of a registry. Both Registry and Holder satisfy
// it, so consumers keep working across reloads.
type Catalog interface {
	Get(name string) (*Definition, error)
	List(category string) []Summary
	StepsUsingTool(tool string) []StepRef
}

// RawDefinition is one undecoded workflow document.
type RawDefinition struct {
	Source string
	Data   []byte
}

// Registry is an immutable set of validated workflow definitions.
type Registry struct {
	defs   map[string]*Definition
	names  []string
	byTool map[string][]StepRef
}

// Load parses and validates every raw definition. A definition that fails
// is reported (see Violations) and left out; the rest still load.
func Load(raw []RawDefinition) (*Registry, []error) {
	defs := make([]*Definition, 0, len(raw))
	var errs []error
	for _, r := range raw {
		def, err := parseDefinition(r.Source, r.Data)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		defs = append(defs, def)
	}
	reg, dupErrs := assemble(defs)
	return reg, append(errs, dupErrs...)
}

// assemble indexes already validated definitions. A name seen twice keeps
// the first definition.
func assemble(defs []*Definition) (*Registry, []error) {
	reg := &Registry{
		defs:   make(map[string]*Definition, len(defs)),
		byTool: map[string][]StepRef{},
	}
	var errs []error
	for _, def := range defs {
		if _, dup := reg.defs[def.Name]; dup {
			errs = append(errs, &DefinitionError{
				Workflow:  def.Name,
				Violation: ViolationDuplicateName,
				Source:    def.Source,
			})
			continue
		}
		reg.defs[def.Name] = def
		reg.names = append(reg.names, def.Name)
	}
	sort.Strings(reg.names)

	for _, name := range reg.names {
		def := reg.defs[name]
		for i, s := range def.Steps {
			if s.Tool == "" {
				continue
			}
			reg.byTool[s.Tool] = append(reg.byTool[s.Tool], StepRef{Workflow: name, Step: s.ID, Index: i})
		}
	}
	return reg, errs
}

// Empty returns a registry with no workflows.
func Empty() *Registry {
	reg, _ := assemble(nil)
	return reg
}

// Get returns the named definition.
func (r *Registry) Get(name string) (*Definition, error) {
	def, ok := r.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return def, nil
}

// List returns summaries ordered by name, filtered by category when given.
func (r *Registry) List(category string) []Summary {
	out := make([]Summary, 0, len(r.names))
	for _, name := range r.names {
		def := r.defs[name]
		if category != "" && def.Category != category {
			continue
		}
		out = append(out, def.Summarize())
	}
	return out
}

// Categories returns the distinct categories in use, sorted.
func (r *Registry) Categories() []string {
	seen := map[string]bool{}
	var out []string
	for _, def := range r.defs {
		c := def.Category
		if c == "" {
			c = "uncategorized"
		}
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

// Len returns the number of loaded workflows.
func (r *Registry) Len() int {
	return len(r.names)
}

// StepsUsingTool returns every step bound to tool, ordered by workflow name
// then step position.
func (r *Registry) StepsUsingTool(tool string) []StepRef {
	refs := r.byTool[tool]
	out := make([]StepRef, len(refs))
	copy(out, refs)
	return out
}

// --- Holder ---

// Holder publishes the current Registry and lets a reload replace it
// atomically. Readers never see a half-built registry.
type Holder struct {
	cur atomic.Pointer[Registry]
}

// NewHolder wraps reg. A nil reg is treated as Empty.
func NewHolder(reg *Registry) *Holder {
	h := &Holder{}
	h.Swap(reg)
	return h
}

// Registry returns the current registry.
func (h *Holder) Registry() *Registry {
	return h.cur.Load()
}

// Swap installs reg and returns the previous registry.
func (h *Holder) Swap(reg *Registry) *Registry {
	if reg == nil {
		reg = Empty()
	}
	return h.cur.Swap(reg)
}

// Get implements Catalog.
func (h *Holder) Get(name string) (*Definition, error) {
	return h.Registry().Get(name)
}

// List implements Catalog.
func (h *Holder) List(category string) []Summary {
	return h.Registry().List(category)
}

// StepsUsingTool implements Catalog.
func (h *Holder) StepsUsingTool(tool string) []StepRef {
	return h.Registry().StepsUsingTool(tool)
}
