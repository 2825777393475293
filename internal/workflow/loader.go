package workflow

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed patterns/*.yaml
var patternsFS embed.FS

// builtinPrefix marks the Source of definitions shipped with the binary.
const builtinPrefix = "builtin:"

// indexFile is skipped when reading a directory; it describes the
// directory rather than defining a workflow.
const indexFile = "index.yaml"

// ParseDefinitionYAML decodes and validates one workflow definition.
func ParseDefinitionYAML(data []byte) (*Definition, error) {
	return parseDefinition("", data)
}

func parseDefinition(source string, data []byte) (*Definition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &DefinitionError{Violation: ViolationMalformedSource, Detail: "definition is empty", Source: source}
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, &DefinitionError{Violation: ViolationMalformedSource, Detail: err.Error(), Source: source}
	}
	def.Source = source
	if err := compile(&def); err != nil {
		return nil, err
	}
	return &def, nil
}

// Builtin returns the workflow definitions embedded in the binary.
func Builtin() []RawDefinition {
	entries, err := fs.ReadDir(patternsFS, "patterns")
	if err != nil {
		return nil
	}
	var out []RawDefinition
	for _, e := range entries {
		data, err := patternsFS.ReadFile(path.Join("patterns", e.Name()))
		if err != nil {
			continue
		}
		out = append(out, RawDefinition{Source: builtinPrefix + e.Name(), Data: data})
	}
	return out
}

// ReadDir returns every *.yaml / *.yml document in dir, ordered by file
// name. A missing directory yields no definitions and no error.
func ReadDir(dir string) ([]RawDefinition, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading workflows directory %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !isDefinitionFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	out := make([]RawDefinition, 0, len(names))
	for _, name := range names {
		p := filepath.Join(dir, name)
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading workflow %s: %w", p, err)
		}
		out = append(out, RawDefinition{Source: p, Data: data})
	}
	return out, nil
}

func isDefinitionFile(name string) bool {
	if name == indexFile || strings.HasPrefix(name, ".") {
		return false
	}
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}

// LoadDir builds a registry from the built-in definitions plus every
// definition in dir. A definition in dir replaces a built-in of the same
// name. The error slice lists rejected definitions; the returned error is
// set only when the directory itself cannot be read.
func LoadDir(dir string) (*Registry, []error, error) {
	raw, err := ReadDir(dir)
	if err != nil {
		return nil, nil, err
	}

	var defs []*Definition
	var errs []error
	local := map[string]bool{}
	for _, r := range raw {
		def, err := parseDefinition(r.Source, r.Data)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		local[def.Name] = true
		defs = append(defs, def)
	}
	for _, r := range Builtin() {
		def, err := parseDefinition(r.Source, r.Data)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if local[def.Name] {
			continue
		}
		defs = append(defs, def)
	}

	reg, dupErrs := assemble(defs)
	return reg, append(errs, dupErrs...), nil
}

// IsBuiltin reports whether def was loaded from the embedded set.
func IsBuiltin(def *Definition) bool {
	return strings.HasPrefix(def.Source, builtinPrefix)
}
