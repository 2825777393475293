// Package templates resolves {{placeholder}} markers in reference content
// and evaluates the reference-expression grammar used to wire data between
// workflow steps.
//
// Resolution never fails: a placeholder with no matching variable is left
// verbatim so content can be resolved in several passes (a site template
// filled with {{title}} now, another placeholder further down the pipeline).
package templates

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/HendryAvila/substrate/internal/value"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([^{}\s]+)\s*\}\}`)

// Resolve replaces every {{key}} in content with the string form of
// vars[key]. Dotted keys ("site.name") fall back to walking nested maps.
// Substituted text is not rescanned.
func Resolve(content string, vars map[string]any) string {
	if len(vars) == 0 || !strings.Contains(content, "{{") {
		return content
	}
	return placeholderRe.ReplaceAllStringFunc(content, func(match string) string {
		key := placeholderRe.FindStringSubmatch(match)[1]
		v, ok := lookup(vars, key)
		if !ok {
			return match
		}
		return Stringify(v)
	})
}

// Placeholders returns the distinct placeholder keys in content, in order
// of first appearance.
func Placeholders(content string) []string {
	matches := placeholderRe.FindAllStringSubmatch(content, -1)
	seen := make(map[string]bool, len(matches))
	var keys []string
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			keys = append(keys, m[1])
		}
	}
	return keys
}

// HasUnresolved reports whether content still carries a "{{" marker.
func HasUnresolved(content string) bool {
	return strings.Contains(content, "{{")
}

// Stringify renders a variable for substitution. Structured values are
// rendered as compact JSON.
func Stringify(v any) string {
	if vv, ok := v.(value.Value); ok {
		v = value.ToAny(vv)
	}
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case []any, map[string]any, []string:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	default:
		return fmt.Sprint(x)
	}
}

// lookup finds key in vars, first as a literal key and then as a dotted
// path through nested maps. Nil values count as missing.
func lookup(vars map[string]any, key string) (any, bool) {
	if v, ok := vars[key]; ok {
		return v, !isNull(v)
	}
	if !strings.Contains(key, ".") {
		return nil, false
	}

	var cur any = vars
	for _, seg := range strings.Split(key, ".") {
		switch m := cur.(type) {
		case map[string]any:
			next, ok := m[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case value.Map:
			next, ok := m[seg]
			if !ok {
				return nil, false
			}
			cur = next
		default:
			return nil, false
		}
	}
	if isNull(cur) {
		return nil, false
	}
	return cur, true
}

func isNull(v any) bool {
	if v == nil {
		return true
	}
	_, null := v.(value.Null)
	return null
}
