package value

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestFromAny_Scalars(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want Value
	}{
		{"nil", nil, Null{}},
		{"string", "hi", String("hi")},
		{"bool", true, Bool(true)},
		{"int", 42, Int(42)},
		{"int64", int64(-7), Int(-7)},
		{"float", 1.5, Float(1.5)},
		{"json int", json.Number("12"), Int(12)},
		{"json float", json.Number("1.25"), Float(1.25)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromAny(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromAny_Nested(t *testing.T) {
	in := map[string]any{
		"site":   "reddit",
		"tags":   []any{"a", "b"},
		"limits": map[string]any{"words": 300},
	}
	got, err := FromAny(in)
	require.NoError(t, err)

	want := Map{
		"site":   String("reddit"),
		"tags":   List{String("a"), String("b")},
		"limits": Map{"words": Int(300)},
	}
	assert.Equal(t, want, got)
	assert.Equal(t, in["site"], ToAny(got).(map[string]any)["site"])
}

func TestFromAny_Unsupported(t *testing.T) {
	_, err := FromAny(struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported type")
}

func TestMap_JSONKeepsIntegers(t *testing.T) {
	var m Map
	require.NoError(t, json.Unmarshal([]byte(`{"version": 3, "score": 0.5, "x": null}`), &m))
	assert.Equal(t, Int(3), m["version"])
	assert.Equal(t, Float(0.5), m["score"])
	assert.Equal(t, Null{}, m["x"])

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"version": 3, "score": 0.5, "x": null}`, string(data))
}

func TestMap_YAMLRoundTrip(t *testing.T) {
	src := Map{
		"persona": String("hemingway"),
		"styles":  List{String("terse"), String("plain")},
		"nested":  Map{"on": Bool(true), "n": Int(2)},
		"ratio":   Float(2),
		"big":     Float(1e21),
		"score":   Float(0.75),
	}
	data, err := yaml.Marshal(src)
	require.NoError(t, err)

	var back Map
	require.NoError(t, yaml.Unmarshal(data, &back))
	assert.Equal(t, src, back)
}

func TestMap_JSONKeepsWholeFloats(t *testing.T) {
	src := Map{"version": Float(2), "count": Int(2), "neg": Float(-3)}
	data, err := json.Marshal(src)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"version":2.0`)

	var back Map
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, src, back)
}

func TestMap_CloneIsDeep(t *testing.T) {
	src := Map{"list": List{String("a")}, "m": Map{"k": String("v")}}
	c := src.Clone()
	c["list"].(List)[0] = String("changed")
	c["m"].(Map)["k"] = String("changed")

	assert.Equal(t, String("a"), src["list"].(List)[0])
	assert.Equal(t, String("v"), src["m"].(Map)["k"])
}

func TestMap_SortedKeys(t *testing.T) {
	m := Map{"b": Null{}, "a": Null{}, "c": Null{}}
	assert.Equal(t, []string{"a", "b", "c"}, m.SortedKeys())
}
