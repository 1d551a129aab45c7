package merge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type (
	doc  map[string]any
	list []any
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want Kind
	}{
		{"nil", nil, Null},
		{"string", "x", Scalar},
		{"float", 1.5, Scalar},
		{"bool", true, Scalar},
		{"time", time.Unix(0, 0), Scalar},
		{"typed slice", []string{"a"}, Scalar},
		{"sequence", []any{1, 2}, Sequence},
		{"map", map[string]any{"a": 1}, Map},
		{"named map", doc{"a": 1}, Map},
		{"named sequence", list{1}, Sequence},
		{"string map", map[string]string{"a": "b"}, Scalar},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.in))
		})
	}
}

func TestApply_OverwritesScalars(t *testing.T) {
	dst := map[string]any{"id": "u1", "name": "Ann", "age": 30}
	out := Apply(dst, map[string]any{"id": "u1", "age": 31})

	assert.Equal(t, map[string]any{"id": "u1", "name": "Ann", "age": 31}, out)
	assert.Equal(t, 30, dst["age"], "input must not be modified")
}

func TestApply_MergesNestedMaps(t *testing.T) {
	dst := map[string]any{
		"address": map[string]any{"city": "Oslo", "zip": "0150"},
	}
	patch := map[string]any{
		"address": map[string]any{"zip": "0151", "country": "NO"},
	}

	out := Apply(dst, patch)

	assert.Equal(t, map[string]any{
		"address": map[string]any{"city": "Oslo", "zip": "0151", "country": "NO"},
	}, out)
	assert.Equal(t, "0150", dst["address"].(map[string]any)["zip"])
}

func TestApply_ReplacesSequences(t *testing.T) {
	dst := map[string]any{"tags": []any{"a", "b", "c"}}
	out := Apply(dst, map[string]any{"tags": []any{"z"}})

	assert.Equal(t, []any{"z"}, out["tags"])
}

func TestApply_MapOverScalarReplaces(t *testing.T) {
	dst := map[string]any{"meta": "none"}
	out := Apply(dst, map[string]any{"meta": map[string]any{"k": 1}})

	assert.Equal(t, map[string]any{"k": 1}, out["meta"])
}

func TestApply_ScalarOverMapReplaces(t *testing.T) {
	dst := map[string]any{"meta": map[string]any{"k": 1}}
	out := Apply(dst, map[string]any{"meta": nil})

	assert.Nil(t, out["meta"])
	_, ok := out["meta"]
	assert.True(t, ok)
}

func TestApply_ResultDoesNotAliasPatch(t *testing.T) {
	patch := map[string]any{"nested": map[string]any{"k": 1}}
	out := Apply(map[string]any{}, patch)

	out["nested"].(map[string]any)["k"] = 2
	assert.Equal(t, 1, patch["nested"].(map[string]any)["k"])
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "map", Map.String())
	assert.Equal(t, "unknown", Kind(42).String())
}

func TestApply_MergesNamedMaps(t *testing.T) {
	dst := map[string]any{"addr": doc{"city": "Oslo", "zip": "0150"}}
	out := Apply(dst, map[string]any{"addr": doc{"city": "Bergen"}})

	assert.Equal(t, map[string]any{"city": "Bergen", "zip": "0150"}, out["addr"])
}

func TestClone_CopiesNamedContainers(t *testing.T) {
	nested := doc{"city": "Oslo"}
	tags := list{"a"}
	out := Clone(map[string]any{"addr": nested, "tags": tags}).(map[string]any)

	nested["city"] = "changed"
	tags[0] = "changed"

	assert.Equal(t, map[string]any{"city": "Oslo"}, out["addr"])
	assert.Equal(t, []any{"a"}, out["tags"])
}
