// Package merge implements the structural deep merge used to apply a partial
// document onto a freshly read one.
package merge

import "reflect"

var (
	mapType = reflect.TypeOf(map[string]any(nil))
	seqType = reflect.TypeOf([]any(nil))
)

// Kind classifies a decoded document value.
type Kind int

const (
	// Null is an absent or nil value.
	Null Kind = iota
	// Scalar is a string, number, boolean, timestamp or any other leaf.
	Scalar
	// Sequence is an ordered list. Sequences are replaced, never merged.
	Sequence
	// Map is a nested object whose fields merge recursively.
	Map
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Scalar:
		return "scalar"
	case Sequence:
		return "sequence"
	case Map:
		return "map"
	default:
		return "unknown"
	}
}

// KindOf returns the kind of v. The generic decoded shapes (map[string]any
// and []any) and named types defined on them, such as a document type, are
// containers; typed structs and slices of concrete types are leaves.
func KindOf(v any) Kind {
	if v == nil {
		return Null
	}
	if _, ok := asMap(v); ok {
		return Map
	}
	if _, ok := asSeq(v); ok {
		return Sequence
	}
	return Scalar
}

func asMap(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || !rv.Type().ConvertibleTo(mapType) {
		return nil, false
	}
	return rv.Convert(mapType).Interface().(map[string]any), true
}

func asSeq(v any) ([]any, bool) {
	if s, ok := v.([]any); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || !rv.Type().ConvertibleTo(seqType) {
		return nil, false
	}
	return rv.Convert(seqType).Interface().([]any), true
}

// Apply returns a new map holding dst with patch merged on top of it.
// Neither argument is modified.
//
// For every field in patch: when both sides are maps the field merges
// recursively, otherwise the patch value replaces the target value. Fields
// absent from patch are kept unchanged.
func Apply(dst, patch map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(patch))
	for k, v := range dst {
		out[k] = Clone(v)
	}
	for k, pv := range patch {
		if cur, ok := asMap(out[k]); ok {
			if pm, ok := asMap(pv); ok {
				out[k] = Apply(cur, pm)
				continue
			}
		}
		out[k] = Clone(pv)
	}
	return out
}

// Clone deep-copies maps and sequences. Named map and sequence types come
// back as map[string]any and []any. Leaves are returned as-is.
func Clone(v any) any {
	if m, ok := asMap(v); ok {
		out := make(map[string]any, len(m))
		for k, e := range m {
			out[k] = Clone(e)
		}
		return out
	}
	if s, ok := asSeq(v); ok {
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = Clone(e)
		}
		return out
	}
	return v
}
