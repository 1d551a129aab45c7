// Package filter evaluates the subset of DynamoDB-style filter expressions
// understood by the local connectors.
//
// Supported clauses, joined with AND:
//
//	path = :v    path <> :v    path < :v    path <= :v    path > :v    path >= :v
//	attribute_exists(path)     attribute_not_exists(path)
//	begins_with(path, :v)      contains(path, :v)
//
// A path is a dotted field name; segments may be #placeholders resolved
// through the expression attribute names.
package filter

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

// ErrSyntax is returned for expressions outside the supported subset.
var ErrSyntax = errors.New("filter: unsupported expression")

var (
	andSplit   = regexp.MustCompile(`(?i)\s+AND\s+`)
	comparison = regexp.MustCompile(`^([#\w.]+)\s*(=|<>|<=|>=|<|>)\s*(:\w+)$`)
	function   = regexp.MustCompile(`^(?i)(attribute_exists|attribute_not_exists)\(\s*([#\w.]+)\s*\)$`)
	binaryFunc = regexp.MustCompile(`^(?i)(begins_with|contains)\(\s*([#\w.]+)\s*,\s*(:\w+)\s*\)$`)
)

type clause struct {
	op    string
	path  []string
	param string
}

// Expr is a compiled filter expression. The zero value matches everything.
type Expr struct {
	clauses []clause
}

// Compile parses text, resolving #placeholders through names.
func Compile(text string, names map[string]string) (*Expr, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return &Expr{}, nil
	}

	var e Expr
	for _, part := range andSplit.Split(text, -1) {
		part = stripParens(part)
		var c clause
		var rawPath string

		if m := comparison.FindStringSubmatch(part); m != nil {
			rawPath, c.op, c.param = m[1], m[2], m[3]
		} else if m := function.FindStringSubmatch(part); m != nil {
			rawPath, c.op = m[2], strings.ToLower(m[1])
		} else if m := binaryFunc.FindStringSubmatch(part); m != nil {
			rawPath, c.op, c.param = m[2], strings.ToLower(m[1]), m[3]
		} else {
			return nil, fmt.Errorf("%w: %q", ErrSyntax, part)
		}

		path, err := resolvePath(rawPath, names)
		if err != nil {
			return nil, err
		}
		c.path = path
		e.clauses = append(e.clauses, c)
	}
	return &e, nil
}

// stripParens drops grouping parentheses around a clause. Clauses are only
// ever joined by AND, so grouping never changes the result.
func stripParens(part string) string {
	part = strings.TrimSpace(part)
	for strings.HasPrefix(part, "(") && strings.Count(part, "(") > strings.Count(part, ")") {
		part = strings.TrimSpace(part[1:])
	}
	for strings.HasSuffix(part, ")") && strings.Count(part, ")") > strings.Count(part, "(") {
		part = strings.TrimSpace(part[:len(part)-1])
	}
	for strings.HasPrefix(part, "(") && strings.HasSuffix(part, ")") && balanced(part[1:len(part)-1]) {
		part = strings.TrimSpace(part[1 : len(part)-1])
	}
	return part
}

func balanced(s string) bool {
	depth := 0
	for _, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

func resolvePath(raw string, names map[string]string) ([]string, error) {
	segs := strings.Split(raw, ".")
	for i, s := range segs {
		if strings.HasPrefix(s, "#") {
			name, ok := names[s]
			if !ok {
				return nil, fmt.Errorf("%w: undefined attribute name %s", ErrSyntax, s)
			}
			segs[i] = name
		}
	}
	return segs, nil
}

// Match reports whether doc satisfies every clause.
func (e *Expr) Match(doc map[string]any, params map[string]any) (bool, error) {
	if e == nil {
		return true, nil
	}
	for _, c := range e.clauses {
		v, present := lookup(doc, c.path)

		switch c.op {
		case "attribute_exists":
			if !present {
				return false, nil
			}
			continue
		case "attribute_not_exists":
			if present {
				return false, nil
			}
			continue
		}

		want, ok := params[c.param]
		if !ok {
			return false, fmt.Errorf("%w: undefined parameter %s", ErrSyntax, c.param)
		}
		if !present {
			return false, nil
		}

		match, err := apply(c.op, v, want)
		if err != nil || !match {
			return false, err
		}
	}
	return true, nil
}

func lookup(doc map[string]any, path []string) (any, bool) {
	var cur any = doc
	for _, seg := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func apply(op string, have, want any) (bool, error) {
	switch op {
	case "=":
		return equal(have, want), nil
	case "<>":
		return !equal(have, want), nil
	case "begins_with":
		hs, ok1 := have.(string)
		ws, ok2 := want.(string)
		return ok1 && ok2 && strings.HasPrefix(hs, ws), nil
	case "contains":
		switch h := have.(type) {
		case string:
			ws, ok := want.(string)
			return ok && strings.Contains(h, ws), nil
		case []any:
			for _, e := range h {
				if equal(e, want) {
					return true, nil
				}
			}
		}
		return false, nil
	}

	cmp, ok := compare(have, want)
	if !ok {
		return false, nil
	}
	switch op {
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case ">":
		return cmp > 0, nil
	case ">=":
		return cmp >= 0, nil
	}
	return false, fmt.Errorf("%w: operator %s", ErrSyntax, op)
}

func equal(a, b any) bool {
	if fa, ok := number(a); ok {
		fb, ok := number(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func compare(a, b any) (int, bool) {
	if fa, ok := number(a); ok {
		fb, ok := number(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	sa, ok1 := a.(string)
	sb, ok2 := b.(string)
	if !ok1 || !ok2 {
		return 0, false
	}
	return strings.Compare(sa, sb), true
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
