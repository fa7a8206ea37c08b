package normalize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/mmdatafocus/records_backend/schema"
)

// Shape is the wire encoding a multi-valued field arrived in.
type Shape int

const (
	// ShapeAbsent means the payload carries nothing for the field.
	ShapeAbsent Shape = iota
	// ShapeNative: the field name maps directly to an array or object.
	ShapeNative
	// ShapeIndexed: field[0], field[1], ... keys.
	ShapeIndexed
	// ShapeBracketed: a single field[] key.
	ShapeBracketed
	// ShapeBare: the field name holds one scalar.
	ShapeBare
)

func (s Shape) String() string {
	switch s {
	case ShapeNative:
		return "native"
	case ShapeIndexed:
		return "indexed"
	case ShapeBracketed:
		return "bracketed"
	case ShapeBare:
		return "bare"
	}
	return "absent"
}

type Result struct {
	Values []string
	Shape  Shape
	// Dropped holds elements removed because they are not valid reference identifiers.
	Dropped []string
}

// Present reports whether the payload carried the field at all, even as an empty list.
func (r Result) Present() bool {
	return r.Shape != ShapeAbsent
}

// Multi decodes a multi-valued field from payload. Shapes are tried in fixed
// order and the first one found wins. Values is never nil.
func Multi(fd schema.FieldDescriptor, payload map[string]any) Result {
	shape, raw := detect(fd.Name, payload)
	res := Result{Shape: shape, Values: []string{}}
	if shape == ShapeAbsent {
		return res
	}

	var elems []string
	switch shape {
	case ShapeNative:
		elems = flattenTop(raw)
	default:
		elems = flatten(raw, nil)
	}

	for _, v := range elems {
		if fd.Type == schema.ReferenceArray && !IsIdentifier(v) {
			res.Dropped = append(res.Dropped, v)
			continue
		}
		res.Values = append(res.Values, v)
	}
	return res
}

// IsIdentifier reports whether v is a well-formed record identifier.
func IsIdentifier(v string) bool {
	_, err := uuid.Parse(v)
	return err == nil
}

// detect finds the first matching shape and returns its raw value.
func detect(name string, payload map[string]any) (Shape, any) {
	if v, ok := payload[name]; ok {
		switch v.(type) {
		case []any, []string, map[string]any, map[string]string:
			return ShapeNative, v
		}
	}

	if indexed, ok := collectIndexed(name, payload); ok {
		return ShapeIndexed, indexed
	}

	if v, ok := payload[name+"[]"]; ok {
		return ShapeBracketed, v
	}

	if v, ok := payload[name]; ok {
		return ShapeBare, v
	}
	return ShapeAbsent, nil
}

var indexedKey = regexp.MustCompile(`^\[(\d+)\](.*)$`)

// collectIndexed gathers field[n] keys in index order. Trailing sub-keys such as
// field[0][id] make the element an object.
func collectIndexed(name string, payload map[string]any) ([]any, bool) {
	type entry struct {
		index int
		value any
		sub   map[string]any
	}
	byIndex := map[int]*entry{}
	for key, v := range payload {
		if !strings.HasPrefix(key, name+"[") {
			continue
		}
		m := indexedKey.FindStringSubmatch(key[len(name):])
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		e, ok := byIndex[idx]
		if !ok {
			e = &entry{index: idx}
			byIndex[idx] = e
		}
		if m[2] == "" {
			e.value = v
			continue
		}
		if e.sub == nil {
			e.sub = map[string]any{}
		}
		e.sub[m[2]] = v
	}
	if len(byIndex) == 0 {
		return nil, false
	}

	entries := make([]*entry, 0, len(byIndex))
	for _, e := range byIndex {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].index < entries[j].index })

	out := make([]any, 0, len(entries))
	for _, e := range entries {
		if e.value == nil && e.sub != nil {
			out = append(out, e.sub)
			continue
		}
		out = append(out, e.value)
	}
	return out, true
}

// flattenTop treats a top-level object as an implicitly indexed list.
func flattenTop(raw any) []string {
	switch v := raw.(type) {
	case map[string]any:
		var out []string
		for _, k := range sortedKeys(v) {
			out = flatten(v[k], out)
		}
		return out
	case map[string]string:
		m := make(map[string]any, len(v))
		for k, s := range v {
			m[k] = s
		}
		return flattenTop(m)
	}
	return flatten(raw, nil)
}

// flatten appends the scalar elements of raw to out. Objects reduce to their
// first value, array/object literals are parsed, empty elements are dropped.
func flatten(raw any, out []string) []string {
	switch v := raw.(type) {
	case nil:
		return out
	case []any:
		for _, e := range v {
			out = flatten(e, out)
		}
		return out
	case []string:
		for _, e := range v {
			out = flatten(e, out)
		}
		return out
	case map[string]any:
		keys := sortedKeys(v)
		if len(keys) == 0 {
			return out
		}
		return flatten(v[keys[0]], out)
	case map[string]string:
		m := make(map[string]any, len(v))
		for k, s := range v {
			m[k] = s
		}
		return flatten(m, out)
	case string:
		s := strings.TrimSpace(v)
		if s == "" || s == "null" || s == "undefined" {
			return out
		}
		if s[0] == '[' || s[0] == '{' {
			var parsed any
			if err := json.Unmarshal([]byte(s), &parsed); err == nil {
				return flatten(parsed, out)
			}
		}
		return append(out, s)
	case json.Number:
		return append(out, v.String())
	case float64:
		return append(out, strconv.FormatFloat(v, 'f', -1, 64))
	case bool:
		return append(out, strconv.FormatBool(v))
	default:
		s := strings.TrimSpace(fmt.Sprint(v))
		if s == "" {
			return out
		}
		return append(out, s)
	}
}

// sortedKeys orders keys ascending, numeric keys by value and ahead of the rest.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, aerr := strconv.Atoi(keys[i])
		b, berr := strconv.Atoi(keys[j])
		switch {
		case aerr == nil && berr == nil:
			return a < b
		case aerr == nil:
			return true
		case berr == nil:
			return false
		}
		return keys[i] < keys[j]
	})
	return keys
}
