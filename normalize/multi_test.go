package normalize

import (
	"reflect"
	"testing"

	"github.com/mmdatafocus/records_backend/schema"
)

const (
	id1 = "6f1c2a52-5d1b-4c8e-9a55-1f3f7b1d2e01"
	id2 = "6f1c2a52-5d1b-4c8e-9a55-1f3f7b1d2e02"
	id3 = "6f1c2a52-5d1b-4c8e-9a55-1f3f7b1d2e03"
)

var refs = schema.FieldDescriptor{Name: "category_ids", Type: schema.ReferenceArray, Multiple: true}
var tags = schema.FieldDescriptor{Name: "tag_id", Type: schema.TextArray, Multiple: true}

func TestMultiEncodingEquivalence(t *testing.T) {
	want := []string{id1, id2, id1}
	cases := []struct {
		name    string
		payload map[string]any
		shape   Shape
	}{
		{"native array", map[string]any{"category_ids": []any{id1, id2, id1}}, ShapeNative},
		{"native strings", map[string]any{"category_ids": []string{id1, id2, id1}}, ShapeNative},
		// keys order numerically: 1, 2, 10
		{"native object", map[string]any{"category_ids": map[string]any{"10": id1, "2": id2, "1": id1}}, ShapeNative},
		{"indexed", map[string]any{"category_ids[2]": id1, "category_ids[0]": id1, "category_ids[1]": id2}, ShapeIndexed},
		{"bracketed literal", map[string]any{"category_ids[]": `["` + id1 + `","` + id2 + `","` + id1 + `"]`}, ShapeBracketed},
		{"bracketed repeated", map[string]any{"category_ids[]": []any{id1, id2, id1}}, ShapeBracketed},
	}
	for _, tc := range cases {
		res := Multi(refs, tc.payload)
		if !reflect.DeepEqual(res.Values, want) {
			t.Fatalf("%s: got %v, want %v", tc.name, res.Values, want)
		}
		if res.Shape != tc.shape {
			t.Fatalf("%s: shape %s, want %s", tc.name, res.Shape, tc.shape)
		}
	}
}

func TestMultiSingleIdentifierForms(t *testing.T) {
	want := []string{id3}
	payloads := []map[string]any{
		{"category_ids[]": id3},
		{"category_ids": id3},
		{"category_ids[0]": id3},
		{"category_ids": []any{id3}},
	}
	for i, p := range payloads {
		if got := Multi(refs, p).Values; !reflect.DeepEqual(got, want) {
			t.Fatalf("payload %d: got %v, want %v", i, got, want)
		}
	}
}

func TestMultiIndexedTags(t *testing.T) {
	res := Multi(tags, map[string]any{"tag_id[0]": "A", "tag_id[1]": "B"})
	if !reflect.DeepEqual(res.Values, []string{"A", "B"}) {
		t.Fatalf("got %v", res.Values)
	}
	if len(res.Dropped) != 0 {
		t.Fatalf("text arrays never drop values: %v", res.Dropped)
	}
}

func TestMultiShapePriority(t *testing.T) {
	// native wins over indexed, indexed over bracketed, bracketed over bare
	p := map[string]any{
		"tag_id":    []any{"native"},
		"tag_id[0]": "indexed",
		"tag_id[]":  "bracketed",
	}
	if got := Multi(tags, p).Values; !reflect.DeepEqual(got, []string{"native"}) {
		t.Fatalf("native should win: %v", got)
	}
	delete(p, "tag_id")
	if got := Multi(tags, p).Values; !reflect.DeepEqual(got, []string{"indexed"}) {
		t.Fatalf("indexed should win: %v", got)
	}
	delete(p, "tag_id[0]")
	p["tag_id"] = "bare"
	if got := Multi(tags, p).Values; !reflect.DeepEqual(got, []string{"bracketed"}) {
		t.Fatalf("bracketed should win: %v", got)
	}
}

func TestMultiFlattensObjectsAndDropsEmpties(t *testing.T) {
	cases := []struct {
		name    string
		payload map[string]any
		want    []string
	}{
		{"object elements", map[string]any{"tag_id": []any{map[string]any{"value": "A"}, "B"}}, []string{"A", "B"}},
		{"nested literal", map[string]any{"tag_id[]": `[{"id":"A"},["B",""],null]`}, []string{"A", "B"}},
		{"form sub keys", map[string]any{"tag_id[0][id]": "A", "tag_id[1][id]": "B"}, []string{"A", "B"}},
		{"empties", map[string]any{"tag_id": []any{"", nil, " ", "C"}}, []string{"C"}},
		{"numbers", map[string]any{"tag_id": []any{1.0, 2.5}}, []string{"1", "2.5"}},
		{"literal in index", map[string]any{"tag_id[0]": `["A","B"]`, "tag_id[1]": "C"}, []string{"A", "B", "C"}},
		{"unparsable literal kept", map[string]any{"tag_id[]": "[oops"}, []string{"[oops"}},
	}
	for _, tc := range cases {
		if got := Multi(tags, tc.payload).Values; !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestMultiDropsInvalidIdentifiers(t *testing.T) {
	res := Multi(refs, map[string]any{"category_ids": []any{id1, "not-an-id", id2, "42"}})
	if !reflect.DeepEqual(res.Values, []string{id1, id2}) {
		t.Fatalf("values %v", res.Values)
	}
	if !reflect.DeepEqual(res.Dropped, []string{"not-an-id", "42"}) {
		t.Fatalf("dropped %v", res.Dropped)
	}
}

func TestMultiAlwaysReturnsSlice(t *testing.T) {
	res := Multi(tags, map[string]any{})
	if res.Values == nil || len(res.Values) != 0 || res.Present() {
		t.Fatalf("absent field: %+v", res)
	}
	res = Multi(tags, map[string]any{"tag_id[]": ""})
	if res.Values == nil || len(res.Values) != 0 || !res.Present() {
		t.Fatalf("explicitly emptied field: %+v", res)
	}
}
