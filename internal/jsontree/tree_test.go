package jsontree

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestParseKeepsKeyOrder(t *testing.T) {
	t.Parallel()

	node, err := Parse([]byte(`{"z": 1, "a": {"y": true, "b": null}, "m": [1, "two"]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	obj, ok := node.(*Object)
	if !ok {
		t.Fatalf("expected object, got %T", node)
	}
	if got := obj.Keys(); !reflect.DeepEqual(got, []string{"z", "a", "m"}) {
		t.Fatalf("unexpected key order: %v", got)
	}

	z, _ := obj.Get("z")
	if z != (Scalar{Value: json.Number("1")}) {
		t.Fatalf("unexpected number node: %#v", z)
	}

	m, _ := obj.Get("m")
	arr, ok := m.(Array)
	if !ok || len(arr) != 2 {
		t.Fatalf("unexpected array: %#v", m)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{``, `{`, `{"a":}`, `[1,]`, `{"a":1};`, `{"a":1} {"b":2}`} {
		if _, err := Parse([]byte(raw)); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestParseDuplicateKeyLastWins(t *testing.T) {
	t.Parallel()

	node, err := Parse([]byte(`{"a": 1, "b": 2, "a": 3}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	obj := node.(*Object)
	if got := obj.Keys(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("unexpected keys: %v", got)
	}
	a, _ := obj.Get("a")
	if text, _ := Text(a); text != "3" {
		t.Fatalf("expected last value, got %s", text)
	}
}

func TestTruthyAndText(t *testing.T) {
	t.Parallel()

	cases := []struct {
		node   Node
		truthy bool
		text   string
		isText bool
	}{
		{Scalar{}, false, "", false},
		{Scalar{Value: ""}, false, "", true},
		{Scalar{Value: "x"}, true, "x", true},
		{Scalar{Value: json.Number("0")}, false, "0", true},
		{Scalar{Value: json.Number("0.0")}, false, "0.0", true},
		{Scalar{Value: json.Number("42")}, true, "42", true},
		{Scalar{Value: false}, false, "false", true},
		{Array{}, false, "", false},
		{Array{Scalar{}}, true, "", false},
		{NewObject(), false, "", false},
		{NewObject("k", 1), true, "", false},
	}

	for i, tc := range cases {
		if got := Truthy(tc.node); got != tc.truthy {
			t.Fatalf("case %d: truthy expected %v, got %v", i, tc.truthy, got)
		}
		text, ok := Text(tc.node)
		if ok != tc.isText || text != tc.text {
			t.Fatalf("case %d: text expected (%q,%v), got (%q,%v)", i, tc.text, tc.isText, text, ok)
		}
	}
}

func TestFirstTruthy(t *testing.T) {
	t.Parallel()

	obj := NewObject("itemId", "", "id", 0, "value", "77")
	v, ok := FirstTruthy(obj, "itemId", "id", "value")
	if !ok {
		t.Fatal("expected a value")
	}
	if text, _ := Text(v); text != "77" {
		t.Fatalf("unexpected value: %s", text)
	}

	if _, ok := FirstTruthy(obj, "missing"); ok {
		t.Fatal("expected no value")
	}
}

func hasID(o *Object) bool { return o.Has("id") }

func nested(depth int, inner string) string {
	return strings.Repeat(`{"a":`, depth) + inner + strings.Repeat("}", depth)
}

func TestParseDeeplyNestedRecords(t *testing.T) {
	t.Parallel()

	node, err := Parse([]byte(nested(1500, `[{"id": 7}]`)))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	found := FindRecords(node, hasID)
	if len(found) != 1 {
		t.Fatalf("expected the nested record, got %d", len(found))
	}
}

func TestParseRejectsRunawayNesting(t *testing.T) {
	t.Parallel()

	doc := strings.Repeat("[", maxDepth+10) + strings.Repeat("]", maxDepth+10)
	if _, err := Parse([]byte(doc)); err == nil {
		t.Fatal("expected an error past the nesting limit")
	}
}

func TestFindRecordsWholeListOnMajority(t *testing.T) {
	t.Parallel()

	node, err := Parse([]byte(`{"meta": {"page": 1}, "data": {"list": [
		{"id": 1}, {"id": 2}, {"other": true}, 5
	]}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	found := FindRecords(node, hasID)
	if len(found) != 3 {
		t.Fatalf("expected all 3 object members, got %d", len(found))
	}
}

func TestFindRecordsSingletonWhenMinority(t *testing.T) {
	t.Parallel()

	node, err := Parse([]byte(`[{"x": 1}, {"id": 9}, {"y": 2}]`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	found := FindRecords(node, hasID)
	if len(found) != 1 {
		t.Fatalf("expected singleton, got %d", len(found))
	}
	if v, _ := found[0].Get("id"); v != (Scalar{Value: json.Number("9")}) {
		t.Fatalf("unexpected record: %#v", v)
	}
}

func TestFindRecordsDepthFirstOrder(t *testing.T) {
	t.Parallel()

	node, err := Parse([]byte(`{"a": {"deep": {"id": "first"}}, "b": {"id": "second"}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	found := FindRecords(node, hasID)
	if len(found) != 1 {
		t.Fatalf("expected one record, got %d", len(found))
	}
	if v, _ := found[0].Get("id"); v != (Scalar{Value: "first"}) {
		t.Fatalf("expected depth-first match, got %#v", v)
	}
}

func TestFindRecordsTerminatesOnScalars(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{`1`, `"s"`, `null`, `[]`, `{}`, `[[[]]]`} {
		node, err := Parse([]byte(raw))
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if found := FindRecords(node, hasID); len(found) != 0 {
			t.Fatalf("expected nothing for %q", raw)
		}
	}
}
