package resolver

import (
	"reflect"
	"testing"
)

func TestDeepGet_Paths(t *testing.T) {
	root := map[string]any{
		"a": map[string]any{
			"b": []any{
				map[string]any{"c": "first"},
				map[string]any{"c": "second"},
			},
		},
		"n": float64(7),
		"s": "plain",
	}

	tests := []struct {
		name    string
		path    string
		want    any
		present bool
	}{
		{"nested_with_index", "a.b[0].c", "first", true},
		{"second_index", "a.b[1].c", "second", true},
		{"top_level_number", "n", float64(7), true},
		{"top_level_string", "s", "plain", true},
		{"missing_key", "a.x", nil, false},
		{"index_out_of_range", "a.b[5].c", nil, false},
		{"key_into_scalar", "s.x", nil, false},
		{"index_into_mapping", "a[0]", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, present := DeepGet(root, tt.path)
			if present != tt.present {
				t.Fatalf("DeepGet(%q): present=%v, want %v", tt.path, present, tt.present)
			}
			if present && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DeepGet(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestDeepGet_EmptyPathReturnsRoot(t *testing.T) {
	root := map[string]any{"k": "v"}

	got, present := DeepGet(root, "")
	if !present {
		t.Fatal("empty path should be present")
	}
	if !reflect.DeepEqual(got, root) {
		t.Errorf("empty path = %v, want root %v", got, root)
	}
}

func TestDeepGet_NullIsAbsent(t *testing.T) {
	root := map[string]any{"k": nil}

	if _, present := DeepGet(root, "k"); present {
		t.Error("null value should report absent")
	}
}

func TestRender_MissingPathLeftLiteral(t *testing.T) {
	context := map[string]any{
		"input": map[string]any{"name": "Ada"},
	}

	got := Render("hello {missing.path} {input.name}", context)
	want := "hello {missing.path} Ada"
	if got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}
}

func TestRender_Recursion(t *testing.T) {
	context := map[string]any{
		"input": map[string]any{"v": "hi", "n": float64(3)},
	}

	value := map[string]any{
		"plain":  "{input.v}",
		"number": "n={input.n}",
		"nested": map[string]any{"deep": "{input.v}!"},
		"list":   []any{"{input.v}", float64(1), true},
		"scalar": float64(42),
	}

	got := Render(value, context).(map[string]any)

	if got["plain"] != "hi" {
		t.Errorf("plain = %v", got["plain"])
	}
	if got["number"] != "n=3" {
		t.Errorf("number = %v", got["number"])
	}
	if got["nested"].(map[string]any)["deep"] != "hi!" {
		t.Errorf("nested = %v", got["nested"])
	}
	list := got["list"].([]any)
	if list[0] != "hi" || list[1] != float64(1) || list[2] != true {
		t.Errorf("list = %v", list)
	}
	if got["scalar"] != float64(42) {
		t.Errorf("scalar = %v", got["scalar"])
	}
}

func TestRender_Idempotent(t *testing.T) {
	context := map[string]any{
		"input": map[string]any{"name": "Ada"},
	}
	value := "hello {missing} {input.name}"

	once := Render(value, context)
	twice := Render(once, context)
	if once != twice {
		t.Errorf("render not idempotent: %q vs %q", once, twice)
	}
}

func TestSetPath_CreatesIntermediateMappings(t *testing.T) {
	payload := map[string]any{"existing": "kept"}

	got := SetPath(payload, "serviceResult.inner.key", "val").(map[string]any)

	if got["existing"] != "kept" {
		t.Errorf("existing key lost: %v", got)
	}
	inner := got["serviceResult"].(map[string]any)["inner"].(map[string]any)
	if inner["key"] != "val" {
		t.Errorf("nested assignment failed: %v", got)
	}
}

func TestSetPath_OverwritesNonMappingIntermediate(t *testing.T) {
	payload := map[string]any{"a": "scalar"}

	got := SetPath(payload, "a.b", float64(1)).(map[string]any)

	inner, ok := got["a"].(map[string]any)
	if !ok {
		t.Fatalf("intermediate not replaced with mapping: %v", got)
	}
	if inner["b"] != float64(1) {
		t.Errorf("assignment failed: %v", got)
	}
}
