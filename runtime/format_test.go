package runtime

import (
	"math"
	"testing"
)

func TestStringify(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{"nil", nil, "null"},
		{"string", "hi", "hi"},
		{"int", 42, "42"},
		{"int64", int64(-7), "-7"},
		{"float", 2.5, "2.5"},
		{"whole float", float64(3), "3"},
		{"bool", false, "false"},
		{"NaN", math.NaN(), "NaN"},
		{"list", []any{1, "a"}, "[\n  1,\n  \"a\"\n]"},
		{"typed list", []string{"x"}, "[\n  \"x\"\n]"},
		{"no html escape", map[string]any{"q": "<a&b>"}, "{\n  \"q\": \"<a&b>\"\n}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Stringify(tt.input); got != tt.want {
				t.Errorf("Stringify(%#v) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		input any
		want  bool
	}{
		{nil, false},
		{false, false},
		{true, true},
		{0, false},
		{1, true},
		{0.0, false},
		{math.NaN(), false},
		{"", false},
		{"false", true},
		{[]any{}, true},
		{map[string]any{}, true},
	}

	for _, tt := range tests {
		if got := Truthy(tt.input); got != tt.want {
			t.Errorf("Truthy(%#v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestToInt(t *testing.T) {
	tests := []struct {
		input any
		want  int
	}{
		{"3", 3},
		{" 12abc", 12},
		{"-4", -4},
		{"abc", 0},
		{3.9, 3},
		{int64(8), 8},
		{nil, 0},
		{true, 0},
	}

	for _, tt := range tests {
		if got := ToInt(tt.input); got != tt.want {
			t.Errorf("ToInt(%#v) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestTypeName(t *testing.T) {
	tests := []struct {
		input any
		want  string
	}{
		{nil, "null"},
		{"5", "string"},
		{5, "number"},
		{1.5, "number"},
		{true, "boolean"},
		{[]any{1}, "array"},
		{map[string]any{}, "object"},
	}

	for _, tt := range tests {
		if got := TypeName(tt.input); got != tt.want {
			t.Errorf("TypeName(%#v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
