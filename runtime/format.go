package runtime

import (
	"encoding/json"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/Jeffail/gabs/v2"
)

// Stringify renders a value the way it appears inside interpolated text:
// scalars in their natural form, maps and slices as indented JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return formatFloat(t)
	case float32:
		return formatFloat(float64(t))
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return strconv.FormatInt(reflect.ValueOf(t).Convert(reflect.TypeOf(int64(0))).Int(), 10)
	case json.Number:
		return t.String()
	case error:
		return t.Error()
	}

	if normalized, ok := normalize(v); ok {
		out := gabs.Wrap(normalized).EncodeJSON(
			gabs.EncodeOptIndent("", "  "),
			gabs.EncodeOptHTMLEscape(false),
		)
		return strings.TrimSuffix(string(out), "\n")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return reflect.ValueOf(v).String()
	}
	return string(b)
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// JSONLiteral renders v as an expression literal: strings quoted, everything
// else as compact JSON.
func JSONLiteral(v any) string {
	if s, ok := v.(string); ok {
		return strconv.Quote(s)
	}
	if normalized, ok := normalize(v); ok {
		v = normalized
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

// normalize converts typed maps and slices into the map[string]any / []any
// shapes the interpolator and gabs understand.
func normalize(v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	switch v.(type) {
	case map[string]any, []any:
		return v, true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = iter.Value().Interface()
		}
		return out, true
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return nil, false
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, true
	}
	return nil, false
}

// AsSlice reports whether v is a list and returns its elements.
func AsSlice(v any) ([]any, bool) {
	n, ok := normalize(v)
	if !ok {
		return nil, false
	}
	s, ok := n.([]any)
	return s, ok
}

// AsMap reports whether v is a string-keyed map and returns it.
func AsMap(v any) (map[string]any, bool) {
	n, ok := normalize(v)
	if !ok {
		return nil, false
	}
	m, ok := n.(map[string]any)
	return m, ok
}

// Truthy applies JavaScript truthiness: nil, false, 0, NaN and "" are false.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0 && !math.IsNaN(t)
	case float32:
		return t != 0 && !math.IsNaN(float64(t))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

var leadingInt = regexp.MustCompile(`^\s*([+-]?\d+)`)

// ToInt mirrors parseInt: numbers truncate toward zero, strings parse their
// leading integer, anything else is 0.
func ToInt(v any) int {
	switch t := v.(type) {
	case string:
		m := leadingInt.FindStringSubmatch(t)
		if m == nil {
			return 0
		}
		n, _ := strconv.Atoi(m[1])
		return n
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0
		}
		return int(t)
	case float32:
		return ToInt(float64(t))
	case bool, nil:
		return 0
	case json.Number:
		return ToInt(t.String())
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int(rv.Uint())
	}
	return 0
}

// ToFloat mirrors parseFloat. ok is false when v has no numeric reading.
func ToFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case bool, nil:
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	}
	return 0, false
}

// TypeName returns the JavaScript-style type of v: null, array, object,
// string, number or boolean.
func TypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	}
	if _, ok := ToFloat(v); ok {
		return "number"
	}
	if _, ok := AsSlice(v); ok {
		return "array"
	}
	return "object"
}
