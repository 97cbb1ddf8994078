package builtin

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BDNK1/nodeflow/runtime"
	"github.com/BDNK1/nodeflow/runtime/plugin"
)

// Conditions implements the condition_* node types. Boolean conditions
// return a bool; the executor picks the true or false port from it.
type Conditions struct{}

// If evaluates config.condition. Variables are in scope by name, so both
// "count > 3" and "{{count}} > 3" work. An evaluation error is logged and
// reads as false.
func (c *Conditions) If(nc *plugin.NodeContext) (any, error) {
	condition := nc.Data["condition"]
	expression, isString := condition.(string)
	if !isString {
		result := runtime.Truthy(condition)
		nc.Logf(plugin.LevelSuccess, "Condition: %s", strings.ToUpper(strconv.FormatBool(result)))
		return result, nil
	}

	nc.Logf(plugin.LevelInfo, "Evaluating condition: %s", expression)
	ev := nc.Evaluator
	if ev == nil {
		ev = runtime.NewExprEvaluator()
	}
	result, err := runtime.EvalBool(ev, expression, nc.Variables.All())
	if err != nil {
		nc.Logf(plugin.LevelError, "Condition evaluation failed: %s", err)
		return false, nil
	}
	nc.Logf(plugin.LevelSuccess, "Condition: %s", strings.ToUpper(strconv.FormatBool(result)))
	return result, nil
}

// Switch returns the value the executor matches against case handles.
func (c *Conditions) Switch(nc *plugin.NodeContext) (any, error) {
	value := nc.Data["value"]
	if !runtime.Truthy(value) {
		return "default", nil
	}
	nc.Logf(plugin.LevelInfo, "Switch value: %s", runtime.Stringify(value))
	return value, nil
}

// TryCatch guards its try branch. Only an explicit continueOnError: false
// re-raises a caught error.
func (c *Conditions) TryCatch(nc *plugin.NodeContext) (any, error) {
	nc.Log(plugin.LevelInfo, "Try/Catch block - executing try branch")
	return map[string]any{
		"branch":          "try",
		"continueOnError": !isFalse(nc.Data["continueOnError"]),
	}, nil
}

// Filter splits config.array (or the previous output) into matched and
// notMatched by comparing config.field of each item with config.value.
func (c *Conditions) Filter(nc *plugin.NodeContext) (any, error) {
	input := nc.Data["array"]
	if !runtime.Truthy(input) {
		input, _ = nc.Variables.Get("output")
	}
	if s, ok := input.(string); ok {
		var parsed any
		if err := json.Unmarshal([]byte(s), &parsed); err != nil {
			parsed = []any{}
		}
		input = parsed
	}

	items, ok := runtime.AsSlice(input)
	if !ok {
		nc.Log(plugin.LevelWarn, "Input is not an array")
		return map[string]any{"matched": []any{}, "notMatched": []any{}}, nil
	}

	field, operator, value := nc.String("field"), nc.String("operator"), nc.String("value")
	matched, notMatched := []any{}, []any{}
	for _, item := range items {
		if compare(fieldValue(item, field), operator, value) {
			matched = append(matched, item)
		} else {
			notMatched = append(notMatched, item)
		}
	}

	nc.Logf(plugin.LevelSuccess, "Matched: %d, Not matched: %d", len(matched), len(notMatched))
	return map[string]any{"matched": matched, "notMatched": notMatched}, nil
}

func fieldValue(item any, field string) any {
	if field == "" {
		return item
	}
	v, ok := runtime.LookupPath(item, field)
	if !ok {
		return nil
	}
	return v
}

func compare(itemValue any, operator, want string) bool {
	text := ""
	if itemValue != nil {
		text = runtime.Stringify(itemValue)
	}
	num, numOK := runtime.ToFloat(itemValue)
	wantNum, wantOK := runtime.ToFloat(want)
	numeric := numOK && wantOK

	switch operator {
	case "equals":
		return looseEquals(itemValue, want) || text == want
	case "not_equals":
		return !looseEquals(itemValue, want) && text != want
	case "contains":
		return strings.Contains(strings.ToLower(text), strings.ToLower(want))
	case "starts_with":
		return strings.HasPrefix(strings.ToLower(text), strings.ToLower(want))
	case "ends_with":
		return strings.HasSuffix(strings.ToLower(text), strings.ToLower(want))
	case "greater":
		return numeric && num > wantNum
	case "less":
		return numeric && num < wantNum
	case "greater_eq":
		return numeric && num >= wantNum
	case "less_eq":
		return numeric && num <= wantNum
	case "is_empty":
		return isEmpty(itemValue)
	case "is_not_empty":
		return !isEmpty(itemValue)
	case "regex":
		re, err := regexp.Compile(want)
		if err != nil {
			return false
		}
		return re.MatchString(text)
	}
	return false
}

// looseEquals compares a value with a config string: numbers numerically,
// everything else by string form.
func looseEquals(v any, s string) bool {
	switch v.(type) {
	case nil:
		return false
	case string:
		return v == s
	case bool:
		return runtime.Stringify(v) == s
	}
	n, ok := runtime.ToFloat(v)
	if !ok {
		return false
	}
	m, ok := runtime.ToFloat(s)
	return ok && n == m
}

// TypeCheck compares the type of config.value, or of the previous output
// when value is blank, with config.type (default "string").
func (c *Conditions) TypeCheck(nc *plugin.NodeContext) (any, error) {
	value, present := subject(nc)
	expected := stringOr(nc.String("type"), "string")

	actual := "undefined"
	if present {
		actual = runtime.TypeName(value)
	}
	matches := actual == expected

	op := "!="
	if matches {
		op = "=="
	}
	nc.Logf(plugin.LevelSuccess, "Type: %s %s %s", actual, op, expected)
	return matches, nil
}

func (c *Conditions) IsEmpty(nc *plugin.NodeContext) (any, error) {
	value, _ := subject(nc)
	empty := isEmpty(value)

	state := "not empty"
	if empty {
		state = "empty"
	}
	nc.Logf(plugin.LevelSuccess, "Value is %s", state)
	return empty, nil
}

// ArrayContains reports whether config.array has an element equal to
// config.value, comparing config.field of each element when set.
func (c *Conditions) ArrayContains(nc *plugin.NodeContext) (any, error) {
	items := listInput(nc, "array")
	field, want := nc.String("field"), nc.String("value")

	for _, item := range items {
		v := fieldValue(item, field)
		if looseEquals(v, want) || (v != nil && runtime.Stringify(v) == want) {
			nc.Logf(plugin.LevelSuccess, "Array contains %q", want)
			return true, nil
		}
	}
	nc.Logf(plugin.LevelSuccess, "Array does not contain %q", want)
	return false, nil
}

// DateCompare compares config.date with config.compareTo (default now)
// using config.operator: before, after, equals or same_day.
func (c *Conditions) DateCompare(nc *plugin.NodeContext) (any, error) {
	date, err := parseDate(nc.Data["date"])
	if err != nil {
		return nil, fmt.Errorf("invalid date: %w", err)
	}
	other := time.Now()
	if raw, ok := nc.Data["compareTo"]; ok && runtime.Truthy(raw) {
		if other, err = parseDate(raw); err != nil {
			return nil, fmt.Errorf("invalid compareTo date: %w", err)
		}
	}

	operator := stringOr(nc.String("operator"), "before")
	var result bool
	switch operator {
	case "before":
		result = date.Before(other)
	case "after":
		result = date.After(other)
	case "equals":
		result = date.Equal(other)
	case "same_day":
		y1, m1, d1 := date.UTC().Date()
		y2, m2, d2 := other.UTC().Date()
		result = y1 == y2 && m1 == m2 && d1 == d2
	default:
		return nil, fmt.Errorf("unknown date operator: %s", operator)
	}

	nc.Logf(plugin.LevelSuccess, "%s %s %s: %t", date.Format(time.RFC3339), operator, other.Format(time.RFC3339), result)
	return result, nil
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}

// parseDate accepts RFC 3339 and plain date strings or Unix milliseconds.
func parseDate(v any) (time.Time, error) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
	}
	if _, isBool := v.(bool); !isBool {
		if ms, ok := runtime.ToFloat(v); ok {
			return time.UnixMilli(int64(ms)), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot read %q as a date", runtime.Stringify(v))
}

// ManualApproval supplies the title and message shown to the approver.
func (c *Conditions) ManualApproval(nc *plugin.NodeContext) (any, error) {
	return map[string]any{
		"title":   stringOr(nc.String("title"), "Approval Required"),
		"message": stringOr(nc.String("message"), "Please approve to continue execution."),
	}, nil
}

// subject returns config.value, falling back to the previous output when
// the value is blank or an unresolved {{output}}.
func subject(nc *plugin.NodeContext) (any, bool) {
	value, present := nc.Data["value"]
	if value == "" || value == "{{output}}" {
		return nc.Variables.Get("output")
	}
	return value, present
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	}
	if s, ok := runtime.AsSlice(v); ok {
		return len(s) == 0
	}
	if m, ok := runtime.AsMap(v); ok {
		return len(m) == 0
	}
	return false
}
