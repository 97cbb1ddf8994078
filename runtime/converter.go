package runtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// ToStringMap flattens a header-like value into string pairs. A string input
// is parsed as a JSON object first.
func ToStringMap(v any) (map[string]string, error) {
	if s, ok := v.(string); ok {
		if s == "" {
			return map[string]string{}, nil
		}
		var parsed map[string]any
		if err := json.Unmarshal([]byte(s), &parsed); err != nil {
			return nil, fmt.Errorf("failed to parse %q as a JSON object: %w", s, err)
		}
		v = parsed
	}
	if v == nil {
		return map[string]string{}, nil
	}

	m, ok := AsMap(v)
	if !ok {
		return nil, fmt.Errorf("expected an object, got %s", TypeName(v))
	}
	result := make(map[string]string, len(m))
	for key, value := range m {
		switch t := value.(type) {
		case nil:
			result[key] = ""
		case string:
			result[key] = t
		default:
			result[key] = Stringify(t)
		}
	}
	return result, nil
}

// Decode converts a map (or any decoded JSON value) into a struct using
// mapstructure. It uses json tags for field mapping and supports
// time.Duration and time.Time conversions.
func Decode(input any, target any) error {
	return decode(input, target, "json")
}

// decodeYAML is Decode for config structs, which are keyed by yaml tags.
func decodeYAML(input any, target any) error {
	return decode(input, target, "yaml")
}

func decode(input any, target any, tag string) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  target,
		TagName: tag,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
		WeaklyTypedInput: true, // Allow type coercion (e.g., "5" -> 5)
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(input); err != nil {
		return fmt.Errorf("failed to decode into %T: %w", target, err)
	}

	return nil
}
