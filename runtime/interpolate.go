package runtime

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Jeffail/gabs/v2"
)

var (
	placeholderRe = regexp.MustCompile(`\{\{([^}]+)\}\}`)
	exactRe       = regexp.MustCompile(`^\{\{([^}]+)\}\}$`)
	indexedRe     = regexp.MustCompile(`^(\w+)((?:\[\d+\])+)$`)
	indexRe       = regexp.MustCompile(`\[(\d+)\]`)
)

// Interpolator resolves {{path}} placeholders against a variable snapshot.
type Interpolator struct {
	values map[string]any
}

// NewInterpolator snapshots vars. Later writes to vars are not observed.
func NewInterpolator(vars Variables) *Interpolator {
	return &Interpolator{values: vars.All()}
}

// Config resolves each value of a node config. Nested maps recurse; lists
// and other values are returned as they are.
func (in *Interpolator) Config(cfg map[string]any) map[string]any {
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		out[k] = in.Value(v)
	}
	return out
}

func (in *Interpolator) Value(v any) any {
	switch t := v.(type) {
	case string:
		if m := exactRe.FindStringSubmatch(t); m != nil {
			if resolved, ok := in.Lookup(m[1]); ok {
				return resolved
			}
			return t
		}
		return in.String(t)
	case map[string]any:
		return in.Config(t)
	}
	return v
}

// String replaces every resolvable placeholder in s with the string form of
// its value. Unresolvable placeholders stay in place.
func (in *Interpolator) String(s string) string {
	return placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		path := match[2 : len(match)-2]
		v, ok := in.Lookup(path)
		if !ok {
			return match
		}
		return Stringify(v)
	})
}

// Literals is like String but renders each value as an expression literal,
// so the result can be handed to an ExpressionEvaluator.
func (in *Interpolator) Literals(s string) string {
	return placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		v, ok := in.Lookup(match[2 : len(match)-2])
		if !ok {
			return match
		}
		return JSONLiteral(v)
	})
}

func (in *Interpolator) Lookup(path string) (any, bool) {
	return LookupPath(in.values, strings.TrimSpace(path))
}

// LookupPath walks a dotted path such as "items[0].id" or "matrix[0][1]"
// through nested maps and lists.
func LookupPath(root any, path string) (any, bool) {
	cur := gabs.Wrap(root)
	for _, part := range strings.Split(path, ".") {
		if cur.Data() == nil {
			return nil, false
		}

		name, indexes := part, ""
		if m := indexedRe.FindStringSubmatch(part); m != nil {
			name, indexes = m[1], m[2]
		}

		next, ok := child(cur, name)
		if !ok {
			return nil, false
		}
		cur = next

		for _, idx := range indexRe.FindAllStringSubmatch(indexes, -1) {
			i, _ := strconv.Atoi(idx[1])
			items, ok := AsSlice(cur.Data())
			if !ok || i >= len(items) {
				return nil, false
			}
			cur = gabs.Wrap(items[i])
		}
	}
	return cur.Data(), true
}

// child steps into a map key, or into a list position when key is numeric.
func child(c *gabs.Container, key string) (*gabs.Container, bool) {
	if m, ok := AsMap(c.Data()); ok {
		v, present := m[key]
		if !present {
			return nil, false
		}
		return gabs.Wrap(v), true
	}
	if items, ok := AsSlice(c.Data()); ok {
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= len(items) {
			return nil, false
		}
		return gabs.Wrap(items).Index(i), true
	}
	return nil, false
}
