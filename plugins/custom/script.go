package custom

import (
	"context"
	"fmt"
	"reflect"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/object"

	"github.com/BDNK1/nodeflow/runtime"
)

// scriptVM evaluates script custom nodes in a Risor VM without default
// globals, so scripts see nothing but the values bound here.
type scriptVM struct{}

func (scriptVM) eval(ctx context.Context, code string, globals map[string]any) (any, error) {
	bound := make(map[string]any, len(globals))
	for name, v := range globals {
		bound[name] = toRisor(name, v)
	}

	result, err := risor.Eval(ctx, code,
		risor.WithoutDefaultGlobals(),
		risor.WithGlobals(bound),
	)
	if err != nil {
		return nil, err
	}
	return fromRisor(result), nil
}

// toRisor prepares a Go value for the VM. Functions become builtins and
// maps or lists are rebuilt from plain values, since object.FromGoType
// panics on types it does not know.
func toRisor(name string, v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case object.Object:
		return t
	case string, bool, int, int64, float64:
		return t
	}

	if reflect.TypeOf(v).Kind() == reflect.Func {
		return builtin(name, v)
	}
	if m, ok := runtime.AsMap(v); ok {
		out := make(map[string]any, len(m))
		for k, item := range m {
			out[k] = toRisor(fmt.Sprintf("%s.%s", name, k), item)
		}
		return out
	}
	if items, ok := runtime.AsSlice(v); ok {
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = toRisor(name, item)
		}
		return out
	}
	if f, ok := runtime.ToFloat(v); ok {
		return f
	}
	return runtime.Stringify(v)
}

// builtin wraps fn as a Risor builtin. Arguments are converted to Go
// values and to fn's parameter types where possible; a trailing non-nil
// error result is raised in the VM.
func builtin(name string, fn any) *object.Builtin {
	fv := reflect.ValueOf(fn)
	ft := fv.Type()
	errType := reflect.TypeOf((*error)(nil)).Elem()

	return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
		if !ft.IsVariadic() && len(args) != ft.NumIn() {
			return object.NewError(fmt.Errorf("%s: takes %d argument(s) (%d given)", name, ft.NumIn(), len(args)))
		}

		in := make([]reflect.Value, len(args))
		for i, arg := range args {
			var want reflect.Type
			switch {
			case ft.IsVariadic() && i >= ft.NumIn()-1:
				want = ft.In(ft.NumIn() - 1).Elem()
			default:
				want = ft.In(i)
			}
			in[i] = convertArg(fromRisor(arg), want)
		}

		out := fv.Call(in)
		if n := len(out); n > 0 && ft.Out(n-1).Implements(errType) {
			if err, _ := out[n-1].Interface().(error); err != nil {
				return object.NewError(err)
			}
			out = out[:n-1]
		}
		if len(out) == 0 {
			return object.Nil
		}
		if obj := object.FromGoType(toRisor(name, out[0].Interface())); obj != nil {
			return obj
		}
		return object.Nil
	})
}

func convertArg(v any, want reflect.Type) reflect.Value {
	if v == nil {
		return reflect.Zero(want)
	}
	rv := reflect.ValueOf(v)
	switch {
	case rv.Type().AssignableTo(want):
		return rv
	case rv.Type().ConvertibleTo(want):
		return rv.Convert(want)
	case want.Kind() == reflect.String:
		return reflect.ValueOf(runtime.Stringify(v))
	}
	return reflect.Zero(want)
}

// fromRisor converts a VM result back into map[string]any / []any values.
func fromRisor(obj object.Object) any {
	switch o := obj.(type) {
	case nil, *object.NilType:
		return nil
	case *object.Map:
		out := make(map[string]any)
		for k, v := range o.Value() {
			out[k] = fromRisor(v)
		}
		return out
	case *object.List:
		items := o.Value()
		out := make([]any, len(items))
		for i, v := range items {
			out[i] = fromRisor(v)
		}
		return out
	}
	return obj.Interface()
}
