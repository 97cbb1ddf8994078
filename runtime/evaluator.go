package runtime

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
)

// ExpressionEvaluator evaluates the boolean conditions of condition_if and
// loop_while nodes.
type ExpressionEvaluator interface {
	Eval(expression string, env map[string]any) (any, error)
}

// ExprEvaluator runs expressions through expr-lang with every builtin
// function disabled, leaving literals, variables and operators.
type ExprEvaluator struct{}

func NewExprEvaluator() *ExprEvaluator {
	return &ExprEvaluator{}
}

func (e *ExprEvaluator) Eval(expression string, env map[string]any) (any, error) {
	vars := make(map[string]any, len(env)+2)
	for k, v := range env {
		vars[k] = v
	}
	// JSON/JavaScript spellings of nil
	vars["null"] = nil
	vars["undefined"] = nil

	// NOTE: expr.Env MUST come before AllowUndefinedVariables for it to work
	program, err := expr.Compile(normalizeExpression(expression),
		expr.Env(vars),
		expr.AllowUndefinedVariables(),
		expr.DisableAllBuiltins(),
	)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", expression, err)
	}
	out, err := expr.Run(program, vars)
	if err != nil {
		return nil, fmt.Errorf("run %q: %w", expression, err)
	}
	return out, nil
}

// EvalBool evaluates expression and applies JavaScript truthiness to the
// result. A blank expression is false.
func EvalBool(ev ExpressionEvaluator, expression string, env map[string]any) (bool, error) {
	if strings.TrimSpace(expression) == "" {
		return false, nil
	}
	out, err := ev.Eval(expression, env)
	if err != nil {
		return false, err
	}
	return Truthy(out), nil
}

// normalizeExpression rewrites the strict equality operators === and !==
// into == and != outside of string literals.
func normalizeExpression(e string) string {
	var b strings.Builder
	b.Grow(len(e))

	var quote rune
	escapeNext := false
	runes := []rune(e)

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if escapeNext {
			escapeNext = false
			b.WriteRune(r)
			continue
		}

		if quote != 0 {
			if r == '\\' && quote != '`' {
				escapeNext = true
			} else if r == quote {
				quote = 0
			}
			b.WriteRune(r)
			continue
		}

		switch r {
		case '"', '\'', '`':
			quote = r
		case '=', '!':
			if i+2 < len(runes) && runes[i+1] == '=' && runes[i+2] == '=' {
				b.WriteRune(r)
				b.WriteRune('=')
				i += 2
				continue
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}
