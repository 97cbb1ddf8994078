package runtime

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// EnvironmentVariable is a global variable defined by the user. Secret values
// are seeded like any other but never echoed in logs.
type EnvironmentVariable struct {
	Key    string `json:"key" yaml:"key" validate:"required"`
	Value  string `json:"value" yaml:"value"`
	Secret bool   `json:"secret,omitempty" yaml:"secret,omitempty"`
}

// Settings is the read-only host configuration handed to handlers: provider
// credentials and toggles in Values plus the global environment variables.
type Settings struct {
	EnvironmentVariables []EnvironmentVariable `json:"environmentVariables"`
	Values               map[string]any        `json:"values,omitempty"`
}

// Get returns a settings value by dotted path, e.g. "providers.openai.key".
func (s *Settings) Get(path string) (any, bool) {
	if s == nil {
		return nil, false
	}
	return LookupPath(s.Values, path)
}

// seed writes every environment variable under its own name and under
// env.<name>. The env map is shared so {{env.NAME}} resolves through it.
func (s *Settings) seed(vars Variables) {
	if s == nil || len(s.EnvironmentVariables) == 0 {
		return
	}
	env := make(map[string]any, len(s.EnvironmentVariables))
	if existing, ok := vars.Get("env"); ok {
		if m, ok := AsMap(existing); ok {
			for k, v := range m {
				env[k] = v
			}
		}
	}
	for _, ev := range s.EnvironmentVariables {
		if ev.Key == "" {
			continue
		}
		vars.Set(ev.Key, ev.Value)
		vars.Set("env."+ev.Key, ev.Value)
		env[ev.Key] = ev.Value
	}
	vars.Set("env", env)
}

// envVarPattern matches ${VAR} and ${VAR:default} syntax
var envVarPattern = regexp.MustCompile(`^\$\{([A-Za-z_][A-Za-z0-9_]*)(:[^}]*)?\}$`)

// ResolveEnvVar resolves a ${VAR} or ${VAR:default} value from the process
// environment. Other values are returned unchanged.
func ResolveEnvVar(value string) (string, error) {
	matches := envVarPattern.FindStringSubmatch(value)
	if matches == nil {
		return value, nil
	}

	varName := matches[1]
	defaultPart := matches[2]

	envValue, exists := os.LookupEnv(varName)
	if exists {
		return envValue, nil
	}

	if defaultPart != "" {
		return strings.TrimPrefix(defaultPart, ":"), nil
	}

	return "", fmt.Errorf("required environment variable not set: %s", varName)
}
