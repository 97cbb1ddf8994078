package runtime

import (
	"reflect"
	"testing"
)

func TestSettings_Seed(t *testing.T) {
	s := &Settings{EnvironmentVariables: []EnvironmentVariable{
		{Key: "REGION", Value: "eu"},
		{Key: "TOKEN", Value: "s3cret", Secret: true},
		{Key: "", Value: "ignored"},
	}}
	vars := NewScope()
	vars.Set("env", map[string]any{"EXISTING": "yes"})

	s.seed(vars)

	if v, _ := vars.Get("REGION"); v != "eu" {
		t.Errorf("REGION = %v", v)
	}
	if v, _ := vars.Get("env.TOKEN"); v != "s3cret" {
		t.Errorf("env.TOKEN = %v", v)
	}
	env, _ := vars.Get("env")
	want := map[string]any{"EXISTING": "yes", "REGION": "eu", "TOKEN": "s3cret"}
	if !reflect.DeepEqual(env, want) {
		t.Errorf("env = %v, want %v", env, want)
	}
}

func TestSettings_SeedNil(t *testing.T) {
	var s *Settings
	vars := NewScope()
	s.seed(vars)
	if len(vars.All()) != 0 {
		t.Errorf("Expected nothing seeded, got %v", vars.All())
	}
}

func TestSettings_Get(t *testing.T) {
	s := &Settings{Values: map[string]any{
		"providers": map[string]any{"slack": map[string]any{"webhook": "https://hooks.example.com"}},
	}}
	if v, ok := s.Get("providers.slack.webhook"); !ok || v != "https://hooks.example.com" {
		t.Errorf("Get() = %v, %v", v, ok)
	}
	if _, ok := s.Get("providers.discord"); ok {
		t.Error("Expected missing provider")
	}
}

func TestResolveEnvVar(t *testing.T) {
	t.Setenv("NODEFLOW_TEST_SET", "from-env")

	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"plain", "plain", false},
		{"${NODEFLOW_TEST_SET}", "from-env", false},
		{"${NODEFLOW_TEST_SET:fallback}", "from-env", false},
		{"${NODEFLOW_TEST_UNSET:fallback}", "fallback", false},
		{"${NODEFLOW_TEST_UNSET:}", "", false},
		{"${NODEFLOW_TEST_UNSET}", "", true},
		{"prefix ${NODEFLOW_TEST_SET}", "prefix ${NODEFLOW_TEST_SET}", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ResolveEnvVar(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveEnvVar failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveEnvVar(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
