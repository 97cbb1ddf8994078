package runtime

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Package-level validator instance
var validate *validator.Validate

// init initializes the validator and registers custom validation functions
func init() {
	validate = validator.New()

	// Register custom validators
	registerCustomValidators()
}

// MergePolicy decides what happens to the variables a parallel branch wrote
// once its chunk has finished.
type MergePolicy string

const (
	// MergeDiscard drops branch writes; only the parent's variables survive.
	MergeDiscard MergePolicy = "discard"
	// MergeOrdered replays branch writes onto the parent in item order, so the
	// last item wins on conflicting keys.
	MergeOrdered MergePolicy = "ordered"
)

// Config tunes the executor. Zero values are replaced by the defaults below
// when the config goes through InitializeConfig.
type Config struct {
	DefaultConcurrency int           `yaml:"default_concurrency" default:"5" validate:"min=1"`
	MaxWhileIterations int           `yaml:"max_while_iterations" default:"100" validate:"min=1"`
	ApprovalTimeout    time.Duration `yaml:"approval_timeout" validate:"min=0"`
	ParallelMerge      MergePolicy   `yaml:"parallel_merge" default:"discard" validate:"oneof=discard ordered"`

	Environment []EnvironmentVariable `yaml:"environment" validate:"dive"`
	Settings    map[string]any        `yaml:"settings"`
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() Config {
	var cfg Config
	if err := ApplyDefaults(&cfg); err != nil {
		panic(fmt.Sprintf("nodeflow: default config: %v", err))
	}
	return cfg
}

// LoadConfig reads a YAML config file. A missing path yields DefaultConfig.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("error reading config file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("error unmarshalling config YAML: %w", err)
	}

	var cfg Config
	if err := InitializeConfig(&cfg, raw); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// BuildSettings turns the environment and settings sections into the
// read-only Settings snapshot handed to handlers. ${VAR} and ${VAR:default}
// values are resolved from the process environment.
func (c Config) BuildSettings() (*Settings, error) {
	env := make([]EnvironmentVariable, 0, len(c.Environment))
	for _, ev := range c.Environment {
		resolved, err := ResolveEnvVar(ev.Value)
		if err != nil {
			return nil, fmt.Errorf("environment variable %s: %w", ev.Key, err)
		}
		ev.Value = resolved
		env = append(env, ev)
	}
	return &Settings{EnvironmentVariables: env, Values: c.Settings}, nil
}

// InitializeConfig prepares a config struct: defaults → value merging →
// validation in one call.
func InitializeConfig(config any, rawValues map[string]any) error {
	// Step 1: Apply defaults from struct tags
	if err := ApplyDefaults(config); err != nil {
		slog.Error("Config: failed to apply defaults",
			"config_type", reflect.TypeOf(config).String(),
			"error", err)
		return fmt.Errorf("failed to apply defaults: %w", err)
	}

	// Step 2: Merge raw values
	// Use YAML tags because Config structs use yaml tags for field mapping
	if len(rawValues) > 0 {
		if err := decodeYAML(rawValues, config); err != nil {
			slog.Error("Config: failed to apply config values",
				"config_type", reflect.TypeOf(config).String(),
				"raw_values", rawValues,
				"error", err)
			return fmt.Errorf("failed to apply config values: %w", err)
		}
	}

	// Step 3: Validate final config (AFTER rawValues are merged)
	// Extract the actual value if config is a pointer
	configValue := reflect.ValueOf(config)
	if configValue.Kind() == reflect.Ptr {
		configValue = configValue.Elem()
	}

	if err := validateConfig(configValue.Interface()); err != nil {
		slog.Error("Config validation failed",
			"config_type", reflect.TypeOf(config).String(),
			"error", err)
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// registerCustomValidators registers framework-provided custom validation functions
func registerCustomValidators() {
	// url_format validates URL structure
	validate.RegisterValidation("url_format", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		u, err := url.Parse(s)
		return err == nil && u.Scheme != "" && u.Host != ""
	})
}

func ApplyDefaults(config any) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := defaults.Set(config); err != nil {
		return fmt.Errorf("failed to apply default values: %w", err)
	}

	return nil
}

func validateConfig(config any) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := validate.Struct(config); err != nil {
		// Format validation errors for better readability
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			var errMessages []string
			for _, fieldErr := range validationErrors {
				errMessages = append(errMessages, fmt.Sprintf(
					"field '%s' failed validation: %s (rule: %s)",
					fieldErr.Field(),
					fieldErr.Error(),
					fieldErr.Tag(),
				))
			}
			return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errMessages, "\n  - "))
		}
		return fmt.Errorf("config validation failed: %w", err)
	}

	return nil
}

func RegisterCustomValidator(tag string, fn validator.Func) error {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		return fmt.Errorf("failed to register custom validator '%s': %w", tag, err)
	}
	return nil
}
