package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a YAML file, applies defaults, and validates
// the result. Environment variables are not consulted; use LoadWithEnv for
// that.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}
	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// LoadWithEnv loads configuration as Load does, then applies environment
// variable overrides named FORMULAS_SECTION_FIELD, e.g.
// FORMULAS_LOGGING_LEVEL. Environment variables take precedence over the
// file. If path is empty, the overrides apply to the defaults instead.
func LoadWithEnv(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		cfg, err = Load(path)
		if err != nil {
			return nil, err
		}
	}
	applyEnvOverrides(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides. Values which do
// not parse are ignored.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("FORMULAS_LOGGING_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("FORMULAS_LOGGING_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}

	envInt("FORMULAS_EVAL_WORKERS", &cfg.Eval.Workers)
	envInt("FORMULAS_EVAL_THRESHOLD", &cfg.Eval.Threshold)
	envInt("FORMULAS_EVAL_CHUNK_SIZE", &cfg.Eval.ChunkSize)
	if val := os.Getenv("FORMULAS_EVAL_PRECISION"); val != "" {
		if p, err := strconv.ParseUint(val, 10, 0); err == nil {
			cfg.Eval.Precision = uint(p)
		}
	}
	envBool("FORMULAS_EVAL_STRICT", &cfg.Eval.Strict)

	if val := os.Getenv("FORMULAS_LIBRARY_PATH"); val != "" {
		cfg.Library.Path = val
	}
	envBool("FORMULAS_LIBRARY_WATCH", &cfg.Library.Watch)

	envBool("FORMULAS_METRICS_ENABLED", &cfg.Metrics.Enabled)
	if val := os.Getenv("FORMULAS_METRICS_NAMESPACE"); val != "" {
		cfg.Metrics.Namespace = val
	}
	if val := os.Getenv("FORMULAS_METRICS_TEXTFILE_PATH"); val != "" {
		cfg.Metrics.TextfilePath = val
	}
}

func envInt(name string, dst *int) {
	if val := os.Getenv(name); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envBool(name string, dst *bool) {
	if val := os.Getenv(name); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}
