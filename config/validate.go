package config

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/zephyrtronium/formulas"
)

// MaxPrecision is the largest allowed precision in bits.
const MaxPrecision = 1 << 20

// FieldError is a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the field, e.g. "eval.workers".
	Field string

	// Message describes the problem.
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError holds every validation error found in a configuration.
type ValidationError struct {
	Errors []FieldError
}

func (e ValidationError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "configuration validation failed"
	case 1:
		return "configuration validation failed: " + e.Errors[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:\n", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", err.Error())
	}
	return sb.String()
}

// Validate checks the configuration and returns a ValidationError describing
// every problem, or nil if there are none.
func Validate(cfg *Config) error {
	var errs []FieldError
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateEval(&cfg.Eval)...)
	errs = append(errs, validateMetrics(&cfg.Metrics)...)
	if cfg.Library.Watch && cfg.Library.Path == "" {
		errs = append(errs, FieldError{Field: "library.watch", Message: "requires library.path"})
	}
	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateLogging(cfg *LoggingConfig) []FieldError {
	var errs []FieldError
	switch strings.ToLower(cfg.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, FieldError{Field: "logging.level", Message: fmt.Sprintf("unknown level %q", cfg.Level)})
	}
	switch strings.ToLower(cfg.Format) {
	case "text", "json":
	default:
		errs = append(errs, FieldError{Field: "logging.format", Message: fmt.Sprintf("unknown format %q", cfg.Format)})
	}
	return errs
}

func validateEval(cfg *EvalConfig) []FieldError {
	var errs []FieldError
	if cfg.Workers < 0 {
		errs = append(errs, FieldError{Field: "eval.workers", Message: "must not be negative"})
	}
	if cfg.Threshold <= 0 {
		errs = append(errs, FieldError{Field: "eval.threshold", Message: "must be positive"})
	}
	if cfg.ChunkSize <= 0 {
		errs = append(errs, FieldError{Field: "eval.chunk_size", Message: "must be positive"})
	}
	if cfg.Precision == 0 || cfg.Precision > MaxPrecision {
		errs = append(errs, FieldError{Field: "eval.precision", Message: fmt.Sprintf("must be between 1 and %d", MaxPrecision)})
	}
	for name := range cfg.Vars {
		r, sz := utf8.DecodeRuneInString(name)
		if sz == 0 || sz != len(name) || !unicode.IsLetter(r) {
			errs = append(errs, FieldError{Field: "eval.vars", Message: fmt.Sprintf("variable %q must be a single letter", name)})
		}
	}
	for i, def := range cfg.Functions {
		if _, err := formulas.ParseDefinition(def); err != nil {
			errs = append(errs, FieldError{Field: fmt.Sprintf("eval.functions[%d]", i), Message: err.Error()})
		}
	}
	return errs
}

func validateMetrics(cfg *MetricsConfig) []FieldError {
	var errs []FieldError
	if cfg.TextfilePath != "" && !cfg.Enabled {
		errs = append(errs, FieldError{Field: "metrics.textfile_path", Message: "requires metrics.enabled"})
	}
	for _, r := range cfg.Namespace {
		if r != '_' && !('a' <= r && r <= 'z') && !('A' <= r && r <= 'Z') && !('0' <= r && r <= '9') {
			errs = append(errs, FieldError{Field: "metrics.namespace", Message: fmt.Sprintf("invalid character %q", r)})
			break
		}
	}
	return errs
}
