// Package config loads settings for the formulas command from YAML files and
// FORMULAS_* environment variables.
package config

// Config is the root configuration.
type Config struct {
	// Logging configures the structured logger.
	Logging LoggingConfig `yaml:"logging"`

	// Eval configures expression evaluation.
	Eval EvalConfig `yaml:"eval"`

	// Library configures the function definition file.
	Library LibraryConfig `yaml:"library"`

	// Metrics configures sweep metrics.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	// Level is the minimum level: "debug", "info", "warn", or "error".
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// EvalConfig configures expression evaluation.
type EvalConfig struct {
	// Workers is the maximum number of goroutines per sweep.
	// Zero means GOMAXPROCS.
	Workers int `yaml:"workers"`

	// Threshold is the sweep size at which evaluation becomes parallel.
	Threshold int `yaml:"threshold"`

	// ChunkSize is the number of samples per sweep task.
	ChunkSize int `yaml:"chunk_size"`

	// Precision is the number of mantissa bits for precise evaluation.
	Precision uint `yaml:"precision"`

	// Strict rejects characters the lexer would otherwise drop.
	Strict bool `yaml:"strict"`

	// Vars are base variable values available to every expression.
	Vars map[string]float64 `yaml:"vars"`

	// Functions are user function definitions like "f(x) = x^2 + 1".
	Functions []string `yaml:"functions"`
}

// LibraryConfig configures the function definition file.
type LibraryConfig struct {
	// Path is the definition file. Empty means none.
	Path string `yaml:"path"`

	// Watch reloads the file when it changes.
	Watch bool `yaml:"watch"`
}

// MetricsConfig configures sweep metrics.
type MetricsConfig struct {
	// Enabled turns on metrics collection.
	Enabled bool `yaml:"enabled"`

	// Namespace prefixes metric names.
	Namespace string `yaml:"namespace"`

	// TextfilePath is a file to which metrics are written after each sweep
	// command, in the node exporter textfile format. Empty means none.
	TextfilePath string `yaml:"textfile_path"`
}
