package config

// Default values for configuration fields.
const (
	DefaultLoggingLevel  = "info"
	DefaultLoggingFormat = "text"

	DefaultThreshold = 1000
	DefaultChunkSize = 256
	DefaultPrecision = 64

	DefaultMetricsNamespace = "formulas"
)

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return &cfg
}

// ApplyDefaults fills unset fields of cfg with default values.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLoggingFormat
	}

	if cfg.Eval.Threshold == 0 {
		cfg.Eval.Threshold = DefaultThreshold
	}
	if cfg.Eval.ChunkSize == 0 {
		cfg.Eval.ChunkSize = DefaultChunkSize
	}
	if cfg.Eval.Precision == 0 {
		cfg.Eval.Precision = DefaultPrecision
	}

	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
}
