package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the environment-derived settings of a run.
type Config struct {
	Database    DatabaseConfig
	Import      ImportConfig
	Logging     LoggingConfig
	Tracing     TracingConfig
	Metrics     MetricsConfig
	Environment string
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
}

// ImportConfig holds the run defaults an operator can override per invocation
// with command-line flags.
type ImportConfig struct {
	DataDir      string
	PipelineFile string
	Verbosity    int
	MaxErrors    int
	Parallel     bool
}

type LoggingConfig struct {
	Level  string
	Format string
}

type TracingConfig struct {
	Enabled      bool
	Exporter     string
	ServiceName  string
	OTLPEndpoint string
	SampleRate   float64
}

type MetricsConfig struct {
	// TextfilePath is where the metrics snapshot is written when a run ends.
	// Empty disables the export.
	TextfilePath string
}

// Load reads the configuration from environment variables. DATABASE_URL is
// required; everything else has a default.
func Load() (Config, error) {
	cfg := Config{
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConnections: getEnvInt("DATABASE_MAX_CONNECTIONS", 10),
		},
		Import: ImportConfig{
			DataDir:      getEnv("DATA_DIR", "data"),
			PipelineFile: getEnv("PIPELINE_FILE", ""),
			Verbosity:    getEnvInt("IMPORT_VERBOSITY", 1),
			MaxErrors:    getEnvInt("IMPORT_MAX_ERRORS", 10),
			Parallel:     getEnvBool("IMPORT_PARALLEL", false),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Tracing: TracingConfig{
			Enabled:      getEnvBool("TRACING_ENABLED", false),
			Exporter:     getEnv("TRACING_EXPORTER", "stdout"),
			ServiceName:  getEnv("TRACING_SERVICE_NAME", "compendium"),
			OTLPEndpoint: getEnv("TRACING_OTLP_ENDPOINT", "localhost:4317"),
			SampleRate:   getEnvFloat("TRACING_SAMPLE_RATE", 1.0),
		},
		Metrics: MetricsConfig{
			TextfilePath: getEnv("METRICS_TEXTFILE", ""),
		},
		Environment: getEnv("ENVIRONMENT", "development"),
	}

	if cfg.Database.URL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Import.Verbosity < 0 || cfg.Import.Verbosity > 2 {
		return Config{}, fmt.Errorf("IMPORT_VERBOSITY must be 0, 1 or 2, got %d", cfg.Import.Verbosity)
	}
	if cfg.Import.MaxErrors < 0 {
		return Config{}, fmt.Errorf("IMPORT_MAX_ERRORS must be >= 0, got %d", cfg.Import.MaxErrors)
	}
	return cfg, nil
}

// LoadEnvFile loads KEY=value pairs from path into the process environment.
// Variables that are already set win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
