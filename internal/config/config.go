package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"pmuplace/domain/placement"
	"pmuplace/internal/errors"

	"gopkg.in/yaml.v3"
)

// DefaultMaxCondition is the design matrix condition limit of the fitting oracle
const DefaultMaxCondition = 1e12

// UnboundedPlacements is the placement limit used when SetMax is off
const UnboundedPlacements = 9999

// Run modes
const (
	ModeBatch       = "batch"
	ModeIncremental = "incremental"
	ModeFailover    = "failover"
)

// Output formats
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// Config represents the complete application configuration
type Config struct {
	Search   SearchConfig   `yaml:"search"`
	Files    FileConfig     `yaml:"files"`
	Run      RunConfig      `yaml:"run"`
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
}

// SearchConfig holds the placement search settings shared by every dataset
type SearchConfig struct {
	Target        string   `yaml:"target"`
	MaxPlacements int      `yaml:"max_placements"`
	SetMax        bool     `yaml:"set_max"`
	Excluded      []string `yaml:"excluded"`
	Degrees       []int    `yaml:"degrees"`
	Parsimonious  bool     `yaml:"parsimonious"`
	Workers       int      `yaml:"workers"`

	// MaxCondition rejects fits whose scaled design matrix is this ill-conditioned
	MaxCondition float64 `yaml:"max_condition"`
}

// FileConfig holds dataset discovery and output settings
type FileConfig struct {
	InputDir  string   `yaml:"input_dir"`
	OutputDir string   `yaml:"output_dir"`
	Models    []string `yaml:"models"`
	MetaData  bool     `yaml:"metadata"`
	Verbose   bool     `yaml:"verbose"`
	Format    string   `yaml:"format"`

	// Sheet is the XLSX sheet datasets are read from; empty means the first
	Sheet string `yaml:"sheet"`
}

// RunConfig selects how each dataset is driven
type RunConfig struct {
	Mode       string        `yaml:"mode"`
	Retries    int           `yaml:"retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// DatabaseConfig holds database connection settings. An empty URL disables
// the postgres sink.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port    string `yaml:"port"`
	GinMode string `yaml:"gin_mode"`
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := FromEnv()
	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

// LoadFile reads the environment, overlays a YAML run file and validates the
// result. Keys missing from the file keep their environment value.
func LoadFile(path string) (*Config, error) {
	config := FromEnv()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, fmt.Errorf("parse %s: %w", path, err))
	}
	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

// FromEnv reads configuration from the environment without validating it
func FromEnv() *Config {
	return &Config{
		Search: SearchConfig{
			Target:        getEnvOrDefault("PMU_TARGET", "angDiff"),
			MaxPlacements: getEnvIntOrDefault("PMU_MAX_PLACEMENTS", 20),
			SetMax:        getEnvBoolOrDefault("PMU_SET_MAX", true),
			Excluded:      getEnvListOrDefault("PMU_EXCLUDED", nil),
			Degrees:       getEnvIntListOrDefault("PMU_DEGREES", []int{3}),
			Parsimonious:  getEnvBoolOrDefault("PMU_PARSIMONIOUS", true),
			Workers:       getEnvIntOrDefault("PMU_WORKERS", 1),
			MaxCondition:  getEnvFloatOrDefault("PMU_MAX_CONDITION", DefaultMaxCondition),
		},
		Files: FileConfig{
			InputDir:  getEnvOrDefault("PMU_INPUT_DIR", "inputFolder/"),
			OutputDir: getEnvOrDefault("PMU_OUTPUT_DIR", "opFolder/"),
			Models:    getEnvListOrDefault("PMU_MODELS", nil),
			MetaData:  getEnvBoolOrDefault("PMU_GEN_METADATA", true),
			Verbose:   getEnvBoolOrDefault("PMU_VERBOSE_OUTPUT", true),
			Format:    strings.ToLower(getEnvOrDefault("PMU_OUTPUT_FORMAT", FormatCSV)),
			Sheet:     os.Getenv("PMU_SHEET"),
		},
		Run: RunConfig{
			Mode:       strings.ToLower(getEnvOrDefault("PMU_MODE", ModeBatch)),
			Retries:    getEnvIntOrDefault("PMU_RETRIES", 3),
			RetryDelay: getEnvDurationOrDefault("PMU_RETRY_DELAY", 0),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Server: ServerConfig{
			Port:    getEnvOrDefault("PORT", "8080"),
			GinMode: getEnvOrDefault("GIN_MODE", "debug"),
		},
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	return validateConfig(c)
}

// Limit returns the placement limit after applying SetMax
func (s SearchConfig) Limit() int {
	if !s.SetMax {
		return UnboundedPlacements
	}
	return s.MaxPlacements
}

// PlacementConfig builds the search configuration for one degree
func (s SearchConfig) PlacementConfig(degree int) placement.Config {
	return placement.Config{
		TargetVariable:    placement.Variable(s.Target),
		MaxPlacements:     s.Limit(),
		ExcludedVariables: placement.Variables(s.Excluded...),
		PolynomialDegree:  degree,
		Parsimonious:      s.Parsimonious,
		Workers:           s.Workers,
	}
}

func validateConfig(config *Config) error {
	s := config.Search
	switch {
	case strings.TrimSpace(s.Target) == "":
		return errors.ConfigInvalid("target variable is required")
	case s.SetMax && s.MaxPlacements <= 0:
		return errors.ConfigInvalid("max placements must be positive")
	case len(s.Degrees) == 0:
		return errors.ConfigInvalid("at least one polynomial degree is required")
	case s.Workers < 1:
		return errors.ConfigInvalid("workers must be at least 1")
	case !(s.MaxCondition > 1):
		return errors.ConfigInvalid("max condition must be greater than 1")
	}
	for _, d := range s.Degrees {
		if d <= 0 {
			return errors.ConfigInvalid(fmt.Sprintf("polynomial degree %d must be positive", d))
		}
	}

	switch config.Files.Format {
	case FormatCSV, FormatXLSX:
	default:
		return errors.ConfigInvalid(fmt.Sprintf("unknown output format %q", config.Files.Format))
	}
	if config.Files.InputDir == "" || config.Files.OutputDir == "" {
		return errors.ConfigInvalid("input and output directories are required")
	}

	switch config.Run.Mode {
	case ModeBatch, ModeIncremental, ModeFailover:
	default:
		return errors.ConfigInvalid(fmt.Sprintf("unknown run mode %q", config.Run.Mode))
	}
	if config.Run.Retries < 1 {
		return errors.ConfigInvalid("retries must be at least 1")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnvIntListOrDefault falls back to the default if any item is not an int
func getEnvIntListOrDefault(key string, defaultValue []int) []int {
	items := getEnvListOrDefault(key, nil)
	if items == nil {
		return defaultValue
	}
	out := make([]int, 0, len(items))
	for _, item := range items {
		n, err := strconv.Atoi(item)
		if err != nil {
			return defaultValue
		}
		out = append(out, n)
	}
	return out
}
