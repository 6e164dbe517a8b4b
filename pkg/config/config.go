package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/mslinn/testintel/pkg/logging"
	"github.com/mslinn/testintel/pkg/risk"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config represents the test intelligence configuration
type Config struct {
	DatabasePath  string `yaml:"database"`
	DatasetPath   string `yaml:"dataset"`
	OrderPath     string `yaml:"order_file"`
	Seed          int64  `yaml:"seed"`
	LogLevel      string `yaml:"log_level"`
	Prioritize    bool   `yaml:"prioritize"`
	HistoryWindow int    `yaml:"history_window"`
}

// Environment variables recognized by Load
const (
	EnvConfig        = "TINTEL_CONFIG"
	EnvDatabase      = "TINTEL_DB"
	EnvDataset       = "TINTEL_DATASET"
	EnvOrder         = "TINTEL_ORDER"
	EnvSeed          = "TINTEL_SEED"
	EnvLogLevel      = "TINTEL_LOG_LEVEL"
	EnvPrioritize    = "TINTEL_PRIORITIZE"
	EnvHistoryWindow = "TINTEL_HISTORY_WINDOW"
)

const configFileName = ".testintel-config"

// DefaultHistoryWindow is the number of recent runs counted as failures_last_10_runs
const DefaultHistoryWindow = 10

// DefaultConfig returns the default configuration. Dataset and order paths are
// relative to the working directory, which is normally the project root.
func DefaultConfig() *Config {
	homeDir, err := os.UserHomeDir()
	dbPath := filepath.Join(".testintel", "testintel.db")
	if err == nil {
		dbPath = filepath.Join(homeDir, ".testintel", "testintel.db")
	}
	return &Config{
		DatabasePath:  dbPath,
		DatasetPath:   filepath.Join("data", "historical_test_data", "test_results.csv"),
		OrderPath:     filepath.Join("data", "ai_outputs", "prioritization_order.json"),
		Seed:          risk.DefaultSeed,
		LogLevel:      logging.DefaultLevel,
		Prioritize:    false,
		HistoryWindow: DefaultHistoryWindow,
	}
}

// Load loads configuration from file and environment variables
// Priority: environment variables > config file > defaults
func Load() (*Config, error) {
	return LoadFrom(GetConfigPath())
}

// LoadFrom is Load with an explicit config file path
func LoadFrom(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if err := loadFromFile(cfg, configPath); err != nil {
		// Config file is optional
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (cfg *Config) applyEnv() error {
	overrides := map[string]string{
		EnvDatabase:      "database",
		EnvDataset:       "dataset",
		EnvOrder:         "order_file",
		EnvSeed:          "seed",
		EnvLogLevel:      "log_level",
		EnvPrioritize:    "prioritize",
		EnvHistoryWindow: "history_window",
	}
	for env, key := range overrides {
		value := os.Getenv(env)
		if value == "" {
			continue
		}
		if err := cfg.Set(key, value); err != nil {
			return fmt.Errorf("invalid %s: %w", env, err)
		}
	}
	return nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// Save saves the configuration to a file
func (cfg *Config) Save(path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() string {
	configPath := os.Getenv(EnvConfig)
	if configPath == "" {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			configPath = filepath.Join(homeDir, configFileName)
		} else {
			configPath = configFileName
		}
	}
	return configPath
}

// Keys returns the settable configuration keys in sorted order
func Keys() []string {
	keys := []string{"database", "dataset", "order_file", "seed", "log_level", "prioritize", "history_window"}
	sort.Strings(keys)
	return keys
}

// Set assigns a configuration value by its YAML key
func (cfg *Config) Set(key, value string) error {
	switch key {
	case "database":
		cfg.DatabasePath = value
	case "dataset":
		cfg.DatasetPath = value
	case "order_file":
		cfg.OrderPath = value
	case "seed":
		seed, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("seed must be an integer: %w", err)
		}
		cfg.Seed = seed
	case "log_level":
		if _, err := logrus.ParseLevel(value); err != nil {
			return err
		}
		cfg.LogLevel = value
	case "prioritize":
		b, err := parseBool(value)
		if err != nil {
			return err
		}
		cfg.Prioritize = b
	case "history_window":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("history_window must be a positive integer, got %q", value)
		}
		cfg.HistoryWindow = n
	default:
		return fmt.Errorf("unknown config key '%s' (valid keys: %s)", key, strings.Join(Keys(), ", "))
	}
	return nil
}

// Get returns a configuration value by its YAML key
func (cfg *Config) Get(key string) (string, error) {
	switch key {
	case "database":
		return cfg.DatabasePath, nil
	case "dataset":
		return cfg.DatasetPath, nil
	case "order_file":
		return cfg.OrderPath, nil
	case "seed":
		return strconv.FormatInt(cfg.Seed, 10), nil
	case "log_level":
		return cfg.LogLevel, nil
	case "prioritize":
		return strconv.FormatBool(cfg.Prioritize), nil
	case "history_window":
		return strconv.Itoa(cfg.HistoryWindow), nil
	default:
		return "", fmt.Errorf("unknown config key '%s' (valid keys: %s)", key, strings.Join(Keys(), ", "))
	}
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q (use true/false or 1/0)", value)
}

// GetDatabasePath returns the database path with ~ and environment variables expanded
func (cfg *Config) GetDatabasePath() string {
	return expandPath(cfg.DatabasePath)
}

// GetDatasetPath returns the dataset path with ~ and environment variables expanded
func (cfg *Config) GetDatasetPath() string {
	return expandPath(cfg.DatasetPath)
}

// GetOrderPath returns the order file path with ~ and environment variables expanded
func (cfg *Config) GetOrderPath() string {
	return expandPath(cfg.OrderPath)
}

func expandPath(path string) string {
	path = os.ExpandEnv(path)
	if path == "~" || strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(homeDir, strings.TrimPrefix(path[1:], "/"))
		}
	}
	return path
}

// ValidateDatabase checks the database path and creates its directory
func (cfg *Config) ValidateDatabase() error {
	if cfg.DatabasePath == "" {
		return fmt.Errorf("database path is empty")
	}
	dir := filepath.Dir(cfg.GetDatabasePath())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	return nil
}

// Validate checks the settings every command depends on
func (cfg *Config) Validate() error {
	if cfg.DatasetPath == "" {
		return fmt.Errorf("dataset path is empty")
	}
	if cfg.OrderPath == "" {
		return fmt.Errorf("order file path is empty")
	}
	if cfg.HistoryWindow < 1 {
		return fmt.Errorf("history_window must be positive, got %d", cfg.HistoryWindow)
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	return nil
}
