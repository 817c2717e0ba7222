package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Catalog     CatalogConfig   `toml:"catalog"`
	HTTP        HTTPConfig      `toml:"http"`
	Discovery   DiscoveryConfig `toml:"discovery"`
	Harvest     HarvestConfig   `toml:"harvest"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
}

// CatalogConfig describes the target catalog: its endpoints, form field
// names and the selectors the default parser uses. Everything markup-shaped
// lives here so pipeline code stays site-independent.
type CatalogConfig struct {
	BaseURL    string `toml:"base_url" validate:"required,url"`    // Search/landing page URL
	DetailsURL string `toml:"details_url" validate:"omitempty,url"` // Detail page postback URL (defaults to base_url)

	SearchField     string `toml:"search_field" validate:"required"`     // Form field carrying the Phase 1 search term
	IdentifierField string `toml:"identifier_field" validate:"required"` // Form field carrying the Phase 2 identifier lookup
	SubmitField     string `toml:"submit_field"`                         // Search button field name
	SubmitValue     string `toml:"submit_value"`                         // Search button field value

	CriticalStateFields  []string `toml:"critical_state_fields"`   // Hidden fields that must be present on every response
	ResultsSelector      string   `toml:"results_selector"`        // Result table selector; first cell of each row is the identifier
	NextPageNameContains string   `toml:"next_page_name_contains"` // Substring identifying the next-page control's name
	SelectLinkSelector   string   `toml:"select_link_selector"`    // Detail postback link selector on a result page
	DetailTableSelectors []string `toml:"detail_table_selectors"`  // Label/value tables merged into the record on a detail page
}

// HTTPConfig configures the postback session client.
type HTTPConfig struct {
	UserAgent         string        `toml:"user_agent"`
	RequestTimeout    time.Duration `toml:"request_timeout"`     // Per-request timeout; a timeout counts as a retryable failure
	RequestsPerSecond float64       `toml:"requests_per_second"` // Shared pacing across all workers (0 = unlimited)
	Burst             int           `toml:"burst"`
}

// DiscoveryConfig configures Phase 1.
type DiscoveryConfig struct {
	SearchSpace            []string `toml:"search_space" validate:"min=1"` // One traversal per unit
	MaxWorkers             int      `toml:"max_workers" validate:"min=1"`  // Ceiling on concurrent traversals
	MaxConsecutiveFailures int      `toml:"max_consecutive_failures" validate:"min=1"`
}

// HarvestConfig configures Phase 2.
type HarvestConfig struct {
	Concurrency    int           `toml:"concurrency" validate:"min=1"`
	RetryAttempts  int           `toml:"retry_attempts" validate:"min=1"`
	InitialBackoff time.Duration `toml:"initial_backoff"`
	MaxBackoff     time.Duration `toml:"max_backoff"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
	Output OutputConfig `toml:"output"`
}

// BadgerConfig represents the checkpoint database configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete checkpoint state on startup (testing only)
}

// OutputConfig represents the record output store configuration
type OutputConfig struct {
	Path string `toml:"path" validate:"required"` // Output CSV path
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig creates a configuration with default values.
// Catalog endpoints and selectors must come from the config file; everything
// else has production-ready defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Catalog: CatalogConfig{
			SubmitValue: "Search",
			CriticalStateFields: []string{
				"__VIEWSTATE",
				"__VIEWSTATEGENERATOR",
				"__EVENTVALIDATION",
			},
		},
		HTTP: HTTPConfig{
			UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			RequestTimeout:    30 * time.Second,
			RequestsPerSecond: 0, // Unlimited unless the operator opts in
			Burst:             1,
		},
		Discovery: DiscoveryConfig{
			SearchSpace:            alphabetSearchSpace(),
			MaxWorkers:             26,
			MaxConsecutiveFailures: 3,
		},
		Harvest: HarvestConfig{
			Concurrency:    50,
			RetryAttempts:  3,
			InitialBackoff: time.Second,
			MaxBackoff:     30 * time.Second,
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/checkpoint",
			},
			Output: OutputConfig{
				Path: "./data/records.csv",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
	}
}

func alphabetSearchSpace() []string {
	units := make([]string, 0, 26)
	for c := 'a'; c <= 'z'; c++ {
		units = append(units, string(c))
	}
	return units
}

// LoadFromFiles loads configuration from multiple files with priority:
// defaults -> file1 -> file2 -> ... -> env. Later files override earlier
// files; environment variables override all files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if config.Catalog.DetailsURL == "" {
		config.Catalog.DetailsURL = config.Catalog.BaseURL
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the configuration against its struct constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("MESSIS_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Catalog configuration
	if baseURL := os.Getenv("MESSIS_CATALOG_BASE_URL"); baseURL != "" {
		config.Catalog.BaseURL = baseURL
	}
	if detailsURL := os.Getenv("MESSIS_CATALOG_DETAILS_URL"); detailsURL != "" {
		config.Catalog.DetailsURL = detailsURL
	}

	// HTTP configuration
	if userAgent := os.Getenv("MESSIS_HTTP_USER_AGENT"); userAgent != "" {
		config.HTTP.UserAgent = userAgent
	}
	if timeout := os.Getenv("MESSIS_HTTP_REQUEST_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.HTTP.RequestTimeout = d
		}
	}
	if rps := os.Getenv("MESSIS_HTTP_REQUESTS_PER_SECOND"); rps != "" {
		if r, err := strconv.ParseFloat(rps, 64); err == nil {
			config.HTTP.RequestsPerSecond = r
		}
	}

	// Discovery configuration
	if space := os.Getenv("MESSIS_DISCOVERY_SEARCH_SPACE"); space != "" {
		units := []string{}
		for _, u := range strings.Split(space, ",") {
			if trimmed := strings.TrimSpace(u); trimmed != "" {
				units = append(units, trimmed)
			}
		}
		if len(units) > 0 {
			config.Discovery.SearchSpace = units
		}
	}
	if maxWorkers := os.Getenv("MESSIS_DISCOVERY_MAX_WORKERS"); maxWorkers != "" {
		if mw, err := strconv.Atoi(maxWorkers); err == nil {
			config.Discovery.MaxWorkers = mw
		}
	}

	// Harvest configuration
	if concurrency := os.Getenv("MESSIS_HARVEST_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Harvest.Concurrency = c
		}
	}
	if attempts := os.Getenv("MESSIS_HARVEST_RETRY_ATTEMPTS"); attempts != "" {
		if a, err := strconv.Atoi(attempts); err == nil {
			config.Harvest.RetryAttempts = a
		}
	}

	// Storage configuration
	if badgerPath := os.Getenv("MESSIS_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if outputPath := os.Getenv("MESSIS_OUTPUT_PATH"); outputPath != "" {
		config.Storage.Output.Path = outputPath
	}

	// Logging configuration
	if level := os.Getenv("MESSIS_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("MESSIS_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
