// Package config loads Kerava's YAML configuration: the account list,
// resource types to collect, and collection/cost settings.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yairfalse/kerava/types"
)

// Defaults applied when collection settings are omitted.
const (
	DefaultParallelism   = 5
	DefaultRetryAttempts = 3
	DefaultBatchSize     = 25
	DefaultTimeout       = 10 * time.Minute
)

// Config is the top-level configuration file.
type Config struct {
	Version         string             `yaml:"version"`
	Accounts        []types.Account    `yaml:"accounts"`
	ResourceTypes   []string           `yaml:"resource_types,omitempty"`
	Regions         []string           `yaml:"regions,omitempty"`
	ExcludedRegions []string           `yaml:"excluded_regions,omitempty"`
	Collection      CollectionSettings `yaml:"collection,omitempty"`
	CostThresholds  CostThresholds     `yaml:"cost_thresholds,omitempty"`
	StoragePath     string             `yaml:"storage_path,omitempty"`
	SNSTopicARN     string             `yaml:"sns_topic_arn,omitempty"`
}

// CollectionSettings tune the collector engine.
type CollectionSettings struct {
	Parallelism   int           `yaml:"parallelism"`
	RetryAttempts int           `yaml:"retry_attempts"`
	BatchSize     int           `yaml:"batch_size"`
	Timeout       time.Duration `yaml:"timeout"`
}

// CostThresholds drive alerting and reporting cutoffs.
type CostThresholds struct {
	MonthlyAlert float64 `yaml:"monthly_alert"`
	StaleDays    int     `yaml:"stale_days"`
}

// Load reads and validates configuration from a file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Collection.Parallelism <= 0 {
		c.Collection.Parallelism = DefaultParallelism
	}
	if c.Collection.RetryAttempts <= 0 {
		c.Collection.RetryAttempts = DefaultRetryAttempts
	}
	if c.Collection.BatchSize <= 0 {
		c.Collection.BatchSize = DefaultBatchSize
	}
	if c.Collection.Timeout <= 0 {
		c.Collection.Timeout = DefaultTimeout
	}
	if len(c.ResourceTypes) == 0 {
		c.ResourceTypes = []string{"ec2", "rds", "s3", "lambda"}
	}
	if c.CostThresholds.StaleDays <= 0 {
		c.CostThresholds.StaleDays = 90
	}
	if c.StoragePath == "" {
		c.StoragePath = ".kerava"
	}
}

// Validate ensures the config can drive a run.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}
	if len(c.Accounts) == 0 {
		return fmt.Errorf("at least one account is required")
	}
	for _, a := range c.Accounts {
		if err := a.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// EnabledAccounts returns only accounts enabled for collection.
func (c *Config) EnabledAccounts() []types.Account {
	var enabled []types.Account
	for _, a := range c.Accounts {
		if a.Enabled {
			enabled = append(enabled, a)
		}
	}
	return enabled
}
