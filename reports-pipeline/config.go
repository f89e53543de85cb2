package main

import (
	"fmt"
	"os"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"gopkg.in/yaml.v3"
)

// Config represents the pipeline service configuration
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	CRM       PostgresConfig  `yaml:"crm"`
	Warehouse WarehouseConfig `yaml:"warehouse"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Seed      SeedConfig      `yaml:"seed"`
}

// ServiceConfig holds service-level settings
type ServiceConfig struct {
	Name                string `yaml:"name"`
	HealthPort          int    `yaml:"health_port"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	CallTimeoutSeconds  int    `yaml:"call_timeout_seconds"`
}

// PostgresConfig holds CRM (operational store) connection settings
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// WarehouseConfig holds ClickHouse connection settings
type WarehouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// PipelineConfig holds the extraction/refresh tuning knobs
type PipelineConfig struct {
	// OverlapMinutes widens the extraction upper bound past "now" so
	// in-flight CRM writes near the boundary land before the watermark
	// moves past their timestamp on the next run.
	OverlapMinutes int `yaml:"overlap_minutes"`
	// DaysBack is the trailing mart recomputation window.
	DaysBack int `yaml:"days_back"`
	// WatermarkTable is the checkpoint table in the CRM Postgres.
	WatermarkTable string `yaml:"watermark_table"`
	// StepRetries and RetryDelaySeconds mirror the orchestration contract:
	// one retry per step with a fixed delay.
	StepRetries       int `yaml:"step_retries"`
	RetryDelaySeconds int `yaml:"retry_delay_seconds"`
}

// SeedConfig controls demo data seeding (disabled by default)
type SeedConfig struct {
	Enabled           bool `yaml:"enabled"`
	Customers         int  `yaml:"customers"`
	EventsPerCustomer int  `yaml:"events_per_customer"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := defaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:                "bionicpro-reports-pipeline",
			HealthPort:          8090,
			PollIntervalSeconds: 3600,
			CallTimeoutSeconds:  30,
		},
		Pipeline: PipelineConfig{
			OverlapMinutes:    5,
			DaysBack:          2,
			WatermarkTable:    "etl_watermark",
			StepRetries:       1,
			RetryDelaySeconds: 300,
		},
		Seed: SeedConfig{
			Customers:         4,
			EventsPerCustomer: 6,
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Service.PollIntervalSeconds < 1 {
		return fmt.Errorf("poll_interval_seconds must be at least 1")
	}

	if c.Service.CallTimeoutSeconds < 1 {
		return fmt.Errorf("call_timeout_seconds must be at least 1")
	}

	if c.Pipeline.OverlapMinutes < 0 {
		return fmt.Errorf("overlap_minutes must not be negative")
	}

	if c.Pipeline.DaysBack < 0 {
		return fmt.Errorf("days_back must not be negative")
	}

	if c.Pipeline.WatermarkTable == "" {
		return fmt.Errorf("watermark_table must be set")
	}

	if c.Pipeline.StepRetries < 0 {
		return fmt.Errorf("step_retries must not be negative")
	}

	return nil
}

// PollInterval returns the poll interval as a Duration
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Service.PollIntervalSeconds) * time.Second
}

// CallTimeout returns the per-store-call timeout as a Duration
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Service.CallTimeoutSeconds) * time.Second
}

// Overlap returns the extraction overlap window as a Duration
func (c *Config) Overlap() time.Duration {
	return time.Duration(c.Pipeline.OverlapMinutes) * time.Minute
}

// RetryDelay returns the per-step retry delay as a Duration
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Pipeline.RetryDelaySeconds) * time.Second
}

// ConnectionString builds a PostgreSQL connection string
func (p *PostgresConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		p.Host, p.Port, p.Database, p.User, p.Password, p.SSLMode,
	)
}

// Options builds the clickhouse-go connection options
func (w *WarehouseConfig) Options() *clickhouse.Options {
	return &clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", w.Host, w.Port)},
		Auth: clickhouse.Auth{
			Database: w.Database,
			Username: w.User,
			Password: w.Password,
		},
		DialTimeout: 10 * time.Second,
	}
}
