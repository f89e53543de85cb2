package main

import (
	"fmt"
	"os"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"gopkg.in/yaml.v3"
)

// Config represents the report service configuration
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Warehouse WarehouseConfig `yaml:"warehouse"`
	Auth      AuthConfig      `yaml:"auth"`
}

// ServiceConfig holds HTTP server settings
type ServiceConfig struct {
	Name            string `yaml:"name"`
	Port            int    `yaml:"port"`
	CORSAllowOrigin string `yaml:"cors_allow_origin"`
}

// WarehouseConfig holds ClickHouse connection settings
type WarehouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// AuthConfig holds the static bearer token guard. Empty token disables the
// check (local development).
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{
		Service: ServiceConfig{
			Name: "bionicpro-report-service",
			Port: 8000,
		},
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if c.Warehouse.Host == "" {
		return fmt.Errorf("warehouse host must be set")
	}
	return nil
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
