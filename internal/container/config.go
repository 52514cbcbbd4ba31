// Package container provides dependency injection and lifecycle management
// for the requisition service.
package container

import (
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
type Config struct {
	Database DatabaseConfig
	Lark     LarkConfig
	Server   ServerConfig
	Worker   WorkerConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// MigrationsDir reads migrations from disk; empty uses the embedded set
	MigrationsDir string
}

// LarkConfig holds Lark notification settings.
type LarkConfig struct {
	// Enabled switches notifications from the log-only sender to Lark
	Enabled bool

	AppID         string
	AppSecret     string
	ReceiveIDType string
	// BaseURL overrides the open platform endpoint
	BaseURL string

	// OfficeReceivers maps office ids to Lark receiver ids
	OfficeReceivers map[string]string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	RelayInterval time.Duration
	RelayBatch    int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/requisitions.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Lark: LarkConfig{
			ReceiveIDType:   "open_id",
			OfficeReceivers: map[string]string{},
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Worker: WorkerConfig{
			RelayInterval: 5 * time.Second,
			RelayBatch:    50,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Lark.Enabled {
		if c.Lark.AppID == "" {
			return fmt.Errorf("lark.app_id is required")
		}
		if c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_secret is required")
		}
	}

	if c.Worker.RelayInterval < 0 || c.Worker.RelayBatch < 0 {
		return fmt.Errorf("worker settings must not be negative")
	}

	return nil
}
