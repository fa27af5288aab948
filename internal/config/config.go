package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Client ClientConfig `json:"client"`

	// Sync tunables for the notification sync core
	Sync SyncConfig `json:"sync"`

	// Server configuration (notifyd only)
	Server ServerConfig `json:"server"`

	// Database configuration (notifyd only)
	Database DatabaseConfig `json:"database"`
}

// ClientConfig holds what the API and channel clients need to reach the backend.
type ClientConfig struct {
	// BaseURL is the backend base URL, e.g. http://localhost:8080.
	// Required for client binaries; nothing works without it.
	BaseURL string `json:"base_url"`

	// AuthToken is the bearer token attached to every REST call and the
	// websocket handshake. Session handling issues it elsewhere.
	AuthToken string `json:"auth_token"`
}

type SyncConfig struct {
	PollIntervalSec  int `json:"poll_interval_sec"`  // fallback polling cadence
	ReconnectWaitSec int `json:"reconnect_wait_sec"` // delay between websocket redials
}

type ServerConfig struct {
	Host         string `json:"host"`
	Port         string `json:"port"`
	ReadTimeout  int    `json:"read_timeout"`
	WriteTimeout int    `json:"write_timeout"`
	Environment  string `json:"environment"` // development, staging, production
}

type DatabaseConfig struct {
	Host         string `json:"host"`
	Port         string `json:"port"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	DatabaseName string `json:"database_name"`
	MaxOpenConns int    `json:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns"`
}

// Load reads configuration from the environment, with a .env file as a
// convenience for local development.
func Load() *Config {
	// a missing .env file just means system environment only
	_ = godotenv.Load()

	return &Config{
		Client: ClientConfig{
			BaseURL:   os.Getenv("API_BASE_URL"),
			AuthToken: os.Getenv("API_AUTH_TOKEN"),
		},
		Sync: SyncConfig{
			PollIntervalSec:  getEnvIntOrDefault("SYNC_POLL_INTERVAL_SEC", 30),
			ReconnectWaitSec: getEnvIntOrDefault("SYNC_RECONNECT_WAIT_SEC", 5),
		},
		Server: ServerConfig{
			Host:         getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvOrDefault("SERVER_PORT", "8080"),
			ReadTimeout:  getEnvIntOrDefault("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", 15),
			Environment:  getEnvOrDefault("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			Host:         getEnvOrDefault("DB_HOST", "localhost"),
			Port:         getEnvOrDefault("DB_PORT", "3306"),
			Username:     getEnvOrDefault("DB_USER", "recruitdesk"),
			Password:     getEnvOrDefault("DB_PASSWORD", ""),
			DatabaseName: getEnvOrDefault("DB_NAME", "recruitdesk"),
			MaxOpenConns: getEnvIntOrDefault("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvIntOrDefault("DB_MAX_IDLE_CONNS", 5),
		},
	}
}

// ValidateClient enforces the configuration client binaries cannot run
// without. A missing base URL is fatal at startup: no later network call
// could succeed anyway.
func (cfg *Config) ValidateClient() error {
	if cfg.Client.BaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	return nil
}

func (cfg *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Database.Username,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.DatabaseName,
	)
}

func getEnvOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvIntOrDefault(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
