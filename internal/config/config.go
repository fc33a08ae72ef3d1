// Package config loads daemon configuration with the precedence
// runtime overrides > environment > config file > defaults.
package config

import "time"

// Config is the complete daemon configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Search    SearchConfig    `mapstructure:"search"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Handshake HandshakeConfig `mapstructure:"handshake"`
	Drafts    DraftsConfig    `mapstructure:"drafts"`
	Health    HealthConfig    `mapstructure:"health"`
	Debug     DebugConfig     `mapstructure:"debug"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

// WorkerConfig describes how the search worker process is launched.
type WorkerConfig struct {
	Python      string `mapstructure:"python"`
	Script      string `mapstructure:"script"`
	Dir         string `mapstructure:"dir"`
	ProcessName string `mapstructure:"process_name"`
}

// SearchConfig carries the default search parameters and batch filters.
type SearchConfig struct {
	Keywords           string   `mapstructure:"keywords"`
	Location           string   `mapstructure:"location"`
	Remote             bool     `mapstructure:"remote"`
	MaxJobs            int      `mapstructure:"max_jobs"`
	MaxAgeDays         int      `mapstructure:"max_age_days"`
	ExcludeURLPatterns []string `mapstructure:"exclude_url_patterns"`
}

// StorageConfig selects and tunes the job store backend.
type StorageConfig struct {
	// Backend is "file" or "redis".
	Backend       string `mapstructure:"backend"`
	DataDir       string `mapstructure:"data_dir"`
	RedisURL      string `mapstructure:"redis_url"`
	RetentionDays int    `mapstructure:"retention_days"`
	// SweepIntervalHours drives the background retention sweeper.
	SweepIntervalHours int `mapstructure:"sweep_interval_hours"`
	// SyncURL is the base URL of a remote job API that mirrors local
	// mutations. Empty disables remote sync entirely.
	SyncURL string `mapstructure:"sync_url"`
}

type HandshakeConfig struct {
	BridgeURL   string `mapstructure:"bridge_url"`
	FallbackDir string `mapstructure:"fallback_dir"`
}

type DraftsConfig struct {
	APIURL string `mapstructure:"api_url"`
	DBPath string `mapstructure:"db_path"`
}

type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type DebugConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	PprofEnabled bool `mapstructure:"pprof_enabled"`
}
