// Package config provides configuration management for the orchestrator.
//
// This package handles loading configuration from multiple sources:
//   - YAML configuration files
//   - Environment variables (with US_ prefix)
//   - .env files
//   - Default values
//
// # Configuration Sources Priority
//
// Configuration is loaded in the following order (later sources override earlier ones):
//  1. Default values (hardcoded)
//  2. Configuration files (./config.yaml, ./configs/config.yaml, ~/.ushadow/config.yaml, /etc/ushadow/config.yaml)
//  3. .env files
//  4. Environment variables (US_ prefix)
//
// # Usage Example
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Server: %s:%d\n", cfg.Server.Host, cfg.Server.Port)
//
// # Environment Variables
//
// Environment variables override all other configuration sources.
// Use US_ prefix and underscores for nested keys:
//   - US_SERVER_PORT=8010
//   - US_DOCKER_SOCKET=/var/run/docker.sock
//   - US_CLUSTER_ROSTER_INTERVAL=15s
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration structure for the orchestrator.
type Config struct {
	// Server contains HTTP server configuration
	Server ServerConfig `mapstructure:"server"`

	// Docker contains container runtime connection settings
	Docker DockerConfig `mapstructure:"docker"`

	// Paths contains filesystem locations for catalogs, settings and stacks
	Paths PathsConfig `mapstructure:"paths"`

	// Setup contains the setup-level dependency table
	Setup SetupConfig `mapstructure:"setup"`

	// Cluster contains fleet and join-token settings
	Cluster ClusterConfig `mapstructure:"cluster"`

	// Security contains rate limiting and CORS settings
	Security SecurityConfig `mapstructure:"security"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// Host is the server bind address
	Host string `mapstructure:"host"`

	// Port is the server listen port
	Port int `mapstructure:"port"`

	// ReadTimeout is the maximum duration for reading requests
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the maximum duration for writing responses
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// ShutdownTimeout is the maximum duration for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// Debug enables debug logging
	Debug bool `mapstructure:"debug"`
}

// DockerConfig contains container runtime settings.
type DockerConfig struct {
	// Socket is the path to the Docker socket
	Socket string `mapstructure:"socket"`

	// StatusInterval is the period between container status polls
	StatusInterval time.Duration `mapstructure:"status_interval"`
}

// PathsConfig contains filesystem locations used by the engine.
type PathsConfig struct {
	// ComposeDir holds the service catalog compose files
	ComposeDir string `mapstructure:"compose_dir"`

	// SettingsDir holds secrets.yaml and settings.yaml
	SettingsDir string `mapstructure:"settings_dir"`

	// StacksDir is where new environment checkouts are created
	StacksDir string `mapstructure:"stacks_dir"`

	// PrimaryCheckout is the main stack checkout used as the worktree base
	PrimaryCheckout string `mapstructure:"primary_checkout"`

	// StackRemote is the git URL cloned for new environments
	StackRemote string `mapstructure:"stack_remote"`
}

// SetupConfig holds the per-level service dependency table. Which
// services participate in level computation is deployment-specific, so
// the table is configuration rather than a constant.
type SetupConfig struct {
	// Level1 services must be running for level 1
	Level1 []string `mapstructure:"level1"`

	// Level2 services must be configured for level 2
	Level2 []string `mapstructure:"level2"`

	// Level3 services must be configured for level 3
	Level3 []string `mapstructure:"level3"`
}

// ClusterConfig contains fleet roster and join-token settings.
type ClusterConfig struct {
	// TokenSecret signs join tokens
	TokenSecret string `mapstructure:"token_secret"`

	// RosterInterval is the period between fleet roster refreshes
	RosterInterval time.Duration `mapstructure:"roster_interval"`

	// RosterURL is the fleet roster endpoint; empty disables polling
	RosterURL string `mapstructure:"roster_url"`
}

// SecurityConfig contains rate limiting and CORS settings.
type SecurityConfig struct {
	// RateLimit is the maximum requests per second per client
	RateLimit int `mapstructure:"rate_limit"`

	// AllowedOrigins are the CORS allowed origins
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

var cfg *Config

// Load reads configuration from a file and environment variables.
// If cfgFile is empty, it searches for config.yaml in standard locations.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (US_ prefix)
//  2. .env file
//  3. Configuration file
//  4. Default values
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.ushadow")
		v.AddConfigPath("/etc/ushadow")
	}

	if err := v.ReadInConfig(); err != nil {
		// If config file was explicitly specified, fail on any error
		// If searching multiple paths, only fail on errors other than ConfigFileNotFoundError
		if cfgFile != "" {
			if !isFileNotFoundError(err) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		} else {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.MergeInConfig() // Ignore error if .env file doesn't exist

	v.SetEnvPrefix("US")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg = &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8010)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.debug", false)

	v.SetDefault("docker.socket", "/var/run/docker.sock")
	v.SetDefault("docker.status_interval", "10s")

	v.SetDefault("paths.compose_dir", "./compose")
	v.SetDefault("paths.settings_dir", "./config")
	v.SetDefault("paths.stacks_dir", "./stacks")
	v.SetDefault("paths.primary_checkout", ".")
	v.SetDefault("paths.stack_remote", "https://github.com/ushadow/stack.git")

	v.SetDefault("setup.level1", []string{"mem0", "chronicle-backend"})
	v.SetDefault("setup.level2", []string{"chronicle"})
	v.SetDefault("setup.level3", []string{"speaches"})

	v.SetDefault("cluster.token_secret", "change-me-in-production")
	v.SetDefault("cluster.roster_interval", "15s")
	v.SetDefault("cluster.roster_url", "")

	v.SetDefault("security.rate_limit", 100)
	v.SetDefault("security.allowed_origins", []string{"*"})
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}

	if cfg.Docker.Socket == "" {
		return fmt.Errorf("docker socket is required")
	}

	if len(cfg.Setup.Level1) == 0 {
		return fmt.Errorf("setup.level1 must name at least one service")
	}

	return nil
}

func Get() *Config {
	return cfg
}

// isFileNotFoundError checks if an error is a file not found error.
func isFileNotFoundError(err error) bool {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return errors.Is(pathErr, os.ErrNotExist)
	}
	return false
}
