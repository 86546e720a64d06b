package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

// TestLoadDefaults tests that default configuration values are loaded correctly.
func TestLoadDefaults(t *testing.T) {
	// Load configuration without a config file
	cfg, err := Load("nonexistent.yaml")
	if err != nil {
		t.Fatalf("Failed to load defaults: %v", err)
	}

	// Test Server defaults
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Expected default server host '0.0.0.0', got '%s'", cfg.Server.Host)
	}
	if cfg.Server.Port != 8010 {
		t.Errorf("Expected default server port 8010, got %d", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("Expected default read timeout 30s, got %v", cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout != 30*time.Second {
		t.Errorf("Expected default write timeout 30s, got %v", cfg.Server.WriteTimeout)
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("Expected default shutdown timeout 10s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Server.Debug != false {
		t.Errorf("Expected default debug false, got %v", cfg.Server.Debug)
	}

	// Test Docker defaults
	if cfg.Docker.Socket != "/var/run/docker.sock" {
		t.Errorf("Expected default docker socket '/var/run/docker.sock', got '%s'", cfg.Docker.Socket)
	}
	if cfg.Docker.StatusInterval != 10*time.Second {
		t.Errorf("Expected default status interval 10s, got %v", cfg.Docker.StatusInterval)
	}

	// Test Setup defaults
	if len(cfg.Setup.Level1) != 2 || cfg.Setup.Level1[0] != "mem0" || cfg.Setup.Level1[1] != "chronicle-backend" {
		t.Errorf("Expected default level1 [mem0 chronicle-backend], got %v", cfg.Setup.Level1)
	}
	if len(cfg.Setup.Level2) != 1 || cfg.Setup.Level2[0] != "chronicle" {
		t.Errorf("Expected default level2 [chronicle], got %v", cfg.Setup.Level2)
	}
	if len(cfg.Setup.Level3) != 1 || cfg.Setup.Level3[0] != "speaches" {
		t.Errorf("Expected default level3 [speaches], got %v", cfg.Setup.Level3)
	}

	// Test Cluster defaults
	if cfg.Cluster.TokenSecret != "change-me-in-production" {
		t.Errorf("Expected default token_secret 'change-me-in-production', got '%s'", cfg.Cluster.TokenSecret)
	}
	if cfg.Cluster.RosterInterval != 15*time.Second {
		t.Errorf("Expected default roster interval 15s, got %v", cfg.Cluster.RosterInterval)
	}

	// Test Security defaults
	if cfg.Security.RateLimit != 100 {
		t.Errorf("Expected default rate limit 100, got %d", cfg.Security.RateLimit)
	}
	if len(cfg.Security.AllowedOrigins) != 1 || cfg.Security.AllowedOrigins[0] != "*" {
		t.Errorf("Expected default allowed origins ['*'], got %v", cfg.Security.AllowedOrigins)
	}
}

// TestValidation tests the configuration validation logic.
func TestValidation(t *testing.T) {
	tests := []struct {
		name      string
		cfg       *Config
		expectErr bool
		errMsg    string
	}{
		{
			name: "valid configuration",
			cfg: &Config{
				Server: ServerConfig{
					Port: 8010,
				},
				Docker: DockerConfig{
					Socket: "/var/run/docker.sock",
				},
				Setup: SetupConfig{
					Level1: []string{"mem0"},
				},
			},
			expectErr: false,
		},
		{
			name: "invalid port - too low",
			cfg: &Config{
				Server: ServerConfig{
					Port: 0,
				},
				Docker: DockerConfig{
					Socket: "/var/run/docker.sock",
				},
				Setup: SetupConfig{
					Level1: []string{"mem0"},
				},
			},
			expectErr: true,
			errMsg:    "invalid server port",
		},
		{
			name: "invalid port - too high",
			cfg: &Config{
				Server: ServerConfig{
					Port: 70000,
				},
				Docker: DockerConfig{
					Socket: "/var/run/docker.sock",
				},
				Setup: SetupConfig{
					Level1: []string{"mem0"},
				},
			},
			expectErr: true,
			errMsg:    "invalid server port",
		},
		{
			name: "missing docker socket",
			cfg: &Config{
				Server: ServerConfig{
					Port: 8010,
				},
				Docker: DockerConfig{
					Socket: "",
				},
				Setup: SetupConfig{
					Level1: []string{"mem0"},
				},
			},
			expectErr: true,
			errMsg:    "docker socket is required",
		},
		{
			name: "empty level1 table",
			cfg: &Config{
				Server: ServerConfig{
					Port: 8010,
				},
				Docker: DockerConfig{
					Socket: "/var/run/docker.sock",
				},
				Setup: SetupConfig{},
			},
			expectErr: true,
			errMsg:    "setup.level1 must name at least one service",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate(tt.cfg)
			if tt.expectErr {
				if err == nil {
					t.Errorf("Expected error containing '%s', got nil", tt.errMsg)
				} else if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("Expected error containing '%s', got '%s'", tt.errMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
			}
		})
	}
}

// TestEnvironmentVariableOverride tests that environment variables override config values.
func TestEnvironmentVariableOverride(t *testing.T) {
	// Save original env vars
	originalPort := os.Getenv("US_SERVER_PORT")
	originalHost := os.Getenv("US_SERVER_HOST")
	originalDebug := os.Getenv("US_SERVER_DEBUG")

	// Set test env vars
	os.Setenv("US_SERVER_PORT", "9999")
	os.Setenv("US_SERVER_HOST", "127.0.0.1")
	os.Setenv("US_SERVER_DEBUG", "true")

	// Cleanup after test
	defer func() {
		if originalPort != "" {
			os.Setenv("US_SERVER_PORT", originalPort)
		} else {
			os.Unsetenv("US_SERVER_PORT")
		}
		if originalHost != "" {
			os.Setenv("US_SERVER_HOST", originalHost)
		} else {
			os.Unsetenv("US_SERVER_HOST")
		}
		if originalDebug != "" {
			os.Setenv("US_SERVER_DEBUG", originalDebug)
		} else {
			os.Unsetenv("US_SERVER_DEBUG")
		}
	}()

	cfg, err := Load("nonexistent.yaml")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("Expected port 9999 from environment, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Expected host '127.0.0.1' from environment, got '%s'", cfg.Server.Host)
	}
	if cfg.Server.Debug != true {
		t.Errorf("Expected debug true from environment, got %v", cfg.Server.Debug)
	}
}

// TestGet tests the global config getter.
func TestGet(t *testing.T) {
	// Load configuration first
	_, err := Load("nonexistent.yaml")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Get should return the loaded config
	retrieved := Get()
	if retrieved == nil {
		t.Error("Get() returned nil")
		return
	}

	// Verify it's the same instance
	if retrieved.Server.Port != 8010 {
		t.Errorf("Expected port 8010 from Get(), got %d", retrieved.Server.Port)
	}
}
