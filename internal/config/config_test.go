package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Graphics.Width != 1280 {
		t.Errorf("expected width 1280, got %d", cfg.Graphics.Width)
	}
	if cfg.Graphics.Height != 720 {
		t.Errorf("expected height 720, got %d", cfg.Graphics.Height)
	}
	if cfg.Graphics.Fullscreen {
		t.Error("expected fullscreen to be false by default")
	}
	if cfg.Graphics.FOV != 60 {
		t.Errorf("expected fov 60, got %f", cfg.Graphics.FOV)
	}

	// Orbit tuning
	if cfg.Viewer.DampingFactor != 0.08 {
		t.Errorf("expected damping 0.08, got %f", cfg.Viewer.DampingFactor)
	}
	if cfg.Viewer.RotateSpeed != 0.8 {
		t.Errorf("expected rotate speed 0.8, got %f", cfg.Viewer.RotateSpeed)
	}
	if cfg.Viewer.ZoomSpeed != 1.2 {
		t.Errorf("expected zoom speed 1.2, got %f", cfg.Viewer.ZoomSpeed)
	}
	if cfg.Viewer.MaxPolarAngle != 0.8 {
		t.Errorf("expected max polar 0.8, got %f", cfg.Viewer.MaxPolarAngle)
	}

	// Provider retry budget
	if cfg.Provider.AuthRetries != 2 {
		t.Errorf("expected 2 auth retries, got %d", cfg.Provider.AuthRetries)
	}
	if cfg.Provider.NetworkRetries != 1 {
		t.Errorf("expected 1 network retry, got %d", cfg.Provider.NetworkRetries)
	}
	if cfg.Provider.NetworkDelay != 2*time.Second {
		t.Errorf("expected network delay 2s, got %v", cfg.Provider.NetworkDelay)
	}
	if cfg.Auth.ExpiryBuffer != 5*time.Minute {
		t.Errorf("expected expiry buffer 5m, got %v", cfg.Auth.ExpiryBuffer)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
graphics:
  width: 1920
  height: 1080
  fullscreen: true
  vsync: false

viewer:
  address: "Hauptstrasse 5 10827 Berlin"
  damping_factor: 0.1
  snapshot_dir: "/tmp/shots"

provider:
  base_url: "https://models.example.com/api"
  api_key: "k-123"
  timeout: 5s
  network_retries: 2

auth:
  token_url: "https://auth.example.com/token"
  client_id: "viewer"

server:
  listen_addr: ":9090"

logging:
  level: "debug"
  log_file: "viewer.log"
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, configPath); err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Graphics.Width != 1920 {
		t.Errorf("expected width 1920, got %d", cfg.Graphics.Width)
	}
	if !cfg.Graphics.Fullscreen {
		t.Error("expected fullscreen to be true")
	}
	if cfg.Graphics.VSync {
		t.Error("expected vsync to be false")
	}
	if cfg.Viewer.Address != "Hauptstrasse 5 10827 Berlin" {
		t.Errorf("unexpected address %q", cfg.Viewer.Address)
	}
	if cfg.Viewer.DampingFactor != 0.1 {
		t.Errorf("expected damping 0.1, got %f", cfg.Viewer.DampingFactor)
	}
	// Unset keys keep their defaults.
	if cfg.Viewer.RotateSpeed != 0.8 {
		t.Errorf("expected default rotate speed, got %f", cfg.Viewer.RotateSpeed)
	}
	if cfg.Provider.BaseURL != "https://models.example.com/api" {
		t.Errorf("unexpected base url %s", cfg.Provider.BaseURL)
	}
	if cfg.Provider.Timeout != 5*time.Second {
		t.Errorf("expected timeout 5s, got %v", cfg.Provider.Timeout)
	}
	if cfg.Provider.NetworkRetries != 2 {
		t.Errorf("expected 2 network retries, got %d", cfg.Provider.NetworkRetries)
	}
	if cfg.Auth.ClientID != "viewer" {
		t.Errorf("expected client id viewer, got %s", cfg.Auth.ClientID)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("expected listen :9090, got %s", cfg.Server.ListenAddr)
	}
	if cfg.Logging.LogFile != "viewer.log" {
		t.Errorf("expected log file 'viewer.log', got %s", cfg.Logging.LogFile)
	}
}

func TestLoadFromFileInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
graphics:
  width: not a number
  invalid syntax here
`

	if err := os.WriteFile(configPath, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, configPath); err == nil {
		t.Error("expected error loading invalid YAML, got nil")
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := Default()
	if err := loadFromFile(cfg, "/nonexistent/path/config.yaml"); err == nil {
		t.Error("expected error loading missing file, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero width", func(c *Config) { c.Graphics.Width = 0 }, true},
		{"fov too wide", func(c *Config) { c.Graphics.FOV = 180 }, true},
		{"damping above one", func(c *Config) { c.Viewer.DampingFactor = 1.5 }, true},
		{"polar zero", func(c *Config) { c.Viewer.MaxPolarAngle = 0 }, true},
		{"negative retries", func(c *Config) { c.Provider.AuthRetries = -1 }, true},
		{"no source", func(c *Config) { c.Provider.BaseURL = "" }, true},
		{"model dir only", func(c *Config) {
			c.Provider.BaseURL = ""
			c.Provider.ModelDir = "/srv/models"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigDir(t *testing.T) {
	dir := ConfigDir()

	if dir == "" {
		t.Error("ConfigDir returned empty string")
	}
	if !filepath.IsAbs(dir) {
		t.Errorf("ConfigDir should return absolute path, got %s", dir)
	}
}

func TestFindConfigFile(t *testing.T) {
	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)

	tmpDir := t.TempDir()
	os.Chdir(tmpDir)
	t.Setenv("XDG_CONFIG_HOME", tmpDir)
	t.Setenv("HOME", tmpDir)

	if path := findConfigFile(); path != "" {
		t.Errorf("expected empty path when no config exists, got %s", path)
	}

	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("graphics:\n  width: 800\n"), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}

	if path := findConfigFile(); path == "" {
		t.Error("expected to find config.yaml in current directory")
	}
}

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name     string
		setup    func()
		verify   func(*testing.T, *Config)
		teardown func()
	}{
		{
			name:  "debug flag",
			setup: func() { *flagDebug = true },
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Logging.Level != "debug" {
					t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
				}
			},
			teardown: func() { *flagDebug = false },
		},
		{
			name: "input flags",
			setup: func() {
				*flagAddress = "Ringstrasse 1"
				*flagBuildingID = "DEBY123"
			},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Viewer.Address != "Ringstrasse 1" {
					t.Errorf("expected address from flag, got %s", cfg.Viewer.Address)
				}
				if cfg.Viewer.BuildingID != "DEBY123" {
					t.Errorf("expected building id from flag, got %s", cfg.Viewer.BuildingID)
				}
			},
			teardown: func() {
				*flagAddress = ""
				*flagBuildingID = ""
			},
		},
		{
			name:  "model dir flag",
			setup: func() { *flagModelDir = "/srv/models" },
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Provider.ModelDir != "/srv/models" {
					t.Errorf("expected model dir /srv/models, got %s", cfg.Provider.ModelDir)
				}
			},
			teardown: func() { *flagModelDir = "" },
		},
		{
			name:  "listen flag",
			setup: func() { *flagListen = ":7070" },
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Server.ListenAddr != ":7070" {
					t.Errorf("expected listen :7070, got %s", cfg.Server.ListenAddr)
				}
			},
			teardown: func() { *flagListen = "" },
		},
		{
			name:  "fullscreen flag",
			setup: func() { *flagFullscreen = true },
			verify: func(t *testing.T, cfg *Config) {
				if !cfg.Graphics.Fullscreen {
					t.Error("expected fullscreen to be true with fullscreen flag")
				}
			},
			teardown: func() { *flagFullscreen = false },
		},
		{
			name: "width and height flags",
			setup: func() {
				*flagWidth = 2560
				*flagHeight = 1440
			},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Graphics.Width != 2560 {
					t.Errorf("expected width 2560, got %d", cfg.Graphics.Width)
				}
				if cfg.Graphics.Height != 1440 {
					t.Errorf("expected height 1440, got %d", cfg.Graphics.Height)
				}
			},
			teardown: func() {
				*flagWidth = 0
				*flagHeight = 0
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			defer tt.teardown()

			cfg := Default()
			applyFlags(cfg)

			tt.verify(t, cfg)
		})
	}
}

func TestLoadPriority(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
graphics:
  width: 1600
  height: 900
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	*flagConfig = configPath
	*flagWidth = 1920
	defer func() {
		*flagConfig = ""
		*flagWidth = 0
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	// Width from flag, height from file.
	if cfg.Graphics.Width != 1920 {
		t.Errorf("expected width 1920 from flag, got %d", cfg.Graphics.Width)
	}
	if cfg.Graphics.Height != 900 {
		t.Errorf("expected height 900 from file, got %d", cfg.Graphics.Height)
	}
}

func TestSaveToRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Auth.ClientSecret = "s3cret"
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("expected mode 0600, got %o", perm)
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if loaded.Auth.ClientSecret != "s3cret" {
		t.Errorf("expected secret to survive, got %q", loaded.Auth.ClientSecret)
	}
}

func TestRedacted(t *testing.T) {
	cfg := Default()
	cfg.Provider.APIKey = "key-123"
	cfg.Auth.ClientSecret = "s3cret"

	red := cfg.Redacted()
	if red.Provider.APIKey != "***" || red.Auth.ClientSecret != "***" {
		t.Errorf("secrets not masked: %q %q", red.Provider.APIKey, red.Auth.ClientSecret)
	}
	if cfg.Provider.APIKey != "key-123" {
		t.Error("Redacted modified the original")
	}

	empty := Default().Redacted()
	if empty.Provider.APIKey != "" {
		t.Errorf("empty key masked as %q", empty.Provider.APIKey)
	}
}
