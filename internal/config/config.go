// Package config handles viewer configuration loading and management.
package config

import "time"

// Config holds all viewer settings.
type Config struct {
	Graphics GraphicsConfig `yaml:"graphics"`
	Viewer   ViewerConfig   `yaml:"viewer"`
	Provider ProviderConfig `yaml:"provider"`
	Auth     AuthConfig     `yaml:"auth"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// GraphicsConfig holds display and rendering settings.
type GraphicsConfig struct {
	Width      int     `yaml:"width"`
	Height     int     `yaml:"height"`
	Fullscreen bool    `yaml:"fullscreen"`
	VSync      bool    `yaml:"vsync"`
	FOV        float32 `yaml:"fov"` // Vertical field of view in degrees
}

// ViewerConfig holds the initial input and interaction tuning.
type ViewerConfig struct {
	Address    string `yaml:"address"`
	BuildingID string `yaml:"building_id"`

	DampingFactor float32 `yaml:"damping_factor"`
	RotateSpeed   float32 `yaml:"rotate_speed"`
	ZoomSpeed     float32 `yaml:"zoom_speed"`
	PanSpeed      float32 `yaml:"pan_speed"`
	KeyPanSpeed   float32 `yaml:"key_pan_speed"`
	MaxPolarAngle float32 `yaml:"max_polar_angle"` // Fraction of Pi

	GroundTextureSize int           `yaml:"ground_texture_size"`
	EntranceDelay     time.Duration `yaml:"entrance_delay"`
	SnapshotDir       string        `yaml:"snapshot_dir"`
}

// ProviderConfig holds building-model endpoint settings.
type ProviderConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	ModelDir       string        `yaml:"model_dir"` // Serve models from a local directory instead of HTTP
	Timeout        time.Duration `yaml:"timeout"`
	AuthRetries    int           `yaml:"auth_retries"`
	NetworkRetries int           `yaml:"network_retries"`
	AuthDelay      time.Duration `yaml:"auth_delay"`
	NetworkDelay   time.Duration `yaml:"network_delay"`
	CacheSize      int           `yaml:"cache_size"`
}

// AuthConfig holds OAuth2 client credentials settings.
type AuthConfig struct {
	TokenURL     string        `yaml:"token_url"`
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	TokenCache   string        `yaml:"token_cache"`
	ExpiryBuffer time.Duration `yaml:"expiry_buffer"`
	StaticToken  string        `yaml:"static_token"` // Fixed bearer token, used without token_url
}

// ServerConfig holds the status feed listener settings.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"` // Empty disables the status server
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Graphics: GraphicsConfig{
			Width:      1280,
			Height:     720,
			Fullscreen: false,
			VSync:      true,
			FOV:        60,
		},
		Viewer: ViewerConfig{
			DampingFactor:     0.08,
			RotateSpeed:       0.8,
			ZoomSpeed:         1.2,
			PanSpeed:          1.0,
			KeyPanSpeed:       7.0,
			MaxPolarAngle:     0.8,
			GroundTextureSize: 1024,
			EntranceDelay:     0,
			SnapshotDir:       "snapshots",
		},
		Provider: ProviderConfig{
			BaseURL:        "http://127.0.0.1:8080/api",
			Timeout:        30 * time.Second,
			AuthRetries:    2,
			NetworkRetries: 1,
			AuthDelay:      time.Second,
			NetworkDelay:   2 * time.Second,
			CacheSize:      64,
		},
		Auth: AuthConfig{
			ExpiryBuffer: 5 * time.Minute,
		},
		Server: ServerConfig{
			ListenAddr: "",
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}
