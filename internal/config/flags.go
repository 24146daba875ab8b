package config

import "flag"

var (
	flagConfig     = flag.String("config", "", "Path to config file")
	flagDebug      = flag.Bool("debug", false, "Enable debug logging")
	flagAddress    = flag.String("address", "", "Building address to look up")
	flagBuildingID = flag.String("building-id", "", "Building identifier (takes precedence over address)")
	flagModelDir   = flag.String("model-dir", "", "Serve models from a local directory")
	flagListen     = flag.String("listen", "", "Status server listen address")
	flagWindowed   = flag.Bool("windowed", false, "Run in windowed mode")
	flagFullscreen = flag.Bool("fullscreen", false, "Run in fullscreen mode")
	flagWidth      = flag.Int("width", 0, "Window width")
	flagHeight     = flag.Int("height", 0, "Window height")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagAddress != "" {
		cfg.Viewer.Address = *flagAddress
	}
	if *flagBuildingID != "" {
		cfg.Viewer.BuildingID = *flagBuildingID
	}
	if *flagModelDir != "" {
		cfg.Provider.ModelDir = *flagModelDir
	}
	if *flagListen != "" {
		cfg.Server.ListenAddr = *flagListen
	}
	if *flagWindowed {
		cfg.Graphics.Fullscreen = false
	}
	if *flagFullscreen {
		cfg.Graphics.Fullscreen = true
	}
	if *flagWidth > 0 {
		cfg.Graphics.Width = *flagWidth
	}
	if *flagHeight > 0 {
		cfg.Graphics.Height = *flagHeight
	}
}
