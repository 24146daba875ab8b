// Package app wires configuration, the platform host, the model source,
// the viewer and the status feed into the desktop viewer.
package app

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/estateview/internal/auth"
	"github.com/Faultbox/estateview/internal/config"
	"github.com/Faultbox/estateview/internal/engine/host"
	"github.com/Faultbox/estateview/internal/logger"
	"github.com/Faultbox/estateview/internal/provider"
	"github.com/Faultbox/estateview/internal/statusfeed"
	"github.com/Faultbox/estateview/internal/viewer"
)

// Host is the platform the app runs on. Run pumps frames on the calling
// goroutine until the window closes or ctx is done.
type Host interface {
	host.Surface
	Run(ctx context.Context) error
	Close() error
}

// App is the running desktop viewer.
type App struct {
	cfg      *config.Config
	log      *zap.Logger
	registry *prometheus.Registry
	host     Host
	source   provider.Source
	dir      *provider.DirProvider
	viewer   *viewer.Viewer
	feed     *statusfeed.Server
}

// New builds the viewer on h. It does not start loading; Run does. The app
// owns h from here on and closes it in Close.
func New(cfg *config.Config, h Host) (*App, error) {
	log := logger.Named("app")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	src, err := NewSource(cfg, reg)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:      cfg,
		log:      log,
		registry: reg,
		host:     h,
		source:   src,
		viewer:   viewer.New(h, src, ViewerConfig(cfg)),
	}

	if dir, ok := src.(*provider.DirProvider); ok {
		a.dir = dir
		// Change notifications arrive on the watcher goroutine; the viewer
		// is only touched from frame callbacks.
		dir.OnChange(func(buildingID string) {
			h.ScheduleFrame(func(time.Time) { a.reloadIfShown(buildingID) })
		})
		if err := dir.Watch(); err != nil {
			log.Warn("model directory not watched", zap.Error(err))
		}
	}

	if cfg.Server.ListenAddr != "" {
		a.feed = statusfeed.New(a.viewer, statusfeed.WithRegistry(reg))
	}

	log.Info("viewer created",
		zap.Int("width", cfg.Graphics.Width),
		zap.Int("height", cfg.Graphics.Height),
		zap.String("address", cfg.Viewer.Address),
		zap.String("building_id", cfg.Viewer.BuildingID))
	return a, nil
}

// Run starts the viewer and blocks until the window closes or ctx is done.
// It must be called from the main goroutine.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	if a.feed != nil {
		addr := a.cfg.Server.ListenAddr
		g.Go(func() error {
			if err := a.feed.ListenAndServe(ctx, addr); err != nil {
				return fmt.Errorf("status server: %w", err)
			}
			return nil
		})
	}

	// A setup failure leaves the viewer in its error state; R retries.
	if err := a.viewer.Init(); err != nil {
		a.log.Error("viewer init failed", zap.Error(err))
	}

	err := a.host.Run(ctx)
	cancel()
	return multierr.Append(err, g.Wait())
}

// Registry returns the metrics registry served on /metrics.
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}

// Viewer returns the viewer.
func (a *App) Viewer() *viewer.Viewer {
	return a.viewer
}

// Close releases the viewer, the model source and the window.
func (a *App) Close() error {
	a.log.Info("closing viewer")
	err := a.viewer.Close()
	err = multierr.Append(err, closeSource(a.source))
	return multierr.Append(err, a.host.Close())
}

func (a *App) reloadIfShown(buildingID string) {
	st := a.viewer.Status()
	if buildingID != "" && buildingID != st.BuildingID {
		return
	}
	a.log.Info("model files changed, reloading", zap.String("building_id", buildingID))
	a.viewer.Retry()
}

func closeSource(src provider.Source) error {
	if c, ok := src.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// ViewerConfig maps application settings onto the viewer.
func ViewerConfig(cfg *config.Config) viewer.Config {
	vc := viewer.DefaultConfig()
	vc.Address = cfg.Viewer.Address
	vc.BuildingID = cfg.Viewer.BuildingID
	vc.FOV = cfg.Graphics.FOV
	vc.Scene.GroundTextureSize = cfg.Viewer.GroundTextureSize
	vc.EntranceDelay = cfg.Viewer.EntranceDelay
	vc.SnapshotDir = cfg.Viewer.SnapshotDir

	vc.Controls.EnableDamping = cfg.Viewer.DampingFactor > 0
	vc.Controls.DampingFactor = cfg.Viewer.DampingFactor
	vc.Controls.RotateSpeed = cfg.Viewer.RotateSpeed
	vc.Controls.ZoomSpeed = cfg.Viewer.ZoomSpeed
	vc.Controls.PanSpeed = cfg.Viewer.PanSpeed
	vc.Controls.KeyPanSpeed = cfg.Viewer.KeyPanSpeed
	vc.Controls.MaxPolarAngle = cfg.Viewer.MaxPolarAngle * math.Pi
	return vc
}

// Credentials returns the token source for the building API: OAuth2
// client credentials when a token endpoint is set, else the static token,
// else nil.
func Credentials(cfg *config.Config) provider.Credentials {
	if cfg.Auth.TokenURL == "" {
		if cfg.Auth.StaticToken != "" {
			return auth.Static(cfg.Auth.StaticToken)
		}
		return nil
	}
	return auth.New(auth.Config{
		TokenURL:     cfg.Auth.TokenURL,
		ClientID:     cfg.Auth.ClientID,
		ClientSecret: cfg.Auth.ClientSecret,
		CachePath:    cfg.Auth.TokenCache,
		ExpiryBuffer: cfg.Auth.ExpiryBuffer,
	}, auth.WithHTTPClient(&http.Client{Timeout: cfg.Provider.Timeout}))
}

// NewSource returns the model source selected by the configuration: a
// local model directory when one is set, the building API otherwise.
func NewSource(cfg *config.Config, reg prometheus.Registerer) (provider.Source, error) {
	if cfg.Provider.ModelDir != "" {
		dir, err := provider.NewDir(cfg.Provider.ModelDir)
		if err != nil {
			return nil, fmt.Errorf("opening model directory: %w", err)
		}
		return dir, nil
	}

	pc := provider.Config{
		BaseURL:        cfg.Provider.BaseURL,
		APIKey:         cfg.Provider.APIKey,
		Timeout:        cfg.Provider.Timeout,
		AuthRetries:    cfg.Provider.AuthRetries,
		NetworkRetries: cfg.Provider.NetworkRetries,
		AuthDelay:      cfg.Provider.AuthDelay,
		NetworkDelay:   cfg.Provider.NetworkDelay,
		CacheSize:      cfg.Provider.CacheSize,
	}
	return provider.NewHTTP(pc, Credentials(cfg), provider.WithRegisterer(reg)), nil
}
