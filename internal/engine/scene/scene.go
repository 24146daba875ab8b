// Package scene owns the building viewer's scene graph: the installed model,
// the terrain, water and sky environment, and the light rig.
package scene

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/estateview/internal/engine/lighting"
	"github.com/Faultbox/estateview/internal/engine/water"
	"github.com/Faultbox/estateview/internal/logger"
	pkgmath "github.com/Faultbox/estateview/pkg/math"
)

// ErrNotModel is returned when a node without a model tag is installed.
var ErrNotModel = errors.New("node is not tagged as a model")

// rebuildTolerance is the relative extent change below which the
// environment is kept.
const rebuildTolerance = 0.01

// Framer positions the camera rig around a model's bounds.
type Framer interface {
	FitToBounds(b pkgmath.AABB)
}

// Config contains scene configuration options.
type Config struct {
	GroundTextureSize int
	Seed              int64 // Ground texture noise seed, zero picks a random one
}

// DefaultConfig returns a default scene configuration.
func DefaultConfig() Config {
	return Config{GroundTextureSize: DefaultTextureSize}
}

// Scene holds the scene graph. All methods must be called from the render goroutine.
type Scene struct {
	config Config

	Root       *Node
	Background mgl32.Vec3
	Fog        Fog
	Sky        Sky

	registry *Registry
	lights   lighting.Rig
	framer   Framer
	rng      *rand.Rand
	log      *zap.Logger

	model   *Node
	terrain *Node
	sky     *Node
	extent  float32
}

// New creates a scene with the default environment and no model.
func New(cfg Config) *Scene {
	if cfg.GroundTextureSize <= 0 {
		cfg.GroundTextureSize = DefaultTextureSize
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	bg := Hex(0xf5f9ff)
	s := &Scene{
		config:     cfg,
		Root:       NewGroup("scene"),
		Background: bg,
		Fog:        Fog{Color: bg, Density: 0.005},
		Sky:        DefaultSky(),
		registry:   NewRegistry(),
		lights:     lighting.DefaultRig(),
		rng:        rand.New(rand.NewSource(seed)),
		log:        logger.Named("scene"),
	}
	s.RebuildEnvironment(DefaultExtent)
	return s
}

// SetFramer sets the camera rig repositioned on every install.
func (s *Scene) SetFramer(f Framer) {
	s.framer = f
}

// Registry returns the resource registry.
func (s *Scene) Registry() *Registry {
	return s.registry
}

// Lights returns the light rig.
func (s *Scene) Lights() lighting.Rig {
	return s.lights
}

// Model returns the installed model node, or nil.
func (s *Scene) Model() *Node {
	return s.model
}

// Extent returns the current terrain extent.
func (s *Scene) Extent() float32 {
	return s.extent
}

// Traverse visits every node in the scene.
func (s *Scene) Traverse(fn func(*Node)) {
	s.Root.Traverse(fn)
}

// NodeCount returns the number of nodes in the scene.
func (s *Scene) NodeCount() int {
	return s.Root.Count()
}

// InstallModel replaces the active model with n, resizes the environment to
// the new bounds and frames the camera. The previous model is released first.
// A disposal failure is returned but does not prevent the install.
func (s *Scene) InstallModel(n *Node) error {
	if n == nil || !n.Tag.IsModel() {
		return ErrNotModel
	}
	if n == s.model {
		return nil
	}

	err := s.removeModel()

	s.registry.Adopt(n)
	s.Root.Add(n)
	s.model = n

	bounds := n.Bounds()
	s.RebuildEnvironment(ExtentFor(bounds))
	if s.framer != nil {
		s.framer.FitToBounds(bounds)
	}

	s.log.Debug("model installed",
		zap.String("name", n.Name),
		zap.Stringer("tag", n.Tag),
		zap.Float32("diagonal", bounds.Diagonal()),
		zap.Int("nodes", s.NodeCount()),
		zap.Int("resources", s.registry.Live()))
	return err
}

// Clear removes and releases the active model, leaving the environment.
func (s *Scene) Clear() error {
	return s.removeModel()
}

func (s *Scene) removeModel() error {
	if s.model == nil {
		return nil
	}
	old := s.model
	s.model = nil
	s.Root.Remove(old)
	if err := old.Dispose(); err != nil {
		s.log.Warn("model disposal failed", zap.String("name", old.Name), zap.Error(err))
		return fmt.Errorf("disposing model %q: %w", old.Name, err)
	}
	return nil
}

// RebuildEnvironment regenerates terrain, water and sky for extent.
// Old environment nodes are removed and released before new ones are added.
// It is skipped when the extent differs by less than one percent and
// reports whether a rebuild happened.
func (s *Scene) RebuildEnvironment(extent float32) bool {
	if extent <= 0 {
		extent = DefaultExtent
	}
	if s.terrain != nil && s.extent > 0 &&
		math.Abs(float64(extent-s.extent))/float64(s.extent) < rebuildTolerance {
		return false
	}

	var err error
	for _, old := range []*Node{s.terrain, s.sky} {
		if old == nil {
			continue
		}
		s.Root.Remove(old)
		err = multierr.Append(err, old.Dispose())
	}
	if err != nil {
		s.log.Warn("environment disposal failed", zap.Error(err))
	}

	s.terrain = buildTerrain(extent, s.config.GroundTextureSize, s.rng)
	s.sky = buildSky(s.Sky)
	s.registry.Adopt(s.terrain)
	s.registry.Adopt(s.sky)
	s.Root.Add(s.terrain)
	s.Root.Add(s.sky)
	s.extent = extent

	s.log.Debug("environment rebuilt", zap.Float32("extent", extent))
	return true
}

// Animate advances time-based cosmetics to t seconds.
func (s *Scene) Animate(t float64) {
	if s.terrain == nil {
		return
	}
	if w := s.terrain.FindByName("waterFeature"); w != nil && w.Material != nil {
		w.Material.Color = mgl32.Vec3(water.Color(t))
	}
}

// Destroy releases every resource in the scene. The scene is unusable afterwards.
func (s *Scene) Destroy() error {
	err := s.Root.Dispose()
	for _, c := range append([]*Node(nil), s.Root.Children()...) {
		s.Root.Remove(c)
	}
	s.model, s.terrain, s.sky = nil, nil, nil
	s.framer = nil
	return err
}
