// Package viewer runs the building viewer: it owns the scene, camera, orbit
// controls and render loop on a host surface, and drives model loads through
// an explicit state machine.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/estateview/internal/engine/camera"
	"github.com/Faultbox/estateview/internal/engine/host"
	"github.com/Faultbox/estateview/internal/engine/input"
	"github.com/Faultbox/estateview/internal/engine/loop"
	"github.com/Faultbox/estateview/internal/engine/scene"
	"github.com/Faultbox/estateview/internal/export"
	"github.com/Faultbox/estateview/internal/logger"
	"github.com/Faultbox/estateview/internal/provider"
)

// ErrClosed is returned by operations on a closed viewer.
var ErrClosed = errors.New("viewer closed")

// ErrNotReady is returned by Snapshot when there is no surface to capture.
var ErrNotReady = errors.New("viewer has no render surface")

const resultBuffer = 8

// Config holds viewer settings.
type Config struct {
	Address    string
	BuildingID string

	FOV      float32 // Degrees, zero uses camera.DefaultFOV
	Scene    scene.Config
	Controls camera.Settings

	// EntranceDelay holds a loaded model back before it is shown. It only
	// paces the entrance and never affects which model wins.
	EntranceDelay time.Duration
	SnapshotDir   string
}

// DefaultConfig returns the default viewer configuration.
func DefaultConfig() Config {
	return Config{
		FOV:         camera.DefaultFOV,
		Scene:       scene.DefaultConfig(),
		Controls:    camera.DefaultSettings(),
		SnapshotDir: "snapshots",
	}
}

// Status is the state exposed to hosting pages. At most one of IsLoading and
// HasError is set, and HasModel implies the ready state.
type Status struct {
	State        string    `json:"state"`
	IsLoading    bool      `json:"is_loading"`
	HasError     bool      `json:"has_error"`
	ErrorMessage string    `json:"error_message"`
	HasModel     bool      `json:"has_model"`
	Fallback     bool      `json:"fallback"`
	Notice       string    `json:"notice,omitempty"`
	Address      string    `json:"address"`
	BuildingID   string    `json:"building_id"`
	LoadID       string    `json:"load_id,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Viewer binds a model source to a host surface.
//
// Init, SetInput, Retry, Snapshot and Close must be called on the host's
// frame goroutine, the same one that runs frame callbacks. Status,
// Subscribe and the flag accessors are safe from any goroutine.
type Viewer struct {
	cfg    Config
	host   host.Surface
	source provider.Source
	log    *zap.Logger

	// Frame goroutine only.
	surface    host.RenderSurface
	scene      *scene.Scene
	cam        *camera.Camera
	controls   *camera.OrbitControls
	loop       *loop.Loop
	stopResize func()
	epochStart time.Time
	state      State
	address    string
	buildingID string
	held       *heldResult
	incoming   *result // Result being delivered, read by the install effect
	installed  *result
	loadID     string

	ctx     context.Context
	cancel  context.CancelFunc
	results chan result
	wg      sync.WaitGroup
	closed  bool
	started bool

	mu     sync.RWMutex
	status Status
	subs   map[int]chan Status
	nextID int
}

type heldResult struct {
	res     result
	readyAt time.Time
}

// New creates a viewer. Call Init to create the surface and start loading.
func New(h host.Surface, src provider.Source, cfg Config) *Viewer {
	if cfg.FOV <= 0 {
		cfg.FOV = camera.DefaultFOV
	}
	ctx, cancel := context.WithCancel(context.Background())
	v := &Viewer{
		cfg:        cfg,
		host:       h,
		source:     src,
		log:        logger.Named("viewer"),
		address:    strings.TrimSpace(cfg.Address),
		buildingID: strings.TrimSpace(cfg.BuildingID),
		ctx:        ctx,
		cancel:     cancel,
		results:    make(chan result, resultBuffer),
		subs:       make(map[int]chan Status),
	}
	// Without a surface there is no render loop to read input, so the
	// host hands R and P to the viewer directly.
	h.OnDetachedInput(v)
	v.publish()
	return v
}

// Init creates the render surface, scene and controls, starts the render
// loop and begins loading the configured input. Setup failures put the
// viewer in the error state; Retry runs setup again.
func (v *Viewer) Init() error {
	if v.closed {
		return ErrClosed
	}
	v.started = true
	if err := v.setup(); err != nil {
		v.log.Error("viewer setup failed", zap.Error(err))
		v.apply(Event{Type: EventInitFailed, Message: MsgInit})
		return err
	}
	v.apply(Event{Type: EventStart, HasInput: v.hasInput()})
	return nil
}

func (v *Viewer) setup() error {
	surface, err := v.host.CreateRenderSurface()
	if err != nil {
		return fmt.Errorf("creating render surface: %w", err)
	}
	width, height := surface.Size()

	cam := camera.New(1)
	cam.FOV = v.cfg.FOV
	cam.SetAspect(width, height)

	controls := camera.NewOrbitControls(cam, v.cfg.Controls, width, height)
	controls.OnInteraction(
		func() { surface.SetGrabbing(true) },
		func() { surface.SetGrabbing(false) },
	)

	sc := scene.New(v.cfg.Scene)
	sc.SetFramer(controls)

	v.surface, v.cam, v.controls, v.scene = surface, cam, controls, sc
	v.epochStart = time.Time{}

	surface.OnContextLost(v.contextLost)
	v.stopResize = v.host.ObserveResize(v.resized)

	v.loop = loop.New(v.host, v.tick, v.render)
	v.loop.Each(v.pump)
	v.loop.Start()

	v.log.Info("viewer initialized", zap.Int("width", width), zap.Int("height", height))
	return nil
}

// teardown stops the loop and releases the scene and surface.
func (v *Viewer) teardown() error {
	if v.loop != nil {
		v.loop.Cancel()
		v.loop = nil
	}
	if v.stopResize != nil {
		v.stopResize()
		v.stopResize = nil
	}
	if v.controls != nil {
		v.controls.Dispose()
		v.controls = nil
	}
	var err error
	if v.scene != nil {
		err = multierr.Append(err, v.scene.Destroy())
		v.scene = nil
	}
	if v.surface != nil {
		err = multierr.Append(err, v.surface.Dispose())
		v.surface = nil
	}
	v.cam = nil
	v.held = nil
	v.installed = nil
	return err
}

func (v *Viewer) hasInput() bool {
	return v.address != "" || v.buildingID != ""
}

// SetInput changes the address and building id. The building id wins when
// both are set. A change resets the viewer and loads the new input; any load
// in flight for the old input is discarded. Before Init it only records the
// input. After a setup failure it sets the viewer up again first.
func (v *Viewer) SetInput(address, buildingID string) {
	address, buildingID = strings.TrimSpace(address), strings.TrimSpace(buildingID)
	if v.closed || (address == v.address && buildingID == v.buildingID) {
		return
	}
	v.address, v.buildingID = address, buildingID
	v.log.Info("input changed", zap.String("address", address), zap.String("building_id", buildingID))
	if !v.started {
		return
	}
	if !v.ensureSurface() {
		return
	}
	v.apply(Event{Type: EventInputChanged, HasInput: v.hasInput()})
}

// Retry repeats the whole load for the current input. After a setup
// failure it sets the viewer up again first.
func (v *Viewer) Retry() {
	if v.closed {
		return
	}
	if info, ok := v.source.(interface{ CacheInfo() provider.CacheInfo }); ok {
		v.log.Info("retrying", zap.Any("cache", info.CacheInfo()))
	}
	if !v.ensureSurface() {
		return
	}
	v.started = true
	v.apply(Event{Type: EventRetry, HasInput: v.hasInput()})
}

// ensureSurface sets the viewer up again after a setup failure. Without a
// surface no frames run, so a load started now could never be delivered.
func (v *Viewer) ensureSurface() bool {
	if v.surface != nil {
		return true
	}
	if err := v.setup(); err != nil {
		v.log.Error("viewer setup failed", zap.Error(err))
		v.teardown()
		v.apply(Event{Type: EventInitFailed, Message: MsgInit})
		return false
	}
	return true
}

// apply runs one transition and its effects, then publishes the status.
func (v *Viewer) apply(e Event) {
	prev := v.state
	next, effects := Transition(prev, e)
	v.state = next
	if prev != next {
		v.log.Debug("state changed",
			zap.Stringer("event", e.Type),
			zap.Stringer("from", prev.Phase),
			zap.Stringer("to", next.Phase),
			zap.Uint64("epoch", next.Epoch))
	}
	for _, eff := range effects {
		// A nested transition (a failed reinit) supersedes the rest.
		if v.state.Epoch != next.Epoch {
			break
		}
		v.run(eff, e)
	}
	v.publish()
}

func (v *Viewer) run(eff Effect, e Event) {
	switch eff {
	case EffectReset:
		v.clearModel()
		v.held = nil
		v.publishPhase(Idle)
	case EffectClearModel:
		v.clearModel()
		v.held = nil
	case EffectStartLoad:
		v.startLoad(v.state.Epoch)
	case EffectInstall:
		v.install(e.Epoch)
	case EffectDiscard:
		v.log.Debug("discarding stale result",
			zap.Stringer("event", e.Type),
			zap.Uint64("epoch", e.Epoch),
			zap.Uint64("current", v.state.Epoch))
	case EffectReinit:
		v.reinit()
	}
}

func (v *Viewer) clearModel() {
	v.installed = nil
	if v.scene == nil {
		return
	}
	if err := v.scene.Clear(); err != nil {
		v.log.Warn("clearing model", zap.Error(err))
	}
}

func (v *Viewer) startLoad(epoch uint64) {
	v.held = nil
	if v.surface == nil {
		v.log.Warn("load skipped without a render surface", zap.Uint64("epoch", epoch))
		return
	}
	address, buildingID := v.address, v.buildingID
	loadID := uuid.NewString()
	v.loadID = loadID
	v.log.Info("loading model",
		zap.String("load_id", loadID),
		zap.Uint64("epoch", epoch),
		zap.String("address", address),
		zap.String("building_id", buildingID))

	ctx := v.ctx
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		res := load(ctx, v.source, address, buildingID)
		res.epoch, res.loadID = epoch, loadID
		select {
		case v.results <- res:
		case <-ctx.Done():
		}
	}()
}

// pump delivers finished loads. It runs at the start of every frame.
func (v *Viewer) pump(now time.Time) {
	for drained := false; !drained; {
		select {
		case res := <-v.results:
			v.receive(res, now)
		default:
			drained = true
		}
	}
	if v.held != nil && !now.Before(v.held.readyAt) {
		res := v.held.res
		v.held = nil
		v.deliver(res)
	}
}

// Pump delivers finished loads outside of the render loop, for hosts that
// drive the viewer without frames.
func (v *Viewer) Pump(now time.Time) {
	if !v.closed {
		v.pump(now)
	}
}

func (v *Viewer) receive(res result, now time.Time) {
	if res.epoch == v.state.Epoch && res.node != nil && v.cfg.EntranceDelay > 0 {
		v.held = &heldResult{res: res, readyAt: now.Add(v.cfg.EntranceDelay)}
		return
	}
	v.deliver(res)
}

func (v *Viewer) deliver(res result) {
	e := Event{Epoch: res.epoch}
	switch {
	case res.err != nil:
		e.Type = EventFailed
		e.Message = message(res.err)
		if res.epoch == v.state.Epoch {
			v.log.Warn("load failed",
				zap.String("load_id", res.loadID),
				zap.String("message", e.Message),
				zap.Error(res.err))
		}
	case res.node == nil:
		e.Type = EventNoModel
	default:
		e.Type = EventLoaded
		v.incoming = &res
	}
	if res.epoch == v.state.Epoch {
		v.log.Debug("load finished",
			zap.String("load_id", res.loadID),
			zap.Stringer("event", e.Type),
			zap.Duration("elapsed", res.elapsed))
	}
	v.apply(e)
	v.incoming = nil
}

func (v *Viewer) install(epoch uint64) {
	res := v.incoming
	if res == nil || res.epoch != epoch || v.scene == nil {
		v.apply(Event{Type: EventFailed, Epoch: epoch, Message: MsgDisplay})
		return
	}
	err := v.scene.InstallModel(res.node)
	if errors.Is(err, scene.ErrNotModel) {
		v.log.Error("installing model", zap.Error(err))
		v.apply(Event{Type: EventFailed, Epoch: epoch, Message: MsgDisplay})
		return
	}
	if err != nil {
		v.log.Warn("previous model not fully released", zap.Error(err))
	}
	v.installed = res
	v.log.Info("model installed",
		zap.String("load_id", res.loadID),
		zap.String("building_id", res.buildingID),
		zap.Bool("fallback", res.fallback),
		zap.Float32("distance", v.controls.Distance()))
}

func (v *Viewer) contextLost() {
	if v.closed {
		return
	}
	v.log.Warn("render surface lost, reinitializing")
	v.apply(Event{Type: EventSurfaceLost, HasInput: v.hasInput()})
}

func (v *Viewer) reinit() {
	if err := v.teardown(); err != nil {
		v.log.Warn("teardown after surface loss", zap.Error(err))
	}
	if err := v.setup(); err != nil {
		v.log.Error("viewer setup failed", zap.Error(err))
		v.teardown()
		v.apply(Event{Type: EventInitFailed, Message: MsgInit})
	}
}

func (v *Viewer) resized(width, height int) {
	if v.surface == nil {
		return
	}
	w, h := v.surface.Size()
	if w <= 0 || h <= 0 {
		w, h = width, height
	}
	v.cam.SetAspect(w, h)
	v.controls.SetViewport(w, h)
}

// tick advances controls and cosmetics. The loop skips it after long gaps.
func (v *Viewer) tick(_ time.Duration, now time.Time) {
	if v.surface == nil {
		return
	}
	input.Dispatch(v.surface.Events(), v, v.controls)
	v.controls.Update()
	if v.epochStart.IsZero() {
		v.epochStart = now
	}
	v.scene.Animate(now.Sub(v.epochStart).Seconds())
}

func (v *Viewer) render() error {
	if v.surface == nil {
		return nil
	}
	return v.surface.Render(v.scene, v.cam)
}

// HandleEvent handles viewer shortcuts: R retries and P exports a snapshot.
func (v *Viewer) HandleEvent(e *input.Event) bool {
	if e.Type != input.EventKeyDown {
		return false
	}
	switch e.Key {
	case input.KeyR:
		v.Retry()
		return true
	case input.KeyP:
		if res, err := v.Snapshot(); err != nil {
			v.log.Warn("snapshot failed", zap.Error(err))
		} else {
			v.log.Info("snapshot saved", zap.String("image", res.Image), zap.String("thumbnail", res.Thumbnail))
		}
		return true
	}
	return false
}

// Capture returns the current frame.
func (v *Viewer) Capture() (*image.RGBA, error) {
	if v.closed {
		return nil, ErrClosed
	}
	if v.surface == nil {
		return nil, ErrNotReady
	}
	return v.surface.Capture()
}

// Snapshot writes the current frame and a thumbnail to the snapshot directory.
func (v *Viewer) Snapshot() (export.Result, error) {
	img, err := v.Capture()
	if err != nil {
		return export.Result{}, err
	}
	id := v.buildingID
	if v.installed != nil {
		id = v.installed.buildingID
	}
	return export.Snapshot(v.cfg.SnapshotDir, export.FileName(id, time.Now()), img)
}

// Camera returns the camera, or nil before setup.
func (v *Viewer) Camera() *camera.Camera {
	return v.cam
}

// Scene returns the scene, or nil before setup.
func (v *Viewer) Scene() *scene.Scene {
	return v.scene
}

// Controls returns the orbit controls, or nil before setup.
func (v *Viewer) Controls() *camera.OrbitControls {
	return v.controls
}

// State returns the machine state.
func (v *Viewer) State() State {
	return v.state
}

func (v *Viewer) publish() {
	v.publishPhase(v.state.Phase)
}

func (v *Viewer) publishPhase(phase Phase) {
	st := Status{
		State:      phase.String(),
		IsLoading:  phase == Loading,
		HasError:   phase == Error,
		HasModel:   phase == Ready,
		Address:    v.address,
		BuildingID: v.buildingID,
		LoadID:     v.loadID,
		UpdatedAt:  time.Now(),
	}
	switch phase {
	case Loading:
		st.Notice = MsgLoadingUI
	case Empty:
		st.Notice = MsgNoModel
	case Error:
		st.ErrorMessage = v.state.Message
	case Ready:
		if v.installed != nil {
			st.BuildingID = v.installed.buildingID
			st.Fallback = v.installed.fallback
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.status = st
	for _, ch := range v.subs {
		select {
		case <-ch:
		default:
		}
		ch <- st
	}
}

// Status returns the latest published status.
func (v *Viewer) Status() Status {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.status
}

// IsLoading reports whether a load is in flight.
func (v *Viewer) IsLoading() bool { return v.Status().IsLoading }

// HasError reports whether the viewer is in the error state.
func (v *Viewer) HasError() bool { return v.Status().HasError }

// ErrorMessage returns the error banner text, empty unless HasError.
func (v *Viewer) ErrorMessage() string { return v.Status().ErrorMessage }

// HasModel reports whether a model is shown.
func (v *Viewer) HasModel() bool { return v.Status().HasModel }

// Subscribe returns a channel receiving the latest status after every
// change, starting with the current one. Slow readers only see the newest
// status. Call the returned func to unsubscribe.
func (v *Viewer) Subscribe() (<-chan Status, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	id := v.nextID
	v.nextID++
	ch := make(chan Status, 1)
	ch <- v.status
	v.subs[id] = ch
	return ch, func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		if _, ok := v.subs[id]; ok {
			delete(v.subs, id)
			close(ch)
		}
	}
}

// Close stops the loop, abandons in-flight loads and releases the scene and
// surface. It is safe to call twice.
func (v *Viewer) Close() error {
	if v.closed {
		return nil
	}
	v.closed = true
	v.cancel()
	v.host.OnDetachedInput(nil)
	err := v.teardown()
	v.wg.Wait()

	v.mu.Lock()
	for id, ch := range v.subs {
		delete(v.subs, id)
		close(ch)
	}
	v.mu.Unlock()
	v.log.Info("viewer closed")
	return err
}
