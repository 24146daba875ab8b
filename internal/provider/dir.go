package provider

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/estateview/internal/logger"
)

// IndexFile maps addresses to building ids inside a model directory.
const IndexFile = "addresses.yaml"

const (
	modelExt       = ".obj"
	changeDebounce = 200 * time.Millisecond
)

// indexEntry is one building in the address index.
type indexEntry struct {
	BuildingID  string  `yaml:"building_id"`
	Street      string  `yaml:"street"`
	HouseNumber string  `yaml:"house_number"`
	PostalCode  string  `yaml:"postal_code"`
	Place       string  `yaml:"place"`
	Lat         float64 `yaml:"lat"`
	Lon         float64 `yaml:"lon"`
}

type index struct {
	Buildings []indexEntry `yaml:"buildings"`
}

// DirProvider serves models from <dir>/<building id>.obj and resolves
// addresses through <dir>/addresses.yaml.
type DirProvider struct {
	dir   string
	cache *modelCache
	log   *zap.Logger

	mu        sync.RWMutex
	buildings []Building
	onChange  func(buildingID string)

	watcher *fsnotify.Watcher
	timers  map[string]*time.Timer
	done    chan struct{}
	wg      sync.WaitGroup
}

var (
	_ Source   = (*DirProvider)(nil)
	_ Searcher = (*DirProvider)(nil)
)

// NewDir opens a model directory. A missing index is not an error; only
// building ids then resolve.
func NewDir(dir string) (*DirProvider, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("model directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("model directory %s is not a directory", dir)
	}
	p := &DirProvider{
		dir:   dir,
		cache: newModelCache(0),
		log:   logger.Named("provider").With(zap.String("dir", dir)),
	}
	if err := p.loadIndex(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *DirProvider) loadIndex() error {
	data, err := os.ReadFile(filepath.Join(p.dir, IndexFile))
	if errors.Is(err, fs.ErrNotExist) {
		p.setBuildings(nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", IndexFile, err)
	}

	var idx index
	if err := yaml.Unmarshal(data, &idx); err != nil {
		return fmt.Errorf("parsing %s: %w", IndexFile, err)
	}
	buildings := make([]Building, 0, len(idx.Buildings))
	for _, e := range idx.Buildings {
		buildings = append(buildings, Building{
			ID:       e.BuildingID,
			Address:  address(e.Street, e.HouseNumber, e.PostalCode, e.Place),
			Lat:      e.Lat,
			Lon:      e.Lon,
			HasModel: e.BuildingID != "" && p.exists(e.BuildingID),
		})
	}
	p.setBuildings(buildings)
	p.log.Debug("address index loaded", zap.Int("buildings", len(buildings)))
	return nil
}

func (p *DirProvider) setBuildings(b []Building) {
	p.mu.Lock()
	p.buildings = b
	p.mu.Unlock()
}

// path returns the model file of id, or "" when id is not a plain name.
func (p *DirProvider) path(id string) string {
	if id == "" || id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return ""
	}
	return filepath.Join(p.dir, id+modelExt)
}

func (p *DirProvider) exists(id string) bool {
	path := p.path(id)
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// SearchBuildings matches the query case-insensitively against indexed addresses.
func (p *DirProvider) SearchBuildings(_ context.Context, addr string) ([]Building, error) {
	q := strings.ToLower(strings.TrimSpace(addr))
	if q == "" {
		return nil, nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []Building
	for _, b := range p.buildings {
		if strings.Contains(strings.ToLower(b.Address), q) {
			out = append(out, b)
		}
	}
	return out, nil
}

// LookupBuildingID returns the first matching building with a model file.
func (p *DirProvider) LookupBuildingID(ctx context.Context, addr string) (string, error) {
	buildings, err := p.SearchBuildings(ctx, addr)
	if err != nil {
		return "", err
	}
	return firstWithModel(buildings), nil
}

// FetchModel reads <id>.obj. A missing or empty file means no model.
func (p *DirProvider) FetchModel(_ context.Context, id string) (*Model, error) {
	id = strings.TrimSpace(id)
	path := p.path(id)
	if path == "" {
		return nil, nil
	}
	if m, ok := p.cache.get(id); ok {
		return m, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &Error{Kind: KindUnknown, Err: fmt.Errorf("reading model %s: %w", id, err)}
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}
	m := newModel(id, string(data))
	p.cache.put(m)
	p.log.Debug("model loaded", zap.String("building_id", id), zap.Int("bytes", m.Stats.Size))
	return m, nil
}

// ClearCache drops every cached model.
func (p *DirProvider) ClearCache() {
	p.cache.clear()
}

// CacheInfo lists the cached building ids.
func (p *DirProvider) CacheInfo() CacheInfo {
	return p.cache.info()
}

// OnChange sets the callback run after a model file changes. An index
// change reports an empty id.
func (p *DirProvider) OnChange(fn func(buildingID string)) {
	p.mu.Lock()
	p.onChange = fn
	p.mu.Unlock()
}

// Watch starts watching the directory. Changed models are evicted from the
// cache and reported through OnChange after a short debounce.
func (p *DirProvider) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	if err := w.Add(p.dir); err != nil {
		w.Close()
		return fmt.Errorf("watching %s: %w", p.dir, err)
	}
	p.watcher = w
	p.timers = make(map[string]*time.Timer)
	p.done = make(chan struct{})

	p.wg.Add(1)
	go p.watch()
	return nil
}

func (p *DirProvider) watch() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case ev, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				p.changed(filepath.Base(ev.Name))
			}
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.log.Warn("watcher error", zap.Error(err))
		}
	}
}

func (p *DirProvider) changed(name string) {
	var id string
	switch {
	case name == IndexFile:
	case strings.HasSuffix(name, modelExt):
		id = strings.TrimSuffix(name, modelExt)
	default:
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.timers[name]; ok {
		t.Stop()
	}
	p.timers[name] = time.AfterFunc(changeDebounce, func() {
		p.apply(id)
	})
}

func (p *DirProvider) apply(id string) {
	if id != "" {
		p.cache.remove(id)
	}
	// Model files also change HasModel in the index.
	if err := p.loadIndex(); err != nil {
		p.log.Warn("reloading address index", zap.Error(err))
	}
	p.log.Info("model directory changed", zap.String("building_id", id))

	p.mu.RLock()
	fn := p.onChange
	p.mu.RUnlock()
	if fn != nil {
		fn(id)
	}
}

// Close stops watching.
func (p *DirProvider) Close() error {
	if p.watcher == nil {
		return nil
	}
	close(p.done)
	err := p.watcher.Close()
	p.wg.Wait()

	p.mu.Lock()
	for _, t := range p.timers {
		t.Stop()
	}
	p.mu.Unlock()
	p.watcher = nil
	return err
}
