package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cubeOBJ = "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n"

type fakeCreds struct {
	refreshes atomic.Int32
}

func (f *fakeCreds) Token(context.Context) (string, error) {
	return fmt.Sprintf("tok-%d", f.refreshes.Load()), nil
}

func (f *fakeCreds) ForceRefresh(ctx context.Context) (string, error) {
	f.refreshes.Add(1)
	return f.Token(ctx)
}

func testConfig(baseURL string) Config {
	cfg := DefaultConfig(baseURL + "/api")
	cfg.APIKey = "key"
	cfg.AuthDelay = 0
	cfg.NetworkDelay = 0
	return cfg
}

func newTestProvider(t *testing.T, handler http.HandlerFunc) (*HTTPProvider, *fakeCreds, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	creds := &fakeCreds{}
	return NewHTTP(testConfig(srv.URL), creds), creds, &hits
}

func TestFetchModelSendsHeaders(t *testing.T) {
	p, _, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/building-models", r.URL.Path)
		assert.Equal(t, "DE 12/3", r.URL.Query().Get("buildingIds"))
		assert.Equal(t, "Bearer tok-0", r.Header.Get("Authorization"))
		assert.Equal(t, "key", r.Header.Get("X-API-Key"))
		_, err := uuid.Parse(r.Header.Get("X-Request-ID"))
		assert.NoError(t, err)
		w.Write([]byte(cubeOBJ))
	})

	m, err := p.FetchModel(context.Background(), " DE 12/3 ")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "DE 12/3", m.BuildingID)
	assert.Equal(t, 3, m.Stats.VertexCount)
	assert.Equal(t, 1, m.Stats.FaceCount)
	assert.Equal(t, len(cubeOBJ), m.Stats.Size)
}

func TestFetchModelIsCached(t *testing.T) {
	p, _, hits := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(cubeOBJ))
	})
	ctx := context.Background()

	for range 3 {
		_, err := p.FetchModel(ctx, "B1")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), hits.Load())
	assert.True(t, p.Cached("B1"))
	assert.Equal(t, CacheInfo{Count: 1, BuildingIDs: []string{"B1"}}, p.CacheInfo())

	p.ClearCache()
	assert.False(t, p.Cached("B1"))
	_, err := p.FetchModel(ctx, "B1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetchModelNoModel(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"not found", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) }},
		{"empty body", func(w http.ResponseWriter, r *http.Request) {}},
		{"whitespace body", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(" \n\t")) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _, hits := newTestProvider(t, tt.handler)
			m, err := p.FetchModel(context.Background(), "B1")
			require.NoError(t, err)
			assert.Nil(t, m)
			assert.Equal(t, int32(1), hits.Load())
			assert.False(t, p.Cached("B1"))
		})
	}
}

func TestFetchModelBlankID(t *testing.T) {
	p, _, hits := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {})
	m, err := p.FetchModel(context.Background(), "  ")
	require.NoError(t, err)
	assert.Nil(t, m)
	assert.Zero(t, hits.Load())
}

func TestFetchModelRefreshesOnUnauthorized(t *testing.T) {
	var calls atomic.Int32
	p, creds, hits := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "Bearer tok-2", r.Header.Get("Authorization"))
		w.Write([]byte(cubeOBJ))
	})

	m, err := p.FetchModel(context.Background(), "B1")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, int32(2), creds.refreshes.Load())
	assert.Equal(t, int32(3), hits.Load())
}

func TestFetchModelAuthRetriesBounded(t *testing.T) {
	p, creds, hits := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := p.FetchModel(context.Background(), "B1")
	require.Error(t, err)

	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, KindAuth, perr.Kind)
	assert.Equal(t, http.StatusUnauthorized, perr.Status)
	assert.Equal(t, "Authentication error, try again later", perr.Message())
	assert.Equal(t, int32(2), creds.refreshes.Load())
	assert.Equal(t, int32(maxAttempts), hits.Load())
}

func TestFetchModelServerErrorNotRetried(t *testing.T) {
	p, _, hits := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := p.FetchModel(context.Background(), "B1")
	require.Error(t, err)
	assert.Equal(t, KindServer, KindOf(err))
	assert.Equal(t, int32(1), hits.Load())
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func TestFetchModelTransportRetry(t *testing.T) {
	var attempts atomic.Int32
	client := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		attempts.Add(1)
		return nil, errors.New("connection refused")
	})}
	p := NewHTTP(testConfig("http://building-api.invalid"), &fakeCreds{}, WithHTTPClient(client))

	_, err := p.FetchModel(context.Background(), "B1")
	require.Error(t, err)

	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, KindTransport, perr.Kind)
	assert.Zero(t, perr.Status)
	assert.Equal(t, "Network error, check your internet connection", perr.Message())
	assert.Equal(t, int32(2), attempts.Load())
}

func TestFetchModelCoalescesConcurrentRequests(t *testing.T) {
	gate := make(chan struct{})
	p, _, hits := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		<-gate
		w.Write([]byte(cubeOBJ))
	})

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := p.FetchModel(context.Background(), "B1")
			assert.NoError(t, err)
			assert.NotNil(t, m)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), hits.Load())
}

const searchResponse = `{
  "type": "FeatureCollection",
  "features": [
    {"properties": {"street": "Lindenallee"}, "geometry": {"coordinates": [13.1, 52.2]}},
    {"properties": {"buildingId": "DEBY001", "street": "Hauptstraße", "houseNumber": 12, "postalCode": "80331", "place": "München"},
     "geometry": {"type": "Point", "coordinates": [11.57, 48.13]}},
    {"properties": {"buildingId": "DEBY002"}, "geometry": {"type": "Polygon", "coordinates": [[[0, 0]]]}}
  ]
}`

func TestSearchBuildings(t *testing.T) {
	p, _, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/buildings", r.URL.Path)
		assert.Equal(t, "Hauptstraße 12", r.URL.Query().Get("address"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(searchResponse))
	})
	ctx := context.Background()

	buildings, err := p.SearchBuildings(ctx, "  Hauptstraße 12 ")
	require.NoError(t, err)
	require.Len(t, buildings, 3)

	assert.Equal(t, Building{ID: "unknown_0", Address: "Lindenallee", Lat: 52.2, Lon: 13.1}, buildings[0])
	assert.Equal(t, Building{
		ID: "DEBY001", Address: "Hauptstraße 12 80331 München", Lat: 48.13, Lon: 11.57, HasModel: true,
	}, buildings[1])
	assert.Equal(t, "unknown address", buildings[2].Address)
	assert.Zero(t, buildings[2].Lat)

	id, err := p.LookupBuildingID(ctx, "Hauptstraße 12")
	require.NoError(t, err)
	assert.Equal(t, "DEBY001", id)

	has, err := p.HasModelForAddress(ctx, "Hauptstraße 12")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestSearchBuildingsSoftMisses(t *testing.T) {
	tests := []struct {
		name    string
		address string
		handler http.HandlerFunc
		hits    int32
	}{
		{"blank address", " ", func(w http.ResponseWriter, r *http.Request) {}, 0},
		{"not found", "x", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) }, 1},
		{"no features", "x", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"features": []}`)) }, 1},
		{"not json", "x", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`<html>`)) }, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _, hits := newTestProvider(t, tt.handler)
			id, err := p.LookupBuildingID(context.Background(), tt.address)
			require.NoError(t, err)
			assert.Empty(t, id)
			assert.Equal(t, tt.hits, hits.Load())
		})
	}
}

func TestSearchBuildingsPropagatesFailures(t *testing.T) {
	p, _, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	_, err := p.LookupBuildingID(context.Background(), "Hauptstraße 12")
	require.Error(t, err)
	assert.Equal(t, KindForbidden, KindOf(err))
}

func TestMetricsRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(cubeOBJ))
	}))
	defer srv.Close()
	p := NewHTTP(testConfig(srv.URL), &fakeCreds{}, WithRegisterer(reg))

	_, err := p.FetchModel(context.Background(), "B1")
	require.NoError(t, err)
	_, err = p.FetchModel(context.Background(), "B1")
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	values := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if c := m.GetCounter(); c != nil {
				values[mf.GetName()] += c.GetValue()
			}
		}
	}
	assert.Equal(t, float64(1), values["estateview_provider_requests_total"])
	assert.Equal(t, float64(2), values["estateview_provider_model_cache_total"])
}

func TestKindForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{0, KindTransport},
		{401, KindAuth},
		{403, KindForbidden},
		{404, KindNotFound},
		{429, KindRateLimited},
		{500, KindServer},
		{502, KindServer},
		{418, KindUnknown},
	}
	for _, tt := range tests {
		if got := KindForStatus(tt.status); got != tt.want {
			t.Errorf("KindForStatus(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestModelCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := newModelCache(2)
	c.put(&Model{BuildingID: "a"})
	c.put(&Model{BuildingID: "b"})
	_, ok := c.get("a")
	require.True(t, ok)
	c.put(&Model{BuildingID: "c"})

	_, ok = c.get("b")
	assert.False(t, ok)
	assert.Equal(t, []string{"c", "a"}, c.info().BuildingIDs)
	assert.True(t, c.remove("a"))
	assert.False(t, c.remove("a"))
}

const testIndex = `buildings:
  - building_id: B1
    street: Hauptstraße
    house_number: "12"
    place: Berlin
  - building_id: B2
    street: Hauptstraße
    house_number: "14"
    place: Berlin
`

func newModelDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, IndexFile), []byte(testIndex), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "B1.obj"), []byte(cubeOBJ), 0o644))
	return dir
}

func TestDirProvider(t *testing.T) {
	p, err := NewDir(newModelDir(t))
	require.NoError(t, err)
	ctx := context.Background()

	buildings, err := p.SearchBuildings(ctx, "hauptstraße")
	require.NoError(t, err)
	require.Len(t, buildings, 2)
	assert.True(t, buildings[0].HasModel)
	assert.False(t, buildings[1].HasModel)
	assert.Equal(t, "Hauptstraße 12 Berlin", buildings[0].Address)

	id, err := p.LookupBuildingID(ctx, "Hauptstraße 14")
	require.NoError(t, err)
	assert.Empty(t, id)

	id, err = p.LookupBuildingID(ctx, "Hauptstraße 12")
	require.NoError(t, err)
	assert.Equal(t, "B1", id)

	m, err := p.FetchModel(ctx, "B1")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, 3, m.Stats.VertexCount)
	assert.Equal(t, 1, p.CacheInfo().Count)

	for _, missing := range []string{"B2", "../B1", ".hidden", ""} {
		m, err := p.FetchModel(ctx, missing)
		require.NoError(t, err, missing)
		assert.Nil(t, m, missing)
	}
}

func TestDirProviderWithoutIndex(t *testing.T) {
	p, err := NewDir(t.TempDir())
	require.NoError(t, err)
	id, err := p.LookupBuildingID(context.Background(), "anything")
	require.NoError(t, err)
	assert.Empty(t, id)

	_, err = NewDir(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestDirProviderWatch(t *testing.T) {
	dir := newModelDir(t)
	p, err := NewDir(dir)
	require.NoError(t, err)
	require.NoError(t, p.Watch())
	defer p.Close()

	changed := make(chan string, 4)
	p.OnChange(func(id string) { changed <- id })

	_, err = p.FetchModel(context.Background(), "B1")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "B1.obj"), []byte(cubeOBJ+"v 2 2 2\n"), 0o644))

	select {
	case id := <-changed:
		assert.Equal(t, "B1", id)
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification")
	}

	m, err := p.FetchModel(context.Background(), "B1")
	require.NoError(t, err)
	assert.Equal(t, 4, m.Stats.VertexCount)
}
