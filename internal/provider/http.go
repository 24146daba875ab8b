package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Faultbox/estateview/internal/auth"
	"github.com/Faultbox/estateview/internal/logger"
)

const (
	// maxAttempts caps every request, retries included.
	maxAttempts = 3

	maxBodySize = 64 << 20

	endpointBuildings = "buildings"
	endpointModels    = "building-models"
)

// Config holds HTTP provider settings.
type Config struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	AuthRetries    int // Credential refreshes after a 401
	NetworkRetries int // Retries after a transport failure
	AuthDelay      time.Duration
	NetworkDelay   time.Duration
	CacheSize      int
}

// DefaultConfig returns the retry policy of the building API client.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:        baseURL,
		Timeout:        30 * time.Second,
		AuthRetries:    2,
		NetworkRetries: 1,
		AuthDelay:      time.Second,
		NetworkDelay:   2 * time.Second,
		CacheSize:      64,
	}
}

// Option configures an HTTPProvider.
type Option func(*HTTPProvider)

// WithHTTPClient sets the client used for API requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *HTTPProvider) {
		p.client = c
	}
}

// WithRegisterer registers the provider metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(p *HTTPProvider) {
		p.registerer = reg
	}
}

// HTTPProvider talks to the building-model API.
type HTTPProvider struct {
	cfg        Config
	creds      Credentials
	client     *http.Client
	registerer prometheus.Registerer
	metrics    *metrics
	cache      *modelCache
	flight     singleflight.Group
	log        *zap.Logger
}

var (
	_ Source   = (*HTTPProvider)(nil)
	_ Searcher = (*HTTPProvider)(nil)
)

// NewHTTP creates a provider. Credentials may be nil when the API only
// needs the API key.
func NewHTTP(cfg Config, creds Credentials, opts ...Option) *HTTPProvider {
	p := &HTTPProvider{
		cfg:   cfg,
		creds: creds,
		cache: newModelCache(cfg.CacheSize),
		log:   logger.Named("provider"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.client == nil {
		p.client = &http.Client{Timeout: cfg.Timeout}
	}
	p.metrics = newMetrics(p.registerer)
	p.cfg.BaseURL = strings.TrimRight(p.cfg.BaseURL, "/")
	return p
}

// SearchBuildings lists the buildings matching an address.
// A blank address or an unknown address yields no results.
func (p *HTTPProvider) SearchBuildings(ctx context.Context, addr string) ([]Building, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, nil
	}

	u := fmt.Sprintf("%s/%s?address=%s", p.cfg.BaseURL, endpointBuildings, url.QueryEscape(addr))
	body, err := p.get(ctx, endpointBuildings, u, "application/json")
	if err != nil {
		if KindOf(err) == KindNotFound {
			return nil, nil
		}
		return nil, err
	}

	var fc featureCollection
	if err := json.Unmarshal(body, &fc); err != nil {
		p.log.Warn("unreadable search response", zap.String("address", addr), zap.Error(err))
		return nil, nil
	}
	buildings := fc.buildings()
	p.log.Debug("buildings found", zap.String("address", addr), zap.Int("count", len(buildings)))
	return buildings, nil
}

// LookupBuildingID returns the first building with a model for an address,
// or "" when there is none.
func (p *HTTPProvider) LookupBuildingID(ctx context.Context, addr string) (string, error) {
	buildings, err := p.SearchBuildings(ctx, addr)
	if err != nil {
		return "", err
	}
	return firstWithModel(buildings), nil
}

// HasModelForAddress reports whether any building at the address has a model.
func (p *HTTPProvider) HasModelForAddress(ctx context.Context, addr string) (bool, error) {
	buildings, err := p.SearchBuildings(ctx, addr)
	if err != nil {
		return false, err
	}
	return anyWithModel(buildings), nil
}

// FetchModel returns the OBJ model of a building. It returns nil without an
// error when the API has no model for the id. Results are cached by id and
// concurrent fetches of one id share a request.
func (p *HTTPProvider) FetchModel(ctx context.Context, id string) (*Model, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	if m, ok := p.cache.get(id); ok {
		p.metrics.cacheResult(true)
		return m, nil
	}
	p.metrics.cacheResult(false)

	v, err, _ := p.flight.Do(id, func() (any, error) {
		return p.fetchModel(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	m, _ := v.(*Model)
	return m, nil
}

func (p *HTTPProvider) fetchModel(ctx context.Context, id string) (*Model, error) {
	u := fmt.Sprintf("%s/%s?buildingIds=%s", p.cfg.BaseURL, endpointModels, url.QueryEscape(id))
	body, err := p.get(ctx, endpointModels, u, "text/plain")
	if err != nil {
		if KindOf(err) == KindNotFound {
			p.log.Debug("no model for building", zap.String("building_id", id))
			return nil, nil
		}
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		p.log.Debug("empty model payload", zap.String("building_id", id))
		return nil, nil
	}

	m := newModel(id, string(body))
	p.cache.put(m)
	p.log.Info("model fetched",
		zap.String("building_id", id),
		zap.Int("vertices", m.Stats.VertexCount),
		zap.Int("faces", m.Stats.FaceCount),
		zap.Int("bytes", m.Stats.Size))
	return m, nil
}

// Cached reports whether a model is cached for id.
func (p *HTTPProvider) Cached(id string) bool {
	_, ok := p.cache.get(id)
	return ok
}

// ClearCache drops every cached model.
func (p *HTTPProvider) ClearCache() {
	p.cache.clear()
	p.log.Debug("model cache cleared")
}

// CacheInfo lists the cached building ids.
func (p *HTTPProvider) CacheInfo() CacheInfo {
	return p.cache.info()
}

// retryPolicy bounds retries per failure kind. The operation sets the wait
// before returning a retryable error.
type retryPolicy struct {
	attempts int
	auth     int
	network  int
	wait     time.Duration
}

func (r *retryPolicy) NextBackOff() time.Duration {
	if r.attempts >= maxAttempts {
		return backoff.Stop
	}
	return r.wait
}

func (r *retryPolicy) Reset() {}

// get performs an authenticated GET with the retry policy: a 401 forces a
// credential refresh, a transport failure is retried after a pause, and
// everything else fails immediately.
func (p *HTTPProvider) get(ctx context.Context, endpoint, u, accept string) ([]byte, error) {
	requestID := uuid.NewString()
	policy := &retryPolicy{}
	log := p.log.With(zap.String("endpoint", endpoint), zap.String("request_id", requestID))

	var body []byte
	op := func() error {
		policy.attempts++
		token, err := p.token(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}

		b, err := p.do(ctx, endpoint, u, accept, token, requestID)
		if err == nil {
			body = b
			return nil
		}

		switch kind := KindOf(err); {
		case kind == KindAuth && p.creds != nil && policy.auth < p.cfg.AuthRetries:
			policy.auth++
			policy.wait = p.cfg.AuthDelay
			if _, rerr := p.creds.ForceRefresh(ctx); rerr != nil {
				return backoff.Permanent(credentialError(rerr))
			}
		case kind == KindTransport && policy.network < p.cfg.NetworkRetries:
			policy.network++
			policy.wait = p.cfg.NetworkDelay
		default:
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		kind := KindOf(err)
		p.metrics.retries.WithLabelValues(kind.String()).Inc()
		log.Warn("request failed, retrying",
			zap.Stringer("kind", kind),
			zap.Int("attempt", policy.attempts),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(policy, ctx), notify); err != nil {
		var perr *Error
		if !errors.As(err, &perr) {
			err = &Error{Kind: KindTransport, Err: err}
		}
		if KindOf(err) != KindNotFound {
			log.Error("request failed", zap.Int("attempts", policy.attempts), zap.Error(err))
		}
		return nil, err
	}
	return body, nil
}

func (p *HTTPProvider) token(ctx context.Context) (string, error) {
	if p.creds == nil {
		return "", nil
	}
	tok, err := p.creds.Token(ctx)
	if err != nil {
		return "", credentialError(err)
	}
	return tok, nil
}

// credentialError classifies a failure to obtain a token.
func credentialError(err error) *Error {
	var rerr *auth.RefreshError
	if errors.As(err, &rerr) && rerr.Status == 0 {
		return &Error{Kind: KindTransport, Err: err}
	}
	return &Error{Kind: KindAuth, Err: err}
}

func (p *HTTPProvider) do(ctx context.Context, endpoint, u, accept, token, requestID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &Error{Kind: KindUnknown, Err: err}
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if p.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", p.cfg.APIKey)
	}
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("Accept", accept)

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		p.metrics.observe(endpoint, 0, time.Since(start).Seconds())
		return nil, &Error{Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	p.metrics.observe(endpoint, resp.StatusCode, time.Since(start).Seconds())
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			Kind:   KindForStatus(resp.StatusCode),
			Status: resp.StatusCode,
			Err:    fmt.Errorf("GET %s: %s", endpoint, resp.Status),
		}
	}
	if err != nil {
		return nil, &Error{Kind: KindTransport, Err: fmt.Errorf("reading %s response: %w", endpoint, err)}
	}
	return body, nil
}

// featureCollection is the GeoJSON shape of the search endpoint.
type featureCollection struct {
	Features []struct {
		Properties struct {
			BuildingID  flexString `json:"buildingId"`
			Street      flexString `json:"street"`
			HouseNumber flexString `json:"houseNumber"`
			PostalCode  flexString `json:"postalCode"`
			Place       flexString `json:"place"`
		} `json:"properties"`
		Geometry struct {
			Coordinates json.RawMessage `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

func (fc featureCollection) buildings() []Building {
	out := make([]Building, 0, len(fc.Features))
	for i, f := range fc.Features {
		props := f.Properties
		b := Building{
			ID:       string(props.BuildingID),
			Address:  address(string(props.Street), string(props.HouseNumber), string(props.PostalCode), string(props.Place)),
			HasModel: props.BuildingID != "",
		}
		if b.ID == "" {
			b.ID = fmt.Sprintf("unknown_%d", i)
		}
		var point []float64
		if json.Unmarshal(f.Geometry.Coordinates, &point) == nil && len(point) >= 2 {
			b.Lon, b.Lat = point[0], point[1]
		}
		out = append(out, b)
	}
	return out
}

// flexString accepts a JSON string or number.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	if string(data) == "null" {
		*s = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = flexString(n.String())
	return nil
}
