// Package auth supplies bearer credentials for the building-model API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"

	"github.com/Faultbox/estateview/internal/logger"
)

// ErrRefreshFailed is matched by every error returned from a failed refresh.
var ErrRefreshFailed = errors.New("token refresh failed")

const (
	// DefaultExpiryBuffer is how long before expiry a token is treated as expired.
	DefaultExpiryBuffer = 5 * time.Minute

	// defaultLifetime applies when the token endpoint omits expires_in.
	defaultLifetime = time.Hour

	maxRefreshRetries  = 3
	defaultRetryDelay  = time.Second
	refreshFlightGroup = "refresh"
)

// RefreshError describes a failed token request. Status is zero when the
// endpoint was not reached.
type RefreshError struct {
	Status int
	Err    error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("%v: %s", ErrRefreshFailed, e.Message())
}

// Message returns a short human-readable reason.
func (e *RefreshError) Message() string {
	switch {
	case e.Status == 0:
		return "network error, check the connection"
	case e.Status == http.StatusUnauthorized:
		return "invalid client credentials"
	case e.Status == http.StatusForbidden:
		return "access forbidden, check API permissions"
	case e.Status == http.StatusTooManyRequests:
		return "rate limit exceeded, try again later"
	case e.Status >= 500:
		return "server error, try again later"
	default:
		return fmt.Sprintf("authentication failed (%d)", e.Status)
	}
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// Is reports a match against ErrRefreshFailed.
func (e *RefreshError) Is(target error) bool {
	return target == ErrRefreshFailed
}

// Config holds client credentials settings.
type Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	CachePath    string        // Empty disables token persistence
	ExpiryBuffer time.Duration // Zero uses DefaultExpiryBuffer
}

// Info is a snapshot of the current token state.
type Info struct {
	HasToken  bool      `json:"has_token"`
	Expired   bool      `json:"expired"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Option configures a TokenSource.
type Option func(*TokenSource)

// WithHTTPClient sets the client used for token requests.
func WithHTTPClient(c *http.Client) Option {
	return func(ts *TokenSource) {
		ts.httpClient = c
	}
}

// WithRetryDelay sets the pause between refresh retries.
func WithRetryDelay(d time.Duration) Option {
	return func(ts *TokenSource) {
		ts.retryDelay = d
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(ts *TokenSource) {
		ts.now = now
	}
}

// TokenSource fetches client-credentials tokens and keeps them until they
// come within the expiry buffer. Concurrent refreshes share one request.
type TokenSource struct {
	oauth      clientcredentials.Config
	cachePath  string
	buffer     time.Duration
	retryDelay time.Duration
	httpClient *http.Client
	now        func() time.Time
	log        *zap.Logger

	mu    sync.Mutex
	token *oauth2.Token
	group singleflight.Group
}

// New creates a token source and loads a persisted token if it is still valid.
func New(cfg Config, opts ...Option) *TokenSource {
	ts := &TokenSource{
		oauth: clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		cachePath:  cfg.CachePath,
		buffer:     cfg.ExpiryBuffer,
		retryDelay: defaultRetryDelay,
		now:        time.Now,
		log:        logger.Named("auth"),
	}
	if ts.buffer <= 0 {
		ts.buffer = DefaultExpiryBuffer
	}
	for _, opt := range opts {
		opt(ts)
	}
	ts.loadStored()
	return ts
}

func (ts *TokenSource) valid(tok *oauth2.Token) bool {
	return tok != nil && tok.AccessToken != "" && tok.Expiry.After(ts.now().Add(ts.buffer))
}

// Token returns a valid access token, refreshing it when needed.
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	tok := ts.token
	ts.mu.Unlock()
	if ts.valid(tok) {
		return tok.AccessToken, nil
	}
	return ts.refresh(ctx)
}

// ForceRefresh drops the current token and fetches a new one.
func (ts *TokenSource) ForceRefresh(ctx context.Context) (string, error) {
	ts.log.Debug("forced refresh")
	ts.clear()
	return ts.refresh(ctx)
}

// Authenticated reports whether a valid token is held.
func (ts *TokenSource) Authenticated() bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.valid(ts.token)
}

// Info returns the token state.
func (ts *TokenSource) Info() Info {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.token == nil {
		return Info{Expired: true}
	}
	return Info{
		HasToken:  true,
		Expired:   !ts.valid(ts.token),
		ExpiresAt: ts.token.Expiry,
	}
}

// Logout forgets the token and removes the persisted copy.
func (ts *TokenSource) Logout() {
	ts.log.Info("logging out")
	ts.clear()
}

func (ts *TokenSource) clear() {
	ts.mu.Lock()
	ts.token = nil
	ts.mu.Unlock()
	ts.removeStored()
}

func (ts *TokenSource) refresh(ctx context.Context) (string, error) {
	v, err, shared := ts.group.Do(refreshFlightGroup, func() (any, error) {
		return ts.fetch(ctx)
	})
	if err != nil {
		return "", err
	}
	if shared {
		ts.log.Debug("joined in-flight refresh")
	}
	return v.(string), nil
}

func (ts *TokenSource) fetch(ctx context.Context) (string, error) {
	if ts.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, ts.httpClient)
	}

	var tok *oauth2.Token
	op := func() error {
		t, err := ts.oauth.Token(ctx)
		if err == nil {
			tok = t
			return nil
		}
		rerr := classify(err)
		if rerr.Status != 0 && rerr.Status < 500 {
			return backoff.Permanent(rerr)
		}
		return rerr
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(ts.retryDelay), maxRefreshRetries), ctx)
	notify := func(err error, wait time.Duration) {
		ts.log.Warn("token refresh failed, retrying", zap.Error(err), zap.Duration("wait", wait))
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		ts.clear()
		ts.log.Error("token refresh failed", zap.Error(err))
		var rerr *RefreshError
		if errors.As(err, &rerr) {
			return "", rerr
		}
		return "", &RefreshError{Err: err}
	}

	if tok.Expiry.IsZero() {
		tok.Expiry = ts.now().Add(defaultLifetime)
	}
	ts.mu.Lock()
	ts.token = tok
	ts.mu.Unlock()
	ts.store(tok)

	ts.log.Info("token refreshed", zap.Time("expires_at", tok.Expiry))
	return tok.AccessToken, nil
}

func classify(err error) *RefreshError {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) && rerr.Response != nil {
		return &RefreshError{Status: rerr.Response.StatusCode, Err: err}
	}
	return &RefreshError{Err: err}
}
