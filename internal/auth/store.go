package auth

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"gopkg.in/yaml.v3"
)

type storedToken struct {
	AccessToken string    `yaml:"access_token"`
	TokenType   string    `yaml:"token_type"`
	Expiry      time.Time `yaml:"expiry"`
}

func (ts *TokenSource) loadStored() {
	if ts.cachePath == "" {
		return
	}
	data, err := os.ReadFile(ts.cachePath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			ts.log.Warn("reading token cache", zap.Error(err))
		}
		return
	}

	var st storedToken
	if err := yaml.Unmarshal(data, &st); err != nil {
		ts.log.Warn("corrupt token cache", zap.Error(err))
		ts.removeStored()
		return
	}
	tok := &oauth2.Token{AccessToken: st.AccessToken, TokenType: st.TokenType, Expiry: st.Expiry}
	if !ts.valid(tok) {
		ts.log.Debug("stored token expired")
		ts.removeStored()
		return
	}
	ts.token = tok
	ts.log.Debug("loaded stored token", zap.Time("expires_at", st.Expiry))
}

func (ts *TokenSource) store(tok *oauth2.Token) {
	if ts.cachePath == "" {
		return
	}
	data, err := yaml.Marshal(storedToken{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		Expiry:      tok.Expiry,
	})
	if err != nil {
		ts.log.Warn("encoding token cache", zap.Error(err))
		return
	}
	if err := os.MkdirAll(filepath.Dir(ts.cachePath), 0o700); err != nil {
		ts.log.Warn("creating token cache dir", zap.Error(err))
		return
	}
	if err := os.WriteFile(ts.cachePath, data, 0o600); err != nil {
		ts.log.Warn("writing token cache", zap.Error(err))
	}
}

func (ts *TokenSource) removeStored() {
	if ts.cachePath == "" {
		return
	}
	if err := os.Remove(ts.cachePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		ts.log.Warn("removing token cache", zap.Error(err))
	}
}
