// Package provider fetches building identifiers and OBJ building models,
// either from the building-model HTTP API or from a local directory.
package provider

import (
	"context"
	"strings"
	"time"

	"github.com/Faultbox/estateview/pkg/formats"
)

// Model is a fetched OBJ payload with scan metadata.
type Model struct {
	BuildingID string
	OBJ        string
	Stats      formats.OBJStats
	FetchedAt  time.Time
}

func newModel(id, payload string) *Model {
	return &Model{
		BuildingID: id,
		OBJ:        payload,
		Stats:      formats.ScanOBJ(payload),
		FetchedAt:  time.Now(),
	}
}

// Building is one address search result.
type Building struct {
	ID       string  `json:"building_id" yaml:"building_id"`
	Address  string  `json:"address" yaml:"address"`
	Lat      float64 `json:"lat" yaml:"lat"`
	Lon      float64 `json:"lon" yaml:"lon"`
	HasModel bool    `json:"has_model" yaml:"has_model"`
}

// CacheInfo describes the cached models.
type CacheInfo struct {
	Count       int      `json:"count"`
	BuildingIDs []string `json:"building_ids"`
}

// Credentials supplies bearer tokens for API requests.
type Credentials interface {
	Token(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context) (string, error)
}

// Source is what the viewer needs from a provider.
type Source interface {
	// LookupBuildingID returns "" when no building with a model matches.
	LookupBuildingID(ctx context.Context, address string) (string, error)
	// FetchModel returns nil when the building has no model.
	FetchModel(ctx context.Context, buildingID string) (*Model, error)
}

// Searcher lists buildings for an address.
type Searcher interface {
	SearchBuildings(ctx context.Context, address string) ([]Building, error)
}

// address joins the non-empty parts with spaces.
func address(street, houseNumber, postalCode, place string) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{street, houseNumber, postalCode, place} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "unknown address"
	}
	return strings.Join(parts, " ")
}

// firstWithModel returns the id of the first building that has a model.
func firstWithModel(buildings []Building) string {
	for _, b := range buildings {
		if b.HasModel && b.ID != "" {
			return b.ID
		}
	}
	return ""
}

func anyWithModel(buildings []Building) bool {
	return firstWithModel(buildings) != ""
}
