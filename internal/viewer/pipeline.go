package viewer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Faultbox/estateview/internal/engine/model"
	"github.com/Faultbox/estateview/internal/engine/scene"
	"github.com/Faultbox/estateview/internal/provider"
	"github.com/Faultbox/estateview/pkg/formats"
)

// User-facing failure messages.
const (
	MsgInit      = "The 3D viewer could not be initialized"
	MsgDisplay   = "The 3D model could not be displayed"
	MsgNetwork   = "Network error while loading the 3D model"
	MsgAuth      = "Authentication failed while loading the 3D model"
	MsgServer    = "Server problem: 3D model temporarily unavailable"
	MsgLoad      = "Error loading the 3D model"
	MsgNoModel   = "No 3D model available for this address"
	MsgLoadingUI = "Loading 3D model..."
)

// result is the outcome of one load attempt. A nil node and nil err means
// there was nothing to show.
type result struct {
	epoch      uint64
	loadID     string
	buildingID string
	node       *scene.Node
	fallback   bool
	err        error
	elapsed    time.Duration
}

// load runs lookup, fetch, parse and normalize in order. It touches no
// shared state and runs off the render goroutine; the node it returns is
// not yet adopted by any scene.
func load(ctx context.Context, src provider.Source, address, buildingID string) (res result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = result{buildingID: res.buildingID, err: fmt.Errorf("load panic: %v", r)}
		}
		res.elapsed = time.Since(start)
	}()

	id := strings.TrimSpace(buildingID)
	if id == "" {
		addr := strings.TrimSpace(address)
		if addr == "" {
			return result{}
		}
		found, err := src.LookupBuildingID(ctx, addr)
		if err != nil {
			return result{err: fmt.Errorf("looking up building for %q: %w", addr, err)}
		}
		if found == "" {
			return result{}
		}
		id = found
	}

	m, err := src.FetchModel(ctx, id)
	if err != nil {
		return result{buildingID: id, err: fmt.Errorf("fetching model %s: %w", id, err)}
	}
	if m == nil {
		return result{buildingID: id}
	}

	obj, err := formats.ParseOBJ(m.OBJ)
	switch {
	case errors.Is(err, formats.ErrEmptyGeometry):
		return result{buildingID: id, node: model.Fallback(), fallback: true}
	case err != nil:
		return result{buildingID: id, err: fmt.Errorf("parsing model %s: %w", id, err)}
	}

	node, err := model.Normalize(obj)
	switch {
	case errors.Is(err, model.ErrNoMeshes):
		return result{buildingID: id, node: model.Fallback(), fallback: true}
	case err != nil:
		return result{buildingID: id, err: fmt.Errorf("normalizing model %s: %w", id, err)}
	}
	node.Name = id
	return result{buildingID: id, node: node}
}

// message maps a load failure to the text shown in the error banner.
func message(err error) string {
	if errors.Is(err, formats.ErrMalformedPayload) {
		return MsgDisplay
	}
	switch provider.KindOf(err) {
	case provider.KindTransport:
		return MsgNetwork
	case provider.KindAuth:
		return MsgAuth
	case provider.KindServer:
		return MsgServer
	case provider.KindForbidden, provider.KindRateLimited:
		var perr *provider.Error
		errors.As(err, &perr)
		return perr.Message()
	}
	return MsgLoad
}
