// Package loop drives per-frame updates and rendering on a host scheduler.
package loop

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/estateview/internal/engine/host"
	"github.com/Faultbox/estateview/internal/logger"
)

// MaxTickDelta is the longest frame gap that still advances animation.
// Larger gaps come from suspended windows and are skipped.
const MaxTickDelta = 100 * time.Millisecond

// TickFunc advances time-based state. dt is the time since the last frame.
type TickFunc func(dt time.Duration, now time.Time)

// RenderFunc draws one frame.
type RenderFunc func() error

// Loop schedules one frame at a time until cancelled.
type Loop struct {
	sched  host.Scheduler
	tick   TickFunc
	render RenderFunc
	each   func(now time.Time)
	log    *zap.Logger

	mu        sync.Mutex
	running   bool
	cancelled bool
	frame     host.FrameID
	last      time.Time
	frames    uint64
	failures  uint64
}

// New creates a stopped loop. tick may be nil.
func New(sched host.Scheduler, tick TickFunc, render RenderFunc) *Loop {
	return &Loop{
		sched:  sched,
		tick:   tick,
		render: render,
		log:    logger.Named("loop"),
	}
}

// Each sets fn to run at the start of every frame, including frames after a
// long gap. Set it before Start.
func (l *Loop) Each(fn func(now time.Time)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.each = fn
}

// Start schedules the first frame. Starting a running or cancelled loop is
// a no-op.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running || l.cancelled {
		return
	}
	l.running = true
	l.last = time.Time{}
	l.frame = l.sched.ScheduleFrame(l.onFrame)
}

// Cancel stops the loop. No frame runs after Cancel returns, and calling it
// again is a no-op.
func (l *Loop) Cancel() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancelled {
		return
	}
	l.cancelled = true
	if l.running {
		l.sched.CancelFrame(l.frame)
		l.running = false
	}
	l.log.Debug("loop cancelled", zap.Uint64("frames", l.frames), zap.Uint64("failures", l.failures))
}

// Running reports whether frames are being scheduled.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Frames returns the number of frames run.
func (l *Loop) Frames() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frames
}

// Failures returns the number of frames whose render failed.
func (l *Loop) Failures() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failures
}

func (l *Loop) onFrame(now time.Time) {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	var dt time.Duration
	if !l.last.IsZero() {
		dt = now.Sub(l.last)
	}
	l.last = now
	l.frames++
	each := l.each
	l.mu.Unlock()

	if each != nil {
		each(now)
		if !l.Running() {
			return
		}
	}
	if l.tick != nil && dt > 0 && dt < MaxTickDelta {
		l.tick(dt, now)
	}

	if err := l.renderSafe(); err != nil {
		l.mu.Lock()
		l.failures++
		l.mu.Unlock()
		l.log.Warn("render failed", zap.Error(err))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		l.frame = l.sched.ScheduleFrame(l.onFrame)
	}
}

func (l *Loop) renderSafe() (err error) {
	if l.render == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("render panic: %v", r)
		}
	}()
	return l.render()
}
