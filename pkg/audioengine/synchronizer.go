package audioengine

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
)

// synchronizer runs the drift check on a fixed period while the engine
// plays. Handles expose no clock to subscribe to, so polling it is.
type synchronizer struct {
	interval  time.Duration
	threshold float64
	cancel    context.CancelFunc

	ticks       uint64
	corrections uint64
}

// SyncStats counts synchronizer activity since the engine was built.
type SyncStats struct {
	Ticks       uint64
	Corrections uint64
}

func (s *synchronizer) start(tick func(context.Context)) {
	s.stop()
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go func() {
		t := time.NewTicker(s.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				tick(ctx)
			}
		}
	}()
}

// stop cancels the running loop. A tick already waiting on the engine
// lock sees its context cancelled and does nothing.
func (s *synchronizer) stop() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *synchronizer) running() bool {
	return s.cancel != nil
}

func (s *synchronizer) drifted(pos, ref float64) bool {
	return math.Abs(pos-ref) > s.threshold
}

// syncTick publishes the reference track's position as the current time
// and snaps every other playing track that drifted past the threshold
// back onto it. The reference is the first loaded track that is playing.
func (e *Engine) syncTick(ctx context.Context) {
	var out outbox
	e.mu.Lock()
	if ctx.Err() != nil || e.state != StatePlaying {
		e.mu.Unlock()
		return
	}
	e.sync.ticks++

	var playing []*Track
	for _, t := range e.loadedTracks() {
		if t.playing() {
			playing = append(playing, t)
		}
	}
	if len(playing) == 0 {
		e.mu.Unlock()
		return
	}

	ref := playing[0].handle.Position()
	e.currentTime = clamp(ref, 0, e.duration)
	out.time(e.currentTime)

	for _, t := range playing[1:] {
		pos := t.handle.Position()
		if !e.sync.drifted(pos, ref) {
			continue
		}
		e.log.Warn("track out of sync",
			zapTrack(t.id),
			zap.Float64("drift", pos-ref),
			zap.String("reference", playing[0].id))
		if err := t.handle.Seek(ref); err != nil {
			e.log.Warn("sync correction failed", zapTrack(t.id), zap.Error(err))
			continue
		}
		e.sync.corrections++
	}
	e.mu.Unlock()

	e.deliver(out)
}

// align repositions every loaded track that drifted away from the
// transport position. Freshly loaded or ended tracks otherwise start
// from wherever their handle happens to be.
func (e *Engine) align() {
	for _, t := range e.loadedTracks() {
		if !e.sync.drifted(t.handle.Position(), e.currentTime) {
			continue
		}
		if err := t.handle.Seek(e.currentTime); err != nil {
			e.log.Warn("align failed", zapTrack(t.id), zap.Error(err))
		}
	}
}

// SyncStats returns the synchronizer counters.
func (e *Engine) SyncStats() SyncStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return SyncStats{Ticks: e.sync.ticks, Corrections: e.sync.corrections}
}
