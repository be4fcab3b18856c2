package audioengine

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// State is the transport state. Only StatePlaying reports IsPlaying.
type State int

const (
	StateStopped State = iota
	StatePlaying
	StatePaused
)

func (s State) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "stopped"
	}
}

// Play resumes the shared output, lines every track up with the current
// time and starts all loaded tracks together. A track the host refuses to
// start is reported through OnError and does not keep the others from
// playing. Play returns an *OutputInitError when the output cannot be
// resumed; the engine then stays idle.
func (e *Engine) Play(ctx context.Context) error {
	var out outbox
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.state == StatePlaying {
		e.mu.Unlock()
		return nil
	}

	if err := e.host.Resume(ctx); err != nil {
		oerr := &OutputInitError{Err: err}
		first := !e.outputFailed
		e.outputFailed = true
		if first {
			out.err(oerr)
		}
		e.mu.Unlock()

		if first {
			e.log.Error("audio output unavailable", zap.Error(err))
		}
		e.deliver(out)
		return oerr
	}
	e.outputFailed = false

	if e.duration > 0 && e.currentTime >= e.duration {
		e.seekLocked(0, &out)
	}
	e.align()

	loaded := e.loadedTracks()
	startErrs := make([]error, len(loaded))
	var g errgroup.Group
	for i, t := range loaded {
		h := t.handle
		g.Go(func() error {
			startErrs[i] = h.Play(ctx)
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range startErrs {
		if err == nil {
			continue
		}
		t := loaded[i]
		perr := &PlaybackStartError{TrackID: t.id, Err: err}
		t.lastErr = perr
		out.err(perr)
		e.log.Warn("track failed to start", zapTrack(t.id), zap.Error(err))
	}

	e.state = StatePlaying
	e.sync.start(e.syncTick)
	out.playState(true)
	now := e.currentTime
	e.mu.Unlock()

	e.log.Info("playback started", zap.Float64("time", now), zap.Int("tracks", len(loaded)))
	e.deliver(out)
	return nil
}

// Pause pauses every loaded track and stops the synchronizer. It is
// idempotent and always notifies the new play state.
func (e *Engine) Pause() {
	var out outbox
	e.mu.Lock()
	next := StatePaused
	if e.state == StateStopped {
		next = StateStopped
	}
	e.halt(next, &out)
	e.mu.Unlock()

	e.deliver(out)
}

// Stop pauses and rewinds to the start.
func (e *Engine) Stop() {
	var out outbox
	e.mu.Lock()
	e.halt(StateStopped, &out)
	e.seekLocked(0, &out)
	e.mu.Unlock()

	e.deliver(out)
}

// Seek moves the transport to seconds, clamped to [0, Duration()], and
// repositions every loaded track before returning.
func (e *Engine) Seek(seconds float64) {
	var out outbox
	e.mu.Lock()
	e.seekLocked(seconds, &out)
	e.mu.Unlock()

	e.deliver(out)
}

// SkipBy seeks relative to the current time.
func (e *Engine) SkipBy(delta float64) {
	var out outbox
	e.mu.Lock()
	e.seekLocked(e.currentTime+delta, &out)
	e.mu.Unlock()

	e.deliver(out)
}

// TogglePlay pauses a playing engine and plays an idle one.
func (e *Engine) TogglePlay(ctx context.Context) error {
	if e.IsPlaying() {
		e.Pause()
		return nil
	}
	return e.Play(ctx)
}

func (e *Engine) halt(next State, out *outbox) {
	for _, t := range e.loadedTracks() {
		t.handle.Pause()
	}
	e.sync.stop()
	e.state = next
	out.playState(false)
}

// seekLocked repositions every loaded track. While playing, tracks that
// had already run out or failed to start are started again when the new
// position lies inside them.
func (e *Engine) seekLocked(seconds float64, out *outbox) {
	seconds = clamp(seconds, 0, e.duration)
	e.currentTime = seconds
	for _, t := range e.loadedTracks() {
		if err := t.handle.Seek(seconds); err != nil {
			e.log.Warn("seek failed", zapTrack(t.id), zap.Error(err))
			continue
		}
		if e.state == StatePlaying && !t.handle.Playing() && t.duration > seconds {
			e.startTrack(context.Background(), t, out)
		}
	}
	out.time(seconds)
}
