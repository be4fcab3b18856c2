// Package audioengine plays several stems as one synchronized mix.
//
// An Engine owns a collection of tracks, each backed by an independent
// playback Handle obtained from a Host. It derives every track's gain from
// user volume, mute, solo and master volume, exposes a single transport on
// top of the independent handles and, while playing, periodically pulls
// drifting handles back onto a reference track.
package audioengine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	DefaultSyncInterval  = 100 * time.Millisecond
	DefaultSyncThreshold = 0.1
)

// Option configures an Engine.
type Option func(*Engine)

func WithCallbacks(cb Callbacks) Option {
	return func(e *Engine) { e.callbacks = cb }
}

func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithSyncInterval sets the synchronizer period.
func WithSyncInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.sync.interval = d
		}
	}
}

// WithSyncThreshold sets the drift, in seconds, above which a track is
// repositioned.
func WithSyncThreshold(seconds float64) Option {
	return func(e *Engine) {
		if seconds > 0 {
			e.sync.threshold = seconds
		}
	}
}

// WithMasterVolume sets the initial master level as a percentage.
func WithMasterVolume(percent float64) Option {
	return func(e *Engine) { e.mix.master = clamp(percent/100, 0, 1) }
}

// Engine is safe for concurrent use.
type Engine struct {
	host      Host
	log       *zap.Logger
	callbacks Callbacks

	mu           sync.Mutex
	tracks       map[string]*Track
	order        []string
	mix          mixer
	sync         synchronizer
	state        State
	currentTime  float64
	duration     float64
	outputFailed bool
	closed       bool
}

// New builds an engine on top of host. Each engine is independent; the
// host's shared output is closed by Destroy.
func New(host Host, opts ...Option) *Engine {
	e := &Engine{
		host:   host,
		log:    zap.NewNop(),
		tracks: make(map[string]*Track),
		mix:    mixer{master: defaultMasterVolume},
		sync: synchronizer{
			interval:  DefaultSyncInterval,
			threshold: DefaultSyncThreshold,
		},
		state: StateStopped,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// LoadRequest names one source to load under the given track id.
type LoadRequest struct {
	ID     string
	Source Source
}

// LoadResult is the outcome of one LoadRequest. Exactly one of Track and
// Err is meaningful.
type LoadResult struct {
	ID    string
	Track TrackSnapshot
	Err   error
}

// LoadTrack opens src and registers it as track id. It blocks until the
// host has read the source metadata or failed. A failed load leaves a
// track record carrying the error; loading the same id again replaces it.
func (e *Engine) LoadTrack(ctx context.Context, id string, src Source) (TrackSnapshot, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return TrackSnapshot{}, ErrClosed
	}
	if prev, ok := e.tracks[id]; ok {
		if prev.loaded || prev.loading {
			e.mu.Unlock()
			return TrackSnapshot{}, fmt.Errorf("%w: %s", ErrDuplicateTrack, id)
		}
	} else {
		e.order = append(e.order, id)
	}
	t := newTrack(id, src)
	t.loading = true
	e.tracks[id] = t
	e.mu.Unlock()

	e.log.Debug("loading track", zapTrack(id), zap.String("path", src.Path))
	h, loadErr := e.host.Load(ctx, src, e.hooksFor(t))

	var out outbox
	e.mu.Lock()
	if e.tracks[id] != t {
		closed := e.closed
		e.mu.Unlock()
		if h != nil {
			_ = h.Close()
		}
		if closed {
			return TrackSnapshot{}, ErrClosed
		}
		return TrackSnapshot{}, fmt.Errorf("%w: %s", ErrTrackRemoved, id)
	}
	t.loading = false

	if loadErr != nil {
		lerr := &LoadError{TrackID: id, File: src.Name, Err: loadErr}
		t.lastErr = lerr
		out.err(lerr)
		snap := e.snapshot(t)
		e.mu.Unlock()

		e.log.Warn("track load failed", zapTrack(id), zap.Error(loadErr))
		e.deliver(out)
		return snap, lerr
	}

	t.handle = h
	t.loaded = true
	t.duration = h.Duration()
	if t.duration > e.duration {
		e.duration = t.duration
	}
	e.applyVolume(t)
	if e.state == StatePlaying {
		e.joinPlayback(ctx, t, &out)
	}
	snap := e.snapshot(t)
	e.mu.Unlock()

	e.log.Info("track loaded", zapTrack(id), zap.Float64("duration", t.duration))
	e.deliver(out)
	return snap, nil
}

// joinPlayback starts a track that finished loading while the mix plays.
func (e *Engine) joinPlayback(ctx context.Context, t *Track, out *outbox) {
	if err := t.handle.Seek(e.currentTime); err != nil {
		e.log.Warn("align late track", zapTrack(t.id), zap.Error(err))
	}
	e.startTrack(ctx, t, out)
}

func (e *Engine) startTrack(ctx context.Context, t *Track, out *outbox) {
	if err := t.handle.Play(ctx); err != nil {
		perr := &PlaybackStartError{TrackID: t.id, Err: err}
		t.lastErr = perr
		out.err(perr)
		e.log.Warn("track failed to start", zapTrack(t.id), zap.Error(err))
	}
}

// LoadTracks loads every request in order. A failing request never stops
// the ones after it; each outcome is reported in the returned slice.
func (e *Engine) LoadTracks(ctx context.Context, reqs []LoadRequest) []LoadResult {
	results := make([]LoadResult, 0, len(reqs))
	for _, req := range reqs {
		snap, err := e.LoadTrack(ctx, req.ID, req.Source)
		results = append(results, LoadResult{ID: req.ID, Track: snap, Err: err})
	}
	return results
}

func (e *Engine) hooksFor(t *Track) Hooks {
	return Hooks{
		Ended: func() { e.handleEnded(t) },
		Error: func(err error) { e.handleStreamError(t, err) },
	}
}

// handleEnded moves the transport to Paused once no loaded track is
// still playing. A short stem ending early keeps the mix going.
func (e *Engine) handleEnded(t *Track) {
	var out outbox
	e.mu.Lock()
	if e.tracks[t.id] != t {
		e.mu.Unlock()
		return
	}
	done := e.haltIfSilent(&out)
	e.mu.Unlock()

	if done {
		e.log.Info("all tracks ended")
	}
	e.deliver(out)
}

// haltIfSilent pauses a playing engine once none of its loaded tracks is
// still producing sound.
func (e *Engine) haltIfSilent(out *outbox) bool {
	if e.state != StatePlaying {
		return false
	}
	end := 0.0
	for _, lt := range e.loadedTracks() {
		if lt.playing() {
			return false
		}
		pos := lt.handle.Position()
		if lt.handle.Ended() {
			pos = lt.duration
		}
		end = math.Max(end, pos)
	}
	// The last tick may trail the real end by up to one interval.
	if end > e.currentTime {
		e.currentTime = end
		out.time(e.currentTime)
	}
	e.halt(StatePaused, out)
	return true
}

func (e *Engine) handleStreamError(t *Track, err error) {
	var out outbox
	e.mu.Lock()
	if e.tracks[t.id] != t {
		e.mu.Unlock()
		return
	}
	serr := &StreamError{TrackID: t.id, Err: err}
	t.lastErr = serr
	out.err(serr)
	e.haltIfSilent(&out)
	e.mu.Unlock()

	e.log.Error("stream error", zapTrack(t.id), zap.Error(err))
	e.deliver(out)
}

// RemoveTrack releases a track and its resources. Removing the soloed
// track clears the solo; the aggregate duration is recomputed.
func (e *Engine) RemoveTrack(id string) error {
	var out outbox
	e.mu.Lock()
	t, err := e.lookup(id)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	delete(e.tracks, id)
	for i, oid := range e.order {
		if oid == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	closeErr := t.release()

	if e.mix.soloedID == id {
		e.mix.soloedID = ""
		e.applyAllVolumes()
	}
	e.recomputeDuration(&out)
	if e.state == StatePlaying && len(e.loadedTracks()) == 0 {
		e.halt(StatePaused, &out)
	}
	e.mu.Unlock()

	e.log.Info("track removed", zapTrack(id))
	e.deliver(out)
	return closeErr
}

func (e *Engine) recomputeDuration(out *outbox) {
	e.duration = 0
	for _, t := range e.loadedTracks() {
		if t.duration > e.duration {
			e.duration = t.duration
		}
	}
	if e.currentTime > e.duration {
		e.currentTime = e.duration
		out.time(e.currentTime)
	}
}

// Destroy stops playback, releases every track and closes the host
// output. The engine is unusable afterwards.
func (e *Engine) Destroy() error {
	var out outbox
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	if e.state == StatePlaying {
		e.halt(StateStopped, &out)
	}
	e.sync.stop()

	var err error
	for _, id := range e.order {
		err = multierr.Append(err, e.tracks[id].release())
	}
	e.tracks = make(map[string]*Track)
	e.order = nil
	e.mix.soloedID = ""
	e.state = StateStopped
	e.currentTime = 0
	e.duration = 0
	e.mu.Unlock()

	err = multierr.Append(err, e.host.Close())
	e.log.Info("engine destroyed")
	e.deliver(out)
	return err
}

// loadedTracks returns loaded tracks in collection order.
func (e *Engine) loadedTracks() []*Track {
	var ts []*Track
	for _, id := range e.order {
		if t := e.tracks[id]; t.loaded {
			ts = append(ts, t)
		}
	}
	return ts
}

func (e *Engine) snapshot(t *Track) TrackSnapshot {
	return TrackSnapshot{
		ID:              t.id,
		Name:            t.name,
		Path:            t.source.Path,
		Loaded:          t.loaded,
		Loading:         t.loading,
		Duration:        t.duration,
		Volume:          t.volume,
		Muted:           t.muted,
		Soloed:          e.mix.soloedID == t.id,
		EffectiveVolume: e.mix.volumeOf(t),
		LastError:       t.lastErr,
	}
}

// Tracks returns snapshots of every track in load order.
func (e *Engine) Tracks() []TrackSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snaps := make([]TrackSnapshot, 0, len(e.order))
	for _, id := range e.order {
		snaps = append(snaps, e.snapshot(e.tracks[id]))
	}
	return snaps
}

func (e *Engine) Track(id string) (TrackSnapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.tracks[id]
	if !ok {
		return TrackSnapshot{}, false
	}
	return e.snapshot(t), true
}

func (e *Engine) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentTime
}

func (e *Engine) Duration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duration
}

func (e *Engine) IsPlaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == StatePlaying
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func zapTrack(id string) zap.Field {
	return zap.String("track", id)
}
