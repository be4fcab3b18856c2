package audioengine

import (
	"context"
	"errors"
	"sync"
	"testing"
)

var errUndecodable = errors.New("undecodable")

type fakeHost struct {
	mu        sync.Mutex
	durations map[string]float64
	gates     map[string]chan struct{}
	handles   map[string]*fakeHandle
	resumeErr error
	resumes   int
	closed    bool
}

func newFakeHost(durations map[string]float64) *fakeHost {
	return &fakeHost{
		durations: durations,
		gates:     make(map[string]chan struct{}),
		handles:   make(map[string]*fakeHandle),
	}
}

// gate makes loads of path block until the returned channel is closed.
func (h *fakeHost) gate(path string) chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan struct{})
	h.gates[path] = ch
	return ch
}

func (h *fakeHost) handle(path string) *fakeHandle {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.handles[path]
}

func (h *fakeHost) Resume(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.resumes++
	return h.resumeErr
}

func (h *fakeHost) Load(ctx context.Context, src Source, hooks Hooks) (Handle, error) {
	h.mu.Lock()
	gate := h.gates[src.Path]
	h.mu.Unlock()
	if gate != nil {
		<-gate
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	d, ok := h.durations[src.Path]
	if !ok {
		return nil, errUndecodable
	}
	fh := &fakeHandle{duration: d, hooks: hooks, volume: -1}
	h.handles[src.Path] = fh
	return fh, nil
}

func (h *fakeHost) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

type fakeHandle struct {
	mu       sync.Mutex
	duration float64
	pos      float64
	playing  bool
	ended    bool
	closed   bool
	volume   float64
	seeks    int
	playErr  error
	hooks    Hooks
}

func (f *fakeHandle) Duration() float64 { return f.duration }

func (f *fakeHandle) Position() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos
}

func (f *fakeHandle) Seek(seconds float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pos = clamp(seconds, 0, f.duration)
	f.ended = false
	f.seeks++
	return nil
}

func (f *fakeHandle) Play(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.playErr != nil {
		return f.playErr
	}
	f.playing = true
	return nil
}

func (f *fakeHandle) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = false
}

func (f *fakeHandle) Playing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playing
}

func (f *fakeHandle) Ended() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ended
}

func (f *fakeHandle) SetVolume(gain float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volume = gain
}

func (f *fakeHandle) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeHandle) gain() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volume
}

func (f *fakeHandle) setPos(p float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pos = p
}

func (f *fakeHandle) seekCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seeks
}

func (f *fakeHandle) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// finish runs the handle to its end and fires the ended hook the way a
// host would.
func (f *fakeHandle) finish() {
	f.mu.Lock()
	f.pos = f.duration
	f.playing = false
	f.ended = true
	f.mu.Unlock()
	if f.hooks.Ended != nil {
		f.hooks.Ended()
	}
}

// recorder captures callbacks.
type recorder struct {
	mu     sync.Mutex
	times  []float64
	states []bool
	errs   []error
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnTimeUpdate: func(s float64) {
			r.mu.Lock()
			r.times = append(r.times, s)
			r.mu.Unlock()
		},
		OnPlayStateChange: func(p bool) {
			r.mu.Lock()
			r.states = append(r.states, p)
			r.mu.Unlock()
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) errList() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *recorder) playStates() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.states...)
}

func (r *recorder) lastTime() (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.times) == 0 {
		return 0, false
	}
	return r.times[len(r.times)-1], true
}

// loadAll loads each path as a track whose id is the path itself.
func loadAll(t testing.TB, e *Engine, paths ...string) {
	t.Helper()
	for _, p := range paths {
		if _, err := e.LoadTrack(context.Background(), p, Source{Name: p + ".wav", Path: p}); err != nil {
			t.Fatalf("LoadTrack(%s): %v", p, err)
		}
	}
}
