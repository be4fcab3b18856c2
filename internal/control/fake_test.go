package control

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"stemdeck/pkg/audioengine"
)

// fakeEngine is a minimal in-memory Controller.
type fakeEngine struct {
	mu       sync.Mutex
	state    audioengine.State
	now      float64
	master   float64
	soloed   string
	order    []string
	tracks   map[string]*audioengine.TrackSnapshot
	lengths  map[string]float64 // by path; missing paths fail to load
	playErr  error
	commands []string
}

func newFakeEngine(lengths map[string]float64) *fakeEngine {
	return &fakeEngine{
		master:  80,
		tracks:  make(map[string]*audioengine.TrackSnapshot),
		lengths: lengths,
	}
}

func (f *fakeEngine) record(c string) {
	f.commands = append(f.commands, c)
}

func (f *fakeEngine) Play(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("play")
	if f.playErr != nil {
		return f.playErr
	}
	f.state = audioengine.StatePlaying
	return nil
}

func (f *fakeEngine) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("pause")
	if f.state == audioengine.StatePlaying {
		f.state = audioengine.StatePaused
	}
}

func (f *fakeEngine) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("stop")
	f.state = audioengine.StateStopped
	f.now = 0
}

func (f *fakeEngine) TogglePlay(ctx context.Context) error {
	if f.State() == audioengine.StatePlaying {
		f.Pause()
		return nil
	}
	return f.Play(ctx)
}

func (f *fakeEngine) Seek(s float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("seek %g", s))
	f.now = clampTo(s, f.duration())
}

func (f *fakeEngine) SkipBy(d float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("skip %g", d))
	f.now = clampTo(f.now+d, f.duration())
}

func clampTo(v, max float64) float64 {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

func (f *fakeEngine) duration() float64 {
	var d float64
	for _, t := range f.tracks {
		if t.Loaded && t.Duration > d {
			d = t.Duration
		}
	}
	return d
}

func (f *fakeEngine) SetMasterVolume(p float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.master = clampTo(p, 100)
}

func (f *fakeEngine) MasterVolume() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.master
}

func (f *fakeEngine) get(id string) (*audioengine.TrackSnapshot, error) {
	t, found := f.tracks[id]
	if !found {
		return nil, fmt.Errorf("%w: %s", audioengine.ErrUnknownTrack, id)
	}
	return t, nil
}

func (f *fakeEngine) SetTrackVolume(id string, p float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.get(id)
	if err != nil {
		return err
	}
	t.Volume = clampTo(p, 100)
	return nil
}

func (f *fakeEngine) SetTrackMuted(id string, m bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.get(id)
	if err != nil {
		return err
	}
	t.Muted = m
	return nil
}

func (f *fakeEngine) SetTrackSolo(id string, s bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.get(id); err != nil {
		return err
	}
	switch {
	case s:
		f.soloed = id
	case f.soloed == id:
		f.soloed = ""
	}
	return nil
}

func (f *fakeEngine) LoadTrack(_ context.Context, id string, src audioengine.Source) (audioengine.TrackSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, found := f.tracks[id]; found && t.LastError == nil {
		return audioengine.TrackSnapshot{}, fmt.Errorf("%w: %s", audioengine.ErrDuplicateTrack, id)
	}
	t := &audioengine.TrackSnapshot{ID: id, Name: src.DisplayName(), Path: src.Path, Volume: 100}
	if _, found := f.tracks[id]; !found {
		f.order = append(f.order, id)
	}
	f.tracks[id] = t
	d, found := f.lengths[src.Path]
	if !found {
		t.LastError = &audioengine.LoadError{TrackID: id, File: src.Name, Err: errors.New("undecodable")}
		return *t, t.LastError
	}
	t.Loaded = true
	t.Duration = d
	return *t, nil
}

func (f *fakeEngine) RemoveTrack(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.get(id); err != nil {
		return err
	}
	delete(f.tracks, id)
	for i, o := range f.order {
		if o == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	if f.soloed == id {
		f.soloed = ""
	}
	return nil
}

func (f *fakeEngine) Tracks() []audioengine.TrackSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]audioengine.TrackSnapshot, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.snap(id))
	}
	return out
}

func (f *fakeEngine) snap(id string) audioengine.TrackSnapshot {
	s := *f.tracks[id]
	s.Soloed = f.soloed == id
	s.EffectiveVolume = audioengine.EffectiveVolume(id, s.Volume, s.Muted, f.soloed, f.master/100)
	return s
}

func (f *fakeEngine) Track(id string) (audioengine.TrackSnapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, found := f.tracks[id]; !found {
		return audioengine.TrackSnapshot{}, false
	}
	return f.snap(id), true
}

func (f *fakeEngine) CurrentTime() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeEngine) Duration() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.duration()
}

func (f *fakeEngine) State() audioengine.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeEngine) SoloedTrack() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.soloed, f.soloed != ""
}

func (f *fakeEngine) SyncStats() audioengine.SyncStats {
	return audioengine.SyncStats{Ticks: 3, Corrections: 1}
}
