package audioengine

// Track is the engine's record of one stem. Only the engine touches it;
// callers see TrackSnapshot copies.
type Track struct {
	id      string
	name    string
	source  Source
	handle  Handle
	loaded  bool
	loading bool

	duration float64
	volume   float64 // user volume, 0-100
	muted    bool
	lastErr  error
}

func newTrack(id string, src Source) *Track {
	return &Track{
		id:     id,
		name:   src.DisplayName(),
		source: src,
		volume: 100,
	}
}

// release pauses and closes the playback handle. It is safe to call on
// tracks that never finished loading.
func (t *Track) release() error {
	if t.handle == nil {
		return nil
	}
	t.handle.Pause()
	err := t.handle.Close()
	t.handle = nil
	t.loaded = false
	return err
}

func (t *Track) playing() bool {
	return t.loaded && t.handle != nil && t.handle.Playing()
}

// TrackSnapshot is a read-only view of a track at one instant.
type TrackSnapshot struct {
	ID              string
	Name            string
	Path            string
	Loaded          bool
	Loading         bool
	Duration        float64
	Volume          float64
	Muted           bool
	Soloed          bool
	EffectiveVolume float64
	LastError       error
}
