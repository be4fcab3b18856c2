package audioengine

import "fmt"

const defaultMasterVolume = 0.8

// EffectiveVolume is the linear gain a track should be rendered at.
// A muted track is silent, as is every track other than the soloed one
// while a solo is active. soloedID is empty when nothing is soloed.
func EffectiveVolume(id string, volume float64, muted bool, soloedID string, master float64) float64 {
	if muted {
		return 0
	}
	if soloedID != "" && soloedID != id {
		return 0
	}
	return clamp(volume, 0, 100) / 100 * clamp(master, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v != v {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// mixer holds the engine-wide inputs of EffectiveVolume.
type mixer struct {
	master   float64
	soloedID string
}

func (m *mixer) volumeOf(t *Track) float64 {
	return EffectiveVolume(t.id, t.volume, t.muted, m.soloedID, m.master)
}

func (e *Engine) applyVolume(t *Track) {
	if !t.loaded || t.handle == nil {
		return
	}
	t.handle.SetVolume(e.mix.volumeOf(t))
}

func (e *Engine) applyAllVolumes() {
	for _, id := range e.order {
		e.applyVolume(e.tracks[id])
	}
}

// SetMasterVolume sets the master level as a percentage.
func (e *Engine) SetMasterVolume(percent float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.mix.master = clamp(percent/100, 0, 1)
	e.applyAllVolumes()
}

// MasterVolume returns the master level as a percentage.
func (e *Engine) MasterVolume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mix.master * 100
}

// SetTrackVolume sets a track's user volume, clamped to [0,100].
func (e *Engine) SetTrackVolume(id string, percent float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, err := e.lookup(id)
	if err != nil {
		return err
	}
	t.volume = clamp(percent, 0, 100)
	e.applyVolume(t)
	return nil
}

// SetTrackMuted sets a track's mute flag. Muting the soloed track ends
// solo mode.
func (e *Engine) SetTrackMuted(id string, muted bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, err := e.lookup(id)
	if err != nil {
		return err
	}
	t.muted = muted
	if muted && e.mix.soloedID == id {
		e.mix.soloedID = ""
		e.log.Debug("solo cleared by mute", zapTrack(id))
		e.applyAllVolumes()
		return nil
	}
	e.applyVolume(t)
	return nil
}

// SetTrackSolo selects or releases the solo track. Soloing unmutes the
// track and replaces any previous solo; other tracks keep their stored
// mute flags and are silenced only while the solo lasts. Releasing a
// track that is not the soloed one does nothing.
func (e *Engine) SetTrackSolo(id string, solo bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, err := e.lookup(id)
	if err != nil {
		return err
	}
	switch {
	case solo:
		t.muted = false
		e.mix.soloedID = id
	case e.mix.soloedID == id:
		e.mix.soloedID = ""
	default:
		return nil
	}
	e.applyAllVolumes()
	return nil
}

// SoloedTrack returns the soloed track id, if any.
func (e *Engine) SoloedTrack() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mix.soloedID, e.mix.soloedID != ""
}

func (e *Engine) lookup(id string) (*Track, error) {
	t, ok := e.tracks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTrack, id)
	}
	return t, nil
}
