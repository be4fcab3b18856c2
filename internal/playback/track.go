package playback

import (
	"context"
	"math"
	"time"

	"stemdeck/pkg/audioengine"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/speaker"
)

// track is one decoder chain mixed into the speaker:
// decoder -> resampler -> volume -> ctrl.
// All mutable state is guarded by the speaker lock, which the mixer also
// holds while it calls finished.
type track struct {
	host     *Host
	name     string
	stream   beep.StreamSeekCloser
	rate     beep.SampleRate
	duration float64
	hooks    audioengine.Hooks

	volume *effects.Volume
	ctrl   *beep.Ctrl

	attached bool
	ended    bool
	closed   bool
}

func newTrack(h *Host, name string, stream beep.StreamSeekCloser, format beep.Format, hooks audioengine.Hooks) *track {
	var s beep.Streamer = stream
	if format.SampleRate != h.rate {
		s = beep.Resample(h.cfg.ResampleQuality, format.SampleRate, h.rate, stream)
	}
	vol := &effects.Volume{Streamer: s, Base: 2}
	return &track{
		host:     h,
		name:     name,
		stream:   stream,
		rate:     format.SampleRate,
		duration: format.SampleRate.D(stream.Len()).Seconds(),
		hooks:    hooks,
		volume:   vol,
		ctrl:     &beep.Ctrl{Streamer: vol, Paused: true},
	}
}

func (t *track) Duration() float64 { return t.duration }

func (t *track) Position() float64 {
	speaker.Lock()
	defer speaker.Unlock()
	if t.closed {
		return 0
	}
	return t.rate.D(t.stream.Position()).Seconds()
}

func (t *track) Seek(seconds float64) error {
	speaker.Lock()
	defer speaker.Unlock()
	if t.closed {
		return audioengine.ErrClosed
	}
	n := t.rate.N(secondsToDuration(seconds))
	if n < 0 {
		n = 0
	}
	if max := t.stream.Len(); n > max {
		n = max
	}
	if err := t.stream.Seek(n); err != nil {
		return err
	}
	t.ended = false
	return nil
}

func (t *track) Play(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !t.host.isReady() {
		return ErrNotReady
	}

	speaker.Lock()
	if t.closed {
		speaker.Unlock()
		return audioengine.ErrClosed
	}
	attach := !t.attached
	t.attached = true
	t.ended = false
	t.ctrl.Paused = false
	speaker.Unlock()

	if attach {
		speaker.Play(beep.Seq(t.ctrl, beep.Callback(t.finished)))
	}
	return nil
}

func (t *track) Pause() {
	speaker.Lock()
	t.ctrl.Paused = true
	speaker.Unlock()
}

func (t *track) Playing() bool {
	speaker.Lock()
	defer speaker.Unlock()
	return t.attached && !t.ctrl.Paused && !t.ended
}

func (t *track) Ended() bool {
	speaker.Lock()
	defer speaker.Unlock()
	return t.ended
}

func (t *track) SetVolume(gain float64) {
	speaker.Lock()
	defer speaker.Unlock()
	applyGain(t.volume, gain)
}

func (t *track) Close() error {
	speaker.Lock()
	if t.closed {
		speaker.Unlock()
		return nil
	}
	t.closed = true
	t.ctrl.Streamer = nil
	err := t.stream.Close()
	speaker.Unlock()

	t.host.forget(t)
	return err
}

// finished runs on the speaker goroutine with the speaker lock held once
// the chain is drained. Hooks re-enter Handle methods, so they run on
// their own goroutine.
func (t *track) finished() {
	t.attached = false
	if t.closed {
		return
	}
	t.ended = true
	t.ctrl.Paused = true

	if err := t.stream.Err(); err != nil {
		if t.hooks.Error != nil {
			go t.hooks.Error(err)
		}
		return
	}
	if t.hooks.Ended != nil {
		go t.hooks.Ended()
	}
}

// applyGain maps a linear gain onto the base-2 volume effect.
func applyGain(v *effects.Volume, gain float64) {
	if gain <= 0 || math.IsNaN(gain) {
		v.Silent = true
		v.Volume = 0
		return
	}
	v.Silent = false
	v.Volume = math.Log2(math.Min(gain, 1))
}

func secondsToDuration(s float64) time.Duration {
	if math.IsNaN(s) || s < 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
