package playback

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"stemdeck/internal/codec"
	"stemdeck/pkg/audioengine"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/speaker"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// writeStem writes seconds of a quiet square wave as 16-bit mono.
func writeStem(t *testing.T, name string, rate int, seconds float64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	data := make([]int, int(float64(rate)*seconds))
	for i := range data {
		data[i] = 1000
		if (i/40)%2 == 1 {
			data[i] = -1000
		}
	}
	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	if err := enc.Write(&audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		SourceBitDepth: 16,
	}); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func load(t *testing.T, h *Host, path string, hooks audioengine.Hooks) *track {
	t.Helper()
	handle, err := h.Load(context.Background(), audioengine.FileSource(path), hooks)
	if err != nil {
		t.Fatalf("Load(%s): %v", path, err)
	}
	t.Cleanup(func() { handle.Close() })
	return handle.(*track)
}

func TestLoadReportsDuration(t *testing.T) {
	h := New(Config{SampleRate: 8000}, nil)
	tr := load(t, h, writeStem(t, "bass.wav", 8000, 2), audioengine.Hooks{})

	if math.Abs(tr.Duration()-2) > 1e-9 {
		t.Errorf("Duration() = %v, want 2", tr.Duration())
	}
	if tr.name != "bass" {
		t.Errorf("name = %q, want bass", tr.name)
	}
	if tr.Position() != 0 || tr.Playing() || tr.Ended() {
		t.Error("fresh track should be idle at zero")
	}
}

func TestLoadResamplesToOutputRate(t *testing.T) {
	h := New(Config{SampleRate: 48000}, nil)
	tr := load(t, h, writeStem(t, "keys.wav", 8000, 1), audioengine.Hooks{})
	if math.Abs(tr.Duration()-1) > 1e-9 {
		t.Errorf("Duration() = %v, want source duration 1", tr.Duration())
	}
	if _, ok := tr.volume.Streamer.(*beep.Resampler); !ok {
		t.Error("mismatched rates should insert a resampler")
	}
}

func TestSeekClampsToStream(t *testing.T) {
	h := New(Config{SampleRate: 8000}, nil)
	tr := load(t, h, writeStem(t, "drums.wav", 8000, 2), audioengine.Hooks{})

	if err := tr.Seek(1.5); err != nil {
		t.Fatal(err)
	}
	if got := tr.Position(); math.Abs(got-1.5) > 1e-3 {
		t.Errorf("Position() = %v, want 1.5", got)
	}
	if err := tr.Seek(10); err != nil {
		t.Fatal(err)
	}
	if got := tr.Position(); math.Abs(got-2) > 1e-3 {
		t.Errorf("Position() = %v, want clamped to 2", got)
	}
	if err := tr.Seek(-3); err != nil {
		t.Fatal(err)
	}
	if tr.Position() != 0 {
		t.Errorf("Position() = %v, want 0", tr.Position())
	}
}

func TestPlayNeedsOutput(t *testing.T) {
	h := New(Config{SampleRate: 8000}, nil)
	tr := load(t, h, writeStem(t, "vocals.wav", 8000, 1), audioengine.Hooks{})
	if err := tr.Play(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Errorf("Play err = %v, want ErrNotReady", err)
	}
	if tr.Playing() {
		t.Error("track playing without output")
	}
}

func TestLoadRejectsUnknownAndBrokenFiles(t *testing.T) {
	h := New(Config{}, nil)
	dir := t.TempDir()

	aac := filepath.Join(dir, "stem.aac")
	if err := os.WriteFile(aac, []byte{0xff, 0xf1}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Load(context.Background(), audioengine.FileSource(aac), audioengine.Hooks{}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("aac err = %v, want ErrUnsupportedFormat", err)
	}

	broken := filepath.Join(dir, "broken.wav")
	if err := os.WriteFile(broken, []byte("RIFF....nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Load(context.Background(), audioengine.FileSource(broken), audioengine.Hooks{}); !errors.Is(err, codec.ErrInvalidWAV) {
		t.Errorf("broken wav err = %v, want ErrInvalidWAV", err)
	}

	if _, err := h.Load(context.Background(), audioengine.FileSource(filepath.Join(dir, "missing.wav")), audioengine.Hooks{}); err == nil {
		t.Error("missing file loaded")
	}
}

func TestFinishedFiresEndedHook(t *testing.T) {
	ended := make(chan struct{}, 1)
	h := New(Config{SampleRate: 8000}, nil)
	tr := load(t, h, writeStem(t, "gtr.wav", 8000, 1), audioengine.Hooks{
		Ended: func() { ended <- struct{}{} },
	})

	speaker.Lock()
	tr.attached = true
	tr.finished()
	speaker.Unlock()

	select {
	case <-ended:
	case <-time.After(time.Second):
		t.Fatal("ended hook not called")
	}
	if !tr.Ended() || tr.Playing() {
		t.Error("track should report ended and not playing")
	}
	if err := tr.Seek(0); err != nil {
		t.Fatal(err)
	}
	if tr.Ended() {
		t.Error("seek should clear the ended flag")
	}
}

func TestClosedTrackIsSilent(t *testing.T) {
	called := make(chan struct{}, 1)
	h := New(Config{SampleRate: 8000}, nil)
	tr := load(t, h, writeStem(t, "pad.wav", 8000, 1), audioengine.Hooks{
		Ended: func() { called <- struct{}{} },
	})

	if err := tr.Close(); err != nil {
		t.Fatal(err)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	speaker.Lock()
	tr.finished()
	speaker.Unlock()

	select {
	case <-called:
		t.Error("closed track fired its ended hook")
	case <-time.After(20 * time.Millisecond):
	}
	if err := tr.Seek(1); !errors.Is(err, audioengine.ErrClosed) {
		t.Errorf("Seek after close err = %v, want ErrClosed", err)
	}
	if len(h.tracks) != 0 {
		t.Error("host still tracks a closed handle")
	}
}

func TestApplyGain(t *testing.T) {
	tests := []struct {
		gain   float64
		silent bool
		volume float64
	}{
		{1, false, 0},
		{0.5, false, -1},
		{0.25, false, -2},
		{0, true, 0},
		{-1, true, 0},
		{math.NaN(), true, 0},
	}
	for _, tt := range tests {
		v := &effects.Volume{Base: 2}
		applyGain(v, tt.gain)
		if v.Silent != tt.silent || math.Abs(v.Volume-tt.volume) > 1e-12 {
			t.Errorf("applyGain(%v) = silent %v volume %v, want %v %v", tt.gain, v.Silent, v.Volume, tt.silent, tt.volume)
		}
	}
}

func TestDecodable(t *testing.T) {
	for path, want := range map[string]bool{
		"a.WAV": true, "b.mp3": true, "c.flac": true, "d.ogg": true,
		"e.m4a": false, "f.webm": false, "g": false,
	} {
		if got := Decodable(audioengine.Source{Path: path}); got != want {
			t.Errorf("Decodable(%s) = %v, want %v", path, got, want)
		}
	}
}
