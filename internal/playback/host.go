// Package playback renders engine tracks through the system audio device
// with beep.
package playback

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"stemdeck/pkg/audioengine"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var ErrNotReady = errors.New("audio output not initialised")

type Config struct {
	SampleRate      int
	BufferSize      time.Duration
	ResampleQuality int
}

func DefaultConfig() Config {
	return Config{
		SampleRate:      48000,
		BufferSize:      100 * time.Millisecond,
		ResampleQuality: 4,
	}
}

// Host owns the process-wide speaker. The speaker is opened on the first
// Resume, so loading and inspecting stems never touches the device.
type Host struct {
	cfg  Config
	rate beep.SampleRate
	log  *zap.Logger

	mu     sync.Mutex
	ready  bool
	tracks map[*track]struct{}
}

func New(cfg Config, log *zap.Logger) *Host {
	def := DefaultConfig()
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.ResampleQuality <= 0 {
		cfg.ResampleQuality = def.ResampleQuality
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Host{
		cfg:    cfg,
		rate:   beep.SampleRate(cfg.SampleRate),
		log:    log,
		tracks: make(map[*track]struct{}),
	}
}

func (h *Host) Resume(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ready {
		return nil
	}
	if err := speaker.Init(h.rate, h.rate.N(h.cfg.BufferSize)); err != nil {
		return fmt.Errorf("speaker init: %w", err)
	}
	h.ready = true
	h.log.Info("audio output ready",
		zap.Int("sample_rate", h.cfg.SampleRate),
		zap.Duration("buffer", h.cfg.BufferSize))
	return nil
}

func (h *Host) Load(ctx context.Context, src audioengine.Source, hooks audioengine.Hooks) (audioengine.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(src.Path)
	if err != nil {
		return nil, err
	}
	stream, format, err := decode(src, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if stream.Len() <= 0 {
		stream.Close()
		return nil, fmt.Errorf("%s: no audio frames", src.DisplayName())
	}

	t := newTrack(h, src.DisplayName(), stream, format, hooks)
	h.mu.Lock()
	h.tracks[t] = struct{}{}
	h.mu.Unlock()

	h.log.Debug("stem decoded",
		zap.String("name", t.name),
		zap.Int("source_rate", int(format.SampleRate)),
		zap.Int("channels", format.NumChannels),
		zap.Float64("duration", t.duration))
	return t, nil
}

func (h *Host) isReady() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ready
}

func (h *Host) forget(t *track) {
	h.mu.Lock()
	delete(h.tracks, t)
	h.mu.Unlock()
}

// Close releases every open track and shuts the speaker down.
func (h *Host) Close() error {
	h.mu.Lock()
	open := make([]*track, 0, len(h.tracks))
	for t := range h.tracks {
		open = append(open, t)
	}
	ready := h.ready
	h.ready = false
	h.mu.Unlock()

	var err error
	for _, t := range open {
		err = multierr.Append(err, t.Close())
	}
	if ready {
		speaker.Clear()
		speaker.Close()
	}
	return err
}
