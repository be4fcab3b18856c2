package audioengine

import (
	"context"
	"path/filepath"
	"strings"
)

// Source identifies an audio resource the host can open.
type Source struct {
	Name string
	Path string
}

// FileSource builds a Source for a file on disk.
func FileSource(path string) Source {
	return Source{Name: filepath.Base(path), Path: path}
}

// DisplayName is the source name without its extension.
func (s Source) DisplayName() string {
	name := s.Name
	if name == "" {
		name = filepath.Base(s.Path)
	}
	if ext := filepath.Ext(name); ext != "" && ext != name {
		name = strings.TrimSuffix(name, ext)
	}
	return name
}

// Hooks are invoked by the host for events that happen after a load
// completed. They may be called from any goroutine but never while the
// host holds a lock that Handle methods need.
type Hooks struct {
	Ended func()
	Error func(error)
}

// Host is the media facility the engine drives: it owns the shared audio
// output and hands out one playback handle per loaded source.
type Host interface {
	// Resume brings the shared output into a state that can render audio.
	Resume(ctx context.Context) error
	// Load opens and decodes the source header. It returns once metadata
	// is known or the source turned out to be unusable.
	Load(ctx context.Context, src Source, hooks Hooks) (Handle, error)
	Close() error
}

// Handle is one independently progressing playback pipeline.
type Handle interface {
	Duration() float64
	Position() float64
	Seek(seconds float64) error
	Play(ctx context.Context) error
	Pause()
	Playing() bool
	Ended() bool
	// SetVolume applies a linear gain in [0,1]. Zero means silent.
	SetVolume(gain float64)
	Close() error
}
