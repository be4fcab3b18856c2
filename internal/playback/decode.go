package playback

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"stemdeck/internal/codec"
	"stemdeck/pkg/audioengine"

	"github.com/faiface/beep"
	"github.com/faiface/beep/flac"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/vorbis"
	"github.com/faiface/beep/wav"
)

var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Format returns the lower-case extension that selects the decoder for src.
func Format(src audioengine.Source) string {
	ext := filepath.Ext(src.Path)
	if ext == "" {
		ext = filepath.Ext(src.Name)
	}
	return strings.ToLower(ext)
}

// Decodable reports whether the host has a decoder for src.
func Decodable(src audioengine.Source) bool {
	switch Format(src) {
	case ".wav", ".mp3", ".flac", ".ogg", ".oga":
		return true
	}
	return false
}

// decode takes ownership of f: the returned stream closes it.
func decode(src audioengine.Source, f *os.File) (beep.StreamSeekCloser, beep.Format, error) {
	switch Format(src) {
	case ".wav":
		// beep's wav decoder accepts truncated headers that later fail mid
		// stream; a full scan rejects them up front.
		if _, err := codec.AnalyzeWAV(f); err != nil {
			return nil, beep.Format{}, err
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, beep.Format{}, err
		}
		return wav.Decode(f)
	case ".mp3":
		return mp3.Decode(f)
	case ".flac":
		return flac.Decode(f)
	case ".ogg", ".oga":
		return vorbis.Decode(f)
	default:
		return nil, beep.Format{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, Format(src))
	}
}
