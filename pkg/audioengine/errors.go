package audioengine

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownTrack   = errors.New("unknown track")
	ErrDuplicateTrack = errors.New("track id already in use")
	ErrTrackRemoved   = errors.New("track removed while loading")
	ErrClosed         = errors.New("engine closed")
)

// LoadError reports a source that could not be opened or decoded.
type LoadError struct {
	TrackID string
	File    string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load audio: %s: %v", e.File, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// PlaybackStartError reports a track the host refused to start.
type PlaybackStartError struct {
	TrackID string
	Err     error
}

func (e *PlaybackStartError) Error() string {
	return fmt.Sprintf("start track %s: %v", e.TrackID, e.Err)
}

func (e *PlaybackStartError) Unwrap() error { return e.Err }

// StreamError is raised when a loaded track's pipeline fails mid-playback.
type StreamError struct {
	TrackID string
	Err     error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("audio playback error on track %s: %v", e.TrackID, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// OutputInitError means the shared audio output could not be created or
// resumed. No track can play until it is resolved.
type OutputInitError struct {
	Err error
}

func (e *OutputInitError) Error() string {
	return fmt.Sprintf("audio output unavailable: %v", e.Err)
}

func (e *OutputInitError) Unwrap() error { return e.Err }

// TrackIDOf returns the track an error concerns, if any.
func TrackIDOf(err error) string {
	var le *LoadError
	if errors.As(err, &le) {
		return le.TrackID
	}
	var pe *PlaybackStartError
	if errors.As(err, &pe) {
		return pe.TrackID
	}
	var se *StreamError
	if errors.As(err, &se) {
		return se.TrackID
	}
	return ""
}
