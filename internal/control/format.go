package control

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

var audioExtensions = map[string]bool{
	".mp3": true, ".wav": true, ".flac": true, ".m4a": true,
	".aac": true, ".ogg": true, ".webm": true,
}

// IsAudioFile reports whether path has an extension a stem can carry.
func IsAudioFile(path string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(path))]
}

// FormatTime renders seconds as m:ss, truncating fractions.
func FormatTime(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return "0:00"
	}
	s := int(seconds)
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

// ParseTime accepts plain seconds ("83", "-5", "+2.5") or m:ss ("1:23").
func ParseTime(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty time")
	}
	m, sec, ok := strings.Cut(s, ":")
	if !ok {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("bad time %q", s)
		}
		return v, nil
	}
	mins, err := strconv.Atoi(m)
	if err != nil || mins < 0 {
		return 0, fmt.Errorf("bad minutes in %q", s)
	}
	secs, err := strconv.ParseFloat(sec, 64)
	if err != nil || secs < 0 || secs >= 60 {
		return 0, fmt.Errorf("bad seconds in %q", s)
	}
	return float64(mins)*60 + secs, nil
}

// GuessInstrument classifies a stem by keywords in its name.
func GuessInstrument(name string) string {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "bass"):
		return "bass"
	case strings.Contains(n, "drum"):
		return "drums"
	case strings.Contains(n, "vocal"), strings.Contains(n, "voice"):
		return "vocals"
	case strings.Contains(n, "piano"), strings.Contains(n, "keys"), strings.Contains(n, "keyboard"):
		return "piano"
	case strings.Contains(n, "guitar"), strings.Contains(n, "gtr"):
		return "guitar"
	}
	return "other"
}

// TrackID derives a short id from a display name. A taken id gets a random
// suffix.
func TrackID(name string, taken func(string) bool) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	id := strings.TrimSuffix(b.String(), "-")
	if id == "" {
		id = "track"
	}
	for candidate := id; ; candidate = id + "-" + uuid.NewString()[:8] {
		if taken == nil || !taken(candidate) {
			return candidate
		}
	}
}
