package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"stemdeck/internal/codec"
	"stemdeck/internal/control"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func writeWAV(t *testing.T, path string, rate, frames int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	data := make([]int, frames)
	for i := range data {
		data[i] = (i % 64) * 400
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
	f.Close()
}

func TestInspectFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "song - drums.wav")
	writeWAV(t, path, 8000, 8000*3)

	inspectFlags.spectrogram = filepath.Join(dir, "png")
	inspectFlags.width, inspectFlags.height = 20, 16
	t.Cleanup(func() { inspectFlags.spectrogram = "" })
	if err := os.MkdirAll(inspectFlags.spectrogram, 0o755); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := inspectFile(&out, path); err != nil {
		t.Fatalf("inspectFile: %v", err)
	}
	text := out.String()
	for _, want := range []string{"song - drums (drums)", "8000 Hz, 1 ch, 16 bit, 0:03", "spectrogram ->"} {
		if !strings.Contains(text, want) {
			t.Errorf("output misses %q:\n%s", want, text)
		}
	}
	if _, err := os.Stat(filepath.Join(inspectFlags.spectrogram, "song - drums.png")); err != nil {
		t.Errorf("spectrogram not written: %v", err)
	}
}

func TestInspectRejectsOtherFormats(t *testing.T) {
	if err := inspectFile(&bytes.Buffer{}, "bass.mp3"); err == nil {
		t.Error("inspect accepted an mp3")
	}
}

func TestPrintReply(t *testing.T) {
	var out bytes.Buffer
	printReply(&out, "TRACKS", control.Reply{Data: []control.TrackInfo{
		{ID: "bass", Name: "bass", Instrument: "bass", Loaded: true, Duration: 65, Volume: 100, Soloed: true, Effective: 0.8},
		{ID: "broken", Name: "broken", Instrument: "other", Error: "failed to load audio"},
	}})
	text := out.String()
	if !strings.Contains(text, "1:05") || !strings.Contains(text, " 80%") || !strings.Contains(text, "failed: failed to load audio") {
		t.Errorf("tracks output:\n%s", text)
	}

	out.Reset()
	printReply(&out, "PLAY", control.Reply{Err: errors.New("no device")})
	if got := out.String(); got != " [!] no device\n" {
		t.Errorf("error output = %q", got)
	}

	out.Reset()
	printReply(&out, "SEEK", control.Reply{Msg: "1:30"})
	if got := out.String(); got != " OK 1:30\n" {
		t.Errorf("ok output = %q", got)
	}
}

func TestListFilesCompletesAudioAndDirs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"bass.wav", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "more"), 0o755); err != nil {
		t.Fatal(err)
	}

	got := listFiles("load " + dir + string(filepath.Separator))
	want := map[string]bool{}
	want[filepath.Join(dir, "bass.wav")] = true
	want[filepath.Join(dir, "more")+string(filepath.Separator)] = true
	if len(got) != len(want) {
		t.Fatalf("listFiles = %v", got)
	}
	for _, g := range got {
		if !want[g] {
			t.Errorf("unexpected completion %s", g)
		}
	}
}

func TestInspectRejectsEmptySpectrogram(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bass.wav")
	writeWAV(t, path, 8000, 8000)

	inspectFlags.spectrogram = dir
	inspectFlags.width, inspectFlags.height = 0, 16
	t.Cleanup(func() { inspectFlags.spectrogram = "" })

	if err := inspectFile(&bytes.Buffer{}, path); !errors.Is(err, codec.ErrImageSize) {
		t.Errorf("inspectFile err = %v, want codec.ErrImageSize", err)
	}
}
