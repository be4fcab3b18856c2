package codec

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var (
	ErrInvalidWAV = errors.New("not a valid wav file")
	ErrNoAudio    = errors.New("wav file has no audio frames")
)

// blockDuration is the resolution of Analysis.Peaks.
const blockDuration = 100 * time.Millisecond

// Analysis is what one streaming pass over a WAV file learns about it.
type Analysis struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Frames     int
	// Peaks holds the absolute peak of every 100ms block, scaled to [0,1].
	Peaks []float64
}

func (a *Analysis) Duration() time.Duration {
	if a.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(a.Frames) / float64(a.SampleRate) * float64(time.Second))
}

// AnalyzeWAV streams the PCM data of r block by block, so memory use does
// not grow with the length of the stem.
func AnalyzeWAV(r io.ReadSeeker) (*Analysis, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, ErrInvalidWAV
	}

	a := &Analysis{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}
	if a.SampleRate == 0 || a.Channels == 0 || a.BitDepth == 0 {
		return nil, fmt.Errorf("%w: incomplete format chunk", ErrInvalidWAV)
	}
	fullScale := math.Exp2(float64(a.BitDepth - 1))

	blockFrames := a.SampleRate * int(blockDuration/time.Millisecond) / 1000
	buf := &audio.IntBuffer{
		Data:   make([]int, blockFrames*a.Channels),
		Format: &audio.Format{NumChannels: a.Channels, SampleRate: a.SampleRate},
	}

	samples := 0
	for {
		n, err := dec.PCMBuffer(buf)
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("read pcm: %w", err)
		}
		if n == 0 {
			break
		}

		var peak int
		for _, v := range buf.Data[:n] {
			if v < 0 {
				v = -v
			}
			if v > peak {
				peak = v
			}
		}
		a.Peaks = append(a.Peaks, math.Min(float64(peak)/fullScale, 1))
		samples += n

		if err == io.EOF {
			break
		}
	}

	a.Frames = samples / a.Channels
	if a.Frames == 0 {
		return nil, ErrNoAudio
	}
	return a, nil
}

// DecodeMonoWAV reads the whole file and downmixes it to mono samples in
// [-1,1].
func DecodeMonoWAV(r io.ReadSeeker) ([]float64, int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, ErrInvalidWAV
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, err
	}

	ch := buf.Format.NumChannels
	if ch < 1 {
		return nil, 0, fmt.Errorf("%w: no channels", ErrInvalidWAV)
	}
	fullScale := math.Exp2(float64(buf.SourceBitDepth - 1))
	if buf.SourceBitDepth == 0 {
		fullScale = math.Exp2(float64(dec.BitDepth - 1))
	}

	mono := make([]float64, len(buf.Data)/ch)
	for i := range mono {
		var sum float64
		for c := 0; c < ch; c++ {
			sum += float64(buf.Data[i*ch+c])
		}
		mono[i] = sum / float64(ch) / fullScale
	}
	// Release the interleaved buffer before the caller starts on mono.
	buf.Data = nil
	return mono, buf.Format.SampleRate, nil
}
