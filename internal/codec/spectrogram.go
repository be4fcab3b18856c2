package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	"github.com/mjibson/go-dsp/fft"
)

const fftSize = 1024

var ErrImageSize = errors.New("spectrogram size must be positive")

// Spectrogram renders mono samples as a PNG, time on the x axis and
// linear frequency on the y axis, low frequencies at the bottom.
func Spectrogram(samples []float64, width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageSize, width, height)
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	step := len(samples) / width
	if step < fftSize {
		step = fftSize
	}

	window := make([]float64, fftSize)
	for x := 0; x < width; x++ {
		start := x * step
		if start+fftSize > len(samples) {
			break
		}

		for i := 0; i < fftSize; i++ {
			// Hann window keeps column edges from smearing across bins.
			w := 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(fftSize-1))
			window[i] = samples[start+i] * w
		}
		coeffs := fft.FFTReal(window)

		for y := 0; y < height; y++ {
			idx := (height - 1 - y) * (fftSize / 2) / height
			mag := math.Hypot(real(coeffs[idx]), imag(coeffs[idx]))
			db := 20 * math.Log10(mag+1e-9)
			// Map -60dB..+30dB onto the colour ramp.
			intensity := uint8(math.Max(0, math.Min((db+60)/90, 1)) * 255)
			img.Set(x, y, color.RGBA{R: intensity / 2, G: intensity, B: intensity / 2, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
