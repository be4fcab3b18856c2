package codec

import "math"

// Overview condenses block peaks into at most points amplitude values in
// 0-255, one per column of a waveform strip.
func Overview(peaks []float64, points int) []byte {
	if points <= 0 || len(peaks) == 0 {
		return nil
	}
	if points > len(peaks) {
		points = len(peaks)
	}

	out := make([]byte, points)
	for i := range out {
		start := i * len(peaks) / points
		end := (i + 1) * len(peaks) / points
		var max float64
		for _, p := range peaks[start:end] {
			if p > max {
				max = p
			}
		}
		out[i] = uint8(math.Round(math.Min(max, 1) * 255))
	}
	return out
}

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// Sparkline renders an overview as a one-line bar strip.
func Sparkline(overview []byte) string {
	runes := make([]rune, len(overview))
	for i, v := range overview {
		runes[i] = sparkRunes[int(v)*(len(sparkRunes)-1)/255]
	}
	return string(runes)
}
