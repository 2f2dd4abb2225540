package audio

import "math"

const (
	ToneFrequency = 440.0
	ToneAmplitude = 16000
)

// GenerateSineWave produces a mono int16 sine wave at the given frequency,
// duration and sample rate.
func GenerateSineWave(durationSec, frequency float64, sampleRate int) []int16 {
	numSamples := int(durationSec * float64(sampleRate))
	samples := make([]int16, numSamples)
	for i := range samples {
		t := float64(i) / float64(sampleRate)
		samples[i] = int16(ToneAmplitude * math.Sin(2*math.Pi*frequency*t))
	}
	return samples
}

// Tone returns a mono 16-bit buffer holding a sine tone.
func Tone(durationSec float64, sampleRate int) Buffer {
	return NewMono16(sampleRate, Int16ToBytes(GenerateSineWave(durationSec, ToneFrequency, sampleRate)))
}
