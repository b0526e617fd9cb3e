package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	samples := make([]float32, SampleRate) // 1s of a simple ramp
	for i := range samples {
		samples[i] = float32(i%2000-1000) / 1000.0
	}

	wavBytes := EncodeWAV(samples)
	decoded, err := LoadWAV(wavBytes)
	require.NoError(t, err)
	require.Len(t, decoded, len(samples))

	for i := range samples {
		// int16 round-trip: encode scales by 32767 and truncates, decode
		// divides by 32768, so the error stays within ±2 LSB (2/32768)
		assert.InDelta(t, samples[i], decoded[i], 1.0/32768.0*2)
	}
}

func TestLoadWAVRejectsOverLongAudio(t *testing.T) {
	samples := make([]float32, SampleRate*16) // 16s > 15s cap
	wavBytes := EncodeWAV(samples)
	_, err := LoadWAV(wavBytes)
	require.Error(t, err)
	var bad *BadAudio
	require.ErrorAs(t, err, &bad)
}

func TestLoadWAVRejectsGarbage(t *testing.T) {
	_, err := LoadWAV([]byte("not a wav file at all"))
	require.Error(t, err)
}

func TestDownmixArithmeticMean(t *testing.T) {
	// two channels, bit depth 16: [100, 300] -> mean 200
	out := downmixInts([]int{100, 300}, 2, 16)
	require.Len(t, out, 1)
	assert.InDelta(t, 200.0/32768.0, out[0], 1e-6)
}

func TestResampleLinearIdentity(t *testing.T) {
	samples := []float32{0.1, 0.2, 0.3}
	out := resampleLinear(samples, 16000, 16000)
	assert.Equal(t, samples, out)
}

func TestResampleLinearDownsamples(t *testing.T) {
	samples := make([]float32, 32000) // 1s @ 32kHz
	out := resampleLinear(samples, 32000, 16000)
	assert.InDelta(t, 16000, len(out), 2)
}
