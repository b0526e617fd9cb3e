package audio

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/go-audio/wav"
)

// MaxDurationSeconds is the hard cap spec'd for a single utterance; anything
// longer is rejected as BadAudio rather than silently truncated.
const MaxDurationSeconds = 15.0

// LoadWAV decodes a WAV byte slice, downmixes to mono, resamples to
// SampleRate (16000 Hz), and enforces the duration cap. It returns samples
// normalized to float32 [-1, 1].
func LoadWAV(data []byte) ([]float32, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return nil, badAudio("not a valid WAV file")
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, badAudio("decode PCM buffer: %v", err)
	}
	if buf.Format == nil || buf.Format.NumChannels < 1 {
		return nil, badAudio("missing or invalid format chunk")
	}
	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(d.BitDepth)
	}
	if bitDepth != 8 && bitDepth != 16 && bitDepth != 24 && bitDepth != 32 {
		return nil, badAudio("unsupported sample width: %d bits", bitDepth)
	}

	channels := buf.Format.NumChannels
	sourceRate := buf.Format.SampleRate
	if sourceRate <= 0 {
		return nil, badAudio("invalid sample rate in WAV header")
	}

	mono := downmixInts(buf.Data, channels, bitDepth)

	resampled := mono
	if sourceRate != SampleRate {
		resampled = resampleLinear(mono, sourceRate, SampleRate)
	}

	duration := float64(len(resampled)) / float64(SampleRate)
	if duration > MaxDurationSeconds {
		return nil, badAudio("duration %.2fs exceeds %.1fs cap", duration, MaxDurationSeconds)
	}

	return resampled, nil
}

// downmixInts converts interleaved PCM integers (at the given bit depth) to
// mono float32 in [-1, 1] by arithmetic mean of channels, cast through
// float32 per the numeric policy.
func downmixInts(data []int, channels, bitDepth int) []float32 {
	if channels < 1 {
		channels = 1
	}
	scale := float32(int(1) << uint(bitDepth-1))
	frames := len(data) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			idx := i*channels + c
			if idx >= len(data) {
				break
			}
			sum += float32(data[idx]) / scale
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// resampleLinear resamples mono float32 samples from srcRate to dstRate using
// linear interpolation between neighboring source samples. No low-pass
// filter is applied first, so the method is not band-limited: when
// downsampling, content above the target's Nyquist frequency folds back
// into the output.
func resampleLinear(samples []float32, srcRate, dstRate int) []float32 {
	if len(samples) == 0 || srcRate == dstRate {
		return samples
	}
	ratio := float64(srcRate) / float64(dstRate)
	outLen := int(float64(len(samples)) / ratio)
	out := make([]float32, outLen)
	for i := 0; i < outLen; i++ {
		srcPos := float64(i) * ratio
		idx := int(srcPos)
		frac := float32(srcPos - float64(idx))
		if idx+1 < len(samples) {
			out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
		} else if idx < len(samples) {
			out[i] = samples[idx]
		}
	}
	return out
}

// EncodeWAV writes mono 16-bit PCM samples at SampleRate as a RIFF/WAVE byte
// slice, matching the raw-header-writing idiom used for WAV output
// throughout the corpus (only WAV decoding goes through a library here).
func EncodeWAV(samples []float32) []byte {
	var buf bytes.Buffer

	numChannels := 1
	sampleRate := SampleRate
	bitsPerSample := 16
	dataSize := len(samples) * 2
	chunkSize := 36 + dataSize

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(chunkSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	byteRate := sampleRate * numChannels * bitsPerSample / 8
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	blockAlign := numChannels * bitsPerSample / 8
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataSize))

	for _, s := range samples {
		clamped := s
		if clamped > 1 {
			clamped = 1
		} else if clamped < -1 {
			clamped = -1
		}
		binary.Write(&buf, binary.LittleEndian, int16(clamped*32767.0))
	}

	return buf.Bytes()
}

// WriteWAV is a convenience wrapper writing EncodeWAV's output to w.
func WriteWAV(w io.Writer, samples []float32) error {
	_, err := w.Write(EncodeWAV(samples))
	return err
}
