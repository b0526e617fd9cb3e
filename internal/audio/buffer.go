package audio

import (
	"encoding/binary"
	"math"
	"sync"
)

// SampleRate is the fixed rate every sample leaving a StreamBuffer is
// normalized to.
const SampleRate = 16000

// StreamBuffer is the transient per-session audio accumulator owned by a
// single WebSocket streaming session. It is safe for concurrent use: frames
// arrive on the connection's read goroutine while a status handler may
// inspect TotalSamplesReceived concurrently.
type StreamBuffer struct {
	mu          sync.Mutex
	thresholdMS int
	samples     []float32
	totalRecv   uint64
}

// NewStreamBuffer allocates a buffer that requires at least thresholdMS of
// audio before Ready reports true.
func NewStreamBuffer(thresholdMS int) *StreamBuffer {
	return &StreamBuffer{thresholdMS: thresholdMS}
}

// AppendInt16 interprets b as little-endian int16 PCM and appends it,
// normalizing each sample to [-1, 1] by dividing by 32768.
func (b *StreamBuffer) AppendInt16(raw []byte) {
	n := len(raw) / 2
	if n == 0 {
		return
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
		out[i] = float32(v) / 32768.0
	}
	b.mu.Lock()
	b.samples = append(b.samples, out...)
	b.totalRecv += uint64(n)
	b.mu.Unlock()
}

// AppendFloat32 interprets b as little-endian float32 PCM and appends it
// unchanged.
func (b *StreamBuffer) AppendFloat32(raw []byte) {
	n := len(raw) / 4
	if n == 0 {
		return
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(raw[i*4 : i*4+4])
		out[i] = math.Float32frombits(bits)
	}
	b.mu.Lock()
	b.samples = append(b.samples, out...)
	b.totalRecv += uint64(n)
	b.mu.Unlock()
}

// Ready reports whether the buffer holds at least thresholdMS of audio.
func (b *StreamBuffer) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	minSamples := SampleRate * b.thresholdMS / 1000
	return len(b.samples) >= minSamples
}

// TotalSamplesReceived returns the monotonically non-decreasing count of
// samples appended since creation or the last Reset.
func (b *StreamBuffer) TotalSamplesReceived() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalRecv
}

// Prepare clamps the accumulated samples so |x| <= 1 (dividing by peak
// magnitude when the peak exceeds 1) and returns a copy of the result. The
// internal buffer is left untouched; callers drain with Reset.
func (b *StreamBuffer) Prepare() []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Prepare(b.samples)
}

// Reset clears accumulated samples. TotalSamplesReceived is unaffected.
func (b *StreamBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples = nil
}

// Prepare clamps |x| <= 1 across samples by dividing by the peak magnitude
// when the peak exceeds 1; otherwise it returns an unscaled copy.
func Prepare(samples []float32) []float32 {
	out := make([]float32, len(samples))
	copy(out, samples)

	var peak float32
	for _, s := range out {
		a := s
		if a < 0 {
			a = -a
		}
		if a > peak {
			peak = a
		}
	}
	if peak > 1 {
		for i := range out {
			out[i] /= peak
		}
	}
	return out
}
