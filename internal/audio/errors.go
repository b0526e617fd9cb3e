package audio

import "fmt"

// BadAudio is returned for any malformed or out-of-policy audio input:
// unparseable WAV headers, unsupported sample widths, channel counts that
// survive downmix unexpectedly, or a duration past the hard cap.
type BadAudio struct {
	Reason string
}

func (e *BadAudio) Error() string {
	return fmt.Sprintf("bad audio: %s", e.Reason)
}

func badAudio(format string, args ...any) error {
	return &BadAudio{Reason: fmt.Sprintf(format, args...)}
}
