package audio

import (
	"encoding/base64"
	"fmt"
	"math"
	"time"
)

// DecodeError reports a malformed PCM payload. Callers should drop the
// offending chunk and keep the session alive.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("audio: decode: %s", e.Reason)
}

// EncodeFrame converts float samples in [-1, 1] into an [EncodedFrame] for
// the speech service. Samples are clamped before quantization; NaN samples
// are treated as silence. Positive and negative samples use separate scale
// factors (32767 / 32768) so the full int16 range is used symmetrically.
func EncodeFrame(samples []float32) EncodedFrame {
	return EncodedFrame{
		Payload:  base64.StdEncoding.EncodeToString(EncodePCM16(samples)),
		MIMEType: InputMIMEType,
	}
}

// EncodePCM16 quantizes float samples in [-1, 1] to little-endian 16-bit PCM
// bytes. Clamping and NaN handling follow the same rules as [EncodeFrame].
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := quantize(s)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

func quantize(s float32) int16 {
	if math.IsNaN(float64(s)) {
		return 0
	}
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	if s >= 0 {
		return int16(s * 32767)
	}
	return int16(s * 32768)
}

// DecodeChunk converts a base64 PCM payload from the speech service into a
// [PlaybackChunk]. The payload must be little-endian 16-bit PCM with the
// given channel count interleaved; a *[DecodeError] is returned when the
// payload is not valid base64 or the byte length is not a multiple of
// 2*channels.
func DecodeChunk(payload string, sampleRate, channels int) (PlaybackChunk, error) {
	if sampleRate <= 0 || channels <= 0 {
		return PlaybackChunk{}, &DecodeError{Reason: "sample rate and channels must be positive"}
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return PlaybackChunk{}, &DecodeError{Reason: "invalid base64 payload"}
	}
	return DecodePCM16(raw, sampleRate, channels)
}

// DecodePCM16 de-interleaves little-endian 16-bit PCM bytes into per-channel
// float samples. Each integer sample is divided by 32768.
func DecodePCM16(raw []byte, sampleRate, channels int) (PlaybackChunk, error) {
	if len(raw)%(2*channels) != 0 {
		return PlaybackChunk{}, &DecodeError{
			Reason: fmt.Sprintf("%d bytes is not a multiple of %d (2 bytes x %d channels)", len(raw), 2*channels, channels),
		}
	}

	frames := len(raw) / (2 * channels)
	data := make([][]float32, channels)
	for ch := range data {
		data[ch] = make([]float32, frames)
	}
	for i := range frames {
		for ch := range channels {
			off := (i*channels + ch) * 2
			v := int16(raw[off]) | int16(raw[off+1])<<8
			data[ch][i] = float32(v) / 32768
		}
	}

	return PlaybackChunk{
		Data:       data,
		SampleRate: sampleRate,
		Duration:   time.Duration(frames) * time.Second / time.Duration(sampleRate),
	}, nil
}
