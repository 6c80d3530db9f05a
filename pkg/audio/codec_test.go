package audio

import (
	"encoding/base64"
	"errors"
	"math"
	"testing"
	"time"
)

func TestEncodeFrame_MIMEType(t *testing.T) {
	t.Parallel()

	frame := EncodeFrame([]float32{0, 0.5, -0.5})
	if frame.MIMEType != "audio/pcm;rate=16000" {
		t.Errorf("MIMEType = %q, want audio/pcm;rate=16000", frame.MIMEType)
	}
	raw, err := base64.StdEncoding.DecodeString(frame.Payload)
	if err != nil {
		t.Fatalf("payload is not valid base64: %v", err)
	}
	if len(raw) != 6 {
		t.Errorf("payload length = %d bytes, want 6", len(raw))
	}
}

func TestEncodePCM16_Quantization(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		sample float32
		want   int16
	}{
		{"zero", 0, 0},
		{"full positive", 1, 32767},
		{"full negative", -1, -32768},
		{"clamped above", 2.5, 32767},
		{"clamped below", -3, -32768},
		{"nan is silence", float32(math.NaN()), 0},
		{"half positive", 0.5, 16383},
		{"half negative", -0.5, -16384},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			raw := EncodePCM16([]float32{tt.sample})
			got := int16(raw[0]) | int16(raw[1])<<8
			if got != tt.want {
				t.Errorf("quantize(%v) = %d, want %d", tt.sample, got, tt.want)
			}
		})
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	t.Parallel()

	samples := make([]float32, CaptureFrameSamples)
	for i := range samples {
		samples[i] = float32(math.Sin(float64(i) / 7))
	}

	frame := EncodeFrame(samples)
	chunk, err := DecodeChunk(frame.Payload, InputSampleRate, 1)
	if err != nil {
		t.Fatalf("DecodeChunk: %v", err)
	}
	if chunk.Channels() != 1 {
		t.Fatalf("channels = %d, want 1", chunk.Channels())
	}
	if len(chunk.Data[0]) != len(samples) {
		t.Fatalf("decoded %d samples, want %d", len(chunk.Data[0]), len(samples))
	}

	const tolerance = 1.0 / 32768
	for i, want := range samples {
		got := chunk.Data[0][i]
		if diff := math.Abs(float64(got - want)); diff > tolerance {
			t.Fatalf("sample %d: got %v, want %v (diff %v > %v)", i, got, want, diff, tolerance)
		}
	}
}

func TestDecodeChunk_Duration(t *testing.T) {
	t.Parallel()

	// 24000 frames of mono at 24 kHz is exactly one second.
	raw := make([]byte, 24000*2)
	chunk, err := DecodePCM16(raw, OutputSampleRate, 1)
	if err != nil {
		t.Fatalf("DecodePCM16: %v", err)
	}
	if chunk.Duration != time.Second {
		t.Errorf("Duration = %v, want 1s", chunk.Duration)
	}
}

func TestDecodeChunk_Misaligned(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		bytes    int
		channels int
	}{
		{"odd byte count mono", 3, 1},
		{"incomplete stereo frame", 6, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			payload := base64.StdEncoding.EncodeToString(make([]byte, tt.bytes))
			_, err := DecodeChunk(payload, OutputSampleRate, tt.channels)
			var decErr *DecodeError
			if !errors.As(err, &decErr) {
				t.Fatalf("err = %v, want *DecodeError", err)
			}
		})
	}
}

func TestDecodeChunk_InvalidBase64(t *testing.T) {
	t.Parallel()

	_, err := DecodeChunk("not!!base64", OutputSampleRate, 1)
	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("err = %v, want *DecodeError", err)
	}
}

func TestDecodePCM16_Stereo(t *testing.T) {
	t.Parallel()

	// Two interleaved stereo frames: L=16384, R=-16384.
	raw := []byte{0x00, 0x40, 0x00, 0xC0, 0x00, 0x40, 0x00, 0xC0}
	chunk, err := DecodePCM16(raw, OutputSampleRate, 2)
	if err != nil {
		t.Fatalf("DecodePCM16: %v", err)
	}
	if chunk.Channels() != 2 {
		t.Fatalf("channels = %d, want 2", chunk.Channels())
	}
	for i := range 2 {
		if got := chunk.Data[0][i]; got != 0.5 {
			t.Errorf("left[%d] = %v, want 0.5", i, got)
		}
		if got := chunk.Data[1][i]; got != -0.5 {
			t.Errorf("right[%d] = %v, want -0.5", i, got)
		}
	}
}
