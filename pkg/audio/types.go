// Package audio defines the frame types and the PCM codec shared by the
// Sathi voice pipeline.
//
// Audio flows through the pipeline as 32-bit float samples in [-1, 1].
// On the wire both directions use base64-encoded little-endian 16-bit PCM:
// microphone input at 16 kHz mono, synthesized output at 24 kHz mono.
package audio

import "time"

const (
	// InputSampleRate is the capture sample rate expected by the speech service.
	InputSampleRate = 16000

	// OutputSampleRate is the sample rate of synthesized audio from the service.
	OutputSampleRate = 24000

	// CaptureFrameSamples is the fixed block size of a capture frame.
	CaptureFrameSamples = 4096

	// InputMIMEType is the transport MIME type for outbound capture frames.
	InputMIMEType = "audio/pcm;rate=16000"
)

// EncodedFrame is the transport representation of one capture frame:
// base64-encoded little-endian 16-bit PCM plus its MIME type.
type EncodedFrame struct {
	Payload  string
	MIMEType string
}

// PlaybackChunk is decoded output audio ready for scheduling. Data holds one
// sample slice per channel (de-interleaved). Duration is computed from the
// per-channel frame count and the sample rate.
type PlaybackChunk struct {
	Data       [][]float32
	SampleRate int
	Duration   time.Duration
}

// Channels returns the channel count of the chunk.
func (c PlaybackChunk) Channels() int { return len(c.Data) }
