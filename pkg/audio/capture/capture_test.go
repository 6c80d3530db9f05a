package capture

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/legalsathi/sathi/pkg/audio"
)

// fakeSource feeds pre-programmed sample blocks.
type fakeSource struct {
	blocks   [][]float32
	startErr error

	mu      sync.Mutex
	ch      chan []float32
	stopped int
}

func (s *fakeSource) Start(_ context.Context) (<-chan []float32, error) {
	if s.startErr != nil {
		return nil, s.startErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ch = make(chan []float32, len(s.blocks))
	for _, b := range s.blocks {
		s.ch <- b
	}
	return s.ch, nil
}

func (s *fakeSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped++
	if s.stopped == 1 && s.ch != nil {
		close(s.ch)
	}
	return nil
}

func (s *fakeSource) stopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// collectFrames runs a pipeline over the given blocks and returns the frames
// produced after the source is exhausted.
func collectFrames(t *testing.T, blocks [][]float32) []audio.EncodedFrame {
	t.Helper()

	var mu sync.Mutex
	var frames []audio.EncodedFrame

	src := &fakeSource{blocks: blocks}
	p, err := Start(context.Background(), src, func(f audio.EncodedFrame) {
		mu.Lock()
		frames = append(frames, f)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	p.Stop()

	mu.Lock()
	defer mu.Unlock()
	return frames
}

func TestPipeline_FixedFrameSize(t *testing.T) {
	t.Parallel()

	// 2.5 frames worth of samples in uneven blocks: exactly two full frames
	// come out, the trailing half frame is discarded at close.
	half := audio.CaptureFrameSamples / 2
	blocks := [][]float32{
		make([]float32, audio.CaptureFrameSamples+100),
		make([]float32, audio.CaptureFrameSamples-100),
		make([]float32, half),
	}

	frames := collectFrames(t, blocks)
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	for i, f := range frames {
		raw, err := base64.StdEncoding.DecodeString(f.Payload)
		if err != nil {
			t.Fatalf("frame %d: bad base64: %v", i, err)
		}
		if len(raw) != audio.CaptureFrameSamples*2 {
			t.Errorf("frame %d: %d bytes, want %d", i, len(raw), audio.CaptureFrameSamples*2)
		}
		if f.MIMEType != audio.InputMIMEType {
			t.Errorf("frame %d: mime %q, want %q", i, f.MIMEType, audio.InputMIMEType)
		}
	}
}

func TestPipeline_PreservesOrder(t *testing.T) {
	t.Parallel()

	// Mark each frame-sized block with a distinct constant sample value.
	var blocks [][]float32
	for i := range 4 {
		b := make([]float32, audio.CaptureFrameSamples)
		for j := range b {
			b[j] = float32(i+1) / 10
		}
		blocks = append(blocks, b)
	}

	frames := collectFrames(t, blocks)
	if len(frames) != 4 {
		t.Fatalf("got %d frames, want 4", len(frames))
	}
	for i, f := range frames {
		chunk, err := audio.DecodeChunk(f.Payload, audio.InputSampleRate, 1)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		want := float32(i+1) / 10
		got := chunk.Data[0][0]
		if diff := got - want; diff > 1.0/32768 || diff < -1.0/32768 {
			t.Errorf("frame %d: first sample %v, want ~%v", i, got, want)
		}
	}
}

func TestStart_PermissionDenied(t *testing.T) {
	t.Parallel()

	src := &fakeSource{startErr: fmt.Errorf("user declined: %w", ErrPermissionDenied)}
	_, err := Start(context.Background(), src, func(audio.EncodedFrame) {})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}
}

func TestPipeline_StopIdempotent(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	p, err := Start(context.Background(), src, func(audio.EncodedFrame) {})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan struct{})
	go func() {
		p.Stop()
		p.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	if got := src.stopCount(); got < 1 {
		t.Errorf("source stopped %d times, want at least 1", got)
	}
}
