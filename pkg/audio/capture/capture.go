// Package capture owns microphone acquisition and the fixed-size frame
// callback that feeds the live speech session.
//
// The microphone itself sits behind the [Source] interface so that platform
// adapters (the WebSocket voice bridge, test fakes) can supply raw sample
// blocks of arbitrary size; the [Pipeline] re-blocks them into fixed
// 4096-sample frames, encodes each frame and hands it to the session.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/legalsathi/sathi/pkg/audio"
)

// ErrPermissionDenied is returned (possibly wrapped) by [Source.Start] when
// the user denies microphone access.
var ErrPermissionDenied = errors.New("capture: microphone permission denied")

// Source is a microphone abstraction. Start acquires the device and returns
// a channel of raw mono sample blocks at [audio.InputSampleRate]; the blocks
// may be any size. The channel is closed when the source stops producing.
//
// Implementations must be safe for concurrent use and Stop must be
// idempotent.
type Source interface {
	Start(ctx context.Context) (<-chan []float32, error)
	Stop() error
}

// FrameFunc receives one encoded capture frame. It is invoked from the
// pipeline's read goroutine and must not block: sends to the session are
// expected to be dispatched fire-and-forget.
type FrameFunc func(audio.EncodedFrame)

// Pipeline is a running capture graph: source → fixed-size re-blocking →
// PCM encode → onFrame. Obtain one via [Start]; release it with
// [Pipeline.Stop].
type Pipeline struct {
	src      Source
	stopOnce sync.Once
	done     chan struct{}
}

// Start acquires the microphone via src and begins delivering encoded
// 4096-sample frames to onFrame, in capture order. A permission denial is
// reported as an error wrapping [ErrPermissionDenied]; no pipeline is
// created in that case.
func Start(ctx context.Context, src Source, onFrame FrameFunc) (*Pipeline, error) {
	blocks, err := src.Start(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture: start source: %w", err)
	}

	p := &Pipeline{
		src:  src,
		done: make(chan struct{}),
	}
	go p.run(blocks, onFrame)
	return p, nil
}

// run re-blocks incoming samples into fixed frames. Partial trailing samples
// are carried over to the next block; a final partial frame at source close
// is discarded, matching the fixed-frame contract of the speech service.
func (p *Pipeline) run(blocks <-chan []float32, onFrame FrameFunc) {
	defer close(p.done)

	buf := make([]float32, 0, 2*audio.CaptureFrameSamples)
	for block := range blocks {
		buf = append(buf, block...)
		for len(buf) >= audio.CaptureFrameSamples {
			onFrame(audio.EncodeFrame(buf[:audio.CaptureFrameSamples]))
			buf = buf[audio.CaptureFrameSamples:]
		}
		// Compact so the backing array does not grow without bound.
		if len(buf) > 0 && cap(buf) > 4*audio.CaptureFrameSamples {
			buf = append(make([]float32, 0, 2*audio.CaptureFrameSamples), buf...)
		}
	}
}

// Stop releases the microphone and waits for the read goroutine to exit.
// Safe to call multiple times and after partial failure.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		_ = p.src.Stop()
	})
	<-p.done
}
