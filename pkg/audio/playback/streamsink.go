package playback

import (
	"errors"
	"sync"
	"time"

	"github.com/legalsathi/sathi/pkg/audio"
)

// StreamSink is a [Sink] that delivers chunks to an output callback at their
// scheduled wall-clock times. Its clock starts at zero when the sink is
// created. It backs transports that have no device clock of their own, such
// as the WebSocket voice bridge: the chunk is pushed to the peer when its
// start time arrives and the peer plays it immediately.
type StreamSink struct {
	out   func(audio.PlaybackChunk)
	start time.Time

	mu     sync.Mutex
	closed bool
	timers map[*streamHandle]struct{}
}

// NewStreamSink creates a StreamSink delivering chunks to out. The callback
// runs on timer goroutines and must not block for extended periods.
func NewStreamSink(out func(audio.PlaybackChunk)) *StreamSink {
	return &StreamSink{
		out:    out,
		start:  time.Now(),
		timers: make(map[*streamHandle]struct{}),
	}
}

// Now implements [Sink].
func (s *StreamSink) Now() time.Duration {
	return time.Since(s.start)
}

// Play implements [Sink]. The chunk is emitted when its start time arrives
// and onDone fires after the chunk's duration has elapsed beyond that.
func (s *StreamSink) Play(chunk audio.PlaybackChunk, at time.Duration, onDone func()) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.New("playback: sink closed")
	}

	h := &streamHandle{sink: s}
	delay := at - s.Now()
	if delay < 0 {
		delay = 0
	}

	h.emit = time.AfterFunc(delay, func() {
		if h.stopped() {
			return
		}
		s.out(chunk)

		h.mu.Lock()
		if !h.done {
			h.finish = time.AfterFunc(chunk.Duration, func() {
				if h.stopped() {
					return
				}
				h.markDone()
				s.forget(h)
				onDone()
			})
		}
		h.mu.Unlock()
	})

	s.timers[h] = struct{}{}
	return h, nil
}

// Close implements [Sink]. All pending timers are cancelled.
func (s *StreamSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	for h := range s.timers {
		h.Stop()
		delete(s.timers, h)
	}
	return nil
}

func (s *StreamSink) forget(h *streamHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.timers, h)
}

// streamHandle tracks the two timers of one scheduled chunk.
type streamHandle struct {
	sink *StreamSink

	mu     sync.Mutex
	emit   *time.Timer
	finish *time.Timer
	done   bool
}

// Stop implements [Handle].
func (h *streamHandle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.done = true
	if h.emit != nil {
		h.emit.Stop()
	}
	if h.finish != nil {
		h.finish.Stop()
	}
}

func (h *streamHandle) stopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.done
}

func (h *streamHandle) markDone() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.done = true
}
