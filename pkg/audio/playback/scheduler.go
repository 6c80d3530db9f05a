// Package playback provides gapless scheduling of decoded audio chunks onto
// an output sink, with hard-stop support for barge-in interruptions.
//
// The [Scheduler] owns a monotonically advancing cursor on the sink's own
// clock: each chunk is scheduled to start exactly where the previous one
// ends, so consecutive chunks play back-to-back with no gaps or overlaps.
package playback

import (
	"sync"
	"time"

	"github.com/legalsathi/sathi/pkg/audio"
)

// Handle is an in-flight playback of a single chunk. Stop cancels the
// playback; it must be safe to call after the playback already ended.
type Handle interface {
	Stop()
}

// Sink is an audio output device with its own clock. Play schedules a chunk
// to start at the given clock position and invokes onDone exactly once when
// playback of that chunk ends naturally (not when stopped).
//
// Implementations must be safe for concurrent use.
type Sink interface {
	// Now returns the current position on the sink's clock. The clock is
	// monotonic for the lifetime of the sink and starts near zero.
	Now() time.Duration

	// Play schedules chunk to start at the given position. A position in the
	// past means "as soon as possible". onDone must be invoked from a
	// separate goroutine, never synchronously from within Play.
	Play(chunk audio.PlaybackChunk, at time.Duration, onDone func()) (Handle, error)

	// Close releases the output device. Subsequent Play calls fail.
	Close() error
}

// Scheduler schedules decoded chunks onto a [Sink] back-to-back and tracks
// which playbacks are still in flight. All methods are safe for concurrent
// use. A Scheduler is bound to one sink for its lifetime; after [Scheduler.Close]
// all Enqueue calls are no-ops.
type Scheduler struct {
	mu        sync.Mutex
	sink      Sink
	nextStart time.Duration
	inflight  map[*playing]Handle
	speaking  bool
}

// playing is a unique key for one in-flight chunk. The struct must have
// nonzero size: all allocations of a zero-size type share one address, which
// would collapse every in-flight entry onto a single map key.
type playing struct{ _ byte }

// NewScheduler creates a Scheduler bound to sink.
func NewScheduler(sink Sink) *Scheduler {
	return &Scheduler{
		sink:     sink,
		inflight: make(map[*playing]Handle),
	}
}

// Enqueue schedules chunk to start at the current cursor position (or now,
// whichever is later) and advances the cursor by the chunk's duration. With
// no intervening [Scheduler.StopAll], consecutive chunks are therefore gapless.
//
// Enqueue is a no-op once the scheduler is closed: late chunks arriving after
// session teardown are silently discarded.
func (s *Scheduler) Enqueue(chunk audio.PlaybackChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sink == nil {
		return nil
	}

	if now := s.sink.Now(); s.nextStart < now {
		s.nextStart = now
	}

	key := &playing{}
	h, err := s.sink.Play(chunk, s.nextStart, func() { s.complete(key) })
	if err != nil {
		return err
	}

	s.inflight[key] = h
	s.nextStart += chunk.Duration
	s.speaking = true
	return nil
}

// complete removes a naturally finished playback from the in-flight set.
func (s *Scheduler) complete(key *playing) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.inflight[key]; !ok {
		return // already stopped via StopAll
	}
	delete(s.inflight, key)
	if len(s.inflight) == 0 {
		s.speaking = false
	}
}

// StopAll force-stops every in-flight playback, clears the in-flight set and
// resets the cursor to zero. It is idempotent and safe to call when nothing
// is playing. Used on interruption (barge-in) and session teardown.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopAllLocked()
}

func (s *Scheduler) stopAllLocked() {
	for key, h := range s.inflight {
		h.Stop()
		delete(s.inflight, key)
	}
	s.nextStart = 0
	s.speaking = false
}

// Speaking reports whether at least one chunk is currently in flight.
func (s *Scheduler) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// Inflight returns the number of scheduled-but-not-finished playbacks.
func (s *Scheduler) Inflight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

// Close stops all playback, releases the sink and detaches it. Idempotent.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sink == nil {
		return nil
	}
	s.stopAllLocked()
	err := s.sink.Close()
	s.sink = nil
	return err
}
