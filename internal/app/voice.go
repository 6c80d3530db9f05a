package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/legalsathi/sathi/internal/i18n"
	"github.com/legalsathi/sathi/internal/legal"
	"github.com/legalsathi/sathi/internal/observe"
	"github.com/legalsathi/sathi/internal/store"
	"github.com/legalsathi/sathi/internal/transcript"
	"github.com/legalsathi/sathi/pkg/audio"
	"github.com/legalsathi/sathi/pkg/audio/capture"
	"github.com/legalsathi/sathi/pkg/audio/playback"
	"github.com/legalsathi/sathi/pkg/provider/live"
)

// VoiceState is the connection state of a voice session as observed by
// clients.
type VoiceState string

const (
	VoiceDisconnected VoiceState = "disconnected"
	VoiceConnecting   VoiceState = "connecting"
	VoiceConnected    VoiceState = "connected"
	VoiceError        VoiceState = "error"
)

// ErrAlreadyConnected is returned by [VoiceSession.Connect] when a connect is
// already in progress or established.
var ErrAlreadyConnected = errors.New("voice: already connected")

// micFailedMessage is the user-facing message shown when the microphone
// cannot be acquired, whatever the underlying cause.
const micFailedMessage = "Microphone access failed."

// VoiceSessionConfig wires one voice session's dependencies.
type VoiceSessionConfig struct {
	// SessionID identifies this session in the transcript archive.
	SessionID string

	// Provider establishes the upstream live connection.
	Provider live.Provider

	// Source produces microphone audio blocks.
	Source capture.Source

	// Sink plays decoded model audio.
	Sink playback.Sink

	// Archive persists finished transcript entries. Optional; writes are
	// best-effort and never fail the session.
	Archive store.TranscriptStore

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Language selects the model's response language.
	Language i18n.Language

	// Voice is the prebuilt voice name. Empty selects the provider default.
	Voice string

	// OnState is invoked on every state change. Optional. Called from the
	// session's event loop; implementations must not block.
	OnState func(VoiceState)

	// OnEntry is invoked for each finished transcript entry. Optional; same
	// calling rules as OnState.
	OnEntry func(transcript.Entry)

	// OnInterrupted is invoked after a barge-in stops playback. Optional;
	// same calling rules as OnState.
	OnInterrupted func()

	// OnError is invoked at most once with a user-facing message when the
	// session fails. Optional; same calling rules as OnState.
	OnError func(msg string)
}

// VoiceSession orchestrates one live voice conversation: it forwards capture
// frames upstream, schedules returned audio for gapless playback, stops
// playback on barge-in and accumulates transcription deltas into archived
// entries.
type VoiceSession struct {
	cfg   VoiceSessionConfig
	log   *slog.Logger
	sched *playback.Scheduler

	mu       sync.Mutex
	state    VoiceState
	errMsg   string
	sess     live.Session
	pipeline *capture.Pipeline
	acc      transcript.Accumulator

	done chan struct{}
}

// NewVoiceSession creates a VoiceSession in the disconnected state.
func NewVoiceSession(cfg VoiceSessionConfig) *VoiceSession {
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &VoiceSession{
		cfg:   cfg,
		log:   slog.Default().With("session_id", cfg.SessionID),
		sched: playback.NewScheduler(cfg.Sink),
		state: VoiceDisconnected,
		done:  make(chan struct{}),
	}
}

// Connect dials the live provider and starts the event loop. Capture begins
// once the provider acknowledges the session. Returns ErrAlreadyConnected if
// called twice.
func (v *VoiceSession) Connect(ctx context.Context) error {
	v.mu.Lock()
	if v.state != VoiceDisconnected {
		v.mu.Unlock()
		return ErrAlreadyConnected
	}
	v.setStateLocked(VoiceConnecting)
	v.mu.Unlock()

	sess, err := v.cfg.Provider.Connect(ctx, live.SessionConfig{
		Instructions: legal.VoiceInstruction(v.cfg.Language),
		Voice:        v.cfg.Voice,
	})
	if err != nil {
		v.mu.Lock()
		v.setStateLocked(VoiceError)
		v.mu.Unlock()
		return fmt.Errorf("voice: connect: %w", err)
	}

	v.mu.Lock()
	v.sess = sess
	v.mu.Unlock()

	v.cfg.Metrics.ActiveVoiceSessions.Add(ctx, 1)
	go v.eventLoop(ctx, sess)
	return nil
}

// eventLoop consumes the session's normalized events until the channel
// closes, then tears everything down.
func (v *VoiceSession) eventLoop(ctx context.Context, sess live.Session) {
	final := VoiceDisconnected

	for ev := range sess.Events() {
		switch ev.Kind {
		case live.KindOpened:
			v.startCapture(ctx, sess)
			v.mu.Lock()
			v.setStateLocked(VoiceConnected)
			v.mu.Unlock()

		case live.KindContent:
			v.handleContent(ctx, ev.Content)

		case live.KindInterrupted:
			v.sched.StopAll()
			v.cfg.Metrics.Interruptions.Add(ctx, 1)
			v.flush(ctx, v.takeOutputEntries())
			if v.cfg.OnInterrupted != nil {
				v.cfg.OnInterrupted()
			}

		case live.KindClosed:
			final = VoiceDisconnected

		case live.KindErrored:
			v.log.Error("live session failed", "error", ev.Err)
			msg := "Connection error."
			if ev.Err != nil {
				msg = ev.Err.Error()
			}
			v.setError(msg)
			final = VoiceError
		}
	}

	v.teardown(ctx, final)
}

// handleContent processes one normalized content delta: buffer transcription
// text, schedule audio, flush the transcript on turn boundaries.
func (v *VoiceSession) handleContent(ctx context.Context, delta live.ContentDelta) {
	v.mu.Lock()
	if delta.InputText != "" {
		v.acc.AddInput(delta.InputText)
	}
	if delta.OutputText != "" {
		v.acc.AddOutput(delta.OutputText)
	}
	v.mu.Unlock()

	if delta.AudioPayload != "" {
		chunk, err := audio.DecodeChunk(delta.AudioPayload, audio.OutputSampleRate, 1)
		if err != nil {
			// A malformed chunk is dropped; the stream continues.
			v.cfg.Metrics.DecodeErrors.Add(ctx, 1)
			v.log.Warn("dropping undecodable audio chunk", "error", err)
		} else if err := v.sched.Enqueue(chunk); err != nil {
			v.log.Warn("failed to schedule audio chunk", "error", err)
		} else {
			v.cfg.Metrics.ChunksScheduled.Add(ctx, 1)
		}
	}

	if delta.TurnComplete {
		v.flush(ctx, v.takeTurnEntries())
	}
}

func (v *VoiceSession) takeTurnEntries() []transcript.Entry {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.acc.FlushTurn()
}

func (v *VoiceSession) takeOutputEntries() []transcript.Entry {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.acc.FlushOutput()
}

// flush delivers finished entries to the OnEntry callback and the archive.
func (v *VoiceSession) flush(ctx context.Context, entries []transcript.Entry) {
	for _, e := range entries {
		if v.cfg.Archive != nil {
			if err := v.cfg.Archive.WriteEntry(ctx, v.cfg.SessionID, e); err != nil {
				v.log.Warn("failed to archive transcript entry", "error", err)
			}
		}
		if v.cfg.OnEntry != nil {
			v.cfg.OnEntry(e)
		}
	}
}

// startCapture begins the microphone pipeline, forwarding each encoded frame
// to the live session.
func (v *VoiceSession) startCapture(ctx context.Context, sess live.Session) {
	pipeline, err := capture.Start(ctx, v.cfg.Source, func(frame audio.EncodedFrame) {
		if err := sess.Send(frame); err != nil {
			v.log.Warn("failed to send capture frame", "error", err)
			return
		}
		v.cfg.Metrics.FramesSent.Add(ctx, 1)
	})
	if err != nil {
		v.log.Error("failed to start capture", "error", err)
		v.setError(micFailedMessage)
		sess.Close()
		return
	}

	v.mu.Lock()
	v.pipeline = pipeline
	v.mu.Unlock()
}

// teardown runs once when the event loop exits. A recorded error forces the
// error state even when the remote end closed cleanly.
func (v *VoiceSession) teardown(ctx context.Context, final VoiceState) {
	v.mu.Lock()
	pipeline := v.pipeline
	v.pipeline = nil
	if v.errMsg != "" {
		final = VoiceError
	}
	v.setStateLocked(final)
	v.mu.Unlock()

	if pipeline != nil {
		pipeline.Stop()
	}
	if err := v.sched.Close(); err != nil {
		v.log.Warn("failed to close playback", "error", err)
	}

	v.cfg.Metrics.ActiveVoiceSessions.Add(ctx, -1)
	close(v.done)
}

// Disconnect closes the session and waits for teardown to finish. Safe to
// call multiple times and before Connect.
func (v *VoiceSession) Disconnect() {
	v.mu.Lock()
	sess := v.sess
	v.mu.Unlock()

	if sess == nil {
		v.mu.Lock()
		v.setStateLocked(VoiceDisconnected)
		v.mu.Unlock()
		return
	}

	sess.Close()
	<-v.done
}

// Done is closed once the session has fully torn down.
func (v *VoiceSession) Done() <-chan struct{} {
	return v.done
}

// Err returns the user-facing error message, or "" while the session is
// healthy. Set at most once.
func (v *VoiceSession) Err() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.errMsg
}

// setError records the first failure and notifies the OnError callback.
// Later failures are ignored.
func (v *VoiceSession) setError(msg string) {
	v.mu.Lock()
	if v.errMsg != "" {
		v.mu.Unlock()
		return
	}
	v.errMsg = msg
	v.mu.Unlock()

	if v.cfg.OnError != nil {
		v.cfg.OnError(msg)
	}
}

// State returns the current connection state.
func (v *VoiceSession) State() VoiceState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Speaking reports whether model audio is currently playing.
func (v *VoiceSession) Speaking() bool {
	return v.sched.Speaking()
}

// setStateLocked updates the state and notifies the OnState callback.
// Caller holds v.mu.
func (v *VoiceSession) setStateLocked(s VoiceState) {
	if v.state == s {
		return
	}
	v.state = s
	if v.cfg.OnState != nil {
		v.cfg.OnState(s)
	}
}
