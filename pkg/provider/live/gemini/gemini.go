// Package gemini implements the live.Provider interface for Google's Gemini
// Live API.
//
// It establishes a bidirectional WebSocket connection to the Gemini Live
// endpoint and exchanges JSON messages according to the BidiGenerateContent
// protocol. Microphone audio is transmitted as base64-encoded PCM chunks;
// server content is normalized into live.Event values.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/legalsathi/sathi/pkg/audio"
	"github.com/legalsathi/sathi/pkg/provider/live"
)

// Compile-time assertions that Provider and session satisfy the live interfaces.
var _ live.Provider = (*Provider)(nil)
var _ live.Session = (*session)(nil)

const (
	defaultModel   = "gemini-2.5-flash-native-audio-preview-09-2025"
	defaultVoice   = "Zephyr"
	defaultBaseURL = "wss://generativelanguage.googleapis.com/ws"

	keepaliveInterval = 20 * time.Second
	keepaliveTimeout  = 5 * time.Second

	eventBuf = 64
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the Gemini Live model used for sessions.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// Provider implements live.Provider for Google's Gemini Live API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
}

// New creates a new Gemini Live Provider with the given API key and options.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Connect establishes a new Gemini Live session. The session starts in
// StatusConnecting; a KindOpened event is emitted once the server
// acknowledges the setup message.
func (p *Provider) Connect(ctx context.Context, cfg live.SessionConfig) (live.Session, error) {
	wsURL := fmt.Sprintf(
		"%s/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent?key=%s",
		p.baseURL, p.apiKey,
	)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Content-Type": []string{"application/json"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: dial: %w", err)
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &session{
		conn:   conn,
		events: make(chan live.Event, eventBuf),
		status: live.StatusConnecting,
		done:   make(chan struct{}),
		ctx:    sessCtx,
		cancel: sessCancel,
	}

	if err := sess.sendSetup(p.model, cfg); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "setup failed")
		return nil, fmt.Errorf("gemini: setup: %w", err)
	}

	go sess.receiveLoop()
	go sess.keepaliveLoop()

	return sess, nil
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type setupMessage struct {
	Setup setupConfig `json:"setup"`
}

type setupConfig struct {
	Model                    string             `json:"model"`
	GenerationConfig         generationConfig   `json:"generationConfig"`
	SystemInstruction        *systemInstruction `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *emptyObject       `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *emptyObject       `json:"outputAudioTranscription,omitempty"`
}

// emptyObject serializes as {} — the Live API enables transcription echo for
// a direction by the field's presence, not a value.
type emptyObject struct{}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type systemInstruction struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64-encoded
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	MediaChunks []mediaChunk `json:"mediaChunks"`
}

type mediaChunk struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64-encoded
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

type serverMessage struct {
	SetupComplete *json.RawMessage `json:"setupComplete,omitempty"`
	ServerContent *serverContent   `json:"serverContent,omitempty"`
	Error         *geminiError     `json:"error,omitempty"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

type serverContent struct {
	ModelTurn           *modelTurn     `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
}

type modelTurn struct {
	Parts []part `json:"parts"`
}

type transcription struct {
	Text string `json:"text"`
}

// ── session ────────────────────────────────────────────────────────────────────

type session struct {
	conn   *websocket.Conn
	events chan live.Event

	mu     sync.Mutex
	status live.Status
	closed bool

	done      chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// sendSetup sends the initial BidiGenerateContent setup message requesting
// audio responses plus transcription echo for both directions.
func (s *session) sendSetup(model string, cfg live.SessionConfig) error {
	voice := cfg.Voice
	if voice == "" {
		voice = defaultVoice
	}

	msg := setupMessage{
		Setup: setupConfig{
			Model: fmt.Sprintf("models/%s", model),
			GenerationConfig: generationConfig{
				ResponseModalities: []string{"AUDIO"},
				SpeechConfig: &speechConfig{
					VoiceConfig: voiceConfig{
						PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: voice},
					},
				},
			},
			InputAudioTranscription:  &emptyObject{},
			OutputAudioTranscription: &emptyObject{},
		},
	}

	if cfg.Instructions != "" {
		msg.Setup.SystemInstruction = &systemInstruction{
			Parts: []part{{Text: cfg.Instructions}},
		}
	}

	return s.writeJSON(msg)
}

// writeJSON marshals v and writes it as a text WebSocket message.
func (s *session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("gemini: marshal: %w", err)
	}
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

// receiveLoop reads messages from the WebSocket and normalizes them into
// live events. It owns the events channel: a terminal event is emitted and
// the channel closed when the loop exits.
func (s *session) receiveLoop() {
	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				// Local Close: the peer did not fail, the session was torn down.
				s.finish(live.Event{Kind: live.KindClosed})
				return
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				s.finish(live.Event{Kind: live.KindClosed})
				return
			}
			s.finish(live.Event{Kind: live.KindErrored, Err: fmt.Errorf("gemini: read: %w", err)})
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue // skip malformed frames
		}

		if terminal := s.handleServerMessage(&msg); terminal {
			return
		}
	}
}

// handleServerMessage dispatches one decoded message. It returns true when
// the message terminated the session.
func (s *session) handleServerMessage(msg *serverMessage) bool {
	if msg.Error != nil {
		reason := msg.Error.Message
		if reason == "" {
			reason = "unknown error"
		}
		s.finish(live.Event{Kind: live.KindErrored, Err: fmt.Errorf("gemini: %s", reason)})
		return true
	}

	if msg.SetupComplete != nil {
		s.mu.Lock()
		if s.status == live.StatusConnecting {
			s.status = live.StatusOpen
		}
		s.mu.Unlock()
		s.emit(live.Event{Kind: live.KindOpened})
	}

	if msg.ServerContent != nil {
		s.handleServerContent(msg.ServerContent)
	}
	return false
}

func (s *session) handleServerContent(sc *serverContent) {
	delta := live.ContentDelta{TurnComplete: sc.TurnComplete}
	if sc.InputTranscription != nil {
		delta.InputText = sc.InputTranscription.Text
	}
	if sc.OutputTranscription != nil {
		delta.OutputText = sc.OutputTranscription.Text
	}
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData != nil && p.InlineData.Data != "" {
				delta.AudioPayload = p.InlineData.Data
				break // one audio part per message in practice
			}
		}
	}

	if delta != (live.ContentDelta{}) {
		s.emit(live.Event{Kind: live.KindContent, Content: delta})
	}

	// Delivered after any content so that a delta arriving in the same
	// message is accumulated before the interruption flush.
	if sc.Interrupted {
		s.emit(live.Event{Kind: live.KindInterrupted})
	}
}

// emit delivers a non-terminal event, dropping it if the session winds down
// concurrently.
func (s *session) emit(ev live.Event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

// finish records the terminal status, delivers the terminal event and closes
// the events channel. Called exactly once, from the receive loop.
func (s *session) finish(ev live.Event) {
	s.mu.Lock()
	switch ev.Kind {
	case live.KindErrored:
		s.status = live.StatusErrored
	default:
		s.status = live.StatusClosed
	}
	s.mu.Unlock()

	s.events <- ev
	close(s.events)
}

// keepaliveLoop sends WebSocket pings to keep the Live connection alive.
func (s *session) keepaliveLoop() {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(s.ctx, keepaliveTimeout)
			_ = s.conn.Ping(pingCtx)
			cancel()
		}
	}
}

// ── live.Session methods ──────────────────────────────────────────────────────

// Send delivers one encoded capture frame as a realtimeInput message. Frames
// are dropped without error unless the session is Open.
func (s *session) Send(frame audio.EncodedFrame) error {
	s.mu.Lock()
	open := s.status == live.StatusOpen && !s.closed
	s.mu.Unlock()
	if !open {
		return nil
	}

	msg := realtimeInputMessage{
		RealtimeInput: realtimeInput{
			MediaChunks: []mediaChunk{
				{MIMEType: frame.MIMEType, Data: frame.Payload},
			},
		},
	}
	if err := s.writeJSON(msg); err != nil {
		return fmt.Errorf("gemini: send frame: %w", err)
	}
	return nil
}

// Events returns the normalized event stream.
func (s *session) Events() <-chan live.Event { return s.events }

// Status returns the current lifecycle state.
func (s *session) Status() live.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Close terminates the session and releases all resources. Idempotent.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.closeOnce.Do(func() {
		s.cancel()    // unblocks receiveLoop and keepaliveLoop
		close(s.done) // signals keepaliveLoop via done channel
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}
