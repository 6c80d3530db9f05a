package gemini_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/legalsathi/sathi/pkg/audio"
	"github.com/legalsathi/sathi/pkg/provider/live"
	"github.com/legalsathi/sathi/pkg/provider/live/gemini"
)

// ── Helpers ───────────────────────────────────────────────────────────────────

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startLiveServer launches a test WebSocket server. The handler function
// receives the accepted *websocket.Conn. The server is automatically closed
// when the test finishes.
func startLiveServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// readJSON reads one WebSocket text frame and decodes it into v.
func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("readJSON: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("readJSON unmarshal: %v", err)
	}
}

// writeJSON marshals v and sends it as a text frame.
func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, _ := json.Marshal(v)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Logf("writeJSON: %v (may be expected on close)", err)
	}
}

// sendSetupComplete sends the server-side setupComplete ack.
func sendSetupComplete(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	writeJSON(t, conn, map[string]any{"setupComplete": map[string]any{}})
}

// newProvider creates a Provider pointing at the given test server.
func newProvider(t *testing.T, srv *httptest.Server) *gemini.Provider {
	t.Helper()
	p, err := gemini.New("test-api-key", gemini.WithBaseURL(wsURL(srv)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

// nextEvent waits for the next event with a timeout.
func nextEvent(t *testing.T, sess live.Session) live.Event {
	t.Helper()
	select {
	case ev, ok := <-sess.Events():
		if !ok {
			t.Fatal("events channel closed unexpectedly")
		}
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
		panic("unreachable")
	}
}

// ── Tests ─────────────────────────────────────────────────────────────────────

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := gemini.New(""); err == nil {
		t.Fatal("New(\"\") succeeded, want error")
	}
}

func TestConnect_SetupMessage(t *testing.T) {
	t.Parallel()

	setupCh := make(chan map[string]any, 1)
	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var msg map[string]any
		readJSON(t, conn, &msg)
		setupCh <- msg
		sendSetupComplete(t, conn)
		<-conn.CloseRead(context.Background()).Done()
	})

	p := newProvider(t, srv)
	sess, err := p.Connect(context.Background(), live.SessionConfig{
		Instructions: "You are a legal assistant. Respond in Hindi (Devanagari).",
		Voice:        "Zephyr",
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	msg := <-setupCh
	setup, ok := msg["setup"].(map[string]any)
	if !ok {
		t.Fatalf("no setup object in %v", msg)
	}
	if got := setup["model"]; got != "models/gemini-2.5-flash-native-audio-preview-09-2025" {
		t.Errorf("model = %v", got)
	}
	gen := setup["generationConfig"].(map[string]any)
	mods := gen["responseModalities"].([]any)
	if len(mods) != 1 || mods[0] != "AUDIO" {
		t.Errorf("responseModalities = %v, want [AUDIO]", mods)
	}
	if _, ok := setup["inputAudioTranscription"]; !ok {
		t.Error("inputAudioTranscription not requested")
	}
	if _, ok := setup["outputAudioTranscription"]; !ok {
		t.Error("outputAudioTranscription not requested")
	}
	si := setup["systemInstruction"].(map[string]any)
	parts := si["parts"].([]any)
	text := parts[0].(map[string]any)["text"].(string)
	if !strings.Contains(text, "Respond in Hindi") {
		t.Errorf("system instruction = %q", text)
	}
}

func TestSession_OpenedOnSetupComplete(t *testing.T) {
	t.Parallel()

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var msg map[string]any
		readJSON(t, conn, &msg)
		sendSetupComplete(t, conn)
		<-conn.CloseRead(context.Background()).Done()
	})

	sess, err := newProvider(t, srv).Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	if got := sess.Status(); got != live.StatusConnecting {
		t.Errorf("Status before ack = %v, want connecting", got)
	}
	if ev := nextEvent(t, sess); ev.Kind != live.KindOpened {
		t.Fatalf("first event = %v, want KindOpened", ev.Kind)
	}
	if got := sess.Status(); got != live.StatusOpen {
		t.Errorf("Status after ack = %v, want open", got)
	}
}

func TestSession_DropsFramesWhileConnecting(t *testing.T) {
	t.Parallel()

	gotFrame := make(chan struct{}, 1)
	release := make(chan struct{})
	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		<-release // hold the ack so the session stays in Connecting
		sendSetupComplete(t, conn)

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if _, _, err := conn.Read(ctx); err == nil {
			gotFrame <- struct{}{}
		}
	})

	sess, err := newProvider(t, srv).Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	// Sent while Connecting: must be dropped, not buffered.
	if err := sess.Send(audio.EncodeFrame(make([]float32, 16))); err != nil {
		t.Fatalf("Send while connecting: %v", err)
	}
	close(release)
	if ev := nextEvent(t, sess); ev.Kind != live.KindOpened {
		t.Fatalf("event = %v, want KindOpened", ev.Kind)
	}

	// Sent while Open: must reach the server.
	if err := sess.Send(audio.EncodeFrame(make([]float32, 16))); err != nil {
		t.Fatalf("Send while open: %v", err)
	}
	select {
	case <-gotFrame:
	case <-time.After(3 * time.Second):
		t.Fatal("open-session frame never reached the server")
	}
}

func TestSession_SendWireFormat(t *testing.T) {
	t.Parallel()

	frameCh := make(chan map[string]any, 1)
	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		sendSetupComplete(t, conn)
		var msg map[string]any
		readJSON(t, conn, &msg)
		frameCh <- msg
	})

	sess, err := newProvider(t, srv).Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()
	nextEvent(t, sess) // Opened

	samples := []float32{0.25, -0.25, 1, -1}
	if err := sess.Send(audio.EncodeFrame(samples)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	msg := <-frameCh
	ri := msg["realtimeInput"].(map[string]any)
	chunks := ri["mediaChunks"].([]any)
	if len(chunks) != 1 {
		t.Fatalf("mediaChunks = %d entries, want 1", len(chunks))
	}
	chunk := chunks[0].(map[string]any)
	if got := chunk["mimeType"]; got != "audio/pcm;rate=16000" {
		t.Errorf("mimeType = %v", got)
	}
	raw, err := base64.StdEncoding.DecodeString(chunk["data"].(string))
	if err != nil || len(raw) != len(samples)*2 {
		t.Errorf("payload = %d bytes (err %v), want %d", len(raw), err, len(samples)*2)
	}
}

func TestSession_ContentNormalization(t *testing.T) {
	t.Parallel()

	pcm := base64.StdEncoding.EncodeToString(make([]byte, 480))
	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		sendSetupComplete(t, conn)

		writeJSON(t, conn, map[string]any{"serverContent": map[string]any{
			"inputTranscription": map[string]any{"text": "namaste"},
		}})
		writeJSON(t, conn, map[string]any{"serverContent": map[string]any{
			"outputTranscription": map[string]any{"text": "Hello"},
			"modelTurn": map[string]any{
				"parts": []any{map[string]any{
					"inlineData": map[string]any{"mimeType": "audio/pcm;rate=24000", "data": pcm},
				}},
			},
		}})
		writeJSON(t, conn, map[string]any{"serverContent": map[string]any{
			"turnComplete": true,
		}})
		writeJSON(t, conn, map[string]any{"serverContent": map[string]any{
			"interrupted": true,
		}})
		<-conn.CloseRead(context.Background()).Done()
	})

	sess, err := newProvider(t, srv).Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()
	nextEvent(t, sess) // Opened

	ev := nextEvent(t, sess)
	if ev.Kind != live.KindContent || ev.Content.InputText != "namaste" {
		t.Fatalf("event 1 = %+v, want input transcription delta", ev)
	}

	ev = nextEvent(t, sess)
	if ev.Kind != live.KindContent || ev.Content.OutputText != "Hello" || ev.Content.AudioPayload != pcm {
		t.Fatalf("event 2 = %+v, want output text + audio", ev)
	}
	if ev.Content.TurnComplete {
		t.Error("event 2 has TurnComplete set")
	}

	ev = nextEvent(t, sess)
	if ev.Kind != live.KindContent || !ev.Content.TurnComplete {
		t.Fatalf("event 3 = %+v, want turn-complete delta", ev)
	}

	if ev = nextEvent(t, sess); ev.Kind != live.KindInterrupted {
		t.Fatalf("event 4 = %v, want KindInterrupted", ev.Kind)
	}
}

func TestSession_ServerErrorIsTerminal(t *testing.T) {
	t.Parallel()

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		sendSetupComplete(t, conn)
		writeJSON(t, conn, map[string]any{"error": map[string]any{
			"code": 8, "message": "quota exceeded",
		}})
		<-conn.CloseRead(context.Background()).Done()
	})

	sess, err := newProvider(t, srv).Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()
	nextEvent(t, sess) // Opened

	ev := nextEvent(t, sess)
	if ev.Kind != live.KindErrored {
		t.Fatalf("event = %v, want KindErrored", ev.Kind)
	}
	if ev.Err == nil || !strings.Contains(ev.Err.Error(), "quota exceeded") {
		t.Errorf("Err = %v, want remote reason", ev.Err)
	}
	if got := sess.Status(); got != live.StatusErrored {
		t.Errorf("Status = %v, want errored", got)
	}

	if _, ok := <-sess.Events(); ok {
		t.Error("events channel still open after terminal event")
	}
}

func TestSession_RemoteClose(t *testing.T) {
	t.Parallel()

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		sendSetupComplete(t, conn)
		conn.Close(websocket.StatusNormalClosure, "bye")
	})

	sess, err := newProvider(t, srv).Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()
	nextEvent(t, sess) // Opened

	if ev := nextEvent(t, sess); ev.Kind != live.KindClosed {
		t.Fatalf("event = %v, want KindClosed", ev.Kind)
	}
	if got := sess.Status(); got != live.StatusClosed {
		t.Errorf("Status = %v, want closed", got)
	}
}

func TestSession_CloseIdempotent(t *testing.T) {
	t.Parallel()

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		sendSetupComplete(t, conn)
		<-conn.CloseRead(context.Background()).Done()
	})

	sess, err := newProvider(t, srv).Connect(context.Background(), live.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	nextEvent(t, sess)

	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	// Terminal event then channel close.
	for ev := range sess.Events() {
		if ev.Kind != live.KindClosed {
			t.Errorf("post-close event = %v, want KindClosed", ev.Kind)
		}
	}

	// Send after close is a silent drop.
	if err := sess.Send(audio.EncodeFrame(make([]float32, 8))); err != nil {
		t.Errorf("Send after close: %v", err)
	}
}
