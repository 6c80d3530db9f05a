// Package wsbridge adapts one browser WebSocket connection into the audio
// pipeline's Source and Sink roles.
//
// The browser acts as the physical microphone and speaker; the bridge speaks
// a small JSON protocol over the socket:
//
//	client → server: {"type":"start"}                          mic granted, audio follows
//	                 {"type":"audio","data":"<base64 pcm16>"}  one mic block at 16kHz
//	                 {"type":"denied"}                         mic permission refused
//	                 {"type":"stop"}                           client ended capture
//	server → client: {"type":"audio","data":"<base64 pcm16>"}  one playback chunk at 24kHz
//	                 {"type":"interrupted"}                    discard buffered playback
//	                 {"type":"state","state":"..."}            session state change
//	                 {"type":"transcript","role":"...","text":"..."}
//	                 {"type":"error","text":"..."}             session failed, user-facing message
//
// Outbound messages are queued and written by a dedicated goroutine, so the
// Send methods never block on a slow client. When the queue is full the
// message is dropped.
package wsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/legalsathi/sathi/pkg/audio"
	"github.com/legalsathi/sathi/pkg/audio/capture"
	"github.com/legalsathi/sathi/pkg/audio/playback"
)

// Compile-time assertion that Bridge satisfies capture.Source.
var _ capture.Source = (*Bridge)(nil)

// blockBuf bounds how many undelivered mic blocks may queue before the read
// loop drops them.
const blockBuf = 32

// outBuf bounds the outbound message queue.
const outBuf = 64

// writeTimeout caps how long a single outbound write may stall.
const writeTimeout = 10 * time.Second

type message struct {
	Type  string `json:"type"`
	Data  string `json:"data,omitempty"`
	State string `json:"state,omitempty"`
	Role  string `json:"role,omitempty"`
	Text  string `json:"text,omitempty"`
}

// Bridge owns one client WebSocket connection. It implements
// [capture.Source] for the inbound mic stream and exposes a [playback.Sink]
// via [Bridge.Sink] for the outbound model audio.
type Bridge struct {
	conn *websocket.Conn
	sink *playback.StreamSink

	out        chan message
	writerDone chan struct{}

	mu     sync.Mutex
	closed bool
	blocks chan []float32
	cancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// New wraps an accepted WebSocket connection and starts the outbound writer.
func New(conn *websocket.Conn) *Bridge {
	b := &Bridge{
		conn:       conn,
		out:        make(chan message, outBuf),
		writerDone: make(chan struct{}),
	}
	b.sink = playback.NewStreamSink(func(chunk audio.PlaybackChunk) {
		b.sendAudio(chunk)
	})
	go b.writeLoop()
	return b
}

// Sink returns the playback sink that streams model audio to the client.
func (b *Bridge) Sink() playback.Sink { return b.sink }

// Start implements [capture.Source]. It performs the capture handshake: the
// first message must be either "start" (mic granted) or "denied", which maps
// to [capture.ErrPermissionDenied]. After a successful handshake the read
// loop decodes incoming audio messages into sample blocks.
func (b *Bridge) Start(ctx context.Context) (<-chan []float32, error) {
	msg, err := b.read(ctx)
	if err != nil {
		return nil, fmt.Errorf("wsbridge: handshake: %w", err)
	}
	switch msg.Type {
	case "start":
	case "denied":
		return nil, capture.ErrPermissionDenied
	default:
		return nil, fmt.Errorf("wsbridge: unexpected handshake message %q", msg.Type)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	blocks := make(chan []float32, blockBuf)

	b.mu.Lock()
	b.blocks = blocks
	b.cancel = cancel
	b.mu.Unlock()

	go b.readLoop(loopCtx, blocks)
	return blocks, nil
}

// readLoop decodes mic audio until the client stops, the connection drops or
// the stream is stopped.
func (b *Bridge) readLoop(ctx context.Context, blocks chan<- []float32) {
	defer close(blocks)

	for {
		msg, err := b.read(ctx)
		if err != nil {
			return
		}
		switch msg.Type {
		case "audio":
			chunk, err := audio.DecodeChunk(msg.Data, audio.InputSampleRate, 1)
			if err != nil {
				continue // malformed block, keep the stream alive
			}
			select {
			case blocks <- chunk.Data[0]:
			default:
				// Client is outrunning the consumer; drop the block.
			}
		case "stop":
			return
		}
	}
}

// Stop implements [capture.Source]. It ends the inbound stream; the
// WebSocket connection itself stays open for playback until [Bridge.Close].
func (b *Bridge) Stop() error {
	b.mu.Lock()
	cancel := b.cancel
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// SendState notifies the client of a session state change.
func (b *Bridge) SendState(state string) {
	b.send(message{Type: "state", State: state})
}

// SendTranscript pushes one finished transcript entry to the client.
func (b *Bridge) SendTranscript(role, text string) {
	b.send(message{Type: "transcript", Role: role, Text: text})
}

// SendInterrupted tells the client to discard any locally buffered playback.
func (b *Bridge) SendInterrupted() {
	b.send(message{Type: "interrupted"})
}

// SendError forwards a user-facing failure message to the client.
func (b *Bridge) SendError(text string) {
	b.send(message{Type: "error", Text: text})
}

// Close drains the outbound queue, then closes the sink and the underlying
// connection. Safe to call multiple times.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()

		close(b.out)
		<-b.writerDone

		b.closeErr = errors.Join(
			b.sink.Close(),
			b.conn.Close(websocket.StatusNormalClosure, "session ended"),
		)
	})
	return b.closeErr
}

func (b *Bridge) sendAudio(chunk audio.PlaybackChunk) {
	if len(chunk.Data) == 0 {
		return
	}
	frame := audio.EncodeFrame(chunk.Data[0])
	b.send(message{Type: "audio", Data: frame.Payload})
}

// send enqueues one outbound message. A full queue drops the message rather
// than stalling the caller.
func (b *Bridge) send(msg message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	select {
	case b.out <- msg:
	default:
	}
}

// writeLoop is the only goroutine that touches the connection's write side.
// Write failures also surface on the read loop, so the queue keeps draining.
func (b *Bridge) writeLoop() {
	defer close(b.writerDone)

	for msg := range b.out {
		data, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		_ = b.conn.Write(ctx, websocket.MessageText, data)
		cancel()
	}
}

func (b *Bridge) read(ctx context.Context) (message, error) {
	_, data, err := b.conn.Read(ctx)
	if err != nil {
		return message{}, err
	}
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return message{}, fmt.Errorf("wsbridge: decode message: %w", err)
	}
	return msg, nil
}
