package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/khushidubeyokok/AMD/internal/logger"
	"github.com/khushidubeyokok/AMD/internal/voice"
)

// errNotAttached is returned when synthesis is requested before a client
// websocket has connected to the session.
var errNotAttached = errors.New("no client attached")

// speakAckTimeout bounds how long Speak waits for the client to confirm that
// playback finished. A client that never acks should not wedge the channel.
const speakAckTimeout = 60 * time.Second

// wsMessage is the JSON frame exchanged with the client. Binary frames carry
// raw PCM in server-provider mode.
type wsMessage struct {
	Type  string `json:"type"`
	ID    int64  `json:"id,omitempty"`
	Text  string `json:"text,omitempty"`
	Final bool   `json:"final,omitempty"`
	State string `json:"state,omitempty"`
}

// wsBridge adapts a client websocket into the voice channel's capabilities.
// In host mode the client runs recognition and synthesis locally: inbound
// fragment frames become recognition results and speak frames are played by
// the client, which acks with speech_end. In server mode the bridge only
// relays PCM in and synthesized audio out.
type wsBridge struct {
	log     *logger.Logger
	onAudio func([]byte)

	mu        sync.Mutex
	writeMu   sync.Mutex // gorilla allows one concurrent writer
	conn      *websocket.Conn
	listening bool
	speakID   int64
	acks      map[int64]chan struct{}
	closed    bool

	sendMu     sync.RWMutex // guards sends against close of results/errs
	sendClosed bool
	results    chan voice.Fragment
	errs       chan error
}

func newWSBridge(log *logger.Logger) *wsBridge {
	if log == nil {
		log = logger.NewNop()
	}
	return &wsBridge{
		log:     log,
		acks:    make(map[int64]chan struct{}),
		results: make(chan voice.Fragment, 64),
		errs:    make(chan error, 8),
	}
}

// Attach binds a client connection, replacing any previous one.
func (b *wsBridge) Attach(conn *websocket.Conn) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = conn.Close()
		return
	}
	if b.conn != nil {
		_ = b.conn.Close()
	}
	b.conn = conn
	b.mu.Unlock()
	go b.readLoop(conn)
}

// Start begins a listening turn. The client is told so it can start local
// recognition or open the microphone stream.
func (b *wsBridge) Start() error {
	b.mu.Lock()
	b.listening = true
	b.mu.Unlock()
	b.send(wsMessage{Type: "listen_start"})
	return nil
}

// Stop ends the listening turn.
func (b *wsBridge) Stop() error {
	b.mu.Lock()
	b.listening = false
	b.mu.Unlock()
	b.send(wsMessage{Type: "listen_stop"})
	return nil
}

func (b *wsBridge) Results() <-chan voice.Fragment { return b.results }
func (b *wsBridge) Errors() <-chan error           { return b.errs }

// Close detaches the client and closes the result streams.
func (b *wsBridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	conn := b.conn
	b.conn = nil
	for id, ch := range b.acks {
		close(ch)
		delete(b.acks, id)
	}
	b.mu.Unlock()
	b.sendMu.Lock()
	b.sendClosed = true
	close(b.results)
	close(b.errs)
	b.sendMu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	return nil
}

// Speak asks the client to play text and blocks until the client acks the end
// of playback, ctx is cancelled, or the ack deadline passes.
func (b *wsBridge) Speak(ctx context.Context, text string) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errNotAttached
	}
	if b.conn == nil {
		b.mu.Unlock()
		return errNotAttached
	}
	b.speakID++
	id := b.speakID
	ack := make(chan struct{})
	b.acks[id] = ack
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.acks, id)
		b.mu.Unlock()
	}()

	b.send(wsMessage{Type: "speak", ID: id, Text: text})

	select {
	case <-ctx.Done():
		b.send(wsMessage{Type: "speak_cancel", ID: id})
		return ctx.Err()
	case <-ack:
		return nil
	case <-time.After(speakAckTimeout):
		b.log.Warn("speak ack timed out", "id", id)
		return nil
	}
}

// NotifyState tells the client about channel state transitions.
func (b *wsBridge) NotifyState(s voice.State) {
	b.send(wsMessage{Type: "state", State: s.String()})
}

// WriteBinary ships a synthesized PCM chunk to the client.
func (b *wsBridge) WriteBinary(pcm []byte) {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return
	}
	b.writeMu.Lock()
	err := conn.WriteMessage(websocket.BinaryMessage, pcm)
	b.writeMu.Unlock()
	if err != nil {
		b.log.Debug("binary write failed", "err", err)
	}
}

func (b *wsBridge) send(msg wsMessage) {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return
	}
	b.writeMu.Lock()
	err := conn.WriteJSON(msg)
	b.writeMu.Unlock()
	if err != nil {
		b.log.Debug("ws write failed", "type", msg.Type, "err", err)
	}
}

func (b *wsBridge) readLoop(conn *websocket.Conn) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			b.mu.Lock()
			current := b.conn == conn
			if current {
				b.conn = nil
			}
			closed := b.closed
			b.mu.Unlock()
			// A replaced or torn-down connection is not a recognition error.
			if current && !closed {
				b.fail(fmt.Errorf("client stream: %w", err))
			}
			return
		}
		if mt == websocket.BinaryMessage {
			if b.onAudio != nil {
				b.onAudio(data)
			}
			continue
		}
		b.handleFrame(data)
	}
}

func (b *wsBridge) handleFrame(data []byte) {
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		b.log.Warn("bad client frame", "err", err)
		return
	}
	switch msg.Type {
	case "fragment":
		if msg.Text == "" {
			return
		}
		b.emit(voice.Fragment{Text: msg.Text, Final: msg.Final})
	case "speech_end":
		b.mu.Lock()
		ack := b.acks[msg.ID]
		delete(b.acks, msg.ID)
		b.mu.Unlock()
		if ack != nil {
			close(ack)
		}
	case "ping":
		b.send(wsMessage{Type: "pong"})
	default:
		b.log.Debug("unknown client frame", "type", msg.Type)
	}
}

func (b *wsBridge) emit(f voice.Fragment) {
	b.sendMu.RLock()
	defer b.sendMu.RUnlock()
	if b.sendClosed {
		return
	}
	select {
	case b.results <- f:
	default:
		b.log.Debug("fragment buffer full, dropping")
	}
}

func (b *wsBridge) fail(err error) {
	b.sendMu.RLock()
	defer b.sendMu.RUnlock()
	if b.sendClosed {
		return
	}
	select {
	case b.errs <- err:
	default:
	}
}
