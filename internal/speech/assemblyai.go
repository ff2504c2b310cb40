// Package speech provides server-side recognition and synthesis providers
// for deployments where the client streams raw audio instead of running
// recognition locally.
package speech

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/khushidubeyokok/AMD/internal/logger"
	"github.com/khushidubeyokok/AMD/internal/voice"
)

// silenceThreshold is the inactivity window required before an utterance is
// considered finished. Conservative to avoid cutting the learner mid-sentence.
const silenceThreshold = 700 * time.Millisecond

// continuationExtension is added to the silence threshold when the last word
// suggests the learner will keep going ("and", "because", "with", ...).
const continuationExtension = 1200 * time.Millisecond

const assemblyAIEndpoint = "wss://streaming.assemblyai.com/v3/ws"

// AssemblyAI is a streaming recognizer over the AssemblyAI realtime API.
// The host feeds 16 kHz 16-bit little-endian mono PCM through Feed; interim
// transcripts surface as non-final fragments and an inactivity timer commits
// the final delta.
type AssemblyAI struct {
	apiKey string
	log    *logger.Logger

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	listening bool

	results chan voice.Fragment
	errs    chan error
	audio   chan []byte
	stop    chan struct{}
	once    sync.Once

	// sendMu orders fragment and error sends against channel close.
	sendMu     sync.RWMutex
	sendClosed bool

	accMu      sync.Mutex
	latest     string
	committed  string
	lastUpdate time.Time
	lastVoice  time.Time
	silence    *time.Timer
}

type aaiTurnMessage struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript"`
}

type aaiErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// NewAssemblyAI builds the recognizer. The connection is dialed on the first
// call to Start.
func NewAssemblyAI(apiKey string, log *logger.Logger) (*AssemblyAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("assemblyai: %w", voice.ErrUnsupported)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &AssemblyAI{
		apiKey:  apiKey,
		log:     log,
		results: make(chan voice.Fragment, 64),
		errs:    make(chan error, 8),
		audio:   make(chan []byte, 256),
		stop:    make(chan struct{}),
	}, nil
}

// Results streams recognition fragments for the recognizer's lifetime.
func (a *AssemblyAI) Results() <-chan voice.Fragment { return a.results }

// Errors surfaces connection and protocol failures.
func (a *AssemblyAI) Errors() <-chan error { return a.errs }

// Start begins a listening turn, dialing the stream on first use.
func (a *AssemblyAI) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listening {
		return nil
	}
	if !a.connected {
		if err := a.connectLocked(); err != nil {
			return err
		}
	}
	a.listening = true
	return nil
}

// Stop ends the listening turn. The stream stays open for the next turn;
// fragments are simply not forwarded while stopped.
func (a *AssemblyAI) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listening = false
	return nil
}

func (a *AssemblyAI) connectLocked() error {
	params := url.Values{}
	params.Set("sample_rate", "16000")
	params.Set("format_turns", "false")
	params.Set("encoding", "pcm_s16le")

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	headers := map[string][]string{"Authorization": {a.apiKey}}
	conn, resp, err := dialer.Dial(assemblyAIEndpoint+"?"+params.Encode(), headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("assemblyai dial: status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("assemblyai dial: %w", err)
	}
	a.conn = conn
	a.connected = true
	now := time.Now()
	a.accMu.Lock()
	a.lastUpdate = now
	a.lastVoice = now
	a.accMu.Unlock()

	go a.readLoop(conn)
	go a.writeLoop(conn)
	a.log.Info("assemblyai stream connected")
	return nil
}

// Feed queues one PCM chunk for the stream. Chunks are dropped rather than
// blocking the audio path when the buffer is full.
func (a *AssemblyAI) Feed(pcm []byte) error {
	a.mu.RLock()
	connected, listening := a.connected, a.listening
	a.mu.RUnlock()
	if !connected || !listening {
		return nil
	}
	a.detectVoiceActivity(pcm)
	select {
	case a.audio <- pcm:
	default:
		a.log.Debug("assemblyai audio buffer full, dropping chunk")
	}
	return nil
}

// detectVoiceActivity tracks the last time the PCM carried voice energy, so
// silence finalization waits for actual quiet rather than just transcript
// inactivity.
func (a *AssemblyAI) detectVoiceActivity(pcm []byte) {
	const minSamples = 160 // 10ms at 16kHz
	if len(pcm) < minSamples*2 {
		return
	}
	step := 2
	if len(pcm) > 3200 {
		step = 4
	}
	var sumSquares float64
	count := 0
	for i := 0; i+1 < len(pcm); i += 2 * step {
		v := int16(binary.LittleEndian.Uint16(pcm[i : i+2]))
		sumSquares += float64(v) * float64(v)
		count++
	}
	if count == 0 {
		return
	}
	const voiceRMS = 250.0
	if math.Sqrt(sumSquares/float64(count)) >= voiceRMS {
		a.accMu.Lock()
		a.lastVoice = time.Now()
		a.accMu.Unlock()
	}
}

// Close terminates the stream and closes the fragment channels.
func (a *AssemblyAI) Close() error {
	a.once.Do(func() {
		a.mu.Lock()
		close(a.stop)
		a.accMu.Lock()
		if a.silence != nil {
			a.silence.Stop()
			a.silence = nil
		}
		a.accMu.Unlock()
		if a.conn != nil {
			_ = a.conn.WriteJSON(map[string]string{"type": "Terminate"})
			_ = a.conn.Close()
		}
		a.connected = false
		a.listening = false
		a.conn = nil
		a.mu.Unlock()
		a.sendMu.Lock()
		a.sendClosed = true
		close(a.results)
		close(a.errs)
		a.sendMu.Unlock()
	})
	return nil
}

func (a *AssemblyAI) readLoop(conn *websocket.Conn) {
	for {
		select {
		case <-a.stop:
			return
		default:
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			a.fail(fmt.Errorf("assemblyai read: %w", err))
			return
		}
		a.handleMessage(message)
	}
}

func (a *AssemblyAI) handleMessage(message []byte) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &head); err != nil {
		a.log.Warn("assemblyai message parse failed", "err", err)
		return
	}
	switch head.Type {
	case "Begin":
		a.log.Debug("assemblyai session began")
	case "Turn":
		var msg aaiTurnMessage
		if err := json.Unmarshal(message, &msg); err != nil || msg.Transcript == "" {
			return
		}
		a.mu.RLock()
		listening := a.listening
		a.mu.RUnlock()
		if !listening {
			return
		}
		a.emit(voice.Fragment{Text: msg.Transcript, Final: false})
		a.accMu.Lock()
		a.latest = msg.Transcript
		a.lastUpdate = time.Now()
		if a.silence == nil {
			a.silence = time.AfterFunc(silenceThreshold, a.finalizeDueToSilence)
		} else {
			a.silence.Stop()
			a.silence.Reset(silenceThreshold)
		}
		a.accMu.Unlock()
	case "Termination":
		a.flushPendingDelta()
	case "Error":
		var msg aaiErrorMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			return
		}
		a.fail(fmt.Errorf("assemblyai: %s", msg.Error))
	}
}

// finalizeDueToSilence fires after the inactivity window and emits the delta
// since the last committed transcript as a final fragment. When the last word
// looks like a continuation the window is extended and the timer rescheduled.
func (a *AssemblyAI) finalizeDueToSilence() {
	select {
	case <-a.stop:
		return
	default:
	}

	a.accMu.Lock()
	now := time.Now()
	threshold := silenceThreshold
	if isContinuationLikely(a.latest) {
		threshold += continuationExtension
	}
	sinceText := now.Sub(a.lastUpdate)
	sinceVoice := now.Sub(a.lastVoice)
	if sinceText < threshold || sinceVoice < threshold {
		wait := threshold
		if rem := threshold - sinceText; sinceText < threshold && rem < wait {
			wait = rem
		}
		if rem := threshold - sinceVoice; sinceVoice < threshold && rem < wait {
			wait = rem
		}
		if wait < 10*time.Millisecond {
			wait = 10 * time.Millisecond
		}
		if a.silence == nil {
			a.silence = time.AfterFunc(wait, a.finalizeDueToSilence)
		} else {
			a.silence.Stop()
			a.silence.Reset(wait)
		}
		a.accMu.Unlock()
		return
	}
	delta := commitDelta(&a.committed, a.latest)
	a.accMu.Unlock()

	if delta != "" {
		a.emit(voice.Fragment{Text: delta, Final: true})
	}
}

func (a *AssemblyAI) flushPendingDelta() {
	a.accMu.Lock()
	delta := commitDelta(&a.committed, a.latest)
	a.accMu.Unlock()
	if delta != "" {
		a.emit(voice.Fragment{Text: delta, Final: true})
	}
}

// commitDelta advances committed to latest and returns the trailing text that
// had not been committed yet.
func commitDelta(committed *string, latest string) string {
	base := *committed
	delta := strings.TrimSpace(strings.TrimPrefix(latest, base))
	if delta == "" && base != "" {
		if idx := strings.LastIndex(latest, base); idx >= 0 {
			delta = strings.TrimSpace(latest[idx+len(base):])
		}
	}
	*committed = latest
	return delta
}

func (a *AssemblyAI) emit(f voice.Fragment) {
	a.sendMu.RLock()
	defer a.sendMu.RUnlock()
	if a.sendClosed {
		return
	}
	select {
	case a.results <- f:
	default:
	}
}

func (a *AssemblyAI) fail(err error) {
	a.sendMu.RLock()
	defer a.sendMu.RUnlock()
	if a.sendClosed {
		return
	}
	select {
	case a.errs <- err:
	default:
	}
}

func (a *AssemblyAI) writeLoop(conn *websocket.Conn) {
	for {
		select {
		case <-a.stop:
			return
		case pcm := <-a.audio:
			if err := conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
				a.fail(fmt.Errorf("assemblyai write: %w", err))
				return
			}
		}
	}
}

// isContinuationLikely reports whether the last meaningful word suggests the
// speaker is mid-sentence.
func isContinuationLikely(text string) bool {
	trim := strings.TrimSpace(text)
	if trim == "" {
		return false
	}
	fields := strings.FieldsFunc(trim, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	})
	if len(fields) == 0 {
		return false
	}
	_, ok := continuationWords[strings.ToLower(fields[len(fields)-1])]
	return ok
}

var continuationWords = map[string]struct{}{
	"and": {}, "or": {}, "but": {}, "nor": {}, "yet": {}, "so": {},
	"if": {}, "when": {}, "while": {}, "though": {}, "although": {},
	"because": {}, "since": {}, "unless": {}, "until": {}, "whereas": {},
	"also": {}, "plus": {}, "um": {}, "uh": {}, "like": {},
	"about": {}, "with": {}, "to": {}, "of": {}, "for": {}, "on": {}, "in": {}, "at": {},
}
