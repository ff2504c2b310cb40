package voice

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/khushidubeyokok/AMD/internal/logger"
)

// ErrUnsupported is reported at construction when the platform cannot provide
// recognition or synthesis. Callers should degrade to a non-voice mode.
var ErrUnsupported = errors.New("voice: recognition or synthesis unsupported")

// State is the channel's interaction state. Exactly one holds at any instant.
type State int

const (
	StateIdle State = iota
	StateListening
	StateSpeaking
)

func (s State) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateSpeaking:
		return "speaking"
	default:
		return "idle"
	}
}

// Fragment is one raw recognition result chunk. Only final fragments are
// candidates for utterance emission.
type Fragment struct {
	Text  string
	Final bool
}

// Utterance is one deduplicated, debounced block of recognized speech
// attributed to a single learner turn.
type Utterance struct {
	Text       string
	ReceivedAt time.Time
}

// Recognizer is a platform recognition source. Start begins a listening turn,
// Stop ends it; Results stays open for the recognizer's lifetime.
type Recognizer interface {
	Start() error
	Stop() error
	Results() <-chan Fragment
	Errors() <-chan error
	Close() error
}

// Synthesizer speaks text. Speak blocks until playback completes, the context
// is cancelled, or an error occurs.
type Synthesizer interface {
	Speak(ctx context.Context, text string) error
}

// EventKind tags channel events.
type EventKind int

const (
	EventState EventKind = iota
	EventRecognitionError
	EventSynthesisError
)

// Event is a state transition or surfaced channel error.
type Event struct {
	Kind  EventKind
	State State
	Err   error
}

// Channel wraps a recognition source and a synthesis sink behind one
// mutually-exclusive interaction state. It never disables the microphone
// while speaking; consumers are expected to gate on State instead, which is
// what keeps the engine from transcribing its own voice.
type Channel struct {
	rec Recognizer
	syn Synthesizer
	log *logger.Logger

	mu       sync.Mutex
	micOpen  bool // a listening turn is active
	speaking bool
	speakGen uint64
	cancel   context.CancelFunc
	closed   bool

	fragments chan Fragment
	events    chan Event
	done      chan struct{}
}

// NewChannel builds a channel over the given capabilities. A nil recognizer
// or synthesizer means the platform lacks voice support.
func NewChannel(rec Recognizer, syn Synthesizer, log *logger.Logger) (*Channel, error) {
	if rec == nil || syn == nil {
		return nil, ErrUnsupported
	}
	if log == nil {
		log = logger.NewNop()
	}
	c := &Channel{
		rec:       rec,
		syn:       syn,
		log:       log,
		fragments: make(chan Fragment, 32),
		events:    make(chan Event, 32),
		done:      make(chan struct{}),
	}
	go c.pump()
	return c, nil
}

// Fragments streams raw recognition chunks. Delivered regardless of state;
// downstream debouncing applies the listening/speaking gate.
func (c *Channel) Fragments() <-chan Fragment { return c.fragments }

// Events streams state transitions and surfaced channel errors.
func (c *Channel) Events() <-chan Event { return c.events }

// State reports the current interaction state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Channel) stateLocked() State {
	switch {
	case c.speaking:
		return StateSpeaking
	case c.micOpen:
		return StateListening
	default:
		return StateIdle
	}
}

// StartListening opens a listening turn. No-op when one is already active.
func (c *Channel) StartListening() error {
	c.mu.Lock()
	if c.closed || c.micOpen {
		c.mu.Unlock()
		return nil
	}
	c.micOpen = true
	prev := c.drainFragmentsLocked()
	state := c.stateLocked()
	c.mu.Unlock()
	if prev > 0 {
		c.log.Debug("cleared buffered fragments on listen start", "count", prev)
	}
	if err := c.rec.Start(); err != nil {
		c.mu.Lock()
		c.micOpen = false
		c.mu.Unlock()
		c.emit(Event{Kind: EventRecognitionError, Err: err})
		return err
	}
	c.emit(Event{Kind: EventState, State: state})
	return nil
}

// StopListening ends the active listening turn, if any.
func (c *Channel) StopListening() error {
	c.mu.Lock()
	if !c.micOpen {
		c.mu.Unlock()
		return nil
	}
	c.micOpen = false
	state := c.stateLocked()
	c.mu.Unlock()
	err := c.rec.Stop()
	c.emit(Event{Kind: EventState, State: state})
	return err
}

func (c *Channel) drainFragmentsLocked() int {
	n := 0
	for {
		select {
		case <-c.fragments:
			n++
		default:
			return n
		}
	}
}

// Speak cancels any in-flight synthesis and speaks text. The transition to
// Speaking happens immediately; the return to the prior state happens when
// synthesis ends, errors, or is cancelled.
func (c *Channel) Speak(text string) {
	if text == "" {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.speakGen++
	gen := c.speakGen
	wasSpeaking := c.speaking
	c.speaking = true
	c.mu.Unlock()

	if !wasSpeaking {
		c.emit(Event{Kind: EventState, State: StateSpeaking})
	}

	go func() {
		err := c.syn.Speak(ctx, text)
		cancel()
		c.mu.Lock()
		if gen != c.speakGen {
			// A newer Speak replaced this one; it owns the state now.
			c.mu.Unlock()
			return
		}
		c.speaking = false
		c.cancel = nil
		state := c.stateLocked()
		c.mu.Unlock()
		if err != nil && !errors.Is(err, context.Canceled) {
			c.emit(Event{Kind: EventSynthesisError, Err: err})
		}
		c.emit(Event{Kind: EventState, State: state})
	}()
}

// StopSpeaking cancels in-flight synthesis. The state event is emitted by the
// speak goroutine when the synthesizer returns.
func (c *Channel) StopSpeaking() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Close tears the channel down: stops speech, closes the recognizer, and
// closes the event streams.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	c.micOpen = false
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	err := c.rec.Close()
	close(c.done)
	return err
}

// pump forwards recognizer output and errors for the channel's lifetime.
// Recognition errors force the listening turn closed and surface as events,
// never silently swallowed.
func (c *Channel) pump() {
	results := c.rec.Results()
	errs := c.rec.Errors()
	for {
		select {
		case <-c.done:
			return
		case f, ok := <-results:
			if !ok {
				results = nil
				continue
			}
			select {
			case c.fragments <- f:
			default:
				c.log.Warn("fragment buffer full, dropping", "text", f.Text)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err == nil {
				continue
			}
			c.mu.Lock()
			wasOpen := c.micOpen
			c.micOpen = false
			state := c.stateLocked()
			c.mu.Unlock()
			if wasOpen {
				_ = c.rec.Stop()
			}
			c.log.Warn("recognition error", "err", err)
			c.emit(Event{Kind: EventRecognitionError, Err: err})
			c.emit(Event{Kind: EventState, State: state})
		}
		if results == nil && errs == nil {
			return
		}
	}
}

func (c *Channel) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn("event buffer full, dropping", "kind", ev.Kind)
	}
}
