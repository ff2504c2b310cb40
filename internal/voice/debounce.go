package voice

import (
	"strings"
	"sync"
	"time"
)

// DefaultDebounceWindow coalesces near-simultaneous final transcripts into a
// single utterance per learner turn.
const DefaultDebounceWindow = 200 * time.Millisecond

// Debouncer turns rapid-fire final transcript fragments into at most one
// utterance per logical turn. Trailing-edge: the window restarts on every
// qualifying fragment and the last fragment's text wins.
type Debouncer struct {
	window time.Duration
	state  func() State
	emit   func(Utterance)

	mu          sync.Mutex
	timer       *time.Timer
	pending     string
	lastEmitted string
	stopped     bool
}

// NewDebouncer wires a debouncer to a state getter and an emit callback.
// state gates emission: fragments are only considered during an active
// listening turn, and a pending emission is suppressed if speaking started
// before the window elapsed.
func NewDebouncer(window time.Duration, state func() State, emit func(Utterance)) *Debouncer {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Debouncer{window: window, state: state, emit: emit}
}

// OnFragment feeds one recognition chunk. Interim fragments are discarded.
func (d *Debouncer) OnFragment(text string, final bool) {
	if !final {
		return
	}
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return
	}
	if d.state() != StateListening {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if cleaned == d.lastEmitted {
		// The channel re-delivered the same final result; drop it.
		return
	}
	d.pending = cleaned
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.fire)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	text := d.pending
	d.pending = ""
	d.timer = nil
	stopped := d.stopped
	d.mu.Unlock()
	if stopped || text == "" {
		return
	}
	// Re-check at fire time: speaking may have started inside the window.
	if d.state() != StateListening {
		return
	}
	d.mu.Lock()
	d.lastEmitted = text
	d.mu.Unlock()
	d.emit(Utterance{Text: text, ReceivedAt: time.Now()})
}

// Reset clears pending state and the duplicate guard. Called when a new
// listening turn starts.
func (d *Debouncer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = ""
	d.lastEmitted = ""
}

// Stop cancels any pending emission permanently.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
