package voice

import (
	"sync"
	"testing"
	"time"
)

type utteranceCollector struct {
	mu  sync.Mutex
	got []Utterance
}

func (c *utteranceCollector) emit(u Utterance) {
	c.mu.Lock()
	c.got = append(c.got, u)
	c.mu.Unlock()
}

func (c *utteranceCollector) snapshot() []Utterance {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Utterance, len(c.got))
	copy(out, c.got)
	return out
}

func (c *utteranceCollector) waitFor(t *testing.T, n int) []Utterance {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if got := c.snapshot(); len(got) >= n {
			return got
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("never saw %d utterances, have %d", n, len(c.snapshot()))
	return nil
}

func staticState(s State) func() State { return func() State { return s } }

func TestDebouncer_CoalescesBurstToLastFragment(t *testing.T) {
	col := &utteranceCollector{}
	d := NewDebouncer(20*time.Millisecond, staticState(StateListening), col.emit)
	defer d.Stop()

	d.OnFragment("next", true)
	d.OnFragment("next section", true)
	d.OnFragment("  next section please  ", true)

	got := col.waitFor(t, 1)
	time.Sleep(60 * time.Millisecond)
	got = col.snapshot()
	if len(got) != 1 {
		t.Fatalf("expected exactly one utterance, got %d", len(got))
	}
	if got[0].Text != "next section please" {
		t.Fatalf("expected last fragment's trimmed text, got %q", got[0].Text)
	}
}

func TestDebouncer_DiscardsInterimFragments(t *testing.T) {
	col := &utteranceCollector{}
	d := NewDebouncer(10*time.Millisecond, staticState(StateListening), col.emit)
	defer d.Stop()

	d.OnFragment("ne", false)
	d.OnFragment("next se", false)
	time.Sleep(40 * time.Millisecond)
	if got := col.snapshot(); len(got) != 0 {
		t.Fatalf("interim fragments should not emit, got %v", got)
	}
}

func TestDebouncer_SuppressesDuplicateOfLastEmitted(t *testing.T) {
	col := &utteranceCollector{}
	d := NewDebouncer(10*time.Millisecond, staticState(StateListening), col.emit)
	defer d.Stop()

	d.OnFragment("repeat", true)
	col.waitFor(t, 1)
	d.OnFragment("repeat", true)
	time.Sleep(40 * time.Millisecond)
	if got := col.snapshot(); len(got) != 1 {
		t.Fatalf("duplicate final should be suppressed, got %d emissions", len(got))
	}
	// A different utterance afterwards still goes through.
	d.OnFragment("explain", true)
	got := col.waitFor(t, 2)
	if got[1].Text != "explain" {
		t.Fatalf("expected explain, got %q", got[1].Text)
	}
}

func TestDebouncer_NeverEmitsWhileSpeakingOrIdle(t *testing.T) {
	for _, state := range []State{StateSpeaking, StateIdle} {
		col := &utteranceCollector{}
		d := NewDebouncer(10*time.Millisecond, staticState(state), col.emit)
		d.OnFragment("hello", true)
		time.Sleep(40 * time.Millisecond)
		if got := col.snapshot(); len(got) != 0 {
			t.Fatalf("state %v should suppress emission, got %v", state, got)
		}
		d.Stop()
	}
}

func TestDebouncer_SuppressesWhenSpeakingStartsInsideWindow(t *testing.T) {
	col := &utteranceCollector{}
	var mu sync.Mutex
	state := StateListening
	d := NewDebouncer(30*time.Millisecond, func() State {
		mu.Lock()
		defer mu.Unlock()
		return state
	}, col.emit)
	defer d.Stop()

	d.OnFragment("caught mid window", true)
	mu.Lock()
	state = StateSpeaking
	mu.Unlock()
	time.Sleep(80 * time.Millisecond)
	if got := col.snapshot(); len(got) != 0 {
		t.Fatalf("emission should be suppressed when speaking starts inside the window, got %v", got)
	}
}

func TestDebouncer_ResetDropsPendingFromPreviousTurn(t *testing.T) {
	col := &utteranceCollector{}
	var mu sync.Mutex
	state := StateListening
	d := NewDebouncer(40*time.Millisecond, func() State {
		mu.Lock()
		defer mu.Unlock()
		return state
	}, col.emit)
	defer d.Stop()

	// A final lands, then the listening turn stops and a new one starts
	// before the window elapses.
	d.OnFragment("stale command", true)
	mu.Lock()
	state = StateIdle
	mu.Unlock()
	mu.Lock()
	state = StateListening
	mu.Unlock()
	d.Reset()

	time.Sleep(100 * time.Millisecond)
	if got := col.snapshot(); len(got) != 0 {
		t.Fatalf("previous turn's text leaked into the new turn: %v", got)
	}
}

func TestDebouncer_ResetClearsDuplicateGuard(t *testing.T) {
	col := &utteranceCollector{}
	d := NewDebouncer(10*time.Millisecond, staticState(StateListening), col.emit)
	defer d.Stop()

	d.OnFragment("mark complete", true)
	col.waitFor(t, 1)
	d.Reset()
	d.OnFragment("mark complete", true)
	got := col.waitFor(t, 2)
	if got[1].Text != "mark complete" {
		t.Fatalf("after reset the same text should emit again, got %q", got[1].Text)
	}
}
