package voice

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeRecognizer struct {
	results chan Fragment
	errs    chan error
	started int32
	stopped int32
}

func newFakeRecognizer() *fakeRecognizer {
	return &fakeRecognizer{results: make(chan Fragment, 16), errs: make(chan error, 4)}
}

func (f *fakeRecognizer) Start() error             { atomic.AddInt32(&f.started, 1); return nil }
func (f *fakeRecognizer) Stop() error              { atomic.AddInt32(&f.stopped, 1); return nil }
func (f *fakeRecognizer) Results() <-chan Fragment { return f.results }
func (f *fakeRecognizer) Errors() <-chan error     { return f.errs }
func (f *fakeRecognizer) Close() error             { return nil }

type fakeSynthesizer struct {
	dur    time.Duration
	err    error
	spoken chan string
}

func newFakeSynthesizer(dur time.Duration) *fakeSynthesizer {
	return &fakeSynthesizer{dur: dur, spoken: make(chan string, 16)}
}

func (f *fakeSynthesizer) Speak(ctx context.Context, text string) error {
	f.spoken <- text
	if f.err != nil {
		return f.err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(f.dur):
		return nil
	}
}

func waitForState(t *testing.T, c *Channel, want State) {
	t.Helper()
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("state never reached %v, stuck at %v", want, c.State())
}

func TestChannel_UnsupportedWithoutCapabilities(t *testing.T) {
	if _, err := NewChannel(nil, newFakeSynthesizer(0), nil); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if _, err := NewChannel(newFakeRecognizer(), nil, nil); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestChannel_ListeningTransitions(t *testing.T) {
	rec := newFakeRecognizer()
	c, err := NewChannel(rec, newFakeSynthesizer(10*time.Millisecond), nil)
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}
	defer c.Close()

	if c.State() != StateIdle {
		t.Fatalf("expected idle at start, got %v", c.State())
	}
	if err := c.StartListening(); err != nil {
		t.Fatalf("start listening: %v", err)
	}
	if c.State() != StateListening {
		t.Fatalf("expected listening, got %v", c.State())
	}
	// Second start is a no-op.
	if err := c.StartListening(); err != nil {
		t.Fatalf("repeat start listening: %v", err)
	}
	if got := atomic.LoadInt32(&rec.started); got != 1 {
		t.Fatalf("recognizer should be started once, got %d", got)
	}
	if err := c.StopListening(); err != nil {
		t.Fatalf("stop listening: %v", err)
	}
	if c.State() != StateIdle {
		t.Fatalf("expected idle after stop, got %v", c.State())
	}
}

func TestChannel_SpeakNeverOverlapsListening(t *testing.T) {
	rec := newFakeRecognizer()
	syn := newFakeSynthesizer(30 * time.Millisecond)
	c, _ := NewChannel(rec, syn, nil)
	defer c.Close()

	_ = c.StartListening()
	c.Speak("hello learner")
	if c.State() != StateSpeaking {
		t.Fatalf("expected speaking, got %v", c.State())
	}
	// The mic stays open, but the single tri-state never reports both.
	waitForState(t, c, StateListening)
}

func TestChannel_SpeakCancelsInFlightSynthesis(t *testing.T) {
	rec := newFakeRecognizer()
	syn := newFakeSynthesizer(time.Second)
	c, _ := NewChannel(rec, syn, nil)
	defer c.Close()

	c.Speak("first")
	<-syn.spoken
	c.Speak("second")
	select {
	case got := <-syn.spoken:
		if got != "second" {
			t.Fatalf("expected second utterance, got %q", got)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("replacement synthesis never started")
	}
	if c.State() != StateSpeaking {
		t.Fatalf("expected speaking during replacement, got %v", c.State())
	}
}

func TestChannel_StopSpeakingReturnsToIdle(t *testing.T) {
	rec := newFakeRecognizer()
	syn := newFakeSynthesizer(time.Second)
	c, _ := NewChannel(rec, syn, nil)
	defer c.Close()

	c.Speak("long announcement")
	<-syn.spoken
	c.StopSpeaking()
	waitForState(t, c, StateIdle)
}

func TestChannel_SynthesisErrorTreatedAsSpeechEnd(t *testing.T) {
	rec := newFakeRecognizer()
	syn := newFakeSynthesizer(0)
	syn.err = errors.New("synth down")
	c, _ := NewChannel(rec, syn, nil)
	defer c.Close()

	c.Speak("will fail")
	waitForState(t, c, StateIdle)

	var sawErr bool
	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) && !sawErr {
		select {
		case ev := <-c.Events():
			if ev.Kind == EventSynthesisError {
				sawErr = true
			}
		case <-time.After(10 * time.Millisecond):
		}
	}
	if !sawErr {
		t.Fatalf("synthesis error was swallowed")
	}
}

func TestChannel_RecognitionErrorForcesIdle(t *testing.T) {
	rec := newFakeRecognizer()
	c, _ := NewChannel(rec, newFakeSynthesizer(0), nil)
	defer c.Close()

	_ = c.StartListening()
	rec.errs <- errors.New("permission denied")
	waitForState(t, c, StateIdle)

	var sawErr bool
	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) && !sawErr {
		select {
		case ev := <-c.Events():
			if ev.Kind == EventRecognitionError {
				sawErr = true
			}
		case <-time.After(10 * time.Millisecond):
		}
	}
	if !sawErr {
		t.Fatalf("recognition error was swallowed")
	}
	if got := atomic.LoadInt32(&rec.stopped); got == 0 {
		t.Fatalf("recognizer should be stopped after error")
	}
}

func TestChannel_ForwardsFragments(t *testing.T) {
	rec := newFakeRecognizer()
	c, _ := NewChannel(rec, newFakeSynthesizer(0), nil)
	defer c.Close()

	rec.results <- Fragment{Text: "partial", Final: false}
	rec.results <- Fragment{Text: "hello there", Final: true}

	var got []Fragment
	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) && len(got) < 2 {
		select {
		case f := <-c.Fragments():
			got = append(got, f)
		case <-time.After(10 * time.Millisecond):
		}
	}
	if len(got) != 2 || !got[1].Final || got[1].Text != "hello there" {
		t.Fatalf("unexpected fragments %+v", got)
	}
}
