package progress

import (
	"context"
	"sync"
	"time"
)

// Event is a point-in-time record of completion for a (subject, chapter) pair.
// One event is recorded per meaningful state change: section completed,
// question answered, assessment finished.
type Event struct {
	Subject         string
	Chapter         string
	PercentComplete int // 0-100
	Completed       bool
	Score           *int // 0-100, assessment completion only
	At              time.Time
}

// LastSession identifies where the learner most recently was, used only at
// session start to offer a resume.
type LastSession struct {
	Subject string    `json:"subject"`
	Chapter string    `json:"chapter"`
	At      time.Time `json:"at"`
}

// Tracker persists progress events. Record is fire-and-forget from the
// engine's point of view but must be called in event order for a chapter;
// the session guarantees that by recording from its single command loop.
type Tracker interface {
	Record(ctx context.Context, ev Event) error
	Last(ctx context.Context) (LastSession, bool, error)
}

// Memory is an in-process tracker used in tests and when no store is
// configured.
type Memory struct {
	mu     sync.Mutex
	events []Event
	last   *LastSession
}

var _ Tracker = (*Memory)(nil)

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Record(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	m.last = &LastSession{Subject: ev.Subject, Chapter: ev.Chapter, At: ev.At}
	return nil
}

func (m *Memory) Last(_ context.Context) (LastSession, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return LastSession{}, false, nil
	}
	return *m.last, true, nil
}

// Events returns a copy of everything recorded so far, in record order.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}
