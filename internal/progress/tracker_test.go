package progress

import (
	"context"
	"testing"
	"time"
)

func TestMemory_RecordPreservesOrder(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for i, pct := range []int{25, 50, 75, 100} {
		ev := Event{Subject: "Science", Chapter: "Chapter-4", PercentComplete: pct, At: time.Now()}
		if i == 3 {
			score := 75
			ev.Completed = true
			ev.Score = &score
		}
		if err := m.Record(ctx, ev); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	evs := m.Events()
	if len(evs) != 4 {
		t.Fatalf("expected 4 events, got %d", len(evs))
	}
	for i := 1; i < len(evs); i++ {
		if evs[i].PercentComplete < evs[i-1].PercentComplete {
			t.Fatalf("event order not preserved: %v", evs)
		}
	}
	if !evs[3].Completed || evs[3].Score == nil || *evs[3].Score != 75 {
		t.Fatalf("final event should carry completion and score, got %+v", evs[3])
	}
}

func TestMemory_Last(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if _, ok, _ := m.Last(ctx); ok {
		t.Fatalf("expected no last session on empty tracker")
	}
	_ = m.Record(ctx, Event{Subject: "English", Chapter: "Chapter-1", PercentComplete: 50, At: time.Now()})
	last, ok, err := m.Last(ctx)
	if err != nil || !ok {
		t.Fatalf("last: ok=%v err=%v", ok, err)
	}
	if last.Subject != "English" || last.Chapter != "Chapter-1" {
		t.Fatalf("unexpected last session %+v", last)
	}
}
