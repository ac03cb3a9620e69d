package services

import (
	"errors"
	"testing"
	"time"
)

func TestAvailableDeclinesWindow(t *testing.T) {
	store := newFakeStorage()
	tracker := NewDeclineTracker(store)
	start := mustTime("2026-01-01T00:00:00Z")

	available, err := tracker.AvailableDeclines("p1", start)
	if err != nil {
		t.Fatal(err)
	}
	if available != MaxDeclines {
		t.Fatalf("fresh player has %d declines, want %d", available, MaxDeclines)
	}

	if _, err := tracker.RecordDecline("p1", "c1", start); err != nil {
		t.Fatal(err)
	}

	// One less until exactly T+30d, then back.
	checks := []struct {
		at   time.Time
		want int
	}{
		{start.Add(time.Second), 1},
		{start.Add(DeclineWindow - time.Second), 1},
		{start.Add(DeclineWindow), 2},
		{start.Add(DeclineWindow + time.Hour), 2},
	}
	for _, c := range checks {
		got, err := tracker.AvailableDeclines("p1", c.at)
		if err != nil {
			t.Fatal(err)
		}
		if got != c.want {
			t.Fatalf("available at %s = %d, want %d", c.at, got, c.want)
		}
	}
}

// Two declines 10 days apart; a third attempt on day 15 fails; on day 31 one
// token is back (30 days after the first use, not the second).
func TestDeclineLimitAndIndependentResets(t *testing.T) {
	store := newFakeStorage()
	tracker := NewDeclineTracker(store)
	day0 := mustTime("2026-02-01T00:00:00Z")
	day10 := day0.Add(10 * 24 * time.Hour)
	day15 := day0.Add(15 * 24 * time.Hour)
	day31 := day0.Add(31 * 24 * time.Hour)

	if _, err := tracker.RecordDecline("p1", "c1", day0); err != nil {
		t.Fatal(err)
	}
	if _, err := tracker.RecordDecline("p1", "c2", day10); err != nil {
		t.Fatal(err)
	}

	_, err := tracker.RecordDecline("p1", "c3", day15)
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("third decline on day 15 = %v, want ErrLimitExceeded", err)
	}

	// A failed attempt is not recorded.
	events, _ := store.GetDeclineEvents("p1")
	if len(events) != 2 {
		t.Fatalf("history has %d events after failed attempt, want 2", len(events))
	}

	available, err := tracker.AvailableDeclines("p1", day31)
	if err != nil {
		t.Fatal(err)
	}
	if available != 1 {
		t.Fatalf("available on day 31 = %d, want 1", available)
	}
}

func TestNextResetDate(t *testing.T) {
	store := newFakeStorage()
	tracker := NewDeclineTracker(store)
	day0 := mustTime("2026-02-01T00:00:00Z")
	day10 := day0.Add(10 * 24 * time.Hour)

	next, err := tracker.NextResetDate("p1", day0)
	if err != nil {
		t.Fatal(err)
	}
	if next != nil {
		t.Fatalf("reset date with no uses = %v, want nil", next)
	}

	tracker.RecordDecline("p1", "c1", day0)
	tracker.RecordDecline("p1", "c2", day10)

	next, err = tracker.NextResetDate("p1", day10.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	want := day0.Add(DeclineWindow)
	if next == nil || !next.Equal(want) {
		t.Fatalf("next reset = %v, want %v (earliest use + 30d)", next, want)
	}

	// After the first token replenishes only the second still counts.
	next, err = tracker.NextResetDate("p1", day0.Add(DeclineWindow+time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	want = day10.Add(DeclineWindow)
	if next == nil || !next.Equal(want) {
		t.Fatalf("next reset after first replenish = %v, want %v", next, want)
	}
}

// History is append-only: expired entries stop counting but stay recorded.
func TestDeclineHistoryRetainedAfterExpiry(t *testing.T) {
	store := newFakeStorage()
	tracker := NewDeclineTracker(store)
	day0 := mustTime("2026-02-01T00:00:00Z")
	later := day0.Add(90 * 24 * time.Hour)

	tracker.RecordDecline("p1", "c1", day0)
	tracker.RecordDecline("p1", "c2", day0.Add(24*time.Hour))

	available, _ := tracker.AvailableDeclines("p1", later)
	if available != MaxDeclines {
		t.Fatalf("available long after uses = %d, want %d", available, MaxDeclines)
	}
	events, _ := store.GetDeclineEvents("p1")
	if len(events) != 2 {
		t.Fatalf("audit history has %d events, want 2", len(events))
	}
}
