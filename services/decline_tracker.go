package services

import (
	"time"

	"ladder-challenge-system/models"

	"github.com/google/uuid"
)

// Decline token policy: two tokens per player, each use replenishing on its
// own timer exactly 30 days later. Uses are an append-only event log so the
// count at any instant is a deterministic function of (history, now).
const (
	MaxDeclines   = 2
	DeclineWindow = 30 * 24 * time.Hour
)

// DeclineTracker counts and records decline-token usage.
type DeclineTracker struct {
	Store Storage
}

func NewDeclineTracker(store Storage) *DeclineTracker {
	return &DeclineTracker{Store: store}
}

// countedUses returns the uses still inside the 30-day window at now.
func countedUses(events []models.DeclineEvent, now time.Time) []models.DeclineEvent {
	var counted []models.DeclineEvent
	for _, ev := range events {
		if now.Sub(ev.UsedAt) < DeclineWindow {
			counted = append(counted, ev)
		}
	}
	return counted
}

// AvailableDeclinesOf is the pure count over an event history.
func AvailableDeclinesOf(events []models.DeclineEvent, now time.Time) int {
	remaining := MaxDeclines - len(countedUses(events, now))
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// NextResetDateOf is the earliest use-timestamp+30d among uses still counted,
// or nil when no token is in cooldown.
func NextResetDateOf(events []models.DeclineEvent, now time.Time) *time.Time {
	var next *time.Time
	for _, ev := range countedUses(events, now) {
		reset := ev.UsedAt.Add(DeclineWindow)
		if next == nil || reset.Before(*next) {
			r := reset
			next = &r
		}
	}
	return next
}

// AvailableDeclines loads the player's history and counts usable tokens.
func (t *DeclineTracker) AvailableDeclines(playerID string, now time.Time) (int, error) {
	events, err := t.Store.GetDeclineEvents(playerID)
	if err != nil {
		return 0, err
	}
	return AvailableDeclinesOf(events, now), nil
}

// NextResetDate reports when the next token replenishes, or nil.
func (t *DeclineTracker) NextResetDate(playerID string, now time.Time) (*time.Time, error) {
	events, err := t.Store.GetDeclineEvents(playerID)
	if err != nil {
		return nil, err
	}
	return NextResetDateOf(events, now), nil
}

// RecordDecline appends a use, or fails with ErrLimitExceeded when no token
// is available. The caller decides the consequence of a limit-exceeded
// attempt (typically forcing acceptance).
func (t *DeclineTracker) RecordDecline(playerID, challengeID string, now time.Time) (*models.DeclineEvent, error) {
	events, err := t.Store.GetDeclineEvents(playerID)
	if err != nil {
		return nil, err
	}

	if AvailableDeclinesOf(events, now) == 0 {
		return nil, ErrLimitExceeded
	}

	ev := &models.DeclineEvent{
		ID:          uuid.NewString(),
		PlayerID:    playerID,
		ChallengeID: challengeID,
		UsedAt:      now,
	}
	if err := t.Store.AppendDecline(ev); err != nil {
		return nil, err
	}

	return ev, nil
}
