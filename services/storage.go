package services

import (
	"errors"
	"time"

	"ladder-challenge-system/models"
)

// Engine error classes. Denials are values (Decision), never errors; these
// cover the retryable / fatal / not-found cases.
var (
	// ErrNotFound maps a missing player/ladder/challenge lookup.
	ErrNotFound = errors.New("record not found")

	// ErrConflict means a concurrent match resolution touched the same
	// positions. The caller must re-run the whole classify-then-apply
	// sequence, since eligibility may have changed.
	ErrConflict = errors.New("concurrent position write conflict")

	// ErrLimitExceeded means the player has no decline tokens available.
	ErrLimitExceeded = errors.New("decline limit exceeded")

	// ErrInvariantViolation means a post-write ladder was not the exact
	// permutation {1..N}. Unreachable if the ranking mutator is correct.
	ErrInvariantViolation = errors.New("ladder permutation invariant violated")
)

// PositionChange is one row of a ladder delta.
type PositionChange struct {
	PlayerID    string `json:"player_id"`
	OldPosition int    `json:"old_position"`
	NewPosition int    `json:"new_position"`
}

// MatchCommit is everything a resolved match writes, applied as a single
// all-or-nothing transaction. Partial writes must never be observable.
type MatchCommit struct {
	Match   *models.Match
	Changes []PositionChange

	WinnerID string
	LoserID  string

	// ImmunityGrant refreshes the winner's window (never stacks).
	ImmunityGrant *models.ImmunityGrant

	// ConsumeFastTrackID decrements the named player's fast-track counter,
	// win or lose. Empty means no consumption.
	ConsumeFastTrackID string

	// CompleteChallengeID moves the named challenge to its terminal
	// completed status in the same transaction, so a replayed report finds
	// it already resolved. Empty for matches without a challenge row.
	CompleteChallengeID string

	// Events are outbox rows written in the same transaction.
	Events []models.EngineEvent
}

// Storage is the persistence collaborator. The engine suspends only at this
// boundary; all computation between calls is pure. Implementations own their
// own timeout/retry policy.
type Storage interface {
	GetPlayer(id string) (*models.Player, error)

	// GetLadder returns the ladder's players ordered by position ascending.
	GetLadder(ladderID string) ([]models.Player, error)

	// WritePositions applies a ladder delta. Returns ErrConflict if any
	// player's stored position no longer matches the delta's old position.
	WritePositions(ladderID string, changes []PositionChange) error

	// GetMatchesSince returns every match the player took part in that
	// completed at or after since, newest first. Bounded by the caller's
	// window, not a row count, so busy players lose no history.
	GetMatchesSince(playerID string, since time.Time) ([]models.Match, error)

	// CommitMatch persists a resolved match: positions, win/loss counters,
	// immunity, fast-track consumption and outbox events in one serializable
	// transaction. Returns ErrConflict on concurrent mutation and
	// ErrInvariantViolation if the post-write ladder is not {1..N}.
	CommitMatch(commit *MatchCommit) error

	// GetDeclineEvents returns every decline use ever recorded for the
	// player. History is append-only and kept for audit.
	GetDeclineEvents(playerID string) ([]models.DeclineEvent, error)
	AppendDecline(ev *models.DeclineEvent) error

	AppendEvent(ev *models.EngineEvent) error

	GetChallenge(id string) (*models.Challenge, error)
	CreateChallenge(ch *models.Challenge) error
	UpdateChallengeStatus(id, status string, expiredAt *time.Time) error

	// ListOverdueChallenges returns pending challenges whose deadline has
	// passed.
	ListOverdueChallenges(now time.Time) ([]models.Challenge, error)
}
