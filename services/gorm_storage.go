package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"ladder-challenge-system/models"

	"gorm.io/gorm"
)

// GormStorage is the postgres-backed Storage collaborator.
type GormStorage struct {
	DB *gorm.DB
}

func NewGormStorage(db *gorm.DB) *GormStorage {
	return &GormStorage{DB: db}
}

func (s *GormStorage) GetPlayer(id string) (*models.Player, error) {
	var player models.Player
	if err := s.DB.First(&player, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("player %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &player, nil
}

func (s *GormStorage) GetLadder(ladderID string) ([]models.Player, error) {
	var players []models.Player
	if err := s.DB.Where("ladder_id = ?", ladderID).
		Order("position ASC").
		Find(&players).Error; err != nil {
		return nil, err
	}
	return players, nil
}

// WritePositions applies a ladder delta with optimistic guards: every UPDATE
// is conditioned on the old position still being in place, so a concurrent
// match resolution surfaces as ErrConflict instead of a silent overwrite.
func (s *GormStorage) WritePositions(ladderID string, changes []PositionChange) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		return writePositionsTx(tx, ladderID, changes)
	})
}

func writePositionsTx(tx *gorm.DB, ladderID string, changes []PositionChange) error {
	for _, ch := range changes {
		res := tx.Model(&models.Player{}).
			Where("id = ? AND ladder_id = ? AND position = ?", ch.PlayerID, ladderID, ch.OldPosition).
			Update("position", ch.NewPosition)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("player %s moved from position %d concurrently: %w", ch.PlayerID, ch.OldPosition, ErrConflict)
		}
	}
	return nil
}

func (s *GormStorage) GetMatchesSince(playerID string, since time.Time) ([]models.Match, error) {
	var matches []models.Match
	if err := s.DB.
		Where("(challenger_id = ? OR defender_id = ?) AND completed_at >= ?", playerID, playerID, since).
		Order("completed_at DESC").
		Find(&matches).Error; err != nil {
		return nil, err
	}
	return matches, nil
}

// CommitMatch writes a resolved match as one serializable transaction:
// positions, counters, immunity, fast-track consumption and outbox events.
// After the writes it re-reads the ladder and verifies the {1..N} permutation
// before letting the transaction commit.
func (s *GormStorage) CommitMatch(commit *MatchCommit) error {
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		ladderID := commit.Match.LadderID

		if err := writePositionsTx(tx, ladderID, commit.Changes); err != nil {
			return err
		}

		if err := tx.Create(commit.Match).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.Player{}).Where("id = ?", commit.WinnerID).
			Update("wins", gorm.Expr("wins + 1")).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Player{}).Where("id = ?", commit.LoserID).
			Update("losses", gorm.Expr("losses + 1")).Error; err != nil {
			return err
		}

		if commit.ImmunityGrant != nil {
			if err := tx.Create(commit.ImmunityGrant).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.Player{}).Where("id = ?", commit.ImmunityGrant.PlayerID).
				Update("immunity_until", commit.ImmunityGrant.Until).Error; err != nil {
				return err
			}
		}

		if commit.ConsumeFastTrackID != "" {
			res := tx.Model(&models.Player{}).
				Where("id = ? AND fast_track_remaining > 0", commit.ConsumeFastTrackID).
				Update("fast_track_remaining", gorm.Expr("fast_track_remaining - 1"))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("fast-track privilege for %s consumed concurrently: %w", commit.ConsumeFastTrackID, ErrConflict)
			}
		}

		if commit.CompleteChallengeID != "" {
			// Guarded so two racing reports of the same challenge cannot
			// both commit: the loser of the race sees zero rows.
			res := tx.Model(&models.Challenge{}).
				Where("id = ? AND status IN ?", commit.CompleteChallengeID,
					[]string{models.ChallengeStatusPending, models.ChallengeStatusAccepted}).
				Update("status", models.ChallengeStatusCompleted)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("challenge %s resolved concurrently: %w", commit.CompleteChallengeID, ErrConflict)
			}
		}

		for i := range commit.Events {
			if err := tx.Create(&commit.Events[i]).Error; err != nil {
				return err
			}
		}

		return verifyPermutationTx(tx, ladderID)
	})

	if err != nil && errors.Is(err, ErrInvariantViolation) {
		// Should be unreachable if the ranking mutator is correct.
		log.Printf("‼️ [STORAGE] aborted match commit for ladder %s: %v", commit.Match.LadderID, err)
	}
	return err
}

func verifyPermutationTx(tx *gorm.DB, ladderID string) error {
	var positions []int
	if err := tx.Model(&models.Player{}).
		Where("ladder_id = ?", ladderID).
		Order("position ASC").
		Pluck("position", &positions).Error; err != nil {
		return err
	}
	for i, pos := range positions {
		if pos != i+1 {
			return fmt.Errorf("ladder %s has position %d at rank %d: %w", ladderID, pos, i+1, ErrInvariantViolation)
		}
	}
	return nil
}

func (s *GormStorage) GetDeclineEvents(playerID string) ([]models.DeclineEvent, error) {
	var events []models.DeclineEvent
	if err := s.DB.Where("player_id = ?", playerID).
		Order("used_at ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (s *GormStorage) AppendDecline(ev *models.DeclineEvent) error {
	return s.DB.Create(ev).Error
}

func (s *GormStorage) AppendEvent(ev *models.EngineEvent) error {
	return s.DB.Create(ev).Error
}

func (s *GormStorage) GetChallenge(id string) (*models.Challenge, error) {
	var challenge models.Challenge
	if err := s.DB.First(&challenge, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("challenge %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &challenge, nil
}

func (s *GormStorage) CreateChallenge(ch *models.Challenge) error {
	return s.DB.Create(ch).Error
}

func (s *GormStorage) UpdateChallengeStatus(id, status string, expiredAt *time.Time) error {
	updates := map[string]interface{}{"status": status}
	if expiredAt != nil {
		updates["expired_at"] = expiredAt
	}
	return s.DB.Model(&models.Challenge{}).Where("id = ?", id).Updates(updates).Error
}

func (s *GormStorage) ListOverdueChallenges(now time.Time) ([]models.Challenge, error) {
	var overdue []models.Challenge
	if err := s.DB.Where("status = ? AND deadline <= ?", models.ChallengeStatusPending, now).
		Find(&overdue).Error; err != nil {
		return nil, err
	}
	return overdue, nil
}

// GetMembershipMirror satisfies MirrorLookup for the gate's grandfathering
// check. A missing row is (nil, nil), not an error.
func (s *GormStorage) GetMembershipMirror(email string) (*models.MembershipMirror, error) {
	var mirror models.MembershipMirror
	if err := s.DB.First(&mirror, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &mirror, nil
}
