package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"ladder-challenge-system/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// ChallengeResponseWindow is how long a defender has to answer a pending
// challenge before it expires.
const ChallengeResponseWindow = 7 * 24 * time.Hour

// LadderService orchestrates the engine: gate, classify, persist, mutate,
// emit. One instance serves all ladders; per-ladder write exclusion lives in
// the ranking mutator.
type LadderService struct {
	DB          *gorm.DB
	Store       Storage
	Clock       *PhaseClock
	Gate        *MembershipGate
	Declines    *DeclineTracker
	Eligibility *EligibilityEvaluator
	Ranking     *RankingMutator
}

func NewLadderService(db *gorm.DB, store Storage, clock *PhaseClock, gate *MembershipGate) *LadderService {
	return &LadderService{
		DB:          db,
		Store:       store,
		Clock:       clock,
		Gate:        gate,
		Declines:    NewDeclineTracker(store),
		Eligibility: NewEligibilityEvaluator(store),
		Ranking:     NewRankingMutator(store),
	}
}

// CreateLadder registers a new ladder bracket.
func (s *LadderService) CreateLadder(name, description string) (*models.Ladder, error) {
	ladder := &models.Ladder{
		ID:          uuid.NewString(),
		Name:        name,
		Slug:        slug.Make(name),
		Description: description,
		IsActive:    true,
	}
	if err := s.DB.Create(ladder).Error; err != nil {
		return nil, err
	}
	log.Printf("✅ Created ladder %s (%s)", ladder.Name, ladder.Slug)
	return ladder, nil
}

// AddPlayer claims the next open slot at the bottom of the ladder.
func (s *LadderService) AddPlayer(ladderID, email, name string) (*models.Player, error) {
	var ladder models.Ladder
	if err := s.DB.First(&ladder, "id = ?", ladderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("ladder %s: %w", ladderID, ErrNotFound)
		}
		return nil, err
	}

	player := &models.Player{
		ID:       uuid.NewString(),
		LadderID: ladderID,
		Email:    email,
		Name:     name,
		IsActive: true,
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Player{}).Where("ladder_id = ?", ladderID).Count(&count).Error; err != nil {
			return err
		}
		player.Position = int(count) + 1
		return tx.Create(player).Error
	})
	if err != nil {
		return nil, err
	}

	log.Printf("✅ Player %s claimed position %d on ladder %s", player.Email, player.Position, ladderID)
	return player, nil
}

// GetStandings returns the ladder's players ordered by position.
func (s *LadderService) GetStandings(ladderID string) ([]models.Player, error) {
	return s.Store.GetLadder(ladderID)
}

// ChallengeRequest is one challenge attempt as seen by the service.
type ChallengeRequest struct {
	ChallengerID string
	DefenderID   string
	IsAdmin      bool
}

// ChallengeOutcome carries either the created pending challenge or the
// structured denial. Denials are not errors.
type ChallengeOutcome struct {
	Challenge *models.Challenge `json:"challenge,omitempty"`
	Decision  Decision          `json:"decision"`
	Gate      GateDecision      `json:"gate"`
}

// CreateChallenge gates and classifies a request, then persists the pending
// challenge and emits ChallengeClassified. Callers should retry the whole
// sequence on ErrConflict from a later ReportResult.
func (s *LadderService) CreateChallenge(req ChallengeRequest, now time.Time) (*ChallengeOutcome, error) {
	challenger, err := s.Store.GetPlayer(req.ChallengerID)
	if err != nil {
		return nil, err
	}
	defender, err := s.Store.GetPlayer(req.DefenderID)
	if err != nil {
		return nil, err
	}

	phase := s.Clock.CurrentPhase(now)
	gate := s.Gate.CanAct(challenger, phase, req.IsAdmin)
	if !gate.Allowed {
		return &ChallengeOutcome{
			Gate:     gate,
			Decision: Decision{Denied: true, Reason: gate.Reason},
		}, nil
	}

	decision, err := s.Eligibility.Classify(challenger, defender, now)
	if err != nil {
		return nil, err
	}
	if decision.Denied {
		return &ChallengeOutcome{Gate: gate, Decision: decision}, nil
	}

	challenge := &models.Challenge{
		ID:                 uuid.NewString(),
		LadderID:           challenger.LadderID,
		ChallengerID:       challenger.ID,
		DefenderID:         defender.ID,
		Variant:            decision.Variant,
		Status:             models.ChallengeStatusPending,
		ChallengerPosition: challenger.Position,
		DefenderPosition:   defender.Position,
		Deadline:           now.Add(ChallengeResponseWindow),
	}
	if err := s.Store.CreateChallenge(challenge); err != nil {
		return nil, err
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"challenge_id": challenge.ID,
		"variant":      challenge.Variant,
		"defender_id":  defender.ID,
		"deadline":     challenge.Deadline,
	})
	if err := s.Store.AppendEvent(&models.EngineEvent{
		ID:       uuid.NewString(),
		Type:     models.EventChallengeClassified,
		LadderID: challenge.LadderID,
		PlayerID: challenger.ID,
		Payload:  string(payload),
	}); err != nil {
		log.Printf("⚠️ Failed to emit ChallengeClassified for %s: %v", challenge.ID, err)
	}

	return &ChallengeOutcome{Challenge: challenge, Gate: gate, Decision: decision}, nil
}

// DeclineOutcome reports what a decline attempt did. ForcedAcceptance is set
// when the defender is out of tokens; the presentation layer decides how to
// break that news.
type DeclineOutcome struct {
	Declined         bool       `json:"declined"`
	ForcedAcceptance bool       `json:"forced_acceptance"`
	Available        int        `json:"available_declines"`
	NextReset        *time.Time `json:"next_reset,omitempty"`
}

// DeclineChallenge spends one of the defender's decline tokens on a pending
// challenge and emits DeclineRecorded. A LimitExceeded attempt leaves the
// challenge pending and signals forced acceptance.
func (s *LadderService) DeclineChallenge(challengeID string, now time.Time) (*DeclineOutcome, error) {
	challenge, err := s.Store.GetChallenge(challengeID)
	if err != nil {
		return nil, err
	}
	if challenge.Status != models.ChallengeStatusPending {
		return nil, fmt.Errorf("challenge %s is %s, not pending", challengeID, challenge.Status)
	}

	ev, err := s.Declines.RecordDecline(challenge.DefenderID, challenge.ID, now)
	if errors.Is(err, ErrLimitExceeded) {
		next, lookupErr := s.Declines.NextResetDate(challenge.DefenderID, now)
		if lookupErr != nil {
			return nil, lookupErr
		}
		return &DeclineOutcome{ForcedAcceptance: true, Available: 0, NextReset: next}, nil
	}
	if err != nil {
		return nil, err
	}

	if err := s.Store.UpdateChallengeStatus(challenge.ID, models.ChallengeStatusDeclined, nil); err != nil {
		return nil, err
	}

	available, err := s.Declines.AvailableDeclines(challenge.DefenderID, now)
	if err != nil {
		return nil, err
	}
	next, err := s.Declines.NextResetDate(challenge.DefenderID, now)
	if err != nil {
		return nil, err
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"challenge_id": challenge.ID,
		"used_at":      ev.UsedAt,
		"available":    available,
		"next_reset":   next,
	})
	if err := s.Store.AppendEvent(&models.EngineEvent{
		ID:       uuid.NewString(),
		Type:     models.EventDeclineRecorded,
		LadderID: challenge.LadderID,
		PlayerID: challenge.DefenderID,
		Payload:  string(payload),
	}); err != nil {
		log.Printf("⚠️ Failed to emit DeclineRecorded for %s: %v", challenge.ID, err)
	}

	return &DeclineOutcome{Declined: true, Available: available, NextReset: next}, nil
}

// ResultOutcome carries the applied ladder delta, or the gate denial that
// blocked the report. Denials are not errors.
type ResultOutcome struct {
	Gate  GateDecision     `json:"gate"`
	Delta []PositionChange `json:"ladder_delta,omitempty"`
}

// ReportResult resolves a pending/accepted challenge into a match and applies
// the ranking mutation. The challenger passes the membership gate again at
// report time. ErrConflict means the caller must redo the whole
// classify-then-apply sequence.
func (s *LadderService) ReportResult(challengeID, winnerID string, completedAt time.Time, isAdmin bool) (*ResultOutcome, error) {
	challenge, err := s.Store.GetChallenge(challengeID)
	if err != nil {
		return nil, err
	}
	if challenge.Status != models.ChallengeStatusPending && challenge.Status != models.ChallengeStatusAccepted {
		return nil, fmt.Errorf("challenge %s is %s and cannot be resolved", challengeID, challenge.Status)
	}
	if winnerID != challenge.ChallengerID && winnerID != challenge.DefenderID {
		return nil, fmt.Errorf("winner %s is not part of challenge %s", winnerID, challengeID)
	}

	challenger, err := s.Store.GetPlayer(challenge.ChallengerID)
	if err != nil {
		return nil, err
	}
	gate := s.Gate.CanAct(challenger, s.Clock.CurrentPhase(completedAt), isAdmin)
	if !gate.Allowed {
		return &ResultOutcome{Gate: gate}, nil
	}

	match := &models.Match{
		ID:           uuid.NewString(),
		LadderID:     challenge.LadderID,
		ChallengeID:  &challenge.ID,
		ChallengerID: challenge.ChallengerID,
		DefenderID:   challenge.DefenderID,
		WinnerID:     winnerID,
		Variant:      challenge.Variant,
		CompletedAt:  completedAt,
	}

	// The ranking commit also moves the challenge to completed, in the same
	// transaction, so a duplicate report finds a terminal status here and is
	// rejected instead of replaying the mutation.
	delta, err := s.Ranking.ApplyResult(match, challenge.Variant)
	if err != nil {
		return nil, err
	}

	log.Printf("✅ Applied %s result for challenge %s: %d position changes", challenge.Variant, challengeID, len(delta))
	return &ResultOutcome{Gate: gate, Delta: delta}, nil
}

// DeclineStanding is the read-side view of a player's decline tokens.
func (s *LadderService) DeclineStanding(playerID string, now time.Time) (int, *time.Time, error) {
	available, err := s.Declines.AvailableDeclines(playerID, now)
	if err != nil {
		return 0, nil, err
	}
	next, err := s.Declines.NextResetDate(playerID, now)
	if err != nil {
		return 0, nil, err
	}
	return available, next, nil
}

// BuildAuditSnapshot assembles one ladder's standings plus its append-only
// decline and immunity history as JSON for archival.
func (s *LadderService) BuildAuditSnapshot(ladderID string, now time.Time) ([]byte, error) {
	players, err := s.Store.GetLadder(ladderID)
	if err != nil {
		return nil, err
	}

	playerIDs := make([]string, 0, len(players))
	for _, p := range players {
		playerIDs = append(playerIDs, p.ID)
	}

	var declines []models.DeclineEvent
	if err := s.DB.Where("player_id IN ?", playerIDs).
		Order("used_at ASC").Find(&declines).Error; err != nil {
		return nil, err
	}
	var grants []models.ImmunityGrant
	if err := s.DB.Where("player_id IN ?", playerIDs).
		Order("granted_at ASC").Find(&grants).Error; err != nil {
		return nil, err
	}

	return json.Marshal(map[string]interface{}{
		"ladder_id":       ladderID,
		"taken_at":        now,
		"standings":       players,
		"decline_history": declines,
		"immunity_grants": grants,
	})
}

// ExpireOverdueChallenges marks pending challenges past their deadline as
// expired and emits an event per challenge. Called by the scheduler.
func (s *LadderService) ExpireOverdueChallenges(now time.Time) (int, error) {
	overdue, err := s.Store.ListOverdueChallenges(now)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, c := range overdue {
		if err := s.Store.UpdateChallengeStatus(c.ID, models.ChallengeStatusExpired, &now); err != nil {
			log.Printf("[Scheduler] Failed to expire challenge %s: %v", c.ID, err)
			continue
		}
		payload, _ := json.Marshal(map[string]interface{}{
			"challenge_id": c.ID,
			"deadline":     c.Deadline,
		})
		if err := s.Store.AppendEvent(&models.EngineEvent{
			ID:       uuid.NewString(),
			Type:     models.EventChallengeExpired,
			LadderID: c.LadderID,
			PlayerID: c.DefenderID,
			Payload:  string(payload),
		}); err != nil {
			log.Printf("[Scheduler] Failed to emit ChallengeExpired for %s: %v", c.ID, err)
		}
		expired++
	}
	return expired, nil
}
