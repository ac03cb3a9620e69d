package services

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"ladder-challenge-system/models"

	"github.com/google/uuid"
)

// SmackDown movement: the loser drops exactly this many slots, the winner
// climbs exactly this many, and the climb can never take position 1.
const (
	SmackDownDrop  = 3
	SmackDownClimb = 2
)

// RankingMutator applies a resolved match's position changes. It is the only
// writer; every mutation runs under per-ladder mutual exclusion because one
// match transitively touches many players' ranks.
type RankingMutator struct {
	Store Storage

	mu      sync.Mutex
	ladders map[string]*sync.Mutex
}

func NewRankingMutator(store Storage) *RankingMutator {
	return &RankingMutator{
		Store:   store,
		ladders: make(map[string]*sync.Mutex),
	}
}

func (r *RankingMutator) ladderLock(ladderID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.ladders[ladderID]
	if !ok {
		lock = &sync.Mutex{}
		r.ladders[ladderID] = lock
	}
	return lock
}

// ApplyResult recomputes ladder positions for a completed match and commits
// every changed row, the winner's immunity refresh, win/loss counters and
// fast-track consumption as one atomic transaction. On ErrConflict the caller
// must retry the entire classify-then-apply sequence.
func (r *RankingMutator) ApplyResult(match *models.Match, variant string) ([]PositionChange, error) {
	lock := r.ladderLock(match.LadderID)
	lock.Lock()
	defer lock.Unlock()

	players, err := r.Store.GetLadder(match.LadderID)
	if err != nil {
		return nil, err
	}

	challenger := findPlayer(players, match.ChallengerID)
	defender := findPlayer(players, match.DefenderID)
	if challenger == nil || defender == nil {
		return nil, fmt.Errorf("match %s references players outside ladder %s: %w", match.ID, match.LadderID, ErrNotFound)
	}

	targets, err := transitionTargets(match, variant, challenger, defender, len(players))
	if err != nil {
		return nil, err
	}

	changes := reinsert(players, targets)
	if err := checkPermutation(players, changes); err != nil {
		log.Printf("‼️ [RANKING] invariant check failed for ladder %s: %v", match.LadderID, err)
		return nil, err
	}

	loserID := match.DefenderID
	if !match.ChallengerWon() {
		loserID = match.ChallengerID
	}

	grant := &models.ImmunityGrant{
		ID:        uuid.NewString(),
		PlayerID:  match.WinnerID,
		MatchID:   match.ID,
		GrantedAt: match.CompletedAt,
		Until:     GrantImmunity(match.CompletedAt),
	}

	commit := &MatchCommit{
		Match:         match,
		Changes:       changes,
		WinnerID:      match.WinnerID,
		LoserID:       loserID,
		ImmunityGrant: grant,
	}
	if variant == models.VariantFastTrack {
		// Consumed by use, not by winning.
		commit.ConsumeFastTrackID = match.ChallengerID
	}
	if match.ChallengeID != nil {
		commit.CompleteChallengeID = *match.ChallengeID
	}
	commit.Events = resultEvents(match, changes, grant)

	if err := r.Store.CommitMatch(commit); err != nil {
		return nil, err
	}

	return changes, nil
}

// transitionTargets resolves the variant/winner row of the transition table
// into target positions for the moved players.
func transitionTargets(match *models.Match, variant string, challenger, defender *models.Player, size int) (map[string]int, error) {
	pC := challenger.Position
	pD := defender.Position
	targets := make(map[string]int)

	switch variant {
	case models.VariantChallenge, models.VariantFastTrack:
		if match.ChallengerWon() {
			targets[challenger.ID] = pD
			targets[defender.ID] = pC
		}
	case models.VariantSmackDown:
		if match.ChallengerWon() {
			drop := pD + SmackDownDrop
			if drop > size {
				drop = size
			}
			climb := pC - SmackDownClimb
			if climb < 2 {
				// The top seat is never taken through a smackdown. A
				// challenger already holding it keeps it.
				climb = 2
				if pC == 1 {
					climb = 1
				}
			}
			targets[defender.ID] = drop
			targets[challenger.ID] = climb
		} else {
			targets[challenger.ID] = pD
			targets[defender.ID] = pC
		}
	case models.VariantSmackBack:
		if match.ChallengerWon() {
			targets[challenger.ID] = 1
		}
	default:
		return nil, fmt.Errorf("unknown challenge variant %q", variant)
	}

	// Drop no-op targets so losses that change nothing produce an empty delta.
	if t, ok := targets[challenger.ID]; ok && t == pC {
		delete(targets, challenger.ID)
	}
	if t, ok := targets[defender.ID]; ok && t == pD {
		delete(targets, defender.ID)
	}

	return targets, nil
}

// reinsert applies targets as a remove/reinsert/compact pass over the ordered
// ladder: moved players come out, everyone else compacts, then the moved
// players go back in at their targets in ascending order. This is what keeps
// the ladder an exact permutation across every transition-table branch.
func reinsert(players []models.Player, targets map[string]int) []PositionChange {
	if len(targets) == 0 {
		return nil
	}

	oldPos := make(map[string]int, len(players))
	order := make([]string, 0, len(players))
	for _, p := range players {
		oldPos[p.ID] = p.Position
		if _, moved := targets[p.ID]; !moved {
			order = append(order, p.ID)
		}
	}

	type placement struct {
		id     string
		target int
	}
	placements := make([]placement, 0, len(targets))
	for id, target := range targets {
		placements = append(placements, placement{id: id, target: target})
	}
	// Ascending insertion keeps each target meaningful against the compacted
	// list; with two placements a simple swap-sort is enough.
	for i := 0; i < len(placements); i++ {
		for j := i + 1; j < len(placements); j++ {
			if placements[j].target < placements[i].target {
				placements[i], placements[j] = placements[j], placements[i]
			}
		}
	}

	for _, pl := range placements {
		idx := pl.target - 1
		if idx > len(order) {
			idx = len(order)
		}
		if idx < 0 {
			idx = 0
		}
		order = append(order[:idx], append([]string{pl.id}, order[idx:]...)...)
	}

	var changes []PositionChange
	for i, id := range order {
		newPos := i + 1
		if oldPos[id] != newPos {
			changes = append(changes, PositionChange{
				PlayerID:    id,
				OldPosition: oldPos[id],
				NewPosition: newPos,
			})
		}
	}
	return changes
}

// checkPermutation verifies the delta leaves positions as exactly {1..N}.
func checkPermutation(players []models.Player, changes []PositionChange) error {
	final := make(map[string]int, len(players))
	for _, p := range players {
		final[p.ID] = p.Position
	}
	for _, ch := range changes {
		final[ch.PlayerID] = ch.NewPosition
	}

	seen := make(map[int]string, len(final))
	for id, pos := range final {
		if pos < 1 || pos > len(final) {
			return fmt.Errorf("player %s at position %d outside 1..%d: %w", id, pos, len(final), ErrInvariantViolation)
		}
		if other, dup := seen[pos]; dup {
			return fmt.Errorf("players %s and %s share position %d: %w", other, id, pos, ErrInvariantViolation)
		}
		seen[pos] = id
	}
	return nil
}

// resultEvents builds the outbox rows committed with the match.
func resultEvents(match *models.Match, changes []PositionChange, grant *models.ImmunityGrant) []models.EngineEvent {
	deltaPayload, _ := json.Marshal(map[string]interface{}{
		"match_id":     match.ID,
		"variant":      match.Variant,
		"winner_id":    match.WinnerID,
		"ladder_delta": changes,
	})
	immunityPayload, _ := json.Marshal(map[string]interface{}{
		"match_id": match.ID,
		"until":    grant.Until,
	})

	return []models.EngineEvent{
		{
			ID:       uuid.NewString(),
			Type:     models.EventMatchApplied,
			LadderID: match.LadderID,
			PlayerID: match.WinnerID,
			Payload:  string(deltaPayload),
		},
		{
			ID:       uuid.NewString(),
			Type:     models.EventImmunityGranted,
			LadderID: match.LadderID,
			PlayerID: match.WinnerID,
			Payload:  string(immunityPayload),
		},
	}
}

func findPlayer(players []models.Player, id string) *models.Player {
	for i := range players {
		if players[i].ID == id {
			return &players[i]
		}
	}
	return nil
}
