package services

import (
	"fmt"
	"sort"
	"time"

	"ladder-challenge-system/models"
)

// fakeStorage is an in-memory Storage used by the engine tests. CommitMatch
// applies the whole commit so multi-match scenarios see updated state.
type fakeStorage struct {
	players    map[string]*models.Player
	matches    []models.Match
	declines   map[string][]models.DeclineEvent
	challenges map[string]*models.Challenge
	events     []models.EngineEvent

	commitErr error // injected failure for conflict tests
	commits   int
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		players:    make(map[string]*models.Player),
		declines:   make(map[string][]models.DeclineEvent),
		challenges: make(map[string]*models.Challenge),
	}
}

// seedLadder creates n active, verified players on one ladder at positions
// 1..n with ids "p1".."pn".
func (f *fakeStorage) seedLadder(ladderID string, n int) {
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("p%d", i)
		f.players[id] = &models.Player{
			ID:                 id,
			LadderID:           ladderID,
			Email:              id + "@ladder.test",
			Position:           i,
			IsActive:           true,
			HasVerifiedAccount: true,
		}
	}
}

func (f *fakeStorage) GetPlayer(id string) (*models.Player, error) {
	p, ok := f.players[id]
	if !ok {
		return nil, fmt.Errorf("player %s: %w", id, ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStorage) GetLadder(ladderID string) ([]models.Player, error) {
	var players []models.Player
	for _, p := range f.players {
		if p.LadderID == ladderID {
			players = append(players, *p)
		}
	}
	sort.Slice(players, func(i, j int) bool { return players[i].Position < players[j].Position })
	return players, nil
}

func (f *fakeStorage) WritePositions(ladderID string, changes []PositionChange) error {
	for _, ch := range changes {
		p, ok := f.players[ch.PlayerID]
		if !ok || p.Position != ch.OldPosition {
			return ErrConflict
		}
	}
	for _, ch := range changes {
		f.players[ch.PlayerID].Position = ch.NewPosition
	}
	return nil
}

func (f *fakeStorage) GetMatchesSince(playerID string, since time.Time) ([]models.Match, error) {
	var out []models.Match
	for i := len(f.matches) - 1; i >= 0; i-- {
		m := f.matches[i]
		if m.CompletedAt.Before(since) {
			continue
		}
		if m.ChallengerID == playerID || m.DefenderID == playerID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStorage) CommitMatch(commit *MatchCommit) error {
	if f.commitErr != nil {
		return f.commitErr
	}

	if err := f.WritePositions(commit.Match.LadderID, commit.Changes); err != nil {
		return err
	}

	f.matches = append(f.matches, *commit.Match)
	if p, ok := f.players[commit.WinnerID]; ok {
		p.Wins++
	}
	if p, ok := f.players[commit.LoserID]; ok {
		p.Losses++
	}
	if commit.ImmunityGrant != nil {
		if p, ok := f.players[commit.ImmunityGrant.PlayerID]; ok {
			until := commit.ImmunityGrant.Until
			p.ImmunityUntil = &until
		}
	}
	if commit.ConsumeFastTrackID != "" {
		if p, ok := f.players[commit.ConsumeFastTrackID]; ok {
			p.FastTrackRemaining--
		}
	}
	if commit.CompleteChallengeID != "" {
		c, ok := f.challenges[commit.CompleteChallengeID]
		if !ok {
			return fmt.Errorf("challenge %s: %w", commit.CompleteChallengeID, ErrNotFound)
		}
		if c.Status != models.ChallengeStatusPending && c.Status != models.ChallengeStatusAccepted {
			return fmt.Errorf("challenge %s resolved concurrently: %w", c.ID, ErrConflict)
		}
		c.Status = models.ChallengeStatusCompleted
	}
	f.events = append(f.events, commit.Events...)
	f.commits++
	return nil
}

func (f *fakeStorage) GetDeclineEvents(playerID string) ([]models.DeclineEvent, error) {
	return append([]models.DeclineEvent(nil), f.declines[playerID]...), nil
}

func (f *fakeStorage) AppendDecline(ev *models.DeclineEvent) error {
	f.declines[ev.PlayerID] = append(f.declines[ev.PlayerID], *ev)
	return nil
}

func (f *fakeStorage) AppendEvent(ev *models.EngineEvent) error {
	f.events = append(f.events, *ev)
	return nil
}

func (f *fakeStorage) GetChallenge(id string) (*models.Challenge, error) {
	c, ok := f.challenges[id]
	if !ok {
		return nil, fmt.Errorf("challenge %s: %w", id, ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStorage) CreateChallenge(ch *models.Challenge) error {
	cp := *ch
	f.challenges[ch.ID] = &cp
	return nil
}

func (f *fakeStorage) UpdateChallengeStatus(id, status string, expiredAt *time.Time) error {
	c, ok := f.challenges[id]
	if !ok {
		return fmt.Errorf("challenge %s: %w", id, ErrNotFound)
	}
	c.Status = status
	if expiredAt != nil {
		c.ExpiredAt = expiredAt
	}
	return nil
}

func (f *fakeStorage) ListOverdueChallenges(now time.Time) ([]models.Challenge, error) {
	var out []models.Challenge
	for _, c := range f.challenges {
		if c.Status == models.ChallengeStatusPending && !c.Deadline.After(now) {
			out = append(out, *c)
		}
	}
	return out, nil
}

// positionsOf snapshots the ladder as position -> player id.
func (f *fakeStorage) positionsOf(ladderID string) map[int]string {
	out := make(map[int]string)
	for id, p := range f.players {
		if p.LadderID == ladderID {
			out[p.Position] = id
		}
	}
	return out
}

// fakeMembershipClient scripts the membership collaborator.
type fakeMembershipClient struct {
	status *MembershipStatus
	err    error
	calls  int
}

func (c *fakeMembershipClient) GetMembershipStatus(email string) (*MembershipStatus, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.status, nil
}

// fakeMirror scripts the local membership mirror.
type fakeMirror struct {
	rows map[string]*models.MembershipMirror
}

func (m *fakeMirror) GetMembershipMirror(email string) (*models.MembershipMirror, error) {
	if m.rows == nil {
		return nil, nil
	}
	return m.rows[email], nil
}

// mustTime parses an RFC3339 timestamp for test fixtures.
func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}
