package services

import (
	"strings"
	"testing"
	"time"

	"ladder-challenge-system/models"

	"github.com/google/uuid"
)

func seededEvaluator(t *testing.T, n int) (*EligibilityEvaluator, *fakeStorage) {
	t.Helper()
	store := newFakeStorage()
	store.seedLadder("ladder-a", n)
	return NewEligibilityEvaluator(store), store
}

func playerAt(store *fakeStorage, id string) *models.Player {
	p, err := store.GetPlayer(id)
	if err != nil {
		panic(err)
	}
	return p
}

func TestClassifyOrderedDenials(t *testing.T) {
	eval, store := seededEvaluator(t, 10)
	now := mustTime("2026-04-01T00:00:00Z")
	immuneUntil := now.Add(24 * time.Hour)

	otherLadder := &models.Player{
		ID: "px", LadderID: "ladder-b", Position: 3,
		IsActive: true, HasVerifiedAccount: true,
	}

	tests := []struct {
		name       string
		challenger *models.Player
		defender   *models.Player
		wantPart   string
	}{
		{"different ladders", playerAt(store, "p5"), otherLadder, "same ladder"},
		{
			"challenger unverified",
			func() *models.Player { p := playerAt(store, "p5"); p.HasVerifiedAccount = false; return p }(),
			playerAt(store, "p2"),
			"challenger account",
		},
		{
			"defender unverified",
			playerAt(store, "p5"),
			func() *models.Player { p := playerAt(store, "p2"); p.HasVerifiedAccount = false; return p }(),
			"defender account",
		},
		{"self challenge", playerAt(store, "p5"), playerAt(store, "p5"), "themselves"},
		{
			"challenger inactive",
			func() *models.Player { p := playerAt(store, "p5"); p.IsActive = false; return p }(),
			playerAt(store, "p2"),
			"challenger is not active",
		},
		{
			"defender inactive",
			playerAt(store, "p5"),
			func() *models.Player { p := playerAt(store, "p2"); p.IsActive = false; return p }(),
			"defender is not active",
		},
		{
			"defender immune",
			playerAt(store, "p5"),
			func() *models.Player { p := playerAt(store, "p2"); p.ImmunityUntil = &immuneUntil; return p }(),
			"immune until",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := eval.Classify(tt.challenger, tt.defender, now)
			if err != nil {
				t.Fatal(err)
			}
			if !got.Denied {
				t.Fatalf("expected denial, got variant %q", got.Variant)
			}
			if !strings.Contains(got.Reason, tt.wantPart) {
				t.Fatalf("reason %q does not mention %q", got.Reason, tt.wantPart)
			}
		})
	}
}

// An unverified defender outranks the immunity check: the first failing check
// in the fixed order is the returned reason.
func TestClassifyFirstFailureWins(t *testing.T) {
	eval, store := seededEvaluator(t, 10)
	now := mustTime("2026-04-01T00:00:00Z")
	immuneUntil := now.Add(24 * time.Hour)

	defender := playerAt(store, "p2")
	defender.HasVerifiedAccount = false
	defender.ImmunityUntil = &immuneUntil

	got, err := eval.Classify(playerAt(store, "p5"), defender, now)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got.Reason, "defender account") {
		t.Fatalf("reason %q, want the verification failure first", got.Reason)
	}
}

func TestClassifyBandBoundaries(t *testing.T) {
	now := mustTime("2026-04-01T00:00:00Z")
	ftExpiry := now.Add(48 * time.Hour)

	tests := []struct {
		name        string
		challenger  string
		defender    string
		fastTrack   bool
		wantVariant string
		wantDenied  bool
	}{
		{name: "diff -4 standard", challenger: "p6", defender: "p2", wantVariant: models.VariantChallenge},
		{name: "diff -5 out of standard band", challenger: "p7", defender: "p2", wantDenied: true},
		{name: "diff -5 fast-track", challenger: "p7", defender: "p2", fastTrack: true, wantVariant: models.VariantFastTrack},
		{name: "diff -6 fast-track", challenger: "p8", defender: "p2", fastTrack: true, wantVariant: models.VariantFastTrack},
		{name: "diff -7 beyond fast-track", challenger: "p9", defender: "p2", fastTrack: true, wantDenied: true},
		{name: "diff -1 fast-track claims band first", challenger: "p3", defender: "p2", fastTrack: true, wantVariant: models.VariantFastTrack},
		{name: "diff 1 smackdown", challenger: "p2", defender: "p3", wantVariant: models.VariantSmackDown},
		{name: "diff 5 smackdown", challenger: "p2", defender: "p7", wantVariant: models.VariantSmackDown},
		{name: "diff 6 below smackdown band", challenger: "p2", defender: "p8", wantDenied: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eval, store := seededEvaluator(t, 12)
			challenger := playerAt(store, tt.challenger)
			defender := playerAt(store, tt.defender)
			if tt.fastTrack {
				challenger.FastTrackRemaining = 2
				challenger.FastTrackExpiresAt = &ftExpiry
			}

			got, err := eval.Classify(challenger, defender, now)
			if err != nil {
				t.Fatal(err)
			}
			if got.Denied != tt.wantDenied {
				t.Fatalf("denied = %v (%s), want %v", got.Denied, got.Reason, tt.wantDenied)
			}
			if !tt.wantDenied && got.Variant != tt.wantVariant {
				t.Fatalf("variant = %q, want %q", got.Variant, tt.wantVariant)
			}
			if tt.wantDenied && got.Reason == "" {
				t.Fatal("denial must name how far outside the band the request falls")
			}
		})
	}
}

// diff = 0 cannot occur on a well-formed ladder, but the band is contractual:
// classify treats it as a standard challenge.
func TestClassifyDiffZero(t *testing.T) {
	eval, _ := seededEvaluator(t, 4)
	now := mustTime("2026-04-01T00:00:00Z")

	a := &models.Player{ID: "a", LadderID: "ladder-a", Position: 3, IsActive: true, HasVerifiedAccount: true}
	b := &models.Player{ID: "b", LadderID: "ladder-a", Position: 3, IsActive: true, HasVerifiedAccount: true}

	got, err := eval.Classify(a, b, now)
	if err != nil {
		t.Fatal(err)
	}
	if got.Denied || got.Variant != models.VariantChallenge {
		t.Fatalf("diff 0 classified as %+v, want standard challenge", got)
	}
}

func TestClassifyExpiredFastTrackBehavesAsZero(t *testing.T) {
	eval, store := seededEvaluator(t, 12)
	now := mustTime("2026-04-01T00:00:00Z")
	expired := now.Add(-time.Hour)

	challenger := playerAt(store, "p8")
	challenger.FastTrackRemaining = 3
	challenger.FastTrackExpiresAt = &expired

	got, err := eval.Classify(challenger, playerAt(store, "p2"), now)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Denied {
		t.Fatalf("expired fast-track still granted variant %q", got.Variant)
	}
}

func TestClassifySmackBack(t *testing.T) {
	eval, store := seededEvaluator(t, 12)
	now := mustTime("2026-04-01T00:00:00Z")

	challenger := playerAt(store, "p9")
	top := playerAt(store, "p1")

	// Without a recent smackdown win the gap to position 1 is just a denial.
	got, err := eval.Classify(challenger, top, now)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Denied {
		t.Fatalf("expected denial without smackback credit, got %q", got.Variant)
	}

	store.matches = append(store.matches, models.Match{
		ID:           uuid.NewString(),
		LadderID:     "ladder-a",
		ChallengerID: "p9",
		DefenderID:   "p11",
		WinnerID:     "p9",
		Variant:      models.VariantSmackDown,
		CompletedAt:  now.Add(-3 * 24 * time.Hour),
	})

	got, err = eval.Classify(challenger, top, now)
	if err != nil {
		t.Fatal(err)
	}
	if got.Variant != models.VariantSmackBack {
		t.Fatalf("variant = %+v, want smackback", got)
	}
}

func TestClassifySmackBackLookbackExpires(t *testing.T) {
	eval, store := seededEvaluator(t, 12)
	now := mustTime("2026-04-01T00:00:00Z")

	store.matches = append(store.matches, models.Match{
		ID:           uuid.NewString(),
		LadderID:     "ladder-a",
		ChallengerID: "p9",
		DefenderID:   "p11",
		WinnerID:     "p9",
		Variant:      models.VariantSmackDown,
		CompletedAt:  now.Add(-8 * 24 * time.Hour),
	})

	got, err := eval.Classify(playerAt(store, "p9"), playerAt(store, "p1"), now)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Denied {
		t.Fatalf("stale smackdown win still granted %q", got.Variant)
	}
}

// The lookback is bounded by time, not match count: a busy player's
// qualifying win stays visible behind any number of newer matches.
func TestClassifySmackBackSurvivesBusySchedule(t *testing.T) {
	eval, store := seededEvaluator(t, 12)
	now := mustTime("2026-04-01T00:00:00Z")

	store.matches = append(store.matches, models.Match{
		ID:           uuid.NewString(),
		LadderID:     "ladder-a",
		ChallengerID: "p9",
		DefenderID:   "p11",
		WinnerID:     "p9",
		Variant:      models.VariantSmackDown,
		CompletedAt:  now.Add(-6 * 24 * time.Hour),
	})
	for i := 0; i < 40; i++ {
		store.matches = append(store.matches, models.Match{
			ID:           uuid.NewString(),
			LadderID:     "ladder-a",
			ChallengerID: "p9",
			DefenderID:   "p10",
			WinnerID:     "p10",
			Variant:      models.VariantChallenge,
			CompletedAt:  now.Add(-time.Duration(i+1) * time.Hour),
		})
	}

	got, err := eval.Classify(playerAt(store, "p9"), playerAt(store, "p1"), now)
	if err != nil {
		t.Fatal(err)
	}
	if got.Variant != models.VariantSmackBack {
		t.Fatalf("variant = %+v, want smackback behind 40 newer matches", got)
	}
}

// A lost smackdown, or a smackdown won by the other side, earns no smackback.
func TestClassifySmackBackRequiresOwnWin(t *testing.T) {
	eval, store := seededEvaluator(t, 12)
	now := mustTime("2026-04-01T00:00:00Z")

	store.matches = append(store.matches, models.Match{
		ID:           uuid.NewString(),
		LadderID:     "ladder-a",
		ChallengerID: "p9",
		DefenderID:   "p11",
		WinnerID:     "p11",
		Variant:      models.VariantSmackDown,
		CompletedAt:  now.Add(-time.Hour),
	})

	got, err := eval.Classify(playerAt(store, "p9"), playerAt(store, "p1"), now)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Denied {
		t.Fatalf("lost smackdown still granted %q", got.Variant)
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	eval, store := seededEvaluator(t, 12)
	now := mustTime("2026-04-01T00:00:00Z")

	first, err := eval.Classify(playerAt(store, "p6"), playerAt(store, "p2"), now)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		got, err := eval.Classify(playerAt(store, "p6"), playerAt(store, "p2"), now)
		if err != nil {
			t.Fatal(err)
		}
		if got != first {
			t.Fatalf("call %d returned %+v, first returned %+v", i, got, first)
		}
	}
}
