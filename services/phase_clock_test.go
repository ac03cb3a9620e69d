package services

import (
	"testing"
	"time"

	"ladder-challenge-system/models"
)

func testClock() *PhaseClock {
	return NewPhaseClock(
		mustTime("2026-03-01T00:00:00Z"), // trial start
		mustTime("2026-06-01T00:00:00Z"), // full start
		0, 25, 100,
	)
}

func TestCurrentPhaseRanges(t *testing.T) {
	clock := testClock()

	tests := []struct {
		name      string
		now       time.Time
		wantPhase string
		wantFee   float64
		wantFree  bool
	}{
		{"well before trial", mustTime("2026-01-15T12:00:00Z"), models.PhaseTesting, 0, true},
		{"instant before trial", mustTime("2026-02-28T23:59:59Z"), models.PhaseTesting, 0, true},
		{"trial boundary inclusive", mustTime("2026-03-01T00:00:00Z"), models.PhaseTrial, 25, false},
		{"mid trial", mustTime("2026-04-10T08:00:00Z"), models.PhaseTrial, 25, false},
		{"full boundary inclusive", mustTime("2026-06-01T00:00:00Z"), models.PhaseFull, 100, false},
		{"far future defaults to full", mustTime("2030-01-01T00:00:00Z"), models.PhaseFull, 100, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := clock.CurrentPhase(tt.now)
			if got.Phase != tt.wantPhase {
				t.Fatalf("phase = %s, want %s", got.Phase, tt.wantPhase)
			}
			if got.FeeAmount != tt.wantFee {
				t.Fatalf("fee = %v, want %v", got.FeeAmount, tt.wantFee)
			}
			if got.IsFree != tt.wantFree {
				t.Fatalf("isFree = %v, want %v", got.IsFree, tt.wantFree)
			}
		})
	}
}

func TestCurrentPhaseIsPure(t *testing.T) {
	clock := testClock()
	now := mustTime("2026-04-01T00:00:00Z")

	first := clock.CurrentPhase(now)
	for i := 0; i < 5; i++ {
		if got := clock.CurrentPhase(now); got != first {
			t.Fatalf("call %d returned %+v, first call returned %+v", i, got, first)
		}
	}
}
