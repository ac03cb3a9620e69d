package services

import (
	"time"

	"ladder-challenge-system/models"
)

// PhaseClock resolves the active membership phase from wall-clock time.
// Three disjoint ranges: testing < TrialStart ≤ trial < FullStart ≤ full.
// Anything at or past FullStart is full; there are no error cases.
type PhaseClock struct {
	TrialStart time.Time
	FullStart  time.Time

	TestingFee float64
	TrialFee   float64
	FullFee    float64
}

func NewPhaseClock(trialStart, fullStart time.Time, testingFee, trialFee, fullFee float64) *PhaseClock {
	return &PhaseClock{
		TrialStart: trialStart,
		FullStart:  fullStart,
		TestingFee: testingFee,
		TrialFee:   trialFee,
		FullFee:    fullFee,
	}
}

// CurrentPhase is a pure function over the configured date ranges.
func (pc *PhaseClock) CurrentPhase(now time.Time) models.MembershipPhase {
	switch {
	case now.Before(pc.TrialStart):
		return models.MembershipPhase{
			Phase:     models.PhaseTesting,
			FeeAmount: pc.TestingFee,
			IsFree:    pc.TestingFee == 0,
		}
	case now.Before(pc.FullStart):
		return models.MembershipPhase{
			Phase:     models.PhaseTrial,
			FeeAmount: pc.TrialFee,
			IsFree:    pc.TrialFee == 0,
		}
	default:
		return models.MembershipPhase{
			Phase:     models.PhaseFull,
			FeeAmount: pc.FullFee,
			IsFree:    pc.FullFee == 0,
		}
	}
}
