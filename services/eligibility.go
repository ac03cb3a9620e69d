package services

import (
	"fmt"
	"time"

	"ladder-challenge-system/models"
)

// Eligibility bands, expressed over diff = defenderPosition −
// challengerPosition (negative means the defender is ranked better). This is
// the single sign convention for every band in the engine.
const (
	StandardBandLow   = -4 // challenge: -4 ≤ diff ≤ 0
	FastTrackBandLow  = -6 // fast-track: -6 ≤ diff ≤ 0
	SmackDownBandHigh = 5  // smackdown: 0 < diff ≤ 5

	// SmackBackLookback is how far back a won smackdown still qualifies the
	// challenger to take a shot at position 1.
	SmackBackLookback = 7 * 24 * time.Hour
)

// Decision is the outcome of classifying a challenge request. Denials are
// routine business results, not errors.
type Decision struct {
	Variant string `json:"variant,omitempty"`
	Denied  bool   `json:"denied"`
	Reason  string `json:"reason,omitempty"`
}

func deny(reason string) Decision {
	return Decision{Denied: true, Reason: reason}
}

func allow(variant string) Decision {
	return Decision{Variant: variant}
}

// EligibilityEvaluator classifies a challenge request. Checks run in a fixed
// order and the first failure is the returned reason, so identical inputs
// always yield the identical decision.
type EligibilityEvaluator struct {
	Store Storage
}

func NewEligibilityEvaluator(store Storage) *EligibilityEvaluator {
	return &EligibilityEvaluator{Store: store}
}

// Classify decides whether challenger may challenge defender at now, and
// which variant applies. Players are compared by identity, never by name.
func (e *EligibilityEvaluator) Classify(challenger, defender *models.Player, now time.Time) (Decision, error) {
	if challenger.LadderID != defender.LadderID {
		return deny("players are not on the same ladder"), nil
	}
	if !challenger.HasVerifiedAccount {
		return deny("challenger account is not verified"), nil
	}
	if !defender.HasVerifiedAccount {
		return deny("defender account is not verified"), nil
	}
	if challenger.ID == defender.ID {
		return deny("players cannot challenge themselves"), nil
	}
	if !challenger.IsActive {
		return deny("challenger is not active on the ladder"), nil
	}
	if !defender.IsActive {
		return deny("defender is not active on the ladder"), nil
	}
	if IsImmune(defender, now) {
		return deny(fmt.Sprintf("defender immune until %s", defender.ImmunityUntil.Format(time.RFC3339))), nil
	}

	diff := defender.Position - challenger.Position

	// SmackBack: a shot at the top seat, bypassing the range bands.
	if defender.Position == 1 {
		eligible, err := e.wonRecentSmackDown(challenger.ID, now)
		if err != nil {
			return Decision{}, err
		}
		if eligible {
			return allow(models.VariantSmackBack), nil
		}
	}

	if challenger.FastTrackUsable(now) && diff >= FastTrackBandLow && diff <= 0 {
		return allow(models.VariantFastTrack), nil
	}

	if diff >= StandardBandLow && diff <= 0 {
		return allow(models.VariantChallenge), nil
	}

	if diff > 0 && diff <= SmackDownBandHigh {
		return allow(models.VariantSmackDown), nil
	}

	if diff < StandardBandLow {
		return deny(fmt.Sprintf("defender is %d positions above the challenge range", StandardBandLow-diff)), nil
	}
	return deny(fmt.Sprintf("defender is %d positions below the smackdown range", diff-SmackDownBandHigh)), nil
}

// wonRecentSmackDown reports whether the challenger won a completed smackdown
// inside the lookback window. The scan is bounded by the window itself, so no
// amount of other matches can push a qualifying win out of sight.
func (e *EligibilityEvaluator) wonRecentSmackDown(challengerID string, now time.Time) (bool, error) {
	matches, err := e.Store.GetMatchesSince(challengerID, now.Add(-SmackBackLookback))
	if err != nil {
		return false, err
	}
	for _, m := range matches {
		if m.Variant != models.VariantSmackDown {
			continue
		}
		if m.WinnerID != challengerID {
			continue
		}
		if now.Sub(m.CompletedAt) <= SmackBackLookback {
			return true, nil
		}
	}
	return false, nil
}
