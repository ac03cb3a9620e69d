package services

import (
	"log"

	"ladder-challenge-system/models"
)

// GateDecision is a routine business outcome, never an error. Denials carry a
// human-readable reason for the presentation layer.
type GateDecision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// MirrorLookup reads the locally synced membership mirror. Used only for the
// promotional-grandfathering check; a mirror row never causes a denial.
type MirrorLookup interface {
	GetMembershipMirror(email string) (*models.MembershipMirror, error)
}

// MembershipGate decides, per player and phase, whether challenge/report
// actions are permitted. If the membership lookup itself is unreachable the
// gate fails OPEN — availability is deliberately favored over enforcement.
type MembershipGate struct {
	Client MembershipClient
	Mirror MirrorLookup
}

func NewMembershipGate(client MembershipClient, mirror MirrorLookup) *MembershipGate {
	return &MembershipGate{Client: client, Mirror: mirror}
}

// CanAct runs the checks in fixed order: admin, free phase, trial-phase
// membership record (including promotionally-grandfathered mirrors), then the
// player's own membership status.
func (g *MembershipGate) CanAct(player *models.Player, phase models.MembershipPhase, isAdmin bool) GateDecision {
	if isAdmin {
		return GateDecision{Allowed: true, Reason: "admin"}
	}

	if phase.IsFree {
		return GateDecision{Allowed: true, Reason: "free phase"}
	}

	if phase.Phase == models.PhaseTrial {
		status, err := g.Client.GetMembershipStatus(player.Email)
		if err != nil {
			// Soft-fail: membership service unreachable. Let the action
			// through rather than block play on a dependency outage.
			log.Printf("⚠️ [GATE] membership lookup failed for %s, failing open: %v", player.Email, err)
			return GateDecision{Allowed: true, Reason: "membership service unavailable, allowed by policy"}
		}
		if status.Active || status.IsPromotional {
			return GateDecision{Allowed: true, Reason: "trial membership record"}
		}

		// Grandfathered promotional members keep trial access even after the
		// live record lapses.
		if g.Mirror != nil {
			if mirror, err := g.Mirror.GetMembershipMirror(player.Email); err == nil && mirror != nil && mirror.IsPromotional {
				return GateDecision{Allowed: true, Reason: "grandfathered promotional membership"}
			}
		}
	}

	if player.MembershipActive() {
		return GateDecision{Allowed: true, Reason: "active membership"}
	}

	return GateDecision{
		Allowed: false,
		Reason:  "membership required: current status is '" + player.MembershipStatus + "'",
	}
}
