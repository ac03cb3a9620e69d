package models

import (
	"time"
)

// Player is a ranked slot holder on a ladder. Position is reassigned only by
// the ranking mutator; everything else is profile/state the engine reads.
type Player struct {
	ID       string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	LadderID string `gorm:"index;not null" json:"ladder_id"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Name     string `json:"name"`

	// Position is unique and contiguous within the ladder (1..N).
	Position int  `gorm:"not null" json:"position"`
	IsActive bool `gorm:"default:true" json:"is_active"`

	Wins   int64 `gorm:"default:0" json:"wins"`
	Losses int64 `gorm:"default:0" json:"losses"`

	// ImmunityUntil is the denormalized current value; the full refresh
	// history lives in ImmunityGrant rows.
	ImmunityUntil *time.Time `json:"immunity_until,omitempty"`

	// Fast-track privilege. ChallengesRemaining is authoritative only while
	// now < FastTrackExpiresAt; past expiry it reads as 0.
	FastTrackRemaining int        `gorm:"default:0" json:"fast_track_remaining"`
	FastTrackExpiresAt *time.Time `json:"fast_track_expires_at,omitempty"`

	HasVerifiedAccount bool   `gorm:"default:false" json:"has_verified_account"`
	IsAdmin            bool   `gorm:"default:false" json:"is_admin"`
	MembershipStatus   string `gorm:"type:varchar(16);default:'none'" json:"membership_status"` // none, active, lapsed

	Timestamps
}

// MembershipActive reports whether the player's own membership record is
// current. The gate may still allow an action in free or promotional phases.
func (p *Player) MembershipActive() bool {
	return p.MembershipStatus == "active"
}

// FastTrackUsable reports whether the fast-track privilege is live at now.
func (p *Player) FastTrackUsable(now time.Time) bool {
	if p.FastTrackExpiresAt == nil || !now.Before(*p.FastTrackExpiresAt) {
		return false
	}
	return p.FastTrackRemaining > 0
}

// DeclineEvent records one use of a decline token. Rows are append-only and
// never deleted; entries older than 30 days simply stop counting.
type DeclineEvent struct {
	ID          string    `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	PlayerID    string    `gorm:"index;not null" json:"player_id"`
	ChallengeID string    `gorm:"index" json:"challenge_id,omitempty"`
	UsedAt      time.Time `gorm:"index;not null" json:"used_at"`

	Timestamps
}

// ImmunityGrant is the audit trail of immunity refreshes. The current window
// is denormalized onto Player.ImmunityUntil.
type ImmunityGrant struct {
	ID        string    `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	PlayerID  string    `gorm:"index;not null" json:"player_id"`
	MatchID   string    `gorm:"index" json:"match_id,omitempty"`
	GrantedAt time.Time `gorm:"not null" json:"granted_at"`
	Until     time.Time `gorm:"not null" json:"until"`

	Timestamps
}
