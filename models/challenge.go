package models

import (
	"time"
)

// Challenge variants. Each carries its own eligibility band and position
// mutation rule.
const (
	VariantChallenge = "challenge"
	VariantSmackDown = "smackdown"
	VariantSmackBack = "smackback"
	VariantFastTrack = "fast-track"
)

// Challenge statuses. Completed, declined, countered and expired are
// terminal; a completed challenge can never be resolved again.
const (
	ChallengeStatusPending   = "pending"
	ChallengeStatusAccepted  = "accepted"
	ChallengeStatusCompleted = "completed"
	ChallengeStatusDeclined  = "declined"
	ChallengeStatusCountered = "countered"
	ChallengeStatusExpired   = "expired"
)

// Challenge is a classified, pending request between two ladder players.
type Challenge struct {
	ID           string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	LadderID     string `gorm:"index;not null" json:"ladder_id"`
	ChallengerID string `gorm:"index;not null" json:"challenger_id"`
	DefenderID   string `gorm:"index;not null" json:"defender_id"`
	Variant      string `gorm:"type:varchar(16);not null" json:"variant"`
	Status       string `gorm:"type:varchar(16);default:'pending';index" json:"status"`

	// Positions at classification time, kept for audit.
	ChallengerPosition int `json:"challenger_position"`
	DefenderPosition   int `json:"defender_position"`

	Deadline  time.Time  `gorm:"not null" json:"deadline"`
	ExpiredAt *time.Time `json:"expired_at,omitempty"`

	Timestamps
}
