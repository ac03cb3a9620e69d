package models

import (
	"time"
)

// Match records a resolved challenge. It is the sole trigger for ranking
// mutation.
type Match struct {
	ID           string  `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	LadderID     string  `gorm:"index;not null" json:"ladder_id"`
	ChallengeID  *string `gorm:"index" json:"challenge_id,omitempty"`
	ChallengerID string  `gorm:"index;not null" json:"challenger_id"`
	DefenderID   string  `gorm:"index;not null" json:"defender_id"`
	WinnerID     string  `gorm:"index;not null" json:"winner_id"`
	Variant      string  `gorm:"type:varchar(16);not null" json:"variant"`

	CompletedAt time.Time `gorm:"index;not null" json:"completed_at"`

	Timestamps
}

// ChallengerWon reports whether the challenger took the match.
func (m *Match) ChallengerWon() bool {
	return m.WinnerID == m.ChallengerID
}
