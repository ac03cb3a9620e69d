package models

import (
	"time"
)

// Membership phases. Derived from wall-clock time, never persisted per
// player.
const (
	PhaseTesting = "testing"
	PhaseTrial   = "trial"
	PhaseFull    = "full"
)

// MembershipPhase is the resolved phase plus its fee terms.
type MembershipPhase struct {
	Phase     string  `json:"phase"`
	FeeAmount float64 `json:"fee_amount"`
	IsFree    bool    `json:"is_free"`
}

// MembershipMirror is a local snapshot of membership records fetched from the
// membership service. Owned solely by this service; populated by the sync
// worker. The gate reads it for the promotional-grandfathering check.
type MembershipMirror struct {
	ID            string    `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	Email         string    `gorm:"uniqueIndex;not null" json:"email"`
	Active        bool      `gorm:"default:false" json:"active"`
	Status        string    `gorm:"type:varchar(32)" json:"status"`
	IsPromotional bool      `gorm:"default:false" json:"is_promotional"`
	SyncedAt      time.Time `gorm:"index" json:"synced_at"`

	Timestamps
}
