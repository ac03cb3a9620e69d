package models

// Ladder is an ordered set of players ranked 1..N within one skill bracket.
// Invariant: player positions are always exactly the permutation {1..N}.
type Ladder struct {
	ID          string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	Name        string `gorm:"not null" json:"name"`
	Slug        string `gorm:"uniqueIndex;not null" json:"slug"`
	Description string `json:"description"`
	IsActive    bool   `gorm:"default:true" json:"is_active"`

	// Relationships
	Players []Player `json:"players,omitempty" gorm:"foreignKey:LadderID"`

	// Calculated fields (not stored in DB)
	PlayerCount int64 `json:"player_count,omitempty" gorm:"-"`

	Timestamps
}
