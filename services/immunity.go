package services

import (
	"time"

	"ladder-challenge-system/models"
)

// ImmunityDuration is the post-win non-challengeable window.
const ImmunityDuration = 7 * 24 * time.Hour

// GrantImmunity computes the refreshed window end. A new win overwrites any
// prior value; windows never stack.
func GrantImmunity(completedAt time.Time) time.Time {
	return completedAt.Add(ImmunityDuration)
}

// IsImmune reports whether the player is inside an immunity window at now.
func IsImmune(player *models.Player, now time.Time) bool {
	return player.ImmunityUntil != nil && now.Before(*player.ImmunityUntil)
}
