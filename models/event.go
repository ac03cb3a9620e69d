package models

// Engine event types. Rows are an outbox for the notification layer; the
// engine never owns delivery transport.
const (
	EventChallengeClassified = "ChallengeClassified"
	EventMatchApplied        = "MatchApplied"
	EventImmunityGranted     = "ImmunityGranted"
	EventDeclineRecorded     = "DeclineRecorded"
	EventChallengeExpired    = "ChallengeExpired"
)

// EngineEvent — appended by the engine, streamed to consumers over SSE.
type EngineEvent struct {
	ID       string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	Type     string `gorm:"type:varchar(32);index;not null" json:"type"`
	LadderID string `gorm:"index" json:"ladder_id,omitempty"`
	PlayerID string `gorm:"index" json:"player_id,omitempty"`

	// Payload is event-specific JSON, e.g. the ladder delta for MatchApplied.
	Payload string `gorm:"type:text" json:"payload"`

	Timestamps
}
