package model

import "time"

type ModerationAction string

const (
	ActionSubmitted ModerationAction = "submitted"
	ActionApproved  ModerationAction = "approved"
	ActionRejected  ModerationAction = "rejected"
	ActionDeleted   ModerationAction = "deleted"
)

// ModerationEvent is an append-only audit record. ActorID is the user who
// caused the transition (the owner for edits, the admin for reviews).
type ModerationEvent struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	CharacterID uint             `gorm:"not null;index" json:"character_id"`
	OwnerID     uint             `gorm:"not null;index" json:"owner_id"`
	ActorID     uint             `gorm:"not null" json:"actor_id"`
	Action      ModerationAction `gorm:"size:16;not null" json:"action"`
	GameID      string           `gorm:"size:64" json:"game_id"`
	CreatedAt   time.Time        `json:"created_at"`
}
