package model

import "time"

// MaxCharactersPerUser caps how many game characters one account may bind.
const MaxCharactersPerUser = 3

// Character is a user's game character card. Signature and ScreenshotPath hold
// attachment handles, not content.
type Character struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         uint      `gorm:"not null;uniqueIndex:idx_characters_user_game,priority:1" json:"user_id"`
	GameID         string    `gorm:"size:64;not null;uniqueIndex:idx_characters_user_game,priority:2" json:"game_id"`
	Signature      *string   `gorm:"size:255" json:"signature"`
	ScreenshotPath *string   `gorm:"size:255" json:"screenshot_path"`
	IsApproved     bool      `gorm:"not null;default:false;index" json:"is_approved"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	Owner *User `gorm:"foreignKey:UserID" json:"-"`
}
