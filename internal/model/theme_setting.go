package model

import "time"

// ThemeSingletonID is the primary key of the only theme_settings row.
const ThemeSingletonID = 1

const DefaultThemeColor = "pink"

var ThemeColors = []string{"pink", "red", "blue", "yellow", "cyan", "purple", "black"}

type ThemeSetting struct {
	ID         uint      `gorm:"primaryKey;autoIncrement:false" json:"-"`
	ThemeColor string    `gorm:"size:16;not null" json:"theme_color"`
	UpdatedAt  time.Time `json:"updated_at"`
}
