package app

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"qingyin-guild/internal/model"
	"qingyin-guild/internal/storage"
)

type UserSummary struct {
	ID        uint      `json:"id"`
	Username  string    `json:"username"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

type OwnerView struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
}

// CharacterView is what clients see of a character. Signature holds the
// resolved text, never the attachment handle.
type CharacterView struct {
	ID            uint       `json:"id"`
	GameID        string     `json:"game_id"`
	Signature     string     `json:"signature"`
	ScreenshotURL string     `json:"screenshot_url"`
	IsApproved    bool       `json:"is_approved"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	Owner         *OwnerView `json:"user,omitempty"`
}

func newUserSummary(user *model.User) UserSummary {
	return UserSummary{
		ID:        user.ID,
		Username:  user.Username,
		IsAdmin:   user.IsAdmin,
		CreatedAt: user.CreatedAt,
	}
}

// viewBuilder turns character records into views, reading signature text from
// the attachment store.
type viewBuilder struct {
	attachments *storage.Store
	logger      *zap.Logger
}

func (b viewBuilder) build(ctx context.Context, character model.Character, withOwner bool) CharacterView {
	view := CharacterView{
		ID:         character.ID,
		GameID:     character.GameID,
		Signature:  b.signature(ctx, character),
		IsApproved: character.IsApproved,
		CreatedAt:  character.CreatedAt,
		UpdatedAt:  character.UpdatedAt,
	}
	if character.ScreenshotPath != nil {
		view.ScreenshotURL = storage.URL(*character.ScreenshotPath)
	}
	if withOwner && character.Owner != nil {
		view.Owner = &OwnerView{ID: character.Owner.ID, Username: character.Owner.Username}
	}
	return view
}

func (b viewBuilder) buildAll(ctx context.Context, characters []model.Character, withOwner bool) []CharacterView {
	views := make([]CharacterView, 0, len(characters))
	for _, character := range characters {
		views = append(views, b.build(ctx, character, withOwner))
	}
	return views
}

// signature degrades to "" when the attachment cannot be read.
func (b viewBuilder) signature(ctx context.Context, character model.Character) string {
	if character.Signature == nil {
		return ""
	}
	data, err := b.attachments.Read(ctx, *character.Signature)
	if err != nil {
		level := b.logger.Error
		if errors.Is(err, storage.ErrNotFound) {
			level = b.logger.Warn
		}
		level("read signature attachment failed",
			zap.Uint("character_id", character.ID),
			zap.String("handle", *character.Signature),
			zap.Error(err),
		)
		return ""
	}
	return string(data)
}
