package app

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"qingyin-guild/internal/model"
)

const (
	cacheKeyApproved           = "characters:approved"
	cacheKeyApprovedGeneration = "characters:generation"
	cacheKeyThemeColor         = "theme:color"
)

// Cache is a best-effort byte cache. Errors are logged and the caller falls
// back to the database.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event model.ModerationEvent) error
}

// CharacterPurger removes every character of a user along with its attachments.
type CharacterPurger interface {
	DeleteAllForUser(ctx context.Context, userID uint) error
}

func publishEvent(ctx context.Context, publisher EventPublisher, logger *zap.Logger, event model.ModerationEvent) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, event); err != nil {
		logger.Warn("publish moderation event failed",
			zap.Uint("character_id", event.CharacterID),
			zap.String("action", string(event.Action)),
			zap.Error(err),
		)
	}
}

// The approved list is cached under a key carrying a generation token.
// Mutations replace the token, so a list read from the database before a
// mutation can only be stored under a key that is no longer read.

func approvedCacheKey(generation string) string {
	return cacheKeyApproved + ":" + generation
}

// approvedGeneration returns the current token. When there is none it starts
// a new one and reports false; the caller must not cache on that call.
func approvedGeneration(ctx context.Context, cache Cache, logger *zap.Logger) (string, bool) {
	raw, ok, err := cache.Get(ctx, cacheKeyApprovedGeneration)
	if err != nil {
		logger.Warn("read approved generation failed", zap.Error(err))
		return "", false
	}
	if ok && len(raw) > 0 {
		return string(raw), true
	}
	rotateApprovedGeneration(ctx, cache, logger)
	return "", false
}

// rotateApprovedGeneration must run after the database write it publishes.
func rotateApprovedGeneration(ctx context.Context, cache Cache, logger *zap.Logger) {
	if cache == nil {
		return
	}
	if err := cache.Set(ctx, cacheKeyApprovedGeneration, []byte(uuid.NewString())); err != nil {
		logger.Warn("rotate approved generation failed", zap.Error(err))
		if err := cache.Delete(ctx, cacheKeyApprovedGeneration); err != nil {
			logger.Warn("drop approved generation failed", zap.Error(err))
		}
	}
}
