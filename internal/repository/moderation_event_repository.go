package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"qingyin-guild/internal/model"
)

type ModerationEventRepository struct {
	db *gorm.DB
}

func NewModerationEventRepository(db *gorm.DB) *ModerationEventRepository {
	return &ModerationEventRepository{db: db}
}

func (r *ModerationEventRepository) Create(ctx context.Context, event *model.ModerationEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("create moderation event failed: %w", err)
	}
	return nil
}

func (r *ModerationEventRepository) ListByCharacterID(ctx context.Context, characterID uint) ([]model.ModerationEvent, error) {
	var events []model.ModerationEvent
	if err := r.db.WithContext(ctx).Where("character_id = ?", characterID).Order("created_at DESC, id DESC").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list moderation events failed: %w", err)
	}
	return events, nil
}

// Publish records the event synchronously. It is used in place of the broker
// when no RabbitMQ is configured.
func (r *ModerationEventRepository) Publish(ctx context.Context, event model.ModerationEvent) error {
	event.ID = 0
	return r.Create(ctx, &event)
}
