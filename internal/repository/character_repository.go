package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"qingyin-guild/internal/model"
)

type CharacterRepository struct {
	db *gorm.DB
}

func NewCharacterRepository(db *gorm.DB) *CharacterRepository {
	return &CharacterRepository{db: db}
}

func (r *CharacterRepository) Create(ctx context.Context, character *model.Character) error {
	if err := r.db.WithContext(ctx).Create(character).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return fmt.Errorf("create character failed: %w", err)
	}
	return nil
}

func (r *CharacterRepository) GetByID(ctx context.Context, id uint) (*model.Character, error) {
	var character model.Character
	if err := r.db.WithContext(ctx).First(&character, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get character failed: %w", err)
	}
	return &character, nil
}

func (r *CharacterRepository) GetByUserIDAndGameID(ctx context.Context, userID uint, gameID string) (*model.Character, error) {
	var character model.Character
	if err := r.db.WithContext(ctx).Where("user_id = ? AND game_id = ?", userID, gameID).First(&character).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get character by game id failed: %w", err)
	}
	return &character, nil
}

func (r *CharacterRepository) CountByUserID(ctx context.Context, userID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Character{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count characters failed: %w", err)
	}
	return count, nil
}

func (r *CharacterRepository) ListByUserID(ctx context.Context, userID uint) ([]model.Character, error) {
	var list []model.Character
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC, id DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list characters failed: %w", err)
	}
	return list, nil
}

// ListApproved returns approved characters newest first with Owner preloaded.
func (r *CharacterRepository) ListApproved(ctx context.Context, limit int) ([]model.Character, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var list []model.Character
	if err := r.db.WithContext(ctx).
		Preload("Owner").
		Where("is_approved = ?", true).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list approved characters failed: %w", err)
	}
	return list, nil
}

// ListPending returns unapproved characters oldest first with Owner preloaded.
func (r *CharacterRepository) ListPending(ctx context.Context) ([]model.Character, error) {
	var list []model.Character
	if err := r.db.WithContext(ctx).
		Preload("Owner").
		Where("is_approved = ?", false).
		Order("created_at ASC, id ASC").
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list pending characters failed: %w", err)
	}
	return list, nil
}

// Update writes the given columns. Maps are used so false and nil values are
// persisted instead of skipped.
func (r *CharacterRepository) Update(ctx context.Context, id uint, fields map[string]any) error {
	if err := r.db.WithContext(ctx).Model(&model.Character{}).Where("id = ?", id).Updates(fields).Error; err != nil {
		return fmt.Errorf("update character failed: %w", err)
	}
	return nil
}

func (r *CharacterRepository) Delete(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Delete(&model.Character{}, id).Error; err != nil {
		return fmt.Errorf("delete character failed: %w", err)
	}
	return nil
}

// ReferencedHandles lists every attachment handle still referenced by a record.
func (r *CharacterRepository) ReferencedHandles(ctx context.Context) (map[string]struct{}, error) {
	var rows []struct {
		Signature      *string
		ScreenshotPath *string
	}
	if err := r.db.WithContext(ctx).Model(&model.Character{}).Select("signature", "screenshot_path").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list attachment handles failed: %w", err)
	}
	handles := make(map[string]struct{}, len(rows)*2)
	for _, row := range rows {
		if row.Signature != nil {
			handles[*row.Signature] = struct{}{}
		}
		if row.ScreenshotPath != nil {
			handles[*row.ScreenshotPath] = struct{}{}
		}
	}
	return handles, nil
}
