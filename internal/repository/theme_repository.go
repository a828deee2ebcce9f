package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"qingyin-guild/internal/model"
)

type ThemeRepository struct {
	db *gorm.DB
}

func NewThemeRepository(db *gorm.DB) *ThemeRepository {
	return &ThemeRepository{db: db}
}

// GetOrCreate returns the singleton row, inserting it with defaultColor when absent.
func (r *ThemeRepository) GetOrCreate(ctx context.Context, defaultColor string) (*model.ThemeSetting, error) {
	setting := model.ThemeSetting{ID: model.ThemeSingletonID}
	err := r.db.WithContext(ctx).
		Where(model.ThemeSetting{ID: model.ThemeSingletonID}).
		Attrs(model.ThemeSetting{ThemeColor: defaultColor}).
		FirstOrCreate(&setting).Error
	if err != nil {
		return nil, fmt.Errorf("get theme setting failed: %w", err)
	}
	return &setting, nil
}

// Upsert writes the singleton in one statement.
func (r *ThemeRepository) Upsert(ctx context.Context, color string) (*model.ThemeSetting, error) {
	setting := model.ThemeSetting{
		ID:         model.ThemeSingletonID,
		ThemeColor: color,
		UpdatedAt:  time.Now(),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"theme_color", "updated_at"}),
	}).Create(&setting).Error
	if err != nil {
		return nil, fmt.Errorf("upsert theme setting failed: %w", err)
	}
	return &setting, nil
}
