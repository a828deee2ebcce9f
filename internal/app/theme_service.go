package app

import (
	"context"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"qingyin-guild/internal/model"
	"qingyin-guild/internal/repository"
)

type ThemeService struct {
	themeRepo *repository.ThemeRepository
	cache     Cache
	logger    *zap.Logger
}

func NewThemeService(themeRepo *repository.ThemeRepository, cache Cache, logger *zap.Logger) *ThemeService {
	return &ThemeService{themeRepo: themeRepo, cache: cache, logger: logger}
}

func (s *ThemeService) Colors() []string {
	return append([]string(nil), model.ThemeColors...)
}

// Get returns the site color, creating the default setting if none exists.
func (s *ThemeService) Get(ctx context.Context) (string, error) {
	if s.cache != nil {
		raw, ok, err := s.cache.Get(ctx, cacheKeyThemeColor)
		if err != nil {
			s.logger.Warn("read theme cache failed", zap.Error(err))
		} else if ok && lo.Contains(model.ThemeColors, string(raw)) {
			return string(raw), nil
		}
	}

	setting, err := s.themeRepo.GetOrCreate(ctx, model.DefaultThemeColor)
	if err != nil {
		return "", err
	}
	color := setting.ThemeColor
	if !lo.Contains(model.ThemeColors, color) {
		s.logger.Warn("stored theme color is invalid, using default", zap.String("color", color))
		color = model.DefaultThemeColor
	}

	s.remember(ctx, color)
	return color, nil
}

func (s *ThemeService) Set(ctx context.Context, color string) (string, error) {
	color = strings.TrimSpace(color)
	if !lo.Contains(model.ThemeColors, color) {
		return "", ErrInvalidThemeColor
	}

	setting, err := s.themeRepo.Upsert(ctx, color)
	if err != nil {
		return "", err
	}

	s.remember(ctx, setting.ThemeColor)
	return setting.ThemeColor, nil
}

func (s *ThemeService) remember(ctx context.Context, color string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKeyThemeColor, []byte(color)); err != nil {
		s.logger.Warn("write theme cache failed", zap.Error(err))
	}
}
