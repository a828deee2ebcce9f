package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/samber/lo"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"

	"qingyin-guild/internal/model"
	"qingyin-guild/internal/repository"
	"qingyin-guild/internal/storage"
)

const (
	minGameIDLen       = 2
	maxGameIDLen       = 20
	maxSignatureLen    = 50
	defaultApprovedMax = 50

	defaultMaxScreenshotBytes = 5 << 20
)

var allowedScreenshotTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

type CharacterService struct {
	characterRepo      *repository.CharacterRepository
	attachments        *storage.Store
	publisher          EventPublisher
	cache              Cache
	views              viewBuilder
	logger             *zap.Logger
	maxScreenshotBytes int64
}

type ScreenshotInput struct {
	CharacterID uint
	OwnerID     uint
	Filename    string
	// ContentType is the type declared by the client. It is checked, then
	// confirmed by sniffing the content.
	ContentType string
	Size        int64
	Content     io.Reader
}

func NewCharacterService(
	characterRepo *repository.CharacterRepository,
	attachments *storage.Store,
	publisher EventPublisher,
	cache Cache,
	maxScreenshotBytes int64,
	logger *zap.Logger,
) *CharacterService {
	if maxScreenshotBytes <= 0 {
		maxScreenshotBytes = defaultMaxScreenshotBytes
	}
	return &CharacterService{
		characterRepo:      characterRepo,
		attachments:        attachments,
		publisher:          publisher,
		cache:              cache,
		views:              viewBuilder{attachments: attachments, logger: logger},
		logger:             logger,
		maxScreenshotBytes: maxScreenshotBytes,
	}
}

// Create binds a new game character to the user. The record starts pending
// with no attachments.
func (s *CharacterService) Create(ctx context.Context, userID uint, gameID string) (*CharacterView, error) {
	gameID = strings.TrimSpace(gameID)
	if n := utf8.RuneCountInString(gameID); n < minGameIDLen || n > maxGameIDLen {
		return nil, ErrGameIDLength
	}

	existing, err := s.characterRepo.GetByUserIDAndGameID(ctx, userID, gameID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrGameIDExists
	}

	// Check-then-insert: two concurrent creates may both pass the cap check.
	count, err := s.characterRepo.CountByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if count >= model.MaxCharactersPerUser {
		return nil, ErrCharacterLimit
	}

	character := &model.Character{
		UserID: userID,
		GameID: gameID,
	}
	if err := s.characterRepo.Create(ctx, character); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrGameIDExists
		}
		return nil, err
	}

	view := s.views.build(ctx, *character, false)
	return &view, nil
}

func (s *CharacterService) ListOwn(ctx context.Context, userID uint) ([]CharacterView, error) {
	characters, err := s.characterRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.views.buildAll(ctx, characters, false), nil
}

// ListApproved returns the public showcase. The default page is cached.
func (s *CharacterService) ListApproved(ctx context.Context, limit int) ([]CharacterView, error) {
	if limit <= 0 {
		limit = defaultApprovedMax
	}

	var cacheKey string
	if limit == defaultApprovedMax && s.cache != nil {
		if generation, ok := approvedGeneration(ctx, s.cache, s.logger); ok {
			cacheKey = approvedCacheKey(generation)
		}
	}

	if cacheKey != "" {
		if raw, ok, err := s.cache.Get(ctx, cacheKey); err != nil {
			s.logger.Warn("read approved cache failed", zap.Error(err))
		} else if ok {
			var views []CharacterView
			if err := json.Unmarshal(raw, &views); err == nil {
				return views, nil
			}
		}
	}

	characters, err := s.characterRepo.ListApproved(ctx, limit)
	if err != nil {
		return nil, err
	}
	views := s.views.buildAll(ctx, characters, true)

	if cacheKey != "" {
		if raw, err := json.Marshal(views); err == nil {
			if err := s.cache.Set(ctx, cacheKey, raw); err != nil {
				s.logger.Warn("write approved cache failed", zap.Error(err))
			}
		}
	}
	return views, nil
}

// UpdateSignature replaces the signature text and sends the character back
// to review.
func (s *CharacterService) UpdateSignature(ctx context.Context, characterID, ownerID uint, text string) (*CharacterView, error) {
	character, err := s.getOwned(ctx, characterID, ownerID)
	if err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	if n := utf8.RuneCountInString(text); n == 0 || n > maxSignatureLen {
		return nil, ErrSignatureLength
	}

	handle, err := s.attachments.Store(ctx, storage.KindSignature, character.ID, storage.Content{
		Reader:      strings.NewReader(text),
		Size:        int64(len(text)),
		ContentType: "text/plain; charset=utf-8",
	})
	if err != nil {
		return nil, err
	}

	if err := s.characterRepo.Update(ctx, character.ID, map[string]any{
		"signature":   handle,
		"is_approved": false,
	}); err != nil {
		return nil, err
	}

	s.afterSubmit(ctx, character)
	return s.reload(ctx, character.ID)
}

// UploadScreenshot validates the image before anything is written, stores it
// under a fresh name, points the record at it and then removes the previous
// screenshot.
func (s *CharacterService) UploadScreenshot(ctx context.Context, input ScreenshotInput) (*CharacterView, error) {
	data, contentType, err := s.readScreenshot(input)
	if err != nil {
		return nil, err
	}

	character, err := s.getOwned(ctx, input.CharacterID, input.OwnerID)
	if err != nil {
		return nil, err
	}

	handle, err := s.attachments.Store(ctx, storage.KindScreenshot, character.ID, storage.Content{
		Reader:      bytes.NewReader(data),
		Size:        int64(len(data)),
		ContentType: contentType,
		Filename:    input.Filename,
	})
	if err != nil {
		return nil, err
	}

	if err := s.characterRepo.Update(ctx, character.ID, map[string]any{
		"screenshot_path": handle,
		"is_approved":     false,
	}); err != nil {
		s.removeAttachment(ctx, character.ID, handle)
		return nil, err
	}

	if previous := character.ScreenshotPath; previous != nil && *previous != handle {
		s.removeAttachment(ctx, character.ID, *previous)
	}

	s.afterSubmit(ctx, character)
	return s.reload(ctx, character.ID)
}

// Delete removes a character the caller owns, attachments first.
func (s *CharacterService) Delete(ctx context.Context, characterID, ownerID uint) error {
	character, err := s.getOwned(ctx, characterID, ownerID)
	if err != nil {
		return err
	}
	if err := s.remove(ctx, character, ownerID); err != nil {
		return err
	}
	rotateApprovedGeneration(ctx, s.cache, s.logger)
	return nil
}

func (s *CharacterService) DeleteAllForUser(ctx context.Context, userID uint) error {
	characters, err := s.characterRepo.ListByUserID(ctx, userID)
	if err != nil {
		return err
	}
	for i := range characters {
		if err := s.remove(ctx, &characters[i], userID); err != nil {
			return err
		}
	}
	if len(characters) > 0 {
		rotateApprovedGeneration(ctx, s.cache, s.logger)
	}
	return nil
}

func (s *CharacterService) remove(ctx context.Context, character *model.Character, actorID uint) error {
	if character.Signature != nil {
		s.removeAttachment(ctx, character.ID, *character.Signature)
	}
	if character.ScreenshotPath != nil {
		s.removeAttachment(ctx, character.ID, *character.ScreenshotPath)
	}
	if err := s.characterRepo.Delete(ctx, character.ID); err != nil {
		return err
	}

	publishEvent(ctx, s.publisher, s.logger, model.ModerationEvent{
		CharacterID: character.ID,
		OwnerID:     character.UserID,
		ActorID:     actorID,
		Action:      model.ActionDeleted,
		GameID:      character.GameID,
	})
	return nil
}

func (s *CharacterService) getOwned(ctx context.Context, characterID, ownerID uint) (*model.Character, error) {
	character, err := s.characterRepo.GetByID(ctx, characterID)
	if err != nil {
		return nil, err
	}
	if character == nil {
		return nil, ErrCharacterNotFound
	}
	if character.UserID != ownerID {
		return nil, ErrNotCharacterOwner
	}
	return character, nil
}

func (s *CharacterService) reload(ctx context.Context, characterID uint) (*CharacterView, error) {
	character, err := s.characterRepo.GetByID(ctx, characterID)
	if err != nil {
		return nil, err
	}
	if character == nil {
		return nil, ErrCharacterNotFound
	}
	view := s.views.build(ctx, *character, false)
	return &view, nil
}

func (s *CharacterService) afterSubmit(ctx context.Context, character *model.Character) {
	publishEvent(ctx, s.publisher, s.logger, model.ModerationEvent{
		CharacterID: character.ID,
		OwnerID:     character.UserID,
		ActorID:     character.UserID,
		Action:      model.ActionSubmitted,
		GameID:      character.GameID,
	})
	if character.IsApproved {
		rotateApprovedGeneration(ctx, s.cache, s.logger)
	}
}

// removeAttachment logs and swallows failures; a missing file is already a no-op.
func (s *CharacterService) removeAttachment(ctx context.Context, characterID uint, handle string) {
	if err := s.attachments.Delete(ctx, handle); err != nil {
		s.logger.Warn("delete attachment failed",
			zap.Uint("character_id", characterID),
			zap.String("handle", handle),
			zap.Error(err),
		)
	}
}

// readScreenshot reads at most the size limit and returns the content with
// its sniffed MIME type.
func (s *CharacterService) readScreenshot(input ScreenshotInput) ([]byte, string, error) {
	if input.Content == nil {
		return nil, "", ErrUnsupportedImage
	}
	if input.Size > s.maxScreenshotBytes {
		return nil, "", ErrImageTooLarge
	}
	if declared := mediaType(input.ContentType); declared != "" && !lo.Contains(allowedScreenshotTypes, declared) {
		return nil, "", ErrUnsupportedImage
	}

	data, err := io.ReadAll(io.LimitReader(input.Content, s.maxScreenshotBytes+1))
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > s.maxScreenshotBytes {
		return nil, "", ErrImageTooLarge
	}

	detected := mimetype.Detect(data)
	contentType, ok := lo.Find(allowedScreenshotTypes, detected.Is)
	if !ok {
		return nil, "", ErrUnsupportedImage
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, "", ErrUnsupportedImage
	}
	return data, contentType, nil
}

func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	parsed, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return parsed
}
