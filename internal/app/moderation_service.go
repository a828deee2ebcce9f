package app

import (
	"context"

	"go.uber.org/zap"

	"qingyin-guild/internal/model"
	"qingyin-guild/internal/repository"
	"qingyin-guild/internal/storage"
)

// ModerationService is the admin side of the character review queue. A
// rejected character is stored exactly like one that was never reviewed;
// only the event log tells them apart.
type ModerationService struct {
	characterRepo *repository.CharacterRepository
	eventRepo     *repository.ModerationEventRepository
	publisher     EventPublisher
	cache         Cache
	views         viewBuilder
	logger        *zap.Logger
}

func NewModerationService(
	characterRepo *repository.CharacterRepository,
	eventRepo *repository.ModerationEventRepository,
	attachments *storage.Store,
	publisher EventPublisher,
	cache Cache,
	logger *zap.Logger,
) *ModerationService {
	return &ModerationService{
		characterRepo: characterRepo,
		eventRepo:     eventRepo,
		publisher:     publisher,
		cache:         cache,
		views:         viewBuilder{attachments: attachments, logger: logger},
		logger:        logger,
	}
}

func (s *ModerationService) ListPending(ctx context.Context) ([]CharacterView, error) {
	characters, err := s.characterRepo.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	return s.views.buildAll(ctx, characters, true), nil
}

// Review approves or rejects a character. Only the approval flag changes.
func (s *ModerationService) Review(ctx context.Context, reviewerID, characterID uint, approve bool) (*CharacterView, error) {
	character, err := s.characterRepo.GetByID(ctx, characterID)
	if err != nil {
		return nil, err
	}
	if character == nil {
		return nil, ErrCharacterNotFound
	}

	if err := s.characterRepo.Update(ctx, character.ID, map[string]any{"is_approved": approve}); err != nil {
		return nil, err
	}
	character.IsApproved = approve

	action := model.ActionRejected
	if approve {
		action = model.ActionApproved
	}
	publishEvent(ctx, s.publisher, s.logger, model.ModerationEvent{
		CharacterID: character.ID,
		OwnerID:     character.UserID,
		ActorID:     reviewerID,
		Action:      action,
		GameID:      character.GameID,
	})
	rotateApprovedGeneration(ctx, s.cache, s.logger)

	s.logger.Info("character reviewed",
		zap.Uint("character_id", character.ID),
		zap.Uint("reviewer_id", reviewerID),
		zap.Bool("approved", approve),
	)

	view := s.views.build(ctx, *character, false)
	return &view, nil
}

// ListEvents returns the audit trail of a character, newest first. Events
// outlive the character they describe.
func (s *ModerationService) ListEvents(ctx context.Context, characterID uint) ([]model.ModerationEvent, error) {
	return s.eventRepo.ListByCharacterID(ctx, characterID)
}
