package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"qingyin-guild/internal/storage"
)

type HandleSource interface {
	ReferencedHandles(ctx context.Context) (map[string]struct{}, error)
}

// AttachmentSweeper removes attachment files that no character references,
// which happens when a process dies between writing a file and updating the
// record. Files younger than the grace period are left alone so in-flight
// uploads are not touched.
type AttachmentSweeper struct {
	attachments *storage.Store
	handles     HandleSource
	grace       time.Duration
	logger      *zap.Logger
	now         func() time.Time

	scheduler gocron.Scheduler
}

func NewAttachmentSweeper(attachments *storage.Store, handles HandleSource, grace time.Duration, logger *zap.Logger) *AttachmentSweeper {
	if grace <= 0 {
		grace = time.Hour
	}
	return &AttachmentSweeper{
		attachments: attachments,
		handles:     handles,
		grace:       grace,
		logger:      logger.Named("sweeper"),
		now:         time.Now,
	}
}

// Sweep runs one pass and returns how many attachments were removed.
func (s *AttachmentSweeper) Sweep(ctx context.Context) (int, error) {
	referenced, err := s.handles.ReferencedHandles(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := s.now().Add(-s.grace)
	removed := 0
	for _, kind := range []storage.Kind{storage.KindSignature, storage.KindScreenshot} {
		objects, err := s.attachments.List(ctx, kind)
		if err != nil {
			return removed, fmt.Errorf("list %s attachments failed: %w", kind, err)
		}
		for _, obj := range objects {
			if _, ok := referenced[obj.Key]; ok || obj.ModTime.After(cutoff) {
				continue
			}
			if err := s.attachments.Delete(ctx, obj.Key); err != nil {
				s.logger.Warn("remove orphan attachment failed", zap.String("handle", obj.Key), zap.Error(err))
				continue
			}
			removed++
		}
	}

	if removed > 0 {
		s.logger.Info("orphan attachments removed", zap.Int("count", removed))
	}
	return removed, nil
}

func (s *AttachmentSweeper) Start(interval time.Duration) error {
	if s.scheduler != nil {
		return nil
	}

	scheduler, err := gocron.NewScheduler(gocron.WithLogger(gocronLogger{s.logger.Sugar()}))
	if err != nil {
		return fmt.Errorf("create scheduler failed: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func(ctx context.Context) {
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("sweep failed", zap.Error(err))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("attachment-sweeper"),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return fmt.Errorf("schedule sweeper failed: %w", err)
	}

	scheduler.Start()
	s.scheduler = scheduler
	s.logger.Info("sweeper started", zap.Duration("interval", interval), zap.Duration("grace", s.grace))
	return nil
}

func (s *AttachmentSweeper) Close() error {
	if s.scheduler == nil {
		return nil
	}
	return s.scheduler.Shutdown()
}

type gocronLogger struct {
	log *zap.SugaredLogger
}

func (l gocronLogger) Debug(msg string, args ...any) { l.log.Debugw(msg, args...) }
func (l gocronLogger) Info(msg string, args ...any)  { l.log.Infow(msg, args...) }
func (l gocronLogger) Warn(msg string, args ...any)  { l.log.Warnw(msg, args...) }
func (l gocronLogger) Error(msg string, args ...any) { l.log.Errorw(msg, args...) }
