package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	appsvc "qingyin-guild/internal/app"
	"qingyin-guild/internal/cache"
	"qingyin-guild/internal/config"
	"qingyin-guild/internal/model"
	"qingyin-guild/internal/pkg/logger"
	mysqlClient "qingyin-guild/internal/platform/mysql"
	rabbitmqClient "qingyin-guild/internal/platform/rabbitmq"
	redisClient "qingyin-guild/internal/platform/redis"
	sqliteClient "qingyin-guild/internal/platform/sqlite"
	"qingyin-guild/internal/repository"
	"qingyin-guild/internal/storage"
	"qingyin-guild/internal/worker"
)

type App struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *gorm.DB
	Redis  *redis.Client
	MQConn *amqp.Connection
	MinIO  *storage.MinIOBackend

	Attachments *storage.Store
	Auth        *appsvc.AuthService
	Characters  *appsvc.CharacterService
	Moderation  *appsvc.ModerationService
	Theme       *appsvc.ThemeService

	EventWorker *worker.ModerationEventWorker
	Sweeper     *worker.AttachmentSweeper

	StartedAt time.Time
}

// New loads configuration, connects every configured backing service and
// starts the background workers.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	log, err := logger.New(logger.Options{
		Level:       cfg.Log.Level,
		File:        cfg.Log.File,
		MaxSizeMB:   cfg.Log.MaxSizeMB,
		MaxAgeDays:  cfg.Log.MaxAgeDays,
		Development: cfg.App.Env == config.EnvDev,
	})
	if err != nil {
		return nil, fmt.Errorf("build logger failed: %w", err)
	}

	app := &App{Config: cfg, Logger: log, StartedAt: time.Now()}
	if err := app.connect(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	if err := app.wire(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	if err := app.startWorkers(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

// Assemble builds an App on an already opened database, with the in-process
// cache, direct event writes and a local attachment directory. No workers are
// started.
func Assemble(ctx context.Context, cfg *config.Config, db *gorm.DB, log *zap.Logger) (*App, error) {
	app := &App{Config: cfg, Logger: log, DB: db, StartedAt: time.Now()}
	if err := app.wire(ctx); err != nil {
		return nil, err
	}
	return app, nil
}

func (a *App) connect(ctx context.Context) error {
	cfg := a.Config

	var err error
	switch cfg.Database.Driver {
	case config.DriverMySQL:
		a.DB, err = mysqlClient.New(ctx, cfg.MySQLDSN(), a.Logger)
	default:
		a.DB, err = sqliteClient.New(ctx, cfg.SQLite.Path, a.Logger)
	}
	if err != nil {
		return err
	}

	if cfg.Redis.Addr != "" {
		a.Redis, err = redisClient.New(ctx, redisClient.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
	}

	if cfg.RabbitMQ.URL != "" {
		a.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.ModerationQueue)
		if err != nil {
			return err
		}
	}

	if cfg.Storage.Backend == config.StorageMinIO {
		a.MinIO, err = storage.NewMinIOBackend(ctx, storage.MinIOConfig{
			Endpoint:  cfg.Storage.MinIOEndpoint,
			AccessKey: cfg.Storage.MinIOAccessKey,
			SecretKey: cfg.Storage.MinIOSecretKey,
			Bucket:    cfg.Storage.MinIOBucket,
			UseSSL:    cfg.Storage.MinIOUseSSL,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.Config

	if err := a.DB.AutoMigrate(
		&model.User{},
		&model.Character{},
		&model.ThemeSetting{},
		&model.ModerationEvent{},
	); err != nil {
		return fmt.Errorf("auto migrate tables failed: %w", err)
	}

	var backend storage.Backend
	if a.MinIO != nil {
		backend = a.MinIO
	} else {
		local, err := storage.NewLocalBackend(cfg.Storage.LocalDir)
		if err != nil {
			return err
		}
		backend = local
	}
	a.Attachments = storage.NewStore(backend)

	var responseCache appsvc.Cache
	if a.Redis != nil {
		responseCache = cache.NewRedisCache(a.Redis, cfg.CacheTTL())
	} else {
		responseCache = cache.NewMemoryCache(cfg.CacheTTL())
	}

	userRepo := repository.NewUserRepository(a.DB)
	characterRepo := repository.NewCharacterRepository(a.DB)
	themeRepo := repository.NewThemeRepository(a.DB)
	eventRepo := repository.NewModerationEventRepository(a.DB)

	var publisher appsvc.EventPublisher = eventRepo
	if a.MQConn != nil {
		publisher = rabbitmqClient.NewEventPublisher(a.MQConn, cfg.RabbitMQ.ModerationQueue)
	}

	a.Characters = appsvc.NewCharacterService(
		characterRepo,
		a.Attachments,
		publisher,
		responseCache,
		cfg.Upload.MaxScreenshotBytes,
		a.Logger.Named("character"),
	)
	a.Moderation = appsvc.NewModerationService(
		characterRepo,
		eventRepo,
		a.Attachments,
		publisher,
		responseCache,
		a.Logger.Named("moderation"),
	)
	a.Theme = appsvc.NewThemeService(themeRepo, responseCache, a.Logger.Named("theme"))
	a.Auth = appsvc.NewAuthService(userRepo, a.Characters, appsvc.AuthConfig{
		JWTSecret:     cfg.Auth.JWTSecret,
		JWTExpiration: cfg.JWTExpiration(),
		AdminUsername: cfg.Auth.AdminUsername,
	}, a.Logger.Named("auth"))

	if err := a.Auth.EnsureAdmin(ctx, cfg.Auth.AdminPassword); err != nil {
		return fmt.Errorf("ensure admin account failed: %w", err)
	}
	return nil
}

func (a *App) startWorkers(ctx context.Context) error {
	cfg := a.Config

	if a.MQConn != nil {
		a.EventWorker = worker.NewModerationEventWorker(
			a.MQConn,
			repository.NewModerationEventRepository(a.DB),
			cfg.RabbitMQ.ModerationQueue,
			a.Logger,
		)
		if err := a.EventWorker.Start(ctx); err != nil {
			return fmt.Errorf("start moderation event worker failed: %w", err)
		}
	}

	if cfg.Sweeper.IntervalMinute > 0 {
		a.Sweeper = worker.NewAttachmentSweeper(
			a.Attachments,
			repository.NewCharacterRepository(a.DB),
			time.Duration(cfg.Sweeper.GraceMinute)*time.Minute,
			a.Logger,
		)
		if err := a.Sweeper.Start(time.Duration(cfg.Sweeper.IntervalMinute) * time.Minute); err != nil {
			return fmt.Errorf("start attachment sweeper failed: %w", err)
		}
	}
	return nil
}

func (a *App) Close() error {
	var closeErr error
	if a.Sweeper != nil {
		closeErr = errors.Join(closeErr, a.Sweeper.Close())
	}
	if a.EventWorker != nil {
		a.EventWorker.Close()
	}
	if a.MQConn != nil {
		closeErr = errors.Join(closeErr, a.MQConn.Close())
	}
	if a.Redis != nil {
		closeErr = errors.Join(closeErr, a.Redis.Close())
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			closeErr = errors.Join(closeErr, sqlDB.Close())
		}
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return closeErr
}
