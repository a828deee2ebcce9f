package app

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"qingyin-guild/internal/cache"
	"qingyin-guild/internal/model"
	"qingyin-guild/internal/platform/sqlite"
	"qingyin-guild/internal/repository"
	"qingyin-guild/internal/storage"
)

const (
	testSecret        = "test-secret"
	testAdminName     = "admin"
	testAdminPassword = "admin-password"
	testPassword      = "secret1"
)

type testEnv struct {
	db          *gorm.DB
	dataDir     string
	attachments *storage.Store
	cache       *cache.MemoryCache
	userRepo    *repository.UserRepository
	eventRepo   *repository.ModerationEventRepository

	auth       *AuthService
	characters *CharacterService
	moderation *ModerationService
	theme      *ThemeService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	db, err := sqlite.New(ctx, filepath.Join(dir, "guild.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	require.NoError(t, db.AutoMigrate(&model.User{}, &model.Character{}, &model.ThemeSetting{}, &model.ModerationEvent{}))

	dataDir := filepath.Join(dir, "data")
	backend, err := storage.NewLocalBackend(dataDir)
	require.NoError(t, err)

	logger := zap.NewNop()
	attachments := storage.NewStore(backend)
	memCache := cache.NewMemoryCache(time.Minute)
	userRepo := repository.NewUserRepository(db)
	characterRepo := repository.NewCharacterRepository(db)
	eventRepo := repository.NewModerationEventRepository(db)

	env := &testEnv{
		db:          db,
		dataDir:     dataDir,
		attachments: attachments,
		cache:       memCache,
		userRepo:    userRepo,
		eventRepo:   eventRepo,
	}
	env.characters = NewCharacterService(characterRepo, attachments, eventRepo, memCache, 1<<20, logger)
	env.moderation = NewModerationService(characterRepo, eventRepo, attachments, eventRepo, memCache, logger)
	env.theme = NewThemeService(repository.NewThemeRepository(db), memCache, logger)
	env.auth = NewAuthService(userRepo, env.characters, AuthConfig{
		JWTSecret:     testSecret,
		JWTExpiration: time.Hour,
		AdminUsername: testAdminName,
		HashCost:      bcrypt.MinCost,
	}, logger)
	require.NoError(t, env.auth.EnsureAdmin(ctx, testAdminPassword))
	return env
}

func (e *testEnv) register(t *testing.T, username string) uint {
	t.Helper()
	user, err := e.auth.Register(context.Background(), RegisterInput{Username: username, Password: testPassword})
	require.NoError(t, err)
	return user.ID
}

func (e *testEnv) adminID(t *testing.T) uint {
	t.Helper()
	admin, err := e.userRepo.GetByUsername(context.Background(), testAdminName)
	require.NoError(t, err)
	require.NotNil(t, admin)
	return admin.ID
}

func (e *testEnv) createCharacter(t *testing.T, userID uint, gameID string) *CharacterView {
	t.Helper()
	character, err := e.characters.Create(context.Background(), userID, gameID)
	require.NoError(t, err)
	return character
}

// approve sets the flag directly, without going through review.
func (e *testEnv) approve(t *testing.T, characterID uint) {
	t.Helper()
	require.NoError(t, e.db.Model(&model.Character{}).Where("id = ?", characterID).Update("is_approved", true).Error)
}

func (e *testEnv) record(t *testing.T, characterID uint) *model.Character {
	t.Helper()
	var character model.Character
	require.NoError(t, e.db.First(&character, characterID).Error)
	return &character
}

func (e *testEnv) files(t *testing.T, kind storage.Kind) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(e.dataDir, string(kind)))
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func (e *testEnv) attachmentPath(handle string) string {
	return filepath.Join(e.dataDir, filepath.FromSlash(handle))
}

func pngImage(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: 255, G: 105, B: 180, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func pngUpload(t *testing.T, characterID, ownerID uint) ScreenshotInput {
	t.Helper()
	data := pngImage(t)
	return ScreenshotInput{
		CharacterID: characterID,
		OwnerID:     ownerID,
		Filename:    "shot.png",
		ContentType: "image/png",
		Size:        int64(len(data)),
		Content:     bytes.NewReader(data),
	}
}
