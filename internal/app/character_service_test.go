package app

import (
	"bytes"
	"context"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"qingyin-guild/internal/repository"
	"qingyin-guild/internal/storage"
)

func TestCreateCharacter(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	aliceID := env.register(t, "alice")
	bobID := env.register(t, "bob")

	character, err := env.characters.Create(ctx, aliceID, "  AliceChar ")
	require.NoError(t, err)
	assert.Equal(t, "AliceChar", character.GameID)
	assert.False(t, character.IsApproved)
	assert.Empty(t, character.Signature)
	assert.Empty(t, character.ScreenshotURL)

	_, err = env.characters.Create(ctx, aliceID, "AliceChar")
	require.ErrorIs(t, err, ErrGameIDExists)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = env.characters.Create(ctx, bobID, "AliceChar")
	assert.NoError(t, err, "game id is unique per user only")

	for _, gameID := range []string{"x", strings.Repeat("x", 21), "   "} {
		_, err = env.characters.Create(ctx, aliceID, gameID)
		assert.ErrorIs(t, err, ErrGameIDLength, gameID)
	}
}

func TestCreateCharacter_LimitPerUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	aliceID := env.register(t, "alice")

	env.createCharacter(t, aliceID, "One")
	env.createCharacter(t, aliceID, "Two")
	env.createCharacter(t, aliceID, "Three")

	_, err := env.characters.Create(ctx, aliceID, "Four")
	require.ErrorIs(t, err, ErrCharacterLimit)
	assert.ErrorIs(t, err, ErrLimitExceeded)

	own, err := env.characters.ListOwn(ctx, aliceID)
	require.NoError(t, err)
	assert.Len(t, own, 3)
}

func TestUpdateSignature(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	aliceID := env.register(t, "alice")
	bobID := env.register(t, "bob")
	character := env.createCharacter(t, aliceID, "AliceChar")

	updated, err := env.characters.UpdateSignature(ctx, character.ID, aliceID, "  hello  ")
	require.NoError(t, err)
	assert.Equal(t, "hello", updated.Signature)

	own, err := env.characters.ListOwn(ctx, aliceID)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, "hello", own[0].Signature)

	record := env.record(t, character.ID)
	require.NotNil(t, record.Signature)
	assert.Equal(t, storage.SignatureHandle(character.ID), *record.Signature)
	content, err := os.ReadFile(env.attachmentPath(*record.Signature))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))

	_, err = env.characters.UpdateSignature(ctx, character.ID, aliceID, "second version")
	require.NoError(t, err)
	assert.Len(t, env.files(t, storage.KindSignature), 1, "signature file is overwritten in place")

	_, err = env.characters.UpdateSignature(ctx, character.ID, bobID, "hijack")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = env.characters.UpdateSignature(ctx, 9999, aliceID, "hello")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateSignature_Length(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	aliceID := env.register(t, "alice")
	character := env.createCharacter(t, aliceID, "AliceChar")

	_, err := env.characters.UpdateSignature(ctx, character.ID, aliceID, strings.Repeat("清", 50))
	assert.NoError(t, err, "length counts characters, not bytes")

	for _, text := range []string{"", "   ", strings.Repeat("清", 51)} {
		_, err = env.characters.UpdateSignature(ctx, character.ID, aliceID, text)
		assert.ErrorIs(t, err, ErrSignatureLength)
	}

	own, err := env.characters.ListOwn(ctx, aliceID)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("清", 50), own[0].Signature)
}

func TestEditResetsApproval(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	aliceID := env.register(t, "alice")
	character := env.createCharacter(t, aliceID, "AliceChar")

	env.approve(t, character.ID)
	updated, err := env.characters.UpdateSignature(ctx, character.ID, aliceID, "hello")
	require.NoError(t, err)
	assert.False(t, updated.IsApproved)
	assert.False(t, env.record(t, character.ID).IsApproved)

	env.approve(t, character.ID)
	updated, err = env.characters.UploadScreenshot(ctx, pngUpload(t, character.ID, aliceID))
	require.NoError(t, err)
	assert.False(t, updated.IsApproved)
	assert.False(t, env.record(t, character.ID).IsApproved)
}

func TestUploadScreenshot_ReplacesPrevious(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	aliceID := env.register(t, "alice")
	character := env.createCharacter(t, aliceID, "AliceChar")

	first, err := env.characters.UploadScreenshot(ctx, pngUpload(t, character.ID, aliceID))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first.ScreenshotURL, "/uploads/screenshot-"))
	assert.True(t, strings.HasSuffix(first.ScreenshotURL, ".png"))
	firstPath := env.attachmentPath(strings.TrimPrefix(first.ScreenshotURL, "/"))
	assert.FileExists(t, firstPath)

	second, err := env.characters.UploadScreenshot(ctx, pngUpload(t, character.ID, aliceID))
	require.NoError(t, err)
	assert.NotEqual(t, first.ScreenshotURL, second.ScreenshotURL)
	assert.NoFileExists(t, firstPath)
	assert.FileExists(t, env.attachmentPath(strings.TrimPrefix(second.ScreenshotURL, "/")))
	assert.Len(t, env.files(t, storage.KindScreenshot), 1)
}

func TestUploadScreenshot_Rejects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	aliceID := env.register(t, "alice")
	bobID := env.register(t, "bob")
	character := env.createCharacter(t, aliceID, "AliceChar")

	text := []byte("definitely not an image")
	brokenPNG := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)
	oversized := append(pngImage(t), bytes.Repeat([]byte{0}, 1<<20)...)

	tests := []struct {
		name  string
		input ScreenshotInput
		want  error
	}{
		{
			name:  "plain text",
			input: ScreenshotInput{ContentType: "text/plain", Filename: "a.txt", Size: int64(len(text)), Content: bytes.NewReader(text)},
			want:  ErrUnsupportedImage,
		},
		{
			name:  "text declared as png",
			input: ScreenshotInput{ContentType: "image/png", Filename: "a.png", Size: int64(len(text)), Content: bytes.NewReader(text)},
			want:  ErrUnsupportedImage,
		},
		{
			name:  "undecodable png",
			input: ScreenshotInput{ContentType: "image/png", Filename: "a.png", Size: int64(len(brokenPNG)), Content: bytes.NewReader(brokenPNG)},
			want:  ErrUnsupportedImage,
		},
		{
			name:  "declared size over limit",
			input: ScreenshotInput{ContentType: "image/png", Filename: "a.png", Size: int64(len(oversized)), Content: bytes.NewReader(oversized)},
			want:  ErrImageTooLarge,
		},
		{
			name:  "unknown size over limit",
			input: ScreenshotInput{ContentType: "image/png", Filename: "a.png", Content: bytes.NewReader(oversized)},
			want:  ErrImageTooLarge,
		},
		{
			name:  "no content",
			input: ScreenshotInput{ContentType: "image/png", Filename: "a.png"},
			want:  ErrUnsupportedImage,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.input.CharacterID = character.ID
			tt.input.OwnerID = aliceID
			_, err := env.characters.UploadScreenshot(ctx, tt.input)
			require.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.Empty(t, env.files(t, storage.KindScreenshot))
			assert.Nil(t, env.record(t, character.ID).ScreenshotPath)
		})
	}

	_, err := env.characters.UploadScreenshot(ctx, pngUpload(t, character.ID, bobID))
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = env.characters.UploadScreenshot(ctx, pngUpload(t, 9999, aliceID))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, env.files(t, storage.KindScreenshot))
}

func TestDeleteCharacter_RemovesAttachments(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	aliceID := env.register(t, "alice")
	bobID := env.register(t, "bob")
	character := env.createCharacter(t, aliceID, "AliceChar")

	_, err := env.characters.UpdateSignature(ctx, character.ID, aliceID, "hello")
	require.NoError(t, err)
	_, err = env.characters.UploadScreenshot(ctx, pngUpload(t, character.ID, aliceID))
	require.NoError(t, err)
	require.Len(t, env.files(t, storage.KindSignature), 1)
	require.Len(t, env.files(t, storage.KindScreenshot), 1)

	assert.ErrorIs(t, env.characters.Delete(ctx, character.ID, bobID), ErrForbidden)

	require.NoError(t, env.characters.Delete(ctx, character.ID, aliceID))
	assert.Empty(t, env.files(t, storage.KindSignature))
	assert.Empty(t, env.files(t, storage.KindScreenshot))

	assert.ErrorIs(t, env.characters.Delete(ctx, character.ID, aliceID), ErrNotFound)
}

func TestDeleteCharacter_MissingAttachmentIsIgnored(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	aliceID := env.register(t, "alice")
	character := env.createCharacter(t, aliceID, "AliceChar")

	_, err := env.characters.UpdateSignature(ctx, character.ID, aliceID, "hello")
	require.NoError(t, err)
	require.NoError(t, os.Remove(env.attachmentPath(storage.SignatureHandle(character.ID))))

	require.NoError(t, env.characters.Delete(ctx, character.ID, aliceID))
}

func TestUnreadableSignatureDegradesToEmpty(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	aliceID := env.register(t, "alice")
	character := env.createCharacter(t, aliceID, "AliceChar")

	_, err := env.characters.UpdateSignature(ctx, character.ID, aliceID, "hello")
	require.NoError(t, err)
	require.NoError(t, os.Remove(env.attachmentPath(storage.SignatureHandle(character.ID))))

	own, err := env.characters.ListOwn(ctx, aliceID)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, "", own[0].Signature)
}

func TestListApproved(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	adminID := env.adminID(t)
	aliceID := env.register(t, "alice")

	approved := env.createCharacter(t, aliceID, "AliceChar")
	pending := env.createCharacter(t, aliceID, "AliceAlt")
	_, err := env.characters.UpdateSignature(ctx, approved.ID, aliceID, "hello")
	require.NoError(t, err)
	_, err = env.moderation.Review(ctx, adminID, approved.ID, true)
	require.NoError(t, err)

	list, err := env.characters.ListApproved(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, approved.ID, list[0].ID)
	assert.Equal(t, "hello", list[0].Signature)
	require.NotNil(t, list[0].Owner)
	assert.Equal(t, "alice", list[0].Owner.Username)
	for _, view := range list {
		assert.True(t, view.IsApproved)
		assert.NotEqual(t, pending.ID, view.ID)
	}

	_, err = env.characters.UpdateSignature(ctx, approved.ID, aliceID, "edited")
	require.NoError(t, err)

	list, err = env.characters.ListApproved(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, list, "cached list must be invalidated by the edit")
}

func TestListApproved_NewestFirstWithLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	aliceID := env.register(t, "alice")
	bobID := env.register(t, "bob")

	older := env.createCharacter(t, aliceID, "Older")
	newer := env.createCharacter(t, bobID, "Newer")
	env.approve(t, older.ID)
	env.approve(t, newer.ID)

	list, err := env.characters.ListApproved(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, older.ID, list[1].ID)

	limited, err := env.characters.ListApproved(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, newer.ID, limited[0].ID)
}

// interleavingCache runs before() ahead of the first approved-list write, the
// window between the database read and the cache fill.
type interleavingCache struct {
	Cache
	once   sync.Once
	before func()
}

func (c *interleavingCache) Set(ctx context.Context, key string, value []byte) error {
	if strings.HasPrefix(key, cacheKeyApproved+":") {
		c.once.Do(c.before)
	}
	return c.Cache.Set(ctx, key, value)
}

func TestListApproved_EditDuringCacheFill(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	aliceID := env.register(t, "alice")
	character := env.createCharacter(t, aliceID, "AliceChar")
	env.approve(t, character.ID)

	racing := &interleavingCache{Cache: env.cache}
	characters := NewCharacterService(
		repository.NewCharacterRepository(env.db),
		env.attachments,
		env.eventRepo,
		racing,
		1<<20,
		zap.NewNop(),
	)
	racing.before = func() {
		_, err := characters.UpdateSignature(ctx, character.ID, aliceID, "edited mid-read")
		require.NoError(t, err)
	}

	for i := 0; i < 2; i++ {
		list, err := characters.ListApproved(ctx, 0)
		require.NoError(t, err)
		require.Len(t, list, 1, "both reads happen before the edit lands")
	}
	require.False(t, env.record(t, character.ID).IsApproved)

	list, err := characters.ListApproved(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}
