package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"qingyin-guild/internal/bootstrap"
	"qingyin-guild/internal/config"
	"qingyin-guild/internal/platform/sqlite"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type characterBody struct {
	ID            uint   `json:"id"`
	GameID        string `json:"game_id"`
	Signature     string `json:"signature"`
	ScreenshotURL string `json:"screenshot_url"`
	IsApproved    bool   `json:"is_approved"`
	User          *struct {
		Username string `json:"username"`
	} `json:"user"`
}

type RouterSuite struct {
	suite.Suite
	app    *bootstrap.App
	router *gin.Engine
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	ctx := context.Background()
	dir := s.T().TempDir()

	cfg := config.Default()
	cfg.App.GinMode = gin.TestMode
	cfg.Auth.AdminPassword = "guildmaster"
	cfg.SQLite.Path = filepath.Join(dir, "guild.db")
	cfg.Storage.LocalDir = filepath.Join(dir, "data")

	db, err := sqlite.New(ctx, cfg.SQLite.Path, zap.NewNop())
	s.Require().NoError(err)

	app, err := bootstrap.Assemble(ctx, cfg, db, zap.NewNop())
	s.Require().NoError(err)
	s.app = app
	s.router = NewRouter(app)
}

func (s *RouterSuite) TearDownTest() {
	s.NoError(s.app.Close())
}

func (s *RouterSuite) do(method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return s.send(req, token)
}

func (s *RouterSuite) send(req *http.Request, token string) (*httptest.ResponseRecorder, envelope) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func (s *RouterSuite) login(username, password string) string {
	rec, env := s.do(http.MethodPost, "/api/auth/login", "", gin.H{"username": username, "password": password})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	var data struct {
		Token string `json:"token"`
	}
	s.Require().NoError(json.Unmarshal(env.Data, &data))
	return data.Token
}

func (s *RouterSuite) registerAndLogin(username string) string {
	rec, _ := s.do(http.MethodPost, "/api/auth/register", "", gin.H{"username": username, "password": "secret1"})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	return s.login(username, "secret1")
}

func (s *RouterSuite) approvedList() []characterBody {
	rec, env := s.do(http.MethodGet, "/api/characters/approved", "", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var list []characterBody
	s.Require().NoError(json.Unmarshal(env.Data, &list))
	return list
}

func (s *RouterSuite) createCharacter(token, gameID string) characterBody {
	rec, env := s.do(http.MethodPost, "/api/characters", token, gin.H{"game_id": gameID})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var character characterBody
	s.Require().NoError(json.Unmarshal(env.Data, &character))
	return character
}

func (s *RouterSuite) uploadRequest(characterID uint, filename, contentType string, content []byte) *http.Request {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="screenshot"; filename="%s"`, filename))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	s.Require().NoError(err)
	_, err = part.Write(content)
	s.Require().NoError(err)
	s.Require().NoError(writer.Close())

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/characters/%d/screenshot", characterID), &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func (s *RouterSuite) TestModerationScenario() {
	alice := s.registerAndLogin("alice")
	admin := s.login("admin", "guildmaster")

	character := s.createCharacter(alice, "AliceChar")
	s.False(character.IsApproved)
	s.Empty(s.approvedList())

	rec, env := s.do(http.MethodGet, "/api/admin/approvals", admin, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var pending []characterBody
	s.Require().NoError(json.Unmarshal(env.Data, &pending))
	s.Require().Len(pending, 1)
	s.Equal("alice", pending[0].User.Username)

	rec, _ = s.do(http.MethodPut, fmt.Sprintf("/api/admin/approvals/%d", character.ID), admin, gin.H{"approve": true})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	approved := s.approvedList()
	s.Require().Len(approved, 1)
	s.Equal("AliceChar", approved[0].GameID)
	s.Equal("alice", approved[0].User.Username)

	rec, env = s.do(http.MethodPut, fmt.Sprintf("/api/characters/%d/signature", character.ID), alice, gin.H{"signature": "hello"})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var edited characterBody
	s.Require().NoError(json.Unmarshal(env.Data, &edited))
	s.Equal("hello", edited.Signature)
	s.False(edited.IsApproved)

	s.Empty(s.approvedList())

	rec, env = s.do(http.MethodGet, fmt.Sprintf("/api/admin/approvals/%d/events", character.ID), admin, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var events []struct {
		Action string `json:"action"`
	}
	s.Require().NoError(json.Unmarshal(env.Data, &events))
	s.Require().Len(events, 2)
	s.Equal("submitted", events[0].Action)
	s.Equal("approved", events[1].Action)

	rec, _ = s.do(http.MethodGet, "/signatures/"+fmt.Sprintf("signature-%d.txt", character.ID), "", nil)
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("hello", rec.Body.String())
}

func (s *RouterSuite) TestAuthErrors() {
	rec, env := s.do(http.MethodGet, "/api/characters", "", nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Equal("missing authorization header", env.Error)

	rec, _ = s.do(http.MethodGet, "/api/characters", "garbage", nil)
	s.Equal(http.StatusUnauthorized, rec.Code)

	alice := s.registerAndLogin("alice")
	rec, _ = s.do(http.MethodPost, "/api/auth/register", "", gin.H{"username": "alice", "password": "secret1"})
	s.Equal(http.StatusConflict, rec.Code)

	rec, env = s.do(http.MethodPost, "/api/auth/login", "", gin.H{"username": "alice", "password": "wrong-pw"})
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.NotEmpty(env.Error)

	rec, _ = s.do(http.MethodGet, "/api/admin/approvals", alice, nil)
	s.Equal(http.StatusForbidden, rec.Code)

	rec, _ = s.do(http.MethodPut, "/api/theme", alice, gin.H{"theme_color": "red"})
	s.Equal(http.StatusForbidden, rec.Code)

	rec, env = s.do(http.MethodGet, "/api/auth/me", alice, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Contains(string(env.Data), `"username":"alice"`)
}

func (s *RouterSuite) TestCharacterLimitAndOwnership() {
	alice := s.registerAndLogin("alice")
	bob := s.registerAndLogin("bob")

	first := s.createCharacter(alice, "One")
	s.createCharacter(alice, "Two")
	s.createCharacter(alice, "Three")

	rec, env := s.do(http.MethodPost, "/api/characters", alice, gin.H{"game_id": "Four"})
	s.Equal(http.StatusBadRequest, rec.Code)
	s.NotEmpty(env.Error)

	rec, _ = s.do(http.MethodPost, "/api/characters", alice, gin.H{"game_id": "One"})
	s.Equal(http.StatusConflict, rec.Code)

	rec, _ = s.do(http.MethodDelete, fmt.Sprintf("/api/characters/%d", first.ID), bob, nil)
	s.Equal(http.StatusForbidden, rec.Code)

	rec, _ = s.do(http.MethodDelete, "/api/characters/9999", alice, nil)
	s.Equal(http.StatusNotFound, rec.Code)

	rec, _ = s.do(http.MethodDelete, "/api/characters/abc", alice, nil)
	s.Equal(http.StatusBadRequest, rec.Code)

	rec, _ = s.do(http.MethodDelete, fmt.Sprintf("/api/characters/%d", first.ID), alice, nil)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *RouterSuite) TestScreenshotUpload() {
	alice := s.registerAndLogin("alice")
	character := s.createCharacter(alice, "AliceChar")

	rec, env := s.send(s.uploadRequest(character.ID, "notes.txt", "text/plain", []byte("just text")), alice)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.NotEmpty(env.Error)

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	var buf bytes.Buffer
	s.Require().NoError(png.Encode(&buf, img))

	rec, env = s.send(s.uploadRequest(character.ID, "shot.png", "image/png", buf.Bytes()), alice)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var uploaded characterBody
	s.Require().NoError(json.Unmarshal(env.Data, &uploaded))
	s.Require().NotEmpty(uploaded.ScreenshotURL)

	rec, _ = s.do(http.MethodGet, uploaded.ScreenshotURL, "", nil)
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("image/png", rec.Header().Get("Content-Type"))
	s.Equal(buf.Bytes(), rec.Body.Bytes())

	rec, _ = s.do(http.MethodGet, "/uploads/../guild.db", "", nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *RouterSuite) TestTheme() {
	admin := s.login("admin", "guildmaster")

	rec, env := s.do(http.MethodGet, "/api/theme", "", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Contains(string(env.Data), `"theme_color":"pink"`)

	rec, _ = s.do(http.MethodPut, "/api/theme", admin, gin.H{"theme_color": "green"})
	s.Equal(http.StatusBadRequest, rec.Code)

	rec, _ = s.do(http.MethodPut, "/api/theme", admin, gin.H{"theme_color": "cyan"})
	s.Equal(http.StatusOK, rec.Code)

	rec, env = s.do(http.MethodGet, "/api/theme", "", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Contains(string(env.Data), `"theme_color":"cyan"`)
}

func (s *RouterSuite) TestAdminUsers() {
	admin := s.login("admin", "guildmaster")
	s.registerAndLogin("alice")

	rec, env := s.do(http.MethodGet, "/api/admin/users", admin, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var users []struct {
		ID       uint   `json:"id"`
		Username string `json:"username"`
	}
	s.Require().NoError(json.Unmarshal(env.Data, &users))
	s.Require().Len(users, 2)
	s.Equal("alice", users[0].Username)

	rec, env = s.do(http.MethodPut, fmt.Sprintf("/api/admin/users/%d/password", users[0].ID), admin, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var reset struct {
		NewPassword string `json:"new_password"`
	}
	s.Require().NoError(json.Unmarshal(env.Data, &reset))
	s.Len(reset.NewPassword, 8)

	s.login("alice", reset.NewPassword)
}

func TestHealthz(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.App.GinMode = gin.TestMode
	cfg.SQLite.Path = filepath.Join(dir, "guild.db")
	cfg.Storage.LocalDir = filepath.Join(dir, "data")

	db, err := sqlite.New(ctx, cfg.SQLite.Path, zap.NewNop())
	require.NoError(t, err)
	app, err := bootstrap.Assemble(ctx, cfg, db, zap.NewNop())
	require.NoError(t, err)
	defer app.Close()

	rec := httptest.NewRecorder()
	NewRouter(app).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":{"ok":true}`)
}
