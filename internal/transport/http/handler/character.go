package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"qingyin-guild/internal/app"
	"qingyin-guild/internal/transport/http/response"
)

const screenshotField = "screenshot"

type CharacterHandler struct {
	characterService *app.CharacterService
}

type CreateCharacterRequest struct {
	GameID string `json:"game_id"`
}

type UpdateSignatureRequest struct {
	Signature string `json:"signature"`
}

func NewCharacterHandler(characterService *app.CharacterService) *CharacterHandler {
	return &CharacterHandler{characterService: characterService}
}

func (h *CharacterHandler) Create(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}

	var req CreateCharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	character, err := h.characterService.Create(c.Request.Context(), userID, req.GameID)
	if err != nil {
		writeServiceError(c, err, "create character failed")
		return
	}
	response.Created(c, character)
}

func (h *CharacterHandler) ListOwn(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}

	characters, err := h.characterService.ListOwn(c.Request.Context(), userID)
	if err != nil {
		writeServiceError(c, err, "list characters failed")
		return
	}
	response.OK(c, characters)
}

func (h *CharacterHandler) ListApproved(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	characters, err := h.characterService.ListApproved(c.Request.Context(), limit)
	if err != nil {
		writeServiceError(c, err, "list approved characters failed")
		return
	}
	response.OK(c, characters)
}

func (h *CharacterHandler) UpdateSignature(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	characterID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var req UpdateSignatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	character, err := h.characterService.UpdateSignature(c.Request.Context(), characterID, userID, req.Signature)
	if err != nil {
		writeServiceError(c, err, "update signature failed")
		return
	}
	response.Message(c, "signature submitted for review", character)
}

func (h *CharacterHandler) UploadScreenshot(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	characterID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	fileHeader, err := c.FormFile(screenshotField)
	if c.Request.MultipartForm != nil {
		defer c.Request.MultipartForm.RemoveAll()
	}
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "screenshot file is required")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "open upload failed")
		return
	}
	defer file.Close()

	character, err := h.characterService.UploadScreenshot(c.Request.Context(), app.ScreenshotInput{
		CharacterID: characterID,
		OwnerID:     userID,
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Size:        fileHeader.Size,
		Content:     file,
	})
	if err != nil {
		writeServiceError(c, err, "upload screenshot failed")
		return
	}
	response.Message(c, "screenshot submitted for review", character)
}

func (h *CharacterHandler) Delete(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	characterID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	if err := h.characterService.Delete(c.Request.Context(), characterID, userID); err != nil {
		writeServiceError(c, err, "delete character failed")
		return
	}
	response.Message(c, "character deleted", nil)
}
