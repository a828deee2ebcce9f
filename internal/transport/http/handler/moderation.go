package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"qingyin-guild/internal/app"
	"qingyin-guild/internal/transport/http/response"
)

type ModerationHandler struct {
	moderationService *app.ModerationService
}

type ReviewRequest struct {
	Approve *bool `json:"approve" binding:"required"`
}

func NewModerationHandler(moderationService *app.ModerationService) *ModerationHandler {
	return &ModerationHandler{moderationService: moderationService}
}

func (h *ModerationHandler) ListPending(c *gin.Context) {
	characters, err := h.moderationService.ListPending(c.Request.Context())
	if err != nil {
		writeServiceError(c, err, "list pending characters failed")
		return
	}
	response.OK(c, characters)
}

func (h *ModerationHandler) Review(c *gin.Context) {
	reviewerID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	characterID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "approve must be true or false")
		return
	}

	character, err := h.moderationService.Review(c.Request.Context(), reviewerID, characterID, *req.Approve)
	if err != nil {
		writeServiceError(c, err, "review character failed")
		return
	}

	message := "character rejected"
	if *req.Approve {
		message = "character approved"
	}
	response.Message(c, message, character)
}

func (h *ModerationHandler) ListEvents(c *gin.Context) {
	characterID, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	events, err := h.moderationService.ListEvents(c.Request.Context(), characterID)
	if err != nil {
		writeServiceError(c, err, "list moderation events failed")
		return
	}
	response.OK(c, events)
}
