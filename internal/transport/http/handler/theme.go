package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"qingyin-guild/internal/app"
	"qingyin-guild/internal/transport/http/response"
)

type ThemeHandler struct {
	themeService *app.ThemeService
}

type SetThemeRequest struct {
	ThemeColor string `json:"theme_color"`
}

func NewThemeHandler(themeService *app.ThemeService) *ThemeHandler {
	return &ThemeHandler{themeService: themeService}
}

func (h *ThemeHandler) Get(c *gin.Context) {
	color, err := h.themeService.Get(c.Request.Context())
	if err != nil {
		writeServiceError(c, err, "fetch theme failed")
		return
	}
	response.OK(c, gin.H{
		"theme_color": color,
		"colors":      h.themeService.Colors(),
	})
}

func (h *ThemeHandler) Set(c *gin.Context) {
	var req SetThemeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	color, err := h.themeService.Set(c.Request.Context(), req.ThemeColor)
	if err != nil {
		writeServiceError(c, err, "update theme failed")
		return
	}
	response.Message(c, "theme updated", gin.H{"theme_color": color})
}
