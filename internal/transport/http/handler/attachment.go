package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"qingyin-guild/internal/storage"
	"qingyin-guild/internal/transport/http/response"
)

// AttachmentHandler serves stored attachments from whichever backend is
// active, under the same paths the local directory layout uses.
type AttachmentHandler struct {
	attachments *storage.Store
}

func NewAttachmentHandler(attachments *storage.Store) *AttachmentHandler {
	return &AttachmentHandler{attachments: attachments}
}

func (h *AttachmentHandler) Serve(kind storage.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		handle := string(kind) + "/" + strings.TrimPrefix(c.Param("name"), "/")

		data, err := h.attachments.Read(c.Request.Context(), handle)
		if err != nil {
			switch {
			case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrInvalidHandle):
				response.Error(c, http.StatusNotFound, response.CodeNotFound, "attachment not found")
			default:
				_ = c.Error(err)
				response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "read attachment failed")
			}
			return
		}

		c.Header("Cache-Control", "public, max-age=300")
		c.Data(http.StatusOK, mimetype.Detect(data).String(), data)
	}
}
