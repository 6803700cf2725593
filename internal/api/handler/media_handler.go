package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/alaskacg/tongass-listings/internal/storage"
	"github.com/alaskacg/tongass-listings/pkg/response"
)

// Media 输出对象存储中的图片
// @Summary 图片
// @Tags 系统
// @Param key path string true "对象 key"
// @Success 200 {file} binary
// @Failure 404 {object} response.Response
// @Router /media/{key} [get]
func (h *Handler) Media(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	if key == "" || strings.Contains(key, "..") {
		response.NotFound(c, "not found")
		return
	}
	rc, obj, err := h.store.Open(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			response.NotFound(c, "not found")
			return
		}
		response.InternalError(c, err)
		return
	}
	defer rc.Close()

	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, obj.Size, contentType, rc, map[string]string{
		"Cache-Control":          "public, max-age=86400, immutable",
		"X-Content-Type-Options": "nosniff",
	})
}
