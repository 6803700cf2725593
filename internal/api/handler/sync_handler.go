package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/alaskacg/tongass-listings/internal/api/middleware"
	"github.com/alaskacg/tongass-listings/pkg/apperr"
	"github.com/alaskacg/tongass-listings/pkg/response"
)

type syncRequest struct {
	ListingID string `json:"listing_id"`
}

// SyncEcosystem 把本人已上架的信息同步到 ecosystem hub；hub 不可用时仍返回 200，synced=false
// @Summary 同步到 ecosystem hub
// @Tags 同步
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body syncRequest true "信息ID"
// @Success 200 {object} response.Response{data=service.SyncResult}
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/sync-ecosystem [post]
func (h *Handler) SyncEcosystem(c *gin.Context) {
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "listing_id is required")
		return
	}
	res, err := h.syndication.SyncListing(c.Request.Context(), req.ListingID, middleware.CapabilityFrom(c))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			response.NotFound(c, "Listing not found or unauthorized")
			return
		}
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}
