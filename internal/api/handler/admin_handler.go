package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/alaskacg/tongass-listings/internal/api/middleware"
	"github.com/alaskacg/tongass-listings/internal/service"
	"github.com/alaskacg/tongass-listings/pkg/response"
)

// AdminListings 按状态查询
// @Summary 后台信息列表
// @Tags 后台
// @Security BearerAuth
// @Produce json
// @Param status query string false "pending | active | rejected | expired"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(50)
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Failure 403 {object} response.Response
// @Router /api/v1/admin/listings [get]
func (h *Handler) AdminListings(c *gin.Context) {
	page, pageSize := pageParams(c)
	list, err := h.admin.Listings(c.Request.Context(), c.Query("status"), page, pageSize, middleware.CapabilityFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"page": page, "page_size": pageSize, "list": list})
}

// Approve 审核通过
// @Summary 审核通过
// @Tags 后台
// @Security BearerAuth
// @Produce json
// @Param id path string true "信息ID"
// @Success 200 {object} response.Response{data=model.Listing}
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/admin/listings/{id}/approve [post]
func (h *Handler) Approve(c *gin.Context) {
	l, err := h.lifecycle.Approve(c.Request.Context(), c.Param("id"), middleware.CapabilityFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, l)
}

// Reject 审核拒绝
// @Summary 审核拒绝
// @Tags 后台
// @Security BearerAuth
// @Produce json
// @Param id path string true "信息ID"
// @Success 200 {object} response.Response{data=model.Listing}
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/admin/listings/{id}/reject [post]
func (h *Handler) Reject(c *gin.Context) {
	l, err := h.lifecycle.Reject(c.Request.Context(), c.Param("id"), middleware.CapabilityFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, l)
}

// AdminPayments 支付记录
// @Summary 后台支付列表
// @Tags 后台
// @Security BearerAuth
// @Produce json
// @Param status query string false "pending | completed | failed"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(50)
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/admin/payments [get]
func (h *Handler) AdminPayments(c *gin.Context) {
	page, pageSize := pageParams(c)
	list, err := h.admin.Payments(c.Request.Context(), c.Query("status"), page, pageSize, middleware.CapabilityFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"page": page, "page_size": pageSize, "list": list})
}

// Stats 后台统计
// @Summary 后台统计
// @Tags 后台
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Response{data=service.DashboardStats}
// @Router /api/v1/admin/stats [get]
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.admin.Stats(c.Request.Context(), middleware.CapabilityFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, stats)
}

// GetSettings 站点设置
// @Summary 读取站点设置
// @Tags 后台
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Response{data=model.SiteConfig}
// @Router /api/v1/admin/settings [get]
func (h *Handler) GetSettings(c *gin.Context) {
	cfg, err := h.settings.Current(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, cfg)
}

// UpdateSettings 修改站点设置（带版本号）
// @Summary 修改站点设置
// @Tags 后台
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body service.SettingsUpdate true "设置"
// @Success 200 {object} response.Response{data=model.SiteConfig}
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/admin/settings [put]
func (h *Handler) UpdateSettings(c *gin.Context) {
	var in service.SettingsUpdate
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	cfg, err := h.settings.Update(c.Request.Context(), in, middleware.CapabilityFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, cfg)
}
