package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/alaskacg/tongass-listings/internal/service"
	"github.com/alaskacg/tongass-listings/internal/storage"
	"github.com/alaskacg/tongass-listings/pkg/response"
)

// Services handler 依赖的服务集合
type Services struct {
	Listings    service.ListingService
	Submission  service.SubmissionService
	Lifecycle   service.LifecycleService
	Syndication service.SyndicationService
	Payments    service.PaymentService
	Admin       service.AdminService
	Settings    service.SettingsService
	Store       storage.Store
	// MaxUploadBytes 发布请求体上限，低于 MinUploadBytes 时按 MinUploadBytes 处理
	MaxUploadBytes int64
	// Ping 健康检查，nil 时总是健康
	Ping func(ctx context.Context) error
}

// Handler HTTP 处理器
type Handler struct {
	listings    service.ListingService
	submission  service.SubmissionService
	lifecycle   service.LifecycleService
	syndication service.SyndicationService
	payments    service.PaymentService
	admin       service.AdminService
	settings    service.SettingsService
	store       storage.Store
	maxUpload   int64
	ping        func(ctx context.Context) error
}

// MinUploadBytes 多出一张满额图片加 1MB 表单开销，图片超数时由校验报告而不是 413
const MinUploadBytes = int64((service.MaxImages+1)*service.MaxImageBytes) + 1<<20

func uploadLimit(configured int64) int64 {
	if configured < MinUploadBytes {
		return MinUploadBytes
	}
	return configured
}

func NewHandler(s Services) *Handler {
	maxUpload := uploadLimit(s.MaxUploadBytes)
	return &Handler{
		listings:    s.Listings,
		submission:  s.Submission,
		lifecycle:   s.Lifecycle,
		syndication: s.Syndication,
		payments:    s.Payments,
		admin:       s.Admin,
		settings:    s.Settings,
		store:       s.Store,
		maxUpload:   maxUpload,
		ping:        s.Ping,
	}
}

// Healthz 存活与数据库连通性
// @Summary 健康检查
// @Tags 系统
// @Produce json
// @Success 200 {object} response.Response
// @Failure 503 {object} response.Response
// @Router /healthz [get]
func (h *Handler) Healthz(c *gin.Context) {
	if h.ping != nil {
		if err := h.ping(c.Request.Context()); err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, response.Response{Code: http.StatusServiceUnavailable, Message: "database unavailable"})
			return
		}
	}
	response.Success(c, gin.H{"status": "ok"})
}

func pageParams(c *gin.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "50"))
	return page, pageSize
}
