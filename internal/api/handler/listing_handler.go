package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/alaskacg/tongass-listings/internal/api/middleware"
	"github.com/alaskacg/tongass-listings/internal/repository"
	"github.com/alaskacg/tongass-listings/internal/service"
	"github.com/alaskacg/tongass-listings/pkg/apperr"
	"github.com/alaskacg/tongass-listings/pkg/response"
)

type browseQuery struct {
	Category string   `form:"category"`
	Region   string   `form:"region"`
	MinPrice *float64 `form:"min_price"`
	MaxPrice *float64 `form:"max_price"`
	Search   string   `form:"q"`
	Sort     string   `form:"sort"`
	Page     int      `form:"page"`
	PageSize int      `form:"page_size"`
}

// Browse 公开浏览
// @Summary 浏览在售信息
// @Tags 分类信息
// @Produce json
// @Param category query string false "分类"
// @Param region query string false "地区"
// @Param min_price query number false "最低价"
// @Param max_price query number false "最高价"
// @Param q query string false "关键字（标题或描述）"
// @Param sort query string false "newest | oldest | price-low | price-high" default(newest)
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(20)
// @Success 200 {object} response.Response{data=cache.BrowsePage}
// @Failure 400 {object} response.Response
// @Router /api/v1/listings [get]
func (h *Handler) Browse(c *gin.Context) {
	var q browseQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	page, err := h.listings.Browse(c.Request.Context(), repository.BrowseFilter{
		Category: q.Category,
		Region:   q.Region,
		MinPrice: q.MinPrice,
		MaxPrice: q.MaxPrice,
		Search:   q.Search,
		Sort:     q.Sort,
		Page:     q.Page,
		PageSize: q.PageSize,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, page)
}

// Get 详情
// @Summary 信息详情
// @Tags 分类信息
// @Produce json
// @Param id path string true "信息ID"
// @Success 200 {object} response.Response{data=service.ListingView}
// @Failure 404 {object} response.Response
// @Router /api/v1/listings/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	v, err := h.listings.Get(c.Request.Context(), c.Param("id"), middleware.CapabilityFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, v)
}

// Submit 发布新信息（multipart）
// @Summary 发布信息
// @Tags 分类信息
// @Security BearerAuth
// @Accept multipart/form-data
// @Produce json
// @Param category formData string true "分类"
// @Param region formData string true "地区"
// @Param title formData string true "标题"
// @Param price formData string true "价格"
// @Param description formData string true "描述"
// @Param contact_name formData string true "联系人"
// @Param contact_email formData string true "联系邮箱"
// @Param contact_phone formData string false "联系电话"
// @Param images formData file false "图片（最多 5 张，每张不超过 10MB）"
// @Success 201 {object} response.Response{data=service.SubmitResult}
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Failure 502 {object} response.Response
// @Router /api/v1/listings [post]
func (h *Handler) Submit(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)

	var in service.SubmitInput
	if err := c.ShouldBind(&in); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, response.Response{Code: http.StatusRequestEntityTooLarge, Message: "request body too large"})
			return
		}
		response.BadRequest(c, err.Error())
		return
	}

	var images []service.ImageFile
	if form, err := c.MultipartForm(); err == nil && form != nil {
		for _, fh := range form.File["images"] {
			fh := fh
			images = append(images, service.ImageFile{
				Filename:    fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Size:        fh.Size,
				Open: func() (io.ReadCloser, error) {
					return fh.Open()
				},
			})
		}
	}

	res, err := h.submission.Submit(c.Request.Context(), in, images, middleware.CapabilityFrom(c))
	if err != nil {
		if res != nil && errors.Is(err, apperr.ErrUpstreamUnavailable) {
			_ = c.Error(err)
			response.BadGateway(c, "listing saved but image upload failed", res)
			return
		}
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// ListMine 我的信息
// @Summary 我发布的信息
// @Tags 分类信息
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Response{data=[]service.ListingView}
// @Failure 401 {object} response.Response
// @Router /api/v1/me/listings [get]
func (h *Handler) ListMine(c *gin.Context) {
	list, err := h.listings.ListMine(c.Request.Context(), middleware.CapabilityFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"list": list})
}

// Delete 删除（本人或管理员）
// @Summary 删除信息
// @Tags 分类信息
// @Security BearerAuth
// @Produce json
// @Param id path string true "信息ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/listings/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	if err := h.listings.Delete(c.Request.Context(), c.Param("id"), middleware.CapabilityFrom(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// Checkout 创建待支付记录
// @Summary 结账
// @Tags 支付
// @Security BearerAuth
// @Produce json
// @Param id path string true "信息ID"
// @Success 201 {object} response.Response{data=model.Payment}
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/listings/{id}/checkout [post]
func (h *Handler) Checkout(c *gin.Context) {
	p, err := h.payments.Checkout(c.Request.Context(), c.Param("id"), middleware.CapabilityFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, p)
}
