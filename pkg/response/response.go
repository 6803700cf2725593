package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/alaskacg/tongass-listings/pkg/apperr"
	"github.com/alaskacg/tongass-listings/pkg/logger"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: 0, Message: "success", Data: data})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Code: 0, Message: "success", Data: data})
}

func BadRequest(c *gin.Context, msg string) {
	abort(c, http.StatusBadRequest, msg, nil)
}

func Unauthorized(c *gin.Context, msg string) {
	abort(c, http.StatusUnauthorized, msg, nil)
}

func Forbidden(c *gin.Context, msg string) {
	abort(c, http.StatusForbidden, msg, nil)
}

func NotFound(c *gin.Context, msg string) {
	abort(c, http.StatusNotFound, msg, nil)
}

// BadGateway 上游失败但本地已有部分结果时带 data 返回
func BadGateway(c *gin.Context, msg string, data interface{}) {
	abort(c, http.StatusBadGateway, msg, data)
}

func TooManyRequests(c *gin.Context) {
	abort(c, http.StatusTooManyRequests, "too many requests", nil)
}

// InternalError 500，错误细节只进日志与 sentry，不回显给调用方
func InternalError(c *gin.Context, err error) {
	_ = c.Error(err)
	logger.Error("internal error",
		zap.String("path", c.FullPath()),
		zap.String("request_id", c.GetString("request_id")),
		zap.Error(err))
	abort(c, http.StatusInternalServerError, "internal server error", nil)
}

// Error 根据错误类型映射 HTTP 状态码
func Error(c *gin.Context, err error) {
	if ve, ok := apperr.IsValidation(err); ok {
		abort(c, http.StatusBadRequest, "validation failed", gin.H{"fields": ve.Fields})
		return
	}
	switch {
	case errors.Is(err, apperr.ErrUnauthorized):
		Unauthorized(c, err.Error())
	case errors.Is(err, apperr.ErrForbidden):
		Forbidden(c, err.Error())
	case errors.Is(err, apperr.ErrNotFound):
		NotFound(c, err.Error())
	case errors.Is(err, apperr.ErrConflict):
		abort(c, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, apperr.ErrUpstreamUnavailable):
		_ = c.Error(err)
		abort(c, http.StatusBadGateway, err.Error(), nil)
	default:
		InternalError(c, err)
	}
}

func abort(c *gin.Context, status int, msg string, data interface{}) {
	c.AbortWithStatusJSON(status, Response{Code: status, Message: msg, Data: data})
}
