package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/alaskacg/tongass-listings/internal/auth"
	"github.com/alaskacg/tongass-listings/pkg/logger"
	"github.com/alaskacg/tongass-listings/pkg/response"
)

const capabilityKey = "capability"

// AdminChecker 角色查询（RoleResolver 实现）
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// Auth 解析 Bearer token 并把 Capability 放入上下文。
// required=false 时没有 token 视为匿名，但带了无效 token 仍然 401。
func Auth(verifier auth.TokenVerifier, roles AdminChecker, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			if required {
				response.Unauthorized(c, "missing bearer token")
				return
			}
			c.Set(capabilityKey, auth.Anonymous())
			c.Next()
			return
		}

		id, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			response.Unauthorized(c, "invalid token")
			return
		}
		admin := false
		if roles != nil {
			if admin, err = roles.IsAdmin(c.Request.Context(), id.UserID); err != nil {
				// 角色查询失败按普通用户处理
				logger.Warn("role lookup failed", zap.String("user_id", id.UserID), zap.Error(err))
				admin = false
			}
		}
		c.Set(capabilityKey, auth.NewCapability(id, admin))
		c.Set("user_id", id.UserID)
		c.Next()
	}
}

// RequireAdmin 必须放在 Auth 之后
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		capa := CapabilityFrom(c)
		if !capa.Authenticated() {
			response.Unauthorized(c, "missing bearer token")
			return
		}
		if !capa.IsAdmin() {
			response.Forbidden(c, "admin role required")
			return
		}
		c.Next()
	}
}

// CapabilityFrom 取当前请求的 Capability，没有时为匿名
func CapabilityFrom(c *gin.Context) auth.Capability {
	if v, ok := c.Get(capabilityKey); ok {
		if capa, ok := v.(auth.Capability); ok {
			return capa
		}
	}
	return auth.Anonymous()
}

func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
