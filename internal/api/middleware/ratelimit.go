package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/alaskacg/tongass-listings/pkg/response"
)

// RateLimit 按调用方（已登录用户或客户端 IP）的令牌桶限流；perMinute<=0 时不限流
func RateLimit(perMinute, burst int) gin.HandlerFunc {
	if perMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Every(time.Minute / time.Duration(perMinute))
	limiters := expirable.NewLRU[string, *rate.Limiter](10000, nil, 10*time.Minute)

	return func(c *gin.Context) {
		key := c.GetString("user_id")
		if key == "" {
			key = "ip:" + c.ClientIP()
		}
		l, ok := limiters.Get(key)
		if !ok {
			l = rate.NewLimiter(limit, burst)
			limiters.Add(key, l)
		}
		if !l.Allow() {
			response.TooManyRequests(c)
			return
		}
		c.Next()
	}
}
