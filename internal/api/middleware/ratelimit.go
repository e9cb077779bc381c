package middleware

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"time"

	"taskmanager/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// Limiter 按 key 做令牌桶限流。
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

// RateLimit 按客户端 IP 限流，超限返回 429。
//
// 限流器出错时放行请求，只记录日志。
func RateLimit(limiter Limiter, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		route := c.FullPath()
		ok, wait, err := limiter.Allow(c.Request.Context(), route+"|"+c.ClientIP())
		if err != nil {
			if logger != nil {
				logger.Warn("rate limit check failed", slog.String("error", err.Error()))
			}
			c.Next()
			return
		}
		if !ok {
			metrics.RateLimitedTotal.WithLabelValues(route).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many requests",
				"retry_after": int(math.Ceil(wait.Seconds())),
			})
			return
		}
		c.Next()
	}
}
