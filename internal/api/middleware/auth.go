package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"taskmanager/internal/apperr"
	"taskmanager/internal/model"

	"github.com/gin-gonic/gin"
)

const (
	userKey  = "user"
	tokenKey = "token"

	msgLoggedOut = "You should be logged in."
)

// TokenResolver 将令牌解析为仍处于登录状态的用户。
type TokenResolver interface {
	ResolveToken(ctx context.Context, token string) (*model.User, error)
}

// AuthMiddleware 校验 Bearer 令牌，并将用户与原始令牌写入上下文。
//
// 任何失败都立即终止请求，不做重试。
func AuthMiddleware(resolver TokenResolver, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msgLoggedOut})
			return
		}
		token := strings.TrimSpace(parts[1])

		user, err := resolver.ResolveToken(c.Request.Context(), token)
		if err != nil {
			if apperr.Is(err, apperr.KindAuthentication) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msgLoggedOut})
				return
			}
			if logger != nil {
				logger.Error("resolve token failed", slog.String("error", err.Error()))
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.Set(userKey, user)
		c.Set(tokenKey, token)
		c.Next()
	}
}

// CurrentUser 返回 AuthMiddleware 解析出的用户。
func CurrentUser(c *gin.Context) *model.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	user, _ := v.(*model.User)
	return user
}

// CurrentToken 返回本次请求携带的原始令牌。
func CurrentToken(c *gin.Context) string {
	return c.GetString(tokenKey)
}
