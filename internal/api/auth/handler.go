package auth

import (
	"log/slog"
	"net/http"

	"taskmanager/internal/api/middleware"
	"taskmanager/internal/apperr"
	"taskmanager/internal/pkg/notify"

	"github.com/gin-gonic/gin"
)

// Handler 提供注册、登录与注销接口。
type Handler struct {
	svc      *Service
	notifier notify.Notifier
	logger   *slog.Logger
}

// NewHandler 创建 Auth Handler。
func NewHandler(svc *Service, notifier notify.Notifier, logger *slog.Logger) *Handler {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Handler{svc: svc, notifier: notifier, logger: logger}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User  interface{} `json:"user"`
	Token string      `json:"token"`
}

// Signup 创建新用户并返回会话令牌。
//
// POST /signup
func (h *Handler) Signup(c *gin.Context) {
	var req SignupInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, "bind request", apperr.InvalidBody())
		return
	}

	user, token, err := h.svc.Register(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "signup failed", err)
		return
	}

	if h.logger != nil {
		h.logger.Info("user registered", slog.String("email", user.Email))
	}
	h.notifier.Welcome(c.Request.Context(), user)
	c.JSON(http.StatusCreated, sessionResponse{User: user, Token: token})
}

// Login 校验凭据并签发新令牌。凭据错误返回 400。
//
// POST /login
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, "bind request", apperr.InvalidBody())
		return
	}

	user, token, err := h.svc.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if apperr.Is(err, apperr.KindAuthentication) {
			c.JSON(http.StatusBadRequest, gin.H{"error": apperr.Message(err)})
			return
		}
		h.fail(c, "login failed", err)
		return
	}

	if h.logger != nil {
		h.logger.Info("user logged in", slog.String("email", user.Email))
	}
	c.JSON(http.StatusOK, sessionResponse{User: user, Token: token})
}

// Logout 吊销当前请求使用的令牌。
//
// POST /logout
func (h *Handler) Logout(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if err := h.svc.Revoke(c.Request.Context(), user, middleware.CurrentToken(c)); err != nil {
		h.fail(c, "logout failed", err)
		return
	}
	c.Status(http.StatusOK)
}

// LogoutAll 吊销用户的全部令牌。
//
// POST /logout-all
func (h *Handler) LogoutAll(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if err := h.svc.RevokeAll(c.Request.Context(), user); err != nil {
		h.fail(c, "logout all failed", err)
		return
	}
	if h.logger != nil {
		h.logger.Info("all sessions revoked", slog.Uint64("user_id", uint64(user.ID)))
	}
	c.Status(http.StatusOK)
}

func (h *Handler) fail(c *gin.Context, msg string, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError && h.logger != nil {
		h.logger.Error(msg, slog.String("error", err.Error()))
	}
	c.JSON(status, gin.H{"error": apperr.Message(err)})
}
