package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"taskmanager/internal/api/middleware"
	"taskmanager/internal/apperr"
	"taskmanager/internal/store"

	"github.com/gin-gonic/gin"
)

// multipart 头部与边界的额外开销
const multipartOverhead = 64 << 10

// handleUpdateUser 修改当前用户的资料。
//
// PATCH /user
func (s *Server) handleUpdateUser(c *gin.Context) {
	var patch map[string]json.RawMessage
	if err := c.ShouldBindJSON(&patch); err != nil {
		s.writeError(c, "bind request", apperr.InvalidBody())
		return
	}

	user := middleware.CurrentUser(c)
	updated, err := s.authSvc.UpdateProfile(c.Request.Context(), user, patch)
	if err != nil {
		s.writeError(c, "update user failed", err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// handleDeleteUser 删除当前用户及其全部任务和令牌。
//
// DELETE /user
func (s *Server) handleDeleteUser(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if err := s.accounts.DeleteCascade(c.Request.Context(), user.ID); err != nil {
		s.writeError(c, "delete user failed", fromStore(err, "User not found.", "delete user"))
		return
	}

	if s.logger != nil {
		s.logger.Info("user deleted", slog.Uint64("user_id", uint64(user.ID)))
	}
	s.notifier.Farewell(c.Request.Context(), user)
	c.JSON(http.StatusOK, user)
}

// handleUploadAvatar 上传头像，缩放为固定尺寸的 PNG 后保存。
//
// POST /user/upload/avatar (multipart 字段 avatar)
func (s *Server) handleUploadAvatar(c *gin.Context) {
	limit := s.avatars.MaxBytes + multipartOverhead
	if c.Request.ContentLength > limit {
		s.writeError(c, "upload avatar", apperr.Validation("File too large"))
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	header, err := c.FormFile("avatar")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(c, "upload avatar", apperr.Validation("File too large"))
			return
		}
		s.writeError(c, "upload avatar", apperr.Validation("Upload an image."))
		return
	}
	if err := s.avatars.Validate(header.Filename, header.Size); err != nil {
		s.writeError(c, "upload avatar", err)
		return
	}

	file, err := header.Open()
	if err != nil {
		s.writeError(c, "upload avatar failed", apperr.Internal("open upload", err))
		return
	}
	defer file.Close()

	png, err := s.avatars.Transform(file)
	if err != nil {
		s.writeError(c, "upload avatar failed", err)
		return
	}

	user := middleware.CurrentUser(c)
	if err := s.accounts.SetAvatar(c.Request.Context(), user.ID, png); err != nil {
		s.writeError(c, "upload avatar failed", fromStore(err, "User not found.", "save avatar"))
		return
	}
	c.Status(http.StatusOK)
}

// handleDeleteAvatar 清除当前用户的头像。
//
// DELETE /user/avatar
func (s *Server) handleDeleteAvatar(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if err := s.accounts.SetAvatar(c.Request.Context(), user.ID, nil); err != nil {
		s.writeError(c, "delete avatar failed", fromStore(err, "User not found.", "clear avatar"))
		return
	}
	c.Status(http.StatusOK)
}

// handleGetAvatar 公开读取用户头像。
//
// GET /user/:id/avatar
func (s *Server) handleGetAvatar(c *gin.Context) {
	id, ok := parseID(c.Param("id"))
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}

	data, err := s.accounts.GetAvatar(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.Status(http.StatusNotFound)
			return
		}
		s.writeError(c, "get avatar failed", apperr.Internal("get avatar", err))
		return
	}
	c.Data(http.StatusOK, "image/png", data)
}
