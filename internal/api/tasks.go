package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"taskmanager/internal/api/middleware"
	"taskmanager/internal/apperr"
	"taskmanager/internal/model"
	"taskmanager/internal/pkg/metrics"
	"taskmanager/internal/store"

	"github.com/gin-gonic/gin"
)

type createTaskRequest struct {
	Task    string `json:"task"`
	Comment string `json:"comment"`
	Done    bool   `json:"done"`
}

// 允许通过 PATCH /tasks/:id 修改的字段。
var taskUpdatable = map[string]string{
	"task":    "task",
	"comment": "comment",
}

// handleCreateTask 为当前用户创建任务。
//
// POST /task/create
func (s *Server) handleCreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, "bind request", apperr.InvalidBody())
		return
	}

	title := strings.TrimSpace(req.Task)
	comment := strings.TrimSpace(req.Comment)
	if title == "" {
		s.writeError(c, "create task", apperr.Validation("Task validation failed: task is required."))
		return
	}
	if comment == "" {
		s.writeError(c, "create task", apperr.Validation("Task validation failed: comment is required."))
		return
	}

	user := middleware.CurrentUser(c)
	task := &model.Task{
		Title:   title,
		Comment: comment,
		Done:    req.Done,
		OwnerID: user.ID,
	}
	if err := s.tasks.Create(c.Request.Context(), task); err != nil {
		s.writeError(c, "create task failed", apperr.Internal("create task", err))
		return
	}

	metrics.TasksCreatedTotal.Inc()
	c.JSON(http.StatusOK, task)
}

// handleListTasks 列出当前用户的任务，支持过滤、排序与分页。
//
// GET /tasks?completed=true&sortBy=createdAt_desc&limit=10&skip=20
func (s *Server) handleListTasks(c *gin.Context) {
	q, err := parseTaskQuery(c)
	if err != nil {
		s.writeError(c, "list tasks", err)
		return
	}

	user := middleware.CurrentUser(c)
	tasks, err := s.tasks.List(c.Request.Context(), user.ID, q)
	if err != nil {
		s.writeError(c, "list tasks failed", apperr.Internal("list tasks", err))
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	c.JSON(http.StatusOK, tasks)
}

// handleGetTask 返回当前用户拥有的单个任务。
//
// GET /tasks/:id
func (s *Server) handleGetTask(c *gin.Context) {
	id, ok := parseID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found."})
		return
	}

	user := middleware.CurrentUser(c)
	task, err := s.tasks.Get(c.Request.Context(), user.ID, id)
	if err != nil {
		s.writeError(c, "get task failed", fromStore(err, "Task not found.", "get task"))
		return
	}
	c.JSON(http.StatusOK, task)
}

// handleUpdateTask 修改任务标题或备注，其他字段一律拒绝。
//
// PATCH /tasks/:id
func (s *Server) handleUpdateTask(c *gin.Context) {
	var patch map[string]json.RawMessage
	if err := c.ShouldBindJSON(&patch); err != nil {
		s.writeError(c, "bind request", apperr.InvalidBody())
		return
	}

	fields, err := taskFields(patch)
	if err != nil {
		s.writeError(c, "update task", err)
		return
	}

	id, ok := parseID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found."})
		return
	}

	user := middleware.CurrentUser(c)
	task, err := s.tasks.Update(c.Request.Context(), user.ID, id, fields)
	if err != nil {
		s.writeError(c, "update task failed", fromStore(err, "Task not found.", "update task"))
		return
	}
	c.JSON(http.StatusOK, task)
}

// handleDeleteTask 删除当前用户拥有的任务并返回被删除的任务。
//
// DELETE /tasks/:id
func (s *Server) handleDeleteTask(c *gin.Context) {
	id, ok := parseID(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found."})
		return
	}

	user := middleware.CurrentUser(c)
	task, err := s.tasks.Delete(c.Request.Context(), user.ID, id)
	if err != nil {
		s.writeError(c, "delete task failed", fromStore(err, "Task not found.", "delete task"))
		return
	}
	c.JSON(http.StatusOK, task)
}

// taskFields 校验补丁并转换为列名到值的映射。
func taskFields(patch map[string]json.RawMessage) (map[string]interface{}, error) {
	fields := make(map[string]interface{}, len(patch))
	for key, raw := range patch {
		column, ok := taskUpdatable[key]
		if !ok {
			return nil, apperr.Validation("Invalid update fields.")
		}
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, apperr.Validation(key + " must be a string.")
		}
		value = strings.TrimSpace(value)
		if value == "" {
			return nil, apperr.Validation(key + " must not be empty.")
		}
		fields[column] = value
	}
	return fields, nil
}

// parseTaskQuery 解析列表查询参数，非法取值返回 Validation 错误。
func parseTaskQuery(c *gin.Context) (store.TaskQuery, error) {
	var q store.TaskQuery

	switch completed := c.Query("completed"); completed {
	case "":
	case "true", "false":
		done := completed == "true"
		q.Done = &done
	default:
		return q, apperr.Validation("completed must be true or false.")
	}

	if sortBy := c.Query("sortBy"); sortBy != "" {
		field, dir, _ := strings.Cut(sortBy, "_")
		if _, ok := store.SortColumns[field]; !ok {
			return q, apperr.Validation("Invalid sort field: " + field)
		}
		q.SortBy = field
		q.Desc = dir == "desc" || dir == "descending"
	}

	limit, err := parseCount(c, "limit")
	if err != nil {
		return q, err
	}
	skip, err := parseCount(c, "skip")
	if err != nil {
		return q, err
	}
	q.Limit = limit
	q.Skip = skip
	return q, nil
}

func parseCount(c *gin.Context, name string) (int, error) {
	raw, ok := c.GetQuery(name)
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.Validation(name + " must be a non-negative integer.")
	}
	return n, nil
}

// parseID 解析路径中的资源 ID；非数字的 ID 不可能对应任何记录。
func parseID(raw string) (uint, bool) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
