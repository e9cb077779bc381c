package store

import (
	"context"
	"fmt"
	"math"

	"taskmanager/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SortColumns 是允许排序的 JSON 字段到数据库列的映射。
var SortColumns = map[string]string{
	"id":        "id",
	"task":      "task",
	"comment":   "comment",
	"done":      "done",
	"createdAt": "created_at",
	"updatedAt": "updated_at",
}

// TaskQuery 描述任务列表的过滤、排序与分页条件。
type TaskQuery struct {
	Done   *bool  // nil 表示不过滤
	SortBy string // SortColumns 中的键，空表示按 id 升序
	Desc   bool
	Limit  int // 0 表示不限制
	Skip   int
}

// TaskStore 持久化任务，所有操作都按 owner 限定。
type TaskStore struct {
	db *gorm.DB
}

// NewTaskStore 创建任务存储。
func NewTaskStore(db *gorm.DB) *TaskStore {
	return &TaskStore{db: db}
}

// Create 插入任务。
func (s *TaskStore) Create(ctx context.Context, task *model.Task) error {
	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", translate(err))
	}
	return nil
}

// List 返回 owner 的任务列表。
func (s *TaskStore) List(ctx context.Context, ownerID uint, q TaskQuery) ([]model.Task, error) {
	tasks := []model.Task{} // 保证 JSON 输出 [] 而不是 null
	query := s.db.WithContext(ctx).Where("owner_id = ?", ownerID)
	if q.Done != nil {
		query = query.Where("done = ?", *q.Done)
	}
	if col, ok := SortColumns[q.SortBy]; ok {
		query = query.Order(clause.OrderByColumn{Column: clause.Column{Name: col}, Desc: q.Desc})
	}
	query = query.Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}})

	limit := q.Limit
	if limit <= 0 && q.Skip > 0 {
		// OFFSET 必须跟在 LIMIT 之后
		limit = math.MaxInt32
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if q.Skip > 0 {
		query = query.Offset(q.Skip)
	}

	if err := query.Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// Get 读取 owner 名下的单个任务。
func (s *TaskStore) Get(ctx context.Context, ownerID, id uint) (*model.Task, error) {
	var task model.Task
	if err := s.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).First(&task).Error; err != nil {
		return nil, fmt.Errorf("get task %d: %w", id, translate(err))
	}
	return &task, nil
}

// Update 更新 owner 名下任务的指定字段，并返回更新后的任务。
func (s *TaskStore) Update(ctx context.Context, ownerID, id uint, fields map[string]interface{}) (*model.Task, error) {
	var task model.Task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND owner_id = ?", id, ownerID).First(&task).Error; err != nil {
			return translate(err)
		}
		if len(fields) == 0 {
			return nil
		}
		if err := tx.Model(&task).Where("owner_id = ?", ownerID).Updates(fields).Error; err != nil {
			return err
		}
		return tx.Where("id = ? AND owner_id = ?", id, ownerID).First(&task).Error
	})
	if err != nil {
		return nil, fmt.Errorf("update task %d: %w", id, err)
	}
	return &task, nil
}

// Delete 删除 owner 名下的任务并返回被删除的记录。
func (s *TaskStore) Delete(ctx context.Context, ownerID, id uint) (*model.Task, error) {
	var task model.Task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND owner_id = ?", id, ownerID).First(&task).Error; err != nil {
			return translate(err)
		}
		res := tx.Where("id = ? AND owner_id = ?", id, ownerID).Delete(&model.Task{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("delete task %d: %w", id, err)
	}
	return &task, nil
}

// DeleteByOwner 删除 owner 的全部任务，返回删除条数。
func (s *TaskStore) DeleteByOwner(ctx context.Context, ownerID uint) (int64, error) {
	res := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).Delete(&model.Task{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete tasks of %d: %w", ownerID, res.Error)
	}
	return res.RowsAffected, nil
}
