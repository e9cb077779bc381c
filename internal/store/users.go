package store

import (
	"context"
	"fmt"

	"taskmanager/internal/model"

	"gorm.io/gorm"
)

// UserStore 持久化用户、会话令牌与头像。
type UserStore struct {
	db *gorm.DB
}

// NewUserStore 创建用户存储。
func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

// Create 插入新用户（连同 Tokens 中的令牌）。
func (s *UserStore) Create(ctx context.Context, user *model.User) error {
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("create user: %w", translate(err))
	}
	return nil
}

// FindByID 按 ID 查找用户，不加载头像。
func (s *UserStore) FindByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Omit("avatar").Where("id = ?", id).First(&user).Error; err != nil {
		return nil, fmt.Errorf("find user %d: %w", id, translate(err))
	}
	return &user, nil
}

// FindByEmail 按邮箱查找用户，不加载头像。
func (s *UserStore) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Omit("avatar").Where("email = ?", email).First(&user).Error; err != nil {
		return nil, fmt.Errorf("find user by email: %w", translate(err))
	}
	return &user, nil
}

// FindByIDAndToken 查找 ID 匹配且令牌仍在有效列表中的用户。
func (s *UserStore) FindByIDAndToken(ctx context.Context, id uint, token string) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).
		Omit("avatar").
		Where("id = ?", id).
		Where("EXISTS (SELECT 1 FROM user_tokens WHERE user_tokens.user_id = users.id AND user_tokens.token = ?)", token).
		First(&user).Error
	if err != nil {
		return nil, fmt.Errorf("find user by token: %w", translate(err))
	}
	return &user, nil
}

// EmailTaken 判断邮箱是否已被其他用户占用（exceptID 为 0 表示不排除任何用户）。
func (s *UserStore) EmailTaken(ctx context.Context, email string, exceptID uint) (bool, error) {
	var count int64
	query := s.db.WithContext(ctx).Model(&model.User{}).Where("email = ?", email)
	if exceptID != 0 {
		query = query.Where("id <> ?", exceptID)
	}
	if err := query.Count(&count).Error; err != nil {
		return false, fmt.Errorf("count email: %w", err)
	}
	return count > 0, nil
}

// Update 更新指定字段。
func (s *UserStore) Update(ctx context.Context, id uint, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update user %d: %w", id, translate(res.Error))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update user %d: %w", id, ErrNotFound)
	}
	return nil
}

// AddToken 将令牌追加到用户的令牌列表末尾。
func (s *UserStore) AddToken(ctx context.Context, userID uint, token string) error {
	row := model.UserToken{UserID: userID, Token: token}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("add token: %w", translate(err))
	}
	return nil
}

// RemoveToken 删除一条匹配的令牌，不存在时不报错。
func (s *UserStore) RemoveToken(ctx context.Context, userID uint, token string) error {
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND token = ?", userID, token).
		Delete(&model.UserToken{}).Error; err != nil {
		return fmt.Errorf("remove token: %w", err)
	}
	return nil
}

// RemoveAllTokens 清空用户的令牌列表。
func (s *UserStore) RemoveAllTokens(ctx context.Context, userID uint) error {
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.UserToken{}).Error; err != nil {
		return fmt.Errorf("remove tokens: %w", err)
	}
	return nil
}

// ListTokens 按签发顺序返回用户的有效令牌。
func (s *UserStore) ListTokens(ctx context.Context, userID uint) ([]string, error) {
	tokens := []string{}
	if err := s.db.WithContext(ctx).Model(&model.UserToken{}).
		Where("user_id = ?", userID).
		Order("id ASC").
		Pluck("token", &tokens).Error; err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	return tokens, nil
}

// SetAvatar 保存头像（nil 表示清除）。
func (s *UserStore) SetAvatar(ctx context.Context, userID uint, data []byte) error {
	var value interface{}
	if len(data) > 0 {
		value = data
	}
	res := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Update("avatar", value)
	if res.Error != nil {
		return fmt.Errorf("set avatar: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("set avatar: %w", ErrNotFound)
	}
	return nil
}

// GetAvatar 读取头像，用户不存在或没有头像时返回 ErrNotFound。
func (s *UserStore) GetAvatar(ctx context.Context, userID uint) ([]byte, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Select("id", "avatar").Where("id = ?", userID).First(&user).Error; err != nil {
		return nil, fmt.Errorf("get avatar: %w", translate(err))
	}
	if len(user.Avatar) == 0 {
		return nil, fmt.Errorf("get avatar: %w", ErrNotFound)
	}
	return user.Avatar, nil
}

// DeleteCascade 在一个事务中删除用户的任务、令牌以及用户本身。
//
// 任一步骤失败则整体回滚，不会留下孤立任务。
func (s *UserStore) DeleteCascade(ctx context.Context, userID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := NewTaskStore(tx).DeleteByOwner(ctx, userID); err != nil {
			return err
		}
		if err := NewUserStore(tx).RemoveAllTokens(ctx, userID); err != nil {
			return err
		}
		res := tx.Where("id = ?", userID).Delete(&model.User{})
		if res.Error != nil {
			return fmt.Errorf("delete user %d: %w", userID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("delete user %d: %w", userID, ErrNotFound)
		}
		return nil
	})
}
