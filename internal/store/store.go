// Package store 提供用户与任务的持久化实现（基于 GORM）。
//
// 所有任务查询都在 SQL 层带上 owner_id 条件，保证越权访问在查询边界就被拦截。
package store

import (
	"errors"
	"fmt"
	"strings"

	"taskmanager/internal/model"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

var (
	// ErrNotFound 记录不存在。
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate 违反唯一约束（如邮箱重复）。
	ErrDuplicate = errors.New("duplicate record")
)

// Open 根据驱动名打开数据库连接。
//
// 支持的驱动: "mysql"（生产）与 "sqlite"（本地开发与测试）。
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "mysql":
		dialector = mysql.Open(dsn)
	case "sqlite", "sqlite3":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent), // 关闭GORM调试日志
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	return db, nil
}

// Migrate 执行自动迁移。
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.User{}, &model.UserToken{}, &model.Task{})
}

// translate 将 GORM 错误转换为本包的哨兵错误。
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	default:
		return err
	}
}
