// Package storetest 为测试提供内存 SQLite 数据库。
package storetest

import (
	"testing"

	"taskmanager/internal/store"

	"gorm.io/gorm"
)

// New 打开一个已迁移的内存数据库，测试结束时自动关闭。
func New(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := store.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// 内存库每个连接相互独立，必须固定为单连接
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := store.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
