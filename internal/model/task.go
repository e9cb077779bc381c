package model

import (
	"time"
)

// Task 表示用户的一条待办任务。
//
// 每个任务只属于一个用户，所有查询都必须带上 owner_id 条件。
type Task struct {
	ID        uint      `gorm:"primaryKey" json:"id"`                // 任务唯一标识
	Title     string    `gorm:"column:task;not null" json:"task"`    // 标题
	Comment   string    `gorm:"not null" json:"comment"`             // 备注
	Done      bool      `gorm:"not null;default:false" json:"done"`  // 是否完成
	OwnerID   uint      `gorm:"index;not null" json:"ownerId"`       // 所属用户 ID
	Owner     *User     `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
