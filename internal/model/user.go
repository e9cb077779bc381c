package model

import "time"

// User 表示系统用户。
//
// 序列化时密码哈希、会话令牌以及头像二进制一律不输出。
type User struct {
	ID        uint        `gorm:"primaryKey" json:"id"`                                  // 用户 ID
	Name      string      `gorm:"type:varchar(191)" json:"name"`                         // 昵称（可选）
	Email     string      `gorm:"type:varchar(191);uniqueIndex;not null" json:"email"`   // 邮箱（唯一，小写）
	Password  string      `gorm:"not null" json:"-"`                                     // bcrypt 哈希
	Avatar    []byte      `gorm:"type:mediumblob" json:"-"`                              // 250x250 PNG
	Tokens    []UserToken `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"` // 有效会话令牌
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// UserToken 是一条有效的会话令牌。
//
// 令牌是否有效取决于该记录是否存在：注销即删除记录。
type UserToken struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"index;not null"`
	Token     string    `gorm:"type:varchar(512);uniqueIndex;not null"`
	CreatedAt time.Time
}
