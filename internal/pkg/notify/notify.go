package notify

import (
	"context"

	"taskmanager/internal/model"
)

// Message 是一封待发送的邮件。
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender 负责真正投递邮件。
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Notifier 定义账户生命周期通知。
//
// 实现不得阻塞请求，也不得返回错误：通知失败只记录日志。
type Notifier interface {
	// Welcome 在注册成功后调用。
	Welcome(ctx context.Context, user *model.User)
	// Farewell 在注销账户后调用。
	Farewell(ctx context.Context, user *model.User)
}

// Nop 不发送任何通知。
type Nop struct{}

func (Nop) Welcome(context.Context, *model.User)  {}
func (Nop) Farewell(context.Context, *model.User) {}
