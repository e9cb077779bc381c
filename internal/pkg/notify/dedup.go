package notify

import (
	"context"
	"log/slog"

	"taskmanager/internal/model"
)

// Seener 记录某个 key 是否已经出现过。
type Seener interface {
	Seen(ctx context.Context, key string) (bool, error)
}

// Deduped 包装 Notifier，同一邮箱在去重窗口内只收到一次同类通知。
//
// 反复注册、注销同一邮箱不会导致邮件轰炸。去重检查失败时照常发送。
type Deduped struct {
	next   Notifier
	seen   Seener
	logger *slog.Logger
}

// NewDeduped 创建带去重的通知器。
func NewDeduped(next Notifier, seen Seener, logger *slog.Logger) *Deduped {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deduped{next: next, seen: seen, logger: logger}
}

func (d *Deduped) Welcome(ctx context.Context, user *model.User) {
	if d.skip(ctx, "welcome", user) {
		return
	}
	d.next.Welcome(ctx, user)
}

func (d *Deduped) Farewell(ctx context.Context, user *model.User) {
	if d.skip(ctx, "farewell", user) {
		return
	}
	d.next.Farewell(ctx, user)
}

func (d *Deduped) skip(ctx context.Context, kind string, user *model.User) bool {
	seen, err := d.seen.Seen(ctx, kind+"|"+user.Email)
	if err != nil {
		d.logger.Warn("notification dedup failed", slog.String("kind", kind), slog.String("error", err.Error()))
		return false
	}
	if seen {
		d.logger.Debug("duplicate notification suppressed", slog.String("kind", kind))
	}
	return seen
}
