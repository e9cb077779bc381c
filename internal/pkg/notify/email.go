package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"taskmanager/internal/config"
	"taskmanager/internal/model"
	"taskmanager/internal/pkg/metrics"
	"taskmanager/internal/pkg/queue"

	"gopkg.in/gomail.v2"
)

// ErrNotConfigured SMTP 配置缺失。
var ErrNotConfigured = errors.New("email config missing")

// EmailSender 通过 SMTP 发送邮件。
type EmailSender struct {
	cfg *config.EmailConfig
}

// NewEmailSender 创建 SMTP 发送器。
func NewEmailSender(cfg *config.EmailConfig) *EmailSender {
	return &EmailSender{cfg: cfg}
}

// Configured 判断 SMTP 配置是否完整。
func (s *EmailSender) Configured() bool {
	return s != nil && s.cfg != nil && s.cfg.SMTPHost != "" && s.cfg.SMTPUser != "" && s.cfg.FromEmail != ""
}

// Send 发送一封 HTML 邮件。
func (s *EmailSender) Send(ctx context.Context, msg Message) error {
	if !s.Configured() {
		return ErrNotConfigured
	}
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("empty recipient")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.FromEmail)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)

	d := gomail.NewDialer(s.cfg.SMTPHost, s.cfg.SMTPPort, s.cfg.SMTPUser, s.cfg.SMTPPass)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// MailNotifier 将账户通知渲染为邮件并放入后台队列发送。
type MailNotifier struct {
	sender Sender
	queue  *queue.Queue
	logger *slog.Logger
}

// NewMailNotifier 创建邮件通知器。
func NewMailNotifier(sender Sender, q *queue.Queue, logger *slog.Logger) *MailNotifier {
	return &MailNotifier{sender: sender, queue: q, logger: logger}
}

// Welcome 发送注册欢迎邮件。
func (n *MailNotifier) Welcome(ctx context.Context, user *model.User) {
	n.dispatch(Message{
		To:      user.Email,
		Subject: "[TaskManager] Welcome aboard",
		HTML:    welcomeBody(user),
	})
}

// Farewell 发送注销确认邮件。
func (n *MailNotifier) Farewell(ctx context.Context, user *model.User) {
	n.dispatch(Message{
		To:      user.Email,
		Subject: "[TaskManager] Your account was deleted",
		HTML:    farewellBody(user),
	})
}

func (n *MailNotifier) dispatch(msg Message) {
	job := func(ctx context.Context) error {
		err := n.sender.Send(ctx, msg)
		if errors.Is(err, ErrNotConfigured) {
			n.logger.Debug("email config missing, skip notification", slog.String("subject", msg.Subject))
			return nil
		}
		if err != nil {
			return err
		}
		n.logger.Info("email notification sent", slog.String("to", msg.To), slog.String("subject", msg.Subject))
		return nil
	}
	if !n.queue.Enqueue(job) {
		metrics.MailQueueDropped.Inc()
	}
}

func displayName(user *model.User) string {
	if strings.TrimSpace(user.Name) != "" {
		return html.EscapeString(user.Name)
	}
	return html.EscapeString(user.Email)
}

func welcomeBody(user *model.User) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <div style="max-width: 520px; margin: 0 auto; padding: 16px;">
    <h2>Welcome, %s!</h2>
    <p>Your TaskManager account is ready. Start by creating your first task.</p>
  </div>
</body>
</html>`, displayName(user))
}

func farewellBody(user *model.User) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <div style="max-width: 520px; margin: 0 auto; padding: 16px;">
    <h2>Goodbye, %s</h2>
    <p>Your account and all of its tasks have been deleted.</p>
  </div>
</body>
</html>`, displayName(user))
}
