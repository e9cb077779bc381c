package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"taskmanager/internal/api/auth"
	"taskmanager/internal/api/middleware"
	"taskmanager/internal/apperr"
	"taskmanager/internal/config"
	"taskmanager/internal/model"
	"taskmanager/internal/pkg/avatar"
	"taskmanager/internal/pkg/dedup"
	"taskmanager/internal/pkg/metrics"
	"taskmanager/internal/pkg/notify"
	"taskmanager/internal/pkg/queue"
	"taskmanager/internal/pkg/ratelimit"
	"taskmanager/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server 封装了 API 服务所需的依赖和路由处理。
//
// 它持有数据库连接、可选的 Redis 客户端、邮件队列以及 Gin 路由引擎。
type Server struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *gorm.DB
	rdb       *redis.Client
	router    *gin.Engine
	auth      *auth.Handler
	authSvc   *auth.Service
	tasks     TaskStore
	accounts  AccountStore
	avatars   *avatar.Processor
	notifier  notify.Notifier
	limiter   middleware.Limiter
	mailQueue *queue.Queue
}

// TaskStore 是任务接口依赖的存储，所有方法都按 owner 限定。
type TaskStore interface {
	Create(ctx context.Context, task *model.Task) error
	List(ctx context.Context, ownerID uint, q store.TaskQuery) ([]model.Task, error)
	Get(ctx context.Context, ownerID, id uint) (*model.Task, error)
	Update(ctx context.Context, ownerID, id uint, fields map[string]interface{}) (*model.Task, error)
	Delete(ctx context.Context, ownerID, id uint) (*model.Task, error)
}

// AccountStore 是用户资源接口依赖的存储。
type AccountStore interface {
	SetAvatar(ctx context.Context, userID uint, data []byte) error
	GetAvatar(ctx context.Context, userID uint) ([]byte, error)
	DeleteCascade(ctx context.Context, userID uint) error
}

// Options 用于从已建立的连接组装 Server。
type Options struct {
	Config   *config.Config
	Logger   *slog.Logger
	DB       *gorm.DB
	Redis    *redis.Client   // 为 nil 时不启用限流
	Notifier notify.Notifier // 为 nil 时不发送通知
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 连接数据库并执行自动迁移
// 2. 连接 Redis（配置了地址时）
// 3. 启动邮件发送队列（配置了 Redis 时对通知去重）
// 4. 初始化 Gin 路由引擎
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(db); err != nil {
		return nil, err
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       0,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, err
		}
	} else {
		logger.Warn("redis not configured, auth rate limiting disabled")
	}

	mailQueue := queue.NewQueue(logger, cfg.App.MailWorkers, cfg.App.MailQueueCapacity)
	mailQueue.Start(context.WithoutCancel(ctx))
	var notifier notify.Notifier = notify.NewMailNotifier(notify.NewEmailSender(&cfg.Email), mailQueue, logger)
	if rdb != nil {
		notifier = notify.NewDeduped(notifier, dedup.NewDeduplicator(rdb, "taskmanager:dedup:mail:", 24*time.Hour), logger)
	}

	metrics.InitMetrics()
	gin.SetMode(gin.ReleaseMode)

	s := New(Options{
		Config:   cfg,
		Logger:   logger,
		DB:       db,
		Redis:    rdb,
		Notifier: notifier,
	})
	s.mailQueue = mailQueue
	return s, nil
}

// New 使用已打开的连接组装 Server 并注册路由。
func New(opts Options) *Server {
	cfg := opts.Config
	users := store.NewUserStore(opts.DB)
	authSvc := auth.NewService(users, cfg.Security.JWTSecret, cfg.App.BcryptCost)

	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}

	var limiter middleware.Limiter
	if opts.Redis != nil {
		limiter = ratelimit.NewLimiter(opts.Redis, "taskmanager:ratelimit:auth:", cfg.Security.AuthRateLimit, cfg.Security.AuthRateBurst)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(opts.Logger))

	s := &Server{
		cfg:      cfg,
		logger:   opts.Logger,
		db:       opts.DB,
		rdb:      opts.Redis,
		router:   r,
		auth:     auth.NewHandler(authSvc, notifier, opts.Logger),
		authSvc:  authSvc,
		tasks:    store.NewTaskStore(opts.DB),
		accounts: users,
		avatars:  avatar.NewProcessor(cfg.App.AvatarMaxBytes, cfg.App.AvatarSize),
		notifier: notifier,
		limiter:  limiter,
	}
	s.registerRoutes()
	return s
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// Close 等待邮件队列清空并关闭数据库与缓存连接。
func (s *Server) Close() error {
	var errs []error
	if s.mailQueue != nil {
		if err := s.mailQueue.Shutdown(5 * time.Second); err != nil {
			errs = append(errs, err)
		}
	}
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			errs = append(errs, err)
		} else if err := sqlDB.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes() {
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/healthz", s.handleHealthz)

	limited := middleware.RateLimit(s.limiter, s.logger)
	s.router.POST("/signup", limited, s.auth.Signup)
	s.router.POST("/login", limited, s.auth.Login)
	s.router.GET("/user/:id/avatar", s.handleGetAvatar)

	authed := s.router.Group("/")
	authed.Use(middleware.AuthMiddleware(s.authSvc, s.logger))
	authed.POST("/logout", s.auth.Logout)
	authed.POST("/logout-all", s.auth.LogoutAll)

	authed.PATCH("/user", s.handleUpdateUser)
	authed.DELETE("/user", s.handleDeleteUser)
	authed.POST("/user/upload/avatar", s.handleUploadAvatar)
	authed.DELETE("/user/avatar", s.handleDeleteAvatar)

	authed.POST("/task/create", s.handleCreateTask)
	authed.GET("/tasks", s.handleListTasks)
	authed.GET("/tasks/:id", s.handleGetTask)
	authed.PATCH("/tasks/:id", s.handleUpdateTask)
	authed.DELETE("/tasks/:id", s.handleDeleteTask)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	sqlDB, err := s.db.DB()
	if err != nil || sqlDB.PingContext(ctx) != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	if s.rdb != nil {
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// writeError 按错误分类写出响应，内部错误记录日志且不向调用方暴露细节。
func (s *Server) writeError(c *gin.Context, msg string, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError && s.logger != nil {
		s.logger.Error(msg,
			slog.String("error", err.Error()),
			slog.String("request_id", middleware.GetRequestID(c)))
	}
	c.JSON(status, gin.H{"error": apperr.Message(err)})
}

// fromStore 将存储层的 ErrNotFound 转换为 NotFound，其余视为内部错误。
func fromStore(err error, notFound string, op string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(notFound)
	}
	return apperr.Internal(op, err)
}
