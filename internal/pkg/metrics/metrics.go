// Package metrics 定义服务暴露给 Prometheus 的指标。
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal 按路由、方法、状态码统计的请求数。
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taskmanager_http_requests_total",
		Help: "Total HTTP requests by route, method and status.",
	}, []string{"route", "method", "status"})

	// HTTPRequestDuration 请求耗时分布。
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "taskmanager_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	// AuthFailuresTotal 认证失败次数（reason: credentials / token）。
	AuthFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taskmanager_auth_failures_total",
		Help: "Authentication failures by reason.",
	}, []string{"reason"})

	// SessionsIssuedTotal 签发的会话令牌数。
	SessionsIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taskmanager_sessions_issued_total",
		Help: "Session tokens issued on signup or login.",
	})

	// TasksCreatedTotal 创建的任务数。
	TasksCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taskmanager_tasks_created_total",
		Help: "Tasks created.",
	})

	// RateLimitedTotal 被限流拒绝的请求数。
	RateLimitedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taskmanager_rate_limited_total",
		Help: "Requests rejected by the rate limiter.",
	}, []string{"route"})

	// MailQueueDropped 邮件队列满时丢弃的任务数。
	MailQueueDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taskmanager_mail_queue_dropped_total",
		Help: "Mail jobs dropped because the queue was full.",
	})

	initOnce sync.Once
)

// InitMetrics 向默认注册表注册所有指标，可重复调用。
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			AuthFailuresTotal,
			SessionsIssuedTotal,
			TasksCreatedTotal,
			RateLimitedTotal,
			MailQueueDropped,
		)
	})
}
