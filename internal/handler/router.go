package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/taskman/internal/metrics"
	"github.com/hitoshi/taskman/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Verifier           middleware.TokenVerifier
	CORSAllowedOrigins []string
	RateLimiter        *middleware.RateLimiter
	Logger             *slog.Logger
	Metrics            metrics.MetricsCollector
	Gatherer           prometheus.Gatherer

	HealthChecker HealthChecker

	AuthService      AuthServiceInterface
	TaskService      TaskServiceInterface
	AnalyticsService AnalyticsServiceInterface
	SweepTrigger     SweepTrigger

	// ライブ通知
	Mailboxes    MailboxSource
	StreamConfig StreamConfig
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Logging → Recovery → SecurityHeaders → CORS → (BearerAuth → RateLimit)
//
// /auth/*、/events、/health、/metricsはBearer認証の外に配置する。
// /eventsはクエリのトークンを自身で検証する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.NopCollector{}
	}

	r := chi.NewRouter()

	r.Use(middleware.NewLoggingMiddleware(logger, collector))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))

	authHandler := NewAuthHandler(deps.AuthService)
	taskHandler := NewTaskHandler(deps.TaskService)
	analyticsHandler := NewAnalyticsHandler(deps.AnalyticsService)
	triggerHandler := NewTriggerHandler(deps.SweepTrigger, logger)
	streamHandler := NewStreamHandler(deps.Verifier, deps.Mailboxes, deps.StreamConfig, logger, collector)

	// --- 認証不要のルート ---

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
	})

	r.Get("/events", streamHandler.Events)

	if deps.HealthChecker != nil {
		r.Get("/health", NewHealthHandler(deps.HealthChecker, logger).Health)
	}
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: BearerAuth → RateLimit
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewBearerAuthMiddleware(deps.Verifier))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		// タスク管理
		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", taskHandler.Create)
			r.Get("/", taskHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", taskHandler.Get)
				r.Put("/", taskHandler.Update)
				r.Delete("/", taskHandler.Delete)
				r.Put("/status", taskHandler.UpdateStatus)
				r.Put("/due_date", taskHandler.UpdateDueDate)
				r.Post("/schedule", taskHandler.ScheduleReminder)
			})
		})

		// 集計
		r.Route("/data", func(r chi.Router) {
			r.Get("/overdue", analyticsHandler.Overdue)
			r.Get("/completion-time", analyticsHandler.CompletionTime)
			r.Get("/download-tasks-csv", analyticsHandler.DownloadCSV)
			r.Get("/clean", analyticsHandler.Clean)
			r.Get("/completed-per-day", analyticsHandler.CompletedPerDay)
			r.Get("/completion-trends", analyticsHandler.CompletedPerDay)
			r.Get("/priority-distribution", analyticsHandler.PriorityDistribution)
			r.Get("/time-vs-priority", analyticsHandler.TimeVsPriority)
		})

		// 期限スイープの手動実行
		r.Get("/trigger/notify", triggerHandler.Notify)
		r.Post("/trigger/notify", triggerHandler.Notify)
	})

	return r
}
