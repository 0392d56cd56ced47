package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/taskman/internal/analytics"
	"github.com/hitoshi/taskman/internal/auth"
	"github.com/hitoshi/taskman/internal/bot"
	"github.com/hitoshi/taskman/internal/config"
	"github.com/hitoshi/taskman/internal/database"
	"github.com/hitoshi/taskman/internal/handler"
	"github.com/hitoshi/taskman/internal/logger"
	"github.com/hitoshi/taskman/internal/metrics"
	"github.com/hitoshi/taskman/internal/middleware"
	"github.com/hitoshi/taskman/internal/notifier"
	"github.com/hitoshi/taskman/internal/notify"
	"github.com/hitoshi/taskman/internal/repository"
	"github.com/hitoshi/taskman/internal/security"
	"github.com/hitoshi/taskman/internal/task"
	"github.com/hitoshi/taskman/internal/worker/cleanup"
	"github.com/hitoshi/taskman/internal/worker/duesweep"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	dbPingTimeout = 5 * time.Second
	// telegramClientTimeout はロングポーリング（30秒）より長くする
	telegramClientTimeout = 60 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_FORMAT/LOG_LEVELに従ってログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定に従ってログを再構成する
	logger.SetupDefaultWith(w, logger.Options{
		Format:  cfg.LogFormat,
		Level:   logger.ParseLevel(cfg.LogLevel),
		NoColor: os.Getenv("NO_COLOR") != "",
	})

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandBot:
		return runBot(cfg)
	case CommandMigrate:
		return runMigrate(cfg, ParseMigrateAction(args))
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーと期限スイープスケジューラを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	log := slog.Default()

	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := database.Ping(context.Background(), db, dbPingTimeout); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	taskRepo := repository.NewPostgresTaskRepo(db)
	subscriberRepo := repository.NewPostgresSubscriberRepo(db)

	// 3. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 4. ライブ通知
	mailboxes := notify.NewRegistry(cfg.MailboxMaxDepth)
	publisher := notify.NewPublisher(mailboxes, log, collector)

	// 5. ドメインサービスの初期化
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.TokenLifetime)
	if err != nil {
		return fmt.Errorf("failed to create token service: %w", err)
	}
	authService := auth.NewService(userRepo, tokens, log)
	taskService := task.NewService(taskRepo, publisher, log)
	analyticsService := analytics.NewService(taskRepo, cleanup.NewStatusNormalizer(db, log))

	// 6. 期限スイープ
	sinks, webhookURLs := buildSinks(cfg, notifier.DefaultBotFactory, security.NewSSRFGuard(), log)
	sweepJob := duesweep.NewJob(
		taskRepo, subscriberRepo, sinks, security.NewDigestSanitizer(), log, collector,
		duesweep.Config{
			Horizon:       cfg.SweepHorizon,
			OperatorEmail: cfg.OperatorEmail,
			WebhookURLs:   webhookURLs,
		},
	)
	scheduler := duesweep.NewScheduler(sweepJob, cfg.SweepInterval, log)

	// 7. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.PerMinuteRateLimiterConfig(cfg.RateLimitGeneral))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Verifier:           authService,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        rateLimiter,
		Logger:             log,
		Metrics:            collector,
		Gatherer:           registry,
		HealthChecker:      db,

		AuthService:      authService,
		TaskService:      taskService,
		AnalyticsService: analyticsService,
		SweepTrigger:     sweepJob,

		Mailboxes: mailboxes,
		StreamConfig: handler.StreamConfig{
			WaitTimeout: cfg.StreamWaitTimeout,
			Pacing:      cfg.StreamPacing,
			RetryHint:   cfg.StreamRetryHint,
		},
	})

	// 8. HTTPサーバーの起動
	// イベントストリームは自身で書き込み期限を解除する
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", server.Addr, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// 9. リッスン開始後にスケジューラを起動する
	if err := scheduler.Start(ctx); err != nil {
		_ = server.Close()
		return fmt.Errorf("failed to start sweep scheduler: %w", err)
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down API server...")
	case err := <-serveErr:
		if err != nil {
			runErr = fmt.Errorf("server listen error: %w", err)
		}
	}

	// 10. シャットダウン: スケジューラ → メールボックス（接続中のストリームを起こす）→ HTTP
	scheduler.Stop()
	mailboxes.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return errors.Join(runErr, fmt.Errorf("server shutdown failed: %w", err))
	}
	if runErr != nil {
		return runErr
	}

	log.Info("API server stopped gracefully")
	return nil
}

// buildSinks は設定済みのチャネルだけSinkを生成する。未設定のチャネルはnilのままにする。
// SSRFガードで拒否されたWebhook URLは除外し、残りのURLを返す。
func buildSinks(cfg *config.Config, botFactory notifier.BotFactory, guard security.SSRFGuardService, log *slog.Logger) (duesweep.Sinks, []string) {
	var sinks duesweep.Sinks

	if cfg.TelegramBotToken != "" {
		api, err := botFactory(cfg.TelegramBotToken, &http.Client{Timeout: telegramClientTimeout})
		if err != nil {
			log.Warn("Telegram通知を無効にしました", slog.String("error", err.Error()))
		} else {
			sinks.Chat = notifier.NewTelegramSink(api)
		}
	}

	if cfg.SMTPHost != "" {
		sinks.Email = notifier.NewEmailSink(notifier.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			TLS:      cfg.SMTPTLS,
		})
	}

	var webhookURLs []string
	for i, raw := range cfg.WebhookURLs {
		if err := guard.ValidateURL(raw); err != nil {
			log.Warn("Webhook URLを除外しました",
				slog.Int("webhook_index", i),
				slog.String("error", err.Error()),
			)
			continue
		}
		webhookURLs = append(webhookURLs, raw)
	}
	if len(webhookURLs) > 0 {
		sinks.Webhook = notifier.NewWebhookSink(guard.NewSafeClient(cfg.WebhookTimeout))
	}

	return sinks, webhookURLs
}

// runBot はTelegramの購読ボットを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとポーリングを止めて終了する。
func runBot(cfg *config.Config) error {
	log := slog.Default()

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := database.Ping(context.Background(), db, dbPingTimeout); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Info("database connection established (bot)")

	api, err := notifier.DefaultBotFactory(cfg.TelegramBotToken, &http.Client{Timeout: telegramClientTimeout})
	if err != nil {
		return fmt.Errorf("failed to start telegram bot: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := bot.New(api, repository.NewPostgresSubscriberRepo(db), log).Run(ctx); err != nil {
		return fmt.Errorf("telegram bot stopped: %w", err)
	}

	log.Info("telegram bot stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
func runMigrate(cfg *config.Config, action MigrateAction) error {
	slog.Info("running database migrations",
		slog.String("action", string(action)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch action {
	case MigrateDown:
		if err := database.RollbackMigration(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
		slog.Info("rolled back one migration")
	case MigrateVersion:
		version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to read migration version: %w", err)
		}
		slog.Info("current migration version",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
	default:
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		slog.Info("database migrations completed successfully")
	}

	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
