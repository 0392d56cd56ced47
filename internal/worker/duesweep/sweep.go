// Package duesweep は期限が近いタスクを定期的に集計し、
// Telegram購読者・運用者メール・Webhookへダイジェストを配信するジョブを提供する。
// 配信先ごとの失敗は互いに影響しない。
package duesweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/taskman/internal/metrics"
	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/notifier"
	"github.com/hitoshi/taskman/internal/repository"
)

// DefaultHorizon は期限スイープの対象とする時間幅のデフォルト値。
const DefaultHorizon = 24 * time.Hour

// Sinks はスイープで使う配信チャネル。nilのチャネルはスキップされる。
type Sinks struct {
	Chat    notifier.Sink
	Email   notifier.Sink
	Webhook notifier.Sink
}

// Config はスイープジョブの設定。
type Config struct {
	Horizon       time.Duration
	OperatorEmail string
	WebhookURLs   []string
}

// Report は1回のスイープ結果。
type Report struct {
	TaskCount     int
	ChatDelivered int
	ChatFailed    int
	EmailSent     bool
	EmailErr      error
	WebhookSent   int
	WebhookFailed int
	StartedAt     time.Time
	Duration      time.Duration
}

// Empty は期限が近いタスクがなく、何も配信しなかった場合にtrueを返す。
func (r *Report) Empty() bool {
	return r.TaskCount == 0
}

// Job は期限スイープジョブ。タスクと購読者の状態は変更しない。
type Job struct {
	tasks       repository.TaskRepository
	subscribers repository.SubscriberRepository
	sinks       Sinks
	renderer    *Renderer
	logger      *slog.Logger
	metrics     metrics.MetricsCollector
	cfg         Config
	now         func() time.Time
}

// NewJob はJobを生成する。collectorがnilの場合はメトリクスを記録しない。
func NewJob(
	tasks repository.TaskRepository,
	subscribers repository.SubscriberRepository,
	sinks Sinks,
	sanitizer HTMLSanitizer,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
	cfg Config,
) *Job {
	if cfg.Horizon <= 0 {
		cfg.Horizon = DefaultHorizon
	}
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Job{
		tasks:       tasks,
		subscribers: subscribers,
		sinks:       sinks,
		renderer:    NewRenderer(sanitizer, cfg.Horizon),
		logger:      logger,
		metrics:     collector,
		cfg:         cfg,
		now:         time.Now,
	}
}

// Run はスケジューラから呼ばれる。トップレベルの失敗はログに記録して握りつぶす。
func (j *Job) Run(ctx context.Context) {
	if _, err := j.RunManual(ctx); err != nil {
		j.logger.Error("期限スイープの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// RunManual はスイープを1回実行し、結果を返す。
// タスクまたは購読者の取得に失敗した場合はその時点で中断してエラーを返す。
// 個々の配信失敗はReportに記録され、エラーにはならない。
func (j *Job) RunManual(ctx context.Context) (*Report, error) {
	report := &Report{StartedAt: j.now()}
	outcome := metrics.SweepOutcomeFailed
	defer func() {
		report.Duration = j.now().Sub(report.StartedAt)
		j.metrics.RecordSweep(outcome, report.Duration)
	}()

	cutoff := report.StartedAt.Add(j.cfg.Horizon)
	tasks, err := j.tasks.ListDueBy(ctx, cutoff, model.TaskStatusCompleted)
	if err != nil {
		return report, fmt.Errorf("failed to list due tasks: %w", err)
	}

	due := make([]DueTask, 0, len(tasks))
	for _, t := range tasks {
		if t.DueDate == nil {
			continue
		}
		due = append(due, snapshot(t))
	}
	report.TaskCount = len(due)

	if len(due) == 0 {
		outcome = metrics.SweepOutcomeEmpty
		j.logger.Info("期限が近いタスクはありません",
			slog.Time("cutoff", cutoff),
		)
		return report, nil
	}

	digest := j.renderer.Render(due)

	subs, err := j.subscribers.List(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list subscribers: %w", err)
	}

	j.deliverChat(ctx, subs, digest, report)
	j.deliverEmail(ctx, digest, report)
	j.deliverWebhooks(ctx, digest, report)

	outcome = metrics.SweepOutcomeDelivered
	j.logger.Info("期限スイープが完了しました",
		slog.Int("task_count", report.TaskCount),
		slog.Int("chat_delivered", report.ChatDelivered),
		slog.Int("chat_failed", report.ChatFailed),
		slog.Bool("email_sent", report.EmailSent),
		slog.Int("webhook_failed", report.WebhookFailed),
	)
	return report, nil
}

func (j *Job) deliverChat(ctx context.Context, subs []*model.Subscriber, digest notifier.Message, report *Report) {
	if j.sinks.Chat == nil {
		if len(subs) > 0 {
			j.logger.Warn("チャット配信チャネルが未設定のため購読者への送信をスキップします",
				slog.Int("subscriber_count", len(subs)),
			)
		}
		return
	}

	for _, sub := range subs {
		err := notifier.SafeDeliver(ctx, j.sinks.Chat, sub.ChatID, digest)
		j.metrics.RecordDelivery(j.sinks.Chat.Name(), err == nil)
		if err != nil {
			report.ChatFailed++
			j.logger.Error("購読者へのメッセージ送信に失敗しました",
				slog.String("chat_id", sub.ChatID),
				slog.String("error", err.Error()),
			)
			continue
		}
		report.ChatDelivered++
	}
}

func (j *Job) deliverEmail(ctx context.Context, digest notifier.Message, report *Report) {
	if j.sinks.Email == nil || j.cfg.OperatorEmail == "" {
		j.logger.Warn("運用者メールが未設定のためメール送信をスキップします")
		return
	}

	err := notifier.SafeDeliver(ctx, j.sinks.Email, j.cfg.OperatorEmail, digest)
	j.metrics.RecordDelivery(j.sinks.Email.Name(), err == nil)
	if err != nil {
		report.EmailErr = err
		j.logger.Error("メール送信に失敗しました",
			slog.String("error", err.Error()),
		)
		return
	}
	report.EmailSent = true
}

func (j *Job) deliverWebhooks(ctx context.Context, digest notifier.Message, report *Report) {
	if j.sinks.Webhook == nil {
		return
	}

	for i, url := range j.cfg.WebhookURLs {
		err := notifier.SafeDeliver(ctx, j.sinks.Webhook, url, digest)
		j.metrics.RecordDelivery(j.sinks.Webhook.Name(), err == nil)
		if err != nil {
			report.WebhookFailed++
			j.logger.Error("Webhookへの送信に失敗しました",
				slog.Int("webhook_index", i),
				slog.String("error", err.Error()),
			)
			continue
		}
		report.WebhookSent++
	}
}
