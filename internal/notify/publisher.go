package notify

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hitoshi/taskman/internal/metrics"
	"github.com/hitoshi/taskman/internal/model"
)

// Publisher はタスク変更をメールボックスへ投入するフック。
// 投入は常にベストエフォートで、失敗は記録するだけで呼び出し元には返さない。
type Publisher struct {
	registry *Registry
	logger   *slog.Logger
	metrics  metrics.MetricsCollector
}

// NewPublisher はPublisherを生成する。collectorがnilの場合は何も記録しない。
func NewPublisher(registry *Registry, logger *slog.Logger, collector metrics.MetricsCollector) *Publisher {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Publisher{
		registry: registry,
		logger:   logger,
		metrics:  collector,
	}
}

// Publish はidentityのメールボックスにイベントを投入する。
// 永続化のコミット後に1回だけ呼び出すこと。
func (p *Publisher) Publish(identity string, kind model.EventKind, message string) {
	if err := p.tryPublish(identity, kind, message); err != nil {
		p.metrics.RecordPublishFailure()
		p.logger.Error("イベントの投入に失敗しました",
			slog.String("identity", identity),
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
	}
}

// tryPublish は投入処理本体。パニックもエラーに変換する。
func (p *Publisher) tryPublish(identity string, kind model.EventKind, message string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic during publish: %v", rec)
		}
	}()

	if identity == "" {
		return fmt.Errorf("empty identity")
	}

	ev := model.Event{
		ID:      uuid.NewString(),
		Kind:    kind,
		Message: message,
	}

	dropped, err := p.registry.GetOrCreate(identity).Push(ev)
	if err != nil {
		return fmt.Errorf("failed to push event: %w", err)
	}
	if dropped {
		p.metrics.RecordEventDropped()
		p.logger.Warn("メールボックスが上限に達したため最古のイベントを破棄しました",
			slog.String("identity", identity),
		)
	}

	p.metrics.RecordEventPublished(string(kind))
	return nil
}
