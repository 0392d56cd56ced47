// Package cleanup はタスクデータの整合性を回復するバッチ処理を提供する。
// 完了日時の有無からステータスを再計算し、食い違っている行だけを更新する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// normalizeQuery は完了日時があればcompleted、なければpendingにそろえる。
// 既に正しいステータスの行は更新しないため、再実行しても結果は変わらない。
const normalizeQuery = `UPDATE tasks
SET status = CASE WHEN completed_date IS NOT NULL THEN $1 ELSE $2 END
WHERE status <> CASE WHEN completed_date IS NOT NULL THEN $1 ELSE $2 END`

// StatusNormalizer はタスクのステータスを完了日時に基づいて正規化するジョブ。
type StatusNormalizer struct {
	db     Executor
	logger *slog.Logger
}

// NewStatusNormalizer は新しいStatusNormalizerを生成する。
func NewStatusNormalizer(db Executor, logger *slog.Logger) *StatusNormalizer {
	return &StatusNormalizer{
		db:     db,
		logger: logger,
	}
}

// Run はステータスを正規化し、更新した行数を返す。
func (n *StatusNormalizer) Run(ctx context.Context) (int64, error) {
	start := time.Now()

	result, err := n.db.ExecContext(ctx, normalizeQuery, "completed", "pending")
	if err != nil {
		n.logger.Error("タスクステータスの正規化に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("タスクステータスの正規化に失敗: %w", err)
	}

	updated, err := result.RowsAffected()
	if err != nil {
		n.logger.Error("更新件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("更新件数の取得に失敗: %w", err)
	}

	n.logger.Info("タスクステータスの正規化が完了しました",
		slog.Int64("updated_count", updated),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return updated, nil
}
