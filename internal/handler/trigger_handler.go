package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/worker/duesweep"
)

const msgNotificationSent = "Notification sent - Check Telegram bot and Mail."

// SweepTrigger は期限スイープを即時に1回実行する。duesweep.Jobが実装する。
type SweepTrigger interface {
	RunManual(ctx context.Context) (*duesweep.Report, error)
}

// TriggerHandler は期限スイープの手動実行ハンドラー。
type TriggerHandler struct {
	trigger SweepTrigger
	logger  *slog.Logger
}

// NewTriggerHandler はTriggerHandlerを生成する。
func NewTriggerHandler(trigger SweepTrigger, logger *slog.Logger) *TriggerHandler {
	return &TriggerHandler{trigger: trigger, logger: logger}
}

// triggerResponse は手動実行の結果。
type triggerResponse struct {
	Message       string `json:"message"`
	TaskCount     int    `json:"task_count"`
	ChatDelivered int    `json:"chat_delivered"`
	ChatFailed    int    `json:"chat_failed"`
	EmailSent     bool   `json:"email_sent"`
	WebhookSent   int    `json:"webhook_sent"`
	WebhookFailed int    `json:"webhook_failed"`
}

// Notify は期限スイープをリクエストのコンテキストで実行する。
// 配信先ごとの失敗はレスポンスの件数に反映され、タスクの取得に失敗した場合だけ500を返す。
// GET /trigger/notify, POST /trigger/notify
func (h *TriggerHandler) Notify(w http.ResponseWriter, r *http.Request) {
	report, err := h.trigger.RunManual(r.Context())
	if err != nil {
		h.logger.Error("手動スイープに失敗しました", slog.String("error", err.Error()))
		writeAPIErrorResponse(w, http.StatusInternalServerError, model.NewSweepFailedError(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, triggerResponse{
		Message:       msgNotificationSent,
		TaskCount:     report.TaskCount,
		ChatDelivered: report.ChatDelivered,
		ChatFailed:    report.ChatFailed,
		EmailSent:     report.EmailSent,
		WebhookSent:   report.WebhookSent,
		WebhookFailed: report.WebhookFailed,
	})
}
