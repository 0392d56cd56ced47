package notifier

import (
	"context"
	"net/http"
	"time"
)

// DeliveryResult はWebhook応答のステータスコードに基づく分類。
type DeliveryResult int

const (
	// DeliveryOK は配信成功（2xx）。
	DeliveryOK DeliveryResult = iota
	// DeliveryRetry は再試行で回復しうる失敗（408/429/5xx）。
	DeliveryRetry
	// DeliveryPermanent は再試行しても変わらない失敗（その他の4xxなど）。
	DeliveryPermanent
)

const (
	// DefaultWebhookAttempts はWebhook配信の最大試行回数。
	DefaultWebhookAttempts = 3
	// initialBackoff は指数バックオフの初回遅延。
	initialBackoff = 500 * time.Millisecond
	// maxBackoff は指数バックオフの最大遅延。
	maxBackoff = 8 * time.Second
)

// ClassifyWebhookStatus はHTTPステータスコードを配信結果に分類する。
func ClassifyWebhookStatus(statusCode int) DeliveryResult {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return DeliveryOK
	case statusCode == http.StatusRequestTimeout, statusCode == http.StatusTooManyRequests:
		return DeliveryRetry
	case statusCode >= 500:
		return DeliveryRetry
	default:
		return DeliveryPermanent
	}
}

// CalculateBackoff は失敗回数に基づいて指数バックオフ遅延を計算する。
// 初回500ミリ秒、2倍ずつ増加、最大8秒。
func CalculateBackoff(failures int) time.Duration {
	delay := initialBackoff
	for i := 0; i < failures; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// waitBackoff はdの間待つ。ctxがキャンセルされた場合はそのエラーを返す。
func waitBackoff(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
