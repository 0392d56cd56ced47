package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// webhookPayload はWebhookに送るJSONボディ。
type webhookPayload struct {
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

// errPermanent は再試行しない失敗を表す。
type errPermanent struct{ err error }

func (e *errPermanent) Error() string { return e.err.Error() }
func (e *errPermanent) Unwrap() error { return e.err }

// WebhookSink は運用者が設定したURLへダイジェストをJSONでPOSTするSink。
// recipientは送信先URL。clientにはSSRF対策済みのクライアントを渡すこと。
// 接続失敗と408/429/5xxは指数バックオフで再試行する。
type WebhookSink struct {
	client   *http.Client
	attempts int
	backoff  func(failures int) time.Duration
}

// NewWebhookSink はWebhookSinkを生成する。
func NewWebhookSink(client *http.Client) *WebhookSink {
	return &WebhookSink{
		client:   client,
		attempts: DefaultWebhookAttempts,
		backoff:  CalculateBackoff,
	}
}

// Name はチャネル名を返す。
func (s *WebhookSink) Name() string {
	return ChannelWebhook
}

// Deliver はrecipientのURLへmsgをPOSTする。2xx以外は失敗として扱う。
func (s *WebhookSink) Deliver(ctx context.Context, recipient string, msg Message) error {
	body, err := json.Marshal(webhookPayload{
		Subject: msg.Subject,
		Text:    msg.Text,
		HTML:    msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < s.attempts; attempt++ {
		if attempt > 0 {
			if err := waitBackoff(ctx, s.backoff(attempt-1)); err != nil {
				return fmt.Errorf("webhook retry aborted: %w", errors.Join(lastErr, err))
			}
		}

		lastErr = s.post(ctx, recipient, body)
		if lastErr == nil {
			return nil
		}
		var perm *errPermanent
		if errors.As(lastErr, &perm) {
			return perm.err
		}
	}
	return fmt.Errorf("webhook delivery failed after %d attempts: %w", s.attempts, lastErr)
}

func (s *WebhookSink) post(ctx context.Context, recipient string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, recipient, bytes.NewReader(body))
	if err != nil {
		return &errPermanent{fmt.Errorf("failed to build webhook request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return &errPermanent{fmt.Errorf("webhook request failed: %w", err)}
		}
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	switch ClassifyWebhookStatus(resp.StatusCode) {
	case DeliveryOK:
		return nil
	case DeliveryRetry:
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	default:
		return &errPermanent{fmt.Errorf("webhook returned status %d", resp.StatusCode)}
	}
}
