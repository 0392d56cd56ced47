// Package notifier は外部チャネル（Telegram、メール、Webhook）への配信を提供する。
//
// 各チャネルはSinkインターフェースを実装し、配信失敗はerrorとして返す。
// 呼び出し側（期限スイープ）は受信者ごとに失敗を隔離する。
package notifier

import (
	"context"
	"errors"
	"fmt"
)

// チャネル名。メトリクスとログのラベルに使用する。
const (
	ChannelTelegram = "telegram"
	ChannelEmail    = "email"
	ChannelWebhook  = "webhook"
)

// ErrNotConfigured はチャネルの設定が不足している場合に返される。
var ErrNotConfigured = errors.New("notifier is not configured")

// Message はチャネルに渡す通知内容。
// チャネルごとに適した表現（Markdown本文、HTML本文）を選んで使う。
type Message struct {
	Subject string
	Text    string // チャット向け（Telegram Markdown）
	HTML    string // メール向け
}

// Sink は1つの外部配信チャネル。
type Sink interface {
	// Name はチャネル名を返す。
	Name() string
	// Deliver はrecipientへmsgを配信する。
	Deliver(ctx context.Context, recipient string, msg Message) error
}

// DeliveryError は1受信者・1チャネルへの配信失敗を表す。
type DeliveryError struct {
	Channel   string
	Recipient string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s delivery to %s failed: %v", e.Channel, e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// SafeDeliver はsink.Deliverを呼び出し、パニックを含むすべての失敗をDeliveryErrorに変換する。
func SafeDeliver(ctx context.Context, sink Sink, recipient string, msg Message) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &DeliveryError{
				Channel:   sink.Name(),
				Recipient: recipient,
				Err:       fmt.Errorf("panic: %v", rec),
			}
		}
	}()

	if err := sink.Deliver(ctx, recipient, msg); err != nil {
		return &DeliveryError{Channel: sink.Name(), Recipient: recipient, Err: err}
	}
	return nil
}
