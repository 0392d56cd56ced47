package notifier

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramBot はtelegram-bot-apiのうち本サービスが使う部分のインターフェース。
// テスト時にモックへ差し替える。
type TelegramBot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	GetSelf() tgbotapi.User
}

// tgBotWrapper は*tgbotapi.BotAPIをTelegramBotに適合させる。
type tgBotWrapper struct {
	bot *tgbotapi.BotAPI
}

func (w *tgBotWrapper) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return w.bot.Send(c)
}

func (w *tgBotWrapper) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return w.bot.GetUpdatesChan(config)
}

func (w *tgBotWrapper) StopReceivingUpdates() {
	w.bot.StopReceivingUpdates()
}

func (w *tgBotWrapper) GetSelf() tgbotapi.User {
	return w.bot.Self
}

// BotFactory はTelegramBotを生成する関数。
type BotFactory func(token string, client *http.Client) (TelegramBot, error)

// DefaultBotFactory は実際のTelegram Bot APIクライアントを生成する。
// 生成時にgetMeを呼び出してトークンを検証する。
var DefaultBotFactory BotFactory = func(token string, client *http.Client) (TelegramBot, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram token is required: %w", ErrNotConfigured)
	}
	if client == nil {
		client = http.DefaultClient
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &tgBotWrapper{bot: bot}, nil
}

// TelegramSink はTelegramのチャットにMarkdownメッセージを送るSink。
// recipientはチャットID（数値文字列）。
type TelegramSink struct {
	bot TelegramBot
}

// NewTelegramSink はTelegramSinkを生成する。
func NewTelegramSink(bot TelegramBot) *TelegramSink {
	return &TelegramSink{bot: bot}
}

// Name はチャネル名を返す。
func (s *TelegramSink) Name() string {
	return ChannelTelegram
}

// Deliver はmsg.TextをMarkdownとしてチャットへ送信する。
func (s *TelegramSink) Deliver(ctx context.Context, recipient string, msg Message) error {
	if s.bot == nil {
		return ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	chatID, err := strconv.ParseInt(recipient, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", recipient, err)
	}

	m := tgbotapi.NewMessage(chatID, msg.Text)
	m.ParseMode = tgbotapi.ModeMarkdown
	if _, err := s.bot.Send(m); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

// EscapeMarkdown はTelegram Markdownの制御文字をエスケープする。
func EscapeMarkdown(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}
