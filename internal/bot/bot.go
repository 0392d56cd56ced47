// Package bot はTelegramの購読ボットを提供する。
// ロングポーリングでコマンドを受け取り、期限通知の購読者を登録・解除する。
package bot

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/notifier"
	"github.com/hitoshi/taskman/internal/repository"
)

// pollTimeout はgetUpdatesのロングポーリング秒数。
const pollTimeout = 30

// 返信メッセージ
const (
	replyWelcome          = "Welcome! Use /subscribe to get task notifications."
	replySubscribed       = "Subscription successful! You will now receive notifications."
	replyAlreadySubscribe = "You're already subscribed!"
	replyUnsubscribed     = "You have unsubscribed successfully!"
	replyNotSubscribed    = "You're not subscribed. Use /subscribe to get task notifications."
	replyUnknownCommand   = "Unknown command. Available commands: /start, /subscribe, /unsubscribe"
	replyFailed           = "Something went wrong. Please try again later."
)

// Bot は購読コマンドを処理するTelegramボット。
type Bot struct {
	api         notifier.TelegramBot
	subscribers repository.SubscriberRepository
	logger      *slog.Logger
}

// New はBotを生成する。
func New(api notifier.TelegramBot, subscribers repository.SubscriberRepository, logger *slog.Logger) *Bot {
	return &Bot{
		api:         api,
		subscribers: subscribers,
		logger:      logger,
	}
}

// Run はctxがキャンセルされるまで更新を受信してコマンドを処理する。
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("Telegramボットのポーリングを開始しました",
		slog.String("bot_username", b.api.GetSelf().UserName),
	)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.logger.Info("Telegramボットのポーリングを停止しました")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			b.HandleMessage(ctx, update.Message)
		}
	}
}

// HandleMessage は1件のコマンドメッセージを処理して返信する。
func (b *Bot) HandleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil {
		return
	}

	var reply string
	switch msg.Command() {
	case "start":
		reply = replyWelcome
	case "subscribe":
		reply = b.subscribe(ctx, msg)
	case "unsubscribe":
		reply = b.unsubscribe(ctx, msg)
	default:
		reply = replyUnknownCommand
	}

	if _, err := b.api.Send(tgbotapi.NewMessage(msg.Chat.ID, reply)); err != nil {
		b.logger.Error("Telegramへの返信に失敗しました",
			slog.Int64("chat_id", msg.Chat.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (b *Bot) subscribe(ctx context.Context, msg *tgbotapi.Message) string {
	chatID := strconv.FormatInt(msg.Chat.ID, 10)

	existing, err := b.subscribers.FindByChatID(ctx, chatID)
	if err != nil {
		b.logger.Error("購読者の検索に失敗しました",
			slog.String("chat_id", chatID),
			slog.String("error", err.Error()),
		)
		return replyFailed
	}
	if existing != nil {
		return replyAlreadySubscribe
	}

	sub := &model.Subscriber{ChatID: chatID}
	if from := msg.From; from != nil {
		sub.Username = from.UserName
		sub.FirstName = from.FirstName
		sub.LastName = from.LastName
	}

	if err := b.subscribers.Create(ctx, sub); err != nil {
		// 同時に登録された場合
		if errors.Is(err, repository.ErrDuplicate) {
			return replyAlreadySubscribe
		}
		b.logger.Error("購読者の登録に失敗しました",
			slog.String("chat_id", chatID),
			slog.String("error", err.Error()),
		)
		return replyFailed
	}

	b.logger.Info("購読者を登録しました", slog.String("chat_id", chatID))
	return replySubscribed
}

func (b *Bot) unsubscribe(ctx context.Context, msg *tgbotapi.Message) string {
	chatID := strconv.FormatInt(msg.Chat.ID, 10)

	deleted, err := b.subscribers.DeleteByChatID(ctx, chatID)
	if err != nil {
		b.logger.Error("購読者の削除に失敗しました",
			slog.String("chat_id", chatID),
			slog.String("error", err.Error()),
		)
		return replyFailed
	}
	if !deleted {
		return replyNotSubscribed
	}

	b.logger.Info("購読者を削除しました", slog.String("chat_id", chatID))
	return replyUnsubscribed
}
