package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/taskman/internal/metrics"
	"github.com/hitoshi/taskman/internal/middleware"
	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/notify"
)

// イベントストリームの既定値
const (
	DefaultStreamWaitTimeout = 30 * time.Second
	DefaultStreamPacing      = time.Second
	DefaultStreamRetryHint   = 15 * time.Second
)

// SSEのイベント名のうちタスク変更以外のもの
const (
	eventHeartbeat = "heartbeat"
	eventError     = "error"
)

// StreamConfig はイベントストリームの待機・間隔の設定。
type StreamConfig struct {
	WaitTimeout time.Duration // イベント待ちの上限。超えたらheartbeatを送る
	Pacing      time.Duration // イベント送信後の待機
	RetryHint   time.Duration // クライアントへ伝える再接続間隔
}

// DefaultStreamConfig はデフォルトのストリーム設定を返す。
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		WaitTimeout: DefaultStreamWaitTimeout,
		Pacing:      DefaultStreamPacing,
		RetryHint:   DefaultStreamRetryHint,
	}
}

func (c StreamConfig) withDefaults() StreamConfig {
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = DefaultStreamWaitTimeout
	}
	if c.Pacing < 0 {
		c.Pacing = 0
	}
	if c.RetryHint <= 0 {
		c.RetryHint = DefaultStreamRetryHint
	}
	return c
}

// MailboxSource はIdentityのメールボックスを返す。notify.Registryが実装する。
type MailboxSource interface {
	GetOrCreate(identity string) *notify.Mailbox
}

// streamState は1接続の状態。
type streamState int

const (
	stateAuthenticating streamState = iota
	stateStreaming
	stateDraining
	stateClosed
)

func (s streamState) String() string {
	switch s {
	case stateAuthenticating:
		return "authenticating"
	case stateStreaming:
		return "streaming"
	case stateDraining:
		return "draining"
	case stateClosed:
		return "closed"
	}
	return "unknown"
}

// StreamHandler はタスク変更のライブイベントをSSEで配信するハンドラー。
type StreamHandler struct {
	verifier  middleware.TokenVerifier
	mailboxes MailboxSource
	config    StreamConfig
	logger    *slog.Logger
	metrics   metrics.MetricsCollector
}

// NewStreamHandler はStreamHandlerを生成する。collectorがnilの場合は何も記録しない。
func NewStreamHandler(verifier middleware.TokenVerifier, mailboxes MailboxSource, config StreamConfig, logger *slog.Logger, collector metrics.MetricsCollector) *StreamHandler {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &StreamHandler{
		verifier:  verifier,
		mailboxes: mailboxes,
		config:    config.withDefaults(),
		logger:    logger,
		metrics:   collector,
	}
}

// eventStream は1接続分の状態。ハンドラーのゴルーチンだけが触る。
type eventStream struct {
	h        *StreamHandler
	w        http.ResponseWriter
	r        *http.Request
	rc       *http.ResponseController
	identity string
	mailbox  *notify.Mailbox

	delivered  int
	heartbeats int
	// transportErr は書き込み失敗。以降は何も書かない
	transportErr error
	// failure は想定外の失敗。接続が生きていればerrorフレームで伝える
	failure error
}

// Events はイベントストリームを開く。
// ブラウザのEventSourceはヘッダーを付けられないため、トークンはクエリで受け取る。
// GET /events?token=<access token>
func (h *StreamHandler) Events(w http.ResponseWriter, r *http.Request) {
	s := &eventStream{
		h:  h,
		w:  w,
		r:  r,
		rc: http.NewResponseController(w),
	}

	state := stateAuthenticating
	for state != stateClosed {
		prev := state
		switch state {
		case stateAuthenticating:
			state = s.authenticate()
		case stateStreaming:
			state = s.next()
		case stateDraining:
			state = s.drain()
		}
		if state != prev {
			h.logger.Debug("stream state changed",
				slog.String("from", prev.String()),
				slog.String("to", state.String()),
			)
		}
	}
}

// authenticate はトークンを検証し、ストリームのヘッダーを送る。
func (s *eventStream) authenticate() streamState {
	ctx := s.r.Context()

	token := s.r.URL.Query().Get("token")
	if token == "" {
		writeAPIErrorResponse(s.w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return stateClosed
	}
	identity, err := s.h.verifier.Verify(ctx, token)
	if err != nil {
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) {
			s.h.logger.Error("トークンの検証中に内部エラーが発生しました",
				slog.String("error", err.Error()),
			)
			middleware.WriteInternalServerError(s.w)
			return stateClosed
		}
		writeAPIErrorResponse(s.w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return stateClosed
	}
	s.identity = identity
	middleware.RecordIdentity(ctx, identity)

	header := s.w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)

	// サーバー全体のWriteTimeoutで長時間接続が切られないようにする
	if err := s.rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.h.logger.Warn("書き込み期限の解除に失敗しました",
			slog.String("identity", identity),
			slog.String("error", err.Error()),
		)
	}
	if err := s.rc.Flush(); err != nil {
		s.transportErr = err
		s.h.logger.Warn("イベントストリームを開始できませんでした",
			slog.String("identity", identity),
			slog.String("error", err.Error()),
		)
		return stateClosed
	}

	s.mailbox = s.h.mailboxes.GetOrCreate(identity)
	s.h.metrics.RecordStreamOpened()
	s.h.logger.Info("イベントストリームを開始しました", slog.String("identity", identity))
	return stateStreaming
}

// next は次のイベントを1件待って送る。待機時間内に来なければheartbeatを送る。
func (s *eventStream) next() (state streamState) {
	defer func() {
		if rec := recover(); rec != nil {
			s.failure = fmt.Errorf("panic in event stream: %v", rec)
			state = stateDraining
		}
	}()

	ctx := s.r.Context()
	if ctx.Err() != nil {
		return stateDraining
	}

	ev, err := s.mailbox.Pop(ctx, s.h.config.WaitTimeout)
	switch {
	case err == nil:
		if s.transportErr = s.writeFrame(ev.ID, string(ev.Kind), ev.Message); s.transportErr != nil {
			return stateDraining
		}
		s.delivered++
		if !sleepCtx(ctx, s.h.config.Pacing) {
			return stateDraining
		}
		return stateStreaming
	case errors.Is(err, notify.ErrWaitTimeout):
		if s.transportErr = s.writeFrame("", eventHeartbeat, "ping"); s.transportErr != nil {
			return stateDraining
		}
		s.heartbeats++
		return stateStreaming
	case ctx.Err() != nil:
		// 切断またはシャットダウン。キューには触れていない
		return stateDraining
	default:
		s.failure = err
		return stateDraining
	}
}

// drain は終了理由を記録し、想定外の失敗であればerrorフレームを送る。
func (s *eventStream) drain() streamState {
	attrs := []any{
		slog.String("identity", s.identity),
		slog.Int("delivered", s.delivered),
		slog.Int("heartbeats", s.heartbeats),
	}

	switch {
	case s.failure != nil:
		s.h.logger.Error("イベントストリームでエラーが発生しました",
			append(attrs, slog.String("error", s.failure.Error()))...,
		)
		if s.transportErr == nil && s.r.Context().Err() == nil {
			_ = s.writeFrame("", eventError, errorFrameMessage(s.failure))
		}
	case s.transportErr != nil:
		s.h.logger.Warn("イベントストリームへの書き込みに失敗しました",
			append(attrs, slog.String("error", s.transportErr.Error()))...,
		)
	default:
		s.h.logger.Info("イベントストリームを終了しました", attrs...)
	}

	s.h.metrics.RecordStreamClosed()
	return stateClosed
}

// writeFrame はSSEフレームを1つ書き込んでフラッシュする。idが空の場合はid行を省く。
func (s *eventStream) writeFrame(id, event, data string) error {
	var b strings.Builder
	if id != "" {
		b.WriteString("id: ")
		b.WriteString(id)
		b.WriteByte('\n')
	}
	b.WriteString("event: ")
	b.WriteString(event)
	b.WriteByte('\n')
	for _, line := range strings.Split(data, "\n") {
		b.WriteString("data: ")
		b.WriteString(strings.TrimSuffix(line, "\r"))
		b.WriteByte('\n')
	}
	b.WriteString("retry: ")
	b.WriteString(strconv.FormatInt(s.h.config.RetryHint.Milliseconds(), 10))
	b.WriteString("\n\n")

	if _, err := s.w.Write([]byte(b.String())); err != nil {
		return err
	}
	return s.rc.Flush()
}

// errorFrameMessage はクライアントに見せるエラー内容を返す。内部の詳細は含めない。
func errorFrameMessage(err error) string {
	if errors.Is(err, notify.ErrMailboxClosed) {
		return "server is shutting down"
	}
	return "internal error"
}

// sleepCtx はdの間待つ。ctxがキャンセルされた場合はfalseを返す。
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
