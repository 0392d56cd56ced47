// Package logger はslogの構築を提供する。
// 本番はJSON、ローカル開発ではtintによる色付きテキストを使う。
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// 出力形式
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Options はロガーの出力形式とレベル。
type Options struct {
	Format  string // json（既定）またはtext
	Level   slog.Level
	NoColor bool // textのときに色を付けない
}

// New はoptsに従ってslog.Loggerを生成する。未知の形式はJSONとして扱う。
func New(w io.Writer, opts Options) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}

	var handler slog.Handler
	switch strings.ToLower(opts.Format) {
	case FormatText:
		handler = tint.NewHandler(w, &tint.Options{
			Level:      opts.Level,
			TimeFormat: time.DateTime,
			NoColor:    opts.NoColor,
		})
	default:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: opts.Level,
		})
	}
	return slog.New(handler)
}

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
// writerが指定された場合はそのwriterに出力する。
func Setup(w io.Writer) *slog.Logger {
	return New(w, Options{Format: FormatJSON, Level: slog.LevelInfo})
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// 本番ではos.Stdoutを渡すことを想定している。
func SetupDefault(w io.Writer) {
	slog.SetDefault(Setup(w))
}

// SetupDefaultWith はoptsで生成したロガーをグローバルロガーとして設定し、返す。
func SetupDefaultWith(w io.Writer, opts Options) *slog.Logger {
	l := New(w, opts)
	slog.SetDefault(l)
	return l
}

// ParseLevel はdebug/info/warn/errorをslog.Levelに変換する。解釈できない値はInfoになる。
func ParseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
