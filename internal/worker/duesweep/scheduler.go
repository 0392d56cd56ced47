package duesweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
)

// DefaultInterval は期限スイープの実行間隔のデフォルト値。
const DefaultInterval = 12 * time.Hour

// ErrSchedulerStarted はStartが2回呼ばれた場合に返される。
var ErrSchedulerStarted = errors.New("scheduler already started")

// Runner はスケジューラが定期実行するジョブ。
type Runner interface {
	Run(ctx context.Context)
}

// Scheduler は期限スイープを一定間隔で実行する。
// 前回の実行が終わっていない場合、その回はスキップされる。
type Scheduler struct {
	job      Runner
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	cron    *rcron.Cron
	cancel  context.CancelFunc
	started bool
}

// NewScheduler はSchedulerを生成する。intervalが0以下の場合は12時間を使う。
func NewScheduler(job Runner, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		job:      job,
		interval: interval,
		logger:   logger,
	}
}

// Start はスケジュールを登録して開始する。初回実行は開始からinterval後。
// ctxがキャンセルされると実行中のジョブにも伝わる。
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrSchedulerStarted
	}

	jobCtx, cancel := context.WithCancel(ctx)
	cl := cronLogger{logger: s.logger}
	c := rcron.New(
		rcron.WithLogger(cl),
		rcron.WithChain(rcron.Recover(cl), rcron.SkipIfStillRunning(cl)),
	)

	spec := "@every " + s.interval.String()
	if _, err := c.AddFunc(spec, func() { s.job.Run(jobCtx) }); err != nil {
		cancel()
		return fmt.Errorf("failed to register sweep schedule %q: %w", spec, err)
	}

	c.Start()
	s.cron = c
	s.cancel = cancel
	s.started = true

	s.logger.Info("期限スイープスケジューラを開始しました",
		slog.Duration("interval", s.interval),
	)
	return nil
}

// Stop はスケジュールを止め、実行中のジョブのコンテキストをキャンセルする。
// 実行中のジョブの終了は待たない。
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.cancel()
	s.cron.Stop()
	s.started = false

	s.logger.Info("期限スイープスケジューラを停止しました")
}

// cronLogger はrobfig/cronのログをslogへ流す。
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append([]interface{}{slog.String("error", err.Error())}, keysAndValues...)...)
}
