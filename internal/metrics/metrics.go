// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 通知サブシステム、スイープジョブ、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordEventPublished(kind string)
	RecordEventDropped()
	RecordPublishFailure()
	RecordStreamOpened()
	RecordStreamClosed()
	RecordSweep(outcome string, duration time.Duration)
	RecordDelivery(channel string, success bool)
	RecordHTTPStatus(statusCode int)
}

// スイープ結果のラベル値
const (
	SweepOutcomeDelivered = "delivered"
	SweepOutcomeEmpty     = "empty"
	SweepOutcomeFailed    = "failed"
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	eventsPublished *prometheus.CounterVec
	eventsDropped   prometheus.Counter
	publishFail     prometheus.Counter
	activeStreams   prometheus.Gauge
	sweepRuns       *prometheus.CounterVec
	sweepLatency    prometheus.Histogram
	deliveries      *prometheus.CounterVec
	httpStatus      *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskman_events_published_total",
			Help: "メールボックスに投入したイベント数",
		}, []string{"kind"}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskman_events_dropped_total",
			Help: "メールボックス上限により破棄された古いイベント数",
		}),
		publishFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskman_publish_failures_total",
			Help: "イベント投入に失敗した回数",
		}),
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taskman_active_streams",
			Help: "接続中のイベントストリーム数",
		}),
		sweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskman_sweep_runs_total",
			Help: "期限間近タスクスイープの実行回数",
		}, []string{"outcome"}),
		sweepLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "taskman_sweep_duration_seconds",
			Help:    "スイープ1回あたりの所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskman_deliveries_total",
			Help: "外部チャネルへの配信結果",
		}, []string{"channel", "result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskman_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.eventsPublished,
		c.eventsDropped,
		c.publishFail,
		c.activeStreams,
		c.sweepRuns,
		c.sweepLatency,
		c.deliveries,
		c.httpStatus,
	)

	return c
}

// RecordEventPublished はイベント投入を記録する。
func (c *Collector) RecordEventPublished(kind string) {
	c.eventsPublished.WithLabelValues(kind).Inc()
}

// RecordEventDropped は上限超過によるイベント破棄を記録する。
func (c *Collector) RecordEventDropped() {
	c.eventsDropped.Inc()
}

// RecordPublishFailure はイベント投入失敗を記録する。
func (c *Collector) RecordPublishFailure() {
	c.publishFail.Inc()
}

// RecordStreamOpened はストリーム接続の開始を記録する。
func (c *Collector) RecordStreamOpened() {
	c.activeStreams.Inc()
}

// RecordStreamClosed はストリーム接続の終了を記録する。
func (c *Collector) RecordStreamClosed() {
	c.activeStreams.Dec()
}

// RecordSweep はスイープの結果と所要時間を記録する。
func (c *Collector) RecordSweep(outcome string, duration time.Duration) {
	c.sweepRuns.WithLabelValues(outcome).Inc()
	c.sweepLatency.Observe(duration.Seconds())
}

// RecordDelivery はチャネル別の配信結果を記録する。
func (c *Collector) RecordDelivery(channel string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.deliveries.WithLabelValues(channel, result).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// NopCollector は何も記録しないMetricsCollector。
// テストやメトリクス不要な構成で使用する。
type NopCollector struct{}

func (NopCollector) RecordEventPublished(string) {}
func (NopCollector) RecordEventDropped() {}
func (NopCollector) RecordPublishFailure() {}
func (NopCollector) RecordStreamOpened() {}
func (NopCollector) RecordStreamClosed() {}
func (NopCollector) RecordSweep(string, time.Duration) {}
func (NopCollector) RecordDelivery(string, bool) {}
func (NopCollector) RecordHTTPStatus(int) {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
