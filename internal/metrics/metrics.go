// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ビルド結果のラベル値
const (
	BuildResultOK       = "ok"
	BuildResultNotFound = "not_found"
	BuildResultError    = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// フィードビルダー、リレーセッション、ワーカーから利用する。
type MetricsCollector interface {
	RecordBuild(result string)
	RecordBuildLatency(duration time.Duration)
	RecordItemsBuilt(count int)
	RecordProfileLookupFailure()
	RecordRelayQueryFailure(relay string)
	RecordSnapshotFallback()
	RecordSnapshotStored()
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	builds           *prometheus.CounterVec
	buildLatency     prometheus.Histogram
	itemsBuilt       prometheus.Counter
	lookupFail       prometheus.Counter
	relayFail        *prometheus.CounterVec
	snapshotFallback prometheus.Counter
	snapshotStored   prometheus.Counter
	httpStatus       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pubcaster_feed_builds_total",
			Help: "結果別のフィードビルド数",
		}, []string{"result"}),
		buildLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pubcaster_feed_build_seconds",
			Help:    "フィードビルドのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		itemsBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pubcaster_feed_items_total",
			Help: "生成したフィードアイテムの合計数",
		}),
		lookupFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pubcaster_profile_lookup_fail_total",
			Help: "受取人プロフィール取得失敗の合計数",
		}),
		relayFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pubcaster_relay_query_fail_total",
			Help: "リレー別のクエリ失敗数",
		}, []string{"relay"}),
		snapshotFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pubcaster_snapshot_fallback_total",
			Help: "スナップショットで応答した回数",
		}),
		snapshotStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pubcaster_snapshot_stored_total",
			Help: "保存したスナップショットの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pubcaster_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.builds,
		c.buildLatency,
		c.itemsBuilt,
		c.lookupFail,
		c.relayFail,
		c.snapshotFallback,
		c.snapshotStored,
		c.httpStatus,
	)

	return c
}

// RecordBuild はビルド結果を記録する。
func (c *Collector) RecordBuild(result string) {
	c.builds.WithLabelValues(result).Inc()
}

// RecordBuildLatency はビルドのレイテンシを記録する。
func (c *Collector) RecordBuildLatency(duration time.Duration) {
	c.buildLatency.Observe(duration.Seconds())
}

// RecordItemsBuilt は生成したアイテム数を記録する。
func (c *Collector) RecordItemsBuilt(count int) {
	c.itemsBuilt.Add(float64(count))
}

// RecordProfileLookupFailure はプロフィール取得失敗を記録する。
func (c *Collector) RecordProfileLookupFailure() {
	c.lookupFail.Inc()
}

// RecordRelayQueryFailure はリレーへのクエリ失敗を記録する。
func (c *Collector) RecordRelayQueryFailure(relay string) {
	c.relayFail.WithLabelValues(relay).Inc()
}

// RecordSnapshotFallback はスナップショットへのフォールバックを記録する。
func (c *Collector) RecordSnapshotFallback() {
	c.snapshotFallback.Inc()
}

// RecordSnapshotStored はスナップショットの保存を記録する。
func (c *Collector) RecordSnapshotStored() {
	c.snapshotStored.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないMetricsCollector。メトリクスを使わないCLIコマンドとテストで使う。
type Nop struct{}

func (Nop) RecordBuild(string)               {}
func (Nop) RecordBuildLatency(time.Duration) {}
func (Nop) RecordItemsBuilt(int)             {}
func (Nop) RecordProfileLookupFailure()      {}
func (Nop) RecordRelayQueryFailure(string)   {}
func (Nop) RecordSnapshotFallback()          {}
func (Nop) RecordSnapshotStored()            {}
func (Nop) RecordHTTPStatus(int)             {}
