// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ダッシュボード取得結果のラベル値
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラー、サービス層、ワーカーから利用する。
type MetricsCollector interface {
	RecordDashboardFetch(result string, duration time.Duration)
	RecordSessionCreated(sessionType string)
	RecordPodAssignment()
	RecordSignedURL()
	RecordHTTPStatus(statusCode int)
	RecordOrphansReconciled(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	dashboardFetch    *prometheus.CounterVec
	dashboardLatency  prometheus.Histogram
	sessionsCreated   *prometheus.CounterVec
	podAssignments    prometheus.Counter
	signedURLs        prometheus.Counter
	httpStatus        *prometheus.CounterVec
	orphansReconciled prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		dashboardFetch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rhetor_dashboard_fetch_total",
			Help: "ダッシュボード集計の結果別の合計数",
		}, []string{"result"}),
		dashboardLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rhetor_dashboard_fetch_latency_seconds",
			Help:    "ダッシュボード集計のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		sessionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rhetor_sessions_created_total",
			Help: "セッション種別ごとの作成数",
		}, []string{"session_type"}),
		podAssignments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rhetor_pod_assignments_total",
			Help: "ポッド割り当ての合計数",
		}),
		signedURLs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rhetor_signed_urls_total",
			Help: "発行した署名付きURLの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rhetor_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		orphansReconciled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rhetor_orphans_reconciled_total",
			Help: "音声が存在せずfailedに更新したセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.dashboardFetch,
		c.dashboardLatency,
		c.sessionsCreated,
		c.podAssignments,
		c.signedURLs,
		c.httpStatus,
		c.orphansReconciled,
	)

	return c
}

// RecordDashboardFetch はダッシュボード集計の結果とレイテンシを記録する。
func (c *Collector) RecordDashboardFetch(result string, duration time.Duration) {
	c.dashboardFetch.WithLabelValues(result).Inc()
	c.dashboardLatency.Observe(duration.Seconds())
}

// RecordSessionCreated はセッション作成を記録する。
func (c *Collector) RecordSessionCreated(sessionType string) {
	c.sessionsCreated.WithLabelValues(sessionType).Inc()
}

// RecordPodAssignment はポッド割り当てを記録する。
func (c *Collector) RecordPodAssignment() {
	c.podAssignments.Inc()
}

// RecordSignedURL は署名付きURLの発行を記録する。
func (c *Collector) RecordSignedURL() {
	c.signedURLs.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordOrphansReconciled はfailedに更新した孤立セッション数を記録する。
func (c *Collector) RecordOrphansReconciled(count int) {
	c.orphansReconciled.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NopCollector は何も記録しないMetricsCollector。
// CLIなどメトリクスを公開しない実行形態で使用する。
type NopCollector struct{}

func (NopCollector) RecordDashboardFetch(string, time.Duration) {}
func (NopCollector) RecordSessionCreated(string)                 {}
func (NopCollector) RecordPodAssignment()                        {}
func (NopCollector) RecordSignedURL()                            {}
func (NopCollector) RecordHTTPStatus(int)                        {}
func (NopCollector) RecordOrphansReconciled(int)                 {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
