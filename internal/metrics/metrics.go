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
// サービス層・セッション層・ミドルウェアから利用する。
type MetricsCollector interface {
	RecordContentFallback(collection string)
	RecordContentFetchLatency(collection string, duration time.Duration)
	RecordSignIn(outcome string)
	RecordAccessDenied()
	RecordForcedSignOut()
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	contentFallback *prometheus.CounterVec
	fetchLatency    *prometheus.HistogramVec
	signIn          *prometheus.CounterVec
	accessDenied    prometheus.Counter
	forcedSignOut   prometheus.Counter
	httpStatus      *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		contentFallback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portfolio_content_fallback_total",
			Help: "サンプルデータにフォールバックしたコンテンツ取得の合計数",
		}, []string{"collection"}),
		fetchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "portfolio_content_fetch_latency_seconds",
			Help:    "コンテンツ取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"collection"}),
		signIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portfolio_sign_in_total",
			Help: "結果別のサインイン試行数",
		}, []string{"outcome"}),
		accessDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portfolio_access_denied_total",
			Help: "管理者以外のサインインを拒否した合計数",
		}),
		forcedSignOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portfolio_forced_sign_out_total",
			Help: "猶予時間経過後に強制サインアウトした合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portfolio_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.contentFallback,
		c.fetchLatency,
		c.signIn,
		c.accessDenied,
		c.forcedSignOut,
		c.httpStatus,
	)

	return c
}

// RecordContentFallback はフォールバックデータの返却を記録する。
func (c *Collector) RecordContentFallback(collection string) {
	c.contentFallback.WithLabelValues(collection).Inc()
}

// RecordContentFetchLatency はストアからの取得時間を記録する。
func (c *Collector) RecordContentFetchLatency(collection string, duration time.Duration) {
	c.fetchLatency.WithLabelValues(collection).Observe(duration.Seconds())
}

// RecordSignIn はサインイン結果を記録する。outcomeは"success"またはAuthFailureのコード。
func (c *Collector) RecordSignIn(outcome string) {
	c.signIn.WithLabelValues(outcome).Inc()
}

// RecordAccessDenied は管理者以外のサインインの拒否を記録する。
func (c *Collector) RecordAccessDenied() {
	c.accessDenied.Inc()
}

// RecordForcedSignOut は強制サインアウトを記録する。
func (c *Collector) RecordForcedSignOut() {
	c.forcedSignOut.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NopCollector は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type NopCollector struct{}

func (NopCollector) RecordContentFallback(string)                    {}
func (NopCollector) RecordContentFetchLatency(string, time.Duration) {}
func (NopCollector) RecordSignIn(string)                             {}
func (NopCollector) RecordAccessDenied()                             {}
func (NopCollector) RecordForcedSignOut()                            {}
func (NopCollector) RecordHTTPStatus(int)                            {}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
