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
// RPC層・ミドルウェア・ワーカーから利用する。
type MetricsCollector interface {
	RecordRPCCall(method, outcome string, duration time.Duration)
	RecordHTTPStatus(statusCode int)
	RecordRegistration(outcome string)
	RecordAuthentication(outcome string)
	RecordTokenIssued()
	RecordRateLimited(scope string)
	RecordCleanupDeleted(kind string, count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	rpcCalls        *prometheus.CounterVec
	rpcLatency      *prometheus.HistogramVec
	httpStatus      *prometheus.CounterVec
	registrations   *prometheus.CounterVec
	authentications *prometheus.CounterVec
	tokensIssued    prometheus.Counter
	rateLimited     *prometheus.CounterVec
	cleanupDeleted  *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		rpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accountd_rpc_calls_total",
			Help: "RPCメソッド呼び出しの合計数（結果別）",
		}, []string{"method", "outcome"}),
		rpcLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "accountd_rpc_latency_seconds",
			Help:    "RPCメソッドのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accountd_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accountd_registrations_total",
			Help: "アカウント登録の合計数（結果別）",
		}, []string{"outcome"}),
		authentications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accountd_authentications_total",
			Help: "パスワード認証の合計数（結果別）",
		}, []string{"outcome"}),
		tokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accountd_tokens_issued_total",
			Help: "発行されたトークンの合計数",
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accountd_rate_limited_total",
			Help: "レート制限で拒否されたリクエスト数",
		}, []string{"scope"}),
		cleanupDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accountd_cleanup_deleted_total",
			Help: "クリーンアップで削除された行数",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		c.rpcCalls,
		c.rpcLatency,
		c.httpStatus,
		c.registrations,
		c.authentications,
		c.tokensIssued,
		c.rateLimited,
		c.cleanupDeleted,
	)

	return c
}

// RecordRPCCall はRPC呼び出しの結果とレイテンシを記録する。
func (c *Collector) RecordRPCCall(method, outcome string, duration time.Duration) {
	c.rpcCalls.WithLabelValues(method, outcome).Inc()
	c.rpcLatency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRegistration はアカウント登録の結果を記録する。
func (c *Collector) RecordRegistration(outcome string) {
	c.registrations.WithLabelValues(outcome).Inc()
}

// RecordAuthentication はパスワード認証の結果を記録する。
func (c *Collector) RecordAuthentication(outcome string) {
	c.authentications.WithLabelValues(outcome).Inc()
}

// RecordTokenIssued はトークン発行を記録する。
func (c *Collector) RecordTokenIssued() {
	c.tokensIssued.Inc()
}

// RecordRateLimited はレート制限による拒否を記録する。
func (c *Collector) RecordRateLimited(scope string) {
	c.rateLimited.WithLabelValues(scope).Inc()
}

// RecordCleanupDeleted はクリーンアップで削除した行数を記録する。
func (c *Collector) RecordCleanupDeleted(kind string, count int64) {
	c.cleanupDeleted.WithLabelValues(kind).Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
// Acceptヘッダーに応じてOpenMetrics形式でも応答する。
// 一部のメトリクスの収集に失敗しても、取得できた分を返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorHandling:     promhttp.ContinueOnError,
		EnableOpenMetrics: true,
	})
}

// SetupMetricsRoute はworkerプロセス用に GET /metrics のみを提供するHTTPハンドラーを返す。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", Handler(gatherer))
	return mux
}
