// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// tmdb、querycache、favorites、workspace の各パッケージが定義する
// 記録用インターフェースをまとめて満たす。
type Collector struct {
	catalogRequests *prometheus.CounterVec
	catalogLatency  *prometheus.HistogramVec
	queryLookups    *prometheus.CounterVec
	queryFetches    *prometheus.CounterVec
	favoriteChanges *prometheus.CounterVec
	workspaces      prometheus.Gauge
	sessionsCleaned prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		catalogRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moviedeck_catalog_requests_total",
			Help: "TMDBへのリクエスト数（エンドポイント・ステータスコード別）",
		}, []string{"endpoint", "status_code"}),
		catalogLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "moviedeck_catalog_latency_seconds",
			Help:    "TMDBリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		queryLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moviedeck_query_lookups_total",
			Help: "クエリキャッシュ参照数（fresh, stale, miss, disabled）",
		}, []string{"outcome"}),
		queryFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moviedeck_query_fetches_total",
			Help: "クエリキャッシュが実行したフェッチ数（success, error, discarded）",
		}, []string{"result"}),
		favoriteChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moviedeck_favorite_changes_total",
			Help: "お気に入り操作数（added, removed, rejected）",
		}, []string{"action"}),
		workspaces: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "moviedeck_workspaces",
			Help: "メモリ上に保持しているワークスペース数",
		}),
		sessionsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "moviedeck_sessions_cleaned_total",
			Help: "期限切れとして削除したログインセッション数",
		}),
	}

	reg.MustRegister(
		c.catalogRequests,
		c.catalogLatency,
		c.queryLookups,
		c.queryFetches,
		c.favoriteChanges,
		c.workspaces,
		c.sessionsCleaned,
	)

	return c
}

// RecordCatalogRequest はTMDBリクエストの結果を記録する。
// 通信エラーなどでステータスコードが得られない場合は0を渡す。
func (c *Collector) RecordCatalogRequest(endpoint string, statusCode int, duration time.Duration) {
	c.catalogRequests.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
	c.catalogLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordQueryLookup はキャッシュ参照の結果を記録する。
func (c *Collector) RecordQueryLookup(outcome string) {
	c.queryLookups.WithLabelValues(outcome).Inc()
}

// RecordQueryFetch はキャッシュが実行したフェッチの結果を記録する。
func (c *Collector) RecordQueryFetch(result string) {
	c.queryFetches.WithLabelValues(result).Inc()
}

// RecordFavoriteChange はお気に入り操作を記録する。
func (c *Collector) RecordFavoriteChange(action string) {
	c.favoriteChanges.WithLabelValues(action).Inc()
}

// SetWorkspaces は保持中のワークスペース数を記録する。
func (c *Collector) SetWorkspaces(n int) {
	c.workspaces.Set(float64(n))
}

// RecordSessionsCleaned は削除した期限切れセッション数を記録する。
func (c *Collector) RecordSessionsCleaned(count int64) {
	c.sessionsCleaned.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
