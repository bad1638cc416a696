// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層およびハンドラーから利用する。
type MetricsCollector interface {
	RecordSubscribe(emailType string)
	RecordUnsubscribe(alreadyUnsubscribed bool)
	RecordWebhookReceived(eventType string)
	RecordWebhookProcessed(eventType string)
	RecordWebhookSkipped()
	RecordWebhookFailed(eventType string)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	subscribe        *prometheus.CounterVec
	unsubscribe      *prometheus.CounterVec
	webhookReceived  *prometheus.CounterVec
	webhookProcessed *prometheus.CounterVec
	webhookSkipped   prometheus.Counter
	webhookFailed    *prometheus.CounterVec
	httpStatus       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		subscribe: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paymatch_subscribe_total",
			Help: "購読登録の合計数（配信カテゴリ別）",
		}, []string{"email_type"}),
		unsubscribe: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paymatch_unsubscribe_total",
			Help: "配信停止リクエストの合計数（冪等な再実行を含む）",
		}, []string{"already_unsubscribed"}),
		webhookReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paymatch_webhook_received_total",
			Help: "受信したWebhookイベントの合計数（イベント種別別）",
		}, []string{"event_type"}),
		webhookProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paymatch_webhook_processed_total",
			Help: "処理に成功したWebhookイベントの合計数（イベント種別別）",
		}, []string{"event_type"}),
		webhookSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paymatch_webhook_skipped_total",
			Help: "冪等性ガードにより重複としてスキップされたWebhookイベントの合計数",
		}),
		webhookFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paymatch_webhook_failed_total",
			Help: "処理に失敗したWebhookイベントの合計数（イベント種別別）",
		}, []string{"event_type"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paymatch_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.subscribe,
		c.unsubscribe,
		c.webhookReceived,
		c.webhookProcessed,
		c.webhookSkipped,
		c.webhookFailed,
		c.httpStatus,
	)

	return c
}

// RecordSubscribe は購読登録を記録する。
func (c *Collector) RecordSubscribe(emailType string) {
	c.subscribe.WithLabelValues(emailType).Inc()
}

// RecordUnsubscribe は配信停止リクエストを記録する。
func (c *Collector) RecordUnsubscribe(alreadyUnsubscribed bool) {
	c.unsubscribe.WithLabelValues(strconv.FormatBool(alreadyUnsubscribed)).Inc()
}

// RecordWebhookReceived はWebhookイベントの受信を記録する。
func (c *Collector) RecordWebhookReceived(eventType string) {
	c.webhookReceived.WithLabelValues(eventType).Inc()
}

// RecordWebhookProcessed はWebhookイベントの処理成功を記録する。
func (c *Collector) RecordWebhookProcessed(eventType string) {
	c.webhookProcessed.WithLabelValues(eventType).Inc()
}

// RecordWebhookSkipped は重複Webhookイベントのスキップを記録する。
func (c *Collector) RecordWebhookSkipped() {
	c.webhookSkipped.Inc()
}

// RecordWebhookFailed はWebhookイベントの処理失敗を記録する。
func (c *Collector) RecordWebhookFailed(eventType string) {
	c.webhookFailed.WithLabelValues(eventType).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
