package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/stripe/stripe-go/v78"
	stripewebhook "github.com/stripe/stripe-go/v78/webhook"

	"github.com/paymatch/api/internal/metrics"
	"github.com/paymatch/api/internal/model"
	"github.com/paymatch/api/internal/webhook"
)

// BillingEventHandler はWebhookハンドラーが委譲する課金イベント処理のインターフェース。
type BillingEventHandler interface {
	// HandleEvent は検証済みのStripeイベントを適用する。
	HandleEvent(ctx context.Context, event stripe.Event) error
}

// WebhookHandler はStripe WebhookのHTTPハンドラー。
// 署名検証 → 冪等性ガード → イベント適用の順に処理する。
type WebhookHandler struct {
	signingSecret string
	maxBodySize   int64
	guard         webhook.Guard
	billing       BillingEventHandler
	collector     metrics.MetricsCollector
}

// NewWebhookHandler はWebhookHandlerを生成する。collectorはnil可。
func NewWebhookHandler(signingSecret string, maxBodySize int64, guard webhook.Guard, billing BillingEventHandler, collector metrics.MetricsCollector) *WebhookHandler {
	return &WebhookHandler{
		signingSecret: signingSecret,
		maxBodySize:   maxBodySize,
		guard:         guard,
		billing:       billing,
		collector:     collector,
	}
}

// HandleStripeWebhook はStripeからのWebhookイベントを受信する。
// POST /api/stripe/webhook
//
// レスポンスの使い分け:
//   - 200 {received:true}: 処理成功、または重複のためスキップ
//   - 400: 署名の欠落・不正、またはイベント処理の失敗（Stripeが再送する）
//   - 500: 冪等性ストアの障害
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	// 署名検証は生のボディに対して行うため、デコード前に読み切る
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if sigHeader == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewWebhookSignatureMissingError())
		return
	}

	event, err := stripewebhook.ConstructEvent(payload, sigHeader, h.signingSecret)
	if err != nil {
		slog.Warn("webhook signature verification failed", slog.String("error", err.Error()))
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewWebhookSignatureInvalidError())
		return
	}

	if h.collector != nil {
		h.collector.RecordWebhookReceived(string(event.Type))
	}

	// ハンドラ自体の失敗とガードストアの障害を区別するため、
	// ハンドラエラーをクロージャの外に持ち出す
	var handlerErr error
	err = h.guard.ProcessWithIdempotency(r.Context(), event.ID, func(ctx context.Context) error {
		if herr := h.billing.HandleEvent(ctx, event); herr != nil {
			handlerErr = herr
			return herr
		}
		return nil
	})

	switch {
	case err == nil:
		if h.collector != nil {
			h.collector.RecordWebhookProcessed(string(event.Type))
		}

	case errors.Is(err, webhook.ErrSkipped):
		slog.Info("duplicate webhook event skipped",
			slog.String("event_id", event.ID),
			slog.String("event_type", string(event.Type)),
		)
		if h.collector != nil {
			h.collector.RecordWebhookSkipped()
		}

	case handlerErr != nil && errors.Is(err, handlerErr):
		slog.Error("webhook event handler failed",
			slog.String("event_id", event.ID),
			slog.String("event_type", string(event.Type)),
			slog.String("error", err.Error()),
		)
		if h.collector != nil {
			h.collector.RecordWebhookFailed(string(event.Type))
		}
		// 400を返してStripeに再送させる。ガードは失敗イベントを
		// 処理済みとして記録していないため、再送時に再実行される。
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewWebhookHandlerFailedError(string(event.Type)))
		return

	default:
		slog.Error("webhook idempotency store failure",
			slog.String("event_id", event.ID),
			slog.String("error", err.Error()),
		)
		writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
			Code:     "INTERNAL_ERROR",
			Message:  "内部エラーが発生しました。",
			Category: "system",
			Action:   "しばらく待ってから再度お試しください。",
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"received": true})
}
