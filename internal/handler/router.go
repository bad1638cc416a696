package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/paymatch/api/internal/metrics"
	"github.com/paymatch/api/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// メトリクス
	Collector metrics.MetricsCollector
	Gatherer  prometheus.Gatherer

	// メール購読
	NewsletterService NewsletterServiceInterface

	// Webhook
	WebhookHandler *WebhookHandler

	// ヘルスチェック
	DB Pinger
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → (ルートグループごとのCORS / RateLimit)
//
// Stripe Webhookはブラウザからのアクセスを想定しないため、CORSと
// レート制限の外に配置する（Stripeの再送をレート制限で弾かないこと）。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Collector))

	emailHandler := NewEmailHandler(deps.NewsletterService)
	healthHandler := NewHealthHandler(deps.DB)

	// --- 運用エンドポイント（CORS・レート制限なし） ---
	r.Get("/health", healthHandler.Health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))

	// --- Stripe Webhook ---
	r.Post("/api/stripe/webhook", deps.WebhookHandler.HandleStripeWebhook)

	// --- メール購読API ---
	// ミドルウェアスタック: CORS → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api/email", func(r chi.Router) {
			// POST /api/email/subscribe - 購読登録（登録専用レート制限を追加）
			r.With(deps.RateLimiter.SubscribeMiddleware()).Post("/subscribe", emailHandler.Subscribe)

			// 配信停止ページ用の情報取得と配信停止の実行
			r.Get("/unsubscribe", emailHandler.GetUnsubscribeInfo)
			r.Post("/unsubscribe", emailHandler.Unsubscribe)

			// List-Unsubscribe/List-Unsubscribe-Postヘッダーから呼ばれる
			// ワンクリック配信停止（メールクライアント向け）
			r.Get("/unsubscribe/one-click", emailHandler.OneClickUnsubscribe)
			r.Post("/unsubscribe/one-click", emailHandler.OneClickUnsubscribe)
		})
	})

	return r
}
