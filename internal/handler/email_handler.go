package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/paymatch/api/internal/model"
	"github.com/paymatch/api/internal/newsletter"
)

// NewsletterServiceInterface はメール購読ハンドラーが必要とするサービスインターフェース。
type NewsletterServiceInterface interface {
	// Subscribe は購読者を登録する（既存の配信停止済みレコードは再有効化）。
	Subscribe(ctx context.Context, input newsletter.SubscribeInput) (*newsletter.SubscribeResult, error)
	// GetSubscriberInfo はトークンから購読者の表示情報を取得する。
	GetSubscriberInfo(ctx context.Context, token string) (*newsletter.SubscriberView, error)
	// HandleUnsubscribe はトークンで特定される購読者を配信停止にする。
	HandleUnsubscribe(ctx context.Context, token string) (*newsletter.UnsubscribeResult, error)
}

// EmailHandler はメール購読・配信停止のHTTPハンドラー。
type EmailHandler struct {
	service NewsletterServiceInterface
}

// NewEmailHandler はEmailHandlerを生成する。
func NewEmailHandler(service NewsletterServiceInterface) *EmailHandler {
	return &EmailHandler{
		service: service,
	}
}

// subscribeRequest は購読登録リクエストのボディ。
type subscribeRequest struct {
	Email                string `json:"email"`
	FirstName            string `json:"first_name"`
	LastName             string `json:"last_name"`
	EmailType            string `json:"email_type"`
	Source               string `json:"source"`
	PrivacyPolicyVersion string `json:"privacy_policy_version"`
}

// subscriberResponse は購読者情報のAPIレスポンス。配信停止トークンは含めない。
type subscriberResponse struct {
	Email          string     `json:"email"`
	FirstName      string     `json:"first_name"`
	LastName       string     `json:"last_name"`
	EmailType      string     `json:"email_type"`
	IsActive       bool       `json:"is_active"`
	SubscribedAt   time.Time  `json:"subscribed_at"`
	UnsubscribedAt *time.Time `json:"unsubscribed_at,omitempty"`
}

// unsubscribeLinksResponse は配信メールに埋め込む配信停止URLとヘッダー値。
// メール配信側はこの値をそのまま使用する。
type unsubscribeLinksResponse struct {
	PageURL             string `json:"page_url"`
	OneClickURL         string `json:"one_click_url"`
	ListUnsubscribe     string `json:"list_unsubscribe"`
	ListUnsubscribePost string `json:"list_unsubscribe_post"`
}

func toUnsubscribeLinksResponse(links newsletter.UnsubscribeLinks) unsubscribeLinksResponse {
	return unsubscribeLinksResponse{
		PageURL:             links.PageURL,
		OneClickURL:         links.OneClickURL,
		ListUnsubscribe:     links.ListUnsubscribe,
		ListUnsubscribePost: links.ListUnsubscribePost,
	}
}

func toSubscriberResponse(view newsletter.SubscriberView) subscriberResponse {
	return subscriberResponse{
		Email:          view.Email,
		FirstName:      view.FirstName,
		LastName:       view.LastName,
		EmailType:      string(view.EmailType),
		IsActive:       view.IsActive,
		SubscribedAt:   view.SubscribedAt,
		UnsubscribedAt: view.UnsubscribedAt,
	}
}

// Subscribe は購読者を登録する。
// POST /api/email/subscribe
func (h *EmailHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	result, err := h.service.Subscribe(r.Context(), newsletter.SubscribeInput{
		Email:                req.Email,
		FirstName:            req.FirstName,
		LastName:             req.LastName,
		EmailType:            req.EmailType,
		Source:               req.Source,
		PrivacyPolicyVersion: req.PrivacyPolicyVersion,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// すでに購読中の場合は200、新規・再有効化は201
	statusCode := http.StatusCreated
	if result.AlreadySubscribed {
		statusCode = http.StatusOK
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]any{
		"success":            true,
		"already_subscribed": result.AlreadySubscribed,
		"subscriber":         toSubscriberResponse(result.Subscriber),
		"unsubscribe":        toUnsubscribeLinksResponse(result.Unsubscribe),
	})
}

// GetUnsubscribeInfo は配信停止ページ表示用の購読者情報を返す。
// GET /api/email/unsubscribe?token=...
// 副作用はなく、購読状態は変更しない。
func (h *EmailHandler) GetUnsubscribeInfo(w http.ResponseWriter, r *http.Request) {
	tok := r.URL.Query().Get("token")
	if tok == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewMissingTokenError())
		return
	}

	view, err := h.service.GetSubscriberInfo(r.Context(), tok)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":    true,
		"subscriber": toSubscriberResponse(*view),
	})
}

// unsubscribeRequest は配信停止リクエストのボディ。
type unsubscribeRequest struct {
	Token string `json:"token"`
}

// Unsubscribe はトークンで特定される購読者を配信停止にする。
// POST /api/email/unsubscribe
// トークンはクエリパラメータまたはJSONボディのどちらでも受け付ける。
func (h *EmailHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	tok := r.URL.Query().Get("token")
	if tok == "" {
		var req unsubscribeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			tok = req.Token
		}
	}
	if tok == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewMissingTokenError())
		return
	}

	result, err := h.service.HandleUnsubscribe(r.Context(), tok)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":              true,
		"already_unsubscribed": result.AlreadyUnsubscribed,
	})
}

// OneClickUnsubscribe はメールクライアント向けのワンクリック配信停止エンドポイント（RFC 8058）。
// GET/POST /api/email/unsubscribe/one-click?token=...
//
// メールクライアントは構造化エラーを解釈しないため、トークンが無効または
// 配信停止済みであっても空の200を返す。無効トークンへの404はトークンの
// 有効性を探る列挙に使えるため返さない。ストア障害のみ500を返し、
// クライアントに再試行させる。
func (h *EmailHandler) OneClickUnsubscribe(w http.ResponseWriter, r *http.Request) {
	tok := r.URL.Query().Get("token")
	if tok == "" {
		w.WriteHeader(http.StatusOK)
		return
	}

	if _, err := h.service.HandleUnsubscribe(r.Context(), tok); err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeInvalidToken {
			w.WriteHeader(http.StatusOK)
			return
		}

		slog.Error("one-click unsubscribe failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
