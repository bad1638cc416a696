package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/paymatch/api/internal/model"
	"github.com/paymatch/api/internal/newsletter"
)

// --- モック定義 ---

// mockNewsletterService はNewsletterServiceInterfaceのモック実装。
type mockNewsletterService struct {
	subscribeFn         func(ctx context.Context, input newsletter.SubscribeInput) (*newsletter.SubscribeResult, error)
	getSubscriberInfoFn func(ctx context.Context, token string) (*newsletter.SubscriberView, error)
	handleUnsubscribeFn func(ctx context.Context, token string) (*newsletter.UnsubscribeResult, error)
}

func (m *mockNewsletterService) Subscribe(ctx context.Context, input newsletter.SubscribeInput) (*newsletter.SubscribeResult, error) {
	if m.subscribeFn != nil {
		return m.subscribeFn(ctx, input)
	}
	return nil, nil
}

func (m *mockNewsletterService) GetSubscriberInfo(ctx context.Context, token string) (*newsletter.SubscriberView, error) {
	if m.getSubscriberInfoFn != nil {
		return m.getSubscriberInfoFn(ctx, token)
	}
	return nil, nil
}

func (m *mockNewsletterService) HandleUnsubscribe(ctx context.Context, token string) (*newsletter.UnsubscribeResult, error) {
	if m.handleUnsubscribeFn != nil {
		return m.handleUnsubscribeFn(ctx, token)
	}
	return nil, nil
}

// --- POST /api/email/subscribe テスト ---

func TestEmailHandler_Subscribe_Returns201(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	svc := &mockNewsletterService{
		subscribeFn: func(ctx context.Context, input newsletter.SubscribeInput) (*newsletter.SubscribeResult, error) {
			if input.Email != "a@b.ch" {
				t.Errorf("email = %q, want %q", input.Email, "a@b.ch")
			}
			return &newsletter.SubscribeResult{
				Subscriber: newsletter.SubscriberView{
					Email:        "a@b.ch",
					FirstName:    "Anna",
					EmailType:    model.EmailTypeNewsletter,
					IsActive:     true,
					SubscribedAt: now,
				},
				Unsubscribe: newsletter.UnsubscribeLinks{
					PageURL:             "https://api.paymatch.ch/api/email/unsubscribe?token=tok-1",
					OneClickURL:         "https://api.paymatch.ch/api/email/unsubscribe/one-click?token=tok-1",
					ListUnsubscribe:     "<https://api.paymatch.ch/api/email/unsubscribe/one-click?token=tok-1>",
					ListUnsubscribePost: "List-Unsubscribe=One-Click",
				},
			}, nil
		},
	}
	h := NewEmailHandler(svc)

	body := bytes.NewBufferString(`{"email":"a@b.ch","first_name":"Anna","email_type":"newsletter"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/email/subscribe", body)
	w := httptest.NewRecorder()

	h.Subscribe(w, req)

	if w.Result().StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusCreated)
	}

	var resp map[string]any
	if err := json.NewDecoder(w.Result().Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["success"] != true {
		t.Error("expected success = true")
	}
	sub, ok := resp["subscriber"].(map[string]any)
	if !ok {
		t.Fatal("expected subscriber object in response")
	}
	if sub["email"] != "a@b.ch" {
		t.Errorf("subscriber.email = %v, want %q", sub["email"], "a@b.ch")
	}
	if _, hasToken := sub["unsubscribe_token"]; hasToken {
		t.Error("unsubscribe token must not appear in API responses")
	}

	// メール配信側が使用する配信停止URLとヘッダー値がレスポンスに含まれること
	links, ok := resp["unsubscribe"].(map[string]any)
	if !ok {
		t.Fatal("expected unsubscribe object in response")
	}
	if links["one_click_url"] != "https://api.paymatch.ch/api/email/unsubscribe/one-click?token=tok-1" {
		t.Errorf("unsubscribe.one_click_url = %v", links["one_click_url"])
	}
	if links["list_unsubscribe_post"] != "List-Unsubscribe=One-Click" {
		t.Errorf("unsubscribe.list_unsubscribe_post = %v", links["list_unsubscribe_post"])
	}
}

func TestEmailHandler_Subscribe_AlreadySubscribed_Returns200(t *testing.T) {
	svc := &mockNewsletterService{
		subscribeFn: func(ctx context.Context, input newsletter.SubscribeInput) (*newsletter.SubscribeResult, error) {
			return &newsletter.SubscribeResult{
				Subscriber:        newsletter.SubscriberView{Email: "a@b.ch", IsActive: true},
				AlreadySubscribed: true,
			}, nil
		},
	}
	h := NewEmailHandler(svc)

	body := bytes.NewBufferString(`{"email":"a@b.ch","email_type":"newsletter"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/email/subscribe", body)
	w := httptest.NewRecorder()

	h.Subscribe(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	var resp map[string]any
	json.NewDecoder(w.Result().Body).Decode(&resp)
	if resp["already_subscribed"] != true {
		t.Error("expected already_subscribed = true")
	}
}

func TestEmailHandler_Subscribe_InvalidBody_Returns400(t *testing.T) {
	h := NewEmailHandler(&mockNewsletterService{})

	req := httptest.NewRequest(http.MethodPost, "/api/email/subscribe", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()

	h.Subscribe(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestEmailHandler_Subscribe_InvalidEmail_Returns400(t *testing.T) {
	svc := &mockNewsletterService{
		subscribeFn: func(ctx context.Context, input newsletter.SubscribeInput) (*newsletter.SubscribeResult, error) {
			return nil, model.NewInvalidEmailError(input.Email)
		},
	}
	h := NewEmailHandler(svc)

	body := bytes.NewBufferString(`{"email":"nope","email_type":"newsletter"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/email/subscribe", body)
	w := httptest.NewRecorder()

	h.Subscribe(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}

	var resp apiErrorResponse
	json.NewDecoder(w.Result().Body).Decode(&resp)
	if resp.Code != model.ErrCodeInvalidEmail {
		t.Errorf("code = %q, want %q", resp.Code, model.ErrCodeInvalidEmail)
	}
}

// --- GET /api/email/unsubscribe テスト ---

func TestEmailHandler_GetUnsubscribeInfo_Success(t *testing.T) {
	svc := &mockNewsletterService{
		getSubscriberInfoFn: func(ctx context.Context, token string) (*newsletter.SubscriberView, error) {
			if token != "abc123" {
				t.Errorf("token = %q, want %q", token, "abc123")
			}
			return &newsletter.SubscriberView{
				Email:     "a@b.ch",
				EmailType: model.EmailTypeNewsletter,
				IsActive:  true,
			}, nil
		},
	}
	h := NewEmailHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/email/unsubscribe?token=abc123", nil)
	w := httptest.NewRecorder()

	h.GetUnsubscribeInfo(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	var resp map[string]any
	json.NewDecoder(w.Result().Body).Decode(&resp)
	sub, ok := resp["subscriber"].(map[string]any)
	if !ok {
		t.Fatal("expected subscriber object in response")
	}
	if sub["is_active"] != true {
		t.Errorf("subscriber.is_active = %v, want true", sub["is_active"])
	}
}

func TestEmailHandler_GetUnsubscribeInfo_MissingToken_Returns400(t *testing.T) {
	h := NewEmailHandler(&mockNewsletterService{})

	req := httptest.NewRequest(http.MethodGet, "/api/email/unsubscribe", nil)
	w := httptest.NewRecorder()

	h.GetUnsubscribeInfo(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}

	var resp apiErrorResponse
	json.NewDecoder(w.Result().Body).Decode(&resp)
	if resp.Code != model.ErrCodeMissingToken {
		t.Errorf("code = %q, want %q", resp.Code, model.ErrCodeMissingToken)
	}
}

func TestEmailHandler_GetUnsubscribeInfo_InvalidToken_Returns404(t *testing.T) {
	svc := &mockNewsletterService{
		getSubscriberInfoFn: func(ctx context.Context, token string) (*newsletter.SubscriberView, error) {
			return nil, model.NewInvalidTokenError()
		},
	}
	h := NewEmailHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/email/unsubscribe?token=unknown", nil)
	w := httptest.NewRecorder()

	h.GetUnsubscribeInfo(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNotFound)
	}
}

// --- POST /api/email/unsubscribe テスト ---

func TestEmailHandler_Unsubscribe_TokenFromQuery(t *testing.T) {
	svc := &mockNewsletterService{
		handleUnsubscribeFn: func(ctx context.Context, token string) (*newsletter.UnsubscribeResult, error) {
			if token != "abc123" {
				t.Errorf("token = %q, want %q", token, "abc123")
			}
			return &newsletter.UnsubscribeResult{AlreadyUnsubscribed: false}, nil
		},
	}
	h := NewEmailHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/email/unsubscribe?token=abc123", nil)
	w := httptest.NewRecorder()

	h.Unsubscribe(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	var resp map[string]any
	json.NewDecoder(w.Result().Body).Decode(&resp)
	if resp["success"] != true {
		t.Error("expected success = true")
	}
	if resp["already_unsubscribed"] != false {
		t.Errorf("already_unsubscribed = %v, want false", resp["already_unsubscribed"])
	}
}

func TestEmailHandler_Unsubscribe_TokenFromBody(t *testing.T) {
	svc := &mockNewsletterService{
		handleUnsubscribeFn: func(ctx context.Context, token string) (*newsletter.UnsubscribeResult, error) {
			if token != "abc123" {
				t.Errorf("token = %q, want %q", token, "abc123")
			}
			return &newsletter.UnsubscribeResult{AlreadyUnsubscribed: true}, nil
		},
	}
	h := NewEmailHandler(svc)

	body := bytes.NewBufferString(`{"token":"abc123"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/email/unsubscribe", body)
	w := httptest.NewRecorder()

	h.Unsubscribe(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	var resp map[string]any
	json.NewDecoder(w.Result().Body).Decode(&resp)
	if resp["already_unsubscribed"] != true {
		t.Errorf("already_unsubscribed = %v, want true", resp["already_unsubscribed"])
	}
}

func TestEmailHandler_Unsubscribe_MissingToken_Returns400(t *testing.T) {
	h := NewEmailHandler(&mockNewsletterService{})

	req := httptest.NewRequest(http.MethodPost, "/api/email/unsubscribe", bytes.NewBufferString(`{}`))
	w := httptest.NewRecorder()

	h.Unsubscribe(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestEmailHandler_Unsubscribe_InvalidToken_Returns404(t *testing.T) {
	svc := &mockNewsletterService{
		handleUnsubscribeFn: func(ctx context.Context, token string) (*newsletter.UnsubscribeResult, error) {
			return nil, model.NewInvalidTokenError()
		},
	}
	h := NewEmailHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/email/unsubscribe?token=unknown", nil)
	w := httptest.NewRecorder()

	h.Unsubscribe(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNotFound)
	}
}

// --- ワンクリック配信停止テスト ---

func TestEmailHandler_OneClickUnsubscribe_Returns200WithEmptyBody(t *testing.T) {
	svc := &mockNewsletterService{
		handleUnsubscribeFn: func(ctx context.Context, token string) (*newsletter.UnsubscribeResult, error) {
			return &newsletter.UnsubscribeResult{AlreadyUnsubscribed: false}, nil
		},
	}
	h := NewEmailHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/email/unsubscribe/one-click?token=abc123", nil)
	w := httptest.NewRecorder()

	h.OneClickUnsubscribe(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	if w.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", w.Body.String())
	}
}

func TestEmailHandler_OneClickUnsubscribe_InvalidToken_Returns200(t *testing.T) {
	// メールクライアントは構造化エラーを解釈しないため、
	// 無効トークンにもエラーを返さない（トークンの列挙にも使わせない）
	svc := &mockNewsletterService{
		handleUnsubscribeFn: func(ctx context.Context, token string) (*newsletter.UnsubscribeResult, error) {
			return nil, model.NewInvalidTokenError()
		},
	}
	h := NewEmailHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/email/unsubscribe/one-click?token=unknown", nil)
	w := httptest.NewRecorder()

	h.OneClickUnsubscribe(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	if w.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", w.Body.String())
	}
}

func TestEmailHandler_OneClickUnsubscribe_StoreFailure_Returns500(t *testing.T) {
	svc := &mockNewsletterService{
		handleUnsubscribeFn: func(ctx context.Context, token string) (*newsletter.UnsubscribeResult, error) {
			return nil, errors.New("接続が切断されました")
		},
	}
	h := NewEmailHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/email/unsubscribe/one-click?token=abc123", nil)
	w := httptest.NewRecorder()

	h.OneClickUnsubscribe(w, req)

	if w.Result().StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusInternalServerError)
	}
}
