package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"

	"github.com/paymatch/api/internal/model"
	"github.com/paymatch/api/internal/webhook"
)

const testSigningSecret = "whsec_test_secret"

// mockBillingHandler はBillingEventHandlerのモック実装。
type mockBillingHandler struct {
	handleEventFn func(ctx context.Context, event stripe.Event) error
	calls         int
}

func (m *mockBillingHandler) HandleEvent(ctx context.Context, event stripe.Event) error {
	m.calls++
	if m.handleEventFn != nil {
		return m.handleEventFn(ctx, event)
	}
	return nil
}

// signPayload はStripe-Signatureヘッダーを生成する。
// フォーマット: t=<unix秒>,v1=<hex(HMAC-SHA256(secret, "<t>.<payload>"))>
func signPayload(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

// eventPayload はテスト用のStripeイベントJSONを組み立てる。
func eventPayload(t *testing.T, eventID, eventType string) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"api_version": stripe.APIVersion,
		"type":        eventType,
		"data": map[string]any{
			"object": map[string]any{"id": "obj_1"},
		},
	})
	if err != nil {
		t.Fatalf("failed to marshal event payload: %v", err)
	}
	return payload
}

func newWebhookRequest(payload []byte, sigHeader string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", bytes.NewReader(payload))
	if sigHeader != "" {
		req.Header.Set("Stripe-Signature", sigHeader)
	}
	return req
}

func TestWebhookHandler_ValidEvent_Returns200(t *testing.T) {
	billing := &mockBillingHandler{}
	h := NewWebhookHandler(testSigningSecret, 65536, webhook.NewMemoryGuard(), billing, nil)

	payload := eventPayload(t, "evt_1", "customer.subscription.updated")
	req := newWebhookRequest(payload, signPayload(payload, testSigningSecret, time.Now()))
	w := httptest.NewRecorder()

	h.HandleStripeWebhook(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d (body: %s)", w.Result().StatusCode, http.StatusOK, w.Body.String())
	}

	var resp map[string]bool
	json.NewDecoder(w.Result().Body).Decode(&resp)
	if !resp["received"] {
		t.Error("expected received = true")
	}
	if billing.calls != 1 {
		t.Errorf("billing handler calls = %d, want 1", billing.calls)
	}
}

func TestWebhookHandler_DuplicateEvent_SkipsHandler(t *testing.T) {
	billing := &mockBillingHandler{}
	h := NewWebhookHandler(testSigningSecret, 65536, webhook.NewMemoryGuard(), billing, nil)

	payload := eventPayload(t, "evt_dup", "customer.subscription.updated")

	for i := 0; i < 2; i++ {
		req := newWebhookRequest(payload, signPayload(payload, testSigningSecret, time.Now()))
		w := httptest.NewRecorder()

		h.HandleStripeWebhook(w, req)

		if w.Result().StatusCode != http.StatusOK {
			t.Fatalf("delivery %d: status = %d, want 200", i, w.Result().StatusCode)
		}

		var resp map[string]bool
		json.NewDecoder(w.Result().Body).Decode(&resp)
		if !resp["received"] {
			t.Errorf("delivery %d: expected received = true", i)
		}
	}

	if billing.calls != 1 {
		t.Errorf("billing handler calls = %d, want 1", billing.calls)
	}
}

func TestWebhookHandler_HandlerFailure_Returns400AndAllowsRetry(t *testing.T) {
	failOnce := true
	billing := &mockBillingHandler{
		handleEventFn: func(ctx context.Context, event stripe.Event) error {
			if failOnce {
				failOnce = false
				return errors.New("一時的な障害")
			}
			return nil
		},
	}
	h := NewWebhookHandler(testSigningSecret, 65536, webhook.NewMemoryGuard(), billing, nil)

	payload := eventPayload(t, "evt_retry", "invoice.payment_failed")

	// 1回目: ハンドラ失敗 → 400（Stripeが再送する）
	req := newWebhookRequest(payload, signPayload(payload, testSigningSecret, time.Now()))
	w := httptest.NewRecorder()
	h.HandleStripeWebhook(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("first delivery: status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}

	var errResp apiErrorResponse
	json.NewDecoder(w.Result().Body).Decode(&errResp)
	if errResp.Code != model.ErrCodeWebhookHandlerFailed {
		t.Errorf("code = %q, want %q", errResp.Code, model.ErrCodeWebhookHandlerFailed)
	}

	// 再送: 処理済みとして記録されていないため、ハンドラが再実行されて成功する
	req = newWebhookRequest(payload, signPayload(payload, testSigningSecret, time.Now()))
	w = httptest.NewRecorder()
	h.HandleStripeWebhook(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("redelivery: status = %d, want 200", w.Result().StatusCode)
	}
	if billing.calls != 2 {
		t.Errorf("billing handler calls = %d, want 2", billing.calls)
	}
}

func TestWebhookHandler_MissingSignature_Returns400(t *testing.T) {
	billing := &mockBillingHandler{}
	h := NewWebhookHandler(testSigningSecret, 65536, webhook.NewMemoryGuard(), billing, nil)

	payload := eventPayload(t, "evt_1", "customer.subscription.updated")
	req := newWebhookRequest(payload, "")
	w := httptest.NewRecorder()

	h.HandleStripeWebhook(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}

	var resp apiErrorResponse
	json.NewDecoder(w.Result().Body).Decode(&resp)
	if resp.Code != model.ErrCodeWebhookSignatureMissing {
		t.Errorf("code = %q, want %q", resp.Code, model.ErrCodeWebhookSignatureMissing)
	}
	if billing.calls != 0 {
		t.Errorf("billing handler calls = %d, want 0", billing.calls)
	}
}

func TestWebhookHandler_InvalidSignature_Returns400(t *testing.T) {
	billing := &mockBillingHandler{}
	h := NewWebhookHandler(testSigningSecret, 65536, webhook.NewMemoryGuard(), billing, nil)

	payload := eventPayload(t, "evt_1", "customer.subscription.updated")
	// 別のシークレットで署名する
	req := newWebhookRequest(payload, signPayload(payload, "whsec_wrong_secret", time.Now()))
	w := httptest.NewRecorder()

	h.HandleStripeWebhook(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}

	var resp apiErrorResponse
	json.NewDecoder(w.Result().Body).Decode(&resp)
	if resp.Code != model.ErrCodeWebhookSignatureInvalid {
		t.Errorf("code = %q, want %q", resp.Code, model.ErrCodeWebhookSignatureInvalid)
	}
	if billing.calls != 0 {
		t.Errorf("billing handler calls = %d, want 0", billing.calls)
	}
}

func TestWebhookHandler_StaleTimestamp_Returns400(t *testing.T) {
	billing := &mockBillingHandler{}
	h := NewWebhookHandler(testSigningSecret, 65536, webhook.NewMemoryGuard(), billing, nil)

	payload := eventPayload(t, "evt_1", "customer.subscription.updated")
	// 許容範囲（300秒）を超えた古いタイムスタンプで署名する
	req := newWebhookRequest(payload, signPayload(payload, testSigningSecret, time.Now().Add(-time.Hour)))
	w := httptest.NewRecorder()

	h.HandleStripeWebhook(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestWebhookHandler_OversizedBody_Returns400(t *testing.T) {
	billing := &mockBillingHandler{}
	h := NewWebhookHandler(testSigningSecret, 64, webhook.NewMemoryGuard(), billing, nil)

	payload := eventPayload(t, "evt_oversized", "customer.subscription.updated")
	req := newWebhookRequest(payload, signPayload(payload, testSigningSecret, time.Now()))
	w := httptest.NewRecorder()

	h.HandleStripeWebhook(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
	if billing.calls != 0 {
		t.Errorf("billing handler calls = %d, want 0", billing.calls)
	}
}
