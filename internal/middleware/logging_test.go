package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestLoggingMiddleware_LogsRequestFields はリクエストログに必要なフィールドが含まれることを検証する。
func TestLoggingMiddleware_LogsRequestFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	handler := NewLoggingMiddleware(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/email/unsubscribe", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v\nraw: %s", err, buf.String())
	}

	// 必須フィールドの検証
	if entry["method"] != "GET" {
		t.Errorf("method = %q, want %q", entry["method"], "GET")
	}
	if entry["path"] != "/api/email/unsubscribe" {
		t.Errorf("path = %q, want %q", entry["path"], "/api/email/unsubscribe")
	}
	if status, ok := entry["status"].(float64); !ok || status != 200 {
		t.Errorf("status = %v, want 200", entry["status"])
	}
	if _, ok := entry["duration_ms"]; !ok {
		t.Error("expected 'duration_ms' field in log entry")
	}
}

// TestLoggingMiddleware_ErrorLevelFor5xx は5xxレスポンスがERRORレベルで記録されることを検証する。
func TestLoggingMiddleware_ErrorLevelFor5xx(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	handler := NewLoggingMiddleware(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v", err)
	}

	if entry["level"] != "ERROR" {
		t.Errorf("level = %q, want %q", entry["level"], "ERROR")
	}
}

// mockStatusCollector はRecordHTTPStatusの呼び出しを記録するモック。
type mockStatusCollector struct {
	statuses []int
}

func (m *mockStatusCollector) RecordSubscribe(emailType string)             {}
func (m *mockStatusCollector) RecordUnsubscribe(alreadyUnsubscribed bool)   {}
func (m *mockStatusCollector) RecordWebhookReceived(eventType string)       {}
func (m *mockStatusCollector) RecordWebhookProcessed(eventType string)      {}
func (m *mockStatusCollector) RecordWebhookSkipped()                        {}
func (m *mockStatusCollector) RecordWebhookFailed(eventType string)         {}
func (m *mockStatusCollector) RecordHTTPStatus(statusCode int)              { m.statuses = append(m.statuses, statusCode) }

// TestLoggingMiddleware_RecordsStatusMetric はステータスコードがコレクターに記録されることを検証する。
func TestLoggingMiddleware_RecordsStatusMetric(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	collector := &mockStatusCollector{}

	handler := NewLoggingMiddleware(logger, collector)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/email/unsubscribe", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if len(collector.statuses) != 1 || collector.statuses[0] != http.StatusNotFound {
		t.Errorf("recorded statuses = %v, want [404]", collector.statuses)
	}
}
