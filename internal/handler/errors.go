package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/paymatch/api/internal/model"
)

// apiErrorResponse は統一エラーレスポンスのボディ。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeMissingToken, model.ErrCodeInvalidRequest,
		model.ErrCodeInvalidEmail, model.ErrCodeInvalidEmailType:
		return http.StatusBadRequest
	case model.ErrCodeInvalidToken, model.ErrCodeSubscriberNotFound:
		return http.StatusNotFound
	case model.ErrCodeConsentNotGranted:
		return http.StatusConflict
	case model.ErrCodeWebhookSignatureMissing, model.ErrCodeWebhookSignatureInvalid,
		model.ErrCodeWebhookHandlerFailed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
