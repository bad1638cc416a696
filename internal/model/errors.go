// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, consent, webhook, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeMissingToken            = "MISSING_TOKEN"
	ErrCodeInvalidToken            = "INVALID_TOKEN"
	ErrCodeInvalidEmail            = "INVALID_EMAIL"
	ErrCodeInvalidEmailType        = "INVALID_EMAIL_TYPE"
	ErrCodeInvalidRequest          = "INVALID_REQUEST"
	ErrCodeSubscriberNotFound      = "SUBSCRIBER_NOT_FOUND"
	ErrCodeConsentNotGranted       = "CONSENT_NOT_GRANTED"
	ErrCodeWebhookSignatureMissing = "WEBHOOK_SIGNATURE_MISSING"
	ErrCodeWebhookSignatureInvalid = "WEBHOOK_SIGNATURE_INVALID"
	ErrCodeWebhookHandlerFailed    = "WEBHOOK_HANDLER_FAILED"
)

// NewMissingTokenError はトークン未指定エラーを生成する。
func NewMissingTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingToken,
		Message:  "配信停止トークンが指定されていません。",
		Category: "validation",
		Action:   "メール内の配信停止リンクからアクセスしてください。",
	}
}

// NewInvalidTokenError は無効なトークンエラーを生成する。
// トークンがどの購読者にも解決できない場合に使用する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "配信停止トークンが無効です。",
		Category: "validation",
		Action:   "メール内の配信停止リンクが正しいか確認してください。リンクが古い場合は最新のメールをご利用ください。",
	}
}

// NewInvalidEmailError は無効なメールアドレスエラーを生成する。
func NewInvalidEmailError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  fmt.Sprintf("無効なメールアドレスです: %s", email),
		Category: "validation",
		Action:   "正しい形式のメールアドレスを入力してください。",
	}
}

// NewInvalidEmailTypeError は無効な配信カテゴリエラーを生成する。
func NewInvalidEmailTypeError(emailType string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmailType,
		Message:  fmt.Sprintf("無効な配信カテゴリです: %s", emailType),
		Category: "validation",
		Action:   "配信カテゴリには newsletter、product、support、transactional のいずれかを指定してください。",
	}
}

// NewInvalidRequestError はリクエスト解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewSubscriberNotFoundError は購読者未検出エラーを生成する。
func NewSubscriberNotFoundError(subscriberID string) *APIError {
	return &APIError{
		Code:     ErrCodeSubscriberNotFound,
		Message:  fmt.Sprintf("指定された購読者が見つかりません: %s", subscriberID),
		Category: "validation",
		Action:   "購読者IDを確認してください。",
	}
}

// NewConsentNotGrantedError は先行する同意付与が存在しない場合のエラーを生成する。
// 同意の撤回は必ず先行する付与レコードを参照しなければならない。
func NewConsentNotGrantedError(consentType string) *APIError {
	return &APIError{
		Code:     ErrCodeConsentNotGranted,
		Message:  fmt.Sprintf("撤回対象の同意が付与されていません: %s", consentType),
		Category: "consent",
		Action:   "同意の撤回は、付与済みの同意に対してのみ実行できます。",
	}
}

// NewWebhookSignatureMissingError は署名ヘッダー欠落エラーを生成する。
func NewWebhookSignatureMissingError() *APIError {
	return &APIError{
		Code:     ErrCodeWebhookSignatureMissing,
		Message:  "Webhook署名ヘッダーがありません。",
		Category: "webhook",
		Action:   "Stripe-Signatureヘッダーを含むリクエストを送信してください。",
	}
}

// NewWebhookSignatureInvalidError は署名検証失敗エラーを生成する。
func NewWebhookSignatureInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeWebhookSignatureInvalid,
		Message:  "Webhook署名の検証に失敗しました。",
		Category: "webhook",
		Action:   "Webhookエンドポイントの署名シークレットが正しいか確認してください。",
	}
}

// NewWebhookHandlerFailedError はWebhookハンドラー失敗エラーを生成する。
// イベントは未処理のまま残るため、プロバイダーの再送により再試行される。
func NewWebhookHandlerFailedError(eventType string) *APIError {
	return &APIError{
		Code:     ErrCodeWebhookHandlerFailed,
		Message:  fmt.Sprintf("Webhookイベントの処理に失敗しました: %s", eventType),
		Category: "webhook",
		Action:   "イベントはプロバイダーにより再送されます。失敗が継続する場合はログを確認してください。",
	}
}
