// Package model はドメインモデルを定義する。
package model

import "time"

// EmailType はメール配信カテゴリを表す。
// 配信停止はカテゴリ単位で行われる。
type EmailType string

const (
	// EmailTypeNewsletter はニュースレター配信を示す。
	EmailTypeNewsletter EmailType = "newsletter"
	// EmailTypeProduct はプロダクトアップデート配信を示す。
	EmailTypeProduct EmailType = "product"
	// EmailTypeSupport はサポート関連の配信を示す。
	EmailTypeSupport EmailType = "support"
	// EmailTypeTransactional はトランザクションメールを示す。
	// 請求書送付通知など、法的に必要な配信カテゴリ。
	EmailTypeTransactional EmailType = "transactional"
)

// IsValidEmailType は配信カテゴリが定義済みかどうかを検証する。
func IsValidEmailType(t string) bool {
	switch EmailType(t) {
	case EmailTypeNewsletter, EmailTypeProduct, EmailTypeSupport, EmailTypeTransactional:
		return true
	default:
		return false
	}
}

// Subscriber はメール配信の購読者を表す。
// (Email, EmailType) の組み合わせごとに1レコードのみ存在する。
// レコードは監査・コンプライアンス目的で物理削除されず、
// 配信停止時はIsActiveフラグをfalseに反転する。
type Subscriber struct {
	ID               string
	Email            string
	FirstName        string
	LastName         string
	EmailType        EmailType
	IsActive         bool
	UnsubscribeToken string
	SubscribedAt     time.Time
	UnsubscribedAt   *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ConsentType は同意の種別を表す。
type ConsentType string

const (
	// ConsentTypeMarketing はマーケティング配信への同意を示す。
	ConsentTypeMarketing ConsentType = "marketing"
	// ConsentTypeAnalytics は分析目的のデータ利用への同意を示す。
	ConsentTypeAnalytics ConsentType = "analytics"
)

// ConsentRecord は同意の付与・撤回の監査証跡を表す。
// レコードは追記専用であり、書き込み後に変更されることはない。
// 撤回レコードはWithdrawalOfで先行する付与レコードを参照する。
type ConsentRecord struct {
	ID                   string
	SubscriberID         string
	ConsentType          ConsentType
	ConsentGiven         bool
	ConsentDate          time.Time
	WithdrawalOf         *string
	Method               string
	Source               string
	PrivacyPolicyVersion string
	CreatedAt            time.Time
}
