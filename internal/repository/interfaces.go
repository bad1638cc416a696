// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/paymatch/api/internal/model"
)

// ErrDuplicateSubscriber は(email, email_type)の一意制約違反を表す。
// 並行するSubscribeが先に同一キーでレコードを作成した場合にCreateが返す。
var ErrDuplicateSubscriber = errors.New("購読者は既に存在します")

// SubscriberRepository は購読者データの永続化インターフェース。
type SubscriberRepository interface {
	// FindByToken は配信停止トークンで購読者を検索する。
	// トークンは完全一致のみ。見つからない場合はnilを返す。
	FindByToken(ctx context.Context, token string) (*model.Subscriber, error)

	// FindByEmailAndType はメールアドレスと配信カテゴリで購読者を検索する。
	// 見つからない場合はnilを返す。
	FindByEmailAndType(ctx context.Context, email string, emailType model.EmailType) (*model.Subscriber, error)

	// Create は購読者を作成する。
	// (email, email_type)が既に存在する場合はErrDuplicateSubscriberを返す。
	Create(ctx context.Context, sub *model.Subscriber) error

	// Reactivate は配信停止済みの購読者を再有効化する。
	// is_activeをtrueに戻し、subscribed_atを更新、unsubscribed_atをクリアする。
	Reactivate(ctx context.Context, id string) error

	// Deactivate はトークンで特定される購読者を配信停止にする。
	// is_active=trueのレコードに対する単一の条件付きUPDATEであり、
	// 同一トークンへの並行呼び出しでも不整合を起こさない。
	// 実際に反転された場合はtrueを、すでに停止済みだった場合はfalseを返す。
	Deactivate(ctx context.Context, token string) (bool, error)
}

// ConsentRepository は同意監査証跡の永続化インターフェース。
// レコードは追記専用であり、更新・削除操作は提供しない。
type ConsentRepository interface {
	// Create は同意レコードを追記する。
	Create(ctx context.Context, record *model.ConsentRecord) error

	// FindLatest は指定購読者・種別の最新の同意レコードを返す。
	// 見つからない場合はnilを返す。
	FindLatest(ctx context.Context, subscriberID string, consentType model.ConsentType) (*model.ConsentRecord, error)

	// ListBySubscriber は指定購読者の同意履歴を新しい順に返す。
	ListBySubscriber(ctx context.Context, subscriberID string) ([]*model.ConsentRecord, error)
}

// BillingRepository は課金サブスクリプションの永続化インターフェース。
type BillingRepository interface {
	// FindByStripeSubscriptionID はStripeサブスクリプションIDで検索する。
	// 見つからない場合はnilを返す。
	FindByStripeSubscriptionID(ctx context.Context, stripeSubID string) (*model.BillingSubscription, error)

	// Upsert はStripeサブスクリプションIDをキーに作成または更新する。
	Upsert(ctx context.Context, sub *model.BillingSubscription) error

	// UpdateStatus はStripeサブスクリプションIDで状態を更新する。
	UpdateStatus(ctx context.Context, stripeSubID string, status model.BillingStatus) error
}
