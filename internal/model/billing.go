package model

import "time"

// BillingStatus はStripeサブスクリプションの状態を表す。
type BillingStatus string

const (
	// BillingStatusActive は有効なサブスクリプションを示す。
	BillingStatusActive BillingStatus = "active"
	// BillingStatusPastDue は支払い遅延中のサブスクリプションを示す。
	BillingStatusPastDue BillingStatus = "past_due"
	// BillingStatusCanceled は解約済みのサブスクリプションを示す。
	BillingStatusCanceled BillingStatus = "canceled"
)

// BillingSubscription はStripe Webhookから同期される課金サブスクリプションを表す。
// Stripe側を信頼できる唯一の情報源とし、Webhookイベントの適用によってのみ更新される。
type BillingSubscription struct {
	ID                   string
	StripeCustomerID     string
	StripeSubscriptionID string
	Plan                 string
	Status               BillingStatus
	CurrentPeriodEnd     *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
