package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/paymatch/api/internal/model"
)

// PostgresBillingRepo はPostgreSQLを使用した課金サブスクリプションリポジトリ。
type PostgresBillingRepo struct {
	db *sql.DB
}

// NewPostgresBillingRepo はPostgresBillingRepoを生成する。
func NewPostgresBillingRepo(db *sql.DB) *PostgresBillingRepo {
	return &PostgresBillingRepo{db: db}
}

// FindByStripeSubscriptionID はStripeサブスクリプションIDで検索する。見つからない場合はnilを返す。
func (r *PostgresBillingRepo) FindByStripeSubscriptionID(ctx context.Context, stripeSubID string) (*model.BillingSubscription, error) {
	sub := &model.BillingSubscription{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, stripe_customer_id, stripe_subscription_id, plan, status,
		        current_period_end, created_at, updated_at
		 FROM billing_subscriptions
		 WHERE stripe_subscription_id = $1`,
		stripeSubID,
	).Scan(
		&sub.ID, &sub.StripeCustomerID, &sub.StripeSubscriptionID, &sub.Plan,
		&sub.Status, &sub.CurrentPeriodEnd, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("課金サブスクリプションの検索に失敗しました: %w", err)
	}
	return sub, nil
}

// Upsert はStripeサブスクリプションIDをキーに作成または更新する。
// Webhookイベントの到着順序は保証されないため、既存行の有無に依存しない書き込みを行う。
// planとcurrent_period_endは空値で既存の値を上書きしない
// （checkout.session.completedはどちらも持たないため、順序逆転時に
// customer.subscription.updatedが書いた値を消さないようにする）。
func (r *PostgresBillingRepo) Upsert(ctx context.Context, sub *model.BillingSubscription) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO billing_subscriptions
		 (id, stripe_customer_id, stripe_subscription_id, plan, status,
		  current_period_end, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (stripe_subscription_id) DO UPDATE SET
		   stripe_customer_id = EXCLUDED.stripe_customer_id,
		   plan = COALESCE(NULLIF(EXCLUDED.plan, ''), billing_subscriptions.plan),
		   status = EXCLUDED.status,
		   current_period_end = COALESCE(EXCLUDED.current_period_end, billing_subscriptions.current_period_end),
		   updated_at = NOW()`,
		sub.ID, sub.StripeCustomerID, sub.StripeSubscriptionID, sub.Plan,
		sub.Status, sub.CurrentPeriodEnd, sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("課金サブスクリプションの保存に失敗しました: %w", err)
	}
	return nil
}

// UpdateStatus はStripeサブスクリプションIDで状態を更新する。
func (r *PostgresBillingRepo) UpdateStatus(ctx context.Context, stripeSubID string, status model.BillingStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE billing_subscriptions SET status = $2, updated_at = NOW()
		 WHERE stripe_subscription_id = $1`,
		stripeSubID, status,
	)
	if err != nil {
		return fmt.Errorf("課金サブスクリプション状態の更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("課金サブスクリプションが見つかりません: %s", stripeSubID)
	}
	return nil
}

// compile-time interface check
var _ BillingRepository = (*PostgresBillingRepo)(nil)
