// Package billing はStripe Webhookイベントを課金サブスクリプションの状態に反映する。
//
// 課金状態の正はStripe側にあり、ローカルのbilling_subscriptionsテーブルは
// Webhookイベントの適用によってのみ更新される読み取りレプリカとして扱う。
package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v78"

	"github.com/paymatch/api/internal/model"
	"github.com/paymatch/api/internal/repository"
)

// Service はStripe Webhookイベントのディスパッチャ。
type Service struct {
	repo repository.BillingRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.BillingRepository) *Service {
	return &Service{repo: repo}
}

// HandleEvent は検証済みのStripeイベントを種別ごとのハンドラに振り分ける。
// 未対応のイベント種別はログに記録して成功として扱う（プロバイダに
// 再送させても処理できるようにはならないため）。
func (s *Service) HandleEvent(ctx context.Context, event stripe.Event) error {
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		return s.handleCheckoutCompleted(ctx, event)
	case stripe.EventTypeCustomerSubscriptionUpdated:
		return s.handleSubscriptionUpdated(ctx, event)
	case stripe.EventTypeCustomerSubscriptionDeleted:
		return s.handleSubscriptionDeleted(ctx, event)
	case stripe.EventTypeInvoicePaymentFailed:
		return s.handlePaymentFailed(ctx, event)
	default:
		slog.Info("unhandled stripe event type",
			slog.String("event_id", event.ID),
			slog.String("event_type", string(event.Type)),
		)
		return nil
	}
}

// handleCheckoutCompleted はチェックアウト完了イベントを適用する。
// サブスクリプションを伴わないセッション（単発決済）は対象外として成功を返す。
func (s *Service) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return fmt.Errorf("checkout.sessionペイロードの解析に失敗しました: %w", err)
	}

	if session.Subscription == nil {
		slog.Info("checkout session without subscription",
			slog.String("event_id", event.ID),
			slog.String("session_id", session.ID),
		)
		return nil
	}

	now := time.Now()
	sub := &model.BillingSubscription{
		ID:                   uuid.New().String(),
		StripeSubscriptionID: session.Subscription.ID,
		Status:               model.BillingStatusActive,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if session.Customer != nil {
		sub.StripeCustomerID = session.Customer.ID
	}

	if err := s.repo.Upsert(ctx, sub); err != nil {
		return err
	}

	slog.Info("billing subscription activated",
		slog.String("event_id", event.ID),
		slog.String("stripe_subscription_id", sub.StripeSubscriptionID),
	)
	return nil
}

// handleSubscriptionUpdated はサブスクリプション更新イベントを適用する。
func (s *Service) handleSubscriptionUpdated(ctx context.Context, event stripe.Event) error {
	var stripeSub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
		return fmt.Errorf("subscriptionペイロードの解析に失敗しました: %w", err)
	}

	now := time.Now()
	sub := &model.BillingSubscription{
		ID:                   uuid.New().String(),
		StripeSubscriptionID: stripeSub.ID,
		Plan:                 planOf(&stripeSub),
		Status:               mapStatus(stripeSub.Status),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if stripeSub.Customer != nil {
		sub.StripeCustomerID = stripeSub.Customer.ID
	}
	if stripeSub.CurrentPeriodEnd > 0 {
		periodEnd := time.Unix(stripeSub.CurrentPeriodEnd, 0).UTC()
		sub.CurrentPeriodEnd = &periodEnd
	}

	if err := s.repo.Upsert(ctx, sub); err != nil {
		return err
	}

	slog.Info("billing subscription updated",
		slog.String("event_id", event.ID),
		slog.String("stripe_subscription_id", sub.StripeSubscriptionID),
		slog.String("status", string(sub.Status)),
	)
	return nil
}

// handleSubscriptionDeleted はサブスクリプション削除イベントを適用する。
// 対応するローカルレコードが存在しない場合は警告を記録して成功を返す
// （再送で解決できる状態ではないため）。
func (s *Service) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) error {
	var stripeSub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
		return fmt.Errorf("subscriptionペイロードの解析に失敗しました: %w", err)
	}

	return s.markStatus(ctx, event.ID, stripeSub.ID, model.BillingStatusCanceled)
}

// handlePaymentFailed は支払い失敗イベントを適用する。
func (s *Service) handlePaymentFailed(ctx context.Context, event stripe.Event) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return fmt.Errorf("invoiceペイロードの解析に失敗しました: %w", err)
	}

	if invoice.Subscription == nil {
		slog.Info("payment failure without subscription",
			slog.String("event_id", event.ID),
		)
		return nil
	}

	return s.markStatus(ctx, event.ID, invoice.Subscription.ID, model.BillingStatusPastDue)
}

// markStatus はローカルレコードの状態を更新する。レコードが存在しない場合は
// 警告のみ記録して成功を返す。
func (s *Service) markStatus(ctx context.Context, eventID, stripeSubID string, status model.BillingStatus) error {
	existing, err := s.repo.FindByStripeSubscriptionID(ctx, stripeSubID)
	if err != nil {
		return err
	}
	if existing == nil {
		slog.Warn("billing event for unknown subscription",
			slog.String("event_id", eventID),
			slog.String("stripe_subscription_id", stripeSubID),
			slog.String("status", string(status)),
		)
		return nil
	}

	if err := s.repo.UpdateStatus(ctx, stripeSubID, status); err != nil {
		return err
	}

	slog.Info("billing subscription status changed",
		slog.String("event_id", eventID),
		slog.String("stripe_subscription_id", stripeSubID),
		slog.String("status", string(status)),
	)
	return nil
}

// mapStatus はStripeのサブスクリプション状態をローカルの状態に正規化する。
func mapStatus(status stripe.SubscriptionStatus) model.BillingStatus {
	switch status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return model.BillingStatusActive
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
		return model.BillingStatusPastDue
	default:
		return model.BillingStatusCanceled
	}
}

// planOf はサブスクリプションの最初の品目から価格IDを取り出す。
func planOf(sub *stripe.Subscription) string {
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return ""
	}
	item := sub.Items.Data[0]
	if item.Price == nil {
		return ""
	}
	return item.Price.ID
}
