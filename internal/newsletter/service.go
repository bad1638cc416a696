// Package newsletter はメール購読と配信停止のドメインロジックを提供する。
//
// 購読者の状態遷移は配信カテゴリ単位で
// Active -> (unsubscribe) -> Inactive -> (再subscribe) -> Active のみが有効であり、
// 保留や一時停止といった中間状態は存在しない。
package newsletter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/paymatch/api/internal/metrics"
	"github.com/paymatch/api/internal/model"
	"github.com/paymatch/api/internal/repository"
	"github.com/paymatch/api/internal/security"
	"github.com/paymatch/api/internal/token"
)

// ConsentRecorder は購読・配信停止に伴う同意証跡の記録インターフェース。
// consent.Serviceの部分集合として定義する。
type ConsentRecorder interface {
	// RecordGrant は同意付与レコードを追記する。
	RecordGrant(ctx context.Context, subscriberID string, consentType model.ConsentType, method, source, policyVersion string) (*model.ConsentRecord, error)
	// RecordWithdrawal は同意撤回レコードを追記する。
	RecordWithdrawal(ctx context.Context, subscriberID string, consentType model.ConsentType, method, source string) (*model.ConsentRecord, error)
}

// SubscribeInput は購読登録の入力を表す。
type SubscribeInput struct {
	Email                string
	FirstName            string
	LastName             string
	EmailType            string
	Source               string
	PrivacyPolicyVersion string
}

// SubscriberView は購読者の表示用フィールドを表す。
// 配信停止トークンは含めない。
type SubscriberView struct {
	Email          string
	FirstName      string
	LastName       string
	EmailType      model.EmailType
	IsActive       bool
	SubscribedAt   time.Time
	UnsubscribedAt *time.Time
}

// SubscribeResult は購読登録の結果を表す。
// Unsubscribeには配信メールに埋め込む配信停止URLとヘッダー値が入る。
type SubscribeResult struct {
	Subscriber        SubscriberView
	AlreadySubscribed bool
	Unsubscribe       UnsubscribeLinks
}

// UnsubscribeResult は配信停止の結果を表す。
type UnsubscribeResult struct {
	AlreadyUnsubscribed bool
	Email               string
	EmailType           model.EmailType
}

// Service は購読管理のサービス層。
// 購読登録、購読者情報取得、配信停止のビジネスロジックを提供する。
type Service struct {
	subRepo   repository.SubscriberRepository
	codec     *token.Codec
	consents  ConsentRecorder
	sanitizer security.InputSanitizerService
	links     *LinkBuilder
	collector metrics.MetricsCollector
}

// NewService はServiceの新しいインスタンスを生成する。
// collectorはnil可（メトリクス収集なしで動作する）。
func NewService(
	subRepo repository.SubscriberRepository,
	codec *token.Codec,
	consents ConsentRecorder,
	sanitizer security.InputSanitizerService,
	links *LinkBuilder,
	collector metrics.MetricsCollector,
) *Service {
	return &Service{
		subRepo:   subRepo,
		codec:     codec,
		consents:  consents,
		sanitizer: sanitizer,
		links:     links,
		collector: collector,
	}
}

// Subscribe は購読者を登録する。
// (email, email_type)の既存レコードが存在する場合:
//   - アクティブならそのまま成功を返す（冪等、AlreadySubscribed=true）
//   - 配信停止済みなら再有効化し、新しい同意付与を記録する
//
// 新規の場合はトークンを発行してレコードを作成し、同意付与を記録する。
func (s *Service) Subscribe(ctx context.Context, input SubscribeInput) (*SubscribeResult, error) {
	// 1. 入力バリデーション
	addr, err := mail.ParseAddress(input.Email)
	if err != nil || addr.Address != input.Email {
		return nil, model.NewInvalidEmailError(input.Email)
	}
	if !model.IsValidEmailType(input.EmailType) {
		return nil, model.NewInvalidEmailTypeError(input.EmailType)
	}
	emailType := model.EmailType(input.EmailType)

	// 2. 表示名のサニタイズ（保存データ経由のXSS対策）
	firstName := s.sanitizer.Sanitize(input.FirstName)
	lastName := s.sanitizer.Sanitize(input.LastName)

	// 3. 既存レコードの確認
	existing, err := s.subRepo.FindByEmailAndType(ctx, input.Email, emailType)
	if err != nil {
		return nil, fmt.Errorf("既存購読者の検索に失敗しました: %w", err)
	}

	if existing != nil {
		return s.subscribeExisting(ctx, existing, input)
	}

	// 4. 新規作成: トークンを発行してレコードを作成
	tok, err := s.codec.Issue()
	if err != nil {
		return nil, fmt.Errorf("配信停止トークンの発行に失敗しました: %w", err)
	}

	now := time.Now()
	sub := &model.Subscriber{
		ID:               uuid.New().String(),
		Email:            input.Email,
		FirstName:        firstName,
		LastName:         lastName,
		EmailType:        emailType,
		IsActive:         true,
		UnsubscribeToken: tok,
		SubscribedAt:     now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.subRepo.Create(ctx, sub); err != nil {
		if errors.Is(err, repository.ErrDuplicateSubscriber) {
			// 並行するSubscribeが先に同一キーで作成した場合。
			// 勝者のレコードを取得して既存レコードの経路で冪等に処理する。
			winner, findErr := s.subRepo.FindByEmailAndType(ctx, input.Email, emailType)
			if findErr != nil {
				return nil, fmt.Errorf("既存購読者の検索に失敗しました: %w", findErr)
			}
			if winner == nil {
				return nil, fmt.Errorf("購読者の作成に失敗しました: %w", err)
			}
			return s.subscribeExisting(ctx, winner, input)
		}
		return nil, fmt.Errorf("購読者の作成に失敗しました: %w", err)
	}

	if _, err := s.consents.RecordGrant(ctx, sub.ID, model.ConsentTypeMarketing, "subscribe_form", input.Source, input.PrivacyPolicyVersion); err != nil {
		return nil, fmt.Errorf("同意付与の記録に失敗しました: %w", err)
	}

	slog.Info("subscriber created",
		slog.String("subscriber_id", sub.ID),
		slog.String("email_type", string(emailType)),
	)

	if s.collector != nil {
		s.collector.RecordSubscribe(string(emailType))
	}

	return &SubscribeResult{
		Subscriber:  toView(sub),
		Unsubscribe: s.links.Links(sub.UnsubscribeToken),
	}, nil
}

// subscribeExisting は既存レコードに対する購読登録を処理する。
// アクティブならそのまま成功を返し（冪等）、配信停止済みなら再有効化する。
func (s *Service) subscribeExisting(ctx context.Context, existing *model.Subscriber, input SubscribeInput) (*SubscribeResult, error) {
	links := s.links.Links(existing.UnsubscribeToken)

	if existing.IsActive {
		// すでに購読中: 冪等に成功を返す
		return &SubscribeResult{
			Subscriber:        toView(existing),
			AlreadySubscribed: true,
			Unsubscribe:       links,
		}, nil
	}

	// 配信停止済み: 同一レコードを再有効化する（Inactive -> Active）
	if err := s.subRepo.Reactivate(ctx, existing.ID); err != nil {
		return nil, fmt.Errorf("購読者の再有効化に失敗しました: %w", err)
	}

	if _, err := s.consents.RecordGrant(ctx, existing.ID, model.ConsentTypeMarketing, "resubscribe", input.Source, input.PrivacyPolicyVersion); err != nil {
		return nil, fmt.Errorf("同意付与の記録に失敗しました: %w", err)
	}

	slog.Info("subscriber reactivated",
		slog.String("subscriber_id", existing.ID),
		slog.String("email_type", string(existing.EmailType)),
	)

	if s.collector != nil {
		s.collector.RecordSubscribe(string(existing.EmailType))
	}

	reactivated, err := s.subRepo.FindByEmailAndType(ctx, existing.Email, existing.EmailType)
	if err != nil || reactivated == nil {
		return nil, fmt.Errorf("再有効化後の購読者の取得に失敗しました: %w", err)
	}
	return &SubscribeResult{
		Subscriber:  toView(reactivated),
		Unsubscribe: links,
	}, nil
}

// GetSubscriberInfo はトークンから購読者の表示情報を取得する。
// 副作用はなく、何度呼び出しても結果は変わらない。
// トークンが解決できない場合はInvalidTokenエラーを返す。
func (s *Service) GetSubscriberInfo(ctx context.Context, tok string) (*SubscriberView, error) {
	sub, err := s.codec.Resolve(ctx, tok)
	if err != nil {
		return nil, err
	}

	view := toView(sub)
	return &view, nil
}

// HandleUnsubscribe はトークンで特定される購読者を配信停止にする。
// すでに停止済みの場合はエラーにせず、AlreadyUnsubscribed=trueで成功を返す（冪等）。
// 反転は単一の条件付きUPDATEで行われ、同一トークンへの並行呼び出しでも
// 不整合を起こさない。
func (s *Service) HandleUnsubscribe(ctx context.Context, tok string) (*UnsubscribeResult, error) {
	sub, err := s.codec.Resolve(ctx, tok)
	if err != nil {
		return nil, err
	}

	flipped, err := s.subRepo.Deactivate(ctx, tok)
	if err != nil {
		return nil, fmt.Errorf("配信停止の適用に失敗しました: %w", err)
	}

	result := &UnsubscribeResult{
		AlreadyUnsubscribed: !flipped,
		Email:               sub.Email,
		EmailType:           sub.EmailType,
	}

	if flipped {
		// 同意撤回の証跡を記録する。
		// 同意付与の記録が存在しない過去データでは撤回を記録できないが、
		// 配信停止自体は成立しているため失敗として扱わない。
		if _, err := s.consents.RecordWithdrawal(ctx, sub.ID, model.ConsentTypeMarketing, "unsubscribe_link", "email"); err != nil {
			var apiErr *model.APIError
			if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeConsentNotGranted {
				slog.Warn("no prior consent grant for unsubscribed subscriber",
					slog.String("subscriber_id", sub.ID),
				)
			} else {
				return nil, fmt.Errorf("同意撤回の記録に失敗しました: %w", err)
			}
		}

		slog.Info("subscriber unsubscribed",
			slog.String("subscriber_id", sub.ID),
			slog.String("email_type", string(sub.EmailType)),
		)
	}

	if s.collector != nil {
		s.collector.RecordUnsubscribe(result.AlreadyUnsubscribed)
	}

	return result, nil
}

// toView は購読者モデルから表示用フィールドに変換する。
// HandleUnsubscribe直後の呼び出しでも最新のフラグを反映できるよう、
// Deactivate済みかどうかはモデルの値をそのまま使用する。
func toView(sub *model.Subscriber) SubscriberView {
	return SubscriberView{
		Email:          sub.Email,
		FirstName:      sub.FirstName,
		LastName:       sub.LastName,
		EmailType:      sub.EmailType,
		IsActive:       sub.IsActive,
		SubscribedAt:   sub.SubscribedAt,
		UnsubscribedAt: sub.UnsubscribedAt,
	}
}
