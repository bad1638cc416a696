// Package consent は同意監査証跡のドメインロジックを提供する。
//
// 同意レコードは追記専用の監査証跡であり、書き込み後に変更されることはない。
// 新しいレコードの追記によってのみ最新状態が更新される。
package consent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/paymatch/api/internal/model"
	"github.com/paymatch/api/internal/repository"
)

// Service は同意の付与・撤回のビジネスロジックを提供する。
type Service struct {
	consentRepo repository.ConsentRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(consentRepo repository.ConsentRepository) *Service {
	return &Service{consentRepo: consentRepo}
}

// RecordGrant は同意付与レコードを追記する。
func (s *Service) RecordGrant(ctx context.Context, subscriberID string, consentType model.ConsentType, method, source, policyVersion string) (*model.ConsentRecord, error) {
	now := time.Now()
	record := &model.ConsentRecord{
		ID:                   uuid.New().String(),
		SubscriberID:         subscriberID,
		ConsentType:          consentType,
		ConsentGiven:         true,
		ConsentDate:          now,
		Method:               method,
		Source:               source,
		PrivacyPolicyVersion: policyVersion,
		CreatedAt:            now,
	}

	if err := s.consentRepo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("同意付与レコードの追記に失敗しました: %w", err)
	}

	return record, nil
}

// RecordWithdrawal は同意撤回レコードを追記する。
// 撤回は必ず先行する付与レコードを参照しなければならない。
// 有効な付与が存在しない場合はConsentNotGrantedエラーを返す。
func (s *Service) RecordWithdrawal(ctx context.Context, subscriberID string, consentType model.ConsentType, method, source string) (*model.ConsentRecord, error) {
	latest, err := s.consentRepo.FindLatest(ctx, subscriberID, consentType)
	if err != nil {
		return nil, fmt.Errorf("最新の同意レコードの取得に失敗しました: %w", err)
	}
	if latest == nil || !latest.ConsentGiven {
		return nil, model.NewConsentNotGrantedError(string(consentType))
	}

	now := time.Now()
	grantID := latest.ID
	record := &model.ConsentRecord{
		ID:           uuid.New().String(),
		SubscriberID: subscriberID,
		ConsentType:  consentType,
		ConsentGiven: false,
		ConsentDate:  now,
		WithdrawalOf: &grantID,
		Method:       method,
		Source:       source,
		// 撤回時は付与時のポリシーバージョンを引き継ぐ
		PrivacyPolicyVersion: latest.PrivacyPolicyVersion,
		CreatedAt:            now,
	}

	if err := s.consentRepo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("同意撤回レコードの追記に失敗しました: %w", err)
	}

	return record, nil
}

// LatestGrant は指定購読者・種別の現在有効な同意付与レコードを返す。
// 最新レコードが撤回の場合はnilを返す。
func (s *Service) LatestGrant(ctx context.Context, subscriberID string, consentType model.ConsentType) (*model.ConsentRecord, error) {
	latest, err := s.consentRepo.FindLatest(ctx, subscriberID, consentType)
	if err != nil {
		return nil, fmt.Errorf("最新の同意レコードの取得に失敗しました: %w", err)
	}
	if latest == nil || !latest.ConsentGiven {
		return nil, nil
	}
	return latest, nil
}

// History は指定購読者の同意履歴を新しい順に返す。
func (s *Service) History(ctx context.Context, subscriberID string) ([]*model.ConsentRecord, error) {
	records, err := s.consentRepo.ListBySubscriber(ctx, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("同意履歴の取得に失敗しました: %w", err)
	}
	return records, nil
}
