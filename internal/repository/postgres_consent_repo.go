package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/paymatch/api/internal/model"
)

// PostgresConsentRepo はPostgreSQLを使用した同意監査証跡リポジトリ。
// consent_recordsテーブルは追記専用であり、UPDATE/DELETEは発行しない。
type PostgresConsentRepo struct {
	db *sql.DB
}

// NewPostgresConsentRepo はPostgresConsentRepoを生成する。
func NewPostgresConsentRepo(db *sql.DB) *PostgresConsentRepo {
	return &PostgresConsentRepo{db: db}
}

const consentColumns = `id, subscriber_id, consent_type, consent_given, consent_date,
	 withdrawal_of, method, source, privacy_policy_version, created_at`

// Create は同意レコードを追記する。
func (r *PostgresConsentRepo) Create(ctx context.Context, record *model.ConsentRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO consent_records
		 (id, subscriber_id, consent_type, consent_given, consent_date,
		  withdrawal_of, method, source, privacy_policy_version, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		record.ID, record.SubscriberID, record.ConsentType, record.ConsentGiven,
		record.ConsentDate, record.WithdrawalOf, record.Method, record.Source,
		record.PrivacyPolicyVersion, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("同意レコードの追記に失敗しました: %w", err)
	}
	return nil
}

// FindLatest は指定購読者・種別の最新の同意レコードを返す。見つからない場合はnilを返す。
func (r *PostgresConsentRepo) FindLatest(ctx context.Context, subscriberID string, consentType model.ConsentType) (*model.ConsentRecord, error) {
	record := &model.ConsentRecord{}
	err := r.db.QueryRowContext(ctx,
		`SELECT `+consentColumns+`
		 FROM consent_records
		 WHERE subscriber_id = $1 AND consent_type = $2
		 ORDER BY consent_date DESC, created_at DESC
		 LIMIT 1`,
		subscriberID, consentType,
	).Scan(
		&record.ID, &record.SubscriberID, &record.ConsentType, &record.ConsentGiven,
		&record.ConsentDate, &record.WithdrawalOf, &record.Method, &record.Source,
		&record.PrivacyPolicyVersion, &record.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("最新の同意レコードの取得に失敗しました: %w", err)
	}
	return record, nil
}

// ListBySubscriber は指定購読者の同意履歴を新しい順に返す。
func (r *PostgresConsentRepo) ListBySubscriber(ctx context.Context, subscriberID string) ([]*model.ConsentRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+consentColumns+`
		 FROM consent_records
		 WHERE subscriber_id = $1
		 ORDER BY consent_date DESC, created_at DESC`,
		subscriberID,
	)
	if err != nil {
		return nil, fmt.Errorf("同意履歴の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var records []*model.ConsentRecord
	for rows.Next() {
		record := &model.ConsentRecord{}
		if err := rows.Scan(
			&record.ID, &record.SubscriberID, &record.ConsentType, &record.ConsentGiven,
			&record.ConsentDate, &record.WithdrawalOf, &record.Method, &record.Source,
			&record.PrivacyPolicyVersion, &record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("同意レコード行の読み取りに失敗しました: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("同意履歴の走査に失敗しました: %w", err)
	}
	return records, nil
}

// compile-time interface check
var _ ConsentRepository = (*PostgresConsentRepo)(nil)
