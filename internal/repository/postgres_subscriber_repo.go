package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/paymatch/api/internal/model"
)

// PostgresSubscriberRepo はPostgreSQLを使用した購読者リポジトリ。
type PostgresSubscriberRepo struct {
	db *sql.DB
}

// NewPostgresSubscriberRepo はPostgresSubscriberRepoを生成する。
func NewPostgresSubscriberRepo(db *sql.DB) *PostgresSubscriberRepo {
	return &PostgresSubscriberRepo{db: db}
}

const subscriberColumns = `id, email, first_name, last_name, email_type, is_active,
	 unsubscribe_token, subscribed_at, unsubscribed_at, created_at, updated_at`

// scanSubscriber は1行を購読者モデルに読み取る。
func scanSubscriber(row *sql.Row) (*model.Subscriber, error) {
	sub := &model.Subscriber{}
	err := row.Scan(
		&sub.ID, &sub.Email, &sub.FirstName, &sub.LastName, &sub.EmailType,
		&sub.IsActive, &sub.UnsubscribeToken, &sub.SubscribedAt,
		&sub.UnsubscribedAt, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// FindByToken は配信停止トークンで購読者を検索する。見つからない場合はnilを返す。
func (r *PostgresSubscriberRepo) FindByToken(ctx context.Context, token string) (*model.Subscriber, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers WHERE unsubscribe_token = $1`,
		token,
	)
	sub, err := scanSubscriber(row)
	if err != nil {
		return nil, fmt.Errorf("トークンによる購読者の検索に失敗しました: %w", err)
	}
	return sub, nil
}

// FindByEmailAndType はメールアドレスと配信カテゴリで購読者を検索する。見つからない場合はnilを返す。
func (r *PostgresSubscriberRepo) FindByEmailAndType(ctx context.Context, email string, emailType model.EmailType) (*model.Subscriber, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+subscriberColumns+` FROM subscribers WHERE email = $1 AND email_type = $2`,
		email, emailType,
	)
	sub, err := scanSubscriber(row)
	if err != nil {
		return nil, fmt.Errorf("メールアドレスによる購読者の検索に失敗しました: %w", err)
	}
	return sub, nil
}

// Create は購読者を作成する。
// (email, email_type)の一意制約違反はErrDuplicateSubscriberとして返す。
func (r *PostgresSubscriberRepo) Create(ctx context.Context, sub *model.Subscriber) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO subscribers
		 (id, email, first_name, last_name, email_type, is_active,
		  unsubscribe_token, subscribed_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		sub.ID, sub.Email, sub.FirstName, sub.LastName, sub.EmailType,
		sub.IsActive, sub.UnsubscribeToken, sub.SubscribedAt,
		sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("購読者の作成に失敗しました: %w", ErrDuplicateSubscriber)
		}
		return fmt.Errorf("購読者の作成に失敗しました: %w", err)
	}
	return nil
}

// Reactivate は配信停止済みの購読者を再有効化する。
func (r *PostgresSubscriberRepo) Reactivate(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE subscribers
		 SET is_active = TRUE, subscribed_at = NOW(), unsubscribed_at = NULL, updated_at = NOW()
		 WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("購読者の再有効化に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("購読者が見つかりません: %s", id)
	}
	return nil
}

// Deactivate はトークンで特定される購読者を配信停止にする。
// is_active=trueのレコードのみを対象とする単一の条件付きUPDATEで、
// 並行呼び出しでも二重適用や不整合を起こさない。
// 反転された場合はtrue、すでに停止済み（または対象なし）の場合はfalseを返す。
func (r *PostgresSubscriberRepo) Deactivate(ctx context.Context, token string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE subscribers
		 SET is_active = FALSE, unsubscribed_at = NOW(), updated_at = NOW()
		 WHERE unsubscribe_token = $1 AND is_active = TRUE`,
		token,
	)
	if err != nil {
		return false, fmt.Errorf("購読者の配信停止に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	return rowsAffected > 0, nil
}

// compile-time interface check
var _ SubscriberRepository = (*PostgresSubscriberRepo)(nil)
