// Package token は配信停止トークンの発行と解決を提供する。
//
// トークンは不透明なルックアップキーであり、署名やペイロードの埋め込みは行わない。
// ストアを介さずに単独で検証することはできず、失効にはストアの変更が必要になる
// （シンプルさとのトレードオフとして受け入れている）。
package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/paymatch/api/internal/model"
	"github.com/paymatch/api/internal/repository"
)

// Codec は配信停止トークンの発行・解決を行う。
type Codec struct {
	subRepo repository.SubscriberRepository
}

// NewCodec はCodecを生成する。
func NewCodec(subRepo repository.SubscriberRepository) *Codec {
	return &Codec{subRepo: subRepo}
}

// Issue は列挙攻撃に耐えるトークンを生成する。
// 32バイト（256ビット）の暗号論的乱数を16進エンコードして返す。
// 一意性はストアのUNIQUE制約で保証され、Codec自身は保証しない。
func (c *Codec) Issue() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate unsubscribe token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Resolve はトークンを購読者レコードに解決する。
// 完全一致のみで検索し、解決できない場合はInvalidTokenエラーを返す。
func (c *Codec) Resolve(ctx context.Context, tok string) (*model.Subscriber, error) {
	if tok == "" {
		return nil, model.NewInvalidTokenError()
	}

	sub, err := c.subRepo.FindByToken(ctx, tok)
	if err != nil {
		return nil, fmt.Errorf("トークンの解決に失敗しました: %w", err)
	}
	if sub == nil {
		return nil, model.NewInvalidTokenError()
	}

	return sub, nil
}
