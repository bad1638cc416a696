// Package webhook はWebhookイベントの冪等処理ガードを提供する。
//
// 決済プロバイダはWebhookを少なくとも1回（at-least-once）配信するため、
// 同一イベントIDの再配信を検出してハンドラの二重実行を防ぐ必要がある。
package webhook

import (
	"context"
	"errors"
	"sync"
)

// ErrSkipped は処理済みイベントの再配信をスキップしたことを示す。
// 呼び出し側はこのエラーを成功（確認応答）として扱う。
var ErrSkipped = errors.New("イベントは処理済みのためスキップされました")

// Guard はWebhookイベントの冪等処理を保証するインターフェース。
type Guard interface {
	// IsEventProcessed はイベントが処理済みかどうかを返す。
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	// MarkEventProcessed はイベントを処理済みとして記録する。
	MarkEventProcessed(ctx context.Context, eventID string) error
	// ProcessWithIdempotency はイベントが未処理の場合のみハンドラを実行する。
	// ハンドラが成功した場合のみ処理済みとして記録し、失敗した場合は
	// 記録しないため、プロバイダの再送時にハンドラが再実行される。
	// 処理済みイベントに対してはErrSkippedを返す。
	ProcessWithIdempotency(ctx context.Context, eventID string, handler func(ctx context.Context) error) error
}

// MemoryGuard はプロセス内メモリで処理済みイベントIDを保持するガード。
// 再起動で記録が失われ、複数インスタンス間で共有されないため、
// 本番環境ではRedisGuardを使用する。
type MemoryGuard struct {
	mu        sync.Mutex
	processed map[string]struct{}
}

// インターフェース実装の確認
var _ Guard = (*MemoryGuard)(nil)

// NewMemoryGuard はMemoryGuardの新しいインスタンスを生成する。
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{
		processed: make(map[string]struct{}),
	}
}

// IsEventProcessed はイベントが処理済みかどうかを返す。
func (g *MemoryGuard) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.processed[eventID]
	return ok, nil
}

// MarkEventProcessed はイベントを処理済みとして記録する。
func (g *MemoryGuard) MarkEventProcessed(ctx context.Context, eventID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.processed[eventID] = struct{}{}
	return nil
}

// ProcessWithIdempotency はイベントが未処理の場合のみハンドラを実行する。
func (g *MemoryGuard) ProcessWithIdempotency(ctx context.Context, eventID string, handler func(ctx context.Context) error) error {
	processed, err := g.IsEventProcessed(ctx, eventID)
	if err != nil {
		return err
	}
	if processed {
		return ErrSkipped
	}

	if err := handler(ctx); err != nil {
		return err
	}

	return g.MarkEventProcessed(ctx, eventID)
}
