package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix は処理済みイベントキーの名前空間。
const redisKeyPrefix = "paymatch:webhook:event:"

// RedisGuard はRedisで処理済みイベントIDを共有するガード。
//
// SET NX EXによるアトミックなクレームで「確認してから実行する」間の
// 競合を排除するため、同一イベントの並行配信でもハンドラは1回しか
// 実行されない。TTL経過後のキーは失効し、ストレージは自然に回収される。
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// インターフェース実装の確認
var _ Guard = (*RedisGuard)(nil)

// NewRedisGuard はRedisGuardの新しいインスタンスを生成する。
// ttlは処理済み記録の保持期間で、プロバイダの再送ウィンドウより
// 長く設定する必要がある。
func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	return &RedisGuard{
		client: client,
		ttl:    ttl,
	}
}

func (g *RedisGuard) key(eventID string) string {
	return redisKeyPrefix + eventID
}

// IsEventProcessed はイベントが処理済みかどうかを返す。
func (g *RedisGuard) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	n, err := g.client.Exists(ctx, g.key(eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("処理済みイベントの確認に失敗しました: %w", err)
	}
	return n > 0, nil
}

// MarkEventProcessed はイベントを処理済みとして記録する。
func (g *RedisGuard) MarkEventProcessed(ctx context.Context, eventID string) error {
	if err := g.client.Set(ctx, g.key(eventID), "1", g.ttl).Err(); err != nil {
		return fmt.Errorf("処理済みイベントの記録に失敗しました: %w", err)
	}
	return nil
}

// ProcessWithIdempotency はイベントが未処理の場合のみハンドラを実行する。
//
// まずSET NX EXでイベントIDをクレームし、取得できなければ他の処理が
// 先行しているためErrSkippedを返す。ハンドラが失敗した場合はクレームを
// 解放し、プロバイダの再送時にハンドラが再実行されるようにする。
func (g *RedisGuard) ProcessWithIdempotency(ctx context.Context, eventID string, handler func(ctx context.Context) error) error {
	claimed, err := g.client.SetNX(ctx, g.key(eventID), "1", g.ttl).Result()
	if err != nil {
		return fmt.Errorf("イベントのクレームに失敗しました: %w", err)
	}
	if !claimed {
		return ErrSkipped
	}

	if err := handler(ctx); err != nil {
		// 失敗したイベントは再送で処理し直せるようクレームを解放する
		if delErr := g.client.Del(ctx, g.key(eventID)).Err(); delErr != nil {
			return fmt.Errorf("失敗イベントのクレーム解放に失敗しました: %w（ハンドラエラー: %v）", delErr, err)
		}
		return err
	}

	return nil
}
