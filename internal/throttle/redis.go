package throttle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	failureKeyPrefix = "login:fail:"
	successKeyPrefix = "login:ok:"
)

// RedisLedger は試行ログを Redis のソート済みセットに保存する Ledger 実装です。
// 既に Redis を運用しているデプロイ向けで、スコアに試行時刻（ミリ秒）を使います。
type RedisLedger struct {
	rdb       *redis.Client
	retention time.Duration
}

// NewRedisLedger は RedisLedger を作成します。
func NewRedisLedger(rdb *redis.Client, retention time.Duration) *RedisLedger {
	return &RedisLedger{
		rdb:       rdb,
		retention: retention,
	}
}

// Append は試行を追記し、保持期間を過ぎたレコードをついでに取り除きます。
func (l *RedisLedger) Append(ctx context.Context, attempt Attempt) error {
	key := successKeyPrefix + attempt.SourceAddress
	if !attempt.Success {
		key = failureKeyPrefix + attempt.SourceAddress
	}

	pruneBefore := time.Now().Add(-l.retention).UnixMilli()

	pipe := l.rdb.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(attempt.AttemptedAt.UnixMilli()),
		Member: uuid.NewString(),
	})
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", pruneBefore))
	pipe.Expire(ctx, key, l.retention)
	_, err := pipe.Exec(ctx)
	return err
}

// FailureStats は cutoff より後の失敗回数と最新失敗時刻を返します。
func (l *RedisLedger) FailureStats(ctx context.Context, source string, cutoff time.Time) (int, time.Time, error) {
	key := failureKeyPrefix + source

	count, err := l.rdb.ZCount(ctx, key, fmt.Sprintf("(%d", cutoff.UnixMilli()), "+inf").Result()
	if err != nil {
		return 0, time.Time{}, err
	}
	if count == 0 {
		return 0, time.Time{}, nil
	}

	// スコア最大の要素が最新の失敗
	entries, err := l.rdb.ZRangeWithScores(ctx, key, -1, -1).Result()
	if err != nil {
		return 0, time.Time{}, err
	}

	var last time.Time
	if len(entries) > 0 {
		last = time.UnixMilli(int64(entries[0].Score))
	}
	return int(count), last, nil
}

// ClearFailures は指定ソースの失敗レコードを削除します。
func (l *RedisLedger) ClearFailures(ctx context.Context, source string) error {
	return l.rdb.Del(ctx, failureKeyPrefix+source).Err()
}

// Close は Redis クライアントを閉じます。
func (l *RedisLedger) Close() error {
	return l.rdb.Close()
}
