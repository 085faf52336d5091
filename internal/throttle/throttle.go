// Package throttle はログイン試行の記録と、そこから導出するロックアウト判定を提供します。
package throttle

import (
	"context"
	"log"
	"time"
)

// Attempt は1回のログイン試行を表す不変のレコードです。
type Attempt struct {
	SourceAddress string    `json:"sourceAddress"`
	AttemptedAt   time.Time `json:"attemptedAt"`
	Success       bool      `json:"success"`
}

// Ledger はログイン試行の追記専用ログです。
// Append は保持期間を過ぎた古いレコードの剪定も併せて行います。
type Ledger interface {
	Append(ctx context.Context, attempt Attempt) error
	// FailureStats は cutoff より後の失敗回数と、最新の失敗時刻を返します。
	FailureStats(ctx context.Context, source string, cutoff time.Time) (int, time.Time, error)
	// ClearFailures は指定ソースの失敗レコードを削除します（成功レコードは残す）。
	ClearFailures(ctx context.Context, source string) error
	Close() error
}

// LockoutInfo はロックアウト判定の結果です。
// 判定は保存されたフラグではなく、台帳から毎回再計算されます。
type LockoutInfo struct {
	Locked         bool
	LockedUntil    time.Time
	FailedAttempts int
	Remaining      int
}

// Throttle は台帳からソースアドレス単位のロックアウト状態を導出します。
type Throttle struct {
	ledger      Ledger
	maxAttempts int
	lockout     time.Duration
	logger      *log.Logger
}

// NewThrottle は Throttle を作成します。
func NewThrottle(ledger Ledger, maxAttempts int, lockout time.Duration, logger *log.Logger) *Throttle {
	if logger == nil {
		logger = log.Default()
	}
	return &Throttle{
		ledger:      ledger,
		maxAttempts: maxAttempts,
		lockout:     lockout,
		logger:      logger,
	}
}

// RecordAttempt は試行を1件追記します。
// 台帳への書き込みに失敗しても認証フローは止めず、ログだけ残します。
func (t *Throttle) RecordAttempt(ctx context.Context, source string, success bool) {
	err := t.ledger.Append(ctx, Attempt{
		SourceAddress: source,
		AttemptedAt:   time.Now(),
		Success:       success,
	})
	if err != nil {
		t.logger.Printf("failed to record login attempt source=%s: %v", source, err)
	}
}

// LockoutInfo は指定ソースの現在のロックアウト状態を返します。
// ウィンドウはレコード単位のスライディングウィンドウで、
// ちょうど maxAttempts 回の失敗でロックされます。
// 台帳の読み取りに失敗した場合は「失敗履歴なし」として扱います。
func (t *Throttle) LockoutInfo(ctx context.Context, source string) LockoutInfo {
	now := time.Now()
	cutoff := now.Add(-t.lockout)

	count, last, err := t.ledger.FailureStats(ctx, source, cutoff)
	if err != nil {
		t.logger.Printf("failed to read login attempts source=%s: %v", source, err)
		return LockoutInfo{Remaining: t.maxAttempts}
	}

	info := LockoutInfo{
		FailedAttempts: count,
		Remaining:      t.maxAttempts - count,
	}
	if info.Remaining < 0 {
		info.Remaining = 0
	}

	if count >= t.maxAttempts && !last.IsZero() {
		lockedUntil := last.Add(t.lockout)
		if now.Before(lockedUntil) {
			info.Locked = true
			info.LockedUntil = lockedUntil
		}
	}

	return info
}

// ClearFailedAttempts は指定ソースの失敗履歴を消去します。
// ログイン成功時にのみ呼び、次の失敗が新しいカウントから始まるようにします。
func (t *Throttle) ClearFailedAttempts(ctx context.Context, source string) {
	if err := t.ledger.ClearFailures(ctx, source); err != nil {
		t.logger.Printf("failed to clear login attempts source=%s: %v", source, err)
	}
}
