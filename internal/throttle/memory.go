package throttle

import (
	"context"
	"sync"
	"time"
)

// MemoryLedger はプロセス内にのみ試行を保持する Ledger 実装です。
// 永続化設定がない開発環境およびテストで使用します。
type MemoryLedger struct {
	mu        sync.Mutex
	retention time.Duration
	attempts  map[string][]Attempt
}

// NewMemoryLedger は MemoryLedger を作成します。
func NewMemoryLedger(retention time.Duration) *MemoryLedger {
	return &MemoryLedger{
		retention: retention,
		attempts:  make(map[string][]Attempt),
	}
}

// Append は試行を追記し、同一ソースの保持期間切れレコードを剪定します。
func (l *MemoryLedger) Append(ctx context.Context, attempt Attempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-l.retention)
	kept := l.attempts[attempt.SourceAddress][:0]
	for _, a := range l.attempts[attempt.SourceAddress] {
		if a.AttemptedAt.After(cutoff) {
			kept = append(kept, a)
		}
	}
	l.attempts[attempt.SourceAddress] = append(kept, attempt)
	return nil
}

// FailureStats は cutoff より後の失敗回数と最新失敗時刻を返します。
func (l *MemoryLedger) FailureStats(ctx context.Context, source string, cutoff time.Time) (int, time.Time, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := 0
	var last time.Time
	for _, a := range l.attempts[source] {
		if a.Success || !a.AttemptedAt.After(cutoff) {
			continue
		}
		count++
		if a.AttemptedAt.After(last) {
			last = a.AttemptedAt
		}
	}
	return count, last, nil
}

// ClearFailures は指定ソースの失敗レコードのみ削除します。
func (l *MemoryLedger) ClearFailures(ctx context.Context, source string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.attempts[source][:0]
	for _, a := range l.attempts[source] {
		if a.Success {
			kept = append(kept, a)
		}
	}
	if len(kept) == 0 {
		delete(l.attempts, source)
		return nil
	}
	l.attempts[source] = kept
	return nil
}

// Close は何もしません。
func (l *MemoryLedger) Close() error {
	return nil
}
