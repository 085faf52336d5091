package throttle

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteLedger は試行ログを SQLite に保存する Ledger 実装です。
// 外部サーバーを必要とせず、プロセス再起動後も履歴が残ります。
type SQLiteLedger struct {
	db        *sql.DB
	retention time.Duration
}

// NewSQLiteLedger は dbPath の SQLite データベースを開き（なければ作成し）、
// 必要なテーブルを初期化します。テストでは ":memory:" が使えます。
func NewSQLiteLedger(dbPath string, retention time.Duration) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// SQLite はライターが1つのため接続を1本に制限する
	// （":memory:" 使用時に接続ごとに別のDBが見える問題も避けられる）
	db.SetMaxOpenConns(1)

	// 同時リクエストからの読み取り性能のため WAL モードを有効化
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}

	ledger := &SQLiteLedger{db: db, retention: retention}
	if err := ledger.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return ledger, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS login_attempts (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		source_address TEXT NOT NULL,
		attempted_at   INTEGER NOT NULL,
		success        INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE INDEX IF NOT EXISTS idx_login_attempts_source
		ON login_attempts(source_address, success, attempted_at)`,
}

func (l *SQLiteLedger) initSchema() error {
	for _, stmt := range schema {
		if _, err := l.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Append は試行を1行追記し、保持期間を過ぎた古い行をついでに削除します。
func (l *SQLiteLedger) Append(ctx context.Context, attempt Attempt) error {
	success := 0
	if attempt.Success {
		success = 1
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO login_attempts (source_address, attempted_at, success) VALUES (?, ?, ?)`,
		attempt.SourceAddress, attempt.AttemptedAt.UnixNano(), success,
	)
	if err != nil {
		return err
	}

	// 古い記録の剪定は書き込み成功時のみ、失敗しても呼び出し元には影響させない
	cutoff := time.Now().Add(-l.retention).UnixNano()
	_, _ = l.db.ExecContext(ctx, `DELETE FROM login_attempts WHERE attempted_at < ?`, cutoff)
	return nil
}

// FailureStats は cutoff より後の失敗回数と最新失敗時刻を返します。
func (l *SQLiteLedger) FailureStats(ctx context.Context, source string, cutoff time.Time) (int, time.Time, error) {
	var count int
	var lastNano sql.NullInt64
	err := l.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MAX(attempted_at) FROM login_attempts
		WHERE source_address = ? AND success = 0 AND attempted_at > ?`,
		source, cutoff.UnixNano(),
	).Scan(&count, &lastNano)
	if err != nil {
		return 0, time.Time{}, err
	}

	var last time.Time
	if lastNano.Valid {
		last = time.Unix(0, lastNano.Int64)
	}
	return count, last, nil
}

// ClearFailures は指定ソースの失敗レコードを削除します。
func (l *SQLiteLedger) ClearFailures(ctx context.Context, source string) error {
	_, err := l.db.ExecContext(ctx,
		`DELETE FROM login_attempts WHERE source_address = ? AND success = 0`, source)
	return err
}

// Close はデータベース接続を閉じます。
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
