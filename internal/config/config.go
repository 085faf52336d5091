// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// 認証設定
	AppPassword   string // ログイン用パスワード（bcryptハッシュまたは平文）
	SessionSecret string // セッション署名用の秘密鍵

	// ブルートフォース対策
	MaxLoginAttempts      int // ロックアウトまでの失敗回数上限
	LoginLockoutDuration  int // ロックアウト判定ウィンドウ（秒）
	SessionLifetime       int // セッションの絶対有効期限（秒）
	AttemptRetentionHours int // 試行ログの保持期間（時間）

	// 試行ログの保存先
	LedgerDriver   string // sqlite / redis / memory
	LedgerDBPath   string // SQLite使用時のデータベースパス
	LedgerRedisURL string // Redis使用時の接続URL

	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	config := &Config{
		// 認証設定
		AppPassword:   getEnv("APP_PASSWORD", ""),
		SessionSecret: getEnv("SESSION_SECRET", ""),

		// ブルートフォース対策
		MaxLoginAttempts:      getEnvAsInt("MAX_LOGIN_ATTEMPTS", 10),
		LoginLockoutDuration:  getEnvAsInt("LOGIN_LOCKOUT_DURATION", 900),
		SessionLifetime:       getEnvAsInt("SESSION_LIFETIME", 86400),
		AttemptRetentionHours: getEnvAsInt("ATTEMPT_RETENTION_HOURS", 24),

		// 試行ログの保存先
		LedgerDriver:   getEnv("LEDGER_DRIVER", "sqlite"),
		LedgerDBPath:   getEnv("LEDGER_DB_PATH", "data/atlas.db"),
		LedgerRedisURL: getEnv("LEDGER_REDIS_URL", "redis://127.0.0.1:6379/0"),

		// サーバー設定
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	// ローカル開発では認証設定は任意
	// 本番環境では厳格にチェックする想定
	if c.GinMode == "release" {
		if c.AppPassword == "" {
			return fmt.Errorf("APP_PASSWORD is required in release mode")
		}
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
	}

	if c.MaxLoginAttempts <= 0 {
		return fmt.Errorf("MAX_LOGIN_ATTEMPTS must be positive")
	}
	if c.LoginLockoutDuration <= 0 {
		return fmt.Errorf("LOGIN_LOCKOUT_DURATION must be positive")
	}
	if c.SessionLifetime <= 0 {
		return fmt.Errorf("SESSION_LIFETIME must be positive")
	}

	switch c.LedgerDriver {
	case "sqlite", "redis", "memory":
	default:
		return fmt.Errorf("LEDGER_DRIVER must be one of sqlite, redis, memory (got %q)", c.LedgerDriver)
	}

	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
