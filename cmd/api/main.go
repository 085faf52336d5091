// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/atlas-crm/internal/auth"
	"github.com/yourusername/atlas-crm/internal/config"
	"github.com/yourusername/atlas-crm/internal/throttle"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()

	// セッションストアの設定（クッキー署名鍵は必須）
	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   cfg.SessionLifetime,
		HttpOnly: true,
		Secure:   cfg.GinMode == gin.ReleaseMode,
		SameSite: http.SameSiteStrictMode,
	})
	router.Use(sessions.Sessions(auth.SessionCookieName, store))

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	origins := strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowOrigins = origins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
		auth.CSRFHeader, // CSRF保護用ヘッダー
	}
	// フロントエンドがレスポンスヘッダーから CSRF トークンを読み取れるように公開
	corsConfig.ExposeHeaders = []string{auth.CSRFHeader}
	router.Use(cors.New(corsConfig))

	// ログイン試行台帳の初期化
	ledger, err := setupLedger(cfg)
	if err != nil {
		log.Fatalf("Failed to set up login attempt ledger: %v", err)
	}
	defer ledger.Close()

	thr := throttle.NewThrottle(
		ledger,
		cfg.MaxLoginAttempts,
		time.Duration(cfg.LoginLockoutDuration)*time.Second,
		log.Default(),
	)

	authManager, err := auth.NewManager(cfg, thr, log.Default())
	if err != nil {
		log.Fatalf("Failed to set up auth manager: %v", err)
	}

	// ルーティングの設定
	setupRoutes(router, authManager)

	// サーバーの起動
	addr := ":" + cfg.Port
	log.Printf("Starting API server on %s (mode: %s)", addr, cfg.GinMode)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// setupLedger は設定に応じたログイン試行台帳を作成します。
func setupLedger(cfg *config.Config) (throttle.Ledger, error) {
	retention := time.Duration(cfg.AttemptRetentionHours) * time.Hour

	switch cfg.LedgerDriver {
	case "redis":
		opt, err := redis.ParseURL(cfg.LedgerRedisURL)
		if err != nil {
			return nil, err
		}
		return throttle.NewRedisLedger(redis.NewClient(opt), retention), nil
	case "memory":
		return throttle.NewMemoryLedger(retention), nil
	default:
		return throttle.NewSQLiteLedger(cfg.LedgerDBPath, retention)
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "atlas-crm-api",
		"version": "0.1.0",
	})
}

// setupRoutes は API グループと認証周りの配線を行います。
func setupRoutes(router *gin.Engine, authManager *auth.Manager) {
	// すべてのレスポンスにセキュリティヘッダーを付与
	router.Use(authManager.SecurityHeaders())

	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", handleHealth)

	api := router.Group("/api")
	{
		authRoutes := api.Group("/auth")
		{
			// ログイン時はセッション未生成なので CSRF 検証は不要
			authRoutes.POST("/login", authManager.Login)
			authRoutes.GET("/session", authManager.SessionInfo)
			authRoutes.POST("/logout",
				authManager.RequireLogin(),
				authManager.VerifyCSRF(),
				authManager.Logout,
			)
		}

		// contacts / notes / tags / projects / calendar のAPIはここにぶら下げる
		protected := api.Group("")
		protected.Use(authManager.RequireLogin(), authManager.VerifyCSRF())
		{
			// TODO: /api/contacts 系の実装を追加する
		}
	}
}
