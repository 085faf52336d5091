package auth

import "github.com/gin-gonic/gin"

// contentSecurityPolicy は自サイトに加えて、アプリが利用する既知の外部
// オリジン（地図タイル、ジオコーディング、フォント）のみを許可します。
const contentSecurityPolicy = "default-src 'self'; " +
	"script-src 'self' https://unpkg.com; " +
	"style-src 'self' 'unsafe-inline' https://fonts.googleapis.com https://unpkg.com; " +
	"font-src 'self' https://fonts.gstatic.com; " +
	"img-src 'self' data: https://*.basemaps.cartocdn.com https://*.tile.openstreetmap.org; " +
	"connect-src 'self' https://nominatim.openstreetmap.org"

// SecurityHeaders はすべてのレスポンスにセキュリティヘッダーを付与する
// ミドルウェアを返します。認証済みの場合は中間キャッシュに機密ページが
// 残らないようキャッシュ抑止ヘッダーも追加します。
func (m *Manager) SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		// クリックジャッキング対策
		c.Header("X-Frame-Options", "DENY")

		// MIMEタイプスニッフィング対策
		c.Header("X-Content-Type-Options", "nosniff")

		// 旧ブラウザ向けXSSフィルタ
		c.Header("X-XSS-Protection", "1; mode=block")

		// リファラ情報の制御
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// 不要なブラウザ機能の無効化
		c.Header("Permissions-Policy", "camera=(), microphone=(), geolocation=()")

		c.Header("Content-Security-Policy", contentSecurityPolicy)

		if m.IsAuthenticated(c) {
			c.Header("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
			c.Header("Pragma", "no-cache")
		}

		c.Next()
	}
}
