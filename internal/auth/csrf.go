package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const (
	// CSRFHeader はトークンを運ぶリクエスト/レスポンスヘッダー名です。
	CSRFHeader = "X-CSRF-Token"
	// CSRFFormField はHTMLフォーム経由でトークンを運ぶフィールド名です。
	CSRFFormField = "csrf_token"
)

// generateCSRFToken は暗号学的に安全な256ビットのトークンを生成します。
func generateCSRFToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// ensureCSRFToken はセッションのトークンを返し、未発行なら発行します。
// トークンはセッションと同じ寿命で、セッション中は回転しません。
func ensureCSRFToken(session sessions.Session) (string, error) {
	if token, ok := session.Get(sessionKeyCSRF).(string); ok && token != "" {
		return token, nil
	}

	token, err := generateCSRFToken()
	if err != nil {
		return "", err
	}
	session.Set(sessionKeyCSRF, token)
	if err := session.Save(); err != nil {
		return "", err
	}
	return token, nil
}

// validCSRFToken は供給されたトークンをセッションのものと一定時間で比較します。
// 空のトークンは常に不一致です。
func validCSRFToken(expected, supplied string) bool {
	if expected == "" || supplied == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(supplied)) == 1
}

// VerifyCSRF は状態変更リクエストのトークンを検証するミドルウェアを返します。
// トークンは X-CSRF-Token ヘッダーとフォームフィールドのどちらで送ってもかまいません。
// 読み取り専用メソッドは検証対象外です。
func (m *Manager) VerifyCSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}

		session := sessions.Default(c)
		expected, ok := session.Get(sessionKeyCSRF).(string)
		if !ok || expected == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    "CSRF_MISSING",
				"message": "CSRF トークンが設定されていません",
			})
			return
		}

		supplied := c.GetHeader(CSRFHeader)
		if supplied == "" {
			supplied = c.PostForm(CSRFFormField)
		}
		if !validCSRFToken(expected, supplied) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    "CSRF_INVALID",
				"message": "CSRF トークンが一致しません",
			})
			return
		}

		c.Next()
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}
