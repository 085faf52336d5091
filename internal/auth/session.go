package auth

import (
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const (
	// SessionCookieName はセッションクッキー名です。
	SessionCookieName = "atlas_session"

	sessionKeySID           = "sid"
	sessionKeyAuthenticated = "authenticated"
	sessionKeyLoginTime     = "login_time"
	sessionKeyLastActive    = "last_activity"
	sessionKeySource        = "source_address"
	sessionKeyCSRF          = "csrf_token"
)

type sessionStatus int

const (
	statusAnonymous sessionStatus = iota
	statusExpired
	statusActive
)

// checkSession はセッションの状態を判定します。
// 期限切れセッションは副作用として破棄し、有効なセッションは
// last_activity を更新します。有効期限は login_time 起点の絶対値で、
// 活動によって延長されることはありません。
func (m *Manager) checkSession(c *gin.Context) sessionStatus {
	session := sessions.Default(c)

	authenticated, ok := session.Get(sessionKeyAuthenticated).(bool)
	if !ok || !authenticated {
		return statusAnonymous
	}

	loginTime := readUnix(session.Get(sessionKeyLoginTime))
	now := time.Now()
	if loginTime.IsZero() || now.Before(loginTime) || now.Sub(loginTime) > m.sessionLifetime() {
		destroySession(session)
		return statusExpired
	}

	session.Set(sessionKeyLastActive, now.Unix())
	_ = session.Save()
	return statusActive
}

// IsAuthenticated は現在のリクエストが認証済みかを返します。
// authenticated フラグと login_time がそろっていて、かつ絶対有効期限内の
// 場合のみ true です（フェイルクローズ）。
func (m *Manager) IsAuthenticated(c *gin.Context) bool {
	return m.checkSession(c) == statusActive
}

// destroySession はセッションの内容を消去し、クッキーを失効させます。
func destroySession(session sessions.Session) {
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	_ = session.Save()
}

func readUnix(v interface{}) time.Time {
	switch t := v.(type) {
	case int64:
		return time.Unix(t, 0)
	case int:
		return time.Unix(int64(t), 0)
	case float64:
		return time.Unix(int64(t), 0)
	default:
		return time.Time{}
	}
}
