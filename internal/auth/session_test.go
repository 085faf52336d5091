package auth

import (
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/atlas-crm/internal/config"
	"github.com/yourusername/atlas-crm/internal/throttle"
)

// newSessionTestRouter はセッションミドルウェアと RequireLogin のみの
// 最小構成ルーターを作ります。テストからセッション状態を直接仕込めるよう、
// login_time を指定できるシード用ルートを持ちます。
func newSessionTestRouter(t *testing.T, lifetimeSeconds int) (*gin.Engine, *Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		AppPassword:          testPassword,
		SessionSecret:        "test-session-secret",
		MaxLoginAttempts:     10,
		LoginLockoutDuration: 900,
		SessionLifetime:      lifetimeSeconds,
	}
	thr := throttle.NewThrottle(throttle.NewMemoryLedger(24*time.Hour),
		cfg.MaxLoginAttempts, 900*time.Second, log.New(io.Discard, "", 0))
	manager, err := NewManager(cfg, thr, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	router := gin.New()
	store := cookie.NewStore([]byte(cfg.SessionSecret))
	router.Use(sessions.Sessions(SessionCookieName, store))

	router.POST("/seed", func(c *gin.Context) {
		var req struct {
			LoginTime int64 `json:"loginTime"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		session := sessions.Default(c)
		session.Set(sessionKeySID, "seeded")
		session.Set(sessionKeyAuthenticated, true)
		session.Set(sessionKeyLoginTime, req.LoginTime)
		session.Set(sessionKeyLastActive, time.Now().Unix())
		if err := session.Save(); err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusNoContent)
	})

	router.GET("/protected", manager.RequireLogin(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	return router, manager
}

func seedSession(t *testing.T, router *gin.Engine, loginTime int64) []*http.Cookie {
	t.Helper()
	body := `{"loginTime": ` + strconv.FormatInt(loginTime, 10) + `}`

	req := httptest.NewRequest(http.MethodPost, "/seed", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("seed status = %d", w.Code)
	}
	return w.Result().Cookies()
}

func TestRequireLoginAcceptsFreshSession(t *testing.T) {
	router, _ := newSessionTestRouter(t, 86400)
	cookies := seedSession(t, router, time.Now().Unix())

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestRequireLoginRejectsExpiredSession(t *testing.T) {
	router, _ := newSessionTestRouter(t, 86400)

	// 有効期限を1秒超過した login_time を仕込む
	cookies := seedSession(t, router, time.Now().Add(-86401*time.Second).Unix())

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}

	// 期限切れセッションは副作用として破棄される
	var last *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == SessionCookieName {
			last = c
		}
	}
	if last == nil || last.MaxAge >= 0 {
		t.Fatal("expired session cookie not invalidated")
	}
}

func TestExpiryIsAbsoluteNotSliding(t *testing.T) {
	router, _ := newSessionTestRouter(t, 2)
	cookies := seedSession(t, router, time.Now().Unix())

	// 有効期限内のアクセスで last_activity は更新されるが、
	// 期限は login_time 起点の絶対値のまま動かない
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		for _, c := range cookies {
			req.AddCookie(c)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, w.Code)
		}
		if refreshed := sessionCookieFrom(w.Result().Cookies()); refreshed != nil {
			cookies = []*http.Cookie{refreshed}
		}
		time.Sleep(1200 * time.Millisecond)
	}

	// 活動を続けていても login_time から lifetime を超えた時点で失効する
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 (absolute expiry ignores activity)", w.Code)
	}
}

func TestReadUnix(t *testing.T) {
	if got := readUnix(int64(100)); got.Unix() != 100 {
		t.Fatalf("readUnix(int64) = %v", got)
	}
	if got := readUnix(int(200)); got.Unix() != 200 {
		t.Fatalf("readUnix(int) = %v", got)
	}
	if got := readUnix(float64(300)); got.Unix() != 300 {
		t.Fatalf("readUnix(float64) = %v", got)
	}
	if got := readUnix(nil); !got.IsZero() {
		t.Fatalf("readUnix(nil) = %v, want zero", got)
	}
	if got := readUnix("bogus"); !got.IsZero() {
		t.Fatalf("readUnix(string) = %v, want zero", got)
	}
}

func sessionCookieFrom(cookies []*http.Cookie) *http.Cookie {
	var last *http.Cookie
	for _, c := range cookies {
		if c.Name == SessionCookieName {
			last = c
		}
	}
	return last
}
