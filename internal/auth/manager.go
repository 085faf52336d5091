package auth

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yourusername/atlas-crm/internal/config"
	"github.com/yourusername/atlas-crm/internal/throttle"
)

// ContextAuthKey は、ハンドラー間で認証済みフラグを共有するためのキーです。
const ContextAuthKey = "auth.authenticated"

// Manager は認証処理と状態をまとめた構造体です。
// セッション、パスワード照合、ロックアウト、CSRF を束ねるファサードで、
// HTTP エントリーポイントからリクエストごとに呼び出されます。
type Manager struct {
	cfg      *config.Config
	verifier *Verifier
	throttle *throttle.Throttle
	logger   *log.Logger
}

// NewManager は認証マネージャーを作成します。
func NewManager(cfg *config.Config, thr *throttle.Throttle, logger *log.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if thr == nil {
		return nil, errors.New("throttle is nil")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		cfg:      cfg,
		verifier: NewVerifier(cfg.AppPassword),
		throttle: thr,
		logger:   logger,
	}, nil
}

func (m *Manager) sessionLifetime() time.Duration {
	return time.Duration(m.cfg.SessionLifetime) * time.Second
}

type loginRequest struct {
	Password string `json:"password" binding:"required"`
}

// Login は /api/auth/login のハンドラーです。
// ロックアウト判定 → パスワード照合 → セッション確立の順で処理します。
// ロック中はパスワード照合自体を行いません。
func (m *Manager) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "password を JSON で送ってください",
		})
		return
	}

	if err := m.ensureCredentials(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "SERVER_MISCONFIGURATION",
			"message": err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	source := c.ClientIP()

	info := m.throttle.LockoutInfo(ctx, source)
	if info.Locked {
		m.respondLocked(c, info)
		return
	}

	if !m.verifier.Verify(req.Password) {
		m.throttle.RecordAttempt(ctx, source, false)

		// 今回の失敗でしきい値に達した場合はロック結果を返す
		info = m.throttle.LockoutInfo(ctx, source)
		if info.Locked {
			m.respondLocked(c, info)
			return
		}

		c.JSON(http.StatusUnauthorized, gin.H{
			"code":              "INVALID_CREDENTIALS",
			"message":           "パスワードが正しくありません",
			"remainingAttempts": info.Remaining,
		})
		return
	}

	m.throttle.RecordAttempt(ctx, source, true)
	m.throttle.ClearFailedAttempts(ctx, source)

	if err := m.establishSession(c, source); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "SESSION_SAVE_FAILED",
			"message": "セッションの保存に失敗しました",
		})
		return
	}

	c.Status(http.StatusNoContent)
}

// establishSession はログイン成功時のセッション確立を行います。
// セッション識別子を回転させ（固定化攻撃対策）、新しい CSRF トークンを発行します。
func (m *Manager) establishSession(c *gin.Context, source string) error {
	token, err := generateCSRFToken()
	if err != nil {
		return err
	}

	session := sessions.Default(c)
	now := time.Now()
	session.Set(sessionKeySID, uuid.NewString())
	session.Set(sessionKeyAuthenticated, true)
	session.Set(sessionKeyLoginTime, now.Unix())
	session.Set(sessionKeyLastActive, now.Unix())
	session.Set(sessionKeySource, source)
	session.Set(sessionKeyCSRF, token)

	if err := session.Save(); err != nil {
		return err
	}

	c.Header(CSRFHeader, token)
	return nil
}

func (m *Manager) respondLocked(c *gin.Context, info throttle.LockoutInfo) {
	retryAfter := time.Until(info.LockedUntil)
	if retryAfter < 0 {
		retryAfter = 0
	}
	// Retry-After は秒数またはHTTP-Date形式が推奨されているため秒数で返す
	c.Header("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
	c.JSON(http.StatusForbidden, gin.H{
		"code":        "ACCOUNT_LOCKED",
		"message":     "試行回数が多すぎます。しばらくしてから再度お試しください",
		"lockedUntil": info.LockedUntil.Unix(),
	})
}

// Logout は /api/auth/logout のハンドラーです。
func (m *Manager) Logout(c *gin.Context) {
	destroySession(sessions.Default(c))
	c.Status(http.StatusNoContent)
}

// SessionInfo は /api/auth/session のハンドラーです。
// 認証状態を返し、認証済みなら CSRF トークンを（未発行の場合は発行して）
// X-CSRF-Token ヘッダーで再配布します。
func (m *Manager) SessionInfo(c *gin.Context) {
	if !m.IsAuthenticated(c) {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}

	token, err := ensureCSRFToken(sessions.Default(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "TOKEN_GENERATION_FAILED",
			"message": "CSRF トークンの生成に失敗しました",
		})
		return
	}

	c.Header(CSRFHeader, token)
	c.JSON(http.StatusOK, gin.H{"authenticated": true})
}

// RequireLogin はセッションを検証するミドルウェアを返します。
// 未認証・期限切れのリクエストは 401 で打ち切ります。
func (m *Manager) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch m.checkSession(c) {
		case statusActive:
			c.Set(ContextAuthKey, true)
			c.Next()
		case statusExpired:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "SESSION_EXPIRED",
				"message": "セッションの有効期限が切れました",
			})
		default:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "UNAUTHORIZED",
				"message": "ログインが必要です",
			})
		}
	}
}

func (m *Manager) ensureCredentials() error {
	if m.cfg.AppPassword == "" {
		return errors.New("APP_PASSWORD が設定されていません")
	}
	if m.cfg.SessionSecret == "" {
		return errors.New("SESSION_SECRET が設定されていません")
	}
	return nil
}
