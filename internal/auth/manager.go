// Package auth は利用者の登録・ログインとセッション認証を提供します。
package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/book-ledger/internal/ledger"
)

const (
	SessionCookieName    = "bl_session"
	sessionKeyUserID     = "auth_user_id"
	sessionKeyIssuedAt   = "issued_at"
	sessionKeyLastActive = "last_activity"
	sessionKeyCSRF       = "csrf_token"

	csrfHeader = "X-CSRF-Token"
)

var (
	maxSessionLifetime = 12 * time.Hour
	idleTimeout        = 30 * time.Minute
	loginWindow        = 15 * time.Minute
	lockDuration       = 10 * time.Minute
	maxLoginAttempts   = 5
)

// SessionMaxAgeSeconds はクッキーの MaxAge に利用する秒数を返します。
func SessionMaxAgeSeconds() int {
	return int(maxSessionLifetime.Seconds())
}

// ContextUserKey は、ハンドラー間でログイン済み利用者IDを共有するためのキーです。
const ContextUserKey = "auth.user_id"

// UserStore は認証が依存する利用者レコード操作です。
// FindUserByEmail は該当利用者が存在しない場合に (nil, nil) を返します。
type UserStore interface {
	CreateUser(ctx context.Context, user *ledger.User) error
	FindUserByEmail(ctx context.Context, email string) (*ledger.User, error)
}

// Manager は認証処理と試行制限の状態をまとめた構造体です。
type Manager struct {
	store    UserStore
	attempts AttemptStore
}

// NewManager は認証マネージャーを作成します。
func NewManager(store UserStore, attempts AttemptStore) *Manager {
	if attempts == nil {
		attempts = NewMemoryAttemptStore()
	}
	return &Manager{
		store:    store,
		attempts: attempts,
	}
}

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signup は POST /signup のハンドラーです。
func (m *Manager) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Name, email, and password are required.",
		})
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" || req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Name, email, and password are required.",
		})
		return
	}

	existing, err := m.store.FindUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong."})
		return
	}
	if existing != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email is already in use."})
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong."})
		return
	}

	user := &ledger.User{
		ID:           uuid.New(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hashed),
	}
	if err := m.store.CreateUser(c.Request.Context(), user); err != nil {
		// 事前チェック後に同じメールアドレスで競合した場合もここに落ちる
		if errors.Is(err, ledger.ErrEmailTaken) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Email is already in use."})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong."})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":    user.ID.String(),
		"name":  user.Name,
		"email": user.Email,
	})
}

// Login は POST /login のハンドラーです。
// 認証に成功するとセッションクッキーを発行し、CSRFトークンをヘッダーで返します。
func (m *Manager) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Email and password are required.",
		})
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Email and password are required.",
		})
		return
	}

	ip := c.ClientIP()
	if retryAfter := m.checkLock(c.Request.Context(), ip); retryAfter > 0 {
		// Retry-After は秒数またはHTTP-Date形式が推奨されているため秒数で返す
		c.Header("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error": "Too many login attempts. Try again later.",
		})
		return
	}

	user, err := m.store.FindUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong."})
		return
	}
	// 未登録メールとパスワード誤りは区別せずに同じ応答を返す
	if user == nil || !verifyPassword(user.PasswordHash, req.Password) {
		m.recordFailure(c.Request.Context(), ip)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid email or password.",
		})
		return
	}

	m.resetAttempts(c.Request.Context(), ip)

	token, err := generateToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong."})
		return
	}

	session := sessions.Default(c)
	now := time.Now()
	session.Set(sessionKeyUserID, user.ID.String())
	session.Set(sessionKeyIssuedAt, now.Unix())
	session.Set(sessionKeyLastActive, now.Unix())
	session.Set(sessionKeyCSRF, token)

	if err := session.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong."})
		return
	}

	c.Header(csrfHeader, token)
	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
	})
}

// Logout は POST /logout のハンドラーです。
func (m *Manager) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong."})
		return
	}
	c.Status(http.StatusNoContent)
}

// RequireLogin はセッションを検証するミドルウェアを返します。
func (m *Manager) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		userID, ok := session.Get(sessionKeyUserID).(string)
		if !ok || userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Login required.",
			})
			return
		}

		now := time.Now()
		issuedAt := readUnix(session.Get(sessionKeyIssuedAt))
		lastActive := readUnix(session.Get(sessionKeyLastActive))

		if issuedAt.IsZero() || now.Sub(issuedAt) > maxSessionLifetime {
			session.Clear()
			_ = session.Save()
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Session expired.",
			})
			return
		}

		if lastActive.IsZero() || now.Sub(lastActive) > idleTimeout {
			session.Clear()
			_ = session.Save()
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Session expired.",
			})
			return
		}

		session.Set(sessionKeyLastActive, now.Unix())
		_ = session.Save()
		c.Set(ContextUserKey, userID)
		c.Next()
	}
}

// VerifyCSRF は X-CSRF-Token ヘッダーを検証するミドルウェアです。
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
				"error": "CSRF token missing.",
			})
			return
		}

		received := c.GetHeader(csrfHeader)
		if subtle.ConstantTimeCompare([]byte(expected), []byte(received)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "CSRF token mismatch.",
			})
			return
		}

		c.Next()
	}
}

// 試行制限ストアの障害時はロック無し扱いで続行する（ログイン自体は bcrypt 検証が守る）。

func (m *Manager) checkLock(ctx context.Context, ip string) time.Duration {
	retryAfter, err := m.attempts.CheckLock(ctx, ip)
	if err != nil {
		return 0
	}
	return retryAfter
}

func (m *Manager) recordFailure(ctx context.Context, ip string) {
	_, _ = m.attempts.RecordFailure(ctx, ip)
}

func (m *Manager) resetAttempts(ctx context.Context, ip string) {
	_ = m.attempts.Reset(ctx, ip)
}

func verifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
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

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}
