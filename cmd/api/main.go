// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/book-ledger/internal/auth"
	"github.com/yourusername/book-ledger/internal/config"
	"github.com/yourusername/book-ledger/internal/ledger"
	"github.com/yourusername/book-ledger/internal/storage"
	"github.com/yourusername/book-ledger/internal/store"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	ctx := context.Background()

	// ストア接続はプロセス起動時に一度だけ構築し、各コンポーネントへ渡す
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	recordStore := store.NewPostgres(pool)
	if err := recordStore.Migrate(ctx); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	covers, err := storage.NewLocal(cfg.UploadDir)
	if err != nil {
		log.Fatalf("Failed to init cover storage: %v", err)
	}

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()

	// セッションストアの設定（クッキー署名鍵は必須）
	sessionStore := cookie.NewStore([]byte(cfg.SessionSecret))
	sessionStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   auth.SessionMaxAgeSeconds(),
		HttpOnly: true,
		Secure:   cfg.GinMode == gin.ReleaseMode,
		SameSite: http.SameSiteStrictMode,
	})
	router.Use(sessions.Sessions(auth.SessionCookieName, sessionStore))

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
		"X-CSRF-Token", // CSRF保護用ヘッダー
	}
	// フロントエンドがレスポンスヘッダーから CSRF トークンを読み取れるように公開
	corsConfig.ExposeHeaders = []string{"X-CSRF-Token"}
	router.Use(cors.New(corsConfig))

	// ルーティングの設定
	setupRoutes(router, cfg, recordStore, covers)

	// サーバーの起動
	addr := ":" + cfg.Port
	log.Printf("Starting API server on %s (mode: %s)", addr, cfg.GinMode)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "book-ledger-api",
		"version": "0.1.0",
	})
}

// setupRoutes は貸出台帳と認証周りの配線を行います。
func setupRoutes(router *gin.Engine, cfg *config.Config, recordStore *store.Postgres, covers storage.Storage) {
	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", handleHealth)

	authManager := auth.NewManager(recordStore, newAttemptStore(cfg))
	lending := ledger.NewService(recordStore)

	router.POST("/signup", authManager.Signup)
	router.POST("/login", authManager.Login)
	router.POST("/logout",
		authManager.RequireLogin(),
		authManager.VerifyCSRF(),
		authManager.Logout,
	)

	// 台帳操作はログイン済みセッションとCSRFトークンを要求する
	protected := router.Group("")
	protected.Use(authManager.RequireLogin(), authManager.VerifyCSRF())
	{
		protected.POST("/borrow-book", ledger.BorrowHandler(lending))
		protected.POST("/return-book", ledger.ReturnHandler(lending))
		protected.POST("/add-book", ledger.AddBookHandler(lending, covers, cfg.MaxCoverSize))
	}

	// 表紙画像の静的配信
	router.Static("/uploads", cfg.UploadDir)
}

// newAttemptStore はログイン試行制限のバックエンドを選択します。
// Redis が設定されていない場合はプロセス内のメモリで管理します。
func newAttemptStore(cfg *config.Config) auth.AttemptStore {
	if cfg.AttemptRedisURL == "" {
		return auth.NewMemoryAttemptStore()
	}
	opt, err := redis.ParseURL(cfg.AttemptRedisURL)
	if err != nil {
		log.Fatalf("Failed to parse ATTEMPT_REDIS_URL: %v", err)
	}
	return auth.NewRedisAttemptStore(redis.NewClient(opt))
}
