package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/soundcircle/internal/identity"
	"github.com/hitoshi/soundcircle/internal/metrics"
	"github.com/hitoshi/soundcircle/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Oracle            identity.Oracle
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// サービス
	AccountService AccountServiceInterface
	GroupService   GroupServiceInterface
	ScrapeHistory  ScrapeHistoryInterface

	// Webhook
	WebhookSecret string

	// メトリクス公開
	Gatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → CORS → Auth → RateLimit(General)
//
// ヘルスチェック、メトリクス、Webhookは認証チェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	accountHandler := NewAccountHandler(deps.AccountService)
	groupHandler := NewGroupHandler(deps.GroupService)
	scrapeHandler := NewScrapeHandler(deps.ScrapeHistory)
	webhookHandler := NewWebhookHandler(deps.AccountService, deps.WebhookSecret, deps.Logger)

	// --- 認証不要のルート ---

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// Webhookは共有シークレットで検証する
	r.Post("/webhooks/identity-deleted", webhookHandler.IdentityDeleted)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Auth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.Oracle, deps.Logger))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// アカウント管理
		r.Route("/api/accounts", func(r chi.Router) {
			// POST /api/accounts - アカウント作成（作成専用レート制限を追加）
			r.With(deps.RateLimiter.AccountRegistrationMiddleware()).Post("/", accountHandler.CreateAccount)
			r.Get("/me", accountHandler.GetAccount)
			r.Delete("/me", accountHandler.DeleteAccount)
		})

		// Spotify連携
		r.Post("/api/spotify/auth-code", accountHandler.SubmitAuthCode)

		// 再生履歴
		r.Get("/api/scrapes", scrapeHandler.ListScrapes)

		// グループ管理
		r.Route("/api/groups", func(r chi.Router) {
			r.Post("/", groupHandler.CreateGroup)

			r.Route("/{id}", func(r chi.Router) {
				r.Post("/join", groupHandler.JoinGroup)
				r.Post("/leave", groupHandler.LeaveGroup)
			})
		})
	})

	return r
}
