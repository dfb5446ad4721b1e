package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/cubedex/internal/auth"
	"github.com/hitoshi/cubedex/internal/metrics"
	"github.com/hitoshi/cubedex/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// SetupAuthRoutes は認証関連のルーティングを設定したchi.Routerを返す。
func SetupAuthRoutes(service AuthServiceInterface, config AuthHandlerConfig) http.Handler {
	r := chi.NewRouter()
	h := NewAuthHandler(service, config)

	r.Route("/auth", func(r chi.Router) {
		// OAuthフロー
		r.Get("/google/login", h.Login)
		r.Get("/google/callback", h.Callback)

		// セッション管理
		r.Post("/logout", h.Logout)
		r.Get("/me", h.Me)
	})

	return r
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger              *slog.Logger
	CredentialAuthority auth.CredentialAuthority
	ProfileFinder       middleware.ProfileFinder
	CORSAllowedOrigin   string
	RateLimiter         *middleware.RateLimiter
	CSRFConfig          middleware.CSRFConfig

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// アラート購読
	Alerts  AlertSubscriptionStore
	Puzzles PuzzleFinder

	// 通知
	Notifications NotificationStore

	// ベンダーリンク
	VendorLinks VendorLinkCreator
	LinkChecker LinkVerifier

	// レビュー
	ReviewService ReviewServiceInterface

	// アラート評価ラン
	AlertRunner AlertRunner

	// メトリクス
	Metrics         *metrics.Collector // nil可
	MetricsGatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → Identity →
//	  （APIグループのみ）RequireAuthentication → CSRF → RateLimit
//
// 認証ルート（/auth/*）、内部トリガー（/internal/*）、/metrics、/healthz は
// APIグループの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	r.Use(middleware.NewIdentityMiddleware(deps.CredentialAuthority, deps.ProfileFinder))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	alertHandler := NewAlertHandler(deps.Alerts, deps.Puzzles)
	notificationHandler := NewNotificationHandler(deps.Notifications)
	vendorLinkHandler := NewVendorLinkHandler(deps.VendorLinks, deps.Puzzles, deps.LinkChecker, linkMetrics(deps.Metrics))
	reviewHandler := NewReviewHandler(deps.ReviewService)
	alertRunHandler := NewAlertRunHandler(deps.AlertRunner, runMetrics(deps.Metrics))

	// --- 認証不要のルート ---

	// 認証ルート（OAuthフロー）
	r.Route("/auth", func(r chi.Router) {
		r.Get("/google/login", authHandler.Login)
		r.Get("/google/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	// CSRFトークン取得（認証不要）
	r.Handle("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// 内部トリガー（POST以外はハンドラー側で405を返す）
	r.HandleFunc("/internal/alerts/run", alertRunHandler.Run)

	// 稼働確認とメトリクス
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// --- 認証が必要なAPIルート ---
	// ミドルウェアスタック: RequireAuthentication → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuthentication)
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// アラート購読管理
		r.Route("/api/alerts", func(r chi.Router) {
			r.Get("/", alertHandler.ListAlerts)
			// POST /api/alerts - アラート登録（登録専用レート制限を追加）
			r.With(deps.RateLimiter.AlertRegistrationMiddleware()).Post("/", alertHandler.RegisterAlert)

			r.Route("/{id}", func(r chi.Router) {
				r.Patch("/", alertHandler.UpdateAlert)
				r.Delete("/", alertHandler.DeleteAlert)
			})
		})

		// 通知センター
		r.Route("/api/notifications", func(r chi.Router) {
			r.Get("/", notificationHandler.ListNotifications)
			r.Post("/{id}/read", notificationHandler.MarkNotificationRead)
		})

		// パズルごとのベンダーリンクとレビュー
		r.Route("/api/puzzles/{slug}", func(r chi.Router) {
			r.Post("/links", vendorLinkHandler.CreateVendorLink)
			r.Post("/reviews", reviewHandler.CreateReview)
		})

		// レビューへの投票
		r.Post("/api/reviews/{id}/helpful", reviewHandler.AddHelpfulVote)
	})

	return r
}

// linkMetrics はnilを保ったままCollectorをLinkMetricsRecorderに変換する。
func linkMetrics(c *metrics.Collector) LinkMetricsRecorder {
	if c == nil {
		return nil
	}
	return c
}

// runMetrics はnilを保ったままCollectorをRunMetricsRecorderに変換する。
func runMetrics(c *metrics.Collector) RunMetricsRecorder {
	if c == nil {
		return nil
	}
	return c
}
