package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rhetor-app/rhetor/internal/auth"
	"github.com/rhetor-app/rhetor/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Verifier          auth.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	StatusObserver    middleware.StatusObserver

	// 運用エンドポイント
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// ドメインサービス
	SessionService   SessionServiceInterface
	PodService       PodServiceInterface
	AudioService     AudioServiceInterface
	DashboardService DashboardServiceInterface
	ProfileService   ProfileServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → BearerAuth → RateLimit(General)
//
// /health と /metrics は認証不要。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.StatusObserver))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.MethodNotAllowed(middleware.MethodNotAllowedHandler)

	sessionHandler := NewSessionHandler(deps.SessionService)
	podHandler := NewPodHandler(deps.PodService)
	audioHandler := NewAudioHandler(deps.AudioService)
	dashboardHandler := NewDashboardHandler(deps.DashboardService)
	profileHandler := NewProfileHandler(deps.ProfileService)

	// --- 認証不要のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: BearerAuth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewBearerAuthMiddleware(deps.Verifier))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// セッション作成は専用のレート制限を追加
		r.With(deps.RateLimiter.SessionCreateMiddleware()).Post("/create-session", sessionHandler.CreateSession)
		r.Post("/assign-to-pod", podHandler.AssignToPod)
		r.Post("/get-session-audio-url", audioHandler.GetSessionAudioURL)

		r.Get("/api/dashboard", dashboardHandler.GetDashboard)
		r.Put("/api/profile", profileHandler.SaveProfile)
	})

	return r
}
