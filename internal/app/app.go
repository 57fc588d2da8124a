// Package app はrhetorのコマンド群と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/rhetor-app/rhetor/internal/audio"
	"github.com/rhetor-app/rhetor/internal/auth"
	"github.com/rhetor-app/rhetor/internal/config"
	"github.com/rhetor-app/rhetor/internal/dashboard"
	"github.com/rhetor-app/rhetor/internal/database"
	"github.com/rhetor-app/rhetor/internal/handler"
	"github.com/rhetor-app/rhetor/internal/logger"
	"github.com/rhetor-app/rhetor/internal/metrics"
	"github.com/rhetor-app/rhetor/internal/middleware"
	"github.com/rhetor-app/rhetor/internal/pod"
	"github.com/rhetor-app/rhetor/internal/profile"
	"github.com/rhetor-app/rhetor/internal/repository"
	"github.com/rhetor-app/rhetor/internal/security"
	"github.com/rhetor-app/rhetor/internal/session"
	"github.com/rhetor-app/rhetor/internal/storage"
	"github.com/rhetor-app/rhetor/internal/worker/reconcile"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ったJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたレベルでロガーを再構成する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。サブコマンド省略時はserveとして起動する。
func Run(w io.Writer, args []string) error {
	root := NewRootCommand(w)
	root.SetArgs(args)
	return root.Execute()
}

// server はAPIサーバーの依存関係をまとめた構造体。
type server struct {
	router      http.Handler
	rateLimiter *middleware.RateLimiter
}

// newServer は設定とDB接続から全依存関係をワイヤリングする。
func newServer(cfg *config.Config, db *sql.DB, log *slog.Logger) (*server, error) {
	// 1. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	// 2. リポジトリの初期化
	profileRepo := repository.NewPostgresProfileRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	reviewRepo := repository.NewPostgresReviewRepo(db)
	cohortRepo := repository.NewPostgresCohortRepo(db)
	podRepo := repository.NewPostgresPodRepo(db)

	// 3. 外部サービスクライアントの初期化
	platformClient := &http.Client{Timeout: cfg.PlatformTimeout}
	storageClient := storage.NewClient(platformClient, log, cfg.PlatformURL, cfg.PlatformServiceRoleKey, cfg.PlatformServiceRoleKey)
	verifier := newVerifier(cfg, platformClient, log)

	// 4. ドメインサービスの初期化
	source, err := newDashboardSource(cfg, profileRepo, sessionRepo, reviewRepo)
	if err != nil {
		return nil, err
	}
	dashboardService := dashboard.NewAggregator(source, collector, log)
	sessionService := session.NewService(sessionRepo, podRepo, collector, log, cfg.AudioBucket)
	podService := pod.NewService(profileRepo, cohortRepo, podRepo, collector, log)
	audioService := audio.NewService(sessionRepo, storageClient, collector, log, cfg.AudioBucket)
	profileService := profile.NewService(profileRepo, security.NewTextSanitizer(), log)

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitSessionCreate),
	)

	deps := &handler.RouterDeps{
		Logger:            log,
		Verifier:          verifier,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		StatusObserver:    collector,

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(registry),

		SessionService:   sessionService,
		PodService:       podService,
		AudioService:     audioService,
		DashboardService: dashboardService,
		ProfileService:   profileService,
	}

	return &server{
		router:      handler.NewRouter(deps),
		rateLimiter: rateLimiter,
	}, nil
}

// newVerifier はAUTH_MODEに応じたトークン検証器を返す。
func newVerifier(cfg *config.Config, httpClient *http.Client, log *slog.Logger) auth.TokenVerifier {
	if cfg.AuthMode == config.AuthModeBypass {
		log.Warn("auth bypass is enabled; all requests are attributed to a fixed user",
			slog.String("user_id", cfg.BypassUserID),
		)
		return auth.NewStaticVerifier(cfg.BypassUserID)
	}
	return auth.NewPlatformVerifier(httpClient, log, cfg.PlatformURL, cfg.PlatformAnonKey)
}

// newDashboardSource はDASHBOARD_SOURCEに応じたダッシュボードのデータソースを返す。
func newDashboardSource(
	cfg *config.Config,
	profiles repository.ProfileRepository,
	sessions repository.SessionRepository,
	reviews repository.ReviewRepository,
) (dashboard.Source, error) {
	if cfg.DashboardSource == config.DashboardSourceFixture {
		src, err := dashboard.LoadFixtureSource(cfg.DashboardFixturePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load dashboard fixture: %w", err)
		}
		return src, nil
	}
	return dashboard.NewLiveSource(profiles, sessions, reviews), nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := database.Ping(context.Background(), db, 5*time.Second); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. 依存関係のワイヤリング
	srv, err := newServer(cfg, db, slog.Default())
	if err != nil {
		return err
	}
	defer srv.rateLimiter.Stop()

	// 3. HTTPサーバーの起動
	httpServer := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", httpServer.Addr),
			slog.String("auth_mode", cfg.AuthMode),
			slog.String("dashboard_source", cfg.DashboardSource),
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// RECONCILE_ORPHAN_AFTERが設定されている場合のみ孤立セッション整合ジョブを実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	if !cfg.ReconcileEnabled() {
		slog.Info("orphan reconciliation is disabled; worker has nothing to do",
			slog.String("hint", "set RECONCILE_ORPHAN_AFTER to enable"),
		)
		return nil
	}

	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := database.Ping(context.Background(), db, 5*time.Second); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. 依存関係の初期化
	sessionRepo := repository.NewPostgresSessionRepo(db)
	storageClient := storage.NewClient(
		&http.Client{Timeout: cfg.PlatformTimeout},
		slog.Default(),
		cfg.PlatformURL, cfg.PlatformServiceRoleKey, cfg.PlatformServiceRoleKey,
	)
	job := reconcile.NewJob(sessionRepo, storageClient, metrics.NopCollector{}, slog.Default(), reconcile.Options{
		Bucket:        cfg.AudioBucket,
		OrphanAfter:   cfg.ReconcileOrphanAfter,
		BatchSize:     cfg.ReconcileBatchSize,
		MaxConcurrent: cfg.ReconcileMaxConcurrent,
	})

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ジョブをメインgoroutineで実行（ブロッキング）
	job.Start(ctx, cfg.ReconcileInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := database.SchemaVersion(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
