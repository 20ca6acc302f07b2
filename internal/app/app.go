package app

import (
	"context"
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

	"github.com/hitoshi/soundcircle/internal/account"
	"github.com/hitoshi/soundcircle/internal/config"
	"github.com/hitoshi/soundcircle/internal/database"
	"github.com/hitoshi/soundcircle/internal/group"
	"github.com/hitoshi/soundcircle/internal/handler"
	"github.com/hitoshi/soundcircle/internal/identity"
	"github.com/hitoshi/soundcircle/internal/logger"
	"github.com/hitoshi/soundcircle/internal/metrics"
	"github.com/hitoshi/soundcircle/internal/middleware"
	"github.com/hitoshi/soundcircle/internal/repository"
	"github.com/hitoshi/soundcircle/internal/scrape"
	"github.com/hitoshi/soundcircle/internal/security"
	"github.com/hitoshi/soundcircle/internal/spotify"
	"github.com/hitoshi/soundcircle/internal/store"
	"github.com/hitoshi/soundcircle/internal/worker/cleanup"
	"github.com/hitoshi/soundcircle/internal/worker/refresh"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
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

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. ドキュメントストアとリポジトリの初期化
	docStore := store.NewPostgresStore(db)
	userRepo := repository.NewStoreUserRepo(docStore)
	groupRepo := repository.NewStoreGroupRepo(docStore)
	scrapeRepo := repository.NewStoreScrapeRepo(docStore)

	// 3. 外部サービスクライアントの初期化
	oracle := identity.NewClient(
		&http.Client{Timeout: cfg.AuthAPITimeout},
		slog.Default(), cfg.AuthAPIBaseURL, cfg.AuthAPIKey,
	)
	spotifyClient := spotify.NewClient(
		&http.Client{Timeout: cfg.SpotifyTimeout},
		slog.Default(),
		spotify.Config{
			ClientID:     cfg.SpotifyClientID,
			ClientSecret: cfg.SpotifyClientSecret,
			RedirectURL:  cfg.SpotifyRedirectURL,
		},
	)

	// 4. ドメインサービスの初期化
	sanitizer := security.NewNameSanitizer()
	accountService := account.NewService(userRepo, spotifyClient, sanitizer, slog.Default())
	groupService := group.NewService(groupRepo, userRepo, sanitizer, slog.Default(), cfg.ExemptGroupID)

	// 5. メトリクスレジストリの初期化（APIサーバーはランタイムメトリクスのみ公開する）
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// 6. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAccountReg),
		slog.Default(),
	)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Oracle:            oracle,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),

		AccountService: accountService,
		GroupService:   groupService,
		ScrapeHistory:  scrapeRepo,

		WebhookSecret: cfg.WebhookSecret,
		Gatherer:      registry,
	})

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、毎時のリフレッシュ・取り込みジョブと
// 日次のクリーンアップジョブを独立したスケジュールで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. ドキュメントストアとリポジトリの初期化
	docStore := store.NewPostgresStore(db)
	userRepo := repository.NewStoreUserRepo(docStore)
	groupRepo := repository.NewStoreGroupRepo(docStore)
	scrapeRepo := repository.NewStoreScrapeRepo(docStore)

	// 3. 外部サービスクライアントの初期化
	oracle := identity.NewClient(
		&http.Client{Timeout: cfg.AuthAPITimeout},
		slog.Default(), cfg.AuthAPIBaseURL, cfg.AuthAPIKey,
	)
	spotifyClient := spotify.NewClient(
		&http.Client{Timeout: cfg.SpotifyTimeout},
		slog.Default(),
		spotify.Config{
			ClientID:     cfg.SpotifyClientID,
			ClientSecret: cfg.SpotifyClientSecret,
			RedirectURL:  cfg.SpotifyRedirectURL,
		},
	)

	// 4. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 5. ジョブの初期化
	sanitizer := security.NewNameSanitizer()
	scrapeService := scrape.NewService(scrapeRepo, spotifyClient, cfg.Location(), collector, slog.Default())
	refreshJob := refresh.NewJob(userRepo, spotifyClient, scrapeService, collector, slog.Default())

	groupService := group.NewService(groupRepo, userRepo, sanitizer, slog.Default(), cfg.ExemptGroupID)
	cleanupJob := cleanup.NewJob(userRepo, oracle, groupService, collector, slog.Default())

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("refresh_interval", cfg.RefreshInterval),
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.String("timezone", cfg.Timezone),
	)

	// ジョブメトリクスの公開用に軽量なHTTPサーバーを起動
	go serveWorkerMetrics(ctx, cfg.ServerPort, registry)

	// クリーンアップジョブをバックグラウンドで起動
	go cleanupJob.Start(ctx, cfg.CleanupInterval, cfg.JobTimeout)

	// リフレッシュ・取り込みジョブをメインgoroutineで実行（ブロッキング）
	refreshJob.Start(ctx, cfg.RefreshInterval, cfg.JobTimeout)

	slog.Info("worker stopped gracefully")
	return nil
}

// serveWorkerMetrics はワーカープロセスのメトリクスを公開するHTTPサーバーを起動する。
// コンテキストのキャンセルでシャットダウンする。
func serveWorkerMetrics(ctx context.Context, port string, gatherer prometheus.Gatherer) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(gatherer))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	slog.Info("worker metrics server starting", slog.String("addr", server.Addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("metrics server listen error", slog.String("error", err.Error()))
	}
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

	slog.Info("database migrations completed successfully")
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
