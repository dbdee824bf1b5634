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

	"github.com/hitoshi/accountd/internal/account"
	"github.com/hitoshi/accountd/internal/config"
	"github.com/hitoshi/accountd/internal/database"
	"github.com/hitoshi/accountd/internal/handler"
	"github.com/hitoshi/accountd/internal/logger"
	"github.com/hitoshi/accountd/internal/metrics"
	"github.com/hitoshi/accountd/internal/middleware"
	"github.com/hitoshi/accountd/internal/oauth"
	"github.com/hitoshi/accountd/internal/password"
	"github.com/hitoshi/accountd/internal/repository"
	"github.com/hitoshi/accountd/internal/security"
	"github.com/hitoshi/accountd/internal/worker/cleanup"
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
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

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
		slog.String("store", storeKind(cfg)),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// stores はリポジトリ群と接続の後始末をまとめる。
type stores struct {
	users   repository.UserRepository
	clients repository.ClientRepository
	grants  repository.GrantRepository
	tokens  repository.TokenRepository
	health  handler.HealthChecker
	close   func() error
}

// openStores はDATABASE_URLに応じてPostgreSQLまたはインメモリのリポジトリを構築する。
// PostgreSQLの場合は接続確認まで行う。
func openStores(cfg *config.Config) (*stores, error) {
	if cfg.UseMemoryStore() {
		slog.Warn("using in-memory store; all data is lost on exit")
		m := repository.NewMemoryStore()
		return &stores{
			users:   m.Users(),
			clients: m.Clients(),
			grants:  m.Grants(),
			tokens:  m.Tokens(),
			health:  m,
			close:   func() error { return nil },
		}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	slog.Info("database connection established")

	return postgresStores(db), nil
}

func postgresStores(db *sql.DB) *stores {
	return &stores{
		users:   repository.NewPostgresUserRepo(db),
		clients: repository.NewPostgresClientRepo(db),
		grants:  repository.NewPostgresGrantRepo(db),
		tokens:  repository.NewPostgresTokenRepo(db),
		health:  db,
		close:   db.Close,
	}
}

// newServices はドメインサービスを構築する。
func newServices(cfg *config.Config, st *stores) (*account.Service, *oauth.Service) {
	markup := security.NewDisplayTextChecker()

	accountService := account.NewService(
		st.users, st.tokens, password.NewHasher(cfg.BcryptCost), markup,
	)
	oauthService := oauth.NewService(
		st.clients, st.grants, st.tokens,
		oauth.NewScopeSet(cfg.AllowedScopes),
		security.NewIdentifierGenerator(),
		security.NewRedirectURIValidator(),
		markup,
		oauth.ServiceConfig{GrantTTL: cfg.GrantTTL},
	)
	return accountService, oauthService
}

// newRegistry はアプリケーションメトリクスとランタイムメトリクスを登録したレジストリを返す。
func newRegistry() (*prometheus.Registry, *metrics.Collector) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry, metrics.NewCollector(registry)
}

// newCleanupJob はクリーンアップジョブを構築する。
func newCleanupJob(cfg *config.Config, st *stores, collector *metrics.Collector) *cleanup.CleanupJob {
	return cleanup.NewCleanupJob(st.grants, st.tokens, collector, slog.Default(), cleanup.Config{
		GrantRetention: cfg.GrantRetention,
		TokenRetention: cfg.TokenRetention,
	})
}

// newRouter はserveモードのHTTPハンドラーを構築する。
// 返されたRateLimiterはシャットダウン時にStopすること。
func newRouter(cfg *config.Config, st *stores, registry *prometheus.Registry, collector *metrics.Collector) (http.Handler, *middleware.RateLimiter) {
	accountService, oauthService := newServices(cfg, st)
	slog.Info("oauth2 scopes configured",
		slog.Any("allowed_scopes", oauthService.Scopes().Scopes()),
		slog.Duration("grant_ttl", cfg.GrantTTL),
	)

	rateLimiter := middleware.NewRateLimiter(
		middleware.PerMinuteRateLimiterConfig(cfg.RateLimitRPC, cfg.RateLimitLogin),
		collector,
	)

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		HealthChecker:     st.health,
		Metrics:           collector,
		Gatherer:          registry,
		AccountService:    accountService,
		OAuthService:      oauthService,
	})
	return router, rateLimiter
}

// runServe はAPIサーバーモードで起動する。
// ストアを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// インメモリストアの場合は別プロセスのワーカーからデータが見えないため、
// クリーンアップジョブも同一プロセスで実行する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer st.close()

	registry, collector := newRegistry()
	router, rateLimiter := newRouter(cfg, st, registry, collector)
	defer rateLimiter.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.UseMemoryStore() {
		go newCleanupJob(cfg, st, collector).Start(ctx, cfg.CleanupInterval)
	}

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

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れの認可コードとトークンをCLEANUP_INTERVAL間隔で削除し、
// 削除件数をSERVER_PORTの/metricsで公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	if cfg.UseMemoryStore() {
		return fmt.Errorf("worker requires a PostgreSQL DATABASE_URL; the in-memory store is cleaned up by serve")
	}

	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer st.close()

	registry, collector := newRegistry()
	job := newCleanupJob(cfg, st, collector)

	metricsServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           metrics.SetupMetricsRoute(registry),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server listen error", slog.String("error", err.Error()))
		}
	}()

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
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Duration("grant_retention", cfg.GrantRetention),
		slog.Duration("token_retention", cfg.TokenRetention),
	)

	// クリーンアップジョブをメインgoroutineで実行（ブロッキング）
	job.Start(ctx, cfg.CleanupInterval)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("metrics server shutdown failed", slog.String("error", err.Error()))
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.UseMemoryStore() {
		slog.Info("in-memory store has no schema; skipping migrations")
		return nil
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
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

func storeKind(cfg *config.Config) string {
	if cfg.UseMemoryStore() {
		return "memory"
	}
	return "postgres"
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
