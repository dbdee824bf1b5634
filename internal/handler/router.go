package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/accountd/internal/metrics"
	"github.com/hitoshi/accountd/internal/middleware"
	"github.com/hitoshi/accountd/internal/rpc"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 監視
	HealthChecker HealthChecker
	Metrics       metrics.MetricsCollector
	Gatherer      prometheus.Gatherer

	// サービス
	AccountService AccountServiceInterface
	OAuthService   OAuthServiceInterface
}

// NewRPCServer はAccount.*とOAuth2.*の全メソッドを登録したJSON-RPCサーバーを返す。
func NewRPCServer(deps *RouterDeps) *rpc.Server {
	var (
		observer   rpc.CallObserver
		accMetrics AccountMetrics
		tokMetrics TokenMetrics
		limiter    LoginLimiter
	)
	if deps.Metrics != nil {
		observer, accMetrics, tokMetrics = deps.Metrics, deps.Metrics, deps.Metrics
	}
	if deps.RateLimiter != nil {
		limiter = deps.RateLimiter
	}

	s := rpc.NewServer(deps.Logger, observer)
	NewAccountHandler(deps.AccountService, limiter, accMetrics).Register(s)
	NewOAuthHandler(deps.OAuthService, tokMetrics).Register(s)
	return s
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → RequestID → ClientIP → Logging → Metrics → Recovery → SecurityHeaders → CORS
//
// POST /rpc にのみRPC全般のレート制限を適用する。/health と /metrics は制限しない。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewClientIPMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	if deps.CORSAllowedOrigin != "" {
		r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	}

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	rpcServer := NewRPCServer(deps)
	r.Group(func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.GeneralMiddleware())
		}
		r.Method(http.MethodPost, "/rpc", rpcServer)
	})

	return r
}
