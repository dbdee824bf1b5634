// Package handler はJSON-RPCメソッドとHTTPルーティングを提供する。
package handler

import (
	"context"
	"errors"

	"github.com/hitoshi/accountd/internal/middleware"
	"github.com/hitoshi/accountd/internal/model"
	"github.com/hitoshi/accountd/internal/rpc"
)

// AccountServiceInterface はアカウントハンドラーが必要とするサービスインターフェース。
type AccountServiceInterface interface {
	RegisterUser(ctx context.Context, nickname, email, password string) (*model.UserSnapshot, error)
	Authenticate(ctx context.Context, username, password string) (*model.UserSnapshot, error)
	GetUserByToken(ctx context.Context, tokenValue, tokenType string) (*model.UserSnapshot, error)
}

// LoginLimiter はパスワード認証の試行回数を制限する。
type LoginLimiter interface {
	AllowLogin(clientIP string) bool
}

// AccountMetrics はアカウント操作の結果の記録先。
type AccountMetrics interface {
	RecordRegistration(outcome string)
	RecordAuthentication(outcome string)
}

// 認証・登録の結果ラベル
const (
	outcomeSuccess     = "success"
	outcomeFailure     = "failure"
	outcomeDuplicate   = "duplicate"
	outcomeInvalid     = "invalid"
	outcomeRateLimited = "rate_limited"
	outcomeError       = "error"
)

// ValidateUserParams はAccount.validate_userのパラメータ。
type ValidateUserParams struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate は必須パラメータを検証する。
// 空のパスワードは他の不一致と同じく認証失敗（null）として扱うため、ここでは検査しない。
func (p *ValidateUserParams) Validate() error {
	if p.Username == "" {
		return model.NewInvalidParamsError("username is required")
	}
	return nil
}

// GetUserByTokenParams はAccount.get_user_by_tokenのパラメータ。
// token_typeを省略した場合はbearerとして扱う。
type GetUserByTokenParams struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
}

// Validate は必須パラメータを検証する。
func (p *GetUserByTokenParams) Validate() error {
	if p.Token == "" {
		return model.NewInvalidParamsError("token is required")
	}
	return nil
}

// RegisterUserParams はAccount.register_user_by_emailのパラメータ。
type RegisterUserParams struct {
	Nickname string `json:"nickname"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AccountHandler はAccount.*メソッドのハンドラー。
type AccountHandler struct {
	service AccountServiceInterface
	limiter LoginLimiter
	metrics AccountMetrics
}

// NewAccountHandler はAccountHandlerを生成する。limiterとmetricsはnilでもよい。
func NewAccountHandler(service AccountServiceInterface, limiter LoginLimiter, metrics AccountMetrics) *AccountHandler {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &AccountHandler{
		service: service,
		limiter: limiter,
		metrics: metrics,
	}
}

// Register はAccount.*メソッドをサーバーに登録する。
func (h *AccountHandler) Register(s *rpc.Server) {
	s.Register("Account.validate_user", rpc.Method(h.ValidateUser))
	s.Register("Account.get_user_by_token", rpc.Method(h.GetUserByToken))
	s.Register("Account.register_user_by_email", rpc.Method(h.RegisterUserByEmail))
}

// ValidateUser はメールアドレスとパスワードでユーザーを認証する。
// 認証に失敗した場合はnull（nilスナップショット）を返す。
func (h *AccountHandler) ValidateUser(ctx context.Context, p ValidateUserParams) (*model.UserSnapshot, error) {
	if h.limiter != nil && !h.limiter.AllowLogin(middleware.ClientIPFromContext(ctx)) {
		h.metrics.RecordAuthentication(outcomeRateLimited)
		return nil, model.NewRateLimitedError()
	}

	user, err := h.service.Authenticate(ctx, p.Username, p.Password)
	switch {
	case err != nil:
		h.metrics.RecordAuthentication(outcomeError)
		return nil, err
	case user == nil:
		h.metrics.RecordAuthentication(outcomeFailure)
		return nil, nil
	}

	h.metrics.RecordAuthentication(outcomeSuccess)
	return user, nil
}

// GetUserByToken はアクセストークンに紐付くユーザーを返す。
func (h *AccountHandler) GetUserByToken(ctx context.Context, p GetUserByTokenParams) (*model.UserSnapshot, error) {
	return h.service.GetUserByToken(ctx, p.Token, p.TokenType)
}

// RegisterUserByEmail はメールアドレスでアカウントを登録する。
func (h *AccountHandler) RegisterUserByEmail(ctx context.Context, p RegisterUserParams) (*model.UserSnapshot, error) {
	user, err := h.service.RegisterUser(ctx, p.Nickname, p.Email, p.Password)
	if err != nil {
		h.metrics.RecordRegistration(registrationOutcome(err))
		return nil, err
	}
	h.metrics.RecordRegistration(outcomeSuccess)
	return user, nil
}

func registrationOutcome(err error) string {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		return outcomeError
	}
	if apiErr.Code == model.ErrCodeDuplicateAccount {
		return outcomeDuplicate
	}
	return outcomeInvalid
}

// nopMetrics は記録先が指定されなかった場合に使用する。
type nopMetrics struct{}

func (nopMetrics) RecordRegistration(string)   {}
func (nopMetrics) RecordAuthentication(string) {}
func (nopMetrics) RecordTokenIssued()          {}
