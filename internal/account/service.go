// Package account はアカウント登録とパスワード認証のドメインロジックを提供する。
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/accountd/internal/model"
	"github.com/hitoshi/accountd/internal/password"
	"github.com/hitoshi/accountd/internal/repository"
)

// 入力値の上限（文字数）。スキーマのVARCHAR長に合わせる。
const (
	MaxNicknameLength = 50
	MaxEmailLength    = 255
)

// PasswordHasher はパスワードのハッシュ化と検証のインターフェース。
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
}

// MarkupChecker は表示用テキストのマークアップ検査インターフェース。
type MarkupChecker interface {
	ContainsMarkup(text string) bool
}

// Service はアカウント登録・認証・トークンからのユーザー解決を提供する。
// 内部状態を持たず、複数goroutineから同時に使用できる。
type Service struct {
	userRepo  repository.UserRepository
	tokenRepo repository.TokenRepository
	hasher    PasswordHasher
	markup    MarkupChecker
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	tokenRepo repository.TokenRepository,
	hasher PasswordHasher,
	markup MarkupChecker,
) *Service {
	return &Service{
		userRepo:  userRepo,
		tokenRepo: tokenRepo,
		hasher:    hasher,
		markup:    markup,
	}
}

// RegisterUser はユーザー・主メールアドレス・パスワード認証情報を1トランザクションで作成する。
// 作成されたユーザーは有効状態となる。
// メールアドレスが登録済みの場合はDUPLICATE_ACCOUNTエラーを返し、いずれの行も残さない。
func (s *Service) RegisterUser(ctx context.Context, nickname, email, plaintext string) (*model.UserSnapshot, error) {
	if err := s.validateRegistration(nickname, email, plaintext); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(plaintext)
	if errors.Is(err, password.ErrTooLong) {
		return nil, model.NewInvalidParamsError(fmt.Sprintf("password must be at most %d bytes", password.MaxLength))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Nickname:  nickname,
		IsEnabled: true,
	}
	userEmail := &model.UserEmail{
		Email:     email,
		IsPrimary: true,
	}
	auth := &model.UserAuth{
		Password: hash,
	}

	// 一意制約を正とするため事前チェックは行わない
	if err := s.userRepo.CreateWithEmailAndAuth(ctx, user, userEmail, auth); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewDuplicateAccountError(email)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	snapshot := user.Snapshot()
	return &snapshot, nil
}

// Authenticate はメールアドレスとパスワードでユーザーを認証する。
// メールアドレス未登録・認証情報なし・パスワード不一致のいずれの場合もnil, nilを返す。
func (s *Service) Authenticate(ctx context.Context, username, plaintext string) (*model.UserSnapshot, error) {
	userEmail, err := s.userRepo.FindEmail(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to find email: %w", err)
	}
	if userEmail == nil {
		return nil, nil
	}

	auth, err := s.userRepo.FindAuthByUserID(ctx, userEmail.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user auth: %w", err)
	}
	if auth == nil {
		return nil, nil
	}

	if !s.hasher.Verify(plaintext, auth.Password) {
		return nil, nil
	}

	return s.findUser(ctx, userEmail.UserID)
}

// GetUserByToken はアクセストークン値からトークンを引き、紐づくユーザーを返す。
// tokenTypeが空の場合はbearerとみなす。bearer以外はINVALID_TOKEN_TYPEエラーとなる。
// トークンが存在しない場合はnil, nilを返す。有効期限の判定は呼び出し元が行う。
func (s *Service) GetUserByToken(ctx context.Context, tokenValue, tokenType string) (*model.UserSnapshot, error) {
	if tokenType == "" {
		tokenType = model.TokenTypeBearer
	}
	if tokenType != model.TokenTypeBearer {
		return nil, model.NewInvalidTokenTypeError(tokenType)
	}
	if tokenValue == "" {
		return nil, nil
	}

	token, err := s.tokenRepo.FindByAccessToken(ctx, tokenValue)
	if err != nil {
		return nil, fmt.Errorf("failed to find token: %w", err)
	}
	if token == nil {
		return nil, nil
	}

	return s.findUser(ctx, token.UserID)
}

func (s *Service) findUser(ctx context.Context, userID int64) (*model.UserSnapshot, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, nil
	}
	snapshot := user.Snapshot()
	return &snapshot, nil
}

// validateRegistration は登録パラメータの値を検証する。
func (s *Service) validateRegistration(nickname, email, plaintext string) error {
	n := utf8.RuneCountInString(nickname)
	if n == 0 || strings.TrimSpace(nickname) == "" {
		return model.NewInvalidParamsError("nickname is required")
	}
	if n > MaxNicknameLength {
		return model.NewInvalidParamsError(fmt.Sprintf("nickname must be at most %d characters", MaxNicknameLength))
	}
	if s.markup != nil && s.markup.ContainsMarkup(nickname) {
		return model.NewInvalidParamsError("nickname must not contain markup")
	}

	if email == "" {
		return model.NewInvalidParamsError("email is required")
	}
	if utf8.RuneCountInString(email) > MaxEmailLength {
		return model.NewInvalidParamsError(fmt.Sprintf("email must be at most %d characters", MaxEmailLength))
	}
	if model.HasWhitespace(email) || !strings.Contains(email, "@") {
		return model.NewInvalidParamsError("email is malformed")
	}

	if plaintext == "" {
		return model.NewInvalidParamsError("password is required")
	}
	if len(plaintext) > password.MaxLength {
		return model.NewInvalidParamsError(fmt.Sprintf("password must be at most %d bytes", password.MaxLength))
	}
	return nil
}
