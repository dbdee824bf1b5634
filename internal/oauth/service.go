// Package oauth はOAuth2クライアント・認可コード・トークンのライフサイクルを提供する。
package oauth

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/accountd/internal/model"
	"github.com/hitoshi/accountd/internal/repository"
)

// IdentifierSource はclient_idとclient_secretの生成元。
type IdentifierSource interface {
	ClientID() (string, error)
	ClientSecret() (string, error)
}

// RedirectURIValidator はリダイレクトURIの検証インターフェース。
type RedirectURIValidator interface {
	Validate(rawURI string) error
}

// MarkupChecker は表示用テキストのマークアップ検査インターフェース。
type MarkupChecker interface {
	ContainsMarkup(text string) bool
}

// ServiceConfig はOAuth2サービスの設定。
type ServiceConfig struct {
	GrantTTL time.Duration    // 認可コードの有効期間。0の場合はmodel.GrantTTL
	Now      func() time.Time // 現在時刻。nilの場合はtime.Now
}

// Service はクライアント登録・認可コード・トークン管理のビジネスロジックを提供する。
// 各操作は1回のストア操作で完結し、呼び出し間で状態を保持しない。
type Service struct {
	clientRepo repository.ClientRepository
	grantRepo  repository.GrantRepository
	tokenRepo  repository.TokenRepository
	scopes     *ScopeSet
	ids        IdentifierSource
	redirects  RedirectURIValidator
	markup     MarkupChecker
	grantTTL   time.Duration
	now        func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	clientRepo repository.ClientRepository,
	grantRepo repository.GrantRepository,
	tokenRepo repository.TokenRepository,
	scopes *ScopeSet,
	ids IdentifierSource,
	redirects RedirectURIValidator,
	markup MarkupChecker,
	config ServiceConfig,
) *Service {
	s := &Service{
		clientRepo: clientRepo,
		grantRepo:  grantRepo,
		tokenRepo:  tokenRepo,
		scopes:     scopes,
		ids:        ids,
		redirects:  redirects,
		markup:     markup,
		grantTTL:   config.GrantTTL,
		now:        config.Now,
	}
	if s.grantTTL <= 0 {
		s.grantTTL = model.GrantTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Scopes は許可されたスコープ集合を返す。
func (s *Service) Scopes() *ScopeSet {
	return s.scopes
}

// currentTime はUTCの現在時刻を秒未満切り捨てで返す。
// 結果はUnix秒で返却されるため、保存値と返却値を一致させる。
func (s *Service) currentTime() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

// MaxClientIDLength はclient_idの最大長。clientsテーブルの主キー列幅に合わせる。
const MaxClientIDLength = 40

// validateClientID は認可コードとトークンが参照するclient_idを検証する。
func validateClientID(clientID string) error {
	if clientID == "" {
		return model.NewInvalidParamsError("client_id is required")
	}
	if utf8.RuneCountInString(clientID) > MaxClientIDLength {
		return model.NewInvalidParamsError(fmt.Sprintf("client_id must be at most %d characters", MaxClientIDLength))
	}
	return nil
}

// unknownReference は違反した外部キー制約から参照先の列を判定してエラーを生成する。
func unknownReference(err error) *model.APIError {
	switch repository.ViolatedConstraint(err) {
	case repository.ConstraintClientUserFK, repository.ConstraintGrantUserFK, repository.ConstraintTokenUserFK:
		return model.NewUnknownReferenceError("user_id")
	}
	return model.NewUnknownReferenceError("client_id")
}
