package oauth

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/hitoshi/accountd/internal/model"
	"github.com/hitoshi/accountd/internal/repository"
)

// 入力値の上限（文字数）
const (
	MaxClientNameLength        = 40
	MaxClientDescriptionLength = 400
)

// maxIdentifierAttempts は識別子が衝突した場合の再生成回数の上限。
const maxIdentifierAttempts = 3

// ClientInput はクライアント作成パラメータ。
type ClientInput struct {
	Name           string
	Description    string
	UserID         *int64
	IsConfidential bool
	RedirectURIs   []string
	DefaultScopes  []string
}

// CreateClient はclient_idとclient_secretを生成してクライアントを登録する。
// 識別子が既存の値と衝突した場合は生成し直す。
func (s *Service) CreateClient(ctx context.Context, in ClientInput) (*model.ClientSnapshot, error) {
	if err := s.validateClient(in); err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		clientID, err := s.ids.ClientID()
		if err != nil {
			return nil, fmt.Errorf("failed to generate client_id: %w", err)
		}
		clientSecret, err := s.ids.ClientSecret()
		if err != nil {
			return nil, fmt.Errorf("failed to generate client_secret: %w", err)
		}

		client := &model.Client{
			ClientID:       clientID,
			ClientSecret:   clientSecret,
			Name:           in.Name,
			Description:    in.Description,
			UserID:         in.UserID,
			IsConfidential: in.IsConfidential,
			RedirectURIs:   in.RedirectURIs,
			DefaultScopes:  in.DefaultScopes,
		}

		err = s.clientRepo.Create(ctx, client)
		if err == nil {
			snapshot := client.Snapshot()
			return &snapshot, nil
		}
		if errors.Is(err, repository.ErrForeignKey) {
			return nil, model.NewUnknownReferenceError("user_id")
		}
		if errors.Is(err, repository.ErrDuplicate) && attempt < maxIdentifierAttempts {
			continue
		}
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
}

// GetClient はclient_idでクライアントを取得する。見つからない場合はnil, nilを返す。
func (s *Service) GetClient(ctx context.Context, clientID string) (*model.ClientSnapshot, error) {
	if clientID == "" {
		return nil, nil
	}
	client, err := s.clientRepo.FindByClientID(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to find client: %w", err)
	}
	if client == nil {
		return nil, nil
	}
	snapshot := client.Snapshot()
	return &snapshot, nil
}

// validateClient はクライアント作成パラメータを検証する。
func (s *Service) validateClient(in ClientInput) error {
	if utf8.RuneCountInString(in.Name) > MaxClientNameLength {
		return model.NewInvalidParamsError(fmt.Sprintf("name must be at most %d characters", MaxClientNameLength))
	}
	if utf8.RuneCountInString(in.Description) > MaxClientDescriptionLength {
		return model.NewInvalidParamsError(fmt.Sprintf("description must be at most %d characters", MaxClientDescriptionLength))
	}
	if s.markup != nil {
		if s.markup.ContainsMarkup(in.Name) {
			return model.NewInvalidParamsError("name must not contain markup")
		}
		if s.markup.ContainsMarkup(in.Description) {
			return model.NewInvalidParamsError("description must not contain markup")
		}
	}
	for _, uri := range in.RedirectURIs {
		if err := s.redirects.Validate(uri); err != nil {
			return model.NewInvalidRedirectURIError(uri)
		}
	}
	return s.scopes.Validate(in.DefaultScopes)
}
