package oauth

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/accountd/internal/model"
	"github.com/hitoshi/accountd/internal/repository"
	"github.com/hitoshi/accountd/internal/security"
)

// --- モック ---

type mockClientRepo struct {
	createFn func(ctx context.Context, client *model.Client) error
}

func (m *mockClientRepo) Create(ctx context.Context, client *model.Client) error {
	return m.createFn(ctx, client)
}
func (m *mockClientRepo) FindByClientID(ctx context.Context, clientID string) (*model.Client, error) {
	return nil, nil
}

type sequenceIDs struct {
	n int
}

func (s *sequenceIDs) ClientID() (string, error) {
	s.n++
	return "client-" + string(rune('0'+s.n)), nil
}
func (s *sequenceIDs) ClientSecret() (string, error) {
	return "secret-" + string(rune('0'+s.n)), nil
}

// --- ヘルパー ---

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc    *Service
	store  *repository.MemoryStore
	userID int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()

	user := &model.User{Nickname: "owner", IsEnabled: true}
	err := store.Users().CreateWithEmailAndAuth(context.Background(), user,
		&model.UserEmail{Email: "owner@example.org", IsPrimary: true}, &model.UserAuth{Password: "hash"})
	if err != nil {
		t.Fatalf("ユーザー作成に失敗: %v", err)
	}

	svc := NewService(
		store.Clients(),
		store.Grants(),
		store.Tokens(),
		NewScopeSet(DefaultScopes),
		security.NewIdentifierGenerator(),
		security.NewRedirectURIValidator(),
		security.NewDisplayTextChecker(),
		ServiceConfig{Now: func() time.Time { return fixedNow }},
	)
	return &fixture{svc: svc, store: store, userID: user.ID}
}

func (f *fixture) createClient(t *testing.T) *model.ClientSnapshot {
	t.Helper()
	c, err := f.svc.CreateClient(context.Background(), ClientInput{
		Name:           "app",
		UserID:         &f.userID,
		IsConfidential: true,
		RedirectURIs:   []string{"https://app.example/cb"},
		DefaultScopes:  []string{"read"},
	})
	if err != nil {
		t.Fatalf("CreateClient failed: %v", err)
	}
	return c
}

func requireAPIError(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIErrorを期待: %v", err)
	}
	if apiErr.Code != code {
		t.Fatalf("Code = %q, want %q", apiErr.Code, code)
	}
}

// --- クライアント ---

// 作成したクライアントのリスト項目が順序を保って往復することを検証する。
func TestService_CreateClientThenGetClient_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name         string
		confidential bool
		redirects    []string
		scopes       []string
		wantType     model.ClientType
	}{
		{"confidential", true, []string{"https://a.example/cb", "https://b.example/cb"}, []string{"read", "write"}, model.ClientTypeConfidential},
		{"public", false, []string{"com.example.app:/cb"}, []string{"email", "profile", "read"}, model.ClientTypePublic},
		{"空リスト", false, []string{}, []string{}, model.ClientTypePublic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			created, err := f.svc.CreateClient(ctx, ClientInput{
				Name:           tt.name,
				IsConfidential: tt.confidential,
				RedirectURIs:   tt.redirects,
				DefaultScopes:  tt.scopes,
			})
			if err != nil {
				t.Fatalf("CreateClient failed: %v", err)
			}
			if len(created.ClientID) != security.ClientIDLength || len(created.ClientSecret) != security.ClientSecretLength {
				t.Errorf("識別子の長さが不正: %q / %q", created.ClientID, created.ClientSecret)
			}

			got, err := f.svc.GetClient(ctx, created.ClientID)
			if err != nil || got == nil {
				t.Fatalf("GetClient = %v, %v", got, err)
			}
			if !reflect.DeepEqual(got.RedirectURIs, tt.redirects) {
				t.Errorf("RedirectURIs = %v, want %v", got.RedirectURIs, tt.redirects)
			}
			if !reflect.DeepEqual(got.DefaultScopes, tt.scopes) {
				t.Errorf("DefaultScopes = %v, want %v", got.DefaultScopes, tt.scopes)
			}
			if got.ClientType != tt.wantType {
				t.Errorf("ClientType = %q, want %q", got.ClientType, tt.wantType)
			}
			if len(tt.redirects) > 0 {
				if got.DefaultRedirectURI == nil || *got.DefaultRedirectURI != tt.redirects[0] {
					t.Errorf("DefaultRedirectURI = %v, want %q", got.DefaultRedirectURI, tt.redirects[0])
				}
			} else if got.DefaultRedirectURI != nil {
				t.Errorf("DefaultRedirectURI = %q, want nil", *got.DefaultRedirectURI)
			}
		})
	}
}

func TestService_GetClient_Absent(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"", "missing"} {
		got, err := f.svc.GetClient(context.Background(), id)
		if err != nil || got != nil {
			t.Errorf("GetClient(%q) = %v, %v; want nil, nil", id, got, err)
		}
	}
}

func TestService_CreateClient_Validation(t *testing.T) {
	f := newFixture(t)
	missing := int64(9999)

	tests := []struct {
		name     string
		in       ClientInput
		wantCode string
	}{
		{"名前が長すぎる", ClientInput{Name: strings.Repeat("a", MaxClientNameLength+1)}, model.ErrCodeInvalidParams},
		{"説明が長すぎる", ClientInput{Description: strings.Repeat("a", MaxClientDescriptionLength+1)}, model.ErrCodeInvalidParams},
		{"名前にタグ", ClientInput{Name: "<script>x</script>"}, model.ErrCodeInvalidParams},
		{"相対リダイレクトURI", ClientInput{RedirectURIs: []string{"/cb"}}, model.ErrCodeInvalidRedirectURI},
		{"空白を含むリダイレクトURI", ClientInput{RedirectURIs: []string{"https://a.example/a b"}}, model.ErrCodeInvalidRedirectURI},
		{"許可外スコープ", ClientInput{DefaultScopes: []string{"read", "admin"}}, model.ErrCodeInvalidScope},
		{"存在しない所有者", ClientInput{UserID: &missing}, model.ErrCodeUnknownReference},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateClient(context.Background(), tt.in)
			requireAPIError(t, err, tt.wantCode)
		})
	}
}

func TestService_CreateClient_RetriesOnCollision(t *testing.T) {
	calls := 0
	repo := &mockClientRepo{
		createFn: func(ctx context.Context, client *model.Client) error {
			calls++
			if calls == 1 {
				return fmt.Errorf("failed to insert client: %w", &repository.ConstraintError{Kind: repository.ErrDuplicate, Constraint: repository.ConstraintClientPK})
			}
			return nil
		},
	}

	svc := NewService(repo, nil, nil, NewScopeSet(DefaultScopes), &sequenceIDs{},
		security.NewRedirectURIValidator(), nil, ServiceConfig{})

	got, err := svc.CreateClient(context.Background(), ClientInput{Name: "app"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("Create calls = %d, want 2", calls)
	}
	if got.ClientID != "client-2" {
		t.Errorf("ClientID = %q, want client-2", got.ClientID)
	}
}

func TestService_CreateClient_GivesUpAfterRepeatedCollisions(t *testing.T) {
	calls := 0
	repo := &mockClientRepo{
		createFn: func(ctx context.Context, client *model.Client) error {
			calls++
			return repository.ErrDuplicate
		},
	}
	svc := NewService(repo, nil, nil, NewScopeSet(DefaultScopes), &sequenceIDs{},
		security.NewRedirectURIValidator(), nil, ServiceConfig{})

	_, err := svc.CreateClient(context.Background(), ClientInput{Name: "app"})
	if !errors.Is(err, repository.ErrDuplicate) {
		t.Errorf("err = %v, want wrapping ErrDuplicate", err)
	}
	if calls != maxIdentifierAttempts {
		t.Errorf("Create calls = %d, want %d", calls, maxIdentifierAttempts)
	}
}

// --- 認可コード ---

// 認可コードの有効期限が発行から100秒後となり、別コードでは見つからないことを検証する。
func TestService_SaveGrantThenGetGrant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client := f.createClient(t)

	saved, err := f.svc.SaveGrant(ctx, GrantInput{
		ClientID:    client.ClientID,
		Code:        "abc",
		RedirectURI: "http://x",
		Scopes:      []string{"read"},
		UserID:      f.userID,
	})
	if err != nil {
		t.Fatalf("SaveGrant failed: %v", err)
	}
	if want := fixedNow.Add(100 * time.Second); !saved.Expires.Equal(want) {
		t.Errorf("Expires = %v, want %v", saved.Expires, want)
	}

	got, err := f.svc.GetGrant(ctx, client.ClientID, "abc")
	if err != nil || got == nil {
		t.Fatalf("GetGrant = %v, %v", got, err)
	}
	if got.Expires.Sub(fixedNow) != 100*time.Second {
		t.Errorf("有効期間 = %v, want 100s", got.Expires.Sub(fixedNow))
	}
	if !reflect.DeepEqual(got.Scopes, []string{"read"}) {
		t.Errorf("Scopes = %v, want [read]", got.Scopes)
	}
	if got.RedirectURI != "http://x" || got.UserID != f.userID {
		t.Errorf("GetGrant = %+v", got)
	}

	absent, err := f.svc.GetGrant(ctx, client.ClientID, "zzz")
	if err != nil || absent != nil {
		t.Errorf("GetGrant(zzz) = %v, %v; want nil, nil", absent, err)
	}
}

func TestService_GetGrant_ReturnsExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client := f.createClient(t)

	if _, err := f.svc.SaveGrant(ctx, GrantInput{ClientID: client.ClientID, Code: "old", UserID: f.userID}); err != nil {
		t.Fatalf("SaveGrant failed: %v", err)
	}

	// 時計を進めても期限切れの認可コードは返され、判定は呼び出し元に委ねられる
	later := NewService(f.store.Clients(), f.store.Grants(), f.store.Tokens(), NewScopeSet(DefaultScopes),
		security.NewIdentifierGenerator(), security.NewRedirectURIValidator(), nil,
		ServiceConfig{Now: func() time.Time { return fixedNow.Add(time.Hour) }})

	got, err := later.GetGrant(ctx, client.ClientID, "old")
	if err != nil || got == nil {
		t.Fatalf("GetGrant = %v, %v", got, err)
	}
	if got.Expires.After(fixedNow.Add(time.Hour)) {
		t.Error("期限切れであるべき")
	}
}

func TestService_SaveGrant_Validation(t *testing.T) {
	f := newFixture(t)
	client := f.createClient(t)

	tests := []struct {
		name     string
		in       GrantInput
		wantCode string
	}{
		{"許可外スコープ", GrantInput{ClientID: client.ClientID, Code: "c", Scopes: []string{"admin"}, UserID: f.userID}, model.ErrCodeInvalidScope},
		{"コードなし", GrantInput{ClientID: client.ClientID, UserID: f.userID}, model.ErrCodeInvalidParams},
		{"不正なリダイレクトURI", GrantInput{ClientID: client.ClientID, Code: "c", RedirectURI: "relative", UserID: f.userID}, model.ErrCodeInvalidRedirectURI},
		{"存在しないクライアント", GrantInput{ClientID: "missing", Code: "c", UserID: f.userID}, model.ErrCodeUnknownReference},
		{"存在しないユーザー", GrantInput{ClientID: client.ClientID, Code: "c", UserID: f.userID + 100}, model.ErrCodeUnknownReference},
		{"長すぎるコード", GrantInput{ClientID: client.ClientID, Code: strings.Repeat("c", MaxCodeLength+1), UserID: f.userID}, model.ErrCodeInvalidParams},
		{"長すぎるリダイレクトURI", GrantInput{ClientID: client.ClientID, Code: "c", RedirectURI: "https://example.org/" + strings.Repeat("p", MaxRedirectURILength), UserID: f.userID}, model.ErrCodeInvalidParams},
		{"長すぎるclient_id", GrantInput{ClientID: strings.Repeat("c", MaxClientIDLength+1), Code: "c", UserID: f.userID}, model.ErrCodeInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SaveGrant(context.Background(), tt.in)
			requireAPIError(t, err, tt.wantCode)
		})
	}
}

// --- トークン ---

// 同じ(client_id, user_id)に2回保存すると2回目の値の1行だけが残ることを検証する。
func TestService_SaveToken_ReplacesPreviousToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client := f.createClient(t)

	first := TokenInput{ClientID: client.ClientID, UserID: f.userID, ExpiresIn: 3600, AccessToken: "a1", RefreshToken: "r1", TokenType: "bearer", Scopes: []string{"read"}}
	second := TokenInput{ClientID: client.ClientID, UserID: f.userID, ExpiresIn: 60, AccessToken: "a2", RefreshToken: "r2", TokenType: "bearer", Scopes: []string{"read", "write"}}

	if _, err := f.svc.SaveToken(ctx, first); err != nil {
		t.Fatalf("1回目のSaveTokenに失敗: %v", err)
	}
	saved, err := f.svc.SaveToken(ctx, second)
	if err != nil {
		t.Fatalf("2回目のSaveTokenに失敗: %v", err)
	}
	if want := fixedNow.Add(60 * time.Second); !saved.Expires.Equal(want) {
		t.Errorf("Expires = %v, want %v", saved.Expires, want)
	}

	if n := f.store.CountTokens(client.ClientID, f.userID); n != 1 {
		t.Errorf("トークン数 = %d, want 1", n)
	}

	if got, _ := f.svc.GetTokenByAccessToken(ctx, "a1"); got != nil {
		t.Error("置き換えられたアクセストークンが見つかりました")
	}
	if got, _ := f.svc.GetTokenByRefreshToken(ctx, "r1"); got != nil {
		t.Error("置き換えられたリフレッシュトークンが見つかりました")
	}

	got, err := f.svc.GetTokenByAccessToken(ctx, "a2")
	if err != nil || got == nil {
		t.Fatalf("GetTokenByAccessToken = %v, %v", got, err)
	}
	if got.RefreshToken != "r2" || !reflect.DeepEqual(got.Scopes, []string{"read", "write"}) {
		t.Errorf("GetTokenByAccessToken = %+v", got)
	}

	byRefresh, err := f.svc.GetTokenByRefreshToken(ctx, "r2")
	if err != nil || byRefresh == nil || byRefresh.AccessToken != "a2" {
		t.Errorf("GetTokenByRefreshToken = %+v, %v", byRefresh, err)
	}
}

func TestService_SaveToken_WithoutRefreshToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client := f.createClient(t)

	_, err := f.svc.SaveToken(ctx, TokenInput{ClientID: client.ClientID, UserID: f.userID, ExpiresIn: 10, AccessToken: "a", TokenType: "bearer"})
	if err != nil {
		t.Fatalf("SaveToken failed: %v", err)
	}
	got, err := f.svc.GetTokenByRefreshToken(ctx, "")
	if err != nil || got != nil {
		t.Errorf("GetTokenByRefreshToken(\"\") = %v, %v; want nil, nil", got, err)
	}
}

func TestService_SaveToken_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	client := f.createClient(t)

	// 別ユーザーのトークンと値が衝突するケースのための既存トークン
	other := &model.User{Nickname: "other"}
	if err := f.store.Users().CreateWithEmailAndAuth(ctx, other, &model.UserEmail{Email: "other@example.org"}, &model.UserAuth{}); err != nil {
		t.Fatalf("ユーザー作成に失敗: %v", err)
	}
	if _, err := f.svc.SaveToken(ctx, TokenInput{ClientID: client.ClientID, UserID: other.ID, AccessToken: "taken", TokenType: "bearer"}); err != nil {
		t.Fatalf("SaveToken failed: %v", err)
	}

	base := TokenInput{ClientID: client.ClientID, UserID: f.userID, ExpiresIn: 10, AccessToken: "a", TokenType: "bearer"}

	tests := []struct {
		name     string
		modify   func(in *TokenInput)
		wantCode string
	}{
		{"bearer以外", func(in *TokenInput) { in.TokenType = "mac" }, model.ErrCodeInvalidTokenType},
		{"大文字のBearer", func(in *TokenInput) { in.TokenType = "Bearer" }, model.ErrCodeInvalidTokenType},
		{"許可外スコープ", func(in *TokenInput) { in.Scopes = []string{"read", "admin"} }, model.ErrCodeInvalidScope},
		{"アクセストークンなし", func(in *TokenInput) { in.AccessToken = "" }, model.ErrCodeInvalidParams},
		{"負の有効期間", func(in *TokenInput) { in.ExpiresIn = -1 }, model.ErrCodeInvalidParams},
		{"上限を超える有効期間", func(in *TokenInput) { in.ExpiresIn = 10_000_000_000 }, model.ErrCodeInvalidParams},
		{"上限をわずかに超える有効期間", func(in *TokenInput) { in.ExpiresIn = int64(MaxTokenLifetime/time.Second) + 1 }, model.ErrCodeInvalidParams},
		{"長すぎるアクセストークン", func(in *TokenInput) { in.AccessToken = strings.Repeat("a", MaxTokenLength+1) }, model.ErrCodeInvalidParams},
		{"長すぎるリフレッシュトークン", func(in *TokenInput) { in.RefreshToken = strings.Repeat("r", MaxTokenLength+1) }, model.ErrCodeInvalidParams},
		{"長すぎるclient_id", func(in *TokenInput) { in.ClientID = strings.Repeat("c", MaxClientIDLength+1) }, model.ErrCodeInvalidParams},
		{"アクセストークン重複", func(in *TokenInput) { in.AccessToken = "taken" }, model.ErrCodeInvalidParams},
		{"存在しないクライアント", func(in *TokenInput) { in.ClientID = "missing" }, model.ErrCodeUnknownReference},
		{"存在しないユーザー", func(in *TokenInput) { in.UserID = 424242 }, model.ErrCodeUnknownReference},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.modify(&in)
			_, err := f.svc.SaveToken(ctx, in)
			requireAPIError(t, err, tt.wantCode)
		})
	}

	// 検証エラーでは既存トークンに影響しない
	if got, _ := f.svc.GetTokenByAccessToken(ctx, "taken"); got == nil {
		t.Error("既存トークンが削除されています")
	}
	if n := f.store.CountTokens(client.ClientID, f.userID); n != 0 {
		t.Errorf("検証エラー時にトークンが作成されています: %d", n)
	}
}

// TestService_SaveToken_LongestLifetime は上限ちょうどの有効期間で
// 発行時刻より後の有効期限が設定されることを検証する。
func TestService_SaveToken_LongestLifetime(t *testing.T) {
	f := newFixture(t)
	client := f.createClient(t)

	got, err := f.svc.SaveToken(context.Background(), TokenInput{
		ClientID:    client.ClientID,
		UserID:      f.userID,
		ExpiresIn:   int64(MaxTokenLifetime / time.Second),
		AccessToken: strings.Repeat("a", MaxTokenLength),
		TokenType:   "bearer",
	})
	if err != nil {
		t.Fatalf("SaveToken failed: %v", err)
	}
	if want := fixedNow.Add(MaxTokenLifetime); !got.Expires.Equal(want) {
		t.Errorf("Expires = %v, want %v", got.Expires, want)
	}
	if !got.Expires.After(fixedNow) {
		t.Errorf("Expires %v should be after issuance %v", got.Expires, fixedNow)
	}
}

func TestService_GetTokenByAccessToken_Absent(t *testing.T) {
	f := newFixture(t)
	for _, v := range []string{"", "missing"} {
		got, err := f.svc.GetTokenByAccessToken(context.Background(), v)
		if err != nil || got != nil {
			t.Errorf("GetTokenByAccessToken(%q) = %v, %v; want nil, nil", v, got, err)
		}
	}
}

func TestService_UnknownReferenceSubject(t *testing.T) {
	tests := []struct {
		constraint string
		want       string
	}{
		{repository.ConstraintTokenUserFK, "user_id"},
		{repository.ConstraintGrantUserFK, "user_id"},
		{repository.ConstraintClientUserFK, "user_id"},
		{repository.ConstraintTokenClientFK, "client_id"},
		{repository.ConstraintGrantClientFK, "client_id"},
	}

	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			err := fmt.Errorf("failed to insert: %w", &repository.ConstraintError{Kind: repository.ErrForeignKey, Constraint: tt.constraint})
			if got := unknownReference(err).Subject; got != tt.want {
				t.Errorf("Subject = %q, want %q", got, tt.want)
			}
		})
	}
}

// 制約名がメッセージに含まれていても、制約違反として渡されなければ判定に使わない
func TestService_UnknownReferenceIgnoresMessageText(t *testing.T) {
	err := errors.Join(repository.ErrForeignKey, errors.New("tokens_user_id_fkey"))
	if got := unknownReference(err).Subject; got != "client_id" {
		t.Errorf("Subject = %q, want client_id", got)
	}
}

func TestService_Scopes(t *testing.T) {
	f := newFixture(t)
	if got := f.svc.Scopes().Scopes(); !reflect.DeepEqual(got, DefaultScopes) {
		t.Errorf("Scopes() = %v, want %v", got, DefaultScopes)
	}
}
