package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hitoshi/accountd/internal/model"
)

// MemoryStore はプロセス内メモリ上の実装。DATABASE_URL=memory:// の開発用途とテストで使用する。
// 全操作を1つのミューテックスで直列化し、PostgreSQLスキーマと同じ一意制約・外部キー制約を検査する。
// 返却値は常にコピーであり、内部状態を共有しない。
type MemoryStore struct {
	mu sync.Mutex

	users      map[int64]model.User
	emails     map[string]model.UserEmail // key: email
	auths      map[int64]model.UserAuth   // key: user_id
	clients    map[string]model.Client    // key: client_id
	grants     []model.Grant
	tokens     map[int64]model.Token // key: token id
	nextUserID int64
	nextRowID  int64
}

// NewMemoryStore は空のMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[int64]model.User),
		emails:  make(map[string]model.UserEmail),
		auths:   make(map[int64]model.UserAuth),
		clients: make(map[string]model.Client),
		tokens:  make(map[int64]model.Token),
	}
}

// Users はUserRepositoryとしてのビューを返す。
func (s *MemoryStore) Users() UserRepository { return memoryUsers{s} }

// Clients はClientRepositoryとしてのビューを返す。
func (s *MemoryStore) Clients() ClientRepository { return memoryClients{s} }

// Grants はGrantRepositoryとしてのビューを返す。
func (s *MemoryStore) Grants() GrantRepository { return memoryGrants{s} }

// Tokens はTokenRepositoryとしてのビューを返す。
func (s *MemoryStore) Tokens() TokenRepository { return memoryTokens{s} }

// CountUsers は保持しているユーザー数を返す。
func (s *MemoryStore) CountUsers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// CountTokens は(client_id, user_id)の組に属するトークン数を返す。
func (s *MemoryStore) CountTokens(clientID string, userID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tokens {
		if t.ClientID == clientID && t.UserID == userID {
			n++
		}
	}
	return n
}

// PingContext は常に成功する。ヘルスチェック用。
func (s *MemoryStore) PingContext(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) rowID() int64 {
	s.nextRowID++
	return s.nextRowID
}

// --- UserRepository ---

type memoryUsers struct{ s *MemoryStore }

func (m memoryUsers) FindByID(_ context.Context, id int64) (*model.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	u, ok := m.s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m memoryUsers) FindEmail(_ context.Context, email string) (*model.UserEmail, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	ue, ok := m.s.emails[email]
	if !ok {
		return nil, nil
	}
	return &ue, nil
}

func (m memoryUsers) FindAuthByUserID(_ context.Context, userID int64) (*model.UserAuth, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	a, ok := m.s.auths[userID]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m memoryUsers) CreateWithEmailAndAuth(ctx context.Context, user *model.User, email *model.UserEmail, auth *model.UserAuth) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	// 全ての制約を検査してから書き込むため、失敗時に部分的な行は残らない
	if _, exists := m.s.emails[email.Email]; exists {
		return fmt.Errorf("failed to insert user email: %w", &ConstraintError{Kind: ErrDuplicate, Constraint: ConstraintEmailUnique})
	}

	m.s.nextUserID++
	userID := m.s.nextUserID

	u := *user
	u.ID = userID
	m.s.users[userID] = u

	ue := *email
	ue.ID, ue.UserID = m.s.rowID(), userID
	m.s.emails[ue.Email] = ue

	a := *auth
	a.ID, a.UserID = m.s.rowID(), userID
	m.s.auths[userID] = a

	user.ID = userID
	email.ID, email.UserID = ue.ID, userID
	auth.ID, auth.UserID = a.ID, userID
	return nil
}

// --- ClientRepository ---

type memoryClients struct{ s *MemoryStore }

func (m memoryClients) Create(ctx context.Context, client *model.Client) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if _, exists := m.s.clients[client.ClientID]; exists {
		return fmt.Errorf("failed to insert client: %w", &ConstraintError{Kind: ErrDuplicate, Constraint: ConstraintClientPK})
	}
	for _, c := range m.s.clients {
		if c.ClientSecret == client.ClientSecret {
			return fmt.Errorf("failed to insert client: %w", &ConstraintError{Kind: ErrDuplicate, Constraint: ConstraintClientSecretUnique})
		}
	}
	if client.UserID != nil {
		if _, ok := m.s.users[*client.UserID]; !ok {
			return fmt.Errorf("failed to insert client: %w", &ConstraintError{Kind: ErrForeignKey, Constraint: ConstraintClientUserFK})
		}
	}

	m.s.clients[client.ClientID] = cloneClient(*client)
	return nil
}

func (m memoryClients) FindByClientID(_ context.Context, clientID string) (*model.Client, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	c, ok := m.s.clients[clientID]
	if !ok {
		return nil, nil
	}
	c = cloneClient(c)
	return &c, nil
}

// cloneClient はリスト列をストレージ表現（空白区切り文字列）経由で複製する。
// PostgreSQL実装と同じ符号化・復号を通すため、往復の挙動が一致する。
func cloneClient(c model.Client) model.Client {
	c.RedirectURIs = model.SplitList(model.JoinList(c.RedirectURIs))
	c.DefaultScopes = model.SplitList(model.JoinList(c.DefaultScopes))
	if c.UserID != nil {
		id := *c.UserID
		c.UserID = &id
	}
	return c
}

// --- GrantRepository ---

type memoryGrants struct{ s *MemoryStore }

func (m memoryGrants) Create(ctx context.Context, grant *model.Grant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if _, ok := m.s.clients[grant.ClientID]; !ok {
		return fmt.Errorf("failed to insert grant: %w", &ConstraintError{Kind: ErrForeignKey, Constraint: ConstraintGrantClientFK})
	}
	if _, ok := m.s.users[grant.UserID]; !ok {
		return fmt.Errorf("failed to insert grant: %w", &ConstraintError{Kind: ErrForeignKey, Constraint: ConstraintGrantUserFK})
	}

	g := *grant
	g.ID = m.s.rowID()
	g.Scopes = model.SplitList(model.JoinList(grant.Scopes))
	m.s.grants = append(m.s.grants, g)

	grant.ID = g.ID
	return nil
}

func (m memoryGrants) FindByClientAndCode(_ context.Context, clientID, code string) (*model.Grant, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	// 同一の組が複数ある場合は最新の行を返す
	for i := len(m.s.grants) - 1; i >= 0; i-- {
		g := m.s.grants[i]
		if g.ClientID == clientID && g.Code == code {
			g.Scopes = model.SplitList(model.JoinList(g.Scopes))
			return &g, nil
		}
	}
	return nil, nil
}

func (m memoryGrants) DeleteExpiredBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	kept := m.s.grants[:0]
	var deleted int64
	for _, g := range m.s.grants {
		if g.Expires.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, g)
	}
	m.s.grants = kept
	return deleted, nil
}

// --- TokenRepository ---

type memoryTokens struct{ s *MemoryStore }

func (m memoryTokens) Replace(ctx context.Context, token *model.Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	if _, ok := m.s.clients[token.ClientID]; !ok {
		return fmt.Errorf("failed to insert token: %w", &ConstraintError{Kind: ErrForeignKey, Constraint: ConstraintTokenClientFK})
	}
	if _, ok := m.s.users[token.UserID]; !ok {
		return fmt.Errorf("failed to insert token: %w", &ConstraintError{Kind: ErrForeignKey, Constraint: ConstraintTokenUserFK})
	}

	// 削除対象を除いた上で一意制約を検査する（PostgreSQL実装のDELETE→INSERTと同じ順序）
	var replaced []int64
	for id, t := range m.s.tokens {
		if t.ClientID == token.ClientID && t.UserID == token.UserID {
			replaced = append(replaced, id)
			continue
		}
		if t.AccessToken == token.AccessToken {
			return fmt.Errorf("failed to insert token: %w", &ConstraintError{Kind: ErrDuplicate, Constraint: ConstraintAccessTokenUnique})
		}
		if token.RefreshToken != "" && t.RefreshToken == token.RefreshToken {
			return fmt.Errorf("failed to insert token: %w", &ConstraintError{Kind: ErrDuplicate, Constraint: ConstraintRefreshTokenUnique})
		}
	}
	for _, id := range replaced {
		delete(m.s.tokens, id)
	}

	t := *token
	t.ID = m.s.rowID()
	t.Scopes = model.SplitList(model.JoinList(token.Scopes))
	m.s.tokens[t.ID] = t

	token.ID = t.ID
	return nil
}

func (m memoryTokens) FindByAccessToken(_ context.Context, accessToken string) (*model.Token, error) {
	return m.find(func(t model.Token) bool { return t.AccessToken == accessToken })
}

func (m memoryTokens) FindByRefreshToken(_ context.Context, refreshToken string) (*model.Token, error) {
	if refreshToken == "" {
		return nil, nil
	}
	return m.find(func(t model.Token) bool { return t.RefreshToken == refreshToken })
}

func (m memoryTokens) DeleteExpiredBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var deleted int64
	for id, t := range m.s.tokens {
		if t.Expires.Before(cutoff) {
			delete(m.s.tokens, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m memoryTokens) find(match func(model.Token) bool) (*model.Token, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, t := range m.s.tokens {
		if match(t) {
			t.Scopes = model.SplitList(model.JoinList(t.Scopes))
			return &t, nil
		}
	}
	return nil, nil
}

// compile-time interface checks
var (
	_ UserRepository   = memoryUsers{}
	_ ClientRepository = memoryClients{}
	_ GrantRepository  = memoryGrants{}
	_ TokenRepository  = memoryTokens{}
)
