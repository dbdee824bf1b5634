package oauth

import (
	"strings"

	"github.com/hitoshi/accountd/internal/model"
)

// DefaultScopes はALLOWED_SCOPES未指定時に許可するスコープ。
var DefaultScopes = []string{"read", "write", "email", "profile", "offline_access"}

// ScopeSet は許可されたスコープの固定集合。生成後は変更されない。
type ScopeSet struct {
	allowed map[string]struct{}
	ordered []string
}

// NewScopeSet はスコープ集合を生成する。空要素と重複は除外する。
func NewScopeSet(scopes []string) *ScopeSet {
	s := &ScopeSet{allowed: make(map[string]struct{}, len(scopes))}
	for _, scope := range scopes {
		scope = strings.TrimSpace(scope)
		if scope == "" {
			continue
		}
		if _, ok := s.allowed[scope]; ok {
			continue
		}
		s.allowed[scope] = struct{}{}
		s.ordered = append(s.ordered, scope)
	}
	return s
}

// Contains はスコープが許可されているかを返す。
func (s *ScopeSet) Contains(scope string) bool {
	_, ok := s.allowed[scope]
	return ok
}

// Scopes は許可されたスコープを登録順で返す。
func (s *ScopeSet) Scopes() []string {
	out := make([]string, len(s.ordered))
	copy(out, s.ordered)
	return out
}

// Validate は全てのスコープが許可されているかを検証する。
// 最初に見つかった許可外のスコープについてINVALID_SCOPEエラーを返す。
func (s *ScopeSet) Validate(scopes []string) error {
	for _, scope := range scopes {
		if !s.Contains(scope) {
			return model.NewInvalidScopeError(scope)
		}
	}
	return nil
}
