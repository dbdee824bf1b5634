// Package password はパスワードのハッシュ化と検証を提供する。
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MaxLength はbcryptが扱えるパスワードの最大バイト数。
// これを超える入力は切り詰めずにエラーとする。
const MaxLength = 72

// ErrTooLong はパスワードがMaxLengthを超える場合に返される。
var ErrTooLong = errors.New("password exceeds 72 bytes")

// Hasher はbcryptによるパスワードハッシャー。
type Hasher struct {
	cost int
}

// NewHasher は指定コストのHasherを生成する。
// コストはbcrypt.MinCostからbcrypt.MaxCostの範囲に丸められる。
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{cost: cost}
}

// Cost は使用するbcryptコストを返す。
func (h *Hasher) Cost() int {
	return h.cost
}

// Hash は平文パスワードのソルト付きハッシュを返す。
// 同じ平文でも呼び出しごとに異なるハッシュとなる。
func (h *Hasher) Hash(plaintext string) (string, error) {
	if len(plaintext) > MaxLength {
		return "", ErrTooLong
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(b), nil
}

// Verify は平文パスワードがハッシュと一致するかを返す。
// ハッシュが不正な形式の場合も含め、一致しなければfalseを返す。
func (h *Hasher) Verify(plaintext, hash string) bool {
	if len(plaintext) > MaxLength {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
