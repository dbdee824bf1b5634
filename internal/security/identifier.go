package security

import (
	"crypto/rand"
	"fmt"
	"io"
)

// identifierAlphabet はクライアント識別子に使用する文字集合（数字と英小文字）。
const identifierAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// client_id / client_secret の長さ
const (
	ClientIDLength     = 32
	ClientSecretLength = 40
)

// maxUnbiasedByte は剰余による偏りを避けるための上限値（36 * 7 = 252）。
const maxUnbiasedByte = 256 - 256%len(identifierAlphabet)

// IdentifierGenerator はランダムな不透明識別子を生成する。
type IdentifierGenerator struct {
	rand io.Reader
}

// NewIdentifierGenerator はcrypto/randを乱数源とするIdentifierGeneratorを生成する。
func NewIdentifierGenerator() *IdentifierGenerator {
	return NewIdentifierGeneratorWithReader(rand.Reader)
}

// NewIdentifierGeneratorWithReader は任意の乱数源を使うIdentifierGeneratorを生成する。
// テストで決定的な値を得るために使用する。
func NewIdentifierGeneratorWithReader(r io.Reader) *IdentifierGenerator {
	return &IdentifierGenerator{rand: r}
}

// Generate は長さnの識別子を生成する。
func (g *IdentifierGenerator) Generate(n int) (string, error) {
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := io.ReadFull(g.rand, buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= maxUnbiasedByte {
				continue
			}
			out = append(out, identifierAlphabet[int(b)%len(identifierAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

// ClientID はclient_idを生成する。
func (g *IdentifierGenerator) ClientID() (string, error) {
	return g.Generate(ClientIDLength)
}

// ClientSecret はclient_secretを生成する。
func (g *IdentifierGenerator) ClientSecret() (string, error) {
	return g.Generate(ClientSecretLength)
}
