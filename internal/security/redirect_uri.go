package security

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"

	"github.com/hitoshi/accountd/internal/model"
)

// RedirectURIValidator はクライアントのリダイレクトURIを検証する。
type RedirectURIValidator interface {
	// Validate はURIが登録可能な形式であるかを検証する。
	// 不正な場合はエラーを返す。
	Validate(rawURI string) error
}

// blockedSchemes はリダイレクト先として許可しないスキーム。
// ネイティブアプリのカスタムスキームは許可するため、拒否リスト方式とする。
var blockedSchemes = []string{"javascript", "data", "vbscript", "file"}

// webSchemes はホストを必須とするスキーム。
var webSchemes = []string{"http", "https"}

// redirectURIValidator はRedirectURIValidatorの実装。
type redirectURIValidator struct{}

// NewRedirectURIValidator はRedirectURIValidatorの新しいインスタンスを生成する。
func NewRedirectURIValidator() *redirectURIValidator {
	return &redirectURIValidator{}
}

// Validate はリダイレクトURIを静的に検証する。DNS解決は行わない。
//   - 空白文字を含まない（保存時に空白区切りで連結されるため）
//   - スキームを持つ絶対URIである
//   - フラグメントを含まない (RFC 6749 3.1.2)
//   - http/httpsの場合はホストを持ち、ホスト名はIDNAとして妥当である
func (v *redirectURIValidator) Validate(rawURI string) error {
	if rawURI == "" {
		return fmt.Errorf("empty redirect URI")
	}
	if model.HasWhitespace(rawURI) {
		return fmt.Errorf("redirect URI contains whitespace")
	}

	parsed, err := url.Parse(rawURI)
	if err != nil {
		return fmt.Errorf("invalid redirect URI: %w", err)
	}
	if !parsed.IsAbs() {
		return fmt.Errorf("redirect URI must be absolute: %s", rawURI)
	}
	if parsed.Fragment != "" || strings.Contains(rawURI, "#") {
		return fmt.Errorf("redirect URI must not contain a fragment")
	}

	scheme := strings.ToLower(parsed.Scheme)
	if containsFold(blockedSchemes, scheme) {
		return fmt.Errorf("disallowed scheme: %s", scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		if containsFold(webSchemes, scheme) {
			return fmt.Errorf("empty host in redirect URI: %s", rawURI)
		}
		return nil
	}

	// IPアドレスはIDNA検証の対象外
	if net.ParseIP(host) != nil {
		return nil
	}
	if _, err := idna.Lookup.ToASCII(host); err != nil {
		return fmt.Errorf("invalid host %q: %w", host, err)
	}
	return nil
}

// containsFold は大文字小文字を区別せずに値がリストに含まれるかを検証する。
func containsFold(list []string, value string) bool {
	for _, s := range list {
		if strings.EqualFold(s, value) {
			return true
		}
	}
	return false
}
