// Package security はアプリケーションのセキュリティ機能を提供する。
//
// DisplayTextChecker はニックネームやクライアント名などの表示用テキストに
// HTMLマークアップが含まれていないかを判定する。
// bluemondayのStrictPolicyで全タグを除去した結果と元の文字列を比較し、
// 差分があればマークアップを含むとみなす。
package security

import (
	"html"

	"github.com/microcosm-cc/bluemonday"
)

// DisplayTextChecker は表示用テキストの検査機能のインターフェースを定義する。
type DisplayTextChecker interface {
	// ContainsMarkup はテキストにHTMLタグまたは実行可能な要素が含まれる場合にtrueを返す。
	// 空文字列や "a & b" のような通常のテキストにはfalseを返す。
	ContainsMarkup(text string) bool
}

// displayTextChecker はDisplayTextCheckerの実装。
// bluemondayのポリシーはスレッドセーフに使用できる。
type displayTextChecker struct {
	policy *bluemonday.Policy
}

// NewDisplayTextChecker はDisplayTextCheckerの新しいインスタンスを生成する。
func NewDisplayTextChecker() *displayTextChecker {
	return &displayTextChecker{
		policy: bluemonday.StrictPolicy(),
	}
}

// ContainsMarkup はテキストにマークアップが含まれるかを返す。
func (c *displayTextChecker) ContainsMarkup(text string) bool {
	if text == "" {
		return false
	}
	// StrictPolicyは & や " をエスケープするため、比較前に戻す
	return html.UnescapeString(c.policy.Sanitize(text)) != text
}
