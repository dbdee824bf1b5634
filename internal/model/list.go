// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"unicode"
)

// JoinList は文字列の列を空白区切りの1つの文字列に符号化する。
// 要素に空白を含む列はサポートしない（呼び出し前に検証すること）。
func JoinList(items []string) string {
	return strings.Join(items, " ")
}

// SplitList はJoinListで符号化した文字列を列に復号する。
// 空文字列は空の列（nilではない）になる。
func SplitList(s string) []string {
	fields := strings.Fields(s)
	if fields == nil {
		return []string{}
	}
	return fields
}

// HasWhitespace は文字列が空白文字を含むかを返す。
// SplitListの区切り判定と同じunicode.IsSpaceを使う。
func HasWhitespace(s string) bool {
	return strings.IndexFunc(s, unicode.IsSpace) >= 0
}

func cloneStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
