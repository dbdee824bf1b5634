// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// 原因カテゴリと対処方法を含み、RPC層でエラー応答に変換される。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: account, oauth, validation, system
	Action   string // 呼び出し元向け対処方法
	Subject  string // 原因となった値（重複したメールアドレス等）。任意
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeDuplicateAccount   = "DUPLICATE_ACCOUNT"
	ErrCodeInvalidScope       = "INVALID_SCOPE"
	ErrCodeInvalidTokenType   = "INVALID_TOKEN_TYPE"
	ErrCodeInvalidRedirectURI = "INVALID_REDIRECT_URI"
	ErrCodeInvalidParams      = "INVALID_PARAMS"
	ErrCodeUnknownReference   = "UNKNOWN_REFERENCE"
	ErrCodeRateLimited        = "RATE_LIMITED"
)

// カテゴリ
const (
	CategoryAccount    = "account"
	CategoryOAuth      = "oauth"
	CategoryValidation = "validation"
	CategorySystem     = "system"
)

// NewDuplicateAccountError は既に登録済みのメールアドレスで登録しようとした場合のエラーを生成する。
func NewDuplicateAccountError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateAccount,
		Message:  fmt.Sprintf("このメールアドレスは既に登録されています: %s", email),
		Category: CategoryAccount,
		Action:   "別のメールアドレスを使用するか、既存のアカウントでログインしてください。",
		Subject:  email,
	}
}

// NewInvalidScopeError は許可されていないスコープが指定された場合のエラーを生成する。
func NewInvalidScopeError(scope string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidScope,
		Message:  fmt.Sprintf("許可されていないスコープです: %s", scope),
		Category: CategoryValidation,
		Action:   "許可されたスコープのみを指定してください。",
		Subject:  scope,
	}
}

// NewInvalidTokenTypeError はbearer以外のトークン種別が指定された場合のエラーを生成する。
func NewInvalidTokenTypeError(tokenType string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTokenType,
		Message:  fmt.Sprintf("サポートされていないトークン種別です: %s", tokenType),
		Category: CategoryValidation,
		Action:   "token_typeには bearer を指定してください。",
		Subject:  tokenType,
	}
}

// NewInvalidRedirectURIError は無効なリダイレクトURIが指定された場合のエラーを生成する。
func NewInvalidRedirectURIError(uri string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRedirectURI,
		Message:  fmt.Sprintf("無効なリダイレクトURIです: %q", uri),
		Category: CategoryValidation,
		Action:   "スキームを含む絶対URIを、空白やフラグメントを含めずに指定してください。",
		Subject:  uri,
	}
}

// NewInvalidParamsError はパラメータの値が不正な場合のエラーを生成する。
func NewInvalidParamsError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidParams,
		Message:  fmt.Sprintf("パラメータが不正です: %s", reason),
		Category: CategoryValidation,
		Action:   "パラメータの値を確認してください。",
	}
}

// NewUnknownReferenceError は参照先（クライアントやユーザー）が存在しない場合のエラーを生成する。
func NewUnknownReferenceError(what string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownReference,
		Message:  fmt.Sprintf("参照先が存在しません: %s", what),
		Category: CategoryOAuth,
		Action:   "client_id と user_id が登録済みであることを確認してください。",
		Subject:  what,
	}
}

// NewRateLimitedError はリクエスト数が上限を超えた場合のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエスト数が上限を超えました。",
		Category: CategorySystem,
		Action:   "しばらく待ってから再度お試しください。",
	}
}
