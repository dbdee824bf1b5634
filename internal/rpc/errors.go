package rpc

import (
	"errors"

	"github.com/hitoshi/accountd/internal/model"
)

// ErrorData はドメインエラーをJSON-RPCエラーのdataに載せる際の形式。
type ErrorData struct {
	Code     string `json:"code"`
	Category string `json:"category"`
	Action   string `json:"action,omitempty"`
	Subject  string `json:"subject,omitempty"`
}

// FromError はハンドラーが返したエラーをJSON-RPCのエラーオブジェクトに変換する。
// *model.APIError以外のエラーは内部エラーとし、詳細は呼び出し元に返さない。
func FromError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		return NewError(CodeInternalError, "internal error")
	}

	return &Error{
		Code:    codeForAPIError(apiErr),
		Message: apiErr.Message,
		Data: ErrorData{
			Code:     apiErr.Code,
			Category: apiErr.Category,
			Action:   apiErr.Action,
			Subject:  apiErr.Subject,
		},
	}
}

func codeForAPIError(apiErr *model.APIError) int {
	if apiErr.Category == model.CategoryValidation {
		return CodeInvalidParams
	}
	switch apiErr.Code {
	case model.ErrCodeDuplicateAccount:
		return CodeDuplicateAccount
	case model.ErrCodeUnknownReference:
		return CodeUnknownReference
	case model.ErrCodeRateLimited:
		return CodeRateLimited
	default:
		return CodeDomainError
	}
}

// outcome はメトリクスとログに記録する呼び出し結果のラベルを返す。
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.Code {
		case CodeParseError:
			return "PARSE_ERROR"
		case CodeInvalidRequest:
			return "INVALID_REQUEST"
		case CodeMethodNotFound:
			return "METHOD_NOT_FOUND"
		case CodeInvalidParams:
			return model.ErrCodeInvalidParams
		}
	}
	return "INTERNAL"
}
