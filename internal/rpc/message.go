// Package rpc はHTTP上のJSON-RPC 2.0サーバーを提供する。
package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Version はJSON-RPCのプロトコルバージョン。
const Version = "2.0"

// JSON-RPC 2.0の標準エラーコード。
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// アプリケーション定義のエラーコード（-32000〜-32099）。
const (
	CodeDomainError      = -32000
	CodeDuplicateAccount = -32001
	CodeUnknownReference = -32002
	CodeRateLimited      = -32005
)

// Request はJSON-RPCのリクエストオブジェクト。
// IDがnil（キー自体が存在しない）の場合は通知として扱い、レスポンスを返さない。
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// IsNotification はリクエストが通知かを返す。
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

// Response はJSON-RPCのレスポンスオブジェクト。ResultとErrorのどちらか一方のみを持つ。
type Response struct {
	JSONRPC string           `json:"jsonrpc"`
	Result  *json.RawMessage `json:"result,omitempty"`
	Error   *Error           `json:"error,omitempty"`
	ID      json.RawMessage  `json:"id"`
}

// Error はJSON-RPCのエラーオブジェクト。
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewError はエラーオブジェクトを生成する。
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

var nullID = json.RawMessage("null")

// validID はIDが文字列・数値・nullのいずれかであるかを検証する。
func validID(id json.RawMessage) bool {
	id = bytes.TrimSpace(id)
	if len(id) == 0 {
		return false
	}
	switch c := id[0]; {
	case c == '"':
		return true
	case c == '-' || (c >= '0' && c <= '9'):
		return true
	default:
		return bytes.Equal(id, nullID)
	}
}

func resultResponse(id json.RawMessage, result json.RawMessage) *Response {
	return &Response{JSONRPC: Version, Result: &result, ID: id}
}

func errorResponse(id json.RawMessage, rpcErr *Error) *Response {
	if id == nil {
		id = nullID
	}
	return &Response{JSONRPC: Version, Error: rpcErr, ID: id}
}
