package rpc

import (
	"bytes"
	"context"
	"encoding/json"
)

// Handler は1つのメソッド呼び出しを処理する。paramsは未検証の生のJSON。
// 戻り値はJSONにエンコードされてresultになる。nilの場合はnullを返す。
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

// Validator はデコード後のパラメータを検証する。
type Validator interface {
	Validate() error
}

// Method は型付きの関数をHandlerに変換する。
// paramsは名前付き（JSONオブジェクト）のみを受け付け、未知のフィールドは拒否する。
// Pが*PでValidatorを実装する場合は、関数の呼び出し前に検証する。
func Method[P any, R any](fn func(ctx context.Context, params P) (R, error)) Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var params P
		if err := decodeParams(raw, &params); err != nil {
			return nil, err
		}
		if v, ok := any(&params).(Validator); ok {
			if err := v.Validate(); err != nil {
				return nil, err
			}
		}
		return fn(ctx, params)
	}
}

func decodeParams(raw json.RawMessage, dst any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, nullID) {
		raw = json.RawMessage("{}")
	}
	if raw[0] != '{' {
		return &Error{Code: CodeInvalidParams, Message: "params must be an object"}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &Error{Code: CodeInvalidParams, Message: "invalid params", Data: err.Error()}
	}
	return nil
}
