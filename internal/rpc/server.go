package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/accountd/internal/middleware"
	"github.com/hitoshi/accountd/internal/model"
)

// MaxRequestBytes はリクエストボディの最大サイズ（1MB）。
const MaxRequestBytes = 1 << 20

// CallObserver はメソッド呼び出しの記録先。
type CallObserver interface {
	RecordRPCCall(method, outcome string, duration time.Duration)
}

// Server はメソッド名からHandlerへの対応を保持し、HTTPリクエストを処理する。
// バッチリクエストは先頭から順に処理する。
type Server struct {
	logger   *slog.Logger
	observer CallObserver

	mu      sync.RWMutex
	methods map[string]Handler
}

// NewServer は新しいServerを生成する。observerはnilでもよい。
func NewServer(logger *slog.Logger, observer CallObserver) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger:   logger,
		observer: observer,
		methods:  make(map[string]Handler),
	}
}

// Register はメソッドを登録する。同名のメソッドを二重に登録するとpanicする。
func (s *Server) Register(name string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name == "" || h == nil {
		panic("rpc: empty method name or nil handler")
	}
	if _, exists := s.methods[name]; exists {
		panic(fmt.Sprintf("rpc: method %q already registered", name))
	}
	s.methods[name] = h
}

// Methods は登録済みのメソッド名を昇順で返す。
func (s *Server) Methods() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.methods))
	for name := range s.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Server) lookup(name string) (Handler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.methods[name]
	return h, ok
}

// ServeHTTP はPOSTされたJSON-RPCリクエスト（単一またはバッチ）を処理する。
// レスポンスを返すべき呼び出しが1つもない場合は204を返す。
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		middleware.WriteErrorResponse(w, http.StatusMethodNotAllowed, &model.APIError{
			Code:     "METHOD_NOT_ALLOWED",
			Message:  "POSTのみ受け付けます。",
			Category: model.CategoryValidation,
			Action:   "JSON-RPCリクエストはPOSTで送信してください。",
		})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeJSON(w, errorResponse(nil, NewError(CodeInvalidRequest, "request too large")))
			return
		}
		s.writeJSON(w, errorResponse(nil, NewError(CodeParseError, "parse error")))
		return
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 || !json.Valid(body) {
		s.writeJSON(w, errorResponse(nil, NewError(CodeParseError, "parse error")))
		return
	}

	if body[0] != '[' {
		resp := s.handle(r.Context(), body)
		if resp == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.writeJSON(w, resp)
		return
	}

	var batch []json.RawMessage
	if err := json.Unmarshal(body, &batch); err != nil {
		s.writeJSON(w, errorResponse(nil, NewError(CodeParseError, "parse error")))
		return
	}
	if len(batch) == 0 {
		s.writeJSON(w, errorResponse(nil, NewError(CodeInvalidRequest, "empty batch")))
		return
	}

	responses := make([]*Response, 0, len(batch))
	for _, raw := range batch {
		if resp := s.handle(r.Context(), raw); resp != nil {
			responses = append(responses, resp)
		}
	}
	if len(responses) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, responses)
}

// handle は1つのリクエストオブジェクトを処理する。通知の場合はnilを返す。
func (s *Server) handle(ctx context.Context, raw json.RawMessage) *Response {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse(nil, NewError(CodeInvalidRequest, "invalid request"))
	}

	if req.ID != nil && !validID(req.ID) {
		return errorResponse(nil, NewError(CodeInvalidRequest, "invalid request id"))
	}
	if req.JSONRPC != Version || req.Method == "" {
		return errorResponse(req.ID, NewError(CodeInvalidRequest, "invalid request"))
	}

	result, err := s.call(ctx, &req)
	if req.IsNotification() {
		return nil
	}
	if err != nil {
		return errorResponse(req.ID, FromError(err))
	}
	return resultResponse(req.ID, result)
}

// call はメソッドを呼び出し、結果をエンコードする。
// 呼び出しごとにrpc_callログを1件出力し、observerに記録する。
func (s *Server) call(ctx context.Context, req *Request) (result json.RawMessage, err error) {
	start := time.Now()
	h, ok := s.lookup(req.Method)
	defer func() {
		s.record(ctx, req.Method, ok, time.Since(start), err)
	}()

	if !ok {
		return nil, NewError(CodeMethodNotFound, "method not found")
	}

	value, err := s.invoke(ctx, req.Method, h, req.Params)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result of %s: %w", req.Method, err)
	}
	return encoded, nil
}

// invoke はHandlerを実行する。panicは内部エラーに変換する。
func (s *Server) invoke(ctx context.Context, method string, h Handler, params json.RawMessage) (value any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("panic recovered in rpc method",
				slog.String("method", method),
				slog.Any("panic", rec),
				slog.String("request_id", middleware.RequestIDFromContext(ctx)),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("panic in %s: %v", method, rec)
		}
	}()
	return h(ctx, params)
}

// record は呼び出し結果を記録する。未登録のメソッド名はメトリクスのラベルを
// 増やさないようunknownにまとめる。
func (s *Server) record(ctx context.Context, method string, registered bool, duration time.Duration, err error) {
	label := outcome(err)
	if s.observer != nil {
		metricMethod := method
		if !registered {
			metricMethod = "unknown"
		}
		s.observer.RecordRPCCall(metricMethod, label, duration)
	}

	attrs := []slog.Attr{
		slog.String("method", method),
		slog.String("outcome", label),
		slog.Float64("duration_ms", float64(duration.Nanoseconds())/float64(time.Millisecond)),
	}
	if requestID := middleware.RequestIDFromContext(ctx); requestID != "" {
		attrs = append(attrs, slog.String("request_id", requestID))
	}

	level := slog.LevelInfo
	if label == "INTERNAL" {
		level = slog.LevelError
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	s.logger.LogAttrs(ctx, level, "rpc_call", attrs...)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to write rpc response", slog.String("error", err.Error()))
	}
}
