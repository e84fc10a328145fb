// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// AuditLog は監査ログの構造体。
type AuditLog struct {
	Operation string `json:"operation"`
	Target    string `json:"target,omitempty"`
	Result    string `json:"result"`
	Timestamp string `json:"timestamp"`
}

// NewAuditLog は現在時刻の監査ログを生成する。
func NewAuditLog(operation string, target string, result string) AuditLog {
	return AuditLog{
		Operation: operation,
		Target:    target,
		Result:    result,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// LogValue は監査ログをslogの属性として展開する。
func (a AuditLog) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("operation", a.Operation),
		slog.String("result", a.Result),
		slog.String("timestamp", a.Timestamp),
	}
	if a.Target != "" {
		attrs = append(attrs, slog.String("target", a.Target))
	}
	return slog.GroupValue(attrs...)
}

// WriteAuditLog は台帳に関わる操作の監査ログを出力する。
func WriteAuditLog(ctx context.Context, operation string, target string, result string) {
	slog.InfoContext(ctx, "update operation completed",
		"audit", NewAuditLog(operation, target, result),
	)
}

// RequestLogger はリクエストごとのアクセスログをslogで出力する。
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		slog.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", chimiddleware.GetReqID(r.Context()),
		)
	})
}
