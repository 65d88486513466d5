// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"time"
)

// AuditLog は監査ログの構造体。
type AuditLog struct {
	Operation string `json:"operation"`
	ShieldID  string `json:"shield_id,omitempty"`
	Result    string `json:"result"`
	Timestamp string `json:"timestamp"`
}

// WriteAuditLog は監査ログを出力する。
func WriteAuditLog(ctx context.Context, operation string, shieldID string, result string) {
	slog.InfoContext(ctx, "shield operation completed",
		"operation", operation,
		"shield_id", shieldID,
		"result", result,
		"timestamp", time.Now().UTC().Format(time.RFC3339),
	)
}
