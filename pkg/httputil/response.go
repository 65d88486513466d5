// Package httputil はHTTPレスポンス生成のユーティリティを提供する。
package httputil

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorResponse はエラーレスポンスの形式。
type ErrorResponse struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// JSON はJSONレスポンスを返す。
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// ヘッダーは既に送信済みのため、ログのみ出力する。
			slog.Error("failed to encode response body", "error", err)
		}
	}
}

// Error はエラーレスポンスを返す。
func Error(w http.ResponseWriter, status int, code string, message string) {
	JSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// ErrorWithDetails は詳細付きのエラーレスポンスを返す。
func ErrorWithDetails(w http.ResponseWriter, status int, code string, message string, details []string) {
	JSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	})
}
