// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// ErrRecordNotFound は指定IDのコンテンツレコードが存在しないことを示す。
var ErrRecordNotFound = errors.New("content record not found")

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, content, system
	Action   string // ユーザー向け対処方法
	Field    string // 入力エラーの対象フィールド（JSON名）
	Err      error  // 原因エラー（レスポンスには含めない）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *APIError) Unwrap() error {
	return e.Err
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeAccessDenied     = "ACCESS_DENIED"
	ErrCodeCSRF             = "CSRF_VALIDATION_FAILED"
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeInvalidURL       = "INVALID_URL"
	ErrCodeInvalidKind      = "INVALID_RECORD_KIND"
	ErrCodeRecordNotFound   = "RECORD_NOT_FOUND"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// NewAccessDeniedError は許可リスト外のユーザーがログインした場合のエラーを生成する。
// 認証自体は成功しているため、AuthFailureではなくポリシー判定の結果として扱う。
func NewAccessDeniedError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeAccessDenied,
		Message:  fmt.Sprintf("Access Denied: %s is not authorized", email),
		Category: "auth",
		Action:   "Sign in with the administrator account.",
	}
}

// NewUnauthorizedError は未ログイン状態で管理操作を行った場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentication is required.",
		Category: "auth",
		Action:   "Sign in and try again.",
	}
}

// NewCSRFError はCSRFトークン検証失敗のエラーを生成する。
func NewCSRFError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRF,
		Message:  "CSRF token validation failed.",
		Category: "auth",
		Action:   "Reload the page and try again.",
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "Failed to parse the request body.",
		Category: "validation",
		Action:   "Send a valid JSON document.",
	}
}

// NewValidationError は必須項目の不足などの入力エラーを生成する。
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("%s: %s", field, reason),
		Category: "validation",
		Action:   "Fill in every required field.",
		Field:    field,
	}
}

// NewInvalidURLError は無効なリンクURLのエラーを生成する。
func NewInvalidURLError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("%s is not a valid URL: %s", field, reason),
		Category: "validation",
		Action:   "Use an absolute http:// or https:// URL.",
		Field:    field,
	}
}

// NewInvalidKindError は未知のレコード種別が指定された場合のエラーを生成する。
func NewInvalidKindError(kind string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidKind,
		Message:  fmt.Sprintf("Unknown record kind: %s", kind),
		Category: "validation",
		Action:   "Use projects or blog-posts.",
	}
}

// NewRecordNotFoundError はレコード未検出エラーを生成する。
func NewRecordNotFoundError(kind RecordKind, id string) *APIError {
	return &APIError{
		Code:     ErrCodeRecordNotFound,
		Message:  fmt.Sprintf("%s not found: %s", kind, id),
		Category: "content",
		Action:   "Reload the list and try again.",
		Err:      ErrRecordNotFound,
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError(err error) *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "An internal error occurred.",
		Category: "system",
		Action:   "Please wait a moment and try again.",
		Err:      err,
	}
}
