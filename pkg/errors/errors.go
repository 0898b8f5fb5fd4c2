// Package errors 提供房間服務的錯誤分類
package errors

import (
	"errors"
	"fmt"
)

// 定義錯誤碼
const (
	// ErrCodeNotFound 房間不存在（正常結果，客戶端可重試）
	ErrCodeNotFound = "NOT_FOUND"
	// ErrCodeUnauthorized 非輪到的玩家嘗試繪圖
	ErrCodeUnauthorized = "UNAUTHORIZED"
	// ErrCodeInvariant 內部不變量被破壞
	ErrCodeInvariant = "INVARIANT_VIOLATION"
	// ErrCodeInvalidInput 無效輸入
	ErrCodeInvalidInput = "INVALID_INPUT"
	// ErrCodeUnavailable 外部服務不可用
	ErrCodeUnavailable = "SERVICE_UNAVAILABLE"
	// ErrCodeInternal 內部錯誤
	ErrCodeInternal = "INTERNAL_ERROR"
)

// AppError 應用程式錯誤
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Err     error  `json:"-"`
}

// Error 實現 error 介面
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 實現 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 以錯誤碼比對，讓 errors.Is(err, ErrRoomNotFound) 可用於帶細節的副本
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New 創建新的應用程式錯誤
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包裝錯誤
func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetails 返回帶詳細資訊的副本（不修改預定義錯誤）
func (e *AppError) WithDetails(details string) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// 預定義錯誤
var (
	// ErrRoomNotFound 房間不存在
	ErrRoomNotFound = New(ErrCodeNotFound, "room not found")

	// ErrNotTurnHolder 不是目前的繪圖者
	ErrNotTurnHolder = New(ErrCodeUnauthorized, "connection does not hold the turn")

	// ErrEmptyRoom 房間沒有成員（不應發生）
	ErrEmptyRoom = New(ErrCodeInvariant, "room has no members")

	// ErrInvalidPayload 無法解析的事件內容
	ErrInvalidPayload = New(ErrCodeInvalidInput, "invalid event payload")

	// ErrUnknownEvent 未知事件
	ErrUnknownEvent = New(ErrCodeInvalidInput, "unknown event")

	// ErrInvalidConfig 配置錯誤
	ErrInvalidConfig = New(ErrCodeInvalidInput, "invalid configuration")

	// ErrSinkUnavailable 事件輸出不可用
	ErrSinkUnavailable = New(ErrCodeUnavailable, "event sink unavailable")

	// ErrInternal 未分類的內部錯誤（HTTP 回應用）
	ErrInternal = New(ErrCodeInternal, "internal server error")
)

func hasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsNotFound 檢查是否為未找到錯誤
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsUnauthorized 檢查是否為未授權錯誤
func IsUnauthorized(err error) bool {
	return hasCode(err, ErrCodeUnauthorized)
}

// IsInvariant 檢查是否為不變量錯誤
func IsInvariant(err error) bool {
	return hasCode(err, ErrCodeInvariant)
}

// IsInvalidInput 檢查是否為輸入錯誤
func IsInvalidInput(err error) bool {
	return hasCode(err, ErrCodeInvalidInput)
}
