package errors

import (
	stderrors "errors"
	"fmt"
)

// ========== 错误码常量定义 ==========

// CodeSuccess 成功码
const (
	CodeSuccess = 200
)

// HTTP层错误码 (400-599)
const (
	CodeInvalidParam = 400
	CodeUnauthorized = 401
	CodeForbidden    = 403
	CodeNotFound     = 404
	CodeConflict     = 409
	CodeServerError  = 500
)

// 机器可读的错误标识，前端据此区分跳转登录与无权限提示
const (
	ErrUnauthenticated        = "UNAUTHENTICATED"
	ErrAccountDisabled        = "ACCOUNT_DISABLED"
	ErrInsufficientRole       = "INSUFFICIENT_ROLE"
	ErrInsufficientPermission = "INSUFFICIENT_PERMISSION"
	ErrNotFound               = "NOT_FOUND"
	ErrValidation             = "VALIDATION_ERROR"
	ErrConflict               = "CONFLICT"
	ErrInternal               = "INTERNAL"
)

// AppError 业务错误
type AppError struct {
	Code      int    // 响应码
	ErrorCode string // 稳定的错误标识
	Message   string // 面向用户的提示
	Err       error  // 原始错误
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.ErrorCode, e.Message, e.Err)
	}
	return e.ErrorCode + ": " + e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 按错误标识比较，便于 errors.Is(err, errors.NotFound(""))
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.ErrorCode == e.ErrorCode
}

func newError(code int, errorCode, message string) *AppError {
	return &AppError{Code: code, ErrorCode: errorCode, Message: message}
}

func Unauthenticated(message string) *AppError {
	return newError(CodeUnauthorized, ErrUnauthenticated, message)
}

func AccountDisabled(message string) *AppError {
	return newError(CodeUnauthorized, ErrAccountDisabled, message)
}

func InsufficientRole(message string) *AppError {
	return newError(CodeForbidden, ErrInsufficientRole, message)
}

func InsufficientPermission(message string) *AppError {
	return newError(CodeForbidden, ErrInsufficientPermission, message)
}

func NotFound(message string) *AppError {
	return newError(CodeNotFound, ErrNotFound, message)
}

func Validation(message string) *AppError {
	return newError(CodeInvalidParam, ErrValidation, message)
}

func Validationf(format string, args ...interface{}) *AppError {
	return Validation(fmt.Sprintf(format, args...))
}

func Conflict(message string) *AppError {
	return newError(CodeConflict, ErrConflict, message)
}

// Internal 包装存储/事务失败
func Internal(message string, err error) *AppError {
	e := newError(CodeServerError, ErrInternal, message)
	e.Err = err
	return e
}

// From 将任意错误转换为 AppError，未知错误视为内部错误
func From(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Internal("服务器内部错误", err)
}

// IsKind 判断错误是否属于某个错误标识
func IsKind(err error, errorCode string) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.ErrorCode == errorCode
	}
	return false
}
