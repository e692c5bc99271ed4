// Package apperr 业务错误分类：校验错误、并发冲突、资源不存在
package apperr

import (
	"errors"
	"fmt"
)

// Kind 错误类别
type Kind string

const (
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindNotFound   Kind = "not_found"
)

// 校验错误码
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeMarketResolved     = "MARKET_RESOLVED"
	CodeMarketClosed       = "MARKET_CLOSED"
	CodeAmountExceedsMax   = "AMOUNT_EXCEEDS_MAX"
	CodeInsufficientPoints = "INSUFFICIENT_BALANCE"
	CodeSideSwitch         = "SIDE_SWITCH_NOT_ALLOWED"
	CodeAmountUnchanged    = "AMOUNT_UNCHANGED"
	CodeAmountDecrease     = "AMOUNT_DECREASE_NOT_ALLOWED"
	CodeMarketNotResolved  = "MARKET_NOT_RESOLVED"
	CodeAlreadyResolved    = "ALREADY_RESOLVED"
	CodeBetConflict        = "BET_CONFLICT"
	CodeNotFound           = "NOT_FOUND"
)

type AppError struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// Is 同类同码视为相等，便于 errors.Is 比较哨兵错误
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

func Validation(code, message string) *AppError {
	return &AppError{Kind: KindValidation, Code: code, Message: message}
}

func Conflict(code, message string) *AppError {
	return &AppError{Kind: KindConflict, Code: code, Message: message}
}

func NotFound(message string, err error) *AppError {
	return &AppError{Kind: KindNotFound, Code: CodeNotFound, Message: message, Err: err}
}

var (
	ErrMarketNotFound      = NotFound("market not found", nil)
	ErrAlreadyResolved     = Conflict(CodeAlreadyResolved, "market already resolved, refresh and retry")
	ErrInsufficientBalance = Validation(CodeInsufficientPoints, "insufficient balance")
	ErrLockHeld            = errors.New("lock held by another holder")
)

func kindOf(err error) (Kind, bool) {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return "", false
}

func IsValidation(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindValidation
}

func IsConflict(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindConflict
}

func IsNotFound(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindNotFound
}

// CodeOf 返回错误码，非 AppError 返回空串
func CodeOf(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}
