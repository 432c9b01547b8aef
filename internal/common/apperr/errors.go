package apperr

import (
	"errors"
	"fmt"
)

// Kind 业务错误分类，决定对外的处理方式（HTTP 状态码、是否可重试等）。
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound           // 引用的实体不存在
	KindValidation         // 入参不合法，调用方可修正后重试
	KindConflict           // 与当前资源状态冲突（并发占用、已有出价等）
	KindInvalidState       // 当前状态不允许该操作（状态机约束）
)

// Error 携带分类的业务错误。
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// NotFound 引用的拍卖/车辆不存在。
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Validation 入参不合法。
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Conflict 与资源当前状态冲突。
func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// InvalidState 当前状态不允许该操作。
func InvalidState(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

// KindOf 取出错误分类；非业务错误返回 KindUnknown。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsNotFound(err error) bool     { return KindOf(err) == KindNotFound }
func IsValidation(err error) bool   { return KindOf(err) == KindValidation }
func IsConflict(err error) bool     { return KindOf(err) == KindConflict }
func IsInvalidState(err error) bool { return KindOf(err) == KindInvalidState }
