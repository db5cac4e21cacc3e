package errors

import (
	"fmt"
	"net/http"

	pkgerrors "github.com/pkg/errors"
)

// 稳定的机器可读错误码, 文案可以调整但 code 不变
const (
	CodeMethodNotAllowed    = "method_not_allowed"
	CodeInvalidJSON         = "invalid_json"
	CodePayloadTooLarge     = "payload_too_large"
	CodeValidation          = "validation_error"
	CodeConfiguration       = "configuration_error"
	CodeRateLimited         = "rate_limited"
	CodePaymentRequired     = "payment_required"
	CodeUpstreamUnavailable = "upstream_unavailable"
	CodeUnauthorized        = "unauthorized"
	CodeNotFound            = "not_found"
	CodeConflict            = "conflict"
	CodeInternal            = "internal_error"
)

// 面向用户的文案
const (
	MsgMethodNotAllowed   = "Method not allowed"
	MsgInvalidJSON        = "Invalid JSON body"
	MsgPayloadTooLarge    = "Request body is too large"
	MsgInvalidRequest     = "Invalid request"
	MsgAPIKeyMissing      = "API key is not configured"
	MsgRateLimit          = "Rate limit exceeded. Please try again later."
	MsgPaymentRequired    = "Payment required. Please add credits to continue."
	MsgServiceUnavailable = "AI service temporarily unavailable"
	MsgUnknown            = "An unexpected error occurred"
)

// StackError 带 HTTP 状态、错误码和调用栈的错误
type StackError struct {
	code   string
	status int
	msg    string
	cause  error
}

func New(status int, code, msg string) *StackError {
	return &StackError{
		code:   code,
		status: status,
		msg:    msg,
		cause:  pkgerrors.New(msg),
	}
}

// Wrap 保留底层错误, 底层错误不会暴露给调用方
func Wrap(err error, status int, code, msg string) *StackError {
	if err == nil {
		return New(status, code, msg)
	}
	return &StackError{
		code:   code,
		status: status,
		msg:    msg,
		cause:  pkgerrors.WithStack(err),
	}
}

func (e *StackError) Error() string {
	if e.cause != nil && e.cause.Error() != e.msg {
		return fmt.Sprintf("%s: %s", e.msg, e.cause.Error())
	}
	return e.msg
}

func (e *StackError) Code() string { return e.code }

func (e *StackError) Status() int { return e.status }

func (e *StackError) Msg() string { return e.msg }

func (e *StackError) Unwrap() error { return e.cause }

// Stack 返回完整调用栈, 只用于日志
func (e *StackError) Stack() string {
	return fmt.Sprintf("%+v", e.cause)
}

// Is 按 code 比较
func (e *StackError) Is(target error) bool {
	t, ok := target.(*StackError)
	if !ok {
		return false
	}
	return t.code == e.code
}

func MethodNotAllowed() *StackError {
	return New(http.StatusBadRequest, CodeMethodNotAllowed, MsgMethodNotAllowed)
}

func InvalidJSON(err error) *StackError {
	return Wrap(err, http.StatusBadRequest, CodeInvalidJSON, MsgInvalidJSON)
}

func PayloadTooLarge(err error) *StackError {
	return Wrap(err, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, MsgPayloadTooLarge)
}

func Validation(msg string) *StackError {
	if msg == "" {
		msg = MsgInvalidRequest
	}
	return New(http.StatusBadRequest, CodeValidation, msg)
}

func Configuration() *StackError {
	return New(http.StatusInternalServerError, CodeConfiguration, MsgAPIKeyMissing)
}

func RateLimited() *StackError {
	return New(http.StatusTooManyRequests, CodeRateLimited, MsgRateLimit)
}

func PaymentRequired() *StackError {
	return New(http.StatusPaymentRequired, CodePaymentRequired, MsgPaymentRequired)
}

func UpstreamUnavailable(err error) *StackError {
	return Wrap(err, http.StatusInternalServerError, CodeUpstreamUnavailable, MsgServiceUnavailable)
}

func Unauthorized(msg string) *StackError {
	return New(http.StatusUnauthorized, CodeUnauthorized, msg)
}

func NotFound(msg string) *StackError {
	return New(http.StatusNotFound, CodeNotFound, msg)
}

func Conflict(msg string) *StackError {
	return New(http.StatusConflict, CodeConflict, msg)
}

func Internal(err error) *StackError {
	return Wrap(err, http.StatusInternalServerError, CodeInternal, MsgUnknown)
}

// From 把任意错误转换为 StackError
func From(err error) *StackError {
	if err == nil {
		return nil
	}
	var se *StackError
	if pkgerrors.As(err, &se) {
		return se
	}
	return Internal(err)
}
