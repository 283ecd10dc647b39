package services

import (
	"errors"
	"fmt"
)

// CallErrorKind classifies outbound call failures surfaced to the UI.
type CallErrorKind string

const (
	ErrKindConfigIncomplete  CallErrorKind = "config_incomplete"
	ErrKindTransientUpstream CallErrorKind = "transient_upstream"
	ErrKindTimeout           CallErrorKind = "timeout"
	ErrKindShapeError        CallErrorKind = "shape_error"
	ErrKindEmptyContent      CallErrorKind = "empty_content"
)

// Timeout reasons distinguish our own abort from a provider 504.
const (
	TimeoutReasonAbort    = "request_timeout"
	TimeoutReasonGateway  = "gateway_timeout"
	TimeoutReasonUpstream = "upstream_timeout"
)

// CallError is the single error type the call coordinator returns.
// Retries are invisible to the caller; only the final outcome surfaces.
type CallError struct {
	Kind   CallErrorKind
	Reason string
	Status int
	Err    error
}

func (e *CallError) Error() string {
	msg := fmt.Sprintf("llm call failed (%s", e.Kind)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(", status %d", e.Status)
	}
	msg += ")"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// Hint returns the human guidance the UI shows alongside the error.
func (e *CallError) Hint() string {
	switch e.Kind {
	case ErrKindConfigIncomplete:
		return "请先在设置中填写 API 地址、密钥和模型"
	case ErrKindTimeout:
		return "请求超时，可以稍后重试或换用更快的模型"
	case ErrKindTransientUpstream:
		return "上游服务暂时不可用，请稍后重试"
	case ErrKindShapeError:
		return "上游返回了无法解析的内容，请检查 API 配置"
	case ErrKindEmptyContent:
		return "模型没有返回内容，请重试"
	}
	return ""
}

// Hint extracts the UI hint from any error chain.
func Hint(err error) string {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Hint()
	}
	return ""
}

// ErrorKind extracts the kind from any error chain, defaulting to
// transient_upstream for non-call errors.
func ErrorKind(err error) CallErrorKind {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ErrKindTransientUpstream
}

// IsTimeout reports whether the error chain carries a terminal timeout.
func IsTimeout(err error) bool {
	return ErrorKind(err) == ErrKindTimeout
}
