package livetrans

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// 预定义错误
var (
	// ErrNilConfig 配置为空
	ErrNilConfig = errors.New("config is nil")

	// ErrInvalidConfig 无效配置
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNoClient 翻译客户端未设置
	ErrNoClient = errors.New("translation client not configured")

	// ErrRunCanceled 运行被取消
	ErrRunCanceled = errors.New("translation run canceled")
)

// ErrorCode 翻译失败分类
type ErrorCode string

const (
	CodeAuthentication  ErrorCode = "AUTHENTICATION"
	CodeTimeout         ErrorCode = "TIMEOUT"
	CodeRateLimit       ErrorCode = "RATE_LIMIT"
	CodeNetwork         ErrorCode = "NETWORK"
	CodeServer          ErrorCode = "SERVER"
	CodeInvalidResponse ErrorCode = "INVALID_RESPONSE"
	CodeUnknown         ErrorCode = "UNKNOWN"
)

// Retryable 该分类是否允许重试
func (c ErrorCode) Retryable() bool {
	switch c {
	case CodeTimeout, CodeRateLimit, CodeNetwork, CodeServer:
		return true
	}
	return false
}

// TranslateError 带分类的翻译错误
type TranslateError struct {
	Code    ErrorCode // 错误分类
	Message string    // 错误消息
	Cause   error     // 原因
}

// Error 实现error接口
func (e *TranslateError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回原因错误
func (e *TranslateError) Unwrap() error {
	return e.Cause
}

// IsRetryable 是否可重试
func (e *TranslateError) IsRetryable() bool {
	return e.Code.Retryable()
}

// NewTranslateError 创建翻译错误
func NewTranslateError(code ErrorCode, message string, cause error) *TranslateError {
	return &TranslateError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigError 创建指明缺失字段的配置错误
func NewConfigError(field string) error {
	return fmt.Errorf("%w: missing required field %q", ErrInvalidConfig, field)
}

// ClassifyStatus 将 HTTP 状态码映射到错误分类
func ClassifyStatus(status int) ErrorCode {
	switch {
	case status == 401 || status == 403:
		return CodeAuthentication
	case status == 408 || status == 504:
		return CodeTimeout
	case status == 429:
		return CodeRateLimit
	case status >= 500 && status <= 599:
		return CodeServer
	}
	return CodeUnknown
}

// ClassifyTransport 将传输层错误映射到错误分类
func ClassifyTransport(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return CodeTimeout
		}
		return CodeNetwork
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return CodeNetwork
	}

	return CodeUnknown
}

// AsTranslateError 提取或包装为 TranslateError
func AsTranslateError(err error) *TranslateError {
	if err == nil {
		return nil
	}
	var te *TranslateError
	if errors.As(err, &te) {
		return te
	}
	code := ClassifyTransport(err)
	return NewTranslateError(code, err.Error(), err)
}
