package livetrans

import (
	"context"
	"time"
)

// RetryPolicy 分段级重试策略
// 线性退避：第n次失败后等待 BaseDelay*n；可重试分类见 ErrorCode.Retryable
type RetryPolicy struct {
	// MaxAttempts 最大尝试次数（含首次）
	MaxAttempts int

	// BaseDelay 退避基础延迟
	BaseDelay time.Duration
}

// NewRetryPolicy 从配置构建重试策略
func NewRetryPolicy(cfg *Config) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxRetries,
		BaseDelay:   cfg.RetryBaseDelay,
	}
}

// Delay 第attempt次失败后的等待时间
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.BaseDelay * time.Duration(attempt)
}

// Execute 执行带重试的翻译调用
// 返回结果、实际尝试次数，以及耗尽或终止时的分类错误；
// 取消信号在每次调用前后都会被检查
func (p RetryPolicy) Execute(ctx context.Context, fn func(context.Context) (*RawResult, error)) (*RawResult, int, *TranslateError) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr *TranslateError
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, attempt - 1, NewTranslateError(CodeUnknown, "canceled", ctx.Err())
		}

		result, err := fn(ctx)
		if err == nil {
			return result, attempt, nil
		}
		if ctx.Err() != nil {
			return nil, attempt, NewTranslateError(CodeUnknown, "canceled", ctx.Err())
		}

		lastErr = AsTranslateError(err)
		if !lastErr.IsRetryable() || attempt == maxAttempts {
			return nil, attempt, lastErr
		}

		// 线性退避等待，期间响应取消
		timer := time.NewTimer(p.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, attempt, NewTranslateError(CodeUnknown, "canceled", ctx.Err())
		case <-timer.C:
		}
	}

	return nil, maxAttempts, lastErr
}
