// Package retry 基础设施故障的有限次退避重试
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrExhausted 重试次数耗尽
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy 重试策略
type Policy struct {
	Attempts int           // 总尝试次数（含第一次），小于 1 按 1 处理
	Backoff  time.Duration // 首次退避，之后每次翻倍
	MaxDelay time.Duration // 单次退避上限，0 表示不限制
}

// Permanent 包装后的错误不再重试
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Do 执行 fn 直到成功、遇到 Permanent 错误、ctx 结束或次数耗尽。
// 耗尽时返回同时包装 ErrExhausted 与最后一次错误的 error。
func Do(ctx context.Context, clock clockwork.Clock, p Policy, fn func(ctx context.Context) error) error {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	attempts := max(p.Attempts, 1)
	delay := p.Backoff

	var last error
	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return err
		}

		last = fn(ctx)
		if last == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(last, &perm) {
			return perm.err
		}
		if i == attempts-1 {
			break
		}

		if delay > 0 {
			t := clock.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.Chan():
			}
			delay *= 2
			if p.MaxDelay > 0 && delay > p.MaxDelay {
				delay = p.MaxDelay
			}
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, last)
}
