// Package resilience 提供可注入的熔断+重试策略，以及限制并发的舱壁。
package resilience

import (
	"context"
	"errors"
	"quiz_assessment_backend/internal/config"
	"quiz_assessment_backend/pkg/logger"
	"quiz_assessment_backend/pkg/monitoring"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Policy 包装一次可能失败的调用
type Policy interface {
	Execute(ctx context.Context, fn func(ctx context.Context) error) error
}

// IsOpen 调用是否被熔断器拒绝
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// BreakerRetryPolicy 外层有限次指数退避重试，每次尝试都经过熔断器。
// 熔断器拒绝和 Permanent 判定的错误不重试；Permanent 错误也不计入熔断失败。
type BreakerRetryPolicy struct {
	cb        *gobreaker.CircuitBreaker
	retry     config.RetryConfig
	permanent func(error) bool
}

type Option func(*BreakerRetryPolicy)

// WithPermanent 业务错误判定，命中的错误直接返回给调用方
func WithPermanent(fn func(error) bool) Option {
	return func(p *BreakerRetryPolicy) {
		p.permanent = fn
	}
}

func NewBreakerRetryPolicy(bc config.BreakerConfig, rc config.RetryConfig, opts ...Option) *BreakerRetryPolicy {
	p := &BreakerRetryPolicy{
		retry:     rc,
		permanent: func(error) bool { return false },
	}
	for _, opt := range opts {
		opt(p)
	}

	settings := gobreaker.Settings{
		Name:        bc.Name,
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if bc.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= bc.ConsecutiveFailures {
				return true
			}
			if counts.Requests < bc.MinRequests || counts.Requests == 0 {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return bc.FailureRatio > 0 && ratio >= bc.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Log.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			monitoring.BreakerState.WithLabelValues(name).Set(stateValue(to))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || p.permanent(err) || errors.Is(err, context.Canceled)
		},
	}
	p.cb = gobreaker.NewCircuitBreaker(settings)
	monitoring.BreakerState.WithLabelValues(bc.Name).Set(stateValue(gobreaker.StateClosed))
	return p
}

func (p *BreakerRetryPolicy) State() gobreaker.State {
	return p.cb.State()
}

func (p *BreakerRetryPolicy) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	attempt := 0
	op := func() error {
		attempt++
		_, err := p.cb.Execute(func() (interface{}, error) {
			return nil, fn(ctx)
		})
		if err == nil {
			return nil
		}
		if IsOpen(err) || p.permanent(err) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		logger.Log.Debug("Retryable call failed", zap.Int("attempt", attempt), zap.Error(err))
		return err
	}
	return backoff.Retry(op, backoff.WithContext(p.backOff(), ctx))
}

func (p *BreakerRetryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.retry.InitialInterval > 0 {
		b.InitialInterval = p.retry.InitialInterval
	}
	if p.retry.MaxInterval > 0 {
		b.MaxInterval = p.retry.MaxInterval
	}
	if p.retry.Multiplier > 0 {
		b.Multiplier = p.retry.Multiplier
	}
	b.MaxElapsedTime = 0

	retries := uint64(0)
	if p.retry.MaxAttempts > 1 {
		retries = p.retry.MaxAttempts - 1
	}
	return backoff.WithMaxRetries(b, retries)
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// NoopPolicy 直接调用，用于测试
type NoopPolicy struct{}

func (NoopPolicy) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// AlwaysOpenPolicy 模拟熔断器常开
type AlwaysOpenPolicy struct{}

func (AlwaysOpenPolicy) Execute(context.Context, func(ctx context.Context) error) error {
	return gobreaker.ErrOpenState
}
