package storage

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/fathima-sithara/tinytalk/internal/utils"
)

type BreakerConfig struct {
	MaxFailures int
	Interval    time.Duration
	Timeout     time.Duration
}

// breakerStore fails fast while the backend keeps erroring. It never retries.
type breakerStore struct {
	next Store
	cb   *gobreaker.CircuitBreaker
}

// WithBreaker wraps next in a circuit breaker. Not-found answers are
// treated as healthy responses.
func WithBreaker(next Store, cfg BreakerConfig, log *zap.SugaredLogger) Store {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	st := gobreaker.Settings{
		Name:        "storage",
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.MaxFailures)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, utils.ErrNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if log != nil {
				log.Infow("circuit breaker state", "name", name, "from", from.String(), "to", to.String())
			}
		},
	}
	return &breakerStore{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

func run[T any](b *breakerStore, op string, fn func() (T, error)) (T, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, utils.Storage(op, err)
		}
		return zero, err
	}
	return res.(T), nil
}

func (b *breakerStore) List(ctx context.Context, prefix string) ([]Object, error) {
	return run(b, "list "+prefix, func() ([]Object, error) { return b.next.List(ctx, prefix) })
}

func (b *breakerStore) Put(ctx context.Context, p string, data []byte, contentType string) (Object, error) {
	return run(b, "put "+p, func() (Object, error) { return b.next.Put(ctx, p, data, contentType) })
}

func (b *breakerStore) Delete(ctx context.Context, locator string) error {
	_, err := run(b, "delete "+locator, func() (struct{}, error) {
		return struct{}{}, b.next.Delete(ctx, locator)
	})
	return err
}

func (b *breakerStore) Get(ctx context.Context, p string) ([]byte, error) {
	return run(b, "get "+p, func() ([]byte, error) { return b.next.Get(ctx, p) })
}
