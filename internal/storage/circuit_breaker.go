package storage

import (
	"context"
	"fmt"

	"logfilters/internal/config"
	"logfilters/internal/filters"
	"logfilters/pkg/circuitbreaker"
	pkgerrors "logfilters/pkg/errors"
)

// CircuitBreakerRepository stops hammering an unavailable store. Client
// faults such as ErrNotFound do not count as breaker failures.
type CircuitBreakerRepository struct {
	repo Repository
	cb   *circuitbreaker.Wrapper
}

func NewCircuitBreakerRepository(repo Repository, name string, cfg config.CircuitBreakerConfig) *CircuitBreakerRepository {
	if !cfg.Enabled {
		return &CircuitBreakerRepository{repo: repo}
	}

	cbConfig := circuitbreaker.DefaultConfig(name)
	if cfg.MaxRequests > 0 {
		cbConfig.MaxRequests = cfg.MaxRequests
	}
	if cfg.Interval > 0 {
		cbConfig.Interval = cfg.Interval
	}
	if cfg.Timeout > 0 {
		cbConfig.Timeout = cfg.Timeout
	}
	if cfg.FailureRatio > 0 && cfg.MinRequests > 0 {
		cbConfig.ReadyToTrip = circuitbreaker.TripOnRatio(cfg.MinRequests, cfg.FailureRatio)
	}

	return &CircuitBreakerRepository{
		repo: repo,
		cb:   circuitbreaker.NewWrapper(cbConfig),
	}
}

func (r *CircuitBreakerRepository) run(ctx context.Context, fn func() error) error {
	if r.cb == nil {
		return fn()
	}

	var clientErr error
	err := r.cb.Run(ctx, func() error {
		err := fn()
		if err != nil && !pkgerrors.IsPersistence(err) {
			clientErr = err
			return nil
		}
		return err
	})
	if clientErr != nil {
		return clientErr
	}
	if err != nil && r.cb.IsOpen() && !pkgerrors.IsPersistence(err) {
		return pkgerrors.ErrPersistence.WithCause(fmt.Errorf("circuit breaker is open for %s: %w", r.cb.Name(), err))
	}
	return err
}

func (r *CircuitBreakerRepository) Insert(ctx context.Context, records []filters.Record) error {
	return r.run(ctx, func() error {
		return r.repo.Insert(ctx, records)
	})
}

func (r *CircuitBreakerRepository) List(ctx context.Context, partition filters.Partition) ([]filters.Record, error) {
	var records []filters.Record
	err := r.run(ctx, func() error {
		var err error
		records, err = r.repo.List(ctx, partition)
		return err
	})
	return records, err
}

func (r *CircuitBreakerRepository) Delete(ctx context.Context, id string) error {
	return r.run(ctx, func() error {
		return r.repo.Delete(ctx, id)
	})
}

func (r *CircuitBreakerRepository) Ping(ctx context.Context) error {
	return r.repo.Ping(ctx)
}

func (r *CircuitBreakerRepository) State() string {
	if r.cb == nil {
		return "disabled"
	}
	return r.cb.State().String()
}
