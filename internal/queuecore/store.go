// Copyright 2025 James Ross
package queuecore

import (
	"context"
	"fmt"
	"time"

	"github.com/gwbischof/starq/internal/breaker"
	"github.com/gwbischof/starq/internal/queueerr"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Store is the process-wide datastore collaborator. It holds the single
// connection pool and the circuit breaker; no component below it dials
// Redis directly. The breaker only sees calls made through guard (Ping and
// the main writes of create, delete, submit, complete and fail); reads,
// acks, counter increments, claim and the reclaimer bypass it.
type Store struct {
	rdb        redis.Cmdable
	cb         *breaker.CircuitBreaker
	log        *zap.Logger
	jobMetaTTL time.Duration
	scanCount  int64
}

// Option configures optional Store behavior beyond the required
// collaborators.
type Option func(*Store)

// WithJobMetaTTL bounds how long a terminal job's metadata survives.
func WithJobMetaTTL(d time.Duration) Option {
	return func(s *Store) { s.jobMetaTTL = d }
}

// WithReclaimScanCount bounds how many pending entries the reclaimer reads
// per queue per sweep.
func WithReclaimScanCount(n int64) Option {
	return func(s *Store) { s.scanCount = n }
}

func NewStore(rdb redis.Cmdable, cb *breaker.CircuitBreaker, log *zap.Logger, opts ...Option) *Store {
	s := &Store{rdb: rdb, cb: cb, log: log, jobMetaTTL: 7 * 24 * time.Hour, scanCount: 100}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping is used by the HTTP health handler.
func (s *Store) Ping(ctx context.Context) error {
	return s.guard(ctx, "ping", func() error {
		return s.rdb.Ping(ctx).Err()
	})
}

// guard runs fn with breaker admission control, translating any failure
// into a queueerr.Datastore error. A tripped breaker fails fast without
// touching the network.
func (s *Store) guard(ctx context.Context, op string, fn func() error) error {
	if s.cb != nil && !s.cb.Allow() {
		return queueerr.Datastore(fmt.Errorf("%s: circuit breaker open", op))
	}
	err := fn()
	if s.cb != nil {
		s.cb.Record(err == nil)
	}
	if err != nil {
		return queueerr.Datastore(fmt.Errorf("%s: %w", op, err))
	}
	return nil
}
