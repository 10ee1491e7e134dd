// Copyright 2025 James Ross
package queuecore

import (
	"context"
	"strconv"
	"time"

	"github.com/gwbischof/starq/internal/keyspace"
	"github.com/gwbischof/starq/internal/obs"
	"github.com/redis/go-redis/v9"
)

// Reclaimer is the background sweep: it resurrects jobs idle past their
// queue's claim timeout, or dead-letters them once their retry budget is
// spent. It is best-effort and idempotent — a crash mid-sweep is caught up
// by the next tick — and per-queue failures are logged, not propagated, so
// one broken queue cannot starve the others.
type Reclaimer struct {
	store    *Store
	interval time.Duration
}

func NewReclaimer(store *Store, interval time.Duration) *Reclaimer {
	return &Reclaimer{store: store, interval: interval}
}

// Run sweeps every interval until ctx is cancelled. It exits its outer
// loop without running a final sweep on cancellation.
func (r *Reclaimer) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reclaimer) sweep(ctx context.Context) {
	start := time.Now()
	defer func() {
		obs.ReclaimSweepDuration.Observe(time.Since(start).Seconds())
	}()

	names, err := r.store.rdb.SMembers(ctx, keyspace.QueueSet()).Result()
	if err != nil {
		r.store.log.Warn("reclaimer: list queues failed", obs.Err(err))
		return
	}

	for _, name := range names {
		if err := r.sweepQueue(ctx, name); err != nil {
			r.store.log.Warn("reclaimer: queue sweep failed", obs.String("queue", name), obs.Err(err))
		}
	}
}

func (r *Reclaimer) sweepQueue(ctx context.Context, queue string) error {
	meta, err := r.store.rdb.HGetAll(ctx, keyspace.QueueMeta(queue)).Result()
	if err != nil {
		return err
	}
	if len(meta) == 0 {
		return nil
	}
	claimTimeoutSec, _ := strconv.Atoi(meta["claim_timeout"])
	if claimTimeoutSec <= 0 {
		claimTimeoutSec = 300
	}
	maxRetries, _ := strconv.Atoi(meta["max_retries"])
	claimTimeoutMs := int64(claimTimeoutSec) * 1000

	sk := keyspace.Stream(queue)
	cg := keyspace.ConsumerGroup(queue)

	entries, err := r.store.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: sk,
		Group:  cg,
		Start:  "-",
		End:    "+",
		Count:  r.store.scanCount,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.Idle.Milliseconds() < claimTimeoutMs {
			continue
		}
		jmk := keyspace.JobMeta(queue, entry.ID)
		retries, _ := r.store.rdb.HGet(ctx, jmk, "retries").Int()

		if retries >= maxRetries {
			dedupeHash, _ := r.store.rdb.HGet(ctx, jmk, "dedupe_hash").Result()
			now := strconv.FormatInt(time.Now().Unix(), 10)
			if err := r.store.rdb.HSet(ctx, jmk, map[string]interface{}{
				"status":       StatusFailed,
				"error":        "max retries exceeded (stale reclaim)",
				"completed_at": now,
			}).Err(); err != nil {
				continue
			}
			r.store.applyJobMetaTTL(ctx, jmk)
			r.store.rdb.XAck(ctx, sk, cg, entry.ID)
			r.store.rdb.Incr(ctx, keyspace.StatsFailed(queue))
			if dedupeHash != "" {
				r.store.rdb.SRem(ctx, keyspace.Dedupe(queue), dedupeHash)
			}
			obs.JobsFailed.WithLabelValues(queue).Inc()
		} else {
			if err := r.store.rdb.HSet(ctx, jmk, map[string]interface{}{
				"status":     StatusPending,
				"claimed_by": "",
				"claimed_at": "",
			}).Err(); err != nil {
				continue
			}
			obs.JobsReclaimed.WithLabelValues(queue).Inc()
		}
	}
	return nil
}
