// Copyright 2025 James Ross
package queuecore

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/gwbischof/starq/internal/keyspace"
	"github.com/gwbischof/starq/internal/obs"
	"github.com/gwbischof/starq/internal/queueerr"
)

var queueNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{0,127}$`)

// ValidateQueueName enforces the spec's queue-name grammar.
func ValidateQueueName(name string) error {
	if !queueNamePattern.MatchString(name) {
		return queueerr.Validation("invalid queue name %q", name)
	}
	return nil
}

// Create registers a new queue: consumer group on a (possibly new) stream,
// metadata hash, and queue-set membership. Idempotent on the consumer-group
// step only; fails with conflict if the name is already known.
func (s *Store) Create(ctx context.Context, in QueueCreate) (*QueueInfo, error) {
	if err := ValidateQueueName(in.Name); err != nil {
		return nil, err
	}
	if in.MaxRetries < 0 {
		return nil, queueerr.Validation("max_retries must be >= 0")
	}
	if in.ClaimTimeout <= 0 {
		return nil, queueerr.Validation("claim_timeout_seconds must be > 0")
	}
	exists, err := s.rdb.SIsMember(ctx, keyspace.QueueSet(), in.Name).Result()
	if err != nil {
		return nil, queueerr.Datastore(err)
	}
	if exists {
		return nil, queueerr.Conflict("queue %q already exists", in.Name)
	}

	sk := keyspace.Stream(in.Name)
	cg := keyspace.ConsumerGroup(in.Name)
	err = s.guard(ctx, "xgroup_create", func() error {
		e := s.rdb.XGroupCreateMkStream(ctx, sk, cg, "0").Err()
		if e != nil && !isBusyGroup(e) {
			return e
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	meta := map[string]interface{}{
		"description":   in.Description,
		"max_retries":   strconv.Itoa(in.MaxRetries),
		"claim_timeout": strconv.Itoa(in.ClaimTimeout),
		"dedupe":        boolField(in.Dedupe),
	}
	if err := s.guard(ctx, "hset_queue_meta", func() error {
		return s.rdb.HSet(ctx, keyspace.QueueMeta(in.Name), meta).Err()
	}); err != nil {
		return nil, err
	}
	if err := s.guard(ctx, "sadd_queue_set", func() error {
		return s.rdb.SAdd(ctx, keyspace.QueueSet(), in.Name).Err()
	}); err != nil {
		return nil, err
	}

	return s.Info(ctx, in.Name)
}

// Delete removes a queue and all of its derived state. Queue-set membership
// is removed first so a crash mid-scan only leaves unreferenced garbage
// behind, never a queue that is half-visible.
func (s *Store) Delete(ctx context.Context, name string) error {
	exists, err := s.rdb.SIsMember(ctx, keyspace.QueueSet(), name).Result()
	if err != nil {
		return queueerr.Datastore(err)
	}
	if !exists {
		return queueerr.NotFound("queue %q not found", name)
	}

	if err := s.guard(ctx, "srem_queue_set", func() error {
		return s.rdb.SRem(ctx, keyspace.QueueSet(), name).Err()
	}); err != nil {
		return err
	}

	if err := s.guard(ctx, "unlink_queue_state", func() error {
		return s.rdb.Unlink(ctx,
			keyspace.Stream(name),
			keyspace.QueueMeta(name),
			keyspace.StatsCompleted(name),
			keyspace.StatsFailed(name),
			keyspace.Dedupe(name),
		).Err()
	}); err != nil {
		return err
	}

	var cursor uint64
	for {
		var keys []string
		var err error
		keys, cursor, err = s.rdb.Scan(ctx, cursor, keyspace.JobMetaScanPattern(name), 500).Result()
		if err != nil {
			return queueerr.Datastore(fmt.Errorf("scan job metadata: %w", err))
		}
		if len(keys) > 0 {
			if err := s.rdb.Unlink(ctx, keys...).Err(); err != nil {
				return queueerr.Datastore(fmt.Errorf("unlink job metadata: %w", err))
			}
		}
		if cursor == 0 {
			break
		}
	}
	return nil
}

// Info fans out metadata, counters, stream length and pending count.
func (s *Store) Info(ctx context.Context, name string) (*QueueInfo, error) {
	exists, err := s.rdb.SIsMember(ctx, keyspace.QueueSet(), name).Result()
	if err != nil {
		return nil, queueerr.Datastore(err)
	}
	if !exists {
		return nil, queueerr.NotFound("queue %q not found", name)
	}

	meta, err := s.rdb.HGetAll(ctx, keyspace.QueueMeta(name)).Result()
	if err != nil {
		return nil, queueerr.Datastore(err)
	}

	length, err := s.rdb.XLen(ctx, keyspace.Stream(name)).Result()
	if err != nil {
		length = 0
	}

	var pending int64
	if summary, err := s.rdb.XPending(ctx, keyspace.Stream(name), keyspace.ConsumerGroup(name)).Result(); err == nil && summary != nil {
		pending = summary.Count
	}

	completed, _ := s.rdb.Get(ctx, keyspace.StatsCompleted(name)).Int64()
	failed, _ := s.rdb.Get(ctx, keyspace.StatsFailed(name)).Int64()

	maxRetries, _ := strconv.Atoi(meta["max_retries"])
	claimTimeout, _ := strconv.Atoi(meta["claim_timeout"])

	obs.QueueLength.WithLabelValues(name).Set(float64(length))

	return &QueueInfo{
		Name:           name,
		Description:    meta["description"],
		MaxRetries:     maxRetries,
		ClaimTimeout:   claimTimeout,
		Dedupe:         meta["dedupe"] == "1",
		Pending:        pending,
		CompletedTotal: completed,
		FailedTotal:    failed,
		Length:         length,
	}, nil
}

// List returns every queue's Info, sorted by name.
func (s *Store) List(ctx context.Context) ([]QueueInfo, error) {
	names, err := s.rdb.SMembers(ctx, keyspace.QueueSet()).Result()
	if err != nil {
		return nil, queueerr.Datastore(err)
	}
	sort.Strings(names)

	out := make([]QueueInfo, 0, len(names))
	for _, name := range names {
		info, err := s.Info(ctx, name)
		if err != nil {
			if queueerr.Is(err, queueerr.CodeNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, *info)
	}
	return out, nil
}

func isBusyGroup(err error) bool {
	return err != nil && strings.Contains(err.Error(), "BUSYGROUP")
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
