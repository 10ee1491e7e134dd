// Copyright 2025 James Ross
package queuecore

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/gwbischof/starq/internal/keyspace"
	"github.com/gwbischof/starq/internal/obs"
	"github.com/gwbischof/starq/internal/queueerr"
)

// Complete transitions a job to completed: writes the result, acknowledges
// the stream entry, and bumps the completed counter.
func (s *Store) Complete(ctx context.Context, queue, jobID string, result map[string]interface{}) error {
	jmk := keyspace.JobMeta(queue, jobID)
	exists, err := s.rdb.Exists(ctx, jmk).Result()
	if err != nil {
		return queueerr.Datastore(err)
	}
	if exists == 0 {
		return queueerr.NotFound("job %q not found", jobID)
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return queueerr.Validation("invalid result: %v", err)
	}
	now := strconv.FormatInt(time.Now().Unix(), 10)

	if err := s.guard(ctx, "complete_job", func() error {
		if err := s.rdb.HSet(ctx, jmk, map[string]interface{}{
			"status":       StatusCompleted,
			"result":       string(resultJSON),
			"completed_at": now,
		}).Err(); err != nil {
			return err
		}
		return nil
	}); err != nil {
		return err
	}

	s.applyJobMetaTTL(ctx, jmk)

	if err := s.rdb.XAck(ctx, keyspace.Stream(queue), keyspace.ConsumerGroup(queue), jobID).Err(); err != nil {
		s.log.Warn("ack on complete failed", obs.Err(err), obs.String("queue", queue), obs.String("job_id", jobID))
	}
	s.rdb.Incr(ctx, keyspace.StatsCompleted(queue))
	obs.JobsCompleted.WithLabelValues(queue).Inc()
	return nil
}

// Fail records a job failure. If the job's retry budget is not yet
// exhausted it is reset to pending and left in the pending list so the
// next claim's stale-reclaim leg can pick it back up. Otherwise it is
// dead-lettered: acknowledged, marked failed, counted, and its dedupe hash
// (if any) released so identical payloads can be resubmitted.
func (s *Store) Fail(ctx context.Context, queue, jobID, errMsg string) (int, error) {
	jmk := keyspace.JobMeta(queue, jobID)
	exists, err := s.rdb.Exists(ctx, jmk).Result()
	if err != nil {
		return 0, queueerr.Datastore(err)
	}
	if exists == 0 {
		return 0, queueerr.NotFound("job %q not found", jobID)
	}

	qmeta, err := s.rdb.HGetAll(ctx, keyspace.QueueMeta(queue)).Result()
	if err != nil {
		return 0, queueerr.Datastore(err)
	}
	maxRetries, _ := strconv.Atoi(qmeta["max_retries"])

	retries, _ := s.rdb.HGet(ctx, jmk, "retries").Int()

	if retries < maxRetries {
		if err := s.guard(ctx, "fail_requeue", func() error {
			return s.rdb.HSet(ctx, jmk, map[string]interface{}{
				"status":     StatusPending,
				"error":      errMsg,
				"claimed_by": "",
				"claimed_at": "",
			}).Err()
		}); err != nil {
			return 0, err
		}
		return retries, nil
	}

	// Dead-letter.
	dedupeHash, _ := s.rdb.HGet(ctx, jmk, "dedupe_hash").Result()
	now := strconv.FormatInt(time.Now().Unix(), 10)
	if err := s.guard(ctx, "fail_deadletter", func() error {
		return s.rdb.HSet(ctx, jmk, map[string]interface{}{
			"status":       StatusFailed,
			"error":        errMsg,
			"completed_at": now,
		}).Err()
	}); err != nil {
		return 0, err
	}
	s.applyJobMetaTTL(ctx, jmk)

	if err := s.rdb.XAck(ctx, keyspace.Stream(queue), keyspace.ConsumerGroup(queue), jobID).Err(); err != nil {
		s.log.Warn("ack on dead-letter failed", obs.Err(err), obs.String("queue", queue), obs.String("job_id", jobID))
	}
	s.rdb.Incr(ctx, keyspace.StatsFailed(queue))
	if dedupeHash != "" {
		s.rdb.SRem(ctx, keyspace.Dedupe(queue), dedupeHash)
	}
	obs.JobsFailed.WithLabelValues(queue).Inc()
	return retries, nil
}

// applyJobMetaTTL bounds how long a terminal job's metadata survives.
// Queue deletion is the other, immediate, removal path.
func (s *Store) applyJobMetaTTL(ctx context.Context, key string) {
	if s.jobMetaTTL <= 0 {
		return
	}
	s.rdb.Expire(ctx, key, s.jobMetaTTL)
}
