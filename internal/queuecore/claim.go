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
	"github.com/redis/go-redis/v9"
)

// Claim returns up to count jobs, transitioning each to claimed. It issues
// two logical reads and concatenates their results: a stale-reclaim leg
// (XAUTOCLAIM against this process's fixed consumer identity) followed by
// a fresh-read leg for whatever count still needs filling. Both legs
// tolerate empty results without error; only the fresh leg may block.
func (s *Store) Claim(ctx context.Context, queue string, count int, blockMs int) ([]JobInfo, error) {
	if count <= 0 {
		return []JobInfo{}, nil
	}

	meta, err := s.rdb.HGetAll(ctx, keyspace.QueueMeta(queue)).Result()
	if err != nil {
		return nil, queueerr.Datastore(err)
	}
	if len(meta) == 0 {
		return nil, queueerr.NotFound("queue %q not found", queue)
	}
	claimTimeoutSec, _ := strconv.Atoi(meta["claim_timeout"])
	if claimTimeoutSec <= 0 {
		claimTimeoutSec = 300
	}
	minIdle := time.Duration(claimTimeoutSec) * time.Second

	sk := keyspace.Stream(queue)
	cg := keyspace.ConsumerGroup(queue)
	now := strconv.FormatInt(time.Now().Unix(), 10)

	claimed := make([]JobInfo, 0, count)

	staleMessages, _, err := s.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   sk,
		Group:    cg,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    int64(count),
		Consumer: keyspace.Consumer,
	}).Result()
	if err != nil && err != redis.Nil {
		s.log.Warn("stale reclaim leg failed", obs.Err(err), obs.String("queue", queue))
	}
	for _, msg := range staleMessages {
		jmk := keyspace.JobMeta(queue, msg.ID)
		retries, _ := s.rdb.HGet(ctx, jmk, "retries").Int()
		if err := s.rdb.HSet(ctx, jmk, map[string]interface{}{
			"status":     StatusClaimed,
			"claimed_by": keyspace.Consumer,
			"claimed_at": now,
			"retries":    strconv.Itoa(retries + 1),
		}).Err(); err != nil {
			continue
		}
		info, err := s.jobInfoFromMeta(ctx, queue, msg.ID)
		if err != nil {
			continue
		}
		claimed = append(claimed, *info)
	}
	if len(staleMessages) > 0 {
		obs.JobsClaimed.WithLabelValues(queue, legStale).Add(float64(len(staleMessages)))
	}

	remaining := count - len(claimed)
	if remaining > 0 {
		block := time.Duration(-1)
		if blockMs > 0 && len(claimed) == 0 {
			block = time.Duration(blockMs) * time.Millisecond
		}
		streams, err := s.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    cg,
			Consumer: keyspace.Consumer,
			Streams:  []string{sk, ">"},
			Count:    int64(remaining),
			Block:    block,
		}).Result()
		if err != nil && err != redis.Nil {
			s.log.Warn("fresh read leg failed", obs.Err(err), obs.String("queue", queue))
		}
		freshCount := 0
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				jmk := keyspace.JobMeta(queue, msg.ID)
				if err := s.rdb.HSet(ctx, jmk, map[string]interface{}{
					"status":     StatusClaimed,
					"claimed_by": keyspace.Consumer,
					"claimed_at": now,
				}).Err(); err != nil {
					continue
				}
				info, err := s.jobInfoFromMeta(ctx, queue, msg.ID)
				if err != nil {
					continue
				}
				claimed = append(claimed, *info)
				freshCount++
			}
		}
		if freshCount > 0 {
			obs.JobsClaimed.WithLabelValues(queue, legFresh).Add(float64(freshCount))
		}
	}

	return claimed, nil
}

// jobInfoFromMeta reads back a job's metadata hash and maps it onto JobInfo.
func (s *Store) jobInfoFromMeta(ctx context.Context, queue, jobID string) (*JobInfo, error) {
	meta, err := s.rdb.HGetAll(ctx, keyspace.JobMeta(queue, jobID)).Result()
	if err != nil {
		return nil, err
	}
	return mapMetaToJobInfo(queue, jobID, meta), nil
}

func mapMetaToJobInfo(queue, jobID string, meta map[string]string) *JobInfo {
	status := meta["status"]
	if status == "" {
		status = StatusPending
	}
	retries, _ := strconv.Atoi(meta["retries"])
	info := &JobInfo{
		ID:          jobID,
		Queue:       queue,
		Status:      status,
		Payload:     decodeJSONMap(meta["payload"]),
		Result:      decodeJSONMap(meta["result"]),
		Error:       meta["error"],
		Retries:     retries,
		CreatedAt:   meta["created_at"],
		ClaimedAt:   meta["claimed_at"],
		CompletedAt: meta["completed_at"],
	}
	return info
}

func decodeJSONMap(raw string) map[string]interface{} {
	if raw == "" {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil
	}
	return m
}
