// Copyright 2025 James Ross
package queuecore

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gwbischof/starq/internal/keyspace"
	"github.com/gwbischof/starq/internal/queueerr"
)

// ListResult is the page returned by ListJobs.
type ListResult struct {
	Jobs    []JobInfo `json:"jobs"`
	Cursor  string    `json:"cursor"`
	HasMore bool      `json:"has_more"`
}

// ListJobs walks the stream newest-first from cursor (exclusive; "+" when
// empty), fetching count+1 entries to detect has_more. Status filtering is
// applied client-side after the window is materialized, so filtered pages
// may come back short of count — documented behavior, not a bug.
func (s *Store) ListJobs(ctx context.Context, queue, status string, count int, cursor string) (*ListResult, error) {
	exists, err := s.rdb.SIsMember(ctx, keyspace.QueueSet(), queue).Result()
	if err != nil {
		return nil, queueerr.Datastore(err)
	}
	if !exists {
		return nil, queueerr.NotFound("queue %q not found", queue)
	}
	if count <= 0 {
		count = 50
	}

	start := "+"
	if cursor != "" {
		var err error
		start, err = exclusiveUpperBound(cursor)
		if err != nil {
			return nil, queueerr.Validation("invalid cursor: %v", err)
		}
	}

	entries, err := s.rdb.XRevRangeN(ctx, keyspace.Stream(queue), start, "-", int64(count+1)).Result()
	if err != nil {
		return nil, queueerr.Datastore(err)
	}

	hasMore := len(entries) > count
	if hasMore {
		entries = entries[:count]
	}

	jobs := make([]JobInfo, 0, len(entries))
	for _, entry := range entries {
		jmk := keyspace.JobMeta(queue, entry.ID)
		meta, err := s.rdb.HGetAll(ctx, jmk).Result()
		if err != nil {
			return nil, queueerr.Datastore(err)
		}
		if len(meta) == 0 {
			// Metadata may have been cleaned up; reconstruct a pending view
			// from the stream entry itself.
			meta = map[string]string{
				"status":  StatusPending,
				"payload": fmt.Sprintf("%v", entry.Values["payload"]),
			}
		}
		info := mapMetaToJobInfo(queue, entry.ID, meta)
		if status == "" || info.Status == status {
			jobs = append(jobs, *info)
		}
	}

	result := &ListResult{Jobs: jobs, HasMore: hasMore}
	if hasMore && len(entries) > 0 {
		result.Cursor = entries[len(entries)-1].ID
	}
	return result, nil
}

// exclusiveUpperBound computes the next page's start ID given the previous
// page's last ID: <ts>-<seq-1> if seq>0, else <ts-1>-<2^63-1>.
func exclusiveUpperBound(id string) (string, error) {
	parts := strings.SplitN(id, "-", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("malformed stream id %q", id)
	}
	ts, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return "", fmt.Errorf("malformed stream id %q: %w", id, err)
	}
	seq, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", fmt.Errorf("malformed stream id %q: %w", id, err)
	}
	if seq > 0 {
		return fmt.Sprintf("%d-%d", ts, seq-1), nil
	}
	if ts == 0 {
		return "0-0", nil
	}
	return fmt.Sprintf("%d-%d", ts-1, int64(math.MaxInt64)), nil
}
