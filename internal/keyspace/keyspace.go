// Copyright 2025 James Ross
// Package keyspace maps queue and job identities onto the flat Redis key
// namespace used by the rest of the service. Every key format here is
// compatibility-critical: changing one changes what data an existing
// deployment can see.
package keyspace

import "fmt"

// QueueSet is the set of all known queue names.
func QueueSet() string {
	return "starq:queues"
}

// QueueMeta is the hash holding a queue's configuration.
func QueueMeta(queue string) string {
	return fmt.Sprintf("starq:queue:%s", queue)
}

// Stream is the append-only stream backing a queue.
func Stream(queue string) string {
	return fmt.Sprintf("starq:stream:%s", queue)
}

// ConsumerGroup is the name of the consumer group on a queue's stream.
func ConsumerGroup(queue string) string {
	return fmt.Sprintf("starq:cg:%s", queue)
}

// JobMeta is the per-job metadata hash, keyed by the stream entry ID.
func JobMeta(queue, jobID string) string {
	return fmt.Sprintf("starq:job:%s:%s", queue, jobID)
}

// JobMetaScanPattern is the SCAN match pattern for all job metadata keys
// belonging to a queue.
func JobMetaScanPattern(queue string) string {
	return fmt.Sprintf("starq:job:%s:*", queue)
}

// StatsCompleted is the monotonic completed-job counter for a queue.
func StatsCompleted(queue string) string {
	return fmt.Sprintf("starq:stats:%s:completed", queue)
}

// StatsFailed is the monotonic failed-job counter for a queue.
func StatsFailed(queue string) string {
	return fmt.Sprintf("starq:stats:%s:failed", queue)
}

// Dedupe is the set of payload digests of jobs admitted to a dedupe-enabled
// queue. A digest is removed when its job is dead-lettered; completion
// leaves it in place.
func Dedupe(queue string) string {
	return fmt.Sprintf("starq:dedupe:%s", queue)
}

// Consumer is the fixed consumer identity used by every claim issued by
// this process. A single fixed identity is sufficient because the datastore
// reassigns stale entries regardless of prior owner (spec open question 4).
const Consumer = "starq-worker"
