package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/docuflow/docuflow/pkg/metrics"
	"github.com/docuflow/docuflow/pkg/redis"
)

// StatusCache is a short-TTL Redis cache in front of job status reads.
// Every job mutation invalidates the entry, so a cached view is stale for at
// most the TTL after a webhook update that raced with a read.
type StatusCache struct {
	client  *redis.Client
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewStatusCache creates a cache with the given TTL. Cache failures are
// logged and treated as misses; the store remains the source of truth.
func NewStatusCache(client *redis.Client, ttl time.Duration, m *metrics.Metrics) *StatusCache {
	return &StatusCache{
		client:  client,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "status-cache"),
	}
}

func (c *StatusCache) key(jobID string) string {
	return "ingestion:job:" + jobID
}

// Get returns the cached job view, or nil on a miss.
func (c *StatusCache) Get(ctx context.Context, jobID string) *Job {
	if c == nil {
		return nil
	}
	raw, err := c.client.Get(ctx, c.key(jobID))
	if err != nil {
		if !redis.IsNilError(err) {
			c.logger.Warn("cache read failed", "job_id", jobID, "error", err)
		}
		if c.metrics != nil {
			c.metrics.CacheMissesTotal.Inc()
		}
		return nil
	}
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		c.logger.Warn("cache entry corrupt, dropping", "job_id", jobID, "error", err)
		_ = c.client.Del(ctx, c.key(jobID))
		return nil
	}
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	return &job
}

// Put stores the job view with the configured TTL.
func (c *StatusCache) Put(ctx context.Context, job *Job) {
	if c == nil || job == nil {
		return
	}
	data, err := json.Marshal(job)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(job.ID), data, c.ttl); err != nil {
		c.logger.Warn("cache write failed", "job_id", job.ID, "error", err)
	}
}

// Invalidate drops the cached view for the job.
func (c *StatusCache) Invalidate(ctx context.Context, jobID string) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, c.key(jobID)); err != nil {
		c.logger.Warn("cache invalidation failed", "job_id", jobID, "error", err)
	}
}
