// Package fetch coordinates concurrent acquisition of telemetry snapshots.
//
// One fetch task runs per source under a latency-sized concurrency bound.
// Each task issues a conditional request keyed on the cached entry's
// timestamp; on failure it falls back once to a still-fresh cache entry,
// otherwise the source is marked unavailable. A required source that ends
// unavailable fails the whole fetch.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/relaywatch/relaywatch/internal/domain/model"
	"github.com/relaywatch/relaywatch/pkg/logger"
	"github.com/relaywatch/relaywatch/pkg/metrics"
)

// Status is the per-source outcome of one coordinated fetch.
type Status string

// Source statuses.
const (
	StatusFresh       Status = "fresh"
	StatusStale       Status = "stale"
	StatusUnavailable Status = "unavailable"
)

// Descriptor describes one telemetry source.
type Descriptor struct {
	ID       model.SourceID
	Endpoint string
	Required bool
}

// CacheEntry mirrors what the coordinator needs from the snapshot cache.
type CacheEntry struct {
	Payload   []byte
	FetchedAt time.Time
}

// Fresh reports whether the entry's age at now is within bound; an entry
// exactly at the bound is still fresh.
func (e CacheEntry) Fresh(now time.Time, bound time.Duration) bool {
	return now.Sub(e.FetchedAt) <= bound
}

// Cache is the snapshot persistence the coordinator reads and writes.
// *cachestore.Store satisfies it.
type Cache interface {
	Get(ctx context.Context, id model.SourceID) (CacheEntry, bool, error)
	Put(ctx context.Context, id model.SourceID, payload []byte, fetchedAt time.Time) error
	Touch(ctx context.Context, id model.SourceID, fetchedAt time.Time) error
}

// StatusRecorder persists the per-source status record after every fetch.
type StatusRecorder interface {
	RecordSourceStatuses(ctx context.Context, statuses map[model.SourceID]Status) error
}

// SourceResult is one source's contribution to the unified snapshot.
type SourceResult struct {
	ID        model.SourceID
	Status    Status
	Payload   []byte
	FetchedAt time.Time
	Err       error
}

// Snapshot is the unified result of one coordinated fetch.
type Snapshot struct {
	Results  map[model.SourceID]SourceResult
	Warnings []string
}

// Payload returns a source's payload; nil for unavailable optional sources.
func (s *Snapshot) Payload(id model.SourceID) []byte {
	return s.Results[id].Payload
}

// Available reports whether a source contributed a payload this run.
func (s *Snapshot) Available(id model.SourceID) bool {
	r, ok := s.Results[id]
	return ok && r.Status != StatusUnavailable
}

// Coordinator acquires all sources concurrently with caching and graceful
// degradation.
type Coordinator struct {
	sources     []Descriptor
	cache       Cache
	client      *http.Client
	recorder    StatusRecorder
	concurrency int
	staleness   time.Duration
	clock       func() time.Time
	logger      logger.Logger
}

// NewCoordinator creates a coordinator over the given sources.
func NewCoordinator(cache Cache, sources []Descriptor, opts ...Option) *Coordinator {
	c := &Coordinator{
		sources:     sources,
		cache:       cache,
		client:      &http.Client{Timeout: defaultFetchTimeout},
		concurrency: defaultConcurrency,
		staleness:   defaultStalenessBound,
		clock:       time.Now,
		logger:      logger.Get().Named("fetch"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch acquires every source and assembles the unified snapshot. It returns
// an error only when a required source ends unavailable; optional failures
// degrade to warnings.
func (c *Coordinator) Fetch(ctx context.Context) (*Snapshot, error) {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[model.SourceID]SourceResult, len(c.sources))
	)

	// Latency-sized bound: fetches block on the network, not the CPU.
	sem := make(chan struct{}, c.concurrency)

	for _, src := range c.sources {
		wg.Add(1)
		go func(src Descriptor) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res := c.fetchOne(ctx, src)
			mu.Lock()
			results[src.ID] = res
			mu.Unlock()
		}(src)
	}
	wg.Wait()

	snap := &Snapshot{Results: results}

	// Deterministic status reporting order.
	ids := make([]model.SourceID, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	statuses := make(map[model.SourceID]Status, len(results))
	for _, id := range ids {
		res := results[id]
		statuses[id] = res.Status
		metrics.SetSourceStatus(string(id), string(res.Status))
	}

	if c.recorder != nil {
		if err := c.recorder.RecordSourceStatuses(ctx, statuses); err != nil {
			c.logger.Warn(ctx, "persisting source statuses failed", logger.Error(err))
		}
	}

	for _, src := range c.sources {
		res := results[src.ID]
		if res.Status != StatusUnavailable {
			continue
		}
		if src.Required {
			return nil, fmt.Errorf("%w: %s: %w", ErrRequiredSource, src.ID, res.Err)
		}
		warning := fmt.Sprintf("optional source %s unavailable; dependent features disabled", src.ID)
		snap.Warnings = append(snap.Warnings, warning)
		c.logger.Warn(ctx, "optional source unavailable",
			logger.String("source", string(src.ID)), logger.Error(res.Err))
	}

	return snap, nil
}

// fetchOne acquires a single source. Errors never leak to sibling fetches;
// they are folded into the returned result.
func (c *Coordinator) fetchOne(ctx context.Context, src Descriptor) SourceResult {
	start := c.clock()
	defer func() {
		metrics.RecordFetchLatency(string(src.ID), time.Since(start).Seconds())
	}()

	entry, cached, err := c.cache.Get(ctx, src.ID)
	if err != nil {
		c.logger.Warn(ctx, "cache read failed",
			logger.String("source", string(src.ID)), logger.Error(err))
		cached = false
	}

	payload, fetchedAt, err := c.request(ctx, src, entry, cached)
	if err == nil {
		return SourceResult{ID: src.ID, Status: StatusFresh, Payload: payload, FetchedAt: fetchedAt}
	}

	metrics.RecordFetchError(string(src.ID))
	c.logger.Warn(ctx, "fetch failed",
		logger.String("source", string(src.ID)), logger.Error(err))

	// One cache fallback, never more.
	now := c.clock()
	if cached && entry.Fresh(now, c.staleness) {
		metrics.RecordCacheFallback()
		c.logger.Info(ctx, "serving stale cache entry",
			logger.String("source", string(src.ID)),
			logger.Duration("age", now.Sub(entry.FetchedAt)))
		return SourceResult{ID: src.ID, Status: StatusStale, Payload: entry.Payload, FetchedAt: entry.FetchedAt}
	}

	return SourceResult{ID: src.ID, Status: StatusUnavailable, Err: err}
}

// request performs the conditional HTTP fetch for one source.
func (c *Coordinator) request(ctx context.Context, src Descriptor, entry CacheEntry, cached bool) ([]byte, time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.Endpoint, nil)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("building request: %w", err)
	}
	if cached {
		req.Header.Set("If-Modified-Since", entry.FetchedAt.UTC().Format(http.TimeFormat))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	now := c.clock()
	switch {
	case resp.StatusCode == http.StatusNotModified && cached:
		// Unchanged upstream: the cached payload stays authoritative and its
		// freshness is renewed without re-transfer.
		metrics.RecordCacheHit()
		if err := c.cache.Touch(ctx, src.ID, now); err != nil {
			c.logger.Warn(ctx, "cache touch failed",
				logger.String("source", string(src.ID)), logger.Error(err))
		}
		return entry.Payload, now, nil

	case resp.StatusCode == http.StatusOK:
		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("%w: reading body: %w", ErrFetchFailed, err)
		}
		if err := c.cache.Put(ctx, src.ID, payload, now); err != nil {
			c.logger.Warn(ctx, "cache write failed",
				logger.String("source", string(src.ID)), logger.Error(err))
		}
		return payload, now, nil

	default:
		return nil, time.Time{}, fmt.Errorf("%w: unexpected status %d", ErrFetchFailed, resp.StatusCode)
	}
}
