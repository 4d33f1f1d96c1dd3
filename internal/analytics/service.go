package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/trailhq/jobtrail/internal/application"
	"github.com/trailhq/jobtrail/internal/daterange"
	"github.com/trailhq/jobtrail/internal/workflow"
)

// Service computes snapshots on demand from current store state.
// Results are cached keyed by the store and workflow version counters
// plus the resolved range, so a snapshot is recomputed exactly when
// something underneath it changed ("always fresh on read" without a
// subscription graph).
type Service struct {
	apps       application.Store
	workflow   *workflow.Manager
	aggregator *Aggregator

	mu       sync.Mutex
	cacheKey cacheKey
	cached   *Snapshot
}

type cacheKey struct {
	appsVersion     uint64
	workflowVersion uint64
	from, to        time.Time
}

// NewService creates an analytics service over the given stores
func NewService(apps application.Store, wf *workflow.Manager, aggregator *Aggregator) *Service {
	return &Service{
		apps:       apps,
		workflow:   wf,
		aggregator: aggregator,
	}
}

// Snapshot returns the metrics for the given range, reusing the cached
// result when neither store has changed since it was computed.
func (s *Service) Snapshot(ctx context.Context, rng daterange.Range) (*Snapshot, error) {
	key := cacheKey{
		appsVersion:     s.apps.Version(),
		workflowVersion: s.workflow.Version(),
		from:            rng.From,
		to:              rng.To,
	}

	s.mu.Lock()
	if s.cached != nil && s.cacheKey == key {
		snap := s.cached
		s.mu.Unlock()
		return snap, nil
	}
	s.mu.Unlock()

	apps, err := s.apps.List(ctx)
	if err != nil {
		return nil, err
	}
	snap := s.aggregator.Compute(apps, s.workflow.Stages(), rng)

	s.mu.Lock()
	s.cacheKey = key
	s.cached = snap
	s.mu.Unlock()

	return snap, nil
}
