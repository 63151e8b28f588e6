package oauth

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// refreshKey is the single slot refreshes are serialized on.
const refreshKey = "token-refresh"

// RefreshSerializer ensures at most one token refresh is in flight. Callers that
// arrive while one is running share its outcome; once it completes the slot is
// cleared so the next call starts a fresh refresh.
type RefreshSerializer struct {
	group   singleflight.Group
	metrics *Metrics
}

// NewRefreshSerializer creates a serializer. metrics may be nil.
func NewRefreshSerializer(metrics *Metrics) *RefreshSerializer {
	return &RefreshSerializer{metrics: metrics}
}

// Do runs fn unless a run is already in flight, in which case it waits for that
// run's result. fn receives a context detached from any single caller's
// cancellation. A caller whose ctx is cancelled stops waiting but does not
// abort the shared run.
func (s *RefreshSerializer) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	detached := context.WithoutCancel(ctx)
	ch := s.group.DoChan(refreshKey, func() (interface{}, error) {
		return nil, fn(detached)
	})

	s.metrics.refreshCall()

	select {
	case result := <-ch:
		return result.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}
