package collector

import (
	"context"
	"time"

	"TokenSentinel/internal/model"
)

// Fetcher reports aggregate market activity over a trailing window.
type Fetcher interface {
	FetchStats(ctx context.Context, window time.Duration) (model.ActivityStats, error)
	Name() string
}

// ActivityStore is the slice of the store the local fetcher and trend need.
type ActivityStore interface {
	ActivityStats(ctx context.Context, f model.ActivityFilter) (model.ActivityStats, error)
	ListActivity(ctx context.Context, f model.ActivityFilter) ([]model.Activity, error)
}

// StoreFetcher computes stats from the local activity log.
type StoreFetcher struct {
	Store ActivityStore
	Now   func() time.Time
}

func NewStoreFetcher(st ActivityStore) *StoreFetcher {
	return &StoreFetcher{Store: st, Now: func() time.Time { return time.Now().UTC() }}
}

func (f *StoreFetcher) Name() string { return "store" }

func (f *StoreFetcher) FetchStats(ctx context.Context, window time.Duration) (model.ActivityStats, error) {
	return f.Store.ActivityStats(ctx, model.ActivityFilter{Since: f.Now().Add(-window)})
}
