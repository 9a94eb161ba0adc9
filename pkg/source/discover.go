package source

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DiscoverOptions selects where candidates come from.
type DiscoverOptions struct {
	Regions    []string
	CategoryID string
	Queries    []string
	MaxResults int
	// SearchWindow limits search results to recent uploads.
	SearchWindow time.Duration
}

// Discoverer finds candidate videos to score.
type Discoverer struct {
	yt     *YouTube
	filter *Filter
	clock  clockwork.Clock
	log    logrus.FieldLogger
}

// NewDiscoverer creates a discoverer. A nil filter accepts everything.
func NewDiscoverer(yt *YouTube, filter *Filter, clock clockwork.Clock, log logrus.FieldLogger) *Discoverer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Discoverer{yt: yt, filter: filter, clock: clock, log: log}
}

// Discover merges the trending charts of every region with search results,
// de-duplicated by video id and ordered by view count. A failing region or
// query is logged and skipped; an error is returned only when every lookup
// failed.
func (d *Discoverer) Discover(ctx context.Context, opts DiscoverOptions) ([]Video, error) {
	if len(opts.Regions) == 0 && len(opts.Queries) == 0 {
		opts.Regions = []string{"JP"}
	}
	if opts.SearchWindow <= 0 {
		opts.SearchWindow = 24 * time.Hour
	}

	var (
		mu       sync.Mutex
		videos   []Video
		errs     []error
		lookups  int
		searched []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for _, region := range opts.Regions {
		lookups++
		g.Go(func() error {
			vs, err := d.yt.Trending(gctx, region, opts.CategoryID, opts.MaxResults)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				d.log.WithError(err).WithField("region", region).Warn("trending lookup failed")
				errs = append(errs, err)
				return nil
			}
			videos = append(videos, vs...)
			return nil
		})
	}

	since := d.clock.Now().Add(-opts.SearchWindow)
	for _, q := range opts.Queries {
		lookups++
		g.Go(func() error {
			ids, err := d.yt.Search(gctx, q, since, opts.MaxResults)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				d.log.WithError(err).WithField("query", q).Warn("search failed")
				errs = append(errs, err)
				return nil
			}
			searched = append(searched, ids...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(searched) > 0 {
		vs, err := d.yt.Videos(ctx, uniqueIDs(searched))
		if err != nil {
			d.log.WithError(err).Warn("search result lookup failed")
			errs = append(errs, err)
		}
		videos = append(videos, vs...)
	}

	if len(videos) == 0 && len(errs) > 0 && len(errs) >= lookups {
		return nil, errors.Join(errs...)
	}

	seen := make(map[string]bool, len(videos))
	out := make([]Video, 0, len(videos))
	for _, v := range videos {
		if seen[v.ID] || !d.filter.MatchesVideo(v) {
			continue
		}
		seen[v.ID] = true
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Stats.ViewCount > out[j].Stats.ViewCount
	})
	return out, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
