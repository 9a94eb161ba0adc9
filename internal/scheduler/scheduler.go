package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/elonfeng/buzzradar/internal/store"
	"github.com/elonfeng/buzzradar/pkg/alert"
	"github.com/elonfeng/buzzradar/pkg/buzz"
	"github.com/elonfeng/buzzradar/pkg/source"
)

// Discoverer finds candidate videos.
type Discoverer interface {
	Discover(ctx context.Context, opts source.DiscoverOptions) ([]source.Video, error)
}

// Tracker records discovered videos before scoring and forgets them once
// the batch is done.
type Tracker interface {
	Track(ctx context.Context, videos []source.Video) error
	Forget(ids ...string)
}

// Batcher scores a set of videos.
type Batcher interface {
	RunBatch(ctx context.Context, videoIDs []string) (*buzz.BatchResult, error)
}

// Store is the persistence the refresh loop needs.
type Store interface {
	GetVideo(ctx context.Context, id string) (*store.Video, error)
	SaveRecords(ctx context.Context, runID string, recs []buzz.Record) error
	MarkAlerted(ctx context.Context, videoID string, score float64, at time.Time) error
	AlertedOn(ctx context.Context, day time.Time) ([]string, error)
	Prune(ctx context.Context, snapshotsBefore, channelStatsBefore time.Time) (store.PruneResult, error)
}

// RefreshObserver is told when a cycle completes.
type RefreshObserver interface {
	RefreshCompleted(at time.Time)
}

// Config holds the loop settings.
type Config struct {
	Interval          time.Duration
	Discover          source.DiscoverOptions
	SnapshotRetention time.Duration
	ChannelRetention  time.Duration
	AlertMinScore     float64
}

// Scheduler runs periodic discovery, scoring, pruning and alerting.
type Scheduler struct {
	cfg        Config
	discoverer Discoverer
	tracker    Tracker
	batcher    Batcher
	store      Store
	alertMgr   *alert.Manager
	clock      clockwork.Clock
	log        logrus.FieldLogger
	observer   RefreshObserver
}

// Cycle summarises one refresh.
type Cycle struct {
	Discovered int
	Batch      *buzz.BatchResult
	Pruned     store.PruneResult
	Alerted    string
}

// New creates a new scheduler. alertMgr and observer may be nil.
func New(
	cfg Config,
	d Discoverer,
	t Tracker,
	b Batcher,
	s Store,
	alertMgr *alert.Manager,
	clock clockwork.Clock,
	log logrus.FieldLogger,
	observer RefreshObserver,
) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Minute
	}
	if cfg.SnapshotRetention <= 0 {
		cfg.SnapshotRetention = 30 * 24 * time.Hour
	}
	if cfg.ChannelRetention <= 0 {
		cfg.ChannelRetention = 90 * 24 * time.Hour
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scheduler{
		cfg:        cfg,
		discoverer: d,
		tracker:    t,
		batcher:    b,
		store:      s,
		alertMgr:   alertMgr,
		clock:      clock,
		log:        log,
		observer:   observer,
	}
}

// Run starts the scheduler loop. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.log.Info("initial refresh")
	s.refresh(ctx)

	s.log.WithField("interval", s.cfg.Interval).Info("scheduler running")

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.Chan():
			s.refresh(ctx)
		}
	}
}

func (s *Scheduler) refresh(ctx context.Context) {
	cycle, err := s.RunOnce(ctx)
	if err != nil {
		s.log.WithError(err).Error("refresh failed")
		return
	}
	fields := logrus.Fields{
		"discovered": cycle.Discovered,
		"pruned":     cycle.Pruned.Snapshots + cycle.Pruned.ChannelStats + cycle.Pruned.Scores,
	}
	if cycle.Batch != nil {
		fields["run_id"] = cycle.Batch.RunID
		fields["succeeded"] = len(cycle.Batch.Succeeded)
		fields["skipped"] = len(cycle.Batch.Skipped)
		fields["failed"] = len(cycle.Batch.Failed)
	}
	if cycle.Alerted != "" {
		fields["alerted"] = cycle.Alerted
	}
	s.log.WithFields(fields).Info("refresh complete")
}

// RunOnce performs one refresh cycle. Only discovery failures and batch
// defects abort the cycle; storage, pruning and alert errors are logged.
func (s *Scheduler) RunOnce(ctx context.Context) (*Cycle, error) {
	cycle := &Cycle{}

	videos, err := s.discoverer.Discover(ctx, s.cfg.Discover)
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}
	cycle.Discovered = len(videos)

	if s.tracker != nil {
		if err := s.tracker.Track(ctx, videos); err != nil {
			s.log.WithError(err).Warn("failed to record discovered videos")
		}
	}

	ids := make([]string, len(videos))
	for i, v := range videos {
		ids[i] = v.ID
	}

	res, err := s.batcher.RunBatch(ctx, ids)
	if s.tracker != nil {
		s.tracker.Forget(ids...)
	}
	cycle.Batch = res
	if res != nil {
		for _, f := range res.Failed {
			s.log.WithFields(logrus.Fields{
				"video_id": f.VideoID,
				"category": f.Category,
			}).WithError(f.Err).Warn("video not scored")
		}
		if serr := s.store.SaveRecords(ctx, res.RunID, res.Records()); serr != nil {
			s.log.WithError(serr).WithField("run_id", res.RunID).Error("failed to save records")
		}
	}
	if err != nil {
		return cycle, fmt.Errorf("batch: %w", err)
	}

	now := s.clock.Now()
	pruned, err := s.store.Prune(ctx, now.Add(-s.cfg.SnapshotRetention), now.Add(-s.cfg.ChannelRetention))
	if err != nil {
		s.log.WithError(err).Warn("prune failed")
	}
	cycle.Pruned = pruned

	alerted, err := s.alertTopicOfDay(ctx, res.Records())
	if err != nil {
		s.log.WithError(err).Warn("topic of the day alert failed")
	}
	cycle.Alerted = alerted

	if s.observer != nil {
		s.observer.RefreshCompleted(s.clock.Now())
	}
	return cycle, nil
}

// alertTopicOfDay broadcasts the best record above the threshold, at most
// once per UTC day.
func (s *Scheduler) alertTopicOfDay(ctx context.Context, recs []buzz.Record) (string, error) {
	if s.alertMgr == nil || !s.alertMgr.HasNotifiers() {
		return "", nil
	}

	candidates := make([]buzz.Record, 0, len(recs))
	for _, r := range recs {
		if r.Total >= s.cfg.AlertMinScore {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return "", nil
	}

	now := s.clock.Now()
	already, err := s.store.AlertedOn(ctx, now)
	if err != nil {
		return "", err
	}
	if len(already) > 0 {
		return "", nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Total > candidates[j].Total
	})
	top := candidates[0]

	var title, channelTitle string
	v, err := s.store.GetVideo(ctx, top.VideoID)
	switch {
	case err == nil:
		title, channelTitle = v.Title, v.ChannelTitle
	case !errors.Is(err, store.ErrNotFound):
		s.log.WithError(err).WithField("video_id", top.VideoID).Warn("failed to load video title")
	}

	// marked even when some notifiers failed so the others are not repeated
	var errs []error
	if err := s.alertMgr.Broadcast(ctx, alert.FromRecord(top, title, channelTitle)); err != nil {
		errs = append(errs, fmt.Errorf("broadcast %s: %w", top.VideoID, err))
	}
	if err := s.store.MarkAlerted(ctx, top.VideoID, top.Total, now); err != nil {
		errs = append(errs, err)
	}
	return top.VideoID, errors.Join(errs...)
}
