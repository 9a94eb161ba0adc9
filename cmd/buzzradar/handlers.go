package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/elonfeng/buzzradar/internal/scheduler"
	"github.com/elonfeng/buzzradar/internal/store"
	"github.com/elonfeng/buzzradar/pkg/buzz"
	"github.com/elonfeng/buzzradar/pkg/server"
)

func runCollect(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	videos, err := a.discoverer.Discover(ctx, a.discoverOptions())
	if err != nil {
		return fmt.Errorf("discover: %w", err)
	}
	if err := a.ingestor.Track(ctx, videos); err != nil {
		a.log.WithError(err).Warn("some snapshots were not recorded")
	}

	total, err := a.db.CountVideos(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "collected %d videos (%d tracked)\n", len(videos), total)
	return nil
}

func runScore(ctx context.Context, videoID string, jsonOutput bool) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.engine.GetOrComputeScore(ctx, videoID)
	if err != nil {
		return fmt.Errorf("score %s: %w", videoID, err)
	}
	if err := a.db.SaveRecords(ctx, "", []buzz.Record{rec}); err != nil {
		a.log.WithError(err).Warn("failed to save record")
	}

	if jsonOutput {
		return writeJSON(os.Stdout, rec)
	}
	printRecord(os.Stdout, rec)
	return nil
}

func runBatch(ctx context.Context, ids []string, trending, jsonOutput bool) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if trending {
		videos, err := a.discoverer.Discover(ctx, a.discoverOptions())
		if err != nil {
			return fmt.Errorf("discover: %w", err)
		}
		if err := a.ingestor.Track(ctx, videos); err != nil {
			a.log.WithError(err).Warn("some snapshots were not recorded")
		}
		for _, v := range videos {
			ids = append(ids, v.ID)
		}
	}

	res, runErr := a.engine.RunBatch(ctx, ids)
	a.ingestor.Forget(ids...)
	if res == nil {
		return runErr
	}
	if err := a.db.SaveRecords(ctx, res.RunID, res.Records()); err != nil {
		a.log.WithError(err).Warn("failed to save records")
	}

	if jsonOutput {
		if err := writeJSON(os.Stdout, batchSummary(res)); err != nil {
			return err
		}
	} else {
		printBatch(os.Stdout, res)
	}

	if runErr != nil {
		return runErr
	}
	if res.Requested > 0 && len(res.Failed) == res.Requested {
		return res.Err()
	}
	return nil
}

func runRank(ctx context.Context, jsonOutput bool, minScore float64, limit int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	recs, err := db.ListRecords(ctx, store.RecordListOpts{
		MinScore:   minScore,
		Limit:      limit,
		LatestOnly: true,
	})
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}

	if jsonOutput {
		return writeJSON(os.Stdout, recs)
	}

	if len(recs) == 0 {
		fmt.Println("no scores found (try scoring first: buzzradar batch --trending)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tVIEW\tENG\tCMT\tCHAN\tSENT\tTREND\tVIDEO\tTITLE\tCOMPUTED")
	for _, r := range recs {
		b := r.Record.Breakdown
		fmt.Fprintf(w, "%.1f\t%.1f\t%.1f\t%.1f\t%.1f\t%.1f\t%s\t%s\t%s\t%s\n",
			r.Record.Total, b.View, b.Engagement, b.CommentActivity, b.ChannelInfluence, b.Sentiment,
			r.Record.Trend, r.Record.VideoID, truncate(r.Title, 40),
			r.Record.ComputedAt.Local().Format(time.RFC3339))
	}
	return w.Flush()
}

func runInvalidate(ctx context.Context, ids []string) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var errs []error
	for _, id := range ids {
		if err := a.engine.Invalidate(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("invalidate %s: %w", id, err))
			continue
		}
		fmt.Fprintf(os.Stderr, "invalidated %s\n", id)
	}
	return errors.Join(errs...)
}

func runServe(ctx context.Context, port int) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if port == 0 {
		port = a.cfg.Server.Port
	}
	return server.New(a.engine, a.db, a.registry, a.log, port).ListenAndServe(ctx)
}

func runDaemon(ctx context.Context, port int) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if port == 0 {
		port = a.cfg.Server.Port
	}

	sched := scheduler.New(
		scheduler.Config{
			Interval:          a.cfg.Schedule.ParseRefreshInterval(),
			Discover:          a.discoverOptions(),
			SnapshotRetention: a.cfg.Retention.ParseSnapshots(),
			ChannelRetention:  a.cfg.Retention.ParseChannelStats(),
			AlertMinScore:     a.cfg.Alerts.MinScore,
		},
		a.discoverer, a.ingestor, a.engine, a.db,
		a.alertManager(), a.clock, a.log, a.metrics,
	)

	// Start scheduler in background.
	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			a.log.WithError(err).Error("scheduler stopped")
		}
	}()

	err = server.New(a.engine, a.db, a.registry, a.log, port).ListenAndServe(ctx)
	a.log.Info("shutting down")
	return err
}

type failureSummary struct {
	VideoID  string `json:"video_id"`
	Category string `json:"category"`
	Error    string `json:"error"`
}

type batchOutput struct {
	RunID      string           `json:"run_id"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Requested  int              `json:"requested"`
	Attempted  int              `json:"attempted"`
	Succeeded  int              `json:"succeeded"`
	Skipped    []string         `json:"skipped"`
	Failed     []failureSummary `json:"failed"`
	Records    []buzz.Record    `json:"records"`
}

func batchSummary(res *buzz.BatchResult) batchOutput {
	out := batchOutput{
		RunID:      res.RunID,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		Requested:  res.Requested,
		Attempted:  res.Attempted,
		Succeeded:  len(res.Succeeded),
		Skipped:    res.Skipped,
		Failed:     []failureSummary{},
		Records:    res.Records(),
	}
	for _, f := range res.Failed {
		out.Failed = append(out.Failed, failureSummary{VideoID: f.VideoID, Category: string(f.Category), Error: f.Err.Error()})
	}
	return out
}

func printBatch(w io.Writer, res *buzz.BatchResult) {
	fmt.Fprintf(w, "run %s: %d requested, %d started, %d scored, %d cached, %d failed (%s)\n",
		res.RunID, res.Requested, res.Attempted, len(res.Succeeded), len(res.Skipped), len(res.Failed),
		res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tVIDEO\tTREND\tSENTIMENT")
	for _, r := range res.Records() {
		fmt.Fprintf(tw, "%.1f\t%s\t%s\t%s\n", r.Total, r.VideoID, r.Trend, r.Sentiment.Dominant)
	}
	tw.Flush()

	for _, f := range res.Failed {
		fmt.Fprintf(w, "  failed %s [%s]: %v\n", f.VideoID, f.Category, f.Err)
	}
}

func printRecord(w io.Writer, r buzz.Record) {
	b := r.Breakdown
	fmt.Fprintf(w, "video:            %s\n", r.VideoID)
	fmt.Fprintf(w, "total:            %.1f / %.0f\n", r.Total, buzz.MaxTotal)
	fmt.Fprintf(w, "  view:           %.2f\n", b.View)
	fmt.Fprintf(w, "  engagement:     %.2f\n", b.Engagement)
	fmt.Fprintf(w, "  comments:       %.2f\n", b.CommentActivity)
	fmt.Fprintf(w, "  channel:        %.2f\n", b.ChannelInfluence)
	fmt.Fprintf(w, "  sentiment:      %.2f\n", b.Sentiment)
	fmt.Fprintf(w, "sentiment:        %s (%.2f)\n", r.Sentiment.Dominant, r.Sentiment.Score)
	fmt.Fprintf(w, "engagement rate:  %.2f%%\n", r.EngagementRate)
	fmt.Fprintf(w, "growth rate:      %.3f (%s)\n", r.GrowthRate, r.Trend)
	fmt.Fprintf(w, "foreign reaction: %s\n", r.Foreign.ReactionType)
	fmt.Fprintf(w, "computed at:      %s (expires %s)\n",
		r.ComputedAt.Local().Format(time.RFC3339), r.ExpiresAt.Local().Format(time.RFC3339))
	for _, m := range r.Missing {
		fmt.Fprintf(w, "missing:          %s\n", m.Error())
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
