package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/elonfeng/buzzradar/pkg/buzz"
	"github.com/elonfeng/buzzradar/pkg/source"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Video is the stored metadata of a tracked video.
type Video struct {
	ID           string    `db:"id" json:"id"`
	ChannelID    string    `db:"channel_id" json:"channel_id"`
	ChannelTitle string    `db:"channel_title" json:"channel_title"`
	Title        string    `db:"title" json:"title"`
	Description  string    `db:"description" json:"description"`
	CategoryID   string    `db:"category_id" json:"category_id"`
	TagsJSON     string    `db:"tags" json:"-"`
	Tags         []string  `db:"-" json:"tags"`
	PublishedAt  time.Time `db:"published_at" json:"published_at"`
	FirstSeen    time.Time `db:"first_seen" json:"first_seen"`
	LastSeen     time.Time `db:"last_seen" json:"last_seen"`
}

// RankedRecord is a stored score joined with its video's metadata.
type RankedRecord struct {
	RunID        string      `json:"run_id"`
	Title        string      `json:"title"`
	ChannelTitle string      `json:"channel_title"`
	Record       buzz.Record `json:"record"`
}

// RecordListOpts controls score listing.
type RecordListOpts struct {
	MinScore float64
	Since    time.Time
	Limit    int
	// LatestOnly keeps only the newest record per video.
	LatestOnly bool
}

// PruneResult counts rows removed by Prune.
type PruneResult struct {
	Snapshots    int64
	ChannelStats int64
	Scores       int64
}

// Store is the persistence interface.
type Store interface {
	UpsertVideo(ctx context.Context, v *source.Video) error
	UpsertVideos(ctx context.Context, vs []source.Video) error
	GetVideo(ctx context.Context, id string) (*Video, error)
	CountVideos(ctx context.Context) (int, error)

	AddSnapshot(ctx context.Context, s buzz.VideoStats) error
	GetSnapshots(ctx context.Context, videoID string, since time.Time) ([]buzz.VideoStats, error)

	AddChannelStats(ctx context.Context, s buzz.ChannelStats) error
	LatestChannelStats(ctx context.Context, channelID string) (*buzz.ChannelStats, error)

	SaveRecords(ctx context.Context, runID string, recs []buzz.Record) error
	ListRecords(ctx context.Context, opts RecordListOpts) ([]RankedRecord, error)

	MarkAlerted(ctx context.Context, videoID string, score float64, at time.Time) error
	AlertedOn(ctx context.Context, day time.Time) ([]string, error)

	Prune(ctx context.Context, snapshotsBefore, channelStatsBefore time.Time) (PruneResult, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertVideo(ctx context.Context, v *source.Video) error {
	tagsJSON, _ := json.Marshal(v.Tags)
	if v.Tags == nil {
		tagsJSON = []byte("[]")
	}
	seen := v.Stats.CapturedAt.UTC()
	if v.Stats.CapturedAt.IsZero() {
		seen = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO videos (id, channel_id, channel_title, title, description, category_id, tags, published_at, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			channel_id = excluded.channel_id,
			channel_title = excluded.channel_title,
			title = excluded.title,
			description = excluded.description,
			category_id = excluded.category_id,
			tags = excluded.tags,
			last_seen = excluded.last_seen
	`, v.ID, v.ChannelID, v.ChannelTitle, v.Title, v.Description, v.CategoryID,
		string(tagsJSON), v.PublishedAt.UTC(), seen, seen)
	if err != nil {
		return fmt.Errorf("upsert video %s: %w", v.ID, err)
	}
	return nil
}

func (s *SQLiteStore) UpsertVideos(ctx context.Context, vs []source.Video) error {
	for i := range vs {
		if err := s.UpsertVideo(ctx, &vs[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) GetVideo(ctx context.Context, id string) (*Video, error) {
	var v Video
	err := s.db.GetContext(ctx, &v, "SELECT * FROM videos WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("video %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get video %s: %w", id, err)
	}
	json.Unmarshal([]byte(v.TagsJSON), &v.Tags)
	return &v, nil
}

func (s *SQLiteStore) CountVideos(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM videos"); err != nil {
		return 0, fmt.Errorf("count videos: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) AddSnapshot(ctx context.Context, st buzz.VideoStats) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO video_stats (video_id, view_count, like_count, comment_count, likes_hidden, comments_disabled, published_at, captured_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, st.VideoID, st.ViewCount, st.LikeCount, st.CommentCount, st.LikesHidden, st.CommentsDisabled,
		st.PublishedAt.UTC(), st.CapturedAt.UTC())
	if err != nil {
		return fmt.Errorf("add snapshot %s: %w", st.VideoID, err)
	}
	return nil
}

// GetSnapshots returns the snapshots of videoID captured at or after since,
// oldest first.
func (s *SQLiteStore) GetSnapshots(ctx context.Context, videoID string, since time.Time) ([]buzz.VideoStats, error) {
	var snaps []buzz.VideoStats
	err := s.db.SelectContext(ctx, &snaps, `
		SELECT video_id, view_count, like_count, comment_count, likes_hidden, comments_disabled, published_at, captured_at
		FROM video_stats WHERE video_id = ? AND captured_at >= ? ORDER BY captured_at`,
		videoID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("get snapshots %s: %w", videoID, err)
	}
	return snaps, nil
}

func (s *SQLiteStore) AddChannelStats(ctx context.Context, st buzz.ChannelStats) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channel_stats (channel_id, subscriber_count, avg_recent_views, total_view_count, subscribers_hidden, recent_views_missing, captured_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, st.ChannelID, st.SubscriberCount, st.AvgRecentViews, st.TotalViewCount,
		st.SubscribersHidden, st.RecentViewsMissing, st.CapturedAt.UTC())
	if err != nil {
		return fmt.Errorf("add channel stats %s: %w", st.ChannelID, err)
	}
	return nil
}

func (s *SQLiteStore) LatestChannelStats(ctx context.Context, channelID string) (*buzz.ChannelStats, error) {
	var st buzz.ChannelStats
	err := s.db.GetContext(ctx, &st, `
		SELECT channel_id, subscriber_count, avg_recent_views, total_view_count, subscribers_hidden, recent_views_missing, captured_at
		FROM channel_stats WHERE channel_id = ? ORDER BY captured_at DESC, id DESC LIMIT 1`, channelID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("channel stats %s: %w", channelID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("latest channel stats %s: %w", channelID, err)
	}
	return &st, nil
}

// SaveRecords stores records in one transaction. Saving a record twice is a
// no-op since records are immutable.
func (s *SQLiteStore) SaveRecords(ctx context.Context, runID string, recs []buzz.Record) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save records: %w", err)
	}
	defer tx.Rollback()

	for _, r := range recs {
		raw, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode record %s: %w", r.VideoID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO buzz_scores (run_id, video_id, channel_id, computed_at, expires_at, total_score,
				view_score, engagement_score, comment_score, channel_score, sentiment_score,
				dominant_sentiment, trend_direction, record)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(video_id, computed_at) DO NOTHING
		`, runID, r.VideoID, r.ChannelID, r.ComputedAt.UTC(), r.ExpiresAt.UTC(), r.Total,
			r.Breakdown.View, r.Breakdown.Engagement, r.Breakdown.CommentActivity,
			r.Breakdown.ChannelInfluence, r.Breakdown.Sentiment,
			string(r.Sentiment.Dominant), string(r.Trend), string(raw))
		if err != nil {
			return fmt.Errorf("save record %s: %w", r.VideoID, err)
		}
	}
	return tx.Commit()
}

type recordRow struct {
	RunID        string `db:"run_id"`
	Title        string `db:"title"`
	ChannelTitle string `db:"channel_title"`
	Record       string `db:"record"`
}

func (s *SQLiteStore) ListRecords(ctx context.Context, opts RecordListOpts) ([]RankedRecord, error) {
	query := `
		SELECT s.run_id, COALESCE(v.title, '') AS title, COALESCE(v.channel_title, '') AS channel_title, s.record
		FROM buzz_scores s LEFT JOIN videos v ON v.id = s.video_id
		WHERE 1=1`
	var args []any

	if opts.LatestOnly {
		query += " AND s.id IN (SELECT MAX(id) FROM buzz_scores GROUP BY video_id)"
	}
	if opts.MinScore > 0 {
		query += " AND s.total_score >= ?"
		args = append(args, opts.MinScore)
	}
	if !opts.Since.IsZero() {
		query += " AND s.computed_at >= ?"
		args = append(args, opts.Since.UTC())
	}

	query += " ORDER BY s.total_score DESC, s.computed_at DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT ?"
	args = append(args, limit)

	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	out := make([]RankedRecord, 0, len(rows))
	for _, row := range rows {
		rr := RankedRecord{RunID: row.RunID, Title: row.Title, ChannelTitle: row.ChannelTitle}
		if err := json.Unmarshal([]byte(row.Record), &rr.Record); err != nil {
			return nil, fmt.Errorf("decode stored record: %w", err)
		}
		out = append(out, rr)
	}
	return out, nil
}

func alertDay(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

func (s *SQLiteStore) MarkAlerted(ctx context.Context, videoID string, score float64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (video_id, day, total_score, sent_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(video_id, day) DO NOTHING
	`, videoID, alertDay(at), score, at.UTC())
	if err != nil {
		return fmt.Errorf("mark alerted %s: %w", videoID, err)
	}
	return nil
}

// AlertedOn returns the videos alerted on the UTC day containing day.
func (s *SQLiteStore) AlertedOn(ctx context.Context, day time.Time) ([]string, error) {
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, "SELECT video_id FROM alerts WHERE day = ? ORDER BY id", alertDay(day)); err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return ids, nil
}

// Prune drops snapshots and score records older than snapshotsBefore and
// channel stats older than channelStatsBefore.
func (s *SQLiteStore) Prune(ctx context.Context, snapshotsBefore, channelStatsBefore time.Time) (PruneResult, error) {
	var res PruneResult

	r, err := s.db.ExecContext(ctx, "DELETE FROM video_stats WHERE captured_at < ?", snapshotsBefore.UTC())
	if err != nil {
		return res, fmt.Errorf("prune snapshots: %w", err)
	}
	res.Snapshots, _ = r.RowsAffected()

	r, err = s.db.ExecContext(ctx, "DELETE FROM buzz_scores WHERE computed_at < ?", snapshotsBefore.UTC())
	if err != nil {
		return res, fmt.Errorf("prune scores: %w", err)
	}
	res.Scores, _ = r.RowsAffected()

	r, err = s.db.ExecContext(ctx, "DELETE FROM channel_stats WHERE captured_at < ?", channelStatsBefore.UTC())
	if err != nil {
		return res, fmt.Errorf("prune channel stats: %w", err)
	}
	res.ChannelStats, _ = r.RowsAffected()

	return res, nil
}
