package store

const schema = `
CREATE TABLE IF NOT EXISTS videos (
    id            TEXT PRIMARY KEY,
    channel_id    TEXT NOT NULL DEFAULT '',
    channel_title TEXT NOT NULL DEFAULT '',
    title         TEXT NOT NULL DEFAULT '',
    description   TEXT NOT NULL DEFAULT '',
    category_id   TEXT NOT NULL DEFAULT '',
    tags          TEXT NOT NULL DEFAULT '[]',
    published_at  DATETIME NOT NULL,
    first_seen    DATETIME NOT NULL,
    last_seen     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_videos_channel ON videos(channel_id);
CREATE INDEX IF NOT EXISTS idx_videos_last_seen ON videos(last_seen);

CREATE TABLE IF NOT EXISTS video_stats (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    video_id          TEXT NOT NULL,
    view_count        INTEGER NOT NULL,
    like_count        INTEGER NOT NULL,
    comment_count     INTEGER NOT NULL,
    likes_hidden      BOOLEAN NOT NULL DEFAULT 0,
    comments_disabled BOOLEAN NOT NULL DEFAULT 0,
    published_at      DATETIME NOT NULL,
    captured_at       DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_video_stats_video ON video_stats(video_id, captured_at);
CREATE INDEX IF NOT EXISTS idx_video_stats_captured ON video_stats(captured_at);

CREATE TABLE IF NOT EXISTS channel_stats (
    id                   INTEGER PRIMARY KEY AUTOINCREMENT,
    channel_id           TEXT NOT NULL,
    subscriber_count     INTEGER NOT NULL,
    avg_recent_views     REAL NOT NULL,
    total_view_count     INTEGER NOT NULL,
    subscribers_hidden   BOOLEAN NOT NULL DEFAULT 0,
    recent_views_missing BOOLEAN NOT NULL DEFAULT 0,
    captured_at          DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_channel_stats_channel ON channel_stats(channel_id, captured_at);

CREATE TABLE IF NOT EXISTS buzz_scores (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id             TEXT NOT NULL DEFAULT '',
    video_id           TEXT NOT NULL,
    channel_id         TEXT NOT NULL DEFAULT '',
    computed_at        DATETIME NOT NULL,
    expires_at         DATETIME NOT NULL,
    total_score        REAL NOT NULL,
    view_score         REAL NOT NULL,
    engagement_score   REAL NOT NULL,
    comment_score      REAL NOT NULL,
    channel_score      REAL NOT NULL,
    sentiment_score    REAL NOT NULL,
    dominant_sentiment TEXT NOT NULL DEFAULT 'neutral',
    trend_direction    TEXT NOT NULL DEFAULT 'stable',
    record             TEXT NOT NULL,
    UNIQUE(video_id, computed_at)
);

CREATE INDEX IF NOT EXISTS idx_buzz_scores_total ON buzz_scores(total_score);
CREATE INDEX IF NOT EXISTS idx_buzz_scores_computed ON buzz_scores(computed_at);

CREATE TABLE IF NOT EXISTS alerts (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    video_id    TEXT NOT NULL,
    day         TEXT NOT NULL,
    total_score REAL NOT NULL,
    sent_at     DATETIME NOT NULL,
    UNIQUE(video_id, day)
);
`
