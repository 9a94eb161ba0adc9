// Package cache stores computed scores and intermediate aggregates keyed by
// (category, entity id), each category expiring after its own TTL.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Category groups cache entries that share a TTL.
type Category string

const (
	CategoryScore    Category = "score"
	CategoryChannel  Category = "channel"
	CategoryComments Category = "comments"
)

// Default TTLs per category.
const (
	ScoreTTL    = 1 * time.Hour
	ChannelTTL  = 24 * time.Hour
	CommentsTTL = 1 * time.Hour
)

// ErrUnknownCategory is returned for a category without a configured TTL.
var ErrUnknownCategory = errors.New("unknown cache category")

// TTLs maps each category to its time-to-live.
type TTLs map[Category]time.Duration

// DefaultTTLs returns the stock TTL per category.
func DefaultTTLs() TTLs {
	return TTLs{
		CategoryScore:    ScoreTTL,
		CategoryChannel:  ChannelTTL,
		CategoryComments: CommentsTTL,
	}
}

func (t TTLs) lookup(cat Category) (time.Duration, error) {
	ttl, ok := t[cat]
	if !ok || ttl <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCategory, cat)
	}
	return ttl, nil
}

// Cache is the contract shared by all backends. Get decodes a fresh entry
// into dst and reports whether one existed; an expired entry is a miss.
// Put is last-writer-wins per key.
type Cache interface {
	Get(ctx context.Context, cat Category, key string, dst any) (bool, error)
	Put(ctx context.Context, cat Category, key string, value any) error
	Invalidate(ctx context.Context, cat Category, key string) error
	Close() error
}

func entryKey(cat Category, key string) string {
	return string(cat) + ":" + key
}
