// Package cache provides the TTL key/value store used for PA-API results.
//
// Backends share the Cache interface so callers do not care whether entries live
// on disk, in Redis or in DynamoDB. An entry is expired once now > timestamp+ttl and
// is never returned after that point.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"
)

// Well-known lifetimes used by the catalog layer.
const (
	DefaultTTL = 24 * time.Hour
	StaleTTL   = 7 * 24 * time.Hour

	// StaleSuffix marks the long-lived shadow copy read when Amazon is down.
	StaleSuffix = ":stale"
)

// ErrCorruptEntry is returned when a stored entry cannot be decoded.
var ErrCorruptEntry = errors.New("cache: corrupt entry")

// Entry wraps a cached payload with its write time and lifetime, both in milliseconds.
type Entry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
	TTL       int64           `json:"ttl"`
}

// Expired reports whether the entry must no longer be served.
func (e *Entry) Expired(now time.Time) bool {
	return now.UnixMilli() > e.Timestamp+e.TTL
}

// Age is the time elapsed since the entry was written.
func (e *Entry) Age(now time.Time) time.Duration {
	return time.Duration(now.UnixMilli()-e.Timestamp) * time.Millisecond
}

// ExpiresAt is the last instant the entry may be served.
func (e *Entry) ExpiresAt() time.Time {
	return time.UnixMilli(e.Timestamp + e.TTL)
}

func newEntry(data []byte, ttl time.Duration, now time.Time) *Entry {
	return &Entry{
		Data:      json.RawMessage(data),
		Timestamp: now.UnixMilli(),
		TTL:       ttl.Milliseconds(),
	}
}

// Cache is implemented by every backend.
type Cache interface {
	// Get returns nil, nil when the key is absent or expired.
	Get(ctx context.Context, key string) (*Entry, error)
	// Set stores data under key; ttl <= 0 selects the backend default.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	// Cleanup evicts expired entries and reports how many were removed.
	Cleanup(ctx context.Context) (int, error)
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
	Name() string
}

// Load fetches key and decodes it into T. Undecodable entries are deleted and
// reported as a miss.
func Load[T any](ctx context.Context, c Cache, key string) (T, *Entry, bool) {
	var zero T
	entry, err := c.Get(ctx, key)
	if err != nil {
		log.Printf("Cache get %s failed: %v", key, err)
		return zero, nil, false
	}
	if entry == nil {
		return zero, nil, false
	}

	var value T
	if err := json.Unmarshal(entry.Data, &value); err != nil {
		log.Printf("Discarding corrupt cache entry %s: %v", key, err)
		if delErr := c.Delete(ctx, key); delErr != nil {
			log.Printf("Failed to delete corrupt cache entry %s: %v", key, delErr)
		}
		return zero, nil, false
	}
	return value, entry, true
}

// Store encodes value as JSON and writes it under key.
func Store[T any](ctx context.Context, c Cache, key string, value T, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return c.Set(ctx, key, data, ttl)
}
