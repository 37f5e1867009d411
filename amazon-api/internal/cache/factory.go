package cache

import (
	"context"
	"log"
	"time"
)

// Options selects and configures a backend.
type Options struct {
	RedisURL     string
	DynamoTable  string
	DynamoRegion string
	Dir          string
	DefaultTTL   time.Duration
}

type backendFactory func(ctx context.Context, opts Options) (Cache, error)

var (
	newRedisBackend backendFactory = func(ctx context.Context, opts Options) (Cache, error) {
		return NewRedisCache(ctx, opts.RedisURL, opts.DefaultTTL)
	}
	newDynamoBackend backendFactory = func(ctx context.Context, opts Options) (Cache, error) {
		return NewDynamoCache(ctx, opts.DynamoTable, opts.DynamoRegion, opts.DefaultTTL)
	}
)

// New prefers a remote store when one is configured. If it cannot be reached the
// file cache is used instead so the process keeps serving.
func New(ctx context.Context, opts Options) Cache {
	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	switch {
	case opts.RedisURL != "":
		c, err := newRedisBackend(initCtx, opts)
		if err == nil {
			log.Println("Redis cache connection established")
			return c
		}
		log.Printf("Warning: Redis cache unavailable, falling back to file cache: %v", err)
	case opts.DynamoTable != "":
		c, err := newDynamoBackend(initCtx, opts)
		if err == nil {
			log.Printf("DynamoDB cache table %s ready", opts.DynamoTable)
			return c
		}
		log.Printf("Warning: DynamoDB cache unavailable, falling back to file cache: %v", err)
	}

	log.Printf("Using file cache at %s", opts.Dir)
	return NewFileCache(opts.Dir, opts.DefaultTTL)
}
