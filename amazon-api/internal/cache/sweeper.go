package cache

import (
	"context"
	"log"
	"sync"
	"time"
)

// Sweeper periodically evicts expired entries independent of request traffic.
type Sweeper struct {
	cache    Cache
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}

	mu      sync.Mutex
	started bool
}

func NewSweeper(c Cache, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Sweeper{
		cache:    c,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start begins the sweep loop. Calls after the first, or after Stop, do nothing.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.ctx.Err() != nil {
		return
	}
	log.Printf("Starting %s cache sweeper with interval: %v", s.cache.Name(), s.interval)

	s.started = true
	ticker := time.NewTicker(s.interval)
	go func() {
		defer close(s.done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.ctx.Done():
				log.Println("Cache sweeper stopped")
				return
			}
		}
	}()
}

// Stop stops the sweeper and waits for an in-flight sweep to finish
func (s *Sweeper) Stop() {
	s.cancel()
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.done
	}
}

func (s *Sweeper) sweep() {
	removed, err := s.cache.Cleanup(s.ctx)
	if err != nil {
		log.Printf("Cache cleanup failed: %v", err)
		return
	}
	if removed > 0 {
		log.Printf("Cache cleanup removed %d expired entries", removed)
	}
}
