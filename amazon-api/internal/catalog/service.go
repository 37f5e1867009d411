// Package catalog orchestrates cache lookups, PA-API calls, normalization and the
// stale-cache fallback behind the HTTP handlers and the CLI.
package catalog

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/FlavioMalvestitiJunior/bf-offers/amazon-api/internal/cache"
	"github.com/FlavioMalvestitiJunior/bf-offers/amazon-api/internal/metrics"
	"github.com/FlavioMalvestitiJunior/bf-offers/amazon-api/internal/models"
	"github.com/FlavioMalvestitiJunior/bf-offers/amazon-api/internal/normalizer"
	"github.com/FlavioMalvestitiJunior/bf-offers/amazon-api/internal/paapi"
)

var (
	// ErrNotConfigured means the service runs without PA-API credentials.
	ErrNotConfigured = errors.New("amazon api not configured")
	// ErrUnavailable means the upstream call failed and no stale copy exists.
	ErrUnavailable = errors.New("amazon api unavailable")
)

// Response sources reported in meta.source.
const (
	SourceCache  = "cache"
	SourceAmazon = "amazon"
	SourceStale  = "stale"
)

const (
	NotConfiguredMessage = "Amazon API not configured"
	UnavailableMessage   = "Amazon API temporarily unavailable"
	StaleNotice          = "Amazon is temporarily unavailable. Showing cached results that may be out of date."
	RetryNotice          = "Amazon is temporarily unavailable and no cached results exist. Please try again in a few minutes."
)

// ProductClient is the subset of *paapi.Client the service needs.
type ProductClient interface {
	SearchItems(ctx context.Context, p paapi.SearchParams) *paapi.Result
	GetItems(ctx context.Context, p paapi.GetItemsParams) *paapi.Result
	GetVariations(ctx context.Context, parentASIN string) *paapi.Result
}

// Publisher receives every freshly fetched item list.
type Publisher interface {
	PublishItems(ctx context.Context, items []models.NormalizedItem) error
}

// SearchRequest is a validated search.
type SearchRequest struct {
	Keywords   string
	Category   string
	MinRating  *float64
	MinReviews *int
	PrimeOnly  bool
	SortBy     string
	MaxResults int
	MinPrice   *float64
	MaxPrice   *float64
	Subtag     models.AscSubtagConfig
}

type ItemsRequest struct {
	ASINs  []string
	Subtag models.AscSubtagConfig
}

type VariationsRequest struct {
	ASIN   string
	Subtag models.AscSubtagConfig
}

// Options tunes a Service. Zero TTLs select cache.DefaultTTL and cache.StaleTTL.
type Options struct {
	TTL       time.Duration
	StaleTTL  time.Duration
	Publisher Publisher
	Metrics   *metrics.Registry
}

type Service struct {
	client     ProductClient
	normalizer *normalizer.Normalizer
	cache      cache.Cache
	ttl        time.Duration
	staleTTL   time.Duration
	publisher  Publisher
	metrics    *metrics.Registry
	now        func() time.Time
}

// NewService wires the orchestration layer. A nil client runs the service in
// not-configured mode.
func NewService(client ProductClient, norm *normalizer.Normalizer, c cache.Cache, opts Options) *Service {
	s := &Service{
		client:     client,
		normalizer: norm,
		cache:      c,
		ttl:        opts.TTL,
		staleTTL:   opts.StaleTTL,
		publisher:  opts.Publisher,
		metrics:    opts.Metrics,
		now:        time.Now,
	}
	if s.ttl <= 0 {
		s.ttl = cache.DefaultTTL
	}
	if s.staleTTL <= 0 {
		s.staleTTL = cache.StaleTTL
	}
	return s
}

// Enabled reports whether PA-API calls can be made.
func (s *Service) Enabled() bool {
	return s.client != nil
}

// Search runs a keyword search through the cache.
func (s *Service) Search(ctx context.Context, r SearchRequest) (*models.ProductsResponse, error) {
	filters := normalizer.Filters{
		MinRating:  r.MinRating,
		MinReviews: r.MinReviews,
		PrimeOnly:  r.PrimeOnly,
		MinPrice:   r.MinPrice,
		MaxPrice:   r.MaxPrice,
	}
	return s.fetch(ctx, SearchKey(r), r.Subtag, filters, func(ctx context.Context) *paapi.Result {
		return s.client.SearchItems(ctx, paapi.SearchParams{
			Keywords:   r.Keywords,
			Category:   r.Category,
			MinRating:  r.MinRating,
			MinReviews: r.MinReviews,
			PrimeOnly:  r.PrimeOnly,
			SortBy:     r.SortBy,
			MaxResults: r.MaxResults,
		})
	})
}

// GetItems fetches items by ASIN through the cache.
func (s *Service) GetItems(ctx context.Context, r ItemsRequest) (*models.ProductsResponse, error) {
	return s.fetch(ctx, ItemsKey(r), r.Subtag, normalizer.Filters{}, func(ctx context.Context) *paapi.Result {
		return s.client.GetItems(ctx, paapi.GetItemsParams{ASINs: r.ASINs})
	})
}

// GetVariations fetches the variations of a parent ASIN through the cache.
func (s *Service) GetVariations(ctx context.Context, r VariationsRequest) (*models.ProductsResponse, error) {
	return s.fetch(ctx, VariationsKey(r), r.Subtag, normalizer.Filters{}, func(ctx context.Context) *paapi.Result {
		return s.client.GetVariations(ctx, r.ASIN)
	})
}

func (s *Service) fetch(ctx context.Context, key string, sub models.AscSubtagConfig, filters normalizer.Filters, call func(context.Context) *paapi.Result) (*models.ProductsResponse, error) {
	start := s.now()
	respond := func(resp *models.ProductsResponse, source string) *models.ProductsResponse {
		if resp.Items == nil {
			resp.Items = []models.NormalizedItem{}
		}
		resp.Meta = &models.ResponseMeta{
			DurationMs: s.now().Sub(start).Milliseconds(),
			Source:     source,
			Count:      len(resp.Items),
		}
		return resp
	}

	if s.client == nil {
		return respond(&models.ProductsResponse{Error: NotConfiguredMessage}, SourceAmazon), ErrNotConfigured
	}

	if items, entry, ok := cache.Load[[]models.NormalizedItem](ctx, s.cache, key); ok {
		s.metrics.ObserveCache("hit")
		age := s.ageSeconds(entry)
		return respond(&models.ProductsResponse{Success: true, Items: items, Cached: true, CacheAge: &age}, SourceCache), nil
	}
	s.metrics.ObserveCache("miss")

	result := call(ctx)
	if result.Success {
		items := normalizer.FilterItems(s.normalizer.Normalize(result.Data, sub), filters)
		s.store(ctx, key, items)
		s.publish(ctx, items)
		return respond(&models.ProductsResponse{Success: true, Items: items}, SourceAmazon), nil
	}

	log.Printf("Amazon request for %s failed after %d attempt(s): %s", key, result.Attempts, result.Error)

	if items, entry, ok := cache.Load[[]models.NormalizedItem](ctx, s.cache, key+cache.StaleSuffix); ok {
		s.metrics.ObserveCache("stale")
		age := s.ageSeconds(entry)
		log.Printf("Serving stale cache for %s (age %ds)", key, age)
		return respond(&models.ProductsResponse{
			Success:  true,
			Items:    items,
			Cached:   true,
			CacheAge: &age,
			Stale:    true,
			Notice:   StaleNotice,
		}, SourceStale), nil
	}

	return respond(&models.ProductsResponse{Error: UnavailableMessage, Notice: RetryNotice}, SourceAmazon), ErrUnavailable
}

func (s *Service) ageSeconds(entry *cache.Entry) int64 {
	age := int64(entry.Age(s.now()) / time.Second)
	if age < 0 {
		return 0
	}
	return age
}

// store writes the primary entry and its long-lived stale shadow. Cache failures
// never fail the request.
func (s *Service) store(ctx context.Context, key string, items []models.NormalizedItem) {
	if err := cache.Store(ctx, s.cache, key, items, s.ttl); err != nil {
		log.Printf("Failed to cache %s: %v", key, err)
	}
	if err := cache.Store(ctx, s.cache, key+cache.StaleSuffix, items, s.staleTTL); err != nil {
		log.Printf("Failed to cache stale copy of %s: %v", key, err)
	}
}

func (s *Service) publish(ctx context.Context, items []models.NormalizedItem) {
	if s.publisher == nil || len(items) == 0 {
		return
	}
	go func(ctx context.Context) {
		if err := s.publisher.PublishItems(ctx, items); err != nil {
			log.Printf("Failed to publish %d offers: %v", len(items), err)
		}
	}(context.WithoutCancel(ctx))
}
