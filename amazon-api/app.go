package main

import (
	"context"
	"log"

	"github.com/FlavioMalvestitiJunior/bf-offers/amazon-api/internal/cache"
	"github.com/FlavioMalvestitiJunior/bf-offers/amazon-api/internal/catalog"
	"github.com/FlavioMalvestitiJunior/bf-offers/amazon-api/internal/config"
	"github.com/FlavioMalvestitiJunior/bf-offers/amazon-api/internal/metrics"
	"github.com/FlavioMalvestitiJunior/bf-offers/amazon-api/internal/normalizer"
	"github.com/FlavioMalvestitiJunior/bf-offers/amazon-api/internal/paapi"
	"github.com/FlavioMalvestitiJunior/bf-offers/amazon-api/internal/producer"
)

// app owns every long-lived component; main and the CLI commands share it.
type app struct {
	cfg           *config.Config
	metrics       *metrics.Registry
	cache         cache.Cache
	catalog       *catalog.Service
	publisher     *producer.OfferPublisher
	amazonMessage string
}

func newApp(ctx context.Context, withPublisher bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:           cfg,
		metrics:       metrics.NewRegistry(),
		amazonMessage: "Amazon PA-API configured",
	}

	a.cache = cache.New(ctx, cache.Options{
		RedisURL:     cfg.RedisURL,
		DynamoTable:  cfg.DynamoTable,
		DynamoRegion: cfg.Region,
		Dir:          cfg.CacheDir,
		DefaultTTL:   cfg.CacheTTL,
	})
	log.Printf("Using %s cache", a.cache.Name())

	var client catalog.ProductClient
	amazonCfg, err := cfg.Amazon()
	if err != nil {
		log.Printf("Amazon integration disabled: %v", err)
		a.amazonMessage = err.Error()
	} else {
		pc, err := paapi.NewClient(amazonCfg, nil, a.metrics)
		if err != nil {
			log.Printf("Amazon integration disabled: %v", err)
			a.amazonMessage = err.Error()
		} else {
			client = pc
		}
	}

	opts := catalog.Options{
		TTL:      cfg.CacheTTL,
		StaleTTL: cfg.StaleTTL,
		Metrics:  a.metrics,
	}
	if withPublisher && cfg.KafkaEnabled() {
		p, err := producer.NewOfferPublisher(cfg.Brokers(), cfg.KafkaOffersTopic, a.metrics)
		if err != nil {
			log.Printf("Offer publishing disabled: %v", err)
		} else {
			a.publisher = p
			opts.Publisher = p
		}
	}

	norm := normalizer.New(cfg.StoreDomain, cfg.PartnerTag, cfg.SubtagPrefix)
	a.catalog = catalog.NewService(client, norm, a.cache, opts)
	return a, nil
}

func (a *app) Close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			log.Printf("Failed to close offer publisher: %v", err)
		}
	}
	if rc, ok := a.cache.(*cache.RedisCache); ok {
		if err := rc.Close(); err != nil {
			log.Printf("Failed to close redis: %v", err)
		}
	}
}
