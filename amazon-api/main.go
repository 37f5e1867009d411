package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/FlavioMalvestitiJunior/bf-offers/amazon-api/internal/cache"
	"github.com/FlavioMalvestitiJunior/bf-offers/amazon-api/internal/catalog"
	"github.com/FlavioMalvestitiJunior/bf-offers/amazon-api/internal/consumer"
	"github.com/FlavioMalvestitiJunior/bf-offers/amazon-api/internal/handlers"
	"github.com/FlavioMalvestitiJunior/bf-offers/amazon-api/internal/models"
	"github.com/FlavioMalvestitiJunior/bf-offers/amazon-api/internal/ratelimit"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "amazon-api",
		Short:        "Amazon Product Advertising API service for bf-offers",
		SilenceUsage: true,
		RunE:         runServe,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(itemsCmd())
	rootCmd.AddCommand(variationsCmd())
	rootCmd.AddCommand(cacheCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API (default)",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	log.Println("Starting Amazon API Service...")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg

	sweeper := cache.NewSweeper(a.cache, cfg.CacheCleanupInterval)
	sweeper.Start()
	defer sweeper.Stop()

	var store ratelimit.Store
	if rc, ok := a.cache.(*cache.RedisCache); ok {
		store = ratelimit.NewRedisStore(rc.Client())
	} else {
		mem := ratelimit.NewMemoryStore()
		mem.StartSweeper(ctx, cfg.RateLimitWindow)
		store = mem
	}

	limiter := ratelimit.New(store, cfg.RateLimitWindow, cfg.RateLimitMax)
	limiter.TrustProxy = cfg.RateLimitTrustProxy

	router := handlers.NewRouter(handlers.RouterConfig{
		Products:       handlers.NewProductHandler(a.catalog),
		Health:         handlers.NewHealthHandler(a.catalog, a.cache, a.amazonMessage, cfg.RateLimitWindow, cfg.RateLimitMax),
		Limiter:        limiter,
		Metrics:        a.metrics,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Amazon API listening on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if cfg.KafkaEnabled() && a.catalog.Enabled() {
		warmer := consumer.NewCacheWarmer(a.catalog)
		if _, err := consumer.StartWishlistConsumer(ctx, cfg.Brokers(), cfg.KafkaWishlistEventsTopic, cfg.KafkaGroupID, warmer.Handle); err != nil {
			log.Printf("Failed to start wishlist consumer: %v", err)
		}
	}

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
		log.Println("Shutdown signal received, stopping...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	log.Println("Amazon API service stopped gracefully")
	return nil
}

// queryFromFlags copies the flags the user actually set into query parameters so the
// CLI goes through the same validation as the HTTP routes.
func queryFromFlags(cmd *cobra.Command, params map[string]string) url.Values {
	q := url.Values{}
	for flag, param := range params {
		if cmd.Flags().Changed(flag) {
			q.Set(param, cmd.Flags().Lookup(flag).Value.String())
		}
	}
	return q
}

func addSubtagFlags(cmd *cobra.Command) {
	cmd.Flags().String("niche", "", "ascsubtag niche (default general)")
	cmd.Flags().String("platform", "", "ascsubtag platform (default web)")
}

func searchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search Amazon through the cache and print the JSON response",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := handlers.ParseSearch(queryFromFlags(cmd, map[string]string{
				"keywords":    "keywords",
				"category":    "category",
				"min-rating":  "minRating",
				"min-reviews": "minReviews",
				"prime-only":  "primeOnly",
				"sort-by":     "sortBy",
				"max-results": "maxResults",
				"min-price":   "minPrice",
				"max-price":   "maxPrice",
				"niche":       "niche",
				"platform":    "platform",
			}))
			if err != nil {
				return err
			}
			return runOneShot(func(ctx context.Context, s *catalog.Service) (*models.ProductsResponse, error) {
				return s.Search(ctx, req)
			})
		},
	}

	cmd.Flags().StringP("keywords", "k", "", "search keywords (required)")
	cmd.Flags().StringP("category", "c", "", "category, e.g. beauty, tech, fitness")
	cmd.Flags().Float64("min-rating", 0, "minimum star rating (0-5)")
	cmd.Flags().Int("min-reviews", 0, "minimum number of reviews")
	cmd.Flags().Bool("prime-only", false, "only Prime eligible items")
	cmd.Flags().String("sort-by", "", "relevance, featured, newest, price_low, price_high or rating")
	cmd.Flags().IntP("max-results", "n", 10, "maximum results (1-10)")
	cmd.Flags().Float64("min-price", 0, "minimum price")
	cmd.Flags().Float64("max-price", 0, "maximum price")
	addSubtagFlags(cmd)
	return cmd
}

func itemsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "items ASIN [ASIN...]",
		Short: "Fetch items by ASIN and print the JSON response",
		Args:  cobra.RangeArgs(1, 10),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := queryFromFlags(cmd, map[string]string{"niche": "niche", "platform": "platform"})
			q.Set("asins", strings.Join(args, ","))
			req, err := handlers.ParseItems(q)
			if err != nil {
				return err
			}
			return runOneShot(func(ctx context.Context, s *catalog.Service) (*models.ProductsResponse, error) {
				return s.GetItems(ctx, req)
			})
		},
	}
	addSubtagFlags(cmd)
	return cmd
}

func variationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "variations PARENT_ASIN",
		Short: "Fetch the variations of a parent ASIN and print the JSON response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := queryFromFlags(cmd, map[string]string{"niche": "niche", "platform": "platform"})
			q.Set("asin", args[0])
			req, err := handlers.ParseVariations(q)
			if err != nil {
				return err
			}
			return runOneShot(func(ctx context.Context, s *catalog.Service) (*models.ProductsResponse, error) {
				return s.GetVariations(ctx, req)
			})
		},
	}
	addSubtagFlags(cmd)
	return cmd
}

func runOneShot(fn func(context.Context, *catalog.Service) (*models.ProductsResponse, error)) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, callErr := fn(ctx, a.catalog)
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}
	fmt.Println(string(data))
	return callErr
}

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Maintain the configured cache backend",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(func(ctx context.Context, c cache.Cache) error {
				if err := c.Clear(ctx); err != nil {
					return fmt.Errorf("failed to clear %s cache: %w", c.Name(), err)
				}
				fmt.Printf("Cleared %s cache\n", c.Name())
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "cleanup",
		Short: "Evict expired entries once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(func(ctx context.Context, c cache.Cache) error {
				removed, err := c.Cleanup(ctx)
				if err != nil {
					return fmt.Errorf("failed to clean up %s cache: %w", c.Name(), err)
				}
				fmt.Printf("Removed %d expired entries from %s cache\n", removed, c.Name())
				return nil
			})
		},
	})

	return cmd
}

func withCache(fn func(context.Context, cache.Cache) error) error {
	ctx := context.Background()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a.cache)
}
