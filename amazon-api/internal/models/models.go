package models

import "time"

// NormalizedItem is the stable shape returned for every Amazon product
type NormalizedItem struct {
	ASIN        string   `json:"asin"`
	Title       string   `json:"title"`
	Image       *string  `json:"image"`
	Rating      *float64 `json:"rating"`
	ReviewCount *int     `json:"reviewCount"`
	Price       *string  `json:"price"`
	IsPrime     *bool    `json:"isPrime"`
	URL         string   `json:"url"`
}

// AscSubtagConfig carries the attribution context used to build affiliate URLs
type AscSubtagConfig struct {
	Niche    string `json:"niche"`
	Platform string `json:"platform"`
	Prefix   string `json:"prefix,omitempty"`
}

// Offer represents the Kafka message schema shared with the backend service
type Offer struct {
	ID                 int       `json:"id"`
	ProductName        string    `json:"titulo"`
	Price              float64   `json:"price"`
	OriginalPrice      float64   `json:"oldPrice"`
	Details            string    `json:"details"`
	CashbackPercentage int       `json:"percentCashback"`
	Source             string    `json:"source"`
	ReceivedAt         time.Time `json:"received_at"`
}

// WishlistEvent represents an event when a wishlist item is added
type WishlistEvent struct {
	Type               string    `json:"type"`
	TelegramID         int64     `json:"telegram_id"`
	ProductName        string    `json:"product_name"`
	TargetPrice        *float64  `json:"target_price,omitempty"`
	DiscountPercentage *int      `json:"discount_percentage,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}

// ProductsResponse is the body returned by the search, items and variations endpoints
type ProductsResponse struct {
	Success  bool             `json:"success"`
	Items    []NormalizedItem `json:"items"`
	Cached   bool             `json:"cached"`
	CacheAge *int64           `json:"cacheAge,omitempty"`
	Stale    bool             `json:"stale,omitempty"`
	Notice   string           `json:"notice,omitempty"`
	Error    string           `json:"error,omitempty"`
	Meta     *ResponseMeta    `json:"meta,omitempty"`
}

// ResponseMeta reports timing and provenance for one request
type ResponseMeta struct {
	DurationMs int64  `json:"durationMs"`
	Source     string `json:"source"`
	Count      int    `json:"count"`
}
