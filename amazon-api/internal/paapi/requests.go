package paapi

import (
	"math"
	"strings"
)

// MaxItemCount is the provider's hard cap on results and ASINs per call.
const MaxItemCount = 10

// DefaultCategory is the search index used for unknown categories.
const DefaultCategory = "All"

var categoryIndex = map[string]string{
	"beauty":      "Beauty",
	"tech":        "Electronics",
	"electronics": "Electronics",
	"fitness":     "SportsAndOutdoors",
	"outdoors":    "SportsAndOutdoors",
	"home":        "HomeAndKitchen",
	"kitchen":     "HomeAndKitchen",
	"fashion":     "Fashion",
	"books":       "Books",
	"toys":        "ToysAndGames",
	"pets":        "PetSupplies",
	"baby":        "Baby",
	"health":      "HealthPersonalCare",
	"garden":      "GardenAndOutdoor",
	"automotive":  "Automotive",
	"gaming":      "VideoGames",
	"office":      "OfficeProducts",
}

var sortOrders = map[string]string{
	"relevance":  "Relevance",
	"featured":   "Featured",
	"newest":     "NewestArrivals",
	"price_low":  "Price:LowToHigh",
	"price_high": "Price:HighToLow",
	"rating":     "AvgCustomerReviews",
}

// MapCategory translates a caller category into a PA-API SearchIndex.
func MapCategory(category string) string {
	if idx, ok := categoryIndex[strings.ToLower(strings.TrimSpace(category))]; ok {
		return idx
	}
	return DefaultCategory
}

// SortOrder translates a caller sort key. The second result is false for unknown keys.
func SortOrder(sortBy string) (string, bool) {
	s, ok := sortOrders[sortBy]
	return s, ok
}

// SortKeys lists the accepted sortBy values.
func SortKeys() []string {
	return []string{"relevance", "featured", "newest", "price_low", "price_high", "rating"}
}

var searchResources = []string{
	"Images.Primary.Large",
	"Images.Primary.Medium",
	"Images.Primary.Small",
	"ItemInfo.Title",
	"CustomerReviews.Count",
	"CustomerReviews.StarRating",
	"Offers.Listings.Price",
	"Offers.Listings.DeliveryInfo.IsPrimeEligible",
}

var itemResources = append(append([]string{}, searchResources...),
	"ItemInfo.Features",
	"ItemInfo.ByLineInfo",
	"ItemInfo.ProductInfo",
)

var variationResources = append(append([]string{}, searchResources...),
	"VariationSummary.VariationDimension",
	"ItemInfo.ProductInfo",
)

// SearchParams are the caller-facing search options.
type SearchParams struct {
	Keywords   string
	Category   string
	MinRating  *float64
	MinReviews *int
	PrimeOnly  bool
	SortBy     string
	MaxResults int
}

// GetItemsParams selects up to MaxItemCount ASINs.
type GetItemsParams struct {
	ASINs []string
}

type partnerFields struct {
	PartnerTag  string `json:"PartnerTag"`
	PartnerType string `json:"PartnerType"`
	Marketplace string `json:"Marketplace"`
}

type searchItemsRequest struct {
	partnerFields
	Keywords         string   `json:"Keywords"`
	SearchIndex      string   `json:"SearchIndex"`
	ItemCount        int      `json:"ItemCount"`
	Resources        []string `json:"Resources"`
	SortBy           string   `json:"SortBy,omitempty"`
	MinReviewsRating int      `json:"MinReviewsRating,omitempty"`
	DeliveryFlags    []string `json:"DeliveryFlags,omitempty"`
}

type getItemsRequest struct {
	partnerFields
	ItemIDs    []string `json:"ItemIds"`
	ItemIDType string   `json:"ItemIdType"`
	Resources  []string `json:"Resources"`
}

type getVariationsRequest struct {
	partnerFields
	ASIN           string   `json:"ASIN"`
	VariationCount int      `json:"VariationCount"`
	Resources      []string `json:"Resources"`
}

// ClampItemCount keeps n within 1..MaxItemCount; zero or negative means the maximum.
func ClampItemCount(n int) int {
	if n <= 0 || n > MaxItemCount {
		return MaxItemCount
	}
	return n
}

func (c *Client) partner() partnerFields {
	return partnerFields{
		PartnerTag:  c.partnerTag,
		PartnerType: "Associates",
		Marketplace: c.marketplace,
	}
}

func (c *Client) buildSearch(p SearchParams) searchItemsRequest {
	req := searchItemsRequest{
		partnerFields: c.partner(),
		Keywords:      strings.TrimSpace(p.Keywords),
		SearchIndex:   MapCategory(p.Category),
		ItemCount:     ClampItemCount(p.MaxResults),
		Resources:     searchResources,
	}
	if s, ok := SortOrder(p.SortBy); ok {
		req.SortBy = s
	}
	if p.MinRating != nil && *p.MinRating > 0 {
		// PA-API accepts whole stars from 1 to 4.
		r := int(math.Floor(*p.MinRating))
		if r < 1 {
			r = 1
		}
		if r > 4 {
			r = 4
		}
		req.MinReviewsRating = r
	}
	if p.PrimeOnly {
		req.DeliveryFlags = []string{"Prime"}
	}
	return req
}

func (c *Client) buildGetItems(p GetItemsParams) getItemsRequest {
	return getItemsRequest{
		partnerFields: c.partner(),
		ItemIDs:       p.ASINs,
		ItemIDType:    "ASIN",
		Resources:     itemResources,
	}
}

func (c *Client) buildGetVariations(asin string) getVariationsRequest {
	return getVariationsRequest{
		partnerFields:  c.partner(),
		ASIN:           asin,
		VariationCount: MaxItemCount,
		Resources:      variationResources,
	}
}
