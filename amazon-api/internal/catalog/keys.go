package catalog

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/FlavioMalvestitiJunior/bf-offers/amazon-api/internal/models"
	"github.com/FlavioMalvestitiJunior/bf-offers/amazon-api/internal/paapi"
)

// cacheKey serializes the parameters that were actually supplied. encoding/json
// sorts map keys, so the same query always yields the same key.
func cacheKey(prefix string, params map[string]interface{}) string {
	data, err := json.Marshal(params)
	if err != nil {
		// NaN and Inf cannot be encoded; fmt also prints maps in key order.
		return prefix + ":" + fmt.Sprint(params)
	}
	return prefix + ":" + string(data)
}

func normalizeKeywords(keywords string) string {
	return strings.Join(strings.Fields(strings.ToLower(keywords)), " ")
}

func addSubtag(params map[string]interface{}, sub models.AscSubtagConfig) {
	if sub.Niche != "" {
		params["niche"] = sub.Niche
	}
	if sub.Platform != "" {
		params["platform"] = sub.Platform
	}
}

// SearchKey is the cache key of a search request.
func SearchKey(r SearchRequest) string {
	params := map[string]interface{}{"keywords": normalizeKeywords(r.Keywords)}
	if c := strings.ToLower(strings.TrimSpace(r.Category)); c != "" {
		params["category"] = c
	}
	if r.MinRating != nil {
		params["minRating"] = *r.MinRating
	}
	if r.MinReviews != nil {
		params["minReviews"] = *r.MinReviews
	}
	if r.PrimeOnly {
		params["primeOnly"] = true
	}
	if r.SortBy != "" {
		params["sortBy"] = r.SortBy
	}
	// Keyed by the count actually requested upstream; the default stays out of the key.
	if n := paapi.ClampItemCount(r.MaxResults); n != paapi.MaxItemCount {
		params["maxResults"] = n
	}
	if r.MinPrice != nil {
		params["minPrice"] = *r.MinPrice
	}
	if r.MaxPrice != nil {
		params["maxPrice"] = *r.MaxPrice
	}
	addSubtag(params, r.Subtag)
	return cacheKey("search", params)
}

// ItemsKey is the cache key of a get-items request. ASIN order is kept because it
// decides the order of the response.
func ItemsKey(r ItemsRequest) string {
	asins := make([]string, len(r.ASINs))
	for i, a := range r.ASINs {
		asins[i] = strings.ToUpper(strings.TrimSpace(a))
	}
	params := map[string]interface{}{"asins": asins}
	addSubtag(params, r.Subtag)
	return cacheKey("items", params)
}

// VariationsKey is the cache key of a get-variations request.
func VariationsKey(r VariationsRequest) string {
	params := map[string]interface{}{"asin": strings.ToUpper(strings.TrimSpace(r.ASIN))}
	addSubtag(params, r.Subtag)
	return cacheKey("variations", params)
}
