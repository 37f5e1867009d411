package normalizer

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/FlavioMalvestitiJunior/bf-offers/amazon-api/internal/models"
)

// Filters are optional and AND-combined. Nil bounds are ignored.
type Filters struct {
	MinRating  *float64
	MinReviews *int
	PrimeOnly  bool
	MinPrice   *float64
	MaxPrice   *float64
}

var priceNumber = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)

// ParsePrice reads the first number in a display price such as "$1,299.99".
func ParsePrice(display string) (float64, bool) {
	m := priceNumber.FindString(display)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// FilterItems returns the items matching every active filter, in input order.
func FilterItems(items []models.NormalizedItem, f Filters) []models.NormalizedItem {
	out := make([]models.NormalizedItem, 0, len(items))
	for _, item := range items {
		if f.Match(item) {
			out = append(out, item)
		}
	}
	return out
}

// Match reports whether item passes f.
func (f Filters) Match(item models.NormalizedItem) bool {
	if f.MinRating != nil && (item.Rating == nil || *item.Rating < *f.MinRating) {
		return false
	}
	if f.MinReviews != nil && (item.ReviewCount == nil || *item.ReviewCount < *f.MinReviews) {
		return false
	}
	if f.PrimeOnly && (item.IsPrime == nil || !*item.IsPrime) {
		return false
	}
	if f.MinPrice == nil && f.MaxPrice == nil {
		return true
	}

	if item.Price == nil {
		return false
	}
	price, ok := ParsePrice(*item.Price)
	if !ok {
		return false
	}
	if f.MinPrice != nil && price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && price > *f.MaxPrice {
		return false
	}
	return true
}
