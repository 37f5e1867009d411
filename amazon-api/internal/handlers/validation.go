package handlers

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/FlavioMalvestitiJunior/bf-offers/amazon-api/internal/catalog"
	"github.com/FlavioMalvestitiJunior/bf-offers/amazon-api/internal/models"
	"github.com/FlavioMalvestitiJunior/bf-offers/amazon-api/internal/paapi"
)

const (
	maxKeywordsLength = 200
	maxCategoryLength = 50
)

var (
	asinPattern  = regexp.MustCompile(`^[A-Z0-9]{10}$`)
	labelPattern = regexp.MustCompile(`^[a-z0-9_-]{1,32}$`)
)

// FieldError describes one rejected query parameter.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every rejected parameter of a request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "invalid parameters: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, format string, args ...interface{}) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (e *ValidationError) orNil() *ValidationError {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func parseFloat(q url.Values, name string, min, max float64, errs *ValidationError) *float64 {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < min || v > max {
		if math.IsInf(max, 1) {
			errs.add(name, "must be a number greater than or equal to %g", min)
		} else {
			errs.add(name, "must be a number between %g and %g", min, max)
		}
		return nil
	}
	return &v
}

func parseInt(q url.Values, name string, min, max int, errs *ValidationError) *int {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min || v > max {
		if max == math.MaxInt32 {
			errs.add(name, "must be an integer greater than or equal to %d", min)
		} else {
			errs.add(name, "must be an integer between %d and %d", min, max)
		}
		return nil
	}
	return &v
}

func parseSubtag(q url.Values, errs *ValidationError) models.AscSubtagConfig {
	var sub models.AscSubtagConfig
	if niche := strings.TrimSpace(q.Get("niche")); niche != "" {
		if labelPattern.MatchString(niche) {
			sub.Niche = niche
		} else {
			errs.add("niche", "must be 1-32 lowercase letters, digits, '_' or '-'")
		}
	}
	if platform := strings.TrimSpace(q.Get("platform")); platform != "" {
		if labelPattern.MatchString(platform) {
			sub.Platform = platform
		} else {
			errs.add("platform", "must be 1-32 lowercase letters, digits, '_' or '-'")
		}
	}
	return sub
}

// ParseSearch validates the query of GET /search.
func ParseSearch(q url.Values) (catalog.SearchRequest, error) {
	errs := &ValidationError{}
	req := catalog.SearchRequest{}

	req.Keywords = strings.TrimSpace(q.Get("keywords"))
	switch n := utf8.RuneCountInString(req.Keywords); {
	case n == 0:
		errs.add("keywords", "is required")
	case n > maxKeywordsLength:
		errs.add("keywords", "must be at most %d characters", maxKeywordsLength)
	}

	req.Category = strings.TrimSpace(q.Get("category"))
	if utf8.RuneCountInString(req.Category) > maxCategoryLength {
		errs.add("category", "must be at most %d characters", maxCategoryLength)
	}

	req.MinRating = parseFloat(q, "minRating", 0, 5, errs)
	req.MinReviews = parseInt(q, "minReviews", 0, math.MaxInt32, errs)

	if raw := strings.TrimSpace(q.Get("primeOnly")); raw != "" {
		prime, err := strconv.ParseBool(raw)
		if err != nil {
			errs.add("primeOnly", "must be true or false")
		}
		req.PrimeOnly = prime
	}

	if sortBy := strings.TrimSpace(q.Get("sortBy")); sortBy != "" {
		if _, ok := paapi.SortOrder(sortBy); ok {
			req.SortBy = sortBy
		} else {
			errs.add("sortBy", "must be one of %s", strings.Join(paapi.SortKeys(), ", "))
		}
	}

	if n := parseInt(q, "maxResults", 1, paapi.MaxItemCount, errs); n != nil {
		req.MaxResults = *n
	}

	req.MinPrice = parseFloat(q, "minPrice", 0, math.Inf(1), errs)
	req.MaxPrice = parseFloat(q, "maxPrice", 0, math.Inf(1), errs)
	if req.MinPrice != nil && req.MaxPrice != nil && *req.MinPrice > *req.MaxPrice {
		errs.add("minPrice", "must not be greater than maxPrice")
	}

	req.Subtag = parseSubtag(q, errs)

	if err := errs.orNil(); err != nil {
		return catalog.SearchRequest{}, err
	}
	return req, nil
}

// ParseItems validates the query of GET /items.
func ParseItems(q url.Values) (catalog.ItemsRequest, error) {
	errs := &ValidationError{}
	var asins []string
	for _, part := range strings.Split(q.Get("asins"), ",") {
		if a := strings.ToUpper(strings.TrimSpace(part)); a != "" {
			asins = append(asins, a)
		}
	}

	switch {
	case len(asins) == 0:
		errs.add("asins", "at least one ASIN is required")
	case len(asins) > paapi.MaxItemCount:
		errs.add("asins", "at most %d ASINs are allowed", paapi.MaxItemCount)
	default:
		for _, a := range asins {
			if !asinPattern.MatchString(a) {
				errs.add("asins", "%q is not a valid ASIN", a)
			}
		}
	}

	sub := parseSubtag(q, errs)
	if err := errs.orNil(); err != nil {
		return catalog.ItemsRequest{}, err
	}
	return catalog.ItemsRequest{ASINs: asins, Subtag: sub}, nil
}

// ParseVariations validates the query of GET /variations.
func ParseVariations(q url.Values) (catalog.VariationsRequest, error) {
	errs := &ValidationError{}
	asin := strings.ToUpper(strings.TrimSpace(q.Get("asin")))
	switch {
	case asin == "":
		errs.add("asin", "is required")
	case !asinPattern.MatchString(asin):
		errs.add("asin", "%q is not a valid ASIN", asin)
	}

	sub := parseSubtag(q, errs)
	if err := errs.orNil(); err != nil {
		return catalog.VariationsRequest{}, err
	}
	return catalog.VariationsRequest{ASIN: asin, Subtag: sub}, nil
}
