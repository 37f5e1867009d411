// Package normalizer turns raw PA-API payloads into models.NormalizedItem values.
package normalizer

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/FlavioMalvestitiJunior/bf-offers/amazon-api/internal/models"
	"github.com/tidwall/gjson"
)

const (
	UnknownTitle    = "Unknown Product"
	DefaultNiche    = "general"
	DefaultPlatform = "web"
	DefaultPrefix   = "glowbot_"
)

// itemPaths are the wrappers PA-API puts around item lists, per operation.
var itemPaths = []string{
	"SearchResult.Items",
	"ItemsResult.Items",
	"VariationsResult.Items",
}

var errMissingASIN = errors.New("item has no ASIN")

type Normalizer struct {
	storeDomain string
	partnerTag  string
	prefix      string
	now         func() time.Time
}

// New creates a Normalizer that builds links on storeDomain for partnerTag.
func New(storeDomain, partnerTag, subtagPrefix string) *Normalizer {
	if storeDomain == "" {
		storeDomain = "www.amazon.com"
	}
	if subtagPrefix == "" {
		subtagPrefix = DefaultPrefix
	}
	return &Normalizer{
		storeDomain: storeDomain,
		partnerTag:  partnerTag,
		prefix:      subtagPrefix,
		now:         time.Now,
	}
}

// Normalize maps every item in raw. Items without an ASIN, or that fail to map,
// are logged and dropped; the rest keep their input order.
func (n *Normalizer) Normalize(raw []byte, sub models.AscSubtagConfig) []models.NormalizedItem {
	items := []models.NormalizedItem{}
	if !gjson.ValidBytes(raw) {
		log.Printf("Normalizer: payload is not valid JSON (%d bytes)", len(raw))
		return items
	}

	list := itemList(raw)
	subtag := n.Subtag(sub)

	list.ForEach(func(_, value gjson.Result) bool {
		item, err := n.normalizeItem(value, subtag)
		if err != nil {
			log.Printf("Normalizer: dropping item: %v", err)
			return true
		}
		items = append(items, item)
		return true
	})
	return items
}

func itemList(raw []byte) gjson.Result {
	for _, path := range itemPaths {
		if r := gjson.GetBytes(raw, path); r.IsArray() {
			return r
		}
	}
	if root := gjson.ParseBytes(raw); root.IsArray() {
		return root
	}
	return gjson.Result{}
}

func (n *Normalizer) normalizeItem(value gjson.Result, subtag string) (models.NormalizedItem, error) {
	if !value.IsObject() {
		return models.NormalizedItem{}, fmt.Errorf("unexpected item type %s", value.Type)
	}
	asin := strings.TrimSpace(value.Get("ASIN").String())
	if asin == "" {
		return models.NormalizedItem{}, errMissingASIN
	}

	title := strings.TrimSpace(value.Get("ItemInfo.Title.DisplayValue").String())
	if title == "" {
		title = UnknownTitle
	}

	item := models.NormalizedItem{
		ASIN:  asin,
		Title: title,
		Image: firstString(value, "Images.Primary.Large.URL", "Images.Primary.Medium.URL", "Images.Primary.Small.URL"),
		URL:   n.AffiliateURL(asin, subtag),
	}

	if r := value.Get("CustomerReviews.StarRating.Value"); r.Exists() && r.Type == gjson.Number {
		rating := r.Float()
		item.Rating = &rating
	}
	if c := value.Get("CustomerReviews.Count"); c.Exists() && c.Type == gjson.Number {
		count := int(c.Int())
		item.ReviewCount = &count
	}

	listing := value.Get("Offers.Listings.0")
	item.Price = formatPrice(listing.Get("Price"))
	prime := listing.Get("DeliveryInfo.IsPrimeEligible").Bool()
	item.IsPrime = &prime

	return item, nil
}

func firstString(value gjson.Result, paths ...string) *string {
	for _, p := range paths {
		if s := strings.TrimSpace(value.Get(p).String()); s != "" {
			return &s
		}
	}
	return nil
}

// formatPrice prefers the provider's DisplayAmount and otherwise composes one.
func formatPrice(price gjson.Result) *string {
	if !price.Exists() {
		return nil
	}
	if display := strings.TrimSpace(price.Get("DisplayAmount").String()); display != "" {
		return &display
	}
	amount := price.Get("Amount")
	if amount.Type != gjson.Number {
		return nil
	}
	currency := strings.TrimSpace(price.Get("Currency").String())
	var s string
	if currency == "" || strings.EqualFold(currency, "USD") {
		s = fmt.Sprintf("$%.2f", amount.Float())
	} else {
		s = strconv.FormatFloat(amount.Float(), 'f', -1, 64) + " " + currency
	}
	return &s
}

// Subtag builds {prefix}{niche}_{YYYY-MM-DD}_{platform} for the current UTC date.
func (n *Normalizer) Subtag(sub models.AscSubtagConfig) string {
	prefix := sub.Prefix
	if prefix == "" {
		prefix = n.prefix
	}
	niche := sub.Niche
	if niche == "" {
		niche = DefaultNiche
	}
	platform := sub.Platform
	if platform == "" {
		platform = DefaultPlatform
	}
	return fmt.Sprintf("%s%s_%s_%s", prefix, niche, n.now().UTC().Format("2006-01-02"), platform)
}

// AffiliateURL is the only link ever emitted for an item.
func (n *Normalizer) AffiliateURL(asin, subtag string) string {
	return fmt.Sprintf("https://%s/dp/%s?tag=%s&ascsubtag=%s",
		n.storeDomain, url.PathEscape(asin), url.QueryEscape(n.partnerTag), url.QueryEscape(subtag))
}
