package normalizer

import (
	"strings"
	"testing"
	"time"

	"github.com/FlavioMalvestitiJunior/bf-offers/amazon-api/internal/models"
)

const searchPayload = `{
  "SearchResult": {
    "Items": [
      {
        "ASIN": "B000000001",
        "DetailPageURL": "https://www.amazon.com/dp/B000000001?tag=someone-else-20",
        "ItemInfo": {"Title": {"DisplayValue": "Yoga Mat Pro"}},
        "Images": {"Primary": {"Medium": {"URL": "https://m.media-amazon.com/medium.jpg"}, "Small": {"URL": "https://m.media-amazon.com/small.jpg"}}},
        "CustomerReviews": {"Count": 120, "StarRating": {"Value": 4.5}},
        "Offers": {"Listings": [{"Price": {"DisplayAmount": "$29.99", "Amount": 29.99, "Currency": "USD"}, "DeliveryInfo": {"IsPrimeEligible": true}}]}
      },
      {
        "ItemInfo": {"Title": {"DisplayValue": "No identifier"}}
      },
      {
        "ASIN": "B000000003",
        "Offers": {"Listings": [{"Price": {"Amount": 12.5, "Currency": "EUR"}}]}
      },
      "not an object",
      {
        "ASIN": "B000000004",
        "Images": {"Primary": {"Large": {"URL": "https://m.media-amazon.com/large.jpg"}, "Small": {"URL": "https://m.media-amazon.com/small.jpg"}}},
        "Offers": {"Listings": [{"Price": {"Amount": 7, "Currency": "USD"}}]}
      }
    ]
  }
}`

func newTestNormalizer() *Normalizer {
	n := New("www.amazon.com", "bfoffers-20", "glowbot_")
	n.now = func() time.Time { return time.Date(2024, 11, 29, 23, 30, 0, 0, time.UTC) }
	return n
}

func TestNormalizeDropsItemsWithoutASIN(t *testing.T) {
	items := newTestNormalizer().Normalize([]byte(searchPayload), models.AscSubtagConfig{})

	want := []string{"B000000001", "B000000003", "B000000004"}
	if len(items) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(items))
	}
	for i, asin := range want {
		if items[i].ASIN != asin {
			t.Fatalf("item %d: expected %s, got %s", i, asin, items[i].ASIN)
		}
	}
}

func TestNormalizeMapsFields(t *testing.T) {
	items := newTestNormalizer().Normalize([]byte(searchPayload), models.AscSubtagConfig{})
	first, third, fourth := items[0], items[1], items[2]

	if first.Title != "Yoga Mat Pro" {
		t.Fatalf("unexpected title %q", first.Title)
	}
	if first.Image == nil || *first.Image != "https://m.media-amazon.com/medium.jpg" {
		t.Fatalf("expected medium image fallback, got %v", first.Image)
	}
	if first.Rating == nil || *first.Rating != 4.5 || first.ReviewCount == nil || *first.ReviewCount != 120 {
		t.Fatalf("unexpected review stats %v %v", first.Rating, first.ReviewCount)
	}
	if first.Price == nil || *first.Price != "$29.99" {
		t.Fatalf("expected display amount, got %v", first.Price)
	}
	if first.IsPrime == nil || !*first.IsPrime {
		t.Fatal("expected prime item")
	}

	if third.Title != UnknownTitle || third.Image != nil || third.Rating != nil || third.ReviewCount != nil {
		t.Fatalf("expected fallbacks for sparse item, got %+v", third)
	}
	if third.Price == nil || *third.Price != "12.5 EUR" {
		t.Fatalf("expected composed non-USD price, got %v", third.Price)
	}
	if third.IsPrime == nil || *third.IsPrime {
		t.Fatal("prime should default to false")
	}

	if fourth.Image == nil || *fourth.Image != "https://m.media-amazon.com/large.jpg" {
		t.Fatalf("expected large image first, got %v", fourth.Image)
	}
	if fourth.Price == nil || *fourth.Price != "$7.00" {
		t.Fatalf("expected USD formatting, got %v", fourth.Price)
	}
}

func TestNormalizeAlwaysBuildsAffiliateURL(t *testing.T) {
	n := newTestNormalizer()
	items := n.Normalize([]byte(searchPayload), models.AscSubtagConfig{Niche: "fitness", Platform: "telegram"})

	for _, item := range items {
		want := "https://www.amazon.com/dp/" + item.ASIN + "?tag=bfoffers-20&ascsubtag=glowbot_fitness_2024-11-29_telegram"
		if item.URL != want {
			t.Fatalf("expected %s, got %s", want, item.URL)
		}
		if strings.Contains(item.URL, "someone-else") {
			t.Fatal("upstream DetailPageURL must not leak into output")
		}
	}
}

func TestSubtagDefaults(t *testing.T) {
	n := newTestNormalizer()
	if got := n.Subtag(models.AscSubtagConfig{}); got != "glowbot_general_2024-11-29_web" {
		t.Fatalf("unexpected default subtag %q", got)
	}
	if got := n.Subtag(models.AscSubtagConfig{Prefix: "bf_", Niche: "tech"}); got != "bf_tech_2024-11-29_web" {
		t.Fatalf("unexpected subtag %q", got)
	}
}

func TestSubtagUsesUTCDate(t *testing.T) {
	n := newTestNormalizer()
	loc := time.FixedZone("UTC-3", -3*3600)
	n.now = func() time.Time { return time.Date(2024, 11, 29, 22, 0, 0, 0, loc) }
	if got := n.Subtag(models.AscSubtagConfig{}); got != "glowbot_general_2024-11-30_web" {
		t.Fatalf("expected UTC calendar date, got %q", got)
	}
}

func TestNormalizeOtherShapes(t *testing.T) {
	n := newTestNormalizer()
	cases := map[string]string{
		"items":      `{"ItemsResult":{"Items":[{"ASIN":"B000000001"}]}}`,
		"variations": `{"VariationsResult":{"Items":[{"ASIN":"B000000001"}],"VariationSummary":{}}}`,
		"bare array": `[{"ASIN":"B000000001"}]`,
	}
	for name, payload := range cases {
		items := n.Normalize([]byte(payload), models.AscSubtagConfig{})
		if len(items) != 1 || items[0].ASIN != "B000000001" {
			t.Fatalf("%s: unexpected items %+v", name, items)
		}
	}

	for _, payload := range []string{`{}`, `{"Errors":[]}`, `not json`, ``} {
		if items := n.Normalize([]byte(payload), models.AscSubtagConfig{}); items == nil || len(items) != 0 {
			t.Fatalf("expected empty non-nil slice for %q, got %#v", payload, items)
		}
	}
}
