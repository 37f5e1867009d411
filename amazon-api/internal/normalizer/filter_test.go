package normalizer

import (
	"testing"

	"github.com/FlavioMalvestitiJunior/bf-offers/amazon-api/internal/models"
)

func ptr[T any](v T) *T { return &v }

func sampleItems() []models.NormalizedItem {
	return []models.NormalizedItem{
		{ASIN: "A1", Rating: ptr(4.5), ReviewCount: ptr(120), IsPrime: ptr(true), Price: ptr("$29.99")},
		{ASIN: "A2", Rating: ptr(3.0), ReviewCount: ptr(50), IsPrime: ptr(false), Price: ptr("$9.50")},
		{ASIN: "A3", Rating: nil, ReviewCount: nil, IsPrime: ptr(true), Price: ptr("$1,299.00")},
		{ASIN: "A4", Rating: ptr(4.0), ReviewCount: ptr(8), IsPrime: nil, Price: ptr("Currently unavailable")},
		{ASIN: "A5", Rating: ptr(4.9), ReviewCount: ptr(3000), IsPrime: ptr(true), Price: nil},
	}
}

func asins(items []models.NormalizedItem) []string {
	out := make([]string, 0, len(items))
	for _, i := range items {
		out = append(out, i.ASIN)
	}
	return out
}

func sameASINs(a []models.NormalizedItem, want ...string) bool {
	got := asins(a)
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestFilterItems(t *testing.T) {
	items := sampleItems()
	cases := []struct {
		name    string
		filters Filters
		want    []string
	}{
		{"no filters", Filters{}, []string{"A1", "A2", "A3", "A4", "A5"}},
		{"min rating", Filters{MinRating: ptr(4.0)}, []string{"A1", "A4", "A5"}},
		{"min reviews", Filters{MinReviews: ptr(100)}, []string{"A1", "A5"}},
		{"prime only", Filters{PrimeOnly: true}, []string{"A1", "A3", "A5"}},
		{"min price", Filters{MinPrice: ptr(10.0)}, []string{"A1", "A3"}},
		{"max price", Filters{MaxPrice: ptr(30.0)}, []string{"A1", "A2"}},
		{"price range", Filters{MinPrice: ptr(10.0), MaxPrice: ptr(100.0)}, []string{"A1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FilterItems(items, tc.filters); !sameASINs(got, tc.want...) {
				t.Fatalf("expected %v, got %v", tc.want, asins(got))
			}
		})
	}
}

func TestFilterCompositionIsIntersection(t *testing.T) {
	items := sampleItems()
	singles := []Filters{
		{MinRating: ptr(4.0)},
		{MinReviews: ptr(5)},
		{PrimeOnly: true},
	}
	combined := FilterItems(items, Filters{MinRating: ptr(4.0), MinReviews: ptr(5), PrimeOnly: true})

	for _, item := range items {
		inAll := true
		for _, f := range singles {
			if !f.Match(item) {
				inAll = false
			}
		}
		inCombined := false
		for _, c := range combined {
			if c.ASIN == item.ASIN {
				inCombined = true
			}
		}
		if inAll != inCombined {
			t.Fatalf("%s: intersection=%t combined=%t", item.ASIN, inAll, inCombined)
		}
	}
}

func TestParsePrice(t *testing.T) {
	cases := map[string]float64{
		"$29.99":    29.99,
		"$1,299.00": 1299,
		"12.5 EUR":  12.5,
		"From $7":   7,
		"$10 - $20": 10,
		"US$ 0.99 ": 0.99,
	}
	for in, want := range cases {
		got, ok := ParsePrice(in)
		if !ok || got != want {
			t.Fatalf("ParsePrice(%q) = %v, %t; want %v", in, got, ok, want)
		}
	}
	if _, ok := ParsePrice("Currently unavailable"); ok {
		t.Fatal("expected no price")
	}
}
