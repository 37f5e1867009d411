package paapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/FlavioMalvestitiJunior/bf-offers/amazon-api/internal/config"
	"github.com/FlavioMalvestitiJunior/bf-offers/amazon-api/internal/signer"
)

// MockDoer records requests and answers through DoFunc.
type MockDoer struct {
	mu       sync.Mutex
	requests []*http.Request
	bodies   []string
	DoFunc   func(req *http.Request, call int) (*http.Response, error)
}

func (m *MockDoer) Do(req *http.Request) (*http.Response, error) {
	body, _ := io.ReadAll(req.Body)
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.bodies = append(m.bodies, string(body))
	call := len(m.requests)
	m.mu.Unlock()
	return m.DoFunc(req, call)
}

func (m *MockDoer) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func respond(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func testConfig() config.Amazon {
	return config.Amazon{
		AccessKey:      "AKIDEXAMPLE",
		SecretKey:      "wJalrXUtnFEMI/K7MDENG+bPxRfiCYEXAMPLEKEY",
		Region:         "us-east-1",
		PartnerTag:     "bfoffers-20",
		Host:           "webservices.amazon.com",
		StoreDomain:    "www.amazon.com",
		Marketplace:    "www.amazon.com",
		SubtagPrefix:   "glowbot_",
		RequestTimeout: time.Second,
	}
}

// newTestClient returns a client whose backoff waits are recorded instead of slept.
func newTestClient(t *testing.T, doer Doer, opts ...Option) (*Client, *[]time.Duration) {
	t.Helper()
	c, err := NewClient(testConfig(), doer, nil, opts...)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	var waits []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	return c, &waits
}

func equalDurations(a, b []time.Duration) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNewClientRequiresCredentials(t *testing.T) {
	cfg := testConfig()
	cfg.SecretKey = ""
	if _, err := NewClient(cfg, nil, nil); !errors.Is(err, signer.ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
}

func TestAlwaysRateLimitedMakesThreeAttempts(t *testing.T) {
	doer := &MockDoer{DoFunc: func(req *http.Request, call int) (*http.Response, error) {
		return respond(http.StatusTooManyRequests, `{"Errors":[{"Code":"TooManyRequests","Message":"slow down"}]}`), nil
	}}
	c, waits := newTestClient(t, doer)

	res := c.SearchItems(context.Background(), SearchParams{Keywords: "widget"})

	if res.Success {
		t.Fatal("expected failure")
	}
	if doer.calls() != 3 || res.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got calls=%d attempts=%d", doer.calls(), res.Attempts)
	}
	if want := []time.Duration{time.Second, 2 * time.Second}; !equalDurations(*waits, want) {
		t.Fatalf("expected waits %v, got %v", want, *waits)
	}
	if res.StatusCode != http.StatusTooManyRequests || !strings.Contains(res.Error, "429") {
		t.Fatalf("unexpected failure result: %+v", res)
	}
}

func TestAlwaysRateLimitedTakesAtLeastThreeSeconds(t *testing.T) {
	if testing.Short() {
		t.Skip("waits on the real backoff schedule")
	}
	doer := &MockDoer{DoFunc: func(req *http.Request, call int) (*http.Response, error) {
		return respond(http.StatusTooManyRequests, `{}`), nil
	}}
	c, err := NewClient(testConfig(), doer, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	start := time.Now()
	res := c.SearchItems(context.Background(), SearchParams{Keywords: "widget"})
	if elapsed := time.Since(start); elapsed < 3*time.Second {
		t.Fatalf("expected at least 3s of backoff, got %s", elapsed)
	}
	if res.Success || doer.calls() != 3 {
		t.Fatalf("expected 3 failed attempts, got %+v", res)
	}
}

func TestServerErrorsBackOffLinearly(t *testing.T) {
	doer := &MockDoer{DoFunc: func(req *http.Request, call int) (*http.Response, error) {
		return respond(http.StatusServiceUnavailable, `{"Errors":[{"Code":"InternalFailure","Message":"try later"}]}`), nil
	}}
	c, waits := newTestClient(t, doer)

	res := c.GetItems(context.Background(), GetItemsParams{ASINs: []string{"B000000001"}})

	if res.Success || doer.calls() != 3 {
		t.Fatalf("expected 3 failed attempts, got calls=%d %+v", doer.calls(), res)
	}
	if want := []time.Duration{time.Second, 2 * time.Second}; !equalDurations(*waits, want) {
		t.Fatalf("expected waits %v, got %v", want, *waits)
	}
	if res.Error != "InternalFailure: try later" {
		t.Fatalf("unexpected error %q", res.Error)
	}
}

func TestTransportErrorsAreRetried(t *testing.T) {
	doer := &MockDoer{DoFunc: func(req *http.Request, call int) (*http.Response, error) {
		if call < 3 {
			return nil, errors.New("connection reset by peer")
		}
		return respond(http.StatusOK, `{"SearchResult":{"Items":[]}}`), nil
	}}
	c, waits := newTestClient(t, doer)

	res := c.SearchItems(context.Background(), SearchParams{Keywords: "widget"})

	if !res.Success || res.Attempts != 3 {
		t.Fatalf("expected success on third attempt, got %+v", res)
	}
	if want := []time.Duration{time.Second, 2 * time.Second}; !equalDurations(*waits, want) {
		t.Fatalf("expected waits %v, got %v", want, *waits)
	}
}

func TestSuccessAfterRateLimit(t *testing.T) {
	doer := &MockDoer{DoFunc: func(req *http.Request, call int) (*http.Response, error) {
		if call == 1 {
			return respond(http.StatusTooManyRequests, `{}`), nil
		}
		return respond(http.StatusOK, `{"SearchResult":{"Items":[{"ASIN":"B000000001"}]}}`), nil
	}}
	c, waits := newTestClient(t, doer)

	res := c.SearchItems(context.Background(), SearchParams{Keywords: "widget"})

	if !res.Success || res.Attempts != 2 || res.StatusCode != http.StatusOK {
		t.Fatalf("unexpected result %+v", res)
	}
	if !strings.Contains(string(res.Data), "B000000001") {
		t.Fatalf("expected payload in result, got %s", res.Data)
	}
	if len(*waits) != 1 || (*waits)[0] != time.Second {
		t.Fatalf("expected one 1s wait, got %v", *waits)
	}
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	doer := &MockDoer{DoFunc: func(req *http.Request, call int) (*http.Response, error) {
		return respond(http.StatusBadRequest, `{"Errors":[{"Code":"InvalidParameterValue","Message":"bad ASIN"}]}`), nil
	}}
	c, waits := newTestClient(t, doer)

	res := c.GetVariations(context.Background(), "B000000001")

	if res.Success || doer.calls() != 1 || len(*waits) != 0 {
		t.Fatalf("expected a single failed attempt, got calls=%d waits=%v", doer.calls(), *waits)
	}
	if res.StatusCode != http.StatusBadRequest || res.Error != "InvalidParameterValue: bad ASIN" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestEveryAttemptIsSignedAgain(t *testing.T) {
	base := time.Date(2024, 11, 29, 12, 0, 0, 0, time.UTC)
	ticks := 0
	clock := func() time.Time {
		ticks++
		return base.Add(time.Duration(ticks) * time.Second)
	}
	doer := &MockDoer{DoFunc: func(req *http.Request, call int) (*http.Response, error) {
		return respond(http.StatusInternalServerError, `{}`), nil
	}}
	c, _ := newTestClient(t, doer, WithSignerOptions(signer.WithClock(clock)))

	c.SearchItems(context.Background(), SearchParams{Keywords: "widget"})

	seen := map[string]bool{}
	dates := map[string]bool{}
	for _, req := range doer.requests {
		seen[req.Header.Get("Authorization")] = true
		dates[req.Header.Get("X-Amz-Date")] = true
	}
	if len(seen) != 3 || len(dates) != 3 {
		t.Fatalf("expected 3 distinct signatures and dates, got %d and %d", len(seen), len(dates))
	}
}

func TestSearchRequestShape(t *testing.T) {
	doer := &MockDoer{DoFunc: func(req *http.Request, call int) (*http.Response, error) {
		return respond(http.StatusOK, `{}`), nil
	}}
	c, _ := newTestClient(t, doer)

	rating := 4.5
	c.SearchItems(context.Background(), SearchParams{
		Keywords:   " yoga mat ",
		Category:   "fitness",
		MinRating:  &rating,
		PrimeOnly:  true,
		SortBy:     "price_low",
		MaxResults: 5,
	})

	req := doer.requests[0]
	if req.Method != http.MethodPost || req.URL.String() != "https://webservices.amazon.com/paapi5/searchitems" {
		t.Fatalf("unexpected request line %s %s", req.Method, req.URL)
	}
	if req.Host != "webservices.amazon.com" {
		t.Fatalf("unexpected host %q", req.Host)
	}
	for header, want := range map[string]string{
		"X-Amz-Target":     "com.amazon.paapi5.v1.ProductAdvertisingAPIv1.SearchItems",
		"Content-Encoding": "amz-1.0",
		"Content-Type":     "application/json; charset=utf-8",
	} {
		if got := req.Header.Get(header); got != want {
			t.Fatalf("%s = %q, want %q", header, got, want)
		}
	}
	auth := req.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/") || !strings.Contains(auth, "/us-east-1/ProductAdvertisingAPI/aws4_request") {
		t.Fatalf("unexpected Authorization %q", auth)
	}

	var body map[string]interface{}
	if err := json.Unmarshal([]byte(doer.bodies[0]), &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	expect := map[string]interface{}{
		"PartnerTag":       "bfoffers-20",
		"PartnerType":      "Associates",
		"Marketplace":      "www.amazon.com",
		"Keywords":         "yoga mat",
		"SearchIndex":      "SportsAndOutdoors",
		"ItemCount":        float64(5),
		"SortBy":           "Price:LowToHigh",
		"MinReviewsRating": float64(4),
	}
	for k, want := range expect {
		if body[k] != want {
			t.Fatalf("body[%s] = %v, want %v", k, body[k], want)
		}
	}
	flags, _ := body["DeliveryFlags"].([]interface{})
	if len(flags) != 1 || flags[0] != "Prime" {
		t.Fatalf("expected Prime delivery flag, got %v", body["DeliveryFlags"])
	}
	resources, _ := body["Resources"].([]interface{})
	if len(resources) != len(searchResources) {
		t.Fatalf("expected %d resources, got %d", len(searchResources), len(resources))
	}
}

func TestGetItemsRequestShape(t *testing.T) {
	doer := &MockDoer{DoFunc: func(req *http.Request, call int) (*http.Response, error) {
		return respond(http.StatusOK, `{}`), nil
	}}
	c, _ := newTestClient(t, doer)

	c.GetItems(context.Background(), GetItemsParams{ASINs: []string{"B000000001", "B000000002"}})

	var body struct {
		ItemIds    []string
		ItemIdType string
		Resources  []string
	}
	if err := json.Unmarshal([]byte(doer.bodies[0]), &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if len(body.ItemIds) != 2 || body.ItemIdType != "ASIN" || len(body.Resources) != len(itemResources) {
		t.Fatalf("unexpected GetItems body %+v", body)
	}
	if doer.requests[0].Header.Get("X-Amz-Target") != "com.amazon.paapi5.v1.ProductAdvertisingAPIv1.GetItems" {
		t.Fatalf("unexpected target %q", doer.requests[0].Header.Get("X-Amz-Target"))
	}
}

func TestInvalidInputFailsWithoutCalls(t *testing.T) {
	doer := &MockDoer{DoFunc: func(req *http.Request, call int) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	}}
	c, _ := newTestClient(t, doer)
	ctx := context.Background()

	eleven := make([]string, 11)
	for i := range eleven {
		eleven[i] = "B000000001"
	}
	for name, res := range map[string]*Result{
		"empty keywords": c.SearchItems(ctx, SearchParams{Keywords: "  "}),
		"no asins":       c.GetItems(ctx, GetItemsParams{}),
		"too many asins": c.GetItems(ctx, GetItemsParams{ASINs: eleven}),
		"no parent":      c.GetVariations(ctx, ""),
	} {
		if res.Success || res.Error == "" {
			t.Fatalf("%s: expected failure result, got %+v", name, res)
		}
	}
}

func TestPerAttemptTimeoutCountsAsTransportFailure(t *testing.T) {
	doer := &MockDoer{DoFunc: func(req *http.Request, call int) (*http.Response, error) {
		<-req.Context().Done()
		return nil, req.Context().Err()
	}}
	c, waits := newTestClient(t, doer)
	c.timeout = 20 * time.Millisecond

	res := c.SearchItems(context.Background(), SearchParams{Keywords: "widget"})

	if res.Success || doer.calls() != 3 {
		t.Fatalf("expected 3 timed out attempts, got calls=%d %+v", doer.calls(), res)
	}
	if len(*waits) != 2 {
		t.Fatalf("expected 2 waits, got %v", *waits)
	}
	if !strings.Contains(res.Error, "deadline exceeded") {
		t.Fatalf("expected deadline error, got %q", res.Error)
	}
}

func TestCancelledContextStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	doer := &MockDoer{DoFunc: func(req *http.Request, call int) (*http.Response, error) {
		cancel()
		return respond(http.StatusServiceUnavailable, `{}`), nil
	}}
	c, _ := newTestClient(t, doer)

	res := c.SearchItems(ctx, SearchParams{Keywords: "widget"})

	if res.Success || doer.calls() != 1 {
		t.Fatalf("expected to stop after the first attempt, got calls=%d", doer.calls())
	}
	if !strings.Contains(res.Error, "cancelled") {
		t.Fatalf("unexpected error %q", res.Error)
	}
}

func TestAgainstTLSServer(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/paapi5/getvariations" || !strings.HasPrefix(r.Header.Get("Authorization"), "AWS4-HMAC-SHA256 ") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"VariationsResult":{"Items":[{"ASIN":"B000000002"}]}}`))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Host = srv.Listener.Addr().String()
	c, err := NewClient(cfg, srv.Client(), nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	res := c.GetVariations(context.Background(), "B000000001")
	if !res.Success || !strings.Contains(string(res.Data), "B000000002") {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRetryPolicyDelays(t *testing.T) {
	p := DefaultRetryPolicy()
	for attempt, want := range map[int]time.Duration{
		1: time.Second,
		2: 2 * time.Second,
		3: 4 * time.Second,
		4: 5 * time.Second,
		9: 5 * time.Second,
	} {
		if got := p.RateLimitDelay(attempt); got != want {
			t.Fatalf("RateLimitDelay(%d) = %s, want %s", attempt, got, want)
		}
	}
	if got := p.ServerErrorDelay(3); got != 3*time.Second {
		t.Fatalf("ServerErrorDelay(3) = %s", got)
	}
}

func TestMapCategory(t *testing.T) {
	for in, want := range map[string]string{
		"beauty":  "Beauty",
		"Tech":    "Electronics",
		"fitness": "SportsAndOutdoors",
		"":        "All",
		"unicorn": "All",
	} {
		if got := MapCategory(in); got != want {
			t.Fatalf("MapCategory(%q) = %q, want %q", in, got, want)
		}
	}
	if ClampItemCount(0) != 10 || ClampItemCount(25) != 10 || ClampItemCount(3) != 3 {
		t.Fatal("item count not clamped to 1..10")
	}
}
