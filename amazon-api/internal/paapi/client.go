// Package paapi talks to the Amazon Product Advertising API 5.0.
package paapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/FlavioMalvestitiJunior/bf-offers/amazon-api/internal/config"
	"github.com/FlavioMalvestitiJunior/bf-offers/amazon-api/internal/metrics"
	"github.com/FlavioMalvestitiJunior/bf-offers/amazon-api/internal/signer"
	"github.com/tidwall/gjson"
)

// ServiceName is the SigV4 service of PA-API.
const ServiceName = "ProductAdvertisingAPI"

const (
	defaultTimeout  = 8 * time.Second
	maxResponseSize = 10 << 20
)

// Doer sends HTTP requests; *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Result is the uniform outcome of every operation. Expected failures (throttling,
// server errors, bad input) are reported here and never as Go errors.
type Result struct {
	Success    bool
	Data       json.RawMessage
	Error      string
	StatusCode int
	Attempts   int
	Duration   time.Duration
}

// Client signs and sends PA-API operations with bounded retries.
type Client struct {
	signer      *signer.Signer
	http        Doer
	host        string
	partnerTag  string
	marketplace string
	timeout     time.Duration
	retry       RetryPolicy
	sleep       func(ctx context.Context, d time.Duration) error
	metrics     *metrics.Registry
	signerOpts  []signer.Option
}

// Option customizes a Client.
type Option func(*Client)

// WithRetryPolicy overrides DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithSignerOptions is passed through to signer.New.
func WithSignerOptions(opts ...signer.Option) Option {
	return func(c *Client) { c.signerOpts = append(c.signerOpts, opts...) }
}

// NewClient builds a client from validated configuration. A nil httpClient uses a
// plain *http.Client; attempts are bounded by cfg.RequestTimeout instead.
func NewClient(cfg config.Amazon, httpClient Doer, m *metrics.Registry, opts ...Option) (*Client, error) {
	c := &Client{
		http:        httpClient,
		host:        cfg.Host,
		partnerTag:  cfg.PartnerTag,
		marketplace: cfg.Marketplace,
		timeout:     cfg.RequestTimeout,
		retry:       DefaultRetryPolicy(),
		sleep:       sleepContext,
		metrics:     m,
	}
	for _, opt := range opts {
		opt(c)
	}

	s, err := signer.New(cfg.AccessKey, cfg.SecretKey, cfg.Region, ServiceName, c.signerOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create signer: %w", err)
	}
	c.signer = s

	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.host == "" {
		c.host = "webservices.amazon.com"
	}
	if c.retry.MaxAttempts < 1 {
		c.retry.MaxAttempts = 1
	}
	return c, nil
}

// SearchItems runs a keyword search.
func (c *Client) SearchItems(ctx context.Context, p SearchParams) *Result {
	if strings.TrimSpace(p.Keywords) == "" {
		return &Result{Error: "keywords are required"}
	}
	return c.call(ctx, "SearchItems", c.buildSearch(p))
}

// GetItems fetches full records for 1 to MaxItemCount ASINs.
func (c *Client) GetItems(ctx context.Context, p GetItemsParams) *Result {
	if len(p.ASINs) == 0 || len(p.ASINs) > MaxItemCount {
		return &Result{Error: fmt.Sprintf("between 1 and %d ASINs are required", MaxItemCount)}
	}
	return c.call(ctx, "GetItems", c.buildGetItems(p))
}

// GetVariations fetches the child SKUs of a parent ASIN.
func (c *Client) GetVariations(ctx context.Context, parentASIN string) *Result {
	if strings.TrimSpace(parentASIN) == "" {
		return &Result{Error: "parent ASIN is required"}
	}
	return c.call(ctx, "GetVariations", c.buildGetVariations(parentASIN))
}

type attemptError struct {
	status  int
	message string
}

func (c *Client) call(ctx context.Context, operation string, payload interface{}) *Result {
	start := time.Now()
	result := &Result{}
	defer func() {
		result.Duration = time.Since(start)
		c.metrics.ObserveUpstream(operation, result.Duration)
		log.Printf("PA-API %s finished: success=%t attempts=%d duration=%s", operation, result.Success, result.Attempts, result.Duration)
	}()

	body, err := json.Marshal(payload)
	if err != nil {
		result.Error = fmt.Sprintf("failed to marshal request: %v", err)
		return result
	}
	endpoint := "https://" + c.host + "/paapi5/" + strings.ToLower(operation)

	var last attemptError
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		result.Attempts = attempt
		attemptStart := time.Now()
		status, data, err := c.attempt(ctx, endpoint, body)
		elapsed := time.Since(attemptStart)

		var wait time.Duration
		switch {
		case err != nil:
			if ctx.Err() != nil {
				c.metrics.ObserveAttempt(operation, "cancelled")
				result.Error = fmt.Sprintf("request cancelled: %v", ctx.Err())
				return result
			}
			c.metrics.ObserveAttempt(operation, "transport_error")
			last = attemptError{message: fmt.Sprintf("request failed: %v", err)}
			wait = c.retry.ServerErrorDelay(attempt)
			log.Printf("PA-API %s attempt %d/%d failed after %s: %v", operation, attempt, c.retry.MaxAttempts, elapsed, err)

		case status == http.StatusTooManyRequests:
			c.metrics.ObserveAttempt(operation, "rate_limited")
			last = attemptError{status: status, message: "rate limited by Amazon (HTTP 429)"}
			wait = c.retry.RateLimitDelay(attempt)
			log.Printf("PA-API %s attempt %d/%d: status=%d duration=%s", operation, attempt, c.retry.MaxAttempts, status, elapsed)

		case status >= http.StatusInternalServerError:
			c.metrics.ObserveAttempt(operation, "server_error")
			last = attemptError{status: status, message: upstreamMessage(data, status)}
			wait = c.retry.ServerErrorDelay(attempt)
			log.Printf("PA-API %s attempt %d/%d: status=%d duration=%s", operation, attempt, c.retry.MaxAttempts, status, elapsed)

		case status >= http.StatusBadRequest:
			c.metrics.ObserveAttempt(operation, "client_error")
			log.Printf("PA-API %s attempt %d/%d: status=%d duration=%s (not retried)", operation, attempt, c.retry.MaxAttempts, status, elapsed)
			result.StatusCode = status
			result.Error = upstreamMessage(data, status)
			return result

		default:
			c.metrics.ObserveAttempt(operation, "ok")
			log.Printf("PA-API %s attempt %d/%d: status=%d duration=%s", operation, attempt, c.retry.MaxAttempts, status, elapsed)
			result.Success = true
			result.StatusCode = status
			result.Data = json.RawMessage(data)
			return result
		}

		if attempt == c.retry.MaxAttempts {
			break
		}
		log.Printf("PA-API %s retrying in %s", operation, wait)
		if err := c.sleep(ctx, wait); err != nil {
			result.Error = fmt.Sprintf("request cancelled: %v", err)
			result.StatusCode = last.status
			return result
		}
	}

	result.StatusCode = last.status
	result.Error = last.message
	return result
}

// attempt signs and sends one request. The signature is derived fresh every time so
// x-amz-date always matches the moment the request leaves.
func (c *Client) attempt(ctx context.Context, endpoint string, body []byte) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	signed, err := c.signer.SignRequest(http.MethodPost, endpoint, map[string]string{
		"content-encoding": "amz-1.0",
	}, string(body))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to sign request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, signed.URL, strings.NewReader(signed.Body))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range signed.Headers {
		if strings.EqualFold(k, "host") {
			req.Host = v
			continue
		}
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, data, nil
}

// upstreamMessage pulls the first PA-API error message out of an error body.
func upstreamMessage(data []byte, status int) string {
	if msg := gjson.GetBytes(data, "Errors.0.Message").String(); msg != "" {
		if code := gjson.GetBytes(data, "Errors.0.Code").String(); code != "" {
			return fmt.Sprintf("%s: %s", code, msg)
		}
		return msg
	}
	return fmt.Sprintf("Amazon API error (HTTP %d)", status)
}
