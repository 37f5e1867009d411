// Package signer implements AWS Signature Version 4 for PA-API requests.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	algorithm   = "AWS4-HMAC-SHA256"
	requestType = "aws4_request"

	// TimeFormat is the compact ISO-8601 form used by x-amz-date.
	TimeFormat = "20060102T150405Z"

	targetPrefix = "com.amazon.paapi5.v1.ProductAdvertisingAPIv1."
	contentType  = "application/json; charset=utf-8"
)

// ErrMissingCredentials is returned by New when the access or secret key is empty.
var ErrMissingCredentials = errors.New("signer: access key and secret key are required")

// operations maps PA-API paths to their x-amz-target operation name.
var operations = map[string]string{
	"/paapi5/searchitems":    "SearchItems",
	"/paapi5/getitems":       "GetItems",
	"/paapi5/getvariations":  "GetVariations",
	"/paapi5/getbrowsenodes": "GetBrowseNodes",
}

// SignedRequest is the request as it must go on the wire.
type SignedRequest struct {
	URL     string
	Headers map[string]string
	Body    string
}

type Signer struct {
	accessKey string
	secretKey string
	region    string
	service   string
	now       func() time.Time

	mu      sync.Mutex
	keyDate string
	key     []byte
}

// Option customizes a Signer.
type Option func(*Signer)

// WithClock replaces the wall clock used for x-amz-date.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) { s.now = now }
}

// New creates a Signer for one region/service pair.
func New(accessKey, secretKey, region, service string, opts ...Option) (*Signer, error) {
	if strings.TrimSpace(accessKey) == "" || strings.TrimSpace(secretKey) == "" {
		return nil, ErrMissingCredentials
	}
	if region == "" || service == "" {
		return nil, fmt.Errorf("signer: region and service are required")
	}
	s := &Signer{
		accessKey: accessKey,
		secretKey: secretKey,
		region:    region,
		service:   service,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SignRequest fills in host, x-amz-date, x-amz-target and content-type when the caller
// did not supply them, then adds the Authorization header. The timestamp is read from
// the clock on every call, so a retried request must be signed again.
func (s *Signer) SignRequest(method, rawURL string, headers map[string]string, body string) (*SignedRequest, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse url: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("signer: url %q has no host", rawURL)
	}

	out := mergeHeaders(headers)
	if !hasHeader(out, "x-amz-target") {
		if op, ok := operations[strings.ToLower(u.Path)]; ok {
			out["x-amz-target"] = targetPrefix + op
		}
	}
	if !hasHeader(out, "content-type") {
		out["content-type"] = contentType
	}

	return s.sign(method, u, out, body, s.now().UTC())
}

// sign signs exactly the given headers plus host and x-amz-date.
func (s *Signer) sign(method string, u *url.URL, headers map[string]string, body string, t time.Time) (*SignedRequest, error) {
	if !hasHeader(headers, "host") {
		headers["host"] = u.Host
	}
	amzDate := t.Format(TimeFormat)
	if !hasHeader(headers, "x-amz-date") {
		headers["x-amz-date"] = amzDate
	} else {
		amzDate = headerValue(headers, "x-amz-date")
		if _, err := time.Parse(TimeFormat, amzDate); err != nil {
			return nil, fmt.Errorf("signer: invalid x-amz-date %q", amzDate)
		}
	}
	date := amzDate[:8]

	canonicalHeaders, signedHeaders := canonicalizeHeaders(headers)
	canonicalRequest := strings.Join([]string{
		strings.ToUpper(method),
		canonicalURI(u),
		strings.TrimPrefix(u.RawQuery, "?"),
		canonicalHeaders,
		signedHeaders,
		hashHex(body),
	}, "\n")

	scope := strings.Join([]string{date, s.region, s.service, requestType}, "/")
	stringToSign := strings.Join([]string{
		algorithm,
		amzDate,
		scope,
		hashHex(canonicalRequest),
	}, "\n")

	signature := hex.EncodeToString(hmacSHA256(s.signingKey(date), stringToSign))

	headers["Authorization"] = fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		algorithm, s.accessKey, scope, signedHeaders, signature)

	return &SignedRequest{URL: u.String(), Headers: headers, Body: body}, nil
}

// signingKey derives HMAC(HMAC(HMAC(HMAC("AWS4"+secret, date), region), service), "aws4_request").
// The key only changes with the date, so the last one is kept.
func (s *Signer) signingKey(date string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keyDate == date && s.key != nil {
		return s.key
	}
	k := hmacSHA256([]byte("AWS4"+s.secretKey), date)
	k = hmacSHA256(k, s.region)
	k = hmacSHA256(k, s.service)
	k = hmacSHA256(k, requestType)
	s.keyDate, s.key = date, k
	return k
}

// mergeHeaders copies headers so that every name appears once. Names that differ only
// in case keep the spelling that sorts first and their values are comma-joined in the
// same order. Any caller Authorization header is dropped.
func mergeHeaders(headers map[string]string) map[string]string {
	keys := sortedKeys(headers)
	out := make(map[string]string, len(headers)+5)
	first := make(map[string]string, len(headers))
	for _, k := range keys {
		name := strings.ToLower(strings.TrimSpace(k))
		if name == "authorization" {
			continue
		}
		if orig, dup := first[name]; dup {
			out[orig] += "," + headers[k]
			continue
		}
		first[name] = k
		out[k] = headers[k]
	}
	return out
}

func canonicalizeHeaders(headers map[string]string) (string, string) {
	values := make(map[string]string, len(headers))
	names := make([]string, 0, len(headers))
	for _, k := range sortedKeys(headers) {
		name := strings.ToLower(strings.TrimSpace(k))
		if name == "authorization" {
			continue
		}
		v := strings.Join(strings.Fields(headers[k]), " ")
		if prev, dup := values[name]; dup {
			values[name] = prev + "," + v
			continue
		}
		names = append(names, name)
		values[name] = v
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(values[name])
		b.WriteByte('\n')
	}
	return b.String(), strings.Join(names, ";")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func canonicalURI(u *url.URL) string {
	p := u.EscapedPath()
	if p == "" {
		return "/"
	}
	return p
}

func hasHeader(headers map[string]string, name string) bool {
	for k := range headers {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func hmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}
