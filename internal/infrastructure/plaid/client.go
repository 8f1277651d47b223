package plaid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"linkproxy/internal/shared/logger"
)

const (
	DefaultBaseURL = "https://sandbox.plaid.com"
	DefaultTimeout = 10 * time.Second

	linkTokenCreatePath     = "/link/token/create"
	publicTokenExchangePath = "/item/public_token/exchange"
	transactionsGetPath     = "/transactions/get"

	// maxResponseBytes bounds how much of an upstream body is buffered.
	maxResponseBytes = 16 << 20

	redacted = "[REDACTED]"
)

// Client handles communication with the upstream aggregation API. It is safe
// for concurrent use; the only shared state is the pooled http.Client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	creds      Credentials
	metrics    *Metrics
	log        zerolog.Logger
}

// Ensure Client implements API
var _ API = (*Client)(nil)

// Config configures a Client.
type Config struct {
	BaseURL     string
	Credentials Credentials

	// Timeout bounds each outbound call, including reading the body.
	Timeout time.Duration

	// Transport overrides the base transport. It is still wrapped with
	// otelhttp so outbound calls carry trace context.
	Transport http.RoundTripper

	// Metrics is optional.
	Metrics *Metrics
}

// NewClient creates a new upstream API client.
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	base := cfg.Transport
	if base == nil {
		base = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			ForceAttemptHTTP2:   true,
		}
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(base),
		},
		baseURL: baseURL,
		creds:   cfg.Credentials,
		metrics: cfg.Metrics,
		log:     logger.For("plaid"),
	}
}

// CreateLinkToken calls POST /link/token/create. The same endpoint serves
// both new-account linking and update mode; the request shape decides.
func (c *Client) CreateLinkToken(ctx context.Context, req *LinkTokenCreateRequest) (*Result, error) {
	return c.post(ctx, linkTokenCreatePath, req)
}

// ExchangePublicToken calls POST /item/public_token/exchange.
func (c *Client) ExchangePublicToken(ctx context.Context, req *PublicTokenExchangeRequest) (*Result, error) {
	return c.post(ctx, publicTokenExchangePath, req)
}

// GetTransactions calls POST /transactions/get.
func (c *Client) GetTransactions(ctx context.Context, req *TransactionsGetRequest) (*Result, error) {
	return c.post(ctx, transactionsGetPath, req)
}

// post injects credentials, sends the request and classifies the outcome:
// a 2xx yields a Result, a non-2xx an *UpstreamError, anything else a
// *TransportError. It never retries.
func (c *Client) post(ctx context.Context, path string, body authenticated) (*Result, error) {
	start := time.Now()

	body.setCredentials(c.creds)
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, c.transportFailure(path, start, fmt.Errorf("failed to encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, c.transportFailure(path, start, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportFailure(path, start, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, c.transportFailure(path, start, fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		upErr := &UpstreamError{
			Endpoint:   path,
			StatusCode: resp.StatusCode,
			Body:       c.scrub(raw),
		}
		upErr.ErrorCode, upErr.RequestID, upErr.ParseErr = parseErrorEnvelope(upErr.Body)

		c.metrics.observe(path, outcomeUpstreamError, time.Since(start))
		c.log.Warn().
			Str("endpoint", path).
			Int("status", resp.StatusCode).
			Str("error_code", upErr.ErrorCode).
			Str("upstream_request_id", upErr.RequestID).
			Msg("upstream returned error")
		return nil, upErr
	}

	c.metrics.observe(path, outcomeSuccess, time.Since(start))
	c.log.Debug().
		Str("endpoint", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("upstream call succeeded")

	return &Result{StatusCode: resp.StatusCode, Body: raw}, nil
}

func (c *Client) transportFailure(path string, start time.Time, err error) error {
	err = &TransportError{Endpoint: path, Err: err, message: c.scrubString(err.Error())}
	c.metrics.observe(path, outcomeTransportError, time.Since(start))
	c.log.Warn().Str("endpoint", path).Err(err).Msg("upstream call failed")
	return err
}

// parseErrorEnvelope extracts error_code and request_id from an upstream
// error body. The body must be a JSON object and error_code, when present,
// a string or null; anything else is reported as a parse error.
func parseErrorEnvelope(body []byte) (code, requestID string, err error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return "", "", fmt.Errorf("failed to parse error body: %w", err)
	}
	if fields == nil {
		return "", "", errors.New("failed to parse error body: not a JSON object")
	}

	if rawCode, ok := fields["error_code"]; ok {
		var s *string
		if err := json.Unmarshal(rawCode, &s); err != nil {
			return "", "", fmt.Errorf("failed to parse error_code: %w", err)
		}
		if s != nil {
			code = *s
		}
	}
	if rawID, ok := fields["request_id"]; ok {
		_ = json.Unmarshal(rawID, &requestID)
	}
	return code, requestID, nil
}

// scrub replaces any occurrence of the credentials in an upstream error body.
// Successful bodies are passed through untouched.
func (c *Client) scrub(b []byte) []byte {
	for _, secret := range []string{c.creds.Secret, c.creds.ClientID} {
		if secret != "" && bytes.Contains(b, []byte(secret)) {
			b = bytes.ReplaceAll(b, []byte(secret), []byte(redacted))
		}
	}
	return b
}

func (c *Client) scrubString(s string) string {
	for _, secret := range []string{c.creds.Secret, c.creds.ClientID} {
		if secret != "" {
			s = strings.ReplaceAll(s, secret, redacted)
		}
	}
	return s
}

// Result is a successful (2xx) upstream response.
type Result struct {
	StatusCode int
	Body       []byte
}

// Decode unmarshals the response body into v.
func (r *Result) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode upstream response: %w", err)
	}
	return nil
}
