package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/complyco/entity-screening-backend/internal/domain/errors"
)

const (
	userAgent = "entity-screening/1.0"

	// maxRetryAfter caps how long an adapter will honor a 429 Retry-After
	// before giving up. Kept well under the breaker's call timeout so a
	// rate-limited provider degrades to a retryable error instead of a
	// breaker failure storm.
	maxRetryAfter = 5 * time.Second
)

// bureauHTTP is the transport shared by the bureau adapters: rate-limited,
// bearer-authenticated JSON calls with one bounded wait-and-retry on 429
// so backpressure from the source does not spuriously trip the circuit
// breaker.
type bureauHTTP struct {
	name    string
	cfg     BureauConfig
	client  *http.Client
	limiter *rate.Limiter
}

func newBureauHTTP(name string, cfg BureauConfig) *bureauHTTP {
	rps := cfg.RateLimitRPS
	if rps <= 0 {
		rps = 10
	}
	return &bureauHTTP{
		name: name,
		cfg:  cfg,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(rps), rps*2),
	}
}

// getJSON fetches path and decodes the response body into out. The
// context owns the overall deadline; the circuit breaker sets it.
func (b *bureauHTTP) getJSON(ctx context.Context, path string, out interface{}) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return errors.NewUpstreamError(b.name, "rate limiter wait aborted").WithCause(err)
	}

	body, err := b.do(ctx, path, true)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.NewUpstreamError(b.name, "malformed response body").WithCause(err)
	}
	return nil
}

// do performs one request, retrying a single time after a 429 if the
// Retry-After fits the budget.
func (b *bureauHTTP) do(ctx context.Context, path string, allowRetry bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.cfg.Endpoint()+path, nil)
	if err != nil {
		return nil, errors.NewInternalError("building bureau request").WithCause(err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, errors.NewUpstreamError(b.name, "request failed").WithCause(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, errors.NewUpstreamError(b.name, "reading response body").WithCause(err)
		}
		return body, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		if !allowRetry {
			return nil, errors.NewRateLimitError(b.name)
		}
		wait := retryAfter(resp)
		if wait > maxRetryAfter {
			return nil, errors.NewRateLimitError(b.name)
		}
		select {
		case <-ctx.Done():
			return nil, errors.NewUpstreamError(b.name, "canceled while honoring Retry-After").WithCause(ctx.Err())
		case <-time.After(wait):
		}
		return b.do(ctx, path, false)

	case resp.StatusCode >= 500:
		return nil, errors.NewUpstreamError(b.name, fmt.Sprintf("status %d", resp.StatusCode))

	default:
		return nil, errors.NewUpstreamError(b.name, fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Second
}
