package markov

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/balungpisah/gotong-royong-core/internal/circuitbreaker"
	"github.com/balungpisah/gotong-royong-core/internal/config"
)

// HTTPClient is the minimal surface Client needs from *http.Client,
// narrowed for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client performs the upstream HTTP fetch behind the cache, applying
// §4.5's retry-with-backoff and the process-wide circuit breaker.
type Client struct {
	http    HTTPClient
	cfg     config.MarkovConfig
	breaker *circuitbreaker.CircuitBreaker
}

func NewClient(httpClient HTTPClient, cfg config.MarkovConfig, breaker *circuitbreaker.CircuitBreaker) *Client {
	if breaker == nil {
		breaker = circuitbreaker.New(circuitbreaker.MarkovProfile(
			uint32(cfg.CircuitFailThreshold), cfg.CircuitOpenDuration(),
		))
	}
	return &Client{http: httpClient, cfg: cfg, breaker: breaker}
}

// Fetch performs the origin call for req, retrying transient failures
// and respecting the circuit breaker. Returns the raw decoded JSON
// payload as map[string]interface{}.
func (c *Client) Fetch(ctx context.Context, req Request) (interface{}, error) {
	if c.cfg.BaseURL == "" || c.cfg.PlatformToken == "" {
		return nil, newError(ErrConfiguration, "markov base_url/platform_token not configured", nil)
	}

	maxAttempts := c.cfg.RetryMaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := backoffMs(int64(c.cfg.RetryBaseMs), attempt, int64(c.cfg.RetryMaxBackoffMs))
			select {
			case <-ctx.Done():
				return nil, newError(ErrTransport, "context cancelled during retry backoff", ctx.Err())
			case <-time.After(time.Duration(backoff) * time.Millisecond):
			}
		}

		// The breaker must only score transient (infrastructure) failures
		// against the trip threshold; a 4xx is a caller-visible error but
		// "closes" the circuit per §4.5, so it is surfaced to the closure
		// as success=nil-error from the breaker's perspective and the real
		// domain error is recovered from callErr afterwards.
		var callErr error
		result, breakerErr := c.breaker.ExecuteContext(ctx, func(ctx context.Context) (interface{}, error) {
			res, err := c.doOnce(ctx, req)
			if err == nil {
				return res, nil
			}
			var domainErr *Error
			if asMarkovError(err, &domainErr) && !isRetryable(domainErr.Code) {
				callErr = err
				return nil, nil // non-transient: don't trip the breaker
			}
			return nil, err // transient: let the breaker count it as a failure
		})

		if breakerErr == circuitbreaker.ErrCircuitOpen || breakerErr == circuitbreaker.ErrTooManyRequests {
			return nil, newError(ErrCircuitOpen, "circuit breaker open", breakerErr)
		}
		if callErr != nil {
			return nil, callErr
		}
		if breakerErr == nil {
			return result, nil
		}
		lastErr = breakerErr
	}
	return nil, lastErr
}

func isRetryable(code ErrorCode) bool {
	return code == ErrTransport || code == ErrUpstream
}

func asMarkovError(err error, target **Error) bool {
	e, ok := err.(*Error)
	if ok {
		*target = e
	}
	return ok
}

// backoffMs mirrors job.BackoffMs's shape but is attempt-indexed from 0
// (not attempt-1) per §4.5: "Backoff = min(base * 2^attempt, max_backoff)".
func backoffMs(base int64, attempt int, max int64) int64 {
	if attempt <= 0 {
		return 0
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

func (c *Client) doOnce(ctx context.Context, req Request) (interface{}, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil, newError(ErrConfiguration, "invalid base_url", err)
	}
	u.Path = u.Path + req.ResolvedPath()

	q := u.Query()
	for k, v := range req.Query {
		q.Set(k, v)
	}
	if c.cfg.ExplicitScopeQuery {
		q.Set("view_scope", "platform")
		q.Set("platform_id", c.cfg.PlatformID)
	}
	u.RawQuery = q.Encode()

	timeout := c.cfg.RequestTimeout()
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, newError(ErrConfiguration, "failed building request", err)
	}
	httpReq.Header.Set("X-Platform-Token", c.cfg.PlatformToken)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, newError(ErrTransport, "transport error", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newError(ErrTransport, "failed reading response body", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var out interface{}
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, newError(ErrInvalidResponse, "failed decoding json response", err)
		}
		return out, nil
	case resp.StatusCode == http.StatusBadRequest:
		return nil, newError(ErrBadRequest, "upstream rejected request", nil)
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, newError(ErrUnauthorized, "upstream rejected credentials", nil)
	case resp.StatusCode == http.StatusForbidden:
		return nil, newError(ErrForbidden, "upstream denied access", nil)
	case resp.StatusCode == http.StatusNotFound:
		return nil, newError(ErrNotFound, "upstream resource not found", nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, newError(ErrUpstream, fmt.Sprintf("upstream rate limited (status %d)", resp.StatusCode), nil)
	case resp.StatusCode >= 500:
		return nil, newError(ErrUpstream, fmt.Sprintf("upstream server error (status %d)", resp.StatusCode), nil)
	default:
		return nil, newError(ErrInvalidResponse, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}
}
