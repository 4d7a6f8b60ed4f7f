package markov

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/balungpisah/gotong-royong-core/internal/circuitbreaker"
	"github.com/balungpisah/gotong-royong-core/internal/config"
)

type fakeHTTPClient struct {
	calls    int32
	respond  func(call int32) (*http.Response, error)
}

func (f *fakeHTTPClient) Do(_ *http.Request) (*http.Response, error) {
	n := atomic.AddInt32(&f.calls, 1)
	return f.respond(n)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewBufferString(body))}
}

func baseClientConfig() config.MarkovConfig {
	return config.MarkovConfig{
		BaseURL: "http://origin.example", PlatformToken: "tok",
		RetryMaxAttempts: 3, RetryBaseMs: 1, RetryMaxBackoffMs: 5,
		RequestTimeoutSec: 1, CircuitFailThreshold: 3, CircuitOpenSec: 1,
	}
}

func TestFetchSucceedsOnFirstAttempt(t *testing.T) {
	hc := &fakeHTTPClient{respond: func(_ int32) (*http.Response, error) {
		return jsonResponse(200, `{"ok":true}`), nil
	}}
	client := NewClient(hc, baseClientConfig(), nil)
	v, err := client.Fetch(context.Background(), Request{Path: "/p"})
	require.NoError(t, err)
	require.NotNil(t, v)
	require.Equal(t, int32(1), hc.calls)
}

func TestFetchRetriesOn5xxThenSucceeds(t *testing.T) {
	hc := &fakeHTTPClient{respond: func(n int32) (*http.Response, error) {
		if n < 3 {
			return jsonResponse(503, `{}`), nil
		}
		return jsonResponse(200, `{"ok":true}`), nil
	}}
	client := NewClient(hc, baseClientConfig(), nil)
	_, err := client.Fetch(context.Background(), Request{Path: "/p"})
	require.NoError(t, err)
	require.Equal(t, int32(3), hc.calls)
}

func TestFetchDoesNotRetryOn4xx(t *testing.T) {
	hc := &fakeHTTPClient{respond: func(_ int32) (*http.Response, error) {
		return jsonResponse(404, `{}`), nil
	}}
	client := NewClient(hc, baseClientConfig(), nil)
	_, err := client.Fetch(context.Background(), Request{Path: "/p"})
	require.Error(t, err)
	var merr *Error
	require.ErrorAs(t, err, &merr)
	require.Equal(t, ErrNotFound, merr.Code)
	require.Equal(t, int32(1), hc.calls, "4xx must not be retried")
}

func TestS7CircuitOpensAfterConsecutiveFailuresThenFailsFast(t *testing.T) {
	hc := &fakeHTTPClient{respond: func(_ int32) (*http.Response, error) {
		return jsonResponse(503, `{}`), nil
	}}
	cfg := baseClientConfig()
	cfg.RetryMaxAttempts = 1 // isolate breaker accounting from in-request retries
	cfg.CircuitFailThreshold = 2
	cfg.CircuitOpenSec = 60
	breaker := circuitbreaker.New(circuitbreaker.MarkovProfile(uint32(cfg.CircuitFailThreshold), cfg.CircuitOpenDuration()))
	client := NewClient(hc, cfg, breaker)

	_, err1 := client.Fetch(context.Background(), Request{Path: "/p"})
	require.Error(t, err1)
	_, err2 := client.Fetch(context.Background(), Request{Path: "/p"})
	require.Error(t, err2)

	callsBeforeOpen := hc.calls
	_, err3 := client.Fetch(context.Background(), Request{Path: "/p"})
	require.Error(t, err3)
	var merr *Error
	require.ErrorAs(t, err3, &merr)
	require.Equal(t, ErrCircuitOpen, merr.Code)
	require.Equal(t, callsBeforeOpen, hc.calls, "circuit-open request must fail fast without hitting the network")
}

func TestFourXXDoesNotTripCircuit(t *testing.T) {
	hc := &fakeHTTPClient{respond: func(_ int32) (*http.Response, error) {
		return jsonResponse(400, `{}`), nil
	}}
	cfg := baseClientConfig()
	cfg.RetryMaxAttempts = 1
	cfg.CircuitFailThreshold = 2
	breaker := circuitbreaker.New(circuitbreaker.MarkovProfile(uint32(cfg.CircuitFailThreshold), cfg.CircuitOpenDuration()))
	client := NewClient(hc, cfg, breaker)

	for i := 0; i < 5; i++ {
		_, err := client.Fetch(context.Background(), Request{Path: "/p"})
		require.Error(t, err)
		var merr *Error
		require.ErrorAs(t, err, &merr)
		require.Equal(t, ErrBadRequest, merr.Code, "4xx must always surface as the real domain error, never CircuitOpen")
	}
}

func TestBackoffMsMatchesSpecFormula(t *testing.T) {
	require.Equal(t, int64(0), backoffMs(100, 0, 10_000))
	require.Equal(t, int64(200), backoffMs(100, 1, 10_000))
	require.Equal(t, int64(400), backoffMs(100, 2, 10_000))
	require.Equal(t, int64(10_000), backoffMs(100, 20, 10_000))
}
