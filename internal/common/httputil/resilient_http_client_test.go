package httputil_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/central-university-dev/go-digest-tracker/internal/common/httputil"
	"github.com/central-university-dev/go-digest-tracker/internal/config"
	"github.com/central-university-dev/go-digest-tracker/pkg"
)

func testConfig() *config.Config {
	return &config.Config{
		ExternalRequestTimeout: 5 * time.Second,

		RetryCount:           3,
		RetryBackoff:         10 * time.Millisecond,
		RetryableStatusCodes: []int{408, 500, 502, 503, 504},

		CBSlidingWindowSize:        10,
		CBMinimumRequiredCalls:     100,
		CBFailureRateThreshold:     50,
		CBPermittedCallsInHalfOpen: 2,
		CBWaitDurationInOpenState:  10 * time.Second,
	}
}

func TestResilientHTTPClient_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := httputil.CreateResilientHTTPClient(testConfig(), pkg.NewLogger(io.Discard), "test")

	resp, err := client.R().Get(server.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, int32(3), attempts.Load())
}

func TestResilientHTTPClient_DoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := httputil.CreateResilientHTTPClient(testConfig(), pkg.NewLogger(io.Discard), "test")

	resp, err := client.R().Get(server.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode())
	assert.Equal(t, int32(1), attempts.Load())
}

func TestResilientHTTPClient_CircuitBreakerOpens(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.RetryCount = 0
	cfg.CBMinimumRequiredCalls = 3

	client := httputil.CreateResilientHTTPClient(cfg, pkg.NewLogger(io.Discard), "test")

	for i := 0; i < 3; i++ {
		_, err := client.R().Get(server.URL)
		require.Error(t, err)
	}

	_, err := client.R().Get(server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), gobreaker.ErrOpenState.Error())
}
