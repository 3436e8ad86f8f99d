package clients_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/central-university-dev/go-digest-tracker/internal/clients"
	"github.com/central-university-dev/go-digest-tracker/internal/config"
	"github.com/central-university-dev/go-digest-tracker/internal/domain/errors"
	"github.com/central-university-dev/go-digest-tracker/pkg"
)

func testConfig() *config.Config {
	return &config.Config{
		ExternalRequestTimeout: 5 * time.Second,

		RetryCount:           2,
		RetryBackoff:         10 * time.Millisecond,
		RetryableStatusCodes: []int{408, 500, 502, 503, 504},

		CBSlidingWindowSize:        10,
		CBMinimumRequiredCalls:     100,
		CBFailureRateThreshold:     50,
		CBPermittedCallsInHalfOpen: 2,
		CBWaitDurationInOpenState:  10 * time.Second,
	}
}

func newClient(t *testing.T, baseURL string) *clients.GitHubClient {
	t.Helper()

	return clients.NewGitHubClient("ghp_test", baseURL, testConfig(), pkg.NewLogger(io.Discard))
}

func TestGitHubClient_RepositoryEvents(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/golang/go/events", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "token ghp_test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.github.v3+json", r.Header.Get("Accept"))

		w.Header().Set("X-RateLimit-Remaining", "4321")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":"1","type":"PushEvent","actor":{"login":"alice"},"created_at":"2025-06-01T12:00:00Z"}
		]`))
	}))
	defer server.Close()

	client := newClient(t, server.URL)

	events, err := client.RepositoryEvents(context.Background(), "golang", "go", 2)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "PushEvent", events[0].Type)
	assert.Equal(t, "alice", events[0].Actor.Login)

	assert.Equal(t, int64(4321), client.RateLimitRemaining())
}

func TestGitHubClient_IssueComments(t *testing.T) {
	t.Parallel()

	since := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/golang/go/issues/7/comments", r.URL.Path)
		assert.Equal(t, "2025-06-01T00:00:00Z", r.URL.Query().Get("since"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"html_url":"https://github.com/golang/go/issues/7#issuecomment-1","body":"ping","user":{"login":"bob"},"updated_at":"2025-06-02T00:00:00Z"}
		]`))
	}))
	defer server.Close()

	client := newClient(t, server.URL)

	comments, err := client.IssueComments(context.Background(), "golang", "go", 7, since, 1)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "bob", comments[0].User.Login)
	assert.Equal(t, "ping", comments[0].Body)
}

func TestGitHubClient_RetryBehavior(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := newClient(t, server.URL)

	releases, err := client.Releases(context.Background(), "golang", "go", 1)
	require.NoError(t, err)
	assert.Empty(t, releases)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestGitHubClient_RateLimited(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := newClient(t, server.URL)

	_, err := client.RepositoryEvents(context.Background(), "golang", "go", 1)
	require.Error(t, err)

	var rateLimited *errors.ErrRateLimited
	require.ErrorAs(t, err, &rateLimited)
	assert.Equal(t, 30*time.Second, rateLimited.RetryAfter)
}

func TestGitHubClient_SecondaryRateLimit(t *testing.T) {
	t.Parallel()

	// Вторичный лимит: 429 без Retry-After, но с нулевым остатком квоты.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newClient(t, server.URL)

	_, err := client.RepositoryEvents(context.Background(), "golang", "go", 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, &errors.ErrRateLimited{})
}

func TestGitHubClient_NotFound(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newClient(t, server.URL)

	_, err := client.RepositoryEvents(context.Background(), "golang", "go", 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, &errors.ErrPermanent{})
}

func TestGitHubClient_TransientOnConnectionError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	server.Close()

	client := newClient(t, server.URL)

	_, err := client.RepositoryEvents(context.Background(), "golang", "go", 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, &errors.ErrTransient{})
}

func TestGitHubClient_RateLimitRemainingUnknown(t *testing.T) {
	t.Parallel()

	client := newClient(t, "http://127.0.0.1:0")
	assert.Equal(t, int64(-1), client.RateLimitRemaining())
}
