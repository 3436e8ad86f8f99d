package clients

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/central-university-dev/go-digest-tracker/internal/common/httputil"
	"github.com/central-university-dev/go-digest-tracker/internal/common/metrics"
	"github.com/central-university-dev/go-digest-tracker/internal/config"
	domainerrors "github.com/central-university-dev/go-digest-tracker/internal/domain/errors"
)

// PerPage — размер страницы для всех постраничных запросов к API.
const PerPage = 100

type GitHubClient struct {
	client        *resty.Client
	token         string
	baseURL       string
	logger        *slog.Logger
	rateRemaining atomic.Int64
}

func NewGitHubClient(token, baseURL string, cfg *config.Config, logger *slog.Logger) *GitHubClient {
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}

	client := httputil.CreateResilientHTTPClient(cfg, logger, "github")

	c := &GitHubClient{
		client:  client,
		token:   token,
		baseURL: baseURL,
		logger:  logger,
	}
	c.rateRemaining.Store(-1)

	return c
}

type RepoEvent struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Actor struct {
		Login string `json:"login"`
	} `json:"actor"`
	CreatedAt time.Time `json:"created_at"`
}

type IssueComment struct {
	HTMLURL string `json:"html_url"`
	Body    string `json:"body"`
	User    struct {
		Login string `json:"login"`
	} `json:"user"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Release struct {
	HTMLURL string `json:"html_url"`
	Name    string `json:"name"`
	TagName string `json:"tag_name"`
	Author  struct {
		Login string `json:"login"`
	} `json:"author"`
	PublishedAt time.Time `json:"published_at"`
}

func (c *GitHubClient) RepositoryEvents(ctx context.Context, owner, repo string, page int) ([]RepoEvent, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/events", c.baseURL, owner, repo)

	var events []RepoEvent
	if err := c.get(ctx, url, map[string]string{
		"per_page": strconv.Itoa(PerPage),
		"page":     strconv.Itoa(page),
	}, &events); err != nil {
		return nil, err
	}

	return events, nil
}

func (c *GitHubClient) IssueComments(
	ctx context.Context,
	owner, repo string,
	number int64,
	since time.Time,
	page int,
) ([]IssueComment, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/issues/%d/comments", c.baseURL, owner, repo, number)

	query := map[string]string{
		"per_page": strconv.Itoa(PerPage),
		"page":     strconv.Itoa(page),
	}
	if !since.IsZero() {
		query["since"] = since.UTC().Format(time.RFC3339)
	}

	var comments []IssueComment
	if err := c.get(ctx, url, query, &comments); err != nil {
		return nil, err
	}

	return comments, nil
}

func (c *GitHubClient) Releases(ctx context.Context, owner, repo string, page int) ([]Release, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/releases", c.baseURL, owner, repo)

	var releases []Release
	if err := c.get(ctx, url, map[string]string{
		"per_page": strconv.Itoa(PerPage),
		"page":     strconv.Itoa(page),
	}, &releases); err != nil {
		return nil, err
	}

	return releases, nil
}

// RateLimitRemaining возвращает остаток квоты по данным последнего ответа API.
// До первого запроса возвращает -1.
func (c *GitHubClient) RateLimitRemaining() int64 {
	return c.rateRemaining.Load()
}

func (c *GitHubClient) get(ctx context.Context, url string, query map[string]string, result interface{}) error {
	request := c.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/vnd.github.v3+json").
		SetQueryParams(query)

	if c.token != "" {
		request.SetHeader("Authorization", "token "+c.token)
	}

	resp, err := request.
		SetResult(result).
		Get(url)

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		return &domainerrors.ErrTransient{Cause: err}
	}

	c.trackRateLimit(resp)

	if resp.IsSuccess() {
		return nil
	}

	return c.mapStatusError(resp)
}

func (c *GitHubClient) trackRateLimit(resp *resty.Response) {
	remaining := resp.Header().Get("X-RateLimit-Remaining")
	if remaining == "" {
		return
	}

	if value, err := strconv.ParseInt(remaining, 10, 64); err == nil {
		c.rateRemaining.Store(value)
		metrics.RateLimitRemaining.Set(float64(value))
	}
}

//nolint:exhaustive // остальные статусы обрабатываются в default
func (c *GitHubClient) mapStatusError(resp *resty.Response) error {
	status := resp.StatusCode()

	if c.isRateLimited(resp) {
		retryAfter := parseRetryAfter(resp)
		c.logger.Warn("GitHub API сообщил об исчерпании квоты",
			"status", status,
			"retryAfter", retryAfter.String(),
		)

		return &domainerrors.ErrRateLimited{RetryAfter: retryAfter}
	}

	httpErr := &domainerrors.HTTPError{StatusCode: status}

	switch status {
	case 401, 403, 404, 410:
		return &domainerrors.ErrPermanent{Cause: httpErr}
	default:
		return &domainerrors.ErrTransient{Cause: httpErr}
	}
}

func (c *GitHubClient) isRateLimited(resp *resty.Response) bool {
	status := resp.StatusCode()
	if status != 403 && status != 429 {
		return false
	}

	if resp.Header().Get("Retry-After") != "" {
		return true
	}

	return resp.Header().Get("X-RateLimit-Remaining") == "0"
}

func parseRetryAfter(resp *resty.Response) time.Duration {
	if header := resp.Header().Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}

	if header := resp.Header().Get("X-RateLimit-Reset"); header != "" {
		if reset, err := strconv.ParseInt(header, 10, 64); err == nil {
			if wait := time.Until(time.Unix(reset, 0)); wait > 0 {
				return wait
			}
		}
	}

	return time.Minute
}
