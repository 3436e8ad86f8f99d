package fetcher

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/central-university-dev/go-digest-tracker/internal/clients"
	"github.com/central-university-dev/go-digest-tracker/internal/domain/errors"
	"github.com/central-university-dev/go-digest-tracker/internal/domain/models"
)

const summaryPreviewLength = 120

type GitHubAPI interface {
	RepositoryEvents(ctx context.Context, owner, repo string, page int) ([]clients.RepoEvent, error)
	IssueComments(ctx context.Context, owner, repo string, number int64, since time.Time, page int) ([]clients.IssueComment, error)
	Releases(ctx context.Context, owner, repo string, page int) ([]clients.Release, error)
}

type Options struct {
	MaxPages int
	LookBack time.Duration
}

// ItemFetcher получает свежую активность по одному отслеживаемому ресурсу.
// Пагинация скрыта внутри; наружу отдаются события и новый курсор.
// Состояние не мутируется: сохранение курсора — забота вызывающего.
type ItemFetcher struct {
	api    GitHubAPI
	logger *slog.Logger
}

func NewItemFetcher(api GitHubAPI, logger *slog.Logger) *ItemFetcher {
	return &ItemFetcher{
		api:    api,
		logger: logger,
	}
}

func (f *ItemFetcher) Fetch(
	ctx context.Context,
	item models.WatchedItem,
	since models.Cursor,
	opts Options,
) ([]models.ActivityEvent, models.Cursor, error) {
	sinceTime := f.sinceTime(since, opts.LookBack)

	var (
		events []models.ActivityEvent
		err    error
	)

	switch item.Kind {
	case models.Repository:
		events, err = f.fetchRepositoryEvents(ctx, item, sinceTime, opts.MaxPages)
	case models.Issue, models.PullRequest:
		events, err = f.fetchComments(ctx, item, sinceTime, opts.MaxPages)
	case models.Release:
		events, err = f.fetchReleases(ctx, item, sinceTime, opts.MaxPages)
	case models.Unknown:
		err = &errors.ErrPermanent{Cause: &errors.ErrInvalidURL{URL: item.URL}}
	default:
		err = &errors.ErrPermanent{Cause: &errors.ErrInvalidURL{URL: item.URL}}
	}

	if err != nil {
		return nil, since, err
	}

	return events, f.advanceCursor(since, events), nil
}

// sinceTime определяет начало окна выборки: позиция курсора либо, когда
// курсор пуст или нечитаем, граница окна просмотра назад.
func (f *ItemFetcher) sinceTime(cursor models.Cursor, lookBack time.Duration) time.Time {
	fallback := time.Now().Add(-lookBack)

	if cursor.IsEmpty() {
		return fallback
	}

	parsed, err := time.Parse(time.RFC3339Nano, string(cursor))
	if err != nil {
		f.logger.Warn("Нечитаемый курсор, используется окно просмотра назад",
			"cursor", string(cursor),
		)

		return fallback
	}

	if parsed.Before(fallback) {
		return fallback
	}

	return parsed
}

func (f *ItemFetcher) advanceCursor(since models.Cursor, events []models.ActivityEvent) models.Cursor {
	newest := time.Time{}

	for _, event := range events {
		if event.Timestamp.After(newest) {
			newest = event.Timestamp
		}
	}

	if newest.IsZero() {
		return since
	}

	return models.Cursor(newest.UTC().Format(time.RFC3339Nano))
}

func (f *ItemFetcher) fetchRepositoryEvents(
	ctx context.Context,
	item models.WatchedItem,
	since time.Time,
	maxPages int,
) ([]models.ActivityEvent, error) {
	var events []models.ActivityEvent

	for page := 1; page <= maxPages; page++ {
		pageEvents, err := f.api.RepositoryEvents(ctx, item.Owner, item.Repo, page)
		if err != nil {
			return nil, err
		}

		reachedCursor := false

		// Лента событий отсортирована от новых к старым: как только
		// встретилось событие не новее курсора, дальше листать незачем.
		for _, raw := range pageEvents {
			if !raw.CreatedAt.After(since) {
				reachedCursor = true
				break
			}

			events = append(events, models.ActivityEvent{
				Item:      item,
				Timestamp: raw.CreatedAt,
				Author:    raw.Actor.Login,
				Summary:   strings.TrimSuffix(raw.Type, "Event"),
				Permalink: item.URL + "/events#" + raw.ID,
				EventType: raw.Type,
			})
		}

		if reachedCursor || len(pageEvents) < clients.PerPage {
			break
		}
	}

	return events, nil
}

func (f *ItemFetcher) fetchComments(
	ctx context.Context,
	item models.WatchedItem,
	since time.Time,
	maxPages int,
) ([]models.ActivityEvent, error) {
	var events []models.ActivityEvent

	eventType := "IssueComment"
	if item.Kind == models.PullRequest {
		eventType = "PullRequestComment"
	}

	for page := 1; page <= maxPages; page++ {
		comments, err := f.api.IssueComments(ctx, item.Owner, item.Repo, item.Number, since, page)
		if err != nil {
			return nil, err
		}

		for _, comment := range comments {
			if !comment.UpdatedAt.After(since) {
				continue
			}

			events = append(events, models.ActivityEvent{
				Item:      item,
				Timestamp: comment.UpdatedAt,
				Author:    comment.User.Login,
				Summary:   models.TextPreview(comment.Body, summaryPreviewLength),
				Permalink: comment.HTMLURL,
				EventType: eventType,
			})
		}

		if len(comments) < clients.PerPage {
			break
		}
	}

	return events, nil
}

func (f *ItemFetcher) fetchReleases(
	ctx context.Context,
	item models.WatchedItem,
	since time.Time,
	maxPages int,
) ([]models.ActivityEvent, error) {
	var events []models.ActivityEvent

	for page := 1; page <= maxPages; page++ {
		releases, err := f.api.Releases(ctx, item.Owner, item.Repo, page)
		if err != nil {
			return nil, err
		}

		reachedCursor := false

		for _, release := range releases {
			// Черновики без даты публикации пропускаются.
			if release.PublishedAt.IsZero() {
				continue
			}

			if !release.PublishedAt.After(since) {
				reachedCursor = true
				break
			}

			summary := release.Name
			if summary == "" {
				summary = release.TagName
			}

			events = append(events, models.ActivityEvent{
				Item:      item,
				Timestamp: release.PublishedAt,
				Author:    release.Author.Login,
				Summary:   summary,
				Permalink: release.HTMLURL,
				EventType: "Release",
			})
		}

		if reachedCursor || len(releases) < clients.PerPage {
			break
		}
	}

	return events, nil
}
