package common

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/central-university-dev/go-digest-tracker/internal/domain/errors"
	"github.com/central-university-dev/go-digest-tracker/internal/domain/models"
)

type ItemAnalyzer struct {
	repoRegex    *regexp.Regexp
	issueRegex   *regexp.Regexp
	pullRegex    *regexp.Regexp
	releaseRegex *regexp.Regexp
}

func NewItemAnalyzer() *ItemAnalyzer {
	return &ItemAnalyzer{
		repoRegex:    regexp.MustCompile(`^https?://(?:www\.)?github\.com/([^/]+)/([^/]+?)/?$`),
		issueRegex:   regexp.MustCompile(`^https?://(?:www\.)?github\.com/([^/]+)/([^/]+)/issues/(\d+)(?:[/#].*)?$`),
		pullRegex:    regexp.MustCompile(`^https?://(?:www\.)?github\.com/([^/]+)/([^/]+)/pull/(\d+)(?:[/#].*)?$`),
		releaseRegex: regexp.MustCompile(`^https?://(?:www\.)?github\.com/([^/]+)/([^/]+)/releases/?.*$`),
	}
}

func (a *ItemAnalyzer) AnalyzeItem(url string) models.ItemKind {
	switch {
	case a.issueRegex.MatchString(url):
		return models.Issue
	case a.pullRegex.MatchString(url):
		return models.PullRequest
	case a.releaseRegex.MatchString(url):
		return models.Release
	case a.repoRegex.MatchString(url):
		return models.Repository
	default:
		return models.Unknown
	}
}

// ParseWatchedItem разбирает URL ресурса в WatchedItem.
// Короткая форма "owner/repo" трактуется как репозиторий на github.com.
func (a *ItemAnalyzer) ParseWatchedItem(url string) (models.WatchedItem, error) {
	if !strings.Contains(url, "://") && strings.Count(url, "/") == 1 {
		url = "https://github.com/" + url
	}

	kind := a.AnalyzeItem(url)

	var re *regexp.Regexp

	switch kind {
	case models.Issue:
		re = a.issueRegex
	case models.PullRequest:
		re = a.pullRegex
	case models.Release:
		re = a.releaseRegex
	case models.Repository:
		re = a.repoRegex
	case models.Unknown:
		return models.WatchedItem{}, &errors.ErrInvalidURL{URL: url}
	default:
		return models.WatchedItem{}, &errors.ErrInvalidURL{URL: url}
	}

	matches := re.FindStringSubmatch(url)
	if len(matches) < 3 {
		return models.WatchedItem{}, &errors.ErrInvalidURL{URL: url}
	}

	item := models.WatchedItem{
		Kind:  kind,
		URL:   url,
		Owner: matches[1],
		Repo:  matches[2],
	}

	if kind == models.Issue || kind == models.PullRequest {
		number, err := strconv.ParseInt(matches[3], 10, 64)
		if err != nil {
			return models.WatchedItem{}, &errors.ErrInvalidURL{URL: url}
		}

		item.Number = number
	}

	return item, nil
}
