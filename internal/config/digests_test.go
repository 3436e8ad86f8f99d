package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/central-university-dev/go-digest-tracker/internal/common"
	"github.com/central-university-dev/go-digest-tracker/internal/config"
	domainerrors "github.com/central-university-dev/go-digest-tracker/internal/domain/errors"
	"github.com/central-university-dev/go-digest-tracker/internal/domain/models"
)

func writeDigestsFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "digests.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func baseConfig() *config.Config {
	return &config.Config{
		MaxPages:    10,
		MaxLookBack: 168 * time.Hour,
	}
}

func TestLoadDigests_FromFile(t *testing.T) {
	t.Parallel()

	path := writeDigestsFile(t, `
defaults:
  maxPages: 5
  lookBack: 72h
digests:
  - digest: team.html
    title: Team digest
    items:
      - https://github.com/golang/go
      - https://github.com/golang/go/issues/123
  - digest: releases.html
    items:
      - https://github.com/golang/go/releases
`)

	cfg := baseConfig()
	cfg.DigestsFile = path

	digests, err := config.LoadDigests(cfg, common.NewItemAnalyzer())
	require.NoError(t, err)
	require.Len(t, digests, 2)

	assert.Equal(t, "team.html", digests[0].ID)
	assert.Equal(t, "Team digest", digests[0].Title)
	assert.Len(t, digests[0].Items, 2)
	assert.Equal(t, models.Repository, digests[0].Items[0].Kind)
	assert.Equal(t, models.Issue, digests[0].Items[1].Kind)
	assert.Equal(t, 5, digests[0].MaxPages)
	assert.Equal(t, 72*time.Hour, digests[0].LookBack)

	// Без title идентификатор служит заголовком.
	assert.Equal(t, "releases.html", digests[1].Title)
}

func TestLoadDigests_FromProjects(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Projects = "golang/go  kubernetes/kubernetes"

	digests, err := config.LoadDigests(cfg, common.NewItemAnalyzer())
	require.NoError(t, err)
	require.Len(t, digests, 2)

	assert.Equal(t, "go.html", digests[0].ID)
	assert.Equal(t, "go", digests[0].Title)
	require.Len(t, digests[0].Items, 1)
	assert.Equal(t, "https://github.com/golang/go", digests[0].Items[0].URL)

	assert.Equal(t, "kubernetes.html", digests[1].ID)
}

func TestLoadDigests_Empty(t *testing.T) {
	t.Parallel()

	_, err := config.LoadDigests(baseConfig(), common.NewItemAnalyzer())
	require.Error(t, err)
	assert.ErrorIs(t, err, &domainerrors.ErrConfiguration{})
}

func TestLoadDigests_DuplicateID(t *testing.T) {
	t.Parallel()

	path := writeDigestsFile(t, `
digests:
  - digest: go.html
    items:
      - https://github.com/golang/go
`)

	cfg := baseConfig()
	cfg.DigestsFile = path
	cfg.Projects = "golang/go"

	_, err := config.LoadDigests(cfg, common.NewItemAnalyzer())
	require.Error(t, err)
	assert.ErrorIs(t, err, &domainerrors.ErrConfiguration{})
	assert.Contains(t, err.Error(), "go.html")
}

func TestLoadDigests_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{
			name: "пустой список ресурсов",
			content: `
digests:
  - digest: empty.html
    items: []
`,
		},
		{
			name: "нет идентификатора",
			content: `
digests:
  - title: broken
    items:
      - https://github.com/golang/go
`,
		},
		{
			name: "недопустимые символы в идентификаторе",
			content: `
digests:
  - digest: "../../etc/passwd"
    items:
      - https://github.com/golang/go
`,
		},
		{
			name: "некорректная ссылка",
			content: `
digests:
  - digest: bad.html
    items:
      - https://example.com/not-github
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := baseConfig()
			cfg.DigestsFile = writeDigestsFile(t, tt.content)

			_, err := config.LoadDigests(cfg, common.NewItemAnalyzer())
			require.Error(t, err)
			assert.ErrorIs(t, err, &domainerrors.ErrConfiguration{})
		})
	}
}

func TestResolveGitHubToken(t *testing.T) {
	t.Parallel()

	tokenFile := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(tokenFile, []byte("ghp_fromfile\n"), 0o600))

	tests := []struct {
		name    string
		cfg     config.Config
		want    string
		wantErr bool
	}{
		{
			name: "инлайн токен с известным префиксом",
			cfg:  config.Config{GitHubAPIToken: "ghp_inline", GitHubTokenFile: tokenFile},
			want: "ghp_inline",
		},
		{
			name: "файл предпочтительнее токена без префикса",
			cfg:  config.Config{GitHubAPIToken: "plain-token", GitHubTokenFile: tokenFile},
			want: "ghp_fromfile",
		},
		{
			name: "только файл",
			cfg:  config.Config{GitHubTokenFile: tokenFile},
			want: "ghp_fromfile",
		},
		{
			name: "токен без префикса и без файла",
			cfg:  config.Config{GitHubAPIToken: "plain-token"},
			want: "plain-token",
		},
		{
			name:    "токен не задан",
			cfg:     config.Config{},
			wantErr: true,
		},
		{
			name:    "файл не существует",
			cfg:     config.Config{GitHubTokenFile: filepath.Join(t.TempDir(), "missing")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			token, err := tt.cfg.ResolveGitHubToken()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, &domainerrors.ErrConfiguration{})

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, token)
		})
	}
}
