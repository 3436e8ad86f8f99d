package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/central-university-dev/go-digest-tracker/internal/common"
	"github.com/central-university-dev/go-digest-tracker/internal/domain/errors"
	"github.com/central-university-dev/go-digest-tracker/internal/domain/models"
)

var digestIDRegex = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

type digestDefaults struct {
	MaxPages int    `yaml:"maxPages"`
	LookBack string `yaml:"lookBack"`
}

type digestSpec struct {
	Digest string   `yaml:"digest"`
	Title  string   `yaml:"title"`
	Items  []string `yaml:"items"`
}

type digestsFile struct {
	Defaults digestDefaults `yaml:"defaults"`
	Digests  []digestSpec   `yaml:"digests"`
}

// LoadDigests собирает итоговый список дайджестов из YAML-файла и
// переменной PROJECTS. Вся валидация выполняется здесь, до старта
// планировщика: процесс не должен начинать обслуживание с некорректной
// конфигурацией.
func LoadDigests(cfg *Config, analyzer *common.ItemAnalyzer) ([]models.DigestConfig, error) {
	var digests []models.DigestConfig

	fromProjects, err := parseProjects(cfg.Projects, analyzer, cfg)
	if err != nil {
		return nil, err
	}

	digests = append(digests, fromProjects...)

	if cfg.DigestsFile != "" {
		fromFile, err := parseDigestsFile(cfg.DigestsFile, analyzer, cfg)
		if err != nil {
			return nil, err
		}

		digests = append(digests, fromFile...)
	}

	if len(digests) == 0 {
		return nil, &errors.ErrConfiguration{
			Reason: "не настроено ни одного дайджеста: укажите DIGESTS_FILE или PROJECTS",
		}
	}

	seen := make(map[string]struct{}, len(digests))

	for _, digest := range digests {
		if _, ok := seen[digest.ID]; ok {
			return nil, &errors.ErrConfiguration{
				Reason: "дублирующийся идентификатор дайджеста: " + digest.ID,
			}
		}

		seen[digest.ID] = struct{}{}
	}

	return digests, nil
}

func parseProjects(projects string, analyzer *common.ItemAnalyzer, cfg *Config) ([]models.DigestConfig, error) {
	var digests []models.DigestConfig

	for _, project := range strings.Fields(projects) {
		item, err := analyzer.ParseWatchedItem(project)
		if err != nil {
			return nil, &errors.ErrConfiguration{
				Reason: "некорректная ссылка в PROJECTS: " + project,
			}
		}

		if item.Kind != models.Repository {
			return nil, &errors.ErrConfiguration{
				Reason: "в PROJECTS допускаются только репозитории: " + project,
			}
		}

		digests = append(digests, models.DigestConfig{
			ID:       item.Repo + ".html",
			Title:    item.Repo,
			Items:    []models.WatchedItem{item},
			MaxPages: cfg.MaxPages,
			LookBack: cfg.MaxLookBack,
		})
	}

	return digests, nil
}

func parseDigestsFile(path string, analyzer *common.ItemAnalyzer, cfg *Config) ([]models.DigestConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &errors.ErrConfiguration{
			Reason: "не удалось прочитать файл дайджестов: " + path,
		}
	}

	var file digestsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, &errors.ErrConfiguration{
			Reason: fmt.Sprintf("некорректный YAML в файле дайджестов %s: %v", path, err),
		}
	}

	maxPages := cfg.MaxPages
	if file.Defaults.MaxPages > 0 {
		maxPages = file.Defaults.MaxPages
	}

	lookBack := cfg.MaxLookBack

	if file.Defaults.LookBack != "" {
		parsed, err := time.ParseDuration(file.Defaults.LookBack)
		if err != nil {
			return nil, &errors.ErrConfiguration{
				Reason: "некорректное значение defaults.lookBack: " + file.Defaults.LookBack,
			}
		}

		lookBack = parsed
	}

	digests := make([]models.DigestConfig, 0, len(file.Digests))

	for _, spec := range file.Digests {
		digest, err := parseDigestSpec(spec, analyzer, maxPages, lookBack)
		if err != nil {
			return nil, err
		}

		digests = append(digests, digest)
	}

	return digests, nil
}

func parseDigestSpec(
	spec digestSpec,
	analyzer *common.ItemAnalyzer,
	maxPages int,
	lookBack time.Duration,
) (models.DigestConfig, error) {
	if spec.Digest == "" {
		return models.DigestConfig{}, &errors.ErrConfiguration{
			Reason: "у дайджеста отсутствует идентификатор (поле digest)",
		}
	}

	if !digestIDRegex.MatchString(spec.Digest) {
		return models.DigestConfig{}, &errors.ErrConfiguration{
			Reason: "идентификатор дайджеста содержит недопустимые символы: " + spec.Digest,
		}
	}

	if len(spec.Items) == 0 {
		return models.DigestConfig{}, &errors.ErrConfiguration{
			Reason: "пустой список ресурсов у дайджеста: " + spec.Digest,
		}
	}

	title := spec.Title
	if title == "" {
		title = spec.Digest
	}

	items := make([]models.WatchedItem, 0, len(spec.Items))

	for _, rawURL := range spec.Items {
		item, err := analyzer.ParseWatchedItem(rawURL)
		if err != nil {
			return models.DigestConfig{}, &errors.ErrConfiguration{
				Reason: fmt.Sprintf("некорректная ссылка %q у дайджеста %s", rawURL, spec.Digest),
			}
		}

		items = append(items, item)
	}

	return models.DigestConfig{
		ID:       spec.Digest,
		Title:    title,
		Items:    items,
		MaxPages: maxPages,
		LookBack: lookBack,
	}, nil
}
