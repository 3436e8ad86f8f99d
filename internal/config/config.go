package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/central-university-dev/go-digest-tracker/internal/domain/errors"
)

type Config struct {
	GitHubAPIToken  string `mapstructure:"GITHUB_API_TOKEN"`
	GitHubTokenFile string `mapstructure:"GITHUB_TOKEN_FILE"`

	DigestsFile string `mapstructure:"DIGESTS_FILE"`
	Projects    string `mapstructure:"PROJECTS"`

	LogLevel string `mapstructure:"LOG_LEVEL"`

	ServerPort  int `mapstructure:"SERVER_PORT"`
	MetricsPort int `mapstructure:"METRICS_PORT"`

	RefreshInterval time.Duration `mapstructure:"REFRESH_INTERVAL"`
	RefreshTimeout  time.Duration `mapstructure:"REFRESH_TIMEOUT"`
	MaxLookBack     time.Duration `mapstructure:"MAX_LOOK_BACK"`
	MaxPages        int           `mapstructure:"MAX_PAGES"`

	GlobalConcurrency int `mapstructure:"GLOBAL_CONCURRENCY"`
	DigestConcurrency int `mapstructure:"DIGEST_CONCURRENCY"`
	RateLimitBudget   int `mapstructure:"RATE_LIMIT_BUDGET"`

	ExternalRequestTimeout time.Duration `mapstructure:"EXTERNAL_REQUEST_TIMEOUT"`

	RateLimitRequests int           `mapstructure:"RATE_LIMIT_REQUESTS"`
	RateLimitWindow   time.Duration `mapstructure:"RATE_LIMIT_WINDOW"`

	RetryCount           int           `mapstructure:"RETRY_COUNT"`
	RetryBackoff         time.Duration `mapstructure:"RETRY_BACKOFF"`
	RetryableStatusCodes []int         `mapstructure:"RETRYABLE_STATUS_CODES"`

	CBSlidingWindowSize        int           `mapstructure:"CB_SLIDING_WINDOW_SIZE"`
	CBMinimumRequiredCalls     int           `mapstructure:"CB_MINIMUM_REQUIRED_CALLS"`
	CBFailureRateThreshold     int           `mapstructure:"CB_FAILURE_RATE_THRESHOLD"`
	CBPermittedCallsInHalfOpen int           `mapstructure:"CB_PERMITTED_CALLS_IN_HALF_OPEN"`
	CBWaitDurationInOpenState  time.Duration `mapstructure:"CB_WAIT_DURATION_IN_OPEN_STATE"`

	RedisURL      string        `mapstructure:"REDIS_URL"`
	RedisPassword string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int           `mapstructure:"REDIS_DB"`
	RedisCacheTTL time.Duration `mapstructure:"REDIS_CACHE_TTL"`
}

func LoadConfig() *Config {
	setDefaults()

	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()

	_ = viper.ReadInConfig()

	config := &Config{}

	if err := viper.Unmarshal(config); err != nil {
		return getDefaultConfig()
	}

	return config
}

func setDefaults() {
	// Ключи без значимого значения по умолчанию тоже регистрируются:
	// AutomaticEnv подхватывает из окружения только известные viper ключи.
	viper.SetDefault("GITHUB_API_TOKEN", "")
	viper.SetDefault("GITHUB_TOKEN_FILE", "")
	viper.SetDefault("DIGESTS_FILE", "")
	viper.SetDefault("PROJECTS", "")

	viper.SetDefault("LOG_LEVEL", "info")

	viper.SetDefault("SERVER_PORT", 8080)
	viper.SetDefault("METRICS_PORT", 9095)

	viper.SetDefault("REFRESH_INTERVAL", "30m")
	viper.SetDefault("REFRESH_TIMEOUT", "2m")
	viper.SetDefault("MAX_LOOK_BACK", "168h")
	viper.SetDefault("MAX_PAGES", 10)

	viper.SetDefault("GLOBAL_CONCURRENCY", 8)
	viper.SetDefault("DIGEST_CONCURRENCY", 4)
	viper.SetDefault("RATE_LIMIT_BUDGET", 500)

	viper.SetDefault("EXTERNAL_REQUEST_TIMEOUT", "10s")

	viper.SetDefault("RATE_LIMIT_REQUESTS", 100)
	viper.SetDefault("RATE_LIMIT_WINDOW", "1m")

	viper.SetDefault("RETRY_COUNT", 3)
	viper.SetDefault("RETRY_BACKOFF", "1s")
	viper.SetDefault("RETRYABLE_STATUS_CODES", []int{408, 500, 502, 503, 504})

	viper.SetDefault("CB_SLIDING_WINDOW_SIZE", 10)
	viper.SetDefault("CB_MINIMUM_REQUIRED_CALLS", 5)
	viper.SetDefault("CB_FAILURE_RATE_THRESHOLD", 50)
	viper.SetDefault("CB_PERMITTED_CALLS_IN_HALF_OPEN", 2)
	viper.SetDefault("CB_WAIT_DURATION_IN_OPEN_STATE", "10s")

	viper.SetDefault("REDIS_URL", "")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("REDIS_CACHE_TTL", "24h")
}

func getDefaultConfig() *Config {
	return &Config{
		LogLevel: "info",

		ServerPort:  8080,
		MetricsPort: 9095,

		RefreshInterval: 30 * time.Minute,
		RefreshTimeout:  2 * time.Minute,
		MaxLookBack:     168 * time.Hour,
		MaxPages:        10,

		GlobalConcurrency: 8,
		DigestConcurrency: 4,
		RateLimitBudget:   500,

		ExternalRequestTimeout: 10 * time.Second,

		RateLimitRequests: 100,
		RateLimitWindow:   1 * time.Minute,

		RetryCount:           3,
		RetryBackoff:         1 * time.Second,
		RetryableStatusCodes: []int{408, 500, 502, 503, 504},

		CBSlidingWindowSize:        10,
		CBMinimumRequiredCalls:     5,
		CBFailureRateThreshold:     50,
		CBPermittedCallsInHalfOpen: 2,
		CBWaitDurationInOpenState:  10 * time.Second,

		RedisCacheTTL: 24 * time.Hour,
	}
}

// Известные префиксы токенов GitHub. Инлайн-токен без такого префикса
// считается подозрительным, и предпочтение отдаётся файлу.
var githubTokenPrefixes = []string{"ghp_", "github_pat_", "gho_"}

func hasGitHubTokenPrefix(token string) bool {
	for _, prefix := range githubTokenPrefixes {
		if strings.HasPrefix(token, prefix) {
			return true
		}
	}

	return false
}

// ResolveGitHubToken выбирает токен из инлайн-значения или файла.
func (c *Config) ResolveGitHubToken() (string, error) {
	if c.GitHubAPIToken != "" && hasGitHubTokenPrefix(c.GitHubAPIToken) {
		return c.GitHubAPIToken, nil
	}

	if c.GitHubTokenFile != "" {
		data, err := os.ReadFile(c.GitHubTokenFile)
		if err != nil {
			return "", &errors.ErrConfiguration{
				Reason: "не удалось прочитать файл с токеном: " + c.GitHubTokenFile,
			}
		}

		token := strings.TrimSpace(string(data))
		if token == "" {
			return "", &errors.ErrConfiguration{
				Reason: "файл с токеном пуст: " + c.GitHubTokenFile,
			}
		}

		return token, nil
	}

	if c.GitHubAPIToken != "" {
		return c.GitHubAPIToken, nil
	}

	return "", &errors.ErrConfiguration{
		Reason: "не задан токен GitHub: укажите GITHUB_API_TOKEN или GITHUB_TOKEN_FILE",
	}
}
