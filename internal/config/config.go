// Package config loads runtime settings from the environment and an optional .env file.
package config

import (
	"github.com/joho/godotenv"
	"github.com/myrjola/deepresearch/internal/envstruct"
	"github.com/myrjola/deepresearch/internal/errors"
	"github.com/myrjola/deepresearch/internal/research"
	"io/fs"
	"log/slog"
	"time"
)

const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

var ErrInvalidConfig = errors.NewSentinel("invalid configuration")

// Config holds every tunable of the research tool.
type Config struct {
	// OutputDir holds one JSON snapshot per session when the file store is used.
	OutputDir string `env:"RESEARCH_OUTPUT_DIR" envDefault:"./research_output"`
	// Store selects the snapshot backend, either file or sqlite.
	Store     string `env:"RESEARCH_STORE" envDefault:"file"`
	SQLiteURL string `env:"RESEARCH_SQLITE_URL" envDefault:"./research_output/sessions.sqlite3"`

	PersistAttempts int           `env:"RESEARCH_PERSIST_ATTEMPTS" envDefault:"3"`
	BackoffStep     time.Duration `env:"RESEARCH_PERSIST_BACKOFF" envDefault:"500ms"`

	DOIBaseURL     string        `env:"RESEARCH_DOI_BASE_URL" envDefault:"https://doi.org"`
	DOITimeout     time.Duration `env:"RESEARCH_DOI_TIMEOUT" envDefault:"10s"`
	DOIConcurrency int           `env:"RESEARCH_DOI_CONCURRENCY" envDefault:"4"`

	OpenAIKey     string `env:"OPENAI_API_KEY" envDefault:""`
	OpenAIModel   string `env:"RESEARCH_OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	OpenAIBaseURL string `env:"RESEARCH_OPENAI_BASE_URL" envDefault:""`

	SearchURL     string `env:"RESEARCH_SEARCH_URL" envDefault:"https://lite.duckduckgo.com/lite/"`
	SearchResults int    `env:"RESEARCH_SEARCH_RESULTS" envDefault:"5"`
	FetchMaxBytes int    `env:"RESEARCH_FETCH_MAX_BYTES" envDefault:"20000"`

	LogLevel string `env:"RESEARCH_LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"RESEARCH_LOG_FILE" envDefault:""`
}

// Load reads the given .env files into the process environment and then populates Config from lookupEnv.
// Missing .env files are ignored. Variables already present in the environment win over .env values.
func Load(lookupEnv func(string) (string, bool), envFiles ...string) (Config, error) {
	var cfg Config
	if err := LoadEnvFiles(envFiles...); err != nil {
		return cfg, err
	}
	if err := envstruct.Populate(&cfg, lookupEnv); err != nil {
		return cfg, errors.Wrap(err, "populate config")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadEnvFiles loads the named .env files, ignoring the ones that do not exist.
func LoadEnvFiles(envFiles ...string) error {
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return errors.Wrap(err, "load .env file", slog.String("file", file))
		}
	}
	return nil
}

// Validate checks the values that cannot be expressed with struct tags.
func (c Config) Validate() error {
	var errs []error
	if c.Store != StoreFile && c.Store != StoreSQLite {
		errs = append(errs, errors.Wrap(ErrInvalidConfig, "unknown store", slog.String("store", c.Store)))
	}
	if c.Store == StoreFile && c.OutputDir == "" {
		errs = append(errs, errors.Wrap(ErrInvalidConfig, "output directory is empty"))
	}
	if c.PersistAttempts < 1 {
		errs = append(errs, errors.Wrap(ErrInvalidConfig, "persist attempts must be positive",
			slog.Int("persistAttempts", c.PersistAttempts)))
	}
	if c.BackoffStep < 0 {
		errs = append(errs, errors.Wrap(ErrInvalidConfig, "persist backoff must not be negative",
			slog.Duration("backoffStep", c.BackoffStep)))
	}
	if c.DOIConcurrency < 1 {
		errs = append(errs, errors.Wrap(ErrInvalidConfig, "DOI concurrency must be positive",
			slog.Int("doiConcurrency", c.DOIConcurrency)))
	}
	if c.FetchMaxBytes < 1 {
		errs = append(errs, errors.Wrap(ErrInvalidConfig, "fetch byte limit must be positive",
			slog.Int("fetchMaxBytes", c.FetchMaxBytes)))
	}
	return errors.Join(errs...)
}

// StoreConfig derives the persistence settings of a research.Store.
func (c Config) StoreConfig() research.StoreConfig {
	cfg := research.DefaultStoreConfig()
	cfg.MaxAttempts = c.PersistAttempts
	cfg.BackoffStep = c.BackoffStep
	return cfg
}
