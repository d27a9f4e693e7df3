package config_test

import (
	"github.com/myrjola/deepresearch/internal/config"
	"github.com/myrjola/deepresearch/internal/envstruct"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func lookup(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestLoad(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.env")

	tests := []struct {
		name    string
		env     map[string]string
		check   func(t *testing.T, cfg config.Config)
		wantErr error
	}{
		{
			name: "defaults",
			env:  map[string]string{},
			check: func(t *testing.T, cfg config.Config) {
				require.Equal(t, "./research_output", cfg.OutputDir)
				require.Equal(t, config.StoreFile, cfg.Store)
				require.Equal(t, 3, cfg.PersistAttempts)
				require.Equal(t, 500*time.Millisecond, cfg.BackoffStep)
				require.Equal(t, 10*time.Second, cfg.DOITimeout)
			},
		},
		{
			name: "overrides",
			env: map[string]string{
				"RESEARCH_OUTPUT_DIR":       "/tmp/research",
				"RESEARCH_STORE":            "sqlite",
				"RESEARCH_PERSIST_ATTEMPTS": "5",
				"RESEARCH_PERSIST_BACKOFF":  "1s",
			},
			check: func(t *testing.T, cfg config.Config) {
				require.Equal(t, "/tmp/research", cfg.OutputDir)
				require.Equal(t, config.StoreSQLite, cfg.Store)
				storeCfg := cfg.StoreConfig()
				require.Equal(t, 5, storeCfg.MaxAttempts)
				require.Equal(t, time.Second, storeCfg.BackoffStep)
			},
		},
		{
			name:    "unknown store",
			env:     map[string]string{"RESEARCH_STORE": "s3"},
			wantErr: config.ErrInvalidConfig,
		},
		{
			name:    "zero attempts",
			env:     map[string]string{"RESEARCH_PERSIST_ATTEMPTS": "0"},
			wantErr: config.ErrInvalidConfig,
		},
		{
			name:    "unparsable duration",
			env:     map[string]string{"RESEARCH_DOI_TIMEOUT": "soon"},
			wantErr: envstruct.ErrParseValue,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Load(lookup(tt.env), missing)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoad_EnvFile(t *testing.T) {
	const key = "RESEARCH_CONFIG_TEST_DIR"
	envFile := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte(key+"=/from/dotenv\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	_, err := config.Load(os.LookupEnv, envFile)
	require.NoError(t, err)
	v, ok := os.LookupEnv(key)
	require.True(t, ok)
	require.Equal(t, "/from/dotenv", v)
}
