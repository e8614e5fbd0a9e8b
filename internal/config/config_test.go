package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/MimeLyc/subflow/internal/engine"
)

func setEngineKeys(t *testing.T) {
	t.Helper()
	t.Setenv("LLM_API_KEY", "llm-key")
	t.Setenv("GEMINI_API_KEY", "gemini-key")
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewFromEnv_Defaults(t *testing.T) {
	setEngineKeys(t)

	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "en", cfg.Translate.TargetLanguage)
	assert.Equal(t, language.English, cfg.Translate.Target())
	assert.Equal(t, 20, cfg.Translate.BatchSize)
	assert.Equal(t, time.Second, cfg.Translate.Pacing.Std())
	assert.Equal(t, 60*time.Second, cfg.Translate.CallTimeout.Std())
	assert.Equal(t, OutputStyleLang, cfg.Translate.OutputStyle)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 2, cfg.Queue.Workers)

	primary, fallback, err := cfg.Translate.Engines()
	require.NoError(t, err)
	assert.Equal(t, engine.KindGenerative, primary)
	assert.Equal(t, engine.KindCompletion, fallback)
}

func TestNewFromEnv_Overrides(t *testing.T) {
	setEngineKeys(t)
	t.Setenv("TARGET_LANGUAGE", "fr")
	t.Setenv("PRIMARY_ENGINE", "gpt")
	t.Setenv("FALLBACK_ENGINE", "gemini")
	t.Setenv("BATCH_SIZE", "5")
	t.Setenv("PACING", "250ms")
	t.Setenv("CALL_TIMEOUT", "15")
	t.Setenv("LLM_TEMPERATURE", "0.9")
	t.Setenv("QUEUE_WORKERS", "not-a-number")

	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, language.French, cfg.Translate.Target())
	assert.Equal(t, 5, cfg.Translate.BatchSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Translate.Pacing.Std())
	assert.Equal(t, 15*time.Second, cfg.Translate.CallTimeout.Std())
	assert.InDelta(t, 0.9, cfg.Engines.Completion.Temperature, 1e-9)
	assert.Equal(t, 2, cfg.Queue.Workers, "unparsable values keep the default")

	primary, fallback, err := cfg.Translate.Engines()
	require.NoError(t, err)
	assert.Equal(t, engine.KindCompletion, primary)
	assert.Equal(t, engine.KindGenerative, fallback)
}

func TestNewFromEnv_Options(t *testing.T) {
	setEngineKeys(t)

	cfg, err := NewFromEnv(func(c *Config) {
		c.Translate.BatchSize = 7
	})
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Translate.BatchSize)
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "subflow.toml", `
[engines.completion]
api_key = "from-file"
model = "gpt-4o"

[engines.ollama]
model = "qwen2.5:7b"

[translate]
target_language = "de"
primary_engine = "ollama"
fallback_engine = "completion"
batch_size = 12
pacing = "2s"
output_style = "translated"

[storage]
db_path = "/data/subflow.db"
cache_ttl = "24h"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.Engines.Completion.APIKey)
	assert.Equal(t, "gpt-4o", cfg.Engines.Completion.Model)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.Engines.Completion.APIURL, "defaults survive partial sections")
	assert.Equal(t, "qwen2.5:7b", cfg.Engines.Ollama.Model)
	assert.Equal(t, language.German, cfg.Translate.Target())
	assert.Equal(t, 12, cfg.Translate.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.Translate.Pacing.Std())
	assert.Equal(t, OutputStyleTranslated, cfg.Translate.OutputStyle)
	assert.Equal(t, "/data/subflow.db", cfg.Storage.DBPath)
	assert.Equal(t, 24*time.Hour, cfg.Storage.CacheTTL.Std())
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "subflow.yaml", `
engines:
  generative:
    api_key: yaml-key
translate:
  target_language: ja
  primary_engine: gemini
  fallback_engine: echo
  call_timeout: 30s
inbox:
  dir: /inbox
  cron_expr: "*/15 * * * *"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "yaml-key", cfg.Engines.Generative.APIKey)
	assert.Equal(t, language.Japanese, cfg.Translate.Target())
	assert.Equal(t, 30*time.Second, cfg.Translate.CallTimeout.Std())
	assert.Equal(t, "/inbox", cfg.Inbox.Dir)
	assert.Equal(t, "*/15 * * * *", cfg.Inbox.CronExpr)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("BATCH_SIZE", "3")
	path := writeFile(t, "subflow.toml", `
[translate]
primary_engine = "echo"
fallback_engine = "ollama"
batch_size = 40

[engines.ollama]
model = "llama3"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Translate.BatchSize)
}

func TestLoad_FileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)

	_, err = Load(writeFile(t, "subflow.json", `{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported config file extension")

	_, err = Load(writeFile(t, "broken.toml", "[translate\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "invalid target language",
			mutate:  func(c *Config) { c.Translate.TargetLanguage = "not a tag" },
			wantErr: "invalid target language",
		},
		{
			name:    "unknown engine",
			mutate:  func(c *Config) { c.Translate.PrimaryEngine = "babelfish" },
			wantErr: "primary engine",
		},
		{
			name: "same primary and fallback",
			mutate: func(c *Config) {
				c.Translate.PrimaryEngine = "gemini"
				c.Translate.FallbackEngine = "generative"
			},
			wantErr: "must differ",
		},
		{
			name:    "missing key of selected engine",
			mutate:  func(c *Config) { c.Engines.Completion.APIKey = "" },
			wantErr: "completion engine",
		},
		{
			name:    "zero batch size",
			mutate:  func(c *Config) { c.Translate.BatchSize = 0 },
			wantErr: "batch size",
		},
		{
			name:    "zero call timeout",
			mutate:  func(c *Config) { c.Translate.CallTimeout = 0 },
			wantErr: "call timeout",
		},
		{
			name:    "unknown output style",
			mutate:  func(c *Config) { c.Translate.OutputStyle = "suffix" },
			wantErr: "output style",
		},
		{
			name: "bad cron with inbox",
			mutate: func(c *Config) {
				c.Inbox.Dir = "/inbox"
				c.Inbox.CronExpr = "every day"
			},
			wantErr: "invalid cron expression",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEngineKeys(t)
			_, err := NewFromEnv(tt.mutate)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_UnselectedEngineNotChecked(t *testing.T) {
	_, err := NewFromEnv(func(c *Config) {
		c.Translate.PrimaryEngine = "echo"
		c.Translate.FallbackEngine = "ollama"
		c.Engines.Ollama.Model = "llama3"
		c.Engines.Completion.APIKey = ""
		c.Engines.Generative.APIKey = ""
	})
	require.NoError(t, err)
}

func TestSkipEngineCheck(t *testing.T) {
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")

	_, err := NewFromEnv()
	require.Error(t, err)

	cfg, err := NewFromEnv(SkipEngineCheck())
	require.NoError(t, err)
	assert.Equal(t, "generative", cfg.Translate.PrimaryEngine)

	_, err = NewFromEnv(SkipEngineCheck(), func(c *Config) { c.Translate.FallbackEngine = "babelfish" })
	assert.Error(t, err, "engine names are still parsed")
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Std())

	require.NoError(t, d.UnmarshalText([]byte("5")))
	assert.Equal(t, 5*time.Second, d.Std())

	assert.Error(t, d.UnmarshalText([]byte("soon")))
}
