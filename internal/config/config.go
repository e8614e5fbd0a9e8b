package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/MimeLyc/subflow/internal/engine"
	"github.com/MimeLyc/subflow/internal/llm"
	"github.com/MimeLyc/subflow/pkg/icron"
	"github.com/MimeLyc/subflow/pkg/log"
)

// Config holds all application configuration.
// Values are resolved in order: defaults, config file, environment, options.
//
// Environment Variables:
// Engines:
// - LLM_API_KEY, LLM_API_URL, LLM_MODEL, LLM_MAX_TOKENS, LLM_TEMPERATURE, LLM_TIMEOUT,
//   LLM_SITE_URL, LLM_APP_NAME: OpenAI-compatible completion engine
// - GEMINI_API_KEY, GEMINI_BASE_URL, GEMINI_MODEL, GEMINI_TEMPERATURE, GEMINI_TIMEOUT:
//   generative engine
// - OLLAMA_BASE_URL, OLLAMA_MODEL, OLLAMA_TEMPERATURE, OLLAMA_NUM_CTX, OLLAMA_TIMEOUT
//
// Translation:
// - TARGET_LANGUAGE: BCP 47 tag (default: en)
// - PRIMARY_ENGINE: (default: generative)
// - FALLBACK_ENGINE: (default: completion)
// - BATCH_SIZE: units per batch (default: 20)
// - MAX_CHARS: characters per batch (default: 2000)
// - PACING: pause between engine-calling batches (default: 1s)
// - CALL_TIMEOUT: per engine call (default: 60s)
// - OUTPUT_STYLE: lang or translated (default: lang)
//
// Runtime:
// - DB_PATH, CACHE_PATH, CACHE_TTL
// - HTTP_ADDR (default: :8080)
// - INBOX_DIR, CRON_EXPR (default: 0 0 * * *)
// - QUEUE_WORKERS (default: 2)
// - AMQP_URL, AMQP_REQUEST_QUEUE, AMQP_RESULT_QUEUE
// - LOG_LEVEL (default: info)
type Config struct {
	Engines   EnginesConfig   `toml:"engines" yaml:"engines"`
	Translate TranslateConfig `toml:"translate" yaml:"translate"`
	Storage   StorageConfig   `toml:"storage" yaml:"storage"`
	HTTP      HTTPConfig      `toml:"http" yaml:"http"`
	Inbox     InboxConfig     `toml:"inbox" yaml:"inbox"`
	Queue     QueueConfig     `toml:"queue" yaml:"queue"`
	AMQP      AMQPConfig      `toml:"amqp" yaml:"amqp"`
	Log       LogConfig       `toml:"log" yaml:"log"`

	skipEngineCheck bool
}

// EnginesConfig holds the settings of every backend
type EnginesConfig struct {
	Completion llm.Config              `toml:"completion" yaml:"completion"`
	Generative engine.GenerativeConfig `toml:"generative" yaml:"generative"`
	Ollama     engine.OllamaConfig     `toml:"ollama" yaml:"ollama"`
}

// EngineConfig returns the value passed to engine.New
func (c EnginesConfig) EngineConfig() engine.Config {
	return engine.Config{
		Completion: c.Completion,
		Generative: c.Generative,
		Ollama:     c.Ollama,
	}
}

const (
	OutputStyleLang       = "lang"
	OutputStyleTranslated = "translated"
)

type TranslateConfig struct {
	TargetLanguage string   `toml:"target_language" yaml:"target_language"`
	PrimaryEngine  string   `toml:"primary_engine" yaml:"primary_engine"`
	FallbackEngine string   `toml:"fallback_engine" yaml:"fallback_engine"`
	BatchSize      int      `toml:"batch_size" yaml:"batch_size"`
	MaxChars       int      `toml:"max_chars" yaml:"max_chars"`
	Pacing         Duration `toml:"pacing" yaml:"pacing"`
	CallTimeout    Duration `toml:"call_timeout" yaml:"call_timeout"`
	OutputStyle    string   `toml:"output_style" yaml:"output_style"`
}

// Target returns the parsed target language. Load has already validated it.
func (c TranslateConfig) Target() language.Tag {
	return language.Make(c.TargetLanguage)
}

// Engines resolves the primary and fallback engine kinds
func (c TranslateConfig) Engines() (primary, fallback engine.Kind, err error) {
	if primary, err = engine.ParseKind(c.PrimaryEngine); err != nil {
		return engine.KindUnknown, engine.KindUnknown, fmt.Errorf("primary engine: %w", err)
	}
	if fallback, err = engine.ParseKind(c.FallbackEngine); err != nil {
		return engine.KindUnknown, engine.KindUnknown, fmt.Errorf("fallback engine: %w", err)
	}
	return primary, fallback, nil
}

type StorageConfig struct {
	DBPath    string   `toml:"db_path" yaml:"db_path"`
	CachePath string   `toml:"cache_path" yaml:"cache_path"`
	CacheTTL  Duration `toml:"cache_ttl" yaml:"cache_ttl"`
}

type HTTPConfig struct {
	Addr string `toml:"addr" yaml:"addr"`
}

// InboxConfig configures the scheduled directory sweep. An empty Dir disables it.
type InboxConfig struct {
	Dir      string `toml:"dir" yaml:"dir"`
	CronExpr string `toml:"cron_expr" yaml:"cron_expr"`
}

type QueueConfig struct {
	Workers int `toml:"workers" yaml:"workers"`
	MaxJobs int `toml:"max_jobs" yaml:"max_jobs"`
}

type AMQPConfig struct {
	URL          string `toml:"url" yaml:"url"`
	RequestQueue string `toml:"request_queue" yaml:"request_queue"`
	ResultQueue  string `toml:"result_queue" yaml:"result_queue"`
}

type LogConfig struct {
	Level string `toml:"level" yaml:"level"`
}

// Option is a function type for configuring Config
type Option func(*Config)

// SkipEngineCheck loads settings for commands that never call an engine.
// Engine names are still parsed.
func SkipEngineCheck() Option {
	return func(c *Config) {
		c.skipEngineCheck = true
	}
}

// Default returns the built-in settings
func Default() Config {
	return Config{
		Engines: EnginesConfig{
			Completion: llm.Config{
				APIURL:      "https://openrouter.ai/api/v1",
				Model:       "openai/gpt-4o-mini",
				MaxTokens:   8000,
				Temperature: 0.3,
				Timeout:     60,
			},
			Generative: engine.GenerativeConfig{
				Model:       "gemini-2.0-flash",
				Temperature: 0.3,
				Timeout:     60,
			},
			Ollama: engine.OllamaConfig{
				BaseURL:     "http://localhost:11434",
				Temperature: 0.3,
				NumCtx:      8192,
				Timeout:     300,
			},
		},
		Translate: TranslateConfig{
			TargetLanguage: "en",
			PrimaryEngine:  engine.KindGenerative.String(),
			FallbackEngine: engine.KindCompletion.String(),
			BatchSize:      20,
			MaxChars:       2000,
			Pacing:         Duration(time.Second),
			CallTimeout:    Duration(60 * time.Second),
			OutputStyle:    OutputStyleLang,
		},
		Storage: StorageConfig{
			CacheTTL: Duration(30 * 24 * time.Hour),
		},
		HTTP:  HTTPConfig{Addr: ":8080"},
		Inbox: InboxConfig{CronExpr: "0 0 * * *"},
		Queue: QueueConfig{Workers: 2, MaxJobs: 200},
		AMQP: AMQPConfig{
			RequestQueue: "subflow.requests",
			ResultQueue:  "subflow.results",
		},
		Log: LogConfig{Level: "info"},
	}
}

// NewFromEnv builds a Config from defaults, environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	return Load("", opts...)
}

// Load reads the optional config file at path, overlays environment variables
// and options, and validates the result.
func Load(path string, opts ...Option) (*Config, error) {
	config := Default()

	if path != "" {
		if err := config.readFile(path); err != nil {
			return nil, err
		}
	}

	config.applyEnv()

	for _, opt := range opts {
		opt(&config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Debug("Config: target=%s primary=%s fallback=%s batch=%d",
		config.Translate.TargetLanguage,
		config.Translate.PrimaryEngine,
		config.Translate.FallbackEngine,
		config.Translate.BatchSize)

	return &config, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = toml.Unmarshal(data, c)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	default:
		return fmt.Errorf("unsupported config file extension %q", ext)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	comp := &c.Engines.Completion
	comp.APIKey = getEnvString("LLM_API_KEY", comp.APIKey)
	comp.APIURL = getEnvString("LLM_API_URL", comp.APIURL)
	comp.Model = getEnvString("LLM_MODEL", comp.Model)
	comp.MaxTokens = getEnvInt("LLM_MAX_TOKENS", comp.MaxTokens)
	comp.Temperature = getEnvFloat("LLM_TEMPERATURE", comp.Temperature)
	comp.Timeout = getEnvInt("LLM_TIMEOUT", comp.Timeout)
	comp.SiteURL = getEnvString("LLM_SITE_URL", comp.SiteURL)
	comp.AppName = getEnvString("LLM_APP_NAME", comp.AppName)

	gen := &c.Engines.Generative
	gen.APIKey = getEnvString("GEMINI_API_KEY", gen.APIKey)
	gen.BaseURL = getEnvString("GEMINI_BASE_URL", gen.BaseURL)
	gen.Model = getEnvString("GEMINI_MODEL", gen.Model)
	gen.Temperature = getEnvFloat("GEMINI_TEMPERATURE", gen.Temperature)
	gen.Timeout = getEnvInt("GEMINI_TIMEOUT", gen.Timeout)

	oll := &c.Engines.Ollama
	oll.BaseURL = getEnvString("OLLAMA_BASE_URL", oll.BaseURL)
	oll.Model = getEnvString("OLLAMA_MODEL", oll.Model)
	oll.Temperature = getEnvFloat("OLLAMA_TEMPERATURE", oll.Temperature)
	oll.NumCtx = getEnvInt("OLLAMA_NUM_CTX", oll.NumCtx)
	oll.Timeout = getEnvInt("OLLAMA_TIMEOUT", oll.Timeout)

	tr := &c.Translate
	tr.TargetLanguage = getEnvString("TARGET_LANGUAGE", tr.TargetLanguage)
	tr.PrimaryEngine = getEnvString("PRIMARY_ENGINE", tr.PrimaryEngine)
	tr.FallbackEngine = getEnvString("FALLBACK_ENGINE", tr.FallbackEngine)
	tr.BatchSize = getEnvInt("BATCH_SIZE", tr.BatchSize)
	tr.MaxChars = getEnvInt("MAX_CHARS", tr.MaxChars)
	tr.Pacing = Duration(getEnvDuration("PACING", tr.Pacing.Std()))
	tr.CallTimeout = Duration(getEnvDuration("CALL_TIMEOUT", tr.CallTimeout.Std()))
	tr.OutputStyle = getEnvString("OUTPUT_STYLE", tr.OutputStyle)

	c.Storage.DBPath = getEnvString("DB_PATH", c.Storage.DBPath)
	c.Storage.CachePath = getEnvString("CACHE_PATH", c.Storage.CachePath)
	c.Storage.CacheTTL = Duration(getEnvDuration("CACHE_TTL", c.Storage.CacheTTL.Std()))

	c.HTTP.Addr = getEnvString("HTTP_ADDR", c.HTTP.Addr)
	c.Inbox.Dir = getEnvString("INBOX_DIR", c.Inbox.Dir)
	c.Inbox.CronExpr = getEnvString("CRON_EXPR", c.Inbox.CronExpr)
	c.Queue.Workers = getEnvInt("QUEUE_WORKERS", c.Queue.Workers)
	c.Queue.MaxJobs = getEnvInt("QUEUE_MAX_JOBS", c.Queue.MaxJobs)

	c.AMQP.URL = getEnvString("AMQP_URL", c.AMQP.URL)
	c.AMQP.RequestQueue = getEnvString("AMQP_REQUEST_QUEUE", c.AMQP.RequestQueue)
	c.AMQP.ResultQueue = getEnvString("AMQP_RESULT_QUEUE", c.AMQP.ResultQueue)

	c.Log.Level = getEnvString("LOG_LEVEL", c.Log.Level)
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	tr := c.Translate
	if _, err := language.Parse(tr.TargetLanguage); err != nil {
		return fmt.Errorf("invalid target language %q: %w", tr.TargetLanguage, err)
	}

	primary, fallback, err := tr.Engines()
	if err != nil {
		return err
	}
	if primary == fallback {
		return fmt.Errorf("primary and fallback engine must differ, both are %s", primary)
	}
	if !c.skipEngineCheck {
		for _, kind := range []engine.Kind{primary, fallback} {
			if err := c.Engines.validate(kind); err != nil {
				return err
			}
		}
	}

	if tr.BatchSize < 1 {
		return fmt.Errorf("batch size must be greater than 0")
	}
	if tr.MaxChars < 0 {
		return fmt.Errorf("max chars must not be negative")
	}
	if tr.Pacing < 0 {
		return fmt.Errorf("pacing must not be negative")
	}
	if tr.CallTimeout <= 0 {
		return fmt.Errorf("call timeout must be greater than 0")
	}
	if tr.OutputStyle != OutputStyleLang && tr.OutputStyle != OutputStyleTranslated {
		return fmt.Errorf("output style must be %q or %q", OutputStyleLang, OutputStyleTranslated)
	}

	if c.Storage.CacheTTL < 0 {
		return fmt.Errorf("cache ttl must not be negative")
	}
	if c.Queue.Workers < 1 {
		return fmt.Errorf("queue workers must be greater than 0")
	}
	if c.Inbox.Dir != "" {
		if err := icron.Validate(c.Inbox.CronExpr); err != nil {
			return err
		}
	}
	return nil
}

func (c EnginesConfig) validate(kind engine.Kind) error {
	var err error
	switch kind {
	case engine.KindCompletion:
		err = c.Completion.Validate()
	case engine.KindGenerative:
		err = c.Generative.Validate()
	case engine.KindOllama:
		err = c.Ollama.Validate()
	}
	if err != nil {
		return fmt.Errorf("%s engine: %w", kind, err)
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("1500ms") or plain seconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := parseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
