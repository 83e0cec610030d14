// Package config provides centralized configuration for testforge.
// Values come from the environment (optionally seeded from a .env file), an
// optional testforge.yaml in the working directory, and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Provider names accepted by LLM_PROVIDER.
const (
	ProviderAssistants = "openai-assistants"
	ProviderOpenAI     = "openai"
	ProviderDeepSeek   = "deepseek"
	ProviderClaude     = "claude"
	ProviderGemini     = "gemini"
	ProviderOllama     = "ollama"
	ProviderStub       = "stub"
)

// Page content modes accepted by PAGE_CONTENT.
const (
	PageContentHTML     = "html"
	PageContentReadable = "readable"
)

// Working directory layout.
const (
	PagesDirName        = "scraped_pages"
	RequirementsDirName = "image_requirements"
	CombinedDirName     = "combined"
	TestsDirName        = "tests"
)

// Config holds all configuration values.
type Config struct {
	// Port is the HTTP server listen port.
	Port string

	// DBPath is the path to the SQLite database file.
	DBPath string

	// WorkDir holds scraped pages, requirements, combined artifacts and tests.
	WorkDir string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// LLMProvider selects the generation backend.
	LLMProvider string

	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string

	DeepSeekKey     string
	DeepSeekBaseURL string
	DeepSeekModel   string

	AnthropicKey   string
	AnthropicModel string

	GeminiKey   string
	GeminiModel string

	OllamaURL   string
	OllamaModel string

	// CrawlBaseDelay is the unit of the linear 429 backoff.
	CrawlBaseDelay time.Duration

	// CrawlMaxAttempts bounds fetch attempts per URL.
	CrawlMaxAttempts int

	// CrawlPoliteness is the pause after every successful fetch.
	CrawlPoliteness time.Duration

	// CrawlMaxPages caps accepted pages per crawl. 0 means unbounded.
	CrawlMaxPages int

	// CrawlRateLimit is a requests-per-second ceiling for the fetcher. 0 disables it.
	CrawlRateLimit float64

	// HTTPTimeout is the timeout for outgoing HTTP requests (crawl, LLM).
	HTTPTimeout time.Duration

	SessionPollInterval time.Duration
	SessionMaxTurns     int
	SessionRunTimeout   time.Duration

	// MatchCutoff is the minimum similarity for a requirement to match a page.
	MatchCutoff float64

	// PageContent selects raw HTML or readability text for combined artifacts.
	PageContent string

	PromptFile      string
	ContinuePrompt  string
	ExampleTestFile string

	// SharedFiles are uploaded once per backend identity and attached to
	// every session.
	SharedFiles []string

	// WorkerInterval is the polling interval for the background worker.
	WorkerInterval time.Duration

	// CORSOrigin is the allowed CORS origin. Defaults to "*".
	CORSOrigin string
}

var defaults = map[string]any{
	"port":                  "8080",
	"db_path":               "testforge.db",
	"work_dir":              ".",
	"log_level":             "info",
	"llm_provider":          ProviderAssistants,
	"openai_base_url":       "https://api.openai.com/v1",
	"openai_model":          "gpt-4o-mini",
	"deepseek_base_url":     "https://api.deepseek.com/v1",
	"deepseek_model":        "deepseek-chat",
	"anthropic_model":       "claude-sonnet-4-20250514",
	"gemini_model":          "gemini-2.0-flash",
	"ollama_url":            "http://localhost:11434",
	"ollama_model":          "llama3",
	"crawl_base_delay":      "5s",
	"crawl_max_attempts":    5,
	"crawl_politeness":      "500ms",
	"crawl_max_pages":       0,
	"crawl_rate_limit":      0.0,
	"http_timeout":          "60s",
	"session_poll_interval": "2s",
	"session_max_turns":     5,
	"session_run_timeout":   "10m",
	"match_cutoff":          0.6,
	"page_content":          PageContentHTML,
	"example_test_file":     "exampleTest.txt",
	"worker_interval":       "3s",
	"cors_origin":           "*",
}

// Load reads configuration from .env, the environment, an optional
// testforge.yaml and defaults. A malformed config file is ignored.
func Load() Config {
	cfg, _ := LoadFile("")
	return cfg
}

// LoadFile is Load with an explicit config file. An empty path looks for
// testforge.yaml in the working directory and tolerates its absence.
func LoadFile(path string) (Config, error) {
	loadEnvFile(".env")

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var readErr error
	if path != "" {
		v.SetConfigFile(path)
		readErr = v.ReadInConfig()
	} else {
		v.SetConfigName("testforge")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				readErr = err
			}
		}
	}
	if readErr != nil {
		readErr = fmt.Errorf("read config: %w", readErr)
	}

	return fromViper(v), readErr
}

func fromViper(v *viper.Viper) Config {
	return Config{
		Port:                v.GetString("port"),
		DBPath:              v.GetString("db_path"),
		WorkDir:             v.GetString("work_dir"),
		LogLevel:            strings.ToLower(v.GetString("log_level")),
		LLMProvider:         strings.ToLower(v.GetString("llm_provider")),
		OpenAIKey:           v.GetString("openai_api_key"),
		OpenAIBaseURL:       v.GetString("openai_base_url"),
		OpenAIModel:         v.GetString("openai_model"),
		DeepSeekKey:         v.GetString("deepseek_api_key"),
		DeepSeekBaseURL:     v.GetString("deepseek_base_url"),
		DeepSeekModel:       v.GetString("deepseek_model"),
		AnthropicKey:        v.GetString("anthropic_api_key"),
		AnthropicModel:      v.GetString("anthropic_model"),
		GeminiKey:           v.GetString("gemini_api_key"),
		GeminiModel:         v.GetString("gemini_model"),
		OllamaURL:           v.GetString("ollama_url"),
		OllamaModel:         v.GetString("ollama_model"),
		CrawlBaseDelay:      duration(v, "crawl_base_delay"),
		CrawlMaxAttempts:    integer(v, "crawl_max_attempts"),
		CrawlPoliteness:     duration(v, "crawl_politeness"),
		CrawlMaxPages:       integer(v, "crawl_max_pages"),
		CrawlRateLimit:      float(v, "crawl_rate_limit"),
		HTTPTimeout:         duration(v, "http_timeout"),
		SessionPollInterval: duration(v, "session_poll_interval"),
		SessionMaxTurns:     integer(v, "session_max_turns"),
		SessionRunTimeout:   duration(v, "session_run_timeout"),
		MatchCutoff:         float(v, "match_cutoff"),
		PageContent:         strings.ToLower(v.GetString("page_content")),
		PromptFile:          v.GetString("prompt_file"),
		ContinuePrompt:      v.GetString("continue_prompt"),
		ExampleTestFile:     v.GetString("example_test_file"),
		SharedFiles:         list(v.GetString("shared_files")),
		WorkerInterval:      duration(v, "worker_interval"),
		CORSOrigin:          v.GetString("cors_origin"),
	}
}

// UseStubs returns true when the selected provider has no credentials, or
// the stub provider was asked for explicitly.
func (c Config) UseStubs() bool {
	switch c.LLMProvider {
	case ProviderStub:
		return true
	case ProviderDeepSeek:
		return c.DeepSeekKey == ""
	case ProviderClaude:
		return c.AnthropicKey == ""
	case ProviderGemini:
		return c.GeminiKey == ""
	case ProviderOllama:
		return false // Ollama runs locally, no key needed
	default:
		return c.OpenAIKey == ""
	}
}

// PagesDir is where raw page HTML is stored.
func (c Config) PagesDir() string { return filepath.Join(c.WorkDir, PagesDirName) }

// RequirementsDir is where requirement artifacts are read from.
func (c Config) RequirementsDir() string { return filepath.Join(c.WorkDir, RequirementsDirName) }

// CombinedDir is where combined artifacts are written.
func (c Config) CombinedDir() string { return filepath.Join(c.WorkDir, CombinedDirName) }

// TestsDir is where generated test files are written.
func (c Config) TestsDir() string { return filepath.Join(c.WorkDir, TestsDirName) }

// loadEnvFile loads KEY=VALUE pairs from path into the process environment.
// Variables that are already set win; a missing file is not an error.
func loadEnvFile(path string) {
	_ = godotenv.Load(path)
}

// duration reads key as a time.Duration, falling back to the default when
// the configured value does not parse.
func duration(v *viper.Viper, key string) time.Duration {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		d, _ = time.ParseDuration(fmt.Sprint(defaults[key]))
	}
	return d
}

func integer(v *viper.Viper, key string) int {
	n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		return defaults[key].(int)
	}
	return n
}

func float(v *viper.Viper, key string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v.GetString(key)), 64)
	if err != nil {
		return defaults[key].(float64)
	}
	return f
}

func list(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
