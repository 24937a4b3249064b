package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/TobiSchelling/PageInsights/internal/llm"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

const appName = "pageinsights"

type Config struct {
	Analysis Analysis `yaml:"analysis"`
	LLM      LLM      `yaml:"llm"`
	Server   Server   `yaml:"server"`
	History  History  `yaml:"history"`
	Output   Output   `yaml:"output"`
	Logging  Logging  `yaml:"logging"`
}

type Analysis struct {
	TopN             int      `yaml:"top_n"`
	MinRatioArticles int      `yaml:"min_ratio_articles"`
	PopularSections  []string `yaml:"popular_sections"`
}

type LLM struct {
	Provider        string   `yaml:"provider"`
	Model           string   `yaml:"model"`
	FallbackModels  []string `yaml:"fallback_models"`
	OllamaURL       string   `yaml:"ollama_url"`
	OpenAIModel     string   `yaml:"openai_model"`
	OpenAIURL       string   `yaml:"openai_url"`
	APIKeyEnv       string   `yaml:"api_key_env"`
	AnthropicModel  string   `yaml:"anthropic_model"`
	AnthropicURL    string   `yaml:"anthropic_url"`
	AnthropicKeyEnv string   `yaml:"anthropic_key_env"`
	MaxTokens       int      `yaml:"max_tokens"`
	Temperature     float64  `yaml:"temperature"`
	TimeoutSeconds  int      `yaml:"timeout_seconds"`
	Concurrency     int      `yaml:"concurrency"`
}

type Server struct {
	Port        int       `yaml:"port"`
	CORSOrigins []string  `yaml:"cors_origins"`
	MaxUploadMB int       `yaml:"max_upload_mb"`
	RateLimit   RateLimit `yaml:"rate_limit"`
}

type RateLimit struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type History struct {
	Enabled bool `yaml:"enabled"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ConfigDir returns the XDG config directory for pageinsights.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", appName)
}

// DataDir returns the XDG data directory for pageinsights.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", appName)
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/pageinsights/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'pageinsights init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Default returns the embedded default configuration.
func Default() *Config {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded default config: %v", err))
	}
	return cfg
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Analysis: Analysis{
			TopN:             10,
			MinRatioArticles: 2,
		},
		LLM: LLM{
			Provider:        "ollama",
			Model:           "qwen2.5:7b",
			OllamaURL:       llm.DefaultOllamaURL,
			OpenAIModel:     "gpt-4o-mini",
			APIKeyEnv:       "OPENAI_API_KEY",
			AnthropicModel:  "claude-3-5-sonnet-20241022",
			AnthropicKeyEnv: "ANTHROPIC_API_KEY",
			MaxTokens:       1500,
			Temperature:     0.3,
			TimeoutSeconds:  120,
			Concurrency:     2,
		},
		Server: Server{
			Port:        8000,
			MaxUploadMB: 20,
			RateLimit:   RateLimit{RPS: 1, Burst: 5},
		},
		History: History{Enabled: true},
		Logging: Logging{Level: "info", Format: "console"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if _, err := llm.ParseKind(cfg.LLM.Provider); err != nil {
		return nil, fmt.Errorf("parsing config: llm.provider: %w", err)
	}
	if cfg.Analysis.MinRatioArticles < 2 {
		cfg.Analysis.MinRatioArticles = 2
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// HistoryPath is the SQLite file holding insight run history.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.GetDataDir(), "history.db")
}

// Timeout is the per-attempt generation timeout.
func (c *Config) Timeout() time.Duration {
	if c.LLM.TimeoutSeconds <= 0 {
		return llm.DefaultTimeout
	}
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// ProviderSettings builds the settings for kind. model is the Ollama model;
// the hosted providers have their own model keys. Fallback models apply
// only to the configured provider.
func (c *Config) ProviderSettings(kind llm.Kind) llm.Settings {
	s := llm.Settings{
		Kind:        kind,
		MaxTokens:   c.LLM.MaxTokens,
		Temperature: c.LLM.Temperature,
		Timeout:     c.Timeout(),
	}
	configured, _ := llm.ParseKind(c.LLM.Provider)

	switch kind {
	case llm.KindOpenAI:
		s.Model = c.LLM.OpenAIModel
		s.BaseURL = c.LLM.OpenAIURL
		s.APIKeyEnv = c.LLM.APIKeyEnv
	case llm.KindAnthropic:
		s.Model = c.LLM.AnthropicModel
		s.BaseURL = c.LLM.AnthropicURL
		s.APIKeyEnv = c.LLM.AnthropicKeyEnv
	default:
		s.Model = c.LLM.Model
		s.BaseURL = c.LLM.OllamaURL
	}
	if kind == configured {
		s.FallbackModels = c.LLM.FallbackModels
	}
	return s
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
