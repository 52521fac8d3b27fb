package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"assistant/internal/constants"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Completion CompletionConfig `yaml:"completion"`
	Chat       ChatConfig       `yaml:"chat"`
}

type ServerConfig struct {
	Name           string   `yaml:"name"`
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	BaseURL        string   `yaml:"base_url"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	TrustedProxies []string `yaml:"trusted_proxies"`
}

type StorageConfig struct {
	Root                string        `yaml:"root"`
	DatabasePath        string        `yaml:"database_path"`
	Bucket              string        `yaml:"bucket"`
	UploadMaxBytes      SizeBytes     `yaml:"upload_max_bytes"`
	InlineImageMaxBytes SizeBytes     `yaml:"inline_image_max_bytes"`
	CacheControl        string        `yaml:"cache_control"`
	AllowedMimeTypes    []string      `yaml:"allowed_mime_types"`
	UploadConcurrency   int           `yaml:"upload_concurrency"`
	Retention           time.Duration `yaml:"retention"`
}

type CompletionConfig struct {
	Backend         string        `yaml:"backend"` // rest or langchaingo
	APIKey          string        `yaml:"api_key"`
	BaseURL         string        `yaml:"base_url"`
	Model           string        `yaml:"model"`
	Temperature     float64       `yaml:"temperature"`
	TopK            int           `yaml:"top_k"`
	TopP            float64       `yaml:"top_p"`
	MaxOutputTokens int           `yaml:"max_output_tokens"`
	Timeout         time.Duration `yaml:"timeout"`
	FetchTimeout    time.Duration `yaml:"fetch_timeout"`
	FetchMaxBytes   SizeBytes     `yaml:"fetch_max_bytes"`
	SystemPrompt    string        `yaml:"system_prompt"`
}

type ChatConfig struct {
	WelcomeMessage   string        `yaml:"welcome_message"`
	SessionIdleTTL   time.Duration `yaml:"session_idle_ttl"`
	MaxMessageLength int           `yaml:"max_message_length"`
}

const (
	BackendREST        = "rest"
	BackendLangchainGo = "langchaingo"
)

// SizeBytes accepts either a plain byte count or a human readable size ("10MiB", "500 KB").
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParseSize(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*s = parsed
	return nil
}

func ParseSize(raw string) (SizeBytes, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("size %q must not be negative", raw)
		}
		return SizeBytes(n), nil
	}
	n, err := humanize.ParseBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", raw, err)
	}
	return SizeBytes(n), nil
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Completion.APIKey = v
	}
	if v := os.Getenv("ASSISTANT_GEMINI_API_KEY"); v != "" {
		c.Completion.APIKey = v
	}
	if v := os.Getenv("ASSISTANT_BASE_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("ASSISTANT_COMPLETION_BACKEND"); v != "" {
		c.Completion.Backend = v
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Completion.APIKey) == "" {
		return fmt.Errorf("completion.api_key is required")
	}
	switch c.Completion.Backend {
	case "", BackendREST, BackendLangchainGo:
	default:
		return fmt.Errorf("completion.backend must be %q or %q", BackendREST, BackendLangchainGo)
	}
	if c.Storage.UploadMaxBytes < 0 || c.Storage.InlineImageMaxBytes < 0 {
		return fmt.Errorf("storage sizes must not be negative")
	}
	if c.Storage.UploadMaxBytes > 0 && c.Storage.InlineImageMaxBytes > c.Storage.UploadMaxBytes {
		return fmt.Errorf("storage.inline_image_max_bytes must not exceed storage.upload_max_bytes")
	}
	if c.Completion.Temperature < 0 || c.Completion.Temperature > 2 {
		return fmt.Errorf("completion.temperature must be between 0 and 2")
	}
	if c.Completion.TopP < 0 || c.Completion.TopP > 1 {
		return fmt.Errorf("completion.top_p must be between 0 and 1")
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Name == "" {
		c.Server.Name = "AI Assistant"
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = fmt.Sprintf("http://%s:%d", c.Server.Host, c.Server.Port)
	}
	c.Server.BaseURL = strings.TrimRight(c.Server.BaseURL, "/")
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}

	if c.Storage.Root == "" {
		c.Storage.Root = "./data/objects"
	}
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = "./data/storage.db"
	}
	if c.Storage.Bucket == "" {
		c.Storage.Bucket = constants.DefaultMediaBucket
	}
	if c.Storage.UploadMaxBytes == 0 {
		c.Storage.UploadMaxBytes = constants.DefaultUploadMaxBytes
	}
	if c.Storage.InlineImageMaxBytes == 0 {
		c.Storage.InlineImageMaxBytes = constants.DefaultInlineImageMaxBytes
	}
	if c.Storage.CacheControl == "" {
		c.Storage.CacheControl = constants.DefaultUploadCacheControl
	}
	if len(c.Storage.AllowedMimeTypes) == 0 {
		c.Storage.AllowedMimeTypes = append([]string(nil), constants.DefaultAllowedMimeTypes...)
	}
	if c.Storage.UploadConcurrency <= 0 {
		c.Storage.UploadConcurrency = constants.DefaultUploadConcurrency
	}
	if c.Storage.Retention == 0 {
		c.Storage.Retention = 24 * time.Hour
	}

	if c.Completion.Backend == "" {
		c.Completion.Backend = BackendREST
	}
	if c.Completion.BaseURL == "" {
		c.Completion.BaseURL = "https://generativelanguage.googleapis.com"
	}
	c.Completion.BaseURL = strings.TrimRight(c.Completion.BaseURL, "/")
	if c.Completion.Model == "" {
		c.Completion.Model = "gemini-2.0-flash"
	}
	if c.Completion.Temperature == 0 {
		c.Completion.Temperature = 0.7
	}
	if c.Completion.TopK == 0 {
		c.Completion.TopK = 40
	}
	if c.Completion.TopP == 0 {
		c.Completion.TopP = 0.95
	}
	if c.Completion.MaxOutputTokens == 0 {
		c.Completion.MaxOutputTokens = 2048
	}
	if c.Completion.Timeout == 0 {
		c.Completion.Timeout = 60 * time.Second
	}
	if c.Completion.FetchTimeout == 0 {
		c.Completion.FetchTimeout = 20 * time.Second
	}
	if c.Completion.FetchMaxBytes == 0 {
		c.Completion.FetchMaxBytes = c.Storage.UploadMaxBytes
	}

	if c.Chat.WelcomeMessage == "" {
		c.Chat.WelcomeMessage = constants.WelcomeMessage
	}
	if c.Chat.SessionIdleTTL == 0 {
		c.Chat.SessionIdleTTL = 2 * time.Hour
	}
	if c.Chat.MaxMessageLength == 0 {
		c.Chat.MaxMessageLength = constants.MaxMessageContentLength
	}
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
