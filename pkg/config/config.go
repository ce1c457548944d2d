package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	LLM      LLMConfig
	Analysis AnalysisConfig
	SQLite   SQLiteConfig
	Redis    RedisConfig
	Neo4j    Neo4jConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Host                 string
	Port                 int
	ReadTimeout          int
	WriteTimeout         int
	BodyLimit            int
	AllowedOrigins       []string
	MaxRequestsPerMinute int
	IsDevelopment        bool
}

// LLMConfig selects and configures the generation service. Provider is
// "openai" for any OpenAI-compatible remote endpoint or "local" for a local
// model server speaking the completions API.
type LLMConfig struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	MaxTokens   int
	TimeoutSec  int
	Local       LocalModelConfig
}

type LocalModelConfig struct {
	BaseURL     string
	Model       string
	ContextSize int
}

type AnalysisConfig struct {
	LanguageDetector    string
	MaxContentChars     int
	LanguageSampleChars int
	CacheTTLMinutes     int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type Neo4jConfig struct {
	Enabled  bool
	URI      string
	Username string
	Password string
	Database string
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

// GenerationTimeout is the bound the integrating layer puts on one
// generation round trip.
func (c LLMConfig) GenerationTimeout() time.Duration {
	if c.TimeoutSec <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSec) * time.Second
}

func (c AnalysisConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

func Load() (*Config, error) {
	return LoadWith(viper.GetViper())
}

// LoadWith reads configuration through v so callers (the CLI) can bind flags
// before loading.
func LoadWith(v *viper.Viper) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/doc-analyzer")

	v.SetEnvPrefix("DOC_ANALYZER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "openai":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("llm.apiKey is required for provider %q", c.LLM.Provider)
		}
	case "local":
		if c.LLM.Local.BaseURL == "" {
			return fmt.Errorf("llm.local.baseURL is required for provider %q", c.LLM.Provider)
		}
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}

	switch c.Analysis.LanguageDetector {
	case "statistical", "generative":
	default:
		return fmt.Errorf("unknown language detector %q", c.Analysis.LanguageDetector)
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 120)
	v.SetDefault("server.bodyLimit", 50*1024*1024)
	v.SetDefault("server.allowedOrigins", []string{"*"})
	v.SetDefault("server.maxRequestsPerMinute", 30)
	v.SetDefault("server.isDevelopment", false)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.apiKey", "")
	v.SetDefault("llm.baseURL", "")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.maxTokens", 8192)
	v.SetDefault("llm.timeoutSec", 90)
	v.SetDefault("llm.local.baseURL", "http://localhost:8080/v1")
	v.SetDefault("llm.local.model", "llama-2-7b-chat")
	v.SetDefault("llm.local.contextSize", 4096)

	v.SetDefault("analysis.languageDetector", "statistical")
	v.SetDefault("analysis.maxContentChars", 15000)
	v.SetDefault("analysis.languageSampleChars", 1000)
	v.SetDefault("analysis.cacheTTLMinutes", 60)

	v.SetDefault("sqlite.path", "./data/analyses.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("neo4j.enabled", false)
	v.SetDefault("neo4j.uri", "bolt://localhost:7687")
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("neo4j.password", "password")
	v.SetDefault("neo4j.database", "neo4j")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
