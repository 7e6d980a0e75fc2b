package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the farmhand service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Tabular   TabularConfig   `mapstructure:"tabular"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Janitor   JanitorConfig   `mapstructure:"janitor"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// LLMConfig contains the completion provider configuration
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"` // openai-compatible endpoints only for now
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

func (l LLMConfig) Validate() error {
	if strings.TrimSpace(l.Model) == "" {
		return fmt.Errorf("llm.model is required")
	}
	if strings.TrimSpace(l.APIKey) == "" && strings.TrimSpace(l.BaseURL) == "" {
		return fmt.Errorf("llm.api_key is required unless llm.base_url points at a local endpoint")
	}
	return nil
}

// SourcesConfig contains external answer-source configurations
type SourcesConfig struct {
	WebSearch WebSearchConfig `mapstructure:"web_search"`
	WebLookup WebLookupConfig `mapstructure:"web_lookup"`
}

// WebSearchConfig contains web search provider settings
type WebSearchConfig struct {
	Provider     string        `mapstructure:"provider"` // serper or brave
	BraveAPIKey  string        `mapstructure:"brave_api_key"`
	SerperAPIKey string        `mapstructure:"serper_api_key"`
	MaxResults   int           `mapstructure:"max_results"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

func (w WebSearchConfig) Validate() error {
	switch w.Provider {
	case "serper":
		if strings.TrimSpace(w.SerperAPIKey) == "" {
			return fmt.Errorf("sources.web_search.serper_api_key required for provider serper")
		}
	case "brave":
		if strings.TrimSpace(w.BraveAPIKey) == "" {
			return fmt.Errorf("sources.web_search.brave_api_key required for provider brave")
		}
	case "":
		return fmt.Errorf("sources.web_search.provider is required")
	default:
		return fmt.Errorf("sources.web_search.provider %q not supported", w.Provider)
	}
	return nil
}

// WebLookupConfig controls the cached web-lookup answering path
type WebLookupConfig struct {
	FreshnessWindow   time.Duration `mapstructure:"freshness_window"`
	CacheBackend      string        `mapstructure:"cache_backend"` // memory or redis
	DeepFetch         bool          `mapstructure:"deep_fetch"`
	DeepFetchMaxChars int           `mapstructure:"deep_fetch_max_chars"`
}

func (w WebLookupConfig) Validate() error {
	switch w.CacheBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("sources.web_lookup.cache_backend must be memory or redis, got %q", w.CacheBackend)
	}
	if w.FreshnessWindow <= 0 {
		return fmt.Errorf("sources.web_lookup.freshness_window must be positive")
	}
	return nil
}

// TabularConfig contains dataset analysis settings
type TabularConfig struct {
	DataDir     string `mapstructure:"data_dir"`
	PreviewRows int    `mapstructure:"preview_rows"`
}

// AnalyticsConfig contains the query-event journal settings
type AnalyticsConfig struct {
	LogFile string `mapstructure:"log_file"` // empty disables the rotating journal
}

// JanitorConfig contains background maintenance settings
type JanitorConfig struct {
	Schedule  string        `mapstructure:"schedule"`  // cron expression, @hourly by default
	Retention time.Duration `mapstructure:"retention"` // 0 disables idle-conversation purging
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// Addr returns host:port for the Redis client.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.Port) == "" {
		return fmt.Errorf("storage.postgres.port required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN returns a connection string usable by lib/pq and golang-migrate.
func (p PostgresConfig) DSN() string {
	if strings.TrimSpace(p.URL) != "" {
		return p.URL
	}
	sslmode := p.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		url.QueryEscape(p.User), url.QueryEscape(p.Password), p.Host, p.Port, p.DBName, sslmode)
}

// LoadConfig loads config from file
func LoadConfig(path string) *Config {
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("json")   // REQUIRED if the config file does not have the extension in the name
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("llm.provider", "openai")
	viper.SetDefault("llm.model", "gpt-4o-mini")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.max_tokens", 1024)
	viper.SetDefault("llm.timeout", time.Minute)
	viper.SetDefault("sources.web_search.provider", "serper")
	viper.SetDefault("sources.web_search.max_results", 5)
	viper.SetDefault("sources.web_search.timeout", 20*time.Second)
	viper.SetDefault("sources.web_lookup.freshness_window", 3600*time.Second)
	viper.SetDefault("sources.web_lookup.cache_backend", "memory")
	viper.SetDefault("sources.web_lookup.deep_fetch", false)
	viper.SetDefault("sources.web_lookup.deep_fetch_max_chars", 4000)
	viper.SetDefault("tabular.data_dir", "./data")
	viper.SetDefault("tabular.preview_rows", 5)
	viper.SetDefault("janitor.schedule", "@hourly")
	viper.SetDefault("janitor.retention", time.Duration(0))

	if path == "" {
		viper.AddConfigPath("./app/config") // path to look for the config file in
		viper.AddConfigPath("./config")     // path to look for the config file in
		viper.AddConfigPath(".")            // optionally look for config in the working directory
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)                                // bin/
		viper.AddConfigPath(filepath.Join(exeDir, ".."))           // repo root
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config")) // repo root/config
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("FARMHAND")
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)

	viper.AutomaticEnv() // read in environment variables that match (FARMHAND_*)

	err := viper.ReadInConfig() // Find and read the config file
	if err != nil {             // Handle errors reading the config file
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	// unmarshal config
	var config Config

	if err = viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	if err := config.LLM.Validate(); err != nil {
		panic(err)
	}
	if err := config.Sources.WebSearch.Validate(); err != nil {
		panic(err)
	}
	if err := config.Sources.WebLookup.Validate(); err != nil {
		panic(err)
	}
	if err := config.Storage.Postgres.Validate(); err != nil {
		panic(err)
	}
	if config.Sources.WebLookup.CacheBackend == "redis" || config.Janitor.Retention > 0 {
		if err := config.Storage.Redis.Validate(); err != nil {
			panic(err)
		}
	}
	return &config
}
