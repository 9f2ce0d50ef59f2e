package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	EnvNexusAPIKey  = "DLM_NEXUS_API_KEY"
	EnvRedisURL     = "DLM_REDIS_URL"
	EnvDownloadsDir = "DLM_DOWNLOADS_DIR"
	EnvLogLevel     = "DLM_LOG_LEVEL"
	EnvScanWorkers  = "DLM_SCAN_WORKERS"

	PathPlaceholder = "{path}"

	defaultListen           = "127.0.0.1:8088"
	defaultDumpFileName     = "dlmanager-report.yml"
	defaultUnfinishedSuffix = "unfinished"
	defaultHashChunkSize    = 64 * 1024
	defaultNexusBaseURL     = "https://api.nexusmods.com"
	defaultNexusSiteURL     = "https://www.nexusmods.com"
	defaultGameDomain       = "skyrimspecialedition"
	defaultNexusTimeout     = 15 * time.Second
	defaultCacheTTL         = 24 * time.Hour
)

var DefaultExtensions = []string{".zip", ".7z", ".rar", ".7zip"}

type IndexerConfig struct {
	DownloadsDir     string   `yaml:"downloads_dir"`
	Workers          int      `yaml:"workers"`
	Extensions       []string `yaml:"extensions"`
	UnfinishedSuffix string   `yaml:"unfinished_suffix"`
	HashChunkSize    int      `yaml:"hash_chunk_size"`
}

type NexusConfig struct {
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	SiteURL    string        `yaml:"site_url"`
	GameDomain string        `yaml:"game_domain"`
	Timeout    time.Duration `yaml:"timeout"`
}

type CacheConfig struct {
	RedisURL string        `yaml:"redis_url"`
	TTL      time.Duration `yaml:"ttl"`
}

type HostConfig struct {
	Version        string        `yaml:"version"`
	GameName       string        `yaml:"game_name"`
	InstallCommand []string      `yaml:"install_command"`
	InstallDelay   time.Duration `yaml:"install_delay"`
}

type Config struct {
	LogLevel      string        `yaml:"log_level"`
	Listen        string        `yaml:"listen"`
	DumpFileName  string        `yaml:"dump_filename"`
	IndexerConfig IndexerConfig `yaml:"indexer"`
	NexusConfig   NexusConfig   `yaml:"nexus"`
	CacheConfig   CacheConfig   `yaml:"cache"`
	HostConfig    HostConfig    `yaml:"host"`
}

func (c *Config) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = LogLevelInfo
	}

	if c.Listen == "" {
		c.Listen = defaultListen
	}

	if c.DumpFileName == "" {
		c.DumpFileName = defaultDumpFileName
	}

	if len(c.IndexerConfig.Extensions) == 0 {
		c.IndexerConfig.Extensions = append([]string(nil), DefaultExtensions...)
	}

	if c.IndexerConfig.UnfinishedSuffix == "" {
		c.IndexerConfig.UnfinishedSuffix = defaultUnfinishedSuffix
	}

	if c.IndexerConfig.HashChunkSize <= 0 {
		c.IndexerConfig.HashChunkSize = defaultHashChunkSize
	}

	if c.NexusConfig.BaseURL == "" {
		c.NexusConfig.BaseURL = defaultNexusBaseURL
	}

	if c.NexusConfig.SiteURL == "" {
		c.NexusConfig.SiteURL = defaultNexusSiteURL
	}

	if c.NexusConfig.GameDomain == "" {
		c.NexusConfig.GameDomain = defaultGameDomain
	}

	if c.NexusConfig.Timeout <= 0 {
		c.NexusConfig.Timeout = defaultNexusTimeout
	}

	if c.CacheConfig.TTL <= 0 {
		c.CacheConfig.TTL = defaultCacheTTL
	}

	if c.HostConfig.GameName == "" {
		c.HostConfig.GameName = c.NexusConfig.GameDomain
	}
}

// applyEnv overrides secrets and paths from the environment.
func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvNexusAPIKey); v != "" {
		c.NexusConfig.APIKey = v
	}

	if v := os.Getenv(EnvRedisURL); v != "" {
		c.CacheConfig.RedisURL = v
	}

	if v := os.Getenv(EnvDownloadsDir); v != "" {
		c.IndexerConfig.DownloadsDir = v
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}

	if v := os.Getenv(EnvScanWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("cannot parse %s: %w", EnvScanWorkers, err)
		}

		c.IndexerConfig.Workers = n
	}

	return nil
}

func (c *Config) Validate() error {
	if c.IndexerConfig.DownloadsDir == "" {
		return fmt.Errorf("indexer.downloads_dir must be set")
	}

	switch c.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
	default:
		return fmt.Errorf("unknown log level: %s", c.LogLevel)
	}

	if c.IndexerConfig.Workers < 0 {
		return fmt.Errorf("indexer.workers must not be negative")
	}

	return nil
}

// Load reads the yaml file, an optional .env file next to the process and environment overrides.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}
