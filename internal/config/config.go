package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Discord    DiscordConfig    `mapstructure:"discord"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Persona    PersonaConfig    `mapstructure:"persona"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Cache      CacheConfig      `mapstructure:"cache"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	I18n       I18nConfig       `mapstructure:"i18n"`
	Community  CommunityConfig  `mapstructure:"community"`
}

type DiscordConfig struct {
	Token          string   `mapstructure:"token"`
	CommandPrefix  string   `mapstructure:"command_prefix"`
	ModeratorRoles []string `mapstructure:"moderator_roles"`
	WhisperChannel string   `mapstructure:"whisper_channel"`
}

// EngineConfig holds the tunables of the conversation engine.
type EngineConfig struct {
	HistorySize          int           `mapstructure:"history_size"`
	RepetitionWindow     int           `mapstructure:"repetition_window"`
	JokeKeyword          string        `mapstructure:"joke_keyword"`
	JokeDecay            time.Duration `mapstructure:"joke_decay"`
	JokeIntensityCap     int           `mapstructure:"joke_intensity_cap"`
	JokeIntenseThreshold int           `mapstructure:"joke_intense_threshold"`
	LoreKeywords         []string      `mapstructure:"lore_keywords"`
	LoreCallbackChance   float64       `mapstructure:"lore_callback_chance"`
	MaxTrackedUsers      int           `mapstructure:"max_tracked_users"`
	StaleAfter           time.Duration `mapstructure:"stale_after"`
	EscapeThreshold      int           `mapstructure:"escape_threshold"`
	EscapeWindow         time.Duration `mapstructure:"escape_window"`
	EscapeDuration       time.Duration `mapstructure:"escape_duration"`
	CatalogPath          string        `mapstructure:"catalog_path"`
}

type PersonaConfig struct {
	ReplyIntensity     string        `mapstructure:"reply_intensity"`
	WhisperEnabled     bool          `mapstructure:"whisper_enabled"`
	WhisperInterval    time.Duration `mapstructure:"whisper_interval"`
	WhisperMaxDelay    time.Duration `mapstructure:"whisper_max_delay"`
	StatusEnabled      bool          `mapstructure:"status_enabled"`
	StatusInterval     time.Duration `mapstructure:"status_interval"`
	BearerSuffixChance float64       `mapstructure:"bearer_suffix_chance"`
}

type StorageConfig struct {
	Type     string       `mapstructure:"type"`
	Fallback string       `mapstructure:"fallback"`
	Redis    RedisConfig  `mapstructure:"redis"`
	SQLite   SQLiteConfig `mapstructure:"sqlite"`
	Memory   MemoryConfig `mapstructure:"memory"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type MemoryConfig struct {
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// MaxTimeout is the longest member timeout Discord accepts.
const MaxTimeout = 28 * 24 * time.Hour

// CommunityConfig tunes moderation and the wish board.
type CommunityConfig struct {
	Store               string        `mapstructure:"store"`
	ModLogChannel       string        `mapstructure:"mod_log_channel"`
	AutoTimeoutWarnings int           `mapstructure:"auto_timeout_warnings"`
	AutoTimeoutDuration time.Duration `mapstructure:"auto_timeout_duration"`
	PurgeMax            int           `mapstructure:"purge_max"`
	WishRoles           []string      `mapstructure:"wish_roles"`
	VoteThreshold       int           `mapstructure:"vote_threshold"`
	WishCategory        string        `mapstructure:"wish_category"`
	DigestChannel       string        `mapstructure:"digest_channel"`
	DigestGuild         string        `mapstructure:"digest_guild"`
	DigestInterval      time.Duration `mapstructure:"digest_interval"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
	MaxSize int           `mapstructure:"max_size"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

type LoggingConfig struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"`
	Output string     `mapstructure:"output"`
	File   FileConfig `mapstructure:"file"`
}

type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type MonitoringConfig struct {
	Server  ServerConfig  `mapstructure:"server"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ServerConfig configures the keep-alive HTTP endpoint.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type I18nConfig struct {
	DefaultLanguage string   `mapstructure:"default_language"`
	Languages       []string `mapstructure:"languages"`
}

// DefaultEngineConfig returns the stock engine tuning.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		HistorySize:          5,
		RepetitionWindow:     3,
		JokeKeyword:          "kebab",
		JokeDecay:            time.Hour,
		JokeIntensityCap:     10,
		JokeIntenseThreshold: 3,
		LoreKeywords:         []string{"vortex", "containment", "emzi", "trapped", "void", "pattern", "weave"},
		LoreCallbackChance:   0.05,
		MaxTrackedUsers:      1000,
		StaleAfter:           20 * time.Minute,
		EscapeThreshold:      6,
		EscapeWindow:         2 * time.Minute,
		EscapeDuration:       5 * time.Minute,
	}
}

// Default returns a fully populated configuration without reading any file.
func Default() *Config {
	v := newViper()
	var cfg Config
	// Defaults are static; decoding them cannot fail.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	e := DefaultEngineConfig()

	v.SetDefault("discord.command_prefix", "!")
	v.SetDefault("discord.moderator_roles", []string{})

	v.SetDefault("engine.history_size", e.HistorySize)
	v.SetDefault("engine.repetition_window", e.RepetitionWindow)
	v.SetDefault("engine.joke_keyword", e.JokeKeyword)
	v.SetDefault("engine.joke_decay", e.JokeDecay)
	v.SetDefault("engine.joke_intensity_cap", e.JokeIntensityCap)
	v.SetDefault("engine.joke_intense_threshold", e.JokeIntenseThreshold)
	v.SetDefault("engine.lore_keywords", e.LoreKeywords)
	v.SetDefault("engine.lore_callback_chance", e.LoreCallbackChance)
	v.SetDefault("engine.max_tracked_users", e.MaxTrackedUsers)
	v.SetDefault("engine.stale_after", e.StaleAfter)
	v.SetDefault("engine.escape_threshold", e.EscapeThreshold)
	v.SetDefault("engine.escape_window", e.EscapeWindow)
	v.SetDefault("engine.escape_duration", e.EscapeDuration)
	v.SetDefault("engine.catalog_path", "")

	v.SetDefault("persona.reply_intensity", "extreme")
	v.SetDefault("persona.whisper_enabled", true)
	v.SetDefault("persona.whisper_interval", 6*time.Hour)
	v.SetDefault("persona.whisper_max_delay", time.Hour)
	v.SetDefault("persona.status_enabled", true)
	v.SetDefault("persona.status_interval", 30*time.Minute)
	v.SetDefault("persona.bearer_suffix_chance", 0.3)

	v.SetDefault("storage.type", "sqlite")
	v.SetDefault("storage.fallback", "memory")
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.key_prefix", "dreambot")
	v.SetDefault("storage.sqlite.path", "data/usage.db")
	v.SetDefault("storage.memory.cleanup_interval", 10*time.Minute)

	v.SetDefault("community.store", "sqlite")
	v.SetDefault("community.auto_timeout_warnings", 3)
	v.SetDefault("community.auto_timeout_duration", 24*time.Hour)
	v.SetDefault("community.purge_max", 100)
	v.SetDefault("community.wish_roles", []string{})
	v.SetDefault("community.vote_threshold", 5)
	v.SetDefault("community.digest_interval", 7*24*time.Hour)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.max_size", 256)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_minute", 10)
	v.SetDefault("rate_limit.burst", 3)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.file.path", "logs/dreambot.log")
	v.SetDefault("logging.file.max_size", 50)
	v.SetDefault("logging.file.max_backups", 3)
	v.SetDefault("logging.file.max_age", 28)

	v.SetDefault("monitoring.server.enabled", true)
	v.SetDefault("monitoring.server.port", 8080)
	v.SetDefault("monitoring.metrics.enabled", true)
	v.SetDefault("monitoring.metrics.path", "/metrics")

	v.SetDefault("i18n.default_language", "en")
	v.SetDefault("i18n.languages", []string{"en"})

	v.BindEnv("discord.token", "DISCORD_TOKEN")
	v.BindEnv("discord.whisper_channel", "WHISPER_CHANNEL_ID")
	v.BindEnv("community.mod_log_channel", "MOD_LOG_CHANNEL_ID")
	v.BindEnv("community.digest_channel", "DIGEST_CHANNEL_ID")
	v.BindEnv("community.digest_guild", "DIGEST_GUILD_ID")
	v.BindEnv("storage.type", "STORAGE_TYPE")
	v.BindEnv("storage.redis.password", "REDIS_PASSWORD")
	v.BindEnv("storage.redis.db", "REDIS_DB")
	v.BindEnv("storage.sqlite.path", "SQLITE_PATH")
	v.BindEnv("monitoring.server.port", "PORT")
	v.BindEnv("logging.level", "LOG_LEVEL")

	return v
}

// LoadConfig loads configuration from file and environment variables.
// An empty path skips the file and relies on defaults plus environment.
func LoadConfig(configPath string) (*Config, error) {
	v := newViper()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// REDIS_HOST/REDIS_PORT override the combined address
	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		redisPort := os.Getenv("REDIS_PORT")
		if redisPort == "" {
			redisPort = "6379"
		}
		config.Storage.Redis.Addr = fmt.Sprintf("%s:%s", redisHost, redisPort)
	}

	config.Storage.Type = strings.ToLower(strings.TrimSpace(config.Storage.Type))
	config.Storage.Fallback = strings.ToLower(strings.TrimSpace(config.Storage.Fallback))
	config.Community.Store = strings.ToLower(strings.TrimSpace(config.Community.Store))

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// ValidateDiscord checks the settings only the gateway process needs.
func (c *Config) ValidateDiscord() error {
	if c.Discord.Token == "" {
		return fmt.Errorf("discord token is required")
	}
	if c.Discord.CommandPrefix == "" {
		return fmt.Errorf("command prefix must not be empty")
	}
	return nil
}

func validateConfig(cfg *Config) error {
	switch cfg.Storage.Type {
	case "redis", "sqlite", "memory":
	default:
		return fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
	switch cfg.Storage.Fallback {
	case "", "none", "sqlite", "memory":
	default:
		return fmt.Errorf("unsupported storage fallback: %s", cfg.Storage.Fallback)
	}

	e := cfg.Engine
	if e.HistorySize <= 0 {
		return fmt.Errorf("engine.history_size must be positive")
	}
	if e.RepetitionWindow <= 0 {
		return fmt.Errorf("engine.repetition_window must be positive")
	}
	if e.EscapeThreshold <= 0 {
		return fmt.Errorf("engine.escape_threshold must be positive")
	}
	if e.EscapeWindow <= 0 || e.EscapeDuration <= 0 {
		return fmt.Errorf("engine escape window and duration must be positive")
	}
	if e.LoreCallbackChance < 0 || e.LoreCallbackChance > 1 {
		return fmt.Errorf("engine.lore_callback_chance must be within [0,1]")
	}
	if e.MaxTrackedUsers <= 0 {
		return fmt.Errorf("engine.max_tracked_users must be positive")
	}
	if cfg.Persona.BearerSuffixChance < 0 || cfg.Persona.BearerSuffixChance > 1 {
		return fmt.Errorf("persona.bearer_suffix_chance must be within [0,1]")
	}

	c := cfg.Community
	switch c.Store {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unsupported community store: %s", c.Store)
	}
	if c.PurgeMax <= 0 || c.PurgeMax > 100 {
		return fmt.Errorf("community.purge_max must be within [1,100]")
	}
	if c.VoteThreshold <= 0 {
		return fmt.Errorf("community.vote_threshold must be positive")
	}
	if c.AutoTimeoutWarnings < 0 {
		return fmt.Errorf("community.auto_timeout_warnings must not be negative")
	}
	if c.AutoTimeoutDuration > MaxTimeout {
		return fmt.Errorf("community.auto_timeout_duration exceeds %s", MaxTimeout)
	}
	return nil
}
