package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// BotConfig identifies the bot whose users are stored and served.
type BotConfig struct {
	ID       string `yaml:"id" envconfig:"BOT_ID"`
	Language string `yaml:"language" envconfig:"BOT_LANGUAGE"`
}

// SwiftChatConfig holds settings of the primary messaging platform.
type SwiftChatConfig struct {
	APIURL string `yaml:"api_url" envconfig:"API_URL"`
	APIKey string `yaml:"api_key" envconfig:"API_KEY"`
	// TimeoutSeconds bounds a single outbound call; 0 -> default.
	TimeoutSeconds int `yaml:"timeout_seconds" envconfig:"SWIFTCHAT_TIMEOUT_SECONDS"`
	// Scorecard enables the visual scorecard sent before the final score.
	Scorecard    bool   `yaml:"scorecard" envconfig:"SWIFTCHAT_SCORECARD"`
	ShareMessage string `yaml:"share_message" envconfig:"SWIFTCHAT_SHARE_MESSAGE"`
}

// ServerConfig specifies the inbound HTTP listener.
type ServerConfig struct {
	Listen      string `yaml:"listen" envconfig:"SERVER_LISTEN"`
	Port        int    `yaml:"port" envconfig:"PORT"`
	WebhookPath string `yaml:"webhook_path" envconfig:"WEBHOOK_PATH"`
	// Metrics exposes Prometheus collectors on /metrics when true.
	Metrics bool `yaml:"metrics" envconfig:"SERVER_METRICS"`
	// ProcessTimeoutSeconds bounds the handling of one webhook event.
	ProcessTimeoutSeconds int `yaml:"process_timeout_seconds" envconfig:"SERVER_PROCESS_TIMEOUT_SECONDS"`
}

// TelegramConfig holds settings of the optional Telegram channel.
type TelegramConfig struct {
	Enabled bool   `yaml:"enabled" envconfig:"TELEGRAM_ENABLED"`
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int           `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
	Webhook                WebhookConfig `yaml:"webhook"`
}

// WebhookConfig specifies Telegram webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"TELEGRAM_WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"TELEGRAM_WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"TELEGRAM_WEBHOOK_PORT"`
}

// StoreConfig selects the user store backend.
type StoreConfig struct {
	Driver string `yaml:"driver" envconfig:"STORE_DRIVER"`
}

// MongoConfig holds settings of the document store backend.
type MongoConfig struct {
	URI        string `yaml:"uri" envconfig:"MONGO_URI"`
	Database   string `yaml:"database" envconfig:"MONGO_DATABASE"`
	Collection string `yaml:"collection" envconfig:"MONGO_COLLECTION"`
}

// RedisConfig enables duplicate filtering and per-user serialization.
type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password string `yaml:"password" envconfig:"REDIS_PWD"`
	DB       int    `yaml:"db" envconfig:"REDIS_DB"`
	// LockTTLMS bounds how long one event may hold the per-user lock. It is
	// never shorter than server.process_timeout_seconds.
	LockTTLMS int `yaml:"lock_ttl_ms" envconfig:"REDIS_LOCK_TTL_MS"`
	// DedupeTTLSeconds is how long a delivered payload is remembered.
	DedupeTTLSeconds int `yaml:"dedupe_ttl_seconds" envconfig:"REDIS_DEDUPE_TTL_SECONDS"`
}

// AnalyticsConfig selects where tracking events go.
type AnalyticsConfig struct {
	Driver   string `yaml:"driver" envconfig:"ANALYTICS_DRIVER"`
	URL      string `yaml:"url" envconfig:"RABBITMQ_URI"`
	Exchange string `yaml:"exchange" envconfig:"RABBITMQ_EXCHANGE"`
}

// ContentConfig points at the quiz catalog. Empty path uses the embedded catalog.
type ContentConfig struct {
	Path string `yaml:"path" envconfig:"CONTENT_PATH"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	File        string `yaml:"file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// RateLimitConfig holds settings for per-user rate limiting.
// ExcludeEvents accepts inbound kinds that bypass limiting:
// - "text": free text messages
// - "button": button replies
type RateLimitConfig struct {
	IntervalMS    int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeEvents []string `yaml:"exclude_events" envconfig:"RATE_LIMIT_EXCLUDE_EVENTS"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// StoreMemory keeps users in process memory; suitable for development only.
	StoreMemory = "memory"
	// StorePostgres stores users in PostgreSQL.
	StorePostgres = "postgres"
	// StoreMongo stores users as MongoDB documents.
	StoreMongo = "mongo"
)

const (
	// AnalyticsNone discards tracking events.
	AnalyticsNone = "none"
	// AnalyticsLog writes tracking events to the structured log.
	AnalyticsLog = "log"
	// AnalyticsRabbitMQ publishes tracking events to a topic exchange.
	AnalyticsRabbitMQ = "rabbitmq"
)

const (
	// EventText identifies free text events for rate limit exclusions.
	EventText = "text"
	// EventButton identifies button replies for rate limit exclusions.
	EventButton = "button"
)

const (
	defaultPort             = 3000
	defaultWebhookPath      = "/webhook"
	defaultLanguage         = "english"
	defaultTimeoutSeconds   = 10
	defaultProcessTimeout   = 30
	lockTTLMarginMS         = 5000
	defaultDedupeTTLSeconds = 300
	defaultMongoDatabase    = "quizbot"
	defaultMongoCollection  = "users"
	defaultExchange         = "quizbot.events"
)

// Config aggregates the configuration that belongs to the reusable core.
type Config struct {
	Bot       BotConfig       `yaml:"bot"`
	SwiftChat SwiftChatConfig `yaml:"swiftchat"`
	Server    ServerConfig    `yaml:"server"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Store     StoreConfig     `yaml:"store"`
	Mongo     MongoConfig     `yaml:"mongo"`
	Redis     RedisConfig     `yaml:"redis"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Content   ContentConfig   `yaml:"content"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := ReadInto(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ReadInto decodes the YAML file at path into out and overlays environment
// variables. out may embed Config to extend it with bot specific sections.
func ReadInto(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", out); err != nil {
		return fmt.Errorf("failed to process env: %w", err)
	}
	return nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	cfg.Bot.ID = strings.TrimSpace(cfg.Bot.ID)
	if cfg.Bot.ID == "" {
		return fmt.Errorf("bot.id is required")
	}
	if strings.TrimSpace(cfg.Bot.Language) == "" {
		cfg.Bot.Language = defaultLanguage
	}

	cfg.SwiftChat.APIURL = strings.TrimRight(strings.TrimSpace(cfg.SwiftChat.APIURL), "/")
	if cfg.SwiftChat.APIURL == "" {
		return fmt.Errorf("swiftchat.api_url is required")
	}
	if strings.TrimSpace(cfg.SwiftChat.APIKey) == "" {
		return fmt.Errorf("swiftchat.api_key is required")
	}
	if cfg.SwiftChat.TimeoutSeconds < 0 {
		return fmt.Errorf("swiftchat.timeout_seconds must be >= 0")
	}
	if cfg.SwiftChat.TimeoutSeconds == 0 {
		cfg.SwiftChat.TimeoutSeconds = defaultTimeoutSeconds
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaultPort
	}
	if cfg.Server.Port < 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	path := strings.TrimSpace(cfg.Server.WebhookPath)
	if path == "" {
		path = defaultWebhookPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	cfg.Server.WebhookPath = path
	if cfg.Server.ProcessTimeoutSeconds < 0 {
		return fmt.Errorf("server.process_timeout_seconds must be >= 0")
	}
	if cfg.Server.ProcessTimeoutSeconds == 0 {
		cfg.Server.ProcessTimeoutSeconds = defaultProcessTimeout
	}

	if err := normalizeTelegram(&cfg.Telegram); err != nil {
		return err
	}
	if err := normalizeStore(cfg); err != nil {
		return err
	}
	if err := normalizeAnalytics(&cfg.Analytics); err != nil {
		return err
	}

	// The per-user lock must outlive one event.
	processMS := cfg.Server.ProcessTimeoutSeconds * 1000
	if cfg.Redis.LockTTLMS <= 0 {
		cfg.Redis.LockTTLMS = processMS + lockTTLMarginMS
	}
	if cfg.Redis.LockTTLMS < processMS {
		cfg.Redis.LockTTLMS = processMS
	}
	if cfg.Redis.DedupeTTLSeconds <= 0 {
		cfg.Redis.DedupeTTLSeconds = defaultDedupeTTLSeconds
	}

	allowed := map[string]struct{}{
		EventText:   {},
		EventButton: {},
	}
	for i, v := range cfg.RateLimit.ExcludeEvents {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_events value %q; allowed: text, button", v)
		}
		cfg.RateLimit.ExcludeEvents[i] = key
	}
	return nil
}

func normalizeTelegram(tg *TelegramConfig) error {
	if !tg.Enabled {
		return nil
	}
	if strings.TrimSpace(tg.Token) == "" {
		return fmt.Errorf("telegram.token is required when telegram.enabled is true")
	}

	rm := strings.ToLower(strings.TrimSpace(tg.RunMode))
	if rm == "" || rm == "polling" {
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(tg.Webhook.URL) == "" {
			return fmt.Errorf("telegram.webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(tg.Webhook.Listen) == "" {
			return fmt.Errorf("telegram.webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if tg.Webhook.Port <= 0 {
			return fmt.Errorf("telegram.webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if tg.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", tg.RunMode)
	}
	tg.RunMode = rm
	return nil
}

func normalizeStore(cfg *Config) error {
	driver := strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	if driver == "" {
		driver = StoreMemory
	}
	switch driver {
	case StoreMemory, StorePostgres:
	case StoreMongo:
		if strings.TrimSpace(cfg.Mongo.URI) == "" {
			return fmt.Errorf("mongo.uri is required when store.driver is 'mongo'")
		}
		if cfg.Mongo.Database == "" {
			cfg.Mongo.Database = defaultMongoDatabase
		}
		if cfg.Mongo.Collection == "" {
			cfg.Mongo.Collection = defaultMongoCollection
		}
	default:
		return fmt.Errorf("invalid store.driver %q; allowed: memory, postgres, mongo", cfg.Store.Driver)
	}
	cfg.Store.Driver = driver
	return nil
}

func normalizeAnalytics(a *AnalyticsConfig) error {
	driver := strings.ToLower(strings.TrimSpace(a.Driver))
	if driver == "" {
		driver = AnalyticsLog
	}
	switch driver {
	case AnalyticsNone, AnalyticsLog:
	case AnalyticsRabbitMQ:
		if strings.TrimSpace(a.URL) == "" {
			return fmt.Errorf("analytics.url is required when analytics.driver is 'rabbitmq'")
		}
		if a.Exchange == "" {
			a.Exchange = defaultExchange
		}
	default:
		return fmt.Errorf("invalid analytics.driver %q; allowed: none, log, rabbitmq", a.Driver)
	}
	a.Driver = driver
	return nil
}
