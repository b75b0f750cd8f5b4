package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Bot:       BotConfig{ID: "0255358219043557"},
		SwiftChat: SwiftChatConfig{APIURL: "https://api.example.test/bots/", APIKey: "secret"},
	}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := validConfig()
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Server.Port != defaultPort {
		t.Fatalf("port = %d, want %d", cfg.Server.Port, defaultPort)
	}
	if cfg.Server.WebhookPath != "/webhook" {
		t.Fatalf("webhook path = %q", cfg.Server.WebhookPath)
	}
	if cfg.SwiftChat.APIURL != "https://api.example.test/bots" {
		t.Fatalf("api url not trimmed: %q", cfg.SwiftChat.APIURL)
	}
	if cfg.Store.Driver != StoreMemory {
		t.Fatalf("store driver = %q", cfg.Store.Driver)
	}
	if cfg.Analytics.Driver != AnalyticsLog {
		t.Fatalf("analytics driver = %q", cfg.Analytics.Driver)
	}
	if cfg.Bot.Language != "english" {
		t.Fatalf("language = %q", cfg.Bot.Language)
	}
	if cfg.Server.ProcessTimeoutSeconds != 30 || cfg.Redis.LockTTLMS != 35000 {
		t.Fatalf("process timeout = %ds, lock ttl = %dms", cfg.Server.ProcessTimeoutSeconds, cfg.Redis.LockTTLMS)
	}
}

func TestNormalizeLockOutlivesProcessTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.Server.ProcessTimeoutSeconds = 20
	cfg.Redis.LockTTLMS = 15000
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Redis.LockTTLMS != 20000 {
		t.Fatalf("lock ttl = %dms, want 20000", cfg.Redis.LockTTLMS)
	}

	cfg = validConfig()
	cfg.Redis.LockTTLMS = 60000
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Redis.LockTTLMS != 60000 {
		t.Fatalf("longer lock ttl rewritten to %dms", cfg.Redis.LockTTLMS)
	}
}

func TestNormalizeRejectsMissingBotID(t *testing.T) {
	cfg := validConfig()
	cfg.Bot.ID = "  "
	if err := Normalize(cfg); err == nil {
		t.Fatal("expected error for empty bot id")
	}
}

func TestNormalizeStoreDrivers(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Driver = "Mongo"
	if err := Normalize(cfg); err == nil {
		t.Fatal("expected error: mongo without uri")
	}

	cfg = validConfig()
	cfg.Store.Driver = "mongo"
	cfg.Mongo.URI = "mongodb://localhost:27017"
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Mongo.Database != "quizbot" || cfg.Mongo.Collection != "users" {
		t.Fatalf("mongo defaults not applied: %+v", cfg.Mongo)
	}

	cfg = validConfig()
	cfg.Store.Driver = "dynamo"
	if err := Normalize(cfg); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestNormalizeTelegram(t *testing.T) {
	cfg := validConfig()
	cfg.Telegram.Enabled = true
	if err := Normalize(cfg); err == nil {
		t.Fatal("expected error: telegram enabled without token")
	}

	cfg = validConfig()
	cfg.Telegram = TelegramConfig{Enabled: true, Token: "t", RunMode: "polling"}
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Fatalf("run mode = %q", cfg.Telegram.RunMode)
	}

	cfg = validConfig()
	cfg.Telegram = TelegramConfig{Enabled: true, Token: "t", RunMode: "webhook"}
	if err := Normalize(cfg); err == nil {
		t.Fatal("expected error: webhook without url")
	}
}

func TestNormalizeRateLimitExclusions(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimit.ExcludeEvents = []string{" Button ", ""}
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.RateLimit.ExcludeEvents[0] != EventButton {
		t.Fatalf("exclusion not normalized: %q", cfg.RateLimit.ExcludeEvents[0])
	}

	cfg = validConfig()
	cfg.RateLimit.ExcludeEvents = []string{"callback"}
	if err := Normalize(cfg); err == nil {
		t.Fatal("expected error for unknown exclusion")
	}
}

func TestLoadOverlaysEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte("bot:\n  id: from-file\nswiftchat:\n  api_url: https://api.example.test\n  api_key: file-key\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("API_KEY", "env-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Bot.ID != "from-file" {
		t.Fatalf("bot id = %q", cfg.Bot.ID)
	}
	if cfg.SwiftChat.APIKey != "env-key" {
		t.Fatalf("api key = %q, want env override", cfg.SwiftChat.APIKey)
	}
}
