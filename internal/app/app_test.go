package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	coreconfig "github.com/m3rciful/quizbot/core/config"
)

const sampleYAML = `
bot:
  id: "0255358219043557"
swiftchat:
  api_url: https://api.example.test/bots/
  api_key: secret
store:
  driver: memory
database:
  name: quizbot
  user: quiz
analytics:
  driver: none
server:
  metrics: true
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigInlinesCoreSections(t *testing.T) {
	t.Setenv("DB_PASSWORD", "from-env")
	cfg, err := LoadConfig(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.CoreConfig().Bot.ID != "0255358219043557" || cfg.SwiftChat.APIURL != "https://api.example.test/bots" {
		t.Fatalf("core config = %+v", cfg.Config)
	}
	if cfg.Database.Name != "quizbot" || cfg.Database.Password != "from-env" || cfg.Database.Port != "5432" {
		t.Fatalf("database config = %+v", cfg.Database)
	}
	if cfg.Store.Driver != coreconfig.StoreMemory {
		t.Fatalf("store driver = %q", cfg.Store.Driver)
	}
}

func TestLoadConfigRejectsUnknownStore(t *testing.T) {
	body := strings.Replace(sampleYAML, "driver: memory", "driver: dynamo", 1)
	if _, err := LoadConfig(writeConfig(t, body)); err == nil {
		t.Fatal("expected error for unknown store driver")
	}
}

func TestBuildMemoryStack(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	a, err := Build(cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer a.Close(context.Background())

	rec := httptest.NewRecorder()
	a.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics = %d", rec.Code)
	}
	if a.tgSender != nil || a.tracker != nil || a.rdb != nil {
		t.Fatal("optional components enabled without config")
	}
}
