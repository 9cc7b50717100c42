package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
expert_id: expert-1
database:
  driver: sqlite
  path: /tmp/trellis-test.db
cache:
  backend: memory
gateway:
  port: 9001
`

func TestParse_Valid(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.ExpertID != "expert-1" {
		t.Errorf("ExpertID = %q", cfg.ExpertID)
	}
	if cfg.Gateway.Port != 9001 {
		t.Errorf("Gateway.Port = %d", cfg.Gateway.Port)
	}
	if cfg.Database.DSN() != "/tmp/trellis-test.db" {
		t.Errorf("DSN = %q", cfg.Database.DSN())
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("expert_id: expert-1\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Database.Driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.Cache.Backend != "memory" {
		t.Errorf("Cache.Backend = %q, want memory", cfg.Cache.Backend)
	}
	if cfg.Gateway.Port != 8795 {
		t.Errorf("Gateway.Port = %d, want 8795", cfg.Gateway.Port)
	}
	if cfg.Gateway.BaseURL != "http://127.0.0.1:8795" {
		t.Errorf("Gateway.BaseURL = %q", cfg.Gateway.BaseURL)
	}
	if cfg.Engine.RetryDelay() != 5*time.Second {
		t.Errorf("Engine.RetryDelay = %v, want 5s", cfg.Engine.RetryDelay())
	}
	if cfg.Cache.TTL() != 5*time.Minute {
		t.Errorf("Cache.TTL = %v, want 5m", cfg.Cache.TTL())
	}
	if cfg.Housekeeping.Cron != "0 3 * * *" {
		t.Errorf("Housekeeping.Cron = %q", cfg.Housekeeping.Cron)
	}
	if cfg.Housekeeping.IdleAfter() != 14*24*time.Hour {
		t.Errorf("Housekeeping.IdleAfter = %v, want 336h", cfg.Housekeeping.IdleAfter())
	}
}

func TestParse_MissingExpertID(t *testing.T) {
	_, err := Parse([]byte("database:\n  driver: sqlite\n"))
	if err == nil || !strings.Contains(err.Error(), "expert_id is required") {
		t.Errorf("err = %v, want expert_id validation failure", err)
	}
}

func TestParse_UnknownDriver(t *testing.T) {
	_, err := Parse([]byte("expert_id: e\ndatabase:\n  driver: oracle\n"))
	if err == nil || !strings.Contains(err.Error(), `database.driver "oracle"`) {
		t.Errorf("err = %v, want driver validation failure", err)
	}
}

func TestParse_PostgresRequiresUser(t *testing.T) {
	_, err := Parse([]byte("expert_id: e\ndatabase:\n  driver: postgres\n"))
	if err == nil || !strings.Contains(err.Error(), "database.user is required") {
		t.Errorf("err = %v, want user validation failure", err)
	}
}

func TestParse_SlackNeedsTokenAndChannel(t *testing.T) {
	_, err := Parse([]byte("expert_id: e\nnotify:\n  slack:\n    enabled: true\n"))
	if err == nil || !strings.Contains(err.Error(), "notify.slack.bot_token") {
		t.Errorf("err = %v, want slack validation failure", err)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	if _, err := Parse([]byte("expert_id: [unclosed")); err == nil {
		t.Error("malformed YAML should fail")
	}
}

func TestDSN_Postgres(t *testing.T) {
	db := DatabaseConfig{Driver: "postgres", Host: "db.internal", Port: 5432, User: "trellis", Password: "s3cret", Name: "trellis"}
	want := "host=db.internal port=5432 user=trellis password=s3cret dbname=trellis sslmode=disable"
	if got := db.DSN(); got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
}

func TestDSN_MySQL(t *testing.T) {
	db := DatabaseConfig{Driver: "mysql", Host: "10.0.0.5", Port: 3306, User: "trellis", Password: "pw", Name: "trellis"}
	got := db.DSN()
	if !strings.HasPrefix(got, "trellis:pw@tcp(10.0.0.5:3306)/trellis?") {
		t.Errorf("DSN = %q", got)
	}
	if !strings.Contains(got, "parseTime=True") {
		t.Errorf("DSN missing parseTime: %q", got)
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trellis.yaml")
	if err := os.WriteFile(path, []byte(validYAML), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ExpertID != "expert-1" {
		t.Errorf("ExpertID = %q", cfg.ExpertID)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("missing file should fail")
	}
}
