package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv blanks every INTELLIDESK_ variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		if name, _, _ := strings.Cut(kv, "="); strings.HasPrefix(name, Prefix) {
			t.Setenv(name, "")
		}
	}
}

func TestLoader_ParseEnvironment(t *testing.T) {

	t.Run("applies defaults when variables are missing", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("INTELLIDESK_CODE_SECRET", "super-secret")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if cfg.HTTPPort != 8080 || cfg.SQLiteDSN != "intellidesk.db" {
			t.Fatalf("expected default port and dsn, got %d %q", cfg.HTTPPort, cfg.SQLiteDSN)
		}
		if cfg.HistoryRetention != 20 {
			t.Fatalf("expected history retention 20, got %d", cfg.HistoryRetention)
		}
		if cfg.FlowTTL != 15*time.Minute || cfg.HistoryWindow != 12 || cfg.ConfidenceThreshold != 0.6 {
			t.Fatalf("unexpected flow defaults %+v", cfg)
		}
		if cfg.CodeSecret != "super-secret" {
			t.Fatalf("expected code secret to be set, got %q", cfg.CodeSecret)
		}
		if cfg.SMTPEnabled() {
			t.Fatalf("expected log notifier by default")
		}
	})

	t.Run("errors when required values are missing", func(t *testing.T) {
		clearEnv(t)

		_, err := Load()
		if err == nil {
			t.Fatalf("expected error when required values are missing")
		}
		expected := "required environment variables are not set: INTELLIDESK_CODE_SECRET"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("reports missing and invalid values together", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("INTELLIDESK_HTTP_PORT", "-1")
		t.Setenv("INTELLIDESK_CONFIDENCE_THRESHOLD", "1.5")
		t.Setenv("INTELLIDESK_LOG_LEVEL", "chatty")

		_, err := Load()
		if err == nil {
			t.Fatalf("expected error")
		}
		expected := "required environment variables are not set: INTELLIDESK_CODE_SECRET; " +
			"invalid environment variable values: INTELLIDESK_HTTP_PORT, INTELLIDESK_CONFIDENCE_THRESHOLD, INTELLIDESK_LOG_LEVEL"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("parses duration and numeric fields", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("INTELLIDESK_CODE_SECRET", "secret-value")
		t.Setenv("INTELLIDESK_HTTP_PORT", "9090")
		t.Setenv("INTELLIDESK_FLOW_TTL", "30m")
		t.Setenv("INTELLIDESK_ADAPTER_TIMEOUT", "5s")
		t.Setenv("INTELLIDESK_CONFIDENCE_THRESHOLD", "0.75")
		t.Setenv("INTELLIDESK_CHAT_RATE_PER_MINUTE", "10")
		t.Setenv("INTELLIDESK_LOG_LEVEL", "debug")
		t.Setenv("INTELLIDESK_ADMINS", "admin-a, admin-b,,")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if cfg.HTTPPort != 9090 || cfg.FlowTTL != 30*time.Minute || cfg.AdapterTimeout != 5*time.Second {
			t.Fatalf("unexpected parsed values %+v", cfg)
		}
		if cfg.ConfidenceThreshold != 0.75 || cfg.ChatRatePerMinute != 10 || cfg.LogLevel != slog.LevelDebug {
			t.Fatalf("unexpected parsed values %+v", cfg)
		}
		if strings.Join(cfg.Admins, ",") != "admin-a,admin-b" {
			t.Fatalf("expected two admins, got %v", cfg.Admins)
		}
	})

	t.Run("collects bridge tokens and smtp settings", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("INTELLIDESK_CODE_SECRET", "secret-value")
		t.Setenv("INTELLIDESK_BRIDGE_TOKEN_WEBEX_1", "token-1")
		t.Setenv("INTELLIDESK_BRIDGE_TOKEN_WEBEX_4", " token-4 ")
		t.Setenv("INTELLIDESK_SMTP_ADDR", "mail.example.com:587")

		_, err := Load()
		if err == nil || !strings.Contains(err.Error(), "INTELLIDESK_SMTP_FROM") {
			t.Fatalf("expected SMTP_FROM to be required with SMTP_ADDR, got %v", err)
		}

		t.Setenv("INTELLIDESK_SMTP_FROM", "desk@example.com")
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if cfg.BridgeTokens["WEBEX_1"] != "token-1" || cfg.BridgeTokens["WEBEX_4"] != "token-4" || len(cfg.BridgeTokens) != 2 {
			t.Fatalf("unexpected bridge tokens %v", cfg.BridgeTokens)
		}
		if !cfg.SMTPEnabled() {
			t.Fatalf("expected smtp enabled")
		}
	})
}

func TestLoadCatalog(t *testing.T) {
	t.Run("empty path uses the built-in catalog", func(t *testing.T) {
		cat, err := LoadCatalog("")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(cat.Rooms) != 10 || cat.Rooms[9].Name != "Room 10" || cat.Rooms[9].Capacity != 21 {
			t.Fatalf("expected the ten-room catalog, got %+v", cat.Rooms)
		}
		if got := strings.Join(cat.BridgeAccounts(), ","); got != "WebEx-1,WebEx-2,WebEx-3,WebEx-4" {
			t.Fatalf("unexpected bridge accounts %q", got)
		}
	})

	t.Run("file overrides rooms and keeps default equipment", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "catalog.yaml")
		content := "rooms:\n  - name: Huddle\n    capacity: 4\n  - name: Board\n    capacity: 12\n    bridge_account: WebEx-9\n"
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		cat, err := LoadCatalog(path)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		rooms := cat.RoomList()
		if len(rooms) != 2 || rooms[1].BridgeAccount != "WebEx-9" || rooms[0].BridgeAccount != "" {
			t.Fatalf("unexpected rooms %+v", rooms)
		}
		if len(cat.EquipmentList()) != len(DefaultCatalog().Equipment) {
			t.Fatalf("expected default equipment to be kept")
		}
	})

	t.Run("invalid entries are rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "catalog.yaml")
		content := "rooms:\n  - name: A\n    capacity: 0\n  - name: B\n    capacity: 3\n  - name: B\n    capacity: 3\n"
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		_, err := LoadCatalog(path)
		if err == nil || !strings.Contains(err.Error(), "capacity must be positive") || !strings.Contains(err.Error(), "duplicate room B") {
			t.Fatalf("expected validation errors, got %v", err)
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "catalog.yaml")
		if err := os.WriteFile(path, []byte("rooms: [\n"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := LoadCatalog(path); err == nil || !strings.Contains(err.Error(), "parsing catalog") {
			t.Fatalf("expected parse error, got %v", err)
		}
	})
}
