package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Channels.WhatsApp.ConnectTimeoutSeconds != 30 {
		t.Errorf("connect timeout default = %d, want 30", cfg.Channels.WhatsApp.ConnectTimeoutSeconds)
	}
	if cfg.Channels.Signal.CLIPath != "signal-cli" {
		t.Errorf("signal cli path default = %q", cfg.Channels.Signal.CLIPath)
	}
	if cfg.Media.MaxSizeMB != 32 {
		t.Errorf("media max size default = %d, want 32", cfg.Media.MaxSizeMB)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := Defaults()
	cfg.Channels.Telegram.Enabled = true
	cfg.Channels.Telegram.Token = "tg-token"
	cfg.Relay.Routes = []Route{{From: "telegram", To: "whatsapp", ToChat: "+1555"}}

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Channels.Telegram.Token != "tg-token" {
		t.Errorf("token = %q", got.Channels.Telegram.Token)
	}
	if len(got.Relay.Routes) != 1 || got.Relay.Routes[0].ToChat != "+1555" {
		t.Errorf("routes = %+v", got.Relay.Routes)
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("RELAYBOT_TEST_TOKEN", "secret-from-env")

	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
  "channels": {
    "telegram": {"enabled": true, "token": "${RELAYBOT_TEST_TOKEN}"},
    "whatsapp": {"gatewayUrl": "${RELAYBOT_TEST_GATEWAY:-ws://fallback:3441/session}"}
  }
}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Channels.Telegram.Token != "secret-from-env" {
		t.Errorf("token = %q", cfg.Channels.Telegram.Token)
	}
	if cfg.Channels.WhatsApp.GatewayURL != "ws://fallback:3441/session" {
		t.Errorf("gateway = %q, want fallback default", cfg.Channels.WhatsApp.GatewayURL)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("RB_SET", "value")
	tests := []struct {
		in   string
		want string
	}{
		{"${RB_SET}", "value"},
		{"${RB_UNSET_XYZ:-fallback}", "fallback"},
		{"${RB_SET:-fallback}", "value"},
		{"plain text", "plain text"},
		{"${RB_UNSET_XYZ}", "${RB_UNSET_XYZ}"}, // unset without default stays literal
	}
	for _, tt := range tests {
		if got := ExpandEnvVars(tt.in); got != tt.want {
			t.Errorf("ExpandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidate_Errors(t *testing.T) {
	cfg := Defaults()
	cfg.Channels.WhatsApp.Enabled = true
	cfg.Channels.WhatsApp.GatewayURL = ""
	cfg.Channels.WhatsApp.ConnectTimeoutSeconds = 0
	cfg.Relay.Routes = []Route{{From: "whatsapp", To: "whatsapp", ToChat: "x"}}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	msg := err.Error()
	for _, want := range []string{"gatewayUrl", "connectTimeoutSeconds", "must differ"} {
		if !strings.Contains(msg, want) {
			t.Errorf("validation error should mention %q, got:\n%s", want, msg)
		}
	}
}

func TestGetSetByPath(t *testing.T) {
	cfg := Defaults()

	if err := SetByPath(cfg, "channels.whatsapp.gatewayUrl", "ws://example:9999/s"); err != nil {
		t.Fatalf("SetByPath: %v", err)
	}
	if cfg.Channels.WhatsApp.GatewayURL != "ws://example:9999/s" {
		t.Errorf("gatewayUrl = %q", cfg.Channels.WhatsApp.GatewayURL)
	}

	// String coercion for bools and numbers.
	if err := SetByPath(cfg, "channels.whatsapp.enabled", "true"); err != nil {
		t.Fatalf("SetByPath bool: %v", err)
	}
	if !cfg.Channels.WhatsApp.Enabled {
		t.Error("enabled should coerce \"true\" to bool")
	}
	if err := SetByPath(cfg, "media.maxSizeMb", "64"); err != nil {
		t.Fatalf("SetByPath int: %v", err)
	}
	if cfg.Media.MaxSizeMB != 64 {
		t.Errorf("maxSizeMb = %d", cfg.Media.MaxSizeMB)
	}

	got, err := GetByPath(cfg, "channels.whatsapp.gatewayUrl")
	if err != nil {
		t.Fatalf("GetByPath: %v", err)
	}
	if got != "ws://example:9999/s" {
		t.Errorf("GetByPath = %v", got)
	}

	if _, err := GetByPath(cfg, "channels.nope.key"); err == nil {
		t.Error("expected error for missing key")
	}
}

func TestSanitize(t *testing.T) {
	cfg := Defaults()
	cfg.Channels.Telegram.Token = "tg-secret"
	cfg.Channels.Slack.BotToken = "xoxb-secret"

	out := Sanitize(cfg)
	if out.Channels.Telegram.Token != "***" || out.Channels.Slack.BotToken != "***" {
		t.Error("secrets should be blanked")
	}
	if cfg.Channels.Telegram.Token != "tg-secret" {
		t.Error("Sanitize must not mutate the original")
	}
}
