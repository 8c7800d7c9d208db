package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for Relaybot.
type Config struct {
	General  GeneralConfig  `json:"general"`
	Channels ChannelsConfig `json:"channels"`
	Media    MediaConfig    `json:"media"`
	Relay    RelayConfig    `json:"relay"`
	Metrics  MetricsConfig  `json:"metrics"`
}

type GeneralConfig struct {
	Workspace string `json:"workspace"`
	LogLevel  string `json:"logLevel"`
	LogFile   string `json:"logFile,omitempty"`
}

type ChannelsConfig struct {
	WhatsApp WhatsAppConfig `json:"whatsapp"`
	Signal   SignalConfig   `json:"signal"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord,omitempty"`
	Slack    SlackConfig    `json:"slack,omitempty"`
	CLI      CLIConfig      `json:"cli"`
}

// WhatsAppConfig configures the WhatsApp Web session channel.
type WhatsAppConfig struct {
	Enabled               bool   `json:"enabled"`
	GatewayURL            string `json:"gatewayUrl"`            // websocket gateway for the web session
	DBPath                string `json:"dbPath"`                // pairing credential store
	BrowserProfileDir     string `json:"browserProfileDir,omitempty"`
	ConnectTimeoutSeconds int    `json:"connectTimeoutSeconds"` // ready-wait timeout for ephemeral connections
}

// SignalConfig configures the signal-cli driven channel.
type SignalConfig struct {
	Enabled        bool   `json:"enabled"`
	CLIPath        string `json:"cliPath"` // path to the signal-cli binary
	Account        string `json:"account"` // E.164 number registered with signal-cli
	ReceiveTimeout int    `json:"receiveTimeoutSeconds,omitempty"`
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom,omitempty"` // user IDs; empty = allow all
	ParseMode string   `json:"parseMode,omitempty"`
}

type DiscordConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	GuildID string `json:"guildId,omitempty"` // optional: restrict to specific guild
}

type SlackConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"botToken"`
	AppToken string `json:"appToken"` // required for Socket Mode
}

type CLIConfig struct {
	Enabled bool `json:"enabled"`
}

// MediaConfig bounds attachment fetching.
type MediaConfig struct {
	MaxSizeMB      int `json:"maxSizeMb"`
	TimeoutSeconds int `json:"timeoutSeconds"`
}

// RelayConfig configures message forwarding between channels.
type RelayConfig struct {
	RoutesFile string  `json:"routesFile,omitempty"` // YAML routes file; overrides inline routes
	Routes     []Route `json:"routes,omitempty"`
}

// Route forwards inbound messages from one channel to another.
type Route struct {
	From     string `json:"from" yaml:"from"`
	FromChat string `json:"fromChat,omitempty" yaml:"fromChat,omitempty"` // empty = any chat
	To       string `json:"to" yaml:"to"`
	ToChat   string `json:"toChat" yaml:"toChat"`
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port"`
	Endpoint string `json:"endpoint"`
}

// DefaultConfigDir returns the default config directory (~/.relaybot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".relaybot"
	}
	return filepath.Join(home, ".relaybot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.Workspace = ExpandPath(cfg.General.Workspace)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Channels.WhatsApp.DBPath = ExpandPath(cfg.Channels.WhatsApp.DBPath)
	cfg.Channels.WhatsApp.BrowserProfileDir = ExpandPath(cfg.Channels.WhatsApp.BrowserProfileDir)
	cfg.Relay.RoutesFile = ExpandPath(cfg.Relay.RoutesFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Channels.WhatsApp.ConnectTimeoutSeconds < 1 {
		errs = append(errs, "channels.whatsapp.connectTimeoutSeconds must be >= 1")
	}
	if cfg.Channels.WhatsApp.Enabled && cfg.Channels.WhatsApp.GatewayURL == "" {
		errs = append(errs, "channels.whatsapp.gatewayUrl is required when the channel is enabled")
	}
	if cfg.Channels.Signal.Enabled && cfg.Channels.Signal.Account == "" {
		errs = append(errs, "channels.signal.account is required when the channel is enabled")
	}
	if cfg.Media.MaxSizeMB < 1 {
		errs = append(errs, "media.maxSizeMb must be >= 1")
	}
	if cfg.Media.TimeoutSeconds < 1 {
		errs = append(errs, "media.timeoutSeconds must be >= 1")
	}
	if cfg.Metrics.Port < 0 || cfg.Metrics.Port > 65535 {
		errs = append(errs, "metrics.port must be between 0 and 65535")
	}

	for i, r := range cfg.Relay.Routes {
		if r.From == "" || r.To == "" || r.ToChat == "" {
			errs = append(errs, fmt.Sprintf("relay.routes[%d]: from, to and toChat are required", i))
		}
		if r.From == r.To {
			errs = append(errs, fmt.Sprintf("relay.routes[%d]: from and to must differ", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// Sanitize returns a copy of the config with secrets blanked, for display.
func Sanitize(cfg *Config) *Config {
	out := *cfg
	if out.Channels.Telegram.Token != "" {
		out.Channels.Telegram.Token = "***"
	}
	if out.Channels.Discord.Token != "" {
		out.Channels.Discord.Token = "***"
	}
	if out.Channels.Slack.BotToken != "" {
		out.Channels.Slack.BotToken = "***"
	}
	if out.Channels.Slack.AppToken != "" {
		out.Channels.Slack.AppToken = "***"
	}
	return &out
}
