package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			Workspace: "~/.relaybot/workspace",
			LogLevel:  "info",
		},
		Channels: ChannelsConfig{
			WhatsApp: WhatsAppConfig{
				Enabled:               false,
				GatewayURL:            "ws://127.0.0.1:3441/session",
				DBPath:                "~/.relaybot/wweb.db",
				ConnectTimeoutSeconds: 30,
			},
			Signal: SignalConfig{
				Enabled:        false,
				CLIPath:        "signal-cli",
				ReceiveTimeout: 5,
			},
			Telegram: TelegramConfig{
				Enabled:   false,
				ParseMode: "Markdown",
			},
			CLI: CLIConfig{
				Enabled: true,
			},
		},
		Media: MediaConfig{
			MaxSizeMB:      32,
			TimeoutSeconds: 60,
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Host:     "127.0.0.1",
			Port:     9097,
			Endpoint: "/metrics",
		},
	}
}
