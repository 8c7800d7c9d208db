package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"relaybot/internal/browser"
	"relaybot/internal/bus"
	"relaybot/internal/channel"
	"relaybot/internal/config"
	"relaybot/internal/metrics"
	"relaybot/internal/relay"
	"relaybot/internal/wweb"

	"github.com/spf13/cobra"
)

var (
	version    = "0.3.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "relaybot",
		Short: "Relaybot: multi-channel chat relay",
		Long:  "Relaybot forwards messages between WhatsApp, Signal, Telegram, Discord and Slack according to configured routes.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.relaybot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(gatewayCmd())
	root.AddCommand(messageCmd())
	root.AddCommand(loginCmd())
	root.AddCommand(logoutCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(configCmd())
	root.AddCommand(wizardCmd())
	root.AddCommand(doctorCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func loadConfigOrDefaults() *config.Config {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		return config.Defaults()
	}
	return cfg
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config and workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			workspace := config.ExpandPath(cfg.General.Workspace)
			if err := os.MkdirAll(workspace, 0o755); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "workspace", workspace)
			return nil
		},
	}
}

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Start the relay gateway (all enabled channels)",
		Long:  "Starts all enabled channels and the relay loop. Press Ctrl+C to stop.",
		RunE:  runGateway,
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.General.LogLevel)}))

	if cfg.General.Workspace != "" {
		if err := os.MkdirAll(cfg.General.Workspace, 0o755); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	messageBus := bus.New(100, logger)
	eventBus := bus.NewEventBus(logger)

	routes := cfg.Relay.Routes
	if cfg.Relay.RoutesFile != "" {
		fileRoutes, err := relay.LoadRoutes(cfg.Relay.RoutesFile)
		if err != nil {
			return err
		}
		routes = fileRoutes
	}
	if len(routes) == 0 {
		logger.Warn("no relay routes configured; inbound messages will not be forwarded")
	}

	relayLoop := relay.New(relay.Config{
		Routes: routes,
		Bus:    messageBus,
		Events: eventBus,
		Logger: logger,
	})
	go relayLoop.Run(ctx)

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.HandleFunc(cfg.Metrics.Endpoint, metrics.Collector.Handler())
		addr := fmt.Sprintf("%s:%d", cfg.Metrics.Host, cfg.Metrics.Port)
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("metrics endpoint listening", "addr", addr, "endpoint", cfg.Metrics.Endpoint)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "err", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			srv.Shutdown(shutCtx)
		}()
	}

	started := startChannels(ctx, cfg, messageBus, eventBus)
	if started == 0 {
		return fmt.Errorf("no channels enabled; enable at least one in %s", cfgPath)
	}

	logger.Info("gateway started", "channels", started, "routes", len(routes))

	<-ctx.Done()
	logger.Info("shutting down gateway...")

	const shutdownTimeout = 10 * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		messageBus.Close()
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
		return nil
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		return fmt.Errorf("shutdown timed out")
	}
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// startChannels constructs and starts every enabled channel, returning how
// many were started.
func startChannels(ctx context.Context, cfg *config.Config, messageBus *bus.InMemoryBus, eventBus *bus.EventBus) int {
	started := 0

	if cfg.Channels.WhatsApp.Enabled {
		wa := newWhatsAppChannel(cfg)
		go func() {
			if err := wa.Start(ctx, messageBus); err != nil {
				logger.Error("whatsapp channel error", "err", err)
				eventBus.Emit(bus.Event{Type: bus.EventChannelError, Source: "whatsapp"})
			}
		}()
		logger.Info("whatsapp channel enabled", "gateway", cfg.Channels.WhatsApp.GatewayURL)
		started++
	}

	if cfg.Channels.Signal.Enabled {
		sig := channel.NewSignal(channel.SignalConfig{
			CLIPath:        cfg.Channels.Signal.CLIPath,
			Account:        cfg.Channels.Signal.Account,
			ReceiveTimeout: cfg.Channels.Signal.ReceiveTimeout,
			Logger:         logger,
		})
		go func() {
			if err := sig.Start(ctx, messageBus); err != nil {
				logger.Error("signal channel error", "err", err)
				eventBus.Emit(bus.Event{Type: bus.EventChannelError, Source: "signal"})
			}
		}()
		logger.Info("signal channel enabled", "account", cfg.Channels.Signal.Account)
		started++
	}

	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token != "" {
		tg := channel.NewTelegram(channel.TelegramConfig{
			Token:     cfg.Channels.Telegram.Token,
			AllowFrom: cfg.Channels.Telegram.AllowFrom,
			ParseMode: cfg.Channels.Telegram.ParseMode,
			Logger:    logger,
		})
		go func() {
			if err := tg.Start(ctx, messageBus); err != nil {
				logger.Error("telegram channel error", "err", err)
				eventBus.Emit(bus.Event{Type: bus.EventChannelError, Source: "telegram"})
			}
		}()
		logger.Info("telegram channel enabled")
		started++
	}

	if cfg.Channels.Discord.Enabled && cfg.Channels.Discord.Token != "" {
		dc := channel.NewDiscord(channel.DiscordConfig{
			Token:   cfg.Channels.Discord.Token,
			GuildID: cfg.Channels.Discord.GuildID,
			Logger:  logger,
		})
		go func() {
			if err := dc.Start(ctx, messageBus); err != nil {
				logger.Error("discord channel error", "err", err)
				eventBus.Emit(bus.Event{Type: bus.EventChannelError, Source: "discord"})
			}
		}()
		logger.Info("discord channel enabled")
		started++
	}

	if cfg.Channels.Slack.Enabled && cfg.Channels.Slack.BotToken != "" {
		sl := channel.NewSlack(channel.SlackConfig{
			BotToken: cfg.Channels.Slack.BotToken,
			AppToken: cfg.Channels.Slack.AppToken,
			Logger:   logger,
		})
		go func() {
			if err := sl.Start(ctx, messageBus); err != nil {
				logger.Error("slack channel error", "err", err)
				eventBus.Emit(bus.Event{Type: bus.EventChannelError, Source: "slack"})
			}
		}()
		logger.Info("slack channel enabled")
		started++
	}

	if cfg.Channels.CLI.Enabled {
		cli := channel.NewCLI(channel.CLIConfig{Logger: logger})
		go func() {
			if err := cli.Start(ctx, messageBus); err != nil {
				logger.Error("cli channel error", "err", err)
			}
		}()
		logger.Info("cli channel enabled")
		started++
	}

	return started
}

// newWhatsAppChannel assembles the web-session channel with its registry,
// connection manager and media resolver from config.
func newWhatsAppChannel(cfg *config.Config) *channel.WhatsApp {
	wa := cfg.Channels.WhatsApp
	factory := wweb.DialGateway(wa.GatewayURL)
	registry := wweb.NewRegistry()
	manager := wweb.NewManager(wweb.ManagerConfig{
		Factory:      factory,
		ReadyTimeout: time.Duration(wa.ConnectTimeoutSeconds) * time.Second,
		Logger:       logger,
	})
	resolver := wweb.NewResolver(wweb.ResolverConfig{
		MaxSizeBytes: int64(cfg.Media.MaxSizeMB) << 20,
		Timeout:      time.Duration(cfg.Media.TimeoutSeconds) * time.Second,
		Logger:       logger,
	})
	dispatcher := wweb.NewDispatcher(wweb.DispatcherConfig{
		Registry: registry,
		Manager:  manager,
		Media:    resolver,
		Logger:   logger,
	})
	return channel.NewWhatsApp(channel.WhatsAppChannelConfig{
		Dispatcher:  dispatcher,
		Registry:    registry,
		Factory:     factory,
		PairTimeout: time.Duration(wa.ConnectTimeoutSeconds) * time.Second,
		Logger:      logger,
	})
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration and pairing status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false)
				cfg = config.Defaults()
			} else {
				logger.Info("config", "path", cfgPath, "loaded", true)
			}

			for name, enabled := range map[string]bool{
				"whatsapp": cfg.Channels.WhatsApp.Enabled,
				"signal":   cfg.Channels.Signal.Enabled,
				"telegram": cfg.Channels.Telegram.Enabled,
				"discord":  cfg.Channels.Discord.Enabled,
				"slack":    cfg.Channels.Slack.Enabled,
				"cli":      cfg.Channels.CLI.Enabled,
			} {
				logger.Info("channel", "name", name, "enabled", enabled)
			}

			if cfg.Channels.WhatsApp.DBPath != "" {
				store, err := wweb.OpenCredStore(cfg.Channels.WhatsApp.DBPath, logger)
				if err != nil {
					logger.Warn("credential store unavailable", "err", err)
					return nil
				}
				defer store.Close()
				creds, err := store.Load(cmd.Context())
				if err != nil {
					return err
				}
				if creds == nil {
					logger.Info("whatsapp pairing", "paired", false)
				} else {
					logger.Info("whatsapp pairing", "paired", true, "device", creds.DeviceID, "since", creds.PairedAt.Format(time.RFC3339))
				}
			}
			return nil
		},
	}
}

func loginCmd() *cobra.Command {
	var (
		headlessCheck bool
		fresh         bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Pair with WhatsApp Web via QR code",
		Long:  "Opens a visible Chrome window on WhatsApp Web. Scan the QR code with your phone; the paired session is stored for the gateway.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfigOrDefaults()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			bridge := browser.NewBridge(browser.BridgeConfig{
				ProfileDir: cfg.Channels.WhatsApp.BrowserProfileDir,
				Logger:     logger,
			})

			if fresh {
				if err := bridge.Logout(); err != nil {
					return err
				}
			}

			if headlessCheck {
				paired, err := bridge.Paired(ctx)
				if err != nil {
					return err
				}
				logger.Info("pairing check", "paired", paired)
				return nil
			}

			if err := bridge.Login(ctx); err != nil {
				return err
			}

			store, err := wweb.OpenCredStore(cfg.Channels.WhatsApp.DBPath, logger)
			if err != nil {
				return err
			}
			defer store.Close()
			return store.Save(ctx, wweb.Credentials{
				DeviceID: "browser-profile",
				PairedAt: time.Now().UTC(),
			})
		},
	}
	cmd.Flags().BoolVar(&headlessCheck, "check", false, "only check whether a paired session exists")
	cmd.Flags().BoolVar(&fresh, "fresh", false, "discard any stored session and pair from scratch")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Drop the paired WhatsApp Web session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfigOrDefaults()

			bridge := browser.NewBridge(browser.BridgeConfig{
				ProfileDir: cfg.Channels.WhatsApp.BrowserProfileDir,
				Logger:     logger,
			})
			if err := bridge.Logout(); err != nil {
				return err
			}

			store, err := wweb.OpenCredStore(cfg.Channels.WhatsApp.DBPath, logger)
			if err != nil {
				return err
			}
			defer store.Close()
			return store.Clear(cmd.Context())
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. channels.whatsapp.gatewayUrl)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. channels.telegram.enabled true)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			sanitized := config.Sanitize(cfg)
			data, _ := json.MarshalIndent(sanitized, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}
