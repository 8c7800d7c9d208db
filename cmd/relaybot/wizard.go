package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"relaybot/internal/config"

	"github.com/spf13/cobra"
)

var knownChannels = []struct {
	ID   string
	Desc string
}{
	{"whatsapp", "WhatsApp Web session (requires QR pairing)"},
	{"signal", "Signal via signal-cli"},
	{"telegram", "Telegram bot"},
	{"discord", "Discord bot"},
	{"slack", "Slack (Socket Mode)"},
	{"cli", "Interactive terminal (for testing routes)"},
}

func wizardCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "onboard",
		Aliases: []string{"wizard"},
		Short:   "Interactive setup: workspace → channels → route → save config",
		Long:  "Guides you through workspace path, which channels to enable (with their tokens), and a first relay route. Writes config to the path used by --config or default.",
		RunE:  runWizard,
	}
}

func runWizard(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		cfg = config.Defaults()
	}

	reader := bufio.NewReader(os.Stdin)
	prompt := func(def string) (string, error) {
		if def != "" {
			fmt.Fprintf(os.Stdout, " [%s]: ", def)
		} else {
			fmt.Fprint(os.Stdout, ": ")
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		s := strings.TrimSpace(line)
		if s == "" && def != "" {
			return def, nil
		}
		return s, nil
	}

	// Step 1: Workspace
	fmt.Println("\n--- Step 1: Workspace ---")
	workspace := cfg.General.Workspace
	if workspace == "" {
		workspace = "~/.relaybot/workspace"
	}
	fmt.Fprint(os.Stdout, "Directory for relay data (logs, pairing db)")
	ws, err := prompt(workspace)
	if err != nil {
		return err
	}
	if ws != "" {
		cfg.General.Workspace = ws
	}
	cfg.General.Workspace = config.ExpandPath(cfg.General.Workspace)
	if err := os.MkdirAll(cfg.General.Workspace, 0o755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}
	fmt.Fprintf(os.Stdout, "  Using workspace: %s\n", cfg.General.Workspace)

	// Step 2: Channels
	fmt.Println("\n--- Step 2: Channels ---")
	for i, c := range knownChannels {
		fmt.Fprintf(os.Stdout, "  %d) %s — %s\n", i+1, c.ID, c.Desc)
	}
	fmt.Fprint(os.Stdout, "Enable channels (comma-separated numbers, e.g. 1,3)")
	choice, err := prompt("1,3")
	if err != nil {
		return err
	}

	enabled := map[string]bool{}
	for _, part := range strings.Split(choice, ",") {
		var idx int
		if n, _ := fmt.Sscanf(strings.TrimSpace(part), "%d", &idx); n == 1 && idx >= 1 && idx <= len(knownChannels) {
			enabled[knownChannels[idx-1].ID] = true
		}
	}

	cfg.Channels.WhatsApp.Enabled = enabled["whatsapp"]
	cfg.Channels.Signal.Enabled = enabled["signal"]
	cfg.Channels.Telegram.Enabled = enabled["telegram"]
	cfg.Channels.Discord.Enabled = enabled["discord"]
	cfg.Channels.Slack.Enabled = enabled["slack"]
	cfg.Channels.CLI.Enabled = enabled["cli"]

	if enabled["signal"] {
		fmt.Fprint(os.Stdout, "Signal account (E.164 number registered with signal-cli)")
		acct, err := prompt(cfg.Channels.Signal.Account)
		if err != nil {
			return err
		}
		cfg.Channels.Signal.Account = acct
	}
	if enabled["telegram"] {
		fmt.Fprint(os.Stdout, "Telegram bot token (from @BotFather)")
		tok, err := prompt("")
		if err != nil {
			return err
		}
		if tok != "" {
			cfg.Channels.Telegram.Token = tok
		}
	}
	if enabled["discord"] {
		fmt.Fprint(os.Stdout, "Discord bot token")
		tok, err := prompt("")
		if err != nil {
			return err
		}
		if tok != "" {
			cfg.Channels.Discord.Token = tok
		}
	}
	if enabled["slack"] {
		fmt.Fprint(os.Stdout, "Slack bot token (xoxb-...)")
		bot, err := prompt("")
		if err != nil {
			return err
		}
		cfg.Channels.Slack.BotToken = bot
		fmt.Fprint(os.Stdout, "Slack app-level token (xapp-..., for Socket Mode)")
		app, err := prompt("")
		if err != nil {
			return err
		}
		cfg.Channels.Slack.AppToken = app
	}

	// Step 3: First route
	fmt.Println("\n--- Step 3: First route (optional, Enter to skip) ---")
	fmt.Fprint(os.Stdout, "Forward messages FROM channel (e.g. whatsapp)")
	from, err := prompt("")
	if err != nil {
		return err
	}
	if from != "" {
		fmt.Fprint(os.Stdout, "TO channel (e.g. telegram)")
		to, err := prompt("")
		if err != nil {
			return err
		}
		fmt.Fprint(os.Stdout, "TO chat id (e.g. telegram chat id or phone number)")
		toChat, err := prompt("")
		if err != nil {
			return err
		}
		if to != "" && toChat != "" {
			cfg.Relay.Routes = append(cfg.Relay.Routes, config.Route{From: from, To: to, ToChat: toChat})
		}
	}

	// Save
	cfgDir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	if err := config.Save(cfgPath, cfg); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "\nConfig saved to %s\n", cfgPath)
	if cfg.Channels.WhatsApp.Enabled {
		fmt.Println("Next: run 'relaybot login' to pair WhatsApp Web, then 'relaybot gateway'.")
	} else {
		fmt.Println("Next: run 'relaybot gateway' to start relaying.")
	}
	return nil
}
