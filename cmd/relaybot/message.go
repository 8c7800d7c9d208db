package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"relaybot/internal/channel"
	"relaybot/internal/domain"
	"relaybot/internal/wweb"

	"github.com/spf13/cobra"
)

// messageCmd groups the one-off message operations that run without the
// gateway.
func messageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "message",
		Short: "Send or react to messages without running the gateway",
	}
	cmd.AddCommand(sendCmd())
	cmd.AddCommand(reactCmd())
	return cmd
}

// sendCmd dispatches a single message through the WhatsApp Web session
// without starting the gateway. With no gateway running, this always takes
// the ephemeral connection path.
func sendCmd() *cobra.Command {
	var (
		channelName string
		to          string
		body        string
		mediaURL    string
		verbose     bool
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a one-off message",
		Long:  "Sends a single message to a phone number or JID. Media can be attached by URL or local path.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if to == "" {
				return fmt.Errorf("--target is required")
			}
			if channelName != "whatsapp" {
				return fmt.Errorf("one-off sends are only supported on the whatsapp channel, got %q", channelName)
			}
			if body == "" && mediaURL == "" {
				return fmt.Errorf("nothing to send: provide --message or --media")
			}

			cfg := loadConfigOrDefaults()
			wa := cfg.Channels.WhatsApp
			if wa.GatewayURL == "" {
				return fmt.Errorf("channels.whatsapp.gatewayUrl is not configured")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			dispatcher := wweb.NewDispatcher(wweb.DispatcherConfig{
				Registry: wweb.NewRegistry(),
				Manager: wweb.NewManager(wweb.ManagerConfig{
					Factory:      wweb.DialGateway(wa.GatewayURL),
					ReadyTimeout: time.Duration(wa.ConnectTimeoutSeconds) * time.Second,
					Logger:       logger,
				}),
				Media: wweb.NewResolver(wweb.ResolverConfig{
					MaxSizeBytes: int64(cfg.Media.MaxSizeMB) << 20,
					Timeout:      time.Duration(cfg.Media.TimeoutSeconds) * time.Second,
					Logger:       logger,
				}),
				Logger: logger,
			})

			result, err := dispatcher.Send(ctx, wweb.OutboundRequest{
				To:       to,
				Body:     body,
				MediaURL: mediaURL,
				Verbose:  verbose,
			})
			if err != nil {
				return err
			}

			fmt.Printf("sent to %s (message id: %s)\n", result.ToJID, result.MessageID)
			return nil
		},
	}

	cmd.Flags().StringVar(&channelName, "channel", "whatsapp", "channel to send on")
	cmd.Flags().StringVar(&to, "target", "", "recipient: phone number or JID")
	cmd.Flags().StringVarP(&body, "message", "m", "", "message text")
	cmd.Flags().StringVar(&mediaURL, "media", "", "attachment URL or local file path")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log media resolution details")
	return cmd
}

// reactCmd sends an emoji reaction to a prior message on a channel that
// supports reactions.
func reactCmd() *cobra.Command {
	var (
		channelName string
		target      string
		messageID   string
		emoji       string
		authorUUID  string
	)

	cmd := &cobra.Command{
		Use:   "react",
		Short: "React to a message with an emoji",
		Long:  "Sends an emoji reaction. Currently supported on the signal channel; the target message is addressed by its timestamp.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" || messageID == "" || emoji == "" {
				return fmt.Errorf("--target, --message-id and --emoji are required")
			}

			cfg := loadConfigOrDefaults()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			reaction := domain.Reaction{
				Channel:          channelName,
				Target:           target,
				MessageID:        messageID,
				Emoji:            emoji,
				TargetAuthorUUID: authorUUID,
			}

			switch channelName {
			case "signal":
				sig := channel.NewSignal(channel.SignalConfig{
					CLIPath: cfg.Channels.Signal.CLIPath,
					Account: cfg.Channels.Signal.Account,
					Logger:  logger,
				})
				return sig.React(ctx, reaction)
			default:
				return fmt.Errorf("channel %q does not support reactions from the CLI", channelName)
			}
		},
	}

	cmd.Flags().StringVar(&channelName, "channel", "signal", "channel to react on")
	cmd.Flags().StringVar(&target, "target", "", "chat to react in (recipient or signal:group:<id>)")
	cmd.Flags().StringVar(&messageID, "message-id", "", "id of the message to react to")
	cmd.Flags().StringVar(&emoji, "emoji", "", "emoji to react with")
	cmd.Flags().StringVar(&authorUUID, "target-author-uuid", "", "uuid of the target message's author (signal groups)")
	return cmd
}
