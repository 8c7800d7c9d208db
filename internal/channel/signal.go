package channel

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"relaybot/internal/domain"
)

const signalGroupPrefix = "signal:group:"

// CommandRunner abstracts process execution so tests can capture argv
// without a signal-cli binary on the path.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Signal drives a signal-cli process for sending and a long-running
// `receive -o json` loop for inbound messages.
type Signal struct {
	cliPath    string
	account    string
	recvWindow int
	runner     CommandRunner
	logger     *slog.Logger
}

type SignalConfig struct {
	CLIPath        string
	Account        string
	ReceiveTimeout int
	Runner         CommandRunner
	Logger         *slog.Logger
}

func NewSignal(cfg SignalConfig) *Signal {
	if cfg.CLIPath == "" {
		cfg.CLIPath = "signal-cli"
	}
	if cfg.ReceiveTimeout <= 0 {
		cfg.ReceiveTimeout = 5
	}
	if cfg.Runner == nil {
		cfg.Runner = execRunner{}
	}
	return &Signal{
		cliPath:    cfg.CLIPath,
		account:    cfg.Account,
		recvWindow: cfg.ReceiveTimeout,
		runner:     cfg.Runner,
		logger:     cfg.Logger,
	}
}

func (s *Signal) Name() string { return "signal" }

// sendArgs builds the signal-cli argv for a plain message. Group targets
// use the "signal:group:<id>" form; anything else is a direct recipient.
func sendArgs(account, chatID, content string) []string {
	args := []string{"-a", account, "send", "-m", content}
	if gid, ok := strings.CutPrefix(chatID, signalGroupPrefix); ok {
		args = append(args, "-g", gid)
	} else {
		args = append(args, chatID)
	}
	return args
}

// reactArgs builds the signal-cli argv for an emoji reaction on a prior
// message, identified by its timestamp.
func reactArgs(account string, r domain.Reaction) ([]string, error) {
	ts, err := strconv.ParseInt(r.MessageID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("signal reaction target %q is not a timestamp: %w", r.MessageID, err)
	}
	args := []string{"-a", account, "sendReaction",
		"--emoji", r.Emoji,
		"--target-timestamp", strconv.FormatInt(ts, 10),
	}
	if r.TargetAuthorUUID != "" {
		args = append(args, "--target-author", r.TargetAuthorUUID)
	}
	if gid, ok := strings.CutPrefix(r.Target, signalGroupPrefix); ok {
		args = append(args, "-g", gid)
	} else {
		args = append(args, r.Target)
	}
	return args, nil
}

func (s *Signal) Start(ctx context.Context, bus domain.MessageBus) error {
	if s.account == "" {
		return fmt.Errorf("signal channel requires an account")
	}

	bus.OnOutbound("signal", func(msg domain.OutboundMessage) {
		if err := s.Send(ctx, msg.ChatID, msg.Content); err != nil {
			s.logger.Error("signal send failed", "err", err, "chat", msg.ChatID)
		}
	})

	s.logger.Info("signal channel started", "account", s.account)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("signal channel stopping")
			return nil
		default:
		}
		if err := s.receiveOnce(ctx, bus); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("signal receive failed", "err", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(5 * time.Second):
			}
		}
	}
}

// signalEnvelope is the subset of signal-cli's JSON output we consume.
type signalEnvelope struct {
	Envelope struct {
		Source     string `json:"source"`
		SourceUUID string `json:"sourceUuid"`
		Timestamp  int64  `json:"timestamp"`
		DataMsg    *struct {
			Message   string `json:"message"`
			GroupInfo *struct {
				GroupID string `json:"groupId"`
			} `json:"groupInfo"`
		} `json:"dataMessage"`
	} `json:"envelope"`
}

func (s *Signal) receiveOnce(ctx context.Context, bus domain.MessageBus) error {
	out, err := s.runner.Run(ctx, s.cliPath,
		"-a", s.account, "-o", "json",
		"receive", "-t", strconv.Itoa(s.recvWindow),
	)
	if err != nil {
		return fmt.Errorf("signal-cli receive: %w (%s)", err, strings.TrimSpace(string(out)))
	}

	sc := bufio.NewScanner(strings.NewReader(string(out)))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var env signalEnvelope
		if err := json.Unmarshal([]byte(line), &env); err != nil {
			s.logger.Debug("skipping unparseable signal-cli line", "err", err)
			continue
		}
		dm := env.Envelope.DataMsg
		if dm == nil || dm.Message == "" {
			continue
		}
		chatID := env.Envelope.Source
		if dm.GroupInfo != nil && dm.GroupInfo.GroupID != "" {
			chatID = signalGroupPrefix + dm.GroupInfo.GroupID
		}
		bus.Publish(domain.InboundMessage{
			Channel:   "signal",
			ChatID:    chatID,
			SenderID:  env.Envelope.Source,
			Content:   dm.Message,
			Timestamp: time.UnixMilli(env.Envelope.Timestamp),
		})
	}
	return sc.Err()
}

func (s *Signal) Stop() error { return nil }

func (s *Signal) Send(ctx context.Context, chatID string, content string) error {
	out, err := s.runner.Run(ctx, s.cliPath, sendArgs(s.account, chatID, content)...)
	if err != nil {
		return fmt.Errorf("signal-cli send: %w (%s)", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// React sends an emoji reaction. Implements domain.Reactor.
func (s *Signal) React(ctx context.Context, r domain.Reaction) error {
	args, err := reactArgs(s.account, r)
	if err != nil {
		return err
	}
	out, err := s.runner.Run(ctx, s.cliPath, args...)
	if err != nil {
		return fmt.Errorf("signal-cli sendReaction: %w (%s)", err, strings.TrimSpace(string(out)))
	}
	return nil
}
