// Package browser drives a headless Chrome instance for the WhatsApp Web
// pairing flow. The profile directory persists cookies and local storage,
// so pairing survives restarts.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
)

const whatsappWebURL = "https://web.whatsapp.com"

// Bridge manages Chrome instances for the web session login flow.
type Bridge struct {
	profileDir string
	headless   bool
	logger     *slog.Logger
}

// BridgeConfig holds configuration for the browser bridge.
type BridgeConfig struct {
	ProfileDir string // Chrome user data directory (persists the paired session)
	Headless   bool   // Run headless (true) or with visible UI (false)
	Logger     *slog.Logger
}

func NewBridge(cfg BridgeConfig) *Bridge {
	if cfg.ProfileDir == "" {
		home, _ := os.UserHomeDir()
		cfg.ProfileDir = filepath.Join(home, ".relaybot", "chrome-profiles", "default")
	}
	return &Bridge{
		profileDir: cfg.ProfileDir,
		headless:   cfg.Headless,
		logger:     cfg.Logger,
	}
}

func (b *Bridge) allocOptions(headless bool) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(b.profileDir),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("exclude-switches", "enable-automation"),
		chromedp.UserAgent("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"),
	)
	if headless {
		opts = append(opts, chromedp.Headless)
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	return opts
}

// NewContext creates a chromedp context backed by the bridge's profile.
// The caller MUST call cancel() when done.
func (b *Bridge) NewContext(parentCtx context.Context) (context.Context, context.CancelFunc) {
	if err := os.MkdirAll(b.profileDir, 0o755); err != nil {
		b.logger.Error("failed to create profile dir", "dir", b.profileDir, "err", err)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parentCtx, b.allocOptions(b.headless)...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)

	cancelAll := func() {
		taskCancel()
		allocCancel()
	}

	return taskCtx, cancelAll
}

// Login opens a visible browser on WhatsApp Web so the user can scan the QR
// code with their phone. It blocks until pairing is detected or the context
// is cancelled. The paired session lands in the profile directory.
func (b *Bridge) Login(ctx context.Context) error {
	if err := os.MkdirAll(b.profileDir, 0o755); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}

	b.logger.Info("opening browser for QR pairing", "url", whatsappWebURL)

	// Force a visible browser; the user has to scan the QR code.
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, b.allocOptions(false)...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	if err := chromedp.Run(taskCtx, chromedp.Navigate(whatsappWebURL)); err != nil {
		return fmt.Errorf("navigate to WhatsApp Web: %w", err)
	}

	b.logger.Info("scan the QR code with your phone")

	if err := b.waitPaired(taskCtx); err != nil {
		return err
	}

	b.logger.Info("pairing complete, session saved", "profile", b.profileDir)
	return nil
}

// Paired reports whether the stored profile holds a live paired session, by
// loading WhatsApp Web headless and checking which screen renders.
func (b *Bridge) Paired(ctx context.Context) (bool, error) {
	taskCtx, cancel := b.NewContext(ctx)
	defer cancel()

	taskCtx, taskCancel := context.WithTimeout(taskCtx, 60*time.Second)
	defer taskCancel()

	if err := chromedp.Run(taskCtx,
		chromedp.Navigate(whatsappWebURL),
		chromedp.WaitReady("body"),
	); err != nil {
		return false, fmt.Errorf("load WhatsApp Web: %w", err)
	}

	err := b.waitPaired(taskCtx)
	if err == context.DeadlineExceeded || taskCtx.Err() != nil {
		return false, nil
	}
	return err == nil, err
}

// waitPaired polls until the chat list renders, which means the session is
// authenticated. The QR canvas disappearing alone is not enough: the page
// shows an interstitial while syncing.
func (b *Bridge) waitPaired(taskCtx context.Context) error {
	for {
		select {
		case <-taskCtx.Done():
			return taskCtx.Err()
		case <-time.After(time.Second):
		}

		var paired bool
		err := chromedp.Run(taskCtx,
			chromedp.Evaluate(
				`document.querySelector('[data-testid="chat-list"], #pane-side') !== null`,
				&paired,
			),
		)
		if err != nil {
			return fmt.Errorf("check pairing state: %w", err)
		}
		if paired {
			return nil
		}
	}
}

// Logout wipes the stored browser profile, dropping the paired session.
func (b *Bridge) Logout() error {
	if err := os.RemoveAll(b.profileDir); err != nil {
		return fmt.Errorf("remove profile dir: %w", err)
	}
	b.logger.Info("browser profile removed", "profile", b.profileDir)
	return nil
}
