package wweb

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const defaultReadyTimeout = 30 * time.Second

// Manager creates and tears down ephemeral connections for requests that
// have no active session to reuse.
type Manager struct {
	factory      SocketFactory
	readyTimeout time.Duration
	logger       *slog.Logger
}

type ManagerConfig struct {
	Factory      SocketFactory
	ReadyTimeout time.Duration
	Logger       *slog.Logger
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = defaultReadyTimeout
	}
	return &Manager{
		factory:      cfg.Factory,
		readyTimeout: cfg.ReadyTimeout,
		logger:       cfg.Logger,
	}
}

// Connect establishes a new connection. The caller owns it and must close
// it before the request completes, on every exit path.
func (m *Manager) Connect(ctx context.Context, freshLogin bool) (Conn, error) {
	conn, err := m.factory(ctx, freshLogin)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return conn, nil
}

// WaitReady suspends until the connection reports it is usable for sending,
// the handshake fails, or the ready timeout elapses.
func (m *Manager) WaitReady(ctx context.Context, conn Conn) error {
	timer := time.NewTimer(m.readyTimeout)
	defer timer.Stop()

	select {
	case err, ok := <-conn.Ready():
		if !ok {
			return fmt.Errorf("%w: connection closed during handshake", ErrConnect)
		}
		if err != nil {
			return err
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: no ready signal within %s", ErrConnectTimeout, m.readyTimeout)
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrConnect, ctx.Err())
	}
}

// Composing issues a best-effort typing indicator to the recipient. Failure
// never aborts the send; it is logged and forgotten.
func (m *Manager) Composing(ctx context.Context, conn Conn, jid string, logger *slog.Logger) {
	if err := conn.SendPresence(ctx, jid, "composing"); err != nil {
		logger.Debug("presence update skipped", "err", err)
	}
}

// CloseQuietly closes an ephemeral connection, swallowing any error. Safe
// to call exactly once per connection.
func (m *Manager) CloseQuietly(conn Conn, logger *slog.Logger) {
	if err := conn.Close(); err != nil {
		logger.Debug("socket close failed", "err", err)
	}
}
