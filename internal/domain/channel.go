package domain

import "context"

// Channel is the interface for a chat backend (WhatsApp Web, Signal, Telegram, ...).
type Channel interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
	Stop() error
	Send(ctx context.Context, chatID string, content string) error
}

// Reactor is implemented by channels that support emoji reactions.
type Reactor interface {
	React(ctx context.Context, r Reaction) error
}
